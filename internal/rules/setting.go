package rules

import (
	"time"

	"github.com/sells-group/automation-cli/internal/calendar"
	"github.com/sells-group/automation-cli/internal/channel"
	"github.com/sells-group/automation-cli/internal/idempotency"
	"github.com/sells-group/automation-cli/internal/model"
)

// Default is the configured baseline for one rule before tenant overrides.
type Default struct {
	Enabled    bool     `mapstructure:"enabled" yaml:"enabled"`
	Days       int      `mapstructure:"days" yaml:"days"`
	WindowDays int      `mapstructure:"window_days" yaml:"window_days"`
	Channels   []string `mapstructure:"channels" yaml:"channels"`
	// Horizon marks Days as a look-ahead that --days may replace. Other
	// rules read Days as a fixed threshold.
	Horizon bool `mapstructure:"-" yaml:"-"`
}

// Defaults returns the built-in defaults for every rule. Days is the rule's
// horizon or threshold.
func Defaults() map[Kind]Default {
	sys := []string{string(channel.KindSystem)}
	return map[Kind]Default{
		SLADueAssign:        {Enabled: true},
		SLAResponseBreach:   {Enabled: true, WindowDays: 1, Channels: sys},
		SLAResolutionBreach: {Enabled: true, WindowDays: 1, Channels: sys},
		SLAEscalation:       {Enabled: true, WindowDays: 1, Channels: sys},

		OverdueReceivable: {Enabled: true, WindowDays: 1, Channels: sys},
		OverduePayable:    {Enabled: true, WindowDays: 1, Channels: sys},
		ExpiringPayable:   {Enabled: true, Horizon: true, Days: 5, WindowDays: 5, Channels: sys},
		LowStock:          {Enabled: true, WindowDays: 3, Channels: sys},
		ContractExpiring:  {Enabled: true, Horizon: true, Days: 30, WindowDays: 7, Channels: sys},
		UnbilledWorkOrder: {Enabled: true, Days: 1, WindowDays: 1, Channels: sys},
		QuoteExpiring:     {Enabled: true, Horizon: true, Days: 5, WindowDays: 5, Channels: sys},
		QuoteExpired:      {Enabled: true, WindowDays: 7, Channels: sys},
		// Days is the idle threshold in whole days.
		WorkOrderNotStarted: {Enabled: true, Days: 1, WindowDays: 1, Channels: sys},

		CalibrationDue:    {Enabled: true, Horizon: true, Days: 30, WindowDays: 7, Channels: sys},
		ContractRenewal:   {Enabled: true, Horizon: true, Days: 60, WindowDays: 30, Channels: sys},
		NoContact90d:      {Enabled: true, Days: 90, WindowDays: 30, Channels: sys},
		LowHealthScore:    {Enabled: true, WindowDays: 30, Channels: sys},
		WorkOrderFollowUp: {Enabled: true, Days: 2, WindowDays: 3, Channels: sys},

		CalibrationReminder: {Enabled: true, Horizon: true, Days: 15, WindowDays: 30, Channels: []string{string(channel.KindWhatsApp)}},
		ContractNotice:      {Enabled: true, Horizon: true, Days: 45, WindowDays: 30, Channels: []string{string(channel.KindEmail)}},
		CollectionReminder:  {Enabled: true, WindowDays: 3, Channels: []string{string(channel.KindWhatsApp)}},
	}
}

// QuietHours is a local-time span, in minutes of day, during which outbound
// channels stay silent. End before Start wraps midnight.
type QuietHours struct {
	Start int
	End   int
}

// Contains reports whether local falls inside the span.
func (q QuietHours) Contains(local time.Time) bool {
	m := local.Hour()*60 + local.Minute()
	if q.Start <= q.End {
		return m >= q.Start && m < q.End
	}
	return m >= q.Start || m < q.End
}

// Setting is the effective configuration of one rule for one tenant.
type Setting struct {
	Kind       Kind
	Enabled    bool
	Days       int
	Window     time.Duration
	Channels   []channel.Kind
	Recipients []int64
	Quiet      *QuietHours
}

// HasChannel reports whether k is enabled for the rule.
func (s Setting) HasChannel(k channel.Kind) bool {
	for _, c := range s.Channels {
		if c == k {
			return true
		}
	}
	return false
}

// Resolve merges the configured default, the tenant's stored override and
// the invocation's --days override. A nil stored setting keeps the default.
// daysOverride only applies to horizon rules.
func Resolve(kind Kind, tenantID int64, def Default, stored *model.RuleSetting, daysOverride int) (Setting, error) {
	s := Setting{
		Kind:    kind,
		Enabled: def.Enabled,
		Days:    def.Days,
		Window:  idempotency.Days(def.WindowDays),
	}
	channels := def.Channels

	if stored != nil {
		s.Enabled = stored.Enabled
		if stored.Days > 0 {
			s.Days = stored.Days
		}
		if stored.WindowDays > 0 {
			s.Window = idempotency.Days(stored.WindowDays)
		}
		if len(stored.Channels) > 0 {
			channels = stored.Channels
		}
		s.Recipients = append(s.Recipients, stored.Recipients...)

		if stored.BlackoutStart != "" || stored.BlackoutEnd != "" {
			start, err := calendar.ParseClock(stored.BlackoutStart)
			if err != nil {
				return s, &ConfigurationError{Rule: kind, TenantID: tenantID, Reason: "blackout_start: " + err.Error()}
			}
			end, err := calendar.ParseClock(stored.BlackoutEnd)
			if err != nil {
				return s, &ConfigurationError{Rule: kind, TenantID: tenantID, Reason: "blackout_end: " + err.Error()}
			}
			if start != end {
				s.Quiet = &QuietHours{Start: start, End: end}
			}
		}
	}

	if daysOverride > 0 && def.Horizon {
		s.Days = daysOverride
	}
	// Deadline assignment is state-derived and never windowed.
	if kind == SLADueAssign {
		s.Window = 0
	}

	for _, c := range channels {
		k := channel.Kind(c)
		if !k.Valid() {
			return s, &ConfigurationError{Rule: kind, TenantID: tenantID, Reason: "unknown channel " + c}
		}
		s.Channels = append(s.Channels, k)
	}
	return s, nil
}
