// Package calendar computes deadlines measured in business minutes.
package calendar

import (
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/rotisserie/eris"

	"github.com/sells-group/automation-cli/internal/model"
)

// ErrInvalidConfig is wrapped by every error New returns.
var ErrInvalidConfig = eris.New("calendar: invalid configuration")

const dateLayout = "2006-01-02"

// Config describes working hours. WorkStart and WorkEnd are "HH:MM" in
// Timezone; WorkDays are ISO weekday numbers (1 = Monday ... 7 = Sunday).
type Config struct {
	Timezone  string      `yaml:"timezone" mapstructure:"timezone"`
	WorkStart string      `yaml:"work_start" mapstructure:"work_start"`
	WorkEnd   string      `yaml:"work_end" mapstructure:"work_end"`
	WorkDays  []int       `yaml:"work_days" mapstructure:"work_days"`
	Holidays  []time.Time `yaml:"-" mapstructure:"-"`
}

// WithTenant overlays a tenant's stored calendar on c. Empty tenant fields
// keep c's values; tenant holidays are added to c's holidays.
func (c Config) WithTenant(tc *model.TenantCalendar) (Config, error) {
	if tc == nil {
		return c, nil
	}
	out := c
	if tc.Timezone != "" {
		out.Timezone = tc.Timezone
	}
	if tc.WorkStart != "" {
		out.WorkStart = tc.WorkStart
	}
	if tc.WorkEnd != "" {
		out.WorkEnd = tc.WorkEnd
	}
	if strings.TrimSpace(tc.WorkDays) != "" {
		days, err := ParseWorkDays(tc.WorkDays)
		if err != nil {
			return c, err
		}
		out.WorkDays = days
	}
	out.Holidays = append(append([]time.Time(nil), c.Holidays...), holidayDates(tc.Holidays)...)
	return out, nil
}

// Calendar is an immutable working-hours clock. It never reads the wall clock.
type Calendar struct {
	loc       *time.Location
	workStart int // minutes after midnight
	workEnd   int
	workDays  [7]bool // indexed by time.Weekday
	holidays  map[string]struct{}
}

// New validates cfg and builds a Calendar. Invalid bounds, unknown time zones
// and empty work-day sets are rejected here so callers never see them per call.
func New(cfg Config) (*Calendar, error) {
	tz := cfg.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, eris.Wrapf(ErrInvalidConfig, "unknown timezone %q", tz)
	}

	start, err := ParseClock(cfg.WorkStart)
	if err != nil {
		return nil, err
	}
	end, err := ParseClock(cfg.WorkEnd)
	if err != nil {
		return nil, err
	}
	if end <= start {
		return nil, eris.Wrapf(ErrInvalidConfig, "work_end %s must be after work_start %s", cfg.WorkEnd, cfg.WorkStart)
	}

	c := &Calendar{
		loc:       loc,
		workStart: start,
		workEnd:   end,
		holidays:  make(map[string]struct{}, len(cfg.Holidays)),
	}
	for _, d := range cfg.WorkDays {
		if d < 1 || d > 7 {
			return nil, eris.Wrapf(ErrInvalidConfig, "work day %d out of range 1-7", d)
		}
		c.workDays[time.Weekday(d%7)] = true
	}
	if c.workDays == [7]bool{} {
		return nil, eris.Wrap(ErrInvalidConfig, "no work days configured")
	}
	for _, h := range cfg.Holidays {
		// Holidays are calendar dates; the wall date is taken as given.
		c.holidays[h.Format(dateLayout)] = struct{}{}
	}
	return c, nil
}

// Location returns the calendar's time zone.
func (c *Calendar) Location() *time.Location { return c.loc }

// IsHoliday reports whether t's local date is a configured holiday.
func (c *Calendar) IsHoliday(t time.Time) bool {
	_, ok := c.holidays[t.In(c.loc).Format(dateLayout)]
	return ok
}

// IsWorkingDay reports whether t's local date is a work day and not a holiday.
func (c *Calendar) IsWorkingDay(t time.Time) bool {
	local := t.In(c.loc)
	return c.workDays[local.Weekday()] && !c.IsHoliday(local)
}

// IsWorkingInstant reports whether t falls inside [workStart, workEnd) of a working day.
func (c *Calendar) IsWorkingInstant(t time.Time) bool {
	if !c.IsWorkingDay(t) {
		return false
	}
	open, closing := c.window(t.In(c.loc))
	return !t.Before(open) && t.Before(closing)
}

// NextWorkingInstant returns t if it is a working instant, else the next opening.
func (c *Calendar) NextWorkingInstant(t time.Time) time.Time {
	return c.Deadline(t, 0)
}

// Deadline returns the instant at which minutes business minutes have elapsed
// after start. A start outside working time is first advanced to the next
// opening. The result is always a working instant: a budget that runs out
// exactly at closing time lands on the next opening.
func (c *Calendar) Deadline(start time.Time, minutes int) time.Time {
	if minutes < 0 {
		minutes = 0
	}
	remaining := time.Duration(minutes) * time.Minute
	t := start.In(c.loc)
	for {
		if !c.IsWorkingDay(t) {
			t = c.nextMidnight(t)
			continue
		}
		open, closing := c.window(t)
		if t.Before(open) {
			t = open
		}
		if !t.Before(closing) {
			t = c.nextMidnight(t)
			continue
		}
		avail := closing.Sub(t)
		if remaining < avail {
			return t.Add(remaining)
		}
		remaining -= avail
		t = c.nextMidnight(t)
	}
}

// BusinessMinutesBetween counts whole working minutes in [from, to).
// It returns 0 when to is not after from.
func (c *Calendar) BusinessMinutesBetween(from, to time.Time) int {
	if !to.After(from) {
		return 0
	}
	var total time.Duration
	t := from.In(c.loc)
	for t.Before(to) {
		next := c.nextMidnight(t)
		if c.IsWorkingDay(t) {
			open, closing := c.window(t)
			lo := maxTime(t, open)
			hi := minTime(minTime(closing, to), next)
			if hi.After(lo) {
				total += hi.Sub(lo)
			}
		}
		t = next
	}
	return int(total / time.Minute)
}

func (c *Calendar) window(t time.Time) (time.Time, time.Time) {
	y, m, d := t.Date()
	open := time.Date(y, m, d, c.workStart/60, c.workStart%60, 0, 0, c.loc)
	closing := time.Date(y, m, d, c.workEnd/60, c.workEnd%60, 0, 0, c.loc)
	return open, closing
}

func (c *Calendar) nextMidnight(t time.Time) time.Time {
	y, m, d := t.In(c.loc).Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, c.loc)
}

// ParseClock parses "HH:MM" into minutes after midnight. "24:00" is accepted
// as the end of day.
func ParseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, eris.Wrapf(ErrInvalidConfig, "clock %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, eris.Wrapf(ErrInvalidConfig, "clock %q: bad hour", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, eris.Wrapf(ErrInvalidConfig, "clock %q: bad minute", s)
	}
	total := h*60 + m
	if h < 0 || m < 0 || m > 59 || total > 24*60 {
		return 0, eris.Wrapf(ErrInvalidConfig, "clock %q out of range", s)
	}
	return total, nil
}

// ParseWorkDays parses a comma-separated list of ISO weekday numbers.
func ParseWorkDays(s string) ([]int, error) {
	var days []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := strconv.Atoi(part)
		if err != nil || d < 1 || d > 7 {
			return nil, eris.Wrapf(ErrInvalidConfig, "work day %q out of range 1-7", part)
		}
		days = append(days, d)
	}
	return days, nil
}

func holidayDates(hs []model.Holiday) []time.Time {
	out := make([]time.Time, 0, len(hs))
	for _, h := range hs {
		out = append(out, h.Date)
	}
	return out
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
