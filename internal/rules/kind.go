// Package rules holds the closed catalog of automation rules. Each rule reads
// one tenant's entities and yields typed findings; it never writes.
package rules

import (
	"github.com/rotisserie/eris"
)

// Kind is a stable rule key. It is also the rule_key of idempotency records
// and rule settings.
type Kind string

const (
	SLADueAssign        Kind = "sla_due_assign"
	SLAResponseBreach   Kind = "sla_response_breach"
	SLAResolutionBreach Kind = "sla_resolution_breach"
	SLAEscalation       Kind = "sla_escalation"

	OverdueReceivable Kind = "overdue_receivable"
	OverduePayable    Kind = "overdue_payable"
	ExpiringPayable   Kind = "expiring_payable"
	LowStock          Kind = "low_stock"
	ContractExpiring  Kind = "contract_expiring"
	UnbilledWorkOrder Kind = "unbilled_work_order"
	QuoteExpiring     Kind = "quote_expiring"
	QuoteExpired      Kind = "quote_expired"
	// WorkOrderNotStarted is an open work order nobody picked up.
	WorkOrderNotStarted Kind = "scheduled_wo_not_started"

	CalibrationDue    Kind = "calibration_due"
	ContractRenewal   Kind = "contract_renewal"
	NoContact90d      Kind = "no_contact_90d"
	LowHealthScore    Kind = "crm_low_health_score"
	WorkOrderFollowUp Kind = "work_order_follow_up"

	CalibrationReminder Kind = "calibration_reminder"
	ContractNotice      Kind = "contract_notice"
	CollectionReminder  Kind = "collection_reminder"
)

// Job groups rules that run together in one scheduled pass.
type Job string

const (
	JobSLA      Job = "sla"
	JobAlerts   Job = "alerts"
	JobCRM      Job = "crm"
	JobMessages Job = "messages"
	// JobAll runs every job in order so status flips of earlier jobs are
	// visible to later ones.
	JobAll Job = "all"
)

// Jobs lists the concrete jobs in the order JobAll runs them.
var Jobs = []Job{JobSLA, JobAlerts, JobCRM, JobMessages}

// catalog is the declared order of rules per job. Calendar-derived rules run
// before the alerts that read their results.
var catalog = map[Job][]Kind{
	JobSLA: {SLADueAssign, SLAResponseBreach, SLAResolutionBreach, SLAEscalation},
	JobAlerts: {
		OverdueReceivable, OverduePayable, ExpiringPayable, LowStock, ContractExpiring,
		UnbilledWorkOrder, QuoteExpiring, QuoteExpired, WorkOrderNotStarted,
	},
	JobCRM:      {CalibrationDue, ContractRenewal, NoContact90d, LowHealthScore, WorkOrderFollowUp},
	JobMessages: {CalibrationReminder, ContractNotice, CollectionReminder},
}

// ParseJob validates a job name.
func ParseJob(s string) (Job, error) {
	j := Job(s)
	if j == JobAll {
		return j, nil
	}
	if _, ok := catalog[j]; !ok {
		return "", eris.Errorf("rules: unknown job %q (valid: sla, alerts, crm, messages, all)", s)
	}
	return j, nil
}

// Kinds returns the job's rules in execution order.
func (j Job) Kinds() []Kind {
	if j == JobAll {
		return AllKinds()
	}
	return append([]Kind(nil), catalog[j]...)
}

// AllKinds returns every rule in JobAll order.
func AllKinds() []Kind {
	var out []Kind
	for _, j := range Jobs {
		out = append(out, catalog[j]...)
	}
	return out
}

// Valid reports whether k is in the catalog.
func (k Kind) Valid() bool {
	return k.Job() != ""
}

// Job returns the job that owns k, or "" for unknown kinds.
func (k Kind) Job() Job {
	for _, j := range Jobs {
		for _, c := range catalog[j] {
			if c == k {
				return j
			}
		}
	}
	return ""
}

// ParseKind validates a rule key.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", eris.Errorf("rules: unknown rule %q", s)
	}
	return k, nil
}

// Subject types recorded on findings and idempotency records.
const (
	SubjectWorkOrder  = "work_order"
	SubjectReceivable = "account_receivable"
	SubjectPayable    = "account_payable"
	SubjectProduct    = "product"
	SubjectContract   = "contract"
	SubjectQuote      = "quote"
	SubjectEquipment  = "equipment"
	SubjectCustomer   = "customer"
)
