package rules

import "fmt"

// ConfigurationError is a tenant or policy misconfiguration (missing SLA
// policy, invalid calendar, bad quiet hours). It skips the entity or the rule
// invocation it was raised for.
type ConfigurationError struct {
	Rule        Kind
	TenantID    int64
	SubjectType string
	SubjectID   int64
	Reason      string
}

func (e *ConfigurationError) Error() string {
	if e.SubjectType == "" {
		return fmt.Sprintf("rules: %s: tenant %d: configuration: %s", e.Rule, e.TenantID, e.Reason)
	}
	return fmt.Sprintf("rules: %s: %s %d: configuration: %s", e.Rule, e.SubjectType, e.SubjectID, e.Reason)
}

// DataError is a malformed entity, typically a null field the rule needs.
// Only that entity is skipped.
type DataError struct {
	Rule        Kind
	SubjectType string
	SubjectID   int64
	Field       string
	Reason      string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("rules: %s: %s %d: %s %s", e.Rule, e.SubjectType, e.SubjectID, e.Field, e.Reason)
}

func missing(rule Kind, subjectType string, id int64, field string) *DataError {
	return &DataError{Rule: rule, SubjectType: subjectType, SubjectID: id, Field: field, Reason: "is null"}
}
