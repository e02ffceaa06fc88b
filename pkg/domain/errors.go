package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ValidationError reports malformed or out-of-range input. It is never
// retryable; the caller must fix the request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// GuardViolation reports a transition that the current entity state or a
// missing precondition does not permit.
type GuardViolation struct {
	Entity Reference
	From   string
	To     string
	Reason string
}

func (e GuardViolation) Error() string {
	if e.From == "" && e.To == "" {
		return fmt.Sprintf("%s: %s", e.Entity, e.Reason)
	}
	return fmt.Sprintf("%s: transition %s -> %s not permitted: %s", e.Entity, e.From, e.To, e.Reason)
}

// CapacityExceeded reports a reservation that would overbook a calendar day.
type CapacityExceeded struct {
	Date      string
	Requested decimal.Decimal
	Booked    decimal.Decimal
	Capacity  decimal.Decimal
}

func (e CapacityExceeded) Error() string {
	return fmt.Sprintf("capacity exceeded on %s: requested %s min with %s/%s already booked",
		e.Date, e.Requested, e.Booked, e.Capacity)
}

// WorkflowStepMismatch reports an approval action targeting a step other than
// the workflow's current one.
type WorkflowStepMismatch struct {
	WorkflowID  string
	CurrentStep int
	ActedStep   int
}

func (e WorkflowStepMismatch) Error() string {
	return fmt.Sprintf("workflow %s: action targets step %d but current step is %d",
		e.WorkflowID, e.ActedStep, e.CurrentStep)
}

// Unauthorized reports an actor whose resolved role does not match the step's
// required role.
type Unauthorized struct {
	WorkflowID   string
	StepOrder    int
	Actor        string
	Role         string
	RequiredRole string
}

func (e Unauthorized) Error() string {
	return fmt.Sprintf("workflow %s step %d: actor %s has role %q, requires %q",
		e.WorkflowID, e.StepOrder, e.Actor, e.Role, e.RequiredRole)
}

// ConcurrentModification reports that an entity changed between a caller's
// read and write. The caller may re-read and retry.
type ConcurrentModification struct {
	Entity   Reference
	Observed string
	Current  string
}

func (e ConcurrentModification) Error() string {
	return fmt.Sprintf("%s: observed status %s but current is %s", e.Entity, e.Observed, e.Current)
}

// ErrNotFound is returned when reference validation fails or a record is
// missing.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
