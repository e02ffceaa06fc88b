// Package domain defines the core persistent entities, value types, typed
// errors, and rule evaluation primitives used by dosecore.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityProduct identifies a radiopharmaceutical product definition.
	EntityProduct EntityType = "product"
	// EntityCustomer identifies a delivery customer record.
	EntityCustomer EntityType = "customer"
	// EntityOrder identifies a customer order record.
	EntityOrder EntityType = "order"
	// EntityBatch identifies a production batch record.
	EntityBatch EntityType = "batch"
	// EntityMaterialLot identifies a received material lot record.
	EntityMaterialLot EntityType = "material_lot"
	// EntityQCItem identifies a quality-control item attached to a batch.
	EntityQCItem EntityType = "qc_item"
	// EntityApprovalWorkflow identifies a multi-step approval workflow instance.
	EntityApprovalWorkflow EntityType = "approval_workflow"
	// EntityCapacityReservation identifies a per-day production capacity reservation.
	EntityCapacityReservation EntityType = "capacity_reservation"
)

// OrderStatus enumerates the order fulfillment lifecycle states.
type OrderStatus string

// Canonical order statuses. Delivered, cancelled, rejected and failed QC
// (unless reworked) are terminal.
const (
	OrderStatusDraft        OrderStatus = "draft"
	OrderStatusSubmitted    OrderStatus = "submitted"
	OrderStatusValidated    OrderStatus = "validated"
	OrderStatusScheduled    OrderStatus = "scheduled"
	OrderStatusInProduction OrderStatus = "in_production"
	OrderStatusQCPending    OrderStatus = "qc_pending"
	OrderStatusQCPassed     OrderStatus = "qc_passed"
	OrderStatusFailedQC     OrderStatus = "failed_qc"
	OrderStatusRework       OrderStatus = "rework"
	OrderStatusQPReview     OrderStatus = "qp_review"
	OrderStatusReleased     OrderStatus = "released"
	OrderStatusDispatched   OrderStatus = "dispatched"
	OrderStatusDelivered    OrderStatus = "delivered"
	OrderStatusCancelled    OrderStatus = "cancelled"
	OrderStatusRejected     OrderStatus = "rejected"
)

// BatchStatus enumerates the production batch lifecycle states.
type BatchStatus string

// Canonical batch statuses. Released, QC-failed and cancelled are terminal.
const (
	BatchStatusPlanned    BatchStatus = "planned"
	BatchStatusInProgress BatchStatus = "in_progress"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusQCPending  BatchStatus = "qc_pending"
	BatchStatusQCPassed   BatchStatus = "qc_passed"
	BatchStatusQCFailed   BatchStatus = "qc_failed"
	BatchStatusReleased   BatchStatus = "released"
	BatchStatusCancelled  BatchStatus = "cancelled"
)

// WorkflowStatus enumerates approval workflow instance states.
type WorkflowStatus string

// Canonical workflow statuses; everything except pending is terminal.
const (
	WorkflowStatusPending   WorkflowStatus = "pending"
	WorkflowStatusApproved  WorkflowStatus = "approved"
	WorkflowStatusRejected  WorkflowStatus = "rejected"
	WorkflowStatusCancelled WorkflowStatus = "cancelled"
)

// ApprovalDecision is the action an approver takes on a workflow step.
type ApprovalDecision string

// Supported approval decisions.
const (
	DecisionApprove ApprovalDecision = "approve"
	DecisionReject  ApprovalDecision = "reject"
)

// QCStatus enumerates quality-control item states. Quarantined and pending
// items block batch release.
type QCStatus string

// Canonical QC item statuses.
const (
	QCStatusPending     QCStatus = "pending"
	QCStatusPassed      QCStatus = "passed"
	QCStatusFailed      QCStatus = "failed"
	QCStatusQuarantined QCStatus = "quarantined"
)

// ReservationMode distinguishes tentative holds from confirmed capacity.
type ReservationMode string

// Reservation modes.
const (
	ReservationTentative ReservationMode = "tentative"
	ReservationCommitted ReservationMode = "committed"
)

// ReferenceKind tags the entity kinds an approval workflow or audit entry may
// point at.
type ReferenceKind string

// Supported reference kinds.
const (
	KindOrder ReferenceKind = "order"
	KindBatch ReferenceKind = "batch"
)

// Reference is a tagged, weak entity reference used by approval workflows and
// audit entries. It is a lookup key, not ownership.
type Reference struct {
	Kind ReferenceKind `json:"kind"`
	ID   string        `json:"id"`
}

// String renders the reference as kind/id.
func (r Reference) String() string { return string(r.Kind) + "/" + r.ID }

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Product captures immutable reference data for a radiopharmaceutical,
// including the isotope physics needed for decay compensation.
type Product struct {
	Base
	Name                 string  `json:"name"`
	HalfLifeMinutes      float64 `json:"half_life_minutes"`
	SynthesisTimeMinutes float64 `json:"synthesis_time_minutes"`
	QCTimeMinutes        float64 `json:"qc_time_minutes"`
	ShelfLifeMinutes     float64 `json:"shelf_life_minutes"`
	OveragePercent       float64 `json:"overage_percent"`
}

// Customer identifies a delivery point and its transit time from the
// production site.
type Customer struct {
	Base
	Name              string  `json:"name"`
	TravelTimeMinutes float64 `json:"travel_time_minutes"`
}

// Order is a customer request for a delivered activity at a point in time.
// CalculatedProductionActivity is always derived by the decay calculator and
// never accepted from callers.
type Order struct {
	Base
	ProductID                    string      `json:"product_id"`
	CustomerID                   string      `json:"customer_id"`
	RequestedActivity            float64     `json:"requested_activity"`
	ActivityUnit                 string      `json:"activity_unit"`
	DeliveryWindowStart          time.Time   `json:"delivery_window_start"`
	DeliveryWindowEnd            time.Time   `json:"delivery_window_end"`
	InjectionTime                *time.Time  `json:"injection_time,omitempty"`
	CalculatedProductionActivity float64     `json:"calculated_production_activity"`
	Status                       OrderStatus `json:"status"`
	BatchID                      *string     `json:"batch_id,omitempty"`
}

// ReferenceTime returns the decay reference point: the injection time when
// set, otherwise the start of the delivery window.
func (o Order) ReferenceTime() time.Time {
	if o.InjectionTime != nil {
		return *o.InjectionTime
	}
	return o.DeliveryWindowStart
}

// Batch aggregates the production requirements of one or more orders into a
// single synthesis run.
type Batch struct {
	Base
	TargetActivity   float64     `json:"target_activity"`
	ActivityUnit     string      `json:"activity_unit"`
	ProductID        string      `json:"product_id"`
	PlannedStartTime time.Time   `json:"planned_start_time"`
	ActualStartTime  *time.Time  `json:"actual_start_time,omitempty"`
	ActualEndTime    *time.Time  `json:"actual_end_time,omitempty"`
	ActualActivity   float64     `json:"actual_activity"`
	Status           BatchStatus `json:"status"`
	OrderIDs         []string    `json:"order_ids"`
	MaterialLotIDs   []string    `json:"material_lot_ids"`
}

// MaterialLot records an incoming material receipt consumed by batches.
type MaterialLot struct {
	Base
	LotNumber    string    `json:"lot_number"`
	MaterialName string    `json:"material_name"`
	Expiry       time.Time `json:"expiry"`
}

// QCItem is a single quality-control test attached to a batch. Unresolved
// items (pending or quarantined) hold the batch back from release.
type QCItem struct {
	Base
	BatchID string   `json:"batch_id"`
	Name    string   `json:"name"`
	Status  QCStatus `json:"status"`
}

// Resolved reports whether the item no longer blocks release.
func (q QCItem) Resolved() bool {
	return q.Status == QCStatusPassed || q.Status == QCStatusFailed
}

// ApprovalStep defines one ordered sign-off in a workflow.
type ApprovalStep struct {
	StepOrder    int    `json:"step_order"`
	StepName     string `json:"step_name"`
	RequiredRole string `json:"required_role"`
}

// ApprovalWorkflow is a sequential multi-step approval instance bound to an
// entity by weak reference. CurrentStep and Status are the only mutable
// fields and both are derived from the append-only action log.
type ApprovalWorkflow struct {
	Base
	Entity      Reference      `json:"entity"`
	Steps       []ApprovalStep `json:"steps"`
	CurrentStep int            `json:"current_step"`
	Status      WorkflowStatus `json:"status"`
}

// Terminal reports whether the workflow can accept further actions.
func (w ApprovalWorkflow) Terminal() bool { return w.Status != WorkflowStatusPending }

// StepAt returns the step definition with the given order.
func (w ApprovalWorkflow) StepAt(order int) (ApprovalStep, bool) {
	for _, step := range w.Steps {
		if step.StepOrder == order {
			return step, true
		}
	}
	return ApprovalStep{}, false
}

// ApprovalAction is one append-only entry in a workflow's sign-off log.
type ApprovalAction struct {
	ID         string           `json:"id"`
	WorkflowID string           `json:"workflow_id"`
	StepOrder  int              `json:"step_order"`
	Actor      string           `json:"actor"`
	Action     ApprovalDecision `json:"action"`
	Comments   string           `json:"comments,omitempty"`
	At         time.Time        `json:"at"`
}

// CapacityReservation holds production-minutes against a calendar day for a
// batch. Exactly one of ReservedMinutes (tentative) or CommittedMinutes is
// non-zero while the reservation is live.
type CapacityReservation struct {
	Base
	Date             string          `json:"date"`
	ReservedMinutes  decimal.Decimal `json:"reserved_minutes"`
	CommittedMinutes decimal.Decimal `json:"committed_minutes"`
	BatchID          string          `json:"batch_id"`
	Override         bool            `json:"override,omitempty"`
	Released         bool            `json:"released,omitempty"`
}

// Minutes returns the minutes the reservation currently counts against its
// day, zero once released.
func (r CapacityReservation) Minutes() decimal.Decimal {
	if r.Released {
		return decimal.Zero
	}
	return r.ReservedMinutes.Add(r.CommittedMinutes)
}

// Mode reports whether the reservation is tentative or committed.
func (r CapacityReservation) Mode() ReservationMode {
	if r.CommittedMinutes.Sign() > 0 {
		return ReservationCommitted
	}
	return ReservationTentative
}

// AuditEntry is the immutable evidence written for every applied status
// change and for audit-worthy events such as capacity overrides.
type AuditEntry struct {
	ID         string    `json:"id"`
	Entity     Reference `json:"entity"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Actor      string    `json:"actor"`
	At         time.Time `json:"at"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before ChangePayload
	After  ChangePayload
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported mutations captured per transaction.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}
