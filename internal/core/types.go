package core

import "dosecore/pkg/domain"

type (
	EntityType          = domain.EntityType
	OrderStatus         = domain.OrderStatus
	BatchStatus         = domain.BatchStatus
	WorkflowStatus      = domain.WorkflowStatus
	ApprovalDecision    = domain.ApprovalDecision
	QCStatus            = domain.QCStatus
	ReservationMode     = domain.ReservationMode
	Reference           = domain.Reference
	Base                = domain.Base
	Product             = domain.Product
	Customer            = domain.Customer
	Order               = domain.Order
	Batch               = domain.Batch
	MaterialLot         = domain.MaterialLot
	QCItem              = domain.QCItem
	ApprovalStep        = domain.ApprovalStep
	ApprovalWorkflow    = domain.ApprovalWorkflow
	ApprovalAction      = domain.ApprovalAction
	CapacityReservation = domain.CapacityReservation
	AuditEntry          = domain.AuditEntry
	Change              = domain.Change
	Action              = domain.Action
	Severity            = domain.Severity
	Violation           = domain.Violation
	Result              = domain.Result
	Rule                = domain.Rule
	RuleView            = domain.RuleView
	RulesEngine         = domain.RulesEngine
	RuleViolationError  = domain.RuleViolationError
	Transaction         = domain.Transaction
	TransactionView     = domain.TransactionView
	PersistentStore     = domain.PersistentStore
)

const (
	EntityProduct             = domain.EntityProduct
	EntityCustomer            = domain.EntityCustomer
	EntityOrder               = domain.EntityOrder
	EntityBatch               = domain.EntityBatch
	EntityMaterialLot         = domain.EntityMaterialLot
	EntityQCItem              = domain.EntityQCItem
	EntityApprovalWorkflow    = domain.EntityApprovalWorkflow
	EntityCapacityReservation = domain.EntityCapacityReservation
)

const (
	KindOrder = domain.KindOrder
	KindBatch = domain.KindBatch
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

const (
	ReservationTentative = domain.ReservationTentative
	ReservationCommitted = domain.ReservationCommitted
)

const (
	DecisionApprove = domain.DecisionApprove
	DecisionReject  = domain.DecisionReject
)

// NewRulesEngine constructs an empty rules engine.
func NewRulesEngine() *RulesEngine { return domain.NewRulesEngine() }
