package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateProduct(Product) (Product, error)
	CreateCustomer(Customer) (Customer, error)
	CreateMaterialLot(MaterialLot) (MaterialLot, error)
	CreateOrder(Order) (Order, error)
	UpdateOrder(id string, mutator func(*Order) error) (Order, error)
	CreateBatch(Batch) (Batch, error)
	UpdateBatch(id string, mutator func(*Batch) error) (Batch, error)
	CreateQCItem(QCItem) (QCItem, error)
	UpdateQCItem(id string, mutator func(*QCItem) error) (QCItem, error)
	CreateWorkflow(ApprovalWorkflow) (ApprovalWorkflow, error)
	UpdateWorkflow(id string, mutator func(*ApprovalWorkflow) error) (ApprovalWorkflow, error)
	AppendApprovalAction(ApprovalAction) (ApprovalAction, error)
	CreateReservation(CapacityReservation) (CapacityReservation, error)
	UpdateReservation(id string, mutator func(*CapacityReservation) error) (CapacityReservation, error)
	AppendAuditEntry(AuditEntry) (AuditEntry, error)
}

// TransactionView provides read-only access to snapshot data for rules and
// guard checks. It is a superset of RuleView.
type TransactionView interface {
	RuleView
	ListProducts() []Product
	ListCustomers() []Customer
	ListMaterialLots() []MaterialLot
	ListAuditEntries() []AuditEntry
	ReservationsForBatch(batchID string) []CapacityReservation
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetOrder(id string) (Order, bool)
	ListOrders() []Order
	GetBatch(id string) (Batch, bool)
	ListBatches() []Batch
	GetProduct(id string) (Product, bool)
	GetCustomer(id string) (Customer, bool)
	GetWorkflow(id string) (ApprovalWorkflow, bool)
	ListWorkflows() []ApprovalWorkflow
	ListReservations() []CapacityReservation
	ListAuditEntries() []AuditEntry
}
