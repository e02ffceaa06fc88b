// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments. Transactions operate on a
// clone of the committed state; rule evaluation gates the commit, so a failed
// transaction leaves no partial state behind.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"dosecore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain
// persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type state struct {
	products     map[string]domain.Product
	customers    map[string]domain.Customer
	materialLots map[string]domain.MaterialLot
	orders       map[string]domain.Order
	batches      map[string]domain.Batch
	qcItems      map[string]domain.QCItem
	workflows    map[string]domain.ApprovalWorkflow
	actions      []domain.ApprovalAction
	reservations map[string]domain.CapacityReservation
	audit        []domain.AuditEntry
}

func newState() state {
	return state{
		products:     make(map[string]domain.Product),
		customers:    make(map[string]domain.Customer),
		materialLots: make(map[string]domain.MaterialLot),
		orders:       make(map[string]domain.Order),
		batches:      make(map[string]domain.Batch),
		qcItems:      make(map[string]domain.QCItem),
		workflows:    make(map[string]domain.ApprovalWorkflow),
		reservations: make(map[string]domain.CapacityReservation),
	}
}

func (s state) clone() state {
	cloned := newState()
	for k, v := range s.products {
		cloned.products[k] = v
	}
	for k, v := range s.customers {
		cloned.customers[k] = v
	}
	for k, v := range s.materialLots {
		cloned.materialLots[k] = v
	}
	for k, v := range s.orders {
		cloned.orders[k] = cloneOrder(v)
	}
	for k, v := range s.batches {
		cloned.batches[k] = cloneBatch(v)
	}
	for k, v := range s.qcItems {
		cloned.qcItems[k] = v
	}
	for k, v := range s.workflows {
		cloned.workflows[k] = cloneWorkflow(v)
	}
	for k, v := range s.reservations {
		cloned.reservations[k] = v
	}
	cloned.actions = append([]domain.ApprovalAction(nil), s.actions...)
	cloned.audit = append([]domain.AuditEntry(nil), s.audit...)
	return cloned
}

func cloneOrder(o domain.Order) domain.Order {
	cp := o
	if o.InjectionTime != nil {
		t := *o.InjectionTime
		cp.InjectionTime = &t
	}
	if o.BatchID != nil {
		id := *o.BatchID
		cp.BatchID = &id
	}
	return cp
}

func cloneBatch(b domain.Batch) domain.Batch {
	cp := b
	if b.ActualStartTime != nil {
		t := *b.ActualStartTime
		cp.ActualStartTime = &t
	}
	if b.ActualEndTime != nil {
		t := *b.ActualEndTime
		cp.ActualEndTime = &t
	}
	cp.OrderIDs = append([]string(nil), b.OrderIDs...)
	cp.MaterialLotIDs = append([]string(nil), b.MaterialLotIDs...)
	return cp
}

func cloneWorkflow(w domain.ApprovalWorkflow) domain.ApprovalWorkflow {
	cp := w
	cp.Steps = append([]domain.ApprovalStep(nil), w.Steps...)
	return cp
}

// Store provides an in-memory transactional store for the fulfillment domain.
type Store struct {
	mu     sync.RWMutex
	state  state
	engine *domain.RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *domain.RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// SetNow overrides the store clock. Intended for tests.
func (s *Store) SetNow(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

// Now returns the store clock's current time.
func (s *Store) Now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn()
}

func newID() string { return uuid.NewString() }

// Tx represents a mutation set applied to the store state.
type Tx struct {
	state   state
	changes []domain.Change
	now     time.Time
}

var _ domain.Transaction = (*Tx)(nil)

// view exposes a read-only snapshot of the transactional state.
type view struct {
	state *state
}

var _ domain.TransactionView = view{}

// RunInTransaction executes fn within a transactional copy of the store state.
// The clone is committed only when fn succeeds and no registered rule reports
// a blocking violation.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Tx{
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}

	var result domain.Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, view{state: &tx.state}, tx.changes)
		if err != nil {
			return domain.Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(view{state: &snapshot})
}

// Snapshot returns the transaction's current state as a read-only view.
func (tx *Tx) Snapshot() domain.TransactionView { return view{state: &tx.state} }

func (tx *Tx) recordChange(entity domain.EntityType, action domain.Action, before, after any) error {
	change := domain.Change{Entity: entity, Action: action,
		Before: domain.UndefinedChangePayload(), After: domain.UndefinedChangePayload()}
	if before != nil {
		payload, err := domain.NewChangePayloadFromValue(before)
		if err != nil {
			return fmt.Errorf("encode before payload: %w", err)
		}
		change.Before = payload
	}
	if after != nil {
		payload, err := domain.NewChangePayloadFromValue(after)
		if err != nil {
			return fmt.Errorf("encode after payload: %w", err)
		}
		change.After = payload
	}
	tx.changes = append(tx.changes, change)
	return nil
}

// CreateProduct stores immutable product reference data.
func (tx *Tx) CreateProduct(p domain.Product) (domain.Product, error) {
	if p.ID == "" {
		p.ID = newID()
	}
	if _, exists := tx.state.products[p.ID]; exists {
		return domain.Product{}, fmt.Errorf("product %q already exists", p.ID)
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.products[p.ID] = p
	if err := tx.recordChange(domain.EntityProduct, domain.ActionCreate, nil, p); err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

// CreateCustomer stores a customer record.
func (tx *Tx) CreateCustomer(c domain.Customer) (domain.Customer, error) {
	if c.ID == "" {
		c.ID = newID()
	}
	if _, exists := tx.state.customers[c.ID]; exists {
		return domain.Customer{}, fmt.Errorf("customer %q already exists", c.ID)
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.customers[c.ID] = c
	if err := tx.recordChange(domain.EntityCustomer, domain.ActionCreate, nil, c); err != nil {
		return domain.Customer{}, err
	}
	return c, nil
}

// CreateMaterialLot stores a received material lot.
func (tx *Tx) CreateMaterialLot(m domain.MaterialLot) (domain.MaterialLot, error) {
	if m.ID == "" {
		m.ID = newID()
	}
	if _, exists := tx.state.materialLots[m.ID]; exists {
		return domain.MaterialLot{}, fmt.Errorf("material lot %q already exists", m.ID)
	}
	m.CreatedAt = tx.now
	m.UpdatedAt = tx.now
	tx.state.materialLots[m.ID] = m
	if err := tx.recordChange(domain.EntityMaterialLot, domain.ActionCreate, nil, m); err != nil {
		return domain.MaterialLot{}, err
	}
	return m, nil
}

// CreateOrder stores a new order within the transaction.
func (tx *Tx) CreateOrder(o domain.Order) (domain.Order, error) {
	if o.ID == "" {
		o.ID = newID()
	}
	if _, exists := tx.state.orders[o.ID]; exists {
		return domain.Order{}, fmt.Errorf("order %q already exists", o.ID)
	}
	o.CreatedAt = tx.now
	o.UpdatedAt = tx.now
	tx.state.orders[o.ID] = cloneOrder(o)
	if err := tx.recordChange(domain.EntityOrder, domain.ActionCreate, nil, o); err != nil {
		return domain.Order{}, err
	}
	return cloneOrder(o), nil
}

// UpdateOrder mutates an order using the provided mutator function.
func (tx *Tx) UpdateOrder(id string, mutator func(*domain.Order) error) (domain.Order, error) {
	current, ok := tx.state.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound{Entity: domain.EntityOrder, ID: id}
	}
	before := cloneOrder(current)
	if err := mutator(&current); err != nil {
		return domain.Order{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.orders[id] = cloneOrder(current)
	if err := tx.recordChange(domain.EntityOrder, domain.ActionUpdate, before, current); err != nil {
		return domain.Order{}, err
	}
	return cloneOrder(current), nil
}

// CreateBatch stores a new batch.
func (tx *Tx) CreateBatch(b domain.Batch) (domain.Batch, error) {
	if b.ID == "" {
		b.ID = newID()
	}
	if _, exists := tx.state.batches[b.ID]; exists {
		return domain.Batch{}, fmt.Errorf("batch %q already exists", b.ID)
	}
	b.CreatedAt = tx.now
	b.UpdatedAt = tx.now
	tx.state.batches[b.ID] = cloneBatch(b)
	if err := tx.recordChange(domain.EntityBatch, domain.ActionCreate, nil, b); err != nil {
		return domain.Batch{}, err
	}
	return cloneBatch(b), nil
}

// UpdateBatch mutates a batch.
func (tx *Tx) UpdateBatch(id string, mutator func(*domain.Batch) error) (domain.Batch, error) {
	current, ok := tx.state.batches[id]
	if !ok {
		return domain.Batch{}, domain.ErrNotFound{Entity: domain.EntityBatch, ID: id}
	}
	before := cloneBatch(current)
	if err := mutator(&current); err != nil {
		return domain.Batch{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.batches[id] = cloneBatch(current)
	if err := tx.recordChange(domain.EntityBatch, domain.ActionUpdate, before, current); err != nil {
		return domain.Batch{}, err
	}
	return cloneBatch(current), nil
}

// CreateQCItem stores a QC item linked to a batch.
func (tx *Tx) CreateQCItem(q domain.QCItem) (domain.QCItem, error) {
	if q.ID == "" {
		q.ID = newID()
	}
	if _, exists := tx.state.qcItems[q.ID]; exists {
		return domain.QCItem{}, fmt.Errorf("qc item %q already exists", q.ID)
	}
	if _, ok := tx.state.batches[q.BatchID]; !ok {
		return domain.QCItem{}, domain.ErrNotFound{Entity: domain.EntityBatch, ID: q.BatchID}
	}
	q.CreatedAt = tx.now
	q.UpdatedAt = tx.now
	tx.state.qcItems[q.ID] = q
	if err := tx.recordChange(domain.EntityQCItem, domain.ActionCreate, nil, q); err != nil {
		return domain.QCItem{}, err
	}
	return q, nil
}

// UpdateQCItem mutates a QC item.
func (tx *Tx) UpdateQCItem(id string, mutator func(*domain.QCItem) error) (domain.QCItem, error) {
	current, ok := tx.state.qcItems[id]
	if !ok {
		return domain.QCItem{}, domain.ErrNotFound{Entity: domain.EntityQCItem, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return domain.QCItem{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.qcItems[id] = current
	if err := tx.recordChange(domain.EntityQCItem, domain.ActionUpdate, before, current); err != nil {
		return domain.QCItem{}, err
	}
	return current, nil
}

// CreateWorkflow stores an approval workflow instance.
func (tx *Tx) CreateWorkflow(w domain.ApprovalWorkflow) (domain.ApprovalWorkflow, error) {
	if w.ID == "" {
		w.ID = newID()
	}
	if _, exists := tx.state.workflows[w.ID]; exists {
		return domain.ApprovalWorkflow{}, fmt.Errorf("workflow %q already exists", w.ID)
	}
	w.CreatedAt = tx.now
	w.UpdatedAt = tx.now
	tx.state.workflows[w.ID] = cloneWorkflow(w)
	if err := tx.recordChange(domain.EntityApprovalWorkflow, domain.ActionCreate, nil, w); err != nil {
		return domain.ApprovalWorkflow{}, err
	}
	return cloneWorkflow(w), nil
}

// UpdateWorkflow mutates a workflow record.
func (tx *Tx) UpdateWorkflow(id string, mutator func(*domain.ApprovalWorkflow) error) (domain.ApprovalWorkflow, error) {
	current, ok := tx.state.workflows[id]
	if !ok {
		return domain.ApprovalWorkflow{}, domain.ErrNotFound{Entity: domain.EntityApprovalWorkflow, ID: id}
	}
	before := cloneWorkflow(current)
	if err := mutator(&current); err != nil {
		return domain.ApprovalWorkflow{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.workflows[id] = cloneWorkflow(current)
	if err := tx.recordChange(domain.EntityApprovalWorkflow, domain.ActionUpdate, before, current); err != nil {
		return domain.ApprovalWorkflow{}, err
	}
	return cloneWorkflow(current), nil
}

// AppendApprovalAction appends to the immutable approval action log.
func (tx *Tx) AppendApprovalAction(a domain.ApprovalAction) (domain.ApprovalAction, error) {
	if a.ID == "" {
		a.ID = newID()
	}
	if _, ok := tx.state.workflows[a.WorkflowID]; !ok {
		return domain.ApprovalAction{}, domain.ErrNotFound{Entity: domain.EntityApprovalWorkflow, ID: a.WorkflowID}
	}
	if a.At.IsZero() {
		a.At = tx.now
	}
	tx.state.actions = append(tx.state.actions, a)
	return a, nil
}

// CreateReservation stores a capacity reservation.
func (tx *Tx) CreateReservation(r domain.CapacityReservation) (domain.CapacityReservation, error) {
	if r.ID == "" {
		r.ID = newID()
	}
	if _, exists := tx.state.reservations[r.ID]; exists {
		return domain.CapacityReservation{}, fmt.Errorf("reservation %q already exists", r.ID)
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	tx.state.reservations[r.ID] = r
	if err := tx.recordChange(domain.EntityCapacityReservation, domain.ActionCreate, nil, r); err != nil {
		return domain.CapacityReservation{}, err
	}
	return r, nil
}

// UpdateReservation mutates a capacity reservation.
func (tx *Tx) UpdateReservation(id string, mutator func(*domain.CapacityReservation) error) (domain.CapacityReservation, error) {
	current, ok := tx.state.reservations[id]
	if !ok {
		return domain.CapacityReservation{}, domain.ErrNotFound{Entity: domain.EntityCapacityReservation, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return domain.CapacityReservation{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.reservations[id] = current
	if err := tx.recordChange(domain.EntityCapacityReservation, domain.ActionUpdate, before, current); err != nil {
		return domain.CapacityReservation{}, err
	}
	return current, nil
}

// AppendAuditEntry appends to the immutable audit trail.
func (tx *Tx) AppendAuditEntry(e domain.AuditEntry) (domain.AuditEntry, error) {
	if e.ID == "" {
		e.ID = newID()
	}
	if e.At.IsZero() {
		e.At = tx.now
	}
	tx.state.audit = append(tx.state.audit, e)
	return e, nil
}

// View methods ---------------------------------------------------------------

func (v view) ListOrders() []domain.Order {
	out := make([]domain.Order, 0, len(v.state.orders))
	for _, o := range v.state.orders {
		out = append(out, cloneOrder(o))
	}
	sortByID(out, func(o domain.Order) string { return o.ID })
	return out
}

func (v view) ListBatches() []domain.Batch {
	out := make([]domain.Batch, 0, len(v.state.batches))
	for _, b := range v.state.batches {
		out = append(out, cloneBatch(b))
	}
	sortByID(out, func(b domain.Batch) string { return b.ID })
	return out
}

func (v view) ListProducts() []domain.Product {
	out := make([]domain.Product, 0, len(v.state.products))
	for _, p := range v.state.products {
		out = append(out, p)
	}
	sortByID(out, func(p domain.Product) string { return p.ID })
	return out
}

func (v view) ListCustomers() []domain.Customer {
	out := make([]domain.Customer, 0, len(v.state.customers))
	for _, c := range v.state.customers {
		out = append(out, c)
	}
	sortByID(out, func(c domain.Customer) string { return c.ID })
	return out
}

func (v view) ListMaterialLots() []domain.MaterialLot {
	out := make([]domain.MaterialLot, 0, len(v.state.materialLots))
	for _, m := range v.state.materialLots {
		out = append(out, m)
	}
	sortByID(out, func(m domain.MaterialLot) string { return m.ID })
	return out
}

func (v view) ListQCItems() []domain.QCItem {
	out := make([]domain.QCItem, 0, len(v.state.qcItems))
	for _, q := range v.state.qcItems {
		out = append(out, q)
	}
	sortByID(out, func(q domain.QCItem) string { return q.ID })
	return out
}

func (v view) ListWorkflows() []domain.ApprovalWorkflow {
	out := make([]domain.ApprovalWorkflow, 0, len(v.state.workflows))
	for _, w := range v.state.workflows {
		out = append(out, cloneWorkflow(w))
	}
	sortByID(out, func(w domain.ApprovalWorkflow) string { return w.ID })
	return out
}

func (v view) ListReservations() []domain.CapacityReservation {
	out := make([]domain.CapacityReservation, 0, len(v.state.reservations))
	for _, r := range v.state.reservations {
		out = append(out, r)
	}
	sortByID(out, func(r domain.CapacityReservation) string { return r.ID })
	return out
}

func (v view) ListApprovalActions() []domain.ApprovalAction {
	return append([]domain.ApprovalAction(nil), v.state.actions...)
}

func (v view) ListAuditEntries() []domain.AuditEntry {
	return append([]domain.AuditEntry(nil), v.state.audit...)
}

func (v view) FindOrder(id string) (domain.Order, bool) {
	o, ok := v.state.orders[id]
	if !ok {
		return domain.Order{}, false
	}
	return cloneOrder(o), true
}

func (v view) FindBatch(id string) (domain.Batch, bool) {
	b, ok := v.state.batches[id]
	if !ok {
		return domain.Batch{}, false
	}
	return cloneBatch(b), true
}

func (v view) FindProduct(id string) (domain.Product, bool) {
	p, ok := v.state.products[id]
	return p, ok
}

func (v view) FindCustomer(id string) (domain.Customer, bool) {
	c, ok := v.state.customers[id]
	return c, ok
}

func (v view) FindWorkflow(id string) (domain.ApprovalWorkflow, bool) {
	w, ok := v.state.workflows[id]
	if !ok {
		return domain.ApprovalWorkflow{}, false
	}
	return cloneWorkflow(w), true
}

func (v view) FindReservation(id string) (domain.CapacityReservation, bool) {
	r, ok := v.state.reservations[id]
	return r, ok
}

// ActiveWorkflowFor returns the pending workflow bound to the reference, if
// any. At most one active instance exists per entity.
func (v view) ActiveWorkflowFor(ref domain.Reference) (domain.ApprovalWorkflow, bool) {
	for _, w := range v.state.workflows {
		if w.Entity == ref && w.Status == domain.WorkflowStatusPending {
			return cloneWorkflow(w), true
		}
	}
	return domain.ApprovalWorkflow{}, false
}

// ActionsFor returns the action log for a workflow in append order.
func (v view) ActionsFor(workflowID string) []domain.ApprovalAction {
	var out []domain.ApprovalAction
	for _, a := range v.state.actions {
		if a.WorkflowID == workflowID {
			out = append(out, a)
		}
	}
	return out
}

// ReservationsOn returns live reservations for a calendar date.
func (v view) ReservationsOn(date string) []domain.CapacityReservation {
	var out []domain.CapacityReservation
	for _, r := range v.state.reservations {
		if r.Date == date && !r.Released {
			out = append(out, r)
		}
	}
	sortByID(out, func(r domain.CapacityReservation) string { return r.ID })
	return out
}

// ReservationsForBatch returns live reservations tied to a batch.
func (v view) ReservationsForBatch(batchID string) []domain.CapacityReservation {
	var out []domain.CapacityReservation
	for _, r := range v.state.reservations {
		if r.BatchID == batchID && !r.Released {
			out = append(out, r)
		}
	}
	sortByID(out, func(r domain.CapacityReservation) string { return r.ID })
	return out
}

// QCItemsFor returns QC items attached to a batch.
func (v view) QCItemsFor(batchID string) []domain.QCItem {
	var out []domain.QCItem
	for _, q := range v.state.qcItems {
		if q.BatchID == batchID {
			out = append(out, q)
		}
	}
	sortByID(out, func(q domain.QCItem) string { return q.ID })
	return out
}

func sortByID[T any](items []T, id func(T) string) {
	sort.Slice(items, func(i, j int) bool { return id(items[i]) < id(items[j]) })
}

// Store read helpers ---------------------------------------------------------

// GetOrder retrieves an order by ID from committed state.
func (s *Store) GetOrder(id string) (domain.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.state.orders[id]
	if !ok {
		return domain.Order{}, false
	}
	return cloneOrder(o), true
}

// ListOrders returns all orders from committed state.
func (s *Store) ListOrders() []domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (view{state: &s.state}).ListOrders()
}

// GetBatch retrieves a batch by ID.
func (s *Store) GetBatch(id string) (domain.Batch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.state.batches[id]
	if !ok {
		return domain.Batch{}, false
	}
	return cloneBatch(b), true
}

// ListBatches returns all batches.
func (s *Store) ListBatches() []domain.Batch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (view{state: &s.state}).ListBatches()
}

// GetProduct retrieves a product by ID.
func (s *Store) GetProduct(id string) (domain.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.products[id]
	return p, ok
}

// GetCustomer retrieves a customer by ID.
func (s *Store) GetCustomer(id string) (domain.Customer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.customers[id]
	return c, ok
}

// GetWorkflow retrieves a workflow by ID.
func (s *Store) GetWorkflow(id string) (domain.ApprovalWorkflow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.state.workflows[id]
	if !ok {
		return domain.ApprovalWorkflow{}, false
	}
	return cloneWorkflow(w), true
}

// ListWorkflows returns all workflow instances.
func (s *Store) ListWorkflows() []domain.ApprovalWorkflow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (view{state: &s.state}).ListWorkflows()
}

// ListReservations returns all capacity reservations.
func (s *Store) ListReservations() []domain.CapacityReservation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (view{state: &s.state}).ListReservations()
}

// ListAuditEntries returns the committed audit trail in append order.
func (s *Store) ListAuditEntries() []domain.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.AuditEntry(nil), s.state.audit...)
}
