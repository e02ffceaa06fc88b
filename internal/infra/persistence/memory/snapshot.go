package memory

import "dosecore/pkg/domain"

// Snapshot is a serializable copy of the full committed state, used by the
// durable backends to persist and rehydrate the store.
type Snapshot struct {
	Products     []domain.Product             `json:"products"`
	Customers    []domain.Customer            `json:"customers"`
	MaterialLots []domain.MaterialLot         `json:"material_lots"`
	Orders       []domain.Order               `json:"orders"`
	Batches      []domain.Batch               `json:"batches"`
	QCItems      []domain.QCItem              `json:"qc_items"`
	Workflows    []domain.ApprovalWorkflow    `json:"workflows"`
	Actions      []domain.ApprovalAction      `json:"approval_actions"`
	Reservations []domain.CapacityReservation `json:"reservations"`
	AuditEntries []domain.AuditEntry          `json:"audit_entries"`
}

// ExportState returns a snapshot of the committed state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := view{state: &s.state}
	return Snapshot{
		Products:     v.ListProducts(),
		Customers:    v.ListCustomers(),
		MaterialLots: v.ListMaterialLots(),
		Orders:       v.ListOrders(),
		Batches:      v.ListBatches(),
		QCItems:      v.ListQCItems(),
		Workflows:    v.ListWorkflows(),
		Actions:      v.ListApprovalActions(),
		Reservations: v.ListReservations(),
		AuditEntries: v.ListAuditEntries(),
	}
}

// ImportState replaces the committed state with the snapshot contents.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := newState()
	for _, p := range snapshot.Products {
		next.products[p.ID] = p
	}
	for _, c := range snapshot.Customers {
		next.customers[c.ID] = c
	}
	for _, m := range snapshot.MaterialLots {
		next.materialLots[m.ID] = m
	}
	for _, o := range snapshot.Orders {
		next.orders[o.ID] = cloneOrder(o)
	}
	for _, b := range snapshot.Batches {
		next.batches[b.ID] = cloneBatch(b)
	}
	for _, q := range snapshot.QCItems {
		next.qcItems[q.ID] = q
	}
	for _, w := range snapshot.Workflows {
		next.workflows[w.ID] = cloneWorkflow(w)
	}
	for _, r := range snapshot.Reservations {
		next.reservations[r.ID] = r
	}
	next.actions = append([]domain.ApprovalAction(nil), snapshot.Actions...)
	next.audit = append([]domain.AuditEntry(nil), snapshot.AuditEntries...)
	s.state = next
}
