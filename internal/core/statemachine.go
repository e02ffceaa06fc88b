package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"dosecore/pkg/decay"
	"dosecore/pkg/domain"
)

// orderEdges encodes the order fulfillment graph. Cancellation and rejection
// edges are handled separately because they fan out from every pre-dispatch
// state.
var orderEdges = map[OrderStatus][]OrderStatus{
	domain.OrderStatusDraft:        {domain.OrderStatusSubmitted},
	domain.OrderStatusSubmitted:    {domain.OrderStatusValidated},
	domain.OrderStatusValidated:    {domain.OrderStatusScheduled},
	domain.OrderStatusScheduled:    {domain.OrderStatusInProduction},
	domain.OrderStatusInProduction: {domain.OrderStatusQCPending},
	domain.OrderStatusQCPending:    {domain.OrderStatusQCPassed, domain.OrderStatusFailedQC},
	domain.OrderStatusQCPassed:     {domain.OrderStatusQPReview},
	domain.OrderStatusFailedQC:     {domain.OrderStatusRework},
	domain.OrderStatusRework:       {domain.OrderStatusInProduction},
	domain.OrderStatusQPReview:     {domain.OrderStatusReleased},
	domain.OrderStatusReleased:     {domain.OrderStatusDispatched},
	domain.OrderStatusDispatched:   {domain.OrderStatusDelivered},
}

var orderTerminalStatuses = map[OrderStatus]bool{
	domain.OrderStatusDelivered: true,
	domain.OrderStatusCancelled: true,
	domain.OrderStatusRejected:  true,
}

var batchEdges = map[BatchStatus][]BatchStatus{
	domain.BatchStatusPlanned:    {domain.BatchStatusInProgress},
	domain.BatchStatusInProgress: {domain.BatchStatusCompleted},
	domain.BatchStatusCompleted:  {domain.BatchStatusQCPending},
	domain.BatchStatusQCPending:  {domain.BatchStatusQCPassed, domain.BatchStatusQCFailed},
	domain.BatchStatusQCPassed:   {domain.BatchStatusReleased},
}

var batchTerminalStatuses = map[BatchStatus]bool{
	domain.BatchStatusReleased:  true,
	domain.BatchStatusQCFailed:  true,
	domain.BatchStatusCancelled: true,
}

func orderTerminal(s OrderStatus) bool { return orderTerminalStatuses[s] }

func batchTerminal(s BatchStatus) bool { return batchTerminalStatuses[s] }

// orderEdgeAllowed reports whether from→to is a legal order transition.
func orderEdgeAllowed(from, to OrderStatus) bool {
	if to == domain.OrderStatusCancelled || to == domain.OrderStatusRejected {
		// Legal from any non-terminal state prior to dispatch.
		return !orderTerminal(from) && from != domain.OrderStatusDispatched
	}
	for _, next := range orderEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

func batchEdgeAllowed(from, to BatchStatus) bool {
	if to == domain.BatchStatusCancelled {
		return !batchTerminal(from)
	}
	for _, next := range batchEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AttemptOrderTransition moves an order to target if the edge is legal and
// every guard holds. The status change, guard side effects, and audit entry
// commit in one transaction or not at all.
func (s *Service) AttemptOrderTransition(ctx context.Context, orderID string, target OrderStatus, actor string) (Order, error) {
	return s.attemptOrderTransition(ctx, orderID, nil, target, actor)
}

// AttemptOrderTransitionFrom behaves like AttemptOrderTransition but fails
// with ConcurrentModification when the order no longer carries the status the
// caller observed.
func (s *Service) AttemptOrderTransitionFrom(ctx context.Context, orderID string, observed, target OrderStatus, actor string) (Order, error) {
	return s.attemptOrderTransition(ctx, orderID, &observed, target, actor)
}

func (s *Service) attemptOrderTransition(ctx context.Context, orderID string, observed *OrderStatus, target OrderStatus, actor string) (Order, error) {
	var updated Order
	var entries []AuditEntry
	err := s.instrument(ctx, "order_transition", func(ctx context.Context) error {
		ref := Reference{Kind: KindOrder, ID: orderID}
		if target == domain.OrderStatusReleased {
			if err := s.ensureReleaseWorkflow(ctx, ref); err != nil {
				return err
			}
		}
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			snap := tx.Snapshot()
			order, ok := snap.FindOrder(orderID)
			if !ok {
				return domain.ErrNotFound{Entity: EntityOrder, ID: orderID}
			}
			if observed != nil && order.Status != *observed {
				return domain.ConcurrentModification{Entity: ref, Observed: string(*observed), Current: string(order.Status)}
			}
			if !orderEdgeAllowed(order.Status, target) {
				return domain.GuardViolation{Entity: ref, From: string(order.Status), To: string(target), Reason: "transition not in lifecycle graph"}
			}
			if err := s.orderGuards(snap, order, target); err != nil {
				return err
			}
			from := order.Status
			var txErr error
			updated, txErr = tx.UpdateOrder(orderID, func(o *Order) error {
				o.Status = target
				return nil
			})
			if txErr != nil {
				return txErr
			}
			if target == domain.OrderStatusCancelled || target == domain.OrderStatusRejected {
				if txErr = s.cancelCollaborators(tx, ref, "", actor); txErr != nil {
					return txErr
				}
			}
			entry, txErr := tx.AppendAuditEntry(AuditEntry{
				Entity:     ref,
				FromStatus: string(from),
				ToStatus:   string(target),
				Actor:      actor,
				At:         s.nowFn(),
			})
			if txErr != nil {
				return txErr
			}
			entries = append(entries, entry)
			return nil
		})
		return err
	})
	if err != nil {
		return Order{}, err
	}
	s.publish(entries)
	return updated, nil
}

// orderGuards checks the target-specific preconditions beyond graph legality.
func (s *Service) orderGuards(snap TransactionView, order Order, target OrderStatus) error {
	ref := Reference{Kind: KindOrder, ID: order.ID}
	switch target {
	case domain.OrderStatusScheduled:
		if order.BatchID == nil {
			return domain.GuardViolation{Entity: ref, From: string(order.Status), To: string(target), Reason: "order is not assigned to a batch"}
		}
		if !hasLiveReservation(snap, *order.BatchID) {
			return domain.GuardViolation{Entity: ref, From: string(order.Status), To: string(target), Reason: "no capacity reservation held for batch " + *order.BatchID}
		}
	case domain.OrderStatusReleased:
		wf, ok := snap.ActiveWorkflowFor(ref)
		if ok {
			return domain.GuardViolation{Entity: ref, From: string(order.Status), To: string(target), Reason: "approval workflow " + wf.ID + " is still pending"}
		}
		if !approvedWorkflowExists(snap, ref) {
			return domain.GuardViolation{Entity: ref, From: string(order.Status), To: string(target), Reason: "no approved workflow on record"}
		}
	case domain.OrderStatusDispatched:
		return s.shelfLifeGuard(snap, order)
	}
	return nil
}

// shelfLifeGuard refuses dispatch when the dose would exceed the product's
// shelf life by the order's injection time. Only enforced once the producing
// batch has an actual start time to measure from.
func (s *Service) shelfLifeGuard(snap TransactionView, order Order) error {
	if order.BatchID == nil {
		return nil
	}
	batch, ok := snap.FindBatch(*order.BatchID)
	if !ok || batch.ActualStartTime == nil {
		return nil
	}
	product, ok := snap.FindProduct(order.ProductID)
	if !ok {
		return nil
	}
	synthesisEnd := batch.ActualStartTime.Add(time.Duration(product.SynthesisTimeMinutes * float64(time.Minute)))
	if !decay.WithinShelfLife(product, synthesisEnd, order.ReferenceTime()) {
		return domain.GuardViolation{
			Entity: Reference{Kind: KindOrder, ID: order.ID},
			From:   string(order.Status),
			To:     string(domain.OrderStatusDispatched),
			Reason: "injection time exceeds product shelf life",
		}
	}
	return nil
}

// AttemptBatchTransition moves a batch through its production lifecycle.
// Entering IN_PROGRESS commits tentative reservations; RELEASED requires an
// approved workflow and no unresolved QC items; CANCELLED releases capacity
// and cancels in-flight workflows.
func (s *Service) AttemptBatchTransition(ctx context.Context, batchID string, target BatchStatus, actor string) (Batch, error) {
	return s.attemptBatchTransition(ctx, batchID, nil, target, actor)
}

// AttemptBatchTransitionFrom is the optimistic-concurrency variant of
// AttemptBatchTransition.
func (s *Service) AttemptBatchTransitionFrom(ctx context.Context, batchID string, observed, target BatchStatus, actor string) (Batch, error) {
	return s.attemptBatchTransition(ctx, batchID, &observed, target, actor)
}

func (s *Service) attemptBatchTransition(ctx context.Context, batchID string, observed *BatchStatus, target BatchStatus, actor string) (Batch, error) {
	var updated Batch
	var entries []AuditEntry
	err := s.instrument(ctx, "batch_transition", func(ctx context.Context) error {
		ref := Reference{Kind: KindBatch, ID: batchID}
		if target == domain.BatchStatusReleased {
			if err := s.ensureReleaseWorkflow(ctx, ref); err != nil {
				return err
			}
		}
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			snap := tx.Snapshot()
			batch, ok := snap.FindBatch(batchID)
			if !ok {
				return domain.ErrNotFound{Entity: EntityBatch, ID: batchID}
			}
			if observed != nil && batch.Status != *observed {
				return domain.ConcurrentModification{Entity: ref, Observed: string(*observed), Current: string(batch.Status)}
			}
			if !batchEdgeAllowed(batch.Status, target) {
				return domain.GuardViolation{Entity: ref, From: string(batch.Status), To: string(target), Reason: "transition not in lifecycle graph"}
			}
			if err := s.batchGuards(snap, batch, target); err != nil {
				return err
			}
			from := batch.Status
			var txErr error
			updated, txErr = tx.UpdateBatch(batchID, func(b *Batch) error {
				b.Status = target
				switch target {
				case domain.BatchStatusInProgress:
					if b.ActualStartTime == nil {
						now := s.nowFn()
						b.ActualStartTime = &now
					}
				case domain.BatchStatusCompleted:
					if b.ActualEndTime == nil {
						now := s.nowFn()
						b.ActualEndTime = &now
					}
				}
				return nil
			})
			if txErr != nil {
				return txErr
			}
			switch target {
			case domain.BatchStatusInProgress:
				txErr = commitBatchReservations(tx, batchID)
			case domain.BatchStatusCancelled:
				txErr = s.cancelCollaborators(tx, ref, batchID, actor)
			}
			if txErr != nil {
				return txErr
			}
			entry, txErr := tx.AppendAuditEntry(AuditEntry{
				Entity:     ref,
				FromStatus: string(from),
				ToStatus:   string(target),
				Actor:      actor,
				At:         s.nowFn(),
			})
			if txErr != nil {
				return txErr
			}
			entries = append(entries, entry)
			return nil
		})
		return err
	})
	if err != nil {
		return Batch{}, err
	}
	s.publish(entries)
	return updated, nil
}

func (s *Service) batchGuards(snap TransactionView, batch Batch, target BatchStatus) error {
	ref := Reference{Kind: KindBatch, ID: batch.ID}
	if target != domain.BatchStatusReleased {
		return nil
	}
	for _, item := range snap.QCItemsFor(batch.ID) {
		if !item.Resolved() {
			return domain.GuardViolation{Entity: ref, From: string(batch.Status), To: string(target), Reason: "qc item " + item.ID + " (" + item.Name + ") is " + string(item.Status)}
		}
	}
	wf, ok := snap.ActiveWorkflowFor(ref)
	if ok {
		return domain.GuardViolation{Entity: ref, From: string(batch.Status), To: string(target), Reason: "approval workflow " + wf.ID + " is still pending"}
	}
	if !approvedWorkflowExists(snap, ref) {
		return domain.GuardViolation{Entity: ref, From: string(batch.Status), To: string(target), Reason: "no approved workflow on record"}
	}
	return nil
}

// ensureReleaseWorkflow spawns the entity's release approval workflow on the
// first gated attempt. The spawn commits on its own so the workflow survives
// the guarded transition failing; repeat attempts reuse the active instance.
func (s *Service) ensureReleaseWorkflow(ctx context.Context, ref Reference) error {
	needed := false
	err := s.store.View(ctx, func(v TransactionView) error {
		switch ref.Kind {
		case KindOrder:
			order, ok := v.FindOrder(ref.ID)
			if !ok || !orderEdgeAllowed(order.Status, domain.OrderStatusReleased) {
				return nil
			}
		case KindBatch:
			batch, ok := v.FindBatch(ref.ID)
			if !ok || !batchEdgeAllowed(batch.Status, domain.BatchStatusReleased) {
				return nil
			}
		}
		if _, ok := v.ActiveWorkflowFor(ref); ok {
			return nil
		}
		if approvedWorkflowExists(v, ref) {
			return nil
		}
		needed = true
		return nil
	})
	if err != nil || !needed {
		return err
	}
	steps := s.releaseSteps[ref.Kind]
	if len(steps) == 0 {
		return nil
	}
	_, err = s.StartWorkflow(ctx, ref, steps)
	return err
}

func approvedWorkflowExists(view RuleView, ref Reference) bool {
	for _, wf := range view.ListWorkflows() {
		if wf.Entity == ref && wf.Status == domain.WorkflowStatusApproved {
			return true
		}
	}
	return false
}

// batchHasActiveOrders reports whether any order other than excludeOrderID
// still sits in a non-terminal status within the batch.
func batchHasActiveOrders(snap TransactionView, batchID, excludeOrderID string) bool {
	for _, o := range snap.ListOrders() {
		if o.ID == excludeOrderID || o.BatchID == nil || *o.BatchID != batchID {
			continue
		}
		if !orderTerminal(o.Status) {
			return true
		}
	}
	return false
}

func hasLiveReservation(snap TransactionView, batchID string) bool {
	for _, r := range snap.ReservationsForBatch(batchID) {
		if !r.Released {
			return true
		}
	}
	return false
}

// commitBatchReservations promotes the batch's tentative holds when
// production starts.
func commitBatchReservations(tx Transaction, batchID string) error {
	for _, r := range tx.Snapshot().ReservationsForBatch(batchID) {
		if r.Released || r.Mode() != domain.ReservationTentative {
			continue
		}
		if _, err := tx.UpdateReservation(r.ID, func(res *CapacityReservation) error {
			res.CommittedMinutes = res.ReservedMinutes
			res.ReservedMinutes = decimal.Zero
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// cancelCollaborators releases capacity held for the batch and cancels any
// pending workflow for the entity. Runs inside the caller's transaction so a
// later failure rolls everything back together. Cancelling one order keeps
// the batch's reservations while a sibling order still needs them.
func (s *Service) cancelCollaborators(tx Transaction, ref Reference, batchID string, actor string) error {
	snap := tx.Snapshot()
	releaseCapacity := true
	if batchID == "" && ref.Kind == KindOrder {
		if order, ok := snap.FindOrder(ref.ID); ok && order.BatchID != nil {
			batchID = *order.BatchID
			releaseCapacity = !batchHasActiveOrders(snap, batchID, ref.ID)
		}
	}
	if batchID != "" && releaseCapacity {
		for _, r := range snap.ReservationsForBatch(batchID) {
			if r.Released {
				continue
			}
			if _, err := tx.UpdateReservation(r.ID, func(res *CapacityReservation) error {
				res.Released = true
				return nil
			}); err != nil {
				return err
			}
		}
	}
	if wf, ok := snap.ActiveWorkflowFor(ref); ok {
		if _, err := tx.UpdateWorkflow(wf.ID, func(w *ApprovalWorkflow) error {
			w.Status = domain.WorkflowStatusCancelled
			return nil
		}); err != nil {
			return err
		}
		if _, err := tx.AppendAuditEntry(AuditEntry{
			Entity:     ref,
			FromStatus: string(domain.WorkflowStatusPending),
			ToStatus:   string(domain.WorkflowStatusCancelled),
			Actor:      actor,
			At:         s.nowFn(),
		}); err != nil {
			return err
		}
	}
	return nil
}
