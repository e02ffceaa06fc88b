package core

import (
	"context"
	"fmt"

	"dosecore/pkg/domain"
)

// NewReleaseGateRule returns the in-transaction rule enforcing the release
// invariants independently of the transition guards: a released batch must
// carry an approved workflow and no unresolved QC item, and a released order
// must carry an approved workflow.
func NewReleaseGateRule() domain.Rule {
	return releaseGateRule{}
}

type releaseGateRule struct{}

func (releaseGateRule) Name() string { return "release_gate" }

func (releaseGateRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}

	approved := make(map[Reference]bool)
	for _, wf := range view.ListWorkflows() {
		if wf.Status == domain.WorkflowStatusApproved {
			approved[wf.Entity] = true
		}
	}

	unresolved := make(map[string]int)
	for _, item := range view.ListQCItems() {
		if !item.Resolved() {
			unresolved[item.BatchID]++
		}
	}

	for _, batch := range view.ListBatches() {
		if batch.Status != domain.BatchStatusReleased {
			continue
		}
		ref := Reference{Kind: domain.KindBatch, ID: batch.ID}
		if !approved[ref] {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "release_gate",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("batch %s released without approved workflow", batch.ID),
				Entity:   domain.EntityBatch,
				EntityID: batch.ID,
			})
		}
		if n := unresolved[batch.ID]; n > 0 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "release_gate",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("batch %s released with %d unresolved qc items", batch.ID, n),
				Entity:   domain.EntityBatch,
				EntityID: batch.ID,
			})
		}
	}

	for _, order := range view.ListOrders() {
		if order.Status != domain.OrderStatusReleased {
			continue
		}
		ref := Reference{Kind: domain.KindOrder, ID: order.ID}
		if !approved[ref] {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "release_gate",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("order %s released without approved workflow", order.ID),
				Entity:   domain.EntityOrder,
				EntityID: order.ID,
			})
		}
	}
	return res, nil
}
