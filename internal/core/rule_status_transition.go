package core

import (
	"context"
	"fmt"

	"dosecore/pkg/domain"
)

// NewStatusTransitionRule returns the in-transaction rule that blocks any
// order or batch status change not present in the lifecycle graphs,
// including exits from terminal states. It inspects the change log,
// comparing before/after payloads, so it catches mutations made outside the
// transition API as well.
func NewStatusTransitionRule() domain.Rule {
	return statusTransitionRule{}
}

type statusTransitionRule struct{}

func (statusTransitionRule) Name() string { return "status_transition" }

func (statusTransitionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Action != domain.ActionUpdate {
			continue
		}
		switch change.Entity {
		case domain.EntityOrder:
			var before, after Order
			if !decodePair(change, &before, &after) {
				continue
			}
			if before.Status != after.Status && !orderEdgeAllowed(before.Status, after.Status) {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "status_transition",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("order %s: illegal status change %s -> %s", after.ID, before.Status, after.Status),
					Entity:   domain.EntityOrder,
					EntityID: after.ID,
				})
			}
		case domain.EntityBatch:
			var before, after Batch
			if !decodePair(change, &before, &after) {
				continue
			}
			if before.Status != after.Status && !batchEdgeAllowed(before.Status, after.Status) {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "status_transition",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("batch %s: illegal status change %s -> %s", after.ID, before.Status, after.Status),
					Entity:   domain.EntityBatch,
					EntityID: after.ID,
				})
			}
		}
	}
	return res, nil
}

// decodePair unmarshals a change's before/after payloads into typed copies.
func decodePair[T any](change domain.Change, before, after *T) bool {
	if !change.Before.Defined() || !change.After.Defined() {
		return false
	}
	if err := change.Before.Decode(before); err != nil {
		return false
	}
	if err := change.After.Decode(after); err != nil {
		return false
	}
	return true
}
