package core

import (
	"context"
	"sort"

	"dosecore/pkg/domain"
)

// StartWorkflow creates a sequential approval workflow for an entity. The
// call is idempotent per active instance: when the entity already has a
// pending workflow, that instance is returned unchanged.
func (s *Service) StartWorkflow(ctx context.Context, ref Reference, steps []ApprovalStep) (ApprovalWorkflow, error) {
	var workflow ApprovalWorkflow
	err := s.instrument(ctx, "start_workflow", func(ctx context.Context) error {
		if err := validateSteps(steps); err != nil {
			return err
		}
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			snap := tx.Snapshot()
			if existing, ok := snap.ActiveWorkflowFor(ref); ok {
				workflow = existing
				return nil
			}
			ordered := append([]ApprovalStep(nil), steps...)
			sort.Slice(ordered, func(i, j int) bool { return ordered[i].StepOrder < ordered[j].StepOrder })
			var txErr error
			workflow, txErr = tx.CreateWorkflow(ApprovalWorkflow{
				Entity:      ref,
				Steps:       ordered,
				CurrentStep: ordered[0].StepOrder,
				Status:      domain.WorkflowStatusPending,
			})
			return txErr
		})
		return err
	})
	if err != nil {
		return ApprovalWorkflow{}, err
	}
	return workflow, nil
}

// validateSteps requires step orders to be exactly 1..n with no duplicates
// and a role on every step.
func validateSteps(steps []ApprovalStep) error {
	if len(steps) == 0 {
		return domain.ValidationError{Field: "steps", Reason: "workflow requires at least one step"}
	}
	seen := make(map[int]bool, len(steps))
	for _, step := range steps {
		if step.StepOrder < 1 || step.StepOrder > len(steps) {
			return domain.ValidationError{Field: "steps", Reason: "step orders must form 1..n"}
		}
		if seen[step.StepOrder] {
			return domain.ValidationError{Field: "steps", Reason: "duplicate step order"}
		}
		seen[step.StepOrder] = true
		if step.RequiredRole == "" {
			return domain.ValidationError{Field: "steps", Reason: "every step requires a role"}
		}
	}
	return nil
}

// RecordApprovalAction applies one approve/reject decision to a workflow.
// Terminal workflows never accept actions; the acting step must equal the
// current step; the actor's resolved role must match the step's required
// role. Approving the final step resolves the workflow APPROVED, any
// rejection resolves it REJECTED immediately. The failed checks leave the
// workflow and its log untouched.
func (s *Service) RecordApprovalAction(ctx context.Context, workflowID string, stepOrder int, actor string, decision ApprovalDecision, comments string) (ApprovalWorkflow, error) {
	var updated ApprovalWorkflow
	err := s.instrument(ctx, "record_approval_action", func(ctx context.Context) error {
		switch decision {
		case domain.DecisionApprove, domain.DecisionReject:
		default:
			return domain.ValidationError{Field: "action", Reason: "must be approve or reject"}
		}
		role, ok := s.roles.Resolve(ctx, actor)
		if !ok {
			return domain.Unauthorized{WorkflowID: workflowID, StepOrder: stepOrder, Actor: actor}
		}
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			snap := tx.Snapshot()
			workflow, found := snap.FindWorkflow(workflowID)
			if !found {
				return domain.ErrNotFound{Entity: EntityApprovalWorkflow, ID: workflowID}
			}
			if workflow.Terminal() {
				return domain.GuardViolation{
					Entity: workflow.Entity,
					Reason: "workflow " + workflowID + " is " + string(workflow.Status) + " and accepts no further actions",
				}
			}
			if stepOrder != workflow.CurrentStep {
				return domain.WorkflowStepMismatch{WorkflowID: workflowID, CurrentStep: workflow.CurrentStep, ActedStep: stepOrder}
			}
			step, _ := workflow.StepAt(stepOrder)
			if role != step.RequiredRole {
				return domain.Unauthorized{
					WorkflowID:   workflowID,
					StepOrder:    stepOrder,
					Actor:        actor,
					Role:         role,
					RequiredRole: step.RequiredRole,
				}
			}
			action := ApprovalAction{
				WorkflowID: workflowID,
				StepOrder:  stepOrder,
				Actor:      actor,
				Action:     decision,
				Comments:   comments,
				At:         s.nowFn(),
			}
			if _, txErr := tx.AppendApprovalAction(action); txErr != nil {
				return txErr
			}
			// Derived state is always a pure function of the action log.
			currentStep, status := replay(workflow.Steps, tx.Snapshot().ActionsFor(workflowID))
			var txErr error
			updated, txErr = tx.UpdateWorkflow(workflowID, func(w *ApprovalWorkflow) error {
				w.CurrentStep = currentStep
				w.Status = status
				return nil
			})
			return txErr
		})
		return err
	})
	if err != nil {
		return ApprovalWorkflow{}, err
	}
	return updated, nil
}

// replay folds an append-only action log over the step definitions and
// returns the derived current step and workflow status. A workflow without
// steps has nothing to fold and stays pending at step zero.
func replay(steps []ApprovalStep, actions []ApprovalAction) (int, WorkflowStatus) {
	orders := make([]int, 0, len(steps))
	for _, step := range steps {
		orders = append(orders, step.StepOrder)
	}
	sort.Ints(orders)
	if len(orders) == 0 {
		return 0, domain.WorkflowStatusPending
	}
	idx := 0
	for _, action := range actions {
		if idx >= len(orders) {
			break
		}
		if action.StepOrder != orders[idx] {
			continue
		}
		if action.Action == domain.DecisionReject {
			return orders[idx], domain.WorkflowStatusRejected
		}
		idx++
	}
	if idx >= len(orders) {
		return orders[len(orders)-1], domain.WorkflowStatusApproved
	}
	return orders[idx], domain.WorkflowStatusPending
}
