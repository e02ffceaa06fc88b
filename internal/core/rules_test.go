package core

import (
	"context"
	"errors"
	"testing"

	"dosecore/pkg/domain"
)

// violationRules collects the distinct rule names in a blocked transaction.
func violationRules(err error) map[string]bool {
	var rve domain.RuleViolationError
	if !errors.As(err, &rve) {
		return nil
	}
	names := map[string]bool{}
	for _, v := range rve.Result.Violations {
		names[v.Rule] = true
	}
	return names
}

func setOrderStatus(svc *Service, orderID string, target OrderStatus) error {
	_, err := svc.Store().RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.UpdateOrder(orderID, func(o *Order) error {
			o.Status = target
			return nil
		})
		return err
	})
	return err
}

func TestStatusTransitionRuleBlocksDirectMutation(t *testing.T) {
	svc := newTestService(t)
	order := seedOrder(t, svc)

	err := setOrderStatus(svc, order.ID, domain.OrderStatusDelivered)
	rules := violationRules(err)
	if !rules["status_transition"] {
		t.Fatalf("expected status_transition violation, got %v", err)
	}
	after, _ := svc.Store().GetOrder(order.ID)
	if after.Status != domain.OrderStatusDraft {
		t.Fatalf("blocked transaction leaked status %s", after.Status)
	}

	// A legal edge passes even outside the transition API.
	if err := setOrderStatus(svc, order.ID, domain.OrderStatusSubmitted); err != nil {
		t.Fatalf("legal edge blocked: %v", err)
	}
}

func TestStatusTransitionRuleBlocksTerminalExit(t *testing.T) {
	svc := newTestService(t)
	order := seedOrder(t, svc)
	advanceOrder(t, svc, order.ID, domain.OrderStatusSubmitted)

	if _, err := svc.AttemptOrderTransition(context.Background(), order.ID, domain.OrderStatusCancelled, "alice"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	err := setOrderStatus(svc, order.ID, domain.OrderStatusSubmitted)
	if rules := violationRules(err); !rules["status_transition"] {
		t.Fatalf("terminal exit not blocked: %v", err)
	}
}

func TestReleaseGateRuleBlocksDirectRelease(t *testing.T) {
	svc := newTestService(t)
	order := seedOrder(t, svc)

	// Walk legal edges straight through the store so only the release gate
	// stands between qp_review and released.
	path := []OrderStatus{
		domain.OrderStatusSubmitted, domain.OrderStatusValidated, domain.OrderStatusScheduled,
		domain.OrderStatusInProduction, domain.OrderStatusQCPending, domain.OrderStatusQCPassed,
		domain.OrderStatusQPReview,
	}
	for _, status := range path {
		if err := setOrderStatus(svc, order.ID, status); err != nil {
			t.Fatalf("walk to %s: %v", status, err)
		}
	}

	err := setOrderStatus(svc, order.ID, domain.OrderStatusReleased)
	if rules := violationRules(err); !rules["release_gate"] {
		t.Fatalf("expected release_gate violation, got %v", err)
	}
}

func TestWorkflowReplayRuleBlocksSteplessWorkflow(t *testing.T) {
	svc := newTestService(t)
	order := seedOrder(t, svc)

	// The store's CRUD surface accepts any record; the rule must catch a
	// workflow written without steps instead of letting it commit.
	_, err := svc.Store().RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateWorkflow(ApprovalWorkflow{
			Entity: Reference{Kind: KindOrder, ID: order.ID},
			Status: domain.WorkflowStatusPending,
		})
		return err
	})
	if rules := violationRules(err); !rules["workflow_replay"] {
		t.Fatalf("stepless workflow not blocked: %v", err)
	}
	if got := len(svc.Store().ListWorkflows()); got != 0 {
		t.Fatalf("blocked workflow leaked into committed state: %d", got)
	}
}

func TestWorkflowReplayRuleBlocksForgedState(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	order := seedOrder(t, svc)
	wf, err := svc.StartWorkflow(ctx, Reference{Kind: KindOrder, ID: order.ID}, []ApprovalStep{
		{StepOrder: 1, StepName: "qp_release", RequiredRole: "qualified_person"},
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	_, err = svc.Store().RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateWorkflow(wf.ID, func(w *ApprovalWorkflow) error {
			w.Status = domain.WorkflowStatusApproved
			return nil
		})
		return err
	})
	if rules := violationRules(err); !rules["workflow_replay"] {
		t.Fatalf("forged approval not blocked: %v", err)
	}

	// Cancellation is administrative, not replayable from the log.
	_, err = svc.Store().RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateWorkflow(wf.ID, func(w *ApprovalWorkflow) error {
			w.Status = domain.WorkflowStatusCancelled
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("cancel should bypass replay: %v", err)
	}
}
