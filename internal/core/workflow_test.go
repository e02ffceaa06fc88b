package core

import (
	"context"
	"errors"
	"testing"

	"dosecore/pkg/domain"
)

func threeSteps() []ApprovalStep {
	return []ApprovalStep{
		{StepOrder: 1, StepName: "production_review", RequiredRole: "production_manager"},
		{StepOrder: 2, StepName: "qp_release", RequiredRole: "qualified_person"},
		{StepOrder: 3, StepName: "final_signoff", RequiredRole: "production_manager"},
	}
}

func TestStartWorkflowIdempotent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	ref := Reference{Kind: KindBatch, ID: "b1"}

	first, err := svc.StartWorkflow(ctx, ref, threeSteps())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if first.CurrentStep != 1 || first.Status != domain.WorkflowStatusPending {
		t.Fatalf("new workflow = %+v", first)
	}

	second, err := svc.StartWorkflow(ctx, ref, threeSteps())
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("second start created a duplicate: %s vs %s", second.ID, first.ID)
	}
	if got := len(svc.Store().ListWorkflows()); got != 1 {
		t.Fatalf("workflow count = %d", got)
	}
}

func TestStartWorkflowStepValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		steps []ApprovalStep
	}{
		{"empty", nil},
		{"gap", []ApprovalStep{{StepOrder: 1, RequiredRole: "r"}, {StepOrder: 3, RequiredRole: "r"}}},
		{"duplicate", []ApprovalStep{{StepOrder: 1, RequiredRole: "r"}, {StepOrder: 1, RequiredRole: "r"}}},
		{"missing role", []ApprovalStep{{StepOrder: 1}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.StartWorkflow(ctx, Reference{Kind: KindOrder, ID: "o-" + tc.name}, tc.steps)
			var verr domain.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestRecordActionWalkthrough(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	ref := Reference{Kind: KindBatch, ID: "b1"}

	wf, err := svc.StartWorkflow(ctx, ref, threeSteps())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// Step 1 approve advances to step 2.
	after, err := svc.RecordApprovalAction(ctx, wf.ID, 1, "alice", domain.DecisionApprove, "run looks clean")
	if err != nil {
		t.Fatalf("step 1 approve: %v", err)
	}
	if after.CurrentStep != 2 || after.Status != domain.WorkflowStatusPending {
		t.Fatalf("after step 1 = %+v", after)
	}

	// Acting on step 1 again is a mismatch and mutates nothing.
	_, err = svc.RecordApprovalAction(ctx, wf.ID, 1, "alice", domain.DecisionApprove, "")
	var mismatch domain.WorkflowStepMismatch
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected WorkflowStepMismatch, got %v", err)
	}
	if mismatch.CurrentStep != 2 || mismatch.ActedStep != 1 {
		t.Fatalf("mismatch detail = %+v", mismatch)
	}
	unchanged, _ := svc.Store().GetWorkflow(wf.ID)
	if unchanged.CurrentStep != 2 || unchanged.Status != domain.WorkflowStatusPending {
		t.Fatalf("mismatch mutated workflow: %+v", unchanged)
	}

	// Step 2 reject terminates immediately.
	after, err = svc.RecordApprovalAction(ctx, wf.ID, 2, "bob", domain.DecisionReject, "sterility doubt")
	if err != nil {
		t.Fatalf("step 2 reject: %v", err)
	}
	if after.Status != domain.WorkflowStatusRejected {
		t.Fatalf("after reject = %+v", after)
	}

	// Terminal workflows accept no further actions.
	_, err = svc.RecordApprovalAction(ctx, wf.ID, 3, "alice", domain.DecisionApprove, "")
	var gv domain.GuardViolation
	if !errors.As(err, &gv) {
		t.Fatalf("expected GuardViolation on terminal workflow, got %v", err)
	}
}

func TestRecordActionFullApproval(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	ref := Reference{Kind: KindOrder, ID: "o1"}

	wf, err := svc.StartWorkflow(ctx, ref, threeSteps())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	steps := []struct {
		order int
		actor string
	}{{1, "alice"}, {2, "bob"}, {3, "alice"}}
	var final ApprovalWorkflow
	for _, s := range steps {
		final, err = svc.RecordApprovalAction(ctx, wf.ID, s.order, s.actor, domain.DecisionApprove, "")
		if err != nil {
			t.Fatalf("step %d: %v", s.order, err)
		}
	}
	if final.Status != domain.WorkflowStatusApproved {
		t.Fatalf("final = %+v", final)
	}
	if got := len(svc.Store().ListWorkflows()); got != 1 {
		t.Fatalf("workflow count = %d", got)
	}
}

func TestRecordActionAuthorization(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	wf, err := svc.StartWorkflow(ctx, Reference{Kind: KindBatch, ID: "b1"}, threeSteps())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// carol resolves to courier, which step 1 does not accept.
	_, err = svc.RecordApprovalAction(ctx, wf.ID, 1, "carol", domain.DecisionApprove, "")
	var unauthorized domain.Unauthorized
	if !errors.As(err, &unauthorized) {
		t.Fatalf("expected Unauthorized, got %v", err)
	}
	if unauthorized.Role != "courier" || unauthorized.RequiredRole != "production_manager" {
		t.Fatalf("unauthorized detail = %+v", unauthorized)
	}

	// Unknown actors fail before any store access.
	_, err = svc.RecordApprovalAction(ctx, wf.ID, 1, "mallory", domain.DecisionApprove, "")
	if !errors.As(err, &unauthorized) {
		t.Fatalf("expected Unauthorized for unknown actor, got %v", err)
	}

	unchanged, _ := svc.Store().GetWorkflow(wf.ID)
	if unchanged.CurrentStep != 1 || unchanged.Status != domain.WorkflowStatusPending {
		t.Fatalf("unauthorized attempts mutated workflow: %+v", unchanged)
	}
}

func TestReplayDerivesStateFromLog(t *testing.T) {
	steps := threeSteps()

	step, status := replay(steps, nil)
	if step != 1 || status != domain.WorkflowStatusPending {
		t.Fatalf("empty log: step=%d status=%s", step, status)
	}

	actions := []ApprovalAction{
		{WorkflowID: "wf", StepOrder: 1, Action: domain.DecisionApprove},
		{WorkflowID: "wf", StepOrder: 2, Action: domain.DecisionApprove},
	}
	step, status = replay(steps, actions)
	if step != 3 || status != domain.WorkflowStatusPending {
		t.Fatalf("two approvals: step=%d status=%s", step, status)
	}

	actions = append(actions, ApprovalAction{WorkflowID: "wf", StepOrder: 3, Action: domain.DecisionReject})
	step, status = replay(steps, actions)
	if status != domain.WorkflowStatusRejected {
		t.Fatalf("reject at final step: status=%s", status)
	}

	actions[2].Action = domain.DecisionApprove
	_, status = replay(steps, actions)
	if status != domain.WorkflowStatusApproved {
		t.Fatalf("full approval: status=%s", status)
	}

	// Out-of-order entries are ignored rather than advancing the cursor.
	step, status = replay(steps, []ApprovalAction{{WorkflowID: "wf", StepOrder: 2, Action: domain.DecisionApprove}})
	if step != 1 || status != domain.WorkflowStatusPending {
		t.Fatalf("stray entry advanced replay: step=%d status=%s", step, status)
	}

	// No steps means nothing to fold, regardless of the log.
	step, status = replay(nil, actions)
	if step != 0 || status != domain.WorkflowStatusPending {
		t.Fatalf("stepless replay: step=%d status=%s", step, status)
	}
}
