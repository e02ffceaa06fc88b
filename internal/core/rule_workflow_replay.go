package core

import (
	"context"
	"fmt"

	"dosecore/pkg/domain"
)

// NewWorkflowReplayRule returns the in-transaction rule verifying that every
// workflow's stored CurrentStep and Status agree with a replay of its
// append-only action log. Cancelled workflows are exempt: cancellation is an
// administrative resolution, not a log event.
func NewWorkflowReplayRule() domain.Rule {
	return workflowReplayRule{}
}

type workflowReplayRule struct{}

func (workflowReplayRule) Name() string { return "workflow_replay" }

func (workflowReplayRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, wf := range view.ListWorkflows() {
		if wf.Status == domain.WorkflowStatusCancelled {
			continue
		}
		if len(wf.Steps) == 0 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "workflow_replay",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("workflow %s has no steps to replay", wf.ID),
				Entity:   domain.EntityApprovalWorkflow,
				EntityID: wf.ID,
			})
			continue
		}
		step, status := replay(wf.Steps, view.ActionsFor(wf.ID))
		if step != wf.CurrentStep || status != wf.Status {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "workflow_replay",
				Severity: domain.SeverityBlock,
				Message: fmt.Sprintf("workflow %s stored state (step %d, %s) disagrees with action log replay (step %d, %s)",
					wf.ID, wf.CurrentStep, wf.Status, step, status),
				Entity:   domain.EntityApprovalWorkflow,
				EntityID: wf.ID,
			})
		}
	}
	return res, nil
}
