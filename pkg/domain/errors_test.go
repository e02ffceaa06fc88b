package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestTypedErrorsSurviveWrapping(t *testing.T) {
	wrapped := fmt.Errorf("op failed: %w", CapacityExceeded{
		Date:      "2026-03-14",
		Requested: decimal.NewFromInt(260),
		Booked:    decimal.NewFromInt(240),
		Capacity:  decimal.NewFromInt(480),
	})
	var ce CapacityExceeded
	if !errors.As(wrapped, &ce) {
		t.Fatalf("expected CapacityExceeded through wrap, got %v", wrapped)
	}
	if ce.Date != "2026-03-14" || !ce.Requested.Equal(decimal.NewFromInt(260)) {
		t.Fatalf("unexpected fields: %+v", ce)
	}
}

func TestGuardViolationMessage(t *testing.T) {
	err := GuardViolation{
		Entity: Reference{Kind: KindOrder, ID: "o1"},
		From:   string(OrderStatusDraft),
		To:     string(OrderStatusDelivered),
		Reason: "transition not in lifecycle graph",
	}
	msg := err.Error()
	for _, part := range []string{"order/o1", "draft", "delivered"} {
		if !strings.Contains(msg, part) {
			t.Fatalf("message %q missing %q", msg, part)
		}
	}
	bare := GuardViolation{Entity: Reference{Kind: KindBatch, ID: "b1"}, Reason: "qc item open"}
	if got := bare.Error(); got != "batch/b1: qc item open" {
		t.Fatalf("bare message = %q", got)
	}
}

func TestWorkflowStepMismatchMessage(t *testing.T) {
	err := WorkflowStepMismatch{WorkflowID: "wf1", CurrentStep: 2, ActedStep: 1}
	if !strings.Contains(err.Error(), "step 1") || !strings.Contains(err.Error(), "step is 2") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestConcurrentModificationMessage(t *testing.T) {
	err := ConcurrentModification{
		Entity:   Reference{Kind: KindOrder, ID: "o1"},
		Observed: string(OrderStatusDraft),
		Current:  string(OrderStatusSubmitted),
	}
	if !strings.Contains(err.Error(), "draft") || !strings.Contains(err.Error(), "submitted") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
