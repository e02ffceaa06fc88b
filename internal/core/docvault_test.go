package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"dosecore/internal/infra/docvault"
	"dosecore/pkg/domain"
)

func releasedBatch(t *testing.T, svc *Service) Batch {
	t.Helper()
	ctx := context.Background()
	order := seedOrder(t, svc)
	batch := seedBatch(t, svc, order.ID)
	reserveForBatch(t, svc, batch.ID)

	advanceBatch(t, svc, batch.ID,
		domain.BatchStatusInProgress, domain.BatchStatusCompleted,
		domain.BatchStatusQCPending, domain.BatchStatusQCPassed)

	_, _ = svc.AttemptBatchTransition(ctx, batch.ID, domain.BatchStatusReleased, "alice")
	for _, wf := range svc.Store().ListWorkflows() {
		if wf.Entity != (Reference{Kind: KindBatch, ID: batch.ID}) {
			continue
		}
		if _, err := svc.RecordApprovalAction(ctx, wf.ID, 1, "alice", domain.DecisionApprove, ""); err != nil {
			t.Fatalf("step 1: %v", err)
		}
		if _, err := svc.RecordApprovalAction(ctx, wf.ID, 2, "bob", domain.DecisionApprove, ""); err != nil {
			t.Fatalf("step 2: %v", err)
		}
	}
	return advanceBatch(t, svc, batch.ID, domain.BatchStatusReleased)
}

func TestArchiveReleaseDocument(t *testing.T) {
	vault := docvault.NewMemory()
	svc := newTestService(t, WithDocumentVault(vault))
	ctx := context.Background()
	batch := releasedBatch(t, svc)

	doc, err := svc.ArchiveReleaseDocument(ctx, batch.ID, "coa.pdf", "application/pdf", strings.NewReader("certificate"))
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if doc.Metadata["batch_id"] != batch.ID {
		t.Fatalf("metadata = %v", doc.Metadata)
	}

	docs, err := svc.ReleaseDocuments(ctx, batch.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 1 || docs[0].Key != "batches/"+batch.ID+"/coa.pdf" {
		t.Fatalf("docs = %+v", docs)
	}

	// Release evidence is write-once.
	if _, err := svc.ArchiveReleaseDocument(ctx, batch.ID, "coa.pdf", "application/pdf", strings.NewReader("again")); err == nil {
		t.Fatalf("duplicate archive accepted")
	}
}

func TestArchiveRequiresReleasedBatch(t *testing.T) {
	svc := newTestService(t, WithDocumentVault(docvault.NewMemory()))
	ctx := context.Background()
	order := seedOrder(t, svc)
	batch := seedBatch(t, svc, order.ID)

	_, err := svc.ArchiveReleaseDocument(ctx, batch.ID, "coa.pdf", "application/pdf", strings.NewReader("x"))
	var gv domain.GuardViolation
	if !errors.As(err, &gv) {
		t.Fatalf("expected GuardViolation for unreleased batch, got %v", err)
	}
}
