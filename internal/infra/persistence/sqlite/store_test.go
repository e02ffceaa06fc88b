package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"dosecore/pkg/domain"
)

func TestStatePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "dosecore.db")

	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	var orderID string
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		order, txErr := tx.CreateOrder(domain.Order{RequestedActivity: 100, Status: domain.OrderStatusDraft})
		if txErr != nil {
			return txErr
		}
		orderID = order.ID
		_, txErr = tx.AppendAuditEntry(domain.AuditEntry{
			Entity:   domain.Reference{Kind: domain.KindOrder, ID: order.ID},
			ToStatus: string(domain.OrderStatusDraft),
		})
		return txErr
	}); err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	order, ok := reopened.GetOrder(orderID)
	if !ok || order.Status != domain.OrderStatusDraft {
		t.Fatalf("order did not survive reopen: %+v ok=%v", order, ok)
	}
	if entries := reopened.ListAuditEntries(); len(entries) != 1 {
		t.Fatalf("audit trail did not survive reopen: %+v", entries)
	}
}

func TestFailedTransactionNotPersisted(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "dosecore.db")

	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	sentinel := errors.New("boom")
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, txErr := tx.CreateOrder(domain.Order{RequestedActivity: 1}); txErr != nil {
			return txErr
		}
		return sentinel
	}); !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	if got := reopened.ListOrders(); len(got) != 0 {
		t.Fatalf("failed transaction leaked to disk: %+v", got)
	}
}

func TestDefaultPath(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	store, err := NewStore("", nil)
	if err != nil {
		t.Fatalf("open default: %v", err)
	}
	defer func() { _ = store.Close() }()
	if store.Path() != "dosecore.db" {
		t.Fatalf("default path = %s", store.Path())
	}
}
