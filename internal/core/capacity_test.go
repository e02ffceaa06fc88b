package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"dosecore/pkg/domain"
)

func reserve(t *testing.T, svc *Service, date string, minutes int64, mode ReservationMode) CapacityReservation {
	t.Helper()
	res, err := svc.ReserveCapacity(context.Background(), ReserveRequest{
		Date:    date,
		Minutes: decimal.NewFromInt(minutes),
		Mode:    mode,
		BatchID: "b1",
		Actor:   "alice",
	})
	if err != nil {
		t.Fatalf("reserve %d on %s: %v", minutes, date, err)
	}
	return res
}

func TestReserveUntilCapacityExceeded(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	reserve(t, svc, "2026-03-15", 240, domain.ReservationTentative)

	_, err := svc.ReserveCapacity(ctx, ReserveRequest{
		Date:    "2026-03-15",
		Minutes: decimal.NewFromInt(260),
		Mode:    domain.ReservationTentative,
		BatchID: "b1",
		Actor:   "alice",
	})
	var ce domain.CapacityExceeded
	if !errors.As(err, &ce) {
		t.Fatalf("expected CapacityExceeded, got %v", err)
	}
	if !ce.Booked.Equal(decimal.NewFromInt(240)) || !ce.Capacity.Equal(decimal.NewFromInt(480)) {
		t.Fatalf("error detail = %+v", ce)
	}
	// The failed call reserved nothing.
	if got := len(svc.Store().ListReservations()); got != 1 {
		t.Fatalf("reservations after rejection = %d", got)
	}
}

func TestReserveSumInvariantHolds(t *testing.T) {
	svc := newTestService(t)
	total := decimal.Zero
	for _, m := range []int64{120, 120, 120, 120} {
		reserve(t, svc, "2026-03-16", m, domain.ReservationTentative)
		total = total.Add(decimal.NewFromInt(m))
	}
	if _, err := svc.ReserveCapacity(context.Background(), ReserveRequest{
		Date: "2026-03-16", Minutes: decimal.NewFromInt(1), Mode: domain.ReservationTentative, BatchID: "b1", Actor: "alice",
	}); err == nil {
		t.Fatalf("481st minute should exceed capacity")
	}
	if !total.Equal(svc.DailyCapacityMinutes()) {
		t.Fatalf("booked %s != capacity %s", total, svc.DailyCapacityMinutes())
	}
}

func TestReserveOverrideWritesAuditEntry(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	reserve(t, svc, "2026-03-15", 400, domain.ReservationCommitted)

	res, err := svc.ReserveCapacity(ctx, ReserveRequest{
		Date:     "2026-03-15",
		Minutes:  decimal.NewFromInt(120),
		Mode:     domain.ReservationCommitted,
		BatchID:  "b1",
		Override: true,
		Actor:    "alice",
	})
	if err != nil {
		t.Fatalf("override reserve: %v", err)
	}
	if !res.Override {
		t.Fatalf("reservation not flagged as override: %+v", res)
	}
	var found bool
	for _, entry := range svc.Store().ListAuditEntries() {
		if entry.ToStatus == "capacity_override" && entry.Actor == "alice" {
			found = true
		}
	}
	if !found {
		t.Fatalf("override audit entry missing: %+v", svc.Store().ListAuditEntries())
	}
}

func TestReservePastDateRejected(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.ReserveCapacity(context.Background(), ReserveRequest{
		Date:    "2026-03-13",
		Minutes: decimal.NewFromInt(60),
		Mode:    domain.ReservationTentative,
		BatchID: "b1",
	})
	var verr domain.ValidationError
	if !errors.As(err, &verr) || verr.Field != "date" {
		t.Fatalf("expected date validation, got %v", err)
	}
}

func TestReserveWindowProRatesAcrossMidnight(t *testing.T) {
	svc := newTestService(t)
	start := time.Date(2026, 3, 15, 23, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 16, 1, 30, 0, 0, time.UTC)

	created, err := svc.ReserveCapacityWindow(context.Background(), start, end, domain.ReservationTentative, "b1", "alice")
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("expected 2 per-day reservations, got %+v", created)
	}
	if created[0].Date != "2026-03-15" || !created[0].ReservedMinutes.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("first day = %+v", created[0])
	}
	if created[1].Date != "2026-03-16" || !created[1].ReservedMinutes.Equal(decimal.NewFromInt(90)) {
		t.Fatalf("second day = %+v", created[1])
	}
}

func TestReserveWindowAllOrNothing(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	// Fill the second day so the window's overflow portion cannot fit.
	reserve(t, svc, "2026-03-16", 480, domain.ReservationCommitted)

	start := time.Date(2026, 3, 15, 23, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 16, 1, 0, 0, 0, time.UTC)
	_, err := svc.ReserveCapacityWindow(ctx, start, end, domain.ReservationTentative, "b2", "alice")
	var ce domain.CapacityExceeded
	if !errors.As(err, &ce) {
		t.Fatalf("expected CapacityExceeded, got %v", err)
	}
	// The first day's slice must not have survived the failed window.
	for _, r := range svc.Store().ListReservations() {
		if r.Date == "2026-03-15" {
			t.Fatalf("partial window reservation leaked: %+v", r)
		}
	}
}

func TestReserveWindowFractionalMinutes(t *testing.T) {
	svc := newTestService(t)
	start := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	end := start.Add(90*time.Second + 500*time.Millisecond)

	created, err := svc.ReserveCapacityWindow(context.Background(), start, end, domain.ReservationTentative, "b1", "alice")
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	want := decimal.NewFromFloat(1.5083333333333333)
	if len(created) != 1 || created[0].ReservedMinutes.Sub(want).Abs().GreaterThan(decimal.NewFromFloat(1e-9)) {
		t.Fatalf("fractional minutes lost: %+v", created)
	}
}

func TestCommitAndReleaseReservation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	res := reserve(t, svc, "2026-03-15", 240, domain.ReservationTentative)

	committed, err := svc.CommitReservation(ctx, res.ID)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if committed.Mode() != domain.ReservationCommitted || !committed.CommittedMinutes.Equal(decimal.NewFromInt(240)) {
		t.Fatalf("committed = %+v", committed)
	}
	if !committed.ReservedMinutes.IsZero() {
		t.Fatalf("tentative minutes kept after commit: %+v", committed)
	}

	released, err := svc.ReleaseReservation(ctx, res.ID)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if !released.Released || !released.Minutes().IsZero() {
		t.Fatalf("released = %+v", released)
	}

	// Freed capacity is reusable; no silent expiry needed.
	reserve(t, svc, "2026-03-15", 480, domain.ReservationTentative)

	if _, err := svc.CommitReservation(ctx, res.ID); err == nil {
		t.Fatalf("committing a released reservation should fail")
	}
}

func TestUtilization(t *testing.T) {
	svc := newTestService(t)
	reserve(t, svc, "2026-03-15", 240, domain.ReservationTentative)

	percent, err := svc.Utilization(context.Background(), "2026-03-15")
	if err != nil {
		t.Fatalf("utilization: %v", err)
	}
	if percent < 49.999 || percent > 50.001 {
		t.Fatalf("utilization = %v, want 50", percent)
	}
	if _, err := svc.Utilization(context.Background(), "not-a-date"); err == nil {
		t.Fatalf("bad date should fail")
	}
}

func TestListTentativeReservations(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	tentative := reserve(t, svc, "2026-03-15", 60, domain.ReservationTentative)
	reserve(t, svc, "2026-03-15", 60, domain.ReservationCommitted)
	releasedRes := reserve(t, svc, "2026-03-15", 60, domain.ReservationTentative)
	if _, err := svc.ReleaseReservation(ctx, releasedRes.ID); err != nil {
		t.Fatalf("release: %v", err)
	}

	out, err := svc.ListTentativeReservations(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 1 || out[0].ID != tentative.ID {
		t.Fatalf("expected only the live tentative hold, got %+v", out)
	}
}
