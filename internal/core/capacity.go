package core

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"dosecore/pkg/domain"
)

// dateLayout is the calendar-day key for capacity accounting.
const dateLayout = "2006-01-02"

// ReserveRequest describes a single-day capacity hold.
type ReserveRequest struct {
	Date     string
	Minutes  decimal.Decimal
	Mode     ReservationMode
	BatchID  string
	Override bool
	Actor    string
}

// ReserveCapacity books production-minutes against one calendar day. The
// reservation fails with CapacityExceeded when the day's live holds plus the
// request would pass the configured capacity, unless Override is set, in
// which case an audit entry records the over-booking.
func (s *Service) ReserveCapacity(ctx context.Context, req ReserveRequest) (CapacityReservation, error) {
	var created CapacityReservation
	var entries []AuditEntry
	err := s.instrument(ctx, "reserve_capacity", func(ctx context.Context) error {
		if err := s.validateReserveRequest(req); err != nil {
			return err
		}
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var txErr error
			created, entries, txErr = s.reserveInTx(tx, req)
			return txErr
		})
		return err
	})
	if err != nil {
		return CapacityReservation{}, err
	}
	s.publish(entries)
	s.recordUtilization(ctx, created.Date)
	return created, nil
}

// ReserveCapacityWindow books a time window that may span calendar days,
// pro-rating the minutes that fall on each day. All per-day reservations
// commit in one transaction or none do.
func (s *Service) ReserveCapacityWindow(ctx context.Context, start, end time.Time, mode ReservationMode, batchID string, actor string) ([]CapacityReservation, error) {
	var created []CapacityReservation
	var entries []AuditEntry
	err := s.instrument(ctx, "reserve_capacity_window", func(ctx context.Context) error {
		if !end.After(start) {
			return domain.ValidationError{Field: "end", Reason: "must be after start"}
		}
		requests, err := s.windowRequests(start, end, mode, batchID, actor)
		if err != nil {
			return err
		}
		_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			for _, req := range requests {
				res, dayEntries, txErr := s.reserveInTx(tx, req)
				if txErr != nil {
					return txErr
				}
				created = append(created, res)
				entries = append(entries, dayEntries...)
			}
			return nil
		})
		if err != nil {
			created = nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(entries)
	for _, r := range created {
		s.recordUtilization(ctx, r.Date)
	}
	return created, nil
}

func (s *Service) validateReserveRequest(req ReserveRequest) error {
	if req.Minutes.Sign() <= 0 {
		return domain.ValidationError{Field: "minutes", Reason: "must be positive"}
	}
	day, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		return domain.ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
	}
	today := s.nowFn().UTC().Truncate(24 * time.Hour)
	if day.Before(today) {
		return domain.ValidationError{Field: "date", Reason: "must not be in the past"}
	}
	switch req.Mode {
	case domain.ReservationTentative, domain.ReservationCommitted:
	default:
		return domain.ValidationError{Field: "mode", Reason: "must be tentative or committed"}
	}
	return nil
}

// windowRequests splits [start, end) into one request per touched calendar
// day, preserving fractional minutes.
func (s *Service) windowRequests(start, end time.Time, mode ReservationMode, batchID, actor string) ([]ReserveRequest, error) {
	start, end = start.UTC(), end.UTC()
	var requests []ReserveRequest
	cursor := start
	for cursor.Before(end) {
		dayEnd := cursor.Truncate(24 * time.Hour).Add(24 * time.Hour)
		segEnd := dayEnd
		if end.Before(dayEnd) {
			segEnd = end
		}
		minutes := decimal.NewFromFloat(segEnd.Sub(cursor).Minutes())
		requests = append(requests, ReserveRequest{
			Date:    cursor.Format(dateLayout),
			Minutes: minutes,
			Mode:    mode,
			BatchID: batchID,
			Actor:   actor,
		})
		cursor = segEnd
	}
	for _, req := range requests {
		if err := s.validateReserveRequest(req); err != nil {
			return nil, err
		}
	}
	return requests, nil
}

func (s *Service) reserveInTx(tx Transaction, req ReserveRequest) (CapacityReservation, []AuditEntry, error) {
	snap := tx.Snapshot()
	booked := bookedMinutes(snap, req.Date)
	if booked.Add(req.Minutes).GreaterThan(s.capacity) && !req.Override {
		return CapacityReservation{}, nil, domain.CapacityExceeded{
			Date:      req.Date,
			Requested: req.Minutes,
			Booked:    booked,
			Capacity:  s.capacity,
		}
	}
	reservation := CapacityReservation{
		Date:     req.Date,
		BatchID:  req.BatchID,
		Override: req.Override && booked.Add(req.Minutes).GreaterThan(s.capacity),
	}
	if req.Mode == domain.ReservationCommitted {
		reservation.CommittedMinutes = req.Minutes
		reservation.ReservedMinutes = decimal.Zero
	} else {
		reservation.ReservedMinutes = req.Minutes
		reservation.CommittedMinutes = decimal.Zero
	}
	created, err := tx.CreateReservation(reservation)
	if err != nil {
		return CapacityReservation{}, nil, err
	}
	var entries []AuditEntry
	if created.Override {
		entry, err := tx.AppendAuditEntry(AuditEntry{
			Entity:     Reference{Kind: KindBatch, ID: req.BatchID},
			FromStatus: "capacity_available",
			ToStatus:   "capacity_override",
			Actor:      req.Actor,
			At:         s.nowFn(),
		})
		if err != nil {
			return CapacityReservation{}, nil, err
		}
		entries = append(entries, entry)
	}
	return created, entries, nil
}

// bookedMinutes sums the live tentative and committed minutes on a day.
func bookedMinutes(view RuleView, date string) decimal.Decimal {
	total := decimal.Zero
	for _, r := range view.ReservationsOn(date) {
		total = total.Add(r.Minutes())
	}
	return total
}

// CommitReservation promotes a tentative hold to committed.
func (s *Service) CommitReservation(ctx context.Context, reservationID string) (CapacityReservation, error) {
	var updated CapacityReservation
	err := s.instrument(ctx, "commit_reservation", func(ctx context.Context) error {
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var txErr error
			updated, txErr = tx.UpdateReservation(reservationID, func(r *CapacityReservation) error {
				if r.Released {
					return domain.GuardViolation{Entity: Reference{Kind: KindBatch, ID: r.BatchID}, Reason: "reservation " + r.ID + " is released"}
				}
				if r.Mode() == domain.ReservationCommitted {
					return nil
				}
				r.CommittedMinutes = r.ReservedMinutes
				r.ReservedMinutes = decimal.Zero
				return nil
			})
			return txErr
		})
		return err
	})
	if err != nil {
		return CapacityReservation{}, err
	}
	return updated, nil
}

// ReleaseReservation frees a hold so its minutes stop counting against the
// day. Released reservations remain on record; there is no automatic expiry.
func (s *Service) ReleaseReservation(ctx context.Context, reservationID string) (CapacityReservation, error) {
	var updated CapacityReservation
	err := s.instrument(ctx, "release_reservation", func(ctx context.Context) error {
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var txErr error
			updated, txErr = tx.UpdateReservation(reservationID, func(r *CapacityReservation) error {
				r.Released = true
				return nil
			})
			return txErr
		})
		return err
	})
	if err != nil {
		return CapacityReservation{}, err
	}
	s.recordUtilization(ctx, updated.Date)
	return updated, nil
}

// Utilization reports the booked share of a day's capacity as a percentage.
func (s *Service) Utilization(ctx context.Context, date string) (float64, error) {
	var percent float64
	err := s.instrument(ctx, "utilization", func(ctx context.Context) error {
		if _, err := time.Parse(dateLayout, date); err != nil {
			return domain.ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
		}
		return s.store.View(ctx, func(v TransactionView) error {
			booked := bookedMinutes(v, date)
			ratio, _ := booked.Div(s.capacity).Float64()
			percent = ratio * 100
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	if rec, ok := s.metrics.(UtilizationRecorder); ok {
		rec.SetUtilization(date, percent)
	}
	return percent, nil
}

func (s *Service) recordUtilization(ctx context.Context, date string) {
	if _, ok := s.metrics.(UtilizationRecorder); !ok {
		return
	}
	// Best effort; gauge freshness never gates the reservation result.
	_, _ = s.Utilization(ctx, date)
}

// ListTentativeReservations returns live tentative holds, oldest first, as
// review input for manual expiry decisions.
func (s *Service) ListTentativeReservations(ctx context.Context) ([]CapacityReservation, error) {
	var out []CapacityReservation
	err := s.store.View(ctx, func(v TransactionView) error {
		for _, r := range v.ListReservations() {
			if !r.Released && r.Mode() == domain.ReservationTentative {
				out = append(out, r)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
