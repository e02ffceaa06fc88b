package core

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"dosecore/pkg/domain"
)

// NewDailyCapacityRule returns the in-transaction rule re-checking that no
// calendar day's live reservations exceed the configured capacity. Days that
// carry an override reservation are exempt; the override already produced an
// audit entry when it was booked.
func NewDailyCapacityRule(capacityMinutes decimal.Decimal) domain.Rule {
	return dailyCapacityRule{capacity: capacityMinutes}
}

type dailyCapacityRule struct {
	capacity decimal.Decimal
}

func (dailyCapacityRule) Name() string { return "daily_capacity" }

func (r dailyCapacityRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	booked := make(map[string]decimal.Decimal)
	overridden := make(map[string]bool)
	for _, reservation := range view.ListReservations() {
		if reservation.Released {
			continue
		}
		booked[reservation.Date] = booked[reservation.Date].Add(reservation.Minutes())
		if reservation.Override {
			overridden[reservation.Date] = true
		}
	}

	res := domain.Result{}
	for date, minutes := range booked {
		if overridden[date] {
			continue
		}
		if minutes.GreaterThan(r.capacity) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "daily_capacity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("day %s over capacity: %s/%s minutes booked", date, minutes, r.capacity),
				Entity:   domain.EntityCapacityReservation,
				EntityID: date,
			})
		}
	}
	return res, nil
}
