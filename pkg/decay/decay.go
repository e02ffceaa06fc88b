// Package decay converts requested delivered activities into production
// requirements and backward schedules, compensating for the exponential decay
// of short-lived radioisotopes. It is the single place activity math lives;
// callers render its results and never recompute them.
package decay

import (
	"math"
	"time"

	"dosecore/pkg/domain"
)

// Input carries the physics and timing parameters for one computation.
// Durations are in minutes; fractional minutes are preserved throughout.
type Input struct {
	RequestedActivity    float64
	ReferenceTime        time.Time
	HalfLifeMinutes      float64
	SynthesisTimeMinutes float64
	QCTimeMinutes        float64
	TravelTimeMinutes    float64
	OveragePercent       float64
	BufferMinutes        float64
}

// Plan is the production requirement and backward schedule derived from an
// Input. No rounding is applied; presentation layers round for display.
type Plan struct {
	ProductionActivity float64   `json:"production_activity"`
	SynthesisStartTime time.Time `json:"synthesis_start_time"`
	QCStartTime        time.Time `json:"qc_start_time"`
	QCEndTime          time.Time `json:"qc_end_time"`
	DispatchDeadline   time.Time `json:"dispatch_deadline"`
}

// Factor returns the decay factor 2^(minutes/halfLife) relating activity at
// two points in time separated by the given elapsed minutes.
func Factor(minutes, halfLifeMinutes float64) float64 {
	return math.Exp2(minutes / halfLifeMinutes)
}

// Decay returns the activity remaining after elapsed minutes of decay.
func Decay(activity, elapsedMinutes, halfLifeMinutes float64) float64 {
	return activity * math.Exp2(-elapsedMinutes/halfLifeMinutes)
}

// Compute inverts the decay equation over the elapsed time between end of
// synthesis and the reference point, inflates by the overage percentage, and
// schedules the production stages backward from the reference time.
//
// A reference time in the past is legal (historical recompute); scheduling
// against it is rejected later by the capacity planner, not here.
func Compute(in Input) (Plan, error) {
	if in.RequestedActivity <= 0 {
		return Plan{}, domain.ValidationError{Field: "requested_activity", Reason: "must be positive"}
	}
	if in.HalfLifeMinutes <= 0 {
		return Plan{}, domain.ValidationError{Field: "half_life_minutes", Reason: "must be positive"}
	}
	if in.OveragePercent < 0 {
		return Plan{}, domain.ValidationError{Field: "overage_percent", Reason: "must not be negative"}
	}
	for field, v := range map[string]float64{
		"synthesis_time_minutes": in.SynthesisTimeMinutes,
		"qc_time_minutes":        in.QCTimeMinutes,
		"travel_time_minutes":    in.TravelTimeMinutes,
		"buffer_minutes":         in.BufferMinutes,
	} {
		if v < 0 {
			return Plan{}, domain.ValidationError{Field: field, Reason: "must not be negative"}
		}
	}
	if in.ReferenceTime.IsZero() {
		return Plan{}, domain.ValidationError{Field: "reference_time", Reason: "must be set"}
	}

	totalElapsed := in.QCTimeMinutes + in.TravelTimeMinutes + in.BufferMinutes
	production := in.RequestedActivity * Factor(totalElapsed, in.HalfLifeMinutes) * (1 + in.OveragePercent/100)

	synthesisStart := in.ReferenceTime.Add(-minutes(in.SynthesisTimeMinutes + totalElapsed))
	qcStart := synthesisStart.Add(minutes(in.SynthesisTimeMinutes))
	return Plan{
		ProductionActivity: production,
		SynthesisStartTime: synthesisStart,
		QCStartTime:        qcStart,
		QCEndTime:          qcStart.Add(minutes(in.QCTimeMinutes)),
		DispatchDeadline:   in.ReferenceTime.Add(-minutes(in.TravelTimeMinutes)),
	}, nil
}

// ForOrder computes the production plan for an order against its product and
// customer reference data.
func ForOrder(order domain.Order, product domain.Product, customer domain.Customer, bufferMinutes float64) (Plan, error) {
	return Compute(Input{
		RequestedActivity:    order.RequestedActivity,
		ReferenceTime:        order.ReferenceTime(),
		HalfLifeMinutes:      product.HalfLifeMinutes,
		SynthesisTimeMinutes: product.SynthesisTimeMinutes,
		QCTimeMinutes:        product.QCTimeMinutes,
		TravelTimeMinutes:    customer.TravelTimeMinutes,
		OveragePercent:       product.OveragePercent,
		BufferMinutes:        bufferMinutes,
	})
}

// WithinShelfLife reports whether a dose is still usable at the given time,
// measured from the end of synthesis. A zero shelf life means unlimited.
func WithinShelfLife(product domain.Product, synthesisEnd, at time.Time) bool {
	if product.ShelfLifeMinutes <= 0 {
		return true
	}
	return !at.After(synthesisEnd.Add(minutes(product.ShelfLifeMinutes)))
}

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}
