package decay

import (
	"errors"
	"math"
	"testing"
	"time"

	"dosecore/pkg/domain"
)

var reference = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func baseInput() Input {
	return Input{
		RequestedActivity:    100,
		ReferenceTime:        reference,
		HalfLifeMinutes:      110,
		SynthesisTimeMinutes: 45,
		QCTimeMinutes:        20,
		TravelTimeMinutes:    40,
		OveragePercent:       10,
	}
}

func TestComputeProductionActivity(t *testing.T) {
	plan, err := Compute(baseInput())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	// 100 * 2^(60/110) * 1.10 for an F-18-like product.
	want := 160.54281162495909
	if math.Abs(plan.ProductionActivity-want) > 1e-9 {
		t.Fatalf("production activity = %v, want %v", plan.ProductionActivity, want)
	}
}

func TestComputeBackwardSchedule(t *testing.T) {
	plan, err := Compute(baseInput())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if got, want := plan.SynthesisStartTime, reference.Add(-105*time.Minute); !got.Equal(want) {
		t.Fatalf("synthesis start = %v, want %v", got, want)
	}
	if got, want := plan.QCStartTime, reference.Add(-60*time.Minute); !got.Equal(want) {
		t.Fatalf("qc start = %v, want %v", got, want)
	}
	if got, want := plan.QCEndTime, reference.Add(-40*time.Minute); !got.Equal(want) {
		t.Fatalf("qc end = %v, want %v", got, want)
	}
	if got, want := plan.DispatchDeadline, reference.Add(-40*time.Minute); !got.Equal(want) {
		t.Fatalf("dispatch deadline = %v, want %v", got, want)
	}
}

func TestComputeBufferExtendsElapsed(t *testing.T) {
	in := baseInput()
	withoutBuffer, err := Compute(in)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	in.BufferMinutes = 15
	withBuffer, err := Compute(in)
	if err != nil {
		t.Fatalf("compute with buffer: %v", err)
	}
	if withBuffer.ProductionActivity <= withoutBuffer.ProductionActivity {
		t.Fatalf("buffer should raise production activity: %v vs %v",
			withBuffer.ProductionActivity, withoutBuffer.ProductionActivity)
	}
	if got, want := withBuffer.SynthesisStartTime, withoutBuffer.SynthesisStartTime.Add(-15*time.Minute); !got.Equal(want) {
		t.Fatalf("synthesis start with buffer = %v, want %v", got, want)
	}
	// Travel alone fixes the dispatch deadline.
	if !withBuffer.DispatchDeadline.Equal(withoutBuffer.DispatchDeadline) {
		t.Fatalf("dispatch deadline moved with buffer")
	}
}

func TestComputeMonotonicInElapsed(t *testing.T) {
	in := baseInput()
	prev := 0.0
	for travel := 10.0; travel <= 120; travel += 10 {
		in.TravelTimeMinutes = travel
		plan, err := Compute(in)
		if err != nil {
			t.Fatalf("compute travel=%v: %v", travel, err)
		}
		if plan.ProductionActivity <= prev {
			t.Fatalf("production activity not increasing at travel=%v: %v <= %v", travel, plan.ProductionActivity, prev)
		}
		prev = plan.ProductionActivity
	}
}

func TestDecayRoundTrip(t *testing.T) {
	in := baseInput()
	plan, err := Compute(in)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	// Stripping the overage and decaying the product over the elapsed window
	// must land back on the requested activity.
	elapsed := in.QCTimeMinutes + in.TravelTimeMinutes + in.BufferMinutes
	atDose := Decay(plan.ProductionActivity/(1+in.OveragePercent/100), elapsed, in.HalfLifeMinutes)
	if math.Abs(atDose-in.RequestedActivity) > 1e-9 {
		t.Fatalf("round trip = %v, want %v", atDose, in.RequestedActivity)
	}
}

func TestDecayHalfLife(t *testing.T) {
	if got := Decay(100, 110, 110); math.Abs(got-50) > 1e-12 {
		t.Fatalf("one half-life = %v, want 50", got)
	}
	if got := Factor(110, 110); math.Abs(got-2) > 1e-12 {
		t.Fatalf("factor over one half-life = %v, want 2", got)
	}
}

func TestComputeValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Input)
		field  string
	}{
		{"requested zero", func(in *Input) { in.RequestedActivity = 0 }, "requested_activity"},
		{"requested negative", func(in *Input) { in.RequestedActivity = -5 }, "requested_activity"},
		{"half-life zero", func(in *Input) { in.HalfLifeMinutes = 0 }, "half_life_minutes"},
		{"negative overage", func(in *Input) { in.OveragePercent = -1 }, "overage_percent"},
		{"negative qc", func(in *Input) { in.QCTimeMinutes = -1 }, "qc_time_minutes"},
		{"negative travel", func(in *Input) { in.TravelTimeMinutes = -0.5 }, "travel_time_minutes"},
		{"missing reference", func(in *Input) { in.ReferenceTime = time.Time{} }, "reference_time"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := baseInput()
			tc.mutate(&in)
			_, err := Compute(in)
			var verr domain.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tc.field {
				t.Fatalf("field = %s, want %s", verr.Field, tc.field)
			}
		})
	}
}

func TestComputePastReferenceAllowed(t *testing.T) {
	in := baseInput()
	in.ReferenceTime = time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := Compute(in); err != nil {
		t.Fatalf("historical recompute should be legal: %v", err)
	}
}

func TestForOrderUsesInjectionTime(t *testing.T) {
	product := domain.Product{HalfLifeMinutes: 110, SynthesisTimeMinutes: 45, QCTimeMinutes: 20, OveragePercent: 10}
	customer := domain.Customer{TravelTimeMinutes: 40}
	injection := reference.Add(30 * time.Minute)
	order := domain.Order{
		RequestedActivity:   100,
		DeliveryWindowStart: reference,
		InjectionTime:       &injection,
	}
	plan, err := ForOrder(order, product, customer, 0)
	if err != nil {
		t.Fatalf("for order: %v", err)
	}
	if got, want := plan.DispatchDeadline, injection.Add(-40*time.Minute); !got.Equal(want) {
		t.Fatalf("dispatch deadline = %v, want %v anchored on injection time", got, want)
	}
}

func TestWithinShelfLife(t *testing.T) {
	product := domain.Product{ShelfLifeMinutes: 600}
	synthesisEnd := reference
	if !WithinShelfLife(product, synthesisEnd, synthesisEnd.Add(600*time.Minute)) {
		t.Fatalf("boundary instant should be within shelf life")
	}
	if WithinShelfLife(product, synthesisEnd, synthesisEnd.Add(601*time.Minute)) {
		t.Fatalf("past shelf life should fail")
	}
	if !WithinShelfLife(domain.Product{}, synthesisEnd, synthesisEnd.Add(24*365*time.Hour)) {
		t.Fatalf("zero shelf life means unlimited")
	}
}
