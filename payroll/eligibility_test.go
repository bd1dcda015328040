package payroll_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/warp/payroll-engine/payroll"
)

func TestIsEligible(t *testing.T) {
	start := h1Mar.Start
	end := h1Mar.End

	tests := []struct {
		name  string
		event payroll.DeliveryEvent
		want  bool
	}{
		{"delivered inside", event("e", "d", payroll.DeliveryDelivered, 1, at(2024, 3, 5, 10)), true},
		{"invoiced inside", event("e", "d", payroll.DeliveryInvoiced, 1, at(2024, 3, 5, 10)), true},
		{"pending inside", event("e", "d", payroll.DeliveryPending, 1, at(2024, 3, 5, 10)), false},
		{"assigned inside", event("e", "d", payroll.DeliveryAssigned, 1, at(2024, 3, 5, 10)), false},
		{"in progress inside", event("e", "d", payroll.DeliveryInProgress, 1, at(2024, 3, 5, 10)), false},
		{"exactly at start", event("e", "d", payroll.DeliveryDelivered, 1, &start), true},
		{"exactly at end", event("e", "d", payroll.DeliveryDelivered, 1, &end), true},
		{"one ms after end", event("e", "d", payroll.DeliveryDelivered, 1, ptr(end.Add(time.Millisecond))), false},
		{"one ms before start", event("e", "d", payroll.DeliveryDelivered, 1, ptr(start.Add(-time.Millisecond))), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, payroll.IsEligible(tt.event, h1Mar))
		})
	}
}

func TestIsEligible_FallsBackToCreatedAt(t *testing.T) {
	// GIVEN: a delivered event without a delivery date, created inside the period
	e := event("e", "d", payroll.DeliveryDelivered, 3, nil)
	e.CreatedAt = time.Date(2024, 3, 10, 8, 0, 0, 0, utc)

	// THEN: creation time decides
	assert.True(t, payroll.IsEligible(e, h1Mar))

	// GIVEN: a delivery date outside the period overrides an inside creation time
	e.DeliveryDate = at(2024, 3, 20, 8)
	assert.False(t, payroll.IsEligible(e, h1Mar))
}

func TestEligibleEvents_PreservesOrder(t *testing.T) {
	events := []payroll.DeliveryEvent{
		event("a", "d", payroll.DeliveryDelivered, 1, at(2024, 3, 2, 0)),
		event("b", "d", payroll.DeliveryPending, 1, at(2024, 3, 2, 0)),
		event("c", "d", payroll.DeliveryInvoiced, 1, at(2024, 3, 1, 0)),
		event("d", "d", payroll.DeliveryDelivered, 1, at(2024, 4, 1, 0)),
	}

	got := payroll.EligibleEvents(events, h1Mar)

	ids := make([]string, len(got))
	for i, e := range got {
		ids[i] = e.ID
	}
	assert.Equal(t, []string{"a", "c"}, ids)
	assert.Empty(t, payroll.EligibleEvents(nil, h1Mar))
}

func ptr(t time.Time) *time.Time { return &t }
