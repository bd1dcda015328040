package payroll

import "github.com/warp/payroll-engine/generic"

// IsEligible reports whether a delivery counts toward commission in p:
// it must be delivered or invoiced, and its effective date must fall in p.
func IsEligible(e DeliveryEvent, p generic.Period) bool {
	return e.Status.Completed() && p.Contains(e.EffectiveDate())
}

// EligibleEvents returns the events of one driver that earn commission in p,
// in their original order.
func EligibleEvents(events []DeliveryEvent, p generic.Period) []DeliveryEvent {
	eligible := make([]DeliveryEvent, 0, len(events))
	for _, e := range events {
		if IsEligible(e, p) {
			eligible = append(eligible, e)
		}
	}
	return eligible
}
