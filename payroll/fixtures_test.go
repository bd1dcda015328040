package payroll_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/store/memory"
)

// =============================================================================
// TEST FIXTURES
// =============================================================================

var (
	utc   = time.UTC
	h1Mar = generic.MustResolvePeriod(2024, time.March, generic.FirstHalf, utc)
)

func adminCtx() context.Context {
	return payroll.WithActor(context.Background(), payroll.Actor{
		ID:          "admin",
		Permissions: []string{string(payroll.PermAll)},
	})
}

func actorCtx(perms ...payroll.Permission) context.Context {
	granted := make([]string, len(perms))
	for i, p := range perms {
		granted[i] = string(p)
	}
	return payroll.WithActor(context.Background(), payroll.Actor{ID: "clerk", Permissions: granted})
}

func at(year int, month time.Month, day, hour int) *time.Time {
	t := time.Date(year, month, day, hour, 0, 0, 0, utc)
	return &t
}

func tons(v int64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromInt(v))
}

func event(id string, driver payroll.DriverID, status payroll.DeliveryStatus, tonnage int64, date *time.Time) payroll.DeliveryEvent {
	return payroll.DeliveryEvent{
		ID:              id,
		DriverID:        driver,
		Status:          status,
		ExpectedTonnage: tons(tonnage),
		DeliveryDate:    date,
		CreatedAt:       time.Date(2024, time.February, 20, 0, 0, 0, 0, utc),
	}
}

// harness wires a full settlement stack over the memory store.
type harness struct {
	store        *memory.Store
	settlement   *payroll.Settlement
	orchestrator *payroll.Orchestrator
	aggregator   *payroll.Aggregator
	clock        *mutableClock
}

type mutableClock struct{ now time.Time }

func (c *mutableClock) Now() time.Time { return c.now }

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := memory.New()
	clock := &mutableClock{now: time.Date(2024, time.March, 20, 12, 0, 0, 0, utc)}
	settlement := payroll.NewSettlement(st,
		payroll.WithClock(clock),
		payroll.WithLocker(generic.NewKeyedMutex()),
	)
	orch := payroll.NewOrchestrator(st, st, payroll.NewCalculator(payroll.DefaultCommissionConfig()), settlement)
	orch.RunLog = st
	orch.Clock = clock
	orch.Location = utc

	agg := payroll.NewAggregator(st)
	agg.Clock = clock
	agg.Location = utc

	return &harness{store: st, settlement: settlement, orchestrator: orch, aggregator: agg, clock: clock}
}

func (h *harness) driver(t *testing.T, id payroll.DriverID, tier payroll.SalaryTier) {
	t.Helper()
	require.NoError(t, h.store.SaveDriver(context.Background(), payroll.Driver{
		ID: id, Name: string(id), Role: payroll.RoleDriver, Tier: tier, Active: true,
	}))
}

func (h *harness) delivery(t *testing.T, e payroll.DeliveryEvent) {
	t.Helper()
	require.NoError(t, h.store.SaveDelivery(context.Background(), e))
}

func (h *harness) record(t *testing.T, driver payroll.DriverID, p generic.Period) payroll.SalaryRecord {
	t.Helper()
	rec, err := h.store.Find(context.Background(), driver, p.Start)
	require.NoError(t, err)
	require.NotNil(t, rec, "no record for %s in %s", driver, p.Key())
	return *rec
}
