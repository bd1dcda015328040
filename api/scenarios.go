/*
scenarios.go - Demo datasets for exercising the service end to end

PURPOSE:
  Seeds drivers and delivery events into a development store so that runs,
  finalization and summaries can be tried without the delivery-management
  system. Loading a scenario resets the store first.

AVAILABLE SCENARIOS:
  march-2024:  Three drivers around the first half of March 2024, including
               a pending delivery, an undated delivery and an inactive driver
  mixed-fleet: Twelve drivers with deliveries spread over the first half of
               the year, for summaries and trends

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "march-2024"}

NOTE:
  Only stores implementing payroll.Seeder (memory, sqlite) support scenarios.
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/payroll-engine/logger"
	"github.com/warp/payroll-engine/payroll"
)

// Scenario is a named dataset.
type Scenario struct {
	ID          string
	Name        string
	Description string
	Build       func(loc *time.Location) ([]payroll.Driver, []payroll.DeliveryEvent)
}

var scenarioNamespace = uuid.MustParse("6f1c2a4e-8d3b-4c55-9a0e-2f7b1d9c3e10")

var scenarios = []Scenario{
	{
		ID:          "march-2024",
		Name:        "March 2024",
		Description: "Standard and senior drivers around 2024-03 H1, with excluded and undated deliveries",
		Build:       buildMarch2024,
	},
	{
		ID:          "mixed-fleet",
		Name:        "Mixed Fleet",
		Description: "Twelve drivers with deliveries from January to June 2024",
		Build:       buildMixedFleet,
	},
}

// Scenarios lists the available datasets.
func Scenarios() []Scenario {
	out := make([]Scenario, len(scenarios))
	copy(out, scenarios)
	return out
}

func findScenario(id string) (Scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return Scenario{}, false
}

// SeedScenario resets seeder and loads the scenario's drivers and deliveries.
func SeedScenario(ctx context.Context, seeder payroll.Seeder, id string, loc *time.Location) (ScenarioDTO, error) {
	s, ok := findScenario(id)
	if !ok {
		return ScenarioDTO{}, fmt.Errorf("unknown scenario %q", id)
	}
	if loc == nil {
		loc = time.Local
	}
	drivers, deliveries := s.Build(loc)

	if err := seeder.Reset(ctx); err != nil {
		return ScenarioDTO{}, fmt.Errorf("reset: %w", err)
	}
	for _, d := range drivers {
		if err := seeder.SaveDriver(ctx, d); err != nil {
			return ScenarioDTO{}, fmt.Errorf("save driver %s: %w", d.ID, err)
		}
	}
	for _, e := range deliveries {
		if err := seeder.SaveDelivery(ctx, e); err != nil {
			return ScenarioDTO{}, fmt.Errorf("save delivery %s: %w", e.ID, err)
		}
	}
	return toScenarioDTO(s, len(drivers), len(deliveries)), nil
}

func toScenarioDTO(s Scenario, drivers, deliveries int) ScenarioDTO {
	return ScenarioDTO{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		Drivers:     drivers,
		Deliveries:  deliveries,
	}
}

// =============================================================================
// HANDLERS
// =============================================================================

func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	loc := h.location()
	dtos := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		drivers, deliveries := s.Build(loc)
		dtos[i] = toScenarioDTO(s, len(drivers), len(deliveries))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"scenario_id": current})
}

// LoadScenario replaces all data with a demo dataset. Requires payroll:*.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Authorizer.Authorize(r.Context(), payroll.PermAll); err != nil {
		h.fail(w, r, "Failed to load scenario", err)
		return
	}
	if h.Seeder == nil {
		writeError(w, http.StatusNotImplemented, "Scenarios are not supported by this store", nil)
		return
	}

	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !h.valid(w, req) {
		return
	}
	if _, ok := findScenario(req.ScenarioID); !ok {
		writeError(w, http.StatusNotFound, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	dto, err := SeedScenario(r.Context(), h.Seeder, req.ScenarioID, h.location())
	if err != nil {
		h.currentScenario = ""
		h.fail(w, r, "Failed to load scenario", err)
		return
	}
	h.currentScenario = dto.ID

	logger.FromContext(r.Context(), h.Logger).Info("scenario loaded",
		zap.String("scenario", dto.ID),
		zap.Int("drivers", dto.Drivers),
		zap.Int("deliveries", dto.Deliveries),
	)
	writeJSON(w, http.StatusOK, dto)
}

// ResetData clears every driver, delivery, record and run. Requires payroll:*.
func (h *Handler) ResetData(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Authorizer.Authorize(r.Context(), payroll.PermAll); err != nil {
		h.fail(w, r, "Failed to reset data", err)
		return
	}
	if h.Seeder == nil {
		writeError(w, http.StatusNotImplemented, "Reset is not supported by this store", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.Seeder.Reset(r.Context()); err != nil {
		h.fail(w, r, "Failed to reset data", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// DATASETS
// =============================================================================

func deliveryID(scenario string, n int) string {
	return uuid.NewSHA1(scenarioNamespace, []byte(fmt.Sprintf("%s/%d", scenario, n))).String()
}

func tonnage(v string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(v))
}

// buildMarch2024 mirrors the worked example: for 2024-03 H1 driver X earns
// 225 (15 t) and senior driver Y earns 500 + 165 (11 t, one undated).
func buildMarch2024(loc *time.Location) ([]payroll.Driver, []payroll.DeliveryEvent) {
	at := func(month time.Month, day, hour int) *time.Time {
		t := time.Date(2024, month, day, hour, 0, 0, 0, loc)
		return &t
	}
	created := time.Date(2024, time.February, 28, 9, 0, 0, 0, loc)

	drivers := []payroll.Driver{
		{ID: "X", Name: "Xavier Morel", Role: payroll.RoleDriver, Tier: payroll.TierStandard, Active: true},
		{ID: "Y", Name: "Yara Haddad", Role: payroll.RoleDriver, Tier: payroll.TierSenior, Active: true},
		{ID: "Z", Name: "Zoe Lindqvist", Role: payroll.RoleDriver, Tier: payroll.TierStandard, Active: false},
	}

	n := 0
	next := func(driver payroll.DriverID, status payroll.DeliveryStatus, tons string, date *time.Time, createdAt time.Time) payroll.DeliveryEvent {
		n++
		e := payroll.DeliveryEvent{
			ID:           deliveryID("march-2024", n),
			DriverID:     driver,
			Status:       status,
			DeliveryDate: date,
			CreatedAt:    createdAt,
		}
		if tons != "" {
			e.ExpectedTonnage = tonnage(tons)
		}
		return e
	}

	deliveries := []payroll.DeliveryEvent{
		next("X", payroll.DeliveryDelivered, "10", at(time.March, 4, 10), created),
		next("X", payroll.DeliveryInvoiced, "5", at(time.March, 12, 15), created),
		next("X", payroll.DeliveryPending, "100", at(time.March, 10, 8), created),
		next("X", payroll.DeliveryDelivered, "7", at(time.March, 20, 11), created),
		next("X", payroll.DeliveryDelivered, "", at(time.March, 14, 16), created),
		next("Y", payroll.DeliveryDelivered, "8", at(time.March, 5, 9), created),
		next("Y", payroll.DeliveryInvoiced, "3", nil, time.Date(2024, time.March, 2, 13, 0, 0, 0, loc)),
		next("Y", payroll.DeliveryInProgress, "12", at(time.March, 15, 23), created),
		next("Z", payroll.DeliveryDelivered, "40", at(time.March, 6, 12), created),
		next("", payroll.DeliveryAssigned, "9", at(time.March, 7, 12), created),
	}
	return drivers, deliveries
}

// buildMixedFleet generates a deterministic fleet with roughly two
// deliveries per driver per week from January to June 2024.
func buildMixedFleet(loc *time.Location) ([]payroll.Driver, []payroll.DeliveryEvent) {
	rng := rand.New(rand.NewPCG(2024, 6))
	names := []string{
		"Amara Okafor", "Bruno Salas", "Chen Wei", "Dana Kowalski", "Emeka Obi", "Farah Nasser",
		"Goran Petrovic", "Hana Sato", "Ivan Duarte", "Jun Park", "Kemal Aydin", "Lena Brandt",
	}

	drivers := make([]payroll.Driver, len(names))
	for i, name := range names {
		tier := payroll.TierStandard
		if i%4 == 0 {
			tier = payroll.TierSenior
		}
		drivers[i] = payroll.Driver{
			ID:     payroll.DriverID(fmt.Sprintf("drv-%02d", i+1)),
			Name:   name,
			Role:   payroll.RoleDriver,
			Tier:   tier,
			Active: i != len(names)-1,
		}
	}

	statuses := []payroll.DeliveryStatus{
		payroll.DeliveryDelivered, payroll.DeliveryDelivered, payroll.DeliveryInvoiced,
		payroll.DeliveryInvoiced, payroll.DeliveryInProgress, payroll.DeliveryPending,
	}

	var deliveries []payroll.DeliveryEvent
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, loc)
	end := time.Date(2024, time.July, 1, 0, 0, 0, 0, loc)
	n := 0
	for day := start; day.Before(end); day = day.AddDate(0, 0, 1) {
		for _, d := range drivers {
			if rng.IntN(7) >= 2 {
				continue
			}
			n++
			date := day.Add(time.Duration(6+rng.IntN(12)) * time.Hour)
			tons := decimal.NewFromInt(int64(rng.IntN(2000)+50)).Shift(-2) // 0.50 .. 20.49
			deliveries = append(deliveries, payroll.DeliveryEvent{
				ID:              deliveryID("mixed-fleet", n),
				DriverID:        d.ID,
				Status:          statuses[rng.IntN(len(statuses))],
				ExpectedTonnage: decimal.NewNullDecimal(tons),
				DeliveryDate:    &date,
				CreatedAt:       date.Add(-48 * time.Hour),
			})
		}
	}
	return drivers, deliveries
}
