package payroll

import (
	"time"

	"github.com/warp/payroll-engine/generic"
)

// Recorder receives settlement telemetry. See metrics.Prometheus.
type Recorder interface {
	RunCompleted(period generic.Period, processed, failed int, elapsed time.Duration)
	DraftUpserted(outcome UpsertOutcome)
	RecordsFinalized(n int)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) RunCompleted(generic.Period, int, int, time.Duration) {}
func (NopRecorder) DraftUpserted(UpsertOutcome)                         {}
func (NopRecorder) RecordsFinalized(int)                                {}
