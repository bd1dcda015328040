package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
)

var period = generic.MustResolvePeriod(2024, time.March, generic.FirstHalf, time.UTC)

func TestPrometheus_RunCompleted(t *testing.T) {
	p := NewPrometheus("test")

	p.RunCompleted(period, 5, 0, 2*time.Second)
	p.RunCompleted(period, 3, 2, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(p.runsTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.runsTotal.WithLabelValues("completed_with_errors")))
	assert.Equal(t, 8.0, testutil.ToFloat64(p.driversSettled))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.driverFailures))
	assert.Greater(t, testutil.ToFloat64(p.lastRun), 0.0)
}

func TestPrometheus_DraftsAndFinalize(t *testing.T) {
	p := NewPrometheus("test")

	p.DraftUpserted(payroll.OutcomeCreated)
	p.DraftUpserted(payroll.OutcomeCreated)
	p.DraftUpserted(payroll.OutcomeSkipped)
	p.RecordsFinalized(4)
	p.RecordsFinalized(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.draftUpserts.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.draftUpserts.WithLabelValues("skipped")))
	assert.Equal(t, 4.0, testutil.ToFloat64(p.recordsFinalized))
}

func TestPrometheus_Handler(t *testing.T) {
	p := NewPrometheus("")
	p.DraftUpserted(payroll.OutcomeUpdated)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	assert.True(t, strings.Contains(text, `payroll_draft_upserts_total{outcome="updated"} 1`), text)
	assert.Contains(t, text, "go_goroutines")
}
