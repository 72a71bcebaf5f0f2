package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"demosim/internal/model"
)

func TestRecorderCountsOutcomesAndSteps(t *testing.T) {
	r := NewRecorder(false)

	r.ObserveStep(model.StepMetrics{Births: 3, Deaths: 1, PopulationSize: 10})
	r.ObserveStep(model.StepMetrics{Births: 0, Deaths: 4, PopulationSize: 6})
	r.ObserveOutcome(model.StatusSuccessful, 20*time.Millisecond)
	r.ObserveOutcome(model.StatusSkipped, 0)
	r.ObserveOutcome(model.StatusError, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.steps))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.births))
	assert.Equal(t, 5.0, testutil.ToFloat64(r.deaths))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("successful")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("error")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.duration))
}

func TestRecorderInFlight(t *testing.T) {
	r := NewRecorder(false)
	done := r.InFlight()
	assert.Equal(t, 1.0, testutil.ToFloat64(r.inFlight))
	done()
	assert.Equal(t, 0.0, testutil.ToFloat64(r.inFlight))
}

func TestRecorderHandler(t *testing.T) {
	r := NewRecorder(true)
	r.ObserveOutcome(model.StatusSuccessful, time.Second)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `demosim_runs_total{status="successful"} 1`), body)
	assert.True(t, strings.Contains(body, "demosim_run_duration_seconds_count 1"))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.ObserveStep(model.StepMetrics{Births: 1})
	r.ObserveOutcome(model.StatusError, time.Second)
	r.InFlight()()
	assert.Nil(t, r.Registry())

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
