package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hogsim/internal/collector"
	"hogsim/internal/core"
)

func TestReport_CountsActionsAndSessions(t *testing.T) {
	m := New()
	m.Report(core.Event{Step: "land", Status: core.StatusSucceeded, Duration: 300 * time.Millisecond})
	m.Report(core.Event{Step: "land", Status: core.StatusSucceeded})
	m.Report(core.Event{Step: "rage_click", Status: core.StatusSkipped})
	m.Report(core.Event{Scenario: "returning_user", Status: core.StatusFailed})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Actions.WithLabelValues("land", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Actions.WithLabelValues("rage_click", "skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Sessions.WithLabelValues("returning_user", "failed")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.ActionDuration))
}

func TestObserveSummary(t *testing.T) {
	m := New()
	at := time.Date(2024, 5, 4, 12, 0, 0, 0, time.UTC)
	m.ObserveSummary(collector.Summary{Due: 4, Deferred: 2, EventsSent: 40, EventsFailed: 3}, at)

	assert.Equal(t, 4.0, testutil.ToFloat64(m.PersonasDue))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Deferred))
	assert.Equal(t, 40.0, testutil.ToFloat64(m.Events.WithLabelValues("sent")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Events.WithLabelValues("failed")))
	assert.Equal(t, float64(at.Unix()), testutil.ToFloat64(m.LastRun))
}

func TestNew_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.Report(core.Event{Step: "land", Status: core.StatusSucceeded})
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Actions.WithLabelValues("land", "succeeded")))
}

func TestPush(t *testing.T) {
	var (
		mu     sync.Mutex
		path   string
		method string
		body   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		path, method, body = r.URL.Path, r.Method, string(data)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := New()
	m.PersonasDue.Set(3)
	require.NoError(t, m.Push(context.Background(), srv.URL))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/"+JobName, path)
	assert.True(t, strings.Contains(body, "hogsim_personas_due"))
}

func TestPush_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := New().Push(context.Background(), srv.URL)
	assert.ErrorContains(t, err, "pushing metrics")
}
