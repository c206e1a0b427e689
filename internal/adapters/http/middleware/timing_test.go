package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runclub/internal/adapters/http/perf"
)

func serveTimed(collector *perf.Collector, h http.HandlerFunc, method, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	Timing(collector)(h).ServeHTTP(rr, httptest.NewRequest(method, path, nil))
	return rr
}

func TestTiming_RecordsStatus(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    int
	}{
		{"explicit created", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusCreated) }, http.StatusCreated},
		{"run full", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusConflict) }, http.StatusConflict},
		{"implicit ok", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok")) }, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collector := perf.NewCollector(10)
			rr := serveTimed(collector, tt.handler, "POST", "/api/runs/run-1/bookings")
			assert.Equal(t, tt.want, rr.Code)
			require.EqualValues(t, 1, collector.TotalRecorded())

			snap := collector.Snapshot(time.Now().Add(-time.Minute), 5)
			require.Len(t, snap.SlowestPaths, 1)
			assert.Equal(t, "POST /api/runs/run-1/bookings", snap.SlowestPaths[0].Path)
			assert.GreaterOrEqual(t, snap.SlowestPaths[0].AvgMs, 0.0)
		})
	}
}

func TestTiming_CountsConflicts(t *testing.T) {
	collector := perf.NewCollector(10)
	full := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusConflict) }
	boom := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) }
	serveTimed(collector, full, "POST", "/api/runs/run-1/bookings")
	serveTimed(collector, full, "POST", "/api/runs/run-1/lirf")
	serveTimed(collector, boom, "GET", "/api/runs")

	snap := collector.Snapshot(time.Now().Add(-time.Minute), 5)
	assert.Equal(t, 3, snap.Requests)
	assert.Equal(t, 2, snap.Conflicts)
	assert.Equal(t, 1, snap.ServerErrors)
}

// Requests are grouped by chi route pattern, not by concrete run id.
func TestTiming_UsesRoutePattern(t *testing.T) {
	collector := perf.NewCollector(100)
	r := chi.NewRouter()
	r.Use(Timing(collector))
	r.Get("/api/runs/{runID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for _, id := range []string{"run-1", "run-2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/runs/"+id, nil))
	}

	snap := collector.Snapshot(time.Now().Add(-time.Minute), 10)
	require.Len(t, snap.SlowestPaths, 1)
	assert.Equal(t, "GET /api/runs/{runID}", snap.SlowestPaths[0].Path)
	assert.Equal(t, 2, snap.SlowestPaths[0].Count)
}

func TestTiming_NilCollector(t *testing.T) {
	rr := serveTimed(nil, func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }, "DELETE", "/api/bookings/b-1")
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

// A pooled writer must not carry the previous request's status.
func TestTiming_PoolDoesNotLeakStatus(t *testing.T) {
	collector := perf.NewCollector(100)
	rr := serveTimed(collector, func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) }, "GET", "/api/fail")
	require.Equal(t, http.StatusInternalServerError, rr.Code)

	rr = serveTimed(collector, func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok")) }, "GET", "/api/ok")
	assert.Equal(t, http.StatusOK, rr.Code)
	snap := collector.Snapshot(time.Now().Add(-time.Minute), 10)
	assert.Equal(t, 1, snap.ServerErrors)
}

// The deferred record still runs when the handler panics; recovery is chi's job.
func TestTiming_HandlerPanic(t *testing.T) {
	collector := perf.NewCollector(100)
	defer func() {
		assert.NotNil(t, recover(), "panic should propagate")
		assert.EqualValues(t, 1, collector.TotalRecorded())
	}()
	serveTimed(collector, func(w http.ResponseWriter, r *http.Request) { panic("boom") }, "GET", "/api/panic")
}

func TestSetSlowRequestThreshold(t *testing.T) {
	t.Cleanup(func() { SetSlowRequestThreshold(0) })
	SetSlowRequestThreshold(time.Second)
	assert.Equal(t, time.Second, time.Duration(atomic.LoadInt64(&slowRequestNanos)))
	SetSlowRequestThreshold(-1)
	assert.Equal(t, DefaultSlowRequest, time.Duration(atomic.LoadInt64(&slowRequestNanos)))
}

func BenchmarkTiming(b *testing.B) {
	collector := perf.NewCollector(perf.DefaultRingSize)
	handler := Timing(collector)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest("GET", "/api/runs", nil)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
}
