package web

import (
	"net/http"
	"strconv"
	"time"
)

// handleAdminPerf handles GET /api/admin/perf?minutes=N. It reports request
// and query timings recorded over the last N minutes (default 60).
func handleAdminPerf(w http.ResponseWriter, r *http.Request) {
	if perfCollector == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "performance collection is disabled"})
		return
	}
	window := time.Hour
	if n, err := strconv.Atoi(r.URL.Query().Get("minutes")); err == nil && n > 0 && n <= 24*60 {
		window = time.Duration(n) * time.Minute
	}
	writeJSON(w, http.StatusOK, perfCollector.Snapshot(timeNow().Add(-window), 10))
}
