package observability

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func TestMetricsExposition(t *testing.T) {
	m := NewMetrics(testLogger)
	m.PagesVisited.Add(3)
	m.Downloaded.Add(2)
	m.ActiveWorkers.Store(1)

	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, body, "# TYPE kitmanual_pages_visited_total counter\nkitmanual_pages_visited_total 3\n")
	assert.Contains(t, body, "kitmanual_downloads_total 2\n")
	assert.Contains(t, body, "# TYPE kitmanual_active_workers gauge\n")

	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap["pages_visited"])
	assert.Equal(t, int64(0), snap["download_failed"])
}
