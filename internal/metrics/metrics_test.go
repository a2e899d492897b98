package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordSyncRun(t *testing.T) {
	before := testutil.ToFloat64(syncRunsTotal.WithLabelValues("full", "succeeded"))
	RecordSyncRun("full", "succeeded", 3, 1, 2, time.Second)
	after := testutil.ToFloat64(syncRunsTotal.WithLabelValues("full", "succeeded"))
	assert.Equal(t, before+1, after)
}

func TestHandlerServesQueryMetrics(t *testing.T) {
	RecordQuery("ok")
	ObserveStage("recall", 10*time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "chimera_query_outcomes_total"))
	assert.True(t, strings.Contains(body, "chimera_query_stage_seconds"))
}
