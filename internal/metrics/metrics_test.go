package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	r.Gate("executed")
	r.Document("CASE_SUMMARY", "COMPLETED")
	r.Notification("email", "sent")
	r.Violation("forbidden_phrase")
	r.Turn("READY")
	r.GenerationSeconds("template", 0.2)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}

func TestCountersAndHandler(t *testing.T) {
	r := New()
	r.Gate("executed")
	r.Gate("executed")
	r.Gate("skipped")
	r.Document("CASE_SUMMARY", "FAILED")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `disputehub_gate_executions_total{outcome="executed"} 2`)
	assert.Contains(t, string(body), `disputehub_gate_executions_total{outcome="skipped"} 1`)
	assert.Contains(t, string(body), `disputehub_documents_total{status="FAILED",type="CASE_SUMMARY"} 1`)
}
