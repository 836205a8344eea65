package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthAttemptCounts(t *testing.T) {
	r := NewRecorder()

	r.AuthAttempt(OutcomeSuccess)
	r.AuthAttempt(OutcomeSuccess)
	r.AuthAttempt(OutcomeInvalidCredentials)

	assert.Equal(t, float64(2), testutil.ToFloat64(r.authAttempts.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.authAttempts.WithLabelValues(OutcomeInvalidCredentials)))
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := NewRecorder()
	r.AuthAttempt(OutcomeSuccess)
	r.ResponseIssued()
	r.ObserveSigning(25 * time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	r.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "samlidp_auth_attempts_total")
	assert.Contains(t, body, "samlidp_responses_issued_total")
	assert.Contains(t, body, "samlidp_signing_duration_seconds")
}

func TestNilRecorderSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.AuthAttempt(OutcomeError)
		r.ResponseIssued()
		r.ObserveSigning(time.Millisecond)
	})
}
