// Package metrics exposes Prometheus instrumentation for the authentication
// flow.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for authentication attempts.
const (
	OutcomeSuccess            = "success"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeMissingField       = "missing_field"
	OutcomeMalformedRequest   = "malformed_request"
	OutcomeMissingAttribute   = "missing_attribute"
	OutcomeReplay             = "replay"
	OutcomeError              = "error"
)

// Recorder owns the IdP's metric vectors, registered against its own
// registry so the /metrics endpoint only exposes what we emit.
type Recorder struct {
	registry *prometheus.Registry

	authAttempts    *prometheus.CounterVec
	responsesIssued prometheus.Counter
	signingDuration prometheus.Histogram
}

// NewRecorder creates a Recorder with a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	return &Recorder{
		registry: reg,
		authAttempts: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "samlidp",
			Name:      "auth_attempts_total",
			Help:      "Authentication attempts by outcome.",
		}, []string{"outcome"}),
		responsesIssued: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "samlidp",
			Name:      "responses_issued_total",
			Help:      "Signed SAML responses issued.",
		}),
		signingDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: "samlidp",
			Name:      "signing_duration_seconds",
			Help:      "Time spent producing XML signatures.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// AuthAttempt records one authentication attempt outcome.
func (r *Recorder) AuthAttempt(outcome string) {
	if r == nil {
		return
	}
	r.authAttempts.WithLabelValues(outcome).Inc()
}

// ResponseIssued records one issued response.
func (r *Recorder) ResponseIssued() {
	if r == nil {
		return
	}
	r.responsesIssued.Inc()
}

// ObserveSigning records how long a signing operation took.
func (r *Recorder) ObserveSigning(d time.Duration) {
	if r == nil {
		return
	}
	r.signingDuration.Observe(d.Seconds())
}

// Handler serves the recorder's registry in Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
