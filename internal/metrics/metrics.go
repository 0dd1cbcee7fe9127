package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by the counters.
const (
	OutcomeCreated            = "created"
	OutcomeUpdated            = "updated"
	OutcomeLinked             = "linked"
	OutcomeInvalid            = "invalid"
	OutcomeBanned             = "banned"
	OutcomeSpam               = "spam"
	OutcomeNotificationFailed = "notification_failed"
	OutcomeError              = "error"
	OutcomeOK                 = "ok"
	OutcomeWarning            = "warning"
)

// Metrics exposes Prometheus collectors for the contact and pricing flows.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	contactForm     *prometheus.CounterVec
	accountEvents   *prometheus.CounterVec
	priceSummaries  *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the instance registered with the global Prometheus registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// MustNewMetrics builds and registers the collectors on reg, panicking on
// duplicate registration. Tests should pass a fresh prometheus.NewRegistry().
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		contactForm: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "langschool",
			Subsystem: "contacts",
			Name:      "form_submissions_total",
			Help:      "Contact form submissions by outcome.",
		}, []string{"outcome"}),
		accountEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "langschool",
			Subsystem: "contacts",
			Name:      "account_events_total",
			Help:      "Account events reconciled into contacts by event and outcome.",
		}, []string{"event", "outcome"}),
		priceSummaries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "langschool",
			Subsystem: "pricing",
			Name:      "summary_recomputes_total",
			Help:      "Price summary recomputations by outcome.",
		}, []string{"outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "langschool",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(m.contactForm, m.accountEvents, m.priceSummaries, m.requestDuration)
	return m
}

// ContactForm counts one contact form submission.
func (m *Metrics) ContactForm(outcome string) {
	if m == nil {
		return
	}
	m.contactForm.WithLabelValues(outcome).Inc()
}

// AccountEvent counts one reconciled account event.
func (m *Metrics) AccountEvent(event, outcome string) {
	if m == nil {
		return
	}
	m.accountEvents.WithLabelValues(event, outcome).Inc()
}

// PriceSummary counts one summary recompute.
func (m *Metrics) PriceSummary(outcome string) {
	if m == nil {
		return
	}
	m.priceSummaries.WithLabelValues(outcome).Inc()
}

// GinMiddleware records request latency keyed by the matched route template.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
