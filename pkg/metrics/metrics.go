package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var HistogramBuckets = []float64{
	// fast (0 - 500ms)
	25, 50, 75, 100, 150, 200, 300, 400, 500,
	// medium (500ms - 2s)
	750, 1000, 1250, 1500, 1750, 2000,
	// slow, gateway timeouts included (2s - 30s)
	2500, 3000, 4000, 5000, 7500, 10000, 15000, 20000, 30000,
}

// Metric describes one prometheus collector: name, help text, type and labels.
type Metric struct {
	MetricCollector prometheus.Collector
	ID              string
	Name            string
	Description     string
	Type            string
	Args            []string
}

// NewMetric builds the prometheus.Collector matching Metric.Type.
func NewMetric(m *Metric, subsystem string) prometheus.Collector {
	switch m.Type {
	case "counter_vec":
		return prometheus.NewCounterVec(prometheus.CounterOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description}, m.Args)
	case "counter":
		return prometheus.NewCounter(prometheus.CounterOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description})
	case "gauge_vec":
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description}, m.Args)
	case "histogram_vec":
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description, Buckets: HistogramBuckets}, m.Args)
	case "summary_vec":
		return prometheus.NewSummaryVec(prometheus.SummaryOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description}, m.Args)
	}
	return nil
}

// Business metrics. Registered once by Registry.
var (
	WebhookOutcome = &Metric{
		ID:          "webhookOutcome",
		Name:        "webhook_total",
		Description: "Gateway webhooks received, partitioned by gateway and outcome.",
		Type:        "counter_vec",
		Args:        []string{"gateway", "outcome"},
	}
	ReconcileResult = &Metric{
		ID:          "reconcileResult",
		Name:        "reconcile_total",
		Description: "Reconciliation results, partitioned by source, event kind and result.",
		Type:        "counter_vec",
		Args:        []string{"source", "kind", "result"},
	}
	GatewayLatency = &Metric{
		ID:          "gatewayLatency",
		Name:        "gateway_dur_ms",
		Description: "Payment gateway call latency in milliseconds.",
		Type:        "histogram_vec",
		Args:        []string{"gateway", "op", "outcome"},
	}
	ExpiredTotal = &Metric{
		ID:          "expiredTotal",
		Name:        "expired_total",
		Description: "Payments and links moved to expired by the expiry job.",
		Type:        "counter_vec",
		Args:        []string{"entity"},
	}
)

var businessMetrics = []*Metric{WebhookOutcome, ReconcileResult, GatewayLatency, ExpiredTotal}

// Recorder is the narrow interface services use to emit business metrics.
// A nil *Registry is a valid no-op Recorder.
type Recorder interface {
	Webhook(gateway, outcome string)
	Reconcile(source, kind, result string)
	GatewayCall(gateway, op, outcome string, start time.Time)
	Expired(entity string, n int)
}

// Registry owns the business collectors.
type Registry struct {
	webhook   *prometheus.CounterVec
	reconcile *prometheus.CounterVec
	gateway   *prometheus.HistogramVec
	expired   *prometheus.CounterVec
}

// NewRegistry registers business metrics on reg. Collectors that are already
// registered are reused so tests can build several registries.
func NewRegistry(reg prometheus.Registerer, subsystem string) *Registry {
	r := &Registry{}
	for _, def := range businessMetrics {
		c := NewMetric(def, subsystem)
		if err := reg.Register(c); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				c = are.ExistingCollector
			}
		}
		def.MetricCollector = c
		switch def {
		case WebhookOutcome:
			r.webhook = c.(*prometheus.CounterVec)
		case ReconcileResult:
			r.reconcile = c.(*prometheus.CounterVec)
		case GatewayLatency:
			r.gateway = c.(*prometheus.HistogramVec)
		case ExpiredTotal:
			r.expired = c.(*prometheus.CounterVec)
		}
	}
	return r
}

func (r *Registry) Webhook(gateway, outcome string) {
	if r == nil {
		return
	}
	r.webhook.WithLabelValues(gateway, outcome).Inc()
}

func (r *Registry) Reconcile(source, kind, result string) {
	if r == nil {
		return
	}
	r.reconcile.WithLabelValues(source, kind, result).Inc()
}

func (r *Registry) GatewayCall(gateway, op, outcome string, start time.Time) {
	if r == nil {
		return
	}
	r.gateway.WithLabelValues(gateway, op, outcome).Observe(MillisecondsSince(start))
}

func (r *Registry) Expired(entity string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.expired.WithLabelValues(entity).Add(float64(n))
}

// Nop is a Recorder that drops everything.
type Nop struct{}

func (Nop) Webhook(string, string)                        {}
func (Nop) Reconcile(string, string, string)              {}
func (Nop) GatewayCall(string, string, string, time.Time) {}
func (Nop) Expired(string, int)                           {}

const (
	RefererKey = "X-Referer"
	subsystem  = "sari"
)
