package metrics

/* based on https://github.com/zsais/go-gin-prometheus
edits:
- zap logger instead of log
- metrics served from a dedicated listener managed by fx
- url label is the route template to bound cardinality
*/

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/sari/payments/pkg/config"
)

var reqCnt = &Metric{
	ID:          "reqCnt",
	Name:        "req_total",
	Description: "How many HTTP requests processed, partitioned by status code and HTTP method.",
	Type:        "counter_vec",
	Args:        []string{"code", "method", "url", "ref"},
}

var reqDur = &Metric{
	ID:          "reqDur",
	Name:        "req_dur_ms",
	Description: "The HTTP request latencies in milliseconds.",
	Type:        "histogram_vec",
	Args:        []string{"code", "method", "url", "ref"},
}

var resSz = &Metric{
	ID:          "resSz",
	Name:        "resp_sz_bytes",
	Description: "The HTTP response sizes in bytes.",
	Type:        "summary_vec",
	Args:        []string{"code", "method", "url", "ref"},
}

var defaultMetricPath = "/metrics"

// Prometheus holds the HTTP request collectors.
type Prometheus struct {
	reqCnt *prometheus.CounterVec
	reqDur *prometheus.HistogramVec
	resSz  *prometheus.SummaryVec

	MetricsPath string
	log         *zap.SugaredLogger
}

// NewPrometheus registers the HTTP collectors on reg.
func NewPrometheus(reg prometheus.Registerer, log *zap.SugaredLogger) *Prometheus {
	p := &Prometheus{MetricsPath: defaultMetricPath, log: log}
	for _, def := range []*Metric{reqCnt, reqDur, resSz} {
		c := NewMetric(def, subsystem)
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				c = are.ExistingCollector
			} else {
				log.Errorf("%s could not be registered in Prometheus, err=%v", def.Name, err)
			}
		}
		switch def {
		case reqCnt:
			p.reqCnt = c.(*prometheus.CounterVec)
		case reqDur:
			p.reqDur = c.(*prometheus.HistogramVec)
		case resSz:
			p.resSz = c.(*prometheus.SummaryVec)
		}
		def.MetricCollector = c
	}
	return p
}

// HandlerFunc records request count, latency and response size.
func (p *Prometheus) HandlerFunc() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == p.MetricsPath {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		url := c.FullPath()
		if url == "" {
			url = "unmatched"
		}
		ref := c.Request.Header.Get(RefererKey)

		p.reqDur.WithLabelValues(status, c.Request.Method, url, ref).Observe(MillisecondsSince(start))
		p.reqCnt.WithLabelValues(status, c.Request.Method, url, ref).Inc()
		p.resSz.WithLabelValues(status, c.Request.Method, url, ref).Observe(float64(c.Writer.Size()))
	}
}

func MillisecondsSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}

func newRegistry() *Registry {
	return NewRegistry(prometheus.DefaultRegisterer, subsystem)
}

func newPrometheus(log *zap.SugaredLogger) *Prometheus {
	return NewPrometheus(prometheus.DefaultRegisterer, log)
}

// runMetricsServer serves /metrics on cfg.MetricsAddr, away from the API
// listener so scrapes stay out of the access log.
func runMetricsServer(lc fx.Lifecycle, cfg *config.Config, log *zap.SugaredLogger) {
	if cfg.MetricsAddr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle(defaultMetricPath, promhttp.Handler())
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorw("metrics server error", "err", err)
				}
			}()
			log.Infow("metrics started", "addr", cfg.MetricsAddr)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(
		newRegistry,
		fx.Annotate(func(r *Registry) *Registry { return r }, fx.As(new(Recorder))),
		newPrometheus,
	),
	fx.Invoke(runMetricsServer),
)
