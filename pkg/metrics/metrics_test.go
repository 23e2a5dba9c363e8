package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegistry_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg, "test")

	r.Webhook("tap", "handled")
	r.Webhook("tap", "handled")
	r.Webhook("tap", "rejected")
	r.Reconcile("webhook", "payment_captured", "applied")
	r.Expired("payment", 3)
	r.Expired("payment", 0)
	r.GatewayCall("tap", "create_charge", "ok", time.Now())

	require.Equal(t, 2.0, testutil.ToFloat64(r.webhook.WithLabelValues("tap", "handled")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.webhook.WithLabelValues("tap", "rejected")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.reconcile.WithLabelValues("webhook", "payment_captured", "applied")))
	require.Equal(t, 3.0, testutil.ToFloat64(r.expired.WithLabelValues("payment")))

	// second registry on the same registerer reuses collectors
	r2 := NewRegistry(reg, "test")
	r2.Webhook("tap", "handled")
	require.Equal(t, 3.0, testutil.ToFloat64(r.webhook.WithLabelValues("tap", "handled")))
}

func TestRegistry_NilIsNoop(t *testing.T) {
	var r *Registry
	require.NotPanics(t, func() {
		r.Webhook("tap", "handled")
		r.Reconcile("verify", "x", "y")
		r.GatewayCall("tap", "op", "ok", time.Now())
		r.Expired("payment", 1)
	})
}

func TestPrometheus_HandlerFuncUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, zap.NewNop().Sugar())

	r := gin.New()
	r.Use(p.HandlerFunc())
	r.POST("/api/v1/public/pay_link/:link_id", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/public/pay_link/pl_abc", nil))
	require.Equal(t, http.StatusOK, w.Code)

	require.Equal(t, 1.0, testutil.ToFloat64(p.reqCnt.WithLabelValues("200", "POST", "/api/v1/public/pay_link/:link_id", "")))
}
