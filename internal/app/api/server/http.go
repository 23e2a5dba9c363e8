package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sari/payments/docs"
	"github.com/sari/payments/internal/app/api/handlers"
	mw "github.com/sari/payments/internal/app/api/middleware"
	"github.com/sari/payments/internal/app/service/payment"
	"github.com/sari/payments/internal/app/service/statistics"
	"github.com/sari/payments/internal/app/service/webhook"
	cfgpkg "github.com/sari/payments/pkg/config"
	"github.com/sari/payments/pkg/metrics"
)

func newEngine(cfg *cfgpkg.Config, tp trace.TracerProvider, prom *metrics.Prometheus) *gin.Engine {
	if cfg.Env == cfgpkg.EnvProd {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(cfg.Tracing.ServiceName, otelgin.WithTracerProvider(tp)))
	// Request logger & access log are attached per group in registerRoutes.
	r.Use(mw.TraceMiddleware())
	r.Use(prom.HandlerFunc())
	return r
}

type routeDeps struct {
	fx.In

	Log      *zap.SugaredLogger
	Cfg      *cfgpkg.Config
	DB       *gorm.DB
	Payments *payment.Service
	Stats    *statistics.Service
	Webhooks *webhook.Service
}

func registerRoutes(r *gin.Engine, d routeDeps) {
	log := d.Log

	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(log))
	handlers.RegisterHealthRoutes(pub, d.DB)
	// Swagger UI
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	apiV1 := r.Group("/api/v1")
	apiV1.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(log))

	merchant := apiV1.Group("/merchant")
	merchant.Use(mw.AuthMiddleware(d.Cfg.Auth.JWTSecret, log))
	handlers.RegisterMerchantRoutes(merchant, d.Payments, d.Stats, log)

	handlers.RegisterPublicRoutes(apiV1.Group("/public"), d.Payments, log)

	// Gateway callbacks authenticate by signature, not bearer token.
	webhooks := r.Group("/api/v2/payment/webhook")
	webhooks.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(log))
	handlers.RegisterPaymentWebhookRoutes(webhooks, d.Webhooks, log)
}

func runServer(lc fx.Lifecycle, shutdowner fx.Shutdowner, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorf("server error: %v", err)
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
