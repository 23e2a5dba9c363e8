package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/sari/payments/internal/app/api/server"
	"github.com/sari/payments/internal/app/jobs"
	"github.com/sari/payments/internal/app/service/ledger"
	notificationlog "github.com/sari/payments/internal/app/service/notification_log"
	"github.com/sari/payments/internal/app/service/payment"
	"github.com/sari/payments/internal/app/service/reconcile"
	"github.com/sari/payments/internal/app/service/statistics"
	"github.com/sari/payments/internal/app/service/statuslog"
	"github.com/sari/payments/internal/app/service/webhook"
	"github.com/sari/payments/internal/platform/cache"
	"github.com/sari/payments/internal/platform/db"
	"github.com/sari/payments/internal/platform/events"
	"github.com/sari/payments/internal/platform/tap"
	"github.com/sari/payments/pkg/config"
	"github.com/sari/payments/pkg/logger"
	"github.com/sari/payments/pkg/metrics"
	"github.com/sari/payments/pkg/tracing"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 30 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	metrics.Module,
	tracing.Module,
	db.Module,
	cache.Module,
	events.Module,
	tap.Module,
	ledger.Module,
	statuslog.Module,
	notificationlog.Module,
	reconcile.Module,
	webhook.Module,
	payment.Module,
	statistics.Module,
	jobs.Module,
	server.Module,
)
