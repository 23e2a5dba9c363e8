package jobs

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/sari/payments/internal/app/service/ledger"
	"github.com/sari/payments/internal/app/service/reconcile"
	"github.com/sari/payments/internal/models"
	"github.com/sari/payments/internal/platform/tap"
	"github.com/sari/payments/pkg/config"
	"github.com/sari/payments/pkg/logctx"
	"github.com/sari/payments/pkg/metrics"
	"github.com/sari/payments/pkg/tool"
)

// ChargeVerifier reads the gateway's current view of a charge.
type ChargeVerifier interface {
	VerifyPayment(ctx context.Context, chargeID string) (*tap.ChargeStatusResult, error)
}

// ExpiryJob moves overdue pending payments and payment links to expired.
// Each overdue payment is checked against the gateway first: a charge the
// gateway already settled is reconciled to that status instead, and a
// payment is only expired locally when the gateway has not captured it.
type ExpiryJob struct {
	store      ledger.Store
	gateway    ChargeVerifier
	reconciler *reconcile.Reconciler
	rec        metrics.Recorder
	log        *zap.SugaredLogger
	batchSize  int
	now        func() time.Time
}

type ExpirySummary struct {
	Payments int
	// Reconciled counts overdue payments the gateway had already settled.
	Reconciled int
	Deferred   int
	Links      int64
}

func NewExpiryJob(cfg *config.Config, store ledger.Store, gateway ChargeVerifier, reconciler *reconcile.Reconciler, rec metrics.Recorder, log *zap.SugaredLogger) *ExpiryJob {
	batch := cfg.Jobs.ExpiryBatchSize
	if batch <= 0 {
		batch = 200
	}
	return &ExpiryJob{store: store, gateway: gateway, reconciler: reconciler, rec: rec, log: log, batchSize: batch, now: time.Now}
}

func (j *ExpiryJob) Run(ctx context.Context) (*ExpirySummary, error) {
	log := logctx.FromCtx(ctx, j.log)
	now := j.now()
	sum := &ExpirySummary{}

	due, err := j.store.ListExpirablePayments(ctx, now, j.batchSize)
	if err != nil {
		return nil, err
	}
	var errs []error
	for _, p := range due {
		ev, err := j.gatewayEvent(ctx, p)
		if err != nil {
			log.Warnw("gateway status unavailable, expiry deferred", "payment_id", p.ID, "charge_id", p.ChargeID, "err", err)
			sum.Deferred++
			errs = append(errs, err)
			continue
		}
		res, err := j.reconciler.Apply(ctx, ev, models.StatusChangeSourceExpiryJob)
		if err != nil {
			log.Errorw("failed to expire payment", "payment_id", p.ID, "err", err)
			errs = append(errs, err)
			continue
		}
		if res.Outcome != reconcile.OutcomeApplied {
			continue
		}
		if _, expired := ev.(reconcile.PaymentExpired); expired {
			sum.Payments++
		} else {
			sum.Reconciled++
		}
	}
	j.rec.Expired(string(models.StatusLogEntityPayment), sum.Payments)

	sum.Links, err = j.store.ExpireLinks(ctx, now)
	if err != nil {
		errs = append(errs, err)
	}
	j.rec.Expired(string(models.StatusLogEntityPaymentLink), int(sum.Links))

	if sum.Payments > 0 || sum.Reconciled > 0 || sum.Links > 0 {
		log.Infow("expired overdue records", "payments", sum.Payments, "reconciled", sum.Reconciled, "links", sum.Links)
	}
	return sum, errors.Join(errs...)
}

// gatewayEvent turns the gateway's status of an overdue charge into the
// event to apply. Pending or unknown-to-the-gateway charges expire.
func (j *ExpiryJob) gatewayEvent(ctx context.Context, p *models.Payment) (reconcile.Event, error) {
	st, err := j.gateway.VerifyPayment(ctx, p.ChargeID)
	if err != nil {
		var gerr *tap.GatewayError
		if errors.As(err, &gerr) && gerr.HTTPStatus == http.StatusNotFound {
			return reconcile.PaymentExpired{ChargeID: p.ChargeID}, nil
		}
		return nil, err
	}
	if st.Status == models.PaymentStatusPending {
		return reconcile.PaymentExpired{ChargeID: p.ChargeID}, nil
	}
	return reconcile.PaymentEvent(p.ChargeID, st.Status, st.Amount, st.Currency, st.GatewayStatus), nil
}

// cronLogger routes cron's own logging through zap.
type cronLogger struct{ log *zap.SugaredLogger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "err", err)...)
}

func registerExpiryJob(lc fx.Lifecycle, cfg *config.Config, job *ExpiryJob, log *zap.SugaredLogger) error {
	if cfg.Jobs.ExpirySpec == "" {
		log.Infow("expiry job disabled")
		return nil
	}
	clog := cronLogger{log: log.Named("cron")}
	c := cron.New(cron.WithLogger(clog), cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)))
	_, err := c.AddFunc(cfg.Jobs.ExpirySpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		ctx = context.WithValue(ctx, logctx.KeyTraceID, tool.GenerateUUIDV7())
		if _, err := job.Run(ctx); err != nil {
			log.Errorw("expiry job run failed", "err", err)
		}
	})
	if err != nil {
		return err
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			c.Start()
			log.Infow("expiry job scheduled", "spec", cfg.Jobs.ExpirySpec)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			select {
			case <-c.Stop().Done():
			case <-ctx.Done():
			}
			return nil
		},
	})
	return nil
}

var Module = fx.Options(
	fx.Provide(
		NewExpiryJob,
		func(c *tap.Client) ChargeVerifier { return c },
	),
	fx.Invoke(registerExpiryJob),
)
