package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/sari/payments/internal/app/service/notification_log"
	"github.com/sari/payments/internal/app/service/reconcile"
	"github.com/sari/payments/internal/models"
	"github.com/sari/payments/internal/platform/cache"
	"github.com/sari/payments/internal/platform/tap"
	"github.com/sari/payments/pkg/config"
	"github.com/sari/payments/pkg/logctx"
	"github.com/sari/payments/pkg/metrics"
)

const (
	Gateway = "tap"
	channel = "webhook"

	defaultUnknownChargeRetry = 30 * time.Minute
)

// ErrChargeNotRecorded asks the gateway to redeliver a notification for a
// recent charge whose ledger row is not committed yet.
var ErrChargeNotRecorded = errors.New("charge not recorded yet")

// Service turns a raw gateway callback into a ledger change. The payload is
// only parsed after its signature verifies.
type Service struct {
	verifier   *Verifier
	header     string
	reconciler *reconcile.Reconciler
	dedup      cache.Deduper
	logs       notification_log.Saver
	rec        metrics.Recorder
	log        *zap.SugaredLogger
	now        func() time.Time

	unknownChargeRetry time.Duration
}

func NewService(verifier *Verifier, header string, reconciler *reconcile.Reconciler, dedup cache.Deduper, logs notification_log.Saver, rec metrics.Recorder, log *zap.SugaredLogger) *Service {
	if header == "" {
		header = "hashstring"
	}
	return &Service{
		verifier:   verifier,
		header:     header,
		reconciler: reconciler,
		dedup:      dedup,
		logs:       logs,
		rec:        rec,
		log:        log,
		now:        time.Now,

		unknownChargeRetry: defaultUnknownChargeRetry,
	}
}

// SignatureHeader is the request header carrying the gateway signature.
func (s *Service) SignatureHeader() string { return s.header }

// Handle verifies and applies one delivery. A nil error means the delivery
// can be acknowledged; ErrInvalidSignature and ErrConfiguration mean it was
// refused, and any other error (a storage failure or ErrChargeNotRecorded)
// should make the gateway retry.
func (s *Service) Handle(ctx context.Context, payload []byte, signature string) (*reconcile.Result, error) {
	log := logctx.FromCtx(ctx, s.log)
	entry := &models.PaymentNotificationLog{
		Gateway:          Gateway,
		Channel:          channel,
		NotificationTime: s.now(),
		Status:           models.PaymentNotificationLogStatusReceived,
	}
	if json.Valid(payload) {
		entry.Data = datatypes.JSON(payload)
	}

	if err := s.verifier.Check(payload, signature); err != nil {
		if errors.Is(err, ErrConfiguration) {
			log.Errorw("webhook refused, secret not configured")
			s.rec.Webhook(Gateway, "misconfigured")
			return nil, err
		}
		log.Warnw("webhook signature rejected", "signature_present", signature != "")
		s.rec.Webhook(Gateway, "invalid_signature")
		entry.Status = models.PaymentNotificationLogStatusRejected
		s.logs.Save(ctx, entry)
		return nil, err
	}

	n, err := tap.ParseNotification(payload)
	if err != nil {
		// retrying a malformed body cannot succeed
		log.Warnw("verified webhook could not be parsed", "err", err)
		s.rec.Webhook(Gateway, "malformed")
		entry.Status = models.PaymentNotificationLogStatusRejected
		entry.Result = jsonResult(map[string]any{"error": err.Error()})
		s.logs.Save(ctx, entry)
		return &reconcile.Result{Outcome: reconcile.OutcomeIgnored}, nil
	}
	entry.ChargeID = n.ChargeID
	log = log.With("gateway_object", n.Object, "gateway_id", n.ID, "gateway_status", n.GatewayStatus)

	key := n.ID + ":" + n.GatewayStatus
	seen, err := s.dedup.Seen(ctx, key)
	if err != nil {
		log.Warnw("webhook dedup lookup failed", "err", err)
	}
	if seen {
		log.Infow("duplicate webhook delivery acknowledged")
		s.rec.Webhook(Gateway, "duplicate")
		return &reconcile.Result{Outcome: reconcile.OutcomeNoop}, nil
	}

	ev := ToEvent(n)
	entry.EventKind = string(ev.Kind())
	res, err := s.reconciler.Apply(ctx, ev, models.StatusChangeSourceWebhook)
	if err != nil {
		log.Errorw("webhook handling failed", "kind", ev.Kind(), "err", err)
		s.rec.Webhook(Gateway, "error")
		entry.Status = models.PaymentNotificationLogStatusHandleFailed
		entry.Result = jsonResult(map[string]any{"error": err.Error()})
		s.logs.Save(ctx, entry)
		return nil, fmt.Errorf("failed to reconcile webhook: %w", err)
	}

	if res.Outcome == reconcile.OutcomeUnknownCharge && s.chargeMayBeInFlight(n) {
		log.Warnw("webhook for a charge not recorded yet, asking for redelivery", "created_at", n.CreatedAt)
		s.rec.Webhook(Gateway, "unknown_charge_retry")
		entry.Status = models.PaymentNotificationLogStatusHandleFailed
		entry.Result = jsonResult(map[string]any{"outcome": res.Outcome})
		s.logs.Save(ctx, entry)
		return nil, fmt.Errorf("%w: %s", ErrChargeNotRecorded, n.ChargeID)
	}

	// unknown ids stay unmarked so a redelivery after the row commits applies
	if res.Outcome != reconcile.OutcomeUnknownCharge && res.Outcome != reconcile.OutcomeUnknownRefund {
		if err := s.dedup.Mark(ctx, key); err != nil {
			log.Warnw("webhook dedup mark failed", "err", err)
		}
	}
	if res.Payment != nil {
		entry.MerchantID = lo.ToPtr(res.Payment.MerchantID)
	}
	entry.Status = models.PaymentNotificationLogStatusHandled
	entry.Result = jsonResult(map[string]any{"outcome": res.Outcome, "payment_id": res.PaymentID})
	s.logs.Save(ctx, entry)
	s.rec.Webhook(Gateway, string(res.Outcome))
	log.Infow("webhook handled", "kind", ev.Kind(), "outcome", res.Outcome, "payment_id", res.PaymentID)
	return res, nil
}

// chargeMayBeInFlight reports whether a charge notification is recent enough
// that its ledger row may still be committing.
func (s *Service) chargeMayBeInFlight(n *tap.Notification) bool {
	if n.Object != tap.ObjectCharge || n.CreatedAt.IsZero() {
		return false
	}
	return s.now().Sub(n.CreatedAt) < s.unknownChargeRetry
}

func jsonResult(v any) *datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return lo.ToPtr(datatypes.JSON(b))
}

func newService(cfg *config.Config, reconciler *reconcile.Reconciler, dedup cache.Deduper, logs notification_log.Saver, rec metrics.Recorder, log *zap.SugaredLogger) (*Service, error) {
	secret, err := NewSecret(cfg.Tap.WebhookSecret)
	if err != nil {
		return nil, fmt.Errorf("tap.webhook_secret: %w", err)
	}
	svc := NewService(NewVerifier(secret), cfg.Tap.SignatureHeader, reconciler, dedup, logs, rec, log)
	if d := cfg.Tap.UnknownChargeRetry(); d > 0 {
		svc.unknownChargeRetry = d
	}
	return svc, nil
}

var Module = fx.Options(
	fx.Provide(newService),
)
