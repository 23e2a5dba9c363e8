package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/sari/payments/internal/app/service/ledger"
	"github.com/sari/payments/internal/app/service/statuslog"
	"github.com/sari/payments/internal/models"
	"github.com/sari/payments/internal/platform/events"
	"github.com/sari/payments/pkg/logctx"
	"github.com/sari/payments/pkg/metrics"
)

type Outcome string

const (
	OutcomeApplied       Outcome = "applied"
	OutcomeNoop          Outcome = "noop"
	OutcomeIgnored       Outcome = "ignored"
	OutcomeUnknownCharge Outcome = "unknown_charge"
	OutcomeUnknownRefund Outcome = "unknown_refund"
)

// Result describes what Apply did. Every outcome except an error is safe to
// acknowledge to the gateway.
type Result struct {
	Outcome   Outcome
	PaymentID string
	Payment   *models.Payment
}

// Reconciler applies gateway status claims to the ledger. Webhook pushes and
// merchant-triggered polls both go through Apply, so whichever arrives first
// wins and the other becomes a no-op.
type Reconciler struct {
	store     ledger.Store
	publisher events.Publisher
	audit     statuslog.Recorder
	rec       metrics.Recorder
	log       *zap.SugaredLogger
}

func New(store ledger.Store, publisher events.Publisher, audit statuslog.Recorder, rec metrics.Recorder, log *zap.SugaredLogger) *Reconciler {
	return &Reconciler{store: store, publisher: publisher, audit: audit, rec: rec, log: log}
}

func (r *Reconciler) Apply(ctx context.Context, ev Event, source models.StatusChangeSource) (*Result, error) {
	res, err := r.apply(ctx, ev, source)
	outcome := "error"
	if err == nil {
		outcome = string(res.Outcome)
	}
	r.rec.Reconcile(string(source), string(ev.Kind()), outcome)
	return res, err
}

func (r *Reconciler) apply(ctx context.Context, ev Event, source models.StatusChangeSource) (*Result, error) {
	log := logctx.FromCtx(ctx, r.log).With("charge_id", ev.Charge(), "kind", ev.Kind(), "source", source)

	if _, ok := ev.(Unknown); ok {
		log.Warnw("unrecognised gateway event ignored", "event", ev)
		return &Result{Outcome: OutcomeIgnored}, nil
	}

	payment, err := r.store.GetPaymentByChargeID(ctx, ev.Charge())
	if errors.Is(err, ledger.ErrNotFound) {
		log.Warnw("gateway event for unknown charge acknowledged")
		return &Result{Outcome: OutcomeUnknownCharge}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment by charge: %w", err)
	}
	log = log.With("payment_id", payment.ID, "merchant_id", payment.MerchantID)
	res := &Result{PaymentID: payment.ID, Payment: payment}

	switch e := ev.(type) {
	case PaymentPending:
		res.Outcome = OutcomeNoop
	case PaymentCaptured:
		if e.Amount > 0 && e.Amount != payment.Amount {
			log.Warnw("captured amount differs from ledger amount", "captured", e.Amount, "ledger", payment.Amount)
		}
		res.Outcome, err = r.movePayment(ctx, log, payment, models.PaymentStatusPaid, source, nil)
	case PaymentFailed:
		res.Outcome, err = r.movePayment(ctx, log, payment, models.PaymentStatusFailed, source, datatypes.JSONMap{"reason": e.Reason})
	case PaymentExpired:
		res.Outcome, err = r.movePayment(ctx, log, payment, models.PaymentStatusExpired, source, nil)
	case PaymentRefunded:
		res.Outcome, err = r.movePayment(ctx, log, payment, models.PaymentStatusRefunded, source, nil)
	case RefundCompleted:
		res.Outcome, err = r.applyRefund(ctx, log, payment, e.GatewayRefundID, e.Reference, models.RefundStatusCompleted, source)
	case RefundFailed:
		res.Outcome, err = r.applyRefund(ctx, log, payment, e.GatewayRefundID, e.Reference, models.RefundStatusFailed, source)
	case RefundPending:
		res.Outcome, err = r.applyRefund(ctx, log, payment, e.GatewayRefundID, e.Reference, models.RefundStatusPending, source)
	default:
		log.Warnw("unhandled event type", "event", ev)
		res.Outcome = OutcomeIgnored
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// movePayment applies one payment transition. Repeats are no-ops and
// transitions the state machine forbids are logged and ignored.
func (r *Reconciler) movePayment(ctx context.Context, log *zap.SugaredLogger, p *models.Payment, to models.PaymentStatus, source models.StatusChangeSource, extra datatypes.JSONMap) (Outcome, error) {
	changed, err := r.store.UpdatePaymentStatus(ctx, p.ID, to)
	if errors.Is(err, ledger.ErrInvalidTransition) {
		log.Warnw("payment transition rejected", "to", to, "err", err)
		return OutcomeIgnored, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to update payment status: %w", err)
	}
	if !changed {
		return OutcomeNoop, nil
	}

	from := models.PaymentStatusSources(to)[0]
	log.Infow("payment status changed", "from", from, "to", to)
	if extra == nil {
		extra = datatypes.JSONMap{}
	}
	extra["charge_id"] = p.ChargeID
	r.audit.Record(ctx, &models.PaymentStatusLog{
		EntityType: models.StatusLogEntityPayment,
		EntityID:   p.ID,
		MerchantID: p.MerchantID,
		FromStatus: string(from),
		ToStatus:   string(to),
		Source:     source,
		Extra:      extra,
	})
	r.publish(ctx, log, p, from, to, source)

	p.Status = to
	if to == models.PaymentStatusPaid && p.PaymentLinkID != nil {
		r.completeLinkIfExhausted(ctx, log, *p.PaymentLinkID, p.MerchantID, source)
	}
	return OutcomeApplied, nil
}

func (r *Reconciler) applyRefund(ctx context.Context, log *zap.SugaredLogger, p *models.Payment, gatewayRefundID, reference string, to models.RefundStatus, source models.StatusChangeSource) (Outcome, error) {
	refund, err := r.findRefund(ctx, p, gatewayRefundID, reference)
	if errors.Is(err, ledger.ErrNotFound) {
		log.Warnw("refund event for unknown refund acknowledged", "gateway_refund_id", gatewayRefundID, "reference", reference)
		return OutcomeUnknownRefund, nil
	}
	if err != nil {
		return "", err
	}
	log = log.With("refund_id", refund.ID)

	if to == models.RefundStatusPending {
		return OutcomeNoop, nil
	}

	changed, err := r.store.UpdateRefundStatus(ctx, refund.ID, to)
	if errors.Is(err, ledger.ErrInvalidTransition) {
		log.Warnw("refund transition rejected", "to", to, "err", err)
		return OutcomeIgnored, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to update refund status: %w", err)
	}
	outcome := OutcomeNoop
	if changed {
		outcome = OutcomeApplied
		log.Infow("refund status changed", "to", to)
		r.audit.Record(ctx, &models.PaymentStatusLog{
			EntityType: models.StatusLogEntityRefund,
			EntityID:   refund.ID,
			MerchantID: refund.MerchantID,
			FromStatus: string(models.RefundStatusPending),
			ToStatus:   string(to),
			Source:     source,
			Extra:      datatypes.JSONMap{"payment_id": p.ID, "gateway_refund_id": gatewayRefundID},
		})
	}

	switch to {
	case models.RefundStatusFailed:
		// only the call that moved the refund releases its reservation
		if changed {
			if err := r.store.ReleaseRefund(ctx, p.ID, refund.Amount); err != nil {
				return "", fmt.Errorf("failed to release refund reservation: %w", err)
			}
		}
	case models.RefundStatusCompleted:
		// checked on repeats too, so a crash between the two writes heals on redelivery
		total, err := r.store.CompletedRefundTotal(ctx, p.ID)
		if err != nil {
			return "", err
		}
		if total >= p.Amount {
			moved, err := r.movePayment(ctx, log, p, models.PaymentStatusRefunded, source, datatypes.JSONMap{"refund_id": refund.ID})
			if err != nil {
				return "", err
			}
			if moved == OutcomeApplied {
				outcome = OutcomeApplied
			}
		}
	}
	return outcome, nil
}

// findRefund matches by gateway id first, then by the local id the refund
// request carried as its reference. A reference match adopts the gateway id.
func (r *Reconciler) findRefund(ctx context.Context, p *models.Payment, gatewayRefundID, reference string) (*models.Refund, error) {
	if gatewayRefundID != "" {
		refund, err := r.store.GetRefundByGatewayID(ctx, gatewayRefundID)
		if err == nil {
			if refund.PaymentID != p.ID {
				return nil, ledger.ErrNotFound
			}
			return refund, nil
		}
		if !errors.Is(err, ledger.ErrNotFound) {
			return nil, fmt.Errorf("failed to load refund: %w", err)
		}
	}
	if reference == "" {
		return nil, ledger.ErrNotFound
	}
	refund, err := r.store.GetRefund(ctx, reference)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load refund: %w", err)
	}
	if refund.PaymentID != p.ID {
		return nil, ledger.ErrNotFound
	}
	if refund.GatewayRefundID == nil && gatewayRefundID != "" {
		if err := r.store.AttachGatewayRefundID(ctx, refund.ID, gatewayRefundID); err != nil {
			return nil, err
		}
	}
	return refund, nil
}

func (r *Reconciler) completeLinkIfExhausted(ctx context.Context, log *zap.SugaredLogger, linkID, merchantID string, source models.StatusChangeSource) {
	link, err := r.store.GetLink(ctx, linkID)
	if err != nil {
		log.Warnw("failed to load payment link", "payment_link_id", linkID, "err", err)
		return
	}
	if link.MaxUsage == nil || link.UsageCount < *link.MaxUsage {
		return
	}
	changed, err := r.store.MarkLinkStatus(ctx, link.ID, models.PaymentLinkStatusActive, models.PaymentLinkStatusCompleted)
	if err != nil {
		log.Warnw("failed to complete payment link", "payment_link_id", linkID, "err", err)
		return
	}
	if changed {
		r.audit.Record(ctx, &models.PaymentStatusLog{
			EntityType: models.StatusLogEntityPaymentLink,
			EntityID:   link.ID,
			MerchantID: merchantID,
			FromStatus: string(models.PaymentLinkStatusActive),
			ToStatus:   string(models.PaymentLinkStatusCompleted),
			Source:     source,
			Extra:      datatypes.JSONMap{"usage_count": link.UsageCount},
		})
	}
}

// publish is best effort: the ledger row is already committed and the
// status log keeps the durable record.
func (r *Reconciler) publish(ctx context.Context, log *zap.SugaredLogger, p *models.Payment, from, to models.PaymentStatus, source models.StatusChangeSource) {
	err := r.publisher.PublishStatusChanged(ctx, events.PaymentStatusChanged{
		EventType:  events.EventTypePaymentStatusChanged,
		PaymentID:  p.ID,
		MerchantID: p.MerchantID,
		ChargeID:   p.ChargeID,
		OrderID:    p.OrderID,
		BookingID:  p.BookingID,
		From:       from,
		To:         to,
		Amount:     p.Amount,
		Currency:   p.Currency,
		Source:     source,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		log.Errorw("failed to publish payment status change", "to", to, "err", err)
	}
}

var Module = fx.Options(
	fx.Provide(New),
)
