package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"gorm.io/datatypes"

	"github.com/sari/payments/internal/app/service/ledger"
	"github.com/sari/payments/internal/app/service/ownership"
	"github.com/sari/payments/internal/app/service/reconcile"
	"github.com/sari/payments/internal/models"
	"github.com/sari/payments/internal/platform/tap"
	"github.com/sari/payments/pkg/logctx"
	"github.com/sari/payments/pkg/tool"
)

// CreateRefund reserves the amount on the payment and records a pending
// refund before calling the gateway, so concurrent refunds can never exceed
// the captured amount and every request the gateway may have processed has a
// local row to reconcile against.
//
// A definitive gateway rejection fails the refund and releases the
// reservation. When the outcome is unknown (timeout, 5xx) the pending row
// keeps the reservation; the refund webhook later matches it by the local id
// sent as the gateway reference.
func (s *Service) CreateRefund(ctx context.Context, merchantID, staffID string, req *CreateRefundRequest) (*models.Refund, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	p, err := s.GetPayment(ctx, merchantID, req.PaymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.PaymentStatusPaid {
		return nil, fmt.Errorf("%w: payment is %s", ErrNotRefundable, p.Status)
	}
	if req.Amount > p.RefundableAmount() {
		return nil, fmt.Errorf("%w: requested %d, refundable %d", ledger.ErrRefundExceedsAmount, req.Amount, p.RefundableAmount())
	}

	log := logctx.FromCtx(ctx, s.log).With("payment_id", p.ID, "merchant_id", merchantID)
	if err := s.store.ReserveRefund(ctx, p.ID, req.Amount); err != nil {
		if errors.Is(err, ledger.ErrInvalidTransition) {
			return nil, fmt.Errorf("%w: %v", ErrNotRefundable, err)
		}
		return nil, err
	}

	refund := &models.Refund{
		ID:          tool.GenerateUUIDV7(),
		PaymentID:   p.ID,
		MerchantID:  merchantID,
		Amount:      req.Amount,
		Currency:    p.Currency,
		Reason:      req.Reason,
		Status:      models.RefundStatusPending,
		InitiatedBy: staffID,
	}
	log = log.With("refund_id", refund.ID)
	if err := s.store.CreateRefund(ctx, refund); err != nil {
		if rerr := s.store.ReleaseRefund(logctx.Detach(ctx), p.ID, req.Amount); rerr != nil {
			log.Errorw("failed to release refund reservation", "amount", req.Amount, "err", rerr)
		}
		return nil, fmt.Errorf("failed to record refund: %w", err)
	}
	s.audit.Record(ctx, &models.PaymentStatusLog{
		EntityType: models.StatusLogEntityRefund,
		EntityID:   refund.ID,
		MerchantID: merchantID,
		ToStatus:   string(models.RefundStatusPending),
		Source:     models.StatusChangeSourceMerchant,
		Extra:      datatypes.JSONMap{"payment_id": p.ID, "amount": req.Amount, "staff_id": staffID},
	})

	res, err := s.gateway.CreateRefund(ctx, tap.RefundRequest{
		ChargeID:   p.ChargeID,
		Reference:  refund.ID,
		Amount:     req.Amount,
		Currency:   p.Currency,
		Reason:     req.Reason,
		WebhookURL: s.cfg.Tap.WebhookURL,
	})
	// the request context may be what made the call fail
	wctx := logctx.Detach(ctx)
	if err != nil {
		var gerr *tap.GatewayError
		if errors.As(err, &gerr) && gerr.Definitive() {
			ev := reconcile.RefundFailed{ChargeID: p.ChargeID, Reference: refund.ID, Reason: gerr.UserMessage()}
			if _, rerr := s.reconciler.Apply(wctx, ev, models.StatusChangeSourceRefund); rerr != nil {
				log.Errorw("failed to fail rejected refund", "amount", req.Amount, "err", rerr)
			}
			log.Warnw("gateway rejected refund", "err", err)
			return nil, err
		}
		log.Warnw("refund outcome unknown, reservation held until the gateway reports", "err", err)
		return nil, err
	}

	if res.RefundID != "" {
		if err := s.store.AttachGatewayRefundID(wctx, refund.ID, res.RefundID); err != nil {
			// the webhook still matches by reference
			log.Errorw("failed to attach gateway refund id", "gateway_refund_id", res.RefundID, "err", err)
		}
	}
	log.Infow("refund created", "gateway_refund_id", res.RefundID, "gateway_status", res.GatewayStatus)

	if res.Status != models.RefundStatusPending {
		ev := reconcile.RefundEvent(p.ChargeID, res.RefundID, refund.ID, res.Status, req.Amount, res.GatewayStatus)
		if _, err := s.reconciler.Apply(wctx, ev, models.StatusChangeSourceRefund); err != nil {
			// the refund webhook applies the same change later
			log.Warnw("failed to reconcile synchronous refund result", "err", err)
		}
	}

	out, err := s.store.GetRefund(wctx, refund.ID)
	if err != nil {
		refund.GatewayRefundID = lo.EmptyableToPtr(res.RefundID)
		return refund, nil
	}
	return out, nil
}

func (s *Service) ListRefunds(ctx context.Context, merchantID string, req *ListRequest) (*ListResponse[models.Refund], error) {
	items, total, err := s.store.ListRefunds(ctx, merchantID, req)
	if err != nil {
		return nil, listError(err)
	}
	return &ListResponse[models.Refund]{Items: items, Total: total}, nil
}

func (s *Service) GetRefund(ctx context.Context, merchantID, refundID string) (*models.Refund, error) {
	return ownership.Load(merchantID, func() (*models.Refund, error) {
		return s.store.GetRefund(ctx, refundID)
	})
}
