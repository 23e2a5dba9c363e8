package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"

	"github.com/sari/payments/internal/app/service/ledger"
	"github.com/sari/payments/internal/app/service/ownership"
	"github.com/sari/payments/internal/models"
	"github.com/sari/payments/pkg/logctx"
	"github.com/sari/payments/pkg/tool"
	"github.com/sari/payments/pkg/types"
)

const linkTokenPrefix = "pl_"

func (s *Service) CreatePaymentLink(ctx context.Context, merchantID string, req *CreatePaymentLinkRequest) (*models.PaymentLink, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	currency, err := types.NormalizeCurrency(req.Currency)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if req.IsFixedAmount && req.Amount <= 0 {
		return nil, fmt.Errorf("%w: fixed amount link needs a positive amount", ErrValidation)
	}
	if req.MinAmount != nil && req.MaxAmount != nil && *req.MinAmount > *req.MaxAmount {
		return nil, fmt.Errorf("%w: min_amount exceeds max_amount", ErrValidation)
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(s.now()) {
		return nil, fmt.Errorf("%w: expires_at is in the past", ErrValidation)
	}

	token := tool.GeneratePublicToken(linkTokenPrefix)
	link := &models.PaymentLink{
		ID:            tool.GenerateUUIDV7(),
		MerchantID:    merchantID,
		LinkID:        token,
		Title:         req.Title,
		Description:   req.Description,
		Amount:        req.Amount,
		Currency:      currency,
		IsFixedAmount: req.IsFixedAmount,
		PaymentURL:    strings.TrimRight(s.cfg.Tap.PaymentLinkBaseURL, "/") + "/" + token,
		MaxUsage:      req.MaxUsage,
		ExpiresAt:     req.ExpiresAt,
		Status:        models.PaymentLinkStatusActive,
		IsActive:      true,
	}
	if !req.IsFixedAmount {
		link.MinAmount = req.MinAmount
		link.MaxAmount = req.MaxAmount
	}
	if err := s.store.CreateLink(ctx, link); err != nil {
		return nil, fmt.Errorf("failed to create payment link: %w", err)
	}
	s.audit.Record(ctx, &models.PaymentStatusLog{
		EntityType: models.StatusLogEntityPaymentLink,
		EntityID:   link.ID,
		MerchantID: merchantID,
		ToStatus:   string(models.PaymentLinkStatusActive),
		Source:     models.StatusChangeSourceMerchant,
	})
	logctx.FromCtx(ctx, s.log).Infow("payment link created", "payment_link_id", link.ID, "link_id", token)
	return link, nil
}

func (s *Service) ListPaymentLinks(ctx context.Context, merchantID string, req *ListRequest) (*ListResponse[models.PaymentLink], error) {
	items, total, err := s.store.ListLinks(ctx, merchantID, req)
	if err != nil {
		return nil, listError(err)
	}
	return &ListResponse[models.PaymentLink]{Items: items, Total: total}, nil
}

// DisablePaymentLink clears the active flag. The status is left as is, and
// disabling twice is a no-op.
func (s *Service) DisablePaymentLink(ctx context.Context, merchantID, id string) (*models.PaymentLink, error) {
	link, err := ownership.Load(merchantID, func() (*models.PaymentLink, error) {
		return s.store.GetLink(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	changed, err := s.store.DisableLink(ctx, link.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to disable payment link: %w", err)
	}
	if changed {
		s.audit.Record(ctx, &models.PaymentStatusLog{
			EntityType: models.StatusLogEntityPaymentLink,
			EntityID:   link.ID,
			MerchantID: merchantID,
			FromStatus: models.PaymentLinkAuditActive,
			ToStatus:   models.PaymentLinkAuditDisabled,
			Source:     models.StatusChangeSourceMerchant,
			Extra:      datatypes.JSONMap{"is_active": false, "status": link.Status},
		})
	}
	link.IsActive = false
	return link, nil
}

// PayLink opens a charge against a public payment link on behalf of a
// customer. The merchant is taken from the link, never from the caller.
func (s *Service) PayLink(ctx context.Context, publicLinkID string, req *PayLinkRequest) (*models.Payment, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	link, err := s.store.GetLinkByPublicID(ctx, publicLinkID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, ErrLinkUnavailable
		}
		return nil, err
	}
	if !link.AcceptsPayments(s.now()) {
		return nil, ErrLinkUnavailable
	}

	amount := req.Amount
	if link.IsFixedAmount && amount == 0 {
		amount = link.Amount
	}
	if !link.AmountAllowed(amount) {
		return nil, fmt.Errorf("%w: amount %d not allowed for this link", ErrValidation, amount)
	}

	return s.createCharge(ctx, link.MerchantID, chargeInput{
		amount:        amount,
		currency:      link.Currency,
		customerName:  req.CustomerName,
		customerPhone: req.CustomerPhone,
		customerEmail: req.CustomerEmail,
		description:   link.Title,
		redirectURL:   req.RedirectURL,
		metadata:      map[string]any{"link_id": link.LinkID},
		linkID:        &link.ID,
	})
}
