package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/sari/payments/internal/app/service/ledger"
	"github.com/sari/payments/internal/app/service/notification_log"
	"github.com/sari/payments/internal/app/service/ownership"
	"github.com/sari/payments/internal/app/service/reconcile"
	"github.com/sari/payments/internal/app/service/statuslog"
	"github.com/sari/payments/internal/models"
	"github.com/sari/payments/internal/platform/tap"
	"github.com/sari/payments/pkg/config"
	"github.com/sari/payments/pkg/logctx"
	"github.com/sari/payments/pkg/tool"
	"github.com/sari/payments/pkg/types"
)

// Gateway is the slice of the payment gateway the service drives.
type Gateway interface {
	Name() string
	CreateCharge(ctx context.Context, req tap.ChargeRequest) (*tap.ChargeResult, error)
	VerifyPayment(ctx context.Context, chargeID string) (*tap.ChargeStatusResult, error)
	CreateRefund(ctx context.Context, req tap.RefundRequest) (*tap.RefundResult, error)
}

// Service backs the merchant dashboard operations. Every read and mutation
// of an existing record passes the ownership guard first.
type Service struct {
	cfg        *config.Config
	store      ledger.Store
	gateway    Gateway
	reconciler *reconcile.Reconciler
	audit      statuslog.Recorder
	notifs     notification_log.Saver
	log        *zap.SugaredLogger
	validate   *validator.Validate
	now        func() time.Time
}

func NewService(cfg *config.Config, store ledger.Store, gateway Gateway, reconciler *reconcile.Reconciler, audit statuslog.Recorder, notifs notification_log.Saver, log *zap.SugaredLogger) *Service {
	return &Service{
		cfg:        cfg,
		store:      store,
		gateway:    gateway,
		reconciler: reconciler,
		audit:      audit,
		notifs:     notifs,
		log:        log,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		now:        time.Now,
	}
}

func (s *Service) check(req any) error {
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := lo.Map(verrs, func(fe validator.FieldError, _ int) string {
				return fmt.Sprintf("%s(%s)", fe.Field(), fe.Tag())
			})
			return fmt.Errorf("%w: %s", ErrValidation, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

type chargeInput struct {
	amount        int64
	currency      string
	customerName  string
	customerPhone string
	customerEmail *string
	orderID       *string
	bookingID     *string
	description   string
	redirectURL   string
	metadata      map[string]any
	linkID        *string
}

// CreateCharge opens a gateway charge and records it as pending. Nothing is
// written locally unless the gateway accepted the charge.
func (s *Service) CreateCharge(ctx context.Context, merchantID string, req *CreateChargeRequest) (*models.Payment, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	return s.createCharge(ctx, merchantID, chargeInput{
		amount:        req.Amount,
		currency:      req.Currency,
		customerName:  req.CustomerName,
		customerPhone: req.CustomerPhone,
		customerEmail: req.CustomerEmail,
		orderID:       req.OrderID,
		bookingID:     req.BookingID,
		description:   req.Description,
		redirectURL:   req.RedirectURL,
		metadata:      req.Metadata,
	})
}

func (s *Service) createCharge(ctx context.Context, merchantID string, in chargeInput) (*models.Payment, error) {
	log := logctx.FromCtx(ctx, s.log)
	currency, err := types.NormalizeCurrency(in.currency)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if in.amount <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrValidation, ledger.ErrInvalidAmount)
	}

	id := tool.GenerateUUIDV7()
	redirect := lo.CoalesceOrEmpty(in.redirectURL, s.cfg.Tap.RedirectURL)
	metadata := lo.Assign(in.metadata, map[string]any{"merchant_id": merchantID, "payment_id": id})
	res, err := s.gateway.CreateCharge(ctx, tap.ChargeRequest{
		Reference: id,
		OrderID:   lo.FromPtr(in.orderID),
		Amount:    in.amount,
		Currency:  currency,
		Customer: tap.Customer{
			Name:  in.customerName,
			Phone: in.customerPhone,
			Email: lo.FromPtr(in.customerEmail),
		},
		Description: in.description,
		RedirectURL: redirect,
		WebhookURL:  s.cfg.Tap.WebhookURL,
		Metadata:    metadata,
	})
	if err != nil {
		log.Warnw("gateway rejected charge", "merchant_id", merchantID, "err", err)
		return nil, err
	}

	expiresAt := res.ExpiresAt
	if expiresAt == nil {
		expiresAt = lo.ToPtr(s.now().Add(s.cfg.Tap.ChargeTTL()))
	}
	p := &models.Payment{
		ID:            id,
		MerchantID:    merchantID,
		OrderID:       in.orderID,
		BookingID:     in.bookingID,
		PaymentLinkID: in.linkID,
		CustomerName:  in.customerName,
		CustomerPhone: in.customerPhone,
		CustomerEmail: in.customerEmail,
		Amount:        in.amount,
		Currency:      currency,
		ChargeID:      res.ChargeID,
		PaymentURL:    res.PaymentURL,
		Status:        models.PaymentStatusPending,
		Description:   in.description,
		Metadata:      datatypes.JSONMap(in.metadata),
		ExpiresAt:     expiresAt,
	}
	if err := s.store.CreatePayment(ctx, p); err != nil {
		log.Errorw("charge accepted by gateway but not recorded", "charge_id", res.ChargeID, "payment_id", id, "err", err)
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}
	s.audit.Record(ctx, &models.PaymentStatusLog{
		EntityType: models.StatusLogEntityPayment,
		EntityID:   p.ID,
		MerchantID: merchantID,
		ToStatus:   string(models.PaymentStatusPending),
		Source:     models.StatusChangeSourceMerchant,
		Extra:      datatypes.JSONMap{"charge_id": p.ChargeID},
	})
	log.Infow("payment created", "payment_id", p.ID, "charge_id", p.ChargeID, "amount", p.Amount, "currency", p.Currency)
	return p, nil
}

// VerifyPayment polls the gateway and reconciles through the same entry
// point webhooks use, so a poll and a delivery never conflict.
func (s *Service) VerifyPayment(ctx context.Context, merchantID, paymentID string) (*VerifyPaymentResponse, error) {
	p, err := s.GetPayment(ctx, merchantID, paymentID)
	if err != nil {
		return nil, err
	}
	st, err := s.gateway.VerifyPayment(ctx, p.ChargeID)
	if err != nil {
		return nil, err
	}

	ev := reconcile.PaymentEvent(p.ChargeID, st.Status, st.Amount, st.Currency, st.GatewayStatus)
	res, err := s.reconciler.Apply(ctx, ev, models.StatusChangeSourceVerify)
	s.notifs.Save(ctx, &models.PaymentNotificationLog{
		Gateway:          s.gateway.Name(),
		Channel:          string(models.StatusChangeSourceVerify),
		MerchantID:       lo.ToPtr(merchantID),
		ChargeID:         p.ChargeID,
		EventKind:        string(ev.Kind()),
		NotificationTime: s.now(),
		Data:             datatypes.JSON(st.Raw),
		Status:           lo.Ternary(err == nil, models.PaymentNotificationLogStatusHandled, models.PaymentNotificationLogStatusHandleFailed),
	})
	if err != nil {
		return nil, err
	}

	p, err = s.store.GetPayment(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload payment: %w", err)
	}
	return &VerifyPaymentResponse{Payment: p, GatewayStatus: st.GatewayStatus, Changed: res.Outcome == reconcile.OutcomeApplied}, nil
}

func (s *Service) GetPayment(ctx context.Context, merchantID, paymentID string) (*models.Payment, error) {
	return ownership.Load(merchantID, func() (*models.Payment, error) {
		return s.store.GetPayment(ctx, paymentID)
	})
}

func (s *Service) ListPayments(ctx context.Context, merchantID string, req *ListRequest) (*ListResponse[models.Payment], error) {
	items, total, err := s.store.ListPayments(ctx, merchantID, req)
	if err != nil {
		return nil, listError(err)
	}
	return &ListResponse[models.Payment]{Items: items, Total: total}, nil
}

func listError(err error) error {
	if errors.Is(err, types.ErrFilterField) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return err
}

var Module = fx.Options(
	fx.Provide(
		NewService,
		func(c *tap.Client) Gateway { return c },
	),
)
