package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/sari/payments/internal/models"
	"github.com/sari/payments/pkg/types"
)

var (
	// ErrNotFound is also returned when a record belongs to another merchant.
	ErrNotFound            = errors.New("record not found")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrRefundExceedsAmount = errors.New("refund exceeds refundable amount")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrDuplicateChargeID   = errors.New("charge id already recorded")
)

// Store is the durable record of payments, refunds and payment links. Every
// status change is a single conditional UPDATE keyed on the allowed source
// statuses, so concurrent writers cannot lose updates or move a record
// backwards. Listing is always scoped to one merchant.
type Store interface {
	CreatePayment(ctx context.Context, p *models.Payment) error
	GetPayment(ctx context.Context, id string) (*models.Payment, error)
	GetPaymentByChargeID(ctx context.Context, chargeID string) (*models.Payment, error)
	ListPayments(ctx context.Context, merchantID string, q *types.ListQuery) ([]*models.Payment, int64, error)
	// UpdatePaymentStatus returns changed=false, err=nil when the payment is
	// already in status to.
	UpdatePaymentStatus(ctx context.Context, id string, to models.PaymentStatus) (bool, error)

	// ReserveRefund atomically adds amount to refunded_amount when the payment
	// is paid and the total stays within the payment amount.
	ReserveRefund(ctx context.Context, paymentID string, amount int64) error
	ReleaseRefund(ctx context.Context, paymentID string, amount int64) error

	CreateRefund(ctx context.Context, r *models.Refund) error
	GetRefund(ctx context.Context, id string) (*models.Refund, error)
	GetRefundByGatewayID(ctx context.Context, gatewayRefundID string) (*models.Refund, error)
	ListRefunds(ctx context.Context, merchantID string, q *types.ListQuery) ([]*models.Refund, int64, error)
	UpdateRefundStatus(ctx context.Context, id string, to models.RefundStatus) (bool, error)
	// AttachGatewayRefundID fills the gateway id of a refund created without one.
	AttachGatewayRefundID(ctx context.Context, id, gatewayRefundID string) error
	CompletedRefundTotal(ctx context.Context, paymentID string) (int64, error)

	CreateLink(ctx context.Context, l *models.PaymentLink) error
	GetLink(ctx context.Context, id string) (*models.PaymentLink, error)
	GetLinkByPublicID(ctx context.Context, linkID string) (*models.PaymentLink, error)
	ListLinks(ctx context.Context, merchantID string, q *types.ListQuery) ([]*models.PaymentLink, int64, error)
	DisableLink(ctx context.Context, id string) (bool, error)
	MarkLinkStatus(ctx context.Context, id string, from, to models.PaymentLinkStatus) (bool, error)
	CountLinkUsage(ctx context.Context, linkID string) (int64, error)

	ListExpirablePayments(ctx context.Context, now time.Time, limit int) ([]*models.Payment, error)
	ExpireLinks(ctx context.Context, now time.Time) (int64, error)
}

// Column whitelists for list filters and sorting.
var (
	PaymentListFields = map[string]bool{
		"status": true, "currency": true, "amount": true, "charge_id": true,
		"order_id": true, "booking_id": true, "payment_link_id": true,
		"customer_phone": true, "created_at": true, "paid_at": true,
	}
	RefundListFields = map[string]bool{
		"status": true, "payment_id": true, "amount": true, "currency": true, "created_at": true,
	}
	LinkListFields = map[string]bool{
		"status": true, "is_active": true, "currency": true, "created_at": true, "expires_at": true,
	}
)

// linkUsageStatuses are the payment statuses that consume a link usage.
var linkUsageStatuses = []models.PaymentStatus{models.PaymentStatusPaid, models.PaymentStatusRefunded}
