package payment

import (
	"errors"
	"time"

	"github.com/sari/payments/internal/models"
	"github.com/sari/payments/pkg/types"
)

var (
	// ErrValidation wraps every request validation failure.
	ErrValidation = errors.New("invalid request")
	// ErrLinkUnavailable is returned when a payment link is disabled, no
	// longer active, expired or used up.
	ErrLinkUnavailable = errors.New("payment link unavailable")
	ErrNotRefundable   = errors.New("payment is not refundable")
)

type CreateChargeRequest struct {
	Amount        int64          `json:"amount" validate:"gt=0"`
	Currency      string         `json:"currency" validate:"required,len=3"`
	CustomerName  string         `json:"customer_name" validate:"required,max=255"`
	CustomerPhone string         `json:"customer_phone" validate:"required,max=32"`
	CustomerEmail *string        `json:"customer_email,omitempty" validate:"omitempty,email"`
	OrderID       *string        `json:"order_id,omitempty" validate:"omitempty,max=64"`
	BookingID     *string        `json:"booking_id,omitempty" validate:"omitempty,max=64"`
	Description   string         `json:"description"`
	RedirectURL   string         `json:"redirect_url,omitempty" validate:"omitempty,url"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

type PaymentIDRequest struct {
	PaymentID string `json:"payment_id" validate:"required"`
}

type VerifyPaymentResponse struct {
	Payment       *models.Payment `json:"payment"`
	GatewayStatus string          `json:"gateway_status"`
	Changed       bool            `json:"changed"`
}

type CreateRefundRequest struct {
	PaymentID string `json:"payment_id" validate:"required"`
	Amount    int64  `json:"amount" validate:"gt=0"`
	Reason    string `json:"reason" validate:"max=255"`
}

type CreatePaymentLinkRequest struct {
	Title         string     `json:"title" validate:"required,max=255"`
	Description   *string    `json:"description,omitempty"`
	Amount        int64      `json:"amount" validate:"gte=0"`
	Currency      string     `json:"currency" validate:"required,len=3"`
	IsFixedAmount bool       `json:"is_fixed_amount"`
	MinAmount     *int64     `json:"min_amount,omitempty" validate:"omitempty,gt=0"`
	MaxAmount     *int64     `json:"max_amount,omitempty" validate:"omitempty,gt=0"`
	MaxUsage      *int64     `json:"max_usage,omitempty" validate:"omitempty,gt=0"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

type PaymentLinkIDRequest struct {
	ID string `json:"id" validate:"required"`
}

// PayLinkRequest is submitted by the customer on the public link page.
// Amount is required for variable links and must match for fixed ones.
type PayLinkRequest struct {
	Amount        int64   `json:"amount" validate:"gte=0"`
	CustomerName  string  `json:"customer_name" validate:"required,max=255"`
	CustomerPhone string  `json:"customer_phone" validate:"required,max=32"`
	CustomerEmail *string `json:"customer_email,omitempty" validate:"omitempty,email"`
	RedirectURL   string  `json:"redirect_url,omitempty" validate:"omitempty,url"`
}

type ListRequest = types.ListQuery

type ListResponse[T any] struct {
	Items []*T  `json:"items"`
	Total int64 `json:"total"`
}
