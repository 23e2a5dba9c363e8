package models

import (
	"time"

	"gorm.io/datatypes"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
	PaymentStatusExpired  PaymentStatus = "expired"
)

// paymentStatusSources maps a target status to the statuses it may be reached from.
// Anything absent is a backward or sideways move and must be rejected.
var paymentStatusSources = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPaid:     {PaymentStatusPending},
	PaymentStatusFailed:   {PaymentStatusPending},
	PaymentStatusExpired:  {PaymentStatusPending},
	PaymentStatusRefunded: {PaymentStatusPaid},
}

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded, PaymentStatusExpired:
		return true
	}
	return false
}

// PaymentStatusSources returns the statuses from which to is reachable.
func PaymentStatusSources(to PaymentStatus) []PaymentStatus {
	return paymentStatusSources[to]
}

func (s PaymentStatus) CanTransitionTo(to PaymentStatus) bool {
	for _, from := range paymentStatusSources[to] {
		if from == s {
			return true
		}
	}
	return false
}

// Payment is one attempt to collect money from a customer through the gateway.
type Payment struct {
	ID         string  `gorm:"column:id;type:uuid;primary_key" json:"id"`
	MerchantID string  `gorm:"column:merchant_id;type:varchar(64);not null;index:idx_payment_merchant_created,priority:1" json:"merchant_id"`
	OrderID    *string `gorm:"column:order_id;type:varchar(64)" json:"order_id"`
	BookingID  *string `gorm:"column:booking_id;type:varchar(64)" json:"booking_id"`
	// PaymentLinkID is set when the payment was opened from a public payment link.
	PaymentLinkID *string `gorm:"column:payment_link_id;type:uuid;index" json:"payment_link_id"`

	CustomerName  string  `gorm:"column:customer_name;type:varchar(255);not null" json:"customer_name"`
	CustomerPhone string  `gorm:"column:customer_phone;type:varchar(32);not null" json:"customer_phone"`
	CustomerEmail *string `gorm:"column:customer_email;type:varchar(255)" json:"customer_email"`

	// Amount is in minor currency units (halalas, cents).
	Amount   int64  `gorm:"column:amount;type:bigint;not null" json:"amount"`
	Currency string `gorm:"column:currency;type:varchar(3);not null" json:"currency"`
	// ChargeID is the gateway charge id. Written once on create and never updated.
	ChargeID    string            `gorm:"column:charge_id;type:varchar(128);not null;uniqueIndex" json:"charge_id"`
	PaymentURL  string            `gorm:"column:payment_url;type:text" json:"payment_url"`
	Status      PaymentStatus     `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	Description string            `gorm:"column:description;type:text" json:"description"`
	Metadata    datatypes.JSONMap `gorm:"column:metadata;type:jsonb;default:'{}'" json:"metadata"`
	// RefundedAmount is the sum of refunds reserved against this payment (pending and completed).
	RefundedAmount int64 `gorm:"column:refunded_amount;type:bigint;not null;default:0" json:"refunded_amount"`

	ExpiresAt *time.Time `gorm:"column:expires_at;default:null;index" json:"expires_at"`
	PaidAt    *time.Time `gorm:"column:paid_at;default:null" json:"paid_at"`
	CreatedAt time.Time  `gorm:"index:idx_payment_merchant_created,priority:2,sort:desc" json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (Payment) TableName() string {
	return "payment"
}

func (p *Payment) GetMerchantID() string {
	if p == nil {
		return ""
	}
	return p.MerchantID
}

// RefundableAmount is what may still be reserved for refunds.
func (p *Payment) RefundableAmount() int64 {
	if p == nil || p.Status != PaymentStatusPaid {
		return 0
	}
	return p.Amount - p.RefundedAmount
}
