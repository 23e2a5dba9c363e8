package models

import "time"

type PaymentLinkStatus string

const (
	PaymentLinkStatusActive    PaymentLinkStatus = "active"
	PaymentLinkStatusCompleted PaymentLinkStatus = "completed"
	PaymentLinkStatusExpired   PaymentLinkStatus = "expired"
)

// Status log labels for the is_active flag, which is kept apart from Status.
const (
	PaymentLinkAuditActive   = "active"
	PaymentLinkAuditDisabled = "disabled"
)

// PaymentLink is a reusable payment request that is not tied to a single order.
type PaymentLink struct {
	ID         string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	MerchantID string `gorm:"column:merchant_id;type:varchar(64);not null;index" json:"merchant_id"`
	// LinkID is the public token embedded in the payment URL.
	LinkID        string  `gorm:"column:link_id;type:varchar(64);not null;uniqueIndex" json:"link_id"`
	Title         string  `gorm:"column:title;type:varchar(255);not null" json:"title"`
	Description   *string `gorm:"column:description;type:text" json:"description"`
	Amount        int64   `gorm:"column:amount;type:bigint;not null" json:"amount"`
	Currency      string  `gorm:"column:currency;type:varchar(3);not null" json:"currency"`
	IsFixedAmount bool    `gorm:"column:is_fixed_amount;not null;default:true" json:"is_fixed_amount"`
	MinAmount     *int64  `gorm:"column:min_amount;type:bigint" json:"min_amount"`
	MaxAmount     *int64  `gorm:"column:max_amount;type:bigint" json:"max_amount"`
	PaymentURL    string  `gorm:"column:payment_url;type:text" json:"payment_url"`
	MaxUsage      *int64  `gorm:"column:max_usage;type:bigint" json:"max_usage"`
	// UsageCount is derived from paid payments and is not persisted.
	UsageCount int64             `gorm:"-" json:"usage_count"`
	ExpiresAt  *time.Time        `gorm:"column:expires_at;default:null" json:"expires_at"`
	Status     PaymentLinkStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`
	IsActive   bool              `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

func (PaymentLink) TableName() string {
	return "payment_link"
}

func (l *PaymentLink) GetMerchantID() string {
	if l == nil {
		return ""
	}
	return l.MerchantID
}

// AcceptsPayments reports whether a new payment attempt may be opened at now.
// A disabled link refuses regardless of status or expiry.
func (l *PaymentLink) AcceptsPayments(now time.Time) bool {
	if l == nil || !l.IsActive {
		return false
	}
	if l.Status != PaymentLinkStatusActive {
		return false
	}
	if l.ExpiresAt != nil && !now.Before(*l.ExpiresAt) {
		return false
	}
	if l.MaxUsage != nil && l.UsageCount >= *l.MaxUsage {
		return false
	}
	return true
}

// AmountAllowed validates a customer supplied amount against the link settings.
func (l *PaymentLink) AmountAllowed(amount int64) bool {
	if l.IsFixedAmount {
		return amount == l.Amount
	}
	if amount <= 0 {
		return false
	}
	if l.MinAmount != nil && amount < *l.MinAmount {
		return false
	}
	if l.MaxAmount != nil && amount > *l.MaxAmount {
		return false
	}
	return true
}
