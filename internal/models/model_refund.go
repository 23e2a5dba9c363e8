package models

import "time"

type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusCompleted RefundStatus = "completed"
	RefundStatusFailed    RefundStatus = "failed"
)

func (s RefundStatus) CanTransitionTo(to RefundStatus) bool {
	return s == RefundStatusPending && (to == RefundStatusCompleted || to == RefundStatusFailed)
}

// Refund is a merchant initiated reversal of part or all of a Payment.
type Refund struct {
	ID         string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	PaymentID  string `gorm:"column:payment_id;type:uuid;not null;index" json:"payment_id"`
	MerchantID string `gorm:"column:merchant_id;type:varchar(64);not null;index" json:"merchant_id"`
	Amount     int64  `gorm:"column:amount;type:bigint;not null" json:"amount"`
	Currency   string `gorm:"column:currency;type:varchar(3);not null" json:"currency"`
	Reason     string `gorm:"column:reason;type:varchar(255)" json:"reason"`
	// GatewayRefundID stays nil when the gateway call ended without a definitive answer.
	GatewayRefundID *string      `gorm:"column:gateway_refund_id;type:varchar(128);uniqueIndex" json:"gateway_refund_id"`
	Status          RefundStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`
	InitiatedBy     string       `gorm:"column:initiated_by;type:varchar(64);not null" json:"initiated_by"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

func (Refund) TableName() string {
	return "refund"
}

func (r *Refund) GetMerchantID() string {
	if r == nil {
		return ""
	}
	return r.MerchantID
}
