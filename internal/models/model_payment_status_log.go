package models

import (
	"time"

	"gorm.io/datatypes"
)

type StatusLogEntity string

const (
	StatusLogEntityPayment     StatusLogEntity = "payment"
	StatusLogEntityRefund      StatusLogEntity = "refund"
	StatusLogEntityPaymentLink StatusLogEntity = "payment_link"
)

// StatusChangeSource names the path that drove a status change.
type StatusChangeSource string

const (
	StatusChangeSourceWebhook   StatusChangeSource = "webhook"
	StatusChangeSourceVerify    StatusChangeSource = "verify"
	StatusChangeSourceRefund    StatusChangeSource = "refund"
	StatusChangeSourceExpiryJob StatusChangeSource = "expiry_job"
	StatusChangeSourceMerchant  StatusChangeSource = "merchant"
)

// PaymentStatusLog is the audit trail of applied status changes.
type PaymentStatusLog struct {
	ID         string             `gorm:"column:id;primary_key;type:uuid;index:idx_entity_id_id,priority:2,sort:desc"`
	EntityType StatusLogEntity    `gorm:"column:entity_type;type:varchar(32);not null"`
	EntityID   string             `gorm:"column:entity_id;type:uuid;not null;index:idx_entity_id_id,priority:1"`
	MerchantID string             `gorm:"column:merchant_id;type:varchar(64);not null"`
	FromStatus string             `gorm:"column:from_status;type:varchar(32)"`
	ToStatus   string             `gorm:"column:to_status;type:varchar(32);not null"`
	Source     StatusChangeSource `gorm:"column:source;type:varchar(32);not null"`
	// Extra carries context such as the gateway charge id or the trace id.
	Extra     datatypes.JSONMap `gorm:"column:extra;type:jsonb;default:'{}'"`
	CreatedAt time.Time         `json:"created_at"`
}

func (PaymentStatusLog) TableName() string {
	return "payment_status_log"
}
