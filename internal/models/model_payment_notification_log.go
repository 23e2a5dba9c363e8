package models

import (
	"time"

	"gorm.io/datatypes"
)

type PaymentNotificationLogStatus string

const (
	PaymentNotificationLogStatusReceived     PaymentNotificationLogStatus = "received"
	PaymentNotificationLogStatusRejected     PaymentNotificationLogStatus = "rejected"
	PaymentNotificationLogStatusHandled      PaymentNotificationLogStatus = "handled"
	PaymentNotificationLogStatusHandleFailed PaymentNotificationLogStatus = "handle_failed"
)

// PaymentNotificationLog records gateway webhook deliveries and synchronous
// verification polls, for troubleshooting and dispute resolution.
type PaymentNotificationLog struct {
	ID               string                       `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Gateway          string                       `gorm:"column:gateway;type:varchar(64);not null" json:"gateway"`
	Channel          string                       `gorm:"column:channel;type:varchar(32);not null" json:"channel"`
	MerchantID       *string                      `gorm:"column:merchant_id;type:varchar(64)" json:"merchant_id"`
	TraceID          string                       `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	ChargeID         string                       `gorm:"column:charge_id;type:varchar(128);index" json:"charge_id"`
	EventKind        string                       `gorm:"column:event_kind;type:varchar(64)" json:"event_kind"`
	NotificationTime time.Time                    `gorm:"column:notification_time" json:"notification_time"`
	Data             datatypes.JSON               `gorm:"column:data;type:jsonb" json:"data"`
	Result           *datatypes.JSON              `gorm:"column:result;type:jsonb" json:"result"`
	Status           PaymentNotificationLogStatus `gorm:"column:status;type:varchar(64);not null" json:"status"`
	CreatedAt        time.Time                    `json:"created_at"`
	UpdatedAt        time.Time                    `json:"updated_at"`
}

func (PaymentNotificationLog) TableName() string { return "payment_notification_log" }
