package tap

import (
	"strings"

	"github.com/sari/payments/internal/models"
)

var chargeStatuses = map[string]models.PaymentStatus{
	"CAPTURED":    models.PaymentStatusPaid,
	"FAILED":      models.PaymentStatusFailed,
	"DECLINED":    models.PaymentStatusFailed,
	"RESTRICTED":  models.PaymentStatusFailed,
	"CANCELLED":   models.PaymentStatusFailed,
	"ABANDONED":   models.PaymentStatusFailed,
	"VOID":        models.PaymentStatusFailed,
	"TIMEDOUT":    models.PaymentStatusFailed,
	"EXPIRED":     models.PaymentStatusExpired,
	"REFUNDED":    models.PaymentStatusRefunded,
	"INITIATED":   models.PaymentStatusPending,
	"IN_PROGRESS": models.PaymentStatusPending,
	"AUTHORIZED":  models.PaymentStatusPending,
}

var refundStatuses = map[string]models.RefundStatus{
	"REFUNDED":    models.RefundStatusCompleted,
	"SUCCEEDED":   models.RefundStatusCompleted,
	"FAILED":      models.RefundStatusFailed,
	"DECLINED":    models.RefundStatusFailed,
	"CANCELLED":   models.RefundStatusFailed,
	"PENDING":     models.RefundStatusPending,
	"INITIATED":   models.RefundStatusPending,
	"IN_PROGRESS": models.RefundStatusPending,
}

// NormalizeChargeStatus maps a Tap charge status to a ledger status.
func NormalizeChargeStatus(s string) (models.PaymentStatus, bool) {
	st, ok := chargeStatuses[strings.ToUpper(strings.TrimSpace(s))]
	return st, ok
}

// NormalizeRefundStatus maps a Tap refund status to a ledger refund status.
func NormalizeRefundStatus(s string) (models.RefundStatus, bool) {
	st, ok := refundStatuses[strings.ToUpper(strings.TrimSpace(s))]
	return st, ok
}
