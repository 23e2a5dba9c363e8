package webhook

import (
	"github.com/sari/payments/internal/app/service/reconcile"
	"github.com/sari/payments/internal/platform/tap"
)

// ToEvent maps a verified gateway notification onto a reconciliation event.
func ToEvent(n *tap.Notification) reconcile.Event {
	switch n.Object {
	case tap.ObjectCharge:
		status, ok := tap.NormalizeChargeStatus(n.GatewayStatus)
		if !ok {
			break
		}
		return reconcile.PaymentEvent(n.ChargeID, status, n.Amount, n.Currency, failureReason(n))
	case tap.ObjectRefund:
		status, ok := tap.NormalizeRefundStatus(n.GatewayStatus)
		if !ok {
			break
		}
		return reconcile.RefundEvent(n.ChargeID, n.ID, n.Reference, status, n.Amount, failureReason(n))
	}
	return reconcile.Unknown{ChargeID: n.ChargeID, Object: n.Object, GatewayStatus: n.GatewayStatus}
}

func failureReason(n *tap.Notification) string {
	if n.Message != "" {
		return n.Message
	}
	return n.GatewayStatus
}
