package webhook

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sari/payments/internal/app/service/reconcile"
	"github.com/sari/payments/internal/platform/tap"
)

func TestToEvent(t *testing.T) {
	cases := []struct {
		name string
		in   tap.Notification
		want reconcile.Event
	}{
		{"captured", tap.Notification{Object: tap.ObjectCharge, ID: "chg_1", ChargeID: "chg_1", GatewayStatus: "CAPTURED", Amount: 500, Currency: "SAR"},
			reconcile.PaymentCaptured{ChargeID: "chg_1", Amount: 500, Currency: "SAR"}},
		{"declined", tap.Notification{Object: tap.ObjectCharge, ChargeID: "chg_1", GatewayStatus: "DECLINED", Message: "Insufficient funds"},
			reconcile.PaymentFailed{ChargeID: "chg_1", Reason: "Insufficient funds"}},
		{"refund failed", tap.Notification{Object: tap.ObjectRefund, ID: "re_1", ChargeID: "chg_1", GatewayStatus: "FAILED", Reference: "rf_1"},
			reconcile.RefundFailed{ChargeID: "chg_1", GatewayRefundID: "re_1", Reference: "rf_1", Reason: "FAILED"}},
		{"unknown status", tap.Notification{Object: tap.ObjectCharge, ChargeID: "chg_1", GatewayStatus: "MYSTERY"},
			reconcile.Unknown{ChargeID: "chg_1", Object: tap.ObjectCharge, GatewayStatus: "MYSTERY"}},
		{"unknown object", tap.Notification{Object: "invoice", ChargeID: "", GatewayStatus: "PAID"},
			reconcile.Unknown{Object: "invoice", GatewayStatus: "PAID"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := tc.in
			require.Equal(t, tc.want, ToEvent(&in))
		})
	}
}
