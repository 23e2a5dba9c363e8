package reconcile

import "github.com/sari/payments/internal/models"

type EventKind string

const (
	KindPaymentCaptured EventKind = "payment_captured"
	KindPaymentFailed   EventKind = "payment_failed"
	KindPaymentExpired  EventKind = "payment_expired"
	KindPaymentPending  EventKind = "payment_pending"
	KindPaymentRefunded EventKind = "payment_refunded"
	KindRefundCompleted EventKind = "refund_completed"
	KindRefundFailed    EventKind = "refund_failed"
	KindRefundPending   EventKind = "refund_pending"
	KindUnknown         EventKind = "unknown"
)

// Event is a gateway status claim that has already passed signature
// verification (webhook) or came from an authenticated gateway poll.
type Event interface {
	Kind() EventKind
	Charge() string
}

type PaymentCaptured struct {
	ChargeID string
	Amount   int64
	Currency string
}

type PaymentFailed struct {
	ChargeID string
	Reason   string
}

type PaymentExpired struct{ ChargeID string }

type PaymentPending struct{ ChargeID string }

// PaymentRefunded is reported by a charge poll once the gateway considers the
// whole charge refunded.
type PaymentRefunded struct{ ChargeID string }

type RefundCompleted struct {
	ChargeID        string
	GatewayRefundID string
	// Reference is the local refund id sent with the refund request.
	Reference string
	Amount    int64
}

type RefundFailed struct {
	ChargeID        string
	GatewayRefundID string
	Reference       string
	Reason          string
}

type RefundPending struct {
	ChargeID        string
	GatewayRefundID string
	Reference       string
}

type Unknown struct {
	ChargeID      string
	Object        string
	GatewayStatus string
}

func (PaymentCaptured) Kind() EventKind { return KindPaymentCaptured }
func (PaymentFailed) Kind() EventKind   { return KindPaymentFailed }
func (PaymentExpired) Kind() EventKind  { return KindPaymentExpired }
func (PaymentPending) Kind() EventKind  { return KindPaymentPending }
func (PaymentRefunded) Kind() EventKind { return KindPaymentRefunded }
func (RefundCompleted) Kind() EventKind { return KindRefundCompleted }
func (RefundFailed) Kind() EventKind    { return KindRefundFailed }
func (RefundPending) Kind() EventKind   { return KindRefundPending }
func (Unknown) Kind() EventKind         { return KindUnknown }

func (e PaymentCaptured) Charge() string { return e.ChargeID }
func (e PaymentFailed) Charge() string   { return e.ChargeID }
func (e PaymentExpired) Charge() string  { return e.ChargeID }
func (e PaymentPending) Charge() string  { return e.ChargeID }
func (e PaymentRefunded) Charge() string { return e.ChargeID }
func (e RefundCompleted) Charge() string { return e.ChargeID }
func (e RefundFailed) Charge() string    { return e.ChargeID }
func (e RefundPending) Charge() string   { return e.ChargeID }
func (e Unknown) Charge() string         { return e.ChargeID }

// PaymentEvent builds the event matching a normalized charge status.
func PaymentEvent(chargeID string, status models.PaymentStatus, amount int64, currency, reason string) Event {
	switch status {
	case models.PaymentStatusPaid:
		return PaymentCaptured{ChargeID: chargeID, Amount: amount, Currency: currency}
	case models.PaymentStatusFailed:
		return PaymentFailed{ChargeID: chargeID, Reason: reason}
	case models.PaymentStatusExpired:
		return PaymentExpired{ChargeID: chargeID}
	case models.PaymentStatusPending:
		return PaymentPending{ChargeID: chargeID}
	case models.PaymentStatusRefunded:
		return PaymentRefunded{ChargeID: chargeID}
	}
	return Unknown{ChargeID: chargeID, Object: "charge", GatewayStatus: string(status)}
}

// RefundEvent builds the event matching a normalized refund status.
func RefundEvent(chargeID, gatewayRefundID, reference string, status models.RefundStatus, amount int64, reason string) Event {
	switch status {
	case models.RefundStatusCompleted:
		return RefundCompleted{ChargeID: chargeID, GatewayRefundID: gatewayRefundID, Reference: reference, Amount: amount}
	case models.RefundStatusFailed:
		return RefundFailed{ChargeID: chargeID, GatewayRefundID: gatewayRefundID, Reference: reference, Reason: reason}
	case models.RefundStatusPending:
		return RefundPending{ChargeID: chargeID, GatewayRefundID: gatewayRefundID, Reference: reference}
	}
	return Unknown{ChargeID: chargeID, Object: "refund", GatewayStatus: string(status)}
}
