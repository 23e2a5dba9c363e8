package tap

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sari/payments/pkg/types"
)

const (
	ObjectCharge = "charge"
	ObjectRefund = "refund"
)

var ErrMalformedNotification = errors.New("malformed tap notification")

// Notification is a webhook body reduced to the fields reconciliation needs.
// Only parse bodies whose signature has already been verified.
type Notification struct {
	Object        string
	ID            string
	ChargeID      string
	GatewayStatus string
	Amount        int64
	Currency      string
	// Reference is reference.merchant for refunds, reference.transaction for charges.
	Reference string
	Message   string
	// CreatedAt is when the gateway created the charge; zero when absent.
	CreatedAt time.Time
}

type apiNotification struct {
	ID        string       `json:"id"`
	Object    string       `json:"object"`
	ChargeID  string       `json:"charge_id"`
	Status    string       `json:"status"`
	Amount    float64      `json:"amount"`
	Currency  string       `json:"currency"`
	Reference apiReference `json:"reference"`
	Response  struct {
		Message string `json:"message"`
	} `json:"response"`
	Transaction struct {
		// epoch milliseconds, sent as a string or a number
		Created json.RawMessage `json:"created"`
	} `json:"transaction"`
}

func ParseNotification(raw []byte) (*Notification, error) {
	var in apiNotification
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}
	if in.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrMalformedNotification)
	}
	n := &Notification{
		Object:        strings.ToLower(in.Object),
		ID:            in.ID,
		GatewayStatus: strings.ToUpper(in.Status),
		Currency:      strings.ToUpper(in.Currency),
		Message:       in.Response.Message,
		CreatedAt:     parseEpochMillis(in.Transaction.Created),
	}
	if n.Object == "" {
		switch {
		case strings.HasPrefix(in.ID, "re_"):
			n.Object = ObjectRefund
		case strings.HasPrefix(in.ID, "chg_"):
			n.Object = ObjectCharge
		}
	}
	switch n.Object {
	case ObjectRefund:
		n.ChargeID = in.ChargeID
		n.Reference = in.Reference.Merchant
	case ObjectCharge:
		n.ChargeID = in.ID
		n.Reference = in.Reference.Transaction
	}
	if n.Currency != "" {
		if amt, err := types.MajorToMinor(in.Amount, n.Currency); err == nil {
			n.Amount = amt
		}
	}
	return n, nil
}

func parseEpochMillis(raw json.RawMessage) time.Time {
	v := strings.Trim(string(raw), `"`)
	if v == "" || v == "null" {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
