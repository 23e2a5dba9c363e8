package tap

import (
	"encoding/json"
	"time"

	"github.com/sari/payments/internal/models"
)

// Customer identifies the payer on the hosted checkout page.
type Customer struct {
	Name  string
	Phone string
	Email string
}

type ChargeRequest struct {
	// Reference is the local payment id, echoed back as reference.transaction.
	Reference   string
	OrderID     string
	Amount      int64
	Currency    string
	Customer    Customer
	Description string
	RedirectURL string
	WebhookURL  string
	Metadata    map[string]any
}

type ChargeResult struct {
	ChargeID      string
	PaymentURL    string
	Status        models.PaymentStatus
	GatewayStatus string
	ExpiresAt     *time.Time
}

type ChargeStatusResult struct {
	ChargeID      string
	Status        models.PaymentStatus
	GatewayStatus string
	Amount        int64
	Currency      string
	Raw           json.RawMessage
}

type RefundRequest struct {
	ChargeID string
	// Reference is the local refund id, sent as reference.merchant so an
	// unanswered call can still be matched when the refund webhook arrives.
	Reference  string
	Amount     int64
	Currency   string
	Reason     string
	WebhookURL string
}

type RefundResult struct {
	RefundID      string
	Status        models.RefundStatus
	GatewayStatus string
	Raw           json.RawMessage
}

// wire shapes

type apiPhone struct {
	CountryCode string `json:"country_code,omitempty"`
	Number      string `json:"number,omitempty"`
}

type apiCustomer struct {
	FirstName string    `json:"first_name"`
	Email     string    `json:"email,omitempty"`
	Phone     *apiPhone `json:"phone,omitempty"`
}

type apiURL struct {
	URL string `json:"url"`
}

type apiReference struct {
	Transaction string `json:"transaction,omitempty"`
	Order       string `json:"order,omitempty"`
	Merchant    string `json:"merchant,omitempty"`
}

type apiChargeRequest struct {
	Amount      float64        `json:"amount"`
	Currency    string         `json:"currency"`
	ThreeDS     bool           `json:"threeDSecure"`
	SaveCard    bool           `json:"save_card"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Reference   apiReference   `json:"reference"`
	Customer    apiCustomer    `json:"customer"`
	Source      struct {
		ID string `json:"id"`
	} `json:"source"`
	Post     *apiURL `json:"post,omitempty"`
	Redirect *apiURL `json:"redirect,omitempty"`
}

type apiExpiry struct {
	Period float64 `json:"period"`
	Type   string  `json:"type"`
}

type apiCharge struct {
	ID          string       `json:"id"`
	Object      string       `json:"object"`
	Status      string       `json:"status"`
	Amount      float64      `json:"amount"`
	Currency    string       `json:"currency"`
	Reference   apiReference `json:"reference"`
	Transaction struct {
		URL    string     `json:"url"`
		Expiry *apiExpiry `json:"expiry"`
	} `json:"transaction"`
	Response struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"response"`
}

type apiRefundRequest struct {
	ChargeID  string       `json:"charge_id"`
	Amount    float64      `json:"amount"`
	Currency  string       `json:"currency"`
	Reason    string       `json:"reason"`
	Reference apiReference `json:"reference"`
	Post      *apiURL      `json:"post,omitempty"`
}

type apiRefund struct {
	ID        string       `json:"id"`
	Object    string       `json:"object"`
	ChargeID  string       `json:"charge_id"`
	Status    string       `json:"status"`
	Amount    float64      `json:"amount"`
	Currency  string       `json:"currency"`
	Reference apiReference `json:"reference"`
	Response  struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"response"`
}

type apiErrorBody struct {
	Errors []struct {
		Code        string `json:"code"`
		Description string `json:"description"`
		Error       string `json:"error"`
	} `json:"errors"`
	Message string `json:"message"`
}
