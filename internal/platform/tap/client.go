package tap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/sari/payments/pkg/config"
	"github.com/sari/payments/pkg/logctx"
	"github.com/sari/payments/pkg/metrics"
	"github.com/sari/payments/pkg/types"
)

const (
	gatewayName     = "tap"
	maxResponseSize = 1 << 20
)

// Client talks to the Tap Payments REST API. It never retries.
type Client struct {
	httpClient *http.Client
	baseURL    string
	secretKey  string
	log        *zap.SugaredLogger
	rec        metrics.Recorder
	now        func() time.Time
}

func NewClient(cfg *config.Config, log *zap.SugaredLogger, rec metrics.Recorder) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Tap.Timeout(),
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL:   strings.TrimRight(cfg.Tap.BaseURL, "/"),
		secretKey: cfg.Tap.SecretKey,
		log:       log,
		rec:       rec,
		now:       time.Now,
	}
}

func (c *Client) Name() string { return gatewayName }

// CreateCharge opens a hosted checkout charge.
func (c *Client) CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	const op = "create_charge"
	amount, err := types.MinorToMajor(req.Amount, req.Currency)
	if err != nil {
		return nil, &GatewayError{Op: op, Message: err.Error(), Err: err, HTTPStatus: http.StatusBadRequest, NotSent: true}
	}
	body := apiChargeRequest{
		Amount:      amount,
		Currency:    strings.ToUpper(req.Currency),
		ThreeDS:     true,
		Description: req.Description,
		Metadata:    req.Metadata,
		Reference:   apiReference{Transaction: req.Reference, Order: req.OrderID},
		Customer:    toAPICustomer(req.Customer),
	}
	body.Source.ID = "src_all"
	if req.WebhookURL != "" {
		body.Post = &apiURL{URL: req.WebhookURL}
	}
	if req.RedirectURL != "" {
		body.Redirect = &apiURL{URL: req.RedirectURL}
	}

	var out apiCharge
	if _, err := c.do(ctx, op, http.MethodPost, "/charges", body, &out); err != nil {
		return nil, err
	}
	if out.ID == "" || out.Transaction.URL == "" {
		return nil, &GatewayError{Op: op, HTTPStatus: http.StatusBadGateway, Message: "charge response missing id or payment url"}
	}
	status, ok := NormalizeChargeStatus(out.Status)
	if !ok {
		status = "pending"
	}
	res := &ChargeResult{
		ChargeID:      out.ID,
		PaymentURL:    out.Transaction.URL,
		Status:        status,
		GatewayStatus: out.Status,
	}
	if exp := out.Transaction.Expiry; exp != nil && exp.Period > 0 {
		t := c.now().Add(expiryUnit(exp.Type) * time.Duration(exp.Period))
		res.ExpiresAt = &t
	}
	return res, nil
}

// VerifyPayment fetches the current charge state. Read-only.
func (c *Client) VerifyPayment(ctx context.Context, chargeID string) (*ChargeStatusResult, error) {
	const op = "verify_payment"
	if chargeID == "" {
		return nil, &GatewayError{Op: op, HTTPStatus: http.StatusBadRequest, Message: "charge id is required"}
	}
	var out apiCharge
	raw, err := c.do(ctx, op, http.MethodGet, "/charges/"+url.PathEscape(chargeID), nil, &out)
	if err != nil {
		return nil, err
	}
	status, ok := NormalizeChargeStatus(out.Status)
	if !ok {
		return nil, &GatewayError{Op: op, HTTPStatus: http.StatusBadGateway, Message: fmt.Sprintf("unknown charge status %q", out.Status)}
	}
	res := &ChargeStatusResult{
		ChargeID:      out.ID,
		Status:        status,
		GatewayStatus: out.Status,
		Currency:      strings.ToUpper(out.Currency),
		Raw:           raw,
	}
	if res.Currency != "" {
		res.Amount, _ = types.MajorToMinor(out.Amount, res.Currency)
	}
	return res, nil
}

// CreateRefund asks the gateway to refund part or all of a charge. The
// gateway decides whether the amount is refundable.
func (c *Client) CreateRefund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	const op = "create_refund"
	amount, err := types.MinorToMajor(req.Amount, req.Currency)
	if err != nil {
		return nil, &GatewayError{Op: op, Message: err.Error(), Err: err, HTTPStatus: http.StatusBadRequest, NotSent: true}
	}
	reason := req.Reason
	if reason == "" {
		reason = "requested_by_customer"
	}
	body := apiRefundRequest{
		ChargeID:  req.ChargeID,
		Amount:    amount,
		Currency:  strings.ToUpper(req.Currency),
		Reason:    reason,
		Reference: apiReference{Merchant: req.Reference},
	}
	if req.WebhookURL != "" {
		body.Post = &apiURL{URL: req.WebhookURL}
	}
	var out apiRefund
	raw, err := c.do(ctx, op, http.MethodPost, "/refunds", body, &out)
	if err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, &GatewayError{Op: op, HTTPStatus: http.StatusBadGateway, Message: "refund response missing id"}
	}
	status, ok := NormalizeRefundStatus(out.Status)
	if !ok {
		status = "pending"
	}
	return &RefundResult{RefundID: out.ID, Status: status, GatewayStatus: out.Status, Raw: raw}, nil
}

// do sends one request and decodes a 2xx body into out. Any other outcome is
// a *GatewayError.
func (c *Client) do(ctx context.Context, op, method, path string, in any, out any) (json.RawMessage, error) {
	start := time.Now()
	log := logctx.FromCtx(ctx, c.log).With("gateway", gatewayName, "op", op)

	var reader io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, &GatewayError{Op: op, Message: "encode request", Err: err, NotSent: true}
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, &GatewayError{Op: op, Message: "build request", Err: err, NotSent: true}
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.rec.GatewayCall(gatewayName, op, "transport_error", start)
		log.Warnw("gateway call failed", "err", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, &GatewayError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		c.rec.GatewayCall(gatewayName, op, "transport_error", start)
		return nil, &GatewayError{Op: op, HTTPStatus: resp.StatusCode, Message: "read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.rec.GatewayCall(gatewayName, op, "rejected", start)
		gerr := decodeError(op, resp.StatusCode, raw)
		log.Warnw("gateway rejected request", "status", resp.StatusCode, "code", gerr.Code, "message", gerr.Message)
		return nil, gerr
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			c.rec.GatewayCall(gatewayName, op, "bad_response", start)
			return nil, &GatewayError{Op: op, HTTPStatus: resp.StatusCode, Message: "decode response", Err: err}
		}
	}
	c.rec.GatewayCall(gatewayName, op, "ok", start)
	log.Debugw("gateway call ok", "status", resp.StatusCode, "elapsed_ms", time.Since(start).Milliseconds())
	return raw, nil
}

func decodeError(op string, status int, raw []byte) *GatewayError {
	gerr := &GatewayError{Op: op, HTTPStatus: status, Message: http.StatusText(status)}
	var body apiErrorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return gerr
	}
	if len(body.Errors) > 0 {
		gerr.Code = body.Errors[0].Code
		if d := body.Errors[0].Description; d != "" {
			gerr.Message = d
		} else if e := body.Errors[0].Error; e != "" {
			gerr.Message = e
		}
	} else if body.Message != "" {
		gerr.Message = body.Message
	}
	return gerr
}

func toAPICustomer(c Customer) apiCustomer {
	out := apiCustomer{FirstName: c.Name, Email: c.Email}
	if c.Phone != "" {
		out.Phone = splitPhone(c.Phone)
	}
	return out
}

var dialCodes = []string{"966", "971", "965", "973", "968", "974", "962", "20", "44", "1"}

// splitPhone turns "+966500000000" into country code 966 and the national
// number. Unknown prefixes are sent as a bare number.
func splitPhone(p string) *apiPhone {
	p = strings.ReplaceAll(strings.TrimSpace(p), " ", "")
	if rest, ok := strings.CutPrefix(p, "+"); ok {
		for _, code := range dialCodes {
			if n, ok := strings.CutPrefix(rest, code); ok && n != "" {
				return &apiPhone{CountryCode: code, Number: n}
			}
		}
	}
	return &apiPhone{Number: p}
}

func expiryUnit(t string) time.Duration {
	switch strings.ToUpper(t) {
	case "SECOND", "SECONDS":
		return time.Second
	case "HOUR", "HOURS":
		return time.Hour
	case "DAY", "DAYS":
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

var Module = fx.Options(
	fx.Provide(NewClient),
)
