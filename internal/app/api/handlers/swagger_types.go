package handlers

import (
	"time"

	"github.com/sari/payments/internal/app/service/payment"
	"github.com/sari/payments/internal/app/service/statistics"
	"github.com/sari/payments/internal/models"
	"github.com/sari/payments/pkg/response"
)

// PayLinkResponse is what the public link page needs to redirect the customer.
type PayLinkResponse struct {
	PaymentID  string     `json:"payment_id"`
	PaymentURL string     `json:"payment_url"`
	ExpiresAt  *time.Time `json:"expires_at"`
}

type WebhookAck struct {
	Outcome string `json:"outcome"`
}

// RespOK is a generic OK envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

type RespPayment struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    models.Payment           `json:"data"`
}

type RespVerifyPayment struct {
	Code    response.APIResponseCode      `json:"code"`
	Message string                        `json:"message"`
	Data    payment.VerifyPaymentResponse `json:"data"`
}

type RespPaymentList struct {
	Code    response.APIResponseCode             `json:"code"`
	Message string                               `json:"message"`
	Data    payment.ListResponse[models.Payment] `json:"data"`
}

type RespRefund struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    models.Refund            `json:"data"`
}

type RespRefundList struct {
	Code    response.APIResponseCode            `json:"code"`
	Message string                              `json:"message"`
	Data    payment.ListResponse[models.Refund] `json:"data"`
}

type RespPaymentLink struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    models.PaymentLink       `json:"data"`
}

type RespPaymentLinkList struct {
	Code    response.APIResponseCode                 `json:"code"`
	Message string                                   `json:"message"`
	Data    payment.ListResponse[models.PaymentLink] `json:"data"`
}

type RespStatistic struct {
	Code    response.APIResponseCode     `json:"code"`
	Message string                       `json:"message"`
	Data    statistics.StatisticResponse `json:"data"`
}

type RespPayLink struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    PayLinkResponse          `json:"data"`
}

type RespWebhook struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    WebhookAck               `json:"data"`
}
