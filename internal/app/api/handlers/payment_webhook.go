package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sari/payments/internal/app/service/webhook"
	"github.com/sari/payments/pkg/logctx"
	"github.com/sari/payments/pkg/response"
)

const maxWebhookBody = 1 << 20

// ApiTapWebhook acknowledges with 200 whenever the delivery needs no retry,
// rejects bad signatures with 401 and answers 500 so the gateway redelivers
// after storage or configuration failures.
//
// @Summary      Tap Webhook
// @Description  Receives Tap charge and refund notifications. The raw body is verified against the signature header before anything is parsed.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        hashstring  header  string  true  "Hex HMAC-SHA256 of the raw body"
// @Param        payload     body    object  true  "Tap charge or refund object"
// @Success      200  {object}  handlers.RespWebhook
// @Failure      401  {object}  handlers.RespOK
// @Failure      500  {object}  handlers.RespOK
// @Router       /api/v2/payment/webhook/tap [post]
func ApiTapWebhook(svc *webhook.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		l := logctx.FromGin(c, log)
		l.Infow("webhook_tap_received")

		payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			l.Warnw("webhook_tap_read_error", "error", err.Error())
			c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, nil))
			return
		}

		res, err := svc.Handle(c.Request.Context(), payload, c.GetHeader(svc.SignatureHeader()))
		switch {
		case errors.Is(err, webhook.ErrInvalidSignature):
			c.JSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeUnauthorized, nil))
			return
		case errors.Is(err, webhook.ErrChargeNotRecorded):
			l.Warnw("webhook_tap_redelivery_requested", "error", err.Error())
			c.JSON(http.StatusInternalServerError, response.ErrorT[any](response.APIResponseCodeError, nil))
			return
		case err != nil:
			l.Errorw("webhook_tap_handle_error", "error", err.Error())
			c.JSON(http.StatusInternalServerError, response.ErrorT[any](response.APIResponseCodeError, nil))
			return
		}
		l.Infow("webhook_tap_handled", "outcome", res.Outcome)
		c.JSON(http.StatusOK, response.OKT(&WebhookAck{Outcome: string(res.Outcome)}))
	}
}

func RegisterPaymentWebhookRoutes(r gin.IRouter, svc *webhook.Service, log *zap.SugaredLogger) {
	r.POST("/tap", ApiTapWebhook(svc, log))
}
