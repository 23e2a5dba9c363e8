package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sari/payments/internal/app/service/ledger"
	"github.com/sari/payments/internal/app/service/payment"
	"github.com/sari/payments/internal/platform/tap"
	"github.com/sari/payments/pkg/logctx"
	"github.com/sari/payments/pkg/response"
	"github.com/sari/payments/pkg/types"
)

// writeError maps service errors onto the response envelope. Like every
// RPC answer it is sent with HTTP 200; the code field carries the outcome.
// Ownership mismatches arrive as ledger.ErrNotFound and are reported as
// not found, never as forbidden.
func writeError(c *gin.Context, log *zap.SugaredLogger, err error) {
	var gerr *tap.GatewayError
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, nil))
	case errors.Is(err, payment.ErrValidation),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, types.ErrFilterField),
		errors.Is(err, types.ErrUnsupportedCurrency):
		c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
	case errors.Is(err, ledger.ErrRefundExceedsAmount),
		errors.Is(err, ledger.ErrInvalidTransition),
		errors.Is(err, payment.ErrNotRefundable),
		errors.Is(err, payment.ErrLinkUnavailable):
		c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeConflict, err.Error()))
	case errors.As(err, &gerr):
		logctx.FromGin(c, log).Warnw("gateway_error", "op", gerr.Op, "http_status", gerr.HTTPStatus, "err", err)
		c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeGateway, gerr.UserMessage()))
	default:
		logctx.FromGin(c, log).Errorw("request_failed", "err", err)
		_ = c.Error(err)
		c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, nil))
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
}
