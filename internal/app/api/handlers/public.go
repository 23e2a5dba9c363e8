package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sari/payments/internal/app/service/payment"
	"github.com/sari/payments/pkg/response"
)

// @Summary      Pay Payment Link
// @Description  Public endpoint used by the payment link page. Opens a charge for the link's merchant.
// @Tags         Public
// @Accept       json
// @Produce      json
// @Param        link_id  path  string                  true  "Public link id"
// @Param        request  body  payment.PayLinkRequest  true  "Customer details"
// @Success      200  {object}  handlers.RespPayLink
// @Router       /api/v1/public/pay_link/{link_id} [post]
func ApiPayLink(svc *payment.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req payment.PayLinkRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		p, err := svc.PayLink(c.Request.Context(), c.Param("link_id"), &req)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(&PayLinkResponse{PaymentID: p.ID, PaymentURL: p.PaymentURL, ExpiresAt: p.ExpiresAt}))
	}
}

func RegisterPublicRoutes(r gin.IRouter, svc *payment.Service, log *zap.SugaredLogger) {
	r.POST("/pay_link/:link_id", ApiPayLink(svc, log))
}
