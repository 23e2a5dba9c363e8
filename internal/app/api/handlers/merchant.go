package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sari/payments/internal/app/api/middleware"
	"github.com/sari/payments/internal/app/service/payment"
	"github.com/sari/payments/internal/app/service/statistics"
	"github.com/sari/payments/pkg/response"
)

// @Summary      Create Charge
// @Description  Opens a hosted-checkout charge at the gateway and records it as pending.
// @Tags         Merchant
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body payment.CreateChargeRequest true "Charge request"
// @Success      200  {object}  handlers.RespPayment
// @Router       /api/v1/merchant/create_charge [post]
func ApiCreateCharge(svc *payment.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req payment.CreateChargeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		p, err := svc.CreateCharge(c.Request.Context(), middleware.MerchantID(c), &req)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(p))
	}
}

// @Summary      Verify Payment
// @Description  Polls the gateway for the charge status and reconciles the ledger.
// @Tags         Merchant
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body payment.PaymentIDRequest true "Payment id"
// @Success      200  {object}  handlers.RespVerifyPayment
// @Router       /api/v1/merchant/verify_payment [post]
func ApiVerifyPayment(svc *payment.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req payment.PaymentIDRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		res, err := svc.VerifyPayment(c.Request.Context(), middleware.MerchantID(c), req.PaymentID)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Get Payment
// @Tags         Merchant
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body payment.PaymentIDRequest true "Payment id"
// @Success      200  {object}  handlers.RespPayment
// @Router       /api/v1/merchant/get_payment [post]
func ApiGetPayment(svc *payment.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req payment.PaymentIDRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		p, err := svc.GetPayment(c.Request.Context(), middleware.MerchantID(c), req.PaymentID)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(p))
	}
}

// @Summary      List Payments
// @Description  Paginated, filterable list of the merchant's payments.
// @Tags         Merchant
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body types.ListQuery true "Filters, pagination and sorting"
// @Success      200  {object}  handlers.RespPaymentList
// @Router       /api/v1/merchant/list_payments [post]
func ApiListPayments(svc *payment.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req payment.ListRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		res, err := svc.ListPayments(c.Request.Context(), middleware.MerchantID(c), &req)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Create Refund
// @Description  Refunds part or all of a paid payment. The amount is reserved before the gateway call.
// @Tags         Merchant
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body payment.CreateRefundRequest true "Refund request"
// @Success      200  {object}  handlers.RespRefund
// @Router       /api/v1/merchant/create_refund [post]
func ApiCreateRefund(svc *payment.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req payment.CreateRefundRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		r, err := svc.CreateRefund(c.Request.Context(), middleware.MerchantID(c), middleware.StaffID(c), &req)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(r))
	}
}

// @Summary      List Refunds
// @Tags         Merchant
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body types.ListQuery true "Filters, pagination and sorting"
// @Success      200  {object}  handlers.RespRefundList
// @Router       /api/v1/merchant/list_refunds [post]
func ApiListRefunds(svc *payment.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req payment.ListRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		res, err := svc.ListRefunds(c.Request.Context(), middleware.MerchantID(c), &req)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Create Payment Link
// @Tags         Merchant
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body payment.CreatePaymentLinkRequest true "Payment link"
// @Success      200  {object}  handlers.RespPaymentLink
// @Router       /api/v1/merchant/create_payment_link [post]
func ApiCreatePaymentLink(svc *payment.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req payment.CreatePaymentLinkRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		l, err := svc.CreatePaymentLink(c.Request.Context(), middleware.MerchantID(c), &req)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(l))
	}
}

// @Summary      List Payment Links
// @Tags         Merchant
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body types.ListQuery true "Filters, pagination and sorting"
// @Success      200  {object}  handlers.RespPaymentLinkList
// @Router       /api/v1/merchant/list_payment_links [post]
func ApiListPaymentLinks(svc *payment.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req payment.ListRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		res, err := svc.ListPaymentLinks(c.Request.Context(), middleware.MerchantID(c), &req)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Disable Payment Link
// @Tags         Merchant
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body payment.PaymentLinkIDRequest true "Payment link id"
// @Success      200  {object}  handlers.RespPaymentLink
// @Router       /api/v1/merchant/disable_payment_link [post]
func ApiDisablePaymentLink(svc *payment.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req payment.PaymentLinkIDRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		l, err := svc.DisablePaymentLink(c.Request.Context(), middleware.MerchantID(c), req.ID)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(l))
	}
}

// @Summary      Get Statistics
// @Description  Daily and total payment volume, refunds and status counts for the merchant.
// @Tags         Merchant
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body statistics.StatisticRequest true "Statistic request parameters"
// @Success      200  {object}  handlers.RespStatistic
// @Router       /api/v1/merchant/get_statistics [post]
func ApiGetStatistics(svc *statistics.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statistics.StatisticRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		res, err := svc.GetStatistic(c.Request.Context(), middleware.MerchantID(c), &req)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// RegisterMerchantRoutes mounts the dashboard RPCs. The group must already
// carry AuthMiddleware.
func RegisterMerchantRoutes(r gin.IRouter, svc *payment.Service, stats *statistics.Service, log *zap.SugaredLogger) {
	r.POST("/create_charge", ApiCreateCharge(svc, log))
	r.POST("/verify_payment", ApiVerifyPayment(svc, log))
	r.POST("/get_payment", ApiGetPayment(svc, log))
	r.POST("/list_payments", ApiListPayments(svc, log))
	r.POST("/create_refund", ApiCreateRefund(svc, log))
	r.POST("/list_refunds", ApiListRefunds(svc, log))
	r.POST("/create_payment_link", ApiCreatePaymentLink(svc, log))
	r.POST("/list_payment_links", ApiListPaymentLinks(svc, log))
	r.POST("/disable_payment_link", ApiDisablePaymentLink(svc, log))
	r.POST("/get_statistics", ApiGetStatistics(stats, log))
}
