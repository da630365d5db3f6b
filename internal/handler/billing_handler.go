package handler

import (
	"net/http"

	"energy-billing/internal/logger"
	"energy-billing/internal/middleware"
	"energy-billing/internal/service"
	"energy-billing/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type BillingHandler struct {
	billingService service.BillingService
	auth           *middleware.Auth
}

func NewBillingHandler(billingService service.BillingService, auth *middleware.Auth) *BillingHandler {
	return &BillingHandler{billingService: billingService, auth: auth}
}

func (h *BillingHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/billing")
	group.Use(h.auth.RequireRole(middleware.RoleAdmin, middleware.RoleOperator))
	{
		group.POST("/run", h.RunBilling)
	}
}

// RunBilling bills every contract active during the period
// @Summary      Run billing for a period
// @Description  Generates or replaces one invoice per contract active during the month. Per-contract failures are listed in errors; the run continues.
// @Tags         billing
// @Security     BearerAuth
// @Produce      json
// @Param        period  query     string  true  "Billing period (YYYY-MM)"
// @Success      200     {object}  response.Response{data=service.BillingRunResult}
// @Failure      400     {object}  response.Response
// @Failure      409     {object}  response.Response
// @Failure      503     {object}  response.Response{data=service.BillingRunResult}
// @Router       /api/billing/run [post]
func (h *BillingHandler) RunBilling(c *gin.Context) {
	period := c.Query("period")
	if period == "" {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "period query parameter is required (YYYY-MM)"))
		return
	}

	result, err := h.billingService.RunBilling(c.Request.Context(), period, middleware.UserID(c))
	if err != nil {
		if result != nil {
			// Committed invoices stay; report what was done before the run stopped
			status := statusFor(err)
			logger.FromGin(c).Warn("Billing run stopped early", zap.String("period", period), zap.Error(err))
			c.JSON(status, response.Partial(status, result, err.Error()))
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}
