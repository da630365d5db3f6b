package handler

import (
	"net/http"

	"energy-billing/internal/middleware"
	"energy-billing/internal/service"
	"energy-billing/pkg/pagination"
	"energy-billing/pkg/response"

	"github.com/gin-gonic/gin"
)

type ContractHandler struct {
	contractService service.ContractService
	auth            *middleware.Auth
}

func NewContractHandler(contractService service.ContractService, auth *middleware.Auth) *ContractHandler {
	return &ContractHandler{contractService: contractService, auth: auth}
}

func (h *ContractHandler) RegisterRoutes(router *gin.RouterGroup) {
	readers := h.auth.RequireRole(middleware.RoleAdmin, middleware.RoleOperator, middleware.RoleViewer)

	contracts := router.Group("/api/contracts")
	{
		contracts.GET("", readers, h.ListContracts)
		contracts.GET("/:id", readers, h.GetContract)
		contracts.POST("", h.auth.RequireRole(middleware.RoleAdmin, middleware.RoleOperator), h.CreateContract)
		contracts.DELETE("/:id", h.auth.RequireRole(middleware.RoleAdmin), h.DeleteContract)
	}
}

// ListContracts returns a paginated list of contracts
// @Summary      List contracts
// @Tags         contracts
// @Security     BearerAuth
// @Produce      json
// @Param        meter_id       query     string  false  "Filter by meter"
// @Param        contract_type  query     string  false  "Filter by type (FIXED, FLAT)"
// @Param        page           query     int     false  "Page number (default 1)"
// @Param        limit          query     int     false  "Number of items per page (default 20)"
// @Success      200            {object}  response.Response{data=pagination.Page[service.ContractResponse]}
// @Router       /api/contracts [get]
func (h *ContractHandler) ListContracts(c *gin.Context) {
	p := pagination.Parse(c)

	contracts, total, err := h.contractService.ListContracts(c.Request.Context(), service.ContractFilter{
		MeterID:      c.Query("meter_id"),
		ContractType: c.Query("contract_type"),
		Page:         p.Page,
		Limit:        p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, pagination.NewPage(contracts, total, p)))
}

// GetContract returns one contract with its meter
// @Summary      Get contract
// @Tags         contracts
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Contract ID"
// @Success      200  {object}  response.Response{data=service.ContractResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/contracts/{id} [get]
func (h *ContractHandler) GetContract(c *gin.Context) {
	contract, err := h.contractService.GetContract(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, contract))
}

// CreateContract registers a supply contract on a meter
// @Summary      Create contract
// @Description  FIXED contracts take fixed_price_per_kwh_eur only; FLAT contracts take flat_monthly_fee_eur, included_kwh and overage_price_per_kwh_eur.
// @Tags         contracts
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateContractRequest  true  "Create Contract Payload"
// @Success      201      {object}  response.Response{data=service.ContractResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/contracts [post]
func (h *ContractHandler) CreateContract(c *gin.Context) {
	var req service.CreateContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	contract, err := h.contractService.CreateContract(c.Request.Context(), req, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, contract))
}

// DeleteContract removes a contract; its invoices are kept
// @Summary      Delete contract
// @Tags         contracts
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Contract ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/contracts/{id} [delete]
func (h *ContractHandler) DeleteContract(c *gin.Context) {
	if err := h.contractService.DeleteContract(c.Request.Context(), c.Param("id"), middleware.UserID(c)); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"deleted": c.Param("id")}))
}
