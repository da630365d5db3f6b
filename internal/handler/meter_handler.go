package handler

import (
	"net/http"

	"energy-billing/internal/middleware"
	"energy-billing/internal/service"
	"energy-billing/pkg/pagination"
	"energy-billing/pkg/response"

	"github.com/gin-gonic/gin"
)

type MeterHandler struct {
	meterService service.MeterService
	auth         *middleware.Auth
}

func NewMeterHandler(meterService service.MeterService, auth *middleware.Auth) *MeterHandler {
	return &MeterHandler{meterService: meterService, auth: auth}
}

func (h *MeterHandler) RegisterRoutes(router *gin.RouterGroup) {
	readers := h.auth.RequireRole(middleware.RoleAdmin, middleware.RoleOperator, middleware.RoleViewer)
	writers := h.auth.RequireRole(middleware.RoleAdmin, middleware.RoleOperator)

	meters := router.Group("/api/meters")
	{
		meters.GET("", readers, h.ListMeters)
		meters.GET("/:id", readers, h.GetMeter)
		meters.POST("", writers, h.CreateMeter)
		meters.PUT("/:id/address", writers, h.UpdateMeterAddress)
		meters.DELETE("/:id", h.auth.RequireRole(middleware.RoleAdmin), h.DeleteMeter)
	}
}

// ListMeters returns a paginated list of meters
// @Summary      List meters
// @Tags         meters
// @Security     BearerAuth
// @Produce      json
// @Param        page   query     int  false  "Page number (default 1)"
// @Param        limit  query     int  false  "Number of items per page (default 20)"
// @Success      200    {object}  response.Response{data=pagination.Page[service.MeterResponse]}
// @Router       /api/meters [get]
func (h *MeterHandler) ListMeters(c *gin.Context) {
	p := pagination.Parse(c)

	meters, total, err := h.meterService.ListMeters(c.Request.Context(), p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, pagination.NewPage(meters, total, p)))
}

// GetMeter returns one meter
// @Summary      Get meter
// @Tags         meters
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Meter ID"
// @Success      200  {object}  response.Response{data=service.MeterResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/meters/{id} [get]
func (h *MeterHandler) GetMeter(c *gin.Context) {
	meter, err := h.meterService.GetMeter(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, meter))
}

// CreateMeter registers a metering point
// @Summary      Create meter
// @Tags         meters
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateMeterRequest  true  "Create Meter Payload"
// @Success      201      {object}  response.Response{data=service.MeterResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/meters [post]
func (h *MeterHandler) CreateMeter(c *gin.Context) {
	var req service.CreateMeterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	meter, err := h.meterService.CreateMeter(c.Request.Context(), req, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, meter))
}

// UpdateMeterAddress changes the supply address of a meter
// @Summary      Update meter address
// @Tags         meters
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                             true  "Meter ID"
// @Param        payload  body      service.UpdateMeterAddressRequest  true  "Address Payload"
// @Success      200      {object}  response.Response{data=service.MeterResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/meters/{id}/address [put]
func (h *MeterHandler) UpdateMeterAddress(c *gin.Context) {
	var req service.UpdateMeterAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	meter, err := h.meterService.UpdateMeterAddress(c.Request.Context(), c.Param("id"), req, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, meter))
}

// DeleteMeter removes a meter without contracts
// @Summary      Delete meter
// @Tags         meters
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Meter ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/meters/{id} [delete]
func (h *MeterHandler) DeleteMeter(c *gin.Context) {
	if err := h.meterService.DeleteMeter(c.Request.Context(), c.Param("id"), middleware.UserID(c)); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"deleted": c.Param("id")}))
}
