package handler

import (
	"net/http"
	"strconv"

	"energy-billing/internal/middleware"
	"energy-billing/internal/service"
	"energy-billing/pkg/response"

	"github.com/gin-gonic/gin"
)

type ReadingHandler struct {
	readingService service.ReadingService
	auth           *middleware.Auth
}

func NewReadingHandler(readingService service.ReadingService, auth *middleware.Auth) *ReadingHandler {
	return &ReadingHandler{readingService: readingService, auth: auth}
}

func (h *ReadingHandler) RegisterRoutes(router *gin.RouterGroup) {
	writers := h.auth.RequireRole(middleware.RoleAdmin, middleware.RoleOperator)

	readings := router.Group("/api/readings")
	{
		readings.GET("", h.auth.RequireRole(middleware.RoleAdmin, middleware.RoleOperator, middleware.RoleViewer), h.ListReadings)
		readings.POST("", writers, h.UpsertReadings)
		readings.DELETE("", writers, h.DeleteReading)
	}
}

// UpsertReadings stores a batch of hourly readings for one meter
// @Summary      Upsert readings
// @Description  Inserts or replaces hourly readings keyed by (meter, date, hour). Within one batch the last entry for a key wins.
// @Tags         readings
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.UpsertReadingsRequest  true  "Readings Payload"
// @Success      200      {object}  response.Response{data=service.UpsertReadingsResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/readings [post]
func (h *ReadingHandler) UpsertReadings(c *gin.Context) {
	var req service.UpsertReadingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	res, err := h.readingService.UpsertReadings(c.Request.Context(), req, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// ListReadings returns readings of a meter between two days, inclusive
// @Summary      List readings
// @Tags         readings
// @Security     BearerAuth
// @Produce      json
// @Param        meter_id  query     string  true  "Meter ID"
// @Param        from      query     string  true  "First day (YYYY-MM-DD)"
// @Param        to        query     string  true  "Last day (YYYY-MM-DD)"
// @Success      200       {object}  response.Response{data=service.MeterReadingsResponse}
// @Failure      400       {object}  response.Response
// @Router       /api/readings [get]
func (h *ReadingHandler) ListReadings(c *gin.Context) {
	meterID := c.Query("meter_id")
	if meterID == "" {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "meter_id query parameter is required"))
		return
	}

	res, err := h.readingService.ListReadings(c.Request.Context(), meterID, c.Query("from"), c.Query("to"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// DeleteReading removes one hourly reading
// @Summary      Delete reading
// @Tags         readings
// @Security     BearerAuth
// @Produce      json
// @Param        meter_id  query     string  true  "Meter ID"
// @Param        date      query     string  true  "Day (YYYY-MM-DD)"
// @Param        hour      query     int     true  "Hour (0-23)"
// @Success      200       {object}  response.Response
// @Failure      404       {object}  response.Response
// @Router       /api/readings [delete]
func (h *ReadingHandler) DeleteReading(c *gin.Context) {
	hour, err := strconv.Atoi(c.Query("hour"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "hour query parameter must be an integer"))
		return
	}

	if err := h.readingService.DeleteReading(c.Request.Context(), c.Query("meter_id"), c.Query("date"), hour, middleware.UserID(c)); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"deleted": 1}))
}
