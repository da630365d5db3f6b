package handler

import (
	"net/http"

	"energy-billing/internal/middleware"
	"energy-billing/internal/service"
	"energy-billing/pkg/pagination"
	"energy-billing/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	contentTypePDF  = "application/pdf"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type InvoiceHandler struct {
	invoiceService service.InvoiceService
	auth           *middleware.Auth
}

func NewInvoiceHandler(invoiceService service.InvoiceService, auth *middleware.Auth) *InvoiceHandler {
	return &InvoiceHandler{invoiceService: invoiceService, auth: auth}
}

func (h *InvoiceHandler) RegisterRoutes(router *gin.RouterGroup) {
	invoices := router.Group("/api/invoices")
	invoices.Use(h.auth.RequireRole(middleware.RoleAdmin, middleware.RoleOperator, middleware.RoleViewer))
	{
		invoices.GET("", h.ListInvoices)
		invoices.GET("/export", h.ExportPeriod)
		invoices.GET("/:id", h.GetInvoice)
		invoices.GET("/:id/pdf", h.DownloadPDF)
	}
}

// ListInvoices returns a paginated list of invoices, newest period first
// @Summary      List invoices
// @Description  Retrieves invoices ordered by period and generation time, optionally filtered by period or contract
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        period       query     string  false  "Billing period (YYYY-MM)"
// @Param        contract_id  query     string  false  "Contract ID"
// @Param        page         query     int     false  "Page number (default 1)"
// @Param        limit        query     int     false  "Number of items per page (default 20)"
// @Success      200          {object}  response.Response{data=pagination.Page[service.InvoiceResponse]}
// @Failure      400          {object}  response.Response
// @Router       /api/invoices [get]
func (h *InvoiceHandler) ListInvoices(c *gin.Context) {
	p := pagination.Parse(c)

	invoices, total, err := h.invoiceService.ListInvoices(c.Request.Context(), service.InvoiceFilter{
		Period:     c.Query("period"),
		ContractID: c.Query("contract_id"),
		Page:       p.Page,
		Limit:      p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, pagination.NewPage(invoices, total, p)))
}

// GetInvoice returns one invoice
// @Summary      Get invoice
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Invoice ID"
// @Success      200  {object}  response.Response{data=service.InvoiceResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/invoices/{id} [get]
func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	invoice, err := h.invoiceService.GetInvoice(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, invoice))
}

// DownloadPDF renders the invoice document
// @Summary      Download invoice PDF
// @Tags         invoices
// @Security     BearerAuth
// @Produce      application/pdf
// @Param        id   path      string  true  "Invoice ID"
// @Success      200  {file}    binary
// @Failure      404  {object}  response.Response
// @Router       /api/invoices/{id}/pdf [get]
func (h *InvoiceHandler) DownloadPDF(c *gin.Context) {
	pdf, name, err := h.invoiceService.RenderPDF(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", `inline; filename="`+name+`"`)
	c.Data(http.StatusOK, contentTypePDF, pdf)
}

// ExportPeriod returns every invoice of a period as a spreadsheet
// @Summary      Export period invoices
// @Tags         invoices
// @Security     BearerAuth
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param        period  query     string  true  "Billing period (YYYY-MM)"
// @Success      200     {file}    binary
// @Failure      400     {object}  response.Response
// @Router       /api/invoices/export [get]
func (h *InvoiceHandler) ExportPeriod(c *gin.Context) {
	xlsx, name, err := h.invoiceService.ExportPeriod(c.Request.Context(), c.Query("period"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, contentTypeXLSX, xlsx)
}
