package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	ierr "github.com/storiqa/billing/internal/errors"
	"github.com/storiqa/billing/internal/logger"
	"github.com/storiqa/billing/internal/service"
	"github.com/storiqa/billing/internal/types"
)

type InvoiceHandler struct {
	service service.InvoiceService
	log     *logger.Logger
}

func NewInvoiceHandler(service service.InvoiceService, log *logger.Logger) *InvoiceHandler {
	return &InvoiceHandler{service: service, log: log}
}

// @Summary Create an invoice
// @Description Create an invoice for a saga checkout with one order per store
// @Tags Invoices
// @Accept json
// @Produce json
// @Param invoice body service.CreateInvoiceInput true "Invoice"
// @Success 201 {object} invoice.Dump
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 500 {object} middleware.ErrorResponse
// @Router /invoices [post]
func (h *InvoiceHandler) CreateInvoice(c *gin.Context) {
	var req service.CreateInvoiceInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Errorw("Failed to bind JSON", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	dump, err := h.service.CreateInvoice(c.Request.Context(), req)
	if err != nil {
		h.log.Errorw("Failed to create invoice", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, dump)
}

// @Summary Get an invoice
// @Description Get an invoice priced at current exchange rates
// @Tags Invoices
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {object} invoice.Dump
// @Failure 404 {object} middleware.ErrorResponse
// @Router /invoices/{id} [get]
func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	id, err := types.ParseUUID(c.Param("id"))
	if err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invoice ID must be a UUID").
			Mark(ierr.ErrValidation))
		return
	}

	dump, err := h.service.GetInvoice(c.Request.Context(), id)
	if err != nil {
		h.log.Errorw("Failed to get invoice", "error", err)
		c.Error(err)
		return
	}
	if dump == nil {
		c.Error(ierr.NewError("invoice not found").
			WithHint("Invoice not found").
			Mark(ierr.ErrNotFound))
		return
	}

	c.JSON(http.StatusOK, dump)
}

// @Summary Get the invoice covering an order
// @Tags Invoices
// @Produce json
// @Param order_id path string true "Order ID"
// @Success 200 {object} invoice.Dump
// @Failure 404 {object} middleware.ErrorResponse
// @Router /invoices/by-order/{order_id} [get]
func (h *InvoiceHandler) GetInvoiceByOrderID(c *gin.Context) {
	orderID, err := types.ParseUUID(c.Param("order_id"))
	if err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Order ID must be a UUID").
			Mark(ierr.ErrValidation))
		return
	}

	dump, err := h.service.GetInvoiceByOrderID(c.Request.Context(), orderID)
	if err != nil {
		h.log.Errorw("Failed to get invoice by order", "error", err)
		c.Error(err)
		return
	}
	if dump == nil {
		c.Error(ierr.NewError("invoice not found").
			WithHint("No invoice covers this order").
			Mark(ierr.ErrNotFound))
		return
	}

	c.JSON(http.StatusOK, dump)
}

// @Summary Recalculate an invoice
// @Description Refresh exchange rates and re-price the invoice
// @Tags Invoices
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {object} invoice.Dump
// @Failure 404 {object} middleware.ErrorResponse
// @Router /invoices/{id}/recalc [post]
func (h *InvoiceHandler) RecalcInvoice(c *gin.Context) {
	id, err := types.ParseUUID(c.Param("id"))
	if err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invoice ID must be a UUID").
			Mark(ierr.ErrValidation))
		return
	}

	dump, err := h.service.RecalcInvoice(c.Request.Context(), id)
	if err != nil {
		h.log.Errorw("Failed to recalculate invoice", "error", err)
		c.Error(err)
		return
	}
	if dump == nil {
		c.Error(ierr.NewError("invoice not found").
			WithHint("Invoice not found").
			Mark(ierr.ErrNotFound))
		return
	}

	c.JSON(http.StatusOK, dump)
}

// @Summary List order ids of an invoice
// @Tags Invoices
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {array} string
// @Router /invoices/{id}/orders [get]
func (h *InvoiceHandler) GetInvoiceOrderIDs(c *gin.Context) {
	id, err := types.ParseUUID(c.Param("id"))
	if err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invoice ID must be a UUID").
			Mark(ierr.ErrValidation))
		return
	}

	ids, err := h.service.GetInvoiceOrderIDs(c.Request.Context(), id)
	if err != nil {
		h.log.Errorw("Failed to list invoice orders", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, ids)
}

// @Summary Delete an invoice
// @Description Delete a saga's invoice with its orders, rates and intent
// @Tags Invoices
// @Param saga_id path string true "Saga ID"
// @Success 204
// @Failure 404 {object} middleware.ErrorResponse
// @Router /invoices/by-saga/{saga_id} [delete]
func (h *InvoiceHandler) DeleteInvoice(c *gin.Context) {
	sagaID, err := types.ParseUUID(c.Param("saga_id"))
	if err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Saga ID must be a UUID").
			Mark(ierr.ErrValidation))
		return
	}

	if err := h.service.DeleteInvoice(c.Request.Context(), sagaID); err != nil {
		h.log.Errorw("Failed to delete invoice", "error", err)
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}
