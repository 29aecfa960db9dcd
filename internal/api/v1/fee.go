package v1

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	ierr "github.com/storiqa/billing/internal/errors"
	"github.com/storiqa/billing/internal/logger"
	"github.com/storiqa/billing/internal/service"
	"github.com/storiqa/billing/internal/types"
)

type FeeHandler struct {
	service service.FeeService
	log     *logger.Logger
}

func NewFeeHandler(service service.FeeService, log *logger.Logger) *FeeHandler {
	return &FeeHandler{service: service, log: log}
}

// @Summary Get the fee of an order
// @Tags Fees
// @Produce json
// @Param order_id path string true "Order ID"
// @Success 200 {object} fee.Fee
// @Failure 404 {object} middleware.ErrorResponse
// @Router /fees/by-order/{order_id} [get]
func (h *FeeHandler) GetByOrderID(c *gin.Context) {
	orderID, err := types.ParseUUID(c.Param("order_id"))
	if err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Order ID must be a UUID").
			Mark(ierr.ErrValidation))
		return
	}

	f, err := h.service.GetByOrderID(c.Request.Context(), orderID)
	if err != nil {
		h.log.Errorw("Failed to get fee", "error", err)
		c.Error(err)
		return
	}
	if f == nil {
		c.Error(ierr.NewError("fee not found").
			WithHint("No fee is recognized on this order").
			Mark(ierr.ErrNotFound))
		return
	}

	c.JSON(http.StatusOK, f)
}

// @Summary Charge a fee
// @Description Bill a not-paid fee to the merchant off-session
// @Tags Fees
// @Produce json
// @Param id path int true "Fee ID"
// @Success 200 {object} fee.Fee
// @Failure 409 {object} middleware.ErrorResponse
// @Router /fees/{id}/charge [post]
func (h *FeeHandler) CreateCharge(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Fee ID must be an integer").
			Mark(ierr.ErrValidation))
		return
	}

	f, err := h.service.CreateCharge(c.Request.Context(), id)
	if err != nil {
		h.log.Errorw("Failed to charge fee", "fee_id", id, "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, f)
}
