package api

import (
	"github.com/gin-gonic/gin"

	v1 "github.com/storiqa/billing/internal/api/v1"
	"github.com/storiqa/billing/internal/rest/middleware"
)

type Handlers struct {
	Health  *v1.HealthHandler
	Invoice *v1.InvoiceHandler
	Fee     *v1.FeeHandler
	Webhook *v1.WebhookHandler
}

func NewRouter(handlers Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware)
	router.Use(middleware.ErrorHandler())

	router.GET("/health", handlers.Health.Health)

	v1Group := router.Group("/v1")
	registerV1Routes(v1Group, handlers)

	return router
}

func registerV1Routes(router *gin.RouterGroup, handlers Handlers) {
	invoices := router.Group("/invoices")
	{
		invoices.POST("", handlers.Invoice.CreateInvoice)
		invoices.GET("/:id", handlers.Invoice.GetInvoice)
		invoices.GET("/:id/orders", handlers.Invoice.GetInvoiceOrderIDs)
		invoices.POST("/:id/recalc", handlers.Invoice.RecalcInvoice)
		invoices.GET("/by-order/:order_id", handlers.Invoice.GetInvoiceByOrderID)
		invoices.DELETE("/by-saga/:saga_id", handlers.Invoice.DeleteInvoice)
	}

	fees := router.Group("/fees")
	{
		fees.GET("/by-order/:order_id", handlers.Fee.GetByOrderID)
		fees.POST("/:id/charge", handlers.Fee.CreateCharge)
	}

	callbacks := router.Group("/callback")
	{
		callbacks.POST("/crypto", handlers.Webhook.CryptoCallback)
		callbacks.POST("/card", handlers.Webhook.CardCallback)
	}
}
