package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"smart_parkai/internal/domain"
	"smart_parkai/internal/service"
)

const maxWebhookBytes = 65536

type PaymentHandler struct {
	payments       *service.PaymentService
	publishableKey string
}

func NewPaymentHandler(ps *service.PaymentService, publishableKey string) *PaymentHandler {
	return &PaymentHandler{payments: ps, publishableKey: publishableKey}
}

// GET /config
func (h *PaymentHandler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"publishableKey": h.publishableKey})
}

// POST /api/payment/initialize
func (h *PaymentHandler) Initialize(c *gin.Context) {
	var dto domain.InitializePaymentDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payment request", "details": err.Error()})
		return
	}
	pi, err := h.payments.InitializePayment(c.Request.Context(), dto)
	if err != nil {
		respondError(c, err, "Could not initialize payment")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"clientSecret":    pi.ClientSecret,
		"paymentIntentId": pi.ID,
	})
}

// GET /api/payment/details/:id
func (h *PaymentHandler) GetDetails(c *gin.Context) {
	pi, err := h.payments.GetPaymentDetails(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Could not fetch payment details")
		return
	}
	c.JSON(http.StatusOK, pi)
}

// POST /webhook
func (h *PaymentHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Could not read webhook body"})
		return
	}
	event, err := h.payments.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		respondError(c, err, "Webhook rejected")
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true, "type": event.Type})
}
