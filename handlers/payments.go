package handlers

import (
	"net/http"

	"cafe-pos/money"
	"cafe-pos/service"

	"github.com/gin-gonic/gin"
)

type GatewayOrderRequest struct {
	OrderID uint          `json:"order_id" binding:"required"`
	Amount  *money.Amount `json:"amount"`
}

type VerifyPaymentRequest struct {
	GatewayOrderID   string `json:"gateway_order_id" binding:"required"`
	GatewayPaymentID string `json:"gateway_payment_id" binding:"required"`
	Signature        string `json:"signature" binding:"required"`
}

func (h *Handler) ListPaymentMethods(c *gin.Context) {
	methods, err := h.svc.ListPaymentMethods(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(methods), "payment_methods": methods})
}

// CreateGatewayOrder returns the correlation id the client checkout needs
func (h *Handler) CreateGatewayOrder(c *gin.Context) {
	var req GatewayOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	checkout, err := h.svc.CreateGatewayOrder(c.Request.Context(), req.OrderID, req.Amount)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"gateway_order_id": checkout.ID,
		"amount":           checkout.Amount,
		"currency":         checkout.Currency,
		"key_id":           checkout.KeyID,
	})
}

// VerifyPayment settles a gateway payment; repeating it is harmless
func (h *Handler) VerifyPayment(c *gin.Context) {
	var req VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	res, err := h.svc.VerifyGatewayPayment(c.Request.Context(), service.VerifyInput{
		GatewayOrderID:   req.GatewayOrderID,
		GatewayPaymentID: req.GatewayPaymentID,
		Signature:        req.Signature,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	message := "Payment verified"
	if res.Duplicate {
		message = "Payment already recorded"
	}
	c.JSON(http.StatusOK, gin.H{"message": message, "data": res})
}

func (h *Handler) GetReceipt(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	receipt, err := h.svc.GetReceipt(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"receipt": receipt})
}
