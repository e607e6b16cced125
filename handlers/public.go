package handlers

import (
	"net/http"

	"cafe-pos/models"
	"cafe-pos/service"
	"cafe-pos/statemachine"

	"github.com/gin-gonic/gin"
)

type QRLine struct {
	ProductID uint   `json:"product_id" binding:"required"`
	VariantID *uint  `json:"variant_id"`
	Quantity  int    `json:"quantity" binding:"max=1000"`
	Notes     string `json:"notes"`
}

type QROrderRequest struct {
	TableToken    string   `json:"table_token" binding:"required"`
	CustomerName  string   `json:"customer_name"`
	CustomerPhone string   `json:"customer_phone"`
	Notes         string   `json:"notes"`
	Lines         []QRLine `json:"lines" binding:"required,min=1,dive"`
	PayOnline     bool     `json:"pay_online"`
}

// PlaceQROrder is the unauthenticated self-service endpoint. A failed
// checkout still returns 201 with the order and a payment_error.
func (h *Handler) PlaceQROrder(c *gin.Context) {
	var req QROrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	lines := make([]service.LineInput, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = service.LineInput{ProductID: l.ProductID, VariantID: l.VariantID, Quantity: l.Quantity, Notes: l.Notes}
	}
	res, err := h.svc.PlaceQROrder(c.Request.Context(), service.QROrderInput{
		TableToken:    req.TableToken,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Notes:         req.Notes,
		Lines:         lines,
		Checkout:      req.PayOnline,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	body := gin.H{"message": "Order placed successfully", "order": res.Order}
	if res.Checkout != nil {
		body["gateway_order_id"] = res.Checkout.ID
		body["key_id"] = res.Checkout.KeyID
	}
	if res.PaymentError != "" {
		body["payment_error"] = res.PaymentError
		body["message"] = "Order placed; online payment could not be started"
	}
	c.JSON(http.StatusCreated, body)
}

// GetTableByToken lets the QR page show which table it is ordering for
func (h *Handler) GetTableByToken(c *gin.Context) {
	table, err := h.svc.GetTableByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"table": gin.H{
		"table_number": table.TableNumber,
		"name":         table.Name,
		"floor_id":     table.FloorID,
	}})
}

// ListMenu returns active products with their variants (public)
func (h *Handler) ListMenu(c *gin.Context) {
	products, err := h.svc.ListProducts(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(products), "products": products})
}

// GetStateMachineInfo returns the full state machine for informational purposes
func GetStateMachineInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"state_machine":   statemachine.GetAllTransitions(),
		"terminal_states": []models.OrderStatus{models.StatusCompleted, models.StatusCancelled},
		"line_statuses":   statemachine.LineStatuses(),
		"description":     "Cafe POS Order Lifecycle State Machine",
	})
}

func nextStates(s models.OrderStatus) []models.OrderStatus {
	next := statemachine.ValidTransitionsFrom(s)
	if next == nil {
		return []models.OrderStatus{}
	}
	return next
}
