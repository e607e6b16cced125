package handlers

import (
	"net/http"

	"cafe-pos/gateway"
	"cafe-pos/middleware"
	"cafe-pos/models"
	"cafe-pos/money"
	"cafe-pos/service"

	"github.com/gin-gonic/gin"
)

type CreateOrderRequest struct {
	SessionID     *uint            `json:"session_id"`
	TableID       *uint            `json:"table_id"`
	OrderType     models.OrderType `json:"order_type"`
	CustomerName  string           `json:"customer_name"`
	CustomerPhone string           `json:"customer_phone"`
	Notes         string           `json:"notes"`
}

type AddLineRequest struct {
	ProductID uint   `json:"product_id" binding:"required"`
	VariantID *uint  `json:"variant_id"`
	Quantity  int    `json:"quantity" binding:"max=1000"`
	Notes     string `json:"notes"`
}

type UpdateLineRequest struct {
	Quantity *int    `json:"quantity" binding:"omitempty,max=1000"`
	Notes    *string `json:"notes"`
}

type CancelOrderRequest struct {
	Reason string `json:"reason"`
}

type PaymentLine struct {
	PaymentMethodID uint         `json:"payment_method_id" binding:"required"`
	Amount          money.Amount `json:"amount"`
}

type RecordPaymentsRequest struct {
	Payments []PaymentLine `json:"payments" binding:"required,min=1,dive"`
}

// CreateOrder opens a draft; without session_id the caller's open session is used
func (h *Handler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	order, err := h.svc.CreateOrder(c.Request.Context(), service.CreateOrderInput{
		SessionID:     req.SessionID,
		CashierID:     middleware.GetUserID(c),
		TableID:       req.TableID,
		OrderType:     req.OrderType,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Notes:         req.Notes,
		ActorID:       middleware.ActorID(c),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Order created", "order": order})
}

// ListOrders supports status, order_type, session_id, table_id, search, limit and offset
func (h *Handler) ListOrders(c *gin.Context) {
	orders, total, err := h.svc.ListOrders(c.Request.Context(), service.OrderFilter{
		Status:    models.OrderStatus(c.Query("status")),
		OrderType: models.OrderType(c.Query("order_type")),
		SessionID: queryUint(c, "session_id"),
		TableID:   queryUint(c, "table_id"),
		Search:    c.Query("search"),
		Limit:     queryInt(c, "limit", 50),
		Offset:    queryInt(c, "offset", 0),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(orders), "total": total, "orders": orders})
}

// GetOrder returns a single order's full detail with history and payments
func (h *Handler) GetOrder(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	order, err := h.svc.GetOrder(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	payments, err := h.svc.OrderPayments(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order":             order,
		"payments":          payments,
		"valid_next_states": nextStates(order.Status),
	})
}

func (h *Handler) AddLine(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req AddLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	line, order, err := h.svc.AddLine(c.Request.Context(), id, service.LineInput{
		ProductID: req.ProductID,
		VariantID: req.VariantID,
		Quantity:  req.Quantity,
		Notes:     req.Notes,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"line": line, "order": order})
}

func (h *Handler) UpdateLine(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	lineID, ok := paramID(c, "lineId")
	if !ok {
		return
	}
	var req UpdateLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	line, order, err := h.svc.UpdateLine(c.Request.Context(), id, lineID, service.LinePatch{
		Quantity: req.Quantity,
		Notes:    req.Notes,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"line": line, "order": order})
}

func (h *Handler) RemoveLine(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	lineID, ok := paramID(c, "lineId")
	if !ok {
		return
	}
	order, err := h.svc.RemoveLine(c.Request.Context(), id, lineID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (h *Handler) SendToKitchen(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	order, err := h.svc.SendToKitchen(c.Request.Context(), id, middleware.ActorID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order sent to kitchen", "order": order})
}

// CancelOrder stops a draft or dispatched order; the table is not freed
func (h *Handler) CancelOrder(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req CancelOrderRequest
	// body is optional
	_ = c.ShouldBindJSON(&req)

	order, err := h.svc.Cancel(c.Request.Context(), id, middleware.ActorID(c), req.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order cancelled", "order": order})
}

// CloseOrder completes a dispatched order and frees its table
func (h *Handler) CloseOrder(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	order, err := h.svc.Close(c.Request.Context(), id, middleware.ActorID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order closed", "order": order})
}

// RecordPayments appends payments and settles the order when fully paid
func (h *Handler) RecordPayments(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req RecordPaymentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	inputs := make([]service.PaymentInput, len(req.Payments))
	for i, p := range req.Payments {
		inputs[i] = service.PaymentInput{PaymentMethodID: p.PaymentMethodID, Amount: p.Amount}
	}
	res, err := h.svc.RecordPayments(c.Request.Context(), id, inputs, middleware.ActorID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Payment processed successfully", "data": res})
}

// PaymentQR renders a UPI collect QR for the order total; ?format=json
// returns the URI instead of the image
func (h *Handler) PaymentQR(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	qr, err := h.svc.PaymentQR(c.Request.Context(), id, queryInt(c, "size", gateway.DefaultQRSize))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if c.Query("format") == "json" {
		c.JSON(http.StatusOK, qr)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", qr.PNG)
}
