package handlers

import (
	"net/http"

	"cafe-pos/models"
	"cafe-pos/service"

	"github.com/gin-gonic/gin"
)

type UpdateKitchenStatusRequest struct {
	LineID    *uint             `json:"line_id"`
	Status    models.LineStatus `json:"status" binding:"required"`
	UpdateAll bool              `json:"update_all"`
}

// KitchenOrders is the queue a display loads before trusting live events
func (h *Handler) KitchenOrders(c *gin.Context) {
	orders, err := h.svc.KitchenQueue(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	// Group line counts by status for the display header
	summary := map[models.LineStatus]int{}
	for _, o := range orders {
		for _, l := range o.Lines {
			summary[l.Status]++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"count":        len(orders),
		"line_summary": summary,
		"orders":       orders,
	})
}

// UpdateKitchenStatus sets one line's status, or every line's with update_all
func (h *Handler) UpdateKitchenStatus(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req UpdateKitchenStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	order, err := h.svc.UpdateKitchenStatus(c.Request.Context(), id, service.KitchenUpdate{
		LineID:    req.LineID,
		Status:    req.Status,
		UpdateAll: req.UpdateAll,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Kitchen status updated", "order": order})
}
