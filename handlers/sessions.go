package handlers

import (
	"errors"
	"io"
	"net/http"

	"cafe-pos/middleware"
	"cafe-pos/models"
	"cafe-pos/money"
	"cafe-pos/service"

	"github.com/gin-gonic/gin"
)

type OpenSessionRequest struct {
	FloorID      *uint        `json:"floor_id"`
	StartingCash money.Amount `json:"starting_cash"`
	Notes        string       `json:"notes"`
}

type CloseSessionRequest struct {
	ClosingCash *money.Amount `json:"closing_cash"`
	Notes       string        `json:"notes"`
}

func (h *Handler) OpenSession(c *gin.Context) {
	var req OpenSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		bindError(c, err)
		return
	}
	session, err := h.svc.OpenSession(c.Request.Context(), service.OpenSessionInput{
		CashierID:    middleware.GetUserID(c),
		FloorID:      req.FloorID,
		StartingCash: req.StartingCash,
		Notes:        req.Notes,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Session opened", "session": session})
}

// CloseSession is allowed for the owning cashier or an admin
func (h *Handler) CloseSession(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req CloseSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		bindError(c, err)
		return
	}

	if !h.ownsSession(c, id) {
		return
	}
	session, err := h.svc.CloseSession(c.Request.Context(), id, service.CloseSessionInput{
		ClosingCash: req.ClosingCash,
		Notes:       req.Notes,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Session closed", "session": session})
}

func (h *Handler) ownsSession(c *gin.Context, id uint) bool {
	session, err := h.svc.GetSession(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return false
	}
	if middleware.GetRole(c) != models.RoleAdmin && session.CashierID != middleware.GetUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "This session belongs to another cashier", "code": "FORBIDDEN"})
		return false
	}
	return true
}

func (h *Handler) CurrentSession(c *gin.Context) {
	session, err := h.svc.CurrentSession(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

func (h *Handler) LastSession(c *gin.Context) {
	session, err := h.svc.LastSession(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

// SessionHistory lists the caller's sessions; admins see everyone's
func (h *Handler) SessionHistory(c *gin.Context) {
	cashierID := middleware.GetUserID(c)
	if middleware.GetRole(c) == models.RoleAdmin {
		cashierID = queryUint(c, "cashier_id")
	}
	sessions, err := h.svc.SessionHistory(c.Request.Context(), cashierID, queryInt(c, "limit", 50))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(sessions), "sessions": sessions})
}

func (h *Handler) GetSession(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	session, err := h.svc.GetSession(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}
