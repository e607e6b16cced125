package handlers

import (
	"net/http"

	"cafe-pos/middleware"
	"cafe-pos/models"
	"cafe-pos/money"
	"cafe-pos/service"

	"github.com/gin-gonic/gin"
)

type CreateStaffRequest struct {
	Name     string          `json:"name" binding:"required"`
	Email    string          `json:"email" binding:"required,email"`
	Password string          `json:"password" binding:"required,min=8"`
	Role     models.UserRole `json:"role" binding:"required"`
	UPIID    string          `json:"upi_id"`
}

type CreateFloorRequest struct {
	Name   string `json:"name" binding:"required"`
	Number int    `json:"number"`
}

type CreateTableRequest struct {
	FloorID     uint   `json:"floor_id" binding:"required"`
	TableNumber string `json:"table_number" binding:"required"`
	Name        string `json:"name"`
	Capacity    int    `json:"capacity"`
}

type VariantRequest struct {
	Name       string       `json:"name" binding:"required"`
	ExtraPrice money.Amount `json:"extra_price"`
}

type CreateProductRequest struct {
	Name     string           `json:"name" binding:"required"`
	Price    money.Amount     `json:"price"`
	TaxRate  money.Rate       `json:"tax_rate"`
	Variants []VariantRequest `json:"variants" binding:"dive"`
}

// AdminCreateStaff adds a cashier, kitchen or admin account
func (h *Handler) AdminCreateStaff(c *gin.Context) {
	var req CreateStaffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	user, err := h.svc.CreateStaff(c.Request.Context(), service.StaffInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
		UPIID:    req.UPIID,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Staff account created", "user": userView(user)})
}

// AdminListStaff returns all users, optionally filtered by role
func (h *Handler) AdminListStaff(c *gin.Context) {
	users, err := h.svc.ListStaff(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	if role := c.Query("role"); role != "" {
		filtered := users[:0]
		for _, u := range users {
			if string(u.Role) == role {
				filtered = append(filtered, u)
			}
		}
		users = filtered
	}
	c.JSON(http.StatusOK, gin.H{"count": len(users), "users": users})
}

func (h *Handler) AdminCreateFloor(c *gin.Context) {
	var req CreateFloorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	floor, err := h.svc.CreateFloor(c.Request.Context(), req.Name, req.Number)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"floor": floor})
}

func (h *Handler) ListFloors(c *gin.Context) {
	floors, err := h.svc.ListFloors(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(floors), "floors": floors})
}

func (h *Handler) AdminCreateTable(c *gin.Context) {
	var req CreateTableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	table, err := h.svc.CreateTable(c.Request.Context(), service.TableInput{
		FloorID:     req.FloorID,
		TableNumber: req.TableNumber,
		Name:        req.Name,
		Capacity:    req.Capacity,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"table": table})
}

type SetTableStatusRequest struct {
	Status models.TableStatus `json:"status" binding:"required"`
}

// SetTableStatus lets floor staff clear, reserve or flag a table
func (h *Handler) SetTableStatus(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req SetTableStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	table, err := h.svc.SetTableStatus(c.Request.Context(), id, req.Status, middleware.ActorID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Table marked as " + string(table.Status), "table": table})
}

// ListTables supports ?floor_id=
func (h *Handler) ListTables(c *gin.Context) {
	tables, err := h.svc.ListTables(c.Request.Context(), queryUint(c, "floor_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(tables), "tables": tables})
}

func (h *Handler) AdminCreateProduct(c *gin.Context) {
	var req CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	in := service.ProductInput{Name: req.Name, Price: req.Price, TaxRate: req.TaxRate}
	for _, v := range req.Variants {
		in.Variants = append(in.Variants, service.VariantInput{Name: v.Name, ExtraPrice: v.ExtraPrice})
	}
	product, err := h.svc.CreateProduct(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"product": product})
}

// AdminSummary is the dashboard headline: sales and orders by status
func (h *Handler) AdminSummary(c *gin.Context) {
	summary, err := h.svc.Summary(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
