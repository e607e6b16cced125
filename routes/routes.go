package routes

import (
	"net/http"

	"cafe-pos/handlers"
	"cafe-pos/kitchen"
	"cafe-pos/logger"
	"cafe-pos/middleware"
	"cafe-pos/metrics"

	"github.com/gin-gonic/gin"
)

// Deps is everything the route table wires together.
type Deps struct {
	Handler *handlers.Handler
	Auth    *middleware.Authenticator
	Hub     *kitchen.Hub
	Metrics *metrics.Metrics
	Logger  *logger.Logger
}

func SetupRoutes(r *gin.Engine, d Deps) {
	h := d.Handler
	authed := d.Auth.AuthRequired()
	can := middleware.Require

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "Cafe POS API"})
	})
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	// ── Public routes ──────────────────────────────────────────────
	public := r.Group("/api")
	{
		public.POST("/auth/login", h.Login)
		public.GET("/state-machine", handlers.GetStateMachineInfo)
		public.GET("/menu", h.ListMenu)

		// Self-service QR ordering
		public.GET("/tables/by-token/:token", h.GetTableByToken)
		public.POST("/orders/qr", h.PlaceQROrder)

		// Gateway callback carries its own signature
		public.POST("/payments/verify", h.VerifyPayment)
	}

	api := r.Group("/api", authed)
	{
		api.GET("/profile", h.GetProfile)
		api.GET("/floors", h.ListFloors)
		api.GET("/tables", h.ListTables)
		api.PATCH("/tables/:id/status", can(middleware.CapManageOrders), h.SetTableStatus)
	}

	// ── Orders ─────────────────────────────────────────────────────
	orders := r.Group("/api/orders", authed)
	{
		orders.GET("", can(middleware.CapViewOrders), h.ListOrders)
		orders.GET("/:id", can(middleware.CapViewOrders), h.GetOrder)

		orders.POST("", can(middleware.CapManageOrders), h.CreateOrder)
		orders.POST("/:id/lines", can(middleware.CapManageOrders), h.AddLine)
		orders.PATCH("/:id/lines/:lineId", can(middleware.CapManageOrders), h.UpdateLine)
		orders.DELETE("/:id/lines/:lineId", can(middleware.CapManageOrders), h.RemoveLine)
		orders.POST("/:id/send-to-kitchen", can(middleware.CapManageOrders), h.SendToKitchen)
		orders.POST("/:id/cancel", can(middleware.CapManageOrders), h.CancelOrder)
		orders.POST("/:id/close", can(middleware.CapManageOrders), h.CloseOrder)

		orders.POST("/:id/payments", can(middleware.CapTakePayments), h.RecordPayments)
		orders.GET("/:id/payment-qr", can(middleware.CapTakePayments), h.PaymentQR)
	}

	// ── Payments ───────────────────────────────────────────────────
	payments := r.Group("/api/payments", authed, can(middleware.CapTakePayments))
	{
		payments.GET("/methods", h.ListPaymentMethods)
		payments.POST("/gateway-order", h.CreateGatewayOrder)
	}
	r.GET("/api/receipts/:id", authed, can(middleware.CapViewOrders), h.GetReceipt)

	// ── Sessions ───────────────────────────────────────────────────
	sessions := r.Group("/api/sessions", authed, can(middleware.CapManageSessions))
	{
		sessions.POST("/open", h.OpenSession)
		sessions.GET("/current", h.CurrentSession)
		sessions.GET("/last", h.LastSession)
		sessions.GET("/history", h.SessionHistory)
		sessions.GET("/:id", h.GetSession)
		sessions.POST("/:id/close", h.CloseSession)
	}

	// ── Kitchen ────────────────────────────────────────────────────
	kitchenGroup := r.Group("/api/kitchen", authed, can(middleware.CapKitchen))
	{
		kitchenGroup.GET("/orders", h.KitchenOrders)
		kitchenGroup.PATCH("/orders/:id/update-status", h.UpdateKitchenStatus)
	}
	r.GET("/ws/kitchen", authed, can(middleware.CapKitchen), kitchen.ServeWS(d.Hub, d.Logger))

	// ── Admin routes ───────────────────────────────────────────────
	admin := r.Group("/api/admin", authed, can(middleware.CapAdminister))
	{
		admin.GET("/summary", h.AdminSummary)
		admin.GET("/users", h.AdminListStaff)
		admin.POST("/users", h.AdminCreateStaff)
		admin.POST("/floors", h.AdminCreateFloor)
		admin.POST("/tables", h.AdminCreateTable)
		admin.POST("/products", h.AdminCreateProduct)
	}
}
