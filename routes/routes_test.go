package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cafe-pos/config"
	"cafe-pos/gateway"
	"cafe-pos/handlers"
	"cafe-pos/kitchen"
	"cafe-pos/logger"
	"cafe-pos/metrics"
	"cafe-pos/middleware"
	"cafe-pos/models"
	"cafe-pos/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gatewaySecret = "route_test_gateway_secret"

type testServer struct {
	t        *testing.T
	router   *gin.Engine
	svc      *service.Service
	verifier *gateway.Verifier
	tokens   map[models.UserRole]string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	db, err := config.OpenDB(config.Database{Driver: "sqlite", DSN: "file::memory:"})
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db))
	require.NoError(t, config.Seed(ctx, db, config.Default()))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	log := logger.Discard()
	m := metrics.New()
	hub := kitchen.NewHub(kitchen.HubOptions{Observer: m, Logger: log})
	verifier := gateway.NewVerifier(gatewaySecret)
	svc := service.New(service.Options{DB: db, Broadcaster: hub, Recorder: m, Verifier: verifier, Logger: log})
	auth := middleware.NewAuthenticator("route_test_jwt_secret_value", time.Hour)

	r := gin.New()
	r.Use(middleware.RequestID())
	SetupRoutes(r, Deps{
		Handler: handlers.New(svc, auth, log),
		Auth:    auth,
		Hub:     hub,
		Metrics: m,
		Logger:  log,
	})

	s := &testServer{t: t, router: r, svc: svc, verifier: verifier, tokens: map[models.UserRole]string{}}
	for _, role := range []models.UserRole{models.RoleAdmin, models.RoleCashier, models.RoleKitchen} {
		user, err := svc.CreateStaff(ctx, service.StaffInput{
			Name:     string(role),
			Email:    fmt.Sprintf("%s@cafe.test", role),
			Password: "password123",
			Role:     role,
			UPIID:    "till@upi",
		})
		require.NoError(t, err)
		token, err := auth.GenerateToken(user)
		require.NoError(t, err)
		s.tokens[role] = token
	}
	return s
}

func (s *testServer) do(method, path string, role models.UserRole, body any) (*httptest.ResponseRecorder, map[string]any) {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token := s.tokens[role]; token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Header().Get("Content-Type") != "" && bytes.HasPrefix([]byte(w.Header().Get("Content-Type")), []byte("application/json")) {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

// id pulls obj[key]["id"] out of a decoded response.
func id(t *testing.T, body map[string]any, key string) uint {
	t.Helper()
	obj, ok := body[key].(map[string]any)
	require.Truef(t, ok, "missing %q in %v", key, body)
	return uint(obj["id"].(float64))
}

func field(body map[string]any, key, name string) any {
	obj, _ := body[key].(map[string]any)
	return obj[name]
}

// setupFloor creates a floor, table and product and opens the cashier's
// session on that floor. It returns the table and product ids.
func (s *testServer) setupFloor() (tableID, productID uint) {
	s.t.Helper()
	w, body := s.do(http.MethodPost, "/api/admin/floors", models.RoleAdmin, gin.H{"name": "Ground"})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	floorID := id(s.t, body, "floor")

	w, body = s.do(http.MethodPost, "/api/admin/tables", models.RoleAdmin, gin.H{"floor_id": floorID, "table_number": "T1"})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	tableID = id(s.t, body, "table")

	w, body = s.do(http.MethodPost, "/api/admin/products", models.RoleAdmin, gin.H{"name": "Cappuccino", "price": "100.00", "tax_rate": "5"})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	productID = id(s.t, body, "product")

	w, _ = s.do(http.MethodPost, "/api/sessions/open", models.RoleCashier, gin.H{"floor_id": floorID, "starting_cash": "500.00"})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	return tableID, productID
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])

	w, _ = s.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pos_orders_created_total")

	w, body = s.do(http.MethodGet, "/api/state-machine", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, body["state_machine"])
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "cashier@cafe.test", "password": "password123"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, body["token"])
	assert.Equal(t, "cashier", field(body, "user", "role"))

	w, body = s.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "cashier@cafe.test", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", body["code"])

	w, body = s.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
}

func TestAccessControl(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		role   models.UserRole
		want   int
	}{
		{"no token", http.MethodGet, "/api/orders", "", http.StatusUnauthorized},
		{"kitchen cannot create orders", http.MethodPost, "/api/orders", models.RoleKitchen, http.StatusForbidden},
		{"kitchen cannot take payments", http.MethodPost, "/api/orders/1/payments", models.RoleKitchen, http.StatusForbidden},
		{"cashier cannot administer", http.MethodGet, "/api/admin/summary", models.RoleCashier, http.StatusForbidden},
		{"kitchen reads its queue", http.MethodGet, "/api/kitchen/orders", models.RoleKitchen, http.StatusOK},
		{"kitchen views orders", http.MethodGet, "/api/orders", models.RoleKitchen, http.StatusOK},
		{"admin summary", http.MethodGet, "/api/admin/summary", models.RoleAdmin, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := s.do(tt.method, tt.path, tt.role, nil)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(http.MethodGet, "/api/orders/9999", models.RoleCashier, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", body["code"])

	w, body = s.do(http.MethodGet, "/api/orders/abc", models.RoleCashier, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])

	w, body = s.do(http.MethodPost, "/api/orders", models.RoleCashier, gin.H{})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "NO_ACTIVE_SESSION", body["code"])

	w, body = s.do(http.MethodGet, "/api/sessions/current", models.RoleCashier, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "NO_ACTIVE_SESSION", body["code"])

	w, body = s.do(http.MethodPost, "/api/payments/verify", "", gin.H{
		"gateway_order_id":   "order_1",
		"gateway_payment_id": "pay_1",
		"signature":          "deadbeef",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_SIGNATURE", body["code"])

	w, body = s.do(http.MethodPost, "/api/payments/gateway-order", models.RoleCashier, gin.H{"order_id": 1})
	assert.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
	assert.Equal(t, "NOT_FOUND", body["code"])
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	tableID, productID := s.setupFloor()

	w, body := s.do(http.MethodPost, "/api/sessions/open", models.RoleCashier, gin.H{})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "SESSION_ALREADY_OPEN", body["code"])

	w, body = s.do(http.MethodPost, "/api/orders", models.RoleCashier, gin.H{"table_id": tableID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	orderID := id(t, body, "order")
	assert.Equal(t, "draft", field(body, "order", "status"))

	w, body = s.do(http.MethodPost, fmt.Sprintf("/api/orders/%d/lines", orderID), models.RoleCashier, gin.H{"product_id": productID, "quantity": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_QUANTITY", body["code"])

	w, body = s.do(http.MethodPost, fmt.Sprintf("/api/orders/%d/lines", orderID), models.RoleCashier, gin.H{"product_id": productID, "quantity": 2})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "210.00", field(body, "order", "total_amount"))

	w, _ = s.do(http.MethodPost, fmt.Sprintf("/api/orders/%d/send-to-kitchen", orderID), models.RoleCashier, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, body = s.do(http.MethodPost, fmt.Sprintf("/api/orders/%d/lines", orderID), models.RoleCashier, gin.H{"product_id": productID, "quantity": 1})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ORDER_NOT_DRAFT", body["code"])

	w, body = s.do(http.MethodGet, "/api/kitchen/orders", models.RoleKitchen, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["count"])

	w, body = s.do(http.MethodGet, "/api/payments/methods", models.RoleCashier, nil)
	require.Equal(t, http.StatusOK, w.Code)
	methods := body["payment_methods"].([]any)
	cashID := methods[0].(map[string]any)["id"]

	w, body = s.do(http.MethodPost, fmt.Sprintf("/api/orders/%d/payments", orderID), models.RoleCashier, gin.H{
		"payments": []gin.H{{"payment_method_id": cashID, "amount": "110.00"}, {"payment_method_id": cashID, "amount": "100.00"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "completed", field(body, "data", "status"))
	assert.Equal(t, "210.00", field(body, "data", "amount_paid"))
	receiptID := field(body, "data", "receipt_id")
	require.NotNil(t, receiptID)

	w, body = s.do(http.MethodGet, fmt.Sprintf("/api/receipts/%v", receiptID), models.RoleCashier, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, field(body, "receipt", "receipt_number"), "RCPT-ORD-")

	w, body = s.do(http.MethodGet, fmt.Sprintf("/api/orders/%d", orderID), models.RoleCashier, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, body["valid_next_states"])
	assert.Len(t, body["payments"], 2)

	w, body = s.do(http.MethodGet, "/api/sessions/current", models.RoleCashier, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "210.00", field(body, "session", "total_sales"))
}

func TestPaymentQRFormats(t *testing.T) {
	s := newTestServer(t)
	tableID, productID := s.setupFloor()

	_, body := s.do(http.MethodPost, "/api/orders", models.RoleCashier, gin.H{"table_id": tableID})
	orderID := id(t, body, "order")
	s.do(http.MethodPost, fmt.Sprintf("/api/orders/%d/lines", orderID), models.RoleCashier, gin.H{"product_id": productID, "quantity": 1})

	w, _ := s.do(http.MethodGet, fmt.Sprintf("/api/orders/%d/payment-qr", orderID), models.RoleCashier, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	w, body = s.do(http.MethodGet, fmt.Sprintf("/api/orders/%d/payment-qr?format=json", orderID), models.RoleCashier, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, body["upi_uri"], "am=105.00")

	w, _ = s.do(http.MethodGet, fmt.Sprintf("/api/orders/%d/payment-qr?size=100000", orderID), models.RoleCashier, nil)
	require.Equal(t, http.StatusOK, w.Code)
	cfg, err := png.DecodeConfig(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, gateway.MaxQRSize, cfg.Width)
}

func TestTableStatusOverHTTP(t *testing.T) {
	s := newTestServer(t)
	tableID, productID := s.setupFloor()
	path := fmt.Sprintf("/api/tables/%d/status", tableID)

	_, body := s.do(http.MethodPost, "/api/orders", models.RoleCashier, gin.H{"table_id": tableID})
	orderID := id(t, body, "order")
	s.do(http.MethodPost, fmt.Sprintf("/api/orders/%d/lines", orderID), models.RoleCashier, gin.H{"product_id": productID, "quantity": 1})

	w, body := s.do(http.MethodPatch, path, models.RoleCashier, gin.H{"status": "available"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "TABLE_IN_USE", body["code"])

	w, _ = s.do(http.MethodPost, fmt.Sprintf("/api/orders/%d/cancel", orderID), models.RoleCashier, gin.H{"reason": "walked out"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, _ = s.do(http.MethodPatch, path, models.RoleKitchen, gin.H{"status": "available"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body = s.do(http.MethodPatch, path, models.RoleCashier, gin.H{"status": "broken"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])

	w, body = s.do(http.MethodPatch, path, models.RoleCashier, gin.H{"status": "available"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "available", field(body, "table", "status"))
}

func TestLineQuantityCapOverHTTP(t *testing.T) {
	s := newTestServer(t)
	tableID, productID := s.setupFloor()

	_, body := s.do(http.MethodPost, "/api/orders", models.RoleCashier, gin.H{"table_id": tableID})
	orderID := id(t, body, "order")

	w, body := s.do(http.MethodPost, fmt.Sprintf("/api/orders/%d/lines", orderID), models.RoleCashier, gin.H{"product_id": productID, "quantity": 1 << 60})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])

	w, body = s.do(http.MethodPost, "/api/orders/qr", "", gin.H{
		"table_token": "any",
		"lines":       []gin.H{{"product_id": productID, "quantity": 1 << 60}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])

	_, body = s.do(http.MethodGet, fmt.Sprintf("/api/orders/%d", orderID), models.RoleCashier, nil)
	assert.Equal(t, "0.00", field(body, "order", "total_amount"))
}

func TestQROrderAndGatewayVerify(t *testing.T) {
	s := newTestServer(t)
	tableID, productID := s.setupFloor()

	w, body := s.do(http.MethodGet, "/api/tables", models.RoleCashier, nil)
	require.Equal(t, http.StatusOK, w.Code)
	token := body["tables"].([]any)[0].(map[string]any)["token"].(string)

	w, body = s.do(http.MethodGet, "/api/tables/by-token/"+token, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "T1", field(body, "table", "table_number"))

	w, body = s.do(http.MethodPost, "/api/orders/qr", "", gin.H{
		"table_token": token,
		"lines":       []gin.H{{"product_id": productID, "quantity": 1}},
		"pay_online":  true,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "draft", field(body, "order", "status"))
	assert.EqualValues(t, tableID, field(body, "order", "table_id"))
	// No gateway is configured, so the order stands without a checkout.
	assert.NotEmpty(t, body["payment_error"])

	w, body = s.do(http.MethodPost, "/api/orders/qr", "", gin.H{
		"table_token": "bogus",
		"lines":       []gin.H{{"product_id": productID, "quantity": 1}},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", body["code"])
}
