package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cafe-pos/money"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifier(t *testing.T) {
	v := NewVerifier("s3cret")
	good := v.Sign("order_1", "pay_1")

	tests := []struct {
		name      string
		orderID   string
		paymentID string
		signature string
		wantErr   error
	}{
		{"valid", "order_1", "pay_1", good, nil},
		{"tampered payment id", "order_1", "pay_2", good, ErrInvalidSignature},
		{"tampered order id", "order_2", "pay_1", good, ErrInvalidSignature},
		{"not hex", "order_1", "pay_1", "zz-not-hex", ErrInvalidSignature},
		{"empty", "order_1", "pay_1", "", ErrInvalidSignature},
		{"truncated", "order_1", "pay_1", good[:10], ErrInvalidSignature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Verify(tt.orderID, tt.paymentID, tt.signature)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestVerifierAcceptsUppercaseHex(t *testing.T) {
	v := NewVerifier("key")
	assert.Len(t, v.Sign("order_X", "pay_Y"), 64)
	assert.NoError(t, v.Verify("order_X", "pay_Y", strings.ToUpper(v.Sign("order_X", "pay_Y"))))
}

func TestVerifierUnconfigured(t *testing.T) {
	assert.ErrorIs(t, NewVerifier("").Verify("a", "b", "c"), ErrNotConfigured)
}

func TestClientCreateOrder(t *testing.T) {
	var got createOrderBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_key", user)
		assert.Equal(t, "rzp_secret", pass)
		assert.Equal(t, "/v1/orders", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(createOrderResponse{ID: "order_abc", Amount: got.Amount, Currency: got.Currency, Status: "created"})
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL + "/", KeyID: "rzp_key", KeySecret: "rzp_secret"})
	out, err := c.CreateOrder(context.Background(), CreateOrderRequest{
		Amount:   money.MustParse("266.00"),
		Currency: "INR",
		Receipt:  "ORD-20250101-AB12",
	})
	require.NoError(t, err)
	assert.Equal(t, "order_abc", out.ID)
	assert.Equal(t, money.MustParse("266.00"), out.Amount)
	assert.Equal(t, "rzp_key", out.KeyID)
	assert.Equal(t, int64(26600), got.Amount)
	assert.Equal(t, "ORD-20250101-AB12", got.Receipt)
}

func TestClientErrors(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		_, err := NewClient(Options{}).CreateOrder(context.Background(), CreateOrderRequest{Amount: 100})
		assert.ErrorIs(t, err, ErrNotConfigured)
	})

	t.Run("gateway rejects", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"amount too small"}}`))
		}))
		defer srv.Close()

		c := NewClient(Options{BaseURL: srv.URL, KeyID: "k", KeySecret: "s"})
		_, err := c.CreateOrder(context.Background(), CreateOrderRequest{Amount: 100, Currency: "INR"})
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.Contains(t, err.Error(), "amount too small")
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		c := NewClient(Options{BaseURL: url, KeyID: "k", KeySecret: "s"})
		_, err := c.CreateOrder(context.Background(), CreateOrderRequest{Amount: 100, Currency: "INR"})
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}

func TestUPIRequest(t *testing.T) {
	req := UPIRequest{PayeeVPA: "cafe@upi", PayeeName: "Odoo Cafe", Amount: money.MustParse("266.00"), Note: "ORD-20250101-AB12"}
	uri, err := req.URI()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "upi://pay?"))
	assert.Contains(t, uri, "pa=cafe%40upi")
	assert.Contains(t, uri, "am=266.00")
	assert.Contains(t, uri, "cu=INR")

	png, err := req.QRCode(128)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	_, err = UPIRequest{Amount: 100}.URI()
	assert.ErrorIs(t, err, ErrNoPayee)
}

func TestQRCodeSizeIsClamped(t *testing.T) {
	req := UPIRequest{PayeeVPA: "cafe@upi", Amount: money.MustParse("266.00")}

	tests := []struct {
		requested, want int
	}{
		{0, DefaultQRSize},
		{-5, DefaultQRSize},
		{10, MinQRSize},
		{300, 300},
		{100000, MaxQRSize},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, QRSize(tt.requested), "requested %d", tt.requested)
	}

	img, err := req.QRCode(100000)
	require.NoError(t, err)
	cfg, err := png.DecodeConfig(bytes.NewReader(img))
	require.NoError(t, err)
	assert.Equal(t, MaxQRSize, cfg.Width)
	assert.Equal(t, MaxQRSize, cfg.Height)
}
