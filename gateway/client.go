package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cafe-pos/money"
)

var (
	ErrNotConfigured = errors.New("payment gateway is not configured")
	ErrUnavailable   = errors.New("payment gateway unavailable")
)

// CreateOrderRequest asks the gateway to open a checkout for amount.
type CreateOrderRequest struct {
	Amount   money.Amount
	Currency string
	Receipt  string // our order number
}

type CheckoutOrder struct {
	ID       string       `json:"id"`
	Amount   money.Amount `json:"amount"`
	Currency string       `json:"currency"`
	KeyID    string       `json:"key_id"`
}

// Gateway is the narrow contract the ledger depends on.
type Gateway interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*CheckoutOrder, error)
}

type Options struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	Timeout   time.Duration
}

// Client talks to a Razorpay-style orders API: POST {base}/v1/orders with
// basic auth, amounts in minor units.
type Client struct {
	baseURL string
	keyID   string
	secret  string
	http    *http.Client
}

func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		keyID:   opts.KeyID,
		secret:  opts.KeySecret,
		http:    &http.Client{Timeout: opts.Timeout},
	}
}

func (c *Client) Configured() bool {
	return c.baseURL != "" && c.keyID != "" && c.secret != ""
}

type createOrderBody struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type createOrderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

type errorResponse struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CheckoutOrder, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("gateway order amount must be positive, got %s", req.Amount)
	}

	body, err := json.Marshal(createOrderBody{
		Amount:   req.Amount.Minor(),
		Currency: req.Currency,
		Receipt:  req.Receipt,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(c.keyID, c.secret)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		var e errorResponse
		if json.Unmarshal(raw, &e) == nil && e.Error.Description != "" {
			return nil, fmt.Errorf("%w: %s (%d)", ErrUnavailable, e.Error.Description, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var out createOrderResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if out.ID == "" {
		return nil, fmt.Errorf("%w: response carried no order id", ErrUnavailable)
	}

	return &CheckoutOrder{
		ID:       out.ID,
		Amount:   money.FromMinor(out.Amount),
		Currency: out.Currency,
		KeyID:    c.keyID,
	}, nil
}
