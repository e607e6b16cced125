package gateway

import (
	"errors"
	"net/url"
	"strings"

	"cafe-pos/money"

	qrcode "github.com/skip2/go-qrcode"
)

var ErrNoPayee = errors.New("no UPI id configured for the collecting cashier")

// UPIRequest describes a pay-to-collect request for one order.
type UPIRequest struct {
	PayeeVPA  string
	PayeeName string
	Amount    money.Amount
	Currency  string
	Note      string
}

// URI renders the request as a upi://pay link understood by UPI apps.
func (r UPIRequest) URI() (string, error) {
	if strings.TrimSpace(r.PayeeVPA) == "" {
		return "", ErrNoPayee
	}
	currency := r.Currency
	if currency == "" {
		currency = "INR"
	}

	q := url.Values{}
	q.Set("pa", r.PayeeVPA)
	if r.PayeeName != "" {
		q.Set("pn", r.PayeeName)
	}
	q.Set("am", r.Amount.String())
	q.Set("cu", currency)
	if r.Note != "" {
		q.Set("tn", r.Note)
	}
	return "upi://pay?" + q.Encode(), nil
}

// QR image sizes in pixels. Requested sizes are clamped to this range.
const (
	DefaultQRSize = 256
	MinQRSize     = 64
	MaxQRSize     = 1024
)

// QRSize clamps a requested pixel size; zero or less means the default.
func QRSize(size int) int {
	switch {
	case size <= 0:
		return DefaultQRSize
	case size < MinQRSize:
		return MinQRSize
	case size > MaxQRSize:
		return MaxQRSize
	}
	return size
}

// QRCode encodes the URI as a square PNG, size clamped by QRSize.
func (r UPIRequest) QRCode(size int) ([]byte, error) {
	uri, err := r.URI()
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(uri, qrcode.Medium, QRSize(size))
}
