// Package money holds the fixed-point types used for every price, tax and
// total in the system. Amounts are integer minor units (paise/cents) and
// rates are hundredths of a percent; decimals only appear at the JSON and
// display boundary.
package money

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a monetary value in minor units (2 decimal places).
type Amount int64

// Zero is the zero amount.
const Zero Amount = 0

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrTooPrecise    = errors.New("amount has more than 2 decimal places")
	ErrInvalidRate   = errors.New("invalid rate")
)

// FromMinor builds an Amount from minor units.
func FromMinor(minor int64) Amount { return Amount(minor) }

// Parse reads a decimal string such as "266.00" or "12.5".
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return fromDecimal(d)
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func fromDecimal(d decimal.Decimal) (Amount, error) {
	shifted := d.Shift(2)
	if !shifted.IsInteger() {
		return 0, ErrTooPrecise
	}
	bi := shifted.BigInt()
	if !bi.IsInt64() {
		return 0, fmt.Errorf("%w: out of range", ErrInvalidAmount)
	}
	return Amount(bi.Int64()), nil
}

func (a Amount) Minor() int64 { return int64(a) }

func (a Amount) Decimal() decimal.Decimal { return decimal.New(int64(a), -2) }

func (a Amount) String() string { return a.Decimal().StringFixed(2) }

func (a Amount) Add(b Amount) Amount { return a + b }

func (a Amount) Sub(b Amount) Amount { return a - b }

// Mul multiplies by an integer quantity. Callers bound qty first; see MulChecked.
func (a Amount) Mul(qty int) Amount { return a * Amount(qty) }

// MulChecked is Mul for a non-negative qty that reports false when the
// product does not fit in an Amount.
func (a Amount) MulChecked(qty int) (Amount, bool) {
	if qty < 0 {
		return 0, false
	}
	if a == 0 || qty == 0 {
		return 0, true
	}
	p := a * Amount(qty)
	if p/Amount(qty) != a {
		return 0, false
	}
	return p, true
}

func (a Amount) IsNegative() bool { return a < 0 }

func (a Amount) IsPositive() bool { return a > 0 }

// ApplyRate returns a × r / 100, rounded half away from zero to the minor unit.
func (a Amount) ApplyRate(r Rate) Amount {
	v := decimal.NewFromInt(int64(a)).
		Mul(decimal.NewFromInt(int64(r))).
		Div(decimal.NewFromInt(rateScale)).
		Round(0)
	return Amount(v.IntPart())
}

// Sum adds all amounts.
func Sum(amounts ...Amount) Amount {
	var total Amount
	for _, a := range amounts {
		total += a
	}
	return total
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts both "12.50" and 12.5.
func (a *Amount) UnmarshalJSON(data []byte) error {
	raw, isNull, err := unquote(data)
	if err != nil || isNull {
		*a = 0
		return err
	}
	v, err := Parse(raw)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

func (a Amount) Value() (driver.Value, error) { return int64(a), nil }

func (a *Amount) Scan(src any) error {
	v, err := scanInt(src)
	if err != nil {
		return fmt.Errorf("money: scan amount: %w", err)
	}
	*a = Amount(v)
	return nil
}

const rateScale = 10000

// Rate is a percentage stored in hundredths of a percent: 5% is 500,
// 12.5% is 1250.
type Rate int64

// ParseRate reads a percentage string such as "5" or "12.50".
func ParseRate(s string) (Rate, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRate, s)
	}
	shifted := d.Shift(2)
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("%w: more than 2 decimal places", ErrInvalidRate)
	}
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(100)) {
		return 0, fmt.Errorf("%w: must be between 0 and 100", ErrInvalidRate)
	}
	return Rate(shifted.IntPart()), nil
}

// MustParseRate is ParseRate for constants and tests.
func MustParseRate(s string) Rate {
	r, err := ParseRate(s)
	if err != nil {
		panic(err)
	}
	return r
}

func (r Rate) String() string { return decimal.New(int64(r), -2).StringFixed(2) }

func (r Rate) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Rate) UnmarshalJSON(data []byte) error {
	raw, isNull, err := unquote(data)
	if err != nil || isNull {
		*r = 0
		return err
	}
	v, err := ParseRate(raw)
	if err != nil {
		return err
	}
	*r = v
	return nil
}

func (r Rate) Value() (driver.Value, error) { return int64(r), nil }

func (r *Rate) Scan(src any) error {
	v, err := scanInt(src)
	if err != nil {
		return fmt.Errorf("money: scan rate: %w", err)
	}
	*r = Rate(v)
	return nil
}

func unquote(data []byte) (string, bool, error) {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		return "", true, nil
	}
	if strings.HasPrefix(s, `"`) {
		var out string
		if err := json.Unmarshal(data, &out); err != nil {
			return "", false, err
		}
		return out, false, nil
	}
	return s, false, nil
}

func scanInt(src any) (int64, error) {
	switch v := src.(type) {
	case nil:
		return 0, nil
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case []byte:
		return parseIntString(string(v))
	case string:
		return parseIntString(v)
	default:
		return 0, fmt.Errorf("unsupported type %T", src)
	}
}

func parseIntString(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return d.IntPart(), nil
}
