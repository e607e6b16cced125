package service

import (
	"errors"
	"fmt"
)

// Kind groups error codes by how a caller should react to them.
type Kind string

const (
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindNotFound   Kind = "not_found"
	KindExternal   Kind = "external"
	KindSecurity   Kind = "security"
)

// Error is the typed outcome every service operation fails with. Two errors
// match under errors.Is when their codes are equal, so callers compare
// against the exported sentinels below.
type Error struct {
	Kind    Kind              `json:"-"`
	Code    string            `json:"code"`
	Message string            `json:"error"`
	Fields  map[string]string `json:"fields,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrValidation           = &Error{Kind: KindValidation, Code: "VALIDATION_ERROR", Message: "validation failed"}
	ErrInvalidQuantity      = &Error{Kind: KindValidation, Code: "INVALID_QUANTITY", Message: "quantity must be greater than zero"}
	ErrOrderNotDraft        = &Error{Kind: KindConflict, Code: "ORDER_NOT_DRAFT", Message: "order lines can only be changed while the order is a draft"}
	ErrInvalidStatus        = &Error{Kind: KindConflict, Code: "INVALID_STATUS", Message: "operation not allowed in the order's current status"}
	ErrEmptyOrder           = &Error{Kind: KindConflict, Code: "EMPTY_ORDER", Message: "order has no lines"}
	ErrOrderNotPayable      = &Error{Kind: KindConflict, Code: "ORDER_NOT_PAYABLE", Message: "order cannot accept payments"}
	ErrCheckoutExists       = &Error{Kind: KindConflict, Code: "CHECKOUT_EXISTS", Message: "order already has a gateway checkout"}
	ErrSessionAlreadyOpen   = &Error{Kind: KindConflict, Code: "SESSION_ALREADY_OPEN", Message: "cashier already has an open session"}
	ErrSessionAlreadyClosed = &Error{Kind: KindConflict, Code: "SESSION_ALREADY_CLOSED", Message: "session is already closed"}
	ErrFloorOccupied        = &Error{Kind: KindConflict, Code: "FLOOR_OCCUPIED", Message: "floor is held by another open session"}
	ErrTableInUse           = &Error{Kind: KindConflict, Code: "TABLE_IN_USE", Message: "table is held by an open order"}
	ErrNoActiveSession      = &Error{Kind: KindConflict, Code: "NO_ACTIVE_SESSION", Message: "no open session"}
	ErrNotFound             = &Error{Kind: KindNotFound, Code: "NOT_FOUND", Message: "not found"}
	ErrInvalidSignature     = &Error{Kind: KindSecurity, Code: "INVALID_SIGNATURE", Message: "payment signature verification failed"}
	ErrInvalidCredentials   = &Error{Kind: KindSecurity, Code: "INVALID_CREDENTIALS", Message: "invalid email or password"}
	ErrGatewayUnavailable   = &Error{Kind: KindExternal, Code: "GATEWAY_UNAVAILABLE", Message: "payment gateway unavailable"}
	ErrGatewayNotConfigured = &Error{Kind: KindExternal, Code: "GATEWAY_NOT_CONFIGURED", Message: "payment gateway is not configured"}
	ErrUPINotConfigured     = &Error{Kind: KindValidation, Code: "UPI_NOT_CONFIGURED", Message: "collecting cashier has no UPI id"}
)

// withMessage copies a sentinel with a more specific message.
func withMessage(base *Error, format string, args ...any) *Error {
	e := *base
	e.Message = fmt.Sprintf(format, args...)
	return &e
}

// wrap copies a sentinel and records the underlying cause.
func wrap(base *Error, cause error) *Error {
	e := *base
	e.cause = cause
	return &e
}

func notFound(entity string, id any) *Error {
	return withMessage(ErrNotFound, "%s %v not found", entity, id)
}

func invalid(fields map[string]string) *Error {
	e := *ErrValidation
	e.Fields = fields
	return &e
}

func invalidField(field, reason string) *Error {
	return invalid(map[string]string{field: reason})
}

// AsError extracts a *Error from err, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
