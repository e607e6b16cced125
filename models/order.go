package models

import (
	"time"

	"cafe-pos/money"
)

// OrderStatus represents all possible states of a cafe order
type OrderStatus string

const (
	StatusDraft         OrderStatus = "draft"
	StatusSentToKitchen OrderStatus = "sent_to_kitchen"
	StatusCompleted     OrderStatus = "completed"
	StatusCancelled     OrderStatus = "cancelled"
)

// Terminal reports whether no further transition is possible
func (s OrderStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type OrderType string

const (
	OrderDineIn   OrderType = "dine_in"
	OrderTakeaway OrderType = "takeaway"
)

func (t OrderType) Valid() bool {
	return t == OrderDineIn || t == OrderTakeaway
}

// LineStatus is the kitchen preparation state of a single line
type LineStatus string

const (
	LinePending   LineStatus = "pending"
	LinePreparing LineStatus = "preparing"
	LineReady     LineStatus = "ready"
	LineServed    LineStatus = "served"
)

type Order struct {
	ID               uint                 `json:"id" gorm:"primaryKey"`
	OrderNumber      string               `json:"order_number" gorm:"size:20;uniqueIndex;not null"`
	SessionID        uint                 `json:"session_id" gorm:"not null;index"`
	Session          *POSSession          `json:"session,omitempty" gorm:"foreignKey:SessionID"`
	TableID          *uint                `json:"table_id" gorm:"index"`
	Table            *Table               `json:"table,omitempty" gorm:"foreignKey:TableID"`
	CustomerName     string               `json:"customer_name"`
	CustomerPhone    string               `json:"customer_phone"`
	OrderType        OrderType            `json:"order_type" gorm:"not null;default:'dine_in'"`
	Status           OrderStatus          `json:"status" gorm:"not null;default:'draft';index"`
	Subtotal         money.Amount         `json:"subtotal" gorm:"not null;default:0"`
	TaxAmount        money.Amount         `json:"tax_amount" gorm:"not null;default:0"`
	DiscountAmount   money.Amount         `json:"discount_amount" gorm:"not null;default:0"`
	TotalAmount      money.Amount         `json:"total_amount" gorm:"not null;default:0"`
	GatewayOrderID   *string              `json:"gateway_order_id,omitempty" gorm:"index"`
	GatewayPaymentID *string              `json:"gateway_payment_id,omitempty"`
	GatewaySignature *string              `json:"-"`
	Notes            string               `json:"notes"`
	Lines            []OrderLine          `json:"lines" gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	StatusHistory    []OrderStatusHistory `json:"status_history,omitempty" gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

// Recalculate derives subtotal, tax and total from the lines currently held
// in o.Lines. The caller is responsible for loading a consistent line set.
func (o *Order) Recalculate() {
	var subtotal, tax money.Amount
	for i := range o.Lines {
		subtotal += o.Lines[i].TotalPrice
		tax += o.Lines[i].TaxAmount
	}
	o.Subtotal = subtotal
	o.TaxAmount = tax
	o.TotalAmount = subtotal + tax - o.DiscountAmount
}

type OrderLine struct {
	ID          uint         `json:"id" gorm:"primaryKey"`
	OrderID     uint         `json:"order_id" gorm:"not null;index"`
	ProductID   uint         `json:"product_id" gorm:"not null"`
	ProductName string       `json:"product_name"` // snapshot name
	VariantID   *uint        `json:"variant_id"`
	VariantName string       `json:"variant_name,omitempty"`
	Quantity    int          `json:"quantity" gorm:"not null"`
	UnitPrice   money.Amount `json:"unit_price" gorm:"not null"` // snapshot price at time of order
	TaxRate     money.Rate   `json:"tax_rate" gorm:"not null;default:0"`
	TaxAmount   money.Amount `json:"tax_amount" gorm:"not null;default:0"`
	TotalPrice  money.Amount `json:"total_price" gorm:"not null;default:0"`
	Status      LineStatus   `json:"status" gorm:"not null;default:'pending'"`
	Notes       string       `json:"notes"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Reprice derives total_price and tax_amount from the captured unit price,
// tax rate and quantity.
func (l *OrderLine) Reprice() {
	l.TotalPrice = l.UnitPrice.Mul(l.Quantity)
	l.TaxAmount = l.TotalPrice.ApplyRate(l.TaxRate)
}

// OrderStatusHistory is the audit trail of every order status change
type OrderStatusHistory struct {
	ID         uint        `json:"id" gorm:"primaryKey"`
	OrderID    uint        `json:"order_id" gorm:"not null;index"`
	FromStatus OrderStatus `json:"from_status"`
	ToStatus   OrderStatus `json:"to_status" gorm:"not null"`
	ChangedBy  *uint       `json:"changed_by"` // nil for system transitions
	Note       string      `json:"note"`
	CreatedAt  time.Time   `json:"created_at"`
}
