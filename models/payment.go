package models

import (
	"time"

	"cafe-pos/money"
)

type PaymentMethodType string

const (
	MethodCash    PaymentMethodType = "cash"
	MethodCard    PaymentMethodType = "card"
	MethodDigital PaymentMethodType = "digital"
)

// PaymentMethod is one of the tenders the cafe accepts (cash, card, UPI …)
type PaymentMethod struct {
	ID       uint              `json:"id" gorm:"primaryKey"`
	Name     string            `json:"name" gorm:"uniqueIndex;not null"`
	Code     *string           `json:"code" gorm:"uniqueIndex"`
	Type     PaymentMethodType `json:"type" gorm:"not null;default:'cash'"`
	IsActive bool              `json:"is_active" gorm:"default:true"`
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// Payment rows are append-only.
type Payment struct {
	ID              uint           `json:"id" gorm:"primaryKey"`
	OrderID         uint           `json:"order_id" gorm:"not null;index"`
	PaymentMethodID uint           `json:"payment_method_id" gorm:"not null"`
	PaymentMethod   *PaymentMethod `json:"payment_method,omitempty" gorm:"foreignKey:PaymentMethodID"`
	Amount          money.Amount   `json:"amount" gorm:"not null"`
	CashierUPI      string         `json:"cashier_upi"`
	TransactionID   *string        `json:"transaction_id" gorm:"uniqueIndex"` // gateway idempotency key
	Status          PaymentStatus  `json:"status" gorm:"not null;default:'completed'"`
	PaidAt          time.Time      `json:"paid_at"`
}

// Receipt is issued once per completed order.
type Receipt struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	OrderID       uint      `json:"order_id" gorm:"uniqueIndex;not null"`
	Order         *Order    `json:"order,omitempty" gorm:"foreignKey:OrderID"`
	ReceiptNumber string    `json:"receipt_number" gorm:"uniqueIndex;not null"`
	IssuedAt      time.Time `json:"issued_at"`
}
