package models

import (
	"time"

	"cafe-pos/money"
)

type SessionStatus string

const (
	SessionOpen   SessionStatus = "open"
	SessionClosed SessionStatus = "closed"
)

// POSSession is a cashier's shift. TotalOrders and TotalSales are derived
// from the session's completed orders.
type POSSession struct {
	ID            uint          `json:"id" gorm:"primaryKey"`
	SessionNumber string        `json:"session_number" gorm:"uniqueIndex;not null"`
	CashierID     uint          `json:"cashier_id" gorm:"not null;index"`
	Cashier       *User         `json:"cashier,omitempty" gorm:"foreignKey:CashierID"`
	FloorID       *uint         `json:"floor_id" gorm:"index"`
	Floor         *Floor        `json:"floor,omitempty" gorm:"foreignKey:FloorID"`
	Status        SessionStatus `json:"status" gorm:"not null;default:'open';index"`
	StartTime     time.Time     `json:"start_time"`
	EndTime       *time.Time    `json:"end_time"`
	StartingCash  money.Amount  `json:"starting_cash" gorm:"not null;default:0"`
	ClosingCash   *money.Amount `json:"closing_cash"`
	ExpectedCash  *money.Amount `json:"expected_cash"` // starting cash + cash tendered on completed orders, set on close
	CashVariance  *money.Amount `json:"cash_variance"` // closing - expected
	Notes         string        `json:"notes"`
	TotalOrders   int           `json:"total_orders" gorm:"not null;default:0"`
	TotalSales    money.Amount  `json:"total_sales" gorm:"not null;default:0"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

func (POSSession) TableName() string { return "pos_sessions" }
