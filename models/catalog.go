package models

import (
	"time"

	"cafe-pos/money"
)

// Product is a read-only catalog entry from the order engine's point of view.
// Lines copy its price and tax rate when they are created.
type Product struct {
	ID        uint             `json:"id" gorm:"primaryKey"`
	Name      string           `json:"name" gorm:"not null"`
	Price     money.Amount     `json:"price" gorm:"not null"`
	TaxRate   money.Rate       `json:"tax_rate" gorm:"not null;default:0"`
	IsActive  bool             `json:"is_active" gorm:"default:true"`
	Variants  []ProductVariant `json:"variants,omitempty" gorm:"foreignKey:ProductID"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

type ProductVariant struct {
	ID         uint         `json:"id" gorm:"primaryKey"`
	ProductID  uint         `json:"product_id" gorm:"not null;index"`
	Name       string       `json:"name" gorm:"not null"`
	ExtraPrice money.Amount `json:"extra_price" gorm:"not null;default:0"`
}
