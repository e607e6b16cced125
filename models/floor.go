package models

import "time"

// Floor is a named physical section. At most one open session may hold it.
type Floor struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"uniqueIndex;not null"`
	Number    int       `json:"number"`
	IsActive  bool      `json:"is_active" gorm:"default:true"`
	Tables    []Table   `json:"tables,omitempty" gorm:"foreignKey:FloorID"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type TableStatus string

const (
	TableAvailable TableStatus = "available"
	TableOccupied  TableStatus = "occupied"
	TableReserved  TableStatus = "reserved"
	TableDirty     TableStatus = "dirty"
)

func (s TableStatus) Valid() bool {
	switch s {
	case TableAvailable, TableOccupied, TableReserved, TableDirty:
		return true
	}
	return false
}

// Table occupancy is driven by order transitions; staff may also set the
// status by hand once no open order holds the table.
type Table struct {
	ID          uint        `json:"id" gorm:"primaryKey"`
	FloorID     *uint       `json:"floor_id" gorm:"index"`
	TableNumber string      `json:"table_number" gorm:"uniqueIndex;not null"`
	Name        string      `json:"name"`
	Capacity    int         `json:"capacity" gorm:"default:2"`
	Status      TableStatus `json:"status" gorm:"not null;default:'available'"`
	Token       string      `json:"token" gorm:"uniqueIndex;not null"` // QR self-ordering capability
	IsActive    bool        `json:"is_active" gorm:"default:true"`
	QRURL       string      `json:"qr_url,omitempty" gorm:"-"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}
