package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InventoryTransaction type constants
const (
	TxTypeIn          = "IN"
	TxTypeOut         = "OUT"
	TxTypeReserve     = "RESERVE"
	TxTypeRelease     = "RELEASE"
	TxTypeAdjustment  = "ADJUSTMENT"
	TxTypeMaintenance = "MAINTENANCE"
)

// RequestInventoryItem status constants
const (
	ReservationPending   = "PENDING"
	ReservationReserved  = "RESERVED"
	ReservationAllocated = "ALLOCATED"
	ReservationReturned  = "RETURNED"
	ReservationLost      = "LOST"
)

// InventoryItem owns the physical stock count and the reservation counter for
// one equipment line. The invariant 0 <= reserved_quantity <= quantity holds
// after every mutation; mutations happen only under a row lock in the ledger
// service.
type InventoryItem struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	Code             string          `gorm:"type:varchar(30);uniqueIndex;not null" json:"code"` // INV-2025-0001
	Name             string          `gorm:"type:varchar(255);not null" json:"name"`
	Description      string          `gorm:"type:text" json:"description,omitempty"`
	Category         string          `gorm:"type:varchar(100);index" json:"category"`
	Quantity         int             `gorm:"not null;default:0" json:"quantity"`
	ReservedQuantity int             `gorm:"not null;default:0" json:"reserved_quantity"`
	Unit             string          `gorm:"type:varchar(50)" json:"unit"`
	UnitCost         decimal.Decimal `gorm:"type:decimal(12,2)" json:"unit_cost"`
	Location         string          `gorm:"type:varchar(255)" json:"location,omitempty"`
	Condition        string          `gorm:"type:varchar(50)" json:"condition"`
	IsActive         bool            `gorm:"not null;default:true" json:"is_active"`
	Notes            string          `gorm:"type:text" json:"notes,omitempty"`

	AddedByID   *uuid.UUID `gorm:"type:uuid" json:"added_by"`
	AddedBy     *User      `gorm:"foreignKey:AddedByID" json:"added_by_user,omitempty"`
	UpdatedByID *uuid.UUID `gorm:"type:uuid" json:"updated_by"`

	Transactions []InventoryTransaction `gorm:"foreignKey:InventoryItemID" json:"transactions,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// AvailableQuantity is the stock not held by pending reservations.
func (i *InventoryItem) AvailableQuantity() int {
	available := i.Quantity - i.ReservedQuantity
	if available < 0 {
		return 0
	}
	return available
}

func (i *InventoryItem) IsInStock() bool {
	return i.AvailableQuantity() > 0
}

// CanReserve reports whether qty units can be soft-held right now.
func (i *InventoryItem) CanReserve(qty int) bool {
	return i.IsActive && i.AvailableQuantity() >= qty
}

// Reserve places a soft hold on qty units. Returns false and mutates nothing
// when the item is inactive or availability is insufficient. The primitive is
// not idempotent; at-most-once invocation per logical reservation is enforced
// by workflow state gating in the caller.
func (i *InventoryItem) Reserve(qty int) bool {
	if !i.CanReserve(qty) {
		return false
	}
	i.ReservedQuantity += qty
	return true
}

// Release undoes a soft hold of qty units.
func (i *InventoryItem) Release(qty int) bool {
	if i.ReservedQuantity < qty {
		return false
	}
	i.ReservedQuantity -= qty
	return true
}

// Allocate converts a reservation into a permanent stock deduction: both the
// reservation counter and the physical count drop by qty.
func (i *InventoryItem) Allocate(qty int) bool {
	if i.ReservedQuantity < qty || i.Quantity < qty {
		return false
	}
	i.ReservedQuantity -= qty
	i.Quantity -= qty
	return true
}

// AddStock unconditionally grows the physical count. Used for initial stock
// and for checkout returns.
func (i *InventoryItem) AddStock(qty int) {
	i.Quantity += qty
}

// UnitLabel falls back to "unit" so ledger notes stay readable.
func (i *InventoryItem) UnitLabel() string {
	if i.Unit == "" {
		return "unit"
	}
	return i.Unit
}

// InventoryTransaction is an immutable ledger entry recording one stock or
// reservation mutation. Rows are never updated or deleted; the sequence for an
// item reconstructs its full history.
type InventoryTransaction struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	InventoryItemID  uint           `gorm:"not null;index" json:"inventory_item_id"`
	InventoryItem    *InventoryItem `gorm:"foreignKey:InventoryItemID" json:"-"`
	Type             string         `gorm:"type:varchar(15);not null" json:"type"`
	Quantity         int            `gorm:"not null" json:"quantity"` // signed delta; OUT entries are negative
	QuantityBefore   int            `gorm:"not null" json:"quantity_before"`
	QuantityAfter    int            `gorm:"not null" json:"quantity_after"`
	RelatedRequestID *uint          `gorm:"index" json:"related_request_id"`
	UserID           *uuid.UUID     `gorm:"type:uuid" json:"user_id"`
	User             *User          `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Notes            string         `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt        time.Time      `gorm:"index" json:"created_at"`
}

// RequestInventoryItem links a project request to an inventory line and tracks
// its reservation status. quantity_allocated never exceeds quantity_requested
// and PENDING -> RESERVED -> ALLOCATED is one-directional.
type RequestInventoryItem struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	RequestID          uint           `gorm:"not null;index" json:"request_id"`
	InventoryItemID    uint           `gorm:"not null;index" json:"inventory_item_id"`
	InventoryItem      *InventoryItem `gorm:"foreignKey:InventoryItemID" json:"inventory_item,omitempty"`
	QuantityRequested  int            `gorm:"not null" json:"quantity_requested"`
	QuantityAllocated  int            `gorm:"not null;default:0" json:"quantity_allocated"`
	Status             string         `gorm:"type:varchar(15);not null;default:'PENDING'" json:"status"`
	ExpectedReturnDate *time.Time     `json:"expected_return_date"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// FormatInventoryCode renders an item code like INV-2025-0001. Sequence widths
// beyond four digits simply widen.
func FormatInventoryCode(year, seq int) string {
	return fmt.Sprintf("INV-%d-%04d", year, seq)
}
