package model

import (
	"time"

	"github.com/google/uuid"
)

// InventoryRequest status constants. Checkout requests carry their own flow:
// draft -> submitted -> dm_approved -> final_approved -> returned, with
// rejection branches at the two approval stages.
const (
	CheckoutDraft         = "draft"
	CheckoutSubmitted     = "submitted"
	CheckoutDMApproved    = "dm_approved"
	CheckoutDMRejected    = "dm_rejected"
	CheckoutFinalApproved = "final_approved"
	CheckoutFinalRejected = "final_rejected"
	CheckoutReturned      = "returned"
)

// InventoryRequest is a physical equipment checkout: stock is reserved at
// creation, allocated (consumed) at final approval, and restored on return.
type InventoryRequest struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	RequestID   string `gorm:"type:varchar(40);uniqueIndex;not null" json:"request_id"`
	Title       string `gorm:"type:varchar(255);not null" json:"title"`
	Description string `gorm:"type:text" json:"description,omitempty"`
	Status      string `gorm:"type:varchar(20);not null;default:'draft';index" json:"status"`

	RequesterID        uuid.UUID  `gorm:"type:uuid;not null;index" json:"requester_id"`
	Requester          *User      `gorm:"foreignKey:RequesterID" json:"requester,omitempty"`
	DirectManagerID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"direct_manager_id"`
	DirectManager      *User      `gorm:"foreignKey:DirectManagerID" json:"direct_manager,omitempty"`
	WarehouseManagerID *uuid.UUID `gorm:"type:uuid" json:"warehouse_manager_id"`
	WarehouseManager   *User      `gorm:"foreignKey:WarehouseManagerID" json:"warehouse_manager,omitempty"`

	EmployeeName     string `gorm:"type:varchar(255)" json:"employee_name,omitempty"`
	EmployeePosition string `gorm:"type:varchar(255)" json:"employee_position,omitempty"`
	EmployeePhone    string `gorm:"type:varchar(20)" json:"employee_phone,omitempty"`

	ExitPurpose       string     `gorm:"type:varchar(50)" json:"exit_purpose,omitempty"`
	CustomExitPurpose string     `gorm:"type:varchar(255)" json:"custom_exit_purpose,omitempty"`
	ClientEntityName  string     `gorm:"type:varchar(255)" json:"client_entity_name,omitempty"`
	ShootLocation     string     `gorm:"type:text" json:"shoot_location,omitempty"`
	ExitDurationFrom  *time.Time `json:"exit_duration_from"`
	ExitDurationTo    *time.Time `json:"exit_duration_to"`

	RejectionReason string `gorm:"type:text" json:"rejection_reason,omitempty"`

	ReturnDate               *time.Time `json:"return_date"`
	ReturnSupervisorName     string     `gorm:"type:varchar(255)" json:"return_supervisor_name,omitempty"`
	ReturnSupervisorPhone    string     `gorm:"type:varchar(20)" json:"return_supervisor_phone,omitempty"`
	EquipmentConditionReturn string     `gorm:"type:text" json:"equipment_condition_on_return,omitempty"`
	SupervisorNotes          string     `gorm:"type:text" json:"supervisor_notes,omitempty"`
	ReturnedByEmployee       string     `gorm:"type:varchar(255)" json:"returned_by_employee,omitempty"`

	Items []InventoryRequestItem `gorm:"foreignKey:InventoryRequestID;constraint:OnDelete:CASCADE" json:"items"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InventoryRequestItem is one checked-out line with its return bookkeeping.
type InventoryRequestItem struct {
	ID                   uint           `gorm:"primaryKey" json:"id"`
	InventoryRequestID   uint           `gorm:"not null;index" json:"inventory_request_id"`
	InventoryItemID      uint           `gorm:"not null;index" json:"inventory_item_id"`
	InventoryItem        *InventoryItem `gorm:"foreignKey:InventoryItemID" json:"inventory_item,omitempty"`
	QuantityRequested    int            `gorm:"not null" json:"quantity_requested"`
	QuantityReturned     int            `gorm:"not null;default:0" json:"quantity_returned"`
	ExpectedReturnDate   *time.Time     `json:"expected_return_date"`
	SerialNumber         string         `gorm:"type:varchar(255)" json:"serial_number,omitempty"`
	ConditionBeforeExit  string         `gorm:"type:text" json:"condition_before_exit,omitempty"`
	ConditionAfterReturn string         `gorm:"type:text" json:"condition_after_return,omitempty"`
	ReturnNotes          string         `gorm:"type:text" json:"return_notes,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}
