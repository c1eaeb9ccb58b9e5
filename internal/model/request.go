package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RequestType enum constants
const (
	RequestTypePurchase = "purchase"
	RequestTypeProject  = "project"
)

// Request state constants. Purchases walk SUBMITTED -> DM_APPROVED ->
// FINAL_APPROVED -> FUNDS_TRANSFERRED; projects walk SUBMITTED -> PROCESSING ->
// DONE -> PAID. Rejection branches are terminal.
const (
	StateDraft            = "DRAFT"
	StateSubmitted        = "SUBMITTED"
	StateDMApproved       = "DM_APPROVED"
	StateDMRejected       = "DM_REJECTED"
	StateFinalApproved    = "FINAL_APPROVED"
	StateFinalRejected    = "FINAL_REJECTED"
	StateFundsTransferred = "FUNDS_TRANSFERRED"
	StateProcessing       = "PROCESSING"
	StateDone             = "DONE"
	StatePaid             = "PAID"
)

// Approval stage and decision constants
const (
	StageDM    = "DM"
	StageAcct  = "ACCT"
	StageFinal = "FINAL"

	DecisionPending  = "PENDING"
	DecisionApproved = "APPROVED"
	DecisionRejected = "REJECTED"
)

// Request is the aggregate root for a spend request (purchase or project).
// State is only ever mutated by the approval service inside a locked
// transaction; handlers never write the state column directly.
type Request struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	RequestID   string `gorm:"type:varchar(30);uniqueIndex;not null" json:"request_id"` // PR-2025-001 / PROJ-2025-001
	Type        string `gorm:"type:varchar(20);not null;index" json:"type"`
	State       string `gorm:"type:varchar(30);not null;default:'DRAFT';index" json:"state"`
	Title       string `gorm:"type:varchar(255);not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	Category    string `gorm:"type:varchar(100)" json:"category"`
	Location    string `gorm:"type:varchar(255)" json:"location"`

	RequesterID       uuid.UUID  `gorm:"type:uuid;not null;index" json:"requester_id"`
	Requester         *User      `gorm:"foreignKey:RequesterID" json:"requester,omitempty"`
	DirectManagerID   *uuid.UUID `gorm:"type:uuid" json:"direct_manager_id"` // pins the DM stage to one manager when set
	DirectManager     *User      `gorm:"foreignKey:DirectManagerID" json:"direct_manager,omitempty"`
	CurrentApproverID *uuid.UUID `gorm:"type:uuid" json:"current_approver_id"` // legacy field; pooled stages keep this null
	CurrentApprover   *User      `gorm:"foreignKey:CurrentApproverID" json:"current_approver,omitempty"`

	DesiredCost  decimal.Decimal `gorm:"type:decimal(12,2)" json:"desired_cost"`
	Currency     string          `gorm:"type:varchar(3)" json:"currency"`
	NeededByDate *time.Time      `json:"needed_by_date"`

	SelectedQuoteID *uint         `json:"selected_quote_id"`
	SelectedQuote   *RequestQuote `gorm:"foreignKey:SelectedQuoteID" json:"selected_quote,omitempty"`

	PayoutChannel      string     `gorm:"type:varchar(20)" json:"payout_channel"`
	PayoutReference    string     `gorm:"type:varchar(255)" json:"payout_reference"`
	FundsTransferredAt *time.Time `json:"funds_transferred_at"`

	// Project-only fields
	ClientName         string          `gorm:"type:varchar(255)" json:"client_name,omitempty"`
	ProjectDescription string          `gorm:"type:text" json:"project_description,omitempty"`
	TotalCost          decimal.Decimal `gorm:"type:decimal(12,2)" json:"total_cost"`
	TotalBenefit       decimal.Decimal `gorm:"type:decimal(12,2)" json:"total_benefit"`
	TotalPrice         decimal.Decimal `gorm:"type:decimal(12,2)" json:"total_price"`
	StartTime          *time.Time      `json:"start_time"`
	EndTime            *time.Time      `json:"end_time"`

	Items          []RequestItem          `gorm:"foreignKey:RequestID;constraint:OnDelete:CASCADE" json:"items"`
	Quotes         []RequestQuote         `gorm:"foreignKey:RequestID;constraint:OnDelete:CASCADE" json:"quotes,omitempty"`
	Approvals      []Approval             `gorm:"foreignKey:RequestID;constraint:OnDelete:CASCADE" json:"approvals,omitempty"`
	InventoryItems []RequestInventoryItem `gorm:"foreignKey:RequestID;constraint:OnDelete:CASCADE" json:"inventory_items,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r *Request) IsPurchase() bool { return r.Type == RequestTypePurchase }
func (r *Request) IsProject() bool  { return r.Type == RequestTypeProject }

// TotalItemsCost sums quantity * unit_price over the loaded line items.
func (r *Request) TotalItemsCost() decimal.Decimal {
	total := decimal.Zero
	for _, item := range r.Items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// LowestQuote returns the attached quote with the smallest quote_total, or nil
// when no quotes are loaded. Used by auto_lowest quote selection.
func (r *Request) LowestQuote() *RequestQuote {
	var lowest *RequestQuote
	for i := range r.Quotes {
		if lowest == nil || r.Quotes[i].QuoteTotal.LessThan(lowest.QuoteTotal) {
			lowest = &r.Quotes[i]
		}
	}
	return lowest
}

// HasQuote reports whether the given quote id belongs to this request.
func (r *Request) HasQuote(quoteID uint) bool {
	for _, q := range r.Quotes {
		if q.ID == quoteID {
			return true
		}
	}
	return false
}

// RequestItem is a line item on a request. Total is recomputed on every save.
type RequestItem struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	RequestID  uint            `gorm:"not null;index" json:"request_id"`
	Name       string          `gorm:"type:varchar(255);not null" json:"name"`
	Quantity   int             `gorm:"not null" json:"quantity"`
	UnitPrice  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price"`
	Total      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total"`
	VendorHint string          `gorm:"type:varchar(255)" json:"vendor_hint,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// BeforeSave recomputes the line total from quantity and unit price.
func (it *RequestItem) BeforeSave(tx *gorm.DB) error {
	it.Total = it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
	return nil
}

// RequestQuote is a vendor quote attached by an accountant.
type RequestQuote struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	RequestID  uint            `gorm:"not null;index" json:"request_id"`
	VendorName string          `gorm:"type:varchar(255);not null" json:"vendor_name"`
	QuoteTotal decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"quote_total"`
	FilePath   string          `gorm:"type:varchar(2048)" json:"file_path"`
	Notes      string          `gorm:"type:text" json:"notes,omitempty"`
	UploadedAt time.Time       `json:"uploaded_at"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Approval is an append-only audit record of a single decision at a stage.
type Approval struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	RequestID  uint       `gorm:"not null;index" json:"request_id"`
	Stage      string     `gorm:"type:varchar(10);not null" json:"stage"` // DM, ACCT, FINAL
	ApproverID uuid.UUID  `gorm:"type:uuid;not null" json:"approver_id"`
	Approver   *User      `gorm:"foreignKey:ApproverID" json:"approver,omitempty"`
	Decision   string     `gorm:"type:varchar(10);not null" json:"decision"` // PENDING, APPROVED, REJECTED
	Comment    string     `gorm:"type:text" json:"comment,omitempty"`
	DecidedAt  *time.Time `json:"decided_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

// RequestCounter backs human-readable id allocation, one row per (type, year).
// The row is always read under SELECT ... FOR UPDATE.
type RequestCounter struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Type string `gorm:"type:varchar(20);not null;uniqueIndex:idx_request_counters_type_year" json:"type"`
	Year int    `gorm:"not null;uniqueIndex:idx_request_counters_type_year" json:"year"`
	Seq  int    `gorm:"not null;default:0" json:"seq"`
}
