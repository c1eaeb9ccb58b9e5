package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"spendflow/internal/model"
	"spendflow/pkg/pagination"
)

// CheckoutFilter narrows checkout-request listings. Scope restricts visibility
// by role: regular users see their own requests, direct managers additionally
// see requests routed to them.
type CheckoutFilter struct {
	Status      string
	RequesterID *uuid.UUID
	ManagerID   *uuid.UUID
	Page        int
	Limit       int
}

// CheckoutStats aggregates checkout requests by status.
type CheckoutStats struct {
	Total     int64 `json:"total"`
	Draft     int64 `json:"draft"`
	Submitted int64 `json:"submitted"`
	Approved  int64 `json:"approved"`
	Rejected  int64 `json:"rejected"`
	Returned  int64 `json:"returned"`
}

type CheckoutRepository interface {
	Create(ctx context.Context, req *model.InventoryRequest) error
	Save(ctx context.Context, req *model.InventoryRequest) error
	FindByID(ctx context.Context, id uint) (*model.InventoryRequest, error)
	// FindByIDWithItems preloads lines ordered by inventory_item_id so callers
	// lock items in a deterministic global order.
	FindByIDWithItems(ctx context.Context, id uint) (*model.InventoryRequest, error)
	List(ctx context.Context, filter CheckoutFilter) ([]model.InventoryRequest, int64, error)
	Delete(ctx context.Context, id uint) error
	FindItemByID(ctx context.Context, itemID uint) (*model.InventoryRequestItem, error)
	SaveItem(ctx context.Context, item *model.InventoryRequestItem) error
	CreateItem(ctx context.Context, item *model.InventoryRequestItem) error
	DeleteItem(ctx context.Context, itemID uint) error
	Stats(ctx context.Context, filter CheckoutFilter) (*CheckoutStats, error)
}

type checkoutRepository struct {
	db *gorm.DB
}

func NewCheckoutRepository(db *gorm.DB) CheckoutRepository {
	return &checkoutRepository{db: db}
}

var checkoutPreloads = []string{"Requester", "DirectManager", "WarehouseManager", "Items.InventoryItem"}

func (r *checkoutRepository) Create(ctx context.Context, req *model.InventoryRequest) error {
	return GetDB(ctx, r.db).Create(req).Error
}

func (r *checkoutRepository) Save(ctx context.Context, req *model.InventoryRequest) error {
	return GetDB(ctx, r.db).Save(req).Error
}

func (r *checkoutRepository) FindByID(ctx context.Context, id uint) (*model.InventoryRequest, error) {
	var req model.InventoryRequest
	if err := GetDB(ctx, r.db).First(&req, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

func (r *checkoutRepository) FindByIDWithItems(ctx context.Context, id uint) (*model.InventoryRequest, error) {
	query := GetDB(ctx, r.db)
	for _, rel := range checkoutPreloads {
		if rel == "Items.InventoryItem" {
			continue
		}
		query = query.Preload(rel)
	}
	query = query.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("inventory_item_id ASC")
	}).Preload("Items.InventoryItem")

	var req model.InventoryRequest
	if err := query.First(&req, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

func applyCheckoutScope(query *gorm.DB, filter CheckoutFilter) *gorm.DB {
	if filter.RequesterID != nil && filter.ManagerID != nil {
		query = query.Where("requester_id = ? OR direct_manager_id = ?", *filter.RequesterID, *filter.ManagerID)
	} else if filter.RequesterID != nil {
		query = query.Where("requester_id = ?", *filter.RequesterID)
	} else if filter.ManagerID != nil {
		query = query.Where("direct_manager_id = ?", *filter.ManagerID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	return query
}

func (r *checkoutRepository) List(ctx context.Context, filter CheckoutFilter) ([]model.InventoryRequest, int64, error) {
	db := GetDB(ctx, r.db)
	query := applyCheckoutScope(db.Model(&model.InventoryRequest{}), filter)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	fetch := query.Session(&gorm.Session{})
	for _, rel := range checkoutPreloads {
		fetch = fetch.Preload(rel)
	}
	var requests []model.InventoryRequest
	offset := pagination.Offset(filter.Page, filter.Limit)
	if err := fetch.Order("created_at DESC").Offset(offset).Limit(filter.Limit).
		Find(&requests).Error; err != nil {
		return nil, 0, err
	}
	return requests, total, nil
}

func (r *checkoutRepository) Delete(ctx context.Context, id uint) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("inventory_request_id = ?", id).Delete(&model.InventoryRequestItem{}).Error; err != nil {
		return err
	}
	return db.Delete(&model.InventoryRequest{}, id).Error
}

func (r *checkoutRepository) FindItemByID(ctx context.Context, itemID uint) (*model.InventoryRequestItem, error) {
	var item model.InventoryRequestItem
	if err := GetDB(ctx, r.db).Preload("InventoryItem").
		First(&item, "id = ?", itemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *checkoutRepository) SaveItem(ctx context.Context, item *model.InventoryRequestItem) error {
	return GetDB(ctx, r.db).Save(item).Error
}

func (r *checkoutRepository) CreateItem(ctx context.Context, item *model.InventoryRequestItem) error {
	return GetDB(ctx, r.db).Create(item).Error
}

func (r *checkoutRepository) DeleteItem(ctx context.Context, itemID uint) error {
	return GetDB(ctx, r.db).Delete(&model.InventoryRequestItem{}, itemID).Error
}

func (r *checkoutRepository) Stats(ctx context.Context, filter CheckoutFilter) (*CheckoutStats, error) {
	db := GetDB(ctx, r.db)
	query := applyCheckoutScope(db.Model(&model.InventoryRequest{}), CheckoutFilter{
		RequesterID: filter.RequesterID,
		ManagerID:   filter.ManagerID,
	})

	var stats CheckoutStats
	err := query.Select(`
		COUNT(*) as total,
		SUM(CASE WHEN status = 'draft' THEN 1 ELSE 0 END) as draft,
		SUM(CASE WHEN status = 'submitted' THEN 1 ELSE 0 END) as submitted,
		SUM(CASE WHEN status IN ('dm_approved', 'final_approved') THEN 1 ELSE 0 END) as approved,
		SUM(CASE WHEN status IN ('dm_rejected', 'final_rejected') THEN 1 ELSE 0 END) as rejected,
		SUM(CASE WHEN status = 'returned' THEN 1 ELSE 0 END) as returned
	`).Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
