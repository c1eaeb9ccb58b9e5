package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"spendflow/internal/model"
	"spendflow/pkg/pagination"
)

// InventoryFilter narrows item listings.
type InventoryFilter struct {
	Search     string
	Category   string
	ActiveOnly bool
	InStock    bool
	Page       int
	Limit      int
}

type InventoryRepository interface {
	Create(ctx context.Context, item *model.InventoryItem) error
	Save(ctx context.Context, item *model.InventoryItem) error
	FindByID(ctx context.Context, id uint) (*model.InventoryItem, error)
	FindByIDWithTransactions(ctx context.Context, id uint) (*model.InventoryItem, error)
	// FindByIDForUpdate acquires the per-item row lock every ledger mutation
	// runs under. Must run inside RunInTx.
	FindByIDForUpdate(ctx context.Context, id uint) (*model.InventoryItem, error)
	List(ctx context.Context, filter InventoryFilter) ([]model.InventoryItem, int64, error)
	SoftDelete(ctx context.Context, id uint) error
	Categories(ctx context.Context) ([]string, error)
	CreateTransaction(ctx context.Context, tx *model.InventoryTransaction) error
	ListTransactions(ctx context.Context, itemID uint, page, limit int) ([]model.InventoryTransaction, int64, error)
	// NextItemCode allocates the next INV-<year>-<seq> code under a pg
	// advisory transaction lock. Must run inside RunInTx.
	NextItemCode(ctx context.Context) (string, error)
}

type inventoryRepository struct {
	db *gorm.DB
}

func NewInventoryRepository(db *gorm.DB) InventoryRepository {
	return &inventoryRepository{db: db}
}

func (r *inventoryRepository) Create(ctx context.Context, item *model.InventoryItem) error {
	return GetDB(ctx, r.db).Create(item).Error
}

func (r *inventoryRepository) Save(ctx context.Context, item *model.InventoryItem) error {
	return GetDB(ctx, r.db).Save(item).Error
}

func (r *inventoryRepository) FindByID(ctx context.Context, id uint) (*model.InventoryItem, error) {
	var item model.InventoryItem
	if err := GetDB(ctx, r.db).First(&item, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *inventoryRepository) FindByIDWithTransactions(ctx context.Context, id uint) (*model.InventoryItem, error) {
	var item model.InventoryItem
	if err := GetDB(ctx, r.db).Preload("AddedBy").
		Preload("Transactions", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at DESC").Limit(50)
		}).
		Preload("Transactions.User").
		First(&item, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *inventoryRepository) FindByIDForUpdate(ctx context.Context, id uint) (*model.InventoryItem, error) {
	var item model.InventoryItem
	if err := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *inventoryRepository) List(ctx context.Context, filter InventoryFilter) ([]model.InventoryItem, int64, error) {
	query := GetDB(ctx, r.db).Model(&model.InventoryItem{})
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query = query.Where("name ILIKE ? OR code ILIKE ? OR description ILIKE ?", like, like, like)
	}
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.ActiveOnly {
		query = query.Where("is_active = true")
	}
	if filter.InStock {
		query = query.Where("quantity - reserved_quantity > 0")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []model.InventoryItem
	offset := pagination.Offset(filter.Page, filter.Limit)
	if err := query.Order("name ASC").Offset(offset).Limit(filter.Limit).
		Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *inventoryRepository) SoftDelete(ctx context.Context, id uint) error {
	return GetDB(ctx, r.db).Delete(&model.InventoryItem{}, id).Error
}

func (r *inventoryRepository) Categories(ctx context.Context) ([]string, error) {
	var categories []string
	if err := GetDB(ctx, r.db).Model(&model.InventoryItem{}).
		Distinct("category").Where("category <> ''").
		Order("category ASC").Pluck("category", &categories).Error; err != nil {
		return nil, err
	}
	return categories, nil
}

func (r *inventoryRepository) CreateTransaction(ctx context.Context, tx *model.InventoryTransaction) error {
	return GetDB(ctx, r.db).Create(tx).Error
}

func (r *inventoryRepository) ListTransactions(ctx context.Context, itemID uint, page, limit int) ([]model.InventoryTransaction, int64, error) {
	db := GetDB(ctx, r.db)
	query := db.Model(&model.InventoryTransaction{}).Where("inventory_item_id = ?", itemID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var transactions []model.InventoryTransaction
	offset := pagination.Offset(page, limit)
	if err := query.Preload("User").Order("created_at DESC").
		Offset(offset).Limit(limit).Find(&transactions).Error; err != nil {
		return nil, 0, err
	}
	return transactions, total, nil
}

func (r *inventoryRepository) NextItemCode(ctx context.Context) (string, error) {
	db := GetDB(ctx, r.db)
	year := time.Now().Year()
	prefix := fmt.Sprintf("INV-%d-", year)

	// Advisory lock serializes concurrent code generation for the year.
	if err := db.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", prefix).Error; err != nil {
		return "", err
	}

	var maxSeq sql.NullInt64
	if err := db.Model(&model.InventoryItem{}).Unscoped().
		Where("code LIKE ?", prefix+"%").
		Select("MAX(CAST(split_part(code, '-', 3) AS INTEGER))").
		Scan(&maxSeq).Error; err != nil {
		return "", err
	}
	return model.FormatInventoryCode(year, int(maxSeq.Int64)+1), nil
}
