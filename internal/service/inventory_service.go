package service

import (
	"context"
	"fmt"

	"spendflow/internal/model"
	"spendflow/internal/repository"
	"spendflow/pkg/apperr"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- DTOs ---

type CreateInventoryItemRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Category    string `json:"category" binding:"required"`
	Quantity    int    `json:"quantity" binding:"min=0"`
	Unit        string `json:"unit"`
	UnitCost    string `json:"unit_cost"` // Decimal string
	Location    string `json:"location"`
	Condition   string `json:"condition"`
	Notes       string `json:"notes"`
}

type UpdateInventoryItemRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
	Unit        *string `json:"unit"`
	UnitCost    *string `json:"unit_cost"`
	Location    *string `json:"location"`
	Condition   *string `json:"condition"`
	Notes       *string `json:"notes"`
	IsActive    *bool   `json:"is_active"`
}

type AdjustQuantityRequest struct {
	// Type tags the ledger row: ADJUSTMENT for stocktake corrections,
	// MAINTENANCE for stock pulled for or restored from repair.
	Type        string `json:"type" binding:"omitempty,oneof=ADJUSTMENT MAINTENANCE"`
	NewQuantity int    `json:"new_quantity" binding:"min=0"`
	Reason      string `json:"reason" binding:"required"`
}

// --- Interface ---

// InventoryService owns the stock ledger. The four ledger primitives
// (Reserve, Release, Allocate, AddStock) must be called inside an open
// transaction: they lock the item row, apply the mutation and append the
// matching InventoryTransaction in one step. The boolean result reports
// business insufficiency (not enough available stock, inactive item); the
// error reports infrastructure failure. Callers branch on the boolean.
type InventoryService interface {
	Reserve(ctx context.Context, itemID uint, qty int, requestID *uint, userID *uuid.UUID, note string) (bool, error)
	Release(ctx context.Context, itemID uint, qty int, requestID *uint, userID *uuid.UUID, note string) (bool, error)
	Allocate(ctx context.Context, itemID uint, qty int, requestID *uint, userID *uuid.UUID, note string) (bool, error)
	AddStock(ctx context.Context, itemID uint, qty int, requestID *uint, userID *uuid.UUID, note string) error

	CreateItem(ctx context.Context, actor *model.User, req CreateInventoryItemRequest) (*model.InventoryItem, error)
	UpdateItem(ctx context.Context, actor *model.User, id uint, req UpdateInventoryItemRequest) (*model.InventoryItem, error)
	AdjustQuantity(ctx context.Context, actor *model.User, id uint, req AdjustQuantityRequest) (*model.InventoryItem, error)
	DeleteItem(ctx context.Context, id uint) error
	GetItem(ctx context.Context, id uint) (*model.InventoryItem, error)
	ListItems(ctx context.Context, filter repository.InventoryFilter) ([]model.InventoryItem, int64, error)
	Categories(ctx context.Context) ([]string, error)
	ListTransactions(ctx context.Context, itemID uint, page, limit int) ([]model.InventoryTransaction, int64, error)
}

type inventoryService struct {
	repo repository.InventoryRepository
	txm  repository.TransactionManager
}

func NewInventoryService(repo repository.InventoryRepository, txm repository.TransactionManager) InventoryService {
	return &inventoryService{repo: repo, txm: txm}
}

// --- Ledger primitives ---

// mutate locks the item, applies fn and, when fn reports success, persists the
// item together with an append-only transaction row.
func (s *inventoryService) mutate(
	ctx context.Context,
	itemID uint,
	txType string,
	signedQty int,
	requestID *uint,
	userID *uuid.UUID,
	note string,
	fn func(item *model.InventoryItem) bool,
) (bool, error) {
	item, err := s.repo.FindByIDForUpdate(ctx, itemID)
	if err != nil {
		return false, err
	}
	if item == nil {
		return false, apperr.NotFound("inventory item not found")
	}

	before := item.Quantity
	if !fn(item) {
		return false, nil
	}

	if err := s.repo.Save(ctx, item); err != nil {
		return false, err
	}
	txRow := &model.InventoryTransaction{
		InventoryItemID:  itemID,
		Type:             txType,
		Quantity:         signedQty,
		QuantityBefore:   before,
		QuantityAfter:    item.Quantity,
		RelatedRequestID: requestID,
		UserID:           userID,
		Notes:            note,
	}
	if err := s.repo.CreateTransaction(ctx, txRow); err != nil {
		return false, err
	}
	return true, nil
}

func (s *inventoryService) Reserve(ctx context.Context, itemID uint, qty int, requestID *uint, userID *uuid.UUID, note string) (bool, error) {
	if qty <= 0 {
		return false, apperr.Validation("reserve quantity must be positive")
	}
	return s.mutate(ctx, itemID, model.TxTypeReserve, qty, requestID, userID, note, func(item *model.InventoryItem) bool {
		return item.Reserve(qty)
	})
}

func (s *inventoryService) Release(ctx context.Context, itemID uint, qty int, requestID *uint, userID *uuid.UUID, note string) (bool, error) {
	if qty <= 0 {
		return false, apperr.Validation("release quantity must be positive")
	}
	return s.mutate(ctx, itemID, model.TxTypeRelease, qty, requestID, userID, note, func(item *model.InventoryItem) bool {
		return item.Release(qty)
	})
}

func (s *inventoryService) Allocate(ctx context.Context, itemID uint, qty int, requestID *uint, userID *uuid.UUID, note string) (bool, error) {
	if qty <= 0 {
		return false, apperr.Validation("allocate quantity must be positive")
	}
	return s.mutate(ctx, itemID, model.TxTypeOut, -qty, requestID, userID, note, func(item *model.InventoryItem) bool {
		return item.Allocate(qty)
	})
}

func (s *inventoryService) AddStock(ctx context.Context, itemID uint, qty int, requestID *uint, userID *uuid.UUID, note string) error {
	if qty <= 0 {
		return apperr.Validation("stock quantity must be positive")
	}
	_, err := s.mutate(ctx, itemID, model.TxTypeIn, qty, requestID, userID, note, func(item *model.InventoryItem) bool {
		item.AddStock(qty)
		return true
	})
	return err
}

// --- Item CRUD ---

func (s *inventoryService) CreateItem(ctx context.Context, actor *model.User, req CreateInventoryItemRequest) (*model.InventoryItem, error) {
	unitCost := decimal.Zero
	if req.UnitCost != "" {
		parsed, err := decimal.NewFromString(req.UnitCost)
		if err != nil {
			return nil, apperr.Validation("invalid unit_cost")
		}
		unitCost = parsed
	}

	var item *model.InventoryItem
	err := s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		code, err := s.repo.NextItemCode(txCtx)
		if err != nil {
			return err
		}
		item = &model.InventoryItem{
			Code:        code,
			Name:        req.Name,
			Description: req.Description,
			Category:    req.Category,
			Quantity:    req.Quantity,
			Unit:        req.Unit,
			UnitCost:    unitCost,
			Location:    req.Location,
			Condition:   req.Condition,
			IsActive:    true,
			Notes:       req.Notes,
			AddedByID:   &actor.ID,
		}
		if err := s.repo.Create(txCtx, item); err != nil {
			return err
		}
		if req.Quantity > 0 {
			txRow := &model.InventoryTransaction{
				InventoryItemID: item.ID,
				Type:            model.TxTypeIn,
				Quantity:        req.Quantity,
				QuantityBefore:  0,
				QuantityAfter:   req.Quantity,
				UserID:          &actor.ID,
				Notes:           "initial stock",
			}
			if err := s.repo.CreateTransaction(txCtx, txRow); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (s *inventoryService) UpdateItem(ctx context.Context, actor *model.User, id uint, req UpdateInventoryItemRequest) (*model.InventoryItem, error) {
	var item *model.InventoryItem
	err := s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		item, err = s.repo.FindByIDForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if item == nil {
			return apperr.NotFound("inventory item not found")
		}

		if req.Name != nil {
			item.Name = *req.Name
		}
		if req.Description != nil {
			item.Description = *req.Description
		}
		if req.Category != nil {
			item.Category = *req.Category
		}
		if req.Unit != nil {
			item.Unit = *req.Unit
		}
		if req.UnitCost != nil {
			parsed, err := decimal.NewFromString(*req.UnitCost)
			if err != nil {
				return apperr.Validation("invalid unit_cost")
			}
			item.UnitCost = parsed
		}
		if req.Location != nil {
			item.Location = *req.Location
		}
		if req.Condition != nil {
			item.Condition = *req.Condition
		}
		if req.Notes != nil {
			item.Notes = *req.Notes
		}
		if req.IsActive != nil {
			if !*req.IsActive && item.ReservedQuantity > 0 {
				return apperr.Validation("cannot deactivate an item with pending reservations")
			}
			item.IsActive = *req.IsActive
		}
		item.UpdatedByID = &actor.ID

		return s.repo.Save(txCtx, item)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// AdjustQuantity sets the absolute stock count. The new count may never fall
// below the reserved counter, otherwise outstanding holds would dangle.
func (s *inventoryService) AdjustQuantity(ctx context.Context, actor *model.User, id uint, req AdjustQuantityRequest) (*model.InventoryItem, error) {
	var item *model.InventoryItem
	err := s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		item, err = s.repo.FindByIDForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if item == nil {
			return apperr.NotFound("inventory item not found")
		}
		if req.NewQuantity < item.ReservedQuantity {
			return apperr.Validation(fmt.Sprintf(
				"new quantity %d is below reserved quantity %d", req.NewQuantity, item.ReservedQuantity))
		}

		txType := req.Type
		if txType == "" {
			txType = model.TxTypeAdjustment
		}

		before := item.Quantity
		item.Quantity = req.NewQuantity
		item.UpdatedByID = &actor.ID
		if err := s.repo.Save(txCtx, item); err != nil {
			return err
		}
		txRow := &model.InventoryTransaction{
			InventoryItemID: item.ID,
			Type:            txType,
			Quantity:        req.NewQuantity - before,
			QuantityBefore:  before,
			QuantityAfter:   req.NewQuantity,
			UserID:          &actor.ID,
			Notes:           req.Reason,
		}
		return s.repo.CreateTransaction(txCtx, txRow)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// DeleteItem soft deletes an item. Items holding reservations cannot be
// removed until every hold is released or allocated.
func (s *inventoryService) DeleteItem(ctx context.Context, id uint) error {
	return s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		item, err := s.repo.FindByIDForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if item == nil {
			return apperr.NotFound("inventory item not found")
		}
		if item.ReservedQuantity > 0 {
			return apperr.Validation("cannot delete an item with pending reservations")
		}
		return s.repo.SoftDelete(txCtx, id)
	})
}

func (s *inventoryService) GetItem(ctx context.Context, id uint) (*model.InventoryItem, error) {
	item, err := s.repo.FindByIDWithTransactions(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, apperr.NotFound("inventory item not found")
	}
	return item, nil
}

func (s *inventoryService) ListItems(ctx context.Context, filter repository.InventoryFilter) ([]model.InventoryItem, int64, error) {
	return s.repo.List(ctx, filter)
}

func (s *inventoryService) Categories(ctx context.Context) ([]string, error) {
	return s.repo.Categories(ctx)
}

func (s *inventoryService) ListTransactions(ctx context.Context, itemID uint, page, limit int) ([]model.InventoryTransaction, int64, error) {
	item, err := s.repo.FindByID(ctx, itemID)
	if err != nil {
		return nil, 0, err
	}
	if item == nil {
		return nil, 0, apperr.NotFound("inventory item not found")
	}
	return s.repo.ListTransactions(ctx, itemID, page, limit)
}
