package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"spendflow/internal/event"
	"spendflow/internal/model"
	"spendflow/internal/repository"
	"spendflow/pkg/apperr"

	"github.com/google/uuid"
)

// --- DTOs ---

type CheckoutItemInput struct {
	InventoryItemID     uint       `json:"inventory_item_id" binding:"required"`
	Quantity            int        `json:"quantity" binding:"required,min=1"`
	ExpectedReturnDate  *time.Time `json:"expected_return_date"`
	SerialNumber        string     `json:"serial_number"`
	ConditionBeforeExit string     `json:"condition_before_exit"`
}

type CreateCheckoutRequest struct {
	Title           string    `json:"title" binding:"required"`
	Description     string    `json:"description"`
	DirectManagerID uuid.UUID `json:"direct_manager_id" binding:"required"`

	EmployeeName     string `json:"employee_name"`
	EmployeePosition string `json:"employee_position"`
	EmployeePhone    string `json:"employee_phone"`

	ExitPurpose       string     `json:"exit_purpose"`
	CustomExitPurpose string     `json:"custom_exit_purpose"`
	ClientEntityName  string     `json:"client_entity_name"`
	ShootLocation     string     `json:"shoot_location"`
	ExitDurationFrom  *time.Time `json:"exit_duration_from"`
	ExitDurationTo    *time.Time `json:"exit_duration_to"`

	Items []CheckoutItemInput `json:"items" binding:"required,min=1"`
}

type UpdateCheckoutRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`

	EmployeeName     *string `json:"employee_name"`
	EmployeePosition *string `json:"employee_position"`
	EmployeePhone    *string `json:"employee_phone"`

	ExitPurpose       *string    `json:"exit_purpose"`
	CustomExitPurpose *string    `json:"custom_exit_purpose"`
	ClientEntityName  *string    `json:"client_entity_name"`
	ShootLocation     *string    `json:"shoot_location"`
	ExitDurationFrom  *time.Time `json:"exit_duration_from"`
	ExitDurationTo    *time.Time `json:"exit_duration_to"`

	Items []CheckoutItemInput `json:"items"`
}

type UpdateCheckoutStatusRequest struct {
	Status          string `json:"status" binding:"required,oneof=dm_approved dm_rejected final_approved final_rejected"`
	RejectionReason string `json:"rejection_reason"`
}

type ReturnLineInput struct {
	ItemID               uint   `json:"item_id" binding:"required"` // checkout line id
	QuantityReturned     int    `json:"quantity_returned" binding:"min=0"`
	ConditionAfterReturn string `json:"condition_after_return"`
	ReturnNotes          string `json:"return_notes"`
}

type RecordReturnRequest struct {
	ReturnDate               *time.Time        `json:"return_date"`
	ReturnSupervisorName     string            `json:"return_supervisor_name"`
	ReturnSupervisorPhone    string            `json:"return_supervisor_phone"`
	EquipmentConditionReturn string            `json:"equipment_condition_on_return"`
	SupervisorNotes          string            `json:"supervisor_notes"`
	ReturnedByEmployee       string            `json:"returned_by_employee"`
	Items                    []ReturnLineInput `json:"items" binding:"required,min=1"`
}

// --- Interface ---

// CheckoutService manages physical equipment checkouts. Unlike project
// reservations, every stock movement here is strict: a failed reserve or
// allocate aborts the whole transaction.
type CheckoutService interface {
	Create(ctx context.Context, actor *model.User, req CreateCheckoutRequest) (*model.InventoryRequest, error)
	Update(ctx context.Context, actor *model.User, id uint, req UpdateCheckoutRequest) (*model.InventoryRequest, error)
	Submit(ctx context.Context, actor *model.User, id uint) (*model.InventoryRequest, error)
	UpdateStatus(ctx context.Context, actor *model.User, id uint, req UpdateCheckoutStatusRequest) (*model.InventoryRequest, error)
	RecordReturn(ctx context.Context, actor *model.User, id uint, req RecordReturnRequest) (*model.InventoryRequest, error)
	Delete(ctx context.Context, actor *model.User, id uint) error
	Get(ctx context.Context, actor *model.User, id uint) (*model.InventoryRequest, error)
	List(ctx context.Context, actor *model.User, status string, page, limit int) ([]model.InventoryRequest, int64, error)
	Stats(ctx context.Context, actor *model.User) (*repository.CheckoutStats, error)
}

type checkoutService struct {
	checkouts repository.CheckoutRepository
	inventory InventoryService
	txm       repository.TransactionManager
	bus       *event.Bus
}

func NewCheckoutService(
	checkouts repository.CheckoutRepository,
	inventory InventoryService,
	txm repository.TransactionManager,
	bus *event.Bus,
) CheckoutService {
	return &checkoutService{checkouts: checkouts, inventory: inventory, txm: txm, bus: bus}
}

func newCheckoutRequestID() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("INV-%d-%s", time.Now().Year(), suffix)
}

// sortedByItemID orders checkout inputs by inventory item id so every
// transaction locks item rows in the same global order.
func sortedByItemID(inputs []CheckoutItemInput) []CheckoutItemInput {
	sorted := make([]CheckoutItemInput, len(inputs))
	copy(sorted, inputs)
	sort.Slice(sorted, func(a, b int) bool {
		return sorted[a].InventoryItemID < sorted[b].InventoryItemID
	})
	return sorted
}

func (s *checkoutService) Create(ctx context.Context, actor *model.User, req CreateCheckoutRequest) (*model.InventoryRequest, error) {
	seen := make(map[uint]bool, len(req.Items))
	for _, in := range req.Items {
		if seen[in.InventoryItemID] {
			return nil, apperr.Validation("duplicate inventory item in checkout")
		}
		seen[in.InventoryItemID] = true
	}

	var created *model.InventoryRequest
	err := s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		checkout := &model.InventoryRequest{
			RequestID:         newCheckoutRequestID(),
			Title:             req.Title,
			Description:       req.Description,
			Status:            model.CheckoutDraft,
			RequesterID:       actor.ID,
			DirectManagerID:   req.DirectManagerID,
			EmployeeName:      req.EmployeeName,
			EmployeePosition:  req.EmployeePosition,
			EmployeePhone:     req.EmployeePhone,
			ExitPurpose:       req.ExitPurpose,
			CustomExitPurpose: req.CustomExitPurpose,
			ClientEntityName:  req.ClientEntityName,
			ShootLocation:     req.ShootLocation,
			ExitDurationFrom:  req.ExitDurationFrom,
			ExitDurationTo:    req.ExitDurationTo,
		}
		if err := s.checkouts.Create(txCtx, checkout); err != nil {
			return err
		}

		for _, in := range sortedByItemID(req.Items) {
			ok, err := s.inventory.Reserve(txCtx, in.InventoryItemID, in.Quantity,
				nil, &actor.ID, "reserved for checkout "+checkout.RequestID)
			if err != nil {
				return err
			}
			if !ok {
				return apperr.Validation(fmt.Sprintf("insufficient stock for inventory item %d", in.InventoryItemID))
			}
			line := &model.InventoryRequestItem{
				InventoryRequestID:  checkout.ID,
				InventoryItemID:     in.InventoryItemID,
				QuantityRequested:   in.Quantity,
				ExpectedReturnDate:  in.ExpectedReturnDate,
				SerialNumber:        in.SerialNumber,
				ConditionBeforeExit: in.ConditionBeforeExit,
			}
			if err := s.checkouts.CreateItem(txCtx, line); err != nil {
				return err
			}
		}

		var err error
		created, err = s.checkouts.FindByIDWithItems(txCtx, checkout.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *checkoutService) Update(ctx context.Context, actor *model.User, id uint, req UpdateCheckoutRequest) (*model.InventoryRequest, error) {
	var updated *model.InventoryRequest
	err := s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		checkout, err := s.checkouts.FindByIDWithItems(txCtx, id)
		if err != nil {
			return err
		}
		if checkout == nil {
			return apperr.NotFound("checkout request not found")
		}
		if checkout.RequesterID != actor.ID && !actor.IsAdmin() {
			return apperr.Forbidden("only the requester can modify this checkout")
		}
		if checkout.Status != model.CheckoutDraft {
			return apperr.Validation("only draft checkouts can be modified")
		}

		if req.Title != nil {
			checkout.Title = *req.Title
		}
		if req.Description != nil {
			checkout.Description = *req.Description
		}
		if req.EmployeeName != nil {
			checkout.EmployeeName = *req.EmployeeName
		}
		if req.EmployeePosition != nil {
			checkout.EmployeePosition = *req.EmployeePosition
		}
		if req.EmployeePhone != nil {
			checkout.EmployeePhone = *req.EmployeePhone
		}
		if req.ExitPurpose != nil {
			checkout.ExitPurpose = *req.ExitPurpose
		}
		if req.CustomExitPurpose != nil {
			checkout.CustomExitPurpose = *req.CustomExitPurpose
		}
		if req.ClientEntityName != nil {
			checkout.ClientEntityName = *req.ClientEntityName
		}
		if req.ShootLocation != nil {
			checkout.ShootLocation = *req.ShootLocation
		}
		if req.ExitDurationFrom != nil {
			checkout.ExitDurationFrom = req.ExitDurationFrom
		}
		if req.ExitDurationTo != nil {
			checkout.ExitDurationTo = req.ExitDurationTo
		}
		if err := s.checkouts.Save(txCtx, checkout); err != nil {
			return err
		}

		if req.Items != nil {
			if err := s.syncLines(txCtx, actor, checkout, req.Items); err != nil {
				return err
			}
		}

		updated, err = s.checkouts.FindByIDWithItems(txCtx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// syncLines reconciles the stored checkout lines with the desired set,
// releasing shrunk holds and reserving grown ones. Items are visited in
// ascending id order to keep the lock order deterministic.
func (s *checkoutService) syncLines(ctx context.Context, actor *model.User, checkout *model.InventoryRequest, desired []CheckoutItemInput) error {
	current := make(map[uint]*model.InventoryRequestItem, len(checkout.Items))
	for i := range checkout.Items {
		current[checkout.Items[i].InventoryItemID] = &checkout.Items[i]
	}
	wanted := make(map[uint]CheckoutItemInput, len(desired))
	for _, in := range desired {
		if _, dup := wanted[in.InventoryItemID]; dup {
			return apperr.Validation("duplicate inventory item in checkout")
		}
		wanted[in.InventoryItemID] = in
	}

	itemIDs := make([]uint, 0, len(current)+len(wanted))
	for itemID := range current {
		itemIDs = append(itemIDs, itemID)
	}
	for itemID := range wanted {
		if _, exists := current[itemID]; !exists {
			itemIDs = append(itemIDs, itemID)
		}
	}
	sort.Slice(itemIDs, func(a, b int) bool { return itemIDs[a] < itemIDs[b] })

	for _, itemID := range itemIDs {
		line, hasLine := current[itemID]
		in, keep := wanted[itemID]

		currentQty := 0
		if hasLine {
			currentQty = line.QuantityRequested
		}
		desiredQty := 0
		if keep {
			desiredQty = in.Quantity
		}

		switch {
		case desiredQty > currentQty:
			ok, err := s.inventory.Reserve(ctx, itemID, desiredQty-currentQty,
				nil, &actor.ID, "reserved for checkout "+checkout.RequestID)
			if err != nil {
				return err
			}
			if !ok {
				return apperr.Validation(fmt.Sprintf("insufficient stock for inventory item %d", itemID))
			}
		case desiredQty < currentQty:
			if _, err := s.inventory.Release(ctx, itemID, currentQty-desiredQty,
				nil, &actor.ID, "released from checkout "+checkout.RequestID); err != nil {
				return err
			}
		}

		switch {
		case !keep:
			if err := s.checkouts.DeleteItem(ctx, line.ID); err != nil {
				return err
			}
		case !hasLine:
			newLine := &model.InventoryRequestItem{
				InventoryRequestID:  checkout.ID,
				InventoryItemID:     itemID,
				QuantityRequested:   in.Quantity,
				ExpectedReturnDate:  in.ExpectedReturnDate,
				SerialNumber:        in.SerialNumber,
				ConditionBeforeExit: in.ConditionBeforeExit,
			}
			if err := s.checkouts.CreateItem(ctx, newLine); err != nil {
				return err
			}
		default:
			line.QuantityRequested = in.Quantity
			line.ExpectedReturnDate = in.ExpectedReturnDate
			line.SerialNumber = in.SerialNumber
			line.ConditionBeforeExit = in.ConditionBeforeExit
			if err := s.checkouts.SaveItem(ctx, line); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *checkoutService) Submit(ctx context.Context, actor *model.User, id uint) (*model.InventoryRequest, error) {
	var submitted *model.InventoryRequest
	err := s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		checkout, err := s.checkouts.FindByIDWithItems(txCtx, id)
		if err != nil {
			return err
		}
		if checkout == nil {
			return apperr.NotFound("checkout request not found")
		}
		if checkout.RequesterID != actor.ID && !actor.IsAdmin() {
			return apperr.Forbidden("only the requester can submit this checkout")
		}
		if checkout.Status != model.CheckoutDraft {
			return apperr.Conflict("checkout was already submitted")
		}
		if len(checkout.Items) == 0 {
			return apperr.Validation("a checkout needs at least one item")
		}
		checkout.Status = model.CheckoutSubmitted
		if err := s.checkouts.Save(txCtx, checkout); err != nil {
			return err
		}
		submitted = checkout
		return nil
	})
	if err != nil {
		return nil, err
	}
	return submitted, nil
}

// checkoutTransitions maps a current status to the statuses reachable from it.
var checkoutTransitions = map[string][]string{
	model.CheckoutSubmitted:  {model.CheckoutDMApproved, model.CheckoutDMRejected},
	model.CheckoutDMApproved: {model.CheckoutFinalApproved, model.CheckoutFinalRejected},
}

func checkoutTransitionAllowed(from, to string) bool {
	for _, allowed := range checkoutTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func canDecideCheckout(actor *model.User, checkout *model.InventoryRequest, to string) bool {
	if actor.IsAdmin() {
		return true
	}
	switch to {
	case model.CheckoutDMApproved, model.CheckoutDMRejected:
		return actor.Role == model.RoleDirectManager && actor.ID == checkout.DirectManagerID
	case model.CheckoutFinalApproved, model.CheckoutFinalRejected:
		return actor.Role == model.RoleFinalManager
	}
	return false
}

func (s *checkoutService) UpdateStatus(ctx context.Context, actor *model.User, id uint, req UpdateCheckoutStatusRequest) (*model.InventoryRequest, error) {
	rejecting := req.Status == model.CheckoutDMRejected || req.Status == model.CheckoutFinalRejected
	if rejecting && req.RejectionReason == "" {
		return nil, apperr.Validation("rejection_reason is required")
	}

	var updated *model.InventoryRequest
	err := s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		checkout, err := s.checkouts.FindByIDWithItems(txCtx, id)
		if err != nil {
			return err
		}
		if checkout == nil {
			return apperr.NotFound("checkout request not found")
		}
		if !canDecideCheckout(actor, checkout, req.Status) {
			return apperr.Forbidden("not authorized to decide this checkout")
		}
		if !checkoutTransitionAllowed(checkout.Status, req.Status) {
			return apperr.Conflict("checkout was already processed")
		}

		switch req.Status {
		case model.CheckoutFinalApproved:
			// Lines are preloaded in ascending inventory_item_id order, so
			// allocation locks follow the global item order.
			for i := range checkout.Items {
				line := &checkout.Items[i]
				ok, err := s.inventory.Allocate(txCtx, line.InventoryItemID, line.QuantityRequested,
					nil, &actor.ID, "allocated for checkout "+checkout.RequestID)
				if err != nil {
					return err
				}
				if !ok {
					return apperr.Validation(fmt.Sprintf(
						"cannot allocate inventory item %d: reservation missing or stock short", line.InventoryItemID))
				}
			}
			checkout.WarehouseManagerID = &actor.ID
		case model.CheckoutDMRejected, model.CheckoutFinalRejected:
			for i := range checkout.Items {
				line := &checkout.Items[i]
				if _, err := s.inventory.Release(txCtx, line.InventoryItemID, line.QuantityRequested,
					nil, &actor.ID, "released, checkout "+checkout.RequestID+" rejected"); err != nil {
					return err
				}
			}
			checkout.RejectionReason = req.RejectionReason
		}

		checkout.Status = req.Status
		if err := s.checkouts.Save(txCtx, checkout); err != nil {
			return err
		}
		updated = checkout
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.bus.Publish(event.Event{
		Kind:          event.CheckoutDecided,
		RequestID:     updated.ID,
		RequestNumber: updated.RequestID,
		RequestTitle:  updated.Title,
		RequestState:  updated.Status,
		RequesterID:   updated.RequesterID,
		ActorID:       actor.ID,
		ActorName:     actor.Name,
		Comment:       req.RejectionReason,
	})
	return updated, nil
}

func (s *checkoutService) RecordReturn(ctx context.Context, actor *model.User, id uint, req RecordReturnRequest) (*model.InventoryRequest, error) {
	var updated *model.InventoryRequest
	err := s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		checkout, err := s.checkouts.FindByIDWithItems(txCtx, id)
		if err != nil {
			return err
		}
		if checkout == nil {
			return apperr.NotFound("checkout request not found")
		}
		if checkout.Status != model.CheckoutFinalApproved {
			return apperr.Validation("only approved checkouts can be returned")
		}

		lines := make(map[uint]*model.InventoryRequestItem, len(checkout.Items))
		for i := range checkout.Items {
			lines[checkout.Items[i].ID] = &checkout.Items[i]
		}

		for _, in := range req.Items {
			line, ok := lines[in.ItemID]
			if !ok {
				return apperr.Validation("return line does not belong to this checkout")
			}
			if in.QuantityReturned > line.QuantityRequested {
				return apperr.Validation(fmt.Sprintf(
					"returned quantity %d exceeds checked out quantity %d", in.QuantityReturned, line.QuantityRequested))
			}
			if in.QuantityReturned > 0 {
				if err := s.inventory.AddStock(txCtx, line.InventoryItemID, in.QuantityReturned,
					nil, &actor.ID, "returned from checkout "+checkout.RequestID); err != nil {
					return err
				}
			}
			line.QuantityReturned = in.QuantityReturned
			line.ConditionAfterReturn = in.ConditionAfterReturn
			line.ReturnNotes = in.ReturnNotes
			if err := s.checkouts.SaveItem(txCtx, line); err != nil {
				return err
			}
		}

		returnDate := req.ReturnDate
		if returnDate == nil {
			now := time.Now()
			returnDate = &now
		}
		checkout.Status = model.CheckoutReturned
		checkout.ReturnDate = returnDate
		checkout.ReturnSupervisorName = req.ReturnSupervisorName
		checkout.ReturnSupervisorPhone = req.ReturnSupervisorPhone
		checkout.EquipmentConditionReturn = req.EquipmentConditionReturn
		checkout.SupervisorNotes = req.SupervisorNotes
		checkout.ReturnedByEmployee = req.ReturnedByEmployee
		if err := s.checkouts.Save(txCtx, checkout); err != nil {
			return err
		}
		updated = checkout
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *checkoutService) Delete(ctx context.Context, actor *model.User, id uint) error {
	return s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		checkout, err := s.checkouts.FindByIDWithItems(txCtx, id)
		if err != nil {
			return err
		}
		if checkout == nil {
			return apperr.NotFound("checkout request not found")
		}
		if checkout.RequesterID != actor.ID && !actor.IsAdmin() {
			return apperr.Forbidden("only the requester can delete this checkout")
		}
		if checkout.Status != model.CheckoutDraft && !actor.IsAdmin() {
			return apperr.Validation("only draft checkouts can be deleted")
		}

		// Draft and submitted checkouts still hold reservations.
		if checkout.Status == model.CheckoutDraft || checkout.Status == model.CheckoutSubmitted ||
			checkout.Status == model.CheckoutDMApproved {
			for i := range checkout.Items {
				line := &checkout.Items[i]
				if _, err := s.inventory.Release(txCtx, line.InventoryItemID, line.QuantityRequested,
					nil, &actor.ID, "released, checkout "+checkout.RequestID+" deleted"); err != nil {
					return err
				}
			}
		}
		return s.checkouts.Delete(txCtx, checkout.ID)
	})
}

func (s *checkoutService) Get(ctx context.Context, actor *model.User, id uint) (*model.InventoryRequest, error) {
	checkout, err := s.checkouts.FindByIDWithItems(ctx, id)
	if err != nil {
		return nil, err
	}
	if checkout == nil {
		return nil, apperr.NotFound("checkout request not found")
	}
	if checkout.RequesterID != actor.ID && !actor.CanApproveRequests() {
		return nil, apperr.Forbidden("not allowed to view this checkout")
	}
	return checkout, nil
}

func (s *checkoutService) scopeFor(actor *model.User, status string, page, limit int) repository.CheckoutFilter {
	filter := repository.CheckoutFilter{Status: status, Page: page, Limit: limit}
	switch {
	case actor.IsAdmin(), actor.Role == model.RoleFinalManager, actor.Role == model.RoleAccountant:
	case actor.Role == model.RoleDirectManager:
		// A DM sees their own checkouts plus the ones routed to them.
		filter.RequesterID = &actor.ID
		filter.ManagerID = &actor.ID
	default:
		filter.RequesterID = &actor.ID
	}
	return filter
}

func (s *checkoutService) List(ctx context.Context, actor *model.User, status string, page, limit int) ([]model.InventoryRequest, int64, error) {
	return s.checkouts.List(ctx, s.scopeFor(actor, status, page, limit))
}

func (s *checkoutService) Stats(ctx context.Context, actor *model.User) (*repository.CheckoutStats, error) {
	return s.checkouts.Stats(ctx, s.scopeFor(actor, "", 0, 0))
}
