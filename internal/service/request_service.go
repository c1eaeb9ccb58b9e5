package service

import (
	"context"
	"errors"
	"time"

	"spendflow/internal/event"
	"spendflow/internal/model"
	"spendflow/internal/repository"
	"spendflow/internal/workflow"
	"spendflow/pkg/apperr"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// --- DTOs ---

type RequestItemInput struct {
	Name      string `json:"name" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
	UnitPrice string `json:"unit_price" binding:"required"` // Decimal string
	Vendor    string `json:"vendor_hint"`
}

type InventoryLineInput struct {
	InventoryItemID    uint       `json:"inventory_item_id" binding:"required"`
	Quantity           int        `json:"quantity" binding:"required,min=1"`
	ExpectedReturnDate *time.Time `json:"expected_return_date"`
}

type CreateRequestRequest struct {
	Type        string `json:"type" binding:"required,oneof=purchase project"`
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Location    string `json:"location"`

	DirectManagerID *uuid.UUID `json:"direct_manager_id"`

	DesiredCost  string     `json:"desired_cost"`
	Currency     string     `json:"currency"`
	NeededByDate *time.Time `json:"needed_by_date"`

	ClientName         string     `json:"client_name"`
	ProjectDescription string     `json:"project_description"`
	TotalCost          string     `json:"total_cost"`
	TotalBenefit       string     `json:"total_benefit"`
	TotalPrice         string     `json:"total_price"`
	StartTime          *time.Time `json:"start_time"`
	EndTime            *time.Time `json:"end_time"`

	Items          []RequestItemInput   `json:"items"`
	InventoryItems []InventoryLineInput `json:"inventory_items"`

	// Defaults to true: most requests go straight to the DM queue.
	SubmitImmediately *bool `json:"submit_immediately"`
}

type UpdateRequestRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
	Location    *string `json:"location"`

	DirectManagerID *uuid.UUID `json:"direct_manager_id"`

	DesiredCost  *string    `json:"desired_cost"`
	Currency     *string    `json:"currency"`
	NeededByDate *time.Time `json:"needed_by_date"`

	ClientName         *string    `json:"client_name"`
	ProjectDescription *string    `json:"project_description"`
	TotalCost          *string    `json:"total_cost"`
	TotalBenefit       *string    `json:"total_benefit"`
	TotalPrice         *string    `json:"total_price"`
	StartTime          *time.Time `json:"start_time"`
	EndTime            *time.Time `json:"end_time"`

	Items          []RequestItemInput   `json:"items"`
	InventoryItems []InventoryLineInput `json:"inventory_items"`
}

type UploadQuoteRequest struct {
	VendorName string `json:"vendor_name" binding:"required"`
	QuoteTotal string `json:"quote_total" binding:"required"` // Decimal string
	FileURL    string `json:"file_url"`
	Notes      string `json:"notes"`
}

// --- Interface ---

type RequestService interface {
	Create(ctx context.Context, actor *model.User, req CreateRequestRequest) (*model.Request, error)
	Update(ctx context.Context, actor *model.User, ref string, req UpdateRequestRequest) (*model.Request, error)
	Delete(ctx context.Context, actor *model.User, ref string) error
	Submit(ctx context.Context, actor *model.User, ref string) (*model.Request, error)
	Get(ctx context.Context, actor *model.User, ref string) (*model.Request, error)
	List(ctx context.Context, actor *model.User, filter repository.RequestFilter) ([]model.Request, int64, error)
	PendingApprovals(ctx context.Context, actor *model.User, page, limit int) ([]model.Request, int64, error)
	UploadQuote(ctx context.Context, actor *model.User, ref string, req UploadQuoteRequest) (*model.RequestQuote, error)
	AttachInventoryItems(ctx context.Context, actor *model.User, ref string, lines []InventoryLineInput) (*model.Request, error)
}

type requestService struct {
	requests  repository.RequestRepository
	inventory repository.InventoryRepository
	txm       repository.TransactionManager
	bus       *event.Bus
}

func NewRequestService(
	requests repository.RequestRepository,
	inventory repository.InventoryRepository,
	txm repository.TransactionManager,
	bus *event.Bus,
) RequestService {
	return &requestService{requests: requests, inventory: inventory, txm: txm, bus: bus}
}

func parseMoney(value, field string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, apperr.Validation("invalid " + field)
	}
	return parsed, nil
}

func buildItems(inputs []RequestItemInput) ([]model.RequestItem, error) {
	items := make([]model.RequestItem, 0, len(inputs))
	for _, in := range inputs {
		price, err := parseMoney(in.UnitPrice, "unit_price")
		if err != nil {
			return nil, err
		}
		items = append(items, model.RequestItem{
			Name:       in.Name,
			Quantity:   in.Quantity,
			UnitPrice:  price,
			VendorHint: in.Vendor,
		})
	}
	return items, nil
}

// checkInventoryLines validates every requested line against current
// availability. Nothing is reserved here; the holds are only placed when the
// project enters PROCESSING.
func (s *requestService) checkInventoryLines(ctx context.Context, inputs []InventoryLineInput) ([]model.RequestInventoryItem, error) {
	lines := make([]model.RequestInventoryItem, 0, len(inputs))
	for _, in := range inputs {
		item, err := s.inventory.FindByID(ctx, in.InventoryItemID)
		if err != nil {
			return nil, err
		}
		if item == nil {
			return nil, apperr.Validation("inventory item not found")
		}
		if !item.CanReserve(in.Quantity) {
			return nil, apperr.Validation("insufficient stock for " + item.Name)
		}
		lines = append(lines, model.RequestInventoryItem{
			InventoryItemID:    in.InventoryItemID,
			QuantityRequested:  in.Quantity,
			Status:             model.ReservationPending,
			ExpectedReturnDate: in.ExpectedReturnDate,
		})
	}
	return lines, nil
}

func (s *requestService) Create(ctx context.Context, actor *model.User, req CreateRequestRequest) (*model.Request, error) {
	if req.Type == model.RequestTypePurchase && len(req.Items) == 0 {
		return nil, apperr.Validation("a purchase request needs at least one line item")
	}
	if req.Type == model.RequestTypeProject {
		if req.ClientName == "" || req.TotalCost == "" || req.StartTime == nil || req.EndTime == nil {
			return nil, apperr.Validation("a project request needs client_name, total_cost, start_time and end_time")
		}
	}
	if len(req.InventoryItems) > 0 && req.Type != model.RequestTypeProject {
		return nil, apperr.Validation("inventory items can only be attached to project requests")
	}

	desiredCost, err := parseMoney(req.DesiredCost, "desired_cost")
	if err != nil {
		return nil, err
	}
	totalCost, err := parseMoney(req.TotalCost, "total_cost")
	if err != nil {
		return nil, err
	}
	totalBenefit, err := parseMoney(req.TotalBenefit, "total_benefit")
	if err != nil {
		return nil, err
	}
	totalPrice, err := parseMoney(req.TotalPrice, "total_price")
	if err != nil {
		return nil, err
	}
	items, err := buildItems(req.Items)
	if err != nil {
		return nil, err
	}

	state := model.StateSubmitted
	if req.SubmitImmediately != nil && !*req.SubmitImmediately {
		state = model.StateDraft
	}

	var created *model.Request
	createOnce := func() error {
		return s.txm.RunInTx(ctx, func(txCtx context.Context) error {
			lines, err := s.checkInventoryLines(txCtx, req.InventoryItems)
			if err != nil {
				return err
			}
			requestID, err := s.requests.NextRequestID(txCtx, req.Type)
			if err != nil {
				return err
			}
			created = &model.Request{
				RequestID:          requestID,
				Type:               req.Type,
				State:              state,
				Title:              req.Title,
				Description:        req.Description,
				Category:           req.Category,
				Location:           req.Location,
				RequesterID:        actor.ID,
				DirectManagerID:    req.DirectManagerID,
				DesiredCost:        desiredCost,
				Currency:           req.Currency,
				NeededByDate:       req.NeededByDate,
				ClientName:         req.ClientName,
				ProjectDescription: req.ProjectDescription,
				TotalCost:          totalCost,
				TotalBenefit:       totalBenefit,
				TotalPrice:         totalPrice,
				StartTime:          req.StartTime,
				EndTime:            req.EndTime,
				Items:              items,
				InventoryItems:     lines,
			}
			return s.requests.Create(txCtx, created)
		})
	}
	if err := createOnce(); err != nil {
		// A concurrent creator can win the same counter value when the
		// counter row was freshly seeded; one retry picks up the next one.
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}
		if err := createOnce(); err != nil {
			return nil, err
		}
	}

	if created.State == model.StateSubmitted {
		s.publishRequestEvent(event.RequestSubmitted, created, actor, "")
	}
	return created, nil
}

func (s *requestService) Update(ctx context.Context, actor *model.User, ref string, req UpdateRequestRequest) (*model.Request, error) {
	var updated *model.Request
	err := s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		request, err := s.findOwnedDraft(txCtx, actor, ref)
		if err != nil {
			return err
		}

		if req.Title != nil {
			request.Title = *req.Title
		}
		if req.Description != nil {
			request.Description = *req.Description
		}
		if req.Category != nil {
			request.Category = *req.Category
		}
		if req.Location != nil {
			request.Location = *req.Location
		}
		if req.DirectManagerID != nil {
			request.DirectManagerID = req.DirectManagerID
		}
		if req.Currency != nil {
			request.Currency = *req.Currency
		}
		if req.NeededByDate != nil {
			request.NeededByDate = req.NeededByDate
		}
		if req.ClientName != nil {
			request.ClientName = *req.ClientName
		}
		if req.ProjectDescription != nil {
			request.ProjectDescription = *req.ProjectDescription
		}
		if req.StartTime != nil {
			request.StartTime = req.StartTime
		}
		if req.EndTime != nil {
			request.EndTime = req.EndTime
		}
		for _, f := range []struct {
			in    *string
			out   *decimal.Decimal
			field string
		}{
			{req.DesiredCost, &request.DesiredCost, "desired_cost"},
			{req.TotalCost, &request.TotalCost, "total_cost"},
			{req.TotalBenefit, &request.TotalBenefit, "total_benefit"},
			{req.TotalPrice, &request.TotalPrice, "total_price"},
		} {
			if f.in == nil {
				continue
			}
			parsed, err := parseMoney(*f.in, f.field)
			if err != nil {
				return err
			}
			*f.out = parsed
		}

		if err := s.requests.Save(txCtx, request); err != nil {
			return err
		}

		if req.Items != nil {
			items, err := buildItems(req.Items)
			if err != nil {
				return err
			}
			if err := s.requests.ReplaceItems(txCtx, request.ID, items); err != nil {
				return err
			}
		}
		if req.InventoryItems != nil {
			if !request.IsProject() {
				return apperr.Validation("inventory items can only be attached to project requests")
			}
			lines, err := s.checkInventoryLines(txCtx, req.InventoryItems)
			if err != nil {
				return err
			}
			if err := s.requests.ReplaceInventoryItems(txCtx, request.ID, lines); err != nil {
				return err
			}
		}

		updated, err = s.requests.FindByRef(txCtx, ref)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *requestService) Delete(ctx context.Context, actor *model.User, ref string) error {
	return s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		request, err := s.requests.FindByRef(txCtx, ref)
		if err != nil {
			return err
		}
		if request == nil {
			return apperr.NotFound("request not found")
		}
		if actor.IsAdmin() {
			return s.requests.DeleteCascade(txCtx, request.ID)
		}
		if request.RequesterID != actor.ID {
			return apperr.Forbidden("only the requester can delete this request")
		}
		if request.State != model.StateDraft {
			return apperr.Validation("only draft requests can be deleted")
		}
		return s.requests.DeleteCascade(txCtx, request.ID)
	})
}

func (s *requestService) Submit(ctx context.Context, actor *model.User, ref string) (*model.Request, error) {
	var submitted *model.Request
	err := s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		request, err := s.requests.FindByRef(txCtx, ref)
		if err != nil {
			return err
		}
		if request == nil {
			return apperr.NotFound("request not found")
		}
		if request.RequesterID != actor.ID && !actor.IsAdmin() && actor.Role != model.RoleDirectManager {
			return apperr.Forbidden("not allowed to submit this request")
		}

		locked, err := s.requests.FindByIDForUpdate(txCtx, request.ID)
		if err != nil {
			return err
		}
		if locked.State != model.StateDraft {
			return apperr.Conflict("request was already submitted")
		}
		locked.State = model.StateSubmitted
		if err := s.requests.Save(txCtx, locked); err != nil {
			return err
		}
		submitted = locked
		submitted.Requester = request.Requester
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publishRequestEvent(event.RequestSubmitted, submitted, actor, "")
	return submitted, nil
}

func (s *requestService) Get(ctx context.Context, actor *model.User, ref string) (*model.Request, error) {
	request, err := s.requests.FindByRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, apperr.NotFound("request not found")
	}
	if !canView(actor, request) {
		return nil, apperr.Forbidden("not allowed to view this request")
	}
	return request, nil
}

// canView scopes visibility: requesters see their own, anyone holding an
// approval role sees everything they might have to act on.
func canView(actor *model.User, request *model.Request) bool {
	if request.RequesterID == actor.ID {
		return true
	}
	return actor.CanApproveRequests()
}

func (s *requestService) List(ctx context.Context, actor *model.User, filter repository.RequestFilter) ([]model.Request, int64, error) {
	if !actor.CanApproveRequests() {
		return s.listOwn(ctx, actor)
	}
	return s.requests.List(ctx, filter)
}

func (s *requestService) listOwn(ctx context.Context, actor *model.User) ([]model.Request, int64, error) {
	requests, err := s.requests.ListByRequester(ctx, actor.ID)
	if err != nil {
		return nil, 0, err
	}
	return requests, int64(len(requests)), nil
}

func (s *requestService) PendingApprovals(ctx context.Context, actor *model.User, page, limit int) ([]model.Request, int64, error) {
	if !actor.CanApproveRequests() {
		return nil, 0, apperr.Forbidden("no approval queue for this role")
	}
	return s.requests.ListForApprover(ctx, actor.Role, page, limit)
}

func (s *requestService) UploadQuote(ctx context.Context, actor *model.User, ref string, req UploadQuoteRequest) (*model.RequestQuote, error) {
	total, err := parseMoney(req.QuoteTotal, "quote_total")
	if err != nil {
		return nil, err
	}

	request, err := s.requests.FindByRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, apperr.NotFound("request not found")
	}
	if !request.IsPurchase() {
		return nil, apperr.Validation("quotes only apply to purchase requests")
	}
	actorView := workflow.Actor{ID: actor.ID, Role: actor.Role, Active: actor.IsActive()}
	subject := workflow.Subject{Type: request.Type, State: request.State}
	if !workflow.CanAddQuotes(actorView, subject) {
		return nil, apperr.Forbidden("quotes can only be added by an accountant while the request awaits final approval")
	}

	quote := &model.RequestQuote{
		RequestID:  request.ID,
		VendorName: req.VendorName,
		QuoteTotal: total,
		FilePath:   req.FileURL,
		Notes:      req.Notes,
		UploadedAt: time.Now(),
	}
	if err := s.requests.CreateQuote(ctx, quote); err != nil {
		return nil, err
	}
	return quote, nil
}

func (s *requestService) AttachInventoryItems(ctx context.Context, actor *model.User, ref string, inputs []InventoryLineInput) (*model.Request, error) {
	var updated *model.Request
	err := s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		request, err := s.findOwnedDraft(txCtx, actor, ref)
		if err != nil {
			return err
		}
		if !request.IsProject() {
			return apperr.Validation("inventory items can only be attached to project requests")
		}
		lines, err := s.checkInventoryLines(txCtx, inputs)
		if err != nil {
			return err
		}
		if err := s.requests.ReplaceInventoryItems(txCtx, request.ID, lines); err != nil {
			return err
		}
		updated, err = s.requests.FindByRef(txCtx, ref)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *requestService) findOwnedDraft(ctx context.Context, actor *model.User, ref string) (*model.Request, error) {
	request, err := s.requests.FindByRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, apperr.NotFound("request not found")
	}
	if request.RequesterID != actor.ID && !actor.IsAdmin() {
		return nil, apperr.Forbidden("only the requester can modify this request")
	}
	if request.State != model.StateDraft {
		return nil, apperr.Validation("only draft requests can be modified")
	}
	return request, nil
}

func (s *requestService) publishRequestEvent(kind string, request *model.Request, actor *model.User, comment string) {
	e := event.Event{
		Kind:            kind,
		RequestID:       request.ID,
		RequestNumber:   request.RequestID,
		RequestType:     request.Type,
		RequestTitle:    request.Title,
		RequestState:    request.State,
		RequesterID:     request.RequesterID,
		ActorID:         actor.ID,
		ActorName:       actor.Name,
		Comment:         comment,
		DirectManagerID: request.DirectManagerID,
	}
	if request.Requester != nil {
		e.RequesterName = request.Requester.Name
	}
	s.bus.Publish(e)
}
