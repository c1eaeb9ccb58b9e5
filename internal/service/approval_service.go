package service

import (
	"context"
	"time"

	"spendflow/internal/event"
	"spendflow/internal/model"
	"spendflow/internal/repository"
	"spendflow/internal/workflow"
	"spendflow/pkg/apperr"

	"github.com/rs/zerolog/log"
)

// --- Interface ---

// ApprovalService is the single transactional entry point for every state
// transition on a request. Each action locks the request row, re-validates the
// expected state under the lock (first actor wins, the loser gets a 409) and
// applies the transition plus its inventory side effects in one transaction.
// Notifications go out after commit and never roll anything back.
type ApprovalService interface {
	Approve(ctx context.Context, actor *model.User, ref, comment, payoutChannel string) (*model.Request, error)
	Reject(ctx context.Context, actor *model.User, ref, comment string) (*model.Request, error)
	SelectQuote(ctx context.Context, actor *model.User, ref string, quoteID *uint) (*model.Request, error)
	MarkProjectDone(ctx context.Context, actor *model.User, ref string) (*model.Request, error)
	ConfirmClientPaid(ctx context.Context, actor *model.User, ref, payoutReference string) (*model.Request, error)
	TransferFunds(ctx context.Context, actor *model.User, ref, payoutReference string) (*model.Request, error)
	History(ctx context.Context, actor *model.User, ref string) ([]model.Approval, error)
}

type approvalService struct {
	requests  repository.RequestRepository
	approvals repository.ApprovalRepository
	inventory InventoryService
	txm       repository.TransactionManager
	bus       *event.Bus
}

func NewApprovalService(
	requests repository.RequestRepository,
	approvals repository.ApprovalRepository,
	inventory InventoryService,
	txm repository.TransactionManager,
	bus *event.Bus,
) ApprovalService {
	return &approvalService{
		requests:  requests,
		approvals: approvals,
		inventory: inventory,
		txm:       txm,
		bus:       bus,
	}
}

func actorView(actor *model.User) workflow.Actor {
	return workflow.Actor{ID: actor.ID, Role: actor.Role, Active: actor.IsActive()}
}

func subjectOf(request *model.Request, state string) workflow.Subject {
	return workflow.Subject{
		Type:            request.Type,
		State:           state,
		DirectManagerID: request.DirectManagerID,
		HasQuotes:       len(request.Quotes) > 0,
	}
}

// stageFor maps an action to the audit stage it belongs to. Admins act in
// whichever stage the state puts them; accountants always act as ACCT.
func stageFor(role, reqType, state string) string {
	if role == model.RoleAccountant {
		return model.StageAcct
	}
	if reqType == model.RequestTypeProject {
		return model.StageFinal
	}
	if state == model.StateSubmitted {
		return model.StageDM
	}
	return model.StageFinal
}

func (s *approvalService) Approve(ctx context.Context, actor *model.User, ref, comment, payoutChannel string) (*model.Request, error) {
	request, err := s.requests.FindByRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, apperr.NotFound("request not found")
	}
	// Fail fast on the unlocked row; the state is re-checked under the lock.
	if !workflow.CanApprove(actorView(actor), subjectOf(request, request.State)) {
		return nil, apperr.Forbidden("not authorized to approve this request")
	}

	var result *model.Request
	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		locked, err := s.requests.FindByIDForUpdate(txCtx, request.ID)
		if err != nil {
			return err
		}
		if !workflow.CanApprove(actorView(actor), subjectOf(request, locked.State)) {
			return apperr.Conflict("request was already processed by another approver")
		}
		if request.IsPurchase() && locked.State == model.StateDMApproved && locked.SelectedQuoteID == nil {
			return apperr.Validation("a quote must be selected before final approval")
		}

		now := time.Now()
		audit := &model.Approval{
			RequestID:  locked.ID,
			Stage:      stageFor(actor.Role, request.Type, locked.State),
			ApproverID: actor.ID,
			Decision:   model.DecisionApproved,
			Comment:    comment,
			DecidedAt:  &now,
		}
		if err := s.approvals.Create(txCtx, audit); err != nil {
			return err
		}

		next, ok := workflow.NextState(request.Type, locked.State, model.DecisionApproved)
		if !ok {
			return apperr.Conflict("request was already processed by another approver")
		}
		locked.State = next
		locked.CurrentApproverID = nil
		if payoutChannel != "" {
			locked.PayoutChannel = payoutChannel
		}
		if err := s.requests.Save(txCtx, locked); err != nil {
			return err
		}

		if next == model.StateProcessing {
			if err := s.reserveProjectInventory(txCtx, locked, actor); err != nil {
				return err
			}
		}
		result = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Requester = request.Requester
	s.publish(event.RequestApproved, result, actor, comment)
	return result, nil
}

// reserveProjectInventory places the soft holds when a project enters
// PROCESSING. Insufficient stock on a line is logged and skipped, never a
// failure: the project is already approved, missing gear is resolved manually.
// Infrastructure errors still abort.
func (s *approvalService) reserveProjectInventory(ctx context.Context, request *model.Request, actor *model.User) error {
	lines, err := s.requests.InventoryLines(ctx, request.ID)
	if err != nil {
		return err
	}
	for i := range lines {
		line := &lines[i]
		if line.Status != model.ReservationPending {
			continue
		}
		ok, err := s.inventory.Reserve(ctx, line.InventoryItemID, line.QuantityRequested,
			&request.ID, &actor.ID, "reserved for "+request.RequestID)
		if err != nil {
			return err
		}
		if !ok {
			log.Warn().
				Str("request", request.RequestID).
				Uint("inventory_item_id", line.InventoryItemID).
				Int("quantity", line.QuantityRequested).
				Msg("insufficient stock, reservation skipped")
			continue
		}
		line.Status = model.ReservationReserved
		if err := s.requests.SaveInventoryLine(ctx, line); err != nil {
			return err
		}
	}
	return nil
}

func (s *approvalService) Reject(ctx context.Context, actor *model.User, ref, comment string) (*model.Request, error) {
	if comment == "" {
		return nil, apperr.Validation("a rejection comment is required")
	}
	request, err := s.requests.FindByRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, apperr.NotFound("request not found")
	}
	if !workflow.CanReject(actorView(actor), subjectOf(request, request.State)) {
		return nil, apperr.Forbidden("not authorized to reject this request")
	}

	var result *model.Request
	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		locked, err := s.requests.FindByIDForUpdate(txCtx, request.ID)
		if err != nil {
			return err
		}
		if !workflow.CanReject(actorView(actor), subjectOf(request, locked.State)) {
			return apperr.Conflict("request was already processed by another approver")
		}

		now := time.Now()
		audit := &model.Approval{
			RequestID:  locked.ID,
			Stage:      stageFor(actor.Role, request.Type, locked.State),
			ApproverID: actor.ID,
			Decision:   model.DecisionRejected,
			Comment:    comment,
			DecidedAt:  &now,
		}
		if err := s.approvals.Create(txCtx, audit); err != nil {
			return err
		}

		next, ok := workflow.NextState(request.Type, locked.State, model.DecisionRejected)
		if !ok {
			return apperr.Conflict("request was already processed by another approver")
		}
		locked.State = next
		locked.CurrentApproverID = nil
		if err := s.requests.Save(txCtx, locked); err != nil {
			return err
		}

		if err := s.releaseProjectInventory(txCtx, locked, actor); err != nil {
			return err
		}
		result = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Requester = request.Requester
	s.publish(event.RequestRejected, result, actor, comment)
	return result, nil
}

// releaseProjectInventory drops every hold still attached to a request that
// just entered a rejected state.
func (s *approvalService) releaseProjectInventory(ctx context.Context, request *model.Request, actor *model.User) error {
	lines, err := s.requests.InventoryLines(ctx, request.ID)
	if err != nil {
		return err
	}
	for i := range lines {
		line := &lines[i]
		if line.Status != model.ReservationReserved {
			continue
		}
		ok, err := s.inventory.Release(ctx, line.InventoryItemID, line.QuantityRequested,
			&request.ID, &actor.ID, "released, "+request.RequestID+" rejected")
		if err != nil {
			return err
		}
		if !ok {
			log.Warn().
				Str("request", request.RequestID).
				Uint("inventory_item_id", line.InventoryItemID).
				Msg("reservation release found less reserved stock than expected")
			continue
		}
		line.Status = model.ReservationPending
		if err := s.requests.SaveInventoryLine(ctx, line); err != nil {
			return err
		}
	}
	return nil
}

func (s *approvalService) SelectQuote(ctx context.Context, actor *model.User, ref string, quoteID *uint) (*model.Request, error) {
	request, err := s.requests.FindByRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, apperr.NotFound("request not found")
	}
	if !request.IsPurchase() {
		return nil, apperr.BadRequest("quote selection only applies to purchase requests")
	}
	if request.State != model.StateDMApproved {
		return nil, apperr.BadRequest("quotes can only be selected while the request awaits final approval")
	}
	if !workflow.CanSelectQuote(actorView(actor), subjectOf(request, request.State)) {
		return nil, apperr.Forbidden("not authorized to select a quote")
	}
	if len(request.Quotes) == 0 {
		return nil, apperr.Validation("no quotes attached to this request")
	}

	var chosen *model.RequestQuote
	if quoteID != nil {
		if !request.HasQuote(*quoteID) {
			return nil, apperr.Validation("quote does not belong to this request")
		}
		for i := range request.Quotes {
			if request.Quotes[i].ID == *quoteID {
				chosen = &request.Quotes[i]
			}
		}
	} else {
		chosen = request.LowestQuote()
	}

	var result *model.Request
	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		locked, err := s.requests.FindByIDForUpdate(txCtx, request.ID)
		if err != nil {
			return err
		}
		if locked.State != model.StateDMApproved {
			return apperr.Conflict("request was already processed by another approver")
		}
		locked.SelectedQuoteID = &chosen.ID
		if err := s.requests.Save(txCtx, locked); err != nil {
			return err
		}
		result = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Requester = request.Requester
	e := s.baseEvent(event.QuoteSelected, result, actor, "")
	e.VendorName = chosen.VendorName
	e.QuoteTotal = chosen.QuoteTotal.String()
	s.bus.Publish(e)
	return result, nil
}

func (s *approvalService) MarkProjectDone(ctx context.Context, actor *model.User, ref string) (*model.Request, error) {
	request, err := s.requests.FindByRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, apperr.NotFound("request not found")
	}
	if !request.IsProject() {
		return nil, apperr.BadRequest("only project requests can be marked done")
	}
	if request.RequesterID != actor.ID && !actor.IsAdmin() {
		return nil, apperr.Forbidden("only the requester can mark this project done")
	}

	result, err := s.transition(ctx, request.ID, model.StateProcessing, model.StateDone, nil)
	if err != nil {
		return nil, err
	}
	result.Requester = request.Requester
	s.publish(event.ProjectMarkedDone, result, actor, "")
	return result, nil
}

func (s *approvalService) ConfirmClientPaid(ctx context.Context, actor *model.User, ref, payoutReference string) (*model.Request, error) {
	if actor.Role != model.RoleAccountant && !actor.IsAdmin() {
		return nil, apperr.Forbidden("only an accountant can confirm client payment")
	}
	if payoutReference == "" {
		return nil, apperr.Validation("payout_reference is required")
	}
	request, err := s.requests.FindByRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, apperr.NotFound("request not found")
	}
	if !request.IsProject() {
		return nil, apperr.BadRequest("client payment only applies to project requests")
	}

	result, err := s.transition(ctx, request.ID, model.StateDone, model.StatePaid, func(locked *model.Request) {
		locked.PayoutReference = payoutReference
	})
	if err != nil {
		return nil, err
	}
	result.Requester = request.Requester
	e := s.baseEvent(event.ClientPaymentConfirmed, result, actor, "")
	e.PayoutReference = payoutReference
	s.bus.Publish(e)
	return result, nil
}

func (s *approvalService) TransferFunds(ctx context.Context, actor *model.User, ref, payoutReference string) (*model.Request, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden("only an admin can transfer funds")
	}
	if payoutReference == "" {
		return nil, apperr.Validation("payout_reference is required")
	}
	request, err := s.requests.FindByRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, apperr.NotFound("request not found")
	}
	if !request.IsPurchase() {
		return nil, apperr.BadRequest("fund transfer only applies to purchase requests")
	}

	result, err := s.transition(ctx, request.ID, model.StateFinalApproved, model.StateFundsTransferred, func(locked *model.Request) {
		now := time.Now()
		locked.PayoutReference = payoutReference
		locked.FundsTransferredAt = &now
	})
	if err != nil {
		return nil, err
	}
	result.Requester = request.Requester
	e := s.baseEvent(event.FundsTransferred, result, actor, "")
	e.PayoutReference = payoutReference
	s.bus.Publish(e)
	return result, nil
}

// transition performs a locked from -> to state move with an optional extra
// mutation applied before the save.
func (s *approvalService) transition(ctx context.Context, id uint, from, to string, mutate func(*model.Request)) (*model.Request, error) {
	var result *model.Request
	err := s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		locked, err := s.requests.FindByIDForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if locked.State != from {
			return apperr.Conflict("request was already processed by another approver")
		}
		locked.State = to
		if mutate != nil {
			mutate(locked)
		}
		if err := s.requests.Save(txCtx, locked); err != nil {
			return err
		}
		result = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *approvalService) History(ctx context.Context, actor *model.User, ref string) ([]model.Approval, error) {
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
	return s.approvals.ListByRequest(ctx, request.ID)
}

func (s *approvalService) baseEvent(kind string, request *model.Request, actor *model.User, comment string) event.Event {
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
	return e
}

func (s *approvalService) publish(kind string, request *model.Request, actor *model.User, comment string) {
	s.bus.Publish(s.baseEvent(kind, request, actor, comment))
}
