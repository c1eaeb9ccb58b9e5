package service

import (
	"context"
	"encoding/json"

	"spendflow/internal/event"
	"spendflow/internal/model"
	"spendflow/internal/repository"
	"spendflow/internal/websocket"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// --- Interface ---

type NotificationService interface {
	List(ctx context.Context, userID uuid.UUID, unreadOnly bool, page, limit int) ([]model.Notification, int64, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) error
}

type notificationService struct {
	repo repository.NotificationRepository
}

func NewNotificationService(repo repository.NotificationRepository) NotificationService {
	return &notificationService{repo: repo}
}

func (s *notificationService) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, page, limit int) ([]model.Notification, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	return s.repo.ListByUser(ctx, userID, unreadOnly, page, limit)
}

func (s *notificationService) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	return s.repo.MarkRead(ctx, userID, notificationID)
}

func (s *notificationService) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	return s.repo.MarkAllRead(ctx, userID)
}

// --- Dispatcher ---

// Dispatcher consumes committed workflow events, persists one Notification row
// per recipient and pushes the payload over the websocket hub. Everything here
// is best-effort: a failed insert or a closed socket is logged, nothing else.
type Dispatcher struct {
	notifications repository.NotificationRepository
	users         repository.UserRepository
	hub           *websocket.Hub
	bus           *event.Bus
}

func NewDispatcher(
	notifications repository.NotificationRepository,
	users repository.UserRepository,
	hub *websocket.Hub,
	bus *event.Bus,
) *Dispatcher {
	return &Dispatcher{notifications: notifications, users: users, hub: hub, bus: bus}
}

// Run consumes the event bus until it is closed or the context ends.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-d.bus.Events():
			if !ok {
				return
			}
			d.dispatch(ctx, e)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, e event.Event) {
	recipients := d.recipients(ctx, e)
	if len(recipients) == 0 {
		return
	}

	payload, err := json.Marshal(map[string]any{
		"type":             e.Kind,
		"request_id":       e.RequestNumber,
		"request_type":     e.RequestType,
		"title":            e.RequestTitle,
		"state":            e.RequestState,
		"actor":            e.ActorName,
		"comment":          e.Comment,
		"vendor_name":      e.VendorName,
		"quote_total":      e.QuoteTotal,
		"payout_reference": e.PayoutReference,
	})
	if err != nil {
		log.Error().Err(err).Str("kind", e.Kind).Msg("failed to encode notification payload")
		return
	}

	for userID := range recipients {
		n := &model.Notification{
			UserID: userID,
			Type:   e.Kind,
			Data:   string(payload),
		}
		if err := d.notifications.Create(ctx, n); err != nil {
			log.Error().Err(err).Str("kind", e.Kind).Str("user_id", userID.String()).
				Msg("failed to persist notification")
			continue
		}
		wire, err := json.Marshal(n)
		if err != nil {
			continue
		}
		d.hub.SendToUser(userID, wire)
	}
}

// recipients resolves who hears about an event: the requester, plus the pool
// of approvers whose stage the request just arrived at. The actor never
// notifies themselves.
func (d *Dispatcher) recipients(ctx context.Context, e event.Event) map[uuid.UUID]bool {
	set := make(map[uuid.UUID]bool)
	set[e.RequesterID] = true

	switch e.Kind {
	case event.RequestSubmitted:
		if e.RequestType == model.RequestTypePurchase {
			if e.DirectManagerID != nil {
				set[*e.DirectManagerID] = true
			} else {
				d.addPool(ctx, set, model.RoleDirectManager)
			}
		} else {
			d.addPool(ctx, set, model.RoleFinalManager)
		}
	case event.RequestApproved:
		if e.RequestState == model.StateDMApproved {
			// Purchases at the quote stage concern accountants and FMs alike.
			d.addPool(ctx, set, model.RoleAccountant)
			d.addPool(ctx, set, model.RoleFinalManager)
		}
	case event.ProjectMarkedDone:
		d.addPool(ctx, set, model.RoleAccountant)
	}

	delete(set, e.ActorID)
	return set
}

func (d *Dispatcher) addPool(ctx context.Context, set map[uuid.UUID]bool, role string) {
	users, err := d.users.ListActiveByRole(ctx, role)
	if err != nil {
		log.Error().Err(err).Str("role", role).Msg("failed to resolve notification pool")
		return
	}
	for _, u := range users {
		set[u.ID] = true
	}
}
