package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"spendflow/internal/event"
	"spendflow/internal/model"
)

func poolUser(repo *fakeUserRepo, role, status string) *model.User {
	u := &model.User{Name: role, Email: uuid.NewString() + "@example.com", Role: role, Status: status}
	repo.add(u)
	return u
}

func TestRecipientsSubmittedPurchasePinnedManager(t *testing.T) {
	users := newFakeUserRepo()
	poolUser(users, model.RoleDirectManager, model.UserStatusActive)
	pinned := poolUser(users, model.RoleDirectManager, model.UserStatusActive)
	d := NewDispatcher(nil, users, nil, nil)

	requester := uuid.New()
	set := d.recipients(context.Background(), event.Event{
		Kind:            event.RequestSubmitted,
		RequestType:     model.RequestTypePurchase,
		RequesterID:     requester,
		ActorID:         requester,
		DirectManagerID: &pinned.ID,
	})

	// Pinned requests bypass the DM pool; the acting requester is excluded.
	require.Equal(t, map[uuid.UUID]bool{pinned.ID: true}, set)
}

func TestRecipientsSubmittedPurchasePooled(t *testing.T) {
	users := newFakeUserRepo()
	dm1 := poolUser(users, model.RoleDirectManager, model.UserStatusActive)
	dm2 := poolUser(users, model.RoleDirectManager, model.UserStatusActive)
	poolUser(users, model.RoleDirectManager, model.UserStatusInactive)
	poolUser(users, model.RoleFinalManager, model.UserStatusActive)
	d := NewDispatcher(nil, users, nil, nil)

	requester := uuid.New()
	set := d.recipients(context.Background(), event.Event{
		Kind:        event.RequestSubmitted,
		RequestType: model.RequestTypePurchase,
		RequesterID: requester,
		ActorID:     requester,
	})

	require.Equal(t, map[uuid.UUID]bool{dm1.ID: true, dm2.ID: true}, set)
}

func TestRecipientsSubmittedProjectGoesToFinalManagers(t *testing.T) {
	users := newFakeUserRepo()
	fm := poolUser(users, model.RoleFinalManager, model.UserStatusActive)
	poolUser(users, model.RoleDirectManager, model.UserStatusActive)
	d := NewDispatcher(nil, users, nil, nil)

	requester := uuid.New()
	set := d.recipients(context.Background(), event.Event{
		Kind:        event.RequestSubmitted,
		RequestType: model.RequestTypeProject,
		RequesterID: requester,
		ActorID:     requester,
	})

	require.Equal(t, map[uuid.UUID]bool{fm.ID: true}, set)
}

func TestRecipientsQuoteStageFansOutToAccountantsAndFMs(t *testing.T) {
	users := newFakeUserRepo()
	acct := poolUser(users, model.RoleAccountant, model.UserStatusActive)
	fm := poolUser(users, model.RoleFinalManager, model.UserStatusActive)
	dm := poolUser(users, model.RoleDirectManager, model.UserStatusActive)
	d := NewDispatcher(nil, users, nil, nil)

	requester := uuid.New()
	set := d.recipients(context.Background(), event.Event{
		Kind:         event.RequestApproved,
		RequestType:  model.RequestTypePurchase,
		RequestState: model.StateDMApproved,
		RequesterID:  requester,
		ActorID:      dm.ID,
	})

	require.Equal(t, map[uuid.UUID]bool{requester: true, acct.ID: true, fm.ID: true}, set)
}

func TestRecipientsRejectionOnlyNotifiesRequester(t *testing.T) {
	users := newFakeUserRepo()
	poolUser(users, model.RoleAccountant, model.UserStatusActive)
	d := NewDispatcher(nil, users, nil, nil)

	requester := uuid.New()
	actor := uuid.New()
	set := d.recipients(context.Background(), event.Event{
		Kind:        event.RequestRejected,
		RequesterID: requester,
		ActorID:     actor,
	})

	require.Equal(t, map[uuid.UUID]bool{requester: true}, set)
}

func TestRecipientsProjectDoneNotifiesAccountants(t *testing.T) {
	users := newFakeUserRepo()
	acct := poolUser(users, model.RoleAccountant, model.UserStatusActive)
	d := NewDispatcher(nil, users, nil, nil)

	requester := uuid.New()
	set := d.recipients(context.Background(), event.Event{
		Kind:        event.ProjectMarkedDone,
		RequesterID: requester,
		ActorID:     requester,
	})

	require.Equal(t, map[uuid.UUID]bool{acct.ID: true}, set)
}

func TestNotificationListDefaultsPaging(t *testing.T) {
	repo := &fakeNotificationRepo{}
	svc := NewNotificationService(repo)

	_, _, err := svc.List(context.Background(), uuid.New(), false, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 1, repo.lastPage)
	require.Equal(t, 20, repo.lastLimit)
}
