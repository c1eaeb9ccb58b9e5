package service

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"spendflow/internal/event"
	"spendflow/internal/model"
	"spendflow/pkg/apperr"
)

type checkoutFixture struct {
	svc       CheckoutService
	checkouts *fakeCheckoutRepo
	inventory *fakeInventory
	bus       *event.Bus
}

func newCheckoutFixture() *checkoutFixture {
	f := &checkoutFixture{
		checkouts: newFakeCheckoutRepo(),
		inventory: &fakeInventory{reserveOK: map[uint]bool{}, allocateOK: map[uint]bool{}},
		bus:       event.NewBus(16),
	}
	f.svc = NewCheckoutService(f.checkouts, f.inventory, fakeTxManager{}, f.bus)
	return f
}

func (f *checkoutFixture) seed(actor *model.User, status string, items ...model.InventoryRequestItem) *model.InventoryRequest {
	checkout := &model.InventoryRequest{
		ID:              1,
		RequestID:       "INV-2025-AB12CD34",
		Title:           "Camera kit for shoot",
		Status:          status,
		RequesterID:     actor.ID,
		DirectManagerID: uuid.New(),
		Items:           items,
	}
	for i := range checkout.Items {
		f.checkouts.nextLine++
		checkout.Items[i].ID = f.checkouts.nextLine
		checkout.Items[i].InventoryRequestID = checkout.ID
	}
	f.checkouts.checkouts[checkout.ID] = checkout
	return checkout
}

func TestCreateCheckoutReservesInAscendingItemOrder(t *testing.T) {
	f := newCheckoutFixture()
	requester := activeUser(model.RoleUser)

	created, err := f.svc.Create(context.Background(), requester, CreateCheckoutRequest{
		Title:           "Camera kit",
		DirectManagerID: uuid.New(),
		Items: []CheckoutItemInput{
			{InventoryItemID: 9, Quantity: 1},
			{InventoryItemID: 3, Quantity: 2},
		},
	})
	require.NoError(t, err)
	require.Equal(t, model.CheckoutDraft, created.Status)
	require.True(t, strings.HasPrefix(created.RequestID, "INV-"))
	require.Len(t, created.Items, 2)

	require.Equal(t, []ledgerCall{{itemID: 3, qty: 2}, {itemID: 9, qty: 1}}, f.inventory.reserves)
}

func TestCreateCheckoutInsufficientStockAborts(t *testing.T) {
	f := newCheckoutFixture()
	f.inventory.reserveOK[3] = false

	_, err := f.svc.Create(context.Background(), activeUser(model.RoleUser), CreateCheckoutRequest{
		Title:           "Camera kit",
		DirectManagerID: uuid.New(),
		Items:           []CheckoutItemInput{{InventoryItemID: 3, Quantity: 2}},
	})
	require.Equal(t, http.StatusUnprocessableEntity, apperr.StatusOf(err))
}

func TestCreateCheckoutRejectsDuplicateItems(t *testing.T) {
	f := newCheckoutFixture()

	_, err := f.svc.Create(context.Background(), activeUser(model.RoleUser), CreateCheckoutRequest{
		Title:           "Camera kit",
		DirectManagerID: uuid.New(),
		Items: []CheckoutItemInput{
			{InventoryItemID: 3, Quantity: 1},
			{InventoryItemID: 3, Quantity: 2},
		},
	})
	require.Equal(t, http.StatusUnprocessableEntity, apperr.StatusOf(err))
	require.Empty(t, f.inventory.reserves)
}

func TestUpdateCheckoutSyncsLineDeltas(t *testing.T) {
	f := newCheckoutFixture()
	requester := activeUser(model.RoleUser)
	f.seed(requester, model.CheckoutDraft,
		model.InventoryRequestItem{InventoryItemID: 3, QuantityRequested: 2},
		model.InventoryRequestItem{InventoryItemID: 9, QuantityRequested: 1},
	)

	// Grow item 3, drop item 9, add item 12.
	updated, err := f.svc.Update(context.Background(), requester, 1, UpdateCheckoutRequest{
		Items: []CheckoutItemInput{
			{InventoryItemID: 3, Quantity: 5},
			{InventoryItemID: 12, Quantity: 1},
		},
	})
	require.NoError(t, err)

	require.Equal(t, []ledgerCall{{itemID: 3, qty: 3}, {itemID: 12, qty: 1}}, f.inventory.reserves)
	require.Equal(t, []ledgerCall{{itemID: 9, qty: 1}}, f.inventory.releases)

	require.Len(t, updated.Items, 2)
	require.Equal(t, uint(3), updated.Items[0].InventoryItemID)
	require.Equal(t, 5, updated.Items[0].QuantityRequested)
	require.Equal(t, uint(12), updated.Items[1].InventoryItemID)
}

func TestSubmittedCheckoutCannotBeModified(t *testing.T) {
	f := newCheckoutFixture()
	requester := activeUser(model.RoleUser)
	f.seed(requester, model.CheckoutSubmitted)

	title := "New title"
	_, err := f.svc.Update(context.Background(), requester, 1, UpdateCheckoutRequest{Title: &title})
	require.Equal(t, http.StatusUnprocessableEntity, apperr.StatusOf(err))
}

func TestSubmitCheckout(t *testing.T) {
	f := newCheckoutFixture()
	requester := activeUser(model.RoleUser)
	f.seed(requester, model.CheckoutDraft,
		model.InventoryRequestItem{InventoryItemID: 3, QuantityRequested: 1})

	submitted, err := f.svc.Submit(context.Background(), requester, 1)
	require.NoError(t, err)
	require.Equal(t, model.CheckoutSubmitted, submitted.Status)

	_, err = f.svc.Submit(context.Background(), requester, 1)
	require.Equal(t, http.StatusConflict, apperr.StatusOf(err))
}

func TestFinalApprovalAllocatesStrictly(t *testing.T) {
	f := newCheckoutFixture()
	requester := activeUser(model.RoleUser)
	checkout := f.seed(requester, model.CheckoutDMApproved,
		model.InventoryRequestItem{InventoryItemID: 3, QuantityRequested: 2},
		model.InventoryRequestItem{InventoryItemID: 9, QuantityRequested: 1},
	)
	fm := activeUser(model.RoleFinalManager)

	updated, err := f.svc.UpdateStatus(context.Background(), fm, checkout.ID,
		UpdateCheckoutStatusRequest{Status: model.CheckoutFinalApproved})
	require.NoError(t, err)
	require.Equal(t, model.CheckoutFinalApproved, updated.Status)
	require.Equal(t, &fm.ID, updated.WarehouseManagerID)
	require.Equal(t, []ledgerCall{{itemID: 3, qty: 2}, {itemID: 9, qty: 1}}, f.inventory.allocates)

	e := <-f.bus.Events()
	require.Equal(t, event.CheckoutDecided, e.Kind)
	require.Equal(t, model.CheckoutFinalApproved, e.RequestState)
}

func TestFinalApprovalFailedAllocationAborts(t *testing.T) {
	f := newCheckoutFixture()
	checkout := f.seed(activeUser(model.RoleUser), model.CheckoutDMApproved,
		model.InventoryRequestItem{InventoryItemID: 3, QuantityRequested: 2})
	f.inventory.allocateOK[3] = false

	_, err := f.svc.UpdateStatus(context.Background(), activeUser(model.RoleFinalManager), checkout.ID,
		UpdateCheckoutStatusRequest{Status: model.CheckoutFinalApproved})
	require.Equal(t, http.StatusUnprocessableEntity, apperr.StatusOf(err))
}

func TestRejectionReleasesHoldsAndNeedsReason(t *testing.T) {
	f := newCheckoutFixture()
	checkout := f.seed(activeUser(model.RoleUser), model.CheckoutSubmitted,
		model.InventoryRequestItem{InventoryItemID: 3, QuantityRequested: 2})
	dm := activeUser(model.RoleDirectManager)
	dm.ID = checkout.DirectManagerID

	_, err := f.svc.UpdateStatus(context.Background(), dm, checkout.ID,
		UpdateCheckoutStatusRequest{Status: model.CheckoutDMRejected})
	require.Equal(t, http.StatusUnprocessableEntity, apperr.StatusOf(err))

	updated, err := f.svc.UpdateStatus(context.Background(), dm, checkout.ID,
		UpdateCheckoutStatusRequest{Status: model.CheckoutDMRejected, RejectionReason: "shoot cancelled"})
	require.NoError(t, err)
	require.Equal(t, model.CheckoutDMRejected, updated.Status)
	require.Equal(t, "shoot cancelled", updated.RejectionReason)
	require.Equal(t, []ledgerCall{{itemID: 3, qty: 2}}, f.inventory.releases)
}

func TestOnlyAssignedManagerDecidesDMStage(t *testing.T) {
	f := newCheckoutFixture()
	checkout := f.seed(activeUser(model.RoleUser), model.CheckoutSubmitted,
		model.InventoryRequestItem{InventoryItemID: 3, QuantityRequested: 1})

	stranger := activeUser(model.RoleDirectManager)
	_, err := f.svc.UpdateStatus(context.Background(), stranger, checkout.ID,
		UpdateCheckoutStatusRequest{Status: model.CheckoutDMApproved})
	require.Equal(t, http.StatusForbidden, apperr.StatusOf(err))
}

func TestSkippingDMStageConflicts(t *testing.T) {
	f := newCheckoutFixture()
	checkout := f.seed(activeUser(model.RoleUser), model.CheckoutSubmitted,
		model.InventoryRequestItem{InventoryItemID: 3, QuantityRequested: 1})

	_, err := f.svc.UpdateStatus(context.Background(), activeUser(model.RoleFinalManager), checkout.ID,
		UpdateCheckoutStatusRequest{Status: model.CheckoutFinalApproved})
	require.Equal(t, http.StatusConflict, apperr.StatusOf(err))
}

func TestRecordReturnRestocksReturnedQuantities(t *testing.T) {
	f := newCheckoutFixture()
	requester := activeUser(model.RoleUser)
	checkout := f.seed(requester, model.CheckoutFinalApproved,
		model.InventoryRequestItem{InventoryItemID: 3, QuantityRequested: 2},
		model.InventoryRequestItem{InventoryItemID: 9, QuantityRequested: 1},
	)
	wm := activeUser(model.RoleAdmin)

	updated, err := f.svc.RecordReturn(context.Background(), wm, checkout.ID, RecordReturnRequest{
		ReturnSupervisorName: "Storage desk",
		Items: []ReturnLineInput{
			{ItemID: checkout.Items[0].ID, QuantityReturned: 2, ConditionAfterReturn: "good"},
			{ItemID: checkout.Items[1].ID, QuantityReturned: 0, ReturnNotes: "lost on location"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, model.CheckoutReturned, updated.Status)
	require.NotNil(t, updated.ReturnDate)

	// Only the physically returned quantity goes back into stock.
	require.Equal(t, []ledgerCall{{itemID: 3, qty: 2}}, f.inventory.addStocks)
	require.Equal(t, 2, updated.Items[0].QuantityReturned)
	require.Equal(t, "lost on location", updated.Items[1].ReturnNotes)
}

func TestRecordReturnOverflowRejected(t *testing.T) {
	f := newCheckoutFixture()
	checkout := f.seed(activeUser(model.RoleUser), model.CheckoutFinalApproved,
		model.InventoryRequestItem{InventoryItemID: 3, QuantityRequested: 1})

	_, err := f.svc.RecordReturn(context.Background(), activeUser(model.RoleAdmin), checkout.ID, RecordReturnRequest{
		Items: []ReturnLineInput{{ItemID: checkout.Items[0].ID, QuantityReturned: 2}},
	})
	require.Equal(t, http.StatusUnprocessableEntity, apperr.StatusOf(err))
}

func TestDeleteDraftReleasesHolds(t *testing.T) {
	f := newCheckoutFixture()
	requester := activeUser(model.RoleUser)
	checkout := f.seed(requester, model.CheckoutDraft,
		model.InventoryRequestItem{InventoryItemID: 3, QuantityRequested: 2})

	require.NoError(t, f.svc.Delete(context.Background(), requester, checkout.ID))
	require.Equal(t, []ledgerCall{{itemID: 3, qty: 2}}, f.inventory.releases)
	require.Equal(t, []uint{checkout.ID}, f.checkouts.deleted)
}

func TestListScopesByRole(t *testing.T) {
	f := newCheckoutFixture()

	dm := activeUser(model.RoleDirectManager)
	_, _, err := f.svc.List(context.Background(), dm, "", 1, 20)
	require.NoError(t, err)
	require.NotNil(t, f.checkouts.lastFilter.RequesterID)
	require.NotNil(t, f.checkouts.lastFilter.ManagerID)
	require.Equal(t, dm.ID, *f.checkouts.lastFilter.RequesterID)
	require.Equal(t, dm.ID, *f.checkouts.lastFilter.ManagerID)

	regular := activeUser(model.RoleUser)
	_, _, err = f.svc.List(context.Background(), regular, "", 1, 20)
	require.NoError(t, err)
	require.Equal(t, regular.ID, *f.checkouts.lastFilter.RequesterID)
	require.Nil(t, f.checkouts.lastFilter.ManagerID)

	_, _, err = f.svc.List(context.Background(), activeUser(model.RoleAdmin), "", 1, 20)
	require.NoError(t, err)
	require.Nil(t, f.checkouts.lastFilter.RequesterID)
	require.Nil(t, f.checkouts.lastFilter.ManagerID)
}
