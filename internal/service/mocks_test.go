package service

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"spendflow/internal/model"
	"spendflow/internal/repository"
)

// In-memory fakes for the service tests. Each fake embeds the interface it
// stands in for, so only the methods a test actually exercises need bodies;
// calling anything else panics and fails the test loudly.

type fakeTxManager struct{}

func (fakeTxManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}

type fakeRequestRepo struct {
	repository.RequestRepository

	byRef map[string]*model.Request
	byID  map[uint]*model.Request
	lines map[uint][]model.RequestInventoryItem

	saved      []*model.Request
	savedLines []model.RequestInventoryItem
	quotes     []model.RequestQuote
	deleted    []uint
	nextSeq    int
}

func newFakeRequestRepo() *fakeRequestRepo {
	return &fakeRequestRepo{
		byRef: map[string]*model.Request{},
		byID:  map[uint]*model.Request{},
		lines: map[uint][]model.RequestInventoryItem{},
	}
}

// add registers the request under both its ref and its numeric id, the common
// case where no concurrent transition is being simulated.
func (f *fakeRequestRepo) add(r *model.Request) {
	f.byRef[r.RequestID] = r
	f.byID[r.ID] = r
}

func (f *fakeRequestRepo) Create(ctx context.Context, req *model.Request) error {
	req.ID = uint(len(f.byID) + 1)
	f.add(req)
	return nil
}

func (f *fakeRequestRepo) NextRequestID(ctx context.Context, reqType string) (string, error) {
	f.nextSeq++
	return repository.FormatRequestID(reqType, 2025, f.nextSeq), nil
}

func (f *fakeRequestRepo) DeleteCascade(ctx context.Context, id uint) error {
	f.deleted = append(f.deleted, id)
	if req := f.byID[id]; req != nil {
		delete(f.byRef, req.RequestID)
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeRequestRepo) CreateQuote(ctx context.Context, quote *model.RequestQuote) error {
	f.quotes = append(f.quotes, *quote)
	return nil
}

func (f *fakeRequestRepo) FindByRef(ctx context.Context, ref string) (*model.Request, error) {
	return f.byRef[ref], nil
}

func (f *fakeRequestRepo) FindByIDForUpdate(ctx context.Context, id uint) (*model.Request, error) {
	return f.byID[id], nil
}

func (f *fakeRequestRepo) Save(ctx context.Context, req *model.Request) error {
	f.saved = append(f.saved, req)
	return nil
}

func (f *fakeRequestRepo) InventoryLines(ctx context.Context, requestID uint) ([]model.RequestInventoryItem, error) {
	return f.lines[requestID], nil
}

func (f *fakeRequestRepo) SaveInventoryLine(ctx context.Context, line *model.RequestInventoryItem) error {
	f.savedLines = append(f.savedLines, *line)
	return nil
}

type fakeApprovalRepo struct {
	repository.ApprovalRepository

	created []model.Approval
}

func (f *fakeApprovalRepo) Create(ctx context.Context, approval *model.Approval) error {
	f.created = append(f.created, *approval)
	return nil
}

func (f *fakeApprovalRepo) ListByRequest(ctx context.Context, requestID uint) ([]model.Approval, error) {
	var out []model.Approval
	for _, a := range f.created {
		if a.RequestID == requestID {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeInventoryRepo struct {
	repository.InventoryRepository

	items       map[uint]*model.InventoryItem
	txRows      []model.InventoryTransaction
	saves       int
	softDeleted []uint
	nextCode    string
}

func newFakeInventoryRepo() *fakeInventoryRepo {
	return &fakeInventoryRepo{items: map[uint]*model.InventoryItem{}, nextCode: "INV-2025-0001"}
}

func (f *fakeInventoryRepo) Create(ctx context.Context, item *model.InventoryItem) error {
	item.ID = uint(len(f.items) + 1)
	f.items[item.ID] = item
	return nil
}

func (f *fakeInventoryRepo) Save(ctx context.Context, item *model.InventoryItem) error {
	f.saves++
	f.items[item.ID] = item
	return nil
}

func (f *fakeInventoryRepo) FindByID(ctx context.Context, id uint) (*model.InventoryItem, error) {
	return f.items[id], nil
}

func (f *fakeInventoryRepo) FindByIDForUpdate(ctx context.Context, id uint) (*model.InventoryItem, error) {
	return f.items[id], nil
}

func (f *fakeInventoryRepo) SoftDelete(ctx context.Context, id uint) error {
	f.softDeleted = append(f.softDeleted, id)
	return nil
}

func (f *fakeInventoryRepo) CreateTransaction(ctx context.Context, tx *model.InventoryTransaction) error {
	f.txRows = append(f.txRows, *tx)
	return nil
}

func (f *fakeInventoryRepo) NextItemCode(ctx context.Context) (string, error) {
	return f.nextCode, nil
}

type fakeUserRepo struct {
	repository.UserRepository

	byID          map[uuid.UUID]*model.User
	byEmail       map[string]*model.User
	tokens        map[string]*model.RefreshToken
	deletedTokens []string
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		byID:    map[uuid.UUID]*model.User{},
		byEmail: map[string]*model.User{},
		tokens:  map[string]*model.RefreshToken{},
	}
}

func (f *fakeUserRepo) add(u *model.User) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	f.byID[u.ID] = u
	f.byEmail[u.Email] = u
}

func (f *fakeUserRepo) Create(ctx context.Context, user *model.User) error {
	f.add(user)
	return nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return f.byID[id], nil
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return f.byEmail[email], nil
}

func (f *fakeUserRepo) ListActiveByRole(ctx context.Context, role string) ([]model.User, error) {
	var out []model.User
	for _, u := range f.byID {
		if u.Role == role && u.IsActive() {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *fakeUserRepo) CreateRefreshToken(ctx context.Context, token *model.RefreshToken) error {
	f.tokens[token.Token] = token
	return nil
}

func (f *fakeUserRepo) GetRefreshToken(ctx context.Context, token string) (*model.RefreshToken, error) {
	return f.tokens[token], nil
}

func (f *fakeUserRepo) DeleteRefreshToken(ctx context.Context, token string) error {
	f.deletedTokens = append(f.deletedTokens, token)
	delete(f.tokens, token)
	return nil
}

type fakeNotificationRepo struct {
	repository.NotificationRepository

	created   []model.Notification
	lastPage  int
	lastLimit int
}

func (f *fakeNotificationRepo) Create(ctx context.Context, n *model.Notification) error {
	f.created = append(f.created, *n)
	return nil
}

func (f *fakeNotificationRepo) ListByUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, page, limit int) ([]model.Notification, int64, error) {
	f.lastPage = page
	f.lastLimit = limit
	return nil, 0, nil
}

type fakeCheckoutRepo struct {
	repository.CheckoutRepository

	checkouts  map[uint]*model.InventoryRequest
	nextLine   uint
	deleted    []uint
	lastFilter repository.CheckoutFilter
}

func (f *fakeCheckoutRepo) List(ctx context.Context, filter repository.CheckoutFilter) ([]model.InventoryRequest, int64, error) {
	f.lastFilter = filter
	return nil, 0, nil
}

func newFakeCheckoutRepo() *fakeCheckoutRepo {
	return &fakeCheckoutRepo{checkouts: map[uint]*model.InventoryRequest{}}
}

func (f *fakeCheckoutRepo) Create(ctx context.Context, req *model.InventoryRequest) error {
	req.ID = uint(len(f.checkouts) + 1)
	f.checkouts[req.ID] = req
	return nil
}

func (f *fakeCheckoutRepo) Save(ctx context.Context, req *model.InventoryRequest) error {
	f.checkouts[req.ID] = req
	return nil
}

func (f *fakeCheckoutRepo) FindByIDWithItems(ctx context.Context, id uint) (*model.InventoryRequest, error) {
	checkout := f.checkouts[id]
	if checkout == nil {
		return nil, nil
	}
	sort.Slice(checkout.Items, func(a, b int) bool {
		return checkout.Items[a].InventoryItemID < checkout.Items[b].InventoryItemID
	})
	return checkout, nil
}

func (f *fakeCheckoutRepo) CreateItem(ctx context.Context, item *model.InventoryRequestItem) error {
	f.nextLine++
	item.ID = f.nextLine
	checkout := f.checkouts[item.InventoryRequestID]
	checkout.Items = append(checkout.Items, *item)
	return nil
}

func (f *fakeCheckoutRepo) SaveItem(ctx context.Context, item *model.InventoryRequestItem) error {
	checkout := f.checkouts[item.InventoryRequestID]
	for i := range checkout.Items {
		if checkout.Items[i].ID == item.ID {
			checkout.Items[i] = *item
		}
	}
	return nil
}

func (f *fakeCheckoutRepo) DeleteItem(ctx context.Context, itemID uint) error {
	for _, checkout := range f.checkouts {
		for i := range checkout.Items {
			if checkout.Items[i].ID == itemID {
				checkout.Items = append(checkout.Items[:i], checkout.Items[i+1:]...)
				return nil
			}
		}
	}
	return nil
}

func (f *fakeCheckoutRepo) Delete(ctx context.Context, id uint) error {
	f.deleted = append(f.deleted, id)
	delete(f.checkouts, id)
	return nil
}

type ledgerCall struct {
	itemID uint
	qty    int
}

type fakeInventory struct {
	InventoryService

	// reserveOK lets a test mark specific items as out of stock; unlisted
	// items reserve successfully.
	reserveOK map[uint]bool

	reserves  []ledgerCall
	releases  []ledgerCall
	allocates []ledgerCall
	addStocks []ledgerCall

	// allocateOK marks specific items as failing strict allocation.
	allocateOK map[uint]bool
}

func (f *fakeInventory) Reserve(ctx context.Context, itemID uint, qty int, requestID *uint, userID *uuid.UUID, note string) (bool, error) {
	f.reserves = append(f.reserves, ledgerCall{itemID: itemID, qty: qty})
	if ok, listed := f.reserveOK[itemID]; listed {
		return ok, nil
	}
	return true, nil
}

func (f *fakeInventory) Release(ctx context.Context, itemID uint, qty int, requestID *uint, userID *uuid.UUID, note string) (bool, error) {
	f.releases = append(f.releases, ledgerCall{itemID: itemID, qty: qty})
	return true, nil
}

func (f *fakeInventory) Allocate(ctx context.Context, itemID uint, qty int, requestID *uint, userID *uuid.UUID, note string) (bool, error) {
	f.allocates = append(f.allocates, ledgerCall{itemID: itemID, qty: qty})
	if ok, listed := f.allocateOK[itemID]; listed {
		return ok, nil
	}
	return true, nil
}

func (f *fakeInventory) AddStock(ctx context.Context, itemID uint, qty int, requestID *uint, userID *uuid.UUID, note string) error {
	f.addStocks = append(f.addStocks, ledgerCall{itemID: itemID, qty: qty})
	return nil
}
