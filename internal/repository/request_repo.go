package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"spendflow/internal/model"
	"spendflow/pkg/pagination"
)

// requestPreloads are the relations handlers render on every request payload.
var requestPreloads = []string{
	"Requester", "DirectManager", "CurrentApprover", "Items",
	"Quotes", "SelectedQuote", "Approvals.Approver", "InventoryItems.InventoryItem",
}

// RequestFilter narrows listings.
type RequestFilter struct {
	Type   string
	State  string
	Search string
	Page   int
	Limit  int
}

type RequestRepository interface {
	Create(ctx context.Context, req *model.Request) error
	Save(ctx context.Context, req *model.Request) error
	// FindByRef resolves either a numeric internal id or a human request_id
	// like PR-2025-001, with full relations preloaded.
	FindByRef(ctx context.Context, ref string) (*model.Request, error)
	// FindByIDForUpdate acquires the row-level exclusive lock that serializes
	// all state transitions on one request. Must run inside RunInTx.
	FindByIDForUpdate(ctx context.Context, id uint) (*model.Request, error)
	List(ctx context.Context, filter RequestFilter) ([]model.Request, int64, error)
	ListForApprover(ctx context.Context, role string, page, limit int) ([]model.Request, int64, error)
	ListByRequester(ctx context.Context, requesterID uuid.UUID) ([]model.Request, error)
	DeleteCascade(ctx context.Context, id uint) error
	ReplaceItems(ctx context.Context, requestID uint, items []model.RequestItem) error
	CreateQuote(ctx context.Context, quote *model.RequestQuote) error
	ReplaceInventoryItems(ctx context.Context, requestID uint, lines []model.RequestInventoryItem) error
	InventoryLines(ctx context.Context, requestID uint) ([]model.RequestInventoryItem, error)
	SaveInventoryLine(ctx context.Context, line *model.RequestInventoryItem) error
	// NextRequestID allocates the next PR-/PROJ- id for the current year under
	// the counter row lock. Must run inside RunInTx.
	NextRequestID(ctx context.Context, reqType string) (string, error)
}

type requestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) RequestRepository {
	return &requestRepository{db: db}
}

func (r *requestRepository) Create(ctx context.Context, req *model.Request) error {
	return GetDB(ctx, r.db).Create(req).Error
}

func (r *requestRepository) Save(ctx context.Context, req *model.Request) error {
	return GetDB(ctx, r.db).Save(req).Error
}

// IsNumericRef reports whether ref is a pure-digit internal id rather than a
// human request_id string.
func IsNumericRef(ref string) bool {
	if ref == "" {
		return false
	}
	for _, c := range ref {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func (r *requestRepository) FindByRef(ctx context.Context, ref string) (*model.Request, error) {
	query := GetDB(ctx, r.db)
	for _, rel := range requestPreloads {
		query = query.Preload(rel)
	}
	var req model.Request
	var err error
	if IsNumericRef(ref) {
		err = query.First(&req, "id = ?", ref).Error
	} else {
		err = query.First(&req, "request_id = ?", ref).Error
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

func (r *requestRepository) FindByIDForUpdate(ctx context.Context, id uint) (*model.Request, error) {
	var req model.Request
	if err := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requestRepository) List(ctx context.Context, filter RequestFilter) ([]model.Request, int64, error) {
	db := GetDB(ctx, r.db)
	query := db.Model(&model.Request{})
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.State != "" {
		query = query.Where("state = ?", filter.State)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query = query.Where("title ILIKE ? OR request_id ILIKE ? OR description ILIKE ?", like, like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	fetch := query.Session(&gorm.Session{})
	for _, rel := range requestPreloads {
		fetch = fetch.Preload(rel)
	}
	var requests []model.Request
	offset := pagination.Offset(filter.Page, filter.Limit)
	if err := fetch.Order("created_at DESC").Offset(offset).Limit(filter.Limit).
		Find(&requests).Error; err != nil {
		return nil, 0, err
	}
	return requests, total, nil
}

// ListForApprover returns the pool of requests awaiting the given role,
// oldest first. DMs see SUBMITTED purchases; final managers see DM_APPROVED
// purchases that already carry quotes plus SUBMITTED projects; accountants see
// DM_APPROVED purchases (to attach quotes) plus DONE projects (to confirm
// payment); admins see both pooled stages.
func (r *requestRepository) ListForApprover(ctx context.Context, role string, page, limit int) ([]model.Request, int64, error) {
	db := GetDB(ctx, r.db)
	query := db.Model(&model.Request{})

	switch role {
	case model.RoleDirectManager:
		query = query.Where("type = ? AND state = ?", model.RequestTypePurchase, model.StateSubmitted)
	case model.RoleFinalManager:
		query = query.Where(
			"(type = ? AND state = ? AND EXISTS (SELECT 1 FROM request_quotes q WHERE q.request_id = requests.id)) OR (type = ? AND state = ?)",
			model.RequestTypePurchase, model.StateDMApproved,
			model.RequestTypeProject, model.StateSubmitted,
		)
	case model.RoleAccountant:
		query = query.Where(
			"(type = ? AND state = ?) OR (type = ? AND state = ?)",
			model.RequestTypePurchase, model.StateDMApproved,
			model.RequestTypeProject, model.StateDone,
		)
	case model.RoleAdmin:
		query = query.Where("state IN ?", []string{model.StateSubmitted, model.StateDMApproved})
	default:
		return []model.Request{}, 0, nil
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	fetch := query.Session(&gorm.Session{})
	for _, rel := range requestPreloads {
		fetch = fetch.Preload(rel)
	}
	var requests []model.Request
	offset := pagination.Offset(page, limit)
	if err := fetch.Order("created_at ASC").Offset(offset).Limit(limit).
		Find(&requests).Error; err != nil {
		return nil, 0, err
	}
	return requests, total, nil
}

func (r *requestRepository) ListByRequester(ctx context.Context, requesterID uuid.UUID) ([]model.Request, error) {
	query := GetDB(ctx, r.db)
	for _, rel := range requestPreloads {
		query = query.Preload(rel)
	}
	var requests []model.Request
	if err := query.Where("requester_id = ?", requesterID).
		Order("created_at DESC").Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *requestRepository) DeleteCascade(ctx context.Context, id uint) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("request_id = ?", id).Delete(&model.RequestItem{}).Error; err != nil {
		return err
	}
	if err := db.Where("request_id = ?", id).Delete(&model.RequestQuote{}).Error; err != nil {
		return err
	}
	if err := db.Where("request_id = ?", id).Delete(&model.Approval{}).Error; err != nil {
		return err
	}
	if err := db.Where("request_id = ?", id).Delete(&model.RequestInventoryItem{}).Error; err != nil {
		return err
	}
	return db.Delete(&model.Request{}, id).Error
}

func (r *requestRepository) ReplaceItems(ctx context.Context, requestID uint, items []model.RequestItem) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("request_id = ?", requestID).Delete(&model.RequestItem{}).Error; err != nil {
		return err
	}
	for i := range items {
		items[i].RequestID = requestID
		if err := db.Create(&items[i]).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *requestRepository) CreateQuote(ctx context.Context, quote *model.RequestQuote) error {
	return GetDB(ctx, r.db).Create(quote).Error
}

func (r *requestRepository) ReplaceInventoryItems(ctx context.Context, requestID uint, lines []model.RequestInventoryItem) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("request_id = ?", requestID).Delete(&model.RequestInventoryItem{}).Error; err != nil {
		return err
	}
	for i := range lines {
		lines[i].RequestID = requestID
		if err := db.Create(&lines[i]).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *requestRepository) InventoryLines(ctx context.Context, requestID uint) ([]model.RequestInventoryItem, error) {
	var lines []model.RequestInventoryItem
	if err := GetDB(ctx, r.db).Preload("InventoryItem").
		Where("request_id = ?", requestID).
		Order("inventory_item_id ASC"). // global lock order, see approval service
		Find(&lines).Error; err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *requestRepository) SaveInventoryLine(ctx context.Context, line *model.RequestInventoryItem) error {
	return GetDB(ctx, r.db).Save(line).Error
}

func requestIDPrefix(reqType string) string {
	if reqType == model.RequestTypeProject {
		return "PROJ"
	}
	return "PR"
}

// FormatRequestID renders PR-2025-001 / PROJ-2025-001. Three digits is a soft
// width; sequences beyond 999 simply widen.
func FormatRequestID(reqType string, year, seq int) string {
	return fmt.Sprintf("%s-%d-%03d", requestIDPrefix(reqType), year, seq)
}

func (r *requestRepository) NextRequestID(ctx context.Context, reqType string) (string, error) {
	db := GetDB(ctx, r.db)
	year := time.Now().Year()

	counter, err := r.lockCounter(db, reqType, year)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", err
		}
		counter, err = r.ensureCounter(db, reqType, year)
		if err != nil {
			return "", err
		}
	}

	counter.Seq++
	if err := db.Save(counter).Error; err != nil {
		return "", err
	}
	return FormatRequestID(reqType, year, counter.Seq), nil
}

func (r *requestRepository) lockCounter(db *gorm.DB, reqType string, year int) (*model.RequestCounter, error) {
	var counter model.RequestCounter
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("type = ? AND year = ?", reqType, year).
		First(&counter).Error; err != nil {
		return nil, err
	}
	return &counter, nil
}

// ensureCounter seeds a missing counter row from the highest sequence already
// present in requests, so ids stay collision-free over data that predates the
// counter table. A concurrent insert loses the unique-constraint race and
// falls back to locking the winner's row.
func (r *requestRepository) ensureCounter(db *gorm.DB, reqType string, year int) (*model.RequestCounter, error) {
	prefix := fmt.Sprintf("%s-%d-", requestIDPrefix(reqType), year)

	var maxSeq sql.NullInt64
	if err := db.Model(&model.Request{}).
		Where("type = ? AND request_id LIKE ?", reqType, prefix+"%").
		Select("MAX(CAST(split_part(request_id, '-', 3) AS INTEGER))").
		Scan(&maxSeq).Error; err != nil {
		return nil, err
	}

	counter := &model.RequestCounter{Type: reqType, Year: year, Seq: int(maxSeq.Int64)}
	if err := db.Create(counter).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return r.lockCounter(db, reqType, year)
		}
		return nil, err
	}
	return counter, nil
}
