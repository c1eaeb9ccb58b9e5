package repository

import (
	"context"

	"gorm.io/gorm"

	"spendflow/internal/model"
)

type ApprovalRepository interface {
	Create(ctx context.Context, approval *model.Approval) error
	// ListByRequest returns the audit trail oldest first.
	ListByRequest(ctx context.Context, requestID uint) ([]model.Approval, error)
}

type approvalRepository struct {
	db *gorm.DB
}

func NewApprovalRepository(db *gorm.DB) ApprovalRepository {
	return &approvalRepository{db: db}
}

func (r *approvalRepository) Create(ctx context.Context, approval *model.Approval) error {
	return GetDB(ctx, r.db).Create(approval).Error
}

func (r *approvalRepository) ListByRequest(ctx context.Context, requestID uint) ([]model.Approval, error) {
	var approvals []model.Approval
	if err := GetDB(ctx, r.db).Preload("Approver").
		Where("request_id = ?", requestID).
		Order("created_at ASC").
		Find(&approvals).Error; err != nil {
		return nil, err
	}
	return approvals, nil
}
