package repository

import (
	"context"

	"procurement/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type approvalRepository struct {
	db *gorm.DB
}

func NewApprovalRepository(db *gorm.DB) ApprovalRepository {
	return &approvalRepository{db: db}
}

func (r *approvalRepository) Append(ctx context.Context, approval *model.Approval) error {
	if approval.ID == uuid.Nil {
		approval.ID = uuid.New()
	}
	return translate(GetDB(ctx, r.db).Create(approval).Error)
}

func (r *approvalRepository) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]model.Approval, error) {
	var approvals []model.Approval
	if err := orderedApprovals(GetDB(ctx, r.db)).Where("request_id = ?", requestID).Find(&approvals).Error; err != nil {
		return nil, translate(err)
	}
	return approvals, nil
}
