package repository

import (
	"context"
	"time"

	"procurement/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type requestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) RequestRepository {
	return &requestRepository{db: db}
}

func orderedApprovals(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC")
}

func (r *requestRepository) Create(ctx context.Context, req *model.PurchaseRequest) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	return translate(GetDB(ctx, r.db).Omit("Approvals").Create(req).Error)
}

func (r *requestRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.PurchaseRequest, error) {
	var req model.PurchaseRequest
	if err := GetDB(ctx, r.db).Preload("Approvals", orderedApprovals).First(&req, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &req, nil
}

func (r *requestRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.PurchaseRequest, error) {
	db := GetDB(ctx, r.db)
	var req model.PurchaseRequest
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&req, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	if err := orderedApprovals(db).Where("request_id = ?", id).Find(&req.Approvals).Error; err != nil {
		return nil, translate(err)
	}
	return &req, nil
}

func (r *requestRepository) List(ctx context.Context, filter RequestFilter) ([]model.PurchaseRequest, int64, error) {
	var requests []model.PurchaseRequest
	var total int64

	db := GetDB(ctx, r.db)
	scope := func(q *gorm.DB) *gorm.DB {
		if filter.CreatedBy != "" {
			q = q.Where("created_by = ?", filter.CreatedBy)
		}
		if filter.Status != "" {
			q = q.Where("status = ?", filter.Status)
		}
		if filter.ReceiptFlagged != nil {
			q = q.Where("receipt_flagged = ?", *filter.ReceiptFlagged)
		}
		if filter.Query != "" {
			like := "%" + filter.Query + "%"
			q = q.Where("title ILIKE ? OR description ILIKE ?", like, like)
		}
		return q
	}

	if err := db.Model(&model.PurchaseRequest{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	fetch := db.Scopes(scope).Preload("Approvals", orderedApprovals).Order("created_at DESC")
	if filter.Limit > 0 {
		fetch = fetch.Offset(filter.Offset()).Limit(filter.Limit)
	}
	if err := fetch.Find(&requests).Error; err != nil {
		return nil, 0, err
	}

	return requests, total, nil
}

func (r *requestRepository) UpdateDetails(ctx context.Context, req *model.PurchaseRequest) error {
	req.UpdatedAt = time.Now()
	res := GetDB(ctx, r.db).Model(&model.PurchaseRequest{ID: req.ID}).
		Select("title", "description", "amount", "proforma", "proforma_extraction", "proforma_advisory", "proforma_warning", "updated_at").
		Updates(req)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *requestRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.Status) error {
	res := GetDB(ctx, r.db).Model(&model.PurchaseRequest{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now()})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *requestRepository) SaveProformaAnalysis(ctx context.Context, id uuid.UUID, proformaKey string, result ProformaAnalysis) error {
	update := model.PurchaseRequest{
		ProformaExtraction: result.Extraction,
		ProformaAdvisory:   result.State,
		ProformaWarning:    result.Warning,
	}
	res := GetDB(ctx, r.db).Model(&model.PurchaseRequest{ID: id}).
		Where("proforma ->> 'key' = ?", proformaKey).
		Select("proforma_extraction", "proforma_advisory", "proforma_warning").
		Updates(&update)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *requestRepository) AttachReceipt(ctx context.Context, id uuid.UUID, ref *model.DocumentRef) error {
	update := model.PurchaseRequest{
		Receipt:         ref,
		ReceiptAdvisory: model.AdvisoryPending,
		UpdatedAt:       time.Now(),
	}
	res := GetDB(ctx, r.db).Model(&model.PurchaseRequest{ID: id}).
		Where("receipt IS NULL").
		Select("receipt", "receipt_advisory", "updated_at").
		Updates(&update)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *requestRepository) SaveReceiptValidation(ctx context.Context, id uuid.UUID, receiptKey string, result ReceiptAnalysis) error {
	update := model.PurchaseRequest{
		ReceiptValidation: result.Validation,
		ReceiptAdvisory:   result.State,
		ReceiptWarning:    result.Warning,
		ReceiptFlagged:    result.Validation != nil && result.Validation.Flagged(),
	}
	res := GetDB(ctx, r.db).Model(&model.PurchaseRequest{ID: id}).
		Where("receipt ->> 'key' = ?", receiptKey).
		Select("receipt_validation", "receipt_advisory", "receipt_warning", "receipt_flagged").
		Updates(&update)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *requestRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("request_id = ?", id).Delete(&model.Approval{}).Error; err != nil {
		return translate(err)
	}
	res := db.Delete(&model.PurchaseRequest{}, "id = ?", id)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
