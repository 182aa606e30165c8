package repository

import (
	"context"
	"time"

	"crm-backend/internal/approval"
	"crm-backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StatusChange describes a single status transition together with the one stamp
// group it writes. Only the populated group's columns are touched, so stamps
// from earlier transitions are never overwritten.
type StatusChange struct {
	Next approval.Status

	FinanceApprovedBy *uuid.UUID
	FinanceApprovedAt *time.Time

	SuperAdminApprovedBy *uuid.UUID
	SuperAdminApprovedAt *time.Time

	RejectedBy      *uuid.UUID
	RejectedAt      *time.Time
	RejectionReason string
}

type RequisitionRepository interface {
	Create(ctx context.Context, req *model.Requisition) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Requisition, error)
	FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.Requisition, error)
	List(ctx context.Context, status string, requesterID *uuid.UUID, page, limit int) ([]model.Requisition, int64, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, expected approval.Status, change StatusChange) error
}

type requisitionRepository struct {
	db *gorm.DB
}

func NewRequisitionRepository(db *gorm.DB) RequisitionRepository {
	return &requisitionRepository{db: db}
}

func (r *requisitionRepository) Create(ctx context.Context, req *model.Requisition) error {
	return GetDB(ctx, r.db).Create(req).Error
}

func (r *requisitionRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Requisition, error) {
	var req model.Requisition
	if err := GetDB(ctx, r.db).First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requisitionRepository) FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.Requisition, error) {
	var req model.Requisition
	if err := GetDB(ctx, r.db).
		Preload("Requester").
		Preload("Project").
		Preload("FinanceApprover").
		Preload("SuperAdminApprover").
		Preload("Rejecter").
		First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requisitionRepository) List(ctx context.Context, status string, requesterID *uuid.UUID, page, limit int) ([]model.Requisition, int64, error) {
	var requisitions []model.Requisition
	var total int64

	db := GetDB(ctx, r.db)
	query := db.Model(&model.Requisition{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if requesterID != nil {
		query = query.Where("requester_id = ?", requesterID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	fetchQuery := db.Preload("Requester").Preload("Project")
	if status != "" {
		fetchQuery = fetchQuery.Where("status = ?", status)
	}
	if requesterID != nil {
		fetchQuery = fetchQuery.Where("requester_id = ?", requesterID)
	}
	if err := fetchQuery.Order("created_at DESC").Offset(offset).Limit(limit).Find(&requisitions).Error; err != nil {
		return nil, 0, err
	}

	return requisitions, total, nil
}

// TransitionStatus applies a status-guarded conditional update: the write lands
// only if the stored status still equals expected. Zero rows affected means
// another actor transitioned the requisition first; that surfaces as
// approval.ErrConflict so the caller can re-read and re-evaluate.
func (r *requisitionRepository) TransitionStatus(ctx context.Context, id uuid.UUID, expected approval.Status, change StatusChange) error {
	updates := map[string]interface{}{"status": change.Next}
	if change.FinanceApprovedBy != nil {
		updates["finance_approved_by"] = change.FinanceApprovedBy
		updates["finance_approved_at"] = change.FinanceApprovedAt
	}
	if change.SuperAdminApprovedBy != nil {
		updates["super_admin_approved_by"] = change.SuperAdminApprovedBy
		updates["super_admin_approved_at"] = change.SuperAdminApprovedAt
	}
	if change.RejectedBy != nil {
		updates["rejected_by"] = change.RejectedBy
		updates["rejected_at"] = change.RejectedAt
		updates["rejection_reason"] = change.RejectionReason
	}

	res := GetDB(ctx, r.db).Model(&model.Requisition{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return approval.ErrConflict
	}
	return nil
}
