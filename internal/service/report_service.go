package service

import (
	"context"
	"time"

	"crm-backend/internal/approval"
	"crm-backend/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReportService aggregates committed requisition state for reporting.
// Strictly read-only: it never races the approval engine's writes because it
// only sees committed snapshots.
type ReportService interface {
	GetApprovalReport(ctx context.Context, startDate, endDate time.Time) (model.ApprovalReport, error)
}

type reportService struct {
	db *gorm.DB
}

func NewReportService(db *gorm.DB) ReportService {
	return &reportService{db: db}
}

// GetApprovalReport computes status counts, finalized amount totals, and the
// pending-review queue size for requisitions created inside the given range
func (s *reportService) GetApprovalReport(ctx context.Context, startDate, endDate time.Time) (model.ApprovalReport, error) {
	var report model.ApprovalReport
	report.TimeRangeStartDate = startDate
	report.TimeRangeEndDate = endDate

	var counts []model.StatusCount
	if err := s.db.WithContext(ctx).Model(&model.Requisition{}).
		Select("status, COUNT(*) as count").
		Where("created_at >= ? AND created_at <= ?", startDate, endDate).
		Group("status").
		Order("status").
		Scan(&counts).Error; err != nil {
		return model.ApprovalReport{}, err
	}
	report.StatusCounts = counts

	var approvedTotal struct {
		Value decimal.Decimal
	}
	if err := s.db.WithContext(ctx).Model(&model.Requisition{}).
		Select("COALESCE(SUM(amount), 0) as value").
		Where("status = ? AND created_at >= ? AND created_at <= ?", approval.StatusApproved, startDate, endDate).
		Scan(&approvedTotal).Error; err != nil {
		return model.ApprovalReport{}, err
	}
	report.TotalApprovedAmount = approvedTotal.Value.StringFixed(4)

	var rejectedTotal struct {
		Value decimal.Decimal
	}
	if err := s.db.WithContext(ctx).Model(&model.Requisition{}).
		Select("COALESCE(SUM(amount), 0) as value").
		Where("status = ? AND created_at >= ? AND created_at <= ?", approval.StatusRejected, startDate, endDate).
		Scan(&rejectedTotal).Error; err != nil {
		return model.ApprovalReport{}, err
	}
	report.TotalRejectedAmount = rejectedTotal.Value.StringFixed(4)

	if err := s.db.WithContext(ctx).Model(&model.Requisition{}).
		Where("status IN ?", []approval.Status{approval.StatusPending, approval.StatusFinanceApproved}).
		Count(&report.PendingReviewCount).Error; err != nil {
		return model.ApprovalReport{}, err
	}

	return report, nil
}
