package model

import "time"

// StatusCount is one row of the status breakdown in an approval report
type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// ApprovalReport aggregates committed requisition state for reporting.
// Read-only: reporting never mutates requisitions.
type ApprovalReport struct {
	TimeRangeStartDate  time.Time     `json:"time_range_start_date"`
	TimeRangeEndDate    time.Time     `json:"time_range_end_date"`
	StatusCounts        []StatusCount `json:"status_counts"`
	TotalApprovedAmount string        `json:"total_approved_amount"`
	TotalRejectedAmount string        `json:"total_rejected_amount"`
	PendingReviewCount  int64         `json:"pending_review_count"` // PENDING + FINANCE_APPROVED
}
