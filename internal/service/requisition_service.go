package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"crm-backend/internal/approval"
	"crm-backend/internal/model"
	"crm-backend/internal/repository"
	ws "crm-backend/internal/websocket"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// --- DTOs ---

type SubmitRequisitionRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description" binding:"required"`
	Amount      string `json:"amount" binding:"required"` // Decimal string
	Category    string `json:"category" binding:"required"`
	ProjectID   string `json:"project_id"`
}

type RejectRequisitionRequest struct {
	Reason string `json:"reason"`
}

type RequisitionFilter struct {
	Status      string // PENDING, FINANCE_APPROVED, APPROVED, REJECTED or empty for all
	RequesterID string
	Page        int
	Limit       int
}

type RequisitionResponse struct {
	ID            string  `json:"id"`
	RequesterID   string  `json:"requester_id"`
	RequesterName string  `json:"requester_name"`
	Title         string  `json:"title"`
	Description   string  `json:"description"`
	Amount        string  `json:"amount"`
	Category      string  `json:"category"`
	ProjectID     *string `json:"project_id"`
	ProjectName   string  `json:"project_name,omitempty"`
	Status        string  `json:"status"`

	FinanceApprovedBy      *string `json:"finance_approved_by"`
	FinanceApproverName    string  `json:"finance_approver_name,omitempty"`
	FinanceApprovedAt      *string `json:"finance_approved_at"`
	SuperAdminApprovedBy   *string `json:"super_admin_approved_by"`
	SuperAdminApproverName string  `json:"super_admin_approver_name,omitempty"`
	SuperAdminApprovedAt   *string `json:"super_admin_approved_at"`
	RejectedBy             *string `json:"rejected_by"`
	RejecterName           string  `json:"rejecter_name,omitempty"`
	RejectedAt             *string `json:"rejected_at"`
	RejectionReason        string  `json:"rejection_reason"`

	CreatedAt string `json:"created_at"`
}

// EligibilityResponse tells a caller which actions it may offer the actor.
// Backed by the engine's pure checks, so an offered action cannot then be
// refused for authorization reasons.
type EligibilityResponse struct {
	CanApprove bool `json:"can_approve"`
	CanReject  bool `json:"can_reject"`
}

// --- Interface ---

type RequisitionService interface {
	Submit(ctx context.Context, requesterID string, req SubmitRequisitionRequest) (RequisitionResponse, error)
	Approve(ctx context.Context, id string, actorID string) (RequisitionResponse, error)
	Reject(ctx context.Context, id string, actorID string, reason string) (RequisitionResponse, error)
	Eligibility(ctx context.Context, id string, actorID string) (EligibilityResponse, error)
	Get(ctx context.Context, id string) (RequisitionResponse, error)
	List(ctx context.Context, filter RequisitionFilter) ([]RequisitionResponse, int64, error)
}

type requisitionService struct {
	requisitionRepo repository.RequisitionRepository
	userRepo        repository.UserRepository
	auditRepo       repository.AuditRepository
	txManager       repository.TransactionManager
	engine          *approval.Engine
	hub             *ws.Hub
	logger          *zap.Logger
}

func NewRequisitionService(
	requisitionRepo repository.RequisitionRepository,
	userRepo repository.UserRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	engine *approval.Engine,
	hub *ws.Hub,
	logger *zap.Logger,
) RequisitionService {
	return &requisitionService{
		requisitionRepo: requisitionRepo,
		userRepo:        userRepo,
		auditRepo:       auditRepo,
		txManager:       txManager,
		engine:          engine,
		hub:             hub,
		logger:          logger,
	}
}

// --- Implementation ---

func (s *requisitionService) Submit(ctx context.Context, requesterID string, req SubmitRequisitionRequest) (RequisitionResponse, error) {
	requesterUUID, err := uuid.Parse(requesterID)
	if err != nil {
		return RequisitionResponse{}, fmt.Errorf("invalid requester id: %w", err)
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return RequisitionResponse{}, &approval.ValidationError{Msg: "invalid amount: " + err.Error()}
	}
	if !amount.IsPositive() {
		return RequisitionResponse{}, &approval.ValidationError{Msg: "amount must be greater than zero"}
	}
	if strings.TrimSpace(req.Title) == "" {
		return RequisitionResponse{}, &approval.ValidationError{Msg: "title is required"}
	}
	if strings.TrimSpace(req.Category) == "" {
		return RequisitionResponse{}, &approval.ValidationError{Msg: "category is required"}
	}

	var projectID *uuid.UUID
	if req.ProjectID != "" {
		parsed, parseErr := uuid.Parse(req.ProjectID)
		if parseErr != nil {
			return RequisitionResponse{}, &approval.ValidationError{Msg: "invalid project_id"}
		}
		projectID = &parsed
	}

	requisition := &model.Requisition{
		RequesterID: requesterUUID,
		Title:       req.Title,
		Description: req.Description,
		Amount:      amount,
		Category:    req.Category,
		ProjectID:   projectID,
		Status:      approval.StatusPending,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if createErr := s.requisitionRepo.Create(txCtx, requisition); createErr != nil {
			return fmt.Errorf("failed to create requisition: %w", createErr)
		}

		details, _ := json.Marshal(map[string]interface{}{
			"title":    req.Title,
			"amount":   amount.StringFixed(4),
			"category": req.Category,
		})
		audit := &model.AuditLog{
			UserID:     &requesterUUID,
			Action:     model.ActionSubmitRequisition,
			EntityID:   requisition.ID.String(),
			EntityName: req.Title,
			Details:    string(details),
		}
		if auditErr := s.auditRepo.Log(txCtx, audit); auditErr != nil {
			return fmt.Errorf("failed to write audit log: %w", auditErr)
		}

		return nil
	})
	if err != nil {
		return RequisitionResponse{}, err
	}

	s.logger.Info("requisition submitted",
		zap.String("requisition_id", requisition.ID.String()),
		zap.String("amount", amount.StringFixed(4)))

	return s.reload(ctx, requisition.ID)
}

func (s *requisitionService) Approve(ctx context.Context, id string, actorID string) (RequisitionResponse, error) {
	reqID, actorUUID, role, err := s.resolveActor(ctx, id, actorID)
	if err != nil {
		return RequisitionResponse{}, err
	}

	attempt := func() error {
		requisition, loadErr := s.requisitionRepo.FindByID(ctx, reqID)
		if loadErr != nil {
			return fmt.Errorf("requisition not found: %w", loadErr)
		}

		decision, decideErr := s.engine.Approve(requisition.Status, requisition.Amount, role)
		if decideErr != nil {
			return decideErr
		}

		return s.commitTransition(ctx, requisition, decision, actorUUID, model.ActionApproveRequisition, "")
	}

	err = attempt()
	if errors.Is(err, approval.ErrConflict) {
		// Lost the race: re-read and re-evaluate exactly once. The fresh state
		// usually refuses the attempt (another actor finalized it first).
		err = attempt()
	}
	if err != nil {
		return RequisitionResponse{}, err
	}

	s.broadcastDecision("requisition.approved", reqID)
	return s.reload(ctx, reqID)
}

func (s *requisitionService) Reject(ctx context.Context, id string, actorID string, reason string) (RequisitionResponse, error) {
	reqID, actorUUID, role, err := s.resolveActor(ctx, id, actorID)
	if err != nil {
		return RequisitionResponse{}, err
	}

	attempt := func() error {
		requisition, loadErr := s.requisitionRepo.FindByID(ctx, reqID)
		if loadErr != nil {
			return fmt.Errorf("requisition not found: %w", loadErr)
		}

		decision, decideErr := s.engine.Reject(requisition.Status, role, reason)
		if decideErr != nil {
			return decideErr
		}

		return s.commitTransition(ctx, requisition, decision, actorUUID, model.ActionRejectRequisition, strings.TrimSpace(reason))
	}

	err = attempt()
	if errors.Is(err, approval.ErrConflict) {
		err = attempt()
	}
	if err != nil {
		return RequisitionResponse{}, err
	}

	s.broadcastDecision("requisition.rejected", reqID)
	return s.reload(ctx, reqID)
}

func (s *requisitionService) Eligibility(ctx context.Context, id string, actorID string) (EligibilityResponse, error) {
	reqID, _, role, err := s.resolveActor(ctx, id, actorID)
	if err != nil {
		return EligibilityResponse{}, err
	}

	requisition, err := s.requisitionRepo.FindByID(ctx, reqID)
	if err != nil {
		return EligibilityResponse{}, fmt.Errorf("requisition not found: %w", err)
	}

	return EligibilityResponse{
		CanApprove: s.engine.CanApprove(requisition.Status, requisition.Amount, role),
		CanReject:  s.engine.CanReject(requisition.Status, role),
	}, nil
}

func (s *requisitionService) Get(ctx context.Context, id string) (RequisitionResponse, error) {
	reqID, err := uuid.Parse(id)
	if err != nil {
		return RequisitionResponse{}, fmt.Errorf("invalid requisition id: %w", err)
	}
	return s.reload(ctx, reqID)
}

func (s *requisitionService) List(ctx context.Context, filter RequisitionFilter) ([]RequisitionResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	var requesterID *uuid.UUID
	if filter.RequesterID != "" {
		parsed, err := uuid.Parse(filter.RequesterID)
		if err != nil {
			return nil, 0, fmt.Errorf("invalid requester id: %w", err)
		}
		requesterID = &parsed
	}

	requisitions, total, err := s.requisitionRepo.List(ctx, filter.Status, requesterID, filter.Page, filter.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch requisitions: %w", err)
	}

	result := make([]RequisitionResponse, 0, len(requisitions))
	for _, r := range requisitions {
		result = append(result, toRequisitionResponse(r))
	}

	return result, total, nil
}

// --- Helpers ---

// resolveActor parses ids and resolves the actor's approval role from the
// stored user record, so a role change takes effect on the next attempt.
func (s *requisitionService) resolveActor(ctx context.Context, id string, actorID string) (uuid.UUID, uuid.UUID, approval.Role, error) {
	reqID, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, uuid.Nil, "", fmt.Errorf("invalid requisition id: %w", err)
	}

	actorUUID, err := uuid.Parse(actorID)
	if err != nil {
		return uuid.Nil, uuid.Nil, "", fmt.Errorf("invalid actor id: %w", err)
	}

	actor, err := s.userRepo.GetByID(ctx, actorUUID)
	if err != nil {
		return uuid.Nil, uuid.Nil, "", fmt.Errorf("actor not found: %w", err)
	}

	return reqID, actorUUID, approval.ResolveRole(actor.Role), nil
}

// commitTransition writes the decided transition and its audit row in one
// transaction. The conditional write is keyed on the status the decision was
// made against, so a concurrent transition surfaces as approval.ErrConflict.
func (s *requisitionService) commitTransition(ctx context.Context, requisition *model.Requisition, decision approval.Decision, actorID uuid.UUID, action string, reason string) error {
	change := repository.StatusChange{Next: decision.To}
	at := decision.At
	switch decision.Stamp {
	case approval.StampFinance:
		change.FinanceApprovedBy = &actorID
		change.FinanceApprovedAt = &at
	case approval.StampSuperAdmin:
		change.SuperAdminApprovedBy = &actorID
		change.SuperAdminApprovedAt = &at
	case approval.StampRejection:
		change.RejectedBy = &actorID
		change.RejectedAt = &at
		change.RejectionReason = reason
	}

	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.requisitionRepo.TransitionStatus(txCtx, requisition.ID, decision.From, change); err != nil {
			return err
		}

		details, _ := json.Marshal(map[string]interface{}{
			"from":   decision.From.String(),
			"to":     decision.To.String(),
			"stamp":  string(decision.Stamp),
			"amount": requisition.Amount.StringFixed(4),
			"reason": reason,
		})
		audit := &model.AuditLog{
			UserID:     &actorID,
			Action:     action,
			EntityID:   requisition.ID.String(),
			EntityName: requisition.Title,
			Details:    string(details),
		}
		if err := s.auditRepo.Log(txCtx, audit); err != nil {
			return fmt.Errorf("failed to write audit log: %w", err)
		}

		return nil
	})
}

func (s *requisitionService) broadcastDecision(event string, id uuid.UUID) {
	s.logger.Info("requisition transition", zap.String("event", event), zap.String("requisition_id", id.String()))
	if s.hub == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{
		"event":          event,
		"requisition_id": id.String(),
	})
	select {
	case s.hub.Broadcast <- payload:
	default:
		// No dispatcher ready; dashboards refetch on their own anyway
	}
}

func (s *requisitionService) reload(ctx context.Context, id uuid.UUID) (RequisitionResponse, error) {
	requisition, err := s.requisitionRepo.FindByIDWithRelations(ctx, id)
	if err != nil {
		return RequisitionResponse{}, fmt.Errorf("failed to reload requisition: %w", err)
	}
	return toRequisitionResponse(*requisition), nil
}

func toRequisitionResponse(r model.Requisition) RequisitionResponse {
	resp := RequisitionResponse{
		ID:              r.ID.String(),
		RequesterID:     r.RequesterID.String(),
		Title:           r.Title,
		Description:     r.Description,
		Amount:          r.Amount.StringFixed(4),
		Category:        r.Category,
		Status:          r.Status.String(),
		RejectionReason: r.RejectionReason,
		CreatedAt:       r.CreatedAt.Format(time.RFC3339),
	}

	if r.Requester != nil {
		resp.RequesterName = r.Requester.Username
	}
	if r.ProjectID != nil {
		s := r.ProjectID.String()
		resp.ProjectID = &s
	}
	if r.Project != nil {
		resp.ProjectName = r.Project.Name
	}
	if r.FinanceApprovedBy != nil {
		s := r.FinanceApprovedBy.String()
		resp.FinanceApprovedBy = &s
	}
	if r.FinanceApprover != nil {
		resp.FinanceApproverName = r.FinanceApprover.Username
	}
	if r.FinanceApprovedAt != nil {
		s := r.FinanceApprovedAt.Format(time.RFC3339)
		resp.FinanceApprovedAt = &s
	}
	if r.SuperAdminApprovedBy != nil {
		s := r.SuperAdminApprovedBy.String()
		resp.SuperAdminApprovedBy = &s
	}
	if r.SuperAdminApprover != nil {
		resp.SuperAdminApproverName = r.SuperAdminApprover.Username
	}
	if r.SuperAdminApprovedAt != nil {
		s := r.SuperAdminApprovedAt.Format(time.RFC3339)
		resp.SuperAdminApprovedAt = &s
	}
	if r.RejectedBy != nil {
		s := r.RejectedBy.String()
		resp.RejectedBy = &s
	}
	if r.Rejecter != nil {
		resp.RejecterName = r.Rejecter.Username
	}
	if r.RejectedAt != nil {
		s := r.RejectedAt.Format(time.RFC3339)
		resp.RejectedAt = &s
	}

	return resp
}
