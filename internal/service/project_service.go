package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crm-backend/internal/model"
	"crm-backend/internal/repository"

	"github.com/google/uuid"
)

// --- DTOs ---

type CreateProjectRequest struct {
	Code        string `json:"code" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type UpdateProjectRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
}

type ProjectResponse struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

// --- Interface ---

type ProjectService interface {
	CreateProject(ctx context.Context, userID string, req CreateProjectRequest) (ProjectResponse, error)
	ListProjects(ctx context.Context, status string, page, limit int) ([]ProjectResponse, int64, error)
	UpdateProject(ctx context.Context, id string, req UpdateProjectRequest) (ProjectResponse, error)
}

type projectService struct {
	projectRepo repository.ProjectRepository
	auditRepo   repository.AuditRepository
	txManager   repository.TransactionManager
}

func NewProjectService(
	projectRepo repository.ProjectRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
) ProjectService {
	return &projectService{
		projectRepo: projectRepo,
		auditRepo:   auditRepo,
		txManager:   txManager,
	}
}

// --- Implementation ---

func (s *projectService) CreateProject(ctx context.Context, userID string, req CreateProjectRequest) (ProjectResponse, error) {
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return ProjectResponse{}, errors.New("project code is required")
	}

	if _, err := s.projectRepo.FindByCode(ctx, code); err == nil {
		return ProjectResponse{}, errors.New("project code already exists")
	}

	project := &model.Project{
		Code:        code,
		Name:        req.Name,
		Description: req.Description,
		Status:      model.ProjectStatusActive,
	}

	var actorID *uuid.UUID
	if parsed, err := uuid.Parse(userID); err == nil {
		actorID = &parsed
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if createErr := s.projectRepo.Create(txCtx, project); createErr != nil {
			return fmt.Errorf("failed to create project: %w", createErr)
		}

		audit := &model.AuditLog{
			UserID:     actorID,
			Action:     model.ActionCreateProject,
			EntityID:   project.ID.String(),
			EntityName: project.Name,
		}
		if auditErr := s.auditRepo.Log(txCtx, audit); auditErr != nil {
			return fmt.Errorf("failed to write audit log: %w", auditErr)
		}

		return nil
	})
	if err != nil {
		return ProjectResponse{}, err
	}

	return toProjectResponse(*project), nil
}

func (s *projectService) ListProjects(ctx context.Context, status string, page, limit int) ([]ProjectResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	projects, total, err := s.projectRepo.List(ctx, status, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch projects: %w", err)
	}

	result := make([]ProjectResponse, 0, len(projects))
	for _, p := range projects {
		result = append(result, toProjectResponse(p))
	}
	return result, total, nil
}

func (s *projectService) UpdateProject(ctx context.Context, id string, req UpdateProjectRequest) (ProjectResponse, error) {
	projectID, err := uuid.Parse(id)
	if err != nil {
		return ProjectResponse{}, fmt.Errorf("invalid project id: %w", err)
	}

	project, err := s.projectRepo.FindByID(ctx, projectID)
	if err != nil {
		return ProjectResponse{}, errors.New("project not found")
	}

	if req.Name != nil {
		project.Name = *req.Name
	}
	if req.Description != nil {
		project.Description = *req.Description
	}
	if req.Status != nil {
		if *req.Status != model.ProjectStatusActive && *req.Status != model.ProjectStatusArchived {
			return ProjectResponse{}, errors.New("status must be ACTIVE or ARCHIVED")
		}
		project.Status = *req.Status
	}

	if err := s.projectRepo.Update(ctx, project); err != nil {
		return ProjectResponse{}, err
	}

	return toProjectResponse(*project), nil
}

func toProjectResponse(p model.Project) ProjectResponse {
	return ProjectResponse{
		ID:          p.ID.String(),
		Code:        p.Code,
		Name:        p.Name,
		Description: p.Description,
		Status:      p.Status,
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
	}
}
