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

type CreateCategoryRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type UpdateCategoryRequest struct {
	Description *string `json:"description"`
	IsActive    *bool   `json:"is_active"`
}

type CategoryResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IsActive    bool   `json:"is_active"`
	CreatedAt   string `json:"created_at"`
}

// --- Interface ---

// CategoryService manages the expense category registry. Requisitions reference
// categories by name; the approval engine never consults this registry.
type CategoryService interface {
	CreateCategory(ctx context.Context, userID string, req CreateCategoryRequest) (CategoryResponse, error)
	ListCategories(ctx context.Context, activeOnly bool) ([]CategoryResponse, error)
	UpdateCategory(ctx context.Context, id string, req UpdateCategoryRequest) (CategoryResponse, error)
}

type categoryService struct {
	categoryRepo repository.CategoryRepository
	auditRepo    repository.AuditRepository
	txManager    repository.TransactionManager
}

func NewCategoryService(
	categoryRepo repository.CategoryRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
) CategoryService {
	return &categoryService{
		categoryRepo: categoryRepo,
		auditRepo:    auditRepo,
		txManager:    txManager,
	}
}

// --- Implementation ---

func (s *categoryService) CreateCategory(ctx context.Context, userID string, req CreateCategoryRequest) (CategoryResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return CategoryResponse{}, errors.New("category name is required")
	}

	if _, err := s.categoryRepo.FindByName(ctx, name); err == nil {
		return CategoryResponse{}, errors.New("category already exists")
	}

	category := &model.ExpenseCategory{
		Name:        name,
		Description: req.Description,
		IsActive:    true,
	}

	var actorID *uuid.UUID
	if parsed, err := uuid.Parse(userID); err == nil {
		actorID = &parsed
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if createErr := s.categoryRepo.Create(txCtx, category); createErr != nil {
			return fmt.Errorf("failed to create category: %w", createErr)
		}

		audit := &model.AuditLog{
			UserID:     actorID,
			Action:     model.ActionCreateCategory,
			EntityID:   category.ID.String(),
			EntityName: name,
		}
		if auditErr := s.auditRepo.Log(txCtx, audit); auditErr != nil {
			return fmt.Errorf("failed to write audit log: %w", auditErr)
		}

		return nil
	})
	if err != nil {
		return CategoryResponse{}, err
	}

	return toCategoryResponse(*category), nil
}

func (s *categoryService) ListCategories(ctx context.Context, activeOnly bool) ([]CategoryResponse, error) {
	categories, err := s.categoryRepo.List(ctx, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch categories: %w", err)
	}

	result := make([]CategoryResponse, 0, len(categories))
	for _, c := range categories {
		result = append(result, toCategoryResponse(c))
	}
	return result, nil
}

func (s *categoryService) UpdateCategory(ctx context.Context, id string, req UpdateCategoryRequest) (CategoryResponse, error) {
	categoryID, err := uuid.Parse(id)
	if err != nil {
		return CategoryResponse{}, fmt.Errorf("invalid category id: %w", err)
	}

	category, err := s.categoryRepo.FindByID(ctx, categoryID)
	if err != nil {
		return CategoryResponse{}, errors.New("category not found")
	}

	if req.Description != nil {
		category.Description = *req.Description
	}
	if req.IsActive != nil {
		category.IsActive = *req.IsActive
	}

	if err := s.categoryRepo.Update(ctx, category); err != nil {
		return CategoryResponse{}, err
	}

	return toCategoryResponse(*category), nil
}

func toCategoryResponse(c model.ExpenseCategory) CategoryResponse {
	return CategoryResponse{
		ID:          c.ID.String(),
		Name:        c.Name,
		Description: c.Description,
		IsActive:    c.IsActive,
		CreatedAt:   c.CreatedAt.Format(time.RFC3339),
	}
}
