package repository

import (
	"context"

	"crm-backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CategoryRepository interface {
	Create(ctx context.Context, category *model.ExpenseCategory) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.ExpenseCategory, error)
	FindByName(ctx context.Context, name string) (*model.ExpenseCategory, error)
	List(ctx context.Context, activeOnly bool) ([]model.ExpenseCategory, error)
	Update(ctx context.Context, category *model.ExpenseCategory) error
}

type categoryRepository struct {
	db *gorm.DB
}

func NewCategoryRepository(db *gorm.DB) CategoryRepository {
	return &categoryRepository{db: db}
}

func (r *categoryRepository) Create(ctx context.Context, category *model.ExpenseCategory) error {
	return GetDB(ctx, r.db).Create(category).Error
}

func (r *categoryRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.ExpenseCategory, error) {
	var category model.ExpenseCategory
	if err := GetDB(ctx, r.db).First(&category, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &category, nil
}

func (r *categoryRepository) FindByName(ctx context.Context, name string) (*model.ExpenseCategory, error) {
	var category model.ExpenseCategory
	if err := GetDB(ctx, r.db).First(&category, "name = ?", name).Error; err != nil {
		return nil, err
	}
	return &category, nil
}

func (r *categoryRepository) List(ctx context.Context, activeOnly bool) ([]model.ExpenseCategory, error) {
	var categories []model.ExpenseCategory
	query := GetDB(ctx, r.db).Order("name ASC")
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	if err := query.Find(&categories).Error; err != nil {
		return nil, err
	}
	return categories, nil
}

func (r *categoryRepository) Update(ctx context.Context, category *model.ExpenseCategory) error {
	return GetDB(ctx, r.db).Save(category).Error
}
