package handler

import (
	"net/http"

	"crm-backend/internal/middleware"
	"crm-backend/internal/service"
	"crm-backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type CategoryHandler struct {
	categoryService service.CategoryService
}

func NewCategoryHandler(categoryService service.CategoryService) *CategoryHandler {
	return &CategoryHandler{categoryService: categoryService}
}

func (h *CategoryHandler) RegisterRoutes(router *gin.RouterGroup) {
	categories := router.Group("/api/categories")
	{
		categories.GET("", middleware.RequireRole("requester", "finance", "admin", "super_admin"), h.ListCategories)
		categories.POST("", middleware.RequireRole("admin", "super_admin"), h.CreateCategory)
		categories.PUT("/:id", middleware.RequireRole("admin", "super_admin"), h.UpdateCategory)
	}
}

// ListCategories returns expense categories, optionally only active ones
// @Summary      List expense categories
// @Tags         categories
// @Produce      json
// @Security     BearerAuth
// @Param        active  query  bool  false  "Only active categories"
// @Success      200  {object}  response.Response
// @Router       /api/categories [get]
func (h *CategoryHandler) ListCategories(c *gin.Context) {
	activeOnly := c.Query("active") == "true"

	categories, err := h.categoryService.ListCategories(c.Request.Context(), activeOnly)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, categories))
}

// CreateCategory creates a new expense category
// @Summary      Create an expense category
// @Tags         categories
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateCategoryRequest  true  "Category payload"
// @Success      201      {object}  response.Response{data=service.CategoryResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/categories [post]
func (h *CategoryHandler) CreateCategory(c *gin.Context) {
	userID, _ := c.Get("userID")
	userIDStr, _ := userID.(string)

	var req service.CreateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	category, err := h.categoryService.CreateCategory(c.Request.Context(), userIDStr, req)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, category))
}

// UpdateCategory updates a category's description or active flag
// @Summary      Update an expense category
// @Tags         categories
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                         true  "Category ID"
// @Param        payload  body      service.UpdateCategoryRequest  true  "Update payload"
// @Success      200      {object}  response.Response{data=service.CategoryResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/categories/{id} [put]
func (h *CategoryHandler) UpdateCategory(c *gin.Context) {
	var req service.UpdateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	category, err := h.categoryService.UpdateCategory(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, category))
}
