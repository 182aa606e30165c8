package handler

import (
	"net/http"

	"crm-backend/internal/middleware"
	"crm-backend/internal/service"
	"crm-backend/pkg/pagination"
	"crm-backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type ProjectHandler struct {
	projectService service.ProjectService
}

func NewProjectHandler(projectService service.ProjectService) *ProjectHandler {
	return &ProjectHandler{projectService: projectService}
}

func (h *ProjectHandler) RegisterRoutes(router *gin.RouterGroup) {
	projects := router.Group("/api/projects")
	{
		projects.GET("", middleware.RequireRole("requester", "finance", "admin", "super_admin"), h.ListProjects)
		projects.POST("", middleware.RequireRole("admin", "super_admin"), h.CreateProject)
		projects.PUT("/:id", middleware.RequireRole("admin", "super_admin"), h.UpdateProject)
	}
}

// ListProjects returns projects, optionally filtered by status
// @Summary      List projects
// @Tags         projects
// @Produce      json
// @Security     BearerAuth
// @Param        status  query  string  false  "Status filter (ACTIVE or ARCHIVED)"
// @Success      200  {object}  response.Response
// @Router       /api/projects [get]
func (h *ProjectHandler) ListProjects(c *gin.Context) {
	params := pagination.Parse(c)

	projects, total, err := h.projectService.ListProjects(c.Request.Context(), c.Query("status"), params.Page, params.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": http.StatusOK,
		"data":   projects,
		"total":  total,
		"page":   params.Page,
		"limit":  params.Limit,
	})
}

// CreateProject creates a new project
// @Summary      Create a project
// @Tags         projects
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateProjectRequest  true  "Project payload"
// @Success      201      {object}  response.Response{data=service.ProjectResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/projects [post]
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	userID, _ := c.Get("userID")
	userIDStr, _ := userID.(string)

	var req service.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	project, err := h.projectService.CreateProject(c.Request.Context(), userIDStr, req)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, project))
}

// UpdateProject updates a project's details or archives it
// @Summary      Update a project
// @Tags         projects
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                        true  "Project ID"
// @Param        payload  body      service.UpdateProjectRequest  true  "Update payload"
// @Success      200      {object}  response.Response{data=service.ProjectResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/projects/{id} [put]
func (h *ProjectHandler) UpdateProject(c *gin.Context) {
	var req service.UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	project, err := h.projectService.UpdateProject(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, project))
}
