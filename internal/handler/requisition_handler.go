package handler

import (
	"errors"
	"net/http"

	"crm-backend/internal/approval"
	"crm-backend/internal/middleware"
	"crm-backend/internal/service"
	"crm-backend/pkg/pagination"
	"crm-backend/pkg/response"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type RequisitionHandler struct {
	requisitionService service.RequisitionService
}

func NewRequisitionHandler(requisitionService service.RequisitionService) *RequisitionHandler {
	return &RequisitionHandler{requisitionService: requisitionService}
}

func (h *RequisitionHandler) RegisterRoutes(router *gin.RouterGroup) {
	requisitions := router.Group("/api/requisitions")
	requisitions.Use(middleware.RequireRole("requester", "finance", "admin", "super_admin"))
	{
		requisitions.GET("", h.ListRequisitions)
		requisitions.POST("", h.SubmitRequisition)
		requisitions.GET("/:id", h.GetRequisition)
		requisitions.GET("/:id/eligibility", h.GetEligibility)
		requisitions.PUT("/:id/approve", h.ApproveRequisition)
		requisitions.PUT("/:id/reject", h.RejectRequisition)
	}
}

// transitionStatusCode maps the engine's error taxonomy to HTTP codes
func transitionStatusCode(err error) int {
	var validationErr *approval.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.Is(err, approval.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, approval.ErrInvalidState), errors.Is(err, approval.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

// SubmitRequisition creates a new expense requisition in PENDING status
// @Summary      Submit a requisition
// @Description  Creates a new expense requisition owned by the authenticated user
// @Tags         requisitions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.SubmitRequisitionRequest  true  "Requisition payload"
// @Success      201      {object}  response.Response{data=service.RequisitionResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/requisitions [post]
func (h *RequisitionHandler) SubmitRequisition(c *gin.Context) {
	userID, _ := c.Get("userID")
	userIDStr, _ := userID.(string)

	var req service.SubmitRequisitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.requisitionService.Submit(c.Request.Context(), userIDStr, req)
	if err != nil {
		c.JSON(transitionStatusCode(err), response.Error(transitionStatusCode(err), err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, result))
}

// ListRequisitions returns requisitions, optionally filtered by status or requester
// @Summary      List requisitions
// @Tags         requisitions
// @Produce      json
// @Security     BearerAuth
// @Param        status        query  string  false  "Status filter"
// @Param        requester_id  query  string  false  "Requester filter"
// @Success      200  {object}  response.Response
// @Router       /api/requisitions [get]
func (h *RequisitionHandler) ListRequisitions(c *gin.Context) {
	params := pagination.Parse(c)

	filter := service.RequisitionFilter{
		Status:      c.Query("status"),
		RequesterID: c.Query("requester_id"),
		Page:        params.Page,
		Limit:       params.Limit,
	}

	requisitions, total, err := h.requisitionService.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": http.StatusOK,
		"data":   requisitions,
		"total":  total,
		"page":   params.Page,
		"limit":  params.Limit,
	})
}

// GetRequisition returns one requisition with its audit stamps
// @Summary      Get a requisition
// @Tags         requisitions
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Requisition ID"
// @Success      200  {object}  response.Response{data=service.RequisitionResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/requisitions/{id} [get]
func (h *RequisitionHandler) GetRequisition(c *gin.Context) {
	result, err := h.requisitionService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		code := transitionStatusCode(err)
		c.JSON(code, response.Error(code, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// GetEligibility reports which transitions the caller may perform on a requisition
// @Summary      Check approval eligibility
// @Description  Mirrors exactly what approve/reject would accept for the caller
// @Tags         requisitions
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Requisition ID"
// @Success      200  {object}  response.Response{data=service.EligibilityResponse}
// @Router       /api/requisitions/{id}/eligibility [get]
func (h *RequisitionHandler) GetEligibility(c *gin.Context) {
	userID, _ := c.Get("userID")
	userIDStr, _ := userID.(string)

	result, err := h.requisitionService.Eligibility(c.Request.Context(), c.Param("id"), userIDStr)
	if err != nil {
		code := transitionStatusCode(err)
		c.JSON(code, response.Error(code, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// ApproveRequisition advances a requisition through its approval stages
// @Summary      Approve a requisition
// @Description  First-stage approval by finance/admin, final approval by super admin
// @Tags         requisitions
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Requisition ID"
// @Success      200  {object}  response.Response{data=service.RequisitionResponse}
// @Failure      403  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/requisitions/{id}/approve [put]
func (h *RequisitionHandler) ApproveRequisition(c *gin.Context) {
	userID, _ := c.Get("userID")
	userIDStr, _ := userID.(string)

	result, err := h.requisitionService.Approve(c.Request.Context(), c.Param("id"), userIDStr)
	if err != nil {
		code := transitionStatusCode(err)
		c.JSON(code, response.Error(code, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// RejectRequisition rejects a requisition with a mandatory reason
// @Summary      Reject a requisition
// @Tags         requisitions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                            true  "Requisition ID"
// @Param        payload  body      service.RejectRequisitionRequest  true  "Rejection reason"
// @Success      200      {object}  response.Response{data=service.RequisitionResponse}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/requisitions/{id}/reject [put]
func (h *RequisitionHandler) RejectRequisition(c *gin.Context) {
	userID, _ := c.Get("userID")
	userIDStr, _ := userID.(string)

	var req service.RejectRequisitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// Empty body surfaces as an empty reason, which the engine refuses
		req.Reason = ""
	}

	result, err := h.requisitionService.Reject(c.Request.Context(), c.Param("id"), userIDStr, req.Reason)
	if err != nil {
		code := transitionStatusCode(err)
		c.JSON(code, response.Error(code, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}
