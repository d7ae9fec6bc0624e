package handler

import (
	"net/http"

	"portal/internal/middleware"
	"portal/internal/service"
	"portal/internal/workflow"
	"portal/pkg/pagination"
	"portal/pkg/response"

	"github.com/gin-gonic/gin"
)

// ApprovalHandler serves the approver side. Every route requires a role that appears in
// some chain; whether it is the right role for a given stage is the service's call.
type ApprovalHandler struct {
	approvalService service.ApprovalService
	secret          []byte
}

func NewApprovalHandler(approvalService service.ApprovalService, secret []byte) *ApprovalHandler {
	return &ApprovalHandler{approvalService: approvalService, secret: secret}
}

func (h *ApprovalHandler) RegisterRoutes(router *gin.RouterGroup) {
	approvals := router.Group("/api/approvals", middleware.RequireRole(h.secret, workflow.ApproverRoles()...))
	{
		approvals.GET("/stages", h.ListPendingStages)
		approvals.POST("/stages/batch-approve", h.BatchApprove)
		approvals.PUT("/stages/:id/approve", h.Approve)
		approvals.PUT("/stages/:id/revision", h.RequestRevision)
		approvals.PUT("/stages/:id/viewed", h.MarkViewed)
	}
}

// ListPendingStages godoc
// @Summary      List pending stages for the caller's role
// @Tags         approvals
// @Security     BearerAuth
// @Produce      json
// @Param        page   query     int  false  "Page number (default 1)"
// @Param        limit  query     int  false  "Number of items per page (default 20)"
// @Success      200    {object}  response.Response{data=response.Page}
// @Failure      403    {object}  response.Response
// @Router       /api/approvals/stages [get]
func (h *ApprovalHandler) ListPendingStages(c *gin.Context) {
	p := pagination.Parse(c)

	stages, total, err := h.approvalService.ListPendingStages(c.Request.Context(), middleware.CurrentUser(c).Role, p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, p.Wrap(stages, total)))
}

// Approve godoc
// @Summary      Approve a stage
// @Description  Approves the caller's stage and advances the request. Equipment requests are checked against stock first; a shortage returns 422 with the conflict report.
// @Tags         approvals
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Stage ID"
// @Success      200  {object}  response.Response{data=service.StageResponse}
// @Failure      403  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Failure      422  {object}  response.Response{details=service.StockReport}
// @Router       /api/approvals/stages/{id}/approve [put]
func (h *ApprovalHandler) Approve(c *gin.Context) {
	user := middleware.CurrentUser(c)

	result, err := h.approvalService.Approve(c.Request.Context(), c.Param("id"), user.Role, user.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// RequestRevision godoc
// @Summary      Send a request back for revision
// @Tags         approvals
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                      true  "Stage ID"
// @Param        payload  body      service.RevisionRequestDTO  true  "Remarks"
// @Success      200      {object}  response.Response{data=service.StageResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/approvals/stages/{id}/revision [put]
func (h *ApprovalHandler) RequestRevision(c *gin.Context) {
	var req service.RevisionRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	user := middleware.CurrentUser(c)

	result, err := h.approvalService.RequestRevision(c.Request.Context(), c.Param("id"), user.Role, user.UserID, req.Remarks)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// MarkViewed godoc
// @Summary      Mark a stage as viewed
// @Tags         approvals
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Stage ID"
// @Success      200  {object}  response.Response{data=service.StageResponse}
// @Router       /api/approvals/stages/{id}/viewed [put]
func (h *ApprovalHandler) MarkViewed(c *gin.Context) {
	result, err := h.approvalService.MarkViewed(c.Request.Context(), c.Param("id"), middleware.CurrentUser(c).Role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// BatchApprove godoc
// @Summary      Approve several stages
// @Description  Each stage succeeds or fails on its own; failures are listed with their reason
// @Tags         approvals
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.BatchApproveRequest  true  "Stage IDs"
// @Success      200      {object}  response.Response{data=service.BatchResult}
// @Failure      400      {object}  response.Response
// @Router       /api/approvals/stages/batch-approve [post]
func (h *ApprovalHandler) BatchApprove(c *gin.Context) {
	var req service.BatchApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	user := middleware.CurrentUser(c)

	result, err := h.approvalService.BatchApprove(c.Request.Context(), req.StageIDs, user.Role, user.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}
