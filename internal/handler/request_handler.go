package handler

import (
	"net/http"

	"portal/internal/middleware"
	"portal/internal/service"
	"portal/pkg/response"

	"github.com/gin-gonic/gin"
)

// RequestHandler serves the requester side: submission, progress, resubmission, cancellation.
type RequestHandler struct {
	approvalService service.ApprovalService
	secret          []byte
}

func NewRequestHandler(approvalService service.ApprovalService, secret []byte) *RequestHandler {
	return &RequestHandler{approvalService: approvalService, secret: secret}
}

func (h *RequestHandler) RegisterRoutes(router *gin.RouterGroup) {
	requests := router.Group("/api/requests", middleware.Authenticate(h.secret))
	{
		requests.POST("/equipment", h.SubmitEquipment)
		requests.POST("/activity-plans", h.SubmitActivityPlan)
		requests.POST("/budget", h.SubmitBudgetRequest)
		requests.GET("/equipment/:id/stock", h.CheckStock)
		requests.GET("/:type/:id/stages", h.GetRequestStages)
		requests.PUT("/:type/:id/resubmit", h.Resubmit)
		requests.PUT("/:type/:id/cancel", h.Cancel)
	}
}

// SubmitEquipment godoc
// @Summary      Submit equipment loan request
// @Description  Creates an equipment request, reserves its items and opens the first approval stage. The response carries an advisory stock report.
// @Tags         requests
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.SubmitEquipmentRequest  true  "Equipment request"
// @Success      201      {object}  response.Response{data=service.SubmissionResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/requests/equipment [post]
func (h *RequestHandler) SubmitEquipment(c *gin.Context) {
	var req service.SubmitEquipmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.approvalService.SubmitEquipment(c.Request.Context(), middleware.CurrentUser(c).UserID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, result))
}

// SubmitActivityPlan godoc
// @Summary      Submit activity plan
// @Tags         requests
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.SubmitActivityPlanRequest  true  "Activity plan"
// @Success      201      {object}  response.Response{data=service.SubmissionResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/requests/activity-plans [post]
func (h *RequestHandler) SubmitActivityPlan(c *gin.Context) {
	var req service.SubmitActivityPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.approvalService.SubmitActivityPlan(c.Request.Context(), middleware.CurrentUser(c).UserID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, result))
}

// SubmitBudgetRequest godoc
// @Summary      Submit budget request
// @Tags         requests
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.SubmitBudgetRequest  true  "Budget request"
// @Success      201      {object}  response.Response{data=service.SubmissionResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/requests/budget [post]
func (h *RequestHandler) SubmitBudgetRequest(c *gin.Context) {
	var req service.SubmitBudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.approvalService.SubmitBudgetRequest(c.Request.Context(), middleware.CurrentUser(c).UserID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, result))
}

// GetRequestStages godoc
// @Summary      Get request progress
// @Description  Returns the chain, every stage row and the audit history of a request
// @Tags         requests
// @Security     BearerAuth
// @Produce      json
// @Param        type  path      string  true  "equipment, activity_plan or budget_request"
// @Param        id    path      string  true  "Request ID"
// @Success      200   {object}  response.Response{data=service.RequestProgressResponse}
// @Failure      404   {object}  response.Response
// @Router       /api/requests/{type}/{id}/stages [get]
func (h *RequestHandler) GetRequestStages(c *gin.Context) {
	result, err := h.approvalService.GetRequestProgress(c.Request.Context(), c.Param("type"), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// Resubmit godoc
// @Summary      Resubmit a request under revision
// @Description  Applies the owner's edits and restarts the chain at its first role
// @Tags         requests
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        type     path      string                   true  "Request type"
// @Param        id       path      string                   true  "Request ID"
// @Param        payload  body      service.ResubmitRequest  false "Edits"
// @Success      200      {object}  response.Response{data=service.RequestProgressResponse}
// @Failure      403      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/requests/{type}/{id}/resubmit [put]
func (h *RequestHandler) Resubmit(c *gin.Context) {
	var req service.ResubmitRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	result, err := h.approvalService.Resubmit(c.Request.Context(), c.Param("type"), c.Param("id"), middleware.CurrentUser(c).UserID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// Cancel godoc
// @Summary      Cancel a request
// @Tags         requests
// @Security     BearerAuth
// @Produce      json
// @Param        type  path      string  true  "Request type"
// @Param        id    path      string  true  "Request ID"
// @Success      200   {object}  response.Response{data=service.RequestProgressResponse}
// @Failure      409   {object}  response.Response
// @Router       /api/requests/{type}/{id}/cancel [put]
func (h *RequestHandler) Cancel(c *gin.Context) {
	result, err := h.approvalService.Cancel(c.Request.Context(), c.Param("type"), c.Param("id"), middleware.CurrentUser(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// CheckStock godoc
// @Summary      Check equipment availability
// @Description  Evaluates the request's items against every other active reservation in its window
// @Tags         requests
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Equipment request ID"
// @Success      200  {object}  response.Response{data=service.StockReport}
// @Failure      404  {object}  response.Response
// @Router       /api/requests/equipment/{id}/stock [get]
func (h *RequestHandler) CheckStock(c *gin.Context) {
	result, err := h.approvalService.CheckStock(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}
