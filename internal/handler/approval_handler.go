package handler

import (
	"net/http"

	"spendflow/internal/middleware"
	"spendflow/internal/model"
	"spendflow/internal/service"
	"spendflow/pkg/response"

	"github.com/gin-gonic/gin"
)

type ApprovalHandler struct {
	approvalService service.ApprovalService
	userService     service.UserService
}

func NewApprovalHandler(approvalService service.ApprovalService, userService service.UserService) *ApprovalHandler {
	return &ApprovalHandler{approvalService: approvalService, userService: userService}
}

func (h *ApprovalHandler) RegisterRoutes(router *gin.RouterGroup) {
	approvals := router.Group("/api/approvals", middleware.RequireRole())
	{
		approvals.POST("/:id/approve", h.Approve)
		approvals.POST("/:id/reject", h.Reject)
		approvals.POST("/:id/select-quote", h.SelectQuote)
		approvals.POST("/:id/mark-done", h.MarkDone)
		approvals.POST("/:id/confirm-paid", h.ConfirmPaid)
		approvals.POST("/:id/transfer-funds", h.TransferFunds)
		approvals.GET("/:id/history", h.History)
	}
}

// Approve records an approval decision and advances the request
func (h *ApprovalHandler) Approve(c *gin.Context) {
	actor, ok := resolveActor(c, h.userService)
	if !ok {
		return
	}
	var body struct {
		Comment       string `json:"comment"`
		PayoutChannel string `json:"payout_channel"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
			return
		}
	}

	request, err := h.approvalService.Approve(c.Request.Context(), actor, c.Param("id"), body.Comment, body.PayoutChannel)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, request))
}

// Reject records a rejection and moves the request to its rejected state
func (h *ApprovalHandler) Reject(c *gin.Context) {
	actor, ok := resolveActor(c, h.userService)
	if !ok {
		return
	}
	// Accountants influence purchases by withholding quotes, never by
	// rejecting outright.
	if actor.Role == model.RoleAccountant {
		c.JSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Accountants cannot reject requests"))
		return
	}
	var body struct {
		Comment string `json:"comment"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
			return
		}
	}

	request, err := h.approvalService.Reject(c.Request.Context(), actor, c.Param("id"), body.Comment)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, request))
}

// SelectQuote picks a vendor quote, defaulting to the lowest total
func (h *ApprovalHandler) SelectQuote(c *gin.Context) {
	actor, ok := resolveActor(c, h.userService)
	if !ok {
		return
	}
	var body struct {
		QuoteID *uint `json:"quote_id"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
			return
		}
	}

	request, err := h.approvalService.SelectQuote(c.Request.Context(), actor, c.Param("id"), body.QuoteID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, request))
}

// MarkDone moves a processing project to DONE
func (h *ApprovalHandler) MarkDone(c *gin.Context) {
	actor, ok := resolveActor(c, h.userService)
	if !ok {
		return
	}
	request, err := h.approvalService.MarkProjectDone(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, request))
}

// ConfirmPaid records the client payment on a finished project
func (h *ApprovalHandler) ConfirmPaid(c *gin.Context) {
	actor, ok := resolveActor(c, h.userService)
	if !ok {
		return
	}
	var body struct {
		PayoutReference string `json:"payout_reference" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	request, err := h.approvalService.ConfirmClientPaid(c.Request.Context(), actor, c.Param("id"), body.PayoutReference)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, request))
}

// TransferFunds records the payout on an approved purchase (admin only)
func (h *ApprovalHandler) TransferFunds(c *gin.Context) {
	actor, ok := resolveActor(c, h.userService)
	if !ok {
		return
	}
	var body struct {
		PayoutReference string `json:"payout_reference" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	request, err := h.approvalService.TransferFunds(c.Request.Context(), actor, c.Param("id"), body.PayoutReference)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, request))
}

// History lists the approval audit trail for a request
func (h *ApprovalHandler) History(c *gin.Context) {
	actor, ok := resolveActor(c, h.userService)
	if !ok {
		return
	}
	approvals, err := h.approvalService.History(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, approvals))
}
