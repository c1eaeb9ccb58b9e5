package handler

import (
	"net/http"
	"strconv"

	"spendflow/internal/middleware"
	"spendflow/internal/service"
	"spendflow/pkg/pagination"
	"spendflow/pkg/response"

	"github.com/gin-gonic/gin"
)

type CheckoutHandler struct {
	checkoutService service.CheckoutService
	userService     service.UserService
}

func NewCheckoutHandler(checkoutService service.CheckoutService, userService service.UserService) *CheckoutHandler {
	return &CheckoutHandler{checkoutService: checkoutService, userService: userService}
}

func (h *CheckoutHandler) RegisterRoutes(router *gin.RouterGroup) {
	checkouts := router.Group("/api/inventory-requests", middleware.RequireRole())
	{
		checkouts.POST("", h.Create)
		checkouts.GET("", h.List)
		checkouts.GET("/stats", h.Stats)
		checkouts.GET("/:id", h.Get)
		checkouts.PUT("/:id", h.Update)
		checkouts.DELETE("/:id", h.Delete)
		checkouts.POST("/:id/submit", h.Submit)
		checkouts.PUT("/:id/status", h.UpdateStatus)
		checkouts.POST("/:id/return", h.RecordReturn)
	}
}

func parseCheckoutID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid checkout request id"))
		return 0, false
	}
	return uint(id), true
}

// Create opens a checkout, reserving stock for every line
func (h *CheckoutHandler) Create(c *gin.Context) {
	actor, ok := resolveActor(c, h.userService)
	if !ok {
		return
	}
	var req service.CreateCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	checkout, err := h.checkoutService.Create(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, checkout))
}

// List returns checkouts visible to the caller
func (h *CheckoutHandler) List(c *gin.Context) {
	actor, ok := resolveActor(c, h.userService)
	if !ok {
		return
	}
	params := pagination.Parse(c)
	checkouts, total, err := h.checkoutService.List(c.Request.Context(), actor, c.Query("status"), params.Page, params.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessWithPagination(http.StatusOK, checkouts, params.Page, params.Limit, total))
}

// Stats aggregates the caller's visible checkouts by status
func (h *CheckoutHandler) Stats(c *gin.Context) {
	actor, ok := resolveActor(c, h.userService)
	if !ok {
		return
	}
	stats, err := h.checkoutService.Stats(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, stats))
}

// Get returns one checkout with its lines
func (h *CheckoutHandler) Get(c *gin.Context) {
	actor, ok := resolveActor(c, h.userService)
	if !ok {
		return
	}
	id, ok := parseCheckoutID(c)
	if !ok {
		return
	}
	checkout, err := h.checkoutService.Get(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, checkout))
}

// Update edits a draft checkout, re-reserving changed lines
func (h *CheckoutHandler) Update(c *gin.Context) {
	actor, ok := resolveActor(c, h.userService)
	if !ok {
		return
	}
	id, ok := parseCheckoutID(c)
	if !ok {
		return
	}
	var req service.UpdateCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	checkout, err := h.checkoutService.Update(c.Request.Context(), actor, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, checkout))
}

// Delete removes a checkout and releases its reservations
func (h *CheckoutHandler) Delete(c *gin.Context) {
	actor, ok := resolveActor(c, h.userService)
	if !ok {
		return
	}
	id, ok := parseCheckoutID(c)
	if !ok {
		return
	}
	if err := h.checkoutService.Delete(c.Request.Context(), actor, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Checkout request deleted successfully"}))
}

// Submit moves a draft checkout into the approval flow
func (h *CheckoutHandler) Submit(c *gin.Context) {
	actor, ok := resolveActor(c, h.userService)
	if !ok {
		return
	}
	id, ok := parseCheckoutID(c)
	if !ok {
		return
	}
	checkout, err := h.checkoutService.Submit(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, checkout))
}

// UpdateStatus applies an approval or rejection decision
func (h *CheckoutHandler) UpdateStatus(c *gin.Context) {
	actor, ok := resolveActor(c, h.userService)
	if !ok {
		return
	}
	id, ok := parseCheckoutID(c)
	if !ok {
		return
	}
	var req service.UpdateCheckoutStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	checkout, err := h.checkoutService.UpdateStatus(c.Request.Context(), actor, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, checkout))
}

// RecordReturn closes an approved checkout and restores returned stock
func (h *CheckoutHandler) RecordReturn(c *gin.Context) {
	actor, ok := resolveActor(c, h.userService)
	if !ok {
		return
	}
	id, ok := parseCheckoutID(c)
	if !ok {
		return
	}
	var req service.RecordReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	checkout, err := h.checkoutService.RecordReturn(c.Request.Context(), actor, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, checkout))
}
