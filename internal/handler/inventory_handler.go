package handler

import (
	"net/http"
	"strconv"

	"spendflow/internal/middleware"
	"spendflow/internal/model"
	"spendflow/internal/repository"
	"spendflow/internal/service"
	"spendflow/pkg/pagination"
	"spendflow/pkg/response"

	"github.com/gin-gonic/gin"
)

type InventoryHandler struct {
	inventoryService service.InventoryService
	userService      service.UserService
}

func NewInventoryHandler(inventoryService service.InventoryService, userService service.UserService) *InventoryHandler {
	return &InventoryHandler{inventoryService: inventoryService, userService: userService}
}

func (h *InventoryHandler) RegisterRoutes(router *gin.RouterGroup) {
	items := router.Group("/api/inventory", middleware.RequireRole())
	{
		items.GET("", h.ListItems)
		items.GET("/categories", h.Categories)
		items.GET("/:id", h.GetItem)
		items.GET("/:id/transactions", h.ListTransactions)

		manage := items.Group("", middleware.RequireRole(model.RoleDirectManager, model.RoleFinalManager, model.RoleAdmin))
		{
			manage.POST("", h.CreateItem)
			manage.PUT("/:id", h.UpdateItem)
			manage.POST("/:id/adjust", h.AdjustQuantity)
			manage.DELETE("/:id", h.DeleteItem)
		}
	}
}

func parseItemID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid inventory item id"))
		return 0, false
	}
	return uint(id), true
}

// ListItems lists inventory with search, category and stock filters
func (h *InventoryHandler) ListItems(c *gin.Context) {
	params := pagination.Parse(c)
	filter := repository.InventoryFilter{
		Search:     c.Query("search"),
		Category:   c.Query("category"),
		ActiveOnly: c.Query("active") == "true",
		InStock:    c.Query("in_stock") == "true",
		Page:       params.Page,
		Limit:      params.Limit,
	}

	items, total, err := h.inventoryService.ListItems(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessWithPagination(http.StatusOK, items, params.Page, params.Limit, total))
}

// Categories returns the distinct item categories
func (h *InventoryHandler) Categories(c *gin.Context) {
	categories, err := h.inventoryService.Categories(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, categories))
}

// GetItem returns one item with its recent ledger entries
func (h *InventoryHandler) GetItem(c *gin.Context) {
	id, ok := parseItemID(c)
	if !ok {
		return
	}
	item, err := h.inventoryService.GetItem(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, item))
}

// ListTransactions pages through an item's full ledger
func (h *InventoryHandler) ListTransactions(c *gin.Context) {
	id, ok := parseItemID(c)
	if !ok {
		return
	}
	params := pagination.Parse(c)
	transactions, total, err := h.inventoryService.ListTransactions(c.Request.Context(), id, params.Page, params.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessWithPagination(http.StatusOK, transactions, params.Page, params.Limit, total))
}

// CreateItem registers a new inventory item with optional initial stock
func (h *InventoryHandler) CreateItem(c *gin.Context) {
	actor, ok := resolveActor(c, h.userService)
	if !ok {
		return
	}
	var req service.CreateInventoryItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	item, err := h.inventoryService.CreateItem(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, item))
}

// UpdateItem edits item metadata
func (h *InventoryHandler) UpdateItem(c *gin.Context) {
	actor, ok := resolveActor(c, h.userService)
	if !ok {
		return
	}
	id, ok := parseItemID(c)
	if !ok {
		return
	}
	var req service.UpdateInventoryItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	item, err := h.inventoryService.UpdateItem(c.Request.Context(), actor, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, item))
}

// AdjustQuantity sets the absolute stock count with an audit reason
func (h *InventoryHandler) AdjustQuantity(c *gin.Context) {
	actor, ok := resolveActor(c, h.userService)
	if !ok {
		return
	}
	id, ok := parseItemID(c)
	if !ok {
		return
	}
	var req service.AdjustQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	item, err := h.inventoryService.AdjustQuantity(c.Request.Context(), actor, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, item))
}

// DeleteItem soft deletes an unreserved item
func (h *InventoryHandler) DeleteItem(c *gin.Context) {
	id, ok := parseItemID(c)
	if !ok {
		return
	}
	if err := h.inventoryService.DeleteItem(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Inventory item deleted successfully"}))
}
