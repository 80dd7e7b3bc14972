package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// InventoryHandler contém os handlers HTTP do estoque da fábrica e das filiais
type InventoryHandler struct {
	useCase         *InventoryUseCase
	branchInventory *BranchInventoryUseCase
	tracer          trace.Tracer
}

// NewInventoryHandler cria uma nova instância de InventoryHandler
func NewInventoryHandler(useCase *InventoryUseCase, branchInventory *BranchInventoryUseCase, tracer trace.Tracer) *InventoryHandler {
	return &InventoryHandler{
		useCase:         useCase,
		branchInventory: branchInventory,
		tracer:          tracer,
	}
}

func (h *InventoryHandler) List(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "list_inventory")
	defer span.End()

	items, err := h.useCase.ListItems(ctx)
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"inventory": items})
}

func (h *InventoryHandler) Get(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "get_inventory_item")
	defer span.End()

	span.SetAttributes(attribute.String("item_id", c.Param("id")))
	item, err := h.useCase.GetItem(ctx, c.Param("id"))
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": item})
}

func (h *InventoryHandler) Create(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "create_inventory_item")
	defer span.End()

	var req CreateInventoryItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, span, err)
		return
	}
	span.SetAttributes(attribute.String("item_name", req.Name))

	item, err := h.useCase.CreateItem(ctx, req)
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Inventory item created successfully", "item": item})
}

func (h *InventoryHandler) Update(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "update_inventory_item")
	defer span.End()

	var req UpdateInventoryItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, span, err)
		return
	}
	span.SetAttributes(attribute.String("item_id", c.Param("id")))

	item, err := h.useCase.UpdateItem(ctx, c.Param("id"), req)
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Inventory item updated successfully", "item": item})
}

func (h *InventoryHandler) Delete(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "delete_inventory_item")
	defer span.End()

	span.SetAttributes(attribute.String("item_id", c.Param("id")))
	item, err := h.useCase.DeleteItem(ctx, c.Param("id"))
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Inventory item deleted successfully", "item": item})
}

// AdjustStock aplica uma edição manual de quantidade
func (h *InventoryHandler) AdjustStock(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "adjust_stock")
	defer span.End()

	var req AdjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, span, err)
		return
	}
	span.SetAttributes(
		attribute.String("item_id", c.Param("id")),
		attribute.Int("delta", req.Delta),
	)

	item, err := h.useCase.AdjustStock(ctx, c.Param("id"), req)
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Stock updated successfully", "item": item})
}

// InitSample carrega o catálogo de exemplo
func (h *InventoryHandler) InitSample(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "init_sample_inventory")
	defer span.End()

	items, err := h.useCase.InitSampleInventory(ctx)
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Sample inventory initialized", "inventory": items})
}

func (h *InventoryHandler) Overview(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "inventory_overview")
	defer span.End()

	overview, err := h.useCase.Overview(ctx)
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"overview": overview})
}

// BranchInventory lista o estoque creditado a uma filial
func (h *InventoryHandler) BranchInventory(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "list_branch_inventory")
	defer span.End()

	branchID := c.Param("branchId")
	span.SetAttributes(attribute.String("branch_id", branchID))

	items, err := h.branchInventory.ListByBranch(ctx, branchID)
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"branchId": branchID, "inventory": items})
}
