package main

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestInventoryUseCase_CreateItem(t *testing.T) {
	// Arrange
	store := newMemoryStore()
	uc := NewInventoryUseCase(store)
	ctx := context.Background()

	// Act
	item, err := uc.CreateItem(ctx, CreateInventoryItemRequest{
		Name:          "Water Bottle 5L",
		Quantity:      40,
		Unit:          "bottles",
		MinStockLevel: intPtr(50),
		MaxStockLevel: intPtr(300),
		Price:         decimal.RequireFromString("350.00"),
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, StockStatusLowStock, item.Status)
	assert.Equal(t, 1, item.Version)
	require.Len(t, store.movements(), 1)
	assert.Equal(t, MovementTypeRestocked, store.movements()[0].MovementType)

	_, err = uc.CreateItem(ctx, CreateInventoryItemRequest{Name: "Water Bottle 5L", Quantity: 1})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestInventoryUseCase_CreateItem_Validation(t *testing.T) {
	uc := NewInventoryUseCase(newMemoryStore())

	_, err := uc.CreateItem(context.Background(), CreateInventoryItemRequest{
		Name:          " ",
		Quantity:      -1,
		MinStockLevel: intPtr(20),
		MaxStockLevel: intPtr(10),
		Price:         decimal.NewFromInt(-5),
	})

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Len(t, vErr.Errors, 4)
}

func TestInventoryUseCase_AdjustStock(t *testing.T) {
	store := newMemoryStore()
	uc := NewInventoryUseCase(store)
	item := seedItem(store, "Filter-A", 10)
	ctx := context.Background()

	updated, err := uc.AdjustStock(ctx, item.ID, AdjustStockRequest{Delta: 15, Reason: "production run"})
	require.NoError(t, err)
	assert.Equal(t, 25, updated.Quantity)
	assert.Equal(t, 2, updated.Version)

	_, err = uc.AdjustStock(ctx, item.ID, AdjustStockRequest{Delta: -30})
	var sErr *InsufficientStockError
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, 25, sErr.Available)
	assert.Equal(t, 25, store.itemQuantity("Filter-A"))

	updated, err = uc.AdjustStock(ctx, item.ID, AdjustStockRequest{Delta: -25, Reason: "damaged"})
	require.NoError(t, err)
	assert.Equal(t, StockStatusOutOfStock, updated.Status)

	movements := store.movements()
	require.Len(t, movements, 2)
	assert.Equal(t, MovementTypeRestocked, movements[0].MovementType)
	assert.Equal(t, MovementTypeAdjusted, movements[1].MovementType)
	assert.Equal(t, "damaged", movements[1].Reason)

	_, err = uc.AdjustStock(ctx, item.ID, AdjustStockRequest{Delta: 0})
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestInventoryUseCase_UpdateItem(t *testing.T) {
	store := newMemoryStore()
	uc := NewInventoryUseCase(store)
	item := seedItem(store, "Filter-A", 10)
	ctx := context.Background()

	price := decimal.RequireFromString("2600.00")
	updated, err := uc.UpdateItem(ctx, item.ID, UpdateInventoryItemRequest{Price: &price, Version: 1})
	require.NoError(t, err)
	assert.True(t, price.Equal(updated.Price))
	assert.Equal(t, 10, updated.Quantity)

	_, err = uc.UpdateItem(ctx, item.ID, UpdateInventoryItemRequest{Price: &price, Version: 1})
	assert.ErrorIs(t, err, ErrConflict, "stale version")

	seedOrder(store, OrderStatusAccepted, OrderItem{ItemName: "Filter-A", Quantity: 1})
	name := "Filter-B"
	_, err = uc.UpdateItem(ctx, item.ID, UpdateInventoryItemRequest{Name: &name})
	assert.ErrorIs(t, err, ErrConflict, "rename while referenced")
}

func TestInventoryUseCase_DeleteItem(t *testing.T) {
	store := newMemoryStore()
	uc := NewInventoryUseCase(store)
	referenced := seedItem(store, "Filter-A", 10)
	free := seedItem(store, "UV Cartridge", 2)
	seedOrder(store, OrderStatusPending, OrderItem{ItemName: "Filter-A", Quantity: 1})
	seedOrder(store, OrderStatusDelivered, OrderItem{ItemName: "UV Cartridge", Quantity: 1})
	ctx := context.Background()

	_, err := uc.DeleteItem(ctx, referenced.ID)
	assert.ErrorIs(t, err, ErrConflict)

	deleted, err := uc.DeleteItem(ctx, free.ID)
	require.NoError(t, err)
	assert.Equal(t, "UV Cartridge", deleted.Name)

	_, err = uc.GetItem(ctx, free.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInventoryUseCase_InitSampleInventory(t *testing.T) {
	store := newMemoryStore()
	uc := NewInventoryUseCase(store)
	seedItem(store, "Filter-A", 1)

	created, err := uc.InitSampleInventory(context.Background())

	require.NoError(t, err)
	assert.Len(t, created, len(sampleInventory)-1)
	items, _ := uc.ListItems(context.Background())
	assert.Len(t, items, len(sampleInventory))
	assert.Equal(t, 1, store.itemQuantity("Filter-A"))
}

func TestInventoryUseCase_Overview(t *testing.T) {
	store := newMemoryStore()
	uc := NewInventoryUseCase(store)
	seedItem(store, "A", 500)
	seedItem(store, "B", 5)
	seedItem(store, "C", 0)

	overview, err := uc.Overview(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, overview.TotalItems)
	assert.Equal(t, 1, overview.InStockItems)
	assert.Equal(t, 1, overview.LowStockItems)
	assert.Equal(t, 1, overview.OutOfStockItems)
	assert.Equal(t, 505, overview.TotalUnits)
	assert.Equal(t, "50500", overview.TotalStockValue.String())
	assert.Equal(t, "16.8", overview.UtilizationPercent.String())
}

func TestBranchInventoryUseCase_CreditOnDelivery_Once(t *testing.T) {
	store := newMemoryStore()
	uc := NewBranchInventoryUseCase(store)
	ctx := context.Background()
	req := BranchCreditRequest{OrderID: "order-1", BranchID: "BR003", BranchName: "Colombo", ItemName: "Filter-A", Quantity: 5}

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	update, err := uc.CreditOnDelivery(ctx, tx, req)
	require.NoError(t, err)
	assert.Equal(t, 5, *update.NewTotalQuantity)

	_, err = uc.CreditOnDelivery(ctx, tx, req)
	assert.ErrorIs(t, err, errAlreadyCredited)

	req.OrderID = "order-2"
	update, err = uc.CreditOnDelivery(ctx, tx, req)
	require.NoError(t, err)
	assert.Equal(t, 5, update.PreviousQuantity)
	assert.Equal(t, 10, *update.NewTotalQuantity)
	require.NoError(t, tx.Commit())

	items, err := uc.ListByBranch(ctx, "BR003")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 10, items[0].Quantity)
	assert.Equal(t, 2, items[0].Version)
}
