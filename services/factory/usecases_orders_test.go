package main

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrderFixture() (*memoryStore, *OrderUseCase) {
	store := newMemoryStore()
	inventory := NewInventoryUseCase(store)
	branch := NewBranchInventoryUseCase(store)
	return store, NewOrderUseCase(store, store, inventory, branch)
}

func validDraft(items ...OrderItemDraft) OrderDraft {
	return OrderDraft{
		BranchName:           "Colombo Branch",
		BranchLocation:       "Colombo 07",
		BranchID:             "BR003",
		Items:                items,
		ExpectedDeliveryDate: time.Now().Add(72 * time.Hour).Format("2006-01-02"),
		ContactPerson:        "Nimal",
		ContactPhone:         "0771234567",
	}
}

func draftItem(name, quantity string) OrderItemDraft {
	return OrderItemDraft{ItemName: name, Quantity: json.RawMessage(quantity)}
}

func TestOrderUseCase_Submit(t *testing.T) {
	// Arrange
	store, uc := newOrderFixture()
	seedItem(store, "Water Bottle 1L", 100)
	ctx := context.Background()

	// Act
	order, err := uc.Submit(ctx, validDraft(draftItem("Water Bottle 1L", `"25"`)))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, OrderStatusPending, order.Status)
	assert.Equal(t, OrderPriorityNormal, order.Priority)
	assert.Equal(t, []OrderItem{{ItemName: "Water Bottle 1L", Quantity: 25}}, order.Items)
	assert.Equal(t, 100, store.itemQuantity("Water Bottle 1L"), "submit must not touch stock")

	stored, err := uc.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.OrderNumber, stored.OrderNumber)
}

func TestOrderUseCase_Submit_Validation(t *testing.T) {
	store, uc := newOrderFixture()
	seedItem(store, "Filter-A", 10)
	ctx := context.Background()

	t.Run("missing top level fields", func(t *testing.T) {
		draft := validDraft(draftItem("Filter-A", "1"))
		draft.ContactPhone = ""
		draft.BranchID = " "

		_, err := uc.Submit(ctx, draft)

		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "All required fields must be provided", vErr.Message)
		assert.ElementsMatch(t, []string{"branchId is required", "contactPhone is required"}, vErr.Errors)
	})

	t.Run("empty items", func(t *testing.T) {
		draft := validDraft()
		draft.Items = []OrderItemDraft{}

		_, err := uc.Submit(ctx, draft)

		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "At least one item must be specified", vErr.Message)
	})

	t.Run("missing items", func(t *testing.T) {
		draft := validDraft()
		draft.Items = nil

		_, err := uc.Submit(ctx, draft)

		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "All required fields must be provided", vErr.Message)
		assert.Equal(t, []string{"items is required"}, vErr.Errors)
	})

	t.Run("insufficient stock", func(t *testing.T) {
		_, err := uc.Submit(ctx, validDraft(draftItem("Filter-A", "12")))

		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "Validation failed", vErr.Message)
		assert.Equal(t, []string{"Insufficient stock for Filter-A. Available: 10, Requested: 12"}, vErr.Errors)
	})

	t.Run("collects every problem", func(t *testing.T) {
		draft := validDraft(
			draftItem("Unknown Item", "3"),
			draftItem("Filter-A", "0"),
			draftItem("Filter-A", `"abc"`),
			draftItem("", "2"),
		)
		draft.Priority = "Critical"

		_, err := uc.Submit(ctx, draft)

		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Len(t, vErr.Errors, 5)
		assert.Contains(t, vErr.Errors, `Item "Unknown Item" not found in inventory. Please add it to inventory first.`)
		assert.Contains(t, vErr.Errors, "Item Filter-A is missing required fields")
		assert.Contains(t, vErr.Errors, "Invalid quantity for Filter-A: must be a positive number")
		assert.Contains(t, vErr.Errors, "Item Unknown is missing required fields")
	})

	orders, err := uc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		raw     string
		qty     int
		present bool
		valid   bool
	}{
		{`5`, 5, true, true},
		{`"7"`, 7, true, true},
		{`0`, 0, false, false},
		{`""`, 0, false, false},
		{`null`, 0, false, false},
		{``, 0, false, false},
		{`-2`, 0, true, false},
		{`1.5`, 0, true, false},
		{`"x"`, 0, true, false},
	}
	for _, tt := range tests {
		qty, present, valid := parseQuantity(json.RawMessage(tt.raw))
		assert.Equal(t, tt.qty, qty, tt.raw)
		assert.Equal(t, tt.present, present, tt.raw)
		assert.Equal(t, tt.valid, valid, tt.raw)
	}
}

func TestOrderUseCase_Accept(t *testing.T) {
	// Arrange
	store, uc := newOrderFixture()
	seedItem(store, "Water Bottle 1L", 100)
	seedItem(store, "Filter-A", 20)
	order := seedOrder(store, OrderStatusPending,
		OrderItem{ItemName: "Water Bottle 1L", Quantity: 30},
		OrderItem{ItemName: "Filter-A", Quantity: 5},
		OrderItem{ItemName: "Water Bottle 1L", Quantity: 10},
	)

	// Act
	result, err := uc.Accept(context.Background(), order.ID, "Sunil")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, OrderStatusAccepted, result.Order.Status)
	assert.Equal(t, "Sunil", result.Order.AcceptedBy)
	require.NotNil(t, result.Order.AcceptedDate)
	require.Len(t, result.InventoryUpdates, 2)
	assert.Equal(t, "Water Bottle 1L", result.InventoryUpdates[0].ItemName)
	assert.Equal(t, 40, result.InventoryUpdates[0].QuantityReserved)
	assert.Equal(t, 100, result.InventoryUpdates[0].PreviousQuantity)
	assert.Equal(t, 60, *result.InventoryUpdates[0].NewFactoryQuantity)
	assert.Equal(t, 60, store.itemQuantity("Water Bottle 1L"))
	assert.Equal(t, 15, store.itemQuantity("Filter-A"))

	movements := store.movements()
	require.Len(t, movements, 2)
	for _, m := range movements {
		assert.Equal(t, MovementTypeReserved, m.MovementType)
		assert.Equal(t, order.ID, m.OrderID)
	}
}

func TestOrderUseCase_Accept_DefaultActor(t *testing.T) {
	store, uc := newOrderFixture()
	seedItem(store, "Filter-A", 20)
	order := seedOrder(store, OrderStatusPending, OrderItem{ItemName: "Filter-A", Quantity: 1})

	result, err := uc.Accept(context.Background(), order.ID, "")

	require.NoError(t, err)
	assert.Equal(t, "Factory Manager", result.Order.AcceptedBy)
}

func TestOrderUseCase_Accept_NotPending(t *testing.T) {
	store, uc := newOrderFixture()
	seedItem(store, "Filter-A", 20)
	order := seedOrder(store, OrderStatusShipped, OrderItem{ItemName: "Filter-A", Quantity: 5})

	_, err := uc.Accept(context.Background(), order.ID, "Sunil")

	var tErr *InvalidTransitionError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, OrderStatusShipped, tErr.Current)
	assert.Equal(t, "Order cannot be accepted. Current status: Shipped", tErr.Error())
	assert.Equal(t, 20, store.itemQuantity("Filter-A"))
	assert.Empty(t, store.movements())
}

func TestOrderUseCase_Accept_NotFound(t *testing.T) {
	_, uc := newOrderFixture()

	_, err := uc.Accept(context.Background(), "missing", "Sunil")

	assert.ErrorIs(t, err, ErrNotFound)
	assert.EqualError(t, err, "Order not found")
}

func TestOrderUseCase_Accept_AllOrNothing(t *testing.T) {
	// Arrange
	store, uc := newOrderFixture()
	seedItem(store, "Water Bottle 1L", 100)
	seedItem(store, "Filter-A", 3)
	order := seedOrder(store, OrderStatusPending,
		OrderItem{ItemName: "Water Bottle 1L", Quantity: 10},
		OrderItem{ItemName: "Filter-A", Quantity: 5},
		OrderItem{ItemName: "UV Cartridge", Quantity: 1},
	)

	// Act
	_, err := uc.Accept(context.Background(), order.ID, "Sunil")

	// Assert
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "Cannot accept order due to inventory issues", vErr.Message)
	assert.Equal(t, []string{
		"Insufficient stock for Filter-A. Available: 3, Required: 5",
		`Item "UV Cartridge" not found in factory inventory`,
	}, vErr.Errors)
	assert.Equal(t, 100, store.itemQuantity("Water Bottle 1L"), "sufficient line must stay untouched")
	assert.Equal(t, 3, store.itemQuantity("Filter-A"))

	stored, err := uc.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusPending, stored.Status)
}

func TestOrderUseCase_Accept_RollsBackOnWriteFailure(t *testing.T) {
	store, uc := newOrderFixture()
	seedItem(store, "Filter-A", 50)
	seedItem(store, "Water Bottle 1L", 50)
	store.failInventoryUpdate = "Water Bottle 1L"
	order := seedOrder(store, OrderStatusPending,
		OrderItem{ItemName: "Filter-A", Quantity: 5},
		OrderItem{ItemName: "Water Bottle 1L", Quantity: 5},
	)

	_, err := uc.Accept(context.Background(), order.ID, "Sunil")

	require.Error(t, err)
	assert.Equal(t, 50, store.itemQuantity("Filter-A"))
	assert.Equal(t, 50, store.itemQuantity("Water Bottle 1L"))
	assert.Empty(t, store.movements())
}

func TestOrderUseCase_Accept_Concurrent(t *testing.T) {
	// Arrange
	store, uc := newOrderFixture()
	seedItem(store, "Water Can 19L", 10)
	first := seedOrder(store, OrderStatusPending, OrderItem{ItemName: "Water Can 19L", Quantity: 7})
	second := seedOrder(store, OrderStatusPending, OrderItem{ItemName: "Water Can 19L", Quantity: 7})

	// Act
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{first.ID, second.ID} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = uc.Accept(context.Background(), id, "Sunil")
		}(i, id)
	}
	wg.Wait()

	// Assert
	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var vErr *ValidationError
		assert.ErrorAs(t, err, &vErr)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 3, store.itemQuantity("Water Can 19L"))
}

func TestOrderUseCase_Accept_SameOrderTwice(t *testing.T) {
	store, uc := newOrderFixture()
	seedItem(store, "Filter-A", 30)
	order := seedOrder(store, OrderStatusPending, OrderItem{ItemName: "Filter-A", Quantity: 10})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = uc.Accept(context.Background(), order.ID, "Sunil")
		}(i)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		var tErr *InvalidTransitionError
		if errors.As(err, &tErr) {
			failures++
		}
	}
	assert.Equal(t, 1, failures)
	assert.Equal(t, 20, store.itemQuantity("Filter-A"))
}

func TestOrderUseCase_FullLifecycle(t *testing.T) {
	// Arrange
	store, uc := newOrderFixture()
	ctx := context.Background()
	seedItem(store, "Water Bottle 1L", 100)
	order, err := uc.Submit(ctx, validDraft(draftItem("Water Bottle 1L", "5")))
	require.NoError(t, err)

	// Act
	_, err = uc.Accept(ctx, order.ID, "Sunil")
	require.NoError(t, err)
	shipped, err := uc.SetStatus(ctx, order.ID, "Shipped", "Sunil")
	require.NoError(t, err)
	delivered, err := uc.SetStatus(ctx, order.ID, "Delivered", "Sunil")
	require.NoError(t, err)

	// Assert
	assert.Empty(t, shipped.InventoryUpdates, "Accepted -> Shipped does not decrement again")
	assert.Equal(t, 95, store.itemQuantity("Water Bottle 1L"))

	require.Len(t, delivered.InventoryUpdates, 1)
	assert.Equal(t, 5, delivered.InventoryUpdates[0].QuantityAdded)
	assert.Equal(t, 0, delivered.InventoryUpdates[0].PreviousQuantity)

	branch, err := store.ListBranchInventory(ctx, "BR003")
	require.NoError(t, err)
	require.Len(t, branch, 1)
	assert.Equal(t, 5, branch[0].Quantity)
	assert.Equal(t, "bottles", branch[0].Unit)
	assert.Equal(t, 10, branch[0].MinStockLevel)
	assert.Equal(t, 1000, branch[0].MaxStockLevel)
	assert.Equal(t, "Colombo Branch", branch[0].BranchName)

	_, err = uc.SetStatus(ctx, order.ID, "Delivered", "Sunil")
	var tErr *InvalidTransitionError
	require.ErrorAs(t, err, &tErr)
	branch, _ = store.ListBranchInventory(ctx, "BR003")
	assert.Equal(t, 5, branch[0].Quantity, "a second delivery must not credit again")
}

func TestOrderUseCase_SetStatus_ShipFromPending(t *testing.T) {
	store, uc := newOrderFixture()
	seedItem(store, "Filter-A", 10)
	order := seedOrder(store, OrderStatusProcessing, OrderItem{ItemName: "Filter-A", Quantity: 4})

	result, err := uc.SetStatus(context.Background(), order.ID, "Shipped", "")

	require.NoError(t, err)
	assert.Equal(t, OrderStatusShipped, result.Order.Status)
	require.Len(t, result.InventoryUpdates, 1)
	assert.Equal(t, 4, result.InventoryUpdates[0].QuantityReduced)
	assert.Equal(t, 6, store.itemQuantity("Filter-A"))
	assert.Equal(t, MovementTypeShipped, store.movements()[0].MovementType)
}

func TestOrderUseCase_SetStatus_ShipInsufficient(t *testing.T) {
	store, uc := newOrderFixture()
	seedItem(store, "Filter-A", 10)
	order := seedOrder(store, OrderStatusPending, OrderItem{ItemName: "Filter-A", Quantity: 12})

	_, err := uc.SetStatus(context.Background(), order.ID, "Shipped", "")

	var sErr *InsufficientStockError
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, "Insufficient stock for Filter-A. Available: 10, Requested: 12", sErr.Error())
	assert.Equal(t, 10, store.itemQuantity("Filter-A"))

	stored, _ := uc.Get(context.Background(), order.ID)
	assert.Equal(t, OrderStatusPending, stored.Status)
}

func TestOrderUseCase_SetStatus_ShipMissingItem(t *testing.T) {
	// Arrange
	store, uc := newOrderFixture()
	seedItem(store, "Filter-A", 10)
	order := seedOrder(store, OrderStatusPending,
		OrderItem{ItemName: "Filter-A", Quantity: 2},
		OrderItem{ItemName: "Filter-Z", Quantity: 1})

	// Act
	_, err := uc.SetStatus(context.Background(), order.ID, "Shipped", "")

	// Assert
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "Cannot ship order due to inventory issues", vErr.Message)
	assert.Equal(t, 10, store.itemQuantity("Filter-A"), "nothing is decremented")
	stored, _ := uc.Get(context.Background(), order.ID)
	assert.Equal(t, OrderStatusPending, stored.Status)
}

func TestOrderUseCase_SetStatus_Invalid(t *testing.T) {
	store, uc := newOrderFixture()
	order := seedOrder(store, OrderStatusPending, OrderItem{ItemName: "Filter-A", Quantity: 1})

	_, err := uc.SetStatus(context.Background(), order.ID, "Cancelled", "")
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "Invalid status", vErr.Message)

	_, err = uc.SetStatus(context.Background(), order.ID, "Delivered", "")
	var tErr *InvalidTransitionError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, "Cannot change order status from Pending to Delivered", tErr.Error())
}

func TestOrderUseCase_SetStatus_AcceptedDelegates(t *testing.T) {
	store, uc := newOrderFixture()
	seedItem(store, "Filter-A", 10)
	order := seedOrder(store, OrderStatusPending, OrderItem{ItemName: "Filter-A", Quantity: 4})

	result, err := uc.SetStatus(context.Background(), order.ID, "Accepted", "Sunil")

	require.NoError(t, err)
	assert.Equal(t, OrderStatusAccepted, result.Order.Status)
	assert.Equal(t, 6, store.itemQuantity("Filter-A"))
}

func TestOrderUseCase_Deliver_CreatesBranchRowWithDefaults(t *testing.T) {
	// Arrange
	store, uc := newOrderFixture()
	order := seedOrder(store, OrderStatusShipped, OrderItem{ItemName: "Mud-filters", Quantity: 5})

	// Act
	result, err := uc.SetStatus(context.Background(), order.ID, "Delivered", "")

	// Assert
	require.NoError(t, err)
	require.Len(t, result.InventoryUpdates, 1)
	assert.Equal(t, 5, *result.InventoryUpdates[0].NewTotalQuantity)

	branch, err := store.ListBranchInventory(context.Background(), "BR-001")
	require.NoError(t, err)
	require.Len(t, branch, 1)
	assert.Equal(t, "pieces", branch[0].Unit)
	assert.Equal(t, 10, branch[0].MinStockLevel)
	assert.Equal(t, 100, branch[0].MaxStockLevel)
	assert.Equal(t, StockStatusLowStock, branch[0].Status)
}

func TestOrderUseCase_OutboxEvents(t *testing.T) {
	store, uc := newOrderFixture()
	ctx := context.Background()
	seedItem(store, "Filter-A", 10)

	linked := seedOrder(store, OrderStatusPending, OrderItem{ItemName: "Filter-A", Quantity: 1})
	linked.OriginalBranchOrderID = "branch-order-1"
	require.NoError(t, store.UpdateOrder(ctx, nil, linked))
	unlinked := seedOrder(store, OrderStatusPending, OrderItem{ItemName: "Filter-A", Quantity: 1})

	_, err := uc.Accept(ctx, linked.ID, "Sunil")
	require.NoError(t, err)
	_, err = uc.SetStatus(ctx, linked.ID, "Shipped", "Sunil")
	require.NoError(t, err)
	_, err = uc.Accept(ctx, unlinked.ID, "Sunil")
	require.NoError(t, err)

	events := store.syncEvents()
	require.Len(t, events, 2)
	assert.Equal(t, OrderStatusAccepted, events[0].Status)
	assert.NotNil(t, events[0].AcceptedDate)
	assert.Equal(t, OrderStatusShipped, events[1].Status)
	assert.NotEqual(t, events[0].ID, events[1].ID)
	for _, e := range events {
		assert.Equal(t, "branch-order-1", e.BranchOrderID)
	}
}

func TestOrderUseCase_ListPending(t *testing.T) {
	store, uc := newOrderFixture()
	low := seedOrder(store, OrderStatusPending, OrderItem{ItemName: "Filter-A", Quantity: 1})
	urgent := seedOrder(store, OrderStatusProcessing, OrderItem{ItemName: "Filter-A", Quantity: 1})
	seedOrder(store, OrderStatusDelivered, OrderItem{ItemName: "Filter-A", Quantity: 1})

	ctx := context.Background()
	low.Priority = OrderPriorityLow
	require.NoError(t, store.UpdateOrder(ctx, nil, low))
	urgent.Priority = OrderPriorityUrgent
	require.NoError(t, store.UpdateOrder(ctx, nil, urgent))

	orders, err := uc.ListPending(ctx)

	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, urgent.ID, orders[0].ID)
	assert.Equal(t, low.ID, orders[1].ID)
}

func TestOrderUseCase_Delete_KeepsStock(t *testing.T) {
	store, uc := newOrderFixture()
	seedItem(store, "Filter-A", 10)
	order := seedOrder(store, OrderStatusPending, OrderItem{ItemName: "Filter-A", Quantity: 4})
	_, err := uc.Accept(context.Background(), order.ID, "Sunil")
	require.NoError(t, err)

	deleted, err := uc.Delete(context.Background(), order.ID)

	require.NoError(t, err)
	assert.Equal(t, order.ID, deleted.ID)
	assert.Equal(t, 6, store.itemQuantity("Filter-A"))
	_, err = uc.Get(context.Background(), order.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
