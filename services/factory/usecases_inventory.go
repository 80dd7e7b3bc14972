package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CreateInventoryItemRequest representa a requisição para cadastrar um item
type CreateInventoryItemRequest struct {
	Name          string          `json:"name" binding:"required"`
	Quantity      int             `json:"quantity" binding:"gte=0"`
	Unit          string          `json:"unit"`
	MinStockLevel *int            `json:"minStockLevel"`
	MaxStockLevel *int            `json:"maxStockLevel"`
	Price         decimal.Decimal `json:"price"`
}

// UpdateInventoryItemRequest altera os dados cadastrais; Version opcional habilita o compare-and-swap do cliente
type UpdateInventoryItemRequest struct {
	Name          *string          `json:"name"`
	Unit          *string          `json:"unit"`
	MinStockLevel *int             `json:"minStockLevel"`
	MaxStockLevel *int             `json:"maxStockLevel"`
	Price         *decimal.Decimal `json:"price"`
	Version       int              `json:"version"`
}

// AdjustStockRequest representa uma edição manual de estoque
type AdjustStockRequest struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

// reservationLine é uma linha agregada por nome do plano de reserva
type reservationLine struct {
	item      *InventoryItem
	requested int
}

// ReservationPlan é o resultado da fase 1: linhas travadas e checadas, sem mutação
type ReservationPlan struct {
	lines []reservationLine
}

// StockProblem descreve uma linha que não pode ser reservada
type StockProblem struct {
	ItemName  string
	Missing   bool
	Available int
	Requested int
}

// InventoryUseCase contém a lógica de negócio do estoque da fábrica
type InventoryUseCase struct {
	repository      InventoryRepository
	reservedCounter metric.Int64Counter
	adjustedCounter metric.Int64Counter
}

// NewInventoryUseCase cria uma nova instância de InventoryUseCase
func NewInventoryUseCase(repository InventoryRepository) *InventoryUseCase {
	meter := otel.Meter("factory-service")
	reserved, _ := meter.Int64Counter("inventory_reserved_units",
		metric.WithDescription("Units taken out of factory stock by accept or ship"))
	adjusted, _ := meter.Int64Counter("inventory_manual_adjustments",
		metric.WithDescription("Manual stock adjustments"))

	return &InventoryUseCase{
		repository:      repository,
		reservedCounter: reserved,
		adjustedCounter: adjusted,
	}
}

// ListItems lista o estoque da fábrica
func (uc *InventoryUseCase) ListItems(ctx context.Context) ([]InventoryItem, error) {
	return uc.repository.ListInventory(ctx)
}

// GetItem busca um item pelo id
func (uc *InventoryUseCase) GetItem(ctx context.Context, id string) (*InventoryItem, error) {
	return uc.repository.GetInventoryItem(ctx, id)
}

// FindByName busca um item pelo nome
func (uc *InventoryUseCase) FindByName(ctx context.Context, name string) (*InventoryItem, error) {
	return uc.repository.GetInventoryItemByName(ctx, name)
}

// CreateItem cadastra um novo item; nome duplicado retorna ErrConflict
func (uc *InventoryUseCase) CreateItem(ctx context.Context, req CreateInventoryItemRequest) (*InventoryItem, error) {
	var problems []string
	name := strings.TrimSpace(req.Name)
	if name == "" {
		problems = append(problems, "name is required")
	}
	if req.Quantity < 0 {
		problems = append(problems, "quantity must not be negative")
	}
	if req.Price.IsNegative() {
		problems = append(problems, "price must not be negative")
	}

	unit := req.Unit
	if unit == "" {
		unit = defaultBranchUnit
	}
	minLevel, maxLevel := defaultBranchMinStockLevel, defaultBranchMaxStockLevel
	if req.MinStockLevel != nil {
		minLevel = *req.MinStockLevel
	}
	if req.MaxStockLevel != nil {
		maxLevel = *req.MaxStockLevel
	}
	if minLevel < 0 || maxLevel < minLevel {
		problems = append(problems, "stock levels must satisfy 0 <= minStockLevel <= maxStockLevel")
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Message: "Validation failed", Errors: problems}
	}

	item := NewInventoryItem(name, req.Quantity, unit, minLevel, maxLevel, req.Price)

	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := uc.repository.CreateInventoryItem(ctx, tx, item); err != nil {
		log.Printf("❌ [INVENTORY CREATE] Failed | Name=%s | Error=%v", name, err)
		return nil, err
	}
	if item.Quantity > 0 {
		movement := NewInventoryMovement(item.Name, "", item.Quantity, MovementTypeRestocked)
		movement.Reason = "initial stock"
		if err := uc.repository.InsertInventoryMovement(ctx, tx, movement); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit inventory item: %w", err)
	}

	log.Printf("✅ [INVENTORY CREATE] Success | Name=%s | Quantity=%d", item.Name, item.Quantity)
	return item, nil
}

// UpdateItem altera os dados cadastrais de um item (não a quantidade)
func (uc *InventoryUseCase) UpdateItem(ctx context.Context, id string, req UpdateInventoryItemRequest) (*InventoryItem, error) {
	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	item, err := uc.repository.GetInventoryItemForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if req.Version != 0 && req.Version != item.Version {
		return nil, fmt.Errorf("inventory item %s was modified (version %d, current %d): %w",
			item.Name, req.Version, item.Version, ErrConflict)
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, NewValidationError("Validation failed", "name must not be empty")
		}
		if name != item.Name {
			count, err := uc.repository.CountOpenOrdersWithItem(ctx, tx, item.Name)
			if err != nil {
				return nil, err
			}
			if count > 0 {
				return nil, fmt.Errorf("cannot rename %s while %d open orders reference it: %w", item.Name, count, ErrConflict)
			}
		}
		item.Name = name
	}
	if req.Unit != nil {
		item.Unit = *req.Unit
	}
	if req.MinStockLevel != nil {
		item.MinStockLevel = *req.MinStockLevel
	}
	if req.MaxStockLevel != nil {
		item.MaxStockLevel = *req.MaxStockLevel
	}
	if req.Price != nil {
		if req.Price.IsNegative() {
			return nil, NewValidationError("Validation failed", "price must not be negative")
		}
		item.Price = *req.Price
	}
	if item.MinStockLevel < 0 || item.MaxStockLevel < item.MinStockLevel {
		return nil, NewValidationError("Validation failed", "stock levels must satisfy 0 <= minStockLevel <= maxStockLevel")
	}

	if err := uc.repository.UpdateInventoryItem(ctx, tx, item); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit inventory update: %w", err)
	}

	log.Printf("✅ [INVENTORY UPDATE] Success | ID=%s | Version=%d", item.ID, item.Version)
	return item, nil
}

// DeleteItem remove um item que nenhum pedido aberto referencia
func (uc *InventoryUseCase) DeleteItem(ctx context.Context, id string) (*InventoryItem, error) {
	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	item, err := uc.repository.GetInventoryItemForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	count, err := uc.repository.CountOpenOrdersWithItem(ctx, tx, item.Name)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		log.Printf("❌ [INVENTORY DELETE] Refused | Name=%s | OpenOrders=%d", item.Name, count)
		return nil, fmt.Errorf("cannot delete %s while %d open orders reference it: %w", item.Name, count, ErrConflict)
	}

	if err := uc.repository.DeleteInventoryItem(ctx, tx, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit inventory delete: %w", err)
	}

	log.Printf("✅ [INVENTORY DELETE] Success | Name=%s", item.Name)
	return item, nil
}

// AdjustStock aplica um delta manual; o resultado nunca fica negativo
func (uc *InventoryUseCase) AdjustStock(ctx context.Context, id string, req AdjustStockRequest) (*InventoryItem, error) {
	if req.Delta == 0 {
		return nil, NewValidationError("Validation failed", "delta must not be zero")
	}

	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	item, err := uc.repository.GetInventoryItemForUpdate(ctx, tx, id)
	if err != nil {
		log.Printf("❌ [ADJUST] GetInventoryItemForUpdate | ID=%s | Error=%v", id, err)
		return nil, err
	}

	if item.Quantity+req.Delta < 0 {
		return nil, &InsufficientStockError{ItemName: item.Name, Available: item.Quantity, Requested: -req.Delta}
	}
	item.Quantity += req.Delta

	if err := uc.repository.UpdateInventoryItem(ctx, tx, item); err != nil {
		return nil, err
	}

	movementType := MovementTypeRestocked
	if req.Delta < 0 {
		movementType = MovementTypeAdjusted
	}
	movement := NewInventoryMovement(item.Name, "", req.Delta, movementType)
	movement.Reason = req.Reason
	if err := uc.repository.InsertInventoryMovement(ctx, tx, movement); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit stock adjustment: %w", err)
	}

	uc.adjustedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("movement_type", string(movementType))))
	log.Printf("✅ [ADJUST] Success | Name=%s | Delta=%d | Quantity=%d", item.Name, req.Delta, item.Quantity)
	return item, nil
}

// sampleInventory é o catálogo inicial usado por /inventory/init
var sampleInventory = []CreateInventoryItemRequest{
	{Name: "Water Bottle 500ml", Quantity: 500, Unit: "bottles", Price: decimal.RequireFromString("80.00")},
	{Name: "Water Bottle 1L", Quantity: 400, Unit: "bottles", Price: decimal.RequireFromString("120.00")},
	{Name: "Water Bottle 5L", Quantity: 150, Unit: "bottles", Price: decimal.RequireFromString("350.00")},
	{Name: "Water Can 19L", Quantity: 80, Unit: "cans", Price: decimal.RequireFromString("900.00")},
	{Name: "Filter-A", Quantity: 40, Unit: "pieces", Price: decimal.RequireFromString("2500.00")},
	{Name: "UV Cartridge", Quantity: 15, Unit: "pieces", Price: decimal.RequireFromString("7500.00")},
	{Name: "Mud-filters", Quantity: 8, Unit: "pieces", Price: decimal.RequireFromString("1800.00")},
}

// InitSampleInventory cadastra o catálogo inicial, ignorando itens que já existem
func (uc *InventoryUseCase) InitSampleInventory(ctx context.Context) ([]InventoryItem, error) {
	created := []InventoryItem{}
	for _, req := range sampleInventory {
		item, err := uc.CreateItem(ctx, req)
		if errors.Is(err, ErrConflict) {
			log.Printf("ℹ️ [INVENTORY INIT] Skipping existing item %s", req.Name)
			continue
		}
		if err != nil {
			return nil, err
		}
		created = append(created, *item)
	}
	return created, nil
}

// PlanReservation é a fase 1: trava as linhas em ordem de nome e confere todas sem mutar nada
func (uc *InventoryUseCase) PlanReservation(ctx context.Context, tx Tx, items []OrderItem) (*ReservationPlan, []StockProblem, error) {
	requested := make(map[string]int, len(items))
	var order []string
	for _, it := range items {
		if _, seen := requested[it.ItemName]; !seen {
			order = append(order, it.ItemName)
		}
		requested[it.ItemName] += it.Quantity
	}

	locked, err := uc.repository.GetInventoryItemsByNameForUpdate(ctx, tx, order)
	if err != nil {
		return nil, nil, err
	}

	plan := &ReservationPlan{}
	var problems []StockProblem
	for _, name := range order {
		item, ok := locked[name]
		if !ok {
			problems = append(problems, StockProblem{ItemName: name, Missing: true, Requested: requested[name]})
			continue
		}
		if item.Quantity < requested[name] {
			problems = append(problems, StockProblem{ItemName: name, Available: item.Quantity, Requested: requested[name]})
			continue
		}
		plan.lines = append(plan.lines, reservationLine{item: item, requested: requested[name]})
	}
	return plan, problems, nil
}

// ApplyReservation é a fase 2: decrementa cada linha com compare-and-swap e registra a movimentação
func (uc *InventoryUseCase) ApplyReservation(ctx context.Context, tx Tx, plan *ReservationPlan, orderID string, movementType MovementType) ([]InventoryUpdate, error) {
	updates := make([]InventoryUpdate, 0, len(plan.lines))
	for _, line := range plan.lines {
		item := line.item
		previous := item.Quantity
		if previous < line.requested {
			return nil, &InsufficientStockError{ItemName: item.Name, Available: previous, Requested: line.requested}
		}

		item.Quantity -= line.requested
		if err := uc.repository.UpdateInventoryItem(ctx, tx, item); err != nil {
			return nil, err
		}
		if err := uc.repository.InsertInventoryMovement(ctx, tx,
			NewInventoryMovement(item.Name, orderID, -line.requested, movementType)); err != nil {
			return nil, err
		}

		newQuantity := item.Quantity
		update := InventoryUpdate{
			ItemName:           item.Name,
			PreviousQuantity:   previous,
			NewFactoryQuantity: &newQuantity,
			Status:             item.Status,
		}
		if movementType == MovementTypeShipped {
			update.QuantityReduced = line.requested
		} else {
			update.QuantityReserved = line.requested
		}
		updates = append(updates, update)

		uc.reservedCounter.Add(ctx, int64(line.requested),
			metric.WithAttributes(attribute.String("movement_type", string(movementType))))
	}
	return updates, nil
}

// InventoryOverview resume o estoque da fábrica
type InventoryOverview struct {
	TotalItems         int             `json:"totalItems"`
	InStockItems       int             `json:"inStockItems"`
	LowStockItems      int             `json:"lowStockItems"`
	OutOfStockItems    int             `json:"outOfStockItems"`
	TotalUnits         int             `json:"totalUnits"`
	TotalStockValue    decimal.Decimal `json:"totalStockValue"`
	UtilizationPercent decimal.Decimal `json:"utilizationPercent"`
	GeneratedAt        time.Time       `json:"generatedAt"`
}

// Overview calcula os totais do estoque da fábrica
func (uc *InventoryUseCase) Overview(ctx context.Context) (*InventoryOverview, error) {
	items, err := uc.repository.ListInventory(ctx)
	if err != nil {
		return nil, err
	}

	overview := &InventoryOverview{TotalItems: len(items), GeneratedAt: time.Now()}
	capacity := 0
	for _, item := range items {
		switch item.Status {
		case StockStatusOutOfStock:
			overview.OutOfStockItems++
		case StockStatusLowStock:
			overview.LowStockItems++
		default:
			overview.InStockItems++
		}
		overview.TotalUnits += item.Quantity
		overview.TotalStockValue = overview.TotalStockValue.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		capacity += item.MaxStockLevel
	}
	overview.UtilizationPercent = percentage(int64(overview.TotalUnits), int64(capacity))
	return overview, nil
}

// percentage devolve part/whole*100 com uma casa decimal; whole zero resulta em zero
func percentage(part, whole int64) decimal.Decimal {
	if whole <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(part).Div(decimal.NewFromInt(whole)).Mul(decimal.NewFromInt(100)).Round(1)
}
