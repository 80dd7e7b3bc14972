package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// defaultActor identifica quem aceitou o pedido quando a requisição não traz usuário
const defaultActor = "Factory Manager"

// pendingListLimit limita GET /orders/pending
const pendingListLimit = 10

// OrderDraft representa a requisição de criação de pedido
type OrderDraft struct {
	BranchName            string           `json:"branchName"`
	BranchLocation        string           `json:"branchLocation"`
	BranchID              string           `json:"branchId"`
	Items                 []OrderItemDraft `json:"items"`
	Priority              string           `json:"priority"`
	ExpectedDeliveryDate  string           `json:"expectedDeliveryDate"`
	ContactPerson         string           `json:"contactPerson"`
	ContactPhone          string           `json:"contactPhone"`
	Notes                 string           `json:"notes"`
	Source                string           `json:"source"`
	OriginalBranchOrderID string           `json:"originalBranchOrderId"`
}

// OrderItemDraft aceita quantity como número JSON ou string numérica
type OrderItemDraft struct {
	ItemName string          `json:"itemName"`
	Quantity json.RawMessage `json:"quantity"`
}

// ValidatedOrderDraft é o rascunho já normalizado
type ValidatedOrderDraft struct {
	BranchName            string
	BranchLocation        string
	BranchID              string
	Items                 []OrderItem
	Priority              OrderPriority
	ExpectedDeliveryDate  time.Time
	ContactPerson         string
	ContactPhone          string
	Notes                 string
	Source                string
	OriginalBranchOrderID string
}

// AcceptResult é a resposta do aceite
type AcceptResult struct {
	Order            *Order            `json:"order"`
	InventoryUpdates []InventoryUpdate `json:"inventoryUpdates"`
}

// StatusResult é a resposta de uma mudança de status; InventoryUpdates nil vira null
type StatusResult struct {
	Order            *Order            `json:"order"`
	InventoryUpdates []InventoryUpdate `json:"inventoryUpdates"`
}

// OrderUseCase orquestra o ciclo de vida dos pedidos
type OrderUseCase struct {
	repository        OrderRepository
	outbox            SyncOutboxRepository
	inventory         *InventoryUseCase
	branchInventory   *BranchInventoryUseCase
	acceptedCounter   metric.Int64Counter
	transitionCounter metric.Int64Counter
}

// NewOrderUseCase cria uma nova instância de OrderUseCase
func NewOrderUseCase(
	repository OrderRepository,
	outbox SyncOutboxRepository,
	inventory *InventoryUseCase,
	branchInventory *BranchInventoryUseCase,
) *OrderUseCase {
	meter := otel.Meter("factory-service")
	accepted, _ := meter.Int64Counter("orders_accepted",
		metric.WithDescription("Orders accepted by the factory"))
	transitions, _ := meter.Int64Counter("order_status_transitions",
		metric.WithDescription("Order status transitions by target status"))

	return &OrderUseCase{
		repository:        repository,
		outbox:            outbox,
		inventory:         inventory,
		branchInventory:   branchInventory,
		acceptedCounter:   accepted,
		transitionCounter: transitions,
	}
}

// Submit valida o rascunho contra o estoque atual e cria o pedido Pending; não altera estoque
func (uc *OrderUseCase) Submit(ctx context.Context, draft OrderDraft) (*Order, error) {
	validated, err := uc.validateDraft(ctx, draft)
	if err != nil {
		log.Printf("❌ [SUBMIT] Validation failed | Branch=%s | Error=%v", draft.BranchName, err)
		return nil, err
	}

	order := NewOrder(validated)
	if err := uc.repository.CreateOrder(ctx, order); err != nil {
		log.Printf("❌ [SUBMIT] Failed to create order | Error=%v", err)
		return nil, err
	}

	log.Printf("✅ [SUBMIT] Order created | OrderID=%s | Number=%s | Branch=%s", order.ID, order.OrderNumber, order.BranchID)
	return order, nil
}

func (uc *OrderUseCase) validateDraft(ctx context.Context, draft OrderDraft) (*ValidatedOrderDraft, error) {
	var missing []string
	required := []struct{ field, value string }{
		{"branchName", draft.BranchName},
		{"branchLocation", draft.BranchLocation},
		{"branchId", draft.BranchID},
		{"expectedDeliveryDate", draft.ExpectedDeliveryDate},
		{"contactPerson", draft.ContactPerson},
		{"contactPhone", draft.ContactPhone},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.field+" is required")
		}
	}
	if draft.Items == nil {
		missing = append(missing, "items is required")
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Message: "All required fields must be provided", Errors: missing}
	}
	if len(draft.Items) == 0 {
		return nil, NewValidationError("At least one item must be specified")
	}

	var problems []string

	expected, ok := parseDate(draft.ExpectedDeliveryDate)
	if !ok {
		problems = append(problems, "expectedDeliveryDate must be a date (YYYY-MM-DD or RFC3339)")
	}

	priority := OrderPriorityNormal
	if draft.Priority != "" {
		priority = OrderPriority(draft.Priority)
		if _, known := priorityRank[priority]; !known {
			problems = append(problems, fmt.Sprintf("Invalid priority %q: must be one of Low, Normal, High, Urgent", draft.Priority))
		}
	}

	items := make([]OrderItem, 0, len(draft.Items))
	for _, it := range draft.Items {
		name := strings.TrimSpace(it.ItemName)
		quantity, present, valid := parseQuantity(it.Quantity)
		if name == "" || !present {
			label := name
			if label == "" {
				label = "Unknown"
			}
			problems = append(problems, fmt.Sprintf("Item %s is missing required fields", label))
			continue
		}

		stock, err := uc.inventory.FindByName(ctx, name)
		if errors.Is(err, ErrNotFound) {
			problems = append(problems, fmt.Sprintf("Item %q not found in inventory. Please add it to inventory first.", name))
			continue
		}
		if err != nil {
			return nil, err
		}

		if !valid {
			problems = append(problems, fmt.Sprintf("Invalid quantity for %s: must be a positive number", name))
			continue
		}

		if stock.Quantity < quantity {
			problems = append(problems, (&InsufficientStockError{
				ItemName:  name,
				Available: stock.Quantity,
				Requested: quantity,
			}).Error())
			continue
		}
		items = append(items, OrderItem{ItemName: name, Quantity: quantity})
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Message: "Validation failed", Errors: problems}
	}

	return &ValidatedOrderDraft{
		BranchName:            strings.TrimSpace(draft.BranchName),
		BranchLocation:        strings.TrimSpace(draft.BranchLocation),
		BranchID:              strings.TrimSpace(draft.BranchID),
		Items:                 items,
		Priority:              priority,
		ExpectedDeliveryDate:  expected,
		ContactPerson:         strings.TrimSpace(draft.ContactPerson),
		ContactPhone:          strings.TrimSpace(draft.ContactPhone),
		Notes:                 draft.Notes,
		Source:                draft.Source,
		OriginalBranchOrderID: draft.OriginalBranchOrderID,
	}, nil
}

// parseQuantity devolve (quantidade, presente, válida). Número zero conta como ausente.
func parseQuantity(raw json.RawMessage) (int, bool, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return 0, false, false
	}

	var number float64
	if err := json.Unmarshal(trimmed, &number); err == nil {
		if number == 0 {
			return 0, false, false
		}
		if number < 0 || number != math.Trunc(number) || number > math.MaxInt32 {
			return 0, true, false
		}
		return int(number), true, true
	}

	var text string
	if err := json.Unmarshal(trimmed, &text); err != nil {
		return 0, true, false
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, false, false
	}
	n, err := strconv.Atoi(text)
	if err != nil || n <= 0 {
		return 0, true, false
	}
	return n, true, true
}

// parseDate aceita RFC3339 ou YYYY-MM-DD
func parseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// Accept reserva o estoque de todas as linhas e marca o pedido como Accepted, tudo ou nada
func (uc *OrderUseCase) Accept(ctx context.Context, orderID, actor string) (*AcceptResult, error) {
	log.Printf("➡️ [ACCEPT] OrderID=%s | Actor=%s", orderID, actor)

	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	order, err := uc.repository.GetOrderForUpdate(ctx, tx, orderID)
	if err != nil {
		log.Printf("❌ ACCEPT FAILED: GetOrderForUpdate | OrderID=%s | Error=%v", orderID, err)
		return nil, err
	}

	if order.Status != OrderStatusPending {
		return nil, &InvalidTransitionError{
			Current:   order.Status,
			Requested: OrderStatusAccepted,
			Message:   fmt.Sprintf("Order cannot be accepted. Current status: %s", order.Status),
		}
	}

	plan, problems, err := uc.inventory.PlanReservation(ctx, tx, order.Items)
	if err != nil {
		return nil, err
	}
	if len(problems) > 0 {
		messages := make([]string, len(problems))
		for i, p := range problems {
			if p.Missing {
				messages[i] = fmt.Sprintf("Item %q not found in factory inventory", p.ItemName)
			} else {
				messages[i] = fmt.Sprintf("Insufficient stock for %s. Available: %d, Required: %d", p.ItemName, p.Available, p.Requested)
			}
		}
		log.Printf("❌ ACCEPT FAILED: inventory issues | OrderID=%s | Problems=%d", orderID, len(problems))
		return nil, &ValidationError{Message: "Cannot accept order due to inventory issues", Errors: messages}
	}

	updates, err := uc.inventory.ApplyReservation(ctx, tx, plan, order.ID, MovementTypeReserved)
	if err != nil {
		log.Printf("❌ [ACCEPT] | OrderID=%s Failed to reserve: %v", orderID, err)
		return nil, err
	}

	now := time.Now()
	if actor == "" {
		actor = defaultActor
	}
	order.Status = OrderStatusAccepted
	order.AcceptedDate = &now
	order.AcceptedBy = actor
	order.UpdatedAt = now

	if err := uc.repository.UpdateOrder(ctx, tx, order); err != nil {
		return nil, err
	}
	if err := uc.enqueueBranchSync(ctx, tx, order); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit accept: %w", err)
	}

	uc.acceptedCounter.Add(ctx, 1)
	uc.transitionCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(OrderStatusAccepted))))
	log.Printf("✅ [ACCEPT] Success | OrderID=%s | Items=%d", orderID, len(updates))
	return &AcceptResult{Order: order, InventoryUpdates: updates}, nil
}

// SetStatus aplica uma transição; Shipped vindo de Pending/Processing baixa estoque e Delivered credita a filial
func (uc *OrderUseCase) SetStatus(ctx context.Context, orderID, newStatus, actor string) (*StatusResult, error) {
	status, ok := ParseOrderStatus(newStatus)
	if !ok {
		return nil, NewValidationError("Invalid status",
			fmt.Sprintf("Status %q must be one of Pending, Processing, Accepted, Shipped, Delivered", newStatus))
	}

	if status == OrderStatusAccepted {
		accepted, err := uc.Accept(ctx, orderID, actor)
		if err != nil {
			return nil, err
		}
		return &StatusResult{Order: accepted.Order, InventoryUpdates: accepted.InventoryUpdates}, nil
	}

	log.Printf("➡️ [STATUS] OrderID=%s | Target=%s", orderID, status)

	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	order, err := uc.repository.GetOrderForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	if !order.Status.CanTransition(status) {
		return nil, &InvalidTransitionError{Current: order.Status, Requested: status}
	}

	var updates []InventoryUpdate
	switch {
	case status == OrderStatusShipped && (order.Status == OrderStatusPending || order.Status == OrderStatusProcessing):
		updates, err = uc.shipFromStock(ctx, tx, order)
	case status == OrderStatusDelivered:
		updates, err = uc.creditBranch(ctx, tx, order)
	}
	if err != nil {
		log.Printf("❌ [STATUS] Failed | OrderID=%s | Target=%s | Error=%v", orderID, status, err)
		return nil, err
	}

	order.Status = status
	order.UpdatedAt = time.Now()
	if err := uc.repository.UpdateOrder(ctx, tx, order); err != nil {
		return nil, err
	}
	if err := uc.enqueueBranchSync(ctx, tx, order); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit status change: %w", err)
	}

	uc.transitionCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
	log.Printf("✅ [STATUS] Success | OrderID=%s | Status=%s", orderID, status)
	return &StatusResult{Order: order, InventoryUpdates: updates}, nil
}

// shipFromStock baixa o estoque de um pedido que não passou pelo aceite
func (uc *OrderUseCase) shipFromStock(ctx context.Context, tx Tx, order *Order) ([]InventoryUpdate, error) {
	plan, problems, err := uc.inventory.PlanReservation(ctx, tx, order.Items)
	if err != nil {
		return nil, err
	}
	if len(problems) > 0 {
		first := problems[0]
		if first.Missing {
			return nil, NewValidationError("Cannot ship order due to inventory issues",
				fmt.Sprintf("Item %q not found in factory inventory", first.ItemName))
		}
		return nil, &InsufficientStockError{ItemName: first.ItemName, Available: first.Available, Requested: first.Requested}
	}
	return uc.inventory.ApplyReservation(ctx, tx, plan, order.ID, MovementTypeShipped)
}

// creditBranch credita cada linha na filial; falhas por linha são registradas e puladas
func (uc *OrderUseCase) creditBranch(ctx context.Context, tx Tx, order *Order) ([]InventoryUpdate, error) {
	if order.BranchID == "" {
		return nil, NewValidationError("Cannot deliver order", "Order has no branchId")
	}

	quantities := make(map[string]int, len(order.Items))
	var names []string
	for _, it := range order.Items {
		if _, seen := quantities[it.ItemName]; !seen {
			names = append(names, it.ItemName)
		}
		quantities[it.ItemName] += it.Quantity
	}

	updates := []InventoryUpdate{}
	for _, name := range names {
		factory, err := uc.inventory.FindByName(ctx, name)
		if err != nil && !errors.Is(err, ErrNotFound) {
			log.Printf("❌ [DELIVER] Factory lookup failed | OrderID=%s | Item=%s | Error=%v", order.ID, name, err)
			continue
		}

		sp, err := tx.Savepoint(ctx)
		if err != nil {
			return nil, err
		}
		update, err := uc.branchInventory.CreditOnDelivery(ctx, sp, BranchCreditRequest{
			OrderID:    order.ID,
			BranchID:   order.BranchID,
			BranchName: order.BranchName,
			ItemName:   name,
			Quantity:   quantities[name],
			Factory:    factory,
		})
		if err != nil {
			_ = sp.Rollback()
			log.Printf("❌ [DELIVER] Branch credit skipped | OrderID=%s | Item=%s | Error=%v", order.ID, name, err)
			continue
		}
		if err := sp.Commit(); err != nil {
			return nil, fmt.Errorf("failed to release savepoint: %w", err)
		}
		updates = append(updates, *update)
	}
	return updates, nil
}

// enqueueBranchSync grava o evento de outbox quando o pedido veio de uma solicitação de filial
func (uc *OrderUseCase) enqueueBranchSync(ctx context.Context, tx Tx, order *Order) error {
	if order.OriginalBranchOrderID == "" {
		return nil
	}
	return uc.outbox.InsertSyncEvent(ctx, tx, NewBranchOrderSyncEvent(order))
}

// Delete remove o pedido sem devolver estoque
func (uc *OrderUseCase) Delete(ctx context.Context, orderID string) (*Order, error) {
	order, err := uc.repository.DeleteOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	log.Printf("✅ [DELETE] Order removed | OrderID=%s | Status=%s", order.ID, order.Status)
	return order, nil
}

// Get busca um pedido
func (uc *OrderUseCase) Get(ctx context.Context, orderID string) (*Order, error) {
	return uc.repository.GetOrder(ctx, orderID)
}

// List lista todos os pedidos, mais recentes primeiro
func (uc *OrderUseCase) List(ctx context.Context) ([]Order, error) {
	return uc.repository.ListOrders(ctx)
}

// ListPending devolve pedidos Pending/Processing por prioridade e depois os mais antigos
func (uc *OrderUseCase) ListPending(ctx context.Context) ([]Order, error) {
	orders, err := uc.repository.ListOrdersByStatus(ctx, OrderStatusPending, OrderStatusProcessing)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].Priority.Rank() != orders[j].Priority.Rank() {
			return orders[i].Priority.Rank() > orders[j].Priority.Rank()
		}
		return orders[i].OrderDate.Before(orders[j].OrderDate)
	})
	if len(orders) > pendingListLimit {
		orders = orders[:pendingListLimit]
	}
	return orders, nil
}
