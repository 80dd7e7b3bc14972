package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockStatus é o status derivado de um item de estoque
type StockStatus string

const (
	StockStatusInStock    StockStatus = "In Stock"
	StockStatusLowStock   StockStatus = "Low Stock"
	StockStatusOutOfStock StockStatus = "Out of Stock"
)

// DeriveStockStatus calcula o status a partir da quantidade e do nível mínimo
func DeriveStockStatus(quantity, minStockLevel int) StockStatus {
	switch {
	case quantity <= 0:
		return StockStatusOutOfStock
	case quantity <= minStockLevel:
		return StockStatusLowStock
	default:
		return StockStatusInStock
	}
}

// InventoryItem representa um item do estoque da fábrica
type InventoryItem struct {
	ID            string          `json:"id" db:"id"`
	Name          string          `json:"name" db:"name"`
	Quantity      int             `json:"quantity" db:"quantity"`
	Unit          string          `json:"unit" db:"unit"`
	MinStockLevel int             `json:"minStockLevel" db:"min_stock_level"`
	MaxStockLevel int             `json:"maxStockLevel" db:"max_stock_level"`
	Price         decimal.Decimal `json:"price" db:"price"`
	Status        StockStatus     `json:"status" db:"-"`
	Version       int             `json:"version" db:"version"`
	CreatedAt     time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time       `json:"updatedAt" db:"updated_at"`
}

// NewInventoryItem cria uma nova instância de InventoryItem
func NewInventoryItem(name string, quantity int, unit string, minStockLevel, maxStockLevel int, price decimal.Decimal) *InventoryItem {
	now := time.Now()
	item := &InventoryItem{
		ID:            uuid.New().String(),
		Name:          name,
		Quantity:      quantity,
		Unit:          unit,
		MinStockLevel: minStockLevel,
		MaxStockLevel: maxStockLevel,
		Price:         price,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	item.RefreshStatus()
	return item
}

// RefreshStatus recalcula o status derivado
func (i *InventoryItem) RefreshStatus() {
	i.Status = DeriveStockStatus(i.Quantity, i.MinStockLevel)
}

// InventoryMovement representa uma movimentação de estoque da fábrica
type InventoryMovement struct {
	ID             string       `json:"id" db:"id"`
	ItemName       string       `json:"itemName" db:"item_name"`
	OrderID        string       `json:"orderId,omitempty" db:"order_id"`
	ChangeQuantity int          `json:"changeQuantity" db:"change_quantity"`
	MovementType   MovementType `json:"movementType" db:"movement_type"`
	Reason         string       `json:"reason,omitempty" db:"reason"`
	CreatedAt      time.Time    `json:"createdAt" db:"created_at"`
}

// NewInventoryMovement cria uma nova instância de InventoryMovement
func NewInventoryMovement(itemName, orderID string, changeQuantity int, movementType MovementType) *InventoryMovement {
	return &InventoryMovement{
		ID:             uuid.New().String(),
		ItemName:       itemName,
		OrderID:        orderID,
		ChangeQuantity: changeQuantity,
		MovementType:   movementType,
		CreatedAt:      time.Now(),
	}
}

// MovementType representa os tipos de movimentação de estoque
type MovementType string

const (
	MovementTypeReserved  MovementType = "reserved"
	MovementTypeShipped   MovementType = "shipped"
	MovementTypeAdjusted  MovementType = "adjusted"
	MovementTypeRestocked MovementType = "restocked"
)

// BranchInventoryItem representa o estoque de um item em uma filial
type BranchInventoryItem struct {
	BranchID      string      `json:"branchId" db:"branch_id"`
	Name          string      `json:"name" db:"name"`
	Quantity      int         `json:"quantity" db:"quantity"`
	Unit          string      `json:"unit" db:"unit"`
	MinStockLevel int         `json:"minStockLevel" db:"min_stock_level"`
	MaxStockLevel int         `json:"maxStockLevel" db:"max_stock_level"`
	BranchName    string      `json:"branchName" db:"branch_name"`
	Status        StockStatus `json:"status" db:"-"`
	Version       int         `json:"version" db:"version"`
	LastUpdated   time.Time   `json:"lastUpdated" db:"last_updated"`
}

// RefreshStatus recalcula o status derivado
func (b *BranchInventoryItem) RefreshStatus() {
	b.Status = DeriveStockStatus(b.Quantity, b.MinStockLevel)
}

// BranchCredit registra que uma linha de pedido entregue já creditou a filial
type BranchCredit struct {
	OrderID   string    `json:"orderId" db:"order_id"`
	ItemName  string    `json:"itemName" db:"item_name"`
	BranchID  string    `json:"branchId" db:"branch_id"`
	Quantity  int       `json:"quantity" db:"quantity"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Defaults applied to a branch row when the factory item no longer exists.
const (
	defaultBranchUnit          = "pieces"
	defaultBranchMinStockLevel = 10
	defaultBranchMaxStockLevel = 100
)

// OrderStatus representa o status de um pedido
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "Pending"
	OrderStatusProcessing OrderStatus = "Processing"
	OrderStatusAccepted   OrderStatus = "Accepted"
	OrderStatusShipped    OrderStatus = "Shipped"
	OrderStatusDelivered  OrderStatus = "Delivered"
)

// allowedTransitions lists every status change setStatus accepts.
var allowedTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusAccepted, OrderStatusShipped},
	OrderStatusProcessing: {OrderStatusPending, OrderStatusShipped},
	OrderStatusAccepted:   {OrderStatusShipped},
	OrderStatusShipped:    {OrderStatusDelivered},
	OrderStatusDelivered:  {},
}

// ParseOrderStatus valida um status recebido pela API
func ParseOrderStatus(s string) (OrderStatus, bool) {
	status := OrderStatus(s)
	_, ok := allowedTransitions[status]
	return status, ok
}

// CanTransition reporta se a mudança de status é permitida
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	for _, next := range allowedTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsOpen reporta se o pedido ainda pode consumir estoque da fábrica
func (s OrderStatus) IsOpen() bool {
	return s != OrderStatusDelivered
}

// OrderPriority representa a prioridade de um pedido
type OrderPriority string

const (
	OrderPriorityLow    OrderPriority = "Low"
	OrderPriorityNormal OrderPriority = "Normal"
	OrderPriorityHigh   OrderPriority = "High"
	OrderPriorityUrgent OrderPriority = "Urgent"
)

var priorityRank = map[OrderPriority]int{
	OrderPriorityLow:    0,
	OrderPriorityNormal: 1,
	OrderPriorityHigh:   2,
	OrderPriorityUrgent: 3,
}

// Rank ordena prioridades (Urgent > High > Normal > Low)
func (p OrderPriority) Rank() int {
	return priorityRank[p]
}

// OrderItem é uma linha de pedido
type OrderItem struct {
	ItemName string `json:"itemName"`
	Quantity int    `json:"quantity"`
}

// Order representa um pedido de uma filial para a fábrica
type Order struct {
	ID                    string        `json:"id" db:"id"`
	OrderNumber           string        `json:"orderNumber" db:"order_number"`
	BranchName            string        `json:"branchName" db:"branch_name"`
	BranchLocation        string        `json:"branchLocation" db:"branch_location"`
	BranchID              string        `json:"branchId" db:"branch_id"`
	Items                 []OrderItem   `json:"items" db:"items"`
	Status                OrderStatus   `json:"status" db:"status"`
	Priority              OrderPriority `json:"priority" db:"priority"`
	OrderDate             time.Time     `json:"orderDate" db:"order_date"`
	ExpectedDeliveryDate  time.Time     `json:"expectedDeliveryDate" db:"expected_delivery_date"`
	AcceptedDate          *time.Time    `json:"acceptedDate,omitempty" db:"accepted_date"`
	AcceptedBy            string        `json:"acceptedBy,omitempty" db:"accepted_by"`
	ContactPerson         string        `json:"contactPerson" db:"contact_person"`
	ContactPhone          string        `json:"contactPhone" db:"contact_phone"`
	Notes                 string        `json:"notes,omitempty" db:"notes"`
	Source                string        `json:"source,omitempty" db:"source"`
	OriginalBranchOrderID string        `json:"originalBranchOrderId,omitempty" db:"original_branch_order_id"`
	UpdatedAt             time.Time     `json:"updatedAt" db:"updated_at"`
}

// NewOrder cria um novo pedido com status Pending
func NewOrder(draft *ValidatedOrderDraft) *Order {
	now := time.Now()
	id := uuid.New().String()
	return &Order{
		ID:                    id,
		OrderNumber:           newOrderNumber(now, id),
		BranchName:            draft.BranchName,
		BranchLocation:        draft.BranchLocation,
		BranchID:              draft.BranchID,
		Items:                 draft.Items,
		Status:                OrderStatusPending,
		Priority:              draft.Priority,
		OrderDate:             now,
		ExpectedDeliveryDate:  draft.ExpectedDeliveryDate,
		ContactPerson:         draft.ContactPerson,
		ContactPhone:          draft.ContactPhone,
		Notes:                 draft.Notes,
		Source:                draft.Source,
		OriginalBranchOrderID: draft.OriginalBranchOrderID,
		UpdatedAt:             now,
	}
}

func newOrderNumber(now time.Time, id string) string {
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), strings.ToUpper(id[:6]))
}

// TotalQuantity soma as quantidades de todas as linhas
func (o *Order) TotalQuantity() int {
	total := 0
	for _, item := range o.Items {
		total += item.Quantity
	}
	return total
}

// InventoryUpdate é o retrato de uma alteração de estoque devolvido ao chamador
type InventoryUpdate struct {
	ItemName           string      `json:"itemName"`
	QuantityReserved   int         `json:"quantityReserved,omitempty"`
	QuantityReduced    int         `json:"quantityReduced,omitempty"`
	QuantityAdded      int         `json:"quantityAdded,omitempty"`
	PreviousQuantity   int         `json:"previousQuantity"`
	NewFactoryQuantity *int        `json:"newFactoryQuantity,omitempty"`
	NewTotalQuantity   *int        `json:"newTotalQuantity,omitempty"`
	Unit               string      `json:"unit,omitempty"`
	Status             StockStatus `json:"status"`
}

// BranchOrderSyncEvent é um evento de outbox que espelha o status no BranchOrder
type BranchOrderSyncEvent struct {
	ID            string      `json:"id" db:"id"`
	OrderID       string      `json:"orderId" db:"order_id"`
	BranchOrderID string      `json:"branchOrderId" db:"branch_order_id"`
	Status        OrderStatus `json:"status" db:"status"`
	AcceptedDate  *time.Time  `json:"acceptedDate,omitempty" db:"accepted_date"`
	Attempts      int         `json:"attempts" db:"attempts"`
	NextAttemptAt time.Time   `json:"nextAttemptAt" db:"next_attempt_at"`
	LastError     string      `json:"lastError,omitempty" db:"last_error"`
	Dead          bool        `json:"dead" db:"dead"`
	DeliveredAt   *time.Time  `json:"deliveredAt,omitempty" db:"delivered_at"`
	CreatedAt     time.Time   `json:"createdAt" db:"created_at"`
}

// NewBranchOrderSyncEvent cria um evento pendente para o status atual do pedido
func NewBranchOrderSyncEvent(order *Order) *BranchOrderSyncEvent {
	now := time.Now()
	return &BranchOrderSyncEvent{
		ID:            uuid.New().String(),
		OrderID:       order.ID,
		BranchOrderID: order.OriginalBranchOrderID,
		Status:        order.Status,
		AcceptedDate:  order.AcceptedDate,
		NextAttemptAt: now,
		CreatedAt:     now,
	}
}

// BranchOrderSyncPayload é o corpo enviado ao serviço de filiais.
// EventCreatedAt ordena os eventos do mesmo pedido na filial.
type BranchOrderSyncPayload struct {
	EventID        string      `json:"eventId"`
	BranchOrderID  string      `json:"branchOrderId"`
	OrderID        string      `json:"orderId"`
	Status         OrderStatus `json:"status"`
	AcceptedDate   *time.Time  `json:"acceptedDate,omitempty"`
	EventCreatedAt time.Time   `json:"eventCreatedAt"`
	TraceID        string      `json:"traceId,omitempty"`
	SpanID         string      `json:"spanId,omitempty"`
}

// Payload monta o corpo de sincronização do evento
func (e *BranchOrderSyncEvent) Payload() BranchOrderSyncPayload {
	return BranchOrderSyncPayload{
		EventID:        e.ID,
		BranchOrderID:  e.BranchOrderID,
		OrderID:        e.OrderID,
		Status:         e.Status,
		AcceptedDate:   e.AcceptedDate,
		EventCreatedAt: e.CreatedAt,
	}
}
