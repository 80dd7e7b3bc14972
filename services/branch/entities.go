package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("not found")
)

// OrderStatus espelha o ciclo de vida do pedido na fábrica
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "Pending"
	OrderStatusProcessing OrderStatus = "Processing"
	OrderStatusAccepted   OrderStatus = "Accepted"
	OrderStatusShipped    OrderStatus = "Shipped"
	OrderStatusDelivered  OrderStatus = "Delivered"
)

var knownStatuses = map[OrderStatus]struct{}{
	OrderStatusPending:    {},
	OrderStatusProcessing: {},
	OrderStatusAccepted:   {},
	OrderStatusShipped:    {},
	OrderStatusDelivered:  {},
}

// ParseOrderStatus aceita somente os cinco status conhecidos
func ParseOrderStatus(s string) (OrderStatus, bool) {
	status := OrderStatus(s)
	_, ok := knownStatuses[status]
	return status, ok
}

// OrderItem é uma linha do pedido da filial
type OrderItem struct {
	ItemName string `json:"itemName"`
	Quantity int    `json:"quantity"`
}

// BranchOrder é o pedido como a filial o enxerga; LastEventAt é o instante do último evento da fábrica aplicado
type BranchOrder struct {
	ID             string      `json:"id"`
	BranchID       string      `json:"branchId"`
	BranchName     string      `json:"branchName"`
	Items          []OrderItem `json:"items"`
	Status         OrderStatus `json:"status"`
	FactoryOrderID string      `json:"factoryOrderId,omitempty"`
	AcceptedDate   *time.Time  `json:"acceptedDate,omitempty"`
	LastEventAt    *time.Time  `json:"lastEventAt,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// CreateBranchOrderRequest representa a requisição de criação do pedido na filial
type CreateBranchOrderRequest struct {
	BranchID   string      `json:"branchId"`
	BranchName string      `json:"branchName"`
	Items      []OrderItem `json:"items"`
}

// Validate devolve todos os problemas do pedido de uma vez
func (r CreateBranchOrderRequest) Validate() []string {
	var problems []string
	if strings.TrimSpace(r.BranchID) == "" {
		problems = append(problems, "branchId is required")
	}
	if strings.TrimSpace(r.BranchName) == "" {
		problems = append(problems, "branchName is required")
	}
	if len(r.Items) == 0 {
		problems = append(problems, "at least one item is required")
	}
	for i, item := range r.Items {
		if strings.TrimSpace(item.ItemName) == "" {
			problems = append(problems, fmt.Sprintf("items[%d].itemName is required", i))
		}
		if item.Quantity <= 0 {
			problems = append(problems, fmt.Sprintf("items[%d].quantity must be a positive number", i))
		}
	}
	return problems
}

// NewBranchOrder cria um pedido Pending
func NewBranchOrder(req CreateBranchOrderRequest) *BranchOrder {
	now := time.Now()
	return &BranchOrder{
		ID:         uuid.New().String(),
		BranchID:   strings.TrimSpace(req.BranchID),
		BranchName: strings.TrimSpace(req.BranchName),
		Items:      req.Items,
		Status:     OrderStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// SyncRequest é o corpo que a fábrica envia a cada transição. EventCreatedAt é quando a fábrica
// gravou o evento; eventos mais antigos que o último aplicado são ignorados.
type SyncRequest struct {
	EventID        string     `json:"eventId"`
	BranchOrderID  string     `json:"branchOrderId"`
	OrderID        string     `json:"orderId"`
	Status         string     `json:"status"`
	AcceptedDate   *time.Time `json:"acceptedDate,omitempty"`
	EventCreatedAt *time.Time `json:"eventCreatedAt,omitempty"`
	TraceID        string     `json:"traceId,omitempty"`
	SpanID         string     `json:"spanId,omitempty"`
}

// ValidationError agrega os problemas de uma requisição
type ValidationError struct {
	Message string
	Errors  []string
}

func (e *ValidationError) Error() string {
	return e.Message + ": " + strings.Join(e.Errors, "; ")
}
