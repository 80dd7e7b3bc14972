package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

const (
	recentOrdersInActivities = 5
	activitiesLimit          = 10
)

// OrderStats são os contadores do painel da fábrica
type OrderStats struct {
	TotalOrders       int             `json:"totalOrders"`
	PendingOrders     int             `json:"pendingOrders"`
	ProcessingOrders  int             `json:"processingOrders"`
	AcceptedOrders    int             `json:"acceptedOrders"`
	ShippedOrders     int             `json:"shippedOrders"`
	DeliveredOrders   int             `json:"deliveredOrders"`
	UrgentOrders      int             `json:"urgentOrders"`
	HighPriority      int             `json:"highPriorityOrders"`
	CompletionPercent decimal.Decimal `json:"completionPercent"`
}

// Activity é um item do feed de atividades recentes
type Activity struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity,omitempty"`
	Status    string    `json:"status,omitempty"`
	Priority  string    `json:"priority,omitempty"`
	RefID     string    `json:"refId"`
	Timestamp time.Time `json:"timestamp"`
}

// BranchInventoryReport resume o estoque de uma filial
type BranchInventoryReport struct {
	BranchID           string                `json:"branchId"`
	Items              []BranchInventoryItem `json:"items"`
	TotalItems         int                   `json:"totalItems"`
	TotalUnits         int                   `json:"totalUnits"`
	LowStockItems      int                   `json:"lowStockItems"`
	OutOfStockItems    int                   `json:"outOfStockItems"`
	UtilizationPercent decimal.Decimal       `json:"utilizationPercent"`
}

// MonthlyFigures são os números de um mês
type MonthlyFigures struct {
	Month           string          `json:"month"`
	OrdersPlaced    int             `json:"ordersPlaced"`
	OrdersDelivered int             `json:"ordersDelivered"`
	WasteCollected  decimal.Decimal `json:"wasteCollected"`
	WasteRecycled   decimal.Decimal `json:"wasteRecycled"`
}

// MonthlySummary agrega um ano mês a mês
type MonthlySummary struct {
	Year   int              `json:"year"`
	Months []MonthlyFigures `json:"months"`
	Totals MonthlyFigures   `json:"totals"`
}

// ReportUseCase calcula estatísticas derivadas sob demanda; não altera estado
type ReportUseCase struct {
	orders          OrderRepository
	inventory       InventoryRepository
	branchInventory BranchInventoryRepository
	wasteBin        WasteBinRepository
}

// NewReportUseCase cria uma nova instância de ReportUseCase
func NewReportUseCase(
	orders OrderRepository,
	inventory InventoryRepository,
	branchInventory BranchInventoryRepository,
	wasteBin WasteBinRepository,
) *ReportUseCase {
	return &ReportUseCase{
		orders:          orders,
		inventory:       inventory,
		branchInventory: branchInventory,
		wasteBin:        wasteBin,
	}
}

// OrderStats conta pedidos por status e os urgentes/altos ainda abertos
func (uc *ReportUseCase) OrderStats(ctx context.Context) (*OrderStats, error) {
	orders, err := uc.orders.ListOrders(ctx)
	if err != nil {
		return nil, err
	}

	stats := &OrderStats{TotalOrders: len(orders)}
	for _, o := range orders {
		switch o.Status {
		case OrderStatusPending:
			stats.PendingOrders++
		case OrderStatusProcessing:
			stats.ProcessingOrders++
		case OrderStatusAccepted:
			stats.AcceptedOrders++
		case OrderStatusShipped:
			stats.ShippedOrders++
		case OrderStatusDelivered:
			stats.DeliveredOrders++
		}

		if o.Status == OrderStatusPending || o.Status == OrderStatusProcessing {
			switch o.Priority {
			case OrderPriorityUrgent:
				stats.UrgentOrders++
			case OrderPriorityHigh:
				stats.HighPriority++
			}
		}
	}
	stats.CompletionPercent = percentage(int64(stats.DeliveredOrders), int64(stats.TotalOrders))
	return stats, nil
}

// RecentActivities junta os últimos pedidos com os alertas de estoque, mais recentes primeiro
func (uc *ReportUseCase) RecentActivities(ctx context.Context) ([]Activity, error) {
	orders, err := uc.orders.ListOrders(ctx)
	if err != nil {
		return nil, err
	}
	items, err := uc.inventory.ListInventory(ctx)
	if err != nil {
		return nil, err
	}

	activities := []Activity{}
	for i, o := range orders {
		if i == recentOrdersInActivities {
			break
		}
		activities = append(activities, Activity{
			Type:      "order",
			Message:   fmt.Sprintf("Order %s from %s", o.OrderNumber, o.BranchName),
			Status:    string(o.Status),
			Priority:  string(o.Priority),
			RefID:     o.ID,
			Timestamp: o.OrderDate,
		})
	}
	for _, item := range items {
		switch item.Status {
		case StockStatusOutOfStock:
			activities = append(activities, Activity{
				Type:      "inventory",
				Message:   fmt.Sprintf("%s is out of stock", item.Name),
				Severity:  "critical",
				RefID:     item.ID,
				Timestamp: item.UpdatedAt,
			})
		case StockStatusLowStock:
			activities = append(activities, Activity{
				Type:      "inventory",
				Message:   fmt.Sprintf("Low stock: %s (%d %s left)", item.Name, item.Quantity, item.Unit),
				Severity:  "warning",
				RefID:     item.ID,
				Timestamp: item.UpdatedAt,
			})
		}
	}

	sort.SliceStable(activities, func(i, j int) bool {
		return activities[i].Timestamp.After(activities[j].Timestamp)
	})
	if len(activities) > activitiesLimit {
		activities = activities[:activitiesLimit]
	}
	return activities, nil
}

// BranchInventoryReport calcula os totais do estoque de uma filial
func (uc *ReportUseCase) BranchInventoryReport(ctx context.Context, branchID string) (*BranchInventoryReport, error) {
	items, err := uc.branchInventory.ListBranchInventory(ctx, branchID)
	if err != nil {
		return nil, err
	}

	report := &BranchInventoryReport{BranchID: branchID, Items: items, TotalItems: len(items)}
	capacity := 0
	for _, item := range items {
		report.TotalUnits += item.Quantity
		capacity += item.MaxStockLevel
		switch item.Status {
		case StockStatusOutOfStock:
			report.OutOfStockItems++
		case StockStatusLowStock:
			report.LowStockItems++
		}
	}
	report.UtilizationPercent = percentage(int64(report.TotalUnits), int64(capacity))
	return report, nil
}

// MonthlySummary agrega pedidos e resíduos de um ano, mês a mês
func (uc *ReportUseCase) MonthlySummary(ctx context.Context, year int) (*MonthlySummary, error) {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(1, 0, 0)

	orders, err := uc.orders.ListOrders(ctx)
	if err != nil {
		return nil, err
	}
	end := to.Add(-time.Nanosecond)
	entries, _, err := uc.wasteBin.ListWasteEntries(ctx, WasteHistoryFilter{StartDate: &from, EndDate: &end})
	if err != nil {
		return nil, err
	}
	recycles, err := uc.wasteBin.ListRecycleEvents(ctx, from, to)
	if err != nil {
		return nil, err
	}

	summary := &MonthlySummary{Year: year, Months: make([]MonthlyFigures, 12)}
	for m := range summary.Months {
		summary.Months[m].Month = time.Month(m + 1).String()
	}

	inYear := func(t time.Time) (int, bool) {
		t = t.UTC()
		if t.Before(from) || !t.Before(to) {
			return 0, false
		}
		return int(t.Month()) - 1, true
	}

	for _, o := range orders {
		if m, ok := inYear(o.OrderDate); ok {
			summary.Months[m].OrdersPlaced++
		}
		if o.Status == OrderStatusDelivered {
			if m, ok := inYear(o.UpdatedAt); ok {
				summary.Months[m].OrdersDelivered++
			}
		}
	}
	for _, e := range entries {
		if m, ok := inYear(e.Date); ok {
			summary.Months[m].WasteCollected = summary.Months[m].WasteCollected.Add(e.WasteWeight)
		}
	}
	for _, r := range recycles {
		if m, ok := inYear(r.Date); ok {
			summary.Months[m].WasteRecycled = summary.Months[m].WasteRecycled.Add(r.Amount)
		}
	}

	summary.Totals.Month = "Total"
	for _, m := range summary.Months {
		summary.Totals.OrdersPlaced += m.OrdersPlaced
		summary.Totals.OrdersDelivered += m.OrdersDelivered
		summary.Totals.WasteCollected = summary.Totals.WasteCollected.Add(m.WasteCollected)
		summary.Totals.WasteRecycled = summary.Totals.WasteRecycled.Add(m.WasteRecycled)
	}
	return summary, nil
}
