package main

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// memoryState é o conteúdo do store; clone é usado como snapshot de transação
type memoryState struct {
	inventory       map[string]InventoryItem
	movements       []InventoryMovement
	branchInventory map[string]BranchInventoryItem
	branchCredits   map[string]BranchCredit
	orders          map[string]Order
	syncEvents      []BranchOrderSyncEvent
	wasteBin        *FactoryWasteBin
	wasteEntries    []WasteEntry
	recycleEvents   []RecycleEvent
	brigades        map[string]BrigadeWaterLevel
	emergencies     []EmergencyRequest
}

func newMemoryState() *memoryState {
	return &memoryState{
		inventory:       map[string]InventoryItem{},
		branchInventory: map[string]BranchInventoryItem{},
		branchCredits:   map[string]BranchCredit{},
		orders:          map[string]Order{},
		brigades:        map[string]BrigadeWaterLevel{},
	}
}

func (s *memoryState) clone() *memoryState {
	c := newMemoryState()
	for k, v := range s.inventory {
		c.inventory[k] = v
	}
	for k, v := range s.branchInventory {
		c.branchInventory[k] = v
	}
	for k, v := range s.branchCredits {
		c.branchCredits[k] = v
	}
	for k, v := range s.orders {
		v.Items = append([]OrderItem(nil), v.Items...)
		c.orders[k] = v
	}
	for k, v := range s.brigades {
		c.brigades[k] = v
	}
	c.movements = append([]InventoryMovement(nil), s.movements...)
	c.syncEvents = append([]BranchOrderSyncEvent(nil), s.syncEvents...)
	c.wasteEntries = append([]WasteEntry(nil), s.wasteEntries...)
	c.recycleEvents = append([]RecycleEvent(nil), s.recycleEvents...)
	c.emergencies = append([]EmergencyRequest(nil), s.emergencies...)
	if s.wasteBin != nil {
		bin := *s.wasteBin
		c.wasteBin = &bin
	}
	return c
}

// memoryStore implementa todos os repositórios em memória. Transações são
// serializadas por txMu, o que equivale a travar todas as linhas com FOR UPDATE.
type memoryStore struct {
	txMu  sync.Mutex
	mu    sync.Mutex
	state *memoryState

	// failInventoryUpdate faz UpdateInventoryItem falhar para o nome informado
	failInventoryUpdate string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{state: newMemoryState()}
}

type memoryTx struct {
	store    *memoryStore
	snapshot *memoryState
	root     bool
	done     bool
}

func (s *memoryStore) BeginTx(ctx context.Context) (Tx, error) {
	s.txMu.Lock()
	s.mu.Lock()
	defer s.mu.Unlock()
	return &memoryTx{store: s, snapshot: s.state.clone(), root: true}, nil
}

func (t *memoryTx) Commit() error {
	if t.done {
		return fmt.Errorf("tx already closed")
	}
	t.done = true
	if t.root {
		t.store.txMu.Unlock()
	}
	return nil
}

func (t *memoryTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.mu.Lock()
	t.store.state = t.snapshot
	t.store.mu.Unlock()
	if t.root {
		t.store.txMu.Unlock()
	}
	return nil
}

func (t *memoryTx) Savepoint(ctx context.Context) (Tx, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return &memoryTx{store: t.store, snapshot: t.store.state.clone()}, nil
}

// --- inventory ---

func (s *memoryStore) ListInventory(ctx context.Context) ([]InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := []InventoryItem{}
	for _, item := range s.state.inventory {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

func (s *memoryStore) GetInventoryItem(ctx context.Context, id string) (*InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.state.inventory[id]
	if !ok {
		return nil, notFound("Inventory item")
	}
	return &item, nil
}

func (s *memoryStore) findByName(name string) (InventoryItem, bool) {
	for _, item := range s.state.inventory {
		if item.Name == name {
			return item, true
		}
	}
	return InventoryItem{}, false
}

func (s *memoryStore) GetInventoryItemByName(ctx context.Context, name string) (*InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.findByName(name)
	if !ok {
		return nil, notFound("Inventory item")
	}
	return &item, nil
}

func (s *memoryStore) GetInventoryItemForUpdate(ctx context.Context, tx Tx, id string) (*InventoryItem, error) {
	return s.GetInventoryItem(ctx, id)
}

func (s *memoryStore) GetInventoryItemsByNameForUpdate(ctx context.Context, tx Tx, names []string) (map[string]*InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	locked := make(map[string]*InventoryItem, len(names))
	for _, name := range names {
		if item, ok := s.findByName(name); ok {
			locked[name] = &item
		}
	}
	return locked, nil
}

func (s *memoryStore) CreateInventoryItem(ctx context.Context, tx Tx, item *InventoryItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.findByName(item.Name); exists {
		return fmt.Errorf("inventory item %q already exists: %w", item.Name, ErrConflict)
	}
	s.state.inventory[item.ID] = *item
	return nil
}

func (s *memoryStore) UpdateInventoryItem(ctx context.Context, tx Tx, item *InventoryItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInventoryUpdate != "" && s.failInventoryUpdate == item.Name {
		return fmt.Errorf("injected failure updating %s", item.Name)
	}
	current, ok := s.state.inventory[item.ID]
	if !ok || current.Version != item.Version {
		return fmt.Errorf("inventory item %s version %d: %w", item.ID, item.Version, ErrConflict)
	}
	if other, exists := s.findByName(item.Name); exists && other.ID != item.ID {
		return fmt.Errorf("inventory item %q already exists: %w", item.Name, ErrConflict)
	}
	if item.Quantity < 0 {
		return fmt.Errorf("quantity check violated for %s", item.Name)
	}
	item.Version++
	item.UpdatedAt = time.Now()
	item.RefreshStatus()
	s.state.inventory[item.ID] = *item
	return nil
}

func (s *memoryStore) DeleteInventoryItem(ctx context.Context, tx Tx, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.inventory[id]; !ok {
		return notFound("Inventory item")
	}
	delete(s.state.inventory, id)
	return nil
}

func (s *memoryStore) InsertInventoryMovement(ctx context.Context, tx Tx, movement *InventoryMovement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.movements = append(s.state.movements, *movement)
	return nil
}

func (s *memoryStore) CountOpenOrdersWithItem(ctx context.Context, tx Tx, itemName string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, o := range s.state.orders {
		if o.Status == OrderStatusDelivered {
			continue
		}
		for _, it := range o.Items {
			if it.ItemName == itemName {
				count++
				break
			}
		}
	}
	return count, nil
}

// --- branch inventory ---

func branchKey(branchID, name string) string {
	return branchID + "|" + name
}

func (s *memoryStore) ListBranchInventory(ctx context.Context, branchID string) ([]BranchInventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := []BranchInventoryItem{}
	for _, item := range s.state.branchInventory {
		if item.BranchID == branchID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

func (s *memoryStore) GetBranchInventoryItemForUpdate(ctx context.Context, tx Tx, branchID, name string) (*BranchInventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.state.branchInventory[branchKey(branchID, name)]
	if !ok {
		return nil, notFound("Branch inventory item")
	}
	return &item, nil
}

func (s *memoryStore) InsertBranchCredit(ctx context.Context, tx Tx, credit *BranchCredit) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := credit.OrderID + "|" + credit.ItemName
	if _, exists := s.state.branchCredits[key]; exists {
		return false, nil
	}
	s.state.branchCredits[key] = *credit
	return true, nil
}

func (s *memoryStore) IncrementBranchInventory(ctx context.Context, tx Tx, item *BranchInventoryItem) (*BranchInventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := branchKey(item.BranchID, item.Name)
	stored, exists := s.state.branchInventory[key]
	if exists {
		stored.Quantity += item.Quantity
		stored.BranchName = item.BranchName
		stored.Version++
		stored.LastUpdated = item.LastUpdated
	} else {
		stored = *item
		stored.Version = 1
	}
	stored.RefreshStatus()
	s.state.branchInventory[key] = stored
	return &stored, nil
}

// --- orders ---

func (s *memoryStore) CreateOrder(ctx context.Context, order *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *order
	stored.Items = append([]OrderItem(nil), order.Items...)
	s.state.orders[order.ID] = stored
	return nil
}

func (s *memoryStore) GetOrder(ctx context.Context, id string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.state.orders[id]
	if !ok {
		return nil, notFound("Order")
	}
	order.Items = append([]OrderItem(nil), order.Items...)
	return &order, nil
}

func (s *memoryStore) GetOrderForUpdate(ctx context.Context, tx Tx, id string) (*Order, error) {
	return s.GetOrder(ctx, id)
}

func (s *memoryStore) UpdateOrder(ctx context.Context, tx Tx, order *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.orders[order.ID]; !ok {
		return notFound("Order")
	}
	stored := *order
	stored.Items = append([]OrderItem(nil), order.Items...)
	s.state.orders[order.ID] = stored
	return nil
}

func (s *memoryStore) DeleteOrder(ctx context.Context, id string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.state.orders[id]
	if !ok {
		return nil, notFound("Order")
	}
	delete(s.state.orders, id)
	return &order, nil
}

func (s *memoryStore) ListOrders(ctx context.Context) ([]Order, error) {
	return s.ListOrdersByStatus(ctx)
}

// ListOrdersByStatus sem status devolve todos os pedidos
func (s *memoryStore) ListOrdersByStatus(ctx context.Context, statuses ...OrderStatus) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	orders := []Order{}
	for _, o := range s.state.orders {
		if len(statuses) > 0 && !containsStatus(statuses, o.Status) {
			continue
		}
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].OrderDate.After(orders[j].OrderDate) })
	return orders, nil
}

func containsStatus(statuses []OrderStatus, status OrderStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// --- outbox ---

func (s *memoryStore) InsertSyncEvent(ctx context.Context, tx Tx, event *BranchOrderSyncEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.syncEvents = append(s.state.syncEvents, *event)
	return nil
}

func (s *memoryStore) ClaimDueSyncEvents(ctx context.Context, tx Tx, now time.Time, limit int) ([]BranchOrderSyncEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	due := []BranchOrderSyncEvent{}
	for _, e := range s.state.syncEvents {
		if e.DeliveredAt == nil && !e.Dead && !e.NextAttemptAt.After(now) {
			due = append(due, e)
		}
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *memoryStore) MarkSyncEventDelivered(ctx context.Context, tx Tx, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.state.syncEvents {
		if s.state.syncEvents[i].ID == id {
			s.state.syncEvents[i].DeliveredAt = &at
			s.state.syncEvents[i].LastError = ""
		}
	}
	return nil
}

func (s *memoryStore) RescheduleSyncEvent(ctx context.Context, tx Tx, event *BranchOrderSyncEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.state.syncEvents {
		if s.state.syncEvents[i].ID == event.ID {
			s.state.syncEvents[i].Attempts = event.Attempts
			s.state.syncEvents[i].NextAttemptAt = event.NextAttemptAt
			s.state.syncEvents[i].LastError = event.LastError
			s.state.syncEvents[i].Dead = event.Dead
		}
	}
	return nil
}

func (s *memoryStore) syncEvents() []BranchOrderSyncEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]BranchOrderSyncEvent(nil), s.state.syncEvents...)
}

func (s *memoryStore) movements() []InventoryMovement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]InventoryMovement(nil), s.state.movements...)
}

// --- waste bin ---

func (s *memoryStore) EnsureWasteBin(ctx context.Context, bin *FactoryWasteBin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.wasteBin == nil {
		stored := *bin
		s.state.wasteBin = &stored
	}
	return nil
}

func (s *memoryStore) GetWasteBin(ctx context.Context) (*FactoryWasteBin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.wasteBin == nil {
		return nil, notFound("Waste bin")
	}
	bin := *s.state.wasteBin
	return &bin, nil
}

func (s *memoryStore) GetWasteBinForUpdate(ctx context.Context, tx Tx) (*FactoryWasteBin, error) {
	return s.GetWasteBin(ctx)
}

func (s *memoryStore) UpdateWasteBin(ctx context.Context, tx Tx, bin *FactoryWasteBin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *bin
	s.state.wasteBin = &stored
	return nil
}

func (s *memoryStore) InsertWasteEntry(ctx context.Context, tx Tx, entry *WasteEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.state.wasteEntries {
		if e.CollectionRequestID == entry.CollectionRequestID {
			return false, nil
		}
	}
	s.state.wasteEntries = append(s.state.wasteEntries, *entry)
	return true, nil
}

func (s *memoryStore) InsertRecycleEvent(ctx context.Context, tx Tx, event *RecycleEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.recycleEvents = append(s.state.recycleEvents, *event)
	return nil
}

func (s *memoryStore) ListWasteEntries(ctx context.Context, filter WasteHistoryFilter) ([]WasteEntry, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := []WasteEntry{}
	for _, e := range s.state.wasteEntries {
		if filter.BranchID != "" && e.SourceBranchID != filter.BranchID {
			continue
		}
		if filter.WasteType != "" && e.WasteType != filter.WasteType {
			continue
		}
		if filter.StartDate != nil && e.Date.Before(*filter.StartDate) {
			continue
		}
		if filter.EndDate != nil && e.Date.After(*filter.EndDate) {
			continue
		}
		matched = append(matched, e)
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Date.After(matched[j].Date) })

	total := len(matched)
	if filter.Limit > 0 {
		if filter.Offset >= total {
			return []WasteEntry{}, total, nil
		}
		end := filter.Offset + filter.Limit
		if end > total {
			end = total
		}
		matched = matched[filter.Offset:end]
	}
	return matched, total, nil
}

func (s *memoryStore) ListRecycleEvents(ctx context.Context, from, to time.Time) ([]RecycleEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := []RecycleEvent{}
	for _, e := range s.state.recycleEvents {
		if !e.Date.Before(from) && e.Date.Before(to) {
			events = append(events, e)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Date.Before(events[j].Date) })
	return events, nil
}

// --- emergency ---

func (s *memoryStore) EnsureBrigade(ctx context.Context, tx Tx, brigadeID, brigadeName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.brigades[brigadeID]; !ok {
		s.state.brigades[brigadeID] = BrigadeWaterLevel{
			BrigadeID:   brigadeID,
			BrigadeName: brigadeName,
			Level:       100,
			UpdatedAt:   time.Now(),
		}
	}
	return nil
}

func (s *memoryStore) GetBrigade(ctx context.Context, brigadeID string) (*BrigadeWaterLevel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	brigade, ok := s.state.brigades[brigadeID]
	if !ok {
		return nil, notFound("Brigade")
	}
	return &brigade, nil
}

func (s *memoryStore) GetBrigadeForUpdate(ctx context.Context, tx Tx, brigadeID string) (*BrigadeWaterLevel, error) {
	return s.GetBrigade(ctx, brigadeID)
}

func (s *memoryStore) UpdateBrigade(ctx context.Context, tx Tx, brigade *BrigadeWaterLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.brigades[brigade.BrigadeID]; !ok {
		return notFound("Brigade")
	}
	s.state.brigades[brigade.BrigadeID] = *brigade
	return nil
}

func (s *memoryStore) InsertEmergencyRequest(ctx context.Context, tx Tx, request *EmergencyRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.emergencies = append(s.state.emergencies, *request)
	return nil
}

func (s *memoryStore) ListEmergencyRequests(ctx context.Context, brigadeID string) ([]EmergencyRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	requests := []EmergencyRequest{}
	for _, r := range s.state.emergencies {
		if brigadeID == "" || r.BrigadeID == brigadeID {
			requests = append(requests, r)
		}
	}
	sort.SliceStable(requests, func(i, j int) bool { return requests[i].CreatedAt.After(requests[j].CreatedAt) })
	return requests, nil
}

var _ Store = (*memoryStore)(nil)

// seedItem cadastra um item direto no store
func seedItem(s *memoryStore, name string, quantity int) *InventoryItem {
	item := NewInventoryItem(name, quantity, "bottles", 10, 1000, decimal.NewFromInt(100))
	s.mu.Lock()
	s.state.inventory[item.ID] = *item
	s.mu.Unlock()
	return item
}

// seedOrder grava um pedido com o status informado
func seedOrder(s *memoryStore, status OrderStatus, items ...OrderItem) *Order {
	order := NewOrder(&ValidatedOrderDraft{
		BranchName:           "Colombo Branch",
		BranchLocation:       "Colombo 07",
		BranchID:             "BR-001",
		Items:                items,
		Priority:             OrderPriorityNormal,
		ExpectedDeliveryDate: time.Now().Add(48 * time.Hour),
		ContactPerson:        "Nimal",
		ContactPhone:         "0771234567",
	})
	order.Status = status
	_ = s.CreateOrder(context.Background(), order)
	return order
}

func (s *memoryStore) itemQuantity(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, _ := s.findByName(name)
	return item.Quantity
}
