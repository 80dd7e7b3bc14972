package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const orderColumns = `id, order_number, branch_name, branch_location, branch_id, items, status, priority,
	order_date, expected_delivery_date, accepted_date, accepted_by, contact_person, contact_phone,
	notes, source, original_branch_order_id, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var order Order
	err := row.Scan(
		&order.ID,
		&order.OrderNumber,
		&order.BranchName,
		&order.BranchLocation,
		&order.BranchID,
		&order.Items,
		&order.Status,
		&order.Priority,
		&order.OrderDate,
		&order.ExpectedDeliveryDate,
		&order.AcceptedDate,
		&order.AcceptedBy,
		&order.ContactPerson,
		&order.ContactPhone,
		&order.Notes,
		&order.Source,
		&order.OriginalBranchOrderID,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func collectOrders(rows pgx.Rows) ([]Order, error) {
	defer rows.Close()

	orders := []Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

// CreateOrder insere um novo pedido
func (s *PostgresStore) CreateOrder(ctx context.Context, order *Order) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`,
		order.ID,
		order.OrderNumber,
		order.BranchName,
		order.BranchLocation,
		order.BranchID,
		order.Items,
		order.Status,
		order.Priority,
		order.OrderDate,
		order.ExpectedDeliveryDate,
		order.AcceptedDate,
		order.AcceptedBy,
		order.ContactPerson,
		order.ContactPhone,
		order.Notes,
		order.Source,
		order.OriginalBranchOrderID,
		order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// GetOrder busca um pedido pelo id
func (s *PostgresStore) GetOrder(ctx context.Context, id string) (*Order, error) {
	order, err := scanOrder(s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return nil, mapNoRows(err, "Order")
	}
	return order, nil
}

// GetOrderForUpdate obtém o pedido com lock pessimista (FOR UPDATE)
func (s *PostgresStore) GetOrderForUpdate(ctx context.Context, tx Tx, id string) (*Order, error) {
	order, err := scanOrder(pgTx(tx).QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, mapNoRows(err, "Order")
	}
	return order, nil
}

// UpdateOrder grava status e dados de aceite
func (s *PostgresStore) UpdateOrder(ctx context.Context, tx Tx, order *Order) error {
	tag, err := pgTx(tx).Exec(ctx, `
		UPDATE orders
		SET status = $1,
		    accepted_date = $2,
		    accepted_by = $3,
		    updated_at = $4
		WHERE id = $5
	`, order.Status, order.AcceptedDate, order.AcceptedBy, order.UpdatedAt, order.ID)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("Order")
	}
	return nil
}

// DeleteOrder remove o pedido e devolve o registro removido
func (s *PostgresStore) DeleteOrder(ctx context.Context, id string) (*Order, error) {
	order, err := scanOrder(s.db.QueryRow(ctx, `DELETE FROM orders WHERE id = $1 RETURNING `+orderColumns, id))
	if err != nil {
		return nil, mapNoRows(err, "Order")
	}
	return order, nil
}

// ListOrders lista pedidos do mais recente para o mais antigo
func (s *PostgresStore) ListOrders(ctx context.Context) ([]Order, error) {
	rows, err := s.db.Query(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY order_date DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return collectOrders(rows)
}

// ListOrdersByStatus lista pedidos nos status informados
func (s *PostgresStore) ListOrdersByStatus(ctx context.Context, statuses ...OrderStatus) ([]Order, error) {
	values := make([]string, len(statuses))
	for i, status := range statuses {
		values[i] = string(status)
	}

	rows, err := s.db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status = ANY($1)
		ORDER BY order_date DESC
	`, values)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders by status: %w", err)
	}
	return collectOrders(rows)
}

const branchInventoryColumns = `branch_id, name, quantity, unit, min_stock_level, max_stock_level, branch_name, version, last_updated`

func scanBranchInventoryItem(row pgx.Row) (*BranchInventoryItem, error) {
	var item BranchInventoryItem
	err := row.Scan(
		&item.BranchID,
		&item.Name,
		&item.Quantity,
		&item.Unit,
		&item.MinStockLevel,
		&item.MaxStockLevel,
		&item.BranchName,
		&item.Version,
		&item.LastUpdated,
	)
	if err != nil {
		return nil, err
	}
	item.RefreshStatus()
	return &item, nil
}

// ListBranchInventory lista o estoque de uma filial
func (s *PostgresStore) ListBranchInventory(ctx context.Context, branchID string) ([]BranchInventoryItem, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+branchInventoryColumns+` FROM branch_inventory WHERE branch_id = $1 ORDER BY name`, branchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list branch inventory: %w", err)
	}
	defer rows.Close()

	items := []BranchInventoryItem{}
	for rows.Next() {
		item, err := scanBranchInventoryItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan branch inventory item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// GetBranchInventoryItemForUpdate obtém a linha da filial com lock pessimista
func (s *PostgresStore) GetBranchInventoryItemForUpdate(ctx context.Context, tx Tx, branchID, name string) (*BranchInventoryItem, error) {
	item, err := scanBranchInventoryItem(pgTx(tx).QueryRow(ctx, `
		SELECT `+branchInventoryColumns+`
		FROM branch_inventory
		WHERE branch_id = $1 AND name = $2
		FOR UPDATE
	`, branchID, name))
	if err != nil {
		return nil, mapNoRows(err, "Branch inventory item")
	}
	return item, nil
}

// InsertBranchCredit registra o crédito de uma linha entregue
func (s *PostgresStore) InsertBranchCredit(ctx context.Context, tx Tx, credit *BranchCredit) (bool, error) {
	tag, err := pgTx(tx).Exec(ctx, `
		INSERT INTO branch_credits (order_id, item_name, branch_id, quantity, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (order_id, item_name) DO NOTHING
	`, credit.OrderID, credit.ItemName, credit.BranchID, credit.Quantity, credit.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert branch credit: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// IncrementBranchInventory faz o upsert por (branch_id, name)
func (s *PostgresStore) IncrementBranchInventory(ctx context.Context, tx Tx, item *BranchInventoryItem) (*BranchInventoryItem, error) {
	stored, err := scanBranchInventoryItem(pgTx(tx).QueryRow(ctx, `
		INSERT INTO branch_inventory (branch_id, name, quantity, unit, min_stock_level, max_stock_level, branch_name, version, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1, $8)
		ON CONFLICT (branch_id, name) DO UPDATE
		SET quantity = branch_inventory.quantity + EXCLUDED.quantity,
		    branch_name = EXCLUDED.branch_name,
		    version = branch_inventory.version + 1,
		    last_updated = EXCLUDED.last_updated
		RETURNING `+branchInventoryColumns,
		item.BranchID,
		item.Name,
		item.Quantity,
		item.Unit,
		item.MinStockLevel,
		item.MaxStockLevel,
		item.BranchName,
		item.LastUpdated,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert branch inventory: %w", err)
	}
	return stored, nil
}

const syncEventColumns = `id, order_id, branch_order_id, status, accepted_date, attempts, next_attempt_at,
	last_error, dead, delivered_at, created_at`

// InsertSyncEvent grava o evento de outbox na mesma transação da mudança de status
func (s *PostgresStore) InsertSyncEvent(ctx context.Context, tx Tx, event *BranchOrderSyncEvent) error {
	_, err := pgTx(tx).Exec(ctx, `
		INSERT INTO branch_order_sync_events (`+syncEventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		event.ID,
		event.OrderID,
		event.BranchOrderID,
		event.Status,
		event.AcceptedDate,
		event.Attempts,
		event.NextAttemptAt,
		event.LastError,
		event.Dead,
		event.DeliveredAt,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sync event: %w", err)
	}
	return nil
}

// ClaimDueSyncEvents trava os eventos vencidos, pulando os que outro drainer já pegou
func (s *PostgresStore) ClaimDueSyncEvents(ctx context.Context, tx Tx, now time.Time, limit int) ([]BranchOrderSyncEvent, error) {
	rows, err := pgTx(tx).Query(ctx, `
		SELECT `+syncEventColumns+`
		FROM branch_order_sync_events
		WHERE delivered_at IS NULL AND dead = FALSE AND next_attempt_at <= $1
		ORDER BY created_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim sync events: %w", err)
	}
	defer rows.Close()

	events := []BranchOrderSyncEvent{}
	for rows.Next() {
		var e BranchOrderSyncEvent
		if err := rows.Scan(
			&e.ID,
			&e.OrderID,
			&e.BranchOrderID,
			&e.Status,
			&e.AcceptedDate,
			&e.Attempts,
			&e.NextAttemptAt,
			&e.LastError,
			&e.Dead,
			&e.DeliveredAt,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sync event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// MarkSyncEventDelivered marca o evento como entregue
func (s *PostgresStore) MarkSyncEventDelivered(ctx context.Context, tx Tx, id string, at time.Time) error {
	_, err := pgTx(tx).Exec(ctx,
		`UPDATE branch_order_sync_events SET delivered_at = $1, last_error = '' WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("failed to mark sync event delivered: %w", err)
	}
	return nil
}

// RescheduleSyncEvent grava tentativas, próximo horário e último erro
func (s *PostgresStore) RescheduleSyncEvent(ctx context.Context, tx Tx, event *BranchOrderSyncEvent) error {
	_, err := pgTx(tx).Exec(ctx, `
		UPDATE branch_order_sync_events
		SET attempts = $1, next_attempt_at = $2, last_error = $3, dead = $4
		WHERE id = $5
	`, event.Attempts, event.NextAttemptAt, event.LastError, event.Dead, event.ID)
	if err != nil {
		return fmt.Errorf("failed to reschedule sync event: %w", err)
	}
	return nil
}
