package main

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
)

const inventoryColumns = `id, name, quantity, unit, min_stock_level, max_stock_level, price, version, created_at, updated_at`

func scanInventoryItem(row pgx.Row) (*InventoryItem, error) {
	var item InventoryItem
	err := row.Scan(
		&item.ID,
		&item.Name,
		&item.Quantity,
		&item.Unit,
		&item.MinStockLevel,
		&item.MaxStockLevel,
		&item.Price,
		&item.Version,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	item.RefreshStatus()
	return &item, nil
}

// ListInventory lista o estoque da fábrica ordenado por nome
func (s *PostgresStore) ListInventory(ctx context.Context) ([]InventoryItem, error) {
	rows, err := s.db.Query(ctx, `SELECT `+inventoryColumns+` FROM inventory_items ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list inventory: %w", err)
	}
	defer rows.Close()

	items := []InventoryItem{}
	for rows.Next() {
		item, err := scanInventoryItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan inventory item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// GetInventoryItem busca um item pelo id
func (s *PostgresStore) GetInventoryItem(ctx context.Context, id string) (*InventoryItem, error) {
	item, err := scanInventoryItem(s.db.QueryRow(ctx,
		`SELECT `+inventoryColumns+` FROM inventory_items WHERE id = $1`, id))
	if err != nil {
		return nil, mapNoRows(err, "Inventory item")
	}
	return item, nil
}

// GetInventoryItemByName busca um item pelo nome
func (s *PostgresStore) GetInventoryItemByName(ctx context.Context, name string) (*InventoryItem, error) {
	item, err := scanInventoryItem(s.db.QueryRow(ctx,
		`SELECT `+inventoryColumns+` FROM inventory_items WHERE name = $1`, name))
	if err != nil {
		return nil, mapNoRows(err, "Inventory item")
	}
	return item, nil
}

// GetInventoryItemForUpdate obtém o item com lock pessimista (FOR UPDATE)
func (s *PostgresStore) GetInventoryItemForUpdate(ctx context.Context, tx Tx, id string) (*InventoryItem, error) {
	item, err := scanInventoryItem(pgTx(tx).QueryRow(ctx,
		`SELECT `+inventoryColumns+` FROM inventory_items WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, mapNoRows(err, "Inventory item")
	}
	return item, nil
}

// GetInventoryItemsByNameForUpdate trava todas as linhas de uma vez, sempre na mesma ordem
func (s *PostgresStore) GetInventoryItemsByNameForUpdate(ctx context.Context, tx Tx, names []string) (map[string]*InventoryItem, error) {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	rows, err := pgTx(tx).Query(ctx, `
		SELECT `+inventoryColumns+`
		FROM inventory_items
		WHERE name = ANY($1)
		ORDER BY name
		FOR UPDATE
	`, sorted)
	if err != nil {
		return nil, fmt.Errorf("failed to lock inventory items: %w", err)
	}
	defer rows.Close()

	items := make(map[string]*InventoryItem, len(sorted))
	for rows.Next() {
		item, err := scanInventoryItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan inventory item: %w", err)
		}
		items[item.Name] = item
	}
	return items, rows.Err()
}

// CreateInventoryItem insere um novo item; nome duplicado vira ErrConflict
func (s *PostgresStore) CreateInventoryItem(ctx context.Context, tx Tx, item *InventoryItem) error {
	_, err := pgTx(tx).Exec(ctx, `
		INSERT INTO inventory_items (`+inventoryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		item.ID,
		item.Name,
		item.Quantity,
		item.Unit,
		item.MinStockLevel,
		item.MaxStockLevel,
		item.Price,
		item.Version,
		item.CreatedAt,
		item.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("inventory item %q already exists: %w", item.Name, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to create inventory item: %w", err)
	}
	return nil
}

// UpdateInventoryItem faz compare-and-swap pela coluna version
func (s *PostgresStore) UpdateInventoryItem(ctx context.Context, tx Tx, item *InventoryItem) error {
	var newVersion int
	err := pgTx(tx).QueryRow(ctx, `
		UPDATE inventory_items
		SET name = $1,
		    quantity = $2,
		    unit = $3,
		    min_stock_level = $4,
		    max_stock_level = $5,
		    price = $6,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $7 AND version = $8
		RETURNING version
	`,
		item.Name,
		item.Quantity,
		item.Unit,
		item.MinStockLevel,
		item.MaxStockLevel,
		item.Price,
		item.ID,
		item.Version,
	).Scan(&newVersion)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("inventory item %s version %d: %w", item.ID, item.Version, ErrConflict)
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("inventory item %q already exists: %w", item.Name, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to update inventory item: %w", err)
	}

	item.Version = newVersion
	item.RefreshStatus()
	return nil
}

// DeleteInventoryItem remove o item
func (s *PostgresStore) DeleteInventoryItem(ctx context.Context, tx Tx, id string) error {
	tag, err := pgTx(tx).Exec(ctx, `DELETE FROM inventory_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete inventory item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("Inventory item")
	}
	return nil
}

// InsertInventoryMovement registra uma movimentação de estoque
func (s *PostgresStore) InsertInventoryMovement(ctx context.Context, tx Tx, movement *InventoryMovement) error {
	_, err := pgTx(tx).Exec(ctx, `
		INSERT INTO inventory_movements (id, item_name, order_id, change_quantity, movement_type, reason, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)
	`,
		movement.ID,
		movement.ItemName,
		movement.OrderID,
		movement.ChangeQuantity,
		movement.MovementType,
		movement.Reason,
		movement.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert movement record: %w", err)
	}
	return nil
}

// CountOpenOrdersWithItem conta pedidos não entregues que ainda citam o item
func (s *PostgresStore) CountOpenOrdersWithItem(ctx context.Context, tx Tx, itemName string) (int, error) {
	var count int
	err := pgTx(tx).QueryRow(ctx, `
		SELECT COUNT(*)
		FROM orders
		WHERE status <> $1
		  AND items @> jsonb_build_array(jsonb_build_object('itemName', $2::text))
	`, OrderStatusDelivered, itemName).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count open orders: %w", err)
	}
	return count, nil
}
