package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type InventoryEntry struct {
	ID             int64     `json:"id"`
	OwnerID        string    `json:"owner_id"`
	ItemType       int       `json:"item_type"`
	StockLevel     int       `json:"stock_level"`
	StockThreshold int       `json:"stock_threshold"`
	UpdatedAt      time.Time `json:"updated_at"`
}

const inventorySelectCols = `id, owner_id, item_type, stock_level, stock_threshold, updated_at`

func scanInventoryEntry(row interface{ Scan(...any) error }) (*InventoryEntry, error) {
	var e InventoryEntry
	var updatedAt any
	if err := row.Scan(&e.ID, &e.OwnerID, &e.ItemType, &e.StockLevel, &e.StockThreshold, &updatedAt); err != nil {
		return nil, err
	}
	e.UpdatedAt = parseTime(updatedAt)
	return &e, nil
}

func scanInventoryEntries(rows *sql.Rows) ([]*InventoryEntry, error) {
	var entries []*InventoryEntry
	for rows.Next() {
		e, err := scanInventoryEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// UpsertInventory replaces the stock snapshot for one (owner, item type) pair.
// Stock levels are set wholesale, never diffed; the warehouse is the source of truth.
func (db *DB) UpsertInventory(ownerID string, itemType, stockLevel, stockThreshold int) error {
	_, err := db.Exec(db.Q(`INSERT INTO inventory (owner_id, item_type, stock_level, stock_threshold)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (owner_id, item_type) DO UPDATE
		SET stock_level=excluded.stock_level, stock_threshold=excluded.stock_threshold, updated_at=datetime('now','localtime')`),
		ownerID, itemType, stockLevel, stockThreshold)
	if err != nil {
		return fmt.Errorf("upsert inventory %s/%d: %w", ownerID, itemType, err)
	}
	return nil
}

func (db *DB) GetInventoryEntry(ownerID string, itemType int) (*InventoryEntry, error) {
	row := db.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM inventory WHERE owner_id=? AND item_type=?`, inventorySelectCols)),
		ownerID, itemType)
	return scanInventoryEntry(row)
}

func (db *DB) ListOwnerInventory(ownerID string) ([]*InventoryEntry, error) {
	rows, err := db.Query(db.Q(fmt.Sprintf(`SELECT %s FROM inventory WHERE owner_id=? ORDER BY item_type`, inventorySelectCols)), ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanInventoryEntries(rows)
}

func (db *DB) ListInventory() ([]*InventoryEntry, error) {
	rows, err := db.Query(db.Q(fmt.Sprintf(`SELECT %s FROM inventory ORDER BY owner_id, item_type`, inventorySelectCols)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanInventoryEntries(rows)
}

// FindWarehouseForItem returns the id of an online warehouse holding at least
// quantity units of itemType. Ties break on lowest warehouse id so repeated
// queries against unchanged stock pick the same warehouse. Returns "" when no
// warehouse qualifies.
func (db *DB) FindWarehouseForItem(itemType, quantity int) (string, error) {
	query := fmt.Sprintf(`SELECT i.owner_id
		FROM inventory i
		JOIN users u ON u.user_id = i.owner_id
		WHERE i.item_type = ?
		  AND i.stock_level >= ?
		  AND u.is_online = %s
		  AND i.owner_id LIKE 'W%%'
		ORDER BY i.owner_id
		LIMIT 1`, db.dialect.BoolTrue())
	var warehouseID string
	err := db.QueryRow(db.Q(query), itemType, quantity).Scan(&warehouseID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("find warehouse for item %d: %w", itemType, err)
	}
	return warehouseID, nil
}
