// Package inventory applies warehouse stock snapshots and answers
// fulfillment queries against the store.
package inventory

import (
	"encoding/json"
	"fmt"
	"log"

	"hubcore/wire"
)

// Store is the slice of the SQL store the coordinator needs.
type Store interface {
	UpsertInventory(ownerID string, itemType, stockLevel, threshold int) error
	FindWarehouseForItem(itemType, quantity int) (string, error)
}

type Coordinator struct {
	store Store
}

func NewCoordinator(store Store) *Coordinator {
	return &Coordinator{store: store}
}

// ApplyUpdate upserts every item in an inventory_update snapshot. The
// first failed upsert aborts the rest of the message; items already
// written stay written.
func (c *Coordinator) ApplyUpdate(data []byte) wire.Response {
	var update wire.InventoryUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		return wire.Error(fmt.Sprintf("invalid inventory_update: %v", err))
	}
	if update.UserID == nil || *update.UserID == "" {
		return wire.Error("missing user_id")
	}
	if update.Inventory == nil {
		return wire.Error("missing inventory")
	}

	ownerID := *update.UserID
	for i, item := range update.Inventory {
		if item.ItemType == nil || item.StockLevel == nil || item.Threshold == nil {
			return wire.Error(fmt.Sprintf("inventory item %d: missing field", i))
		}
		if err := c.store.UpsertInventory(ownerID, *item.ItemType, *item.StockLevel, *item.Threshold); err != nil {
			log.Printf("inventory: upsert %s item %d: %v", ownerID, *item.ItemType, err)
			return wire.Error("inventory update failed")
		}
	}
	log.Printf("inventory: updated %d item(s) for %s", len(update.Inventory), ownerID)
	return wire.Success("Inventory updated")
}

// ApplyRestockNotice records a restock in the log only. The warehouse has
// already applied the change locally and pushes a full snapshot via
// inventory_update; the notice is telemetry.
func (c *Coordinator) ApplyRestockNotice(data []byte) wire.Response {
	var notice wire.RestockNotice
	if err := json.Unmarshal(data, &notice); err != nil {
		return wire.Error(fmt.Sprintf("invalid restock_notice: %v", err))
	}
	if notice.UserID == nil || *notice.UserID == "" {
		return wire.Error("missing user_id")
	}
	if notice.ItemType == nil || notice.StockLevel == nil {
		return wire.Error("missing item_type or stock_level")
	}

	log.Printf("inventory: restock notice from %s: item %d now at %d",
		*notice.UserID, *notice.ItemType, *notice.StockLevel)
	return wire.Success("Restock notice processed")
}

// FindWarehouseForItem returns the id of an online warehouse holding at
// least quantity of itemType, or "" when none qualifies. Ties break to
// the lowest warehouse id.
func (c *Coordinator) FindWarehouseForItem(itemType, quantity int) (string, error) {
	return c.store.FindWarehouseForItem(itemType, quantity)
}
