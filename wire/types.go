package wire

import "encoding/json"

// Inbound message types. The discriminator lives in the top-level "type"
// field of an otherwise flat JSON object; there is no framing beyond
// one-object-per-socket-read.
const (
	TypeClientInfo        = "client_info"
	TypeDisconnectRequest = "disconnect_request"
	TypeInventoryUpdate   = "inventory_update"
	TypeRestockNotice     = "restock_notice"
	TypeOrderRequest      = "order_request"
	TypeCancelOrder       = "cancel_order"
	TypeOrderStatusQuery  = "order_status"
	TypeOrderDispatch     = "order_dispatch"
	TypeDeliveryUpdate    = "delivery_update"
)

// Outbound push types (server -> client).
const (
	TypeSupplyRequest        = "supply_request"
	TypeOrderForDistribution = "order_for_distribution"
)

// Fields are pointers so a missing key and an explicit null are both
// distinguishable from a zero value during validation.

type Location struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type ClientInfo struct {
	Timestamp   *string   `json:"timestamp"`
	Location    *Location `json:"location"`
	HubID       *string   `json:"hub_id"`
	WarehouseID *string   `json:"warehouse_id"`
}

type DisconnectRequest struct {
	UserID    *string `json:"user_id"`
	Timestamp *string `json:"timestamp"`
}

type InventoryItem struct {
	ItemType   *int `json:"item_type"`
	StockLevel *int `json:"stock_level"`
	Threshold  *int `json:"threshold"`
}

type InventoryUpdate struct {
	UserID    *string         `json:"user_id"`
	Inventory []InventoryItem `json:"inventory"`
}

type RestockNotice struct {
	UserID     *string `json:"user_id"`
	ItemType   *int    `json:"item_type"`
	StockLevel *int    `json:"stock_level"`
}

type OrderItemRequest struct {
	ItemType *int `json:"item_type"`
	Quantity *int `json:"quantity"`
}

type OrderRequest struct {
	HubID   *string `json:"hub_id"`
	OrderID *string `json:"order_id"`
	// ItemsNeeded stays raw so a missing or null key can be told apart
	// from an empty array during validation.
	ItemsNeeded json.RawMessage `json:"items_needed"`
}

type CancelOrder struct {
	OrderID *string `json:"order_id"`
}

type OrderStatusQuery struct {
	Type      *string `json:"type"`
	HubID     *string `json:"hub_id"`
	Timestamp *string `json:"timestamp"`
	OrderID   *string `json:"order_id"`
}

type OrderDispatch struct {
	OrderID      *string         `json:"order_id"`
	Status       *string         `json:"status"`
	ItemsShipped json.RawMessage `json:"items_shipped"`
}

type DeliveryUpdate struct {
	Timestamp *string `json:"timestamp"`
	HubID     *string `json:"hub_id"`
	OrderID   *string `json:"order_id"`
	Status    *string `json:"status"`
}

// SupplyRequest is pushed to a warehouse asking it to ship against an order.
type SupplyRequest struct {
	Type        string              `json:"type"`
	Timestamp   string              `json:"timestamp"`
	OrderID     string              `json:"order_id"`
	ItemsNeeded []SupplyRequestItem `json:"items_needed"`
}

type SupplyRequestItem struct {
	ItemType int `json:"item_type"`
	Quantity int `json:"quantity"`
	// FulfilledBy is set only in the fulfillment report, never in the
	// copy pushed to warehouses.
	FulfilledBy string `json:"fulfilled_by,omitempty"`
}

// OrderForDistribution is pushed to the owning hub when a warehouse
// dispatches its order.
type OrderForDistribution struct {
	Type         string          `json:"type"`
	Timestamp    string          `json:"timestamp"`
	OrderID      string          `json:"order_id"`
	Status       string          `json:"status"`
	ItemsShipped json.RawMessage `json:"items_shipped"`
}
