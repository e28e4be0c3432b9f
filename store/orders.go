package store

import (
	"fmt"
	"time"
)

// Order is the aggregated view of all item rows sharing one order_id.
// Status and hub id are denormalized per row but logically per-order.
type Order struct {
	OrderID string      `json:"order_id"`
	HubID   string      `json:"hub_id"`
	Status  string      `json:"status"`
	Items   []OrderItem `json:"items"`
}

type OrderItem struct {
	ItemType int `json:"item_type"`
	Quantity int `json:"quantity"`
}

type OrderHistory struct {
	ID        int64     `json:"id"`
	OrderID   string    `json:"order_id"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

// UpsertOrderItem inserts one item row for an order, or refreshes the quantity
// if the (order_id, item_type) pair already exists. New rows start Pending;
// an upsert of an existing row leaves its status alone.
func (db *DB) UpsertOrderItem(orderID, hubID string, itemType, quantity int) error {
	_, err := db.Exec(db.Q(`INSERT INTO order_items (order_id, hub_id, item_type, quantity)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (order_id, item_type) DO UPDATE
		SET hub_id=excluded.hub_id, quantity=excluded.quantity, updated_at=datetime('now','localtime')`),
		orderID, hubID, itemType, quantity)
	if err != nil {
		return fmt.Errorf("upsert order item %s/%d: %w", orderID, itemType, err)
	}
	return nil
}

// GetOrderStatus returns the status shared by the order's item rows.
func (db *DB) GetOrderStatus(orderID string) (string, error) {
	var status string
	err := db.QueryRow(db.Q(`SELECT status FROM order_items WHERE order_id=? LIMIT 1`), orderID).Scan(&status)
	if err != nil {
		return "", err
	}
	return status, nil
}

// UpdateOrderStatus sets the status on every item row of the order and
// appends a history entry.
func (db *DB) UpdateOrderStatus(orderID, status, detail string) error {
	_, err := db.Exec(db.Q(`UPDATE order_items SET status=?, updated_at=datetime('now','localtime') WHERE order_id=?`),
		status, orderID)
	if err != nil {
		return err
	}
	_, err = db.Exec(db.Q(`INSERT INTO order_history (order_id, status, detail) VALUES (?, ?, ?)`),
		orderID, status, detail)
	return err
}

// GetOrderDetail aggregates the item rows of one order. Returns a
// not-found error when the order has no rows.
func (db *DB) GetOrderDetail(orderID string) (*Order, error) {
	rows, err := db.Query(db.Q(`SELECT hub_id, status, item_type, quantity FROM order_items WHERE order_id=? ORDER BY item_type`), orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	o := &Order{OrderID: orderID}
	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(&o.HubID, &o.Status, &item.ItemType, &item.Quantity); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(o.Items) == 0 {
		return nil, fmt.Errorf("order %s: not found", orderID)
	}
	return o, nil
}

// ListApprovedOrderIDs returns the distinct ids of orders with any row in
// Approved status, the working set of the background sweep.
func (db *DB) ListApprovedOrderIDs() ([]string, error) {
	rows, err := db.Query(db.Q(`SELECT DISTINCT order_id FROM order_items WHERE status='Approved' ORDER BY order_id`))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListOrders aggregates every order, newest item row first.
func (db *DB) ListOrders(limit int) ([]*Order, error) {
	rows, err := db.Query(db.Q(`SELECT order_id, hub_id, status, item_type, quantity FROM order_items ORDER BY id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*Order
	index := make(map[string]*Order)
	for rows.Next() {
		var orderID string
		var item OrderItem
		var hubID, status string
		if err := rows.Scan(&orderID, &hubID, &status, &item.ItemType, &item.Quantity); err != nil {
			return nil, err
		}
		o, ok := index[orderID]
		if !ok {
			o = &Order{OrderID: orderID, HubID: hubID, Status: status}
			index[orderID] = o
			orders = append(orders, o)
		}
		o.Items = append(o.Items, item)
	}
	return orders, rows.Err()
}

func (db *DB) ListOrderHistory(orderID string) ([]*OrderHistory, error) {
	rows, err := db.Query(db.Q(`SELECT id, order_id, status, detail, created_at FROM order_history WHERE order_id=? ORDER BY id`), orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var history []*OrderHistory
	for rows.Next() {
		var h OrderHistory
		var createdAt any
		if err := rows.Scan(&h.ID, &h.OrderID, &h.Status, &h.Detail, &createdAt); err != nil {
			return nil, err
		}
		h.CreatedAt = parseTime(createdAt)
		history = append(history, &h)
	}
	return history, rows.Err()
}
