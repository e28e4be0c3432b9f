// Package orders owns the order state machine: creation, the deferred
// auto-approval timer, the periodic approved-order sweep with its
// supply-request fan-out, cancellation, dispatch and delivery updates.
package orders

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"hubcore/store"
	"hubcore/wire"
)

// Order statuses. Dispatch and delivery updates may write statuses
// outside this set; Shipped is the conventional one.
const (
	StatusPending   = "Pending"
	StatusApproved  = "Approved"
	StatusRequested = "Requested"
	StatusShipped   = "Shipped"
	StatusCanceled  = "Canceled"
)

// Lifecycle event names fed to the emitter.
const (
	EventOrderCreated    = "order_created"
	EventOrderApproved   = "order_approved"
	EventOrderRequested  = "order_requested"
	EventOrderCanceled   = "order_canceled"
	EventOrderDispatched = "order_dispatched"
	EventDeliveryUpdated = "delivery_updated"
)

// Store is the slice of the SQL store the manager needs.
type Store interface {
	UpsertOrderItem(orderID, hubID string, itemType, quantity int) error
	GetOrderStatus(orderID string) (string, error)
	UpdateOrderStatus(orderID, status, detail string) error
	GetOrderDetail(orderID string) (*store.Order, error)
	ListApprovedOrderIDs() ([]string, error)
}

// Sender pushes payloads to connected clients by id.
type Sender interface {
	Send(clientID string, payload []byte) error
}

// WarehouseFinder answers which warehouse can fulfill an item.
type WarehouseFinder interface {
	FindWarehouseForItem(itemType, quantity int) (string, error)
}

// Emitter receives lifecycle events. May be nil.
type Emitter interface {
	OrderEvent(event, orderID, hubID, status string)
}

type Manager struct {
	store   Store
	sender  Sender
	finder  WarehouseFinder
	emitter Emitter

	approvalDelay time.Duration
	sweepInterval time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewManager(st Store, sender Sender, finder WarehouseFinder, emitter Emitter, approvalDelay, sweepInterval time.Duration) *Manager {
	return &Manager{
		store:         st,
		sender:        sender,
		finder:        finder,
		emitter:       emitter,
		approvalDelay: approvalDelay,
		sweepInterval: sweepInterval,
		stopCh:        make(chan struct{}),
	}
}

func (m *Manager) emit(event, orderID, hubID, status string) {
	if m.emitter != nil {
		m.emitter.OrderEvent(event, orderID, hubID, status)
	}
}

// Submit creates a Pending order from an order_request and schedules its
// auto-approval timer. A payload that fails validation is dropped without
// mutation but still acknowledged; hubs get no error body on this path.
func (m *Manager) Submit(data []byte) wire.Response {
	ack := wire.Success("New order created")

	var req wire.OrderRequest
	if err := json.Unmarshal(data, &req); err != nil {
		log.Printf("orders: dropping unparseable order_request: %v", err)
		return ack
	}
	if req.HubID == nil || *req.HubID == "" || req.OrderID == nil || *req.OrderID == "" {
		log.Printf("orders: dropping order_request with missing hub_id or order_id")
		return ack
	}
	items, ok := decodeOrderItems(req.ItemsNeeded)
	if !ok {
		log.Printf("orders: dropping order_request %s with invalid items_needed", *req.OrderID)
		return ack
	}

	orderID := *req.OrderID
	hubID := *req.HubID
	for _, item := range items {
		if err := m.store.UpsertOrderItem(orderID, hubID, item.ItemType, item.Quantity); err != nil {
			log.Printf("orders: create %s: %v", orderID, err)
			return wire.Error("order creation failed")
		}
	}
	log.Printf("orders: created %s for %s with %d item(s)", orderID, hubID, len(items))
	m.emit(EventOrderCreated, orderID, hubID, StatusPending)

	m.wg.Add(1)
	go m.approveLater(orderID, hubID)
	return ack
}

// decodeOrderItems rejects a missing or null items_needed key and any
// element missing item_type or quantity. An empty array is valid.
func decodeOrderItems(raw json.RawMessage) ([]store.OrderItem, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, false
	}
	var reqs []wire.OrderItemRequest
	if err := json.Unmarshal(raw, &reqs); err != nil {
		return nil, false
	}
	items := make([]store.OrderItem, 0, len(reqs))
	for _, r := range reqs {
		if r.ItemType == nil || r.Quantity == nil {
			return nil, false
		}
		items = append(items, store.OrderItem{ItemType: *r.ItemType, Quantity: *r.Quantity})
	}
	return items, true
}

// approveLater flips the order to Approved after the cancellation window.
// It re-reads the status first; an order canceled inside the window stays
// canceled.
func (m *Manager) approveLater(orderID, hubID string) {
	defer m.wg.Done()

	timer := time.NewTimer(m.approvalDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-m.stopCh:
		return
	}

	status, err := m.store.GetOrderStatus(orderID)
	if err != nil {
		log.Printf("orders: approval check %s: %v", orderID, err)
		return
	}
	if status != StatusPending {
		return
	}
	if err := m.store.UpdateOrderStatus(orderID, StatusApproved, "auto-approved after cancellation window"); err != nil {
		log.Printf("orders: approve %s: %v", orderID, err)
		return
	}
	log.Printf("orders: approved %s", orderID)
	m.emit(EventOrderApproved, orderID, hubID, StatusApproved)
}

// Start launches the background sweep that advances Approved orders.
func (m *Manager) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.sweepOnce()
			case <-m.stopCh:
				return
			}
		}
	}()
}

// Stop halts the sweep loop and waits for in-flight timers to unwind.
func (m *Manager) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

// sweepOnce fans out supply requests for every Approved order and moves
// each one to Requested, whether or not any item found a warehouse.
func (m *Manager) sweepOnce() {
	ids, err := m.store.ListApprovedOrderIDs()
	if err != nil {
		log.Printf("orders: sweep list: %v", err)
		return
	}
	for _, orderID := range ids {
		detail, err := m.store.GetOrderDetail(orderID)
		if err != nil {
			log.Printf("orders: sweep %s: %v", orderID, err)
			continue
		}
		report := m.buildSupplyRequest(orderID, detail.Items)
		if data, err := wire.Encode(report); err == nil {
			log.Printf("orders: supply fan-out %s: %s", orderID, data)
		}
		if err := m.store.UpdateOrderStatus(orderID, StatusRequested, "supply requests issued"); err != nil {
			log.Printf("orders: sweep %s set Requested: %v", orderID, err)
			continue
		}
		m.emit(EventOrderRequested, orderID, detail.HubID, StatusRequested)
	}
}

// buildSupplyRequest asks the inventory side for a warehouse per item and
// pushes a supply_request to each one found. The returned report carries a
// fulfilled_by annotation per item, "none" when no warehouse qualified or
// the push failed. Business-level non-fulfillment never fails the sweep.
func (m *Manager) buildSupplyRequest(orderID string, items []store.OrderItem) wire.SupplyRequest {
	report := wire.SupplyRequest{
		Type:      wire.TypeSupplyRequest,
		Timestamp: time.Now().Format(time.RFC3339),
		OrderID:   orderID,
	}
	for _, item := range items {
		fulfilledBy := "none"
		warehouseID, err := m.finder.FindWarehouseForItem(item.ItemType, item.Quantity)
		if err != nil {
			log.Printf("orders: find warehouse for item %d: %v", item.ItemType, err)
		} else if warehouseID != "" {
			push := wire.SupplyRequest{
				Type:      wire.TypeSupplyRequest,
				Timestamp: report.Timestamp,
				OrderID:   orderID,
				ItemsNeeded: []wire.SupplyRequestItem{
					{ItemType: item.ItemType, Quantity: item.Quantity},
				},
			}
			payload, _ := wire.Encode(push)
			if err := m.sender.Send(warehouseID, payload); err != nil {
				log.Printf("orders: push supply_request to %s: %v", warehouseID, err)
			} else {
				fulfilledBy = warehouseID
			}
		}
		report.ItemsNeeded = append(report.ItemsNeeded, wire.SupplyRequestItem{
			ItemType:    item.ItemType,
			Quantity:    item.Quantity,
			FulfilledBy: fulfilledBy,
		})
	}
	return report
}

// HandleDispatch applies an order_dispatch from a warehouse. The owning
// hub is notified first; a failed push skips the status write so the
// store never diverges from what the hub was told.
func (m *Manager) HandleDispatch(data []byte) wire.Response {
	var req wire.OrderDispatch
	if err := json.Unmarshal(data, &req); err != nil {
		return wire.Error(fmt.Sprintf("invalid order_dispatch: %v", err))
	}
	if req.OrderID == nil || *req.OrderID == "" {
		return wire.Error("missing order_id")
	}
	if req.Status == nil || *req.Status == "" {
		return wire.Error("missing status")
	}
	if len(req.ItemsShipped) == 0 || string(req.ItemsShipped) == "null" {
		return wire.Error("missing items_shipped")
	}

	orderID := *req.OrderID
	detail, err := m.store.GetOrderDetail(orderID)
	if err != nil {
		log.Printf("orders: dispatch %s: %v", orderID, err)
		return wire.Error("Invalid order ID")
	}

	notice := wire.OrderForDistribution{
		Type:         wire.TypeOrderForDistribution,
		Timestamp:    time.Now().Format(time.RFC3339),
		OrderID:      orderID,
		Status:       *req.Status,
		ItemsShipped: req.ItemsShipped,
	}
	payload, _ := wire.Encode(notice)
	if err := m.sender.Send(detail.HubID, payload); err != nil {
		log.Printf("orders: notify hub %s for %s: %v", detail.HubID, orderID, err)
		return wire.Error("hub notification failed")
	}

	if err := m.store.UpdateOrderStatus(orderID, *req.Status, "dispatched by warehouse"); err != nil {
		log.Printf("orders: dispatch %s set status: %v", orderID, err)
		return wire.Error("order dispatch failed")
	}
	log.Printf("orders: dispatched %s as %s", orderID, *req.Status)
	m.emit(EventOrderDispatched, orderID, detail.HubID, *req.Status)
	return wire.Success("Order dispatched")
}

// Cancel moves a Pending order to Canceled. Any other status, and any
// order the store cannot find, refuses without mutation.
func (m *Manager) Cancel(data []byte) wire.Response {
	var req wire.CancelOrder
	if err := json.Unmarshal(data, &req); err != nil {
		return wire.Error(fmt.Sprintf("invalid cancel_order: %v", err))
	}
	if req.OrderID == nil || *req.OrderID == "" {
		return wire.Error("missing order_id")
	}

	orderID := *req.OrderID
	status, err := m.store.GetOrderStatus(orderID)
	if err != nil {
		log.Printf("orders: cancel %s: %v", orderID, err)
		return wire.Error("Invalid order ID")
	}
	if status != StatusPending {
		return wire.Error("Order already approved, cannot be canceled")
	}
	if err := m.store.UpdateOrderStatus(orderID, StatusCanceled, "canceled by hub"); err != nil {
		log.Printf("orders: cancel %s: %v", orderID, err)
		return wire.Error("order cancellation failed")
	}
	log.Printf("orders: canceled %s", orderID)
	m.emit(EventOrderCanceled, orderID, "", StatusCanceled)
	return wire.Success("Order canceled")
}

// StatusQuery returns the aggregated order detail for a strictly valid
// order_status request. On success the detail is returned and the
// response is ignored; otherwise detail is nil and the response carries
// the validation or lookup error.
func (m *Manager) StatusQuery(data []byte) (*store.Order, wire.Response) {
	var req wire.OrderStatusQuery
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, wire.Error(fmt.Sprintf("invalid order_status: %v", err))
	}
	if req.Type == nil {
		return nil, wire.Error("missing type")
	}
	if req.HubID == nil {
		return nil, wire.Error("missing hub_id")
	}
	if req.Timestamp == nil {
		return nil, wire.Error("missing timestamp")
	}
	if req.OrderID == nil {
		return nil, wire.Error("missing order_id")
	}

	detail, err := m.store.GetOrderDetail(*req.OrderID)
	if err != nil {
		log.Printf("orders: status query %s: %v", *req.OrderID, err)
		return nil, wire.Error("Invalid order ID")
	}
	return detail, wire.Response{}
}

// ApplyDeliveryUpdate overwrites the order status with the caller-supplied
// value. No transition check is applied; hubs are trusted on this channel.
func (m *Manager) ApplyDeliveryUpdate(data []byte) wire.Response {
	var req wire.DeliveryUpdate
	if err := json.Unmarshal(data, &req); err != nil {
		return wire.Error(fmt.Sprintf("invalid delivery_update: %v", err))
	}
	if req.Timestamp == nil {
		return wire.Error("missing timestamp")
	}
	if req.HubID == nil || *req.HubID == "" {
		return wire.Error("missing hub_id")
	}
	if req.OrderID == nil || *req.OrderID == "" {
		return wire.Error("missing order_id")
	}
	if req.Status == nil || *req.Status == "" {
		return wire.Error("missing status")
	}

	orderID := *req.OrderID
	if err := m.store.UpdateOrderStatus(orderID, *req.Status, "delivery update from "+*req.HubID); err != nil {
		log.Printf("orders: delivery update %s: %v", orderID, err)
		return wire.Error("delivery update failed")
	}
	log.Printf("orders: delivery update %s -> %s", orderID, *req.Status)
	m.emit(EventDeliveryUpdated, orderID, *req.HubID, *req.Status)
	return wire.Success("Delivery updated")
}
