package orders

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"hubcore/store"
	"hubcore/wire"
)

type fakeStore struct {
	mu      sync.Mutex
	orders  map[string]*store.Order
	updates []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{orders: make(map[string]*store.Order)}
}

func (f *fakeStore) seed(orderID, hubID, status string, items ...store.OrderItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[orderID] = &store.Order{OrderID: orderID, HubID: hubID, Status: status, Items: items}
}

func (f *fakeStore) status(orderID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return ""
	}
	return o.Status
}

func (f *fakeStore) UpsertOrderItem(orderID, hubID string, itemType, quantity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		o = &store.Order{OrderID: orderID, HubID: hubID, Status: StatusPending}
		f.orders[orderID] = o
	}
	for i := range o.Items {
		if o.Items[i].ItemType == itemType {
			o.Items[i].Quantity = quantity
			return nil
		}
	}
	o.Items = append(o.Items, store.OrderItem{ItemType: itemType, Quantity: quantity})
	return nil
}

func (f *fakeStore) GetOrderStatus(orderID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return "", errors.New("no rows")
	}
	return o.Status, nil
}

func (f *fakeStore) UpdateOrderStatus(orderID, status, detail string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.orders[orderID]; ok {
		o.Status = status
	}
	f.updates = append(f.updates, orderID+":"+status)
	return nil
}

func (f *fakeStore) GetOrderDetail(orderID string) (*store.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s: not found", orderID)
	}
	cp := *o
	cp.Items = append([]store.OrderItem(nil), o.Items...)
	return &cp, nil
}

func (f *fakeStore) ListApprovedOrderIDs() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, o := range f.orders {
		if o.Status == StatusApproved {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

type fakeSender struct {
	mu      sync.Mutex
	sent    map[string][][]byte
	failFor map[string]bool
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: make(map[string][][]byte), failFor: make(map[string]bool)}
}

func (f *fakeSender) Send(clientID string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[clientID] {
		return errors.New("not connected")
	}
	f.sent[clientID] = append(f.sent[clientID], payload)
	return nil
}

func (f *fakeSender) sentTo(clientID string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[clientID]
}

type fakeFinder struct {
	byItem map[int]string
}

func (f *fakeFinder) FindWarehouseForItem(itemType, quantity int) (string, error) {
	return f.byItem[itemType], nil
}

type mockEmitter struct {
	mu     sync.Mutex
	events []string
}

func (m *mockEmitter) OrderEvent(event, orderID, hubID, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event+":"+orderID)
}

func (m *mockEmitter) seen() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

type testRig struct {
	store   *fakeStore
	sender  *fakeSender
	finder  *fakeFinder
	emitter *mockEmitter
	manager *Manager
}

func newTestRig(t *testing.T, approvalDelay time.Duration) *testRig {
	t.Helper()
	rig := &testRig{
		store:   newFakeStore(),
		sender:  newFakeSender(),
		finder:  &fakeFinder{byItem: make(map[int]string)},
		emitter: &mockEmitter{},
	}
	rig.manager = NewManager(rig.store, rig.sender, rig.finder, rig.emitter, approvalDelay, time.Hour)
	t.Cleanup(rig.manager.Stop)
	return rig
}

func waitForStatus(t *testing.T, st *fakeStore, orderID, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st.status(orderID) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("order %s status = %q, want %q", orderID, st.status(orderID), want)
}

func TestSubmitCreatesPendingOrder(t *testing.T) {
	rig := newTestRig(t, time.Hour)

	payload := []byte(`{"hub_id":"H001","order_id":"O1","items_needed":[{"item_type":0,"quantity":5},{"item_type":1,"quantity":2}]}`)
	resp := rig.manager.Submit(payload)
	if resp.Status != wire.StatusSuccess {
		t.Fatalf("status = %q (%s)", resp.Status, resp.Message)
	}
	if resp.Message != "New order created" {
		t.Errorf("message = %q", resp.Message)
	}

	detail, err := rig.store.GetOrderDetail("O1")
	if err != nil {
		t.Fatalf("order not created: %v", err)
	}
	if detail.Status != StatusPending || detail.HubID != "H001" || len(detail.Items) != 2 {
		t.Errorf("detail = %+v", detail)
	}
	if events := rig.emitter.seen(); len(events) != 1 || events[0] != "order_created:O1" {
		t.Errorf("events = %v", events)
	}
}

func TestSubmit_InvalidPayloadIsSilentlyDropped(t *testing.T) {
	cases := map[string]string{
		"missing hub_id":        `{"order_id":"O1","items_needed":[]}`,
		"missing order_id":      `{"hub_id":"H001","items_needed":[]}`,
		"missing items_needed":  `{"hub_id":"H001","order_id":"O1"}`,
		"null items_needed":     `{"hub_id":"H001","order_id":"O1","items_needed":null}`,
		"item without quantity": `{"hub_id":"H001","order_id":"O1","items_needed":[{"item_type":0}]}`,
		"unparseable":           `{"hub_id":`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			rig := newTestRig(t, time.Hour)
			resp := rig.manager.Submit([]byte(payload))
			// The drop is silent: the caller still sees a success ack.
			if resp.Status != wire.StatusSuccess {
				t.Errorf("status = %q, want success", resp.Status)
			}
			if len(rig.store.orders) != 0 {
				t.Error("store must not be touched")
			}
		})
	}
}

func TestSubmitEmptyItemsIsValid(t *testing.T) {
	rig := newTestRig(t, time.Hour)
	resp := rig.manager.Submit([]byte(`{"hub_id":"H001","order_id":"O1","items_needed":[]}`))
	if resp.Status != wire.StatusSuccess {
		t.Errorf("status = %q", resp.Status)
	}
}

func TestAutoApproval(t *testing.T) {
	rig := newTestRig(t, 20*time.Millisecond)

	rig.manager.Submit([]byte(`{"hub_id":"H001","order_id":"O1","items_needed":[{"item_type":0,"quantity":1}]}`))
	waitForStatus(t, rig.store, "O1", StatusApproved)
}

func TestCanceledOrderStaysCanceled(t *testing.T) {
	rig := newTestRig(t, 50*time.Millisecond)

	rig.manager.Submit([]byte(`{"hub_id":"H001","order_id":"O1","items_needed":[{"item_type":0,"quantity":1}]}`))
	resp := rig.manager.Cancel([]byte(`{"order_id":"O1"}`))
	if resp.Status != wire.StatusSuccess {
		t.Fatalf("cancel: %q (%s)", resp.Status, resp.Message)
	}

	// Let the approval timer fire; it must re-read and leave the
	// cancellation in place.
	time.Sleep(150 * time.Millisecond)
	if got := rig.store.status("O1"); got != StatusCanceled {
		t.Errorf("status = %q, want Canceled", got)
	}
}

func TestCancelNonPending(t *testing.T) {
	rig := newTestRig(t, time.Hour)
	rig.store.seed("O1", "H001", StatusApproved, store.OrderItem{ItemType: 0, Quantity: 1})

	resp := rig.manager.Cancel([]byte(`{"order_id":"O1"}`))
	if resp.Status != wire.StatusError {
		t.Fatalf("status = %q, want error", resp.Status)
	}
	if resp.Message != "Order already approved, cannot be canceled" {
		t.Errorf("message = %q", resp.Message)
	}
	if rig.store.status("O1") != StatusApproved {
		t.Error("status must not change")
	}
}

func TestCancelUnknownOrder(t *testing.T) {
	rig := newTestRig(t, time.Hour)
	resp := rig.manager.Cancel([]byte(`{"order_id":"nope"}`))
	if resp.Status != wire.StatusError || resp.Message != "Invalid order ID" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestSweepOnce(t *testing.T) {
	rig := newTestRig(t, time.Hour)
	rig.store.seed("O1", "H001", StatusApproved, store.OrderItem{ItemType: 0, Quantity: 5})
	rig.store.seed("O2", "H002", StatusRequested, store.OrderItem{ItemType: 0, Quantity: 3})
	rig.finder.byItem[0] = "W001"

	rig.manager.sweepOnce()

	if got := rig.store.status("O1"); got != StatusRequested {
		t.Errorf("O1 status = %q, want Requested", got)
	}
	// Already-Requested orders are not re-processed.
	if len(rig.store.updates) != 1 {
		t.Errorf("updates = %v, want exactly one", rig.store.updates)
	}

	pushes := rig.sender.sentTo("W001")
	if len(pushes) != 1 {
		t.Fatalf("warehouse got %d pushes, want 1", len(pushes))
	}
	var req wire.SupplyRequest
	if err := json.Unmarshal(pushes[0], &req); err != nil {
		t.Fatalf("decode push: %v", err)
	}
	if req.Type != wire.TypeSupplyRequest || req.OrderID != "O1" {
		t.Errorf("push = %+v", req)
	}
	if len(req.ItemsNeeded) != 1 || req.ItemsNeeded[0].ItemType != 0 || req.ItemsNeeded[0].Quantity != 5 {
		t.Errorf("push items = %+v", req.ItemsNeeded)
	}
	if req.ItemsNeeded[0].FulfilledBy != "" {
		t.Error("push to warehouse must not carry fulfilled_by")
	}
}

func TestSweepAdvancesEvenWhenUnfulfilled(t *testing.T) {
	rig := newTestRig(t, time.Hour)
	rig.store.seed("O1", "H001", StatusApproved, store.OrderItem{ItemType: 7, Quantity: 5})
	// No warehouse carries item 7.

	rig.manager.sweepOnce()

	if got := rig.store.status("O1"); got != StatusRequested {
		t.Errorf("status = %q, want Requested even with zero fulfillment", got)
	}
}

func TestBuildSupplyRequestFulfilledBy(t *testing.T) {
	rig := newTestRig(t, time.Hour)
	rig.finder.byItem[0] = "W001"
	rig.sender.failFor["W002"] = true
	rig.finder.byItem[2] = "W002"

	report := rig.manager.buildSupplyRequest("O1", []store.OrderItem{
		{ItemType: 0, Quantity: 5},
		{ItemType: 1, Quantity: 2},
		{ItemType: 2, Quantity: 9},
	})

	if len(report.ItemsNeeded) != 3 {
		t.Fatalf("report has %d items, want 3", len(report.ItemsNeeded))
	}
	if report.ItemsNeeded[0].FulfilledBy != "W001" {
		t.Errorf("item 0 fulfilled_by = %q, want W001", report.ItemsNeeded[0].FulfilledBy)
	}
	if report.ItemsNeeded[1].FulfilledBy != "none" {
		t.Errorf("item 1 fulfilled_by = %q, want none", report.ItemsNeeded[1].FulfilledBy)
	}
	// A failed push degrades that item, it does not fail the order.
	if report.ItemsNeeded[2].FulfilledBy != "none" {
		t.Errorf("item 2 fulfilled_by = %q, want none", report.ItemsNeeded[2].FulfilledBy)
	}
}

func TestHandleDispatch(t *testing.T) {
	rig := newTestRig(t, time.Hour)
	rig.store.seed("O1", "H001", StatusRequested, store.OrderItem{ItemType: 0, Quantity: 5})

	payload := []byte(`{"order_id":"O1","status":"Shipped","items_shipped":[{"item_type":0,"quantity":5}]}`)
	resp := rig.manager.HandleDispatch(payload)
	if resp.Status != wire.StatusSuccess {
		t.Fatalf("status = %q (%s)", resp.Status, resp.Message)
	}
	if rig.store.status("O1") != "Shipped" {
		t.Errorf("status = %q, want Shipped", rig.store.status("O1"))
	}

	pushes := rig.sender.sentTo("H001")
	if len(pushes) != 1 {
		t.Fatalf("hub got %d pushes, want 1", len(pushes))
	}
	var notice wire.OrderForDistribution
	if err := json.Unmarshal(pushes[0], &notice); err != nil {
		t.Fatalf("decode notice: %v", err)
	}
	if notice.Type != wire.TypeOrderForDistribution || notice.OrderID != "O1" || notice.Status != "Shipped" {
		t.Errorf("notice = %+v", notice)
	}
}

func TestHandleDispatchPushFailureSkipsPersist(t *testing.T) {
	rig := newTestRig(t, time.Hour)
	rig.store.seed("O1", "H001", StatusRequested, store.OrderItem{ItemType: 0, Quantity: 5})
	rig.sender.failFor["H001"] = true

	payload := []byte(`{"order_id":"O1","status":"Shipped","items_shipped":[]}`)
	resp := rig.manager.HandleDispatch(payload)
	if resp.Status != wire.StatusError {
		t.Fatalf("status = %q, want error", resp.Status)
	}
	// The hub never heard about the dispatch, so the store must not
	// record it either.
	if rig.store.status("O1") != StatusRequested {
		t.Errorf("status = %q, want Requested", rig.store.status("O1"))
	}
}

func TestHandleDispatchValidation(t *testing.T) {
	rig := newTestRig(t, time.Hour)
	for name, payload := range map[string]string{
		"missing order_id":      `{"status":"Shipped","items_shipped":[]}`,
		"missing status":        `{"order_id":"O1","items_shipped":[]}`,
		"missing items_shipped": `{"order_id":"O1","status":"Shipped"}`,
		"unknown order":         `{"order_id":"nope","status":"Shipped","items_shipped":[]}`,
	} {
		t.Run(name, func(t *testing.T) {
			resp := rig.manager.HandleDispatch([]byte(payload))
			if resp.Status != wire.StatusError {
				t.Errorf("status = %q, want error", resp.Status)
			}
		})
	}
}

func TestStatusQuery(t *testing.T) {
	rig := newTestRig(t, time.Hour)
	rig.store.seed("O1", "H001", StatusPending, store.OrderItem{ItemType: 0, Quantity: 5})

	detail, _ := rig.manager.StatusQuery([]byte(`{"type":"order_status","hub_id":"H001","timestamp":"t","order_id":"O1"}`))
	if detail == nil {
		t.Fatal("expected order detail")
	}
	if detail.OrderID != "O1" || detail.Status != StatusPending || len(detail.Items) != 1 {
		t.Errorf("detail = %+v", detail)
	}
}

func TestStatusQueryStrictValidation(t *testing.T) {
	rig := newTestRig(t, time.Hour)
	rig.store.seed("O1", "H001", StatusPending)

	for name, payload := range map[string]string{
		"missing type":      `{"hub_id":"H001","timestamp":"t","order_id":"O1"}`,
		"missing hub_id":    `{"type":"order_status","timestamp":"t","order_id":"O1"}`,
		"missing timestamp": `{"type":"order_status","hub_id":"H001","order_id":"O1"}`,
		"missing order_id":  `{"type":"order_status","hub_id":"H001","timestamp":"t"}`,
	} {
		t.Run(name, func(t *testing.T) {
			detail, resp := rig.manager.StatusQuery([]byte(payload))
			if detail != nil {
				t.Fatal("expected no detail")
			}
			if resp.Status != wire.StatusError {
				t.Errorf("status = %q, want error", resp.Status)
			}
		})
	}
}

func TestStatusQueryUnknownOrder(t *testing.T) {
	rig := newTestRig(t, time.Hour)
	detail, resp := rig.manager.StatusQuery([]byte(`{"type":"order_status","hub_id":"H001","timestamp":"t","order_id":"nope"}`))
	if detail != nil || resp.Status != wire.StatusError {
		t.Errorf("detail = %v, resp = %+v", detail, resp)
	}
}

func TestDeliveryUpdateOverwritesStatus(t *testing.T) {
	rig := newTestRig(t, time.Hour)
	rig.store.seed("O1", "H001", "Shipped", store.OrderItem{ItemType: 0, Quantity: 5})

	payload := []byte(`{"timestamp":"t","hub_id":"H001","order_id":"O1","status":"Delivered"}`)
	resp := rig.manager.ApplyDeliveryUpdate(payload)
	if resp.Status != wire.StatusSuccess {
		t.Fatalf("status = %q (%s)", resp.Status, resp.Message)
	}
	// No transition check: whatever the hub supplies wins.
	if rig.store.status("O1") != "Delivered" {
		t.Errorf("status = %q, want Delivered", rig.store.status("O1"))
	}
}

func TestDeliveryUpdateValidation(t *testing.T) {
	rig := newTestRig(t, time.Hour)
	for name, payload := range map[string]string{
		"missing timestamp": `{"hub_id":"H1","order_id":"O1","status":"D"}`,
		"missing hub_id":    `{"timestamp":"t","order_id":"O1","status":"D"}`,
		"missing order_id":  `{"timestamp":"t","hub_id":"H1","status":"D"}`,
		"missing status":    `{"timestamp":"t","hub_id":"H1","order_id":"O1"}`,
	} {
		t.Run(name, func(t *testing.T) {
			resp := rig.manager.ApplyDeliveryUpdate([]byte(payload))
			if resp.Status != wire.StatusError {
				t.Errorf("status = %q, want error", resp.Status)
			}
		})
	}
}
