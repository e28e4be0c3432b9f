// Package clients handles hub and warehouse presence: registration on
// connect, deregistration on disconnect, and the retry policy around the
// initial user upsert.
package clients

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"hubcore/registry"
	"hubcore/wire"
)

// Conn aliases the registry's connection type so callers hand the same
// value to Register and to the registry.
type Conn = registry.Conn

// Store is the slice of the SQL store the registrar needs.
type Store interface {
	UpsertUser(userID string, lat, lon float64, online bool) error
	SetUserOnline(userID string, online bool) error
}

// ConnTracker is the connection map side of registration.
type ConnTracker interface {
	Add(clientID string, conn Conn)
	Remove(clientID string)
}

// Presence is the optional online-state mirror. Implementations must
// tolerate being called on every register/deregister.
type Presence interface {
	SetOnline(clientID string)
	SetOffline(clientID string)
}

type Registrar struct {
	store    Store
	conns    ConnTracker
	presence Presence

	retries    int
	retryDelay time.Duration
}

func NewRegistrar(store Store, conns ConnTracker, presence Presence, retries int, retryDelay time.Duration) *Registrar {
	if retries < 1 {
		retries = 1
	}
	return &Registrar{
		store:      store,
		conns:      conns,
		presence:   presence,
		retries:    retries,
		retryDelay: retryDelay,
	}
}

// Register validates a client_info payload, records the connection under
// the client id, and upserts the user row with retries. The connection is
// registered before the store write so a client whose upsert ultimately
// fails is still routable; that asymmetry is deliberate.
func (r *Registrar) Register(data []byte, conn Conn) (string, wire.Response) {
	var info wire.ClientInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return "", wire.Error(fmt.Sprintf("invalid client_info: %v", err))
	}

	if info.Timestamp == nil {
		return "", wire.Error("missing timestamp")
	}
	if info.Location == nil {
		return "", wire.Error("missing location")
	}
	if info.Location.Latitude == nil || *info.Location.Latitude < -90 || *info.Location.Latitude > 90 {
		return "", wire.Error("invalid latitude")
	}
	if info.Location.Longitude == nil || *info.Location.Longitude < -180 || *info.Location.Longitude > 180 {
		return "", wire.Error("invalid longitude")
	}

	clientID, err := extractClientID(info)
	if err != nil {
		return "", wire.Error(err.Error())
	}

	r.conns.Add(clientID, conn)

	lat := *info.Location.Latitude
	lon := *info.Location.Longitude
	var lastErr error
	for attempt := 1; attempt <= r.retries; attempt++ {
		lastErr = r.store.UpsertUser(clientID, lat, lon, true)
		if lastErr == nil {
			break
		}
		log.Printf("clients: register %s attempt %d/%d: %v", clientID, attempt, r.retries, lastErr)
		if attempt < r.retries {
			time.Sleep(r.retryDelay)
		}
	}
	if lastErr != nil {
		return clientID, wire.Error(fmt.Sprintf("registration failed after %d attempts", r.retries))
	}

	if r.presence != nil {
		r.presence.SetOnline(clientID)
	}
	log.Printf("clients: registered %s", clientID)
	return clientID, wire.Success("Client registered")
}

// Deregister marks the user offline and drops the connection entry. The
// store write is best-effort; the connection is removed regardless.
func (r *Registrar) Deregister(data []byte) wire.Response {
	var req wire.DisconnectRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return wire.Error(fmt.Sprintf("invalid disconnect_request: %v", err))
	}
	if req.UserID == nil || *req.UserID == "" {
		return wire.Error("missing user_id")
	}
	if req.Timestamp == nil {
		return wire.Error("missing timestamp")
	}

	userID := *req.UserID
	if err := r.store.SetUserOnline(userID, false); err != nil {
		log.Printf("clients: set %s offline: %v", userID, err)
	}
	if r.presence != nil {
		r.presence.SetOffline(userID)
	}
	r.conns.Remove(userID)
	log.Printf("clients: deregistered %s", userID)

	reply := wire.Success("Client disconnected")
	reply.Order = wire.OrderDisconnect
	return reply
}

func extractClientID(info wire.ClientInfo) (string, error) {
	switch {
	case info.HubID != nil && *info.HubID != "":
		if !strings.HasPrefix(*info.HubID, "H") {
			return "", fmt.Errorf("hub_id must start with H")
		}
		return *info.HubID, nil
	case info.WarehouseID != nil && *info.WarehouseID != "":
		if !strings.HasPrefix(*info.WarehouseID, "W") {
			return "", fmt.Errorf("warehouse_id must start with W")
		}
		return *info.WarehouseID, nil
	default:
		return "", fmt.Errorf("missing hub_id or warehouse_id")
	}
}
