// Package presence mirrors client online/offline state into Redis so
// operational tooling can read it without touching the SQL store. The
// mirror is best-effort: every call is a no-op when Redis is absent, and
// the SQL users table remains the source of truth.
package presence

import (
	"context"
	"log"
	"time"
)

type userSource interface {
	ListOnlineUserIDs() ([]string, error)
}

type Manager struct {
	store *RedisStore
}

func NewManager(store *RedisStore) *Manager {
	return &Manager{store: store}
}

// SyncFromSQL rebuilds the Redis mirror from the users table at boot,
// dropping whatever a previous process left behind.
func (m *Manager) SyncFromSQL(db userSource) error {
	if m.store == nil {
		return nil
	}
	ids, err := db.ListOnlineUserIDs()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.store.Reset(ctx, ids); err != nil {
		return err
	}
	log.Printf("presence: synced %d online client(s) from SQL", len(ids))
	return nil
}

func (m *Manager) SetOnline(clientID string) {
	if m.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.store.SetOnline(ctx, clientID); err != nil {
		log.Printf("presence: set online %s: %v", clientID, err)
	}
}

func (m *Manager) SetOffline(clientID string) {
	if m.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.store.SetOffline(ctx, clientID); err != nil {
		log.Printf("presence: set offline %s: %v", clientID, err)
	}
}

// OnlineIDs lists the mirrored online clients. Returns nil without error
// when Redis is absent.
func (m *Manager) OnlineIDs() []string {
	if m.store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ids, err := m.store.OnlineIDs(ctx)
	if err != nil {
		log.Printf("presence: list online: %v", err)
		return nil
	}
	return ids
}
