// Package www serves a read-only operations API over the store: orders,
// order history, clients and inventory, behind a session login.
package www

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"

	"hubcore/store"
)

// Presence is the optional Redis mirror of online clients. Nil-safe
// implementations return nil when the mirror is absent.
type Presence interface {
	OnlineIDs() []string
}

type Site struct {
	db       *store.DB
	sessions *sessions.CookieStore
	presence Presence
}

func NewSite(db *store.DB, sessionSecret string, presence Presence) (*Site, error) {
	if err := ensureDefaultAdmin(db); err != nil {
		return nil, err
	}
	return &Site{
		db:       db,
		sessions: newSessionStore(sessionSecret),
		presence: presence,
	}, nil
}

func (s *Site) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/login", s.handleLogin)
	r.Post("/logout", s.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/api/orders", s.handleListOrders)
		r.Get("/api/orders/{orderID}", s.handleOrderDetail)
		r.Get("/api/clients", s.handleListClients)
		r.Get("/api/inventory", s.handleListInventory)
	})

	return r
}

func (s *Site) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.db.ListOrders(500)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if orders == nil {
		orders = []*store.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

func (s *Site) handleOrderDetail(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	detail, err := s.db.GetOrderDetail(orderID)
	if err != nil {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	history, err := s.db.ListOrderHistory(orderID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"order":   detail,
		"history": history,
	})
}

func (s *Site) handleListClients(w http.ResponseWriter, r *http.Request) {
	users, err := s.db.ListUsers()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if users == nil {
		users = []*store.User{}
	}
	resp := map[string]any{"clients": users}
	if s.presence != nil {
		resp["online_mirror"] = s.presence.OnlineIDs()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Site) handleListInventory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.db.ListInventory()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []*store.InventoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
