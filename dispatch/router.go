// Package dispatch classifies inbound messages by their type field and
// routes them to the owning component, translating every outcome into the
// response envelope written back on the same socket.
package dispatch

import (
	"fmt"
	"log"

	"hubcore/clients"
	"hubcore/store"
	"hubcore/wire"
)

type ClientRegistrar interface {
	Register(data []byte, conn clients.Conn) (string, wire.Response)
	Deregister(data []byte) wire.Response
}

type InventoryHandler interface {
	ApplyUpdate(data []byte) wire.Response
	ApplyRestockNotice(data []byte) wire.Response
}

type OrderHandler interface {
	Submit(data []byte) wire.Response
	HandleDispatch(data []byte) wire.Response
	Cancel(data []byte) wire.Response
	StatusQuery(data []byte) (*store.Order, wire.Response)
	ApplyDeliveryUpdate(data []byte) wire.Response
}

type Router struct {
	registrar ClientRegistrar
	inventory InventoryHandler
	orders    OrderHandler
}

func NewRouter(registrar ClientRegistrar, inventory InventoryHandler, orders OrderHandler) *Router {
	return &Router{registrar: registrar, inventory: inventory, orders: orders}
}

// Route handles one inbound message and returns the encoded response. The
// conn argument is the originating connection, needed only by client_info
// to make the sender routable.
func (r *Router) Route(data []byte, conn clients.Conn) []byte {
	msgType, err := wire.MessageType(data)
	if err != nil {
		return encode(wire.Error(fmt.Sprintf("invalid request: %v", err)))
	}

	switch msgType {
	case wire.TypeClientInfo:
		_, reply := r.registrar.Register(data, conn)
		return encode(reply)
	case wire.TypeDisconnectRequest:
		return encode(r.registrar.Deregister(data))
	case wire.TypeInventoryUpdate:
		return encode(r.inventory.ApplyUpdate(data))
	case wire.TypeRestockNotice:
		return encode(r.inventory.ApplyRestockNotice(data))
	case wire.TypeOrderRequest:
		return encode(r.orders.Submit(data))
	case wire.TypeCancelOrder:
		return encode(r.orders.Cancel(data))
	case wire.TypeOrderStatusQuery:
		detail, reply := r.orders.StatusQuery(data)
		if detail != nil {
			return encode(detail)
		}
		return encode(reply)
	case wire.TypeOrderDispatch:
		return encode(r.orders.HandleDispatch(data))
	case wire.TypeDeliveryUpdate:
		return encode(r.orders.ApplyDeliveryUpdate(data))
	default:
		log.Printf("dispatch: unknown request type %q", msgType)
		return encode(wire.Unknown())
	}
}

func encode(v any) []byte {
	data, err := wire.Encode(v)
	if err != nil {
		log.Printf("dispatch: encode response: %v", err)
		return []byte(`{"status":"error","message":"internal error"}`)
	}
	return data
}
