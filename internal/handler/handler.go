// Package handler exposes the REST and WebSocket surface over chi.
package handler

import (
	"github.com/go-chi/chi/v5"

	"github.com/quickbite/delivery-core/internal/domain/order"
	"github.com/quickbite/delivery-core/internal/domain/product"
	"github.com/quickbite/delivery-core/internal/domain/user"
)

// Handler wires the domain services onto HTTP routes. Business rules live in
// the services; this layer only decodes, delegates, and maps errors.
type Handler struct {
	orders   *order.Service
	users    *user.Service
	products product.Repository
}

// New constructs a Handler with the required domain dependencies.
func New(orders *order.Service, users *user.Service, products product.Repository) *Handler {
	return &Handler{
		orders:   orders,
		users:    users,
		products: products,
	}
}

// Routes mounts all API endpoints. The caller applies authentication and the
// rest of the middleware stack around the returned router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.createOrder)
		r.Get("/", h.listOrders)
		r.Get("/{id}", h.getOrder)
		r.Patch("/{id}/status", h.updateOrderStatus)
		r.Post("/{id}/payment", h.paymentReceived)
	})
	r.Patch("/users/{id}", h.reviewAgent)
	r.Patch("/delivery-agent/status", h.setAgentStatus)
	r.Get("/products", h.listProducts)

	return r
}
