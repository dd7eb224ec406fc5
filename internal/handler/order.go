package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quickbite/delivery-core/internal/domain/order"
	"github.com/quickbite/delivery-core/internal/domain/user"
)

type createOrderRequest struct {
	Items []struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
	} `json:"items"`
	Address       string `json:"address"`
	PaymentMethod string `json:"paymentMethod"`
	CouponCode    string `json:"couponCode"`
	// CustomerID lets admins place orders on behalf of a customer; everyone
	// else orders as themselves.
	CustomerID string `json:"customerId"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	customerID := actor.UserID
	if req.CustomerID != "" && actor.Role == user.RoleAdmin {
		customerID = req.CustomerID
	}

	items := make([]order.ItemRequest, len(req.Items))
	for i, it := range req.Items {
		items[i] = order.ItemRequest{ProductID: it.ProductID, Quantity: it.Quantity}
	}

	o, err := h.orders.Create(r.Context(), order.CreateRequest{
		CustomerID:    customerID,
		Items:         items,
		Address:       req.Address,
		PaymentMethod: order.PaymentMethod(req.PaymentMethod),
		CouponCode:    req.CouponCode,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	f := order.ListFilter{
		Status:  order.Status(r.URL.Query().Get("status")),
		AgentID: r.URL.Query().Get("agent"),
	}
	if f.Status != "" && !f.Status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status filter")
		return
	}

	orders, err := h.orders.List(r.Context(), f)
	if err != nil {
		respondError(w, r, err)
		return
	}

	out := make([]orderResponse, len(orders))
	for i := range orders {
		out[i] = toOrderResponse(&orders[i])
	}
	writeJSON(w, http.StatusOK, out)
}

type updateStatusRequest struct {
	Status  string `json:"status"`
	AgentID string `json:"agentId"`
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req updateStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	target := order.Status(req.Status)
	if !target.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}

	id := chi.URLParam(r, "id")

	// Cancellation belongs to admins and the owning customer; every other
	// transition is staff-side (admin or delivery agent).
	if target == order.StatusCancelled {
		if actor.Role == user.RoleAgent {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		if actor.Role == user.RoleCustomer {
			existing, err := h.orders.Get(r.Context(), id)
			if err != nil {
				respondError(w, r, err)
				return
			}
			if existing.CustomerID != actor.UserID {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
		}
	} else if actor.Role == user.RoleCustomer {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	var (
		o   *order.Order
		err error
	)
	if target == order.StatusAssigned {
		// Assignment goes through the coordinator so the agent precondition
		// and active-order increment are enforced.
		o, err = h.orders.Assign(r.Context(), id, req.AgentID, actor)
	} else {
		o, err = h.orders.Transition(r.Context(), id, target, "", actor)
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) paymentReceived(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, user.RoleAdmin, user.RoleCustomer); !ok {
		return
	}
	o, err := h.orders.MarkPaymentReceived(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}
