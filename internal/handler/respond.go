package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/quickbite/delivery-core/internal/domain/coupon"
	"github.com/quickbite/delivery-core/internal/domain/order"
	"github.com/quickbite/delivery-core/internal/domain/user"
)

// errorResponse is the uniform JSON error body.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Code: status, Message: msg})
}

// respondError maps domain errors onto the HTTP taxonomy:
// 400 malformed input, 404 missing rows, 409 lifecycle and concurrency
// conflicts, 422 precondition failures, 500 everything else.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		invalidTransition *order.InvalidTransitionError
		terminal          *order.TerminalStateError
		invalidQty        *order.InvalidQuantityError
		productMissing    *order.ProductNotFoundError
	)

	switch {
	case errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, order.ErrAddressRequired),
		errors.Is(err, order.ErrInvalidPaymentMethod),
		errors.Is(err, order.ErrAgentRequired):
		writeError(w, http.StatusBadRequest, err.Error())

	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, user.ErrNotFound),
		errors.Is(err, user.ErrNotAgent):
		writeError(w, http.StatusNotFound, err.Error())

	case errors.As(err, &invalidTransition),
		errors.As(err, &terminal),
		errors.Is(err, order.ErrConcurrentModification),
		errors.Is(err, order.ErrOrderNotAssignable),
		errors.Is(err, order.ErrPaymentAlreadySettled),
		errors.Is(err, user.ErrAgentHasOrders):
		writeError(w, http.StatusConflict, err.Error())

	case errors.As(err, &invalidQty),
		errors.As(err, &productMissing),
		errors.Is(err, user.ErrAgentUnavailable),
		errors.Is(err, coupon.ErrInvalidCoupon):
		writeError(w, http.StatusUnprocessableEntity, err.Error())

	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeBody parses the JSON request body into v, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}
