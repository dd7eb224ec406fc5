package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quickbite/delivery-core/internal/domain/user"
)

type reviewAgentRequest struct {
	IsApproved      bool   `json:"isApproved"`
	IsRejected      bool   `json:"isRejected"`
	RejectionReason string `json:"rejectionReason"`
}

type agentResponse struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	IsOnline        bool   `json:"isOnline"`
	Approval        string `json:"approvalStatus"`
	RejectionReason string `json:"rejectionReason,omitempty"`
	ActiveOrders    int    `json:"activeOrders"`
}

func toAgentResponse(u *user.User) agentResponse {
	return agentResponse{
		ID:              u.ID,
		Name:            u.Name,
		IsOnline:        u.IsOnline,
		Approval:        string(u.Approval),
		RejectionReason: u.RejectionReason,
		ActiveOrders:    u.ActiveOrders,
	}
}

// reviewAgent lets an admin approve or reject a delivery agent.
func (h *Handler) reviewAgent(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, user.RoleAdmin); !ok {
		return
	}

	var req reviewAgentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.IsApproved == req.IsRejected {
		writeError(w, http.StatusBadRequest, "exactly one of isApproved or isRejected must be set")
		return
	}

	approval := user.ApprovalApproved
	reason := ""
	if req.IsRejected {
		approval = user.ApprovalRejected
		reason = req.RejectionReason
	}

	u, err := h.users.Review(r.Context(), chi.URLParam(r, "id"), approval, reason)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAgentResponse(u))
}

type agentStatusRequest struct {
	Online bool `json:"online"`
}

// setAgentStatus lets the calling agent toggle their own availability.
// Going offline with active orders is rejected with 409.
func (h *Handler) setAgentStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireRole(w, r, user.RoleAgent)
	if !ok {
		return
	}

	var req agentStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}

	u, err := h.users.SetOnline(r.Context(), actor.UserID, req.Online)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAgentResponse(u))
}
