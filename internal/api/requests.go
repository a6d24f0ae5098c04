package api

import (
	"net/http"

	"github.com/trashtotreasure/treasure/internal/claim"
	"github.com/trashtotreasure/treasure/internal/model"
)

// RequestsHandler handles claim request endpoints.
type RequestsHandler struct {
	Claims  *claim.Service
	BaseURL string
}

// ListForOwner handles GET /api/requests/owner.
func (h *RequestsHandler) ListForOwner(w http.ResponseWriter, r *http.Request) {
	requests, err := h.Claims.ListRequestsForOwner(r.Context(), userID(r))
	h.respondList(w, r, requests, err)
}

// ListForUser handles GET /api/requests/user.
func (h *RequestsHandler) ListForUser(w http.ResponseWriter, r *http.Request) {
	requests, err := h.Claims.ListRequestsForRequester(r.Context(), userID(r))
	h.respondList(w, r, requests, err)
}

// Accept handles PATCH /api/requests/{id}/accept.
//
// A successful accept claims the item for the requester and rejects the
// item's other pending requests. That rejection is best-effort; requests it
// misses are rejected by the background reconciler.
func (h *RequestsHandler) Accept(w http.ResponseWriter, r *http.Request) {
	req, err := h.Claims.AcceptRequest(r.Context(), r.PathValue("id"), userID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	resolveRequest(req, baseURL(r, h.BaseURL))
	jsonResponse(w, http.StatusOK, "request accepted successfully", req)
}

// Reject handles PATCH /api/requests/{id}/reject.
func (h *RequestsHandler) Reject(w http.ResponseWriter, r *http.Request) {
	req, err := h.Claims.RejectRequest(r.Context(), r.PathValue("id"), userID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	resolveRequest(req, baseURL(r, h.BaseURL))
	jsonResponse(w, http.StatusOK, "request rejected successfully", req)
}

func (h *RequestsHandler) respondList(w http.ResponseWriter, r *http.Request, requests []model.Request, err error) {
	if err != nil {
		respondError(w, r, err)
		return
	}
	base := baseURL(r, h.BaseURL)
	for i := range requests {
		resolveRequest(&requests[i], base)
	}
	jsonResponse(w, http.StatusOK, "", requests)
}
