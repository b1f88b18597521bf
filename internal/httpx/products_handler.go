package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/thriftian/marketplace/internal/catalog"
)

type rejectReq struct {
	Reason string `json:"reason"`
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(r)
	if !ok {
		badRequest(w, "invalid limit")
		return
	}
	out, err := h.Catalog.List(r.Context(), actor(r), r.URL.Query().Get("sellerId"), limit)
	if err != nil {
		writeError(w, r, h.logger(), err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) listPendingProducts(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(r)
	if !ok {
		badRequest(w, "invalid limit")
		return
	}
	out, err := h.Catalog.ListPending(r.Context(), actor(r), limit)
	if err != nil {
		writeError(w, r, h.logger(), err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.Catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger(), err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req catalog.CreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.Catalog.Create(r.Context(), actor(r), req)
	if err != nil {
		writeError(w, r, h.logger(), err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var req catalog.UpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, batch, err := h.Catalog.Update(r.Context(), actor(r), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, r, h.logger(), err)
		return
	}
	h.dispatch(r.Context(), batch)
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	batch, err := h.Catalog.Delete(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger(), err)
		return
	}
	h.dispatch(r.Context(), batch)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) approveProduct(w http.ResponseWriter, r *http.Request) {
	p, batch, err := h.Catalog.Approve(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger(), err)
		return
	}
	h.dispatch(r.Context(), batch)
	writeJSON(w, http.StatusOK, p)
}

// rejectProduct accepts an empty body; the reason is optional.
func (h *Handler) rejectProduct(w http.ResponseWriter, r *http.Request) {
	var req rejectReq
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	p, batch, err := h.Catalog.Reject(r.Context(), actor(r), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeError(w, r, h.logger(), err)
		return
	}
	h.dispatch(r.Context(), batch)
	writeJSON(w, http.StatusOK, p)
}
