package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/thriftian/marketplace/internal/disputes"
	"github.com/thriftian/marketplace/internal/reports"
	"github.com/thriftian/marketplace/internal/users"
)

func (h *Handler) listAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(r)
	if !ok {
		badRequest(w, "invalid limit")
		return
	}
	out, err := h.Audit.Query(r.Context(), actor(r), r.URL.Query().Get("userId"), limit)
	if err != nil {
		writeError(w, r, h.logger(), err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getAnalytics(w http.ResponseWriter, r *http.Request) {
	a, err := h.Analytics.Get(r.Context(), actor(r), chi.URLParam(r, "sellerId"))
	if err != nil {
		writeError(w, r, h.logger(), err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) changeUserRole(w http.ResponseWriter, r *http.Request) {
	var req users.ChangeRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u, batch, err := h.Users.ChangeRole(r.Context(), actor(r), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, r, h.logger(), err)
		return
	}
	h.dispatch(r.Context(), batch)
	writeJSON(w, http.StatusOK, u)
}

func (h *Handler) listDisputes(w http.ResponseWriter, r *http.Request) {
	out, err := h.Disputes.List(r.Context(), actor(r))
	if err != nil {
		writeError(w, r, h.logger(), err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getDispute(w http.ResponseWriter, r *http.Request) {
	d, err := h.Disputes.Get(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger(), err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) openDispute(w http.ResponseWriter, r *http.Request) {
	var req disputes.OpenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	d, batch, err := h.Disputes.Open(r.Context(), actor(r), req)
	if err != nil {
		writeError(w, r, h.logger(), err)
		return
	}
	h.dispatch(r.Context(), batch)
	writeJSON(w, http.StatusCreated, d)
}

func (h *Handler) resolveDispute(w http.ResponseWriter, r *http.Request) {
	var req disputes.ResolveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	d, batch, err := h.Disputes.Resolve(r.Context(), actor(r), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, r, h.logger(), err)
		return
	}
	h.dispatch(r.Context(), batch)
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) listReports(w http.ResponseWriter, r *http.Request) {
	out, err := h.Reports.List(r.Context(), actor(r))
	if err != nil {
		writeError(w, r, h.logger(), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": out})
}

func (h *Handler) fileReport(w http.ResponseWriter, r *http.Request) {
	var req reports.FileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rep, err := h.Reports.File(r.Context(), actor(r), req)
	if err != nil {
		writeError(w, r, h.logger(), err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"reportId": rep.ID})
}

func (h *Handler) setReportStatus(w http.ResponseWriter, r *http.Request) {
	var req reports.StatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rep, batch, err := h.Reports.SetStatus(r.Context(), actor(r), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, r, h.logger(), err)
		return
	}
	h.dispatch(r.Context(), batch)
	writeJSON(w, http.StatusOK, rep)
}
