package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/thriftian/marketplace/internal/auth"
)

func NewRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// Register mounts every API route on r. The WebSocket route sits outside the
// request timeout since the connection outlives it.
func (h *Handler) Register(r chi.Router) {
	authn := Authenticate(h.Verifier, h.Identities, h.logger())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(15 * time.Second))

		r.With(OptionalAuthenticate(h.Verifier, h.Identities)).Get("/products", h.listProducts)
		r.Get("/products/{id}", h.getProduct)

		r.Group(func(r chi.Router) {
			r.Use(authn)

			r.With(RequireRole(auth.RoleAdmin)).Get("/products/pending", h.listPendingProducts)
			r.With(RequireRole(auth.RoleSeller)).Post("/products", h.createProduct)
			r.With(RequireRole(auth.RoleSeller)).Patch("/products/{id}", h.updateProduct)
			r.With(RequireRole(auth.RoleSeller)).Delete("/products/{id}", h.deleteProduct)
			r.With(RequireRole(auth.RoleAdmin)).Post("/products/{id}/approve", h.approveProduct)
			r.With(RequireRole(auth.RoleAdmin)).Post("/products/{id}/reject", h.rejectProduct)

			r.Get("/orders", h.listOrders)
			r.With(RequireRole(auth.RoleBuyer)).Post("/orders", h.createOrder)
			r.Get("/orders/{id}", h.getOrder)
			r.Patch("/orders/{id}/status", h.updateOrderStatus)
			r.Post("/orders/{id}/tracking", h.addTracking)

			r.Get("/notifications", h.listNotifications)
			r.Post("/notifications/read-all", h.markAllNotificationsRead)
			r.Post("/notifications/{id}/read", h.markNotificationRead)

			r.With(RequireRole(auth.RoleAdmin)).Get("/audit-logs", h.listAuditLogs)
			r.Get("/analytics/{sellerId}", h.getAnalytics)

			r.Get("/disputes", h.listDisputes)
			r.With(RequireRole(auth.RoleBuyer)).Post("/disputes", h.openDispute)
			r.Get("/disputes/{id}", h.getDispute)
			r.With(RequireRole(auth.RoleAdmin)).Post("/disputes/{id}/resolve", h.resolveDispute)

			r.With(RequireRole(auth.RoleAdmin)).Get("/reports", h.listReports)
			r.Post("/reports", h.fileReport)
			r.With(RequireRole(auth.RoleAdmin)).Patch("/reports/{id}/status", h.setReportStatus)

			r.With(RequireRole(auth.RoleAdmin)).Patch("/users/{id}/role", h.changeUserRole)
		})
	})

	if h.Realtime != nil {
		r.With(AuthenticateSocket(h.Verifier, h.Identities, h.logger())).Get("/ws/notifications", h.serveNotifications)
	}
}
