package ledgerhttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

// MountRoutes registers ledger read endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(60, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)

	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Get("/projects/{id}", h.handleGetProject)
		gr.Get("/projects/{id}/balances", h.handleGetBalances)
		gr.Get("/roles/{address}", h.handleGetRole)
	})
}
