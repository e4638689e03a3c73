package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/pifp-labs/pifp-ledger/internal/shared"
)

type contextKey struct{}

var actorKey contextKey

// ActorFromContext returns the authenticated address, if any.
func ActorFromContext(ctx context.Context) (shared.Address, bool) {
	actor, ok := ctx.Value(actorKey).(shared.Address)
	return actor, ok
}

// Require rejects requests that do not carry a valid bearer token and stores
// the resolved actor on the request context.
func (s *Service) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		actor, err := s.Verify(r.Context(), token)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey, actor)))
	})
}
