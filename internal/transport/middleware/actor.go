package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	apperrors "github.com/frahmantamala/stay-booking/internal"
	"github.com/frahmantamala/stay-booking/internal/identity"
	"github.com/frahmantamala/stay-booking/pkg/logger"
)

// ActorContext resolves the acting user from the X-User-ID header, verifies
// it against the identity provider and stores it in the request context.
// Authentication itself lives at the edge; by the time a request reaches this
// service the gateway has already established who is calling.
func ActorContext(provider identity.Provider, lg *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("X-User-ID")
			if header == "" {
				writeUnauthorized(w, "missing X-User-ID header")
				return
			}

			actorID, err := strconv.ParseInt(header, 10, 64)
			if err != nil || actorID <= 0 {
				lg.Warn("invalid actor header", "value", header)
				writeUnauthorized(w, "invalid X-User-ID header")
				return
			}

			if err := provider.Verify(r.Context(), actorID); err != nil {
				lg.Warn("actor verification failed", "error", err, "actor_id", actorID)
				writeUnauthorized(w, "user identity could not be verified")
				return
			}

			ctx := apperrors.ContextWithActorID(r.Context(), actorID)
			ctx = logger.With(ctx, "actor_id", actorID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    http.StatusUnauthorized,
		"message": message,
	})
}
