package idempotency

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

const Header = "Idempotency-Key"

// Claimer is the part of Store the HTTP middleware needs.
type Claimer interface {
	RequestKey(scope, key string) string
	Seen(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

// Middleware rejects a replayed Idempotency-Key with 409. Requests without the
// header pass through. A claim is released when the handler does not
// succeed, so a failed attempt can be retried with the same key.
func Middleware(log *slog.Logger, store Claimer, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(Header)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			key := store.RequestKey(scope+":"+r.URL.Path, raw)
			seen, err := store.Seen(r.Context(), key)
			if err != nil {
				log.Error("idempotency check failed", "key", key, "err", err)
				next.ServeHTTP(w, r)
				return
			}
			if seen {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusConflict)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"code":    "DUPLICATE_REQUEST",
					"message": "request with this idempotency key was already processed",
				})
				return
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			if rec.status >= 300 {
				if err := store.Forget(context.WithoutCancel(r.Context()), key); err != nil {
					log.Error("idempotency release failed", "key", key, "err", err)
				}
			}
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
