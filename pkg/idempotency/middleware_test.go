package idempotency

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

type memClaimer struct {
	claimed   map[string]bool
	seenErr   error
	forgotten int
}

func (m *memClaimer) RequestKey(scope, key string) string { return scope + ":" + key }

func (m *memClaimer) Seen(_ context.Context, key string) (bool, error) {
	if m.seenErr != nil {
		return false, m.seenErr
	}
	if m.claimed[key] {
		return true, nil
	}
	m.claimed[key] = true
	return false, nil
}

func (m *memClaimer) Forget(_ context.Context, key string) error {
	delete(m.claimed, key)
	m.forgotten++
	return nil
}

func TestMiddleware(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	status := http.StatusOK
	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(status)
	})

	send := func(h http.Handler, key string) int {
		req := httptest.NewRequest(http.MethodPost, "/orders/1/payments", nil)
		if key != "" {
			req.Header.Set(Header, key)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	t.Run("replayRejected", func(t *testing.T) {
		store := &memClaimer{claimed: map[string]bool{}}
		h := Middleware(log, store, "settle")(next)
		calls, status = 0, http.StatusOK

		if code := send(h, "a"); code != http.StatusOK {
			t.Fatalf("first = %d", code)
		}
		if code := send(h, "a"); code != http.StatusConflict {
			t.Fatalf("replay = %d", code)
		}
		if calls != 1 {
			t.Fatalf("handler ran %d times", calls)
		}
	})

	t.Run("failureReleasesKey", func(t *testing.T) {
		store := &memClaimer{claimed: map[string]bool{}}
		h := Middleware(log, store, "settle")(next)
		calls, status = 0, http.StatusServiceUnavailable

		send(h, "b")
		status = http.StatusOK
		if code := send(h, "b"); code != http.StatusOK {
			t.Fatalf("retry after failure = %d", code)
		}
		if store.forgotten != 1 || calls != 2 {
			t.Fatalf("forgotten=%d calls=%d", store.forgotten, calls)
		}
	})

	t.Run("noHeaderPassesThrough", func(t *testing.T) {
		store := &memClaimer{claimed: map[string]bool{}}
		h := Middleware(log, store, "settle")(next)
		calls, status = 0, http.StatusOK

		send(h, "")
		send(h, "")
		if calls != 2 || len(store.claimed) != 0 {
			t.Fatalf("calls=%d claimed=%v", calls, store.claimed)
		}
	})

	t.Run("storeErrorFailsOpen", func(t *testing.T) {
		store := &memClaimer{claimed: map[string]bool{}, seenErr: errors.New("redis down")}
		h := Middleware(log, store, "settle")(next)
		calls, status = 0, http.StatusOK

		if code := send(h, "c"); code != http.StatusOK || calls != 1 {
			t.Fatalf("code=%d calls=%d", code, calls)
		}
	})
}
