package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dmehra2102/tableflow/internal/order/application"
	"github.com/dmehra2102/tableflow/internal/order/domain"
	"github.com/dmehra2102/tableflow/internal/order/infrastructure/memlock"
	"github.com/dmehra2102/tableflow/internal/order/infrastructure/memstore"
	payapp "github.com/dmehra2102/tableflow/internal/payment/application"
	"github.com/dmehra2102/tableflow/internal/payment/infrastructure/provider"
	"github.com/dmehra2102/tableflow/pkg/idempotency"
)

var stew = uuid.MustParse("00000000-0000-0000-0000-0000000000a1")

type staticMenu struct{}

func (staticMenu) Resolve(_ context.Context, id uuid.UUID) (domain.MenuEntry, error) {
	if id != stew {
		return domain.MenuEntry{}, domain.ErrInvalidMenuReference
	}
	return domain.MenuEntry{MenuID: stew, Name: "stew", UnitPrice: 8000, CookStation: "hot"}, nil
}

type fakeClaimer struct {
	mu        sync.Mutex
	claimed   map[string]bool
	forgotten []string
}

func newFakeClaimer() *fakeClaimer { return &fakeClaimer{claimed: map[string]bool{}} }

func (f *fakeClaimer) RequestKey(scope, key string) string { return scope + "|" + key }

func (f *fakeClaimer) Seen(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimed[key] {
		return true, nil
	}
	f.claimed[key] = true
	return false, nil
}

func (f *fakeClaimer) Forget(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.claimed, key)
	f.forgotten = append(f.forgotten, key)
	return nil
}

type testAPI struct {
	routes http.Handler
	store  *memstore.Store
	table  uuid.UUID
}

func newTestAPI(t *testing.T, idem idempotency.Claimer) *testAPI {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memstore.New()
	table := store.AddTable(uuid.New(), "T1", 4)
	svc := application.NewService(log, store, staticMenu{},
		payapp.NewService(log, provider.NewMock(0)), memlock.New(nil), application.DefaultOptions())
	return &testAPI{routes: NewHandler(log, svc, idem).Routes(), store: store, table: table}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.routes.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func (a *testAPI) batch(t *testing.T, body map[string]any) application.BatchResult {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/tables/"+a.table.String()+"/batches", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("batch: %d %s", rec.Code, rec.Body)
	}
	return decodeBody[application.BatchResult](t, rec)
}

func TestTableRoutes(t *testing.T) {
	api := newTestAPI(t, nil)

	tests := []struct {
		name     string
		path     string
		wantCode int
		wantErr  string
	}{
		{name: "malformedID", path: "/tables/not-a-uuid", wantCode: http.StatusBadRequest, wantErr: "INVALID_REQUEST"},
		{name: "unknownTable", path: "/tables/" + uuid.NewString(), wantCode: http.StatusNotFound, wantErr: "TABLE_NOT_FOUND"},
		{name: "knownTable", path: "/tables/" + api.table.String(), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, http.MethodGet, tt.path, nil, nil)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body)
			}
			if tt.wantErr != "" {
				if got := decodeBody[errorResp](t, rec); got.Code != tt.wantErr {
					t.Fatalf("code = %s, want %s", got.Code, tt.wantErr)
				}
				return
			}
			got := decodeBody[tableResp](t, rec)
			if got.Status != domain.TableAvailable || got.IsOccupied || got.Label != "T1" {
				t.Fatalf("unexpected table %+v", got)
			}
		})
	}
}

func TestBatchToSettlement(t *testing.T) {
	api := newTestAPI(t, nil)

	res := api.batch(t, map[string]any{
		"channel": "terminal",
		"add": []map[string]any{
			{"menu_id": stew, "quantity": 1},
			{"menu_id": stew, "quantity": 1},
		},
	})
	if res.TotalPrice != 16000 || len(res.Added) != 1 || res.Added[0].Quantity != 2 {
		t.Fatalf("repeated lines should fold into one item: %+v", res)
	}

	rec := api.do(t, http.MethodGet, "/orders/"+res.OrderID.String()+"/", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get order: %d %s", rec.Code, rec.Body)
	}
	order := decodeBody[orderResp](t, rec)
	if len(order.Tickets) != 1 || order.Tickets[0].Subtotal != 16000 || order.SessionStatus != domain.SessionOpen {
		t.Fatalf("unexpected order %+v", order)
	}

	rec = api.do(t, http.MethodPost, "/orders/"+res.OrderID.String()+"/payments",
		map[string]any{"method": "cash", "amount": 16000}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("settle: %d %s", rec.Code, rec.Body)
	}
	settled := decodeBody[settlementResp](t, rec)
	if !settled.Closed || settled.Payment == nil || settled.Payment.Amount != 16000 || settled.PaymentStatus != domain.PaymentPaid {
		t.Fatalf("unexpected settlement %+v", settled)
	}

	rec = api.do(t, http.MethodGet, "/orders/"+res.OrderID.String()+"/payments", nil, nil)
	if payments := decodeBody[[]paymentResp](t, rec); len(payments) != 1 || len(payments[0].Details) != 1 {
		t.Fatalf("unexpected payments %+v", payments)
	}

	rec = api.do(t, http.MethodPost, "/orders/"+res.OrderID.String()+"/payments",
		map[string]any{"method": "cash", "amount": 1}, nil)
	if rec.Code != http.StatusConflict || decodeBody[errorResp](t, rec).Code != "ALREADY_SETTLED" {
		t.Fatalf("expected ALREADY_SETTLED conflict, got %d", rec.Code)
	}
}

func TestSessionAndMixedRoutes(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(t, http.MethodPost, "/tables/"+api.table.String()+"/sessions", map[string]any{"channel": "external"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("open session: %d %s", rec.Code, rec.Body)
	}
	opened := decodeBody[application.OpenSessionResult](t, rec)
	if opened.Slot != domain.SlotMain {
		t.Fatalf("expected main slot, got %s", opened.Slot)
	}

	rec = api.do(t, http.MethodPost, "/orders/"+opened.OrderID.String()+"/mixed", nil, nil)
	if rec.Code != http.StatusOK || !decodeBody[domain.SessionState](t, rec).IsMixed {
		t.Fatalf("enable mixed: %d", rec.Code)
	}

	rec = api.do(t, http.MethodGet, "/orders/"+opened.OrderID.String()+"/mixed/settlement", nil, nil)
	got := decodeBody[map[string]any](t, rec)
	if rec.Code != http.StatusOK || got["eligible"] != false {
		t.Fatalf("unexpected eligibility %d %v", rec.Code, got)
	}

	rec = api.do(t, http.MethodPost, "/orders/"+opened.OrderID.String()+"/settlements",
		map[string]any{"channel": "terminal", "method": "cash"}, nil)
	if rec.Code != http.StatusConflict || decodeBody[errorResp](t, rec).Code != "NOT_ELIGIBLE_FOR_MIXED_SETTLEMENT" {
		t.Fatalf("expected ineligible settlement, got %d", rec.Code)
	}

	rec = api.do(t, http.MethodGet, "/orders/"+opened.OrderID.String()+"/channels", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("channel view: %d", rec.Code)
	}
}

func TestItemRoutes(t *testing.T) {
	api := newTestAPI(t, nil)
	res := api.batch(t, map[string]any{"channel": "terminal", "add": []map[string]any{{"menu_id": stew, "quantity": 2}}})
	item := res.Added[0].ItemID.String()

	rec := api.do(t, http.MethodPost, "/items/"+item+"/status", map[string]any{"status": "cooking"}, nil)
	if rec.Code != http.StatusOK || decodeBody[itemResp](t, rec).Status != domain.ItemCooking {
		t.Fatalf("advance: %d", rec.Code)
	}

	rec = api.do(t, http.MethodPost, "/items/"+item+"/status", map[string]any{"status": "pending"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for backwards move, got %d", rec.Code)
	}

	rec = api.do(t, http.MethodPost, "/items/"+item+"/cancel", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: %d %s", rec.Code, rec.Body)
	}
	if got := decodeBody[application.BatchResult](t, rec); !got.OrderCanceled {
		t.Fatalf("canceling the only item should cancel the order: %+v", got)
	}

	rec = api.do(t, http.MethodPost, "/orders/"+res.OrderID.String()+"/payments", map[string]any{"method": "cash", "amount": 1}, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("settling a canceled order: expected 422, got %d", rec.Code)
	}
}

func TestLockedTable(t *testing.T) {
	api := newTestAPI(t, nil)
	base := "/tables/" + api.table.String()
	body := map[string]any{"channel": "terminal", "holder": "pos-2", "add": []map[string]any{{"menu_id": stew, "quantity": 1}}}

	if rec := api.do(t, http.MethodPost, base+"/lock", map[string]any{"holder": "pos-1"}, nil); rec.Code != http.StatusOK {
		t.Fatalf("lock: %d %s", rec.Code, rec.Body)
	}

	rec := api.do(t, http.MethodPost, base+"/batches", body, nil)
	if rec.Code != http.StatusLocked {
		t.Fatalf("expected 423, got %d", rec.Code)
	}
	locked := decodeBody[errorResp](t, rec)
	if locked.Code != "TABLE_LOCKED" || locked.Holder != "pos-1" || locked.ExpiresAt == nil {
		t.Fatalf("unexpected lock error %+v", locked)
	}

	if rec := api.do(t, http.MethodDelete, base+"/lock?holder=pos-1", nil, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("unlock: %d", rec.Code)
	}
	if rec := api.do(t, http.MethodPost, base+"/batches", body, nil); rec.Code != http.StatusOK {
		t.Fatalf("batch after unlock: %d %s", rec.Code, rec.Body)
	}
}

func TestIdempotentSettlement(t *testing.T) {
	claimer := newFakeClaimer()
	api := newTestAPI(t, claimer)
	res := api.batch(t, map[string]any{"channel": "terminal", "add": []map[string]any{{"menu_id": stew, "quantity": 2}}})
	path := "/orders/" + res.OrderID.String() + "/payments"

	first := api.do(t, http.MethodPost, path, map[string]any{"method": "cash", "amount": 1000}, map[string]string{idempotency.Header: "k1"})
	if first.Code != http.StatusOK {
		t.Fatalf("first attempt: %d %s", first.Code, first.Body)
	}
	replay := api.do(t, http.MethodPost, path, map[string]any{"method": "cash", "amount": 1000}, map[string]string{idempotency.Header: "k1"})
	if replay.Code != http.StatusConflict || decodeBody[errorResp](t, replay).Code != "DUPLICATE_REQUEST" {
		t.Fatalf("replay: %d", replay.Code)
	}

	failed := api.do(t, http.MethodPost, path, map[string]any{"method": "cash", "amount": 99999}, map[string]string{idempotency.Header: "k2"})
	if failed.Code != http.StatusConflict || decodeBody[errorResp](t, failed).Code != "AMOUNT_EXCEEDS_BALANCE" {
		t.Fatalf("oversized payment: %d", failed.Code)
	}
	if len(claimer.forgotten) != 1 {
		t.Fatalf("failed attempt should release its key, forgotten=%v", claimer.forgotten)
	}

	payments := decodeBody[[]paymentResp](t, api.do(t, http.MethodGet, path, nil, nil))
	if len(payments) != 1 {
		t.Fatalf("expected a single payment, got %d", len(payments))
	}
}

func TestWriteError(t *testing.T) {
	expires := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{name: "validation", err: domain.ErrInvalidRequest.Withf("bad channel"), wantCode: http.StatusBadRequest, wantBody: "INVALID_REQUEST"},
		{name: "notFound", err: domain.ErrOrderNotFound, wantCode: http.StatusNotFound, wantBody: "ORDER_NOT_FOUND"},
		{name: "conflict", err: domain.ErrTooManyActiveOrders, wantCode: http.StatusConflict, wantBody: "TOO_MANY_ACTIVE_ORDERS"},
		{name: "stateViolation", err: domain.ErrOrderClosed, wantCode: http.StatusUnprocessableEntity, wantBody: "ORDER_CLOSED"},
		{name: "persistence", err: domain.Persistence(errors.New("dial tcp 10.0.0.5:5432")), wantCode: http.StatusServiceUnavailable, wantBody: "PERSISTENCE"},
		{name: "unknown", err: errors.New("boom"), wantCode: http.StatusServiceUnavailable, wantBody: "PERSISTENCE"},
		{name: "locked", err: &domain.LockedError{Holder: "pos-1", ExpiresAt: expires}, wantCode: http.StatusLocked, wantBody: "TABLE_LOCKED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tt.err)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			got := decodeBody[errorResp](t, rec)
			if got.Code != tt.wantBody {
				t.Fatalf("code = %s, want %s", got.Code, tt.wantBody)
			}
			if tt.wantCode == http.StatusServiceUnavailable && got.Message != domain.ErrPersistence.Message {
				t.Fatalf("storage details leaked: %q", got.Message)
			}
		})
	}
}
