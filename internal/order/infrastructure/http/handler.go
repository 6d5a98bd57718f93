package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/tableflow/internal/order/application"
	"github.com/dmehra2102/tableflow/pkg/idempotency"
)

type Handler struct {
	log     *slog.Logger
	service *application.Service
	idem    idempotency.Claimer
	tracer  trace.Tracer
}

// NewHandler builds the HTTP API. idem may be nil, in which case
// Idempotency-Key headers are ignored.
func NewHandler(log *slog.Logger, service *application.Service, idem idempotency.Claimer) *Handler {
	return &Handler{
		log:     log,
		service: service,
		idem:    idem,
		tracer:  otel.Tracer("order-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/tables/{tableID}", func(r chi.Router) {
		r.Get("/", h.tableStatus)
		r.Post("/sessions", h.openSession)
		r.Post("/lock", h.acquireLock)
		r.Delete("/lock", h.releaseLock)
		r.Post("/batches", h.modifyBatch)
	})
	r.Route("/orders/{orderID}", func(r chi.Router) {
		r.Get("/", h.getOrder)
		r.Get("/channels", h.channelView)
		r.Post("/mixed", h.enableMixed)
		r.Get("/mixed/settlement", h.validateMixed)
		r.Get("/payments", h.listPayments)
		r.Group(func(r chi.Router) {
			if h.idem != nil {
				r.Use(idempotency.Middleware(h.log, h.idem, "settlement"))
			}
			r.Post("/payments", h.settleAmount)
			r.Post("/settlements", h.settleChannel)
			r.Post("/prepayments", h.prepayTickets)
		})
	})
	r.Post("/items/{itemID}/cancel", h.cancelItem)
	r.Post("/items/{itemID}/status", h.advanceItem)
	return r
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		badRequest(w, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "invalid body")
		return false
	}
	return true
}

func (h *Handler) openSession(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "OpenSession")
	defer span.End()

	tableID, ok := pathID(w, r, "tableID")
	if !ok {
		return
	}
	var req openSessionReq
	if !decode(w, r, &req) {
		return
	}
	res, err := h.service.OpenSession(ctx, application.OpenSessionRequest{
		TableID:    tableID,
		Channel:    req.Channel,
		CustomerID: req.CustomerID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) tableStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "TableStatus")
	defer span.End()

	tableID, ok := pathID(w, r, "tableID")
	if !ok {
		return
	}
	st, err := h.service.TableStatus(ctx, tableID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTable(st))
}

func (h *Handler) acquireLock(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AcquireTableLock")
	defer span.End()

	tableID, ok := pathID(w, r, "tableID")
	if !ok {
		return
	}
	var req lockReq
	if !decode(w, r, &req) {
		return
	}
	lease, err := h.service.AcquireLock(ctx, tableID, req.Holder)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lease)
}

func (h *Handler) releaseLock(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ReleaseTableLock")
	defer span.End()

	tableID, ok := pathID(w, r, "tableID")
	if !ok {
		return
	}
	if err := h.service.ReleaseLock(ctx, tableID, r.URL.Query().Get("holder")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) modifyBatch(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ModifyBatch")
	defer span.End()

	tableID, ok := pathID(w, r, "tableID")
	if !ok {
		return
	}
	var req batchReq
	if !decode(w, r, &req) {
		return
	}
	span.SetAttributes(attribute.String("table.id", tableID.String()), attribute.String("channel", string(req.Channel)))

	res, err := h.service.ModifyBatch(ctx, application.BatchRequest{
		TableID:    tableID,
		Channel:    req.Channel,
		OrderID:    req.OrderID,
		CustomerID: req.CustomerID,
		Holder:     req.Holder,
		Add:        lines(req.Add),
		Remove:     lines(req.Remove),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetOrder")
	defer span.End()

	orderID, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}
	o, err := h.service.GetOrder(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrder(o))
}

func (h *Handler) channelView(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ChannelView")
	defer span.End()

	orderID, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}
	v, err := h.service.ChannelView(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) enableMixed(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "EnableMixed")
	defer span.End()

	orderID, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}
	st, err := h.service.EnableMixed(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) validateMixed(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ValidateMixedSettlement")
	defer span.End()

	orderID, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}
	eligible, err := h.service.ValidateMixedSettlement(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order_id": orderID, "eligible": eligible})
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "OrderPayments")
	defer span.End()

	orderID, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}
	ps, err := h.service.OrderPayments(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]paymentResp, 0, len(ps))
	for _, p := range ps {
		out = append(out, toPayment(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) settleAmount(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "SettleAmount")
	defer span.End()

	orderID, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}
	var req settleAmountReq
	if !decode(w, r, &req) {
		return
	}
	res, err := h.service.SettleAmount(ctx, orderID, req.Method, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettlement(res))
}

func (h *Handler) settleChannel(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "SettleChannel")
	defer span.End()

	orderID, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}
	var req settleChannelReq
	if !decode(w, r, &req) {
		return
	}
	res, err := h.service.SettleChannel(ctx, orderID, req.Channel, req.Method)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettlement(res))
}

func (h *Handler) prepayTickets(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "PrepayTickets")
	defer span.End()

	orderID, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}
	var req prepayReq
	if !decode(w, r, &req) {
		return
	}
	res, err := h.service.PrepayTickets(ctx, orderID, req.TicketIDs, req.Method)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettlement(res))
}

func (h *Handler) cancelItem(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CancelItem")
	defer span.End()

	itemID, ok := pathID(w, r, "itemID")
	if !ok {
		return
	}
	var req cancelItemReq
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	res, err := h.service.CancelItem(ctx, itemID, req.Channel)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) advanceItem(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AdvanceItem")
	defer span.End()

	itemID, ok := pathID(w, r, "itemID")
	if !ok {
		return
	}
	var req advanceItemReq
	if !decode(w, r, &req) {
		return
	}
	it, err := h.service.AdvanceItem(ctx, itemID, req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, itemResp{
		ID:          it.ID,
		MenuID:      it.MenuID,
		UnitPrice:   it.UnitPrice,
		Quantity:    it.Quantity,
		Status:      it.Status,
		CookStation: it.CookStation,
	})
}
