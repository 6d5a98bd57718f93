package http

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmehra2102/tableflow/internal/order/application"
	"github.com/dmehra2102/tableflow/internal/order/domain"
	paydomain "github.com/dmehra2102/tableflow/internal/payment/domain"
)

type lineReq struct {
	MenuID   uuid.UUID `json:"menu_id"`
	Quantity int       `json:"quantity"`
}

// lines folds repeated menu ids into one quantity.
func lines(in []lineReq) map[uuid.UUID]int {
	if len(in) == 0 {
		return nil
	}
	out := make(map[uuid.UUID]int, len(in))
	for _, l := range in {
		out[l.MenuID] += l.Quantity
	}
	return out
}

type openSessionReq struct {
	Channel    domain.Channel `json:"channel"`
	CustomerID *uuid.UUID     `json:"customer_id"`
}

type lockReq struct {
	Holder string `json:"holder"`
}

type batchReq struct {
	Channel    domain.Channel `json:"channel"`
	OrderID    *uuid.UUID     `json:"order_id"`
	CustomerID *uuid.UUID     `json:"customer_id"`
	Holder     string         `json:"holder"`
	Add        []lineReq      `json:"add"`
	Remove     []lineReq      `json:"remove"`
}

type settleAmountReq struct {
	Method paydomain.Method `json:"method"`
	Amount int64            `json:"amount"`
}

type settleChannelReq struct {
	Channel domain.Channel   `json:"channel"`
	Method  paydomain.Method `json:"method"`
}

type prepayReq struct {
	TicketIDs []uuid.UUID      `json:"ticket_ids"`
	Method    paydomain.Method `json:"method"`
}

type cancelItemReq struct {
	Channel domain.Channel `json:"channel"`
}

type advanceItemReq struct {
	Status domain.ItemStatus `json:"status"`
}

type tableResp struct {
	ID           uuid.UUID          `json:"id"`
	StoreID      uuid.UUID          `json:"store_id"`
	Label        string             `json:"label"`
	Capacity     int                `json:"capacity"`
	Status       domain.TableStatus `json:"status"`
	MainOrderID  *uuid.UUID         `json:"main_order_id"`
	SpareOrderID *uuid.UUID         `json:"spare_order_id"`
	IsOccupied   bool               `json:"is_occupied"`
	IsMixed      bool               `json:"is_mixed"`
}

func toTable(st application.TableState) tableResp {
	t := st.Table
	return tableResp{
		ID:           t.ID,
		StoreID:      t.StoreID,
		Label:        t.Label,
		Capacity:     t.Capacity,
		Status:       t.Status,
		MainOrderID:  t.MainOrderID,
		SpareOrderID: t.SpareOrderID,
		IsOccupied:   st.Session.IsOccupied,
		IsMixed:      st.Session.IsMixed,
	}
}

type itemResp struct {
	ID          uuid.UUID         `json:"id"`
	MenuID      uuid.UUID         `json:"menu_id"`
	UnitPrice   int64             `json:"unit_price"`
	Quantity    int               `json:"quantity"`
	Status      domain.ItemStatus `json:"status"`
	CookStation string            `json:"cook_station"`
}

type ticketResp struct {
	ID            uuid.UUID           `json:"id"`
	BatchNo       int                 `json:"batch_no"`
	SourceChannel domain.Channel      `json:"source_channel"`
	PaymentType   domain.PaymentType  `json:"payment_type"`
	PaidStatus    domain.PaidStatus   `json:"paid_status"`
	Status        domain.TicketStatus `json:"status"`
	Subtotal      int64               `json:"subtotal"`
	Items         []itemResp          `json:"items"`
}

type orderResp struct {
	ID            uuid.UUID            `json:"id"`
	TableID       uuid.UUID            `json:"table_id"`
	CustomerID    *uuid.UUID           `json:"customer_id,omitempty"`
	OriginChannel domain.Channel       `json:"origin_channel"`
	SessionStatus domain.SessionStatus `json:"session_status"`
	PaymentStatus domain.PaymentStatus `json:"payment_status"`
	IsMixed       bool                 `json:"is_mixed"`
	TotalPrice    int64                `json:"total_price"`
	CreatedAt     time.Time            `json:"created_at"`
	ClosedAt      *time.Time           `json:"closed_at,omitempty"`
	Tickets       []ticketResp         `json:"tickets"`
}

func toOrder(o *domain.Order) orderResp {
	resp := orderResp{
		ID:            o.ID,
		TableID:       o.TableID,
		CustomerID:    o.CustomerID,
		OriginChannel: o.OriginChannel,
		SessionStatus: o.SessionStatus,
		PaymentStatus: o.PaymentStatus,
		IsMixed:       o.IsMixed,
		TotalPrice:    o.TotalPrice,
		CreatedAt:     o.CreatedAt,
		ClosedAt:      o.ClosedAt,
		Tickets:       make([]ticketResp, 0, len(o.Tickets)),
	}
	for _, t := range o.Tickets {
		tr := ticketResp{
			ID:            t.ID,
			BatchNo:       t.BatchNo,
			SourceChannel: t.SourceChannel,
			PaymentType:   t.PaymentType,
			PaidStatus:    t.PaidStatus,
			Status:        t.Status,
			Subtotal:      t.Subtotal(),
			Items:         make([]itemResp, 0, len(t.Items)),
		}
		for _, it := range t.Items {
			tr.Items = append(tr.Items, itemResp{
				ID:          it.ID,
				MenuID:      it.MenuID,
				UnitPrice:   it.UnitPrice,
				Quantity:    it.Quantity,
				Status:      it.Status,
				CookStation: it.CookStation,
			})
		}
		resp.Tickets = append(resp.Tickets, tr)
	}
	return resp
}

type detailResp struct {
	TicketID uuid.UUID `json:"ticket_id"`
	Amount   int64     `json:"amount"`
}

type paymentResp struct {
	ID          uuid.UUID        `json:"id"`
	OrderID     uuid.UUID        `json:"order_id"`
	Method      paydomain.Method `json:"method"`
	Mode        paydomain.Mode   `json:"mode"`
	Amount      int64            `json:"amount"`
	Status      paydomain.Status `json:"status"`
	ProviderRef string           `json:"provider_ref,omitempty"`
	Reason      string           `json:"reason,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	Details     []detailResp     `json:"details"`
}

func toPayment(p paydomain.Payment) paymentResp {
	resp := paymentResp{
		ID:          p.ID,
		OrderID:     p.OrderID,
		Method:      p.Method,
		Mode:        p.Mode,
		Amount:      p.Amount,
		Status:      p.Status,
		ProviderRef: p.ProviderRef,
		Reason:      p.Reason,
		CreatedAt:   p.CreatedAt,
		Details:     make([]detailResp, 0, len(p.Details)),
	}
	for _, d := range p.Details {
		resp.Details = append(resp.Details, detailResp{TicketID: d.TicketID, Amount: d.Amount})
	}
	return resp
}

type settlementResp struct {
	OrderID       uuid.UUID            `json:"order_id"`
	Payment       *paymentResp         `json:"payment,omitempty"`
	PaymentStatus domain.PaymentStatus `json:"payment_status"`
	Remaining     int64                `json:"remaining"`
	Closed        bool                 `json:"closed"`
	PointsEarned  int64                `json:"points_earned"`
}

func toSettlement(r application.SettlementResult) settlementResp {
	resp := settlementResp{
		OrderID:       r.OrderID,
		PaymentStatus: r.PaymentStatus,
		Remaining:     r.Remaining,
		Closed:        r.Closed,
		PointsEarned:  r.PointsEarned,
	}
	if r.Payment != nil {
		p := toPayment(*r.Payment)
		resp.Payment = &p
	}
	return resp
}
