package domain

import "github.com/google/uuid"

type ViewItem struct {
	ItemID      uuid.UUID  `json:"item_id"`
	TicketID    uuid.UUID  `json:"ticket_id"`
	BatchNo     int        `json:"batch_no"`
	MenuID      uuid.UUID  `json:"menu_id"`
	UnitPrice   int64      `json:"unit_price"`
	Quantity    int        `json:"quantity"`
	Status      ItemStatus `json:"status"`
	CookStation string     `json:"cook_station"`
	PaidStatus  PaidStatus `json:"paid_status"`
}

type ChannelItems struct {
	Items    []ViewItem `json:"items"`
	Subtotal int64      `json:"subtotal"`
}

type ChannelView struct {
	OrderID   uuid.UUID                `json:"order_id"`
	IsMixed   bool                     `json:"is_mixed"`
	Total     int64                    `json:"total_price"`
	ByChannel map[Channel]ChannelItems `json:"by_channel"`
}

// View projects the non-canceled items of the order per source channel.
func (o *Order) View() ChannelView {
	v := ChannelView{
		OrderID:   o.ID,
		IsMixed:   o.IsMixed,
		Total:     o.TotalPrice,
		ByChannel: make(map[Channel]ChannelItems, len(Channels)),
	}
	for _, c := range Channels {
		v.ByChannel[c] = ChannelItems{Items: []ViewItem{}}
	}
	for _, t := range o.Tickets {
		bucket := v.ByChannel[t.SourceChannel]
		for _, it := range t.Items {
			if !it.Active() {
				continue
			}
			bucket.Items = append(bucket.Items, ViewItem{
				ItemID:      it.ID,
				TicketID:    t.ID,
				BatchNo:     t.BatchNo,
				MenuID:      it.MenuID,
				UnitPrice:   it.UnitPrice,
				Quantity:    it.Quantity,
				Status:      it.Status,
				CookStation: it.CookStation,
				PaidStatus:  t.PaidStatus,
			})
			bucket.Subtotal += it.LineTotal()
		}
		v.ByChannel[t.SourceChannel] = bucket
	}
	return v
}
