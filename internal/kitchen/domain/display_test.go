package domain

import (
	"testing"

	"github.com/google/uuid"

	orderdomain "github.com/dmehra2102/tableflow/internal/order/domain"
)

func TestSplit(t *testing.T) {
	order := &orderdomain.Order{ID: uuid.New(), TableID: uuid.New()}
	change := func(station string, qty int) orderdomain.ItemChange {
		return orderdomain.ItemChange{ItemID: uuid.New(), MenuID: uuid.New(), BatchNo: 1, Quantity: qty, CookStation: station}
	}

	tests := []struct {
		name     string
		delta    func() orderdomain.Delta
		stations []string
	}{
		{
			name: "newTicketPerStation",
			delta: func() orderdomain.Delta {
				d := orderdomain.NewDelta(order, orderdomain.DeltaNewTicket, orderdomain.ChannelTerminal)
				d.Added = []orderdomain.ItemChange{change("hot", 2), change("cold", 1), change("hot", 1)}
				return d
			},
			stations: []string{"cold", "hot"},
		},
		{
			name: "missingStationGoesToDefault",
			delta: func() orderdomain.Delta {
				d := orderdomain.NewDelta(order, orderdomain.DeltaCanceled, orderdomain.ChannelExternal)
				d.Removed = []orderdomain.ItemChange{change("", 1)}
				return d
			},
			stations: []string{StationDefault},
		},
		{
			name: "canceledOrderAnnouncedToAll",
			delta: func() orderdomain.Delta {
				d := orderdomain.NewDelta(order, orderdomain.DeltaCanceled, orderdomain.ChannelTerminal)
				d.Removed = []orderdomain.ItemChange{change("hot", 1)}
				d.OrderCanceled = true
				return d
			},
			stations: []string{StationAll, "hot"},
		},
		{
			name: "settledWithoutItems",
			delta: func() orderdomain.Delta {
				return orderdomain.NewDelta(order, orderdomain.DeltaSettled, "")
			},
			stations: []string{StationAll},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			updates := Split(tt.delta())
			if len(updates) != len(tt.stations) {
				t.Fatalf("got %d updates, want %d", len(updates), len(tt.stations))
			}
			for i, u := range updates {
				if u.Station != tt.stations[i] {
					t.Fatalf("update %d station = %s, want %s", i, u.Station, tt.stations[i])
				}
				if u.OrderID != order.ID || u.Added == nil || u.Removed == nil {
					t.Fatalf("malformed update %+v", u)
				}
			}
		})
	}
}

func TestSplitKeepsLinesTogether(t *testing.T) {
	order := &orderdomain.Order{ID: uuid.New(), TableID: uuid.New()}
	d := orderdomain.NewDelta(order, orderdomain.DeltaNewTicket, orderdomain.ChannelTerminal)
	d.Added = []orderdomain.ItemChange{
		{ItemID: uuid.New(), Quantity: 2, CookStation: "hot"},
		{ItemID: uuid.New(), Quantity: 3, CookStation: "hot"},
	}
	d.Removed = []orderdomain.ItemChange{{ItemID: uuid.New(), Quantity: 1, CookStation: "hot", Canceled: true}}

	updates := Split(d)
	if len(updates) != 1 {
		t.Fatalf("expected one station, got %d", len(updates))
	}
	u := updates[0]
	if len(u.Added) != 2 || u.Added[1].Quantity != 3 || len(u.Removed) != 1 || !u.Removed[0].Canceled {
		t.Fatalf("unexpected update %+v", u)
	}
}
