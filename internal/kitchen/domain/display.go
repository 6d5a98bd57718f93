package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"

	orderdomain "github.com/dmehra2102/tableflow/internal/order/domain"
)

// StationAll addresses every kitchen display, used for session-wide news
// such as a settled or canceled order.
const StationAll = "all"

// StationDefault collects items whose menu entry has no cook station.
const StationDefault = "default"

type Line struct {
	ItemID   uuid.UUID `json:"item_id"`
	MenuID   uuid.UUID `json:"menu_id"`
	BatchNo  int       `json:"batch_no"`
	Quantity int       `json:"quantity"`
	Canceled bool      `json:"canceled"`
}

// DisplayUpdate is what one station's screen receives for one order delta.
type DisplayUpdate struct {
	OrderID       uuid.UUID             `json:"order_id"`
	TableID       uuid.UUID             `json:"table_id"`
	Station       string                `json:"station"`
	Kind          orderdomain.DeltaKind `json:"kind"`
	Channel       orderdomain.Channel   `json:"channel,omitempty"`
	Added         []Line                `json:"added"`
	Removed       []Line                `json:"removed"`
	OrderCanceled bool                  `json:"order_canceled"`
	OccurredAt    time.Time             `json:"occurred_at"`
}

// Split fans a delta out per cook station, stations in name order. Deltas
// that end the session are also announced on StationAll.
func Split(d orderdomain.Delta) []DisplayUpdate {
	byStation := map[string]*DisplayUpdate{}
	get := func(station string) *DisplayUpdate {
		if station == "" {
			station = StationDefault
		}
		u, ok := byStation[station]
		if !ok {
			u = &DisplayUpdate{
				OrderID:       d.OrderID,
				TableID:       d.TableID,
				Station:       station,
				Kind:          d.Kind,
				Channel:       d.Channel,
				Added:         []Line{},
				Removed:       []Line{},
				OrderCanceled: d.OrderCanceled,
				OccurredAt:    d.OccurredAt,
			}
			byStation[station] = u
		}
		return u
	}
	for _, c := range d.Added {
		u := get(c.CookStation)
		u.Added = append(u.Added, line(c))
	}
	for _, c := range d.Removed {
		u := get(c.CookStation)
		u.Removed = append(u.Removed, line(c))
	}
	if d.OrderCanceled || d.Kind == orderdomain.DeltaSettled {
		get(StationAll)
	}

	stations := make([]string, 0, len(byStation))
	for s := range byStation {
		stations = append(stations, s)
	}
	sort.Strings(stations)
	out := make([]DisplayUpdate, 0, len(stations))
	for _, s := range stations {
		out = append(out, *byStation[s])
	}
	return out
}

func line(c orderdomain.ItemChange) Line {
	return Line{
		ItemID:   c.ItemID,
		MenuID:   c.MenuID,
		BatchNo:  c.BatchNo,
		Quantity: c.Quantity,
		Canceled: c.Canceled,
	}
}
