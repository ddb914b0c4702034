package domain

import "time"

// Purpose is one kind of work a listing offers, priced per hour.
type Purpose struct {
	Name           string  `json:"name"`
	BasePrice      float64 `json:"base_price"`
	OptimizedPrice *int64  `json:"optimized_price,omitempty"`
}

// Item is the listing side of a booking. Owned by the marketplace, read by pricing.
type Item struct {
	ID                    string
	OwnerID               string
	Category              string
	District              string
	Mandal                string
	Location              string
	Purposes              []Purpose
	AutoPriceOptimization bool
	// Available is false while an accepted booking holds the item.
	Available bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (i *Item) Purpose(name string) (Purpose, bool) {
	for _, p := range i.Purposes {
		if p.Name == name {
			return p, true
		}
	}
	return Purpose{}, false
}
