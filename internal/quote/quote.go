// Package quote holds the quote domain types, the upstream provider client,
// and the sync engine that keeps subscribed symbols fresh.
package quote

import "time"

// Quote is a point-in-time price snapshot for a symbol. Numeric fields are
// pointers because the upstream source omits them independently. A Quote is
// never mutated after construction; the next fetch supersedes it.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         *float64  `json:"price,omitempty"`
	PreviousClose *float64  `json:"previousClose,omitempty"`
	Open          *float64  `json:"open,omitempty"`
	DayHigh       *float64  `json:"dayHigh,omitempty"`
	DayLow        *float64  `json:"dayLow,omitempty"`
	Volume        *float64  `json:"volume,omitempty"`
	Currency      string    `json:"currency"`
	FetchedAt     time.Time `json:"fetchedAt"`
}

// ChangeFromPrevClose returns the absolute and percentage change against the
// previous close. ok is false when either price is absent or the previous
// close is zero; callers must not display a change in that case.
func (q *Quote) ChangeFromPrevClose() (change, pct float64, ok bool) {
	if q.Price == nil || q.PreviousClose == nil || *q.PreviousClose == 0 {
		return 0, 0, false
	}
	change = *q.Price - *q.PreviousClose
	pct = change / *q.PreviousClose * 100
	return change, pct, true
}

// PricePoint is one sample in a historical close-price series.
type PricePoint struct {
	Date  string  `json:"date"`
	Price float64 `json:"price"`
}

// Chart is the validated payload served for a symbol: the live quote plus
// the requested close-price history.
type Chart struct {
	Quote   Quote        `json:"quote"`
	History []PricePoint `json:"history"`
}

// SearchResult is a candidate instrument returned by a symbol lookup.
type SearchResult struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Exchange string `json:"exchange"`
	Market   string `json:"market"`
}
