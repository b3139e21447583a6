// Package ledger owns the trade-decision records: validation, derived
// metrics, and the CRUD service over the persistent store.
package ledger

import "time"

// Confidence is the user's conviction level for an entry.
type Confidence string

const (
	ConfidenceLow    Confidence = "Low"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceHigh   Confidence = "High"
)

// Confidences lists the allowed values in display order.
var Confidences = []Confidence{ConfidenceLow, ConfidenceMedium, ConfidenceHigh}

// Status is the lifecycle state of an entry. Active entries become Closed
// when sell data is recorded; there is no re-opening.
type Status string

const (
	StatusActive Status = "Active"
	StatusClosed Status = "Closed"
)

// Entry is a user-recorded trading decision. Authoritative fields are
// persisted; derived metrics are recomputed from them on every read and are
// never independently writable.
type Entry struct {
	ID              string     `json:"id" db:"id"`
	StockName       string     `json:"stockName" db:"stock_name"`
	Symbol          string     `json:"symbol" db:"symbol"`
	DateBuy         time.Time  `json:"dateBuy" db:"date_buy"`
	PriceBuy        float64    `json:"priceBuy" db:"price_buy"`
	TargetPercent   float64    `json:"targetPercent" db:"target_percent"`
	StopLossPercent float64    `json:"stopLossPercent" db:"stop_loss_percent"`
	Reason          string     `json:"reason" db:"reason"`
	Confidence      Confidence `json:"confidence" db:"confidence"`
	ChartLink       string     `json:"chartLink,omitempty" db:"chart_link"`
	Source          string     `json:"source,omitempty" db:"source"`
	Author          string     `json:"author,omitempty" db:"author"`
	Status          Status     `json:"status" db:"status"`
	DateSell        *time.Time `json:"dateSell,omitempty" db:"date_sell"`
	PriceSell       *float64   `json:"priceSell,omitempty" db:"price_sell"`
	CreatedAt       time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time  `json:"updatedAt" db:"updated_at"`

	Derived Derived `json:"derived" db:"-"`
}

// Derived holds the metrics computed from the authoritative fields.
type Derived struct {
	RiskReward    float64  `json:"riskReward"`
	TargetPrice   float64  `json:"targetPrice"`
	StopLossPrice float64  `json:"stopLossPrice"`
	HitTarget     bool     `json:"hitTarget"`
	HitStopLoss   bool     `json:"hitStopLoss"`
	ProfitLoss    *float64 `json:"profitLoss,omitempty"`
}

// ComputeDerived recalculates e.Derived from the authoritative inputs. Hit
// flags and profit/loss are only meaningful once the entry is closed.
func (e *Entry) ComputeDerived() {
	d := Derived{
		TargetPrice:   e.PriceBuy * (1 + e.TargetPercent/100),
		StopLossPrice: e.PriceBuy * (1 - e.StopLossPercent/100),
	}
	if e.StopLossPercent != 0 {
		d.RiskReward = e.TargetPercent / e.StopLossPercent
	}
	if e.Status == StatusClosed && e.PriceSell != nil {
		sell := *e.PriceSell
		pl := sell - e.PriceBuy
		d.ProfitLoss = &pl
		d.HitTarget = sell >= d.TargetPrice
		d.HitStopLoss = sell <= d.StopLossPrice
	}
	e.Derived = d
}

// validateStored checks an entry read back from the store. A structurally
// invalid record fails the whole read; partial data loss is not permitted.
func (e *Entry) validateStored() error {
	if _, err := ValidateString(e.ID, "id"); err != nil {
		return err
	}
	if _, err := ValidateString(e.StockName, "stock_name"); err != nil {
		return err
	}
	if _, err := ValidateString(e.Symbol, "symbol"); err != nil {
		return err
	}
	if _, err := ValidatePositiveNumber(e.PriceBuy, "price_buy"); err != nil {
		return err
	}
	if _, err := ValidatePositiveNumber(e.TargetPercent, "target_percent"); err != nil {
		return err
	}
	if _, err := ValidatePositiveNumber(e.StopLossPercent, "stop_loss_percent"); err != nil {
		return err
	}
	if err := ValidateEnum(string(e.Confidence), "confidence", string(ConfidenceLow), string(ConfidenceMedium), string(ConfidenceHigh)); err != nil {
		return err
	}
	if err := ValidateEnum(string(e.Status), "status", string(StatusActive), string(StatusClosed)); err != nil {
		return err
	}
	if e.Status == StatusClosed {
		if e.DateSell == nil || e.PriceSell == nil {
			return errMissingSellData(e.ID)
		}
		if _, err := ValidatePositiveNumber(*e.PriceSell, "price_sell"); err != nil {
			return err
		}
	}
	return nil
}
