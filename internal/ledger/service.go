package ledger

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stockledger/stockledger/internal/apperr"
	"github.com/stockledger/stockledger/internal/retry"
	"github.com/stockledger/stockledger/internal/symbol"
)

// Input carries the user-supplied fields for a new entry. Date fields accept
// time.Time or ISO-8601 strings per ValidateDate.
type Input struct {
	StockName       string      `json:"stockName"`
	Symbol          string      `json:"symbol"`
	DateBuy         interface{} `json:"dateBuy"`
	PriceBuy        interface{} `json:"priceBuy"`
	TargetPercent   interface{} `json:"targetPercent"`
	StopLossPercent interface{} `json:"stopLossPercent"`
	Reason          string      `json:"reason"`
	Confidence      string      `json:"confidence"`
	ChartLink       string      `json:"chartLink,omitempty"`
	Source          string      `json:"source,omitempty"`
	Author          string      `json:"author,omitempty"`
}

// Service validates, persists and retrieves ledger entries. The store is
// injected; all store calls go through the shared retry policy.
type Service struct {
	store  Store
	policy retry.Policy
	now    func() time.Time
}

// NewService creates a ledger service over the given store.
func NewService(store Store, policy retry.Policy) *Service {
	return &Service{store: store, policy: policy, now: func() time.Time { return time.Now().UTC() }}
}

// withClock overrides the time source. Test hook.
func (s *Service) withClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// AddEntry validates the input, computes timestamps and status, and creates
// one durable record. Validation is fail-fast: the first violating field is
// reported and nothing is written.
func (s *Service) AddEntry(ctx context.Context, in Input) (*Entry, error) {
	stockName, err := ValidateString(in.StockName, "stock_name")
	if err != nil {
		return nil, err
	}
	rawSymbol, err := ValidateString(in.Symbol, "symbol")
	if err != nil {
		return nil, err
	}
	sym := symbol.Normalize(rawSymbol)
	if err := symbol.Validate(sym); err != nil {
		return nil, err
	}
	dateBuy, err := ValidateDate(in.DateBuy, "date_buy")
	if err != nil {
		return nil, err
	}
	priceBuy, err := ValidatePositiveNumber(in.PriceBuy, "price_buy")
	if err != nil {
		return nil, err
	}
	targetPct, err := ValidatePositiveNumber(in.TargetPercent, "target_percent")
	if err != nil {
		return nil, err
	}
	stopPct, err := ValidatePositiveNumber(in.StopLossPercent, "stop_loss_percent")
	if err != nil {
		return nil, err
	}
	reason, err := ValidateString(in.Reason, "reason")
	if err != nil {
		return nil, err
	}
	if err := ValidateEnum(in.Confidence, "confidence", string(ConfidenceLow), string(ConfidenceMedium), string(ConfidenceHigh)); err != nil {
		return nil, err
	}

	now := s.now()
	entry := &Entry{
		StockName:       stockName,
		Symbol:          sym,
		DateBuy:         dateBuy,
		PriceBuy:        priceBuy,
		TargetPercent:   targetPct,
		StopLossPercent: stopPct,
		Reason:          reason,
		Confidence:      Confidence(in.Confidence),
		ChartLink:       in.ChartLink,
		Source:          in.Source,
		Author:          in.Author,
		Status:          StatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	var id string
	err = s.policy.Do(ctx, "ledger.create", func(ctx context.Context) error {
		var createErr error
		id, createErr = s.store.Create(ctx, entry)
		return createErr
	})
	if err != nil {
		log.Error().Str("symbol", sym).Err(err).Msg("ledger create failed")
		return nil, err
	}

	entry.ID = id
	entry.ComputeDerived()
	return entry, nil
}

// GetEntries returns all entries newest-first with derived metrics
// recomputed. A structurally invalid record fails the whole read.
func (s *Service) GetEntries(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	err := s.policy.Do(ctx, "ledger.read_all", func(ctx context.Context) error {
		var readErr error
		entries, readErr = s.store.ReadAll(ctx)
		return readErr
	})
	if err != nil {
		return nil, err
	}

	for i := range entries {
		if err := entries[i].validateStored(); err != nil {
			log.Error().Str("id", entries[i].ID).Err(err).Msg("invalid record in store")
			return nil, apperr.Wrap(apperr.KindInternal, apperr.CodeMalformedPayload, "ledger contains an invalid record", err)
		}
		entries[i].ComputeDerived()
	}
	return entries, nil
}

// UpdateEntry applies the non-nil fields of the patch, re-validating each
// one individually, and refreshes the updated timestamp.
func (s *Service) UpdateEntry(ctx context.Context, id string, p Patch) error {
	if _, err := ValidateString(id, "id"); err != nil {
		return err
	}
	if p.StockName != nil {
		v, err := ValidateString(*p.StockName, "stock_name")
		if err != nil {
			return err
		}
		p.StockName = &v
	}
	if p.Symbol != nil {
		sym := symbol.Normalize(*p.Symbol)
		if err := symbol.Validate(sym); err != nil {
			return err
		}
		p.Symbol = &sym
	}
	if p.PriceBuy != nil {
		if _, err := ValidatePositiveNumber(*p.PriceBuy, "price_buy"); err != nil {
			return err
		}
	}
	if p.TargetPercent != nil {
		if _, err := ValidatePositiveNumber(*p.TargetPercent, "target_percent"); err != nil {
			return err
		}
	}
	if p.StopLossPercent != nil {
		if _, err := ValidatePositiveNumber(*p.StopLossPercent, "stop_loss_percent"); err != nil {
			return err
		}
	}
	if p.Reason != nil {
		v, err := ValidateString(*p.Reason, "reason")
		if err != nil {
			return err
		}
		p.Reason = &v
	}
	if p.Confidence != nil {
		if err := ValidateEnum(*p.Confidence, "confidence", string(ConfidenceLow), string(ConfidenceMedium), string(ConfidenceHigh)); err != nil {
			return err
		}
	}
	p.UpdatedAt = s.now()

	return s.policy.Do(ctx, "ledger.update", func(ctx context.Context) error {
		return s.store.Update(ctx, id, p)
	})
}

// CloseEntry records the sell side of an entry and transitions it to Closed.
// Rejects a non-positive sell price or a sell date before the buy date.
func (s *Service) CloseEntry(ctx context.Context, id string, dateSell interface{}, priceSell interface{}) error {
	if _, err := ValidateString(id, "id"); err != nil {
		return err
	}
	sellDate, err := ValidateDate(dateSell, "date_sell")
	if err != nil {
		return err
	}
	sellPrice, err := ValidatePositiveNumber(priceSell, "price_sell")
	if err != nil {
		return err
	}

	var existing *Entry
	err = s.policy.Do(ctx, "ledger.get", func(ctx context.Context) error {
		var getErr error
		existing, getErr = s.store.Get(ctx, id)
		return getErr
	})
	if err != nil {
		return err
	}
	if sellDate.Before(existing.DateBuy) {
		return apperr.Validation("date_sell", "sell date cannot precede the buy date")
	}

	closed := StatusClosed
	p := Patch{
		Status:    &closed,
		DateSell:  &sellDate,
		PriceSell: &sellPrice,
		UpdatedAt: s.now(),
	}
	return s.policy.Do(ctx, "ledger.close", func(ctx context.Context) error {
		return s.store.Update(ctx, id, p)
	})
}

// DeleteEntry removes an entry.
func (s *Service) DeleteEntry(ctx context.Context, id string) error {
	if _, err := ValidateString(id, "id"); err != nil {
		return err
	}
	return s.policy.Do(ctx, "ledger.delete", func(ctx context.Context) error {
		return s.store.Delete(ctx, id)
	})
}
