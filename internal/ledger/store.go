package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stockledger/stockledger/internal/apperr"
)

// Patch carries the fields of a partial update. Nil fields are untouched.
type Patch struct {
	StockName       *string    `json:"stockName,omitempty"`
	Symbol          *string    `json:"symbol,omitempty"`
	DateBuy         *time.Time `json:"dateBuy,omitempty"`
	PriceBuy        *float64   `json:"priceBuy,omitempty"`
	TargetPercent   *float64   `json:"targetPercent,omitempty"`
	StopLossPercent *float64   `json:"stopLossPercent,omitempty"`
	Reason          *string    `json:"reason,omitempty"`
	Confidence      *string    `json:"confidence,omitempty"`
	ChartLink       *string    `json:"chartLink,omitempty"`
	Status          *Status    `json:"-"`
	DateSell        *time.Time `json:"-"`
	PriceSell       *float64   `json:"-"`
	UpdatedAt       time.Time  `json:"-"`
}

// Store is the persistence contract for ledger entries. Implementations own
// durable storage and id assignment; they surface errors already classified
// into the apperr taxonomy.
type Store interface {
	Create(ctx context.Context, e *Entry) (string, error)
	ReadAll(ctx context.Context) ([]Entry, error)
	Get(ctx context.Context, id string) (*Entry, error)
	Update(ctx context.Context, id string, p Patch) error
	Delete(ctx context.Context, id string) error
}

// MemoryStore is the in-process Store used by tests and by dev mode without
// a database.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (m *MemoryStore) Create(_ context.Context, e *Entry) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	stored := *e
	stored.ID = id
	m.entries[id] = stored
	return id, nil
}

func (m *MemoryStore) ReadAll(_ context.Context) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, apperr.CodeEntryNotFound, "entry not found")
	}
	out := e
	return &out, nil
}

func (m *MemoryStore) Update(_ context.Context, id string, p Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return apperr.New(apperr.KindNotFound, apperr.CodeEntryNotFound, "entry not found")
	}
	applyPatch(&e, p)
	m.entries[id] = e
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[id]; !ok {
		return apperr.New(apperr.KindNotFound, apperr.CodeEntryNotFound, "entry not found")
	}
	delete(m.entries, id)
	return nil
}

func applyPatch(e *Entry, p Patch) {
	if p.StockName != nil {
		e.StockName = *p.StockName
	}
	if p.Symbol != nil {
		e.Symbol = *p.Symbol
	}
	if p.DateBuy != nil {
		e.DateBuy = *p.DateBuy
	}
	if p.PriceBuy != nil {
		e.PriceBuy = *p.PriceBuy
	}
	if p.TargetPercent != nil {
		e.TargetPercent = *p.TargetPercent
	}
	if p.StopLossPercent != nil {
		e.StopLossPercent = *p.StopLossPercent
	}
	if p.Reason != nil {
		e.Reason = *p.Reason
	}
	if p.Confidence != nil {
		e.Confidence = Confidence(*p.Confidence)
	}
	if p.ChartLink != nil {
		e.ChartLink = *p.ChartLink
	}
	if p.Status != nil {
		e.Status = *p.Status
	}
	if p.DateSell != nil {
		e.DateSell = p.DateSell
	}
	if p.PriceSell != nil {
		e.PriceSell = p.PriceSell
	}
	if !p.UpdatedAt.IsZero() {
		e.UpdatedAt = p.UpdatedAt
	}
}
