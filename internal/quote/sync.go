package quote

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stockledger/stockledger/internal/apperr"
)

// State is the lifecycle state of a quote subscription.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateRetrying // a failure happened but attempts remain
	StateFailed   // terminal until the next refresh or a manual retry
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateRetrying:
		return "retrying"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Update is one event delivered to a subscriber. Quote is set for Ready,
// Err for Retrying and Failed.
type Update struct {
	Symbol  string
	State   State
	Quote   *Quote
	Err     error
	Attempt int
}

// Fetcher is the upstream dependency of the sync engine. *Client satisfies it.
type Fetcher interface {
	FetchChart(ctx context.Context, sym, period string) (*Chart, error)
}

// SyncerConfig configures refresh and failure behavior.
type SyncerConfig struct {
	RefreshInterval time.Duration // scheduled re-fetch interval
	FetchTimeout    time.Duration // per-fetch deadline
	MaxAttempts     int           // bounded retry count per refresh cycle
	BaseDelay       time.Duration // fixed delay for transient errors, backoff base for rate limits
	MaxBackoff      time.Duration
}

// DefaultSyncerConfig matches the dashboard refresh policy.
func DefaultSyncerConfig() SyncerConfig {
	return SyncerConfig{
		RefreshInterval: 10 * time.Second,
		FetchTimeout:    15 * time.Second,
		MaxAttempts:     3,
		BaseDelay:       1 * time.Second,
		MaxBackoff:      10 * time.Second,
	}
}

// Syncer keeps subscribed symbols fresh: an immediate fetch on subscription,
// then a fixed-interval refresh, with classified bounded retries on failure.
// Concurrent fetches for the same symbol are served from a single in-flight
// upstream call.
type Syncer struct {
	fetcher Fetcher
	cfg     SyncerConfig

	mu       sync.Mutex
	inflight map[string]*inflightCall
	active   int
}

type inflightCall struct {
	done  chan struct{}
	chart *Chart
	err   error
}

// NewSyncer creates a sync engine over the given fetcher.
func NewSyncer(fetcher Fetcher, cfg SyncerConfig) *Syncer {
	if cfg.RefreshInterval <= 0 {
		cfg = DefaultSyncerConfig()
	}
	return &Syncer{
		fetcher:  fetcher,
		cfg:      cfg,
		inflight: make(map[string]*inflightCall),
	}
}

// ActiveSubscriptions returns the number of live subscriptions.
func (s *Syncer) ActiveSubscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// fetch deduplicates concurrent requests for the same symbol. The upstream
// call runs on a detached context so one subscriber cancelling does not fail
// the others; the caller's ctx only governs how long it waits for the result.
func (s *Syncer) fetch(ctx context.Context, sym string) (*Chart, error) {
	s.mu.Lock()
	if call, ok := s.inflight[sym]; ok {
		s.mu.Unlock()
		select {
		case <-call.done:
			return call.chart, call.err
		case <-ctx.Done():
			return nil, apperr.Classify(ctx.Err())
		}
	}

	call := &inflightCall{done: make(chan struct{})}
	s.inflight[sym] = call
	s.mu.Unlock()

	go func() {
		fetchCtx, cancel := context.WithTimeout(context.Background(), s.cfg.FetchTimeout)
		defer cancel()
		call.chart, call.err = s.fetcher.FetchChart(fetchCtx, sym, "1D")

		s.mu.Lock()
		delete(s.inflight, sym)
		s.mu.Unlock()
		close(call.done)
	}()

	select {
	case <-call.done:
		return call.chart, call.err
	case <-ctx.Done():
		return nil, apperr.Classify(ctx.Err())
	}
}

// Subscription delivers updates for one symbol until Close is called or the
// parent context ends.
type Subscription struct {
	Symbol  string
	updates chan Update
	retryCh chan struct{}
	cancel  context.CancelFunc
	once    sync.Once
}

// Updates is the stream of state transitions and quote snapshots.
func (sub *Subscription) Updates() <-chan Update { return sub.updates }

// Retry requests an immediate re-fetch with a fresh attempt counter. Used
// after a terminal failure.
func (sub *Subscription) Retry() {
	select {
	case sub.retryCh <- struct{}{}:
	default:
	}
}

// Close cancels the subscription, stopping its timers and discarding any
// in-flight result.
func (sub *Subscription) Close() { sub.once.Do(sub.cancel) }

// Subscribe starts a subscription for a normalized, non-empty symbol. The
// first fetch is issued immediately.
func (s *Syncer) Subscribe(ctx context.Context, sym string) (*Subscription, error) {
	if sym == "" {
		return nil, apperr.New(apperr.KindValidation, apperr.CodeInvalidSymbol, "symbol is required")
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		Symbol:  sym,
		updates: make(chan Update, 16),
		retryCh: make(chan struct{}, 1),
		cancel:  cancel,
	}

	s.mu.Lock()
	s.active++
	s.mu.Unlock()

	go s.run(subCtx, sub)
	return sub, nil
}

func (s *Syncer) run(ctx context.Context, sub *Subscription) {
	defer func() {
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
		close(sub.updates)
	}()

	ticker := time.NewTicker(s.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		terminal := s.refresh(ctx, sub)
		if ctx.Err() != nil {
			return
		}

		if terminal {
			// Unknown symbol or malformed payload: no automatic refresh,
			// only a manual retry restarts the cycle.
			select {
			case <-ctx.Done():
				return
			case <-sub.retryCh:
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-sub.retryCh:
		}
	}
}

// refresh runs one fetch cycle with bounded retries. It returns true when
// the failure is terminal for this symbol (not retried on the schedule).
func (s *Syncer) refresh(ctx context.Context, sub *Subscription) bool {
	s.emit(ctx, sub, Update{Symbol: sub.Symbol, State: StateLoading})

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		chart, err := s.fetch(ctx, sub.Symbol)
		if ctx.Err() != nil {
			// Cancelled mid-fetch: the result, if any, must not be applied.
			return false
		}
		if err == nil {
			q := chart.Quote
			s.emit(ctx, sub, Update{Symbol: sub.Symbol, State: StateReady, Quote: &q})
			return false
		}

		classified := apperr.Classify(err)
		switch classified.Kind {
		case apperr.KindNotFound, apperr.KindValidation:
			s.emit(ctx, sub, Update{Symbol: sub.Symbol, State: StateFailed, Err: classified, Attempt: attempt})
			return true
		case apperr.KindRateLimited, apperr.KindTransient:
			if attempt == s.cfg.MaxAttempts {
				s.emit(ctx, sub, Update{Symbol: sub.Symbol, State: StateFailed, Err: classified, Attempt: attempt})
				return false
			}
			s.emit(ctx, sub, Update{Symbol: sub.Symbol, State: StateRetrying, Err: classified, Attempt: attempt})

			delay := s.cfg.BaseDelay
			if classified.Kind == apperr.KindRateLimited {
				delay = s.cfg.BaseDelay << uint(attempt-1)
				if delay > s.cfg.MaxBackoff {
					delay = s.cfg.MaxBackoff
				}
			}
			select {
			case <-ctx.Done():
				return false
			case <-time.After(delay):
			}
		default:
			log.Error().Str("symbol", sub.Symbol).Err(classified).Msg("quote fetch failed")
			s.emit(ctx, sub, Update{Symbol: sub.Symbol, State: StateFailed, Err: classified, Attempt: attempt})
			return false
		}
	}
	return false
}

// emit delivers an update unless the subscription is already cancelled.
func (s *Syncer) emit(ctx context.Context, sub *Subscription, u Update) {
	select {
	case sub.updates <- u:
	case <-ctx.Done():
	}
}
