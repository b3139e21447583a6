package quote

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockledger/stockledger/internal/apperr"
)

type fakeFetcher struct {
	mu      sync.Mutex
	calls   int
	block   chan struct{} // when set, fetches wait here
	respond func(call int) (*Chart, error)
}

func (ff *fakeFetcher) FetchChart(ctx context.Context, sym, period string) (*Chart, error) {
	ff.mu.Lock()
	ff.calls++
	call := ff.calls
	block := ff.block
	ff.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return ff.respond(call)
}

func (ff *fakeFetcher) callCount() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.calls
}

func readyChart(sym string, price float64) (*Chart, error) {
	p := price
	return &Chart{Quote: Quote{Symbol: sym, Price: &p}}, nil
}

func testSyncerConfig() SyncerConfig {
	return SyncerConfig{
		RefreshInterval: time.Hour, // keep the schedule out of the way
		FetchTimeout:    time.Second,
		MaxAttempts:     3,
		BaseDelay:       time.Millisecond,
		MaxBackoff:      4 * time.Millisecond,
	}
}

func collectUntil(t *testing.T, sub *Subscription, want State) []Update {
	t.Helper()
	var got []Update
	deadline := time.After(5 * time.Second)
	for {
		select {
		case u, ok := <-sub.Updates():
			if !ok {
				t.Fatalf("updates channel closed before reaching state %v (got %v)", want, got)
			}
			got = append(got, u)
			if u.State == want {
				return got
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %v (got %v)", want, got)
		}
	}
}

func TestSubscribeEmptySymbolRejected(t *testing.T) {
	s := NewSyncer(&fakeFetcher{}, testSyncerConfig())
	_, err := s.Subscribe(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestSubscribeImmediateFetch(t *testing.T) {
	ff := &fakeFetcher{respond: func(int) (*Chart, error) { return readyChart("TCS.NS", 4100) }}
	s := NewSyncer(ff, testSyncerConfig())

	sub, err := s.Subscribe(context.Background(), "TCS.NS")
	require.NoError(t, err)
	defer sub.Close()

	updates := collectUntil(t, sub, StateReady)
	assert.Equal(t, StateLoading, updates[0].State)
	last := updates[len(updates)-1]
	require.NotNil(t, last.Quote)
	assert.InDelta(t, 4100, *last.Quote.Price, 1e-9)
	assert.Equal(t, 1, ff.callCount())
}

func TestTransientFailureRetriedToBound(t *testing.T) {
	ff := &fakeFetcher{respond: func(int) (*Chart, error) {
		return nil, apperr.New(apperr.KindTransient, apperr.CodeUpstreamError, "unavailable")
	}}
	s := NewSyncer(ff, testSyncerConfig())

	sub, err := s.Subscribe(context.Background(), "TCS.NS")
	require.NoError(t, err)
	defer sub.Close()

	updates := collectUntil(t, sub, StateFailed)
	assert.Equal(t, 3, ff.callCount())

	retrying := 0
	for _, u := range updates {
		if u.State == StateRetrying {
			retrying++
		}
	}
	assert.Equal(t, 2, retrying)
	assert.Equal(t, 3, updates[len(updates)-1].Attempt)
}

func TestNotFoundIsTerminalUntilManualRetry(t *testing.T) {
	ff := &fakeFetcher{respond: func(call int) (*Chart, error) {
		if call == 1 {
			return nil, apperr.New(apperr.KindNotFound, apperr.CodeSymbolNotFound, "unknown symbol")
		}
		return readyChart("TCS.NS", 4100)
	}}
	s := NewSyncer(ff, testSyncerConfig())

	sub, err := s.Subscribe(context.Background(), "TCS.NS")
	require.NoError(t, err)
	defer sub.Close()

	collectUntil(t, sub, StateFailed)
	assert.Equal(t, 1, ff.callCount())

	// No automatic retry happens for an unknown symbol.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, ff.callCount())

	sub.Retry()
	updates := collectUntil(t, sub, StateReady)
	require.NotNil(t, updates[len(updates)-1].Quote)
	assert.Equal(t, 2, ff.callCount())
}

func TestValidationFailureNotRetried(t *testing.T) {
	ff := &fakeFetcher{respond: func(int) (*Chart, error) {
		return nil, apperr.New(apperr.KindValidation, apperr.CodeMalformedPayload, "bad payload")
	}}
	s := NewSyncer(ff, testSyncerConfig())

	sub, err := s.Subscribe(context.Background(), "TCS.NS")
	require.NoError(t, err)
	defer sub.Close()

	collectUntil(t, sub, StateFailed)
	assert.Equal(t, 1, ff.callCount())
}

func TestConcurrentSubscribersShareOneFetch(t *testing.T) {
	release := make(chan struct{})
	ff := &fakeFetcher{
		block:   release,
		respond: func(int) (*Chart, error) { return readyChart("INFY.NS", 1500) },
	}
	s := NewSyncer(ff, testSyncerConfig())

	subA, err := s.Subscribe(context.Background(), "INFY.NS")
	require.NoError(t, err)
	defer subA.Close()
	subB, err := s.Subscribe(context.Background(), "INFY.NS")
	require.NoError(t, err)
	defer subB.Close()

	// Give both subscription loops time to reach the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(release)

	a := collectUntil(t, subA, StateReady)
	b := collectUntil(t, subB, StateReady)
	require.NotNil(t, a[len(a)-1].Quote)
	require.NotNil(t, b[len(b)-1].Quote)
	assert.Equal(t, 1, ff.callCount())
}

func TestCloseDiscardsInFlightResult(t *testing.T) {
	release := make(chan struct{})
	ff := &fakeFetcher{
		block:   release,
		respond: func(int) (*Chart, error) { return readyChart("OLD.NS", 1) },
	}
	s := NewSyncer(ff, testSyncerConfig())

	sub, err := s.Subscribe(context.Background(), "OLD.NS")
	require.NoError(t, err)

	// First update is Loading; close before the fetch resolves.
	u := <-sub.Updates()
	assert.Equal(t, StateLoading, u.State)
	sub.Close()
	close(release)

	// The late result must not be delivered: the channel drains and closes
	// without ever reaching Ready.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case u, ok := <-sub.Updates():
			if !ok {
				return
			}
			assert.NotEqual(t, StateReady, u.State, "late fetch result was applied after Close")
		case <-deadline:
			t.Fatal("subscription did not shut down after Close")
		}
	}
}

func TestActiveSubscriptionsGauge(t *testing.T) {
	ff := &fakeFetcher{respond: func(int) (*Chart, error) { return readyChart("TCS.NS", 1) }}
	s := NewSyncer(ff, testSyncerConfig())

	sub, err := s.Subscribe(context.Background(), "TCS.NS")
	require.NoError(t, err)
	assert.Equal(t, 1, s.ActiveSubscriptions())

	sub.Close()
	require.Eventually(t, func() bool { return s.ActiveSubscriptions() == 0 },
		2*time.Second, 5*time.Millisecond)
}
