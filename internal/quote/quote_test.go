package quote

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func f(v float64) *float64 { return &v }

func TestChangeFromPrevClose(t *testing.T) {
	q := &Quote{Price: f(110), PreviousClose: f(100)}
	change, pct, ok := q.ChangeFromPrevClose()
	assert.True(t, ok)
	assert.InDelta(t, 10.0, change, 1e-9)
	assert.InDelta(t, 10.0, pct, 1e-9)
}

func TestChangeFromPrevCloseNegative(t *testing.T) {
	q := &Quote{Price: f(95), PreviousClose: f(100)}
	change, pct, ok := q.ChangeFromPrevClose()
	assert.True(t, ok)
	assert.InDelta(t, -5.0, change, 1e-9)
	assert.InDelta(t, -5.0, pct, 1e-9)
}

func TestChangeFromPrevCloseGuardsZeroAndAbsent(t *testing.T) {
	cases := []*Quote{
		{Price: f(100), PreviousClose: f(0)},
		{Price: f(100), PreviousClose: nil},
		{Price: nil, PreviousClose: f(100)},
		{},
	}
	for i, q := range cases {
		_, _, ok := q.ChangeFromPrevClose()
		assert.False(t, ok, "case %d", i)
	}
}
