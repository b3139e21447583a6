package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAppendsNSESuffix(t *testing.T) {
	cases := map[string]string{
		"RELIANCE":   "RELIANCE.NS",
		"reliance":   "RELIANCE.NS",
		"TCS":        "TCS.NS",
		"aapl":       "AAPL.NS",
		"543210":     "543210.NS",
		"INFY.NS":    "INFY.NS",
		"500325.BO":  "500325.BO",
		"m&m":        "MM.NS",
		" irctc ":    "IRCTC.NS",
		"bajaj-auto": "BAJAJAUTO.NS",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "input %q", in)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"RELIANCE", "reliance.ns", "543210", "TCS.NS", "m&m", "", "...", "HDFC.BO"}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestNormalizeDoesNotDuplicateSuffix(t *testing.T) {
	assert.Equal(t, "TCS.NS", Normalize("TCS.NS"))
	assert.Equal(t, "AAPL.NS", Normalize(Normalize("AAPL")))
}

func TestNormalizeEmpty(t *testing.T) {
	assert.Equal(t, "", Normalize(""))
	assert.Equal(t, "", Normalize("!!@#"))
	assert.Equal(t, "", Normalize("..."))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("RELIANCE.NS"))
	assert.NoError(t, Validate("AAPL"))
	assert.Error(t, Validate(""))
	assert.Error(t, Validate("THIS.SYMBOL.IS.WAY.TOO.LONG.FOR.US"))
	assert.Error(t, Validate("BAD SYMBOL"))
	assert.Error(t, Validate("lower.ns"))
}

func TestCurrency(t *testing.T) {
	assert.Equal(t, "INR", Currency("RELIANCE.NS"))
	assert.Equal(t, "INR", Currency("500325.BO"))
	assert.Equal(t, "USD", Currency("AAPL"))
	assert.Equal(t, "USD", Currency("BTC.X"))
}
