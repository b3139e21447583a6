package ledger

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockledger/stockledger/internal/apperr"
)

func TestValidateString(t *testing.T) {
	got, err := ValidateString("  Reliance  ", "stock_name")
	require.NoError(t, err)
	assert.Equal(t, "Reliance", got)

	_, err = ValidateString("   ", "stock_name")
	require.Error(t, err)
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KindValidation, ae.Kind)
	assert.Equal(t, "stock_name", ae.Field)
}

func TestValidateNumber(t *testing.T) {
	got, err := ValidateNumber(12.5, "price")
	require.NoError(t, err)
	assert.Equal(t, 12.5, got)

	got, err = ValidateNumber("12.5", "price")
	require.NoError(t, err)
	assert.Equal(t, 12.5, got)

	got, err = ValidateNumber(7, "price")
	require.NoError(t, err)
	assert.Equal(t, 7.0, got)

	_, err = ValidateNumber("abc", "price")
	assert.Error(t, err)
	_, err = ValidateNumber(math.NaN(), "price")
	assert.Error(t, err)
	_, err = ValidateNumber(math.Inf(1), "price")
	assert.Error(t, err)
	_, err = ValidateNumber(nil, "price")
	assert.Error(t, err)
}

func TestValidatePositiveNumber(t *testing.T) {
	_, err := ValidatePositiveNumber(0.0, "price")
	assert.Error(t, err)
	_, err = ValidatePositiveNumber(-5.0, "price")
	assert.Error(t, err)

	got, err := ValidatePositiveNumber(0.01, "price")
	require.NoError(t, err)
	assert.Equal(t, 0.01, got)
}

func TestValidateDate(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 30, 0, 0, time.FixedZone("IST", 5*3600+1800))
	got, err := ValidateDate(now, "date_buy")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, got.Location())

	got, err = ValidateDate("2026-03-01T10:30:00Z", "date_buy")
	require.NoError(t, err)
	assert.Equal(t, 2026, got.Year())

	got, err = ValidateDate("2026-03-01", "date_buy")
	require.NoError(t, err)
	assert.Equal(t, time.March, got.Month())

	_, err = ValidateDate("yesterday", "date_buy")
	assert.Error(t, err)
	_, err = ValidateDate("", "date_buy")
	assert.Error(t, err)
	_, err = ValidateDate(time.Time{}, "date_buy")
	assert.Error(t, err)
	_, err = ValidateDate(42, "date_buy")
	assert.Error(t, err)
}

func TestValidateEnum(t *testing.T) {
	assert.NoError(t, ValidateEnum("High", "confidence", "Low", "Medium", "High"))
	assert.Error(t, ValidateEnum("high", "confidence", "Low", "Medium", "High"))
	assert.Error(t, ValidateEnum("", "confidence", "Low", "Medium", "High"))
}
