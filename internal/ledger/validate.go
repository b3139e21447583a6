package ledger

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/stockledger/stockledger/internal/apperr"
)

// Validation helpers: pure, fail-fast, field-specific. Each returns the
// normalized value so callers never re-derive it.

// ValidateString requires a non-empty string after trimming and returns the
// trimmed value.
func ValidateString(v, field string) (string, error) {
	s := strings.TrimSpace(v)
	if s == "" {
		return "", apperr.Validation(field, fmt.Sprintf("%s is required", field))
	}
	return s, nil
}

// ValidateNumber requires a finite number. String input is coerced.
func ValidateNumber(v interface{}, field string) (float64, error) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, apperr.Validation(field, fmt.Sprintf("%s must be a number", field))
		}
		f = parsed
	default:
		return 0, apperr.Validation(field, fmt.Sprintf("%s must be a number", field))
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, apperr.Validation(field, fmt.Sprintf("%s must be a finite number", field))
	}
	return f, nil
}

// ValidatePositiveNumber requires a finite number greater than zero.
func ValidatePositiveNumber(v interface{}, field string) (float64, error) {
	f, err := ValidateNumber(v, field)
	if err != nil {
		return 0, err
	}
	if f <= 0 {
		return 0, apperr.Validation(field, fmt.Sprintf("%s must be greater than zero", field))
	}
	return f, nil
}

// ValidateDate accepts a time.Time or an ISO-8601 string and normalizes to
// UTC.
func ValidateDate(v interface{}, field string) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		if x.IsZero() {
			return time.Time{}, apperr.Validation(field, fmt.Sprintf("%s is required", field))
		}
		return x.UTC(), nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return time.Time{}, apperr.Validation(field, fmt.Sprintf("%s is required", field))
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, apperr.Validation(field, fmt.Sprintf("%s must be an ISO-8601 date", field))
	default:
		return time.Time{}, apperr.Validation(field, fmt.Sprintf("%s must be a date", field))
	}
}

// ValidateEnum requires v to be exactly one of the allowed literals.
func ValidateEnum(v, field string, allowed ...string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return apperr.Validation(field, fmt.Sprintf("%s must be one of %s", field, strings.Join(allowed, ", ")))
}

func errMissingSellData(id string) error {
	return apperr.Validation("date_sell", fmt.Sprintf("closed entry %s is missing sell data", id))
}
