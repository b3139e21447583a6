// Package symbol normalizes free-text ticker input into canonical form and
// derives display currency from the exchange suffix.
package symbol

import (
	"regexp"
	"strings"

	"github.com/stockledger/stockledger/internal/apperr"
)

const (
	// SuffixNSE is appended to bare symbols; NSE is the default exchange.
	SuffixNSE = ".NS"
	SuffixBSE = ".BO"

	maxLen = 20
)

var (
	cleanRe   = regexp.MustCompile(`[^A-Za-z0-9.]`)
	bareRe    = regexp.MustCompile(`^[A-Z]+$`)
	numericRe = regexp.MustCompile(`^[0-9]{6}$`)
	shapeRe   = regexp.MustCompile(`^[A-Z0-9]{1,15}(\.[A-Z]{1,3})?$`)
)

// Normalize strips invalid characters, uppercases, and appends the NSE
// suffix to bare alphabetic or 6-digit numeric symbols. Symbols already
// carrying a recognized suffix are left untouched. Idempotent.
func Normalize(raw string) string {
	s := strings.ToUpper(cleanRe.ReplaceAllString(raw, ""))
	s = strings.Trim(s, ".")
	if s == "" {
		return ""
	}
	if hasKnownSuffix(s) {
		return s
	}
	if bareRe.MatchString(s) || numericRe.MatchString(s) {
		return s + SuffixNSE
	}
	return s
}

// Validate checks a normalized symbol against the canonical shape rules.
func Validate(sym string) error {
	if sym == "" {
		return apperr.New(apperr.KindValidation, apperr.CodeInvalidSymbol, "symbol is required")
	}
	if len(sym) > maxLen {
		return apperr.New(apperr.KindValidation, apperr.CodeInvalidSymbol, "symbol is too long")
	}
	if !shapeRe.MatchString(sym) {
		return apperr.New(apperr.KindValidation, apperr.CodeInvalidSymbol, "symbol contains invalid characters")
	}
	return nil
}

// Currency returns the display currency for a symbol. Indian exchange
// suffixes display in INR, everything else in USD.
func Currency(sym string) string {
	if hasKnownSuffix(sym) {
		return "INR"
	}
	return "USD"
}

func hasKnownSuffix(sym string) bool {
	return strings.HasSuffix(sym, SuffixNSE) || strings.HasSuffix(sym, SuffixBSE)
}
