package store

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Helper functions for converting between NUMERIC columns (scanned as text)
// and decimal values.

// ToNumeric converts a decimal to its text form for a NUMERIC parameter.
func ToNumeric(d decimal.Decimal) string {
	return d.String()
}

// ToNumericPtr converts an optional decimal to an optional NUMERIC parameter.
func ToNumericPtr(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

// FromNumeric parses a NUMERIC column scanned as text.
func FromNumeric(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("store: parse numeric %q: %w", s, err)
	}
	return d, nil
}

// FromNumericPtr parses an optional NUMERIC column scanned as *string.
func FromNumericPtr(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := FromNumeric(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ToMillisPtr converts an optional duration to milliseconds for a BIGINT
// column.
func ToMillisPtr(d *time.Duration) *int64 {
	if d == nil {
		return nil
	}
	ms := d.Milliseconds()
	return &ms
}

// FromMillisPtr converts an optional BIGINT milliseconds column back to a
// duration.
func FromMillisPtr(ms *int64) *time.Duration {
	if ms == nil {
		return nil
	}
	d := time.Duration(*ms) * time.Millisecond
	return &d
}
