package billing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveOverlap(t *testing.T) {
	march := Period{Year: 2024, Month: 3}

	tests := []struct {
		name     string
		validity Validity
		from     string
		to       string
	}{
		{"open ended covers whole month", Validity{Start: date("2024-01-01")}, "2024-03-01", "2024-03-31"},
		{"ends mid month", Validity{Start: date("2024-01-01"), End: datePtr("2024-03-10")}, "2024-03-01", "2024-03-10"},
		{"starts mid month", Validity{Start: date("2024-03-15")}, "2024-03-15", "2024-03-31"},
		{"starts and ends inside", Validity{Start: date("2024-03-05"), End: datePtr("2024-03-20")}, "2024-03-05", "2024-03-20"},
		{"single day at month end", Validity{Start: date("2024-03-31"), End: datePtr("2024-05-01")}, "2024-03-31", "2024-03-31"},
		{"ends on first day", Validity{Start: date("2023-01-01"), End: datePtr("2024-03-01")}, "2024-03-01", "2024-03-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rng, err := ResolveOverlap(tt.validity, march)
			require.NoError(t, err)
			assert.Equal(t, date(tt.from), rng.From)
			assert.Equal(t, date(tt.to), rng.To)
		})
	}
}

func TestResolveOverlap_NotBillable(t *testing.T) {
	march := Period{Year: 2024, Month: 3}

	for name, v := range map[string]Validity{
		"ended before month":   {Start: date("2023-01-01"), End: datePtr("2024-02-29")},
		"starts after month":   {Start: date("2024-04-01")},
		"starts after, closed": {Start: date("2024-04-01"), End: datePtr("2024-12-31")},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ResolveOverlap(v, march)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrNotBillable))
		})
	}
}
