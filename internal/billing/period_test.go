package billing

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func datePtr(s string) *time.Time {
	t := date(s)
	return &t
}

func TestParsePeriod(t *testing.T) {
	t.Run("accepts YYYY-MM", func(t *testing.T) {
		p, err := ParsePeriod("2024-03")
		require.NoError(t, err)
		assert.Equal(t, 2024, p.Year)
		assert.Equal(t, time.March, p.Month)
		assert.Equal(t, "2024-03", p.String())
		assert.Equal(t, date("2024-03-01"), p.Start())
		assert.Equal(t, date("2024-03-31"), p.End())
	})

	t.Run("handles leap february", func(t *testing.T) {
		p, err := ParsePeriod("2024-02")
		require.NoError(t, err)
		assert.Equal(t, date("2024-02-29"), p.End())
		assert.Equal(t, 29, p.Range().Days())
	})

	for _, in := range []string{"", "2024-3", "2024-13", "24-03", "2024/03", "2024-03-01", "abcd-ef"} {
		t.Run("rejects "+in, func(t *testing.T) {
			_, err := ParsePeriod(in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidPeriod))
		})
	}
}

func TestDateRange(t *testing.T) {
	rng := NewDateRange(date("2024-03-01"), date("2024-03-10"))
	assert.Equal(t, 10, rng.Days())
	assert.Equal(t, 240, rng.Hours())
	assert.True(t, rng.Contains(date("2024-03-10").Add(23*time.Hour)))
	assert.False(t, rng.Contains(date("2024-03-11")))
	assert.False(t, rng.Contains(date("2024-02-29")))

	empty := NewDateRange(date("2024-03-02"), date("2024-03-01"))
	assert.True(t, empty.Empty())
	assert.Equal(t, 0, empty.Days())
}
