package billing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reading(day string, hour int, kwh string, q Quality) HourlyReading {
	return HourlyReading{Date: date(day), Hour: hour, Kwh: decimal.RequireFromString(kwh), Quality: q}
}

func TestAggregate(t *testing.T) {
	rng := NewDateRange(date("2024-03-01"), date("2024-03-02"))

	t.Run("sums readings inside the range", func(t *testing.T) {
		usage := Aggregate([]HourlyReading{
			reading("2024-03-01", 0, "1.250", QualityReal),
			reading("2024-03-01", 1, "0.750", QualityReal),
			reading("2024-03-02", 23, "2.000", QualityReal),
			reading("2024-02-29", 12, "9.000", QualityReal),
			reading("2024-03-03", 0, "9.000", QualityReal),
		}, rng, IncludeAll)

		assert.True(t, decimal.RequireFromString("4").Equal(usage.TotalKwh))
		assert.Equal(t, 3, usage.ReadingHours)
		assert.Equal(t, 48-3, usage.GapHours)
		require.Len(t, usage.Days, 2)
		assert.Equal(t, date("2024-03-01"), usage.Days[0].Date)
		assert.True(t, decimal.RequireFromString("2").Equal(usage.Days[0].Kwh))
		assert.Equal(t, 2, usage.Days[0].Hours)
		assert.Equal(t, date("2024-03-02"), usage.Days[1].Date)
	})

	t.Run("later duplicate replaces earlier", func(t *testing.T) {
		usage := Aggregate([]HourlyReading{
			reading("2024-03-01", 5, "3.000", QualityEstimated),
			reading("2024-03-01", 5, "1.000", QualityReal),
		}, rng, IncludeAll)

		assert.True(t, decimal.NewFromInt(1).Equal(usage.TotalKwh))
		assert.Equal(t, 1, usage.ReadingHours)
		assert.Equal(t, 0, usage.EstimatedHours)
	})

	t.Run("real only excludes estimated hours", func(t *testing.T) {
		readings := []HourlyReading{
			reading("2024-03-01", 0, "1.000", QualityReal),
			reading("2024-03-01", 1, "2.000", QualityEstimated),
		}

		all := Aggregate(readings, rng, IncludeAll)
		assert.True(t, decimal.NewFromInt(3).Equal(all.TotalKwh))
		assert.Equal(t, 1, all.EstimatedHours)
		assert.Equal(t, 0, all.ExcludedHours)

		real := Aggregate(readings, rng, RealOnly)
		assert.True(t, decimal.NewFromInt(1).Equal(real.TotalKwh))
		assert.Equal(t, 1, real.EstimatedHours)
		assert.Equal(t, 1, real.ExcludedHours)
		assert.Equal(t, 46, real.GapHours)
	})

	t.Run("no readings yields zero", func(t *testing.T) {
		usage := Aggregate(nil, rng, IncludeAll)
		assert.True(t, usage.TotalKwh.IsZero())
		assert.Equal(t, 48, usage.GapHours)
		assert.Empty(t, usage.Days)
	})

	t.Run("ignores out of range hours", func(t *testing.T) {
		usage := Aggregate([]HourlyReading{
			reading("2024-03-01", 24, "5.000", QualityReal),
			reading("2024-03-01", -1, "5.000", QualityReal),
		}, rng, IncludeAll)
		assert.True(t, usage.TotalKwh.IsZero())
	})
}

func TestParseQuality(t *testing.T) {
	q, err := ParseQuality("")
	require.NoError(t, err)
	assert.Equal(t, QualityReal, q)

	q, err = ParseQuality("estimated")
	require.NoError(t, err)
	assert.Equal(t, QualityEstimated, q)

	_, err = ParseQuality("GUESSED")
	assert.Error(t, err)
}

func TestParseQualityPolicy(t *testing.T) {
	p, err := ParseQualityPolicy("")
	require.NoError(t, err)
	assert.Equal(t, IncludeAll, p)

	p, err = ParseQualityPolicy("REAL_ONLY")
	require.NoError(t, err)
	assert.Equal(t, RealOnly, p)

	_, err = ParseQualityPolicy("some")
	assert.Error(t, err)
}
