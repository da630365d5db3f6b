package billing

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Quality is the provenance of an hourly reading.
type Quality string

const (
	QualityReal      Quality = "REAL"
	QualityEstimated Quality = "ESTIMATED"
)

// ParseQuality maps an empty value to REAL.
func ParseQuality(s string) (Quality, error) {
	switch Quality(strings.ToUpper(strings.TrimSpace(s))) {
	case "", QualityReal:
		return QualityReal, nil
	case QualityEstimated:
		return QualityEstimated, nil
	default:
		return "", fmt.Errorf("unknown reading quality %q", s)
	}
}

// QualityPolicy decides which readings count towards consumption.
type QualityPolicy string

const (
	IncludeAll QualityPolicy = "all"
	RealOnly   QualityPolicy = "real_only"
)

func ParseQualityPolicy(s string) (QualityPolicy, error) {
	switch QualityPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", IncludeAll:
		return IncludeAll, nil
	case RealOnly:
		return RealOnly, nil
	default:
		return "", fmt.Errorf("unknown quality policy %q", s)
	}
}

func (p QualityPolicy) admits(q Quality) bool {
	if p == RealOnly {
		return q == QualityReal
	}
	return true
}

// HourlyReading is one metered hour. Hour is 0..23.
type HourlyReading struct {
	Date    time.Time
	Hour    int
	Kwh     decimal.Decimal
	Quality Quality
}

// DayUsage is the consumption recorded on one calendar day.
type DayUsage struct {
	Date  time.Time
	Kwh   decimal.Decimal
	Hours int
}

// Usage is the consumption of a meter over a date range.
type Usage struct {
	Range    DateRange
	TotalKwh decimal.Decimal
	Days     []DayUsage

	ReadingHours   int
	GapHours       int
	EstimatedHours int
	ExcludedHours  int
}

type slot struct {
	day  int64
	hour int
}

// Aggregate sums consumption over rng. Readings are keyed by (day, hour) and a
// later duplicate replaces an earlier one. Missing hours contribute zero and
// are reported in GapHours.
func Aggregate(readings []HourlyReading, rng DateRange, policy QualityPolicy) Usage {
	usage := Usage{Range: rng, TotalKwh: decimal.Zero}
	if rng.Empty() {
		return usage
	}

	latest := make(map[slot]HourlyReading, len(readings))
	for _, r := range readings {
		if r.Hour < 0 || r.Hour >= hoursPerDay {
			continue
		}
		day := Day(r.Date)
		if !rng.Contains(day) {
			continue
		}
		r.Date = day
		latest[slot{day: day.Unix(), hour: r.Hour}] = r
	}

	perDay := make(map[int64]*DayUsage)
	for k, r := range latest {
		if r.Quality == QualityEstimated {
			usage.EstimatedHours++
		}
		if !policy.admits(r.Quality) {
			usage.ExcludedHours++
			continue
		}
		usage.ReadingHours++
		usage.TotalKwh = usage.TotalKwh.Add(r.Kwh)

		d, ok := perDay[k.day]
		if !ok {
			d = &DayUsage{Date: r.Date, Kwh: decimal.Zero}
			perDay[k.day] = d
		}
		d.Kwh = d.Kwh.Add(r.Kwh)
		d.Hours++
	}

	usage.GapHours = rng.Hours() - len(latest)
	usage.Days = make([]DayUsage, 0, len(perDay))
	for _, d := range perDay {
		usage.Days = append(usage.Days, *d)
	}
	sort.Slice(usage.Days, func(i, j int) bool {
		return usage.Days[i].Date.Before(usage.Days[j].Date)
	})
	return usage
}
