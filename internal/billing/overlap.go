package billing

import (
	"fmt"
	"time"
)

// Validity is a contract's validity interval. A nil End means open-ended.
type Validity struct {
	Start time.Time
	End   *time.Time
}

func (v Validity) String() string {
	if v.End == nil {
		return v.Start.Format(DateLayout) + "..open"
	}
	return v.Start.Format(DateLayout) + ".." + v.End.Format(DateLayout)
}

// ResolveOverlap returns the sub-interval of the period covered by the contract.
// Readings outside the returned range must not be billed, even when they fall
// inside the calendar month. An empty intersection yields ErrNotBillable.
func ResolveOverlap(v Validity, p Period) (DateRange, error) {
	from, to := p.Start(), p.End()

	if start := Day(v.Start); start.After(from) {
		from = start
	}
	if v.End != nil {
		if end := Day(*v.End); end.Before(to) {
			to = end
		}
	}

	rng := DateRange{From: from, To: to}
	if rng.Empty() {
		return DateRange{}, fmt.Errorf("%w: validity %s does not intersect %s", ErrNotBillable, v, p)
	}
	return rng, nil
}
