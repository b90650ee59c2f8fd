package price

import (
	"fmt"
	"time"

	"github.com/c360/symbolws/errors"
)

// DateLayout is the yyyyMMdd form accepted for history bounds.
const DateLayout = "20060102"

// DefaultHistoryDays is how far back a history query reaches without a from date.
const DefaultHistoryDays = 270

// ParseRange resolves the history bounds of a query. An empty from selects
// midnight DefaultHistoryDays before now; an empty to selects the end of
// yesterday. An explicit to includes the whole named day.
func ParseRange(from, to string, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.Local
	}

	start := StartOfDay(now, loc).AddDate(0, 0, -DefaultHistoryDays)
	if from != "" {
		t, err := time.ParseInLocation(DateLayout, from, loc)
		if err != nil {
			return time.Time{}, time.Time{}, errors.WrapInvalid(
				fmt.Errorf("%w: from %q is not yyyyMMdd", errors.ErrInvalidArgument, from),
				"price", "ParseRange", "parse from")
		}
		start = t
	}

	end := EndOfDay(StartOfDay(now, loc).AddDate(0, 0, -1), loc)
	if to != "" {
		t, err := time.ParseInLocation(DateLayout, to, loc)
		if err != nil {
			return time.Time{}, time.Time{}, errors.WrapInvalid(
				fmt.Errorf("%w: to %q is not yyyyMMdd", errors.ErrInvalidArgument, to),
				"price", "ParseRange", "parse to")
		}
		end = EndOfDay(t, loc)
	}

	if end.Before(start) {
		return time.Time{}, time.Time{}, errors.WrapInvalid(
			fmt.Errorf("%w: from is after to", errors.ErrInvalidArgument),
			"price", "ParseRange", "validate range")
	}
	return start, end, nil
}
