package ledger

import (
	"fmt"
	"time"

	"github.com/dvloznov/fundnote-ledger/internal/domain"
)

// MonthRange returns the half-open interval [first instant of the month,
// first instant of the next month) in loc.
func MonthRange(year, month int, loc *time.Location) (time.Time, time.Time, error) {
	if month < 1 || month > 12 {
		return time.Time{}, time.Time{}, fmt.Errorf("month %d: %w", month, domain.Invalid(domain.ReasonInvalidMonth, "month"))
	}
	if year < 1 || year > 9999 {
		return time.Time{}, time.Time{}, fmt.Errorf("year %d: %w", year, domain.Invalid(domain.ReasonInvalidMonth, "year"))
	}
	if loc == nil {
		loc = time.UTC
	}
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0), nil
}
