// Package gains computes trailing-window price gains for benchmark tickers.
package gains

import (
	"context"
	"time"

	"github.com/trogers1052/asset-allocation/internal/models"
)

// WindowWeeks are the trailing windows reported for every ticker, in weeks
var WindowWeeks = []int{1, 2, 4, 12, 24, 52}

// maxStepBack bounds how far a closed window date is moved toward an open session
const maxStepBack = 3

// HolidayChecker reports market holidays. *database.DB implements it.
type HolidayChecker interface {
	IsHoliday(ctx context.Context, date time.Time) (bool, error)
}

// Calendar answers trading-day questions
type Calendar struct {
	holidays HolidayChecker
}

// NewCalendar creates a calendar over the given holiday table
func NewCalendar(holidays HolidayChecker) *Calendar {
	return &Calendar{holidays: holidays}
}

// AdjustWeekend moves Saturday and Sunday back to the preceding Friday
func AdjustWeekend(t time.Time) time.Time {
	t = models.TruncateDate(t)
	switch t.Weekday() {
	case time.Saturday:
		return t.AddDate(0, 0, -1)
	case time.Sunday:
		return t.AddDate(0, 0, -2)
	}
	return t
}

// IsMarketOpen reports whether t is a weekday that is not a holiday
func (c *Calendar) IsMarketOpen(ctx context.Context, t time.Time) (bool, error) {
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false, nil
	}
	holiday, err := c.holidays.IsHoliday(ctx, t)
	if err != nil {
		return false, err
	}
	return !holiday, nil
}

// WeeksBack returns the date n weeks before t, stepped back day by day (at most three times)
// until the market is open
func (c *Calendar) WeeksBack(ctx context.Context, t time.Time, n int) (time.Time, error) {
	target := models.TruncateDate(t).AddDate(0, 0, -7*n)

	open, err := c.IsMarketOpen(ctx, target)
	if err != nil {
		return time.Time{}, err
	}
	for i := 0; !open && i < maxStepBack; i++ {
		target = target.AddDate(0, 0, -1)
		if open, err = c.IsMarketOpen(ctx, target); err != nil {
			return time.Time{}, err
		}
	}
	return target, nil
}

// WindowDates returns the weekend-adjusted as-of date followed by one date per WindowWeeks entry
func (c *Calendar) WindowDates(ctx context.Context, asOf time.Time) ([]time.Time, error) {
	today := AdjustWeekend(asOf)
	dates := make([]time.Time, 0, len(WindowWeeks)+1)
	dates = append(dates, today)
	for _, weeks := range WindowWeeks {
		d, err := c.WeeksBack(ctx, today, weeks)
		if err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, nil
}
