package analyze

import (
	"fmt"
	"strings"
	"time"

	"github.com/tendertrack/tendertrack/internal/model"
)

const dateLayout = "2006-01-02"

// MonthlyCounts aggregates notice timestamps into a month-end count
// series. Unparseable or missing dates are skipped; months without any
// notice inside the covered range carry an explicit zero.
func MonthlyCounts(notices []model.Notice, dateField string) (model.Series, error) {
	if dateField == "" {
		return nil, fmt.Errorf("date field is required")
	}

	counts := make(map[time.Time]float64)
	var first, last time.Time

	for _, n := range notices {
		raw := n.StringField(dateField)
		if raw == "" {
			continue
		}
		// Timestamps come back as "2025-01-02+01:00"; the offset suffix
		// is irrelevant for monthly bucketing.
		if i := strings.IndexByte(raw, '+'); i >= 0 {
			raw = raw[:i]
		}
		if len(raw) > len(dateLayout) {
			raw = raw[:len(dateLayout)]
		}
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			continue
		}

		period := monthEnd(t)
		counts[period]++
		if first.IsZero() || period.Before(first) {
			first = period
		}
		if last.IsZero() || period.After(last) {
			last = period
		}
	}

	if len(counts) == 0 {
		return model.Series{}, nil
	}

	var series model.Series
	for period := first; !period.After(last); period = monthEnd(period.AddDate(0, 0, 1)) {
		series = append(series, model.Point{Period: period, Value: counts[period]})
	}
	return series, nil
}

// monthEnd returns the last day of t's calendar month.
func monthEnd(t time.Time) time.Time {
	firstOfNext := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return firstOfNext.AddDate(0, 0, -1)
}

// nextMonthEnd returns the month end immediately following period.
func nextMonthEnd(period time.Time) time.Time {
	return monthEnd(period.AddDate(0, 0, 1))
}
