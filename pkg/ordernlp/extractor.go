// Package ordernlp extracts order filters (status and creation date range)
// from free-text queries.
package ordernlp

import (
	"strings"
	"time"

	"github.com/fleetdesk/fleetrag/engine/criteria"
)

// statusOrder is checked in sequence; the first keyword found wins.
var statusOrder = []string{criteria.StatusCompleted, criteria.StatusCancelled}

// StatusOf returns the status filter named in text, if any.
func StatusOf(text string) (criteria.Status, bool) {
	t := strings.ToLower(text)
	for _, s := range statusOrder {
		if strings.Contains(t, s) {
			return criteria.Status{Value: s}, true
		}
	}
	return criteria.Status{}, false
}

// DateRange resolves "today", "yesterday", "this month" or "last month"
// (checked in that order) to a half-open range in now's location. Month
// bounds come from calendar arithmetic, not fixed-length windows.
func DateRange(text string, now time.Time) (criteria.DateRange, bool) {
	t := strings.ToLower(text)
	y, m, d := now.Date()
	loc := now.Location()
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, loc) }

	switch {
	case strings.Contains(t, "today"):
		return criteria.DateRange{Start: day(y, m, d), End: day(y, m, d+1)}, true
	case strings.Contains(t, "yesterday"):
		return criteria.DateRange{Start: day(y, m, d-1), End: day(y, m, d)}, true
	case strings.Contains(t, "this month"):
		return criteria.DateRange{Start: day(y, m, 1), End: day(y, m+1, 1)}, true
	case strings.Contains(t, "last month"):
		return criteria.DateRange{Start: day(y, m-1, 1), End: day(y, m, 1)}, true
	}
	return criteria.DateRange{}, false
}

// ExtractCriteria returns the status and date-range filters found in text.
func ExtractCriteria(text string, now time.Time) criteria.Set {
	s := criteria.New()
	if st, ok := StatusOf(text); ok {
		s.Put(st)
	}
	if r, ok := DateRange(text, now); ok {
		s.Put(r)
	}
	return s
}
