package ledger

import "time"

// =============================================================================
// TIME WINDOWS AND DAY BUCKETS
// =============================================================================
// Aggregation is keyed on the business timestamp (EventTs), never write order.
// Reporting and forecasting bucket events by UTC calendar day.

// Window bounds a ledger query. Nil bounds are open. From is inclusive,
// To is exclusive, matching half-open [from, to) range semantics everywhere
// in the store layer.
type Window struct {
	From *time.Time
	To   *time.Time
}

// Contains reports whether the instant falls inside the window.
func (w Window) Contains(at time.Time) bool {
	if w.From != nil && at.Before(*w.From) {
		return false
	}
	if w.To != nil && !at.Before(*w.To) {
		return false
	}
	return true
}

// Until returns a window with only an upper bound. The bound is exclusive,
// so use Through for "as of T inclusive" semantics.
func Until(to time.Time) Window { return Window{To: &to} }

// Through returns a window covering everything up to and including at.
func Through(at time.Time) Window {
	to := at.Add(time.Nanosecond)
	return Window{To: &to}
}

// Between returns the half-open window [from, to).
func Between(from, to time.Time) Window { return Window{From: &from, To: &to} }

// DayStart truncates an instant to the start of its UTC calendar day.
func DayStart(at time.Time) time.Time {
	at = at.UTC()
	return time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
}

// DayKey formats an instant as its UTC calendar day, the bucket key used
// by usage histories and heatmaps.
func DayKey(at time.Time) string { return at.UTC().Format("2006-01-02") }

// DaysBetween returns the number of whole days from one day start to another.
func DaysBetween(from, to time.Time) int {
	return int(DayStart(to).Sub(DayStart(from)).Hours() / 24)
}
