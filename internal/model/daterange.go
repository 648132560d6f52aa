package model

import "time"

// DateRange is an inclusive [Start, End] calendar-date interval. Only the
// date parts of Start/End are meaningful; callers construct them with Date().
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Date builds a calendar date in UTC.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOf truncates an arbitrary instant to its calendar date, read in the
// instant's own zone. This is how wall-clock "now" enters range math.
func DateOf(t time.Time) time.Time {
	return Date(t.Year(), t.Month(), t.Day())
}

// Days returns the number of calendar days the range spans (>= 1 for a
// valid range). Bounds are truncated to calendar dates first, so a range
// built from a raw wall clock counts the same as one built with Date().
func (r DateRange) Days() int {
	return int(DateOf(r.End).Sub(DateOf(r.Start)).Hours()/24) + 1
}

// YMD formats a date as the provider's integer form YYYYMMDD.
func YMD(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

// Bisect splits the range at its midpoint into two non-overlapping halves.
// The caller must ensure Days() > 1.
func (r DateRange) Bisect() (DateRange, DateRange) {
	mid := r.Start.AddDate(0, 0, (r.Days()-1)/2)
	return DateRange{Start: r.Start, End: mid},
		DateRange{Start: mid.AddDate(0, 0, 1), End: r.End}
}

// MonthChunks decomposes the range into calendar-month sub-ranges in
// chronological order. The first and last chunk are clipped to the range
// bounds.
func (r DateRange) MonthChunks() []DateRange {
	var chunks []DateRange

	cur := Date(r.Start.Year(), r.Start.Month(), 1)
	for !cur.After(r.End) {
		next := cur.AddDate(0, 1, 0)

		start := cur
		if start.Before(r.Start) {
			start = r.Start
		}
		end := next.AddDate(0, 0, -1)
		if end.After(r.End) {
			end = r.End
		}

		chunks = append(chunks, DateRange{Start: start, End: end})
		cur = next
	}
	return chunks
}
