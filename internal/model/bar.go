package model

import "sort"

// EODMarker is the time-of-day value the provider stamps on end-of-session
// bars. A response that only ever repeats this value is a daily-bar fallback
// masquerading as minute data.
const EODMarker = 1530

// Bar is one OHLCV observation. Date is YYYYMMDD, Time is HHMM, both as
// integers, matching the provider's wire format. (Date, Time) is the
// uniqueness key.
type Bar struct {
	Date   int     `json:"date"`
	Time   int     `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// Bars is a collection of bars for a single work item.
type Bars []Bar

// Normalize sorts ascending by (Date, Time) and drops duplicate keys,
// keeping the first occurrence.
func (b Bars) Normalize() Bars {
	if len(b) == 0 {
		return b
	}

	out := make(Bars, len(b))
	copy(out, b)

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Time < out[j].Time
	})

	dedup := out[:1]
	for _, bar := range out[1:] {
		last := dedup[len(dedup)-1]
		if bar.Date == last.Date && bar.Time == last.Time {
			continue
		}
		dedup = append(dedup, bar)
	}
	return dedup
}

// DistinctTimes returns the set of distinct Time values.
func (b Bars) DistinctTimes() map[int]struct{} {
	times := make(map[int]struct{}, len(b))
	for _, bar := range b {
		times[bar.Time] = struct{}{}
	}
	return times
}
