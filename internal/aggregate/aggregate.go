// Package aggregate computes totals, uniques, calendar windows and rankings from raw
// analytics events. It performs no I/O.
package aggregate

import (
	"sort"
	"time"
)

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside w.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Windows are the calendar ranges reported by every stats endpoint, aligned to
// midnight in the location of the reference time.
type Windows struct {
	Today      Window
	Yesterday  Window
	Last7Days  Window
	Last30Days Window
}

// WindowsAt builds the windows relative to now. The rolling ranges include today.
func WindowsAt(now time.Time) Windows {
	midnight := StartOfDay(now)
	tomorrow := midnight.AddDate(0, 0, 1)

	return Windows{
		Today:      Window{Start: midnight, End: tomorrow},
		Yesterday:  Window{Start: midnight.AddDate(0, 0, -1), End: midnight},
		Last7Days:  Window{Start: midnight.AddDate(0, 0, -6), End: tomorrow},
		Last30Days: Window{Start: midnight.AddDate(0, 0, -29), End: tomorrow},
	}
}

// StartOfDay returns local midnight of t's day.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Event is one raw analytics record.
type Event struct {
	// Key groups events for ranking, e.g. a URL or blog slug.
	Key string
	// Identity is the visitor or session the event belongs to.
	Identity string
	At       time.Time
}

// Ranked is one entry of a top-N list.
type Ranked struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// WindowCounts holds per-window event counts.
type WindowCounts struct {
	Today      int64 `json:"today"`
	Yesterday  int64 `json:"yesterday"`
	Last7Days  int64 `json:"last7Days"`
	Last30Days int64 `json:"last30Days"`
}

// Add counts t into every window containing it.
func (c *WindowCounts) Add(w Windows, t time.Time) {
	if w.Today.Contains(t) {
		c.Today++
	}
	if w.Yesterday.Contains(t) {
		c.Yesterday++
	}
	if w.Last7Days.Contains(t) {
		c.Last7Days++
	}
	if w.Last30Days.Contains(t) {
		c.Last30Days++
	}
}

// Summary is the aggregate view over a set of events.
type Summary struct {
	Total   int64        `json:"total"`
	Unique  int64        `json:"unique"`
	Windows WindowCounts `json:"windows"`
	Top     []Ranked     `json:"top"`
}

// Summarize aggregates events relative to now. Events without an identity count
// towards the total but not towards Unique.
func Summarize(events []Event, now time.Time, topN int) Summary {
	windows := WindowsAt(now)
	identities := make(map[string]struct{})
	perKey := make(map[string]int64)

	summary := Summary{Total: int64(len(events))}
	for _, event := range events {
		if event.Identity != "" {
			identities[event.Identity] = struct{}{}
		}
		perKey[event.Key]++
		summary.Windows.Add(windows, event.At)
	}

	summary.Unique = int64(len(identities))
	summary.Top = TopN(perKey, topN)
	return summary
}

// TopN ranks counts by descending count, breaking ties by key in lexical order.
// n <= 0 returns every key.
func TopN(counts map[string]int64, n int) []Ranked {
	ranked := make([]Ranked, 0, len(counts))
	for key, count := range counts {
		ranked = append(ranked, Ranked{Key: key, Count: count})
	}

	SortRanked(ranked)

	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// SortRanked orders ranked in place with the TopN ordering.
func SortRanked(ranked []Ranked) {
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Key < ranked[j].Key
	})
}
