package supervisor

import (
	"regexp"
	"strconv"
)

// EventKind tags the liveness meaning of one child output line.
type EventKind int

const (
	// EventOther is opaque passthrough.
	EventOther EventKind = iota
	// EventStart is a new-item marker without collection work (e.g. a
	// skip line). It resets any armed timer.
	EventStart
	// EventCollecting means the child began collecting an item; the
	// liveness timer arms.
	EventCollecting
	// EventSaved means the current item completed; the timer disarms.
	EventSaved
)

// Event is the classification of one line. Ephemeral, never persisted.
type Event struct {
	Kind  EventKind
	Index int // for EventStart/EventCollecting when present
	Total int
	Rows  int // for EventSaved
}

// Classifier turns raw child output lines into liveness events. The
// patterns are an adapter over the collector's line shapes, kept apart from
// the state machine so either side can change or be tested alone.
type Classifier struct {
	start      *regexp.Regexp
	collecting *regexp.Regexp
	saved      *regexp.Regexp
}

// NewClassifier returns a classifier for the collector's default shapes:
// "[i/total] CODE -> collecting...", "[i/total] CODE -> exists, skip" and
// "saved N rows".
func NewClassifier() *Classifier {
	return &Classifier{
		start:      regexp.MustCompile(`^\[\s*(\d+)\s*/\s*(\d+)\s*\]`),
		collecting: regexp.MustCompile(`(?i)->\s*collecting`),
		saved:      regexp.MustCompile(`(?i)\bsaved\s+(\d+)\s+rows\b`),
	}
}

// Classify maps one line to an event. A saved marker wins over anything
// else on the same line.
func (c *Classifier) Classify(line string) Event {
	if m := c.saved.FindStringSubmatch(line); m != nil {
		rows, _ := strconv.Atoi(m[1])
		return Event{Kind: EventSaved, Rows: rows}
	}

	ev := Event{Kind: EventOther}
	if m := c.start.FindStringSubmatch(line); m != nil {
		ev.Kind = EventStart
		ev.Index, _ = strconv.Atoi(m[1])
		ev.Total, _ = strconv.Atoi(m[2])
	}
	if c.collecting.MatchString(line) {
		ev.Kind = EventCollecting
	}
	return ev
}
