package supervisor

import "time"

// machine is the liveness timer state: Idle (no timer) or Armed since some
// instant. Stuck detection is a pure function of the armed instant and the
// current time, so the runner can evaluate it on every poll tick even when
// the child is silent.
type machine struct {
	armed   bool
	armedAt time.Time
}

func (m *machine) observe(ev Event, now time.Time) {
	switch ev.Kind {
	case EventCollecting:
		m.armed = true
		m.armedAt = now
	case EventSaved, EventStart:
		m.armed = false
	}
}

func (m *machine) stuck(now time.Time, timeout time.Duration) bool {
	return m.armed && now.Sub(m.armedAt) > timeout
}

func (m *machine) idle() bool {
	return !m.armed
}
