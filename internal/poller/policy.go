package poller

import "time"

// Decision is what a poller does next
type Decision int

const (
	// Poll fetches now and waits the returned interval
	Poll Decision = iota
	// Idle waits the returned interval without fetching
	Idle
	// Halt stops the poller for good
	Halt
)

func (d Decision) String() string {
	switch d {
	case Poll:
		return "poll"
	case Idle:
		return "idle"
	case Halt:
		return "halt"
	}
	return "unknown"
}

// Policy maps the last applied value of a resource to the next step.
// ok is false until a value has been applied.
type Policy func(last any, ok bool) (Decision, time.Duration)

// Every polls unconditionally at interval
func Every(interval time.Duration) Policy {
	return func(any, bool) (Decision, time.Duration) {
		return Poll, interval
	}
}

// While polls at interval until keep reports false for the last value, then halts
func While(interval time.Duration, keep func(last any) bool) Policy {
	return func(last any, ok bool) (Decision, time.Duration) {
		if ok && !keep(last) {
			return Halt, 0
		}
		return Poll, interval
	}
}
