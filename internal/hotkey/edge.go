package hotkey

import "time"

// EdgeKind classifies a hotkey record.
type EdgeKind int

const (
	// Pressed is a key-down record (value 1).
	Pressed EdgeKind = iota + 1

	// Released is a key-up record (value 0).
	Released

	// Repeat is an auto-repeat record (value 2). It is only surfaced when
	// the monitor was created with [WithRepeat].
	Repeat
)

// String returns the lower-case name of the kind.
func (k EdgeKind) String() string {
	switch k {
	case Pressed:
		return "pressed"
	case Released:
		return "released"
	case Repeat:
		return "repeat"
	default:
		return "unknown"
	}
}

// Edge is a hotkey transition read from one device.
type Edge struct {
	Kind EdgeKind

	// Device is the path of the device that reported the record.
	Device string

	// Time is the kernel timestamp of the record.
	Time time.Time
}

// Classify maps a decoded record to an edge. Only EV_KEY records with the
// given key code qualify. Repeat records qualify only when repeat is true.
func Classify(ev KeyEvent, code uint16, repeat bool) (EdgeKind, bool) {
	if ev.Type != EvKey || ev.Code != code {
		return 0, false
	}
	switch ev.Value {
	case ValuePressed:
		return Pressed, true
	case ValueReleased:
		return Released, true
	case ValueRepeat:
		if repeat {
			return Repeat, true
		}
	}
	return 0, false
}
