package engine

import "time"

type EventType int

const (
	EventEntrySignal EventType = iota
	EventExitSignal
	EventPositionAbandoned
)

func (t EventType) String() string {
	switch t {
	case EventEntrySignal:
		return "entry_signal"
	case EventExitSignal:
		return "exit_signal"
	case EventPositionAbandoned:
		return "position_abandoned"
	}
	return "unknown"
}

type Event struct {
	Date    time.Time
	Type    EventType
	Details map[string]string
}

// EventLog records the signals a simulation run acted on, for trace
// exports. A nil log disables recording.
type EventLog struct {
	Events []Event
}

func (l *EventLog) Append(e Event) { l.Events = append(l.Events, e) }
