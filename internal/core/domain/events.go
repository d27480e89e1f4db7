package domain

import "context"

type EventType int

const (
	EventTypeUndefined EventType = iota

	// Raffle
	EventTypeRoundStarted
	EventTypeEntryRecorded
	EventTypeDrawRequested
	EventTypeRandomnessFulfilled
	EventTypeWinnerPicked
)

func (t EventType) String() string {
	switch t {
	case EventTypeRoundStarted:
		return "RoundStarted"
	case EventTypeEntryRecorded:
		return "EntryRecorded"
	case EventTypeDrawRequested:
		return "DrawRequested"
	case EventTypeRandomnessFulfilled:
		return "RandomnessFulfilled"
	case EventTypeWinnerPicked:
		return "WinnerPicked"
	default:
		return "Undefined"
	}
}

type Event interface {
	GetTopic() string
	GetType() EventType
}

type EventRepository interface {
	Save(ctx context.Context, topic, id string, events []Event) error
	RegisterEventsHandler(topic string, handler func(events []Event))
	ClearRegisteredHandlers(topic ...string)
	Close()
}
