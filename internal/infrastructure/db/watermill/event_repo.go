package watermilldb

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ark-network/raffle/internal/core/domain"
	log "github.com/sirupsen/logrus"
)

const idMetadataKey = "id"

type subscriber struct {
	topic   string
	handler func(events []domain.Event)
}

type eventRepository struct {
	publisher  message.Publisher
	subscriber message.Subscriber

	subscribers    map[string][]subscriber // topic -> subscribers
	subscriberLock *sync.Mutex
	listening      map[string]context.CancelFunc // topic -> stop listening
}

// NewWatermillEventRepository publishes every batch of events as one
// message on the given topic and dispatches the batches received from the
// subscriber, in order, to the registered handlers.
func NewWatermillEventRepository(
	publisher message.Publisher, sub message.Subscriber,
) domain.EventRepository {
	return &eventRepository{
		publisher:      publisher,
		subscriber:     sub,
		subscribers:    make(map[string][]subscriber),
		subscriberLock: &sync.Mutex{},
		listening:      make(map[string]context.CancelFunc),
	}
}

func (e *eventRepository) ClearRegisteredHandlers(topics ...string) {
	e.subscriberLock.Lock()
	defer e.subscriberLock.Unlock()

	if len(topics) == 0 {
		e.subscribers = make(map[string][]subscriber)
		return
	}

	for _, topic := range topics {
		delete(e.subscribers, topic)
	}
}

func (e *eventRepository) Close() {
	e.subscriberLock.Lock()
	for _, cancel := range e.listening {
		cancel()
	}
	e.listening = make(map[string]context.CancelFunc)
	e.subscriberLock.Unlock()

	//nolint:errcheck
	e.publisher.Close()
	//nolint:errcheck
	e.subscriber.Close()
}

func (e *eventRepository) RegisterEventsHandler(
	topic string, handler func(events []domain.Event),
) {
	e.subscriberLock.Lock()
	defer e.subscriberLock.Unlock()

	if _, ok := e.subscribers[topic]; !ok {
		e.subscribers[topic] = make([]subscriber, 0)
	}

	e.subscribers[topic] = append(e.subscribers[topic], subscriber{
		topic:   topic,
		handler: handler,
	})

	if _, ok := e.listening[topic]; ok {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	messages, err := e.subscriber.Subscribe(ctx, topic)
	if err != nil {
		cancel()
		log.WithError(err).Warnf("failed to subscribe to topic %s", topic)
		return
	}
	e.listening[topic] = cancel

	go e.listen(topic, messages)
}

func (e *eventRepository) Save(
	ctx context.Context, topic string, id string, events []domain.Event,
) error {
	if len(events) <= 0 {
		return nil
	}

	msg, err := toWatermillMessage(id, events)
	if err != nil {
		return err
	}
	msg.SetContext(ctx)

	return e.publisher.Publish(topic, msg)
}

func (e *eventRepository) listen(topic string, messages <-chan *message.Message) {
	for msg := range messages {
		events, err := fromWatermillMessage(msg)
		if err != nil {
			log.WithError(err).Warnf(
				"failed to decode events %s on topic %s", msg.Metadata.Get(idMetadataKey), topic,
			)
			msg.Ack()
			continue
		}

		e.dispatch(topic, events)
		msg.Ack()
	}
}

func (e *eventRepository) dispatch(topic string, events []domain.Event) {
	e.subscriberLock.Lock()
	handlers := append([]subscriber{}, e.subscribers[topic]...)
	e.subscriberLock.Unlock()

	for _, subscriber := range handlers {
		subscriber.handler(events)
	}
}

type eventDTO struct {
	Type domain.EventType `json:"type"`
	Data json.RawMessage  `json:"data"`
}

func toWatermillMessage(id string, events []domain.Event) (*message.Message, error) {
	dtos := make([]eventDTO, 0, len(events))
	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return nil, fmt.Errorf("failed to encode event %s: %w", event.GetType(), err)
		}
		dtos = append(dtos, eventDTO{event.GetType(), data})
	}

	payload, err := json.Marshal(dtos)
	if err != nil {
		return nil, err
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(idMetadataKey, id)
	return msg, nil
}

func fromWatermillMessage(msg *message.Message) ([]domain.Event, error) {
	var dtos []eventDTO
	if err := json.Unmarshal(msg.Payload, &dtos); err != nil {
		return nil, err
	}

	events := make([]domain.Event, 0, len(dtos))
	for _, dto := range dtos {
		event, err := deserializeEvent(dto)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

func deserializeEvent(dto eventDTO) (domain.Event, error) {
	switch dto.Type {
	case domain.EventTypeRoundStarted:
		var event domain.RoundStarted
		err := json.Unmarshal(dto.Data, &event)
		return event, err
	case domain.EventTypeEntryRecorded:
		var event domain.EntryRecorded
		err := json.Unmarshal(dto.Data, &event)
		return event, err
	case domain.EventTypeDrawRequested:
		var event domain.DrawRequested
		err := json.Unmarshal(dto.Data, &event)
		return event, err
	case domain.EventTypeRandomnessFulfilled:
		var event domain.RandomnessFulfilled
		err := json.Unmarshal(dto.Data, &event)
		return event, err
	case domain.EventTypeWinnerPicked:
		var event domain.WinnerPicked
		err := json.Unmarshal(dto.Data, &event)
		return event, err
	default:
		return nil, fmt.Errorf("unknown event type %d", dto.Type)
	}
}
