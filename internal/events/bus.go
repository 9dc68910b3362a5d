// Package events publishes domain events as asynq tasks.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backoffice-toko/internal/resilience"
)

// DefaultQueue is the asynq queue events are enqueued on.
const DefaultQueue = "events"

// Enqueuer is the subset of *asynq.Client the bus needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Envelope wraps every event payload on the wire.
type Envelope struct {
	ID          string          `json:"id"`
	Topic       string          `json:"topic"`
	AggregateID string          `json:"aggregateId"`
	Payload     json.RawMessage `json:"payload"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

// Bus encodes events and hands them to asynq.
type Bus struct {
	Client   Enqueuer
	Queue    string
	MaxRetry int
	Logger   *zerolog.Logger
	Now      func() time.Time
	// Breaker, when set, fails fast while the queue is unreachable.
	Breaker *resilience.Breaker
}

// Emit enqueues the event. When opts carry an asynq.TaskID that is already
// queued the event counts as delivered.
func (b *Bus) Emit(ctx context.Context, topic, aggregateID string, payload any, opts ...asynq.Option) (Envelope, error) {
	if b == nil || b.Client == nil {
		return Envelope{}, errors.New("events: client not configured")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Envelope{}, errors.New("events: topic is required")
	}
	aggregateID = strings.TrimSpace(aggregateID)
	if aggregateID == "" {
		return Envelope{}, errors.New("events: aggregate id is required")
	}
	encoded, err := encodePayload(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: encode payload: %w", err)
	}
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	ev := Envelope{
		ID:          uuid.NewString(),
		Topic:       topic,
		AggregateID: aggregateID,
		Payload:     encoded,
		OccurredAt:  now().UTC(),
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: encode envelope: %w", err)
	}

	queue := b.Queue
	if queue == "" {
		queue = DefaultQueue
	}
	base := []asynq.Option{asynq.Queue(queue)}
	if b.MaxRetry > 0 {
		base = append(base, asynq.MaxRetry(b.MaxRetry))
	}
	task := asynq.NewTask(topic, body)
	err = b.Breaker.Do(ctx, func(ctx context.Context) error {
		_, err := b.Client.EnqueueContext(ctx, task, append(base, opts...)...)
		return err
	}, asynq.ErrTaskIDConflict, asynq.ErrDuplicateTask)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			b.logger().Debug().Str("topic", topic).Str("aggregate_id", aggregateID).Msg("event already queued")
			return ev, nil
		}
		return Envelope{}, fmt.Errorf("events: enqueue %s: %w", topic, err)
	}
	b.logger().Debug().Str("topic", topic).Str("aggregate_id", aggregateID).Str("event_id", ev.ID).Msg("event enqueued")
	return ev, nil
}

// Decode unwraps an envelope produced by Emit and decodes its payload into dst.
func Decode(data []byte, dst any) (Envelope, error) {
	var ev Envelope
	if err := json.Unmarshal(data, &ev); err != nil {
		return Envelope{}, fmt.Errorf("events: decode envelope: %w", err)
	}
	if dst != nil && len(ev.Payload) > 0 {
		if err := json.Unmarshal(ev.Payload, dst); err != nil {
			return ev, fmt.Errorf("events: decode payload: %w", err)
		}
	}
	return ev, nil
}

func (b *Bus) logger() *zerolog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	nop := zerolog.Nop()
	return &nop
}

func encodePayload(payload any) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	switch v := payload.(type) {
	case []byte:
		return validRaw(v)
	case json.RawMessage:
		return validRaw(v)
	case string:
		if strings.TrimSpace(v) == "" {
			return []byte("{}"), nil
		}
		return validRaw([]byte(v))
	default:
		return json.Marshal(v)
	}
}

func validRaw(v []byte) ([]byte, error) {
	if len(v) == 0 {
		return []byte("{}"), nil
	}
	if !json.Valid(v) {
		return nil, errors.New("payload is not valid json")
	}
	return append([]byte(nil), v...), nil
}
