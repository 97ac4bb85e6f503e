// Package consumer reads health record events from Kafka and hands them to a Handler.
package consumer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/segmentio/kafka-go"

	"example.com/healthsync/internal/events"
)

const (
	wireHeaderLen         = 5
	defaultHandleAttempts = 3
	defaultHandleBackoff  = 250 * time.Millisecond
)

// Reasons an incoming record is rejected before reaching the handler.
const (
	reasonFraming      = "framing"
	reasonUnknownEvent = "unknown_event"
	reasonTopic        = "topic_mismatch"
	reasonMissingUser  = "missing_user"
	reasonPayload      = "payload"
)

type decodeError struct {
	reason string
	err    error
}

func (e *decodeError) Error() string { return e.reason + ": " + e.err.Error() }

func (e *decodeError) Unwrap() error { return e.err }

func reject(reason string, format string, args ...any) error {
	return &decodeError{reason: reason, err: fmt.Errorf(format, args...)}
}

// Reader exposes the subset of kafka.Reader the processor needs.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded messages.
type Handler interface {
	Handle(context.Context, Message) error
}

// Message is a decoded record produced by the outbox dispatcher.
type Message struct {
	Topic         string
	Partition     int
	Offset        int64
	Timestamp     time.Time
	EventType     string
	UserID        string
	SchemaSubject string
	SchemaID      int
	Payload       json.RawMessage
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *log.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithHandlerRetries sets how often a failing handler is invoked for the same
// record and the pause between attempts.
func WithHandlerRetries(attempts int, backoff time.Duration) Option {
	return func(p *Processor) {
		if attempts > 0 {
			p.attempts = attempts
		}
		p.backoff = backoff
	}
}

// Processor pulls health events from Kafka, validates their routing, and
// dispatches them to a Handler.
type Processor struct {
	reader   Reader
	handler  Handler
	logger   *log.Logger
	attempts int
	backoff  time.Duration
}

// NewProcessor constructs a Processor with the provided reader and handler.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:   reader,
		handler:  handler,
		logger:   log.Default().WithPrefix("consumer"),
		attempts: defaultHandleAttempts,
		backoff:  defaultHandleBackoff,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes messages until ctx is cancelled. A message is committed after
// its handler succeeds; records that fail validation are committed and dropped.
// A record whose handler keeps failing stays uncommitted so the group
// redelivers it after a rebalance or restart.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			p.logger.Error("fetch failed", "err", err)
			continue
		}

		event, decodeErr := decodeMessage(msg)
		if decodeErr != nil {
			reason := reasonFraming
			var de *decodeError
			if errors.As(decodeErr, &de) {
				reason = de.reason
			}
			p.logger.Warn("dropping invalid message", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "reason", reason, "err", decodeErr)
			recordDecodeError(msg.Topic, reason)
			if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
				p.logger.Error("commit after decode failure", "err", commitErr)
			}
			continue
		}

		if handleErr := p.handle(ctx, event); handleErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Error("handler failed", "event_type", event.EventType, "user_id", event.UserID, "attempts", p.attempts, "err", handleErr)
			recordHandlerError(event)
			continue
		}

		if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
			p.logger.Error("commit failed", "err", commitErr)
		} else {
			recordProcessed(event)
		}
	}
}

func (p *Processor) handle(ctx context.Context, event Message) error {
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err = p.handler.Handle(ctx, event); err == nil {
			return nil
		}
		if attempt == p.attempts {
			break
		}
		recordHandlerRetry(event)
		p.logger.Warn("handler attempt failed", "event_type", event.EventType, "attempt", attempt, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.backoff * time.Duration(attempt)):
		}
	}
	return err
}

// decodeMessage unframes the record and checks it against the event routing
// table, so a record on the wrong topic never reaches the audit log.
func decodeMessage(msg kafka.Message) (Message, error) {
	if len(msg.Value) < wireHeaderLen {
		return Message{}, reject(reasonFraming, "invalid payload length: %d", len(msg.Value))
	}
	if msg.Value[0] != 0 {
		return Message{}, reject(reasonFraming, "unknown magic byte: %d", msg.Value[0])
	}

	eventType, ok := headerValue(msg, "event_type")
	if !ok || len(eventType) == 0 {
		return Message{}, reject(reasonUnknownEvent, "missing event_type header")
	}
	route, known := events.Routes[string(eventType)]
	if !known {
		return Message{}, reject(reasonUnknownEvent, "unknown event type %q", eventType)
	}
	if msg.Topic != route.Topic {
		return Message{}, reject(reasonTopic, "event %s delivered on %s, want %s", eventType, msg.Topic, route.Topic)
	}
	userID, _ := headerValue(msg, "user_id")
	if len(userID) == 0 {
		return Message{}, reject(reasonMissingUser, "missing user_id header")
	}
	schemaSubject, ok := headerValue(msg, "schema_subject")
	if !ok {
		schemaSubject = []byte(route.SchemaSubject)
	}

	payload := json.RawMessage(append([]byte(nil), msg.Value[wireHeaderLen:]...))
	if !json.Valid(payload) {
		return Message{}, reject(reasonPayload, "payload is not valid json")
	}

	return Message{
		Topic:         msg.Topic,
		Partition:     msg.Partition,
		Offset:        msg.Offset,
		Timestamp:     msg.Time,
		EventType:     string(eventType),
		UserID:        string(userID),
		SchemaSubject: string(schemaSubject),
		SchemaID:      int(binary.BigEndian.Uint32(msg.Value[1:wireHeaderLen])),
		Payload:       payload,
	}, nil
}

func headerValue(msg kafka.Message, key string) ([]byte, bool) {
	for _, header := range msg.Headers {
		if header.Key == key {
			return header.Value, true
		}
	}
	return nil, false
}
