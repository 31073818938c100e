package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Event names published by the API.
const (
	AssignmentPublished = "assignment.published"
	QuizSubmitted       = "quiz.submitted"
	SubmissionGraded    = "submission.graded"
	PaymentRecorded     = "payment.recorded"
)

// Envelope wraps every payload sent on the bus.
type Envelope struct {
	ID         string      `json:"id"`
	Event      string      `json:"event"`
	OccurredAt time.Time   `json:"occurred_at"`
	Data       interface{} `json:"data"`
}

// Publisher emits domain events.
type Publisher interface {
	Publish(ctx context.Context, event string, data interface{}) error
	Close()
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, string, interface{}) error { return nil }

// Close implements Publisher.
func (NopPublisher) Close() {}

// natsConn is the subset of *nats.Conn used by the publisher.
type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher sends events as JSON to "<prefix>.<event>".
type NATSPublisher struct {
	conn   natsConn
	prefix string
	logger *zap.Logger
}

// NewNATSPublisher connects to url, retrying with exponential backoff for up
// to timeout before giving up.
func NewNATSPublisher(url, prefix string, timeout time.Duration, logger *zap.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var conn *nats.Conn
	connect := func() error {
		var err error
		conn, err = nats.Connect(url,
			nats.Name("school-lms-api"),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if err != nil {
					logger.Warn("nats disconnected", zap.Error(err))
				}
			}),
			nats.ReconnectHandler(func(c *nats.Conn) {
				logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
			}),
		)
		return err
	}
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = timeout
	if err := backoff.Retry(connect, policy); err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return newNATSPublisher(conn, prefix, logger), nil
}

func newNATSPublisher(conn natsConn, prefix string, logger *zap.Logger) *NATSPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSPublisher{conn: conn, prefix: strings.Trim(prefix, "."), logger: logger}
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(ctx context.Context, event string, data interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(Envelope{
		ID:         uuid.NewString(),
		Event:      event,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}
	if err := p.conn.Publish(p.subject(event), payload); err != nil {
		return fmt.Errorf("publish %s: %w", event, err)
	}
	return nil
}

// Close drains pending messages.
func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.logger.Warn("nats drain failed", zap.Error(err))
	}
}

func (p *NATSPublisher) subject(event string) string {
	if p.prefix == "" {
		return event
	}
	return p.prefix + "." + event
}

// Observe reports the outcome of each publish to fn.
func Observe(next Publisher, fn func(event string, err error)) Publisher {
	if fn == nil {
		return next
	}
	return &observedPublisher{next: next, fn: fn}
}

type observedPublisher struct {
	next Publisher
	fn   func(event string, err error)
}

func (p *observedPublisher) Publish(ctx context.Context, event string, data interface{}) error {
	err := p.next.Publish(ctx, event, data)
	p.fn(event, err)
	return err
}

func (p *observedPublisher) Close() { p.next.Close() }

// Handler consumes an event inside the publishing process.
type Handler func(ctx context.Context, event string, data interface{}) error

// WithHandlers runs handlers for every published event after handing it to
// next. Handlers still run when next fails so in-process consumers do not
// depend on the bus being up. The first error encountered is returned.
func WithHandlers(next Publisher, handlers ...Handler) Publisher {
	if len(handlers) == 0 {
		return next
	}
	return &fanoutPublisher{next: next, handlers: handlers}
}

type fanoutPublisher struct {
	next     Publisher
	handlers []Handler
}

func (p *fanoutPublisher) Publish(ctx context.Context, event string, data interface{}) error {
	err := p.next.Publish(ctx, event, data)
	for _, h := range p.handlers {
		if herr := h(ctx, event, data); herr != nil && err == nil {
			err = fmt.Errorf("handle %s: %w", event, herr)
		}
	}
	return err
}

func (p *fanoutPublisher) Close() { p.next.Close() }
