// Package events publishes conversation events to a message broker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/petasbytes/go-chatgraph/internal/logger"
)

// SubjectTurnCompleted is the default subject for finished chat turns.
const SubjectTurnCompleted = "chatgraph.turn.completed"

// TurnEvent is emitted after a turn has been checkpointed.
type TurnEvent struct {
	ThreadID  string    `json:"thread_id"`
	TurnID    string    `json:"turn_id"`
	Intent    string    `json:"intent"`
	UserText  string    `json:"user_text"`
	ReplyText string    `json:"reply_text"`
	Timestamp time.Time `json:"timestamp"`
}

type Publisher interface {
	PublishTurn(ctx context.Context, evt TurnEvent) error
	Close()
}

// Nop discards events.
type Nop struct{}

func (Nop) PublishTurn(context.Context, TurnEvent) error { return nil }
func (Nop) Close()                                       {}

type conn interface {
	Publish(subject string, data []byte) error
	Close()
}

type NATSPublisher struct {
	conn    conn
	subject string
	logger  *logger.Logger
}

func NewNATSPublisher(url, token, subject string, log *logger.Logger) (*NATSPublisher, error) {
	if log == nil {
		log = logger.Nop()
	}
	opts := []nats.Option{
		nats.Name("chatgraph"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return newPublisher(nc, subject, log), nil
}

func newPublisher(c conn, subject string, log *logger.Logger) *NATSPublisher {
	if subject == "" {
		subject = SubjectTurnCompleted
	}
	if log == nil {
		log = logger.Nop()
	}
	return &NATSPublisher{conn: c, subject: subject, logger: log}
}

func (p *NATSPublisher) Subject() string { return p.subject }

func (p *NATSPublisher) PublishTurn(ctx context.Context, evt TurnEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := p.conn.Publish(p.subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	p.logger.Debug("turn event published", "subject", p.subject, "thread_id", evt.ThreadID)
	return nil
}

func (p *NATSPublisher) Close() {
	p.conn.Close()
}
