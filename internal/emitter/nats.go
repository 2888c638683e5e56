package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/yairfalse/kartta/pkg/resource"
)

// Header keys set on published envelopes.
const (
	HeaderDocumentID = "Kartta-Document-Id"
	HeaderTags       = "Kartta-Tags"
	HeaderSession    = "Kartta-Session"
)

// NATSEmitter publishes each envelope as one message on a fixed subject.
type NATSEmitter struct {
	conn    *nats.Conn
	subject string
	owned   bool
}

// NewNATSEmitter connects to url and publishes on subject.
func NewNATSEmitter(url, subject string, opts ...nats.Option) (*NATSEmitter, error) {
	if subject == "" {
		return nil, errors.New("nats subject is required")
	}

	opts = append([]nats.Option{nats.Name("kartta")}, opts...)
	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	return &NATSEmitter{conn: conn, subject: subject, owned: true}, nil
}

// NewNATSEmitterFromConn publishes over an existing connection. Close does not
// close conn.
func NewNATSEmitterFromConn(conn *nats.Conn, subject string) (*NATSEmitter, error) {
	if subject == "" {
		return nil, errors.New("nats subject is required")
	}
	return &NATSEmitter{conn: conn, subject: subject}, nil
}

// Emit publishes env.
func (e *NATSEmitter) Emit(ctx context.Context, env resource.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	msg := nats.NewMsg(e.subject)
	msg.Data = data
	msg.Header.Set(HeaderDocumentID, env.Contents.DocumentID())
	msg.Header.Set(HeaderSession, env.Session.ID)
	if len(env.Tags) > 0 {
		msg.Header.Set(HeaderTags, strings.Join(env.Tags, ","))
	}

	if err := e.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish to %s: %w", e.subject, err)
	}
	return nil
}

// Close flushes pending messages and, if the emitter dialled the connection,
// drains it.
func (e *NATSEmitter) Close() error {
	if !e.owned {
		return e.conn.Flush()
	}
	return e.conn.Drain()
}
