// Package channel delivers outbound notifications and customer messages
// through external transports (WhatsApp, e-mail, push webhook).
package channel

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/rotisserie/eris"
)

// Kind names a delivery channel as stored in rule settings.
type Kind string

const (
	// KindSystem is the in-app notification row. It has no outbound sender.
	KindSystem   Kind = "system"
	KindWhatsApp Kind = "whatsapp"
	KindEmail    Kind = "email"
	KindPush     Kind = "push"
)

// Outbound reports whether the channel leaves the process.
func (k Kind) Outbound() bool {
	return k == KindWhatsApp || k == KindEmail || k == KindPush
}

// Valid reports whether k is a known channel.
func (k Kind) Valid() bool {
	return k == KindSystem || k.Outbound()
}

// Message is one outbound delivery.
type Message struct {
	TenantID int64          `json:"tenant_id"`
	Channel  Kind           `json:"channel"`
	To       string         `json:"to"`
	Subject  string         `json:"subject,omitempty"`
	Body     string         `json:"body"`
	Data     map[string]any `json:"data,omitempty"`
}

// Sender delivers a message on one channel and returns the provider's id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) (string, error)

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, msg Message) (string, error) {
	return f(ctx, msg)
}

var (
	// ErrNoSender is returned when no sender is registered for a channel.
	ErrNoSender = eris.New("channel: no sender registered")
	// ErrNoRecipient is returned when a message has an empty address.
	ErrNoRecipient = eris.New("channel: empty recipient")
)

// TransientError marks a delivery failure that may succeed on a later pass
// (timeout, 429, 5xx, open circuit). The dispatcher logs it and moves on.
type TransientError struct {
	Channel Kind
	Err     error
}

func (e *TransientError) Error() string {
	return "channel " + string(e.Channel) + ": " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is, or wraps, a TransientError or a
// network timeout.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// temporary is implemented by the HTTP clients' status errors.
type temporary interface {
	Temporary() bool
}

// classify wraps err with msg and marks it transient when the transport
// says it is.
func classify(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	wrapped := eris.Wrap(err, msg)
	var t temporary
	if (errors.As(err, &t) && t.Temporary()) || IsTransient(err) {
		return &TransientError{Channel: kind, Err: wrapped}
	}
	return wrapped
}

const defaultTimeout = 10 * time.Second
