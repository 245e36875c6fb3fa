// Package sms delivers short text messages to phone numbers.
package sms

import (
	"context"
	"fmt"
	"strings"

	"github.com/allclear/allclear/backend/go-services/pkg/logger"
)

// Message is one outbound text.
type Message struct {
	From string
	Body string
	To   string
}

// Sender hands a message to a delivery provider. A nil error means the
// provider accepted it, not that it reached the handset.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// LogSender writes messages to the application log instead of delivering them.
// It is the development default. Bodies carry live tokens, so they are only
// logged at debug level.
type LogSender struct{}

func (LogSender) Send(_ context.Context, msg Message) error {
	l := logger.With("to", msg.To)
	l.Info().Str("from", msg.From).Int("bodyLength", len(msg.Body)).Msg("sms")
	l.Debug().Str("body", msg.Body).Msg("sms body")
	return nil
}

// DiscardSender drops every message.
type DiscardSender struct{}

func (DiscardSender) Send(context.Context, Message) error { return nil }

// New returns the sender registered under name: "log" or "discard".
func New(name string) (Sender, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "log":
		return LogSender{}, nil
	case "discard":
		return DiscardSender{}, nil
	}
	return nil, fmt.Errorf("unknown sms sender %q", name)
}
