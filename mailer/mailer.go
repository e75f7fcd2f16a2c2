package mailer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
	// Kind labels the message for logs: registration, login, mfa.
	Kind   string
	UserID string
}

// Delivery is what the transport reported for an accepted message.
type Delivery struct {
	MessageID string
}

// Sender hands a message to an email transport.
type Sender interface {
	Send(ctx context.Context, msg Message) (Delivery, error)
}

// VerificationMessage composes the email carrying a one-time code.
func VerificationMessage(to, userID, kind, code string, ttl time.Duration) Message {
	return Message{
		To:      to,
		Subject: "Your Verification Code",
		Body: fmt.Sprintf(
			"Your verification code is: %s\nThis code will expire in %d minutes.",
			code, int(ttl.Round(time.Minute)/time.Minute),
		),
		Kind:   kind,
		UserID: userID,
	}
}

// NoOpSender accepts and discards every message.
type NoOpSender struct{}

func (NoOpSender) Send(context.Context, Message) (Delivery, error) { return Delivery{}, nil }

// LogSender writes messages to a zap logger instead of sending them.
//
// It is the development transport: the code is logged at debug level only.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender returns a LogSender; a nil logger discards everything.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg Message) (Delivery, error) {
	s.logger.Info("mail accepted",
		zap.String("kind", msg.Kind),
		zap.String("user_id", msg.UserID),
		zap.String("subject", msg.Subject),
	)
	s.logger.Debug("mail body", zap.String("to", msg.To), zap.String("body", msg.Body))
	return Delivery{MessageID: "log"}, nil
}

// ChannelSender writes messages into a buffered channel.
type ChannelSender struct {
	messages chan Message
}

// NewChannelSender buffers up to buffer messages.
func NewChannelSender(buffer int) *ChannelSender {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSender{messages: make(chan Message, buffer)}
}

func (s *ChannelSender) Send(ctx context.Context, msg Message) (Delivery, error) {
	select {
	case s.messages <- msg:
		return Delivery{MessageID: "chan"}, nil
	case <-ctx.Done():
		return Delivery{}, ctx.Err()
	}
}

// Messages exposes the delivered messages.
func (s *ChannelSender) Messages() <-chan Message {
	return s.messages
}
