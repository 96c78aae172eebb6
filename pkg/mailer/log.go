package mailer

import (
	"context"
	"net/mail"
	"sync"

	"go.uber.org/zap"
)

// LogSender writes messages to the logger instead of delivering them. It keeps
// the sent messages so tests can inspect them.
type LogSender struct {
	from       mail.Address
	subjPrefix string
	logger     *zap.Logger

	mu   sync.Mutex
	sent []Message
}

// NewLogSender builds the development backend.
func NewLogSender(from mail.Address, appName string, logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{from: from, subjPrefix: subjectPrefix(appName), logger: logger}
}

// Send logs msg.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	if !msg.HasRecipients() {
		return nil
	}
	to := make([]string, 0, len(msg.To))
	for _, addr := range msg.To {
		to = append(to, addr.String())
	}
	s.logger.Info("email",
		zap.String("from", s.from.String()),
		zap.Strings("to", to),
		zap.String("subject", s.subjPrefix+msg.Subject),
		zap.String("body", msg.Text),
	)

	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	return nil
}

// Sent returns a copy of every logged message.
func (s *LogSender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.sent))
	copy(out, s.sent)
	return out
}
