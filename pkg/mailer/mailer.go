// Package mailer delivers transactional email through a pluggable backend.
package mailer

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/lesson-engine/pkg/config"
)

// Message is a single outbound email.
type Message struct {
	To      []mail.Address
	Subject string
	Text    string
	HTML    string
}

// HasRecipients reports whether the message can be delivered to anyone.
func (m Message) HasRecipients() bool {
	for _, to := range m.To {
		if strings.TrimSpace(to.Address) != "" {
			return true
		}
	}
	return false
}

// Sender delivers messages. Implementations must be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// New picks the backend named by cfg.Email.Provider.
func New(cfg config.EmailConfig, appName string, logger *zap.Logger) (Sender, error) {
	from := mail.Address{Name: cfg.FromName, Address: cfg.FromEmail}
	switch cfg.Provider {
	case "", "log":
		return NewLogSender(from, appName, logger), nil
	case "sendgrid":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("sendgrid provider requires SENDGRID_API_KEY")
		}
		return NewSendgridSender(cfg.APIKey, from, appName), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
}

func subjectPrefix(appName string) string {
	if appName == "" {
		return ""
	}
	return "[" + appName + "] "
}
