package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/lesson-engine/internal/models"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// clock returns the current instant; services hold one so tests can pin time.
type clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

// LoadLocation resolves an IANA zone name, falling back to UTC.
func LoadLocation(name string, logger *zap.Logger) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		logger.Warn("unknown timezone, falling back to UTC", zap.String("timezone", name), zap.Error(err))
		return time.UTC
	}
	return loc
}

func rollback(tx *sqlx.Tx, logger *zap.Logger) {
	if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
		logger.Warn("rollback failed", zap.Error(err))
	}
}

func actorID(actor *models.JWTClaims) *string {
	if actor == nil || actor.UserID == "" {
		return nil
	}
	id := actor.UserID
	return &id
}

func formatSlot(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("Mon 02 Jan 2006 15:04 MST")
}

func stringPtr(s string) *string {
	return &s
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Notification) {}

func orNoop(n notifier) notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}
