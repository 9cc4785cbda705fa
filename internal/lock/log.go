package lock

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/wanpark/access-server-go/internal/model"
)

// LogDriver only records actuations. Used in development and for locks that
// are opened by staff on site.
type LogDriver struct{}

func (LogDriver) Actuate(ctx context.Context, lockID string, purpose model.Purpose) error {
	log.Info().
		Str("lockId", lockID).
		Str("purpose", string(purpose)).
		Msg("lock actuated (log driver)")
	return nil
}
