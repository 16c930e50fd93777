package repository

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"courier-auth/backend/internal/audit/domain"
)

// ErrListUnsupported is returned by ListByUser on write-only repositories.
var ErrListUnsupported = errors.New("audit: listing not supported by this repository")

// ZapRepository writes audit entries as structured log lines. Used when no database
// is configured; entries cannot be read back.
type ZapRepository struct {
	log *zap.Logger
}

// NewZapRepository returns a write-only audit repository that logs to l under the "audit" name.
func NewZapRepository(l *zap.Logger) *ZapRepository {
	if l == nil {
		l = zap.NewNop()
	}
	return &ZapRepository{log: l.Named("audit")}
}

func (r *ZapRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	r.log.Info("audit event",
		zap.String("id", a.ID),
		zap.String("user_id", a.UserID),
		zap.String("action", a.Action),
		zap.String("resource", a.Resource),
		zap.String("ip", a.IP),
		zap.String("metadata", a.Metadata),
		zap.Time("created_at", a.CreatedAt),
	)
	return nil
}

func (r *ZapRepository) ListByUser(ctx context.Context, userID string, limit int32) ([]*domain.AuditLog, error) {
	return nil, ErrListUnsupported
}
