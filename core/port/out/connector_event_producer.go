package out

import (
	"context"

	"github.com/rish231294/pipeshub-ai/core/domain"
)

// =============================================================================
// Record Event Producer Port
// =============================================================================

// RecordEventProducer publishes one envelope per mirrored record onto the
// record stream. Callers invoke it strictly after the owning transaction
// commits; failures are logged by the caller and never unwind a commit.
type RecordEventProducer interface {
	EmitRecordEvent(ctx context.Context, event *domain.RecordEvent) error
}

// SyncProgressReporter keeps a short-lived per-principal progress hash for
// operational visibility. Best effort; callers ignore failures.
type SyncProgressReporter interface {
	SetSyncProgress(ctx context.Context, email, serviceType string, fields map[string]any) error
	IncrSyncCounter(ctx context.Context, email, serviceType, field string, by int64) error
	GetSyncProgress(ctx context.Context, email, serviceType string) (map[string]string, error)
}
