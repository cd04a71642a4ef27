package revisionable

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Retention prunes the oldest revisions of an entity down to a limit.
type Retention struct {
	store  Store
	batch  int
	logger *zap.Logger
}

// Enforce deletes the oldest revisions of ref so that at most limit-1 remain,
// leaving room for one more. Deletion stops after the configured batch size.
// It is a no-op when fewer than limit revisions exist.
func (r *Retention) Enforce(ctx context.Context, ref Ref, limit int) (int, error) {
	return r.makeRoom(ctx, ref, limit, 1)
}

// makeRoom keeps the newest limit-room revisions of ref.
func (r *Retention) makeRoom(ctx context.Context, ref Ref, limit, room int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}
	keep := limit - room
	if keep < 0 {
		keep = 0
	}
	n, err := r.store.DeleteOldestRevisions(ctx, ref, keep, r.batch)
	if err != nil {
		return n, fmt.Errorf("revisionable: failed to delete old revisions: %w", err)
	}
	if n > 0 {
		r.logger.Debug("old revisions deleted",
			zap.String("type", ref.Type),
			zap.String("id", ref.ID),
			zap.Int("deleted", n),
			zap.Int("kept", keep),
		)
	}
	return n, nil
}
