package revisionable

import (
	"context"
	"errors"
)

// ErrNilStore is returned by New when no Store is supplied.
var ErrNilStore = errors.New("revisionable: nil store")

// Store is the persistence sink for revisions.
type Store interface {
	// InsertRevisions appends records atomically: either all land or none.
	InsertRevisions(ctx context.Context, records []Record) error
	// DeleteOldestRevisions deletes the oldest revisions of ref, in insertion
	// order and one row at a time, until at most keep remain. No more than
	// limit rows are deleted per call. It returns the number deleted.
	DeleteOldestRevisions(ctx context.Context, ref Ref, keep, limit int) (int, error)
	// CountRevisions returns the number of revisions stored for ref.
	CountRevisions(ctx context.Context, ref Ref) (int, error)
}

// HistoryStore is a Store that can list the revisions of an entity.
type HistoryStore interface {
	Store
	// ListRevisions returns the revisions of ref in insertion order.
	ListRevisions(ctx context.Context, ref Ref) ([]Record, error)
}
