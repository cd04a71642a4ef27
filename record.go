package revisionable

import (
	"time"
)

// Record is a stored revision: one field change of one tracked entity.
// Records are never updated once inserted.
type Record struct {
	ID               int64     `json:"id"`
	RevisionableType string    `json:"revisionable_type"`
	RevisionableID   string    `json:"revisionable_id"`
	Sequence         int64     `json:"sequence"`
	Process          string    `json:"process"`
	Key              string    `json:"key"`
	OldValue         *string   `json:"old_value"`
	NewValue         *string   `json:"new_value"`
	UserID           *string   `json:"user_id"`
	CreatedAt        time.Time `json:"created_at"`
}

// Ref returns the reference of the entity the record belongs to.
func (r Record) Ref() Ref {
	return Ref{Type: r.RevisionableType, ID: r.RevisionableID}
}

// Ref identifies a tracked entity.
type Ref struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Change is a single field change computed during one save.
type Change struct {
	Key string
	Old *string
	New *string
}

// ChangeSet holds the changes of one save in dirty-field order.
type ChangeSet []Change

// Keys returns the changed field names in order.
func (cs ChangeSet) Keys() []string {
	keys := make([]string, len(cs))
	for i, c := range cs {
		keys[i] = c.Key
	}
	return keys
}
