package revisionable

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mickamy/revisionable/internal/buffer"
	"github.com/mickamy/revisionable/internal/normalize"
	"github.com/mickamy/revisionable/internal/policy"
)

// State is the position of a Tracker in its save cycle.
type State int

const (
	StateIdle State = iota
	StateCapturing
	StateComparing
	StateCommitted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateComparing:
		return "comparing"
	case StateCommitted:
		return "committed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Tracker follows one entity instance through its lifecycle. The host calls
// its hooks at the matching persistence points. A Tracker is not safe for
// concurrent use; give every instance its own.
type Tracker struct {
	h      *Handler
	entity Entity
	typ    string
	state  State

	// disabled survives across cycles; dropped holds keys of values that
	// could not be diffed in the current cycle.
	disabled policy.Set
	dropped  policy.Set

	original map[string]any
	updated  map[string]any
	dirty    Fields

	// last caches the values recorded by earlier saves of this instance.
	last    map[string]any
	pending *buffer.Buffer[Change]
}

func newTracker(h *Handler, entity Entity, typ string) *Tracker {
	return &Tracker{
		h:       h,
		entity:  entity,
		typ:     typ,
		last:    map[string]any{},
		pending: buffer.NewBuffer[Change](),
	}
}

// Type returns the revisionable type of the tracked entity.
func (t *Tracker) Type() string { return t.typ }

// State returns the current cycle state.
func (t *Tracker) State() State { return t.state }

// Ref returns the reference of the tracked entity.
func (t *Tracker) Ref() Ref {
	return Ref{Type: t.typ, ID: t.entity.RevisionableKey()}
}

// DisableField stops tracking the given field (string) or fields ([]string)
// for the following cycles of this instance.
func (t *Tracker) DisableField(field any) {
	switch f := field.(type) {
	case string:
		t.disabled.Add(f)
	case []string:
		for _, one := range f {
			t.DisableField(one)
		}
	case []any:
		for _, one := range f {
			t.DisableField(one)
		}
	}
}

func (t *Tracker) model() ModelConfig {
	return t.h.Model(t.typ)
}

func (t *Tracker) tracking(ctx context.Context, cfg ModelConfig) bool {
	return t.h.Enabled() && cfg.revisionEnabled() && !skipped(ctx)
}

func (t *Tracker) policy(cfg ModelConfig) policy.Policy {
	p := policy.New(cfg.KeepRevisionOf, cfg.DontKeepRevisionOf)
	p.Disable(t.disabled.Keys()...)
	p.Disable(t.dropped.Keys()...)
	return p
}

// BeforeSave snapshots the entity before the host persists it.
func (t *Tracker) BeforeSave(ctx context.Context) {
	cfg := t.model()
	if !t.tracking(ctx, cfg) {
		t.reset()
		t.h.logger.Debug("revision tracking skipped", zap.String("type", t.typ))
		return
	}

	t.original = t.entity.Original().Map()
	t.updated = t.entity.Attributes().Map()
	t.dropped = policy.Set{}

	for key, val := range t.updated {
		if cfg.structured(key) {
			t.updated[key] = normalize.Convert(val)
			if orig, ok := t.original[key]; ok {
				t.original[key] = normalize.Convert(orig)
			}
			continue
		}
		if normalize.IsOpaque(val) || normalize.IsOpaque(t.original[key]) {
			delete(t.original, key)
			delete(t.updated, key)
			t.dropped.Add(key)
			t.h.logger.Debug("field cannot be tracked",
				zap.String("type", t.typ),
				zap.String("key", key),
				zap.String("value_type", fmt.Sprintf("%T", val)),
			)
		}
	}

	t.dirty = append(Fields(nil), t.entity.Dirty()...)
	t.state = StateCapturing
}

// AfterUpdate records the changes of a successful update.
func (t *Tracker) AfterUpdate(ctx context.Context) error {
	defer t.reset()

	cfg := t.model()
	if !t.tracking(ctx, cfg) || t.state != StateCapturing {
		return nil
	}
	t.state = StateComparing

	t.collect(cfg)
	if t.pending.Len() == 0 {
		return nil
	}
	changes := ChangeSet(t.pending.Drain())

	ref := t.Ref()
	if cfg.HistoryLimit > 0 {
		count, err := t.h.store.CountRevisions(ctx, ref)
		if err != nil {
			return fmt.Errorf("revisionable: failed to count revisions: %w", err)
		}
		if count+len(changes) > cfg.HistoryLimit {
			if !cfg.RevisionCleanup {
				t.h.logger.Debug("history limit reached, changes dropped",
					zap.String("type", ref.Type),
					zap.String("id", ref.ID),
					zap.Int("limit", cfg.HistoryLimit),
				)
				return nil
			}
			if _, err := t.h.Retention().makeRoom(ctx, ref, cfg.HistoryLimit, len(changes)); err != nil {
				return err
			}
		}
	}

	if _, err := t.h.record(ctx, ref, changes, EventSaved, userPtr(ctx)); err != nil {
		return err
	}
	for _, c := range changes {
		t.last[c.Key] = t.updatedValue(c.Key)
	}
	t.state = StateCommitted
	return nil
}

// collect stages one Change per tracked dirty field whose value moved.
func (t *Tracker) collect(cfg ModelConfig) {
	p := t.policy(cfg)
	for _, f := range t.dirty {
		if !p.IsTracked(f.Key) {
			continue
		}
		newValue := t.updatedValue(f.Key)
		if normalize.IsStructured(newValue) {
			continue
		}

		var oldValue any
		if v, ok := t.last[f.Key]; ok {
			oldValue = normalize.Convert(v)
		} else {
			oldValue = normalize.Convert(t.original[f.Key])
		}

		_, existed := t.original[f.Key]
		if existed && normalize.LooselyEqual(oldValue, normalize.Convert(newValue)) {
			continue
		}
		t.pending.Add(Change{Key: f.Key, Old: t.stringify(cfg, f.Key, oldValue), New: t.stringify(cfg, f.Key, newValue)})
	}
}

// updatedValue prefers the captured snapshot over the raw dirty value so
// structured fields compare in their normalised form.
func (t *Tracker) updatedValue(key string) any {
	if v, ok := t.updated[key]; ok {
		return v
	}
	v, _ := t.dirty.Get(key)
	return v
}

func (t *Tracker) stringify(cfg ModelConfig, key string, v any) *string {
	v = normalize.Convert(v)
	if redact, ok := cfg.Redact[key]; ok && redact != nil && v != nil {
		v = redact(key, v)
	}
	return normalize.Stringify(v, t.h.cfg.TimeLayout)
}

// AfterCreate records the creation of the entity when the type opted in.
func (t *Tracker) AfterCreate(ctx context.Context) error {
	defer t.reset()

	cfg := t.model()
	if !t.tracking(ctx, cfg) || !cfg.CreationsEnabled {
		return nil
	}
	created, _ := t.entity.Attributes().Get(cfg.CreatedAtField)
	changes := ChangeSet{{
		Key: cfg.CreatedAtField,
		New: t.stringify(cfg, cfg.CreatedAtField, created),
	}}
	_, err := t.h.record(ctx, t.Ref(), changes, EventCreated, userPtr(ctx))
	return err
}

// AfterSoftDelete records the soft-delete marker of a soft-deletable entity
// when the marker field is tracked. The cycle stays open for AfterForceDelete.
func (t *Tracker) AfterSoftDelete(ctx context.Context) error {
	cfg := t.model()
	if !t.tracking(ctx, cfg) || !cfg.SoftDelete {
		return nil
	}
	if !t.policy(cfg).IsTracked(cfg.DeletedAtField) {
		return nil
	}
	deleted, _ := t.entity.Attributes().Get(cfg.DeletedAtField)
	changes := ChangeSet{{
		Key: cfg.DeletedAtField,
		New: t.stringify(cfg, cfg.DeletedAtField, deleted),
	}}
	_, err := t.h.record(ctx, t.Ref(), changes, EventDeleted, userPtr(ctx))
	return err
}

// AfterForceDelete records the permanent removal of the entity, attributed
// to the system actor. It applies to types without soft deletes, and to
// soft-deletable types only while they are being force deleted.
func (t *Tracker) AfterForceDelete(ctx context.Context) error {
	defer t.reset()

	cfg := t.model()
	if !t.tracking(ctx, cfg) || !cfg.ForceDeleteEnabled {
		return nil
	}
	if cfg.SoftDelete && !t.forceDeleting() {
		return nil
	}
	created, ok := t.entity.Original().Get(cfg.CreatedAtField)
	if !ok {
		created, _ = t.entity.Attributes().Get(cfg.CreatedAtField)
	}
	changes := ChangeSet{{
		Key: cfg.CreatedAtField,
		Old: t.stringify(cfg, cfg.CreatedAtField, created),
	}}
	system := t.h.cfg.SystemUserID
	_, err := t.h.record(ctx, t.Ref(), changes, EventDeleted, &system)
	return err
}

// Deleted runs the deletion hooks in order: BeforeSave, AfterSoftDelete,
// AfterForceDelete. It stops at the first error.
func (t *Tracker) Deleted(ctx context.Context) error {
	t.BeforeSave(ctx)
	if err := t.AfterSoftDelete(ctx); err != nil {
		t.reset()
		return err
	}
	return t.AfterForceDelete(ctx)
}

func (t *Tracker) forceDeleting() bool {
	fd, ok := t.entity.(ForceDeleter)
	return ok && fd.ForceDeleting()
}

func (t *Tracker) reset() {
	t.original = nil
	t.updated = nil
	t.dirty = nil
	t.pending.Reset()
	t.state = StateIdle
}
