package revisionable

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mickamy/revisionable/internal/format"
)

// Related is an entity referenced by a foreign-key field of a tracked entity.
type Related interface {
	// IdentifiableName is displayed in place of the stored id.
	IdentifiableName() string
}

// RelatedSource looks up related entities of one type by id.
type RelatedSource interface {
	// FindRelated returns nil, nil when no row matches id.
	FindRelated(ctx context.Context, id string) (Related, error)
	// NullString is displayed when the stored id is empty.
	NullString() string
	// UnknownString is displayed when no row matches the stored id.
	UnknownString() string
}

// FindFunc looks up a related entity by id.
type FindFunc func(ctx context.Context, id string) (Related, error)

// Relation adapts a FindFunc to RelatedSource. Empty Null and Unknown fall
// back to the owning type's NullString and UnknownString.
type Relation struct {
	Find    FindFunc
	Null    string
	Unknown string
}

func (r Relation) FindRelated(ctx context.Context, id string) (Related, error) {
	if r.Find == nil {
		return nil, fmt.Errorf("revisionable: relation has no finder")
	}
	return r.Find(ctx, id)
}

func (r Relation) NullString() string    { return r.Null }
func (r Relation) UnknownString() string { return r.Unknown }

// Name is a Related with a fixed display name.
type Name string

func (n Name) IdentifiableName() string { return string(n) }

// Line is a rendered revision.
type Line struct {
	Field    string `json:"field"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
	Record   Record `json:"record"`
}

// Renderer turns stored revisions into display strings using the model
// configuration registered on a Handler.
type Renderer struct {
	h *Handler
}

// FieldName returns the display name of the changed field: the configured
// name, otherwise the key without a trailing "_id".
func (r *Renderer) FieldName(rec Record) string {
	cfg := r.h.Model(rec.RevisionableType)
	if name, ok := cfg.FormattedFieldNames[rec.Key]; ok && name != "" {
		return name
	}
	if base := strings.TrimSuffix(rec.Key, "_id"); base != "" {
		return base
	}
	return rec.Key
}

// OldValue renders the value before the change.
func (r *Renderer) OldValue(ctx context.Context, rec Record) string {
	return r.value(ctx, rec, rec.OldValue)
}

// NewValue renders the value after the change.
func (r *Renderer) NewValue(ctx context.Context, rec Record) string {
	return r.value(ctx, rec, rec.NewValue)
}

// Describe renders the field name and both values of rec.
func (r *Renderer) Describe(ctx context.Context, rec Record) Line {
	return Line{
		Field:    r.FieldName(rec),
		OldValue: r.OldValue(ctx, rec),
		NewValue: r.NewValue(ctx, rec),
		Record:   rec,
	}
}

// HistoryOf lists and renders the revisions of ref.
func (r *Renderer) HistoryOf(ctx context.Context, ref Ref) ([]Line, error) {
	records, err := r.h.HistoryOf(ctx, ref)
	if err != nil {
		return nil, err
	}
	lines := make([]Line, len(records))
	for i, rec := range records {
		lines[i] = r.Describe(ctx, rec)
	}
	return lines, nil
}

func (r *Renderer) value(ctx context.Context, rec Record, raw *string) string {
	cfg := r.h.Model(rec.RevisionableType)
	if strings.HasSuffix(rec.Key, "_id") {
		if out, ok := r.resolve(ctx, cfg, rec, raw); ok {
			return out
		}
	}

	var v any
	if raw != nil {
		v = *raw
	}
	if mutate, ok := cfg.Mutators[rec.Key]; ok && mutate != nil {
		v = mutate(v)
	}
	return r.formatter().Render(rec.Key, v, cfg.FormattedFields)
}

// resolve renders a foreign-key value through the related entity. ok is
// false when the relation could not be resolved and the raw value should be
// formatted instead.
func (r *Renderer) resolve(ctx context.Context, cfg ModelConfig, rec Record, raw *string) (out string, ok bool) {
	logger := r.h.logger.With(
		zap.String("type", rec.RevisionableType),
		zap.String("key", rec.Key),
	)
	defer func() {
		if p := recover(); p != nil {
			logger.Debug("related lookup panicked", zap.Any("panic", p))
			out, ok = "", false
		}
	}()

	base := strings.TrimSuffix(rec.Key, "_id")
	src, found := cfg.relation(base)
	if !found {
		logger.Debug("relation does not exist", zap.String("relation", base))
		return "", false
	}

	if raw == nil || *raw == "" {
		return orDefault(src.NullString(), cfg.NullString), true
	}

	item, err := src.FindRelated(ctx, *raw)
	if err != nil {
		logger.Debug("failed to find related entity", zap.String("id", *raw), zap.Error(err))
		return "", false
	}
	if item == nil {
		unknown := orDefault(src.UnknownString(), cfg.UnknownString)
		return r.formatter().Render(rec.Key, unknown, cfg.FormattedFields), true
	}

	var name any = item.IdentifiableName()
	if mutate, ok := cfg.Mutators[rec.Key]; ok && mutate != nil {
		name = mutate(name)
	}
	return r.formatter().Render(rec.Key, name, cfg.FormattedFields), true
}

// formatter reads stored times with the layout they were written with.
func (r *Renderer) formatter() format.Formatter {
	return format.Formatter{Layout: r.h.cfg.TimeLayout}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
