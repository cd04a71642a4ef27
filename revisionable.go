// Package revisionable records field-level changes of persisted entities as
// an append-only trail of revisions.
//
// The host persistence layer calls a Tracker at fixed lifecycle points
// (before save, after update, after create, after soft delete, after force
// delete); the tracker diffs the entity against its pre-save snapshot,
// applies the per-type field policy and retention limits, and appends the
// resulting revisions to a Store.
package revisionable

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Config defines the process-wide options.
type Config struct {
	Enabled      *bool            // global kill switch, default true
	SystemUserID string           // actor recorded for force deletions, default "system"
	TimeLayout   string           // layout for storing time values, default "2006-01-02 15:04:05"
	CleanupBatch int              // max rows deleted per retention pass, default 1000
	Process      string           // writer process token, default NewProcessID()
	Logger       *zap.Logger      // default zap.NewNop()
	Clock        func() time.Time // default time.Now
}

// Defaults applied by New.
const (
	DefaultSystemUserID = "system"
	DefaultTimeLayout   = "2006-01-02 15:04:05"
	DefaultCleanupBatch = 1000
)

// Handler owns the model registry and writes revisions to a Store.
type Handler struct {
	cfg        Config
	store      Store
	dispatcher Dispatcher
	logger     *zap.Logger
	enabled    atomic.Bool
	lastSeq    atomic.Int64

	mu     sync.RWMutex
	models map[string]ModelConfig
}

// Option customises a Handler.
type Option func(*Handler)

// WithDispatcher sets the Dispatcher that receives revision events.
func WithDispatcher(d Dispatcher) Option {
	return func(h *Handler) {
		h.dispatcher = d
	}
}

// New creates a Handler writing to store, with defaults applied to cfg.
func New(cfg Config, store Store, opts ...Option) (*Handler, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if cfg.SystemUserID == "" {
		cfg.SystemUserID = DefaultSystemUserID
	}
	if cfg.TimeLayout == "" {
		cfg.TimeLayout = DefaultTimeLayout
	}
	if cfg.CleanupBatch <= 0 {
		cfg.CleanupBatch = DefaultCleanupBatch
	}
	if cfg.Process == "" {
		cfg.Process = NewProcessID()
	}
	if len(cfg.Process) > ProcessIDLength {
		cfg.Process = cfg.Process[:ProcessIDLength]
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	h := &Handler{
		cfg:    cfg,
		store:  store,
		logger: cfg.Logger.Named("revisionable"),
		models: map[string]ModelConfig{},
	}
	h.enabled.Store(cfg.Enabled == nil || *cfg.Enabled)
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Process returns the token written to the process column.
func (h *Handler) Process() string { return h.cfg.Process }

// Store returns the underlying revision store.
func (h *Handler) Store() Store { return h.store }

// Enabled reports the global kill switch.
func (h *Handler) Enabled() bool { return h.enabled.Load() }

// SetEnabled flips the global kill switch at runtime.
func (h *Handler) SetEnabled(v bool) { h.enabled.Store(v) }

// Register validates cfg and stores it as the configuration of typ.
func (h *Handler) Register(typ string, cfg ModelConfig) error {
	if typ == "" {
		return fmt.Errorf("%w: empty type name", ErrInvalidModel)
	}
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("%w (type %s)", err, typ)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.models[typ] = cfg
	return nil
}

// Model returns the configuration registered for typ, or the default one.
func (h *Handler) Model(typ string) ModelConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if cfg, ok := h.models[typ]; ok {
		return cfg
	}
	return DefaultModelConfig()
}

// Track returns a Tracker bound to one entity instance. Keep the tracker
// for as long as the instance lives so repeated saves diff against the last
// recorded values.
func (h *Handler) Track(entity Entity) (*Tracker, error) {
	typ, err := TypeOf(entity)
	if err != nil {
		return nil, err
	}
	return newTracker(h, entity, typ), nil
}

// Retention returns the retention manager backed by the handler's store.
func (h *Handler) Retention() *Retention {
	return &Retention{store: h.store, batch: h.cfg.CleanupBatch, logger: h.logger}
}

// Renderer returns a renderer using the handler's model registry.
func (h *Handler) Renderer() *Renderer {
	return &Renderer{h: h}
}

// HistoryOf lists the revisions of ref. The store must implement HistoryStore.
func (h *Handler) HistoryOf(ctx context.Context, ref Ref) ([]Record, error) {
	hs, ok := h.store.(HistoryStore)
	if !ok {
		return nil, fmt.Errorf("revisionable: store %T cannot list revisions", h.store)
	}
	records, err := hs.ListRevisions(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("revisionable: failed to list revisions: %w", err)
	}
	return records, nil
}

// nextSequence returns a strictly increasing microsecond timestamp.
func (h *Handler) nextSequence(now time.Time) int64 {
	for {
		last := h.lastSeq.Load()
		next := now.UnixMicro()
		if next <= last {
			next = last + 1
		}
		if h.lastSeq.CompareAndSwap(last, next) {
			return next
		}
	}
}

// record writes changes as one batch and emits the matching event.
func (h *Handler) record(ctx context.Context, ref Ref, changes ChangeSet, kind EventKind, userID *string) ([]Record, error) {
	if len(changes) == 0 {
		return nil, nil
	}
	now := h.cfg.Clock()
	records := make([]Record, len(changes))
	for i, c := range changes {
		records[i] = Record{
			RevisionableType: ref.Type,
			RevisionableID:   ref.ID,
			Sequence:         h.nextSequence(now),
			Process:          h.cfg.Process,
			Key:              c.Key,
			OldValue:         c.Old,
			NewValue:         c.New,
			UserID:           userID,
			CreatedAt:        now,
		}
	}

	if err := h.store.InsertRevisions(ctx, records); err != nil {
		return nil, fmt.Errorf("revisionable: failed to insert revisions: %w", err)
	}
	h.logger.Debug("revisions recorded",
		zap.String("type", ref.Type),
		zap.String("id", ref.ID),
		zap.String("event", string(kind)),
		zap.Strings("keys", changes.Keys()),
	)

	if h.dispatcher != nil {
		e := Event{Kind: kind, Ref: ref, Records: records}
		if err := h.dispatcher.Dispatch(ctx, e); err != nil {
			h.logger.Warn("failed to dispatch revision event",
				zap.String("topic", e.Topic()),
				zap.Error(err),
			)
		}
	}
	return records, nil
}
