package revisionable

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Cast declares how a field is stored by the host.
type Cast string

const (
	CastObject Cast = "object"
	CastArray  Cast = "array"
	CastJSON   Cast = "json"
)

// Structured reports whether values of the cast are stored as JSON documents.
func (c Cast) Structured() bool {
	switch c {
	case CastObject, CastArray, CastJSON:
		return true
	}
	return false
}

// Mutator transforms a value before it is formatted for display.
type Mutator func(value any) any

// RedactFunc masks a value before it is stored in a revision.
type RedactFunc func(key string, v any) any

// Defaults applied by Register.
const (
	DefaultNullString     = "nothing"
	DefaultUnknownString  = "unknown"
	DefaultCreatedAtField = "created_at"
	DefaultDeletedAtField = "deleted_at"
)

// ErrInvalidModel is returned by Register for configurations that fail validation.
var ErrInvalidModel = errors.New("revisionable: invalid model config")

// ModelConfig is the per-type revision configuration.
type ModelConfig struct {
	// RevisionEnabled switches tracking for the type; nil means enabled.
	RevisionEnabled *bool
	// HistoryLimit caps the number of stored revisions per entity; 0 means unlimited.
	HistoryLimit int `validate:"gte=0"`
	// RevisionCleanup deletes the oldest revisions once HistoryLimit is reached
	// instead of dropping new changes.
	RevisionCleanup bool
	// CreationsEnabled records a revision when an entity is created.
	CreationsEnabled bool
	// ForceDeleteEnabled records a revision when an entity is permanently deleted.
	ForceDeleteEnabled bool

	KeepRevisionOf     []string `validate:"dive,required"`
	DontKeepRevisionOf []string `validate:"dive,required"`

	// FormattedFields maps field names to "method:args" display descriptors.
	FormattedFields map[string]string
	// FormattedFieldNames maps field names to display names.
	FormattedFieldNames map[string]string
	NullString          string
	UnknownString       string

	Casts          map[string]Cast `validate:"dive,keys,required,endkeys,oneof=object array json"`
	SoftDelete     bool
	DeletedAtField string `validate:"required"`
	CreatedAtField string `validate:"required"`

	Mutators  map[string]Mutator
	Relations map[string]RelatedSource
	Redact    map[string]RedactFunc
}

// DefaultModelConfig tracks every field with no history limit.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{}.withDefaults()
}

func (m ModelConfig) withDefaults() ModelConfig {
	if m.NullString == "" {
		m.NullString = DefaultNullString
	}
	if m.UnknownString == "" {
		m.UnknownString = DefaultUnknownString
	}
	if m.CreatedAtField == "" {
		m.CreatedAtField = DefaultCreatedAtField
	}
	if m.DeletedAtField == "" {
		m.DeletedAtField = DefaultDeletedAtField
	}
	return m
}

func (m ModelConfig) revisionEnabled() bool {
	return m.RevisionEnabled == nil || *m.RevisionEnabled
}

func (m ModelConfig) structured(key string) bool {
	return m.Casts[key].Structured()
}

// relation finds the related source for a foreign-key base name, trying the
// bare name, its lowerCamel form and its singular form.
func (m ModelConfig) relation(base string) (RelatedSource, bool) {
	for _, name := range []string{base, toLowerCamel(base), singular(base)} {
		if src, ok := m.Relations[name]; ok && src != nil {
			return src, true
		}
	}
	return nil, false
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func modelValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

func (m ModelConfig) validate() error {
	if err := modelValidator().Struct(m); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidModel, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	if m.HistoryLimit == 0 && m.RevisionCleanup {
		return fmt.Errorf("%w: RevisionCleanup requires HistoryLimit", ErrInvalidModel)
	}
	return nil
}
