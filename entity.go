package revisionable

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// Field is a single attribute of an entity.
type Field struct {
	Key   string
	Value any
}

// Fields is an ordered attribute list. Order matters for dirty sets: changes
// are recorded in the order the host reports them.
type Fields []Field

// Get returns the value stored for key.
func (fs Fields) Get(key string) (any, bool) {
	for _, f := range fs {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

func (fs Fields) Has(key string) bool {
	_, ok := fs.Get(key)
	return ok
}

func (fs Fields) Keys() []string {
	keys := make([]string, len(fs))
	for i, f := range fs {
		keys[i] = f.Key
	}
	return keys
}

// Map copies the fields into a map; later duplicates win.
func (fs Fields) Map() map[string]any {
	m := make(map[string]any, len(fs))
	for _, f := range fs {
		m[f.Key] = f.Value
	}
	return m
}

// Entity is a persisted record owned by the host framework. The tracker only
// reads it at lifecycle points.
type Entity interface {
	// RevisionableKey returns the primary key of the record.
	RevisionableKey() string
	// Attributes returns the current in-memory values.
	Attributes() Fields
	// Original returns the values as last loaded from or written to storage.
	Original() Fields
	// Dirty returns the attributes changed by the pending save.
	Dirty() Fields
}

// Typer lets an entity name its revisionable type explicitly.
type Typer interface {
	RevisionableType() string
}

// ForceDeleter is implemented by soft-deletable entities to report whether
// the current deletion removes the row permanently.
type ForceDeleter interface {
	ForceDeleting() bool
}

var typerType = reflect.TypeOf((*Typer)(nil)).Elem()

// TypeOf resolves the revisionable type of an entity: its RevisionableType
// method when present, otherwise the plural snake_case struct name
// (User -> users, BlogPost -> blog_posts).
func TypeOf(entity any) (string, error) {
	if entity == nil {
		return "", errors.New("revisionable: nil entity")
	}
	if typer, ok := entity.(Typer); ok {
		name := strings.TrimSpace(typer.RevisionableType())
		if name == "" {
			return "", fmt.Errorf("revisionable: RevisionableType returned empty string. %T", entity)
		}
		return name, nil
	}

	val := reflect.ValueOf(entity)
	typ := val.Type()
	if typ.Kind() == reflect.Pointer {
		if val.IsNil() {
			return "", fmt.Errorf("revisionable: nil pointer entity %T", entity)
		}
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return "", fmt.Errorf("revisionable: cannot derive type of %T", entity)
	}
	if reflect.PointerTo(typ).Implements(typerType) {
		if typer, ok := reflect.New(typ).Interface().(Typer); ok {
			if name := strings.TrimSpace(typer.RevisionableType()); name != "" {
				return name, nil
			}
		}
	}
	if typ.Name() == "" {
		return "", fmt.Errorf("revisionable: cannot derive type for anonymous struct of type %v", typ)
	}
	return inflection.Plural(toSnakeCase(typ.Name())), nil
}

func toSnakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// toLowerCamel turns published_status into publishedStatus.
func toLowerCamel(s string) string {
	parts := strings.Split(s, "_")
	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i == 0 || b.Len() == 0 {
			b.WriteString(strings.ToLower(p[:1]) + p[1:])
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]) + p[1:])
	}
	return b.String()
}

func singular(s string) string {
	return inflection.Singular(s)
}
