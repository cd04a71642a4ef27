// Package policy decides which attribute keys are eligible for revisions.
package policy

// Set is an insertion-ordered set of field names.
type Set struct {
	keys  []string
	index map[string]struct{}
}

// NewSet builds a Set from keys, dropping duplicates.
func NewSet(keys ...string) Set {
	var s Set
	s.Add(keys...)
	return s
}

// Add appends keys not yet present.
func (s *Set) Add(keys ...string) {
	for _, k := range keys {
		if s.index == nil {
			s.index = make(map[string]struct{}, len(keys))
		}
		if _, ok := s.index[k]; ok {
			continue
		}
		s.index[k] = struct{}{}
		s.keys = append(s.keys, k)
	}
}

func (s Set) Has(key string) bool {
	_, ok := s.index[key]
	return ok
}

func (s Set) Len() int { return len(s.keys) }

// Keys returns the members in insertion order.
func (s Set) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Union returns a new Set holding the members of s followed by those of other.
func (s Set) Union(other Set) Set {
	out := NewSet(s.keys...)
	out.Add(other.keys...)
	return out
}

// Policy holds the allow-list (DoKeep) and deny-list (DontKeep) of a model.
type Policy struct {
	DoKeep   Set
	DontKeep Set
}

// New returns a Policy for the given allow and deny lists.
func New(doKeep, dontKeep []string) Policy {
	return Policy{DoKeep: NewSet(doKeep...), DontKeep: NewSet(dontKeep...)}
}

// IsTracked reports whether changes to key should be recorded.
// An explicit allow wins over an explicit deny; otherwise every key is
// tracked unless an allow-list exists.
func (p Policy) IsTracked(key string) bool {
	if p.DoKeep.Has(key) {
		return true
	}
	if p.DontKeep.Has(key) {
		return false
	}
	return p.DoKeep.Len() == 0
}

// Disable appends keys to the deny-list.
func (p *Policy) Disable(keys ...string) {
	p.DontKeep.Add(keys...)
}

// Merge returns a Policy whose lists are the union of p and other.
func (p Policy) Merge(other Policy) Policy {
	return Policy{
		DoKeep:   p.DoKeep.Union(other.DoKeep),
		DontKeep: p.DontKeep.Union(other.DontKeep),
	}
}
