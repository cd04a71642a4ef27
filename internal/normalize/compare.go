package normalize

import (
	"fmt"
	"math/big"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
)

var (
	numericPattern  = regexp.MustCompile(`^\s*[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?\s*$`)
	integralPattern = regexp.MustCompile(`^\s*[+-]?\d+\s*$`)
)

// LooselyEqual compares two converted values the way a weakly typed
// comparison would: numeric strings equal numbers, nil equals the empty
// string, booleans compare by truthiness. Integers compare exactly and
// times by instant.
func LooselyEqual(a, b any) bool {
	a, b = Unwrap(a), Unwrap(b)
	if a == nil || b == nil {
		if a == nil && b == nil {
			return true
		}
		other := a
		if a == nil {
			other = b
		}
		s, ok := other.(string)
		return ok && s == ""
	}
	if ab, ok := a.(bool); ok {
		return ab == Truthy(b)
	}
	if bb, ok := b.(bool); ok {
		return bb == Truthy(a)
	}
	if ia, ok := integer(a); ok {
		if ib, ok := integer(b); ok {
			return ia.Cmp(ib) == 0
		}
	}
	if fa, ok := number(a); ok {
		if fb, ok := number(b); ok {
			return fa == fb
		}
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Equal(tb)
		}
	}
	return text(a) == text(b)
}

// Truthy reports whether v would be considered set: nil, false, zero numbers,
// "" and "0" are false, empty maps and lists too.
func Truthy(v any) bool {
	v = Unwrap(v)
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != "" && t != "0"
	}
	if f, ok := number(v); ok {
		return f != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return rv.Len() > 0
	}
	return true
}

// IsNumeric reports whether s is a decimal number literal.
func IsNumeric(s string) bool {
	return numericPattern.MatchString(s)
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case string:
		if !IsNumeric(t) {
			return 0, false
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		f, err := cast.ToFloat64E(t)
		return f, err == nil
	}
	return 0, false
}

// integer returns v exactly when it is an integer or an integer literal, so
// ids beyond float64 precision stay distinct.
func integer(v any) (*big.Int, bool) {
	switch t := v.(type) {
	case string:
		if !integralPattern.MatchString(t) {
			return nil, false
		}
		return new(big.Int).SetString(strings.TrimPrefix(strings.TrimSpace(t), "+"), 10)
	case int:
		return big.NewInt(int64(t)), true
	case int8:
		return big.NewInt(int64(t)), true
	case int16:
		return big.NewInt(int64(t)), true
	case int32:
		return big.NewInt(int64(t)), true
	case int64:
		return big.NewInt(t), true
	case uint:
		return new(big.Int).SetUint64(uint64(t)), true
	case uint8:
		return new(big.Int).SetUint64(uint64(t)), true
	case uint16:
		return new(big.Int).SetUint64(uint64(t)), true
	case uint32:
		return new(big.Int).SetUint64(uint64(t)), true
	case uint64:
		return new(big.Int).SetUint64(t), true
	}
	return nil, false
}

func text(v any) string {
	if s, err := cast.ToStringE(v); err == nil {
		return s
	}
	return fmt.Sprint(v)
}
