package engine

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"time"
)

// Record is one row: a mapping of field name to scalar value
type Record = map[string]any

// M is shorthand for argument objects (where, data, select...)
type M = map[string]any

// NullSentinel distinguishes database NULL from JSON null on Json fields
type NullSentinel string

const (
	// DbNull is a database NULL
	DbNull NullSentinel = "DbNull"
	// JsonNull is a JSON null literal stored in a Json column
	JsonNull NullSentinel = "JsonNull"
	// AnyNull matches either in filters
	AnyNull NullSentinel = "AnyNull"
)

// ============================================================
// NORMALIZATION
// ============================================================

// normalizeValue converts a written value to the canonical Go type of the
// field.
func normalizeValue(f *Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(NullSentinel); ok {
		if s == JsonNull && f.Type == TypeJSON {
			return JsonNull, nil
		}
		return nil, nil
	}
	if f.IsList {
		items, ok := toSlice(v)
		if !ok {
			items = []any{v}
		}
		out := make([]any, 0, len(items))
		for _, item := range items {
			n, err := normalizeScalar(f, item)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	}
	return normalizeScalar(f, v)
}

func normalizeScalar(f *Field, v any) (any, error) {
	switch f.Type {
	case TypeInt:
		if i, ok := toExactInt(v); ok {
			return int(i), nil
		}
		if n, ok := toFloat(v); ok {
			return int(n), nil
		}
	case TypeBigInt:
		if i, ok := toExactInt(v); ok {
			return i, nil
		}
		if n, ok := toFloat(v); ok {
			return int64(n), nil
		}
	case TypeFloat, TypeDecimal:
		if n, ok := toFloat(v); ok {
			return n, nil
		}
	case TypeDateTime:
		switch t := v.(type) {
		case time.Time:
			return t, nil
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, t)
			if err != nil {
				return nil, &ValidationError{
					Field:   f.Name,
					Message: fmt.Sprintf("invalid DateTime %q: expected RFC 3339", t),
				}
			}
			return parsed, nil
		}
	case TypeJSON:
		return deepCopyValue(v), nil
	case TypeBytes:
		if b, ok := v.([]byte); ok {
			return append([]byte(nil), b...), nil
		}
	}
	return v, nil
}

// ============================================================
// CONVERSION HELPERS
// ============================================================

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// toExactInt returns integer kinds as int64 without a float round trip.
// Floats and uint64 values above math.MaxInt64 are not exact ints.
func toExactInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		if uint64(n) <= math.MaxInt64 {
			return int64(n), true
		}
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n <= math.MaxInt64 {
			return int64(n), true
		}
	}
	return 0, false
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func isNumber(v any) bool {
	_, ok := toFloat(v)
	return ok
}

func toSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []Record:
		out := make([]any, len(s))
		for i, r := range s {
			out[i] = r
		}
		return out, true
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func toMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// toMapList accepts a single object or a list of objects
func toMapList(v any) []map[string]any {
	if m, ok := toMap(v); ok {
		return []map[string]any{m}
	}
	items, ok := toSlice(v)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := toMap(item); ok {
			out = append(out, m)
		}
	}
	return out
}

func isNullish(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(NullSentinel)
	return ok && s == DbNull
}

func isTrue(v any) bool {
	b, ok := v.(bool)
	return ok && b
}

// ============================================================
// EQUALITY / ORDERING
// ============================================================

// valuesEqual compares two scalar or JSON values. Numbers compare by
// value regardless of their Go type; two integers compare exactly.
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ia, ok := toExactInt(a); ok {
		if ib, ok := toExactInt(b); ok {
			return ia == ib
		}
	}
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	switch av := a.(type) {
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	case []byte:
		bv, ok := b.([]byte)
		return ok && bytes.Equal(av, bv)
	case map[string]any:
		bv, ok := toMap(b)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			other, present := bv[k]
			if !present || !valuesEqual(v, other) {
				return false
			}
		}
		return true
	}
	if as, ok := toSlice(a); ok {
		bs, ok := toSlice(b)
		if !ok || len(as) != len(bs) {
			return false
		}
		for i := range as {
			if !valuesEqual(as[i], bs[i]) {
				return false
			}
		}
		return true
	}
	return a == b
}

// compareValues orders two non-null values of the same scalar type.
// Mismatched types fall back to their string forms.
func compareValues(a, b any) int {
	if ia, ok := toExactInt(a); ok {
		if ib, ok := toExactInt(b); ok {
			return compareInt64(ia, ib)
		}
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case !av:
				return -1
			}
			return 1
		}
	case []byte:
		if bv, ok := b.([]byte); ok {
			return bytes.Compare(av, bv)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// ============================================================
// COPYING
// ============================================================

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = deepCopyValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = deepCopyValue(inner)
		}
		return out
	case []byte:
		return append([]byte(nil), t...)
	}
	return v
}

func copyRecord(r Record) Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = deepCopyValue(v)
	}
	return out
}

// exportValue replaces internal null sentinels with plain nil
func exportValue(v any) any {
	switch t := v.(type) {
	case NullSentinel:
		return nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = exportValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = exportValue(inner)
		}
		return out
	case []Record:
		out := make([]Record, len(t))
		for i, inner := range t {
			out[i] = exportValue(inner).(map[string]any)
		}
		return out
	}
	return deepCopyValue(v)
}

// ============================================================
// INDEX KEYS
// ============================================================

type timeKey int64
type bytesKey string

// indexKey maps a value to a comparable map key so that equal values
// (per valuesEqual) share a bucket.
func indexKey(v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	if i, ok := toExactInt(v); ok {
		return i, true
	}
	if f, ok := toFloat(v); ok {
		if f == math.Trunc(f) && math.Abs(f) < 1<<62 {
			return int64(f), true
		}
		return f, true
	}
	switch t := v.(type) {
	case string, bool:
		return t, true
	case time.Time:
		return timeKey(t.UnixNano()), true
	case []byte:
		return bytesKey(t), true
	}
	return nil, false
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// sameRecord reports identity, not equality
func sameRecord(a, b Record) bool {
	if a == nil || b == nil {
		return false
	}
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}
