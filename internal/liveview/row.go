package liveview

import (
	"fmt"
	"time"
)

// DefaultKeyField is the primary-key field assumed when a view is not
// configured with an explicit one.
const DefaultKeyField = "id"

// Row is one record of a remote table, an opaque field-to-value mapping.
// The reconciler assumes nothing about a row beyond its primary-key field
// and whatever fields the view's filter and ordering reference.
type Row map[string]any

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// EventKind discriminates the three row-level change notifications.
type EventKind string

const (
	EventInsert EventKind = "INSERT"
	EventUpdate EventKind = "UPDATE"
	EventDelete EventKind = "DELETE"
)

// ChangeEvent is a notification that a row changed in the backend.
// Insert and Update carry the new row; Delete carries the old row, which
// is only consulted for its primary key.
type ChangeEvent struct {
	Table  string    `json:"table"`
	Kind   EventKind `json:"kind"`
	Row    Row       `json:"row,omitempty"`
	OldRow Row       `json:"old_row,omitempty"`
}

// keyValue extracts the primary-key value the event identifies a row by.
// Delete events are keyed by the old row; everything else by the new row.
func (e ChangeEvent) keyValue(keyField string) (any, bool) {
	source := e.Row
	if e.Kind == EventDelete {
		source = e.OldRow
	}
	if source == nil {
		return nil, false
	}
	key, ok := source[keyField]
	if !ok || key == nil {
		return nil, false
	}
	return key, true
}

// compareValues orders two dynamically-typed field values. It understands
// the value kinds a JSON decoder or pgx row scan produces: numbers,
// strings, booleans, and timestamps. The second return is false when the
// two values are not comparable.
func compareValues(a, b any) (int, bool) {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		default:
			return 0, true
		}
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		default:
			return 1, true
		}
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		switch {
		case av.Before(bv):
			return -1, true
		case av.After(bv):
			return 1, true
		default:
			return 0, true
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// keysEqual compares two primary-key values, tolerating the numeric type
// drift between a fetched row (pgx int64) and a decoded event (JSON
// float64).
func keysEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	if c, ok := compareValues(a, b); ok {
		return c == 0
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}
