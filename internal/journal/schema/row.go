package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"time"
)

// TimeLayout is the fixed-width text form of timestamps. Values in this
// layout sort lexicographically in time order.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// Row is the storage envelope shared by the local store and remote stores.
type Row struct {
	Kind      Kind            `json:"kind"`
	ID        string          `json:"id"`
	ParentID  string          `json:"parent_id,omitempty"`
	SortOrder int             `json:"sort_order"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	IsDeleted bool            `json:"is_deleted"`
	Payload   json.RawMessage `json:"payload"`
}

// Stamp normalizes t to the precision stored for timestamps.
func Stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// After returns now, or the smallest stamp strictly after prev when now
// does not move past it. Keeps updated_at increasing per record.
func After(now, prev time.Time) time.Time {
	now = Stamp(now)
	if !now.After(prev) {
		return Stamp(prev).Add(time.Microsecond)
	}
	return now
}

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return Stamp(t).Format(TimeLayout)
}

// ParseTime parses a value produced by FormatTime. RFC 3339 is accepted too.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
	}
	return Stamp(t), nil
}

// Encode converts an entity into a Row.
func Encode(e Entity) (*Row, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", e.Kind(), err)
	}
	m := e.Metadata()
	row := &Row{
		Kind:      e.Kind(),
		ID:        m.ID,
		ParentID:  e.ParentID(),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
		IsDeleted: m.IsDeleted,
		Payload:   payload,
	}
	if o, ok := e.(Ordered); ok {
		row.SortOrder = o.SortOrder()
	}
	return row, nil
}

// Decode fills e from row. The row's kind must match e's.
func Decode(row *Row, e Entity) error {
	if row.Kind != e.Kind() {
		return fmt.Errorf("cannot decode %s row into %s", row.Kind, e.Kind())
	}
	if len(row.Payload) > 0 {
		if err := json.Unmarshal(row.Payload, e); err != nil {
			return fmt.Errorf("failed to unmarshal %s %s: %w", row.Kind, row.ID, err)
		}
	}
	*e.Metadata() = Meta{
		ID:        row.ID,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
		IsDeleted: row.IsDeleted,
	}
	if o, ok := e.(Ordered); ok {
		o.SetSortOrder(row.SortOrder)
	}
	return nil
}

// Validate checks the envelope fields.
func (r *Row) Validate() error {
	if !r.Kind.Valid() {
		return errUnknownKind(r.Kind)
	}
	if r.ID == "" {
		return fmt.Errorf("id is required")
	}
	if r.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	if r.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	if r.Kind.Parent() != "" && r.ParentID == "" {
		return fmt.Errorf("%s %s has no parent", r.Kind, r.ID)
	}
	return nil
}

// Clone returns a deep copy of r.
func (r *Row) Clone() *Row {
	c := *r
	c.Payload = append(json.RawMessage(nil), r.Payload...)
	return &c
}

// Tombstone marks r deleted at the given stamp.
func (r *Row) Tombstone(at time.Time) {
	r.IsDeleted = true
	r.UpdatedAt = at
}

// SameContent reports whether r and o describe the same record state.
// Payloads are compared as JSON values, so key order and whitespace
// introduced by a store do not matter.
func (r *Row) SameContent(o *Row) bool {
	if r.Kind != o.Kind || r.ID != o.ID || r.ParentID != o.ParentID ||
		r.SortOrder != o.SortOrder || r.IsDeleted != o.IsDeleted ||
		!r.CreatedAt.Equal(o.CreatedAt) || !r.UpdatedAt.Equal(o.UpdatedAt) {
		return false
	}
	if bytes.Equal(r.Payload, o.Payload) {
		return true
	}
	var a, b any
	if json.Unmarshal(r.Payload, &a) != nil || json.Unmarshal(o.Payload, &b) != nil {
		return false
	}
	return reflect.DeepEqual(a, b)
}

func errUnknownKind(k Kind) error {
	return fmt.Errorf("unknown kind %q", k)
}
