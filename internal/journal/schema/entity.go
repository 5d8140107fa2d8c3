package schema

import (
	"time"

	"github.com/google/uuid"
)

// AppendOrder asks for a new ordered record to be placed after its siblings.
const AppendOrder = -1

// Meta holds the attributes shared by every kind. It is stored in Row
// columns, never in the JSON payload.
type Meta struct {
	ID        string    `json:"-"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
	IsDeleted bool      `json:"-"`
}

// Metadata returns m so that embedding types satisfy Entity.
func (m *Meta) Metadata() *Meta {
	return m
}

// Entity is implemented by pointers to the six record types.
type Entity interface {
	Metadata() *Meta
	Kind() Kind
	// ParentID returns the id of the owning record, or "" for roots.
	ParentID() string
	Validate() error
}

// Ordered is implemented by entities with a display order.
type Ordered interface {
	Entity
	SortOrder() int
	SetSortOrder(int)
}

// Defaulter is implemented by entities that fill omitted fields before saving.
type Defaulter interface {
	SetDefaults()
}

// NewID returns a fresh random record id.
func NewID() string {
	return uuid.NewString()
}

// New returns an empty entity of kind k.
func New(k Kind) (Entity, error) {
	switch k {
	case KindGroup:
		return &Group{}, nil
	case KindTask:
		return &Task{}, nil
	case KindMeasure:
		return &Measure{}, nil
	case KindMemo:
		return &Memo{}, nil
	case KindNote:
		return &Note{}, nil
	case KindTarget:
		return &Target{}, nil
	}
	return nil, errUnknownKind(k)
}
