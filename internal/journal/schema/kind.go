package schema

import "fmt"

// Kind names a record kind.
type Kind string

const (
	KindGroup   Kind = "group"
	KindTask    Kind = "task"
	KindMeasure Kind = "measure"
	KindMemo    Kind = "memo"
	KindNote    Kind = "note"
	KindTarget  Kind = "target"
)

// Kinds lists every kind with parents before their children.
// Locks are always acquired in this order.
var Kinds = []Kind{KindGroup, KindTask, KindMeasure, KindMemo, KindNote, KindTarget}

var kindParents = map[Kind]Kind{
	KindTask:    KindGroup,
	KindMeasure: KindTask,
	KindMemo:    KindMeasure,
}

var orderedKinds = map[Kind]bool{
	KindGroup:   true,
	KindTask:    true,
	KindMeasure: true,
}

// ParseKind converts a string to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown kind %q", s)
	}
	return k, nil
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k.Rank() >= 0
}

// Rank returns the position of k in Kinds, or -1.
func (k Kind) Rank() int {
	for i, kk := range Kinds {
		if kk == k {
			return i
		}
	}
	return -1
}

func (k Kind) String() string {
	return string(k)
}

// Parent returns the kind a record of kind k belongs to, or "" for roots.
func (k Kind) Parent() Kind {
	return kindParents[k]
}

// Children returns the kinds whose records are tombstoned with a k record.
func (k Kind) Children() []Kind {
	var out []Kind
	for _, kk := range Kinds {
		if kindParents[kk] == k {
			out = append(out, kk)
		}
	}
	return out
}

// Lineage returns k followed by all of its descendants, parents first.
func (k Kind) Lineage() []Kind {
	out := []Kind{k}
	for i := 0; i < len(out); i++ {
		out = append(out, out[i].Children()...)
	}
	return out
}

// Ordered reports whether records of kind k carry a gap-free display order
// within their sibling set.
func (k Kind) Ordered() bool {
	return orderedKinds[k]
}

// Roots returns the kinds without a parent, in Kinds order.
func Roots() []Kind {
	var out []Kind
	for _, k := range Kinds {
		if k.Parent() == "" {
			out = append(out, k)
		}
	}
	return out
}
