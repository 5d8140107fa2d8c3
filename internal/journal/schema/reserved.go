package schema

import "github.com/google/uuid"

// UncategorizedTitle is the title of the group that holds tasks without one.
const UncategorizedTitle = "uncategorized"

var journalNamespace = uuid.MustParse("9b3f6c52-1f7e-4d0c-a86e-3c5d2f0e7a41")

// Reserved records use name-based ids so that devices bootstrapping
// offline create the same records and converge on sync.
var (
	UncategorizedGroupID = uuid.NewSHA1(journalNamespace, []byte("group/uncategorized")).String()
	FreeNoteID           = uuid.NewSHA1(journalNamespace, []byte("note/free")).String()
)

// IsReserved reports whether the record may not be deleted.
func IsReserved(k Kind, id string) bool {
	switch k {
	case KindGroup:
		return id == UncategorizedGroupID
	case KindNote:
		return id == FreeNoteID
	}
	return false
}
