// Package access computes effective permission levels for users over
// documents, annotations, comments, chats, and groups. Levels combine
// explicit grants (to the user or any of their groups), ownership links,
// creator rights, visibility flags, and read-capped inheritance from
// parent resources.
package access

type Level string

type ResourceType string

const (
	LevelNone  Level = "none"
	LevelRead  Level = "read"
	LevelWrite Level = "write"
	LevelAdmin Level = "admin"
)

const (
	TypeDocument   ResourceType = "document"
	TypeAnnotation ResourceType = "annotation"
	TypeComment    ResourceType = "comment"
	TypeChat       ResourceType = "chat"
	TypeGroup      ResourceType = "group"
)

// User-document link roles.
const (
	RoleOwner  = "owner"
	RoleViewer = "viewer"
)

// Annotation, comment, and chat visibility values.
const (
	VisibilityPrivate = "private"
	VisibilityPublic  = "public"
)

// Grant principal kinds.
const (
	PrincipalUser  = "user"
	PrincipalGroup = "group"
)

// rank positions a level in the total order none < read < write < admin.
// Unknown values rank as none.
func (l Level) rank() int {
	switch l {
	case LevelRead:
		return 1
	case LevelWrite:
		return 2
	case LevelAdmin:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether l grants at least the required level.
func (l Level) AtLeast(required Level) bool {
	return l.rank() >= required.rank()
}

// MaxLevel returns the higher of two levels.
func MaxLevel(a, b Level) Level {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

// ParseLevel maps a stored grant value onto a known level; anything
// unrecognized degrades to none.
func ParseLevel(s string) Level {
	switch Level(s) {
	case LevelRead, LevelWrite, LevelAdmin:
		return Level(s)
	default:
		return LevelNone
	}
}

// ValidResourceType reports whether s names a governed resource type.
func ValidResourceType(s string) bool {
	switch ResourceType(s) {
	case TypeDocument, TypeAnnotation, TypeComment, TypeChat, TypeGroup:
		return true
	default:
		return false
	}
}

// parentType returns the resource type a child inherits read access
// from. Documents and groups have no parent.
func parentType(typ ResourceType) (ResourceType, bool) {
	switch typ {
	case TypeComment:
		return TypeAnnotation, true
	case TypeAnnotation:
		return TypeDocument, true
	case TypeChat:
		return TypeDocument, true
	default:
		return "", false
	}
}
