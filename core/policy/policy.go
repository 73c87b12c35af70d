// Package policy is the single authorization decision point. Every entry point asks Can/Authorize;
// the capability matrix below is the only place role capabilities are written down.
package policy

import "github.com/trezcool/classboard/core"

// Roles
const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleHelper Role = "helper"
	RoleUser   Role = "user"
)

// Roles lists every assignable role, highest authority first.
var Roles = []Role{RoleOwner, RoleAdmin, RoleHelper, RoleUser}

type Role string

func (r Role) Valid() bool {
	for _, role := range Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Principal is the authenticated identity reconstructed from a validated session.
type Principal struct {
	ID         string `json:"id"`
	Login      string `json:"login"`
	Role       Role   `json:"role"`
	ClassGroup string `json:"class_group,omitempty"`
}

type Action string

const (
	ReadOwnProfile       Action = "read-own-profile"
	ReadClassmateProfile Action = "read-classmate-profile"
	ReadAllUsers         Action = "read-all-users"
	CreateAccount        Action = "create-account"
	DeleteAccount        Action = "delete-account"
	SetRating            Action = "set-rating"
	SetRole              Action = "set-role"
	SetClass             Action = "set-class"
	UpdateAccount        Action = "update-account"
	FileComplaint        Action = "file-complaint"
	ReadComplaint        Action = "read-complaint"
	UpdateComplaint      Action = "update-complaint"
	DeleteComplaint      Action = "delete-complaint"
	AddNote              Action = "add-note"
	ReadNote             Action = "read-note"
	UpdateNote           Action = "update-note"
	DeleteNote           Action = "delete-note"
)

// Target describes what an action is aimed at.
// For account actions it is the account itself (or the account to be created);
// for complaints and notes it is the record's target account plus the record's author.
type Target struct {
	AccountID  string
	Role       Role
	ClassGroup string
	AuthorID   string
	NewRole    Role // set-role only
}

// Scope is the relationship a principal must have with the target.
type Scope int

const (
	ScopeNone             Scope = iota
	ScopeAny                    // anything
	ScopeAnyNonOwner            // any target that is not the owner
	ScopeAnyUser                // any target with role user
	ScopeSelf                   // the principal's own account
	ScopeOwnClass               // targets in the principal's class
	ScopeOwnClassUser           // role-user targets in the principal's class
	ScopeOwnClassPeerUser       // role-user targets in the principal's class, other than the principal
	ScopeAuthor                 // records authored by the principal
)

// capabilities is the capability matrix: action -> role -> scope. Missing cells are ScopeNone.
var capabilities = map[Action]map[Role]Scope{
	ReadOwnProfile: {
		RoleOwner: ScopeSelf, RoleAdmin: ScopeSelf, RoleHelper: ScopeSelf, RoleUser: ScopeSelf,
	},
	ReadClassmateProfile: {
		RoleOwner: ScopeAny, RoleAdmin: ScopeOwnClass, RoleHelper: ScopeOwnClass, RoleUser: ScopeOwnClass,
	},
	ReadAllUsers: {
		RoleOwner: ScopeAny,
	},
	CreateAccount: {
		RoleOwner: ScopeAnyNonOwner, RoleAdmin: ScopeOwnClassUser,
	},
	DeleteAccount: {
		RoleOwner: ScopeAnyNonOwner, RoleAdmin: ScopeOwnClassUser,
	},
	SetRating: {
		RoleOwner: ScopeAnyUser, RoleAdmin: ScopeOwnClassUser,
	},
	SetRole: {
		RoleOwner: ScopeAnyNonOwner,
	},
	SetClass: {
		RoleOwner: ScopeAnyNonOwner,
	},
	UpdateAccount: {
		RoleOwner: ScopeAnyNonOwner, RoleAdmin: ScopeOwnClassUser,
	},
	FileComplaint: {
		RoleHelper: ScopeOwnClassPeerUser, RoleUser: ScopeOwnClassPeerUser,
	},
	ReadComplaint: {
		RoleOwner: ScopeAny, RoleAdmin: ScopeOwnClass, RoleHelper: ScopeAuthor, RoleUser: ScopeAuthor,
	},
	UpdateComplaint: {
		RoleOwner: ScopeAny, RoleAdmin: ScopeOwnClass,
	},
	DeleteComplaint: {
		RoleOwner: ScopeAny, RoleAdmin: ScopeOwnClass,
	},
	AddNote: {
		RoleHelper: ScopeOwnClassPeerUser,
	},
	ReadNote: {
		RoleOwner: ScopeAny, RoleAdmin: ScopeOwnClass, RoleHelper: ScopeOwnClass,
	},
	UpdateNote: {
		RoleOwner: ScopeAny, RoleHelper: ScopeAuthor,
	},
	DeleteNote: {
		RoleOwner: ScopeAny, RoleAdmin: ScopeOwnClass,
	},
}

// ScopeOf returns the matrix cell for role and action.
func ScopeOf(role Role, action Action) Scope {
	return capabilities[action][role]
}

// Allows reports whether role may perform action on at least some target.
func Allows(role Role, action Action) bool {
	return ScopeOf(role, action) != ScopeNone
}

// Can decides whether p may perform action on t.
func Can(p Principal, action Action, t Target) bool {
	if p.ID == "" || !p.Role.Valid() {
		return false
	}

	switch action {
	case CreateAccount:
		// nobody creates owners; t.Role is the role of the account being created
		if !t.Role.Valid() || t.Role == RoleOwner {
			return false
		}
	case SetRole:
		if !t.NewRole.Valid() || t.NewRole == RoleOwner {
			return false
		}
	}

	switch ScopeOf(p.Role, action) {
	case ScopeAny:
		return true
	case ScopeAnyNonOwner:
		return t.Role != RoleOwner
	case ScopeAnyUser:
		return t.Role == RoleUser
	case ScopeSelf:
		return t.AccountID != "" && t.AccountID == p.ID
	case ScopeOwnClass:
		return sameClass(p, t)
	case ScopeOwnClassUser:
		return sameClass(p, t) && t.Role == RoleUser
	case ScopeOwnClassPeerUser:
		return sameClass(p, t) && t.Role == RoleUser && t.AccountID != p.ID
	case ScopeAuthor:
		return t.AuthorID != "" && t.AuthorID == p.ID
	default:
		return false
	}
}

// Authorize is Can returning core.ErrForbidden on deny.
func Authorize(p Principal, action Action, t Target) error {
	if Can(p, action, t) {
		return nil
	}
	return core.ErrForbidden
}

func sameClass(p Principal, t Target) bool {
	return p.ClassGroup != "" && t.ClassGroup == p.ClassGroup
}
