package account

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/classboard/core"
	"github.com/trezcool/classboard/core/policy"
)

// Rating bounds. Every rating ever persisted lies in [MinRating, MaxRating].
const (
	MinRating = 0
	MaxRating = 500
)

type Role = policy.Role

// Roles
const (
	RoleOwner  = policy.RoleOwner
	RoleAdmin  = policy.RoleAdmin
	RoleHelper = policy.RoleHelper
	RoleUser   = policy.RoleUser
)

// RoleInfo is the display shape returned by the roles listing.
type RoleInfo struct {
	Name  string `json:"name"`
	Value Role   `json:"value"`
}

var RoleInfos = []RoleInfo{
	{Name: "Owner", Value: RoleOwner},
	{Name: "Admin", Value: RoleAdmin},
	{Name: "Helper", Value: RoleHelper},
	{Name: "User", Value: RoleUser},
}

type Account struct {
	ID           string    `json:"id"`
	Login        string    `json:"login"`
	PasswordHash []byte    `json:"-"`
	FullName     string    `json:"full_name"`
	Role         Role      `json:"role"`
	ClassGroup   *string   `json:"class_group"`
	Rating       *int      `json:"rating"`     // set iff Role == user
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (a *Account) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	a.PasswordHash = hash
	return nil
}

// CheckPassword compares pwd with the stored hash in constant time.
func (a *Account) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(a.PasswordHash, []byte(pwd))
}

func (a Account) Class() string {
	if a.ClassGroup == nil {
		return ""
	}
	return *a.ClassGroup
}

func (a Account) RatingValue() int {
	if a.Rating == nil {
		return 0
	}
	return *a.Rating
}

func (a Account) IsOwner() bool { return a.Role == RoleOwner }

// Stripped returns a copy without the password hash. Every account leaving this package goes through it.
func (a Account) Stripped() Account {
	a.PasswordHash = nil
	return a
}

func (a Account) Principal() policy.Principal {
	return policy.Principal{ID: a.ID, Login: a.Login, Role: a.Role, ClassGroup: a.Class()}
}

func (a Account) Target() policy.Target {
	return policy.Target{AccountID: a.ID, Role: a.Role, ClassGroup: a.Class()}
}

// checkInvariants guards every write to the repository.
func (a Account) checkInvariants() error {
	if !a.Role.Valid() {
		return core.NewInvalidRequestError("unknown role")
	}
	if a.Role == RoleUser {
		if a.Rating == nil || *a.Rating < MinRating || *a.Rating > MaxRating {
			return core.NewInvalidRequestError("user rating out of range")
		}
	} else if a.Rating != nil {
		return core.NewInvalidRequestError("only users carry a rating")
	}
	if a.Role != RoleOwner && a.Class() == "" {
		return core.NewInvalidRequestError("class group is required")
	}
	return nil
}

// RatingChange records one applied rating delta.
type RatingChange struct {
	TargetID          string `json:"target_id"`
	Delta             int    `json:"delta"`
	ActingPrincipalID string `json:"acting_principal_id"`
	PreviousRating    int    `json:"previous_rating"`
	ResultingRating   int    `json:"resulting_rating"`
}

// NewAccount contains information needed to create a new Account.
type NewAccount struct {
	Login           string `json:"login" validate:"required,max=64,login"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"omitempty,eqfield=Password"`
	FullName        string `json:"full_name" validate:"required,notblank,max=128"`
	Role            Role   `json:"role" validate:"required,role"`
	ClassGroup      string `json:"class_group" validate:"max=64"`
}

func (na *NewAccount) clean() {
	na.FullName = core.CleanString(na.FullName)
	na.ClassGroup = core.CleanString(na.ClassGroup)
}

// UpdateAccount defines what information may be provided to modify an existing Account.
// nil fields are left untouched.
type UpdateAccount struct {
	FullName   *string `json:"full_name" validate:"omitempty,notblank,max=128"`
	ClassGroup *string `json:"class_group" validate:"omitempty,notblank,max=64"`
}

func (ua *UpdateAccount) clean() {
	if ua.FullName != nil {
		name := core.CleanString(*ua.FullName)
		ua.FullName = &name
	}
	if ua.ClassGroup != nil {
		class := core.CleanString(*ua.ClassGroup)
		ua.ClassGroup = &class
	}
}

func (ua UpdateAccount) IsEmpty() bool {
	return ua.FullName == nil && ua.ClassGroup == nil
}

type QueryFilter struct {
	Search     string   `query:"search"`
	Roles      []string `query:"role"`
	ClassGroup string   `query:"class"`
}

func (qf QueryFilter) IsEmpty() bool {
	return qf.Search == "" && len(qf.Roles) == 0 && qf.ClassGroup == ""
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.ClassGroup = core.CleanString(qf.ClassGroup)
}

// ClampRating returns old+delta bounded to [MinRating, MaxRating].
// old must already be within bounds; delta is compared before adding so it never overflows.
func ClampRating(old, delta int) int {
	if delta > MaxRating-old {
		return MaxRating
	}
	if delta < MinRating-old {
		return MinRating
	}
	return old + delta
}
