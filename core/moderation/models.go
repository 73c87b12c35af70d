package moderation

import (
	"time"

	"github.com/trezcool/classboard/core"
	"github.com/trezcool/classboard/core/policy"
)

type Status string

// Complaint statuses. The set is flat: any status may follow any other.
const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
)

var Statuses = []Status{StatusOpen, StatusInProgress, StatusResolved, StatusClosed}

func (s Status) Valid() bool {
	for _, st := range Statuses {
		if s == st {
			return true
		}
	}
	return false
}

// Complaint is an anonymous report about a classmate. AuthorID is stored for authorization only and
// leaves this package through ComplaintView, which hides it from everyone but the owner.
type Complaint struct {
	ID          string
	Title       string
	Description string
	AuthorID    string
	TargetID    string
	ClassGroup  string // the target's class at filing time
	Status      Status
	CreatedAt   time.Time // UTC
	UpdatedAt   time.Time // UTC
}

func (c Complaint) target() policy.Target {
	return policy.Target{AccountID: c.TargetID, ClassGroup: c.ClassGroup, AuthorID: c.AuthorID}
}

// ComplaintView is the only shape a Complaint is returned in.
type ComplaintView struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	AuthorID    *string   `json:"author_id,omitempty"`
	TargetID    string    `json:"target_id"`
	ClassGroup  string    `json:"class_group"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ViewComplaint shapes c for p. The author is only revealed to the owner.
func ViewComplaint(p policy.Principal, c Complaint) ComplaintView {
	v := ComplaintView{
		ID:          c.ID,
		Title:       c.Title,
		Description: c.Description,
		TargetID:    c.TargetID,
		ClassGroup:  c.ClassGroup,
		Status:      c.Status,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
	if p.Role == policy.RoleOwner {
		author := c.AuthorID
		v.AuthorID = &author
	}
	return v
}

// Note is an attributed observation a helper records about a classmate.
type Note struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	TargetID   string    `json:"target_id"`
	ClassGroup string    `json:"class_group"` // the target's class when the note was added
	CreatedAt  time.Time `json:"created_at"`  // UTC
	UpdatedAt  time.Time `json:"updated_at"`  // UTC
}

func (n Note) target() policy.Target {
	return policy.Target{AccountID: n.TargetID, ClassGroup: n.ClassGroup, AuthorID: n.AuthorID}
}

type NewComplaint struct {
	TargetID    string `json:"target_id" validate:"required"`
	Title       string `json:"title" validate:"required,notblank,max=200"`
	Description string `json:"description" validate:"max=5000"`
}

func (nc *NewComplaint) clean() {
	nc.TargetID = core.CleanString(nc.TargetID)
	nc.Title = core.CleanString(nc.Title)
}

type NewNote struct {
	TargetID string `json:"target_id" validate:"required"`
	Title    string `json:"title" validate:"required,notblank,max=200"`
	Content  string `json:"content" validate:"max=5000"`
}

func (nn *NewNote) clean() {
	nn.TargetID = core.CleanString(nn.TargetID)
	nn.Title = core.CleanString(nn.Title)
}

// UpdateNote defines what may change on a Note. nil fields are left untouched.
type UpdateNote struct {
	Title   *string `json:"title" validate:"omitempty,notblank,max=200"`
	Content *string `json:"content" validate:"omitempty,max=5000"`
}

func (un *UpdateNote) clean() {
	if un.Title != nil {
		title := core.CleanString(*un.Title)
		un.Title = &title
	}
}

type UpdateStatus struct {
	Status Status `json:"status" validate:"required,status"`
}

// ComplaintFilter narrows complaint listings. AuthorID is never bound from a request:
// ListComplaintsFor sets it for principals that may only see their own complaints.
type ComplaintFilter struct {
	ClassGroup string `query:"class"`
	AuthorID   string
	TargetID   string `query:"target_id"`
	Status     Status `query:"status"`
}

type NoteFilter struct {
	ClassGroup string `query:"class"`
	AuthorID   string `query:"author_id"`
	TargetID   string `query:"target_id"`
}
