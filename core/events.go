package core

import (
	"context"
	"time"
)

// Event topics.
const (
	EventAccountCreated         = "account.created"
	EventAccountUpdated         = "account.updated"
	EventAccountDeleted         = "account.deleted"
	EventRoleChanged            = "account.role_changed"
	EventRatingChanged          = "rating.changed"
	EventComplaintFiled         = "complaint.filed"
	EventComplaintStatusChanged = "complaint.status_changed"
	EventComplaintDeleted       = "complaint.deleted"
	EventNoteAdded              = "note.added"
	EventNoteUpdated            = "note.updated"
	EventNoteDeleted            = "note.deleted"
)

// Event is an audit record of an applied mutation.
// Complaint events never carry the complaint's author.
type Event struct {
	Type     string                 `json:"type"`
	Time     time.Time              `json:"time"`
	ActorID  string                 `json:"actor_id,omitempty"`
	TargetID string                 `json:"target_id,omitempty"`
	Data     map[string]interface{} `json:"data,omitempty"`
}

// EventPublisher publishes events after a mutation has been committed.
// Publishing is best-effort: a failure never rolls the mutation back.
type EventPublisher interface {
	Publish(ctx context.Context, evt Event) error
}

type nopPublisher struct{}

func NewNopPublisher() EventPublisher { return &nopPublisher{} }

func (*nopPublisher) Publish(context.Context, Event) error { return nil }
