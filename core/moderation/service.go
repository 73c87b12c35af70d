package moderation

import (
	"context"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/classboard/core"
	"github.com/trezcool/classboard/core/account"
	"github.com/trezcool/classboard/core/policy"
)

var (
	// errors
	ErrComplaintNotFound = core.NewNotFoundError("complaint not found")
	ErrNoteNotFound      = core.NewNotFoundError("note not found")

	statusTag  = "status"
	statusText = "unknown status"
)

type (
	Repository interface {
		CreateComplaint(ctx context.Context, c Complaint) (Complaint, error)
		GetComplaint(ctx context.Context, id string) (Complaint, error)
		// QueryComplaints applies AND operation on the non-empty ComplaintFilter fields, newest first.
		QueryComplaints(ctx context.Context, filter ComplaintFilter) ([]Complaint, error)
		MutateComplaint(ctx context.Context, id string, mutate func(c *Complaint) error) (Complaint, error)
		DeleteComplaint(ctx context.Context, id string, check func(c Complaint) error) error

		CreateNote(ctx context.Context, n Note) (Note, error)
		GetNote(ctx context.Context, id string) (Note, error)
		// QueryNotes applies AND operation on the non-empty NoteFilter fields, newest first.
		QueryNotes(ctx context.Context, filter NoteFilter) ([]Note, error)
		MutateNote(ctx context.Context, id string, mutate func(n *Note) error) (Note, error)
		DeleteNote(ctx context.Context, id string, check func(n Note) error) error
	}

	// AccountFinder resolves complaint and note targets. account.Repository satisfies it.
	AccountFinder interface {
		GetAccount(ctx context.Context, id string) (account.Account, error)
	}

	// Service is the Moderation Register.
	Service struct {
		repo       Repository
		accounts   AccountFinder
		validate   *validator.Validate
		translator ut.Translator
		events     core.EventPublisher
		logger     core.Logger
		nowFunc    func() time.Time
	}
)

func NewService(
	repo Repository,
	accounts AccountFinder,
	validate *validator.Validate,
	translator ut.Translator,
	events core.EventPublisher,
	logger core.Logger,
) (*Service, error) {
	err := vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(accounts, "accounts"),
		vala.IsNotNil(validate, "validate"),
		vala.IsNotNil(translator, "translator"),
		vala.IsNotNil(events, "events"),
		vala.IsNotNil(logger, "logger"),
	).Check()
	if err != nil {
		return nil, errors.Wrap(err, "moderation.NewService")
	}

	_ = validate.RegisterValidation(statusTag, func(fl validator.FieldLevel) bool {
		return Status(fl.Field().String()).Valid()
	})
	core.RegisterCustomTranslation(validate, translator, statusTag, statusText)

	return &Service{
		repo:       repo,
		accounts:   accounts,
		validate:   validate,
		translator: translator,
		events:     events,
		logger:     logger,
		nowFunc:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (svc *Service) validateStruct(s interface{}) error {
	if err := svc.validate.Struct(s); err != nil {
		return core.TranslateValidationErrors(err, svc.translator)
	}
	return nil
}

func (svc *Service) publish(ctx context.Context, evt core.Event) {
	evt.Time = svc.nowFunc()
	if err := svc.events.Publish(ctx, evt); err != nil {
		svc.logger.Error("moderation: publish "+evt.Type, err)
	}
}

// getTarget resolves the account a complaint or note is about. An unknown target is InvalidTarget.
func (svc *Service) getTarget(ctx context.Context, id string) (account.Account, error) {
	acc, err := svc.accounts.GetAccount(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return account.Account{}, core.NewInvalidTargetError("target account not found")
		}
		return account.Account{}, err
	}
	return acc, nil
}

// Complaints

// FileComplaint records an anonymous complaint by p about a classmate with role user.
func (svc *Service) FileComplaint(ctx context.Context, p policy.Principal, nc NewComplaint) (ComplaintView, error) {
	nc.clean()
	if err := svc.validateStruct(nc); err != nil {
		return ComplaintView{}, err
	}
	if !policy.Allows(p.Role, policy.FileComplaint) {
		return ComplaintView{}, core.ErrForbidden
	}
	target, err := svc.getTarget(ctx, nc.TargetID)
	if err != nil {
		return ComplaintView{}, err
	}
	if err := policy.Authorize(p, policy.FileComplaint, target.Target()); err != nil {
		return ComplaintView{}, err
	}

	now := svc.nowFunc()
	c, err := svc.repo.CreateComplaint(ctx, Complaint{
		ID:          uuid.NewString(),
		Title:       nc.Title,
		Description: nc.Description,
		AuthorID:    p.ID,
		TargetID:    target.ID,
		ClassGroup:  target.Class(),
		Status:      StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return ComplaintView{}, err
	}

	// no actor: complaint events never identify the author
	svc.publish(ctx, core.Event{
		Type:     core.EventComplaintFiled,
		TargetID: c.TargetID,
		Data:     map[string]interface{}{"complaint_id": c.ID, "class_group": c.ClassGroup},
	})
	return ViewComplaint(p, c), nil
}

// ListComplaintsFor returns the complaints p may read: all for the owner, the class for an admin,
// the principal's own complaints for helpers and users.
func (svc *Service) ListComplaintsFor(ctx context.Context, p policy.Principal, filter ComplaintFilter) ([]ComplaintView, error) {
	filter.AuthorID = ""
	switch policy.ScopeOf(p.Role, policy.ReadComplaint) {
	case policy.ScopeAny:
	case policy.ScopeOwnClass:
		filter.ClassGroup = p.ClassGroup
	case policy.ScopeAuthor:
		filter.AuthorID = p.ID
	default:
		return nil, core.ErrForbidden
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "status", Error: statusText})
	}

	complaints, err := svc.repo.QueryComplaints(ctx, filter)
	if err != nil {
		return nil, err
	}
	views := make([]ComplaintView, 0, len(complaints))
	for _, c := range complaints {
		if policy.Can(p, policy.ReadComplaint, c.target()) {
			views = append(views, ViewComplaint(p, c))
		}
	}
	return views, nil
}

func (svc *Service) GetComplaint(ctx context.Context, p policy.Principal, id string) (ComplaintView, error) {
	c, err := svc.repo.GetComplaint(ctx, id)
	if err != nil {
		return ComplaintView{}, err
	}
	if err := policy.Authorize(p, policy.ReadComplaint, c.target()); err != nil {
		return ComplaintView{}, err
	}
	return ViewComplaint(p, c), nil
}

func (svc *Service) UpdateComplaintStatus(ctx context.Context, p policy.Principal, id string, us UpdateStatus) (ComplaintView, error) {
	if err := svc.validateStruct(us); err != nil {
		return ComplaintView{}, err
	}

	var prev Status
	c, err := svc.repo.MutateComplaint(ctx, id, func(c *Complaint) error {
		if err := policy.Authorize(p, policy.UpdateComplaint, c.target()); err != nil {
			return err
		}
		prev = c.Status
		if c.Status != us.Status {
			c.Status = us.Status
			c.UpdatedAt = svc.nowFunc()
		}
		return nil
	})
	if err != nil {
		return ComplaintView{}, err
	}

	if prev != c.Status {
		svc.publish(ctx, core.Event{
			Type:     core.EventComplaintStatusChanged,
			ActorID:  p.ID,
			TargetID: c.TargetID,
			Data:     map[string]interface{}{"complaint_id": c.ID, "from": prev, "to": c.Status},
		})
	}
	return ViewComplaint(p, c), nil
}

// DeleteComplaint permanently removes a complaint.
func (svc *Service) DeleteComplaint(ctx context.Context, p policy.Principal, id string) error {
	var targetID string
	err := svc.repo.DeleteComplaint(ctx, id, func(c Complaint) error {
		targetID = c.TargetID
		return policy.Authorize(p, policy.DeleteComplaint, c.target())
	})
	if err != nil {
		return err
	}
	svc.publish(ctx, core.Event{
		Type:     core.EventComplaintDeleted,
		ActorID:  p.ID,
		TargetID: targetID,
		Data:     map[string]interface{}{"complaint_id": id},
	})
	return nil
}

// Notes

// AddNote records an attributed note by helper p about a classmate with role user.
func (svc *Service) AddNote(ctx context.Context, p policy.Principal, nn NewNote) (Note, error) {
	nn.clean()
	if err := svc.validateStruct(nn); err != nil {
		return Note{}, err
	}
	if !policy.Allows(p.Role, policy.AddNote) {
		return Note{}, core.ErrForbidden
	}
	target, err := svc.getTarget(ctx, nn.TargetID)
	if err != nil {
		return Note{}, err
	}
	if err := policy.Authorize(p, policy.AddNote, target.Target()); err != nil {
		return Note{}, err
	}
	author, err := svc.accounts.GetAccount(ctx, p.ID)
	if err != nil {
		return Note{}, errors.Wrap(err, "moderation: loading note author")
	}

	now := svc.nowFunc()
	n, err := svc.repo.CreateNote(ctx, Note{
		ID:         uuid.NewString(),
		Title:      nn.Title,
		Content:    nn.Content,
		AuthorID:   p.ID,
		AuthorName: author.FullName,
		TargetID:   target.ID,
		ClassGroup: target.Class(),
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return Note{}, err
	}

	svc.publish(ctx, core.Event{
		Type:     core.EventNoteAdded,
		ActorID:  p.ID,
		TargetID: n.TargetID,
		Data:     map[string]interface{}{"note_id": n.ID, "class_group": n.ClassGroup},
	})
	return n, nil
}

// ListNotesFor returns the notes p may read, optionally restricted to one target account.
func (svc *Service) ListNotesFor(ctx context.Context, p policy.Principal, filter NoteFilter) ([]Note, error) {
	switch policy.ScopeOf(p.Role, policy.ReadNote) {
	case policy.ScopeAny:
	case policy.ScopeOwnClass:
		filter.ClassGroup = p.ClassGroup
	default:
		return nil, core.ErrForbidden
	}

	notes, err := svc.repo.QueryNotes(ctx, filter)
	if err != nil {
		return nil, err
	}
	visible := make([]Note, 0, len(notes))
	for _, n := range notes {
		if policy.Can(p, policy.ReadNote, n.target()) {
			visible = append(visible, n)
		}
	}
	return visible, nil
}

func (svc *Service) GetNote(ctx context.Context, p policy.Principal, id string) (Note, error) {
	n, err := svc.repo.GetNote(ctx, id)
	if err != nil {
		return Note{}, err
	}
	if err := policy.Authorize(p, policy.ReadNote, n.target()); err != nil {
		return Note{}, err
	}
	return n, nil
}

func (svc *Service) UpdateNote(ctx context.Context, p policy.Principal, id string, un UpdateNote) (Note, error) {
	un.clean()
	if err := svc.validateStruct(un); err != nil {
		return Note{}, err
	}
	if un.Title == nil && un.Content == nil {
		return Note{}, core.NewInvalidRequestError("nothing to update")
	}

	n, err := svc.repo.MutateNote(ctx, id, func(n *Note) error {
		if err := policy.Authorize(p, policy.UpdateNote, n.target()); err != nil {
			return err
		}
		if un.Title != nil {
			n.Title = *un.Title
		}
		if un.Content != nil {
			n.Content = *un.Content
		}
		n.UpdatedAt = svc.nowFunc()
		return nil
	})
	if err != nil {
		return Note{}, err
	}

	svc.publish(ctx, core.Event{
		Type:     core.EventNoteUpdated,
		ActorID:  p.ID,
		TargetID: n.TargetID,
		Data:     map[string]interface{}{"note_id": n.ID},
	})
	return n, nil
}

// DeleteNote permanently removes a note.
func (svc *Service) DeleteNote(ctx context.Context, p policy.Principal, id string) error {
	var targetID string
	err := svc.repo.DeleteNote(ctx, id, func(n Note) error {
		targetID = n.TargetID
		return policy.Authorize(p, policy.DeleteNote, n.target())
	})
	if err != nil {
		return err
	}
	svc.publish(ctx, core.Event{
		Type:     core.EventNoteDeleted,
		ActorID:  p.ID,
		TargetID: targetID,
		Data:     map[string]interface{}{"note_id": id},
	})
	return nil
}
