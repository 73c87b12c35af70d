package account

import (
	"context"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/classboard/core"
	"github.com/trezcool/classboard/core/policy"
)

var (
	// errors
	ErrNotFound      = core.NewNotFoundError("account not found")
	ErrLoginExists   = core.NewConflictError("an account with this login already exists")
	ErrOwnerExists   = core.NewConflictError("an owner account already exists")
	ErrZeroDelta     = core.NewInvalidRequestError("rating delta must not be zero")
	ErrDeltaTooLarge = core.NewInvalidRequestError("rating delta exceeds the allowed bound")
	ErrNotRatable    = core.NewInvalidTargetError("only users carry a rating")
)

// Repository is the persistence collaborator of the Credential Store.
type Repository interface {
	CheckLoginUniqueness(ctx context.Context, login string) error
	CreateAccount(ctx context.Context, acc Account) (Account, error)
	GetAccount(ctx context.Context, id string) (Account, error)
	// GetAccountByLogin matches the login exactly (case-sensitive).
	GetAccountByLogin(ctx context.Context, login string) (Account, error)
	// QueryAccounts applies AND operation on available QueryFilter fields.
	// QueryFilter.Search does a case-insensitive match on one of Account.Login or Account.FullName.
	QueryAccounts(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Account, error)
	// MutateAccount loads the account, applies mutate and persists the result as one atomic step.
	// Nothing is persisted when mutate returns an error.
	MutateAccount(ctx context.Context, id string, mutate func(acc *Account) error) (Account, error)
	// DeleteAccount removes the account, and every complaint and note referencing it,
	// if check passes against the current state of the account.
	DeleteAccount(ctx context.Context, id string, check func(acc Account) error) error
}

// Service is the Credential Store: account lifecycle, roles and ratings.
type Service struct {
	repo          Repository
	validate      *validator.Validate
	translator    ut.Translator
	events        core.EventPublisher
	logger        core.Logger
	adminMaxDelta int
	nowFunc       func() time.Time
}

func NewService(
	repo Repository,
	validate *validator.Validate,
	translator ut.Translator,
	events core.EventPublisher,
	logger core.Logger,
	conf *core.Config,
) (*Service, error) {
	err := vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(validate, "validate"),
		vala.IsNotNil(translator, "translator"),
		vala.IsNotNil(events, "events"),
		vala.IsNotNil(logger, "logger"),
		vala.IsNotNil(conf, "conf"),
	).Check()
	if err != nil {
		return nil, errors.Wrap(err, "account.NewService")
	}

	RegisterValidators(validate, translator)
	return &Service{
		repo:          repo,
		validate:      validate,
		translator:    translator,
		events:        events,
		logger:        logger,
		adminMaxDelta: conf.Rating.AdminMaxDelta,
		nowFunc:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func (svc *Service) validateStruct(s interface{}) error {
	if err := svc.validate.Struct(s); err != nil {
		return core.TranslateValidationErrors(err, svc.translator)
	}
	return nil
}

// checkUniqueness fails with ErrLoginExists (Conflict). The repository enforces it again on insert.
func (svc *Service) checkUniqueness(ctx context.Context, login string) error {
	return svc.repo.CheckLoginUniqueness(ctx, login)
}

func (svc *Service) publish(ctx context.Context, evt core.Event) {
	evt.Time = svc.nowFunc()
	if err := svc.events.Publish(ctx, evt); err != nil {
		svc.logger.Error("account: publish "+evt.Type, err)
	}
}

// Create registers a new account on behalf of p.
func (svc *Service) Create(ctx context.Context, p policy.Principal, na NewAccount) (Account, error) {
	na.clean()
	if err := svc.validateStruct(na); err != nil {
		return Account{}, err
	}
	if err := policy.Authorize(p, policy.CreateAccount, policy.Target{Role: na.Role, ClassGroup: na.ClassGroup}); err != nil {
		return Account{}, err
	}
	if err := svc.checkUniqueness(ctx, na.Login); err != nil {
		return Account{}, err
	}

	acc, err := svc.newAccount(na)
	if err != nil {
		return Account{}, err
	}
	if acc, err = svc.repo.CreateAccount(ctx, acc); err != nil {
		return Account{}, err
	}

	svc.publish(ctx, core.Event{
		Type:     core.EventAccountCreated,
		ActorID:  p.ID,
		TargetID: acc.ID,
		Data:     map[string]interface{}{"role": acc.Role, "class_group": acc.Class()},
	})
	return acc.Stripped(), nil
}

func (svc *Service) newAccount(na NewAccount) (Account, error) {
	now := svc.nowFunc()
	acc := Account{
		ID:        uuid.NewString(),
		Login:     na.Login,
		FullName:  na.FullName,
		Role:      na.Role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if na.ClassGroup != "" {
		class := na.ClassGroup
		acc.ClassGroup = &class
	}
	if acc.Role == RoleUser {
		rating := MinRating
		acc.Rating = &rating
	}
	if err := acc.checkInvariants(); err != nil {
		return Account{}, err
	}
	if err := acc.SetPassword(na.Password); err != nil {
		return Account{}, errors.Wrap(err, "account.SetPassword")
	}
	return acc, nil
}

// Get returns the account with id if p may read it.
func (svc *Service) Get(ctx context.Context, p policy.Principal, id string) (Account, error) {
	acc, err := svc.repo.GetAccount(ctx, id)
	if err != nil {
		return Account{}, err
	}
	action := policy.ReadClassmateProfile
	if acc.ID == p.ID {
		action = policy.ReadOwnProfile
	}
	if err := policy.Authorize(p, action, acc.Target()); err != nil {
		return Account{}, err
	}
	return acc.Stripped(), nil
}

// Query lists accounts visible to p: everyone for the owner, the principal's class otherwise.
func (svc *Service) Query(ctx context.Context, p policy.Principal, filter QueryFilter, ordering ...core.DBOrdering) ([]Account, error) {
	filter.Clean()
	for _, r := range filter.Roles {
		if !Role(r).Valid() {
			return nil, core.NewValidationError(nil, core.FieldError{Field: "role", Error: roleText})
		}
	}

	if !policy.Can(p, policy.ReadAllUsers, policy.Target{}) {
		if p.ClassGroup == "" {
			acc, err := svc.Get(ctx, p, p.ID)
			if err != nil {
				return nil, err
			}
			return []Account{acc}, nil
		}
		filter.ClassGroup = p.ClassGroup
	}

	ordering = core.FilterOrderings(ordering, "login", "full_name", "role", "class_group", "rating", "created_at")
	accs, err := svc.repo.QueryAccounts(ctx, filter, ordering...)
	if err != nil {
		return nil, err
	}
	visible := make([]Account, 0, len(accs))
	for _, acc := range accs {
		action := policy.ReadClassmateProfile
		if acc.ID == p.ID {
			action = policy.ReadOwnProfile
		}
		if policy.Can(p, action, acc.Target()) {
			visible = append(visible, acc.Stripped())
		}
	}
	return visible, nil
}

// Update changes profile fields. Class moves are authorized separately from name changes.
func (svc *Service) Update(ctx context.Context, p policy.Principal, id string, ua UpdateAccount) (Account, error) {
	ua.clean()
	if err := svc.validateStruct(ua); err != nil {
		return Account{}, err
	}
	if ua.IsEmpty() {
		return Account{}, core.NewInvalidRequestError("nothing to update")
	}
	if ua.FullName != nil && *ua.FullName == "" {
		return Account{}, core.NewValidationError(nil, core.FieldError{Field: "full_name", Error: "this field cannot be blank"})
	}
	if ua.ClassGroup != nil && *ua.ClassGroup == "" {
		return Account{}, core.NewValidationError(nil, core.FieldError{Field: "class_group", Error: "this field cannot be blank"})
	}

	acc, err := svc.repo.MutateAccount(ctx, id, func(acc *Account) error {
		if err := policy.Authorize(p, policy.UpdateAccount, acc.Target()); err != nil {
			return err
		}
		if ua.FullName != nil {
			acc.FullName = *ua.FullName
		}
		if ua.ClassGroup != nil && *ua.ClassGroup != acc.Class() {
			if err := policy.Authorize(p, policy.SetClass, acc.Target()); err != nil {
				return err
			}
			class := *ua.ClassGroup
			acc.ClassGroup = &class
		}
		acc.UpdatedAt = svc.nowFunc()
		return acc.checkInvariants()
	})
	if err != nil {
		return Account{}, err
	}

	svc.publish(ctx, core.Event{
		Type:     core.EventAccountUpdated,
		ActorID:  p.ID,
		TargetID: acc.ID,
		Data:     map[string]interface{}{"full_name": acc.FullName, "class_group": acc.Class()},
	})
	return acc.Stripped(), nil
}

// SetRole moves a non-owner account to another non-owner role.
// Becoming a user starts the rating at 0; leaving the user role clears it.
func (svc *Service) SetRole(ctx context.Context, p policy.Principal, id string, role Role) (Account, error) {
	if !role.Valid() {
		return Account{}, core.NewValidationError(nil, core.FieldError{Field: "role", Error: roleText})
	}

	var prevRole Role
	acc, err := svc.repo.MutateAccount(ctx, id, func(acc *Account) error {
		t := acc.Target()
		t.NewRole = role
		if err := policy.Authorize(p, policy.SetRole, t); err != nil {
			return err
		}
		prevRole = acc.Role
		if acc.Role == role {
			return nil
		}
		acc.Role = role
		if role == RoleUser {
			rating := MinRating
			acc.Rating = &rating
		} else {
			acc.Rating = nil
		}
		acc.UpdatedAt = svc.nowFunc()
		return acc.checkInvariants()
	})
	if err != nil {
		return Account{}, err
	}

	if prevRole != role {
		svc.publish(ctx, core.Event{
			Type:     core.EventRoleChanged,
			ActorID:  p.ID,
			TargetID: acc.ID,
			Data:     map[string]interface{}{"from": prevRole, "to": role},
		})
	}
	return acc.Stripped(), nil
}

// Delete permanently removes an account. The owner can never be deleted.
func (svc *Service) Delete(ctx context.Context, p policy.Principal, id string) error {
	err := svc.repo.DeleteAccount(ctx, id, func(acc Account) error {
		return policy.Authorize(p, policy.DeleteAccount, acc.Target())
	})
	if err != nil {
		return err
	}
	svc.publish(ctx, core.Event{Type: core.EventAccountDeleted, ActorID: p.ID, TargetID: id})
	return nil
}

// ApplyRating is the Rating Ledger: it applies delta to a user's rating, clamping the result to
// [MinRating, MaxRating]. The read-modify-write runs inside Repository.MutateAccount, so concurrent
// deltas on one account are serialized and none is lost.
func (svc *Service) ApplyRating(ctx context.Context, p policy.Principal, id string, delta int) (Account, RatingChange, error) {
	if delta == 0 {
		return Account{}, RatingChange{}, ErrZeroDelta
	}
	if !policy.Allows(p.Role, policy.SetRating) {
		return Account{}, RatingChange{}, core.ErrForbidden
	}

	change := RatingChange{TargetID: id, Delta: delta, ActingPrincipalID: p.ID}
	acc, err := svc.repo.MutateAccount(ctx, id, func(acc *Account) error {
		if acc.Role != RoleUser {
			return ErrNotRatable
		}
		if err := policy.Authorize(p, policy.SetRating, acc.Target()); err != nil {
			return err
		}
		if p.Role == RoleAdmin && svc.adminMaxDelta > 0 && (delta > svc.adminMaxDelta || delta < -svc.adminMaxDelta) {
			return ErrDeltaTooLarge
		}

		change.PreviousRating = acc.RatingValue()
		change.ResultingRating = ClampRating(change.PreviousRating, delta)
		rating := change.ResultingRating
		acc.Rating = &rating
		acc.UpdatedAt = svc.nowFunc()
		return acc.checkInvariants()
	})
	if err != nil {
		return Account{}, RatingChange{}, err
	}

	svc.publish(ctx, core.Event{
		Type:     core.EventRatingChanged,
		ActorID:  p.ID,
		TargetID: acc.ID,
		Data: map[string]interface{}{
			"delta":            change.Delta,
			"previous_rating":  change.PreviousRating,
			"resulting_rating": change.ResultingRating,
		},
	})
	return acc.Stripped(), change, nil
}

// GetByLogin is used by the authenticator and the admin CLI. The returned account keeps its hash.
func (svc *Service) GetByLogin(ctx context.Context, login string) (Account, error) {
	return svc.repo.GetAccountByLogin(ctx, login)
}

// RecordLogin stamps LastLogin.
func (svc *Service) RecordLogin(ctx context.Context, id string) (Account, error) {
	return svc.repo.MutateAccount(ctx, id, func(acc *Account) error {
		acc.LastLogin = svc.nowFunc()
		return nil
	})
}

// ResetPassword sets a new password without a principal. Only reachable from the admin CLI.
func (svc *Service) ResetPassword(ctx context.Context, login, password string) error {
	acc, err := svc.repo.GetAccountByLogin(ctx, login)
	if err != nil {
		return err
	}
	if err := svc.validateStruct(resetPassword{Login: acc.Login, Password: password, FullName: acc.FullName}); err != nil {
		return err
	}
	_, err = svc.repo.MutateAccount(ctx, acc.ID, func(acc *Account) error {
		acc.UpdatedAt = svc.nowFunc()
		return errors.Wrap(acc.SetPassword(password), "account.SetPassword")
	})
	return err
}

// EnsureOwner creates the single owner account. Only reachable from the admin CLI.
func (svc *Service) EnsureOwner(ctx context.Context, login, password, fullName string) (Account, error) {
	owners, err := svc.repo.QueryAccounts(ctx, QueryFilter{Roles: []string{string(RoleOwner)}})
	if err != nil {
		return Account{}, err
	}
	if len(owners) > 0 {
		return Account{}, ErrOwnerExists
	}

	na := NewAccount{Login: login, Password: password, FullName: fullName, Role: RoleOwner}
	na.clean()
	if err := svc.validateStruct(na); err != nil {
		return Account{}, err
	}
	if err := svc.checkUniqueness(ctx, na.Login); err != nil {
		return Account{}, err
	}
	acc, err := svc.newAccount(na)
	if err != nil {
		return Account{}, err
	}
	if acc, err = svc.repo.CreateAccount(ctx, acc); err != nil {
		return Account{}, err
	}
	svc.publish(ctx, core.Event{Type: core.EventAccountCreated, TargetID: acc.ID, Data: map[string]interface{}{"role": acc.Role}})
	return acc.Stripped(), nil
}

