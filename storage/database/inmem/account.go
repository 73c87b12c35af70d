package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/classboard/core"
	"github.com/trezcool/classboard/core/account"
)

type accountRepository struct {
	db *DB
}

var _ account.Repository = (*accountRepository)(nil) // interface compliance check

func NewAccountRepository(db *DB) account.Repository {
	return &accountRepository{db: db}
}

// clone deep-copies acc so callers never share pointers with the table.
func clone(acc account.Account) account.Account {
	if acc.ClassGroup != nil {
		class := *acc.ClassGroup
		acc.ClassGroup = &class
	}
	if acc.Rating != nil {
		rating := *acc.Rating
		acc.Rating = &rating
	}
	if acc.PasswordHash != nil {
		acc.PasswordHash = append([]byte(nil), acc.PasswordHash...)
	}
	return acc
}

func (repo *accountRepository) query() []account.Account {
	accs := make([]account.Account, 0, len(repo.db.accounts))
	for _, acc := range repo.db.accounts {
		accs = append(accs, clone(*acc))
	}
	return accs
}

func (repo *accountRepository) loginExists(login string) bool {
	for _, acc := range repo.db.accounts {
		if acc.Login == login {
			return true
		}
	}
	return false
}

func (repo *accountRepository) CheckLoginUniqueness(_ context.Context, login string) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if repo.loginExists(login) {
		return account.ErrLoginExists
	}
	return nil
}

func (repo *accountRepository) CreateAccount(_ context.Context, acc account.Account) (account.Account, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if repo.loginExists(acc.Login) {
		return account.Account{}, account.ErrLoginExists
	}
	stored := clone(acc)
	repo.db.accounts[acc.ID] = &stored
	return clone(stored), nil
}

func (repo *accountRepository) GetAccount(_ context.Context, id string) (account.Account, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if acc, ok := repo.db.accounts[id]; ok {
		return clone(*acc), nil
	}
	return account.Account{}, account.ErrNotFound
}

func (repo *accountRepository) GetAccountByLogin(_ context.Context, login string) (account.Account, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, acc := range repo.db.accounts {
		if acc.Login == login {
			return clone(*acc), nil
		}
	}
	return account.Account{}, account.ErrNotFound
}

func (repo *accountRepository) QueryAccounts(_ context.Context, filter account.QueryFilter, ordering ...core.DBOrdering) ([]account.Account, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	search := strings.ToLower(filter.Search)
	accs := make([]account.Account, 0, len(repo.db.accounts))
	for _, acc := range repo.query() {
		if search != "" &&
			!strings.Contains(strings.ToLower(acc.Login), search) &&
			!strings.Contains(strings.ToLower(acc.FullName), search) {
			continue
		}
		if len(filter.Roles) > 0 && !containsRole(filter.Roles, acc.Role) {
			continue
		}
		if filter.ClassGroup != "" && acc.Class() != filter.ClassGroup {
			continue
		}
		accs = append(accs, acc)
	}

	sortAccounts(accs, ordering)
	return accs, nil
}

func (repo *accountRepository) MutateAccount(_ context.Context, id string, mutate func(acc *account.Account) error) (account.Account, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.accounts[id]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}
	acc := clone(*orig)
	if err := mutate(&acc); err != nil {
		return account.Account{}, err
	}
	acc.ID, acc.Login = orig.ID, orig.Login // immutable
	stored := clone(acc)
	repo.db.accounts[id] = &stored
	return acc, nil
}

func (repo *accountRepository) DeleteAccount(_ context.Context, id string, check func(acc account.Account) error) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	acc, ok := repo.db.accounts[id]
	if !ok {
		return account.ErrNotFound
	}
	if check != nil {
		if err := check(clone(*acc)); err != nil {
			return err
		}
	}

	delete(repo.db.accounts, id)
	for cid, c := range repo.db.complaints {
		if c.TargetID == id || c.AuthorID == id {
			delete(repo.db.complaints, cid)
		}
	}
	for nid, n := range repo.db.notes {
		if n.TargetID == id || n.AuthorID == id {
			delete(repo.db.notes, nid)
		}
	}
	return nil
}

func containsRole(roles []string, role account.Role) bool {
	for _, r := range roles {
		if account.Role(r) == role {
			return true
		}
	}
	return false
}

// sortAccounts applies ordering, falling back to creation order then login.
func sortAccounts(accs []account.Account, ordering []core.DBOrdering) {
	sort.SliceStable(accs, func(i, j int) bool {
		for _, ord := range ordering {
			cmp := compareAccounts(accs[i], accs[j], ord.Field)
			if cmp == 0 {
				continue
			}
			if ord.Ascending {
				return cmp < 0
			}
			return cmp > 0
		}
		if !accs[i].CreatedAt.Equal(accs[j].CreatedAt) {
			return accs[i].CreatedAt.Before(accs[j].CreatedAt)
		}
		return accs[i].Login < accs[j].Login
	})
}

func compareAccounts(a, b account.Account, field string) int {
	switch field {
	case "login":
		return strings.Compare(a.Login, b.Login)
	case "full_name":
		return strings.Compare(strings.ToLower(a.FullName), strings.ToLower(b.FullName))
	case "role":
		return strings.Compare(string(a.Role), string(b.Role))
	case "class_group":
		return strings.Compare(a.Class(), b.Class())
	case "rating":
		return a.RatingValue() - b.RatingValue()
	case "created_at":
		switch {
		case a.CreatedAt.Before(b.CreatedAt):
			return -1
		case a.CreatedAt.After(b.CreatedAt):
			return 1
		}
	}
	return 0
}
