package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/classboard/core"
	"github.com/trezcool/classboard/core/account"
)

const accountColumns = "id, login, password_hash, full_name, role, class_group, rating, created_at, updated_at, last_login"

type accountRow struct {
	ID           string      `db:"id"`
	Login        string      `db:"login"`
	PasswordHash []byte      `db:"password_hash"`
	FullName     string      `db:"full_name"`
	Role         string      `db:"role"`
	ClassGroup   null.String `db:"class_group"`
	Rating       null.Int    `db:"rating"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
	LastLogin    null.Time   `db:"last_login"`
}

func newAccountRow(acc account.Account) accountRow {
	return accountRow{
		ID:           acc.ID,
		Login:        acc.Login,
		PasswordHash: acc.PasswordHash,
		FullName:     acc.FullName,
		Role:         string(acc.Role),
		ClassGroup:   null.StringFromPtr(acc.ClassGroup),
		Rating:       null.IntFromPtr(acc.Rating),
		CreatedAt:    acc.CreatedAt.UTC(),
		UpdatedAt:    acc.UpdatedAt.UTC(),
		LastLogin:    null.NewTime(acc.LastLogin.UTC(), !acc.LastLogin.IsZero()),
	}
}

func (r accountRow) toAccount() account.Account {
	acc := account.Account{
		ID:           r.ID,
		Login:        r.Login,
		PasswordHash: r.PasswordHash,
		FullName:     r.FullName,
		Role:         account.Role(r.Role),
		ClassGroup:   r.ClassGroup.Ptr(),
		Rating:       r.Rating.Ptr(),
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
	if r.LastLogin.Valid {
		acc.LastLogin = r.LastLogin.Time.UTC()
	}
	return acc
}

// accountOrderColumns maps sortable fields to SQL expressions.
var accountOrderColumns = map[string]string{
	"login":       "login",
	"full_name":   "LOWER(full_name)",
	"role":        "role",
	"class_group": "COALESCE(class_group, '')",
	"rating":      "COALESCE(rating, 0)",
	"created_at":  "created_at",
}

type accountRepository struct {
	db *sqlx.DB
}

var _ account.Repository = (*accountRepository)(nil) // interface compliance check

func NewAccountRepository(db *sqlx.DB) account.Repository {
	return &accountRepository{db: db}
}

func accountWriteError(err error, msg string) error {
	if constraint, ok := uniqueViolation(err); ok {
		if constraint == "account_single_owner" || constraint == "account.role" {
			return account.ErrOwnerExists
		}
		return account.ErrLoginExists
	}
	return errors.Wrap(err, msg)
}

func (repo *accountRepository) CheckLoginUniqueness(ctx context.Context, login string) error {
	var count int
	q := repo.db.Rebind("SELECT COUNT(*) FROM account WHERE login = ?")
	if err := repo.db.GetContext(ctx, &count, q, login); err != nil {
		return errors.Wrap(err, "checking login uniqueness")
	}
	if count > 0 {
		return account.ErrLoginExists
	}
	return nil
}

func (repo *accountRepository) CreateAccount(ctx context.Context, acc account.Account) (account.Account, error) {
	q := `INSERT INTO account (` + accountColumns + `) VALUES
		(:id, :login, :password_hash, :full_name, :role, :class_group, :rating, :created_at, :updated_at, :last_login)`
	if _, err := repo.db.NamedExecContext(ctx, q, newAccountRow(acc)); err != nil {
		return account.Account{}, accountWriteError(err, "inserting account")
	}
	return acc, nil
}

func getAccount(ctx context.Context, q sqlx.QueryerContext, query string, arg interface{}) (account.Account, error) {
	var row accountRow
	if err := sqlx.GetContext(ctx, q, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return account.Account{}, account.ErrNotFound
		}
		return account.Account{}, errors.Wrap(err, "selecting account")
	}
	return row.toAccount(), nil
}

func (repo *accountRepository) GetAccount(ctx context.Context, id string) (account.Account, error) {
	if !validID(id) {
		return account.Account{}, account.ErrNotFound
	}
	q := repo.db.Rebind("SELECT " + accountColumns + " FROM account WHERE id = ?")
	return getAccount(ctx, repo.db, q, id)
}

func (repo *accountRepository) GetAccountByLogin(ctx context.Context, login string) (account.Account, error) {
	q := repo.db.Rebind("SELECT " + accountColumns + " FROM account WHERE login = ?")
	return getAccount(ctx, repo.db, q, login)
}

func (repo *accountRepository) QueryAccounts(ctx context.Context, filter account.QueryFilter, ordering ...core.DBOrdering) ([]account.Account, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Search != "" {
		pattern := containsPattern(filter.Search)
		where = append(where, `(LOWER(login) LIKE ? ESCAPE '\' OR LOWER(full_name) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	if len(filter.Roles) > 0 {
		where = append(where, "role IN (?)")
		args = append(args, filter.Roles)
	}
	if filter.ClassGroup != "" {
		where = append(where, "class_group = ?")
		args = append(args, filter.ClassGroup)
	}

	q := "SELECT " + accountColumns + " FROM account"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}

	orderBy := make([]string, 0, len(ordering)+2)
	for _, ord := range ordering {
		if col, ok := accountOrderColumns[ord.Field]; ok {
			orderBy = append(orderBy, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
		}
	}
	orderBy = append(orderBy, "created_at ASC", "login ASC")
	q += " ORDER BY " + strings.Join(orderBy, ", ")

	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "building accounts query")
	}

	var rows []accountRow
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "selecting accounts")
	}
	accs := make([]account.Account, 0, len(rows))
	for _, row := range rows {
		accs = append(accs, row.toAccount())
	}
	return accs, nil
}

func (repo *accountRepository) MutateAccount(ctx context.Context, id string, mutate func(acc *account.Account) error) (account.Account, error) {
	if !validID(id) {
		return account.Account{}, account.ErrNotFound
	}

	var acc account.Account
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		orig, err := getAccount(ctx, tx, tx.Rebind("SELECT "+accountColumns+" FROM account WHERE id = ?"+forUpdate(repo.db)), id)
		if err != nil {
			return err
		}
		acc = orig
		if err = mutate(&acc); err != nil {
			return err
		}
		acc.ID, acc.Login = orig.ID, orig.Login // immutable

		q := `UPDATE account SET password_hash = :password_hash, full_name = :full_name, role = :role,
			class_group = :class_group, rating = :rating, updated_at = :updated_at, last_login = :last_login
			WHERE id = :id`
		if _, err = tx.NamedExecContext(ctx, q, newAccountRow(acc)); err != nil {
			return accountWriteError(err, "updating account")
		}
		return nil
	})
	if err != nil {
		return account.Account{}, err
	}
	return acc, nil
}

func (repo *accountRepository) DeleteAccount(ctx context.Context, id string, check func(acc account.Account) error) error {
	if !validID(id) {
		return account.ErrNotFound
	}

	return withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		acc, err := getAccount(ctx, tx, tx.Rebind("SELECT "+accountColumns+" FROM account WHERE id = ?"+forUpdate(repo.db)), id)
		if err != nil {
			return err
		}
		if check != nil {
			if err = check(acc); err != nil {
				return err
			}
		}

		for _, q := range []string{
			"DELETE FROM note WHERE target_id = ? OR author_id = ?",
			"DELETE FROM complaint WHERE target_id = ? OR author_id = ?",
		} {
			if _, err = tx.ExecContext(ctx, tx.Rebind(q), id, id); err != nil {
				return errors.Wrap(err, "deleting account references")
			}
		}
		if _, err = tx.ExecContext(ctx, tx.Rebind("DELETE FROM account WHERE id = ?"), id); err != nil {
			return errors.Wrap(err, "deleting account")
		}
		return nil
	})
}
