package testutil

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/classboard/core"
	"github.com/trezcool/classboard/core/account"
	"github.com/trezcool/classboard/core/moderation"
	"github.com/trezcool/classboard/storage/database"
)

// Password is the password of every account created by CreateAccount.
const Password = "Passw0rd!x"

var passwordHash []byte

func hashPassword(t *testing.T) []byte {
	t.Helper()
	if passwordHash == nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
		if err != nil {
			t.Fatalf("hashPassword() failed: %v", err)
		}
		passwordHash = hash
	}
	return passwordHash
}

// OpenDB opens a migrated sqlite3 database living in a temporary directory, closed on cleanup.
func OpenDB(t *testing.T) *sqlx.DB {
	t.Helper()

	conf := core.NewTestConfig()
	conf.Database.Engine = database.EngineSQLite
	conf.Database.Path = filepath.Join(t.TempDir(), "classboard.db")

	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("database.Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db); err != nil {
		t.Fatalf("database.Migrate() failed: %v", err)
	}
	return db
}

// CreateAccount stores an account straight through repo, bypassing authorization.
// Users start with rating (default 0); class may be empty for the owner.
func CreateAccount(
	t *testing.T,
	repo account.Repository,
	login, fullName string,
	role account.Role,
	class string,
	rating ...int,
) account.Account {
	t.Helper()

	now := time.Now().UTC()
	acc := account.Account{
		ID:           uuid.NewString(),
		Login:        login,
		PasswordHash: hashPassword(t),
		FullName:     fullName,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if class != "" {
		acc.ClassGroup = &class
	}
	if role == account.RoleUser {
		r := 0
		if len(rating) > 0 {
			r = rating[0]
		}
		acc.Rating = &r
	}

	acc, err := repo.CreateAccount(context.Background(), acc)
	if err != nil {
		t.Fatalf("CreateAccount() failed: %v", err)
	}
	return acc.Stripped()
}

// CreateComplaint stores a complaint straight through repo.
func CreateComplaint(t *testing.T, repo moderation.Repository, author, target account.Account, title string) moderation.Complaint {
	t.Helper()

	now := time.Now().UTC()
	c, err := repo.CreateComplaint(context.Background(), moderation.Complaint{
		ID:         uuid.NewString(),
		Title:      title,
		AuthorID:   author.ID,
		TargetID:   target.ID,
		ClassGroup: target.Class(),
		Status:     moderation.StatusOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		t.Fatalf("CreateComplaint() failed: %v", err)
	}
	return c
}

// CreateNote stores a note straight through repo.
func CreateNote(t *testing.T, repo moderation.Repository, author, target account.Account, title string) moderation.Note {
	t.Helper()

	now := time.Now().UTC()
	n, err := repo.CreateNote(context.Background(), moderation.Note{
		ID:         uuid.NewString(),
		Title:      title,
		AuthorID:   author.ID,
		AuthorName: author.FullName,
		TargetID:   target.ID,
		ClassGroup: target.Class(),
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		t.Fatalf("CreateNote() failed: %v", err)
	}
	return n
}

// PtrStr returns a pointer to s.
func PtrStr(s string) *string { return &s }

// EventRecorder is a core.EventPublisher keeping every published event.
type EventRecorder struct {
	mu     sync.Mutex
	events []core.Event
}

func (r *EventRecorder) Publish(_ context.Context, evt core.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

// Events returns the recorded events of the given types, or all of them when none is given.
func (r *EventRecorder) Events(types ...string) []core.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]core.Event, 0, len(r.events))
	for _, evt := range r.events {
		if len(types) == 0 {
			out = append(out, evt)
			continue
		}
		for _, typ := range types {
			if evt.Type == typ {
				out = append(out, evt)
				break
			}
		}
	}
	return out
}
