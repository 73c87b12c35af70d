package inmemdb

import (
	"sync"

	"github.com/trezcool/classboard/core/account"
	"github.com/trezcool/classboard/core/moderation"
)

// DB holds every table behind one mutex, so a mutation spanning tables (account deletion
// cascading to complaints and notes) is atomic.
type DB struct {
	mutex      sync.RWMutex
	accounts   map[string]*account.Account
	complaints map[string]*moderation.Complaint
	notes      map[string]*moderation.Note
}

func Open() *DB {
	return &DB{
		accounts:   make(map[string]*account.Account),
		complaints: make(map[string]*moderation.Complaint),
		notes:      make(map[string]*moderation.Note),
	}
}
