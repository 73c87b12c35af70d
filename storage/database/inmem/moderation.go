package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/classboard/core/moderation"
)

type moderationRepository struct {
	db *DB
}

var _ moderation.Repository = (*moderationRepository)(nil) // interface compliance check

func NewModerationRepository(db *DB) moderation.Repository {
	return &moderationRepository{db: db}
}

// Complaints

func (repo *moderationRepository) CreateComplaint(_ context.Context, c moderation.Complaint) (moderation.Complaint, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	stored := c
	repo.db.complaints[c.ID] = &stored
	return c, nil
}

func (repo *moderationRepository) GetComplaint(_ context.Context, id string) (moderation.Complaint, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if c, ok := repo.db.complaints[id]; ok {
		return *c, nil
	}
	return moderation.Complaint{}, moderation.ErrComplaintNotFound
}

func (repo *moderationRepository) QueryComplaints(_ context.Context, filter moderation.ComplaintFilter) ([]moderation.Complaint, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	complaints := make([]moderation.Complaint, 0, len(repo.db.complaints))
	for _, c := range repo.db.complaints {
		if (filter.ClassGroup != "" && c.ClassGroup != filter.ClassGroup) ||
			(filter.AuthorID != "" && c.AuthorID != filter.AuthorID) ||
			(filter.TargetID != "" && c.TargetID != filter.TargetID) ||
			(filter.Status != "" && c.Status != filter.Status) {
			continue
		}
		complaints = append(complaints, *c)
	}
	sort.Slice(complaints, func(i, j int) bool {
		if complaints[i].CreatedAt.Equal(complaints[j].CreatedAt) {
			return complaints[i].ID < complaints[j].ID
		}
		return complaints[i].CreatedAt.After(complaints[j].CreatedAt)
	})
	return complaints, nil
}

func (repo *moderationRepository) MutateComplaint(_ context.Context, id string, mutate func(c *moderation.Complaint) error) (moderation.Complaint, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.complaints[id]
	if !ok {
		return moderation.Complaint{}, moderation.ErrComplaintNotFound
	}
	c := *orig
	if err := mutate(&c); err != nil {
		return moderation.Complaint{}, err
	}
	c.ID, c.AuthorID, c.TargetID = orig.ID, orig.AuthorID, orig.TargetID // immutable
	stored := c
	repo.db.complaints[id] = &stored
	return c, nil
}

func (repo *moderationRepository) DeleteComplaint(_ context.Context, id string, check func(c moderation.Complaint) error) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	c, ok := repo.db.complaints[id]
	if !ok {
		return moderation.ErrComplaintNotFound
	}
	if check != nil {
		if err := check(*c); err != nil {
			return err
		}
	}
	delete(repo.db.complaints, id)
	return nil
}

// Notes

func (repo *moderationRepository) CreateNote(_ context.Context, n moderation.Note) (moderation.Note, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	stored := n
	repo.db.notes[n.ID] = &stored
	return n, nil
}

func (repo *moderationRepository) GetNote(_ context.Context, id string) (moderation.Note, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if n, ok := repo.db.notes[id]; ok {
		return *n, nil
	}
	return moderation.Note{}, moderation.ErrNoteNotFound
}

func (repo *moderationRepository) QueryNotes(_ context.Context, filter moderation.NoteFilter) ([]moderation.Note, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	notes := make([]moderation.Note, 0, len(repo.db.notes))
	for _, n := range repo.db.notes {
		if (filter.ClassGroup != "" && n.ClassGroup != filter.ClassGroup) ||
			(filter.AuthorID != "" && n.AuthorID != filter.AuthorID) ||
			(filter.TargetID != "" && n.TargetID != filter.TargetID) {
			continue
		}
		notes = append(notes, *n)
	}
	sort.Slice(notes, func(i, j int) bool {
		if notes[i].CreatedAt.Equal(notes[j].CreatedAt) {
			return notes[i].ID < notes[j].ID
		}
		return notes[i].CreatedAt.After(notes[j].CreatedAt)
	})
	return notes, nil
}

func (repo *moderationRepository) MutateNote(_ context.Context, id string, mutate func(n *moderation.Note) error) (moderation.Note, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.notes[id]
	if !ok {
		return moderation.Note{}, moderation.ErrNoteNotFound
	}
	n := *orig
	if err := mutate(&n); err != nil {
		return moderation.Note{}, err
	}
	n.ID, n.AuthorID, n.AuthorName, n.TargetID = orig.ID, orig.AuthorID, orig.AuthorName, orig.TargetID // immutable
	stored := n
	repo.db.notes[id] = &stored
	return n, nil
}

func (repo *moderationRepository) DeleteNote(_ context.Context, id string, check func(n moderation.Note) error) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	n, ok := repo.db.notes[id]
	if !ok {
		return moderation.ErrNoteNotFound
	}
	if check != nil {
		if err := check(*n); err != nil {
			return err
		}
	}
	delete(repo.db.notes, id)
	return nil
}
