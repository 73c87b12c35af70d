package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/classboard/core/moderation"
)

const (
	complaintColumns = "id, title, description, author_id, target_id, class_group, status, created_at, updated_at"
	noteColumns      = "id, title, content, author_id, author_name, target_id, class_group, created_at, updated_at"
)

type complaintRow struct {
	ID          string    `db:"id"`
	Title       string    `db:"title"`
	Description string    `db:"description"`
	AuthorID    string    `db:"author_id"`
	TargetID    string    `db:"target_id"`
	ClassGroup  string    `db:"class_group"`
	Status      string    `db:"status"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func newComplaintRow(c moderation.Complaint) complaintRow {
	return complaintRow{
		ID:          c.ID,
		Title:       c.Title,
		Description: c.Description,
		AuthorID:    c.AuthorID,
		TargetID:    c.TargetID,
		ClassGroup:  c.ClassGroup,
		Status:      string(c.Status),
		CreatedAt:   c.CreatedAt.UTC(),
		UpdatedAt:   c.UpdatedAt.UTC(),
	}
}

func (r complaintRow) toComplaint() moderation.Complaint {
	return moderation.Complaint{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		AuthorID:    r.AuthorID,
		TargetID:    r.TargetID,
		ClassGroup:  r.ClassGroup,
		Status:      moderation.Status(r.Status),
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type noteRow struct {
	ID         string    `db:"id"`
	Title      string    `db:"title"`
	Content    string    `db:"content"`
	AuthorID   string    `db:"author_id"`
	AuthorName string    `db:"author_name"`
	TargetID   string    `db:"target_id"`
	ClassGroup string    `db:"class_group"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func newNoteRow(n moderation.Note) noteRow {
	return noteRow{
		ID:         n.ID,
		Title:      n.Title,
		Content:    n.Content,
		AuthorID:   n.AuthorID,
		AuthorName: n.AuthorName,
		TargetID:   n.TargetID,
		ClassGroup: n.ClassGroup,
		CreatedAt:  n.CreatedAt.UTC(),
		UpdatedAt:  n.UpdatedAt.UTC(),
	}
}

func (r noteRow) toNote() moderation.Note {
	return moderation.Note{
		ID:         r.ID,
		Title:      r.Title,
		Content:    r.Content,
		AuthorID:   r.AuthorID,
		AuthorName: r.AuthorName,
		TargetID:   r.TargetID,
		ClassGroup: r.ClassGroup,
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
}

type moderationRepository struct {
	db *sqlx.DB
}

var _ moderation.Repository = (*moderationRepository)(nil) // interface compliance check

func NewModerationRepository(db *sqlx.DB) moderation.Repository {
	return &moderationRepository{db: db}
}

// where ANDs the column = value conditions whose value is non-empty.
func where(conds map[string]string) (string, []interface{}) {
	clauses := make([]string, 0, len(conds))
	args := make([]interface{}, 0, len(conds))
	for _, col := range []string{"class_group", "author_id", "target_id", "status"} {
		if val := conds[col]; val != "" {
			clauses = append(clauses, col+" = ?")
			args = append(args, val)
		}
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// Complaints

func (repo *moderationRepository) CreateComplaint(ctx context.Context, c moderation.Complaint) (moderation.Complaint, error) {
	q := `INSERT INTO complaint (` + complaintColumns + `) VALUES
		(:id, :title, :description, :author_id, :target_id, :class_group, :status, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, newComplaintRow(c)); err != nil {
		return moderation.Complaint{}, errors.Wrap(err, "inserting complaint")
	}
	return c, nil
}

func getComplaint(ctx context.Context, q sqlx.QueryerContext, query, id string) (moderation.Complaint, error) {
	if !validID(id) {
		return moderation.Complaint{}, moderation.ErrComplaintNotFound
	}
	var row complaintRow
	if err := sqlx.GetContext(ctx, q, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return moderation.Complaint{}, moderation.ErrComplaintNotFound
		}
		return moderation.Complaint{}, errors.Wrap(err, "selecting complaint")
	}
	return row.toComplaint(), nil
}

func (repo *moderationRepository) GetComplaint(ctx context.Context, id string) (moderation.Complaint, error) {
	return getComplaint(ctx, repo.db, repo.db.Rebind("SELECT "+complaintColumns+" FROM complaint WHERE id = ?"), id)
}

func (repo *moderationRepository) QueryComplaints(ctx context.Context, filter moderation.ComplaintFilter) ([]moderation.Complaint, error) {
	cond, args := where(map[string]string{
		"class_group": filter.ClassGroup,
		"author_id":   filter.AuthorID,
		"target_id":   filter.TargetID,
		"status":      string(filter.Status),
	})
	if (filter.AuthorID != "" && !validID(filter.AuthorID)) || (filter.TargetID != "" && !validID(filter.TargetID)) {
		return []moderation.Complaint{}, nil
	}

	q := repo.db.Rebind("SELECT " + complaintColumns + " FROM complaint" + cond + " ORDER BY created_at DESC, id ASC")
	var rows []complaintRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting complaints")
	}
	complaints := make([]moderation.Complaint, 0, len(rows))
	for _, row := range rows {
		complaints = append(complaints, row.toComplaint())
	}
	return complaints, nil
}

func (repo *moderationRepository) MutateComplaint(ctx context.Context, id string, mutate func(c *moderation.Complaint) error) (moderation.Complaint, error) {
	var c moderation.Complaint
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		orig, err := getComplaint(ctx, tx, tx.Rebind("SELECT "+complaintColumns+" FROM complaint WHERE id = ?"+forUpdate(repo.db)), id)
		if err != nil {
			return err
		}
		c = orig
		if err = mutate(&c); err != nil {
			return err
		}
		c.ID, c.AuthorID, c.TargetID = orig.ID, orig.AuthorID, orig.TargetID // immutable

		q := `UPDATE complaint SET title = :title, description = :description, class_group = :class_group,
			status = :status, updated_at = :updated_at WHERE id = :id`
		if _, err = tx.NamedExecContext(ctx, q, newComplaintRow(c)); err != nil {
			return errors.Wrap(err, "updating complaint")
		}
		return nil
	})
	if err != nil {
		return moderation.Complaint{}, err
	}
	return c, nil
}

func (repo *moderationRepository) DeleteComplaint(ctx context.Context, id string, check func(c moderation.Complaint) error) error {
	return withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		c, err := getComplaint(ctx, tx, tx.Rebind("SELECT "+complaintColumns+" FROM complaint WHERE id = ?"+forUpdate(repo.db)), id)
		if err != nil {
			return err
		}
		if check != nil {
			if err = check(c); err != nil {
				return err
			}
		}
		if _, err = tx.ExecContext(ctx, tx.Rebind("DELETE FROM complaint WHERE id = ?"), id); err != nil {
			return errors.Wrap(err, "deleting complaint")
		}
		return nil
	})
}

// Notes

func (repo *moderationRepository) CreateNote(ctx context.Context, n moderation.Note) (moderation.Note, error) {
	q := `INSERT INTO note (` + noteColumns + `) VALUES
		(:id, :title, :content, :author_id, :author_name, :target_id, :class_group, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, newNoteRow(n)); err != nil {
		return moderation.Note{}, errors.Wrap(err, "inserting note")
	}
	return n, nil
}

func getNote(ctx context.Context, q sqlx.QueryerContext, query, id string) (moderation.Note, error) {
	if !validID(id) {
		return moderation.Note{}, moderation.ErrNoteNotFound
	}
	var row noteRow
	if err := sqlx.GetContext(ctx, q, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return moderation.Note{}, moderation.ErrNoteNotFound
		}
		return moderation.Note{}, errors.Wrap(err, "selecting note")
	}
	return row.toNote(), nil
}

func (repo *moderationRepository) GetNote(ctx context.Context, id string) (moderation.Note, error) {
	return getNote(ctx, repo.db, repo.db.Rebind("SELECT "+noteColumns+" FROM note WHERE id = ?"), id)
}

func (repo *moderationRepository) QueryNotes(ctx context.Context, filter moderation.NoteFilter) ([]moderation.Note, error) {
	cond, args := where(map[string]string{
		"class_group": filter.ClassGroup,
		"author_id":   filter.AuthorID,
		"target_id":   filter.TargetID,
	})
	if (filter.AuthorID != "" && !validID(filter.AuthorID)) || (filter.TargetID != "" && !validID(filter.TargetID)) {
		return []moderation.Note{}, nil
	}

	q := repo.db.Rebind("SELECT " + noteColumns + " FROM note" + cond + " ORDER BY created_at DESC, id ASC")
	var rows []noteRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting notes")
	}
	notes := make([]moderation.Note, 0, len(rows))
	for _, row := range rows {
		notes = append(notes, row.toNote())
	}
	return notes, nil
}

func (repo *moderationRepository) MutateNote(ctx context.Context, id string, mutate func(n *moderation.Note) error) (moderation.Note, error) {
	var n moderation.Note
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		orig, err := getNote(ctx, tx, tx.Rebind("SELECT "+noteColumns+" FROM note WHERE id = ?"+forUpdate(repo.db)), id)
		if err != nil {
			return err
		}
		n = orig
		if err = mutate(&n); err != nil {
			return err
		}
		n.ID, n.AuthorID, n.AuthorName, n.TargetID = orig.ID, orig.AuthorID, orig.AuthorName, orig.TargetID // immutable

		q := `UPDATE note SET title = :title, content = :content, class_group = :class_group,
			updated_at = :updated_at WHERE id = :id`
		if _, err = tx.NamedExecContext(ctx, q, newNoteRow(n)); err != nil {
			return errors.Wrap(err, "updating note")
		}
		return nil
	})
	if err != nil {
		return moderation.Note{}, err
	}
	return n, nil
}

func (repo *moderationRepository) DeleteNote(ctx context.Context, id string, check func(n moderation.Note) error) error {
	return withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		n, err := getNote(ctx, tx, tx.Rebind("SELECT "+noteColumns+" FROM note WHERE id = ?"+forUpdate(repo.db)), id)
		if err != nil {
			return err
		}
		if check != nil {
			if err = check(n); err != nil {
				return err
			}
		}
		if _, err = tx.ExecContext(ctx, tx.Rebind("DELETE FROM note WHERE id = ?"), id); err != nil {
			return errors.Wrap(err, "deleting note")
		}
		return nil
	})
}
