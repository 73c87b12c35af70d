package moderation_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/classboard/core"
	"github.com/trezcool/classboard/core/account"
	"github.com/trezcool/classboard/core/moderation"
	"github.com/trezcool/classboard/core/policy"
	"github.com/trezcool/classboard/storage/database/inmem"
	"github.com/trezcool/classboard/tests"
)

type fixture struct {
	svc     *moderation.Service
	repo    moderation.Repository
	accRepo account.Repository
	events  *testutil.EventRecorder

	owner, admin, adminB, helper, helper2, user, user2, userB account.Account
}

func setup(t *testing.T) *fixture {
	t.Helper()

	db := inmemdb.Open()
	accRepo := inmemdb.NewAccountRepository(db)
	repo := inmemdb.NewModerationRepository(db)
	events := new(testutil.EventRecorder)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)

	svc, err := moderation.NewService(repo, accRepo, validate, translator, events, core.NewNopLogger())
	require.NoError(t, err)

	return &fixture{
		svc:     svc,
		repo:    repo,
		accRepo: accRepo,
		events:  events,
		owner:   testutil.CreateAccount(t, accRepo, "owner", "The Owner", account.RoleOwner, ""),
		admin:   testutil.CreateAccount(t, accRepo, "admin", "Admin A", account.RoleAdmin, "A"),
		adminB:  testutil.CreateAccount(t, accRepo, "adminB", "Admin B", account.RoleAdmin, "B"),
		helper:  testutil.CreateAccount(t, accRepo, "helper", "Helper A", account.RoleHelper, "A"),
		helper2: testutil.CreateAccount(t, accRepo, "helper2", "Helper A2", account.RoleHelper, "A"),
		user:    testutil.CreateAccount(t, accRepo, "user", "User A", account.RoleUser, "A"),
		user2:   testutil.CreateAccount(t, accRepo, "user2", "User A2", account.RoleUser, "A"),
		userB:   testutil.CreateAccount(t, accRepo, "userB", "User B", account.RoleUser, "B"),
	}
}

func TestService_FileComplaint(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	nc := func(target account.Account, title string) moderation.NewComplaint {
		return moderation.NewComplaint{TargetID: target.ID, Title: title, Description: "details"}
	}

	tests := []struct {
		name     string
		p        policy.Principal
		nc       moderation.NewComplaint
		wantCode core.ErrorCode
	}{
		{"user about classmate", f.user.Principal(), nc(f.user2, "noise"), ""},
		{"helper about user", f.helper.Principal(), nc(f.user, "late"), ""},
		{"not about self", f.user.Principal(), nc(f.user, "me"), core.CodeForbidden},
		{"not about a helper", f.user.Principal(), nc(f.helper, "helper"), core.CodeForbidden},
		{"not across classes", f.user.Principal(), nc(f.userB, "far"), core.CodeForbidden},
		{"admin cannot file", f.admin.Principal(), nc(f.user, "admin"), core.CodeForbidden},
		{"owner cannot file", f.owner.Principal(), nc(f.user, "owner"), core.CodeForbidden},
		{"title required", f.user.Principal(), nc(f.user2, "   "), core.CodeInvalidRequest},
		{"unknown target", f.user.Principal(), moderation.NewComplaint{TargetID: "nope", Title: "x"}, core.CodeInvalidTarget},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view, err := f.svc.FileComplaint(ctx, tt.p, tt.nc)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, core.ErrorCodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, moderation.StatusOpen, view.Status)
			assert.Nil(t, view.AuthorID, "author is hidden from the author too")

			stored, err := f.repo.GetComplaint(ctx, view.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.p.ID, stored.AuthorID)
			assert.Equal(t, "A", stored.ClassGroup)
		})
	}

	evts := f.events.Events(core.EventComplaintFiled)
	require.Len(t, evts, 2)
	authors := []account.Account{f.user, f.helper}
	for i, evt := range evts {
		assert.Empty(t, evt.ActorID, "complaint events never carry the author")
		data, err := json.Marshal(evt)
		require.NoError(t, err)
		assert.NotContains(t, string(data), authors[i].ID)
	}
}

func TestService_ComplaintAnonymity(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	c := testutil.CreateComplaint(t, f.repo, f.user2, f.user, "noise")

	tests := []struct {
		name       string
		p          policy.Principal
		wantAuthor bool
	}{
		{"owner sees author", f.owner.Principal(), true},
		{"admin does not", f.admin.Principal(), false},
		{"author does not", f.user2.Principal(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view, err := f.svc.GetComplaint(ctx, tt.p, c.ID)
			require.NoError(t, err)

			data, err := json.Marshal(view)
			require.NoError(t, err)
			if tt.wantAuthor {
				require.NotNil(t, view.AuthorID)
				assert.Equal(t, f.user2.ID, *view.AuthorID)
				assert.Contains(t, string(data), f.user2.ID)
			} else {
				assert.Nil(t, view.AuthorID)
				assert.NotContains(t, string(data), f.user2.ID)
				assert.NotContains(t, string(data), "author")
			}

			views, err := f.svc.ListComplaintsFor(ctx, tt.p, moderation.ComplaintFilter{})
			require.NoError(t, err)
			require.Len(t, views, 1)
			assert.Equal(t, tt.wantAuthor, views[0].AuthorID != nil)
		})
	}

	// narrowing a listing by author would reveal who filed what
	other := testutil.CreateComplaint(t, f.repo, f.helper, f.user, "rude")
	authorTests := []struct {
		name    string
		p       policy.Principal
		author  string
		wantIDs []string
	}{
		{"admin author filter ignored", f.admin.Principal(), f.user2.ID, []string{c.ID, other.ID}},
		{"admin unknown author ignored", f.admin.Principal(), "nope", []string{c.ID, other.ID}},
		{"owner author filter ignored", f.owner.Principal(), f.helper.ID, []string{c.ID, other.ID}},
		{"author cannot pick another author", f.user2.Principal(), f.helper.ID, []string{c.ID}},
	}
	for _, tt := range authorTests {
		t.Run(tt.name, func(t *testing.T) {
			views, err := f.svc.ListComplaintsFor(ctx, tt.p, moderation.ComplaintFilter{AuthorID: tt.author})
			require.NoError(t, err)
			ids := make([]string, 0, len(views))
			for _, v := range views {
				ids = append(ids, v.ID)
			}
			assert.ElementsMatch(t, tt.wantIDs, ids)
		})
	}
}

func TestService_ListComplaintsFor(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	c1 := testutil.CreateComplaint(t, f.repo, f.user2, f.user, "c1")
	c2 := testutil.CreateComplaint(t, f.repo, f.helper, f.user2, "c2")
	c3 := testutil.CreateComplaint(t, f.repo, f.user2, f.user, "c3")
	userB2 := testutil.CreateAccount(t, f.accRepo, "userB2", "User B2", account.RoleUser, "B")
	c4 := testutil.CreateComplaint(t, f.repo, userB2, f.userB, "c4")

	ids := func(views []moderation.ComplaintView) []string {
		out := make([]string, 0, len(views))
		for _, v := range views {
			out = append(out, v.ID)
		}
		return out
	}

	tests := []struct {
		name     string
		p        policy.Principal
		filter   moderation.ComplaintFilter
		want     []string
		wantCode core.ErrorCode
	}{
		{"owner sees all", f.owner.Principal(), moderation.ComplaintFilter{}, []string{c1.ID, c2.ID, c3.ID, c4.ID}, ""},
		{"owner filters by target", f.owner.Principal(), moderation.ComplaintFilter{TargetID: f.user.ID}, []string{c1.ID, c3.ID}, ""},
		{"admin sees class", f.admin.Principal(), moderation.ComplaintFilter{}, []string{c1.ID, c2.ID, c3.ID}, ""},
		{"admin cannot widen class", f.adminB.Principal(), moderation.ComplaintFilter{ClassGroup: "A"}, []string{c4.ID}, ""},
		{"author sees own", f.user2.Principal(), moderation.ComplaintFilter{}, []string{c1.ID, c3.ID}, ""},
		{"helper sees own", f.helper.Principal(), moderation.ComplaintFilter{}, []string{c2.ID}, ""},
		{"target sees nothing", f.user.Principal(), moderation.ComplaintFilter{}, []string{}, ""},
		{"bad status", f.owner.Principal(), moderation.ComplaintFilter{Status: "archived"}, nil, core.CodeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			views, err := f.svc.ListComplaintsFor(ctx, tt.p, tt.filter)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, core.ErrorCodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, ids(views))
		})
	}
}

func TestService_UpdateAndDeleteComplaint(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := testutil.CreateComplaint(t, f.repo, f.user2, f.user, "noise")

	_, err := f.svc.UpdateComplaintStatus(ctx, f.user2.Principal(), c.ID, moderation.UpdateStatus{Status: moderation.StatusClosed})
	assert.Equal(t, core.CodeForbidden, core.ErrorCodeOf(err), "authors cannot change status")

	_, err = f.svc.UpdateComplaintStatus(ctx, f.adminB.Principal(), c.ID, moderation.UpdateStatus{Status: moderation.StatusClosed})
	assert.Equal(t, core.CodeForbidden, core.ErrorCodeOf(err))

	_, err = f.svc.UpdateComplaintStatus(ctx, f.admin.Principal(), c.ID, moderation.UpdateStatus{Status: "archived"})
	assert.Equal(t, core.CodeInvalidRequest, core.ErrorCodeOf(err))

	view, err := f.svc.UpdateComplaintStatus(ctx, f.admin.Principal(), c.ID, moderation.UpdateStatus{Status: moderation.StatusInProgress})
	require.NoError(t, err)
	assert.Equal(t, moderation.StatusInProgress, view.Status)
	assert.Nil(t, view.AuthorID)

	// flat status set: closed may go back to open
	_, err = f.svc.UpdateComplaintStatus(ctx, f.owner.Principal(), c.ID, moderation.UpdateStatus{Status: moderation.StatusClosed})
	require.NoError(t, err)
	view, err = f.svc.UpdateComplaintStatus(ctx, f.owner.Principal(), c.ID, moderation.UpdateStatus{Status: moderation.StatusOpen})
	require.NoError(t, err)
	assert.Equal(t, moderation.StatusOpen, view.Status)
	assert.Len(t, f.events.Events(core.EventComplaintStatusChanged), 3)

	assert.Equal(t, core.CodeForbidden, core.ErrorCodeOf(f.svc.DeleteComplaint(ctx, f.user2.Principal(), c.ID)))
	assert.Equal(t, core.CodeForbidden, core.ErrorCodeOf(f.svc.DeleteComplaint(ctx, f.adminB.Principal(), c.ID)))
	require.NoError(t, f.svc.DeleteComplaint(ctx, f.admin.Principal(), c.ID))
	assert.Equal(t, core.CodeNotFound, core.ErrorCodeOf(f.svc.DeleteComplaint(ctx, f.owner.Principal(), c.ID)), "deletion is permanent")

	_, err = f.svc.GetComplaint(ctx, f.owner.Principal(), c.ID)
	assert.Equal(t, core.CodeNotFound, core.ErrorCodeOf(err))
}

func TestService_Notes(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		p        policy.Principal
		nn       moderation.NewNote
		wantCode core.ErrorCode
	}{
		{"helper notes classmate", f.helper.Principal(), moderation.NewNote{TargetID: f.user.ID, Title: "late", Content: "twice"}, ""},
		{"empty content is fine", f.helper.Principal(), moderation.NewNote{TargetID: f.user2.ID, Title: "quiet"}, ""},
		{"user cannot add note", f.user.Principal(), moderation.NewNote{TargetID: f.user2.ID, Title: "x"}, core.CodeForbidden},
		{"admin cannot add note", f.admin.Principal(), moderation.NewNote{TargetID: f.user.ID, Title: "x"}, core.CodeForbidden},
		{"not about a helper", f.helper.Principal(), moderation.NewNote{TargetID: f.helper2.ID, Title: "x"}, core.CodeForbidden},
		{"not across classes", f.helper.Principal(), moderation.NewNote{TargetID: f.userB.ID, Title: "x"}, core.CodeForbidden},
		{"title required", f.helper.Principal(), moderation.NewNote{TargetID: f.user.ID}, core.CodeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := f.svc.AddNote(ctx, tt.p, tt.nn)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, core.ErrorCodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.p.ID, n.AuthorID, "notes are attributed")
			assert.Equal(t, f.helper.FullName, n.AuthorName)
			assert.Equal(t, "A", n.ClassGroup)
		})
	}

	// listing
	notes, err := f.svc.ListNotesFor(ctx, f.admin.Principal(), moderation.NoteFilter{TargetID: f.user.ID})
	require.NoError(t, err)
	require.Len(t, notes, 1)
	n := notes[0]

	notes, err = f.svc.ListNotesFor(ctx, f.helper2.Principal(), moderation.NoteFilter{})
	require.NoError(t, err)
	assert.Len(t, notes, 2, "helpers read class notes")

	notes, err = f.svc.ListNotesFor(ctx, f.adminB.Principal(), moderation.NoteFilter{})
	require.NoError(t, err)
	assert.Empty(t, notes)

	_, err = f.svc.ListNotesFor(ctx, f.user.Principal(), moderation.NoteFilter{})
	assert.Equal(t, core.CodeForbidden, core.ErrorCodeOf(err))

	_, err = f.svc.GetNote(ctx, f.user.Principal(), n.ID)
	assert.Equal(t, core.CodeForbidden, core.ErrorCodeOf(err))

	// updates: author or owner only
	_, err = f.svc.UpdateNote(ctx, f.helper2.Principal(), n.ID, moderation.UpdateNote{Content: testutil.PtrStr("edited")})
	assert.Equal(t, core.CodeForbidden, core.ErrorCodeOf(err))
	_, err = f.svc.UpdateNote(ctx, f.admin.Principal(), n.ID, moderation.UpdateNote{Content: testutil.PtrStr("edited")})
	assert.Equal(t, core.CodeForbidden, core.ErrorCodeOf(err))
	_, err = f.svc.UpdateNote(ctx, f.helper.Principal(), n.ID, moderation.UpdateNote{})
	assert.Equal(t, core.CodeInvalidRequest, core.ErrorCodeOf(err))

	updated, err := f.svc.UpdateNote(ctx, f.helper.Principal(), n.ID, moderation.UpdateNote{Title: testutil.PtrStr(" very late "), Content: testutil.PtrStr("")})
	require.NoError(t, err)
	assert.Equal(t, "very late", updated.Title)
	assert.Equal(t, "", updated.Content)
	assert.Equal(t, f.helper.ID, updated.AuthorID)

	// deletion: owner or class admin
	assert.Equal(t, core.CodeForbidden, core.ErrorCodeOf(f.svc.DeleteNote(ctx, f.helper.Principal(), n.ID)))
	assert.Equal(t, core.CodeForbidden, core.ErrorCodeOf(f.svc.DeleteNote(ctx, f.adminB.Principal(), n.ID)))
	require.NoError(t, f.svc.DeleteNote(ctx, f.admin.Principal(), n.ID))
	_, err = f.svc.GetNote(ctx, f.owner.Principal(), n.ID)
	assert.Equal(t, core.CodeNotFound, core.ErrorCodeOf(err))

	assert.Len(t, f.events.Events(core.EventNoteAdded), 2)
	assert.Len(t, f.events.Events(core.EventNoteUpdated), 1)
	assert.Len(t, f.events.Events(core.EventNoteDeleted), 1)
}
