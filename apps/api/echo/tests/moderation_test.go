package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/classboard/core"
	"github.com/trezcool/classboard/core/account"
	"github.com/trezcool/classboard/core/moderation"
	"github.com/trezcool/classboard/tests"
)

var (
	errComplaintNotFound = errResp(core.CodeNotFound, "complaint not found")
	errNoteNotFound      = errResp(core.CodeNotFound, "note not found")
)

func viewAs(acc account.Account, cs ...moderation.Complaint) []byte {
	views := make([]moderation.ComplaintView, len(cs))
	for i, c := range cs {
		views[i] = moderation.ViewComplaint(acc.Principal(), c)
	}
	data, _ := json.Marshal(views)
	return data
}

func Test_moderationApi_fileComplaint(t *testing.T) {
	f := setup(t)

	complaint := func(target account.Account) []byte {
		return marchallObj(t, moderation.NewComplaint{TargetID: target.ID, Title: "keeps talking", Description: "during tests"})
	}

	f.run(t, []httpTest{
		{
			name: "admin forbidden", method: http.MethodPost, path: "/v1/complaints", token: f.token(f.admin),
			body: complaint(f.user), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "owner forbidden", method: http.MethodPost, path: "/v1/complaints", token: f.token(f.owner),
			body: complaint(f.user), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "about self", method: http.MethodPost, path: "/v1/complaints", token: f.token(f.user),
			body: complaint(f.user), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "about an admin", method: http.MethodPost, path: "/v1/complaints", token: f.token(f.user),
			body: complaint(f.admin), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "about other class", method: http.MethodPost, path: "/v1/complaints", token: f.token(f.user),
			body: complaint(f.userB), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "unknown target", method: http.MethodPost, path: "/v1/complaints", token: f.token(f.user),
			body: complaint(account.Account{ID: uuid.NewString()}), wantCode: http.StatusUnprocessableEntity,
			wantData: marchallObj(t, errResp(core.CodeInvalidTarget, "target account not found")),
		},
		{
			name: "missing title", method: http.MethodPost, path: "/v1/complaints", token: f.token(f.user),
			body: marchallObj(t, moderation.NewComplaint{TargetID: f.user2.ID, Title: "   "}), wantCode: http.StatusBadRequest,
		},
	})

	tests := []struct {
		name   string
		author account.Account
		target account.Account
	}{
		{"user about classmate", f.user, f.user2},
		{"helper about user", f.helper, f.user},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, "/v1/complaints", f.token(tt.author), complaint(tt.target))
			f.srv.ServeHTTP(rec, req)
			require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

			var got map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.NotContains(t, got, "author_id", "complaints are anonymous")
			assert.Equal(t, tt.target.ID, got["target_id"])
			assert.Equal(t, "A", got["class_group"])
			assert.Equal(t, string(moderation.StatusOpen), got["status"])
		})
	}
}

func Test_moderationApi_complaints(t *testing.T) {
	f := setup(t)

	userB2 := testutil.CreateAccount(t, f.accRepo, "userb2", "Second User B", account.RoleUser, "B")
	c1 := testutil.CreateComplaint(t, f.modRepo, f.user, f.user2, "c1")
	c2 := testutil.CreateComplaint(t, f.modRepo, f.helper, f.user, "c2")
	c3 := testutil.CreateComplaint(t, f.modRepo, userB2, f.userB, "c3")

	f.run(t, []httpTest{
		{name: "auth required", path: "/v1/complaints", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errInvalidToken)},
		{name: "owner sees all, with authors", path: "/v1/complaints", token: f.token(f.owner), wantData: viewAs(f.owner, c1, c2, c3)},
		{name: "admin sees own class", path: "/v1/complaints", token: f.token(f.admin), wantData: viewAs(f.admin, c1, c2)},
		{name: "adminB sees own class", path: "/v1/complaints", token: f.token(f.adminB), wantData: viewAs(f.adminB, c3)},
		{name: "user sees own complaints", path: "/v1/complaints", token: f.token(f.user), wantData: viewAs(f.user, c1)},
		{name: "target sees nothing", path: "/v1/complaints", token: f.token(f.user2), wantData: marchallList(t)},
		{name: "helper sees own complaints", path: "/v1/complaints", token: f.token(f.helper), wantData: viewAs(f.helper, c2)},
		{
			name: "owner by target", path: "/v1/complaints?target_id=" + f.user.ID, token: f.token(f.owner),
			wantData: viewAs(f.owner, c2),
		},
		{
			name: "admin cannot narrow by author", path: "/v1/complaints?-=" + f.user.ID + "&author_id=" + f.user.ID, token: f.token(f.admin),
			wantData: viewAs(f.admin, c1, c2),
		},
		{
			name: "user cannot widen by author", path: "/v1/complaints?-=" + f.helper.ID + "&author_id=" + f.helper.ID, token: f.token(f.user),
			wantData: viewAs(f.user, c1),
		},
		{
			name: "bad status filter", path: "/v1/complaints?status=lol", token: f.token(f.owner), wantCode: http.StatusBadRequest,
		},

		// detail
		{name: "author reads", path: "/v1/complaints/" + c1.ID, token: f.token(f.user), wantData: marchallObj(t, moderation.ViewComplaint(f.user.Principal(), c1))},
		{
			name: "target cannot read", path: "/v1/complaints/" + c1.ID, token: f.token(f.user2),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "other class admin", path: "/v1/complaints/" + c1.ID, token: f.token(f.adminB),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "owner reads the author", path: "/v1/complaints/" + c1.ID, token: f.token(f.owner),
			wantData: marchallObj(t, moderation.ViewComplaint(f.owner.Principal(), c1)),
		},
		{
			name: "unknown", path: "/v1/complaints/" + uuid.NewString(), token: f.token(f.owner),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, errComplaintNotFound),
		},

		// status
		{
			name: "user cannot update", method: http.MethodPatch, path: "/v1/complaints/" + c1.ID, token: f.token(f.user),
			body:     marchallObj(t, moderation.UpdateStatus{Status: moderation.StatusClosed}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "other class admin cannot update", method: http.MethodPatch, path: "/v1/complaints/" + c1.ID, token: f.token(f.adminB),
			body:     marchallObj(t, moderation.UpdateStatus{Status: moderation.StatusClosed}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "unknown status", method: http.MethodPatch, path: "/v1/complaints/" + c1.ID, token: f.token(f.admin),
			body: []byte(`{"status":"lol"}`), wantCode: http.StatusBadRequest,
		},

		// delete
		{
			name: "other class admin cannot delete", method: http.MethodDelete, path: "/v1/complaints/" + c1.ID, token: f.token(f.adminB),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "helper cannot delete", method: http.MethodDelete, path: "/v1/complaints/" + c2.ID, token: f.token(f.helper),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{name: "admin deletes", method: http.MethodDelete, path: "/v1/complaints/" + c2.ID, token: f.token(f.admin), wantCode: http.StatusNoContent},
		{
			name: "deleted", path: "/v1/complaints/" + c2.ID, token: f.token(f.owner),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, errComplaintNotFound),
		},
	})

	t.Run("admin updates status", func(t *testing.T) {
		for _, st := range []moderation.Status{moderation.StatusInProgress, moderation.StatusResolved, moderation.StatusOpen} {
			body := marchallObj(t, moderation.UpdateStatus{Status: st})
			req, rec := newAuthRequest(http.MethodPatch, "/v1/complaints/"+c1.ID, f.token(f.admin), body)
			f.srv.ServeHTTP(rec, req)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var got map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, string(st), got["status"])
			assert.NotContains(t, got, "author_id")
		}
	})
}

func Test_moderationApi_notes(t *testing.T) {
	f := setup(t)

	helper2 := testutil.CreateAccount(t, f.accRepo, "helper2", "Second Helper A", account.RoleHelper, "A")
	helperB := testutil.CreateAccount(t, f.accRepo, "helperb", "Helper B", account.RoleHelper, "B")
	n1 := testutil.CreateNote(t, f.modRepo, f.helper, f.user, "n1")
	n2 := testutil.CreateNote(t, f.modRepo, helperB, f.userB, "n2")
	helper2Token := f.login(t, helper2.Login)

	note := func(target account.Account) []byte {
		return marchallObj(t, moderation.NewNote{TargetID: target.ID, Title: "helpful", Content: "shared notes"})
	}
	title := func(s string) []byte { return marchallObj(t, moderation.UpdateNote{Title: &s}) }

	f.run(t, []httpTest{
		// add
		{
			name: "user cannot add", method: http.MethodPost, path: "/v1/notes", token: f.token(f.user),
			body: note(f.user2), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "admin cannot add", method: http.MethodPost, path: "/v1/notes", token: f.token(f.admin),
			body: note(f.user2), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "helper on other class", method: http.MethodPost, path: "/v1/notes", token: f.token(f.helper),
			body: note(f.userB), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "helper on an admin", method: http.MethodPost, path: "/v1/notes", token: f.token(f.helper),
			body: note(f.admin), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},

		// list
		{name: "user cannot read", path: "/v1/notes", token: f.token(f.user), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "owner sees all", path: "/v1/notes", token: f.token(f.owner), wantData: marchallList(t, n1, n2)},
		{name: "admin sees own class", path: "/v1/notes", token: f.token(f.admin), wantData: marchallList(t, n1)},
		{name: "helper sees own class", path: "/v1/notes", token: helper2Token, wantData: marchallList(t, n1)},
		{name: "helperB sees own class", path: "/v1/notes?class=A", token: f.login(t, helperB.Login), wantData: marchallList(t, n2)},
		{name: "owner by target", path: "/v1/notes?target_id=" + f.userB.ID, token: f.token(f.owner), wantData: marchallList(t, n2)},

		// detail
		{name: "classmate helper reads", path: "/v1/notes/" + n1.ID, token: helper2Token, wantData: marchallObj(t, n1)},
		{
			name: "other class admin", path: "/v1/notes/" + n1.ID, token: f.token(f.adminB),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "target cannot read", path: "/v1/notes/" + n1.ID, token: f.token(f.user),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "unknown", path: "/v1/notes/" + uuid.NewString(), token: f.token(f.owner),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, errNoteNotFound),
		},

		// update
		{
			name: "other helper cannot edit", method: http.MethodPatch, path: "/v1/notes/" + n1.ID, token: helper2Token,
			body: title("mine now"), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "admin cannot edit", method: http.MethodPatch, path: "/v1/notes/" + n1.ID, token: f.token(f.admin),
			body: title("mine now"), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "nothing to update", method: http.MethodPatch, path: "/v1/notes/" + n1.ID, token: f.token(f.helper),
			body: []byte(`{}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, errResp(core.CodeInvalidRequest, "nothing to update")),
		},

		// delete
		{
			name: "helper cannot delete", method: http.MethodDelete, path: "/v1/notes/" + n1.ID, token: f.token(f.helper),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "other class admin cannot delete", method: http.MethodDelete, path: "/v1/notes/" + n1.ID, token: f.token(f.adminB),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
	})

	t.Run("helper adds a note", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/notes", f.token(f.helper), note(f.user2))
		f.srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var got moderation.Note
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.NotEmpty(t, got.ID)
		assert.Equal(t, f.helper.ID, got.AuthorID)
		assert.Equal(t, f.helper.FullName, got.AuthorName)
		assert.Equal(t, f.user2.ID, got.TargetID)
		assert.Equal(t, "A", got.ClassGroup)
	})

	t.Run("author and owner edit", func(t *testing.T) {
		for _, token := range []string{f.token(f.helper), f.token(f.owner)} {
			req, rec := newAuthRequest(http.MethodPatch, "/v1/notes/"+n1.ID, token, title("  edited  "))
			f.srv.ServeHTTP(rec, req)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var got moderation.Note
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, "edited", got.Title)
			assert.Equal(t, f.helper.ID, got.AuthorID, "authorship never changes")
		}
	})

	t.Run("admin deletes", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/notes/"+n1.ID, f.token(f.admin))
		f.srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		req, rec = newAuthRequest(http.MethodGet, "/v1/notes/"+n1.ID, f.token(f.owner))
		f.srv.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, errNoteNotFound)}, rec)
	})
}
