package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/classboard/apps/api/echo"
	"github.com/trezcool/classboard/core"
	"github.com/trezcool/classboard/core/account"
	"github.com/trezcool/classboard/core/auth"
	"github.com/trezcool/classboard/core/moderation"
	"github.com/trezcool/classboard/services/export"
	"github.com/trezcool/classboard/services/ratelimit"
	"github.com/trezcool/classboard/storage/database/inmem"
	"github.com/trezcool/classboard/tests"
)

var errInvalidToken = ErrorResponse{Code: core.CodeInvalidToken, Error: "invalid or expired session"}

func errResp(code core.ErrorCode, msg string) ErrorResponse {
	return ErrorResponse{Code: code, Error: msg}
}

var (
	errForbidden     = errResp(core.CodeForbidden, "permission denied")
	errNotFound      = errResp(core.CodeNotFound, "account not found")
	errNotRatable    = errResp(core.CodeInvalidTarget, "only users carry a rating")
	errZeroDelta     = errResp(core.CodeInvalidRequest, "rating delta must not be zero")
	errDeltaTooLarge = errResp(core.CodeInvalidRequest, "rating delta exceeds the allowed bound")
)

// fixture is a server backed by in-memory repositories, populated with two classes:
// A (admin, helper, user, user2) and B (adminB, userB), plus the owner.
type fixture struct {
	srv     *Server
	conf    *core.Config
	accRepo account.Repository
	modRepo moderation.Repository
	pingErr error

	owner, admin, adminB, helper, user, user2, userB account.Account

	tokens map[string]string // by login
}

func setup(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{conf: core.NewTestConfig(), tokens: make(map[string]string)}
	logger := core.NewNopLogger()
	events := core.NewNopPublisher()

	// set up DB & repos
	db := inmemdb.Open()
	f.accRepo = inmemdb.NewAccountRepository(db)
	f.modRepo = inmemdb.NewModerationRepository(db)

	// set up services
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)

	accSvc, err := account.NewService(f.accRepo, validate, translator, events, logger, f.conf)
	require.NoError(t, err)
	modSvc, err := moderation.NewService(f.modRepo, f.accRepo, validate, translator, events, logger)
	require.NoError(t, err)
	exportSvc, err := export.NewService(accSvc, logger)
	require.NoError(t, err)

	limiter := ratelimit.NewMemoryLimiter(f.conf.Auth.MaxLoginAttempts, f.conf.Auth.LockoutWindow)
	authenticator, err := auth.NewAuthenticator(f.accRepo, limiter, logger, f.conf)
	require.NoError(t, err)

	// set up server
	f.srv, err = NewServer(ServerDeps{
		Conf:          f.conf,
		Logger:        logger,
		Translator:    translator,
		Auth:          authenticator,
		AccountSvc:    accSvc,
		ModerationSvc: modSvc,
		ExportSvc:     exportSvc,
		Ping:          func(context.Context) error { return f.pingErr },
	})
	require.NoError(t, err)

	// populate
	f.owner = testutil.CreateAccount(t, f.accRepo, "owner", "The Owner", account.RoleOwner, "")
	f.admin = testutil.CreateAccount(t, f.accRepo, "admin", "Admin A", account.RoleAdmin, "A")
	f.adminB = testutil.CreateAccount(t, f.accRepo, "adminb", "Admin B", account.RoleAdmin, "B")
	f.helper = testutil.CreateAccount(t, f.accRepo, "helper", "Helper A", account.RoleHelper, "A")
	f.user = testutil.CreateAccount(t, f.accRepo, "user", "User A", account.RoleUser, "A", 250)
	f.user2 = testutil.CreateAccount(t, f.accRepo, "user2", "Second User A", account.RoleUser, "A", 10)
	f.userB = testutil.CreateAccount(t, f.accRepo, "userb", "User B", account.RoleUser, "B", 490)

	for _, acc := range []*account.Account{&f.owner, &f.admin, &f.adminB, &f.helper, &f.user, &f.user2, &f.userB} {
		f.tokens[acc.Login] = f.login(t, acc.Login)
		*acc = f.reload(t, acc.ID) // last_login moved
	}
	return f
}

func (f *fixture) login(t *testing.T, login string) string {
	t.Helper()

	body := marchallObj(t, LoginRequest{Login: login, Password: testutil.Password})
	req, rec := newRequest(http.MethodPost, "/v1/auth/login", body)
	f.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, "login %q: %s", login, rec.Body.String())

	var sess auth.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	return sess.Token
}

func (f *fixture) reload(t *testing.T, id string) account.Account {
	t.Helper()
	acc, err := f.accRepo.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return acc.Stripped()
}

func (f *fixture) token(acc account.Account) string {
	return f.tokens[acc.Login]
}

// run serves every test case, in order, against the fixture's server.
func (f *fixture) run(t *testing.T, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
			f.srv.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func accountList(t *testing.T, accs ...account.Account) []byte {
	objs := make([]interface{}, len(accs))
	for i, acc := range accs {
		objs[i] = acc
	}
	return marchallList(t, objs...)
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	if _, ok := j1.([]interface{}); !ok {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	wantCode := tt.wantCode
	if wantCode == 0 {
		wantCode = http.StatusOK
	}
	if rec.Code != wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
