package auth_test

import (
	"context"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/classboard/core"
	"github.com/trezcool/classboard/core/account"
	"github.com/trezcool/classboard/core/auth"
	"github.com/trezcool/classboard/services/ratelimit"
	"github.com/trezcool/classboard/storage/database/inmem"
	"github.com/trezcool/classboard/tests"
)

var t0 = time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*auth.Authenticator, account.Repository, *time.Time) {
	t.Helper()

	repo := inmemdb.NewAccountRepository(inmemdb.Open())
	conf := core.NewTestConfig()
	limiter := ratelimit.NewMemoryLimiter(conf.Auth.MaxLoginAttempts, conf.Auth.LockoutWindow)

	a, err := auth.NewAuthenticator(repo, limiter, core.NewNopLogger(), conf)
	require.NoError(t, err)

	now := t0
	a.SetNowFunc(func() time.Time { return now })
	return a, repo, &now
}

func TestAuthenticator_Login(t *testing.T) {
	a, repo, _ := setup(t)
	ctx := context.Background()
	usr := testutil.CreateAccount(t, repo, "Alice", "Alice A", account.RoleUser, "A")

	tests := []struct {
		name     string
		login    string
		password string
		wantCode core.ErrorCode
	}{
		{"valid credentials", "Alice", testutil.Password, ""},
		{"wrong password", "Alice", "wrong-password", core.CodeInvalidCredentials},
		{"unknown login", "bob", testutil.Password, core.CodeInvalidCredentials},
		{"login is case-sensitive", "alice", testutil.Password, core.CodeInvalidCredentials},
		{"login is not trimmed", " Alice", testutil.Password, core.CodeInvalidCredentials},
		{"empty password", "Alice", "", core.CodeInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, err := a.Login(ctx, tt.login, tt.password)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, core.ErrorCodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, sess.Token)
			assert.Equal(t, t0.Add(7*24*time.Hour), sess.ExpiresAt)
			assert.Equal(t, usr.ID, sess.Account.ID)
			assert.Nil(t, sess.Account.PasswordHash)
			assert.Equal(t, t0, sess.Account.LastLogin)
		})
	}
}

func TestAuthenticator_Login_SameErrorForUnknownLoginAndWrongPassword(t *testing.T) {
	a, repo, _ := setup(t)
	ctx := context.Background()
	testutil.CreateAccount(t, repo, "alice", "Alice A", account.RoleUser, "A")

	_, errWrongPwd := a.Login(ctx, "alice", "not-the-password")
	_, errUnknown := a.Login(ctx, "mallory", "not-the-password")
	require.Error(t, errWrongPwd)
	require.Error(t, errUnknown)
	assert.Equal(t, errWrongPwd.Error(), errUnknown.Error())
	assert.Equal(t, core.ErrorCodeOf(errWrongPwd), core.ErrorCodeOf(errUnknown))
}

func TestAuthenticator_Login_Lockout(t *testing.T) {
	a, repo, _ := setup(t)
	ctx := context.Background()
	testutil.CreateAccount(t, repo, "alice", "Alice A", account.RoleUser, "A")

	for i := 0; i < core.NewTestConfig().Auth.MaxLoginAttempts; i++ {
		_, err := a.Login(ctx, "alice", "wrong-password")
		assert.ErrorIs(t, err, core.ErrInvalidCredentials)
	}
	_, err := a.Login(ctx, "alice", testutil.Password)
	assert.ErrorIs(t, err, core.ErrTooManyRequests, "locked out even with the right password")
}

func TestAuthenticator_ResumeSession(t *testing.T) {
	a, repo, now := setup(t)
	ctx := context.Background()
	usr := testutil.CreateAccount(t, repo, "alice", "Alice A", account.RoleUser, "A")

	sess, err := a.Login(ctx, "alice", testutil.Password)
	require.NoError(t, err)

	p, acc, err := a.ResumeSession(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, usr.ID, p.ID)
	assert.Equal(t, account.RoleUser, p.Role)
	assert.Equal(t, "A", p.ClassGroup)
	assert.Nil(t, acc.PasswordHash)

	// still valid one second before expiry
	*now = t0.Add(7*24*time.Hour - time.Second)
	_, _, err = a.ResumeSession(ctx, sess.Token)
	assert.NoError(t, err)

	// expired one second after
	*now = t0.Add(7*24*time.Hour + time.Second)
	_, _, err = a.ResumeSession(ctx, sess.Token)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestAuthenticator_ResumeSession_RoleComesFromStore(t *testing.T) {
	a, repo, _ := setup(t)
	ctx := context.Background()
	usr := testutil.CreateAccount(t, repo, "alice", "Alice A", account.RoleAdmin, "A")

	sess, err := a.Login(ctx, "alice", testutil.Password)
	require.NoError(t, err)

	// demoted after the token was issued
	_, err = repo.MutateAccount(ctx, usr.ID, func(acc *account.Account) error {
		acc.Role = account.RoleUser
		r := 0
		acc.Rating = &r
		return nil
	})
	require.NoError(t, err)

	p, _, err := a.ResumeSession(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, account.RoleUser, p.Role, "stale role claims are ignored")
}

func TestAuthenticator_ResumeSession_Invalid(t *testing.T) {
	a, repo, _ := setup(t)
	ctx := context.Background()
	usr := testutil.CreateAccount(t, repo, "alice", "Alice A", account.RoleUser, "A")

	sess, err := a.Login(ctx, "alice", testutil.Password)
	require.NoError(t, err)

	sign := func(method jwt.SigningMethod, key interface{}, claims auth.Claims) string {
		tok, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return tok
	}
	claims := func(sub, login string) auth.Claims {
		return auth.Claims{
			Login: login,
			Role:  account.RoleOwner,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   sub,
				IssuedAt:  jwt.NewNumericDate(t0),
				ExpiresAt: jwt.NewNumericDate(t0.Add(time.Hour)),
			},
		}
	}
	noExp := claims(usr.ID, "alice")
	noExp.ExpiresAt = nil

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.token"},
		{"tampered", sess.Token + "x"},
		{"wrong key", sign(jwt.SigningMethodHS256, []byte("other-secret"), claims(usr.ID, "alice"))},
		{"alg none", sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, claims(usr.ID, "alice"))},
		{"other hmac alg", sign(jwt.SigningMethodHS512, []byte("secret"), claims(usr.ID, "alice"))},
		{"no expiry", sign(jwt.SigningMethodHS256, []byte("secret"), noExp)},
		{"unknown login", sign(jwt.SigningMethodHS256, []byte("secret"), claims(usr.ID, "bob"))},
		{"id mismatch", sign(jwt.SigningMethodHS256, []byte("secret"), claims("someone-else", "alice"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := a.ResumeSession(ctx, tt.token)
			assert.ErrorIs(t, err, core.ErrInvalidToken)
		})
	}

	// a forged token with the right key but the real account still resolves to the stored role
	p, _, err := a.ResumeSession(ctx, sign(jwt.SigningMethodHS256, []byte("secret"), claims(usr.ID, "alice")))
	require.NoError(t, err)
	assert.Equal(t, account.RoleUser, p.Role)

	// deleted accounts lose their sessions
	require.NoError(t, repo.DeleteAccount(ctx, usr.ID, nil))
	_, _, err = a.ResumeSession(ctx, sess.Token)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name          string
		cookie        string
		authorization string
		want          string
	}{
		{"cookie", "abc", "", "abc"},
		{"bearer", "", "Bearer xyz", "xyz"},
		{"bearer lowercase", "", "bearer xyz", "xyz"},
		{"cookie wins", "abc", "Bearer xyz", "abc"},
		{"basic ignored", "", "Basic dXNlcjpwd2Q=", ""},
		{"bare bearer", "", "Bearer ", ""},
		{"nothing", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, auth.ExtractToken(tt.cookie, tt.authorization))
		})
	}
}

func TestExtractTokens(t *testing.T) {
	tests := []struct {
		name          string
		cookie        string
		authorization string
		want          []string
	}{
		{"cookie then bearer", "abc", "Bearer xyz", []string{"abc", "xyz"}},
		{"same token once", "abc", "Bearer abc", []string{"abc"}},
		{"bearer only", " ", "Bearer xyz", []string{"xyz"}},
		{"nothing", "", "Basic dXNlcjpwd2Q=", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, auth.ExtractTokens(tt.cookie, tt.authorization))
		})
	}
}

func TestAuthenticator_Logout(t *testing.T) {
	a, _, _ := setup(t)
	assert.NoError(t, a.Logout(context.Background(), "anything"))
}
