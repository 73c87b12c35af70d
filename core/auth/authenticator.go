// Package auth implements the session lifecycle: login, session resumption and logout.
package auth

import (
	"context"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/classboard/core"
	"github.com/trezcool/classboard/core/account"
	"github.com/trezcool/classboard/core/policy"
)

type Principal = policy.Principal

type (
	// Accounts is the part of the Credential Store the authenticator reads. account.Repository satisfies it.
	Accounts interface {
		GetAccountByLogin(ctx context.Context, login string) (account.Account, error)
		MutateAccount(ctx context.Context, id string, mutate func(acc *account.Account) error) (account.Account, error)
	}

	// Limiter counts failed logins per key and locks the key out past a threshold.
	Limiter interface {
		Allow(ctx context.Context, key string) (bool, error)
		Fail(ctx context.Context, key string) error
		Reset(ctx context.Context, key string) error
	}

	// Claims represents the authorization claims transmitted via a JWT.
	// They identify the session only; roles are always re-read from the store.
	Claims struct {
		Login string      `json:"login"`
		Role  policy.Role `json:"role"`
		jwt.RegisteredClaims
	}

	Session struct {
		Token     string          `json:"token"`
		ExpiresAt time.Time       `json:"expires_at"`
		Account   account.Account `json:"user"`
	}

	Authenticator struct {
		accounts  Accounts
		limiter   Limiter
		logger    core.Logger
		secret    []byte
		ttl       time.Duration
		issuer    string
		dummyHash []byte
		nowFunc   func() time.Time // mockable
	}
)

var signingMethod = jwt.SigningMethodHS256

func NewAuthenticator(accounts Accounts, limiter Limiter, logger core.Logger, conf *core.Config) (*Authenticator, error) {
	err := vala.BeginValidation().Validate(
		vala.IsNotNil(accounts, "accounts"),
		vala.IsNotNil(limiter, "limiter"),
		vala.IsNotNil(logger, "logger"),
		vala.IsNotNil(conf, "conf"),
	).Check()
	if err == nil {
		err = vala.BeginValidation().Validate(vala.StringNotEmpty(conf.SecretKey, "conf.SecretKey")).Check()
	}
	if err != nil {
		return nil, errors.Wrap(err, "auth.NewAuthenticator")
	}

	// compared against when the login is unknown, so both failure paths cost one bcrypt comparison
	dummyHash, err := bcrypt.GenerateFromPassword([]byte("classboard.core.auth.dummy"), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Wrap(err, "auth: generating dummy hash")
	}

	ttl := conf.Auth.TokenTTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Authenticator{
		accounts:  accounts,
		limiter:   limiter,
		logger:    logger,
		secret:    []byte(conf.SecretKey),
		ttl:       ttl,
		issuer:    conf.AppName,
		dummyHash: dummyHash,
		nowFunc:   time.Now,
	}, nil
}

// SetNowFunc replaces the clock. Used by tests.
func (a *Authenticator) SetNowFunc(now func() time.Time) {
	a.nowFunc = now
}

func (a *Authenticator) TTL() time.Duration { return a.ttl }

// Login verifies credentials and opens a session. Unknown login and wrong password fail identically.
func (a *Authenticator) Login(ctx context.Context, login, password string) (Session, error) {
	if login == "" || password == "" {
		return Session{}, core.ErrInvalidCredentials
	}

	allowed, err := a.limiter.Allow(ctx, login)
	if err != nil {
		a.logger.Error("auth: login limiter", err)
	} else if !allowed {
		return Session{}, core.ErrTooManyRequests
	}

	acc, err := a.accounts.GetAccountByLogin(ctx, login)
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			return Session{}, errors.Wrap(err, "auth: finding account by login")
		}
		_ = bcrypt.CompareHashAndPassword(a.dummyHash, []byte(password))
		a.fail(ctx, login)
		return Session{}, core.ErrInvalidCredentials
	}
	if err := acc.CheckPassword(password); err != nil {
		a.fail(ctx, login)
		return Session{}, core.ErrInvalidCredentials
	}
	if err := a.limiter.Reset(ctx, login); err != nil {
		a.logger.Error("auth: login limiter reset", err)
	}

	now := a.nowFunc().UTC()
	acc, err = a.accounts.MutateAccount(ctx, acc.ID, func(acc *account.Account) error {
		acc.LastLogin = now
		return nil
	})
	if err != nil {
		return Session{}, errors.Wrap(err, "auth: setting lastLogin")
	}

	token, expiresAt, err := a.issue(acc, now)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: expiresAt, Account: acc.Stripped()}, nil
}

func (a *Authenticator) fail(ctx context.Context, login string) {
	if err := a.limiter.Fail(ctx, login); err != nil {
		a.logger.Error("auth: login limiter fail", err)
	}
}

func (a *Authenticator) issue(acc account.Account, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(a.ttl)
	claims := Claims{
		Login: acc.Login,
		Role:  acc.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   acc.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	ss, err := jwt.NewWithClaims(signingMethod, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "auth: signing token")
	}
	return ss, expiresAt, nil
}

// ResumeSession validates token and rebuilds the principal from the current account record.
// Any failure is reported as core.ErrInvalidToken.
func (a *Authenticator) ResumeSession(ctx context.Context, token string) (Principal, account.Account, error) {
	if token == "" {
		return Principal{}, account.Account{}, core.ErrInvalidToken
	}

	claims := new(Claims)
	_, err := jwt.ParseWithClaims(
		token, claims,
		func(*jwt.Token) (interface{}, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithTimeFunc(a.nowFunc),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil || claims.Subject == "" || claims.Login == "" {
		return Principal{}, account.Account{}, core.ErrInvalidToken
	}

	acc, err := a.accounts.GetAccountByLogin(ctx, claims.Login)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return Principal{}, account.Account{}, core.ErrInvalidToken
		}
		return Principal{}, account.Account{}, errors.Wrap(err, "auth: finding account by login")
	}
	if acc.ID != claims.Subject {
		return Principal{}, account.Account{}, core.ErrInvalidToken
	}
	return acc.Principal(), acc.Stripped(), nil
}

// Logout acknowledges the end of a session. Tokens are stateless; the transport drops its carrier.
func (a *Authenticator) Logout(context.Context, string) error {
	return nil
}

// ExtractToken picks the session token from the cookie value, else from an `Authorization: Bearer` header.
func ExtractToken(cookieValue, authorization string) string {
	if toks := ExtractTokens(cookieValue, authorization); len(toks) > 0 {
		return toks[0]
	}
	return ""
}

// ExtractTokens lists the distinct tokens carried by a request, cookie first.
// Callers try them in order so a stale cookie does not hide a valid bearer token.
func ExtractTokens(cookieValue, authorization string) []string {
	var toks []string
	if tok := strings.TrimSpace(cookieValue); tok != "" {
		toks = append(toks, tok)
	}
	const prefix = "bearer "
	if len(authorization) > len(prefix) && strings.EqualFold(authorization[:len(prefix)], prefix) {
		if tok := strings.TrimSpace(authorization[len(prefix):]); tok != "" && (len(toks) == 0 || toks[0] != tok) {
			toks = append(toks, tok)
		}
	}
	return toks
}
