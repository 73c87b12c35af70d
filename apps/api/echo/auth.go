package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/classboard/core"
	"github.com/trezcool/classboard/core/account"
	"github.com/trezcool/classboard/core/auth"
	"github.com/trezcool/classboard/core/policy"
)

const (
	contextPrincipalKey = "principal"
	contextAccountKey   = "account"
)

var errPrincipalNotFoundInCtx = errors.New("principal not found in echo.Context")

// authMiddleware resumes the first valid session carried by the cookie or the bearer token
// and stores the principal in the context.
func (s *Server) authMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		var cookieValue string
		if cookie, err := ctx.Cookie(s.deps.Conf.Auth.CookieName); err == nil {
			cookieValue = cookie.Value
		}
		tokens := auth.ExtractTokens(cookieValue, ctx.Request().Header.Get(echo.HeaderAuthorization))
		if len(tokens) == 0 {
			return core.ErrInvalidToken
		}

		var err error
		for _, token := range tokens {
			p, acc, resumeErr := s.deps.Auth.ResumeSession(ctx.Request().Context(), token)
			if resumeErr != nil {
				err = resumeErr
				continue
			}
			ctx.Set(contextPrincipalKey, p)
			ctx.Set(contextAccountKey, acc)
			return next(ctx)
		}
		return errors.Wrap(err, "resuming session")
	}
}

func getContextPrincipal(ctx echo.Context) (policy.Principal, error) {
	if p, ok := ctx.Get(contextPrincipalKey).(policy.Principal); ok {
		return p, nil
	}
	return policy.Principal{}, errPrincipalNotFoundInCtx
}

func getContextAccount(ctx echo.Context) (account.Account, error) {
	if acc, ok := ctx.Get(contextAccountKey).(account.Account); ok {
		return acc, nil
	}
	return account.Account{}, errPrincipalNotFoundInCtx
}

type authApi struct {
	auth *auth.Authenticator
	conf *core.Config
}

func registerAuthAPI(g *echo.Group, authed echo.MiddlewareFunc, a *auth.Authenticator, conf *core.Config) {
	api := authApi{auth: a, conf: conf}

	ag := g.Group("/auth")
	ag.POST("/login", api.login)
	ag.POST("/logout", api.logout)
	ag.GET("/me", api.me, authed)
}

func (api *authApi) sessionCookie(value string, expires time.Time) *http.Cookie {
	cookie := &http.Cookie{
		Name:     api.conf.Auth.CookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   !api.conf.Debug,
		SameSite: http.SameSiteLaxMode,
	}
	if value == "" {
		cookie.MaxAge = -1
		cookie.Expires = time.Unix(0, 0)
	} else {
		cookie.Expires = expires
	}
	return cookie
}

func (api *authApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}

	sess, err := api.auth.Login(ctx.Request().Context(), data.Login, data.Password)
	if err != nil {
		return errors.Wrap(err, "logging in")
	}

	ctx.SetCookie(api.sessionCookie(sess.Token, sess.ExpiresAt))
	return ctx.JSON(http.StatusOK, sess)
}

// logout needs no session: a stale cookie must still be clearable.
func (api *authApi) logout(ctx echo.Context) error {
	var cookieValue string
	if cookie, err := ctx.Cookie(api.conf.Auth.CookieName); err == nil {
		cookieValue = cookie.Value
	}
	token := auth.ExtractToken(cookieValue, ctx.Request().Header.Get(echo.HeaderAuthorization))
	if err := api.auth.Logout(ctx.Request().Context(), token); err != nil {
		return errors.Wrap(err, "logging out")
	}

	ctx.SetCookie(api.sessionCookie("", time.Time{}))
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "logged out"})
}

func (api *authApi) me(ctx echo.Context) error {
	acc, err := getContextAccount(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"user": acc})
}
