package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/classboard/core"
	"github.com/trezcool/classboard/core/policy"
)

// roleMiddleware turns away principals whose role may perform none of actions on any target.
// Handlers still authorize against the actual target.
func roleMiddleware(actions ...policy.Action) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			p, err := getContextPrincipal(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context principal")
			}
			for _, action := range actions {
				if policy.Allows(p.Role, action) {
					return next(ctx)
				}
			}
			return core.ErrForbidden
		}
	}
}
