package echoapi

import (
	"bytes"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/classboard/core"
	"github.com/trezcool/classboard/core/account"
	"github.com/trezcool/classboard/core/policy"
	"github.com/trezcool/classboard/services/export"
)

type userApi struct {
	svc    *account.Service
	export *export.Service
}

func registerUserAPI(g *echo.Group, authed echo.MiddlewareFunc, svc *account.Service, exportSvc *export.Service) {
	api := userApi{svc: svc, export: exportSvc}

	ug := g.Group("/users", authed)
	ug.GET("", api.query)
	ug.POST("", api.create, roleMiddleware(policy.CreateAccount))
	ug.GET("/roles", api.queryRoles, roleMiddleware(policy.CreateAccount, policy.SetRole))
	ug.GET("/export", api.exportRatings, roleMiddleware(policy.SetRating))

	// detail endpoints
	dg := ug.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PATCH("", api.update)
	dg.DELETE("", api.destroy, roleMiddleware(policy.DeleteAccount))
	dg.PATCH("/rating", api.rate, roleMiddleware(policy.SetRating))
	dg.PATCH("/role", api.setRole, roleMiddleware(policy.SetRole))
}

// Handlers

func (api *userApi) query(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}

	var filter account.QueryFilter
	if err = (&echo.DefaultBinder{}).BindQueryParams(ctx, &filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	var ord Ordering
	ord.Bind(ctx)

	accs, err := api.svc.Query(ctx.Request().Context(), p, filter, ord.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying accounts")
	}
	return ctx.JSON(http.StatusOK, accs)
}

func (api *userApi) create(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}

	var data account.NewAccount
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAccount")
	}

	acc, err := api.svc.Create(ctx.Request().Context(), p, data)
	if err != nil {
		return errors.Wrap(err, "creating account")
	}
	return ctx.JSON(http.StatusCreated, acc)
}

// queryRoles lists the roles the principal may hand out.
func (api *userApi) queryRoles(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}

	roles := make([]account.RoleInfo, 0, len(account.RoleInfos))
	for _, info := range account.RoleInfos {
		t := policy.Target{Role: info.Value, NewRole: info.Value, ClassGroup: p.ClassGroup}
		if policy.Can(p, policy.CreateAccount, t) {
			roles = append(roles, info)
		}
	}
	return ctx.JSON(http.StatusOK, roles)
}

// exportRatings streams the xlsx rating sheet of the users visible to the principal.
func (api *userApi) exportRatings(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}

	// rendered in memory so failures still produce a JSON error
	var buf bytes.Buffer
	if err = api.export.RatingSheet(ctx.Request().Context(), p, ctx.QueryParam("class"), &buf); err != nil {
		return errors.Wrap(err, "exporting ratings")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+export.Filename(time.Now())+`"`)
	return ctx.Blob(http.StatusOK, export.ContentType, buf.Bytes())
}

func (api *userApi) retrieve(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}

	acc, err := api.svc.Get(ctx.Request().Context(), p, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting account")
	}
	return ctx.JSON(http.StatusOK, acc)
}

func (api *userApi) update(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}

	var data account.UpdateAccount
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAccount")
	}

	acc, err := api.svc.Update(ctx.Request().Context(), p, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating account")
	}
	return ctx.JSON(http.StatusOK, acc)
}

func (api *userApi) destroy(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}

	if err = api.svc.Delete(ctx.Request().Context(), p, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting account")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) rate(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}

	var data RatingRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RatingRequest")
	}
	if data.Delta == nil {
		return core.NewValidationError(nil, core.FieldError{Field: "delta", Error: "this field is required"})
	}

	acc, change, err := api.svc.ApplyRating(ctx.Request().Context(), p, ctx.Param("id"), *data.Delta)
	if err != nil {
		return errors.Wrap(err, "applying rating")
	}
	return ctx.JSON(http.StatusOK, RatingResponse{User: acc, Change: change})
}

func (api *userApi) setRole(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}

	var data RoleRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RoleRequest")
	}

	acc, err := api.svc.SetRole(ctx.Request().Context(), p, ctx.Param("id"), data.Role)
	if err != nil {
		return errors.Wrap(err, "setting role")
	}
	return ctx.JSON(http.StatusOK, acc)
}
