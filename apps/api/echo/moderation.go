package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/classboard/core/moderation"
	"github.com/trezcool/classboard/core/policy"
)

type moderationApi struct {
	svc *moderation.Service
}

func registerModerationAPI(g *echo.Group, authed echo.MiddlewareFunc, svc *moderation.Service) {
	api := moderationApi{svc: svc}

	cg := g.Group("/complaints", authed)
	cg.GET("", api.queryComplaints)
	cg.POST("", api.fileComplaint, roleMiddleware(policy.FileComplaint))
	cg.GET("/:id", api.retrieveComplaint)
	cg.PATCH("/:id", api.updateComplaint, roleMiddleware(policy.UpdateComplaint))
	cg.DELETE("/:id", api.destroyComplaint, roleMiddleware(policy.DeleteComplaint))

	ng := g.Group("/notes", authed)
	ng.GET("", api.queryNotes, roleMiddleware(policy.ReadNote))
	ng.POST("", api.addNote, roleMiddleware(policy.AddNote))
	ng.GET("/:id", api.retrieveNote, roleMiddleware(policy.ReadNote))
	ng.PATCH("/:id", api.updateNote, roleMiddleware(policy.UpdateNote))
	ng.DELETE("/:id", api.destroyNote, roleMiddleware(policy.DeleteNote))
}

// Complaints

func (api *moderationApi) queryComplaints(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}

	var filter moderation.ComplaintFilter
	if err = (&echo.DefaultBinder{}).BindQueryParams(ctx, &filter); err != nil {
		return errors.Wrap(err, "binding to ComplaintFilter")
	}

	complaints, err := api.svc.ListComplaintsFor(ctx.Request().Context(), p, filter)
	if err != nil {
		return errors.Wrap(err, "listing complaints")
	}
	return ctx.JSON(http.StatusOK, complaints)
}

func (api *moderationApi) fileComplaint(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}

	var data moderation.NewComplaint
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewComplaint")
	}

	c, err := api.svc.FileComplaint(ctx.Request().Context(), p, data)
	if err != nil {
		return errors.Wrap(err, "filing complaint")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *moderationApi) retrieveComplaint(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}

	c, err := api.svc.GetComplaint(ctx.Request().Context(), p, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting complaint")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *moderationApi) updateComplaint(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}

	var data moderation.UpdateStatus
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStatus")
	}

	c, err := api.svc.UpdateComplaintStatus(ctx.Request().Context(), p, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating complaint status")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *moderationApi) destroyComplaint(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}

	if err = api.svc.DeleteComplaint(ctx.Request().Context(), p, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting complaint")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Notes

func (api *moderationApi) queryNotes(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}

	var filter moderation.NoteFilter
	if err = (&echo.DefaultBinder{}).BindQueryParams(ctx, &filter); err != nil {
		return errors.Wrap(err, "binding to NoteFilter")
	}

	notes, err := api.svc.ListNotesFor(ctx.Request().Context(), p, filter)
	if err != nil {
		return errors.Wrap(err, "listing notes")
	}
	return ctx.JSON(http.StatusOK, notes)
}

func (api *moderationApi) addNote(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}

	var data moderation.NewNote
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewNote")
	}

	n, err := api.svc.AddNote(ctx.Request().Context(), p, data)
	if err != nil {
		return errors.Wrap(err, "adding note")
	}
	return ctx.JSON(http.StatusCreated, n)
}

func (api *moderationApi) retrieveNote(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}

	n, err := api.svc.GetNote(ctx.Request().Context(), p, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting note")
	}
	return ctx.JSON(http.StatusOK, n)
}

func (api *moderationApi) updateNote(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}

	var data moderation.UpdateNote
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateNote")
	}

	n, err := api.svc.UpdateNote(ctx.Request().Context(), p, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating note")
	}
	return ctx.JSON(http.StatusOK, n)
}

func (api *moderationApi) destroyNote(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}

	if err = api.svc.DeleteNote(ctx.Request().Context(), p, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting note")
	}
	return ctx.NoContent(http.StatusNoContent)
}
