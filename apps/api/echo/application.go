package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tukio/core/application"
)

type applicationApi struct {
	svc        *application.Service
	validate   *validator.Validate
	translator ut.Translator
}

func registerApplicationAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc *application.Service,
	validate *validator.Validate,
	translator ut.Translator,
) {
	api := applicationApi{
		svc:        svc,
		validate:   validate,
		translator: translator,
	}

	ag := g.Group("/applications", jwt)

	ag.POST("", api.submit, studentMiddleware())
	ag.PUT("/:id/status", api.updateStatus, reviewerMiddleware())
	ag.PUT("/:id/approve-rejected", api.approveRejected, coordinatorMiddleware())
	ag.GET("/event/:eventId", api.queryByEvent, reviewerMiddleware())
	ag.GET("/event/:eventId/participants", api.queryParticipants)
	ag.GET("/student/my-applications", api.queryOwn, studentMiddleware())
	ag.GET("/stats", api.stats, facultyMiddleware())
}

// Handlers

func (api *applicationApi) submit(ctx echo.Context) error {
	var data application.NewApplication
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewApplication")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	app, err := api.svc.Submit(ctxUsr, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, app)
}

func (api *applicationApi) updateStatus(ctx echo.Context) error {
	var data application.StatusUpdate
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StatusUpdate")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	app, err := api.svc.Transition(ctx.Param("id"), ctxUsr, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, app)
}

func (api *applicationApi) approveRejected(ctx echo.Context) error {
	var data application.ReApproval
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ReApproval")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	app, err := api.svc.ApproveRejected(ctx.Param("id"), ctxUsr, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, app)
}

func (api *applicationApi) queryByEvent(ctx echo.Context) error {
	apps, err := api.svc.QueryByEvent(ctx.Param("eventId"))
	if err != nil {
		return errors.Wrap(err, "querying applications by event")
	}
	if apps == nil {
		apps = []application.Application{}
	}
	return ctx.JSON(http.StatusOK, apps)
}

func (api *applicationApi) queryParticipants(ctx echo.Context) error {
	participants, err := api.svc.QueryParticipants(ctx.Param("eventId"))
	if err != nil {
		return errors.Wrap(err, "querying participants")
	}
	if participants == nil {
		participants = []application.Participant{}
	}
	return ctx.JSON(http.StatusOK, participants)
}

func (api *applicationApi) queryOwn(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	apps, err := api.svc.QueryByStudent(ctxUsr.ID)
	if err != nil {
		return errors.Wrap(err, "querying own applications")
	}
	if apps == nil {
		apps = []application.Application{}
	}
	return ctx.JSON(http.StatusOK, apps)
}

func (api *applicationApi) stats(ctx echo.Context) error {
	stats, err := api.svc.Stats()
	if err != nil {
		return errors.Wrap(err, "querying application stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}
