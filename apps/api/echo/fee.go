package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ada/core/fee"
)

type feeApi struct {
	svc        fee.Service
	validate   *validator.Validate
	translator ut.Translator
}

func registerFeeAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	api := feeApi{
		svc:        deps.FeeSvc,
		validate:   deps.Validate,
		translator: deps.Translator,
	}

	fg := g.Group("/fees", jwt)

	// staff endpoints
	fg.POST("", api.initialize, adminMiddleware())
	fg.GET("", api.query, adminMiddleware())
	fg.GET("/stats", api.stats, adminMiddleware())

	// detail endpoints
	dg := fg.Group("/:studentID")
	dg.GET("", api.retrieve, ownRecordOrAdminMiddleware())
	dg.PUT("/scholarship", api.updateScholarship, adminMiddleware())
	dg.POST("/payments", api.recordPayment, adminMiddleware())
}

// Handlers

func (api *feeApi) initialize(ctx echo.Context) error {
	var data fee.NewStudentFee
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudentFee")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rec, err := api.svc.Initialize(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "initializing fee record")
	}
	return ctx.JSON(http.StatusCreated, rec)
}

func (api *feeApi) query(ctx echo.Context) error {
	var filter fee.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}

	recs, err := api.svc.Filter(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "filtering fee records")
	}
	return ctx.JSON(http.StatusOK, recs)
}

func (api *feeApi) stats(ctx echo.Context) error {
	stats, err := api.svc.Statistics(ctx.Request().Context(), ctx.QueryParam("cohort"))
	if err != nil {
		return errors.Wrap(err, "computing fee statistics")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *feeApi) retrieve(ctx echo.Context) error {
	rec, err := api.svc.GetByStudentID(ctx.Request().Context(), ctx.Param("studentID"))
	if err != nil {
		return errors.Wrap(err, "getting fee record")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *feeApi) updateScholarship(ctx echo.Context) error {
	var data fee.NewScholarship
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewScholarship")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	rec, err := api.svc.UpdateScholarship(ctx.Request().Context(), ctx.Param("studentID"), data, claims.Subject)
	if err != nil {
		return errors.Wrap(err, "updating scholarship")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *feeApi) recordPayment(ctx echo.Context) error {
	var data fee.NewPayment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPayment")
	}

	// the audit identity comes from the token, never the form
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	data.RecordedBy = claims.Subject
	data.RecordedByName = claims.Name

	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rec, err := api.svc.RecordPayment(ctx.Request().Context(), ctx.Param("studentID"), data)
	if err != nil {
		return errors.Wrap(err, "recording payment")
	}
	return ctx.JSON(http.StatusOK, rec)
}
