package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/WebgateSystems/akademy/core/school"
)

type schoolApi struct {
	repo school.Repository
}

func registerSchoolAPI(g *echo.Group, repo school.Repository) {
	api := schoolApi{repo: repo}

	sg := g.Group("/schools")
	sg.GET("", api.query)
	sg.GET("/:id/classes", api.queryClasses)
}

func (api *schoolApi) query(ctx echo.Context) error {
	schools, err := api.repo.QuerySchools(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying schools")
	}
	if schools == nil {
		schools = []school.School{}
	}
	return ctx.JSON(http.StatusOK, schools)
}

func (api *schoolApi) queryClasses(ctx echo.Context) error {
	// 404 on unknown school rather than an empty list
	sch, err := api.repo.GetSchool(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding school")
	}

	classes, err := api.repo.QuerySchoolClasses(ctx.Request().Context(), sch.ID)
	if err != nil {
		return errors.Wrap(err, "querying school classes")
	}
	if classes == nil {
		classes = []school.SchoolClass{}
	}
	return ctx.JSON(http.StatusOK, classes)
}
