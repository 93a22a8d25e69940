package handlers

import (
	"log"
	"strconv"

	"transcriber/internal/apperr"

	"github.com/labstack/echo/v4"
)

// respondError はエラー種別に応じたステータスで {"error": detail} を返す
func respondError(c echo.Context, err error) error {
	if apperr.KindOf(err) == apperr.KindInternal {
		log.Printf("%s %s: %v", c.Request().Method, c.Path(), err)
	}
	return c.JSON(apperr.Status(err), map[string]string{"error": apperr.Detail(err)})
}

// listParams は limit / offset / sort クエリを解釈する
func listParams(c echo.Context) (limit, offset int, ascending bool) {
	limit = 100
	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil && l > 0 {
		limit = l
	}
	if o, err := strconv.Atoi(c.QueryParam("offset")); err == nil && o > 0 {
		offset = o
	}
	ascending = c.QueryParam("sort") == "ASC"
	return limit, offset, ascending
}
