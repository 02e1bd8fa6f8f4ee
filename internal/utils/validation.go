package utils

import (
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"medvision-server/internal/apperrors"
	"medvision-server/internal/repository"
)

// BindJSON decodes the request body into obj. Field validation is left to the
// services, which own the rules.
func BindJSON(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBindJSON(obj); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		var timeErr *time.ParseError
		switch {
		case errors.Is(err, io.EOF):
			return apperrors.Validation("request body is required", nil)
		case errors.As(err, &syntaxErr):
			return apperrors.Validation("malformed JSON body", nil)
		case errors.As(err, &typeErr):
			return apperrors.Validation("invalid request payload", map[string]string{typeErr.Field: "has the wrong type"})
		case errors.As(err, &timeErr):
			return apperrors.Validation("invalid request payload", map[string]string{"date": "must be an RFC 3339 timestamp"})
		}
		return apperrors.Wrap(apperrors.KindValidation, "invalid request payload", err)
	}
	return nil
}

// PageQuery reads page and limit query parameters.
func PageQuery(c *gin.Context) (repository.Page, error) {
	var page repository.Page
	var err error
	if page.Page, err = intQuery(c, "page"); err != nil {
		return page, err
	}
	if page.Limit, err = intQuery(c, "limit"); err != nil {
		return page, err
	}
	return page.Normalize(), nil
}

func intQuery(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperrors.Validation("invalid query", map[string]string{name: "must be a positive integer"})
	}
	return n, nil
}

// TimeQuery reads an optional RFC 3339 timestamp or YYYY-MM-DD date.
// A bare date is interpreted in loc.
func TimeQuery(c *gin.Context, name string, loc *time.Location) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, raw, loc); err == nil {
		return &t, nil
	}
	return nil, apperrors.Validation("invalid query", map[string]string{name: "must be an RFC 3339 timestamp or YYYY-MM-DD"})
}
