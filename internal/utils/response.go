package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"medvision-server/internal/apperrors"
)

// LoggerKey is the gin context key holding the request-scoped log entry.
const LoggerKey = "logger"

// ResponseData represents the structure of a standard API response.
type ResponseData struct {
	OK      bool              `json:"ok"`
	Message string            `json:"message"`
	Data    interface{}       `json:"data,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// Success sends a standard success response.
func Success(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, ResponseData{
		OK:      true,
		Message: message,
		Data:    data,
	})
}

// Created sends a standard resource created response.
func Created(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusCreated, ResponseData{
		OK:      true,
		Message: message,
		Data:    data,
	})
}

// Error sends a standard error response.
func Error(c *gin.Context, statusCode int, message string, fields map[string]string) {
	c.JSON(statusCode, ResponseData{
		OK:      false,
		Message: message,
		Errors:  fields,
	})
}

// HandleError maps err to its status code and writes the error envelope.
// Internal errors are logged and answered with a generic message.
func HandleError(c *gin.Context, err error) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		appErr = apperrors.Internal("internal server error", err)
	}
	status := apperrors.HTTPStatus(appErr.Kind)
	_ = c.Error(err)

	if status >= http.StatusInternalServerError {
		entry := RequestLogger(c).WithField("kind", appErr.Kind)
		if appErr.Err != nil {
			entry = entry.WithError(appErr.Err)
		}
		entry.Error(appErr.Message)
		if appErr.Kind == apperrors.KindInternal {
			Error(c, status, "internal server error", nil)
			return
		}
	}
	Error(c, status, appErr.Message, appErr.Fields)
}

// Abort writes the error envelope and stops the handler chain.
func Abort(c *gin.Context, err error) {
	HandleError(c, err)
	c.Abort()
}

// RequestLogger returns the log entry stored by the logging middleware, or a
// standard logger entry when none is set.
func RequestLogger(c *gin.Context) *logrus.Entry {
	if v, ok := c.Get(LoggerKey); ok {
		if entry, ok := v.(*logrus.Entry); ok {
			return entry
		}
	}
	return logrus.NewEntry(logrus.StandardLogger())
}
