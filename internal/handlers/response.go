package handlers

import (
	"errors"
	"net/http"

	chaterrors "freecord/pkg/errors"
	"freecord/pkg/logger"

	"github.com/gin-gonic/gin"
)

type Response[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

func NewSuccessResponse[T any](data T) Response[T] {
	return Response[T]{
		Success: true,
		Data:    data,
	}
}

func NewErrorResponse(err string, code string) Response[any] {
	return Response[any]{
		Success: false,
		Error:   err,
		Code:    code,
	}
}

// writeError maps a service error onto a status and error code.
func writeError(c *gin.Context, op string, err error) {
	status, code, msg := http.StatusInternalServerError, "INTERNAL", "internal server error"
	switch {
	case errors.Is(err, chaterrors.ErrUnauthorized):
		status, code, msg = http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized"
	case errors.Is(err, chaterrors.ErrForbidden):
		status, code, msg = http.StatusForbidden, "FORBIDDEN", err.Error()
	case errors.Is(err, chaterrors.ErrNotFound):
		status, code, msg = http.StatusNotFound, "NOT_FOUND", err.Error()
	case errors.Is(err, chaterrors.ErrInvalidInput):
		status, code, msg = http.StatusBadRequest, "INVALID_INPUT", err.Error()
	case errors.Is(err, chaterrors.ErrConflict):
		status, code, msg = http.StatusConflict, "CONFLICT", err.Error()
	case errors.Is(err, chaterrors.ErrEncryptionUnavailable):
		status, code, msg = http.StatusBadGateway, "ENCRYPTION_UNAVAILABLE", "encryption service unavailable"
	}

	if status >= http.StatusInternalServerError {
		logger.Error("%s error: %v", op, err)
	}
	c.AbortWithStatusJSON(status, NewErrorResponse(msg, code))
}
