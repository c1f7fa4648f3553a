package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	apperrors "github.com/Skufu/medassist/pkg/errors"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(c *gin.Context, err error) {
	if isBodyTooLarge(err) {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, errorResponse{Error: "too_large", Message: "request body too large"})
		return
	}

	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.NewInternalError("unexpected error", err)
	}

	status := http.StatusInternalServerError
	switch appErr.Type {
	case apperrors.ErrorTypeValidation:
		status = http.StatusUnprocessableEntity
	case apperrors.ErrorTypeNotFound:
		status = http.StatusNotFound
	}

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		_ = c.Error(err)
		c.AbortWithStatusJSON(status, errorResponse{Error: appErr.Code, Message: "internal error"})
		return
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: appErr.Code, Message: appErr.Message})
}

// badRequest reports a payload that could not be decoded at all.
func badRequest(c *gin.Context, err error) {
	if isBodyTooLarge(err) {
		writeError(c, err)
		return
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: "invalid_payload", Message: err.Error()})
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "request body too large")
}
