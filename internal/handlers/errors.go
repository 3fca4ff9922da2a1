package handlers

import (
	"github.com/gin-gonic/gin"

	"viralclip-backend/internal/apperr"
	"viralclip-backend/internal/models"
	"viralclip-backend/internal/store"
)

// respondError maps any error returned by a core component to the wire
// error shape and status code of spec §6.1, via apperr's taxonomy.
func respondError(c *gin.Context, err error) {
	if err == store.ErrNotFound {
		err = apperr.New(apperr.KindNotFound, "not found")
	}

	appErr, ok := apperr.As(err)
	if !ok {
		appErr = apperr.New(apperr.KindInternal, err.Error())
	}

	c.JSON(apperr.HTTPStatus(appErr.Kind), models.ErrorResponse{Error: models.ErrorPayload{
		Kind:      string(appErr.Kind),
		Message:   appErr.Message,
		Retryable: appErr.Retryable(),
	}})
}
