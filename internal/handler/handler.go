package handler

import (
	"net/http"

	"spendflow/internal/middleware"
	"spendflow/internal/model"
	"spendflow/internal/service"
	"spendflow/pkg/apperr"
	"spendflow/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// respondError maps a service error to its HTTP status. Internal errors keep
// their raw message in the body; they are additionally logged here since the
// client-visible copy can scroll away.
func respondError(c *gin.Context, err error) {
	status := apperr.StatusOf(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, response.Error(status, err.Error()))
}

// resolveActor loads the authenticated user set by the auth middleware.
// Returns false after writing the error response.
func resolveActor(c *gin.Context, users service.UserService) (*model.User, bool) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
		return nil, false
	}
	actor, err := users.CurrentUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return actor, true
}
