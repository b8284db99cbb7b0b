package http

import (
	"errors"
	"net/http"

	"github.com/ghaditya/spotify-group-session/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const parameterErrorMessage = "Missing required parameters"

// StatusFor maps an engine error onto the HTTP status callers branch on.
func StatusFor(err error) int {
	switch domain.Kind(err) {
	case domain.ErrValidation:
		return http.StatusBadRequest
	case domain.ErrAuth:
		return http.StatusUnauthorized
	case domain.ErrNotFound:
		return http.StatusNotFound
	case domain.ErrConflict:
		return http.StatusConflict
	case domain.ErrUnimplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusServiceUnavailable
	}
}

func writeError(c *gin.Context, err error) {
	status := StatusFor(err)
	msg := err.Error()
	switch {
	case errors.Is(err, domain.ErrProviderNotImplemented):
		msg = "Apple Music integration not yet implemented"
	case status == http.StatusServiceUnavailable:
		log.Error().Str("module", "adapters.http").Str("request_id", c.GetString(requestIDKey)).Err(err).Msg("store failure")
		msg = "temporarily unavailable, retry later"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func writeParameterError(c *gin.Context, err error) {
	log.Debug().Str("module", "adapters.http").Err(err).Msg("bad request body")
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": parameterErrorMessage})
}
