package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"restaurant-chat/internal/apperr"
)

func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindAuthentication:
		return http.StatusUnauthorized
	case apperr.KindAuthorization:
		return http.StatusForbidden
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"error", "kind"} with the status of its kind.
func writeError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	_ = c.Error(err)
	c.JSON(statusForKind(kind), gin.H{"error": apperr.MessageOf(err), "kind": kind})
}
