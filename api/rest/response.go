package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/weblab-class/pomo-dungeon/apperror"
)

// respondError maps a domain error to an HTTP status and writes the
// {"error": msg} body every failure path uses. Conflict maps to 400:
// duplicate friend requests were always reported as bad requests and
// clients depend on that.
func respondError(c *gin.Context, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, apperror.ErrInvalidRequest):
			status = http.StatusBadRequest
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusBadRequest
		case errors.Is(err, apperror.ErrUnavailable):
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{"error": appErr.Message})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
