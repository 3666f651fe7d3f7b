package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	vdberrors "github.com/vectordb-io/vectordb/internal/errors"
)

// writeError attaches err to the gin context (for access logging) and writes
// a JSON error body with a status code derived from the error's code.
func writeError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(statusFor(err), gin.H{"message": err.Error(), "code": vdberrors.GetCode(err)})
}

func statusFor(err error) int {
	switch vdberrors.GetCode(err) {
	case vdberrors.ErrCodeNotFound:
		return http.StatusNotFound
	case vdberrors.ErrCodeAlreadyExists:
		return http.StatusConflict
	case vdberrors.ErrCodeDimensionMismatch, vdberrors.ErrCodeInvalidArgument, vdberrors.ErrCodeConfigInvalid:
		return http.StatusBadRequest
	case vdberrors.ErrCodeCollectionBusy:
		return http.StatusServiceUnavailable
	case vdberrors.ErrCodeCatalogLocked:
		return http.StatusLocked
	case vdberrors.ErrCodeCorruptRecord, vdberrors.ErrCodeCorruptionFatal, vdberrors.ErrCodeInvariantViolation:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
