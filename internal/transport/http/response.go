package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cleancity-server-go/internal/domain/lifecycle"
	"cleancity-server-go/internal/domain/report/aggregate"
	"cleancity-server-go/internal/platform/errors"
)

// APIResponse is the envelope every JSON endpoint returns.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
	Code    int         `json:"code"`
}

// RespondSuccess writes a success envelope.
func RespondSuccess(c *gin.Context, httpStatus int, data interface{}, message string) {
	if message == "" {
		message = "ok"
	}

	resp := APIResponse{
		Success: true,
		Message: message,
		Code:    httpStatus,
		Data:    data,
	}

	c.JSON(httpStatus, resp)
}

// RespondError writes a failure envelope.
func RespondError(c *gin.Context, httpStatus int, message string, data interface{}) {
	resp := APIResponse{
		Success: false,
		Message: message,
		Code:    httpStatus,
		Data:    data,
	}

	c.JSON(httpStatus, resp)
}

// RespondDomainError maps domain sentinels to HTTP statuses so handlers stay
// free of status logic.
func RespondDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, aggregate.ErrMissingImage),
		errors.Is(err, aggregate.ErrMissingLocation),
		errors.Is(err, aggregate.ErrInvalidTrackingFormat):
		RespondError(c, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, aggregate.ErrReportNotFound):
		RespondError(c, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, lifecycle.ErrConflict):
		RespondError(c, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, aggregate.ErrDeliveryUnavailable),
		errors.Is(err, aggregate.ErrDeliveryRejected):
		RespondError(c, http.StatusBadGateway, err.Error(), nil)
	default:
		RespondError(c, http.StatusInternalServerError, err.Error(), nil)
	}
}
