package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/YelzhanWeb/caseflow/internal/adapter/logger"
	"github.com/YelzhanWeb/caseflow/internal/domain"
)

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	// AllowedStatuses is present (possibly empty) only for IllegalTransition
	// and Forbidden.
	AllowedStatuses *[]domain.Status `json:"allowed_statuses,omitempty"`
}

func newErrorResponse(kind, message string, allowed *[]domain.Status) ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{Kind: kind, Message: message, AllowedStatuses: allowed}}
}

var kindStatus = map[domain.ErrorKind]int{
	domain.KindValidation:         http.StatusBadRequest,
	domain.KindForbidden:          http.StatusForbidden,
	domain.KindNotFound:           http.StatusNotFound,
	domain.KindConflict:           http.StatusConflict,
	domain.KindPaymentNotVerified: http.StatusPreconditionFailed,
	domain.KindIllegalTransition:  http.StatusUnprocessableEntity,
}

func mapWorkflowError(err error) (int, ErrorResponse) {
	var we *domain.WorkflowError
	if !errors.As(err, &we) {
		return http.StatusInternalServerError, newErrorResponse("InternalError", "an internal error occurred", nil)
	}

	status, ok := kindStatus[we.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	var allowed *[]domain.Status
	if we.Kind == domain.KindIllegalTransition || we.Kind == domain.KindForbidden {
		list := we.Allowed
		if list == nil {
			list = []domain.Status{}
		}
		allowed = &list
	}

	return status, newErrorResponse(string(we.Kind), we.Message, allowed)
}

func respondError(c *gin.Context, logger logger.Logger, err error) {
	status, body := mapWorkflowError(err)
	if status == http.StatusInternalServerError {
		logger.Error("request_failed", "Unhandled error", requestID(c), map[string]interface{}{
			"path": c.Request.URL.Path,
		}, err)
	}
	c.JSON(status, body)
}
