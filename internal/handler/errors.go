package handler

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/segyhp/library-engine/internal/logger"
	customError "github.com/segyhp/library-engine/pkg/errors"
	"github.com/segyhp/library-engine/pkg/response"
)

var errorStatus = []struct {
	target error
	status int
}{
	{customError.ErrValidation, http.StatusBadRequest},
	{customError.ErrUserNotFound, http.StatusNotFound},
	{customError.ErrUserInactive, http.StatusForbidden},
	{customError.ErrBookNotFound, http.StatusNotFound},
	{customError.ErrLoanNotFound, http.StatusNotFound},
	{customError.ErrForbidden, http.StatusForbidden},
	{customError.ErrBookUnavailable, http.StatusConflict},
	{customError.ErrDuplicateLoan, http.StatusConflict},
	{customError.ErrLoanLimitExceeded, http.StatusConflict},
	{customError.ErrInvalidState, http.StatusConflict},
	{customError.ErrConflict, http.StatusConflict},
}

// statusFor maps an engine error onto an HTTP status; unknown errors are 500.
func statusFor(err error) int {
	for _, e := range errorStatus {
		if errors.Is(err, e.target) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// writeError renders err. Internal details never reach the client.
func (h *LoanHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.FromContext(r.Context(), h.logger).Error("request failed",
			zap.String("path", r.URL.Path), zap.Error(err))
		response.InternalServerError(w, "internal error")
		return
	}

	var be *customError.BusinessError
	if errors.As(err, &be) {
		response.Error(w, status, be.Code, be.Message, be.Fields)
		return
	}
	response.Error(w, status, customError.CodeOf(err), err.Error(), nil)
}
