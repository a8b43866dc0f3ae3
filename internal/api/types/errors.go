package types

import (
	"net/http"

	appErr "github.com/cloudconsole/engine/pkg/errors"
)

// HTTPStatus maps an error code to the response status.
func HTTPStatus(code appErr.Code) int {
	switch code {
	case appErr.CodeInvalid, appErr.CodeUserNotFound, appErr.CodeProviderUnset:
		return http.StatusBadRequest
	case appErr.CodeNotFound:
		return http.StatusNotFound
	case appErr.CodeConflict:
		return http.StatusConflict
	case appErr.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FromAppError renders err as an error envelope and returns its status.
func FromAppError(err error) (int, Envelope) {
	if err == nil {
		return http.StatusOK, Success("", nil)
	}
	return HTTPStatus(appErr.CodeOf(err)), Envelope{Status: StatusError, Message: appErr.MessageOf(err)}
}
