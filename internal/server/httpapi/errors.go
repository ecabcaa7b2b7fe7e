package httpapi

import (
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/sonifoy/authsvc/internal/common"
)

// Machine-readable error codes. Clients rely on them staying stable.
const (
	CodeValidation         = "validation_error"
	CodeMalformedBody      = "malformed_body"
	CodeDuplicateIdentity  = "duplicate_identity"
	CodeNotFound           = "not_found"
	CodeInvalidCredentials = "invalid_credentials"
	CodeInvalidCode        = "invalid_code"
	CodeInvalidOrExpired   = "invalid_or_expired_token"
	CodeSessionSetupFailed = "session_setup_failed"
	CodeStoreUnavailable   = "store_unavailable"
	CodeInternal           = "internal_error"
	CodeMethodNotAllowed   = "method_not_allowed"
)

// errorMapping is checked in order; session setup failures also wrap the
// store error, so they must precede ErrStoreUnavailable.
var errorMapping = []struct {
	err    error
	status int
	code   string
}{
	{common.ErrorValidation, http.StatusBadRequest, CodeValidation},
	{common.ErrDuplicateIdentity, http.StatusConflict, CodeDuplicateIdentity},
	{common.ErrorNotFound, http.StatusNotFound, CodeNotFound},
	{common.ErrInvalidCredentials, http.StatusUnauthorized, CodeInvalidCredentials},
	{common.ErrInvalidCode, http.StatusBadRequest, CodeInvalidCode},
	{common.ErrInvalidOrExpiredToken, http.StatusUnauthorized, CodeInvalidOrExpired},
	{common.ErrSessionSetupFailed, http.StatusServiceUnavailable, CodeSessionSetupFailed},
	{common.ErrStoreUnavailable, http.StatusServiceUnavailable, CodeStoreUnavailable},
}

// toErrorResponse maps err to a status and body. Internal details of
// unexpected errors are not exposed.
func toErrorResponse(err error) (int, *ErrorResponse) {
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for k, v := range verrs {
			fields[k] = v.Error()
		}
		return http.StatusBadRequest, &ErrorResponse{Code: CodeValidation, Message: "request validation failed", Fields: fields}
	}

	for _, m := range errorMapping {
		if errors.Is(err, m.err) {
			return m.status, &ErrorResponse{Code: m.code, Message: m.err.Error()}
		}
	}

	return http.StatusInternalServerError, &ErrorResponse{Code: CodeInternal, Message: "internal error"}
}
