package realtime

import (
	"errors"
	"regexp"
	"strings"

	"github.com/gosuda/plank/internal/domain"
)

// Error codes sent to clients.
const (
	CodeNoAccess         = "no_access"
	CodeInsufficientRole = "insufficient_role"
	CodeNotFound         = "not_found"
	CodeInvalidTarget    = "invalid_target"
	CodeBadRequest       = "bad_request"
	CodeRateLimited      = "rate_limited"
	CodeUnavailable      = "unavailable"
)

var codeMessages = map[string]string{
	CodeNoAccess:         "you do not have access to this board",
	CodeInsufficientRole: "your role does not allow this action",
	CodeNotFound:         "the target no longer exists",
	CodeInvalidTarget:    "the destination is not valid for this entity",
	CodeRateLimited:      "too many requests, slow down",
	CodeUnavailable:      "the server could not complete the request, try again",
}

// ErrorCode maps an error chain to its wire code. Anything unrecognised is
// reported as unavailable.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrNoAccess):
		return CodeNoAccess
	case errors.Is(err, domain.ErrInsufficientRole):
		return CodeInsufficientRole
	case errors.Is(err, domain.ErrUnavailable):
		return CodeUnavailable
	case errors.Is(err, domain.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, domain.ErrInvalidTarget):
		return CodeInvalidTarget
	case errors.Is(err, domain.ErrBadRequest):
		return CodeBadRequest
	case errors.Is(err, domain.ErrRateLimited):
		return CodeRateLimited
	default:
		return CodeUnavailable
	}
}

// callerPrefix matches the "pkg.Func: " segments errors collect while being
// wrapped on their way up.
var callerPrefix = regexp.MustCompile(`^(?:[a-z][A-Za-z0-9]*(?:\.[A-Za-z0-9]+)+: )+`)

// errorPayload builds the client-facing error. Validation detail is passed
// through; everything else gets a fixed message.
func errorPayload(err error) ErrorPayload {
	code := ErrorCode(err)
	if code == CodeBadRequest {
		return ErrorPayload{Code: code, Message: validationMessage(err)}
	}
	return ErrorPayload{Code: code, Message: codeMessages[code]}
}

// validationMessage is err's text without caller prefixes or the sentinel
// suffix, e.g. "card: title is required".
func validationMessage(err error) string {
	msg := strings.TrimSuffix(err.Error(), ": "+domain.ErrBadRequest.Error())
	msg = callerPrefix.ReplaceAllString(msg, "")
	if msg == "" {
		return "malformed request"
	}
	return msg
}
