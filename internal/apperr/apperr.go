// Package apperr defines the error taxonomy shared by the ingestion,
// settlement and betting layers. Each error carries a Kind used for
// HTTP status mapping and a machine-readable Code.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error.
type Kind int

const (
	KindInternal Kind = iota
	KindDeferred
	KindNotFound
	KindConflict
	KindInvalid
	KindForbidden
	KindUnauthorized
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindDeferred:
		return "deferred"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalid:
		return "invalid"
	case KindForbidden:
		return "forbidden"
	case KindUnauthorized:
		return "unauthorized"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// Machine-readable codes.
const (
	CodeRaceNotFound        = "RACE_NOT_FOUND"
	CodeRaceLocked          = "RACE_LOCKED"
	CodeRaceNotLocked       = "RACE_NOT_LOCKED"
	CodeStakeLimitExceeded  = "STAKE_LIMIT_EXCEEDED"
	CodeMarketNotFound      = "MARKET_NOT_FOUND"
	CodeDuplicateMarket     = "DUPLICATE_MARKET"
	CodeNotLeagueMember     = "NOT_LEAGUE_MEMBER"
	CodeNoRaceResults       = "NO_RACE_RESULTS"
	CodeNoOutcomeFacts      = "NO_OUTCOME_FACTS"
	CodeNotFinalized        = "NOT_FINALIZED"
	CodeNoSession           = "NO_SESSION"
	CodeRevisionConflict    = "REVISION_CONFLICT"
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	CodeRateLimited         = "RATE_LIMITED"
	CodeInternal            = "INTERNAL_ERROR"
)

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// WithDetail attaches a structured detail and returns e.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func newf(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func Deferred(code, format string, args ...any) *Error {
	return newf(KindDeferred, code, format, args...)
}

func NotFound(code, format string, args ...any) *Error {
	return newf(KindNotFound, code, format, args...)
}

func Conflict(code, format string, args ...any) *Error {
	return newf(KindConflict, code, format, args...)
}

func Invalid(code, format string, args ...any) *Error {
	return newf(KindInvalid, code, format, args...)
}

func Forbidden(code, format string, args ...any) *Error {
	return newf(KindForbidden, code, format, args...)
}

func Unauthorized(format string, args ...any) *Error {
	return newf(KindUnauthorized, CodeUnauthorized, format, args...)
}

// Upstream wraps a provider failure.
func Upstream(err error, format string, args ...any) *Error {
	e := newf(KindUpstream, CodeUpstreamUnavailable, format, args...)
	e.Err = err
	return e
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// KindOf returns the Kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	if ae, ok := As(err); ok {
		return ae.Kind
	}
	return KindInternal
}

// IsDeferred reports whether err signals "not ready yet".
func IsDeferred(err error) bool {
	return err != nil && KindOf(err) == KindDeferred
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return err != nil && KindOf(err) == KindNotFound
}

// HTTPStatus maps an error to a response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindDeferred:
		return http.StatusAccepted
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindInvalid:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// CodeOf returns the machine code of err, defaulting to INTERNAL_ERROR.
func CodeOf(err error) string {
	if ae, ok := As(err); ok && ae.Code != "" {
		return ae.Code
	}
	return CodeInternal
}
