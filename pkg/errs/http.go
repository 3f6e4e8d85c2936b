package errs

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
)

// ErrResponse is the body written for every error response. The detail field
// is what clients display to the user.
type ErrResponse struct {
	Detail string `json:"detail"`
	Kind   string `json:"kind,omitempty"`
	Param  string `json:"param,omitempty"`
	Code   string `json:"code,omitempty"`
}

// HTTPStatus maps an error kind to a response status.
func HTTPStatus(kind Kind) int {
	switch kind {
	case Invalid, Validation, InvalidRequest:
		return http.StatusBadRequest
	case NotExist:
		return http.StatusNotFound
	case Exist, Busy:
		return http.StatusConflict
	case Precondition:
		return http.StatusPreconditionFailed
	case Unauthenticated:
		return http.StatusUnauthorized
	case Unauthorized:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// HTTPErrorResponse logs the error and writes a JSON error response.
func HTTPErrorResponse(w http.ResponseWriter, log zerolog.Logger, err error) {
	if err == nil {
		log.Error().Msg("nil error, not writing error response")
		return
	}

	var e *Error
	if !errors.As(err, &e) {
		log.Error().Err(err).Msg("unknown error")
		writeResponse(w, log, http.StatusInternalServerError, ErrResponse{Detail: "Unexpected error"})

		return
	}

	kind := KindOf(err)
	status := HTTPStatus(kind)

	ev := log.Error()
	if status < http.StatusInternalServerError {
		ev = log.Warn()
	}

	ev.Err(err).
		Int("http_status", status).
		Str("kind", kind.String()).
		Strs("stack", OpStack(err)).
		Msg("error response")

	resp := ErrResponse{
		Detail: Msg(err),
		Kind:   kind.String(),
		Param:  string(paramOf(err)),
		Code:   string(CodeOf(err)),
	}

	if status == http.StatusInternalServerError && kind != IO && kind != Database {
		resp.Detail = "Unexpected error"
	}

	writeResponse(w, log, status, resp)
}

// paramOf returns the first parameter found in the chain.
func paramOf(err error) Parameter {
	var e *Error
	for errors.As(err, &e) {
		if e.Param != "" {
			return e.Param
		}

		err = e.Err
	}

	return ""
}

// CodeOf returns the first code found in the chain.
func CodeOf(err error) Code {
	var e *Error
	for errors.As(err, &e) {
		if e.Code != "" {
			return e.Code
		}

		err = e.Err
	}

	return ""
}

func writeResponse(w http.ResponseWriter, log zerolog.Logger, status int, resp ErrResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("encoding error response")
	}
}
