// Package transport turns typed handler functions into http.HandlerFuncs.
//
// Inspired by:
// - https://www.willem.dev/articles/generic-http-handlers/ - for use of generics
// - https://github.com/go-kit/kit - for StatusCoder interface

package transport

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/navikt/datatalk/pkg/errs"
	"github.com/rs/zerolog"
)

type StatusCoder interface {
	StatusCode() int
}

type Encoder interface {
	Encode(w http.ResponseWriter) error
}

// Validator is implemented by request bodies that can check themselves after
// decoding.
type Validator interface {
	Validate() error
}

// DecoderFunc is a function that decodes a request into a struct
type DecoderFunc[In any] func(r *http.Request) (In, error)

// TargetFunc handles the decoded request. The http.Request is passed along
// for path and query parameters.
type TargetFunc[In any, Out any] func(context.Context, *http.Request, In) (Out, error)

type Transport[In any, Out any] struct {
	decoderFn DecoderFunc[In]
	targetFn  TargetFunc[In, Out]
}

func For[In any, Out any](target TargetFunc[In, Out]) *Transport[In, Out] {
	return &Transport[In, Out]{
		targetFn: target,
	}
}

// RequestFromJSON decodes the body as JSON. Bodies implementing Validator are
// validated, and a failure is reported as a validation error.
func (h *Transport[In, Out]) RequestFromJSON() *Transport[In, Out] {
	h.decoderFn = func(r *http.Request) (In, error) {
		const op errs.Op = "transport.RequestFromJSON"

		var in In

		err := json.NewDecoder(r.Body).Decode(&in)
		if err != nil {
			return in, errs.E(errs.InvalidRequest, op, err)
		}

		if v, ok := any(in).(Validator); ok {
			if err := v.Validate(); err != nil {
				return in, errs.E(errs.Validation, op, err)
			}
		}

		return in, nil
	}

	return h
}

func (h *Transport[In, Out]) encode(w http.ResponseWriter, out Out) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	code := http.StatusOK
	if sc, ok := any(out).(StatusCoder); ok {
		code = sc.StatusCode()
	}

	w.WriteHeader(code)
	if code == http.StatusNoContent {
		return nil
	}

	return json.NewEncoder(w).Encode(out)
}

func (h *Transport[In, Out]) Build(logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger.Debug().Str("method", r.Method).Str("url", r.URL.RequestURI()).Msg("handling request")

		var in In
		var err error

		if h.decoderFn != nil {
			in, err = h.decoderFn(r)
			if err != nil {
				errs.HTTPErrorResponse(w, logger, err)
				return
			}
		}

		out, err := h.targetFn(r.Context(), r, in)
		if err != nil {
			errs.HTTPErrorResponse(w, logger, err)
			return
		}

		if v, ok := any(out).(Encoder); ok {
			err := v.Encode(w)
			if err != nil {
				errs.HTTPErrorResponse(w, logger, errs.E(errs.Internal, err))
			}

			return
		}

		err = h.encode(w, out)
		if err != nil {
			logger.Error().Err(err).Msg("encoding response")
		}
	}
}

// Empty provides a convenience struct for returning an empty response
type Empty struct{}

func (e *Empty) StatusCode() int {
	return http.StatusNoContent
}

// ByteWriter writes a raw body with the given content type.
type ByteWriter struct {
	data        []byte
	contentType string
}

func (b *ByteWriter) Encode(w http.ResponseWriter) error {
	w.Header().Set("Content-Type", b.contentType)
	w.WriteHeader(http.StatusOK)

	_, err := w.Write(b.data)

	return err
}

func NewByteWriter(typ string, data []byte) *ByteWriter {
	return &ByteWriter{
		data:        data,
		contentType: typ,
	}
}
