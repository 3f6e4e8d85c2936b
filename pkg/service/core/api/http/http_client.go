package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"strings"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/navikt/datatalk/pkg/errs"
)

// APIError is a non 2xx response from the backend. Message is what the user
// should see.
type APIError struct {
	Status  int
	Message string
	// Code is the machine readable code of the error, when the backend sent one.
	Code string
}

func (e *APIError) Error() string {
	return e.Message
}

type client struct {
	c     *http.Client
	url   string
	log   zerolog.Logger
	debug bool
}

func newClient(apiURL string, timeout time.Duration, debug bool, log zerolog.Logger) *client {
	return &client{
		c: &http.Client{
			Timeout: timeout,
		},
		url:   strings.TrimRight(apiURL, "/"),
		log:   log,
		debug: debug,
	}
}

func (c *client) request(ctx context.Context, method, path string, body, v any) error {
	const op errs.Op = "client.request"

	var buf io.Reader
	if body != nil {
		data, err := gojson.Marshal(body)
		if err != nil {
			return errs.E(errs.IO, op, err, errs.Parameter("request_body"))
		}

		buf = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url+path, buf)
	if err != nil {
		return errs.E(errs.IO, op, err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	req.Header.Set("Accept", "application/json")

	res, err := c.c.Do(req)
	if err != nil {
		return errs.E(errs.IO, op, err)
	}
	defer res.Body.Close()

	if c.debug {
		respdump, _ := httputil.DumpResponse(res, false)
		c.log.Debug().Str("method", method).Str("path", path).Msg(string(respdump))
	}

	if res.StatusCode > 299 {
		raw, err := io.ReadAll(res.Body)
		if err != nil {
			return errs.E(errs.IO, op, err)
		}

		apiErr := &APIError{
			Status:  res.StatusCode,
			Message: ErrorMessage(res.StatusCode, raw),
			Code:    errorCode(raw),
		}

		c.log.Warn().Fields(map[string]any{
			"status":        res.StatusCode,
			"error_message": apiErr.Message,
			"method":        method,
			"path":          path,
		}).Msg("backend_request")

		return errs.E(kindForStatus(res.StatusCode), op, errs.Code(apiErr.Code), apiErr)
	}

	if v == nil {
		return nil
	}

	// Result rows rely on encoding/json calling their UnmarshalJSON with
	// the raw bytes, so responses are decoded with the standard library.
	if err := json.NewDecoder(res.Body).Decode(v); err != nil {
		return errs.E(errs.IO, op, err, errs.Parameter("response_body"))
	}

	return nil
}

// ErrorMessage extracts the message of an error response: the detail field
// when the body carries one, else the raw body, else a message derived from
// the status code.
func ErrorMessage(status int, body []byte) string {
	var structured struct {
		Detail json.RawMessage `json:"detail"`
	}

	if err := json.Unmarshal(body, &structured); err == nil && len(structured.Detail) > 0 && string(structured.Detail) != "null" {
		var s string
		if err := json.Unmarshal(structured.Detail, &s); err == nil {
			return s
		}

		return string(structured.Detail)
	}

	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}

	return fmt.Sprintf("request failed: %d %s", status, http.StatusText(status))
}

func errorCode(body []byte) string {
	var structured struct {
		Code string `json:"code"`
	}

	if err := json.Unmarshal(body, &structured); err != nil {
		return ""
	}

	return structured.Code
}

func kindForStatus(status int) errs.Kind {
	switch {
	case status == http.StatusNotFound:
		return errs.NotExist
	case status == http.StatusConflict:
		return errs.Exist
	case status == http.StatusUnauthorized:
		return errs.Unauthenticated
	case status == http.StatusForbidden:
		return errs.Unauthorized
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return errs.InvalidRequest
	}

	return errs.IO
}
