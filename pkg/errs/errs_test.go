package errs_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/navikt/datatalk/pkg/errs"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestE(t *testing.T) {
	const inner errs.Op = "inner.Op"
	const outer errs.Op = "outer.Op"

	err := errs.E(outer, errs.E(errs.NotExist, inner, errs.Parameter("table_id"), "table not found"))

	assert.True(t, errs.KindIs(errs.NotExist, err))
	assert.False(t, errs.KindIs(errs.Exist, err))
	assert.Equal(t, errs.NotExist, errs.KindOf(err))
	assert.Equal(t, []string{"outer.Op", "inner.Op"}, errs.OpStack(err))
	assert.Equal(t, "table not found", errs.Msg(err))
	assert.Equal(t, "outer.Op: item does not exist:\n\tinner.Op: parameter table_id: table not found", err.Error())
}

func TestMsg(t *testing.T) {
	testCases := []struct {
		name   string
		err    error
		expect string
	}{
		{
			name:   "nil",
			err:    nil,
			expect: "",
		},
		{
			name:   "plain",
			err:    fmt.Errorf("boom"),
			expect: "boom",
		},
		{
			name:   "kind only",
			err:    errs.E(errs.Busy, errs.Op("x")),
			expect: "operation in progress",
		},
		{
			name:   "wrapped plain",
			err:    errs.E(errs.IO, errs.Op("x"), fmt.Errorf("connection refused")),
			expect: "connection refused",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, errs.Msg(tc.err))
		})
	}
}

func TestHTTPErrorResponse(t *testing.T) {
	testCases := []struct {
		name   string
		err    error
		status int
		detail string
	}{
		{
			name:   "exists",
			err:    errs.E(errs.Exist, errs.Op("emulator.onboard"), "Table already exists."),
			status: http.StatusConflict,
			detail: "Table already exists.",
		},
		{
			name:   "not exist",
			err:    errs.E(errs.NotExist, errs.Op("emulator.saveMetadata"), "Table metadata not found"),
			status: http.StatusNotFound,
			detail: "Table metadata not found",
		},
		{
			name:   "invalid request",
			err:    errs.E(errs.InvalidRequest, errs.Op("x"), "Unsupported DB type: mysql"),
			status: http.StatusBadRequest,
			detail: "Unsupported DB type: mysql",
		},
		{
			name:   "internal hides message",
			err:    errs.E(errs.Internal, errs.Op("x"), "nil pointer somewhere"),
			status: http.StatusInternalServerError,
			detail: "Unexpected error",
		},
		{
			name:   "io shows message",
			err:    errs.E(errs.IO, errs.Op("x"), "Database connection or reflection failed: dial tcp"),
			status: http.StatusInternalServerError,
			detail: "Database connection or reflection failed: dial tcp",
		},
		{
			name:   "unknown error",
			err:    fmt.Errorf("raw"),
			status: http.StatusInternalServerError,
			detail: "Unexpected error",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer

			rr := httptest.NewRecorder()
			errs.HTTPErrorResponse(rr, zerolog.New(&buf), tc.err)

			assert.Equal(t, tc.status, rr.Code)

			var got errs.ErrResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
			assert.Equal(t, tc.detail, got.Detail)
			assert.NotEmpty(t, buf.String())
		})
	}
}

func TestHTTPErrorResponse_NestedParameter(t *testing.T) {
	err := errs.E(errs.Op("Emulator.getSchema"),
		errs.E(errs.Op("Prober.Probe"),
			errs.E(errs.NotExist, errs.Op("introspect.PostgresTables"), errs.Parameter("table_name"), "Table 'missing' not found")))

	rr := httptest.NewRecorder()
	errs.HTTPErrorResponse(rr, zerolog.Nop(), err)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.JSONEq(t, `{"detail": "Table 'missing' not found", "kind": "item does not exist", "param": "table_name"}`, rr.Body.String())
}
