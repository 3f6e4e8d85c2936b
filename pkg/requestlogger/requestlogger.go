// Package requestlogger logs one line per handled request.
package requestlogger

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/mileusna/useragent"
	"github.com/rs/zerolog"
)

const unknown = "n/a"

// Middleware logs every request, except those whose path is one of the
// filters.
func Middleware(logger zerolog.Logger, pathFilters ...string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			for _, filter := range pathFilters {
				if filter == r.URL.Path {
					next.ServeHTTP(w, r)
					return
				}
			}

			requestID := middleware.GetReqID(r.Context())
			if requestID == "" {
				requestID = unknown
			}

			log := logger.With().Str("request_id", requestID).Logger()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			t1 := time.Now()
			defer func() {
				t2 := time.Now()

				bytesIn, err := strconv.Atoi(r.Header.Get("Content-Length"))
				if err != nil {
					bytesIn = 0
				}

				log.Info().Timestamp().Fields(map[string]interface{}{
					"remote_ip":  r.RemoteAddr,
					"request":    fmt.Sprintf("%s %s (response_code: %d)", r.Method, r.URL.Path, ww.Status()),
					"proto":      r.Proto,
					"browser":    browser(r.Header.Get("User-Agent")),
					"latency_ms": float64(t2.Sub(t1).Nanoseconds()) / 1000000.0,
					"bytes_in":   bytesIn,
					"bytes_out":  ww.BytesWritten(),
				}).Msg("incoming_request")
			}()

			next.ServeHTTP(ww, r)
		}

		return http.HandlerFunc(fn)
	}
}

func browser(header string) string {
	if header == "" {
		return unknown
	}

	ua := useragent.Parse(header)

	name := ua.Name
	if name == "" {
		name = unknown
	}

	if ua.OS == "" {
		return name
	}

	return fmt.Sprintf("%s (%s)", name, ua.OS)
}
