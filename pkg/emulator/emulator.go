// Package emulator is an in-memory implementation of the datatalk backend,
// used by tests and for running the shell locally.
package emulator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/http/httputil"
	"strconv"
	"sync"
	"time"

	"github.com/docker/cli/cli/command/formatter/tabwriter"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/navikt/datatalk/pkg/errs"
	"github.com/navikt/datatalk/pkg/service"
	"github.com/navikt/datatalk/pkg/service/core/transport"
)

const DefaultVersion = "1.0.0"

// Prober reads the live schema of a data source.
type Prober interface {
	Probe(ctx context.Context, d service.Descriptor) (*service.SchemaSnapshot, error)
}

type Emulator struct {
	router *chi.Mux

	prober   Prober
	answerer service.QnAAPI
	version  string

	mu       sync.Mutex
	tables   []*entry
	byID     map[string]*entry
	hashes   map[string]string
	metadata map[string]service.TableMetadata
	prompts  map[string]service.PromptConfig
	err      error

	promReg  *prometheus.Registry
	requests *prometheus.CounterVec

	now func() time.Time
	log zerolog.Logger

	server *httptest.Server
}

type Option func(e *Emulator)

// WithAnswerer replaces the canned answerer used by the question endpoints.
func WithAnswerer(a service.QnAAPI) Option {
	return func(e *Emulator) {
		e.answerer = a
	}
}

func WithVersion(version string) Option {
	return func(e *Emulator) {
		e.version = version
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Emulator) {
		e.now = now
	}
}

func New(prober Prober, log zerolog.Logger, opts ...Option) *Emulator {
	e := &Emulator{
		router:   chi.NewRouter(),
		prober:   prober,
		answerer: NewCanned(),
		version:  DefaultVersion,
		byID:     map[string]*entry{},
		hashes:   map[string]string{},
		metadata: map[string]service.TableMetadata{},
		prompts:  map[string]service.PromptConfig{},
		promReg:  prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "datatalk",
			Subsystem: "emulator",
			Name:      "requests_total",
			Help:      "Requests handled by the emulator, by route and status.",
		}, []string{"method", "route", "status"}),
		now: time.Now,
		log: log,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.promReg.MustRegister(e.requests)

	e.routes()

	return e
}

func (e *Emulator) routes() {
	e.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowCredentials: true,
	}))

	e.router.Handle("/internal/metrics", promhttp.HandlerFor(e.promReg, promhttp.HandlerOpts{}))
	e.router.Get("/internal/routes", transport.For(e.listRoutes).Build(e.log))

	e.router.Group(func(r chi.Router) {
		r.Use(e.countRequests)

		r.Get("/health", transport.For(e.health).Build(e.log))

		r.Route("/api/v1", func(r chi.Router) {
			r.Use(e.injectError)

			r.Post("/get-schema", transport.For(e.getSchema).RequestFromJSON().Build(e.log))
			r.Post("/onboard-table", transport.For(e.onboardTable).RequestFromJSON().Build(e.log))

			r.Get("/tables", transport.For(e.listTables).Build(e.log))
			r.Get("/tables/{table_id}/metadata", transport.For(e.getMetadata).Build(e.log))
			r.Post("/tables/{table_id}/metadata", transport.For(e.saveMetadata).RequestFromJSON().Build(e.log))
			r.Get("/tables/{table_id}/prompt", transport.For(e.getPrompt).Build(e.log))
			r.Post("/tables/{table_id}/prompt", transport.For(e.savePrompt).RequestFromJSON().Build(e.log))

			r.Post("/query", transport.For(e.ask).RequestFromJSON().Build(e.log))
			r.Post("/qna", transport.For(e.askRich).RequestFromJSON().Build(e.log))
		})
	})

	e.router.NotFound(e.notFound)
}

// Handler returns the router wrapped in the given middlewares.
func (e *Emulator) Handler(middlewares ...func(http.Handler) http.Handler) http.Handler {
	var h http.Handler = e.router

	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}

	return h
}

func (e *Emulator) Run() string {
	e.log.Info().Msg("starting datatalk emulator")

	e.server = httptest.NewServer(e)

	return e.server.URL
}

// Reset forgets every onboarded table and stops the test server, if running.
func (e *Emulator) Reset() {
	e.mu.Lock()
	e.tables = nil
	e.byID = map[string]*entry{}
	e.hashes = map[string]string{}
	e.metadata = map[string]service.TableMetadata{}
	e.prompts = map[string]service.PromptConfig{}
	e.err = nil
	e.mu.Unlock()

	if e.server != nil {
		e.server.Close()
		e.server = nil
	}
}

// SetError makes the next api request fail with err. Errors without a kind
// are reported as IO errors.
func (e *Emulator) SetError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.err = err
}

func (e *Emulator) takeError() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	err := e.err
	e.err = nil

	return err
}

func (e *Emulator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.router.ServeHTTP(w, r)
}

func (e *Emulator) Metrics() *prometheus.Registry {
	return e.promReg
}

func (e *Emulator) injectError(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const op errs.Op = "Emulator.injectError"

		if err := e.takeError(); err != nil {
			if errs.KindOf(err) == errs.Other {
				err = errs.E(errs.IO, op, err)
			}

			errs.HTTPErrorResponse(w, e.log, err)

			return
		}

		next.ServeHTTP(w, r)
	})
}

func (e *Emulator) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		e.requests.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
	})
}

func (e *Emulator) notFound(w http.ResponseWriter, r *http.Request) {
	const op errs.Op = "Emulator.notFound"

	request, err := httputil.DumpRequest(r, true)
	if err != nil {
		errs.HTTPErrorResponse(w, e.log, errs.E(errs.IO, op, err))

		return
	}

	e.log.Warn().Str("request", string(request)).Msg("not found")

	errs.HTTPErrorResponse(w, e.log, errs.E(errs.NotExist, op, "Not Found"))
}

// PrintRoutes writes a table of every registered route.
func (e *Emulator) PrintRoutes(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "Method\tRoute\tMiddlewares")

	err := chi.Walk(e.router, func(method, route string, _ http.Handler, middlewares ...func(http.Handler) http.Handler) error {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\n", method, route, len(middlewares))

		return nil
	})
	if err != nil {
		return fmt.Errorf("walking routes: %w", err)
	}

	return w.Flush()
}

func (e *Emulator) listRoutes(_ context.Context, _ *http.Request, _ any) (*transport.ByteWriter, error) {
	const op errs.Op = "Emulator.listRoutes"

	var buf bytes.Buffer

	if err := e.PrintRoutes(&buf); err != nil {
		return nil, errs.E(errs.Internal, op, err)
	}

	return transport.NewByteWriter("text/plain; charset=utf-8", buf.Bytes()), nil
}
