package main

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"github.com/navikt/datatalk/pkg/config"
	"github.com/navikt/datatalk/pkg/emulator"
	"github.com/navikt/datatalk/pkg/introspect"
	"github.com/navikt/datatalk/pkg/requestlogger"
)

var (
	configFilePath = flag.String("config", "config.yaml", "path to config file")
	printRoutes    = flag.Bool("print-routes", false, "print the routes and exit")
	version        = flag.String("version", emulator.DefaultVersion, "version reported by the health endpoint")
	answersPath    = flag.String("answers", "", "yaml file of canned answers to questions, replaces the built-in examples")
)

//go:embed answers.yaml
var defaultAnswers []byte

func main() {
	flag.Parse()

	zlog := zerolog.New(os.Stdout).With().Timestamp().Logger()

	fileParts, err := config.ProcessConfigPath(*configFilePath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("processing config path")
	}

	cfg, err := config.NewFileSystemLoader().Load(fileParts.FileName, fileParts.Path, "DATATALK", config.NewDefaultEnvBinder())
	if err != nil {
		zlog.Fatal().Err(err).Msg("loading config")
	}

	err = cfg.Validate()
	if err != nil {
		zlog.Fatal().Err(err).Msg("validating config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		zlog.Fatal().Err(err).Msg("parsing log level")
	}

	zlog = zlog.Level(level)

	e := emulator.New(
		introspect.New(cfg.Emulator.Postgres, zlog.With().Str("subsystem", "introspect").Logger()),
		zlog.With().Str("subsystem", "emulator").Logger(),
		emulator.WithVersion(*version),
	)

	answers := defaultAnswers
	if *answersPath != "" {
		answers, err = os.ReadFile(*answersPath)
		if err != nil {
			zlog.Fatal().Err(err).Msg("reading answers")
		}
	}

	if err := e.Answers().Load(bytes.NewReader(answers)); err != nil {
		zlog.Fatal().Err(err).Msg("loading answers")
	}

	if *printRoutes {
		if err := e.PrintRoutes(os.Stdout); err != nil {
			zlog.Fatal().Err(err).Msg("printing routes")
		}

		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	server := http.Server{
		Addr: net.JoinHostPort(cfg.Emulator.Address, cfg.Emulator.Port),
		Handler: e.Handler(
			middleware.RequestID,
			requestlogger.Middleware(zlog.With().Str("subsystem", "requestlogger").Logger(), "/internal/metrics", "/health"),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zlog.Info().Str("address", server.Addr).Msg("starting datatalk emulator")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal().Err(err).Msg("serving emulator")
		}
	}()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Warn().Err(err).Msg("shutdown error")
	}
}
