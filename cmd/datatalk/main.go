package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"github.com/navikt/datatalk/pkg/cache"
	"github.com/navikt/datatalk/pkg/config"
	"github.com/navikt/datatalk/pkg/service"
	"github.com/navikt/datatalk/pkg/service/core"
	apiclients "github.com/navikt/datatalk/pkg/service/core/api"
)

var (
	configFilePath = flag.String("config", "config.yaml", "path to config file")
	apiURL         = flag.String("api-url", "", "backend url, overrides backend.api_url")
)

func main() {
	flag.Parse()

	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	fileParts, err := config.ProcessConfigPath(*configFilePath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("processing config path")
	}

	cfg, err := config.NewFileSystemLoader().Load(fileParts.FileName, fileParts.Path, "DATATALK", config.NewDefaultEnvBinder())
	if err != nil {
		zlog.Fatal().Err(err).Msg("loading config")
	}

	if *apiURL != "" {
		cfg.Backend.APIURL = *apiURL
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

	policy, err := core.ParseColumnPolicy(cfg.Metadata.ColumnPolicy)
	if err != nil {
		zlog.Fatal().Err(err).Msg("parsing column policy")
	}

	mode, err := core.ParseChatMode(cfg.Chat.Mode)
	if err != nil {
		zlog.Fatal().Err(err).Msg("parsing chat mode")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	clients := apiclients.NewClients(cfg, zlog.With().Str("subsystem", "api_clients").Logger())

	var opts []core.Option
	if cfg.Metadata.SchemaCacheSeconds > 0 {
		opts = append(opts, core.WithSchemaCache(
			cache.New(cfg.Metadata.SchemaCacheExpiry(), zlog.With().Str("subsystem", "schema_cache").Logger()),
		))
	}

	services := core.NewServices(
		clients.ConnectionAPI,
		clients.RegistryAPI,
		clients.QnAAPI,
		policy,
		mode,
		cfg.Chat.Greeting,
		zlog,
		opts...,
	)

	model := service.ModelSelector{
		Provider: cfg.Chat.ModelProvider,
		Name:     cfg.Chat.ModelName,
	}

	if err := NewShell(services, model, os.Stdin, os.Stdout).Run(ctx); err != nil {
		zlog.Fatal().Err(err).Msg("running shell")
	}
}
