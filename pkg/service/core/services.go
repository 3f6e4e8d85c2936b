package core

import (
	"github.com/navikt/datatalk/pkg/cache"
	"github.com/navikt/datatalk/pkg/service"
	"github.com/rs/zerolog"
)

type Services struct {
	Connection *ConnectionCoordinator
	Onboarding *OnboardingSubmitter
	Registry   *Registry
	Metadata   *MetadataEditor
	Prompts    *PromptEditor
	Chat       *ChatSession
}

type options struct {
	schemas cache.Cacher
}

type Option func(*options)

// WithSchemaCache caches the live schemas read by the live_fallback column
// policy.
func WithSchemaCache(c cache.Cacher) Option {
	return func(o *options) {
		o.schemas = c
	}
}

func NewServices(
	connectionAPI service.ConnectionAPI,
	registryAPI service.RegistryAPI,
	qnaAPI service.QnAAPI,
	policy ColumnPolicy,
	mode ChatMode,
	greeting string,
	log zerolog.Logger,
	opts ...Option,
) *Services {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	registry := NewRegistry(registryAPI, log.With().Str("component", "registry").Logger())

	connection := NewConnectionCoordinator(
		connectionAPI,
		service.KindSQLite,
		log.With().Str("component", "connection").Logger(),
	)

	syncer := NewMetadataSync(
		registryAPI,
		connectionAPI,
		registry,
		policy,
		log.With().Str("component", "metadata").Logger(),
	)

	if o.schemas != nil {
		syncer.WithSchemaCache(o.schemas)
	}

	return &Services{
		Connection: connection,
		Onboarding: NewOnboardingSubmitter(
			registryAPI,
			connection,
			registry,
			log.With().Str("component", "onboarding").Logger(),
		),
		Registry: registry,
		Metadata: NewMetadataEditor(
			syncer,
			registryAPI,
			registry,
			log.With().Str("component", "metadata").Logger(),
		),
		Prompts: NewPromptEditor(
			registryAPI,
			log.With().Str("component", "prompts").Logger(),
		),
		Chat: NewChatSession(
			qnaAPI,
			mode,
			greeting,
			log.With().Str("component", "chat").Logger(),
		),
	}
}
