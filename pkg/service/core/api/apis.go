package api

import (
	"github.com/navikt/datatalk/pkg/config"
	"github.com/navikt/datatalk/pkg/service"
	httpapi "github.com/navikt/datatalk/pkg/service/core/api/http"
	"github.com/rs/zerolog"
)

type Clients struct {
	ConnectionAPI service.ConnectionAPI
	RegistryAPI   service.RegistryAPI
	QnAAPI        service.QnAAPI
}

func NewClients(
	cfg config.Config,
	log zerolog.Logger,
) *Clients {
	registryAPI := httpapi.NewRegistryAPI(
		cfg.Backend.APIURL,
		cfg.Backend.Timeout(),
		cfg.Debug,
		log.With().Str("component", "registry").Logger(),
	)

	return &Clients{
		ConnectionAPI: registryAPI,
		RegistryAPI:   registryAPI,
		QnAAPI: httpapi.NewQnAAPI(
			cfg.Backend.APIURL,
			cfg.Backend.Timeout(),
			cfg.Debug,
			log.With().Str("component", "qna").Logger(),
		),
	}
}
