package core

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/navikt/datatalk/pkg/errs"
	"github.com/navikt/datatalk/pkg/service"
)

// OnboardingSubmitter commits a successfully tested descriptor to the server
// side registry.
type OnboardingSubmitter struct {
	api         service.RegistryAPI
	coordinator *ConnectionCoordinator
	registry    *Registry
	log         zerolog.Logger

	mu   sync.Mutex
	busy bool
}

func (s *OnboardingSubmitter) Submit(ctx context.Context) (*service.TableRecord, error) {
	const op errs.Op = "OnboardingSubmitter.Submit"

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return nil, errs.E(errs.Busy, op, "onboarding is already in progress")
	}
	s.busy = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	d, err := s.coordinator.Descriptor()
	if err != nil {
		return nil, errs.E(op, err)
	}

	if _, err := s.coordinator.Authorize(d); err != nil {
		return nil, errs.E(op, err)
	}

	req, err := service.NewOnboardTableRequest(d)
	if err != nil {
		return nil, errs.E(errs.Validation, op, errs.Parameter(service.FieldTableName), err)
	}

	resp, err := s.api.OnboardTable(ctx, req)
	if err != nil {
		s.log.Info().Str("kind", string(req.Type)).Str("message", errs.Msg(err)).Msg("onboarding failed")
		return nil, errs.E(op, err)
	}

	rec := resp.Record(req)

	err = s.registry.Add(rec, d)
	if err != nil {
		return nil, errs.E(op, err)
	}

	s.coordinator.ResetIf(d)

	s.log.Info().Str("table_id", rec.TableID).Str("kind", string(rec.Type)).Msg("table onboarded")

	return &rec, nil
}

func (s *OnboardingSubmitter) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.busy
}

func NewOnboardingSubmitter(
	api service.RegistryAPI,
	coordinator *ConnectionCoordinator,
	registry *Registry,
	log zerolog.Logger,
) *OnboardingSubmitter {
	return &OnboardingSubmitter{
		api:         api,
		coordinator: coordinator,
		registry:    registry,
		log:         log,
	}
}
