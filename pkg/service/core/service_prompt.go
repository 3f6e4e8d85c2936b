package core

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/navikt/datatalk/pkg/errs"
	"github.com/navikt/datatalk/pkg/service"
)

// PromptEditor reads and writes the per table prompt used when answering
// questions about a table.
type PromptEditor struct {
	api service.RegistryAPI
	log zerolog.Logger
}

func (p *PromptEditor) Get(ctx context.Context, rec service.TableRecord) (*service.PromptConfig, error) {
	const op errs.Op = "PromptEditor.Get"

	cfg, err := p.api.GetTablePrompt(ctx, rec.TableID)
	if err != nil {
		return nil, errs.E(op, err)
	}

	if cfg.TableID == "" {
		cfg.TableID = rec.TableID
	}

	return cfg, nil
}

func (p *PromptEditor) Save(ctx context.Context, rec service.TableRecord, prompt string) error {
	const op errs.Op = "PromptEditor.Save"

	cfg := service.PromptConfig{
		TableID:      rec.TableID,
		TableName:    rec.Name,
		DatabaseType: string(rec.Type),
		Prompt:       prompt,
	}

	if err := p.api.SaveTablePrompt(ctx, cfg); err != nil {
		return errs.E(op, err)
	}

	p.log.Info().Str("table_id", rec.TableID).Msg("prompt saved")

	return nil
}

func NewPromptEditor(api service.RegistryAPI, log zerolog.Logger) *PromptEditor {
	return &PromptEditor{
		api: api,
		log: log,
	}
}
