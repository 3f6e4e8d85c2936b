package http

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/navikt/datatalk/pkg/errs"
	"github.com/navikt/datatalk/pkg/service"
)

var (
	_ service.RegistryAPI   = &registryAPI{}
	_ service.ConnectionAPI = &registryAPI{}
)

type registryAPI struct {
	*client
}

func (a *registryAPI) TestConnection(ctx context.Context, req service.SchemaRequest) (*service.SchemaSnapshot, error) {
	const op errs.Op = "registryAPI.TestConnection"

	snapshot := &service.SchemaSnapshot{}

	if err := a.request(ctx, http.MethodPost, "/api/v1/get-schema", req, snapshot); err != nil {
		return nil, errs.E(op, err)
	}

	return snapshot, nil
}

func (a *registryAPI) OnboardTable(ctx context.Context, req service.OnboardTableRequest) (*service.OnboardTableResponse, error) {
	const op errs.Op = "registryAPI.OnboardTable"

	resp := &service.OnboardTableResponse{}

	if err := a.request(ctx, http.MethodPost, "/api/v1/onboard-table", req, resp); err != nil {
		return nil, errs.E(op, err)
	}

	if resp.TableID == "" {
		return nil, errs.E(errs.IO, op, errs.Parameter("table_id"), "onboarding response is missing the table id")
	}

	return resp, nil
}

func (a *registryAPI) ListTables(ctx context.Context) ([]service.TableRecord, error) {
	const op errs.Op = "registryAPI.ListTables"

	var tables []service.TableRecord

	if err := a.request(ctx, http.MethodGet, "/api/v1/tables", nil, &tables); err != nil {
		return nil, errs.E(op, err)
	}

	return tables, nil
}

func (a *registryAPI) GetTableMetadata(ctx context.Context, tableID string) (*service.TableMetadata, error) {
	const op errs.Op = "registryAPI.GetTableMetadata"

	meta := &service.TableMetadata{}

	if err := a.request(ctx, http.MethodGet, tablePath(tableID, "metadata"), nil, meta); err != nil {
		return nil, errs.E(op, err)
	}

	return meta, nil
}

func (a *registryAPI) SaveTableMetadata(ctx context.Context, tableID string, meta service.TableMetadata) error {
	const op errs.Op = "registryAPI.SaveTableMetadata"

	if meta.Columns == nil {
		meta.Columns = []service.ColumnMetadata{}
	}

	if err := a.request(ctx, http.MethodPost, tablePath(tableID, "metadata"), meta, &service.StatusResponse{}); err != nil {
		return errs.E(op, err)
	}

	return nil
}

func (a *registryAPI) GetTablePrompt(ctx context.Context, tableID string) (*service.PromptConfig, error) {
	const op errs.Op = "registryAPI.GetTablePrompt"

	cfg := &service.PromptConfig{}

	if err := a.request(ctx, http.MethodGet, tablePath(tableID, "prompt"), nil, cfg); err != nil {
		return nil, errs.E(op, err)
	}

	return cfg, nil
}

func (a *registryAPI) SaveTablePrompt(ctx context.Context, cfg service.PromptConfig) error {
	const op errs.Op = "registryAPI.SaveTablePrompt"

	if err := a.request(ctx, http.MethodPost, tablePath(cfg.TableID, "prompt"), cfg, &service.StatusResponse{}); err != nil {
		return errs.E(op, err)
	}

	return nil
}

func tablePath(tableID, resource string) string {
	return "/api/v1/tables/" + url.PathEscape(tableID) + "/" + resource
}

// NewRegistryAPI returns a client for the connection test, onboarding and
// table registry endpoints.
func NewRegistryAPI(apiURL string, timeout time.Duration, debug bool, log zerolog.Logger) *registryAPI {
	return &registryAPI{
		client: newClient(apiURL, timeout, debug, log),
	}
}
