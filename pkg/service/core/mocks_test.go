package core_test

import (
	"context"

	"github.com/navikt/datatalk/pkg/service"
	"github.com/stretchr/testify/mock"
)

type MockConnectionAPI struct {
	mock.Mock
}

func (m *MockConnectionAPI) TestConnection(ctx context.Context, req service.SchemaRequest) (*service.SchemaSnapshot, error) {
	args := m.Called(ctx, req)

	snapshot, _ := args.Get(0).(*service.SchemaSnapshot)

	return snapshot, args.Error(1)
}

type MockRegistryAPI struct {
	mock.Mock
	service.RegistryAPI
}

func (m *MockRegistryAPI) OnboardTable(ctx context.Context, req service.OnboardTableRequest) (*service.OnboardTableResponse, error) {
	args := m.Called(ctx, req)

	resp, _ := args.Get(0).(*service.OnboardTableResponse)

	return resp, args.Error(1)
}

func (m *MockRegistryAPI) ListTables(ctx context.Context) ([]service.TableRecord, error) {
	args := m.Called(ctx)

	tables, _ := args.Get(0).([]service.TableRecord)

	return tables, args.Error(1)
}

func (m *MockRegistryAPI) GetTableMetadata(ctx context.Context, tableID string) (*service.TableMetadata, error) {
	args := m.Called(ctx, tableID)

	meta, _ := args.Get(0).(*service.TableMetadata)

	return meta, args.Error(1)
}

func (m *MockRegistryAPI) SaveTableMetadata(ctx context.Context, tableID string, meta service.TableMetadata) error {
	args := m.Called(ctx, tableID, meta)

	return args.Error(0)
}

type MockQnAAPI struct {
	mock.Mock
}

func (m *MockQnAAPI) Ask(ctx context.Context, req service.QuestionRequest) (*service.PlainAnswer, error) {
	args := m.Called(ctx, req)

	answer, _ := args.Get(0).(*service.PlainAnswer)

	return answer, args.Error(1)
}

func (m *MockQnAAPI) AskRich(ctx context.Context, req service.QuestionRequest) (*service.RichAnswer, error) {
	args := m.Called(ctx, req)

	answer, _ := args.Get(0).(*service.RichAnswer)

	return answer, args.Error(1)
}

func strPtr(s string) *string {
	return &s
}

func (m *MockRegistryAPI) GetTablePrompt(ctx context.Context, tableID string) (*service.PromptConfig, error) {
	args := m.Called(ctx, tableID)

	cfg, _ := args.Get(0).(*service.PromptConfig)

	return cfg, args.Error(1)
}

func (m *MockRegistryAPI) SaveTablePrompt(ctx context.Context, cfg service.PromptConfig) error {
	args := m.Called(ctx, cfg)

	return args.Error(0)
}
