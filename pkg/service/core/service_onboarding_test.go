package core_test

import (
	"context"
	"testing"

	"github.com/navikt/datatalk/pkg/errs"
	"github.com/navikt/datatalk/pkg/service"
	"github.com/navikt/datatalk/pkg/service/core"
	httpapi "github.com/navikt/datatalk/pkg/service/core/api/http"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type onboardingFixture struct {
	conn        *MockConnectionAPI
	api         *MockRegistryAPI
	coordinator *core.ConnectionCoordinator
	registry    *core.Registry
	submitter   *core.OnboardingSubmitter
}

func newOnboardingFixture(kind service.Kind) *onboardingFixture {
	f := &onboardingFixture{
		conn: &MockConnectionAPI{},
		api:  &MockRegistryAPI{},
	}

	f.coordinator = core.NewConnectionCoordinator(f.conn, kind, zerolog.Nop())
	f.registry = core.NewRegistry(f.api, zerolog.Nop())
	f.submitter = core.NewOnboardingSubmitter(f.api, f.coordinator, f.registry, zerolog.Nop())

	return f
}

func TestOnboardingSubmitter_RequiresTestOfCurrentDescriptor(t *testing.T) {
	ctx := context.Background()
	f := newOnboardingFixture(service.KindSQLite)

	f.conn.On("TestConnection", mock.Anything, mock.Anything).Return(salesSnapshot(), nil)

	_, err := f.submitter.Submit(ctx)
	require.Error(t, err)

	f.coordinator.SetField(service.FieldFilePath, "sales.db")

	_, err = f.submitter.Submit(ctx)
	require.Error(t, err)
	assert.True(t, errs.KindIs(errs.Precondition, err))

	_, err = f.coordinator.Test(ctx)
	require.NoError(t, err)

	f.coordinator.SetField(service.FieldFilePath, "sales2.db")

	_, err = f.submitter.Submit(ctx)
	require.Error(t, err)
	assert.True(t, errs.KindIs(errs.Precondition, err))

	f.api.AssertNotCalled(t, "OnboardTable", mock.Anything, mock.Anything)
	assert.Empty(t, f.registry.Records())
}

func TestOnboardingSubmitter_Postgres(t *testing.T) {
	ctx := context.Background()
	f := newOnboardingFixture(service.KindPostgres)

	f.conn.On("TestConnection", mock.Anything, mock.Anything).Return(salesSnapshot(), nil)

	existing := service.TableRecord{TableID: "t-1", Name: "customers", DBName: "sales_db", Type: service.KindPostgres}
	f.api.On("ListTables", mock.Anything).Return([]service.TableRecord{existing}, nil)
	require.NoError(t, f.registry.Load(ctx))

	expectReq := service.OnboardTableRequest{
		Type:      service.KindPostgres,
		Host:      "localhost",
		Port:      5432,
		Database:  "sales_db",
		TableName: "orders",
	}

	f.api.On("OnboardTable", mock.Anything, expectReq).Return(&service.OnboardTableResponse{
		Message:     "Table onboarded successfully",
		TableID:     "t-2",
		HashKey:     "abc",
		OnboardedBy: "admin",
		OnboardedAt: "2024-01-01T00:00:00",
	}, nil).Once()

	f.coordinator.SetField(service.FieldHost, "localhost")
	f.coordinator.SetField(service.FieldPort, "5432")
	f.coordinator.SetField(service.FieldDatabase, "sales_db")
	f.coordinator.SetField(service.FieldTableName, "orders")

	_, err := f.coordinator.Test(ctx)
	require.NoError(t, err)

	rec, err := f.submitter.Submit(ctx)
	require.NoError(t, err)

	expect := service.TableRecord{
		TableID:     "t-2",
		Name:        "orders",
		DBName:      "sales_db",
		Type:        service.KindPostgres,
		OnboardedBy: "admin",
		OnboardedAt: "2024-01-01T00:00:00",
	}
	assert.Equal(t, expect, *rec)

	records := f.registry.Records()
	require.Len(t, records, 2)
	assert.Equal(t, existing, records[0])
	assert.Equal(t, expect, records[1])

	d, ok := f.registry.Descriptor("t-2")
	require.True(t, ok)
	assert.Equal(t, service.PostgresDescriptor{Host: "localhost", Port: 5432, Database: "sales_db", TableName: "orders"}, d)

	assert.Equal(t, core.PhaseIdle, f.coordinator.State().Phase)
	f.api.AssertExpectations(t)
}

func TestOnboardingSubmitter_SQLiteUsesFilePathAsTableName(t *testing.T) {
	ctx := context.Background()
	f := newOnboardingFixture(service.KindSQLite)

	f.conn.On("TestConnection", mock.Anything, mock.Anything).Return(salesSnapshot(), nil)
	f.api.On("OnboardTable", mock.Anything, service.OnboardTableRequest{
		Type:      service.KindSQLite,
		FilePath:  "sales.db",
		TableName: "sales.db",
	}).Return(&service.OnboardTableResponse{TableID: "t-1"}, nil).Once()

	f.coordinator.SetField(service.FieldFilePath, "sales.db")

	_, err := f.coordinator.Test(ctx)
	require.NoError(t, err)

	rec, err := f.submitter.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sales.db", rec.Name)
	assert.Equal(t, service.SQLiteDatabaseName, rec.DBName)
	assert.Equal(t, service.KindSQLite, rec.Type)
}

func TestOnboardingSubmitter_PostgresNeedsTableName(t *testing.T) {
	ctx := context.Background()
	f := newOnboardingFixture(service.KindPostgres)

	f.conn.On("TestConnection", mock.Anything, mock.Anything).Return(salesSnapshot(), nil)

	f.coordinator.SetField(service.FieldHost, "localhost")
	f.coordinator.SetField(service.FieldDatabase, "sales_db")

	_, err := f.coordinator.Test(ctx)
	require.NoError(t, err)

	_, err = f.submitter.Submit(ctx)
	require.Error(t, err)
	assert.True(t, errs.KindIs(errs.Validation, err))
	f.api.AssertNotCalled(t, "OnboardTable", mock.Anything, mock.Anything)
}

func TestOnboardingSubmitter_FailureAllowsRetry(t *testing.T) {
	ctx := context.Background()
	f := newOnboardingFixture(service.KindSQLite)

	f.conn.On("TestConnection", mock.Anything, mock.Anything).Return(salesSnapshot(), nil).Once()

	f.api.On("OnboardTable", mock.Anything, mock.Anything).
		Return(nil, errs.E(errs.Exist, &httpapi.APIError{Status: 409, Message: "Table already onboarded"})).
		Once()
	f.api.On("OnboardTable", mock.Anything, mock.Anything).
		Return(&service.OnboardTableResponse{TableID: "t-9"}, nil).
		Once()

	f.coordinator.SetField(service.FieldFilePath, "sales.db")

	_, err := f.coordinator.Test(ctx)
	require.NoError(t, err)

	_, err = f.submitter.Submit(ctx)
	require.Error(t, err)
	assert.True(t, errs.KindIs(errs.Exist, err))
	assert.Equal(t, "Table already onboarded", errs.Msg(err))
	assert.Equal(t, core.PhaseSucceeded, f.coordinator.State().Phase)
	assert.Empty(t, f.registry.Records())

	rec, err := f.submitter.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, "t-9", rec.TableID)
	assert.Len(t, f.registry.Records(), 1)

	f.conn.AssertNumberOfCalls(t, "TestConnection", 1)
}

func TestOnboardingSubmitter_Busy(t *testing.T) {
	ctx := context.Background()
	f := newOnboardingFixture(service.KindSQLite)

	started := make(chan struct{})
	release := make(chan struct{})

	f.conn.On("TestConnection", mock.Anything, mock.Anything).Return(salesSnapshot(), nil)
	f.api.On("OnboardTable", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(&service.OnboardTableResponse{TableID: "t-1"}, nil).
		Once()

	f.coordinator.SetField(service.FieldFilePath, "sales.db")

	_, err := f.coordinator.Test(ctx)
	require.NoError(t, err)

	done := make(chan error)

	go func() {
		_, err := f.submitter.Submit(ctx)
		done <- err
	}()

	<-started
	assert.True(t, f.submitter.Busy())

	_, err = f.submitter.Submit(ctx)
	require.Error(t, err)
	assert.True(t, errs.KindIs(errs.Busy, err))

	close(release)
	require.NoError(t, <-done)
	assert.False(t, f.submitter.Busy())
	assert.Len(t, f.registry.Records(), 1)
}

func TestOnboardingSubmitter_KeepsFormEditedDuringSubmit(t *testing.T) {
	ctx := context.Background()
	f := newOnboardingFixture(service.KindSQLite)

	f.conn.On("TestConnection", mock.Anything, mock.Anything).Return(salesSnapshot(), nil)
	f.api.On("OnboardTable", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			f.coordinator.SetField(service.FieldFilePath, "next.db")
		}).
		Return(&service.OnboardTableResponse{TableID: "t-1"}, nil).
		Once()

	f.coordinator.SetField(service.FieldFilePath, "sales.db")

	_, err := f.coordinator.Test(ctx)
	require.NoError(t, err)

	rec, err := f.submitter.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sales.db", rec.Name)
	assert.Len(t, f.registry.Records(), 1)

	state := f.coordinator.State()
	assert.Equal(t, core.PhaseDirty, state.Phase)
	assert.Equal(t, "next.db", state.Form.Fields[service.FieldFilePath])
}
