package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/navikt/datatalk/pkg/cache"
	"github.com/navikt/datatalk/pkg/errs"
	"github.com/navikt/datatalk/pkg/service"
	"github.com/navikt/datatalk/pkg/service/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type metadataFixture struct {
	conn     *MockConnectionAPI
	api      *MockRegistryAPI
	registry *core.Registry
	editor   *core.MetadataEditor
}

func newMetadataFixture(policy core.ColumnPolicy) *metadataFixture {
	f := &metadataFixture{
		conn: &MockConnectionAPI{},
		api:  &MockRegistryAPI{},
	}

	f.registry = core.NewRegistry(f.api, zerolog.Nop())
	syncer := core.NewMetadataSync(f.api, f.conn, f.registry, policy, zerolog.Nop())
	f.editor = core.NewMetadataEditor(syncer, f.api, f.registry, zerolog.Nop())

	return f
}

var (
	ordersRecord = service.TableRecord{TableID: "t-1", Name: "orders", DBName: "sales_db", Type: service.KindPostgres}
	itemsRecord  = service.TableRecord{TableID: "t-2", Name: "items", DBName: "sales_db", Type: service.KindPostgres}
)

func ordersMetadata() *service.TableMetadata {
	return &service.TableMetadata{
		Description: "Imported from postgres",
		Columns: []service.ColumnMetadata{
			{Name: "id", Type: "integer"},
			{Name: "total", Type: "numeric", Description: "Order total"},
		},
	}
}

func TestMetadataEditor_NoSavedColumns(t *testing.T) {
	f := newMetadataFixture(core.ColumnPolicySavedOnly)

	require.NoError(t, f.registry.Add(ordersRecord, service.PostgresDescriptor{Host: "localhost", Port: 5432, Database: "sales_db", TableName: "orders"}))
	f.api.On("GetTableMetadata", mock.Anything, "t-1").Return(&service.TableMetadata{Description: "", Columns: []service.ColumnMetadata{}}, nil)

	require.NoError(t, f.editor.Select(context.Background(), ordersRecord))

	assert.False(t, f.editor.HasColumns())
	assert.Equal(t, "", f.editor.Buffer().Description)
	assert.Empty(t, f.editor.Buffer().Columns)
	assert.False(t, f.editor.Dirty())
	assert.Equal(t, core.SourceSaved, f.editor.Source())

	f.conn.AssertNotCalled(t, "TestConnection", mock.Anything, mock.Anything)
}

func TestMetadataEditor_SavedColumnsAreAuthoritative(t *testing.T) {
	f := newMetadataFixture(core.ColumnPolicyLiveFallback)

	require.NoError(t, f.registry.Add(ordersRecord, service.SQLiteDescriptor{FilePath: "sales.db"}))
	f.api.On("GetTableMetadata", mock.Anything, "t-1").Return(ordersMetadata(), nil)

	require.NoError(t, f.editor.Select(context.Background(), ordersRecord))

	assert.Equal(t, *ordersMetadata(), f.editor.Buffer())
	assert.False(t, f.editor.Dirty())
	f.conn.AssertNotCalled(t, "TestConnection", mock.Anything, mock.Anything)
}

func TestMetadataEditor_LiveFallback(t *testing.T) {
	d := service.PostgresDescriptor{Host: "localhost", Port: 5432, Database: "sales_db", TableName: "orders"}

	testCases := []struct {
		name          string
		policy        core.ColumnPolicy
		descriptor    service.Descriptor
		expectSource  core.MetadataSource
		expectColumns []service.ColumnMetadata
	}{
		{
			name:         "saved only",
			policy:       core.ColumnPolicySavedOnly,
			descriptor:   d,
			expectSource: core.SourceSaved,
		},
		{
			name:         "live fallback",
			policy:       core.ColumnPolicyLiveFallback,
			descriptor:   d,
			expectSource: core.SourceLive,
			expectColumns: []service.ColumnMetadata{
				{Name: "id", Type: "INTEGER"},
				{Name: "amount", Type: "REAL"},
			},
		},
		{
			name:         "live fallback without descriptor",
			policy:       core.ColumnPolicyLiveFallback,
			expectSource: core.SourceSaved,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newMetadataFixture(tc.policy)

			require.NoError(t, f.registry.Add(ordersRecord, tc.descriptor))
			f.api.On("GetTableMetadata", mock.Anything, "t-1").Return(&service.TableMetadata{}, nil)
			f.conn.On("TestConnection", mock.Anything, mock.Anything).Return(salesSnapshot(), nil)

			require.NoError(t, f.editor.Select(context.Background(), ordersRecord))

			assert.Equal(t, tc.expectSource, f.editor.Source())
			assert.Equal(t, len(tc.expectColumns) > 0, f.editor.HasColumns())
			assert.Equal(t, len(tc.expectColumns), len(f.editor.Buffer().Columns))

			if len(tc.expectColumns) > 0 {
				assert.Equal(t, tc.expectColumns, f.editor.Buffer().Columns)
				assert.True(t, f.editor.Dirty())
			}
		})
	}
}

func TestMetadataSync_SchemaCache(t *testing.T) {
	ctx := context.Background()
	f := newMetadataFixture(core.ColumnPolicyLiveFallback)

	schemas := cache.New(time.Minute, zerolog.Nop())
	syncer := core.NewMetadataSync(f.api, f.conn, f.registry, core.ColumnPolicyLiveFallback, zerolog.Nop()).
		WithSchemaCache(schemas)

	require.NoError(t, f.registry.Add(ordersRecord, service.SQLiteDescriptor{FilePath: "sales.db"}))
	f.api.On("GetTableMetadata", mock.Anything, "t-1").Return(&service.TableMetadata{}, nil)
	f.conn.On("TestConnection", mock.Anything, mock.Anything).Return(salesSnapshot(), nil).Once()

	for i := 0; i < 2; i++ {
		res, err := syncer.Sync(ctx, ordersRecord)
		require.NoError(t, err)
		assert.Equal(t, core.SourceLive, res.Source)
		assert.Len(t, res.Metadata.Columns, 2)
	}

	f.conn.AssertNumberOfCalls(t, "TestConnection", 1)
	assert.Equal(t, cache.Statistics{TotalRequests: 2, TotalHits: 1, TotalMisses: 1}, schemas.Stats())
}

func TestMetadataEditor_EditAndSave(t *testing.T) {
	ctx := context.Background()
	f := newMetadataFixture(core.ColumnPolicySavedOnly)

	require.NoError(t, f.registry.Add(ordersRecord, nil))
	f.api.On("GetTableMetadata", mock.Anything, "t-1").Return(ordersMetadata(), nil)

	require.NoError(t, f.editor.Select(ctx, ordersRecord))

	require.NoError(t, f.editor.SetDescription("All customer orders"))
	require.NoError(t, f.editor.SetColumnDescription("id", "Order id"))
	assert.True(t, f.editor.Dirty())

	err := f.editor.SetColumnDescription("missing", "x")
	assert.True(t, errs.KindIs(errs.NotExist, err))

	expect := service.TableMetadata{
		Description: "All customer orders",
		Columns: []service.ColumnMetadata{
			{Name: "id", Type: "integer", Description: "Order id"},
			{Name: "total", Type: "numeric", Description: "Order total"},
		},
	}

	f.api.On("SaveTableMetadata", mock.Anything, "t-1", mock.Anything).Return(errors.New("boom")).Once()

	require.Error(t, f.editor.Save(ctx))
	assert.True(t, f.editor.Dirty())
	assert.Equal(t, expect, f.editor.Buffer())

	rec, _ := f.registry.Record("t-1")
	assert.Equal(t, "", rec.Description)

	f.api.On("SaveTableMetadata", mock.Anything, "t-1", expect).Return(nil).Once()

	require.NoError(t, f.editor.Save(ctx))
	assert.False(t, f.editor.Dirty())
	assert.Equal(t, expect, f.editor.Buffer())

	rec, _ = f.registry.Record("t-1")
	assert.Equal(t, "All customer orders", rec.Description)

	f.api.AssertExpectations(t)
}

func TestMetadataEditor_FailedLoadBlocksSave(t *testing.T) {
	ctx := context.Background()
	f := newMetadataFixture(core.ColumnPolicySavedOnly)

	f.api.On("GetTableMetadata", mock.Anything, "t-1").Return(nil, errs.E(errs.IO, errors.New("connection refused"))).Once()

	require.Error(t, f.editor.Select(ctx, ordersRecord))

	err := f.editor.Save(ctx)
	require.Error(t, err)
	assert.True(t, errs.KindIs(errs.Precondition, err))
	f.api.AssertNotCalled(t, "SaveTableMetadata", mock.Anything, mock.Anything, mock.Anything)

	f.api.On("GetTableMetadata", mock.Anything, "t-1").Return(ordersMetadata(), nil).Once()
	f.api.On("SaveTableMetadata", mock.Anything, "t-1", *ordersMetadata()).Return(nil).Once()

	require.NoError(t, f.editor.Select(ctx, ordersRecord))
	require.NoError(t, f.editor.Save(ctx))
	f.api.AssertExpectations(t)
}

func TestMetadataEditor_SwitchDiscardsEdits(t *testing.T) {
	ctx := context.Background()
	f := newMetadataFixture(core.ColumnPolicySavedOnly)

	f.api.On("GetTableMetadata", mock.Anything, "t-1").Return(ordersMetadata(), nil)
	f.api.On("GetTableMetadata", mock.Anything, "t-2").Return(&service.TableMetadata{Description: "Line items"}, nil)

	require.NoError(t, f.editor.Select(ctx, ordersRecord))
	require.NoError(t, f.editor.SetDescription("unsaved"))

	require.NoError(t, f.editor.Select(ctx, itemsRecord))
	assert.Equal(t, "Line items", f.editor.Buffer().Description)
	assert.False(t, f.editor.Dirty())

	require.NoError(t, f.editor.Select(ctx, ordersRecord))
	assert.Equal(t, "Imported from postgres", f.editor.Buffer().Description)
}

func TestMetadataEditor_LateSyncIsDropped(t *testing.T) {
	ctx := context.Background()
	f := newMetadataFixture(core.ColumnPolicySavedOnly)

	started := make(chan struct{})
	release := make(chan struct{})

	f.api.On("GetTableMetadata", mock.Anything, "t-1").
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(ordersMetadata(), nil)
	f.api.On("GetTableMetadata", mock.Anything, "t-2").Return(&service.TableMetadata{Description: "Line items"}, nil)

	done := make(chan error)

	go func() {
		done <- f.editor.Select(ctx, ordersRecord)
	}()

	<-started
	require.NoError(t, f.editor.Select(ctx, itemsRecord))
	close(release)

	err := <-done
	require.Error(t, err)
	assert.True(t, errs.KindIs(errs.Precondition, err))

	selected, ok := f.editor.Selected()
	require.True(t, ok)
	assert.Equal(t, "t-2", selected.TableID)
	assert.Equal(t, "Line items", f.editor.Buffer().Description)
}

func TestMetadataEditor_SaveBusy(t *testing.T) {
	ctx := context.Background()
	f := newMetadataFixture(core.ColumnPolicySavedOnly)

	err := f.editor.Save(ctx)
	assert.True(t, errs.KindIs(errs.Invalid, err))

	require.NoError(t, f.registry.Add(ordersRecord, nil))
	f.api.On("GetTableMetadata", mock.Anything, "t-1").Return(ordersMetadata(), nil)
	require.NoError(t, f.editor.Select(ctx, ordersRecord))

	started := make(chan struct{})
	release := make(chan struct{})

	f.api.On("SaveTableMetadata", mock.Anything, "t-1", mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(nil).
		Once()

	done := make(chan error)

	go func() {
		done <- f.editor.Save(ctx)
	}()

	<-started

	err = f.editor.Save(ctx)
	assert.True(t, errs.KindIs(errs.Busy, err))

	close(release)
	require.NoError(t, <-done)
}

func TestParseColumnPolicy(t *testing.T) {
	p, err := core.ParseColumnPolicy("")
	require.NoError(t, err)
	assert.Equal(t, core.ColumnPolicySavedOnly, p)

	p, err = core.ParseColumnPolicy("live_fallback")
	require.NoError(t, err)
	assert.Equal(t, core.ColumnPolicyLiveFallback, p)

	_, err = core.ParseColumnPolicy("always")
	assert.Error(t, err)
}
