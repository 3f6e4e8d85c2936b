package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navikt/datatalk/pkg/config"
	"github.com/navikt/datatalk/pkg/emulator"
	"github.com/navikt/datatalk/pkg/errs"
	"github.com/navikt/datatalk/pkg/service"
	"github.com/navikt/datatalk/pkg/service/core"
	apiclients "github.com/navikt/datatalk/pkg/service/core/api"
)

type ordersProber struct{}

func (ordersProber) Probe(_ context.Context, _ service.Descriptor) (*service.SchemaSnapshot, error) {
	name := "sales_db"

	return &service.SchemaSnapshot{
		DatabaseType: "postgres",
		DatabaseName: &name,
		Tables: []service.TableSchema{
			{
				TableName: "orders",
				Columns: []service.ColumnInfo{
					{Name: "id", Type: "INTEGER"},
					{Name: "total", Type: "NUMERIC"},
				},
			},
		},
	}, nil
}

type recordingAnswerer struct {
	*emulator.Canned

	mu       sync.Mutex
	requests []service.QuestionRequest
}

func (a *recordingAnswerer) AskRich(ctx context.Context, req service.QuestionRequest) (*service.RichAnswer, error) {
	a.mu.Lock()
	a.requests = append(a.requests, req)
	a.mu.Unlock()

	return a.Canned.AskRich(ctx, req)
}

func newTestShell(t *testing.T, script string, opts ...emulator.Option) (*Shell, *bytes.Buffer, *emulator.Emulator) {
	t.Helper()

	e := emulator.New(ordersProber{}, zerolog.Nop(), opts...)
	url := e.Run()
	t.Cleanup(e.Reset)

	cfg := config.Config{
		Backend: config.Backend{APIURL: url, TimeoutSeconds: 5},
	}

	clients := apiclients.NewClients(cfg, zerolog.Nop())
	services := core.NewServices(
		clients.ConnectionAPI,
		clients.RegistryAPI,
		clients.QnAAPI,
		core.ColumnPolicySavedOnly,
		core.ChatModeRich,
		"",
		zerolog.Nop(),
	)

	out := &bytes.Buffer{}
	model := service.ModelSelector{Provider: "ollama", Name: "llama3"}

	return NewShell(services, model, strings.NewReader(script), out), out, e
}

func TestShell_OnboardEditAndAsk(t *testing.T) {
	script := strings.Join([]string{
		"kind postgres",
		"set host localhost",
		"set database sales_db",
		"set table_name orders",
		"onboard",
		"test",
		"onboard",
		"tables",
		"select 1",
		"column id Order id",
		"describe All orders",
		"show",
		"save",
		"tables",
		"ask top items",
		"quit",
	}, "\n")

	sh, out, e := newTestShell(t, script)

	var data service.ResultRows
	require.NoError(t, data.UnmarshalJSON([]byte(`[{"item": "B", "sold": 12}]`)))

	e.Answers().SetRich("top items", service.RichAnswer{
		Summary:  "B sells best",
		SQLQuery: "SELECT item, sold FROM items",
		Data:     data,
	})

	require.NoError(t, sh.Run(context.Background()))

	got := out.String()

	assert.Contains(t, got, "datatalk> "+core.DefaultGreeting)
	assert.Contains(t, got, "Connection successful.")
	assert.Contains(t, got, "Onboarded orders (")
	assert.Contains(t, got, "Imported from postgres")
	assert.Contains(t, got, "Order id")
	assert.Contains(t, got, "Unsaved changes.")
	assert.Contains(t, got, "Metadata saved.")
	assert.Contains(t, got, "All orders")
	assert.Contains(t, got, "datatalk> B sells best")
	assert.Contains(t, got, "Query: SELECT item, sold FROM items")

	// The first onboard is rejected, the data source was never tested.
	assert.Equal(t, 1, strings.Count(got, "Onboarded orders"))
	assert.Equal(t, 1, strings.Count(got, "Error: "))
}

func TestShell_PromptsModelAndList(t *testing.T) {
	answerer := &recordingAnswerer{Canned: emulator.NewCanned()}
	answerer.SetRich("top items", service.RichAnswer{Summary: "B sells best"})

	script := strings.Join([]string{
		"kind postgres",
		"set host localhost",
		"set database sales_db",
		"set table_name orders",
		"test",
		"onboard",
		"list",
		"prompt 1",
		"prompt 1 Amounts are in NOK",
		"prompt 1",
		"model",
		"model openai gpt-4o",
		"ask top items",
		"quit",
	}, "\n")

	sh, out, _ := newTestShell(t, script, emulator.WithAnswerer(answerer))

	require.NoError(t, sh.Run(context.Background()))

	got := out.String()

	assert.Contains(t, got, "No prompt set for orders.")
	assert.Contains(t, got, "Prompt saved.")
	assert.Contains(t, got, "Prompt for orders: Amounts are in NOK")
	assert.Contains(t, got, "Model: ollama (llama3)")
	assert.Contains(t, got, "Model: openai (gpt-4o)")
	assert.Contains(t, got, "datatalk> B sells best")
	assert.Equal(t, 0, strings.Count(got, "Error: "))

	answerer.mu.Lock()
	defer answerer.mu.Unlock()

	require.Len(t, answerer.requests, 1)
	assert.Equal(t, "openai", answerer.requests[0].ModelProvider)
	assert.Equal(t, "gpt-4o", answerer.requests[0].ModelName)
}

func TestShell_ListDoesNotReload(t *testing.T) {
	sh, out, e := newTestShell(t, "")

	ctx := context.Background()

	e.SetError(errs.E(errs.IO, "backend down"))

	sh.Exec(ctx, "list")
	assert.Equal(t, "No tables onboarded yet.\n", out.String())

	sh.Exec(ctx, "tables")
	assert.Contains(t, out.String(), "Error: backend down")
}

func TestShell_Errors(t *testing.T) {
	sh, out, _ := newTestShell(t, "")

	ctx := context.Background()

	sh.Exec(ctx, "frobnicate")
	sh.Exec(ctx, "kind oracle")
	sh.Exec(ctx, "set password secret")
	sh.Exec(ctx, "select 7")
	sh.Exec(ctx, "save")
	sh.Exec(ctx, "ask   ")

	got := out.String()

	assert.Contains(t, got, `Unknown command "frobnicate"`)
	assert.Contains(t, got, "unsupported DB type: oracle")
	assert.Contains(t, got, `unknown field "password"`)
	assert.Contains(t, got, `no table "7"`)
	assert.Equal(t, 5, strings.Count(got, "Error: "))
}

func TestRenderMetadata(t *testing.T) {
	rec := service.TableRecord{TableID: "t-1", Name: "orders"}

	t.Run("no columns", func(t *testing.T) {
		var buf bytes.Buffer

		require.NoError(t, renderMetadata(&buf, rec, service.TableMetadata{}, core.SourceSaved, false))
		assert.Contains(t, buf.String(), noColumnsHint)
		assert.Contains(t, buf.String(), "Description: -")
	})

	t.Run("live columns", func(t *testing.T) {
		var buf bytes.Buffer

		meta := service.TableMetadata{
			Columns: []service.ColumnMetadata{{Name: "id", Type: "INTEGER"}},
		}

		require.NoError(t, renderMetadata(&buf, rec, meta, core.SourceLive, true))
		assert.Contains(t, buf.String(), "Unsaved changes.")
		assert.Contains(t, buf.String(), "Columns read from the live schema")
		assert.NotContains(t, buf.String(), noColumnsHint)
	})
}

func TestRenderTables(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, renderTables(&buf, nil))
	assert.Equal(t, "No tables onboarded yet.\n", buf.String())

	buf.Reset()

	require.NoError(t, renderTables(&buf, []service.TableRecord{
		{TableID: "t-1", Name: "orders", DBName: "sales_db", Type: service.KindPostgres, Description: "All orders"},
		{TableID: "t-2", Name: "/data/sales.db", DBName: "SQLite", Type: service.KindSQLite},
	}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "#"))
	assert.Contains(t, lines[1], "All orders")
	assert.Contains(t, lines[2], "/data/sales.db")
}
