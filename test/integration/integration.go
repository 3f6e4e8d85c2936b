//go:build integration_test

package integration

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/http/httputil"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/rs/zerolog"

	// Postgres driver
	_ "github.com/lib/pq"
)

type containers struct {
	t         *testing.T
	log       zerolog.Logger
	pool      *dockertest.Pool
	network   *dockertest.Network
	resources []*dockertest.Resource
}

// Cleanup may be deferred in a test function to ensure that all resources are purged.
func (c *containers) Cleanup() {
	for _, r := range c.resources {
		if err := c.pool.Purge(r); err != nil {
			c.log.Warn().Err(err).Msg("purging resources")
		}
	}

	err := c.network.Close()
	if err != nil {
		c.log.Warn().Err(err).Msg("closing network")
	}
}

type PostgresConfig struct {
	User     string
	Password string
	Database string

	// HostPort is populated after the container is started.
	HostPort string
}

func (c *PostgresConfig) ConnectionURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable", c.User, c.Password, c.HostPort, c.Database)
}

// HostAndPort splits HostPort, the way a user would type it into the
// connection form.
func (c *PostgresConfig) HostAndPort(t *testing.T) (string, int) {
	t.Helper()

	host, rawPort, err := net.SplitHostPort(c.HostPort)
	if err != nil {
		t.Fatalf("splitting host port %q: %s", c.HostPort, err)
	}

	port, err := strconv.Atoi(rawPort)
	if err != nil {
		t.Fatalf("parsing port %q: %s", rawPort, err)
	}

	return host, port
}

func NewPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		User:     "datatalk",
		Password: "supersecret",
		Database: "sales_db",
	}
}

// RunPostgres starts a postgres container and returns an open connection to
// it.
func (c *containers) RunPostgres(cfg *PostgresConfig) (*PostgresConfig, *sql.DB) {
	var db *sql.DB

	resource, err := c.pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "14",
		Env: []string{
			fmt.Sprintf("POSTGRES_PASSWORD=%s", cfg.Password),
			fmt.Sprintf("POSTGRES_USER=%s", cfg.User),
			fmt.Sprintf("POSTGRES_DB=%s", cfg.Database),
			"listen_addresses = '*'",
		},
		NetworkID: c.network.Network.ID,
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{
			Name: "no",
		}
	})
	if err != nil {
		c.t.Fatalf("starting postgres container: %s", err)
	}

	cfg.HostPort = resource.GetHostPort("5432/tcp")
	c.log.Info().Msgf("Postgres is configured with url: %s", cfg.ConnectionURL())

	c.pool.MaxWait = 120 * time.Second
	c.resources = append(c.resources, resource)

	if err = c.pool.Retry(func() error {
		db, err = sql.Open("postgres", cfg.ConnectionURL())
		if err != nil {
			return err
		}

		return db.Ping()
	}); err != nil {
		c.t.Fatalf("could not connect to postgres: %s", err)
	}

	return cfg, db
}

func NewContainers(t *testing.T, log zerolog.Logger) *containers {
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("connecting to Docker: %s", err)
	}

	err = pool.Client.Ping()
	if err != nil {
		t.Fatalf("pinging Docker: %s", err)
	}

	networkName := fmt.Sprintf("datatalk-integration-test-network-%d", rand.Intn(1000))

	network, err := pool.CreateNetwork(networkName)
	if err != nil {
		log.Fatal().Err(err).Msg("creating network")
	}

	return &containers{
		t:         t,
		log:       log,
		pool:      pool,
		network:   network,
		resources: nil,
	}
}

func Marshal(t *testing.T, v interface{}) []byte {
	t.Helper()

	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshalling: %s", err)
	}

	return b
}

func Unmarshal(t *testing.T, r io.Reader, v interface{}) {
	t.Helper()

	err := json.NewDecoder(r).Decode(v)
	if err != nil {
		t.Fatalf("unmarshalling: %s", err)
	}
}

type TestRunnerStatus interface {
	Debug(out io.Writer) TestRunnerStatus
	HasStatusCode(code int) TestRunnerEnder
}

type TestRunnerEnder interface {
	Value(into any)
	Expect(expect, into any, opts ...cmp.Option)
}

type testRunner struct {
	t   *testing.T
	url string

	response *http.Response
}

func (r *testRunner) HasStatusCode(code int) TestRunnerEnder {
	r.t.Helper()

	if r.response.StatusCode != code {
		r.t.Errorf("expected status code %d, got %d", code, r.response.StatusCode)
	}

	return r
}

func (r *testRunner) Debug(out io.Writer) TestRunnerStatus {
	r.t.Helper()

	data, err := httputil.DumpResponse(r.response, true)
	if err != nil {
		r.t.Fatalf("dumping response: %s", err)
	}

	_, err = io.Copy(out, bytes.NewReader(data))
	if err != nil {
		r.t.Fatalf("writing response: %s", err)
	}

	return r
}

func (r *testRunner) Expect(expect, into any, opts ...cmp.Option) {
	r.t.Helper()

	defer r.response.Body.Close()

	Unmarshal(r.t, r.response.Body, into)
	diff := cmp.Diff(expect, into, opts...)
	if diff != "" {
		r.t.Errorf("unexpected response: %s", diff)
	}
}

func (r *testRunner) Value(into any) {
	r.t.Helper()

	defer r.response.Body.Close()

	Unmarshal(r.t, r.response.Body, into)
}

func (r *testRunner) Get(path string) TestRunnerStatus {
	r.t.Helper()

	r.response = SendRequest(r.t, http.MethodGet, r.url+path, nil)

	return r
}

func (r *testRunner) Post(input any, path string) TestRunnerStatus {
	r.t.Helper()

	r.response = SendRequest(r.t, http.MethodPost, r.url+path, bytes.NewReader(Marshal(r.t, input)))

	return r
}

func NewTester(t *testing.T, url string) *testRunner {
	return &testRunner{
		t:   t,
		url: strings.TrimRight(url, "/"),
	}
}

func SendRequest(t *testing.T, method, url string, body io.Reader) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("creating request: %s", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("sending request: %s", err)
	}

	return resp
}
