package config

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-ozzo/ozzo-validation/v4/is"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/mitchellh/mapstructure"

	"github.com/spf13/viper"
)

const (
	defaultExtension = "yaml"
	defaultTagName   = "yaml"
)

type Binder interface {
	Bind(v *viper.Viper) error
}

type Loader interface {
	Load(name, path, envPrefix string, binder Binder) (Config, error)
}

type Config struct {
	Backend  Backend  `yaml:"backend"`
	Chat     Chat     `yaml:"chat"`
	Metadata Metadata `yaml:"metadata"`
	Emulator Emulator `yaml:"emulator"`

	LogLevel string `yaml:"log_level"`
	Debug    bool   `yaml:"debug"`
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Backend, validation.Required),
		validation.Field(&c.Chat, validation.Required),
		validation.Field(&c.Metadata),
		validation.Field(&c.Emulator),
		validation.Field(&c.LogLevel, validation.Required, validation.In("trace", "debug", "info", "warn", "error")),
	)
}

type Backend struct {
	APIURL         string `yaml:"api_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

func (b Backend) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.APIURL, validation.Required, is.URL),
		validation.Field(&b.TimeoutSeconds, validation.Required, validation.Min(1)),
	)
}

func (b Backend) Timeout() time.Duration {
	return time.Duration(b.TimeoutSeconds) * time.Second
}

type Chat struct {
	ModelProvider string `yaml:"model_provider"`
	ModelName     string `yaml:"model_name"`
	// Mode is either rich or plain, selecting the question endpoint.
	Mode     string `yaml:"mode"`
	Greeting string `yaml:"greeting"`
}

func (c Chat) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.ModelProvider, validation.Required),
		validation.Field(&c.Mode, validation.In("rich", "plain")),
	)
}

type Metadata struct {
	ColumnPolicy string `yaml:"column_policy"`
	// SchemaCacheSeconds keeps live schemas around for this long, 0 disables
	// the cache.
	SchemaCacheSeconds int `yaml:"schema_cache_seconds"`
}

func (m Metadata) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.ColumnPolicy, validation.In("saved_only", "live_fallback")),
		validation.Field(&m.SchemaCacheSeconds, validation.Min(0)),
	)
}

func (m Metadata) SchemaCacheExpiry() time.Duration {
	return time.Duration(m.SchemaCacheSeconds) * time.Second
}

type Emulator struct {
	Address  string           `yaml:"address"`
	Port     string           `yaml:"port"`
	Postgres EmulatorPostgres `yaml:"postgres"`
}

func (e Emulator) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Address, is.IP),
		validation.Field(&e.Port, is.Port),
		validation.Field(&e.Postgres),
	)
}

// EmulatorPostgres holds the credentials used when the emulator connects to a
// postgres data source. Clients never send credentials.
type EmulatorPostgres struct {
	UserName string `yaml:"user_name"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (p EmulatorPostgres) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.SSLMode, validation.In("disable", "allow", "prefer", "require")),
	)
}

func (p EmulatorPostgres) ConnectionString(host string, port int, database string) string {
	sslMode := p.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf("postgresql://%s@%s/%s?sslmode=%s",
		url.UserPassword(p.UserName, p.Password).String(),
		net.JoinHostPort(host, strconv.Itoa(port)),
		database,
		sslMode,
	)
}

type FileParts struct {
	FileName string
	Path     string
}

func ProcessConfigPath(configFile string) (FileParts, error) {
	absolutePath, err := filepath.Abs(configFile)
	if err != nil {
		return FileParts{}, fmt.Errorf("convert to absolute path: %w", err)
	}

	fileName := filepath.Base(absolutePath)
	path := filepath.Dir(absolutePath)
	extension := filepath.Ext(fileName)

	if strings.ReplaceAll(strings.ToLower(extension), ".", "") != defaultExtension {
		return FileParts{}, fmt.Errorf("config file must have extension %s, got: %s", defaultExtension, extension)
	}

	return FileParts{
		FileName: fileName[:len(fileName)-len(extension)],
		Path:     path,
	}, nil
}

func NewFileSystemLoader() *FileSystemLoader {
	return &FileSystemLoader{}
}

type FileSystemLoader struct{}

func (fs *FileSystemLoader) Load(name, path, envPrefix string, b Binder) (Config, error) {
	v := viper.New()

	v.AddConfigPath(path)
	v.SetConfigName(name)
	v.SetConfigType(defaultExtension)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // So that env vars are translated properly
	v.AutomaticEnv()

	if b != nil {
		err := b.Bind(v)
		if err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix(envPrefix)

	err := v.ReadInConfig()
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var config Config

	err = v.Unmarshal(&config, func(cfg *mapstructure.DecoderConfig) {
		cfg.TagName = defaultTagName // We use yaml tags in the config structs so we can marshal to yaml
	})
	if err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	return config, nil
}

type EnvBinder struct {
	binders map[string]string
}

func (e *EnvBinder) Bind(v *viper.Viper) error {
	for envVar, key := range e.binders {
		err := v.BindEnv(key, envVar)
		if err != nil {
			return fmt.Errorf("bind env var %s to key %s: %w", envVar, key, err)
		}
	}

	return nil
}

func NewEnvBinder(binders map[string]string) *EnvBinder {
	return &EnvBinder{
		binders: binders,
	}
}

func NewDefaultEnvBinder() *EnvBinder {
	return NewEnvBinder(map[string]string{
		"POSTGRES_PASSWORD": "emulator.postgres.password",
		"DATATALK_API_URL":  "backend.api_url",
	})
}
