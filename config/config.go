// Package config loads the service configuration from a YAML file,
// optional .env files and environment variables.
package config

import (
	"os"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/go-viper/mapstructure/v2"
	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/logging"
	"github.com/goliatone/go-identity/persistence"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

// DefaultEnvPrefix is the prefix of environment overrides
const DefaultEnvPrefix = "IDENTITY_"

// Config is the service configuration
type Config struct {
	Env struct {
		Name  string         `json:"name" yaml:"name"`
		Debug bool           `json:"debug" yaml:"debug"`
		Log   logging.Config `json:"log" yaml:"log"`
	} `json:"env" yaml:"env"`

	HTTP HTTP `json:"http" yaml:"http"`

	Database persistence.Config `json:"database" yaml:"database"`

	Identity identity.Config `json:"identity" yaml:"identity"`

	Notify Notify `json:"notify" yaml:"notify"`
}

// HTTP holds the server options
type HTTP struct {
	Address       string `json:"address" yaml:"address"`
	BaseURL       string `json:"baseUrl" yaml:"baseUrl"`
	ApprovePath   string `json:"approvePath" yaml:"approvePath"`
	ForgottenPath string `json:"forgottenPath" yaml:"forgottenPath"`
	Timeouts      struct {
		Read  time.Duration `json:"read" yaml:"read"`
		Write time.Duration `json:"write" yaml:"write"`
		Idle  time.Duration `json:"idle" yaml:"idle"`
	} `json:"timeouts" yaml:"timeouts"`
}

// Notify selects the notification transport
type Notify struct {
	Driver        string   `json:"driver" yaml:"driver"`
	Brokers       []string `json:"brokers" yaml:"brokers"`
	Topic         string   `json:"topic" yaml:"topic"`
	ActivityTopic string   `json:"activityTopic" yaml:"activityTopic"`
}

// Default returns the configuration used when a key is not provided
func Default() *Config {
	cfg := &Config{}
	cfg.Env.Name = "development"
	cfg.Env.Log = logging.Config{Level: "info", Format: "text"}

	cfg.HTTP.Address = ":8080"
	cfg.HTTP.BaseURL = "http://localhost:8080"
	cfg.HTTP.ApprovePath = "/approve"
	cfg.HTTP.ForgottenPath = "/forgotten/reset"
	cfg.HTTP.Timeouts.Read = 10 * time.Second
	cfg.HTTP.Timeouts.Write = 10 * time.Second
	cfg.HTTP.Timeouts.Idle = time.Minute

	cfg.Database = persistence.Config{
		Driver: persistence.DriverSQLite,
		DSN:    "file:identity.db?cache=shared",
	}

	cfg.Identity = identity.DefaultConfig()

	cfg.Notify = Notify{Driver: "log", Topic: "identity-notifications"}

	return cfg
}

type loader struct {
	prefix   string
	dotenv   []string
	environ  func() []string
	required bool
}

// Option customizes Load
type Option func(*loader)

// WithEnvPrefix sets the environment variable prefix
func WithEnvPrefix(prefix string) Option {
	return func(l *loader) {
		l.prefix = prefix
	}
}

// WithDotEnv loads the given .env files before reading the environment.
// Missing files are ignored.
func WithDotEnv(files ...string) Option {
	return func(l *loader) {
		l.dotenv = append(l.dotenv, files...)
	}
}

// WithEnviron overrides the environment source (useful for tests)
func WithEnviron(fn func() []string) Option {
	return func(l *loader) {
		l.environ = fn
	}
}

// WithRequiredFile fails when the config file does not exist
func WithRequiredFile() Option {
	return func(l *loader) {
		l.required = true
	}
}

// Load reads path on top of the defaults, then applies environment
// overrides. An empty path only reads the environment.
func Load(path string, opts ...Option) (*Config, error) {
	l := &loader{prefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}

	for _, f := range l.dotenv {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(errors.Cause(err)) {
			return nil, errors.Wrapf(err, "load dotenv %s failed", f)
		}
	}

	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			if l.required || !os.IsNotExist(err) {
				return nil, errors.Wrapf(err, "config file %s not found", path)
			}
		} else if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "read config %s failed", path)
		}
	}

	known := knownKeys(k.Raw())

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:      l.prefix,
		EnvironFunc: l.environ,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.TrimPrefix(key, l.prefix)
			return canonicalizeEnvKey(key, known), value
		},
	}), nil); err != nil {
		return nil, errors.Wrap(err, "load env variables failed")
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           cfg,
			TagName:          "yaml",
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			MatchName: func(mapKey, fieldName string) bool {
				return strings.EqualFold(mapKey, fieldName)
			},
		},
	}); err != nil {
		return nil, errors.Wrap(err, "unmarshal config failed")
	}

	if err := cfg.Identity.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid identity config")
	}

	return cfg, nil
}

// knownKeys merges the keys of Config with the loaded file so
// environment overrides resolve to the right casing.
func knownKeys(loaded map[string]any) map[string]any {
	out := structKeys(reflect.TypeOf(Config{}))
	mergeKeys(out, loaded)
	return out
}

func structKeys(t reflect.Type) map[string]any {
	out := map[string]any{}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}

		name := strings.Split(f.Tag.Get("yaml"), ",")[0]
		if name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}

		ft := f.Type
		if ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}

		if ft.Kind() == reflect.Struct && ft != reflect.TypeOf(time.Time{}) {
			out[name] = structKeys(ft)
		} else {
			out[name] = nil
		}
	}
	return out
}

func mergeKeys(dst, src map[string]any) {
	for k, v := range src {
		child, ok := v.(map[string]any)
		if !ok {
			if _, exists := dst[k]; !exists {
				dst[k] = v
			}
			continue
		}
		existing, _ := dst[k].(map[string]any)
		if existing == nil {
			existing = map[string]any{}
			dst[k] = existing
		}
		mergeKeys(existing, child)
	}
}

// canonicalizeEnvKey turns DATABASE_MAX_OPEN_CONNS into
// database.maxOpenConns, joining segments greedily against known keys.
func canonicalizeEnvKey(rawKey string, existing map[string]any) string {
	var segments []string
	for _, s := range strings.Split(strings.ToLower(rawKey), "_") {
		if s != "" {
			segments = append(segments, s)
		}
	}

	canonical := make([]string, 0, len(segments))
	current := existing

	for i := 0; i < len(segments); {
		matched, next, used := matchSegments(current, segments[i:])
		if used == 0 {
			canonical = append(canonical, segments[i])
			current = nil
			i++
			continue
		}
		canonical = append(canonical, matched)
		current = next
		i += used
	}

	return strings.Join(canonical, ".")
}

func matchSegments(current map[string]any, segments []string) (string, map[string]any, int) {
	if len(current) == 0 {
		return "", nil, 0
	}

	for n := len(segments); n > 0; n-- {
		needle := normalizeToken(strings.Join(segments[:n], ""))
		for key, value := range current {
			if normalizeToken(key) != needle {
				continue
			}
			child, _ := value.(map[string]any)
			return key, child, n
		}
	}

	return "", nil, 0
}

func normalizeToken(s string) string {
	var normalized strings.Builder
	normalized.Grow(len(s))

	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		normalized.WriteRune(unicode.ToLower(r))
	}

	return normalized.String()
}
