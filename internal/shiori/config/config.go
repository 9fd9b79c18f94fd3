// Package config loads Shiori's configuration from an optional YAML file and
// the environment, then validates it.
//
// Precedence, lowest first: built-in defaults, the YAML file, environment
// variables (SHIORI_*, plus the MATRIX_* names shared with other bots).
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/bdobrica/shiori/common/redact"
)

// DefaultPath is read when no path is given; it may be absent.
const DefaultPath = "shiori.yaml"

// NLU backends.
const (
	BackendDialogflow = "dialogflow"
	BackendOpenAI     = "openai"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete runtime configuration.
type Config struct {
	LogLevel     string `yaml:"log_level"     validate:"oneof=debug info warn error"`
	LogFormat    string `yaml:"log_format"    validate:"oneof=text json"`
	DatabasePath string `yaml:"database_path" validate:"required"`
	// HealthAddr is the listen address of the health server; empty disables it.
	HealthAddr string `yaml:"health_addr" validate:"omitempty,hostname_port"`

	Matrix    MatrixConfig    `yaml:"matrix"`
	Directory DirectoryConfig `yaml:"directory"`
	NLU       NLUConfig       `yaml:"nlu"`
}

// MatrixConfig configures the homeserver connection.
type MatrixConfig struct {
	Homeserver  string   `yaml:"homeserver"   validate:"required,url"`
	UserID      string   `yaml:"user_id"      validate:"required,startswith=@"`
	AccessToken string   `yaml:"access_token" validate:"required"`
	Rooms       []string `yaml:"rooms"        validate:"dive,startswith=!"`
}

// DirectoryConfig configures the identity directory client.
type DirectoryConfig struct {
	BaseURL string        `yaml:"base_url" validate:"required,url"`
	Token   string        `yaml:"token"`
	UserID  string        `yaml:"user_id"  validate:"required"`
	Timeout time.Duration `yaml:"timeout"  validate:"min=0"`
}

// NLUConfig selects and configures the NLU backend.
type NLUConfig struct {
	Backend    string           `yaml:"backend" validate:"oneof=dialogflow openai"`
	Dialogflow DialogflowConfig `yaml:"dialogflow"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
}

type DialogflowConfig struct {
	Token   string        `yaml:"token"`
	BaseURL string        `yaml:"base_url" validate:"omitempty,url"`
	Version string        `yaml:"version"`
	Lang    string        `yaml:"lang"`
	Timeout time.Duration `yaml:"timeout"`
}

type OpenAIConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url" validate:"omitempty,url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns a Config holding every default value.
func Default() *Config {
	return &Config{
		LogLevel:     "info",
		LogFormat:    "text",
		DatabasePath: "./shiori.db",
		HealthAddr:   ":8080",
		Directory: DirectoryConfig{
			Timeout: 10 * time.Second,
		},
		NLU: NLUConfig{
			Backend: BackendDialogflow,
			Dialogflow: DialogflowConfig{
				BaseURL: "https://api.dialogflow.com/v1",
				Version: "20150910",
				Lang:    "en",
				Timeout: 10 * time.Second,
			},
			OpenAI: OpenAIConfig{
				Model:   "gpt-4o-mini",
				Timeout: 30 * time.Second,
			},
		},
	}
}

// Load builds the configuration. An explicit path must exist; when path is
// empty DefaultPath is tried and silently skipped if missing.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		slog.Debug("configuration file loaded", "path", path)
	case errors.Is(err, os.ErrNotExist) && !explicit:
		slog.Debug("configuration file not found, using defaults and environment", "path", path)
	default:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	applyEnv(cfg, os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides cfg with every variable lookup finds. Where two names are
// listed, the first one set wins.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}
	dur := func(dst *time.Duration, key string) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				slog.Warn("ignoring malformed duration", "env", key, "value", v)
				return
			}
			*dst = d
		}
	}

	str(&cfg.LogLevel, "SHIORI_LOG_LEVEL", "LOG_LEVEL")
	str(&cfg.LogFormat, "SHIORI_LOG_FORMAT", "LOG_FORMAT")
	str(&cfg.DatabasePath, "SHIORI_DATABASE_PATH", "DATABASE_PATH")
	// Set but empty disables the health server.
	if v, ok := lookup("SHIORI_HEALTH_ADDR"); ok {
		cfg.HealthAddr = strings.TrimSpace(v)
	}

	str(&cfg.Matrix.Homeserver, "MATRIX_HOMESERVER")
	str(&cfg.Matrix.UserID, "MATRIX_USER_ID")
	str(&cfg.Matrix.AccessToken, "MATRIX_ACCESS_TOKEN")
	if v, ok := lookup("MATRIX_ROOMS"); ok && v != "" {
		cfg.Matrix.Rooms = splitList(v)
	}

	str(&cfg.Directory.BaseURL, "SHIORI_DIRECTORY_URL")
	str(&cfg.Directory.Token, "SHIORI_DIRECTORY_TOKEN")
	str(&cfg.Directory.UserID, "SHIORI_DIRECTORY_USER_ID")
	dur(&cfg.Directory.Timeout, "SHIORI_DIRECTORY_TIMEOUT")

	str(&cfg.NLU.Backend, "SHIORI_NLU_BACKEND")
	str(&cfg.NLU.Dialogflow.Token, "SHIORI_DIALOGFLOW_TOKEN")
	str(&cfg.NLU.Dialogflow.BaseURL, "SHIORI_DIALOGFLOW_URL")
	str(&cfg.NLU.Dialogflow.Lang, "SHIORI_DIALOGFLOW_LANG")
	str(&cfg.NLU.OpenAI.APIKey, "SHIORI_OPENAI_API_KEY", "OPENAI_API_KEY")
	str(&cfg.NLU.OpenAI.BaseURL, "SHIORI_OPENAI_BASE_URL", "OPENAI_BASE_URL")
	str(&cfg.NLU.OpenAI.Model, "SHIORI_OPENAI_MODEL")
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(validateNLU, NLUConfig{})
	return v
}

// validateNLU requires the credential of the selected backend.
func validateNLU(sl validator.StructLevel) {
	n := sl.Current().Interface().(NLUConfig)
	switch n.Backend {
	case BackendDialogflow:
		if n.Dialogflow.Token == "" {
			sl.ReportError(n.Dialogflow.Token, "token", "Token", "required_for_backend", BackendDialogflow)
		}
	case BackendOpenAI:
		if n.OpenAI.APIKey == "" {
			sl.ReportError(n.OpenAI.APIKey, "api_key", "APIKey", "required_for_backend", BackendOpenAI)
		}
	}
}

// Validate checks cfg and reports every problem in one error wrapping
// ErrInvalid.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %q (%s)", field, fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %q", field, fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}

// Redacted returns the configuration as a nested map with every credential
// masked, for logging and display.
func (c *Config) Redacted() map[string]any {
	data, err := yaml.Marshal(c)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return map[string]any{"error": err.Error()}
	}
	return redact.Map(m)
}

// Secrets lists the configured credentials, for scrubbing free text.
func (c *Config) Secrets() []string {
	return []string{
		c.Matrix.AccessToken,
		c.Directory.Token,
		c.NLU.Dialogflow.Token,
		c.NLU.OpenAI.APIKey,
	}
}
