package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-churnform/pkg/render"
)

// Config is the process configuration. It is read from YAML and selectively
// overridden by command line flags.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Resources ResourcesConfig `yaml:"resources"`
	Page      render.Chrome   `yaml:"page"`
	Form      FormConfig      `yaml:"form"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Inference InferenceConfig `yaml:"inference"`
	Log       LogConfig       `yaml:"log"`
	Health    HealthConfig    `yaml:"health"`
}

type ServerConfig struct {
	Addr     string        `yaml:"addr"`
	Grace    time.Duration `yaml:"grace"`
	Renderer string        `yaml:"renderer"`
}

type ResourcesConfig struct {
	Model  string `yaml:"model"`
	Schema string `yaml:"schema"`
	// DefaultMinimum is applied to numeric fields without num_min. Nil keeps
	// the loader default of 0; set no_default_minimum to disable it.
	DefaultMinimum   *float64 `yaml:"default_minimum"`
	NoDefaultMinimum bool     `yaml:"no_default_minimum"`
	SkipFeatureCheck bool     `yaml:"skip_feature_check"`
}

type FormConfig struct {
	Slots        int    `yaml:"slots"`
	ThemeVariant string `yaml:"theme_variant"`
}

type SessionsConfig struct {
	Capacity   int    `yaml:"capacity"`
	CookieName string `yaml:"cookie_name"`
	Secure     bool   `yaml:"secure"`
}

type InferenceConfig struct {
	// Threshold overrides the classifier's decision threshold when set.
	Threshold float64 `yaml:"threshold"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type HealthConfig struct {
	GRPCAddr string `yaml:"grpc_addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:     ":8383",
			Grace:    5 * time.Second,
			Renderer: "vanilla",
		},
		Resources: ResourcesConfig{
			Model:  "model.json",
			Schema: "columns.json",
		},
		Page: render.DefaultChrome(),
		Form: FormConfig{Slots: 2},
		Sessions: SessionsConfig{
			Capacity:   1024,
			CookieName: "churnform_session",
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%w (file %s)", err, path)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings that cannot work.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.Grace < 0 {
		errs = append(errs, errors.New("server.grace must not be negative"))
	}
	if c.Form.Slots < 1 {
		errs = append(errs, errors.New("form.slots must be at least 1"))
	}
	if c.Sessions.Capacity < 1 {
		errs = append(errs, errors.New("sessions.capacity must be at least 1"))
	}
	if strings.TrimSpace(c.Sessions.CookieName) == "" {
		errs = append(errs, errors.New("sessions.cookie_name is required"))
	}
	if c.Inference.Threshold < 0 || c.Inference.Threshold >= 1 {
		errs = append(errs, errors.New("inference.threshold must be in (0,1) or 0 for the model default"))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not json or console", c.Log.Format))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("config: %w", errors.Join(errs...))
}

// FromArgs parses the command line: -config names the YAML file and the
// remaining flags override it when given explicitly.
func FromArgs(name string, args []string, output io.Writer) (Config, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	if output != nil {
		fs.SetOutput(output)
	}
	defaults := Default()
	var (
		configPath = fs.String("config", "", "YAML configuration file")
		addr       = fs.String("addr", defaults.Server.Addr, "HTTP listen address")
		grace      = fs.Duration("grace", defaults.Server.Grace, "Shutdown grace period")
		renderer   = fs.String("renderer", defaults.Server.Renderer, "Default renderer name")
		model      = fs.String("model", defaults.Resources.Model, "Model artifact path")
		schemaPath = fs.String("schema", defaults.Resources.Schema, "Field schema path (JSON or YAML)")
		logLevel   = fs.String("log-level", defaults.Log.Level, "Log level")
		grpcAddr   = fs.String("grpc-addr", defaults.Health.GRPCAddr, "gRPC health listen address (empty disables)")
	)
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg, err := Load(*configPath)
	if err != nil {
		return Config{}, err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Server.Addr = *addr
		case "grace":
			cfg.Server.Grace = *grace
		case "renderer":
			cfg.Server.Renderer = *renderer
		case "model":
			cfg.Resources.Model = *model
		case "schema":
			cfg.Resources.Schema = *schemaPath
		case "log-level":
			cfg.Log.Level = *logLevel
		case "grpc-addr":
			cfg.Health.GRPCAddr = *grpcAddr
		}
	})
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
