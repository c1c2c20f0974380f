// Package config provides the configuration of the mcpchat client.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/assistants"
	"github.com/effective-security/mcpchat/mcp"
	"github.com/effective-security/mcpchat/pkg/llmfactory"
	"github.com/effective-security/x/configloader"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/go-playground/validator/v10"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpchat", "config")

// DefaultAssistantName is the key in `assistant_models` used by the client
const DefaultAssistantName = "mcpchat"

var validate = validator.New()

// Config of the client
type Config struct {
	// LLM specifies the model providers
	LLM llmfactory.Config `json:"llm" yaml:"llm" toml:"llm"`
	// Server overrides the launch command derived from the server path
	Server *mcp.ProviderConfig `json:"server,omitempty" yaml:"server,omitempty" toml:"server,omitempty"`
	// Assistant specifies the generation settings
	Assistant Assistant `json:"assistant" yaml:"assistant" toml:"assistant"`
}

// Assistant specifies the generation settings of the queries
type Assistant struct {
	// Name is the assistant name to look up in `llm.assistant_models`
	Name string `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
	// Model is the preferred model, the default model of the provider is used when empty
	Model string `json:"model,omitempty" yaml:"model,omitempty" toml:"model,omitempty"`
	// Temperature for sampling, 0.7 when not set
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" toml:"temperature,omitempty" validate:"gte=0,lte=2"`
	// MaxTokens is the output limit, 1000 when not set
	MaxTokens int `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty" toml:"max_tokens,omitempty" validate:"gte=0"`
	// ConcurrentTools executes the tool calls of a response in parallel
	ConcurrentTools bool `json:"concurrent_tools,omitempty" yaml:"concurrent_tools,omitempty" toml:"concurrent_tools,omitempty"`
}

// Default returns the config with a single Gemini provider
func Default() *Config {
	cfg := &Config{
		LLM: *llmfactory.DefaultConfig(),
	}
	cfg.setDefaults()
	return cfg
}

// Load returns the config from a YAML, JSON or TOML file,
// the environment variables in the file are expanded.
// The default config is returned when the file is empty.
func Load(file string) (*Config, error) {
	if file == "" {
		return Default(), nil
	}

	cfg := new(Config)
	var err error
	if strings.EqualFold(filepath.Ext(file), ".toml") {
		err = loadTOML(file, cfg)
	} else {
		err = configloader.UnmarshalAndExpand(file, cfg)
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "unable to load config %q", file)
	}

	cfg.setDefaults()
	if err = cfg.Validate(); err != nil {
		return nil, err
	}

	logger.KV(xlog.DEBUG,
		"status", "loaded",
		"file", file,
		"providers", len(cfg.LLM.Providers),
		"default_provider", cfg.LLM.DefaultProvider,
	)
	return cfg, nil
}

func loadTOML(file string, cfg *Config) error {
	b, err := os.ReadFile(file)
	if err != nil {
		return errors.WithStack(err)
	}
	_, err = toml.Decode(os.ExpandEnv(string(b)), cfg)
	if err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func (c *Config) setDefaults() {
	if len(c.LLM.Providers) == 0 {
		def := llmfactory.DefaultConfig()
		c.LLM.Providers = def.Providers
		c.LLM.DefaultProvider = values.StringsCoalesce(c.LLM.DefaultProvider, def.DefaultProvider)
	}
	if c.LLM.DefaultProvider == "" && len(c.LLM.Providers) > 0 && c.LLM.Providers[0] != nil {
		c.LLM.DefaultProvider = c.LLM.Providers[0].Name
	}

	c.Assistant.Name = values.StringsCoalesce(c.Assistant.Name, DefaultAssistantName)
	if c.Assistant.Temperature == 0 {
		c.Assistant.Temperature = assistants.DefaultTemperature
	}
	if c.Assistant.MaxTokens == 0 {
		c.Assistant.MaxTokens = assistants.DefaultMaxTokens
	}
}

// Validate returns error if the config is not valid
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.WithMessage(err, "invalid config")
	}
	if c.Server != nil {
		if err := c.Server.Validate(); err != nil {
			return err
		}
	}

	found := false
	for _, p := range c.LLM.Providers {
		if p != nil && p.Name == c.LLM.DefaultProvider {
			found = true
			break
		}
	}
	if !found {
		return errors.Errorf("invalid config: default provider %q is not configured", c.LLM.DefaultProvider)
	}
	return nil
}

// Options returns the Assistant options of the config.
// The model is not included as it is selected when the LLM is created.
func (c *Assistant) Options() []assistants.Option {
	return []assistants.Option{
		assistants.WithTemperature(c.Temperature),
		assistants.WithMaxTokens(c.MaxTokens),
		assistants.WithConcurrentTools(c.ConcurrentTools),
	}
}
