package llmfactory

import (
	"slices"

	"github.com/effective-security/x/configloader"
)

// Config lists the model providers available to the client.
type Config struct {
	// Providers specifies the list of providers to use
	Providers []*ProviderConfig `json:"providers" yaml:"providers" toml:"providers" validate:"dive"`
	// DefaultProvider specifies the name of the default provider to use
	DefaultProvider string `json:"default_provider" yaml:"default_provider" toml:"default_provider"`
	// AssistantModels specifies the mapping of assistants to models.
	// key is the assistant name, value is the list of preferred models.
	// Use `default: <model_name>` as the default model for assistants.
	AssistantModels map[string][]string `json:"assistant_models,omitempty" yaml:"assistant_models,omitempty" toml:"assistant_models,omitempty"`
}

// ProviderConfig for a model provider
type ProviderConfig struct {
	Name            string   `json:"name" yaml:"name" toml:"name" validate:"required"`
	Token           string   `json:"token,omitempty" yaml:"token,omitempty" toml:"token,omitempty"`
	DefaultModel    string   `json:"default_model,omitempty" yaml:"default_model,omitempty" toml:"default_model,omitempty"`
	AvailableModels []string `json:"available_models,omitempty" yaml:"available_models,omitempty" toml:"available_models,omitempty"`
	// Temperature overrides the sampling temperature for the provider
	Temperature float64   `json:"temperature,omitempty" yaml:"temperature,omitempty" toml:"temperature,omitempty" validate:"gte=0,lte=2"`
	API         APIConfig `json:"api" yaml:"api" toml:"api"`
}

// APIConfig specifies the provider endpoint
type APIConfig struct {
	// Type specifies the type of API to use:
	// GOOGLEAI|OPENAI|AZURE|AZURE_AD|ANTHROPIC|BEDROCK
	Type       string `json:"type" yaml:"type" toml:"type" validate:"required,oneof=GOOGLEAI OPENAI OPEN_AI AZURE AZURE_AD ANTHROPIC BEDROCK"`
	BaseURL    string `json:"base_url,omitempty" yaml:"base_url,omitempty" toml:"base_url,omitempty"`
	APIVersion string `json:"api_version,omitempty" yaml:"api_version,omitempty" toml:"api_version,omitempty"`
	// OrgID specifies which organization's quota and billing should be used when making API requests.
	OrgID string `json:"org_id,omitempty" yaml:"org_id,omitempty" toml:"org_id,omitempty"`
	// Region and Profile are used by BEDROCK,
	// Region is also the Vertex AI location for GOOGLEAI
	Region  string `json:"region,omitempty" yaml:"region,omitempty" toml:"region,omitempty"`
	Profile string `json:"profile,omitempty" yaml:"profile,omitempty" toml:"profile,omitempty"`
	// Project and CredentialsFile select Vertex AI for GOOGLEAI,
	// the application default credentials are used when the file is not set
	Project         string `json:"project,omitempty" yaml:"project,omitempty" toml:"project,omitempty"`
	CredentialsFile string `json:"credentials_file,omitempty" yaml:"credentials_file,omitempty" toml:"credentials_file,omitempty"`
}

// FindModel returns the first of the preferred models available in the provider.
// When the provider does not restrict models, the first preferred model is used.
func (c *ProviderConfig) FindModel(models ...string) string {
	for _, model := range models {
		if model == "" {
			continue
		}
		if len(c.AvailableModels) == 0 || slices.Contains(c.AvailableModels, model) {
			return model
		}
	}
	return c.DefaultModel
}

// DefaultConfig returns config with a single Gemini provider
func DefaultConfig() *Config {
	return &Config{
		DefaultProvider: "gemini",
		Providers: []*ProviderConfig{
			{
				Name:         "gemini",
				DefaultModel: "gemini-2.0-flash-exp",
				API: APIConfig{
					Type: TypeGoogleAI,
				},
			},
		},
	}
}

// LoadConfig from file
func LoadConfig(file string) (*Config, error) {
	cfg := new(Config)
	if file == "" {
		return cfg, nil
	}

	err := configloader.UnmarshalAndExpand(file, cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}
