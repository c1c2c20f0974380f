package llmfactory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"cloud.google.com/go/auth/credentials"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/mcpchat/pkg/llms/anthropic"
	"github.com/effective-security/mcpchat/pkg/llms/bedrock"
	"github.com/effective-security/mcpchat/pkg/llms/googleai"
	"github.com/effective-security/mcpchat/pkg/llms/openai"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpchat", "llmfactory")

// ErrMissingCredential is returned when the API key for a provider is not available.
var ErrMissingCredential = errors.New("missing credential")

// Supported provider types
const (
	TypeGoogleAI  = "GOOGLEAI"
	TypeOpenAI    = "OPENAI"
	TypeAzure     = "AZURE"
	TypeAzureAD   = "AZURE_AD"
	TypeAnthropic = "ANTHROPIC"
	TypeBedrock   = "BEDROCK"
)

// credentialError makes ErrMissingCredential visible to the standard errors.Is
type credentialError struct {
	cause error
}

func (e *credentialError) Error() string { return e.cause.Error() }
func (e *credentialError) Unwrap() error { return e.cause }

func (e *credentialError) Is(target error) bool {
	return target == ErrMissingCredential
}

// NewLLM is a wrapper for CreateLLM to allow for overriding the default implementation.
var NewLLM = CreateLLM

// Factory is the interface for creating and managing LLM models.
type Factory interface {
	// DefaultModel returns the default LLM model.
	DefaultModel() (llms.Model, error)
	// ModelByType returns an LLM model by its provider type, e.g.
	// GOOGLEAI, OPENAI, AZURE, AZURE_AD, ANTHROPIC, BEDROCK.
	// The preferred models are used if available in the provider.
	ModelByType(providerType string, preferredModels ...string) (llms.Model, error)
	// ModelByName returns an LLM model by its name,
	// if no provider lists the model, the default provider is used.
	ModelByName(preferredModels ...string) (llms.Model, error)
	// AssistantModel returns an assistant model by its name.
	AssistantModel(assistantName string, preferredModels ...string) (llms.Model, error)
}

// Load returns LLM factory
func Load(location string) (Factory, error) {
	cfg, err := LoadConfig(location)
	if err != nil {
		return nil, err
	}
	return New(cfg), nil
}

type factory struct {
	cfg *Config

	defaultProvider *ProviderConfig
	assistantModels map[string][]string
	byType          map[string]llms.Model
	byName          map[string]llms.Model
	lock            sync.Mutex
}

// New creates a new LLM factory
func New(cfg *Config) Factory {
	f := &factory{
		cfg:             cfg,
		byType:          make(map[string]llms.Model),
		byName:          make(map[string]llms.Model),
		assistantModels: make(map[string][]string),
	}

	for k, v := range cfg.AssistantModels {
		f.assistantModels[k] = slices.Clone(v)
	}

	if cfg.DefaultProvider != "" {
		for _, provider := range cfg.Providers {
			if provider.Name == cfg.DefaultProvider {
				f.defaultProvider = provider
				break
			}
		}
	}

	if f.defaultProvider == nil && len(f.cfg.Providers) > 0 {
		f.defaultProvider = f.cfg.Providers[0]
	}

	return f
}

// CreateLLM creates a model gateway for the provider.
// Missing API keys are marked with ErrMissingCredential.
func CreateLLM(cfg *ProviderConfig, preferredModels ...string) (llms.Model, error) {
	var (
		model llms.Model
		err   error
	)
	provType := normalizeType(cfg.API.Type)
	switch provType {
	case TypeOpenAI:
		model, err = newOpenAI(cfg, openai.ProviderOpenAI, preferredModels...)
	case TypeAzure:
		model, err = newOpenAI(cfg, openai.ProviderAzure, preferredModels...)
	case TypeAzureAD:
		model, err = newOpenAI(cfg, openai.ProviderAzureAD, preferredModels...)
	case TypeAnthropic:
		model, err = newAnthropic(cfg, preferredModels...)
	case TypeGoogleAI:
		model, err = newGoogleAI(cfg, preferredModels...)
	case TypeBedrock:
		model, err = newBedrock(cfg, preferredModels...)
	default:
		return nil, errors.Errorf("unsupported provider type: %s", provType)
	}
	if err != nil {
		if errors.Is(err, googleai.ErrMissingToken) ||
			errors.Is(err, openai.ErrMissingToken) ||
			errors.Is(err, anthropic.ErrMissingToken) {
			return nil, errors.Mark(&credentialError{cause: err}, ErrMissingCredential)
		}
		return nil, err
	}
	return model, nil
}

func normalizeType(t string) string {
	t = strings.ToUpper(t)
	if t == "OPEN_AI" {
		return TypeOpenAI
	}
	return t
}

func newOpenAI(cfg *ProviderConfig, provider openai.ProviderType, preferredModels ...string) (llms.Model, error) {
	opts := []openai.Option{openai.WithProvider(provider)}
	if model := cfg.FindModel(preferredModels...); model != "" {
		opts = append(opts, openai.WithModel(model))
	}
	if cfg.Token != "" {
		opts = append(opts, openai.WithToken(cfg.Token))
	}
	if cfg.API.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.API.BaseURL))
	}
	if cfg.API.APIVersion != "" {
		opts = append(opts, openai.WithAPIVersion(cfg.API.APIVersion))
	}
	if cfg.API.OrgID != "" {
		opts = append(opts, openai.WithOrganization(cfg.API.OrgID))
	}
	return openai.New(opts...)
}

func newAnthropic(cfg *ProviderConfig, preferredModels ...string) (llms.Model, error) {
	var opts []anthropic.Option
	if model := cfg.FindModel(preferredModels...); model != "" {
		opts = append(opts, anthropic.WithModel(model))
	}
	if cfg.Token != "" {
		opts = append(opts, anthropic.WithToken(cfg.Token))
	}
	if cfg.API.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.API.BaseURL))
	}
	return anthropic.New(opts...)
}

func newGoogleAI(cfg *ProviderConfig, preferredModels ...string) (llms.Model, error) {
	var opts []googleai.Option
	if model := cfg.FindModel(preferredModels...); model != "" {
		opts = append(opts, googleai.WithDefaultModel(model))
	}
	if cfg.Token != "" {
		opts = append(opts, googleai.WithAPIKey(cfg.Token))
	}
	if cfg.API.BaseURL != "" {
		opts = append(opts, googleai.WithBaseURL(cfg.API.BaseURL))
	}
	if cfg.Temperature > 0 {
		opts = append(opts, googleai.WithDefaultTemperature(cfg.Temperature))
	}
	if cfg.API.Project != "" || cfg.API.CredentialsFile != "" {
		vertex, err := vertexOptions(context.Background(), &cfg.API)
		if err != nil {
			return nil, err
		}
		opts = append(opts, vertex...)
	}
	return googleai.New(context.Background(), opts...)
}

// vertexOptions returns the Vertex AI credentials and project,
// the project of the credentials is used when not configured.
func vertexOptions(ctx context.Context, api *APIConfig) ([]googleai.Option, error) {
	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		Scopes:          []string{googleai.CloudPlatformScope},
		CredentialsFile: api.CredentialsFile,
	})
	if err != nil {
		return nil, errors.WithMessage(err, "unable to load Google credentials")
	}

	project := api.Project
	if project == "" {
		project, _ = creds.ProjectID(ctx)
	}
	if project == "" {
		return nil, errors.New("project is required for Vertex AI")
	}

	return []googleai.Option{
		googleai.WithCredentials(creds),
		googleai.WithCloudProject(project),
		googleai.WithCloudLocation(api.Region),
	}, nil
}

func newBedrock(cfg *ProviderConfig, preferredModels ...string) (llms.Model, error) {
	var opts []bedrock.Option
	if model := cfg.FindModel(preferredModels...); model != "" {
		opts = append(opts, bedrock.WithModel(model))
	}
	if cfg.API.Region != "" {
		opts = append(opts, bedrock.WithRegion(cfg.API.Region))
	}
	if cfg.API.Profile != "" {
		opts = append(opts, bedrock.WithProfile(cfg.API.Profile))
	}
	return bedrock.New(context.Background(), opts...)
}

// DefaultModel returns the model of the default provider
func (f *factory) DefaultModel() (llms.Model, error) {
	if len(f.cfg.Providers) == 0 || f.defaultProvider == nil {
		return nil, errors.New("no providers configured")
	}

	return NewLLM(f.defaultProvider, f.defaultProvider.DefaultModel)
}

func (f *factory) ModelByType(providerType string, preferredModels ...string) (llms.Model, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	providerType = normalizeType(providerType)
	key := providerType + "/" + strings.Join(preferredModels, ",")
	if client, ok := f.byType[key]; ok {
		return client, nil
	}

	for _, cfg := range f.cfg.Providers {
		if normalizeType(cfg.API.Type) == providerType {
			model, err := NewLLM(cfg, preferredModels...)
			if err != nil {
				return nil, err
			}

			logger.KV(xlog.DEBUG,
				"status", "created_llm",
				"type", cfg.API.Type,
				"model", model.GetName(),
				"name", cfg.Name)

			f.byType[key] = model
			return model, nil
		}
	}
	return nil, errors.Errorf("provider not found for type: %s", providerType)
}

func (f *factory) ModelByName(modelNames ...string) (llms.Model, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	for _, modelName := range modelNames {
		if client, ok := f.byName[modelName]; ok {
			return client, nil
		}

		for _, cfg := range f.cfg.Providers {
			if slices.Contains(cfg.AvailableModels, modelName) {
				model, err := NewLLM(cfg, modelName)
				if err != nil {
					logger.KV(xlog.ERROR,
						"reason", "NewLLM",
						"type", cfg.API.Type,
						"models", modelNames,
						"err", err.Error(),
					)
					continue
				}

				logger.KV(xlog.DEBUG,
					"status", "created_llm",
					"type", cfg.API.Type,
					"model", modelName,
					"name", cfg.Name)

				f.byName[modelName] = model
				return model, nil
			}
		}
	}

	if f.defaultProvider == nil {
		return nil, errors.New("no providers configured")
	}
	// the default provider serves any model when it does not restrict them
	return NewLLM(f.defaultProvider, modelNames...)
}

// AssistantModel returns an assistant model by its name.
func (f *factory) AssistantModel(assistantName string, preferredModels ...string) (llms.Model, error) {
	if modelNames, ok := f.assistantModels[assistantName]; ok {
		return f.ModelByName(modelNames...)
	}
	if modelNames, ok := f.assistantModels["default"]; ok {
		return f.ModelByName(modelNames...)
	}
	return f.ModelByName(preferredModels...)
}
