package llmfactory_test

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/pkg/llmfactory"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLLM struct {
	provider string
	model    string
}

func (f *fakeLLM) GetProviderType() llms.ProviderType {
	return llms.ProviderType(f.provider)
}

func (f *fakeLLM) GetName() string {
	return f.model
}

func (f *fakeLLM) GenerateContent(_ context.Context, _ []llms.Message, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{}, nil
}

func useFakeLLM(t *testing.T) *int {
	created := new(int)
	llmfactory.NewLLM = func(cfg *llmfactory.ProviderConfig, preferredModels ...string) (llms.Model, error) {
		*created++
		return &fakeLLM{provider: cfg.Name, model: cfg.FindModel(preferredModels...)}, nil
	}
	t.Cleanup(func() {
		llmfactory.NewLLM = llmfactory.CreateLLM
	})
	return created
}

func Test_Factory(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "fakekey")
	created := useFakeLLM(t)

	cfg, err := llmfactory.LoadConfig("testdata/llm.yaml")
	require.NoError(t, err)
	require.Len(t, cfg.Providers, 5)

	f := llmfactory.New(cfg)
	model, err := f.DefaultModel()
	require.NoError(t, err)
	fm := model.(*fakeLLM)
	assert.Equal(t, "gemini-2.0-flash-exp", fm.model)
	assert.Equal(t, "gemini", fm.provider)

	tcases := []struct {
		models   []string
		provider string
		model    string
	}{
		{models: []string{"gpt-4o-mini"}, provider: "openai", model: "gpt-4o-mini"},
		{models: []string{"unknown", "gpt-41-mini"}, provider: "azure", model: "gpt-41-mini"},
		{models: []string{"gemini-2.5-flash"}, provider: "gemini", model: "gemini-2.5-flash"},
		{models: []string{"non-existent-model"}, provider: "gemini", model: "gemini-2.0-flash-exp"},
	}
	for _, tc := range tcases {
		model, err = f.ModelByName(tc.models...)
		require.NoError(t, err)
		fm = model.(*fakeLLM)
		assert.Equal(t, tc.provider, fm.provider, tc.models)
		assert.Equal(t, tc.model, fm.model, tc.models)
	}

	model, err = f.ModelByType("anthropic")
	require.NoError(t, err)
	fm = model.(*fakeLLM)
	assert.Equal(t, "claude-3-5-sonnet-20241022", fm.model)

	// anthropic does not restrict models
	model, err = f.ModelByType("ANTHROPIC", "claude-3-5-haiku-20241022")
	require.NoError(t, err)
	assert.Equal(t, "claude-3-5-haiku-20241022", model.GetName())

	// openai does, falls back to default
	model, err = f.ModelByType("OPEN_AI", "gpt-3")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", model.GetName())

	before := *created
	_, err = f.ModelByType("BEDROCK")
	require.NoError(t, err)
	_, err = f.ModelByType("BEDROCK")
	require.NoError(t, err)
	assert.Equal(t, before+1, *created, "should be cached")

	_, err = f.ModelByType("PERPLEXITY")
	assert.EqualError(t, err, "provider not found for type: PERPLEXITY")

	model, err = f.AssistantModel("mcpchat")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", model.GetName())

	model, err = f.AssistantModel("other", "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", model.GetName())
}

func Test_EmptyFactory(t *testing.T) {
	f := llmfactory.New(&llmfactory.Config{})
	_, err := f.DefaultModel()
	assert.EqualError(t, err, "no providers configured")

	_, err = f.ModelByName("gpt-4o")
	assert.EqualError(t, err, "no providers configured")
}

func Test_ModelByName_Unrestricted(t *testing.T) {
	useFakeLLM(t)

	f := llmfactory.New(llmfactory.DefaultConfig())
	model, err := f.ModelByName("gemini-1.5-pro")
	require.NoError(t, err)
	assert.Equal(t, "gemini-1.5-pro", model.GetName())

	model, err = f.ModelByName()
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.0-flash-exp", model.GetName())
}

func Test_LoadConfig(t *testing.T) {
	cfg, err := llmfactory.LoadConfig("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Providers)

	_, err = llmfactory.LoadConfig("testdata/non-existent.yaml")
	require.Error(t, err)

	_, err = llmfactory.LoadConfig("testdata/invalid.yaml")
	require.Error(t, err)

	_, err = llmfactory.Load("testdata/non-existent.yaml")
	require.Error(t, err)

	f, err := llmfactory.Load("testdata/llm.yaml")
	require.NoError(t, err)
	assert.NotNil(t, f)
}

func Test_DefaultConfig(t *testing.T) {
	cfg := llmfactory.DefaultConfig()
	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, llmfactory.TypeGoogleAI, cfg.Providers[0].API.Type)
	assert.Equal(t, "gemini-2.0-flash-exp", cfg.Providers[0].FindModel())
}

func Test_FindModel(t *testing.T) {
	t.Parallel()

	p := &llmfactory.ProviderConfig{DefaultModel: "a"}
	assert.Equal(t, "a", p.FindModel())
	assert.Equal(t, "a", p.FindModel(""))
	assert.Equal(t, "b", p.FindModel("b"))

	p.AvailableModels = []string{"a", "c"}
	assert.Equal(t, "a", p.FindModel("b"))
	assert.Equal(t, "c", p.FindModel("b", "c"))
}

func Test_CreateLLM(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	for _, typ := range []string{"GOOGLEAI", "OPENAI", "open_ai", "ANTHROPIC", "AZURE"} {
		_, err := llmfactory.CreateLLM(&llmfactory.ProviderConfig{
			Name:         "p",
			DefaultModel: "m",
			API:          llmfactory.APIConfig{Type: typ},
		})
		assert.ErrorIs(t, err, llmfactory.ErrMissingCredential, typ)
		assert.True(t, stderrors.Is(err, llmfactory.ErrMissingCredential), typ)
		assert.True(t, errors.Is(err, llmfactory.ErrMissingCredential), typ)
	}

	_, err := llmfactory.CreateLLM(&llmfactory.ProviderConfig{API: llmfactory.APIConfig{Type: "UNSUPPORTED"}})
	assert.EqualError(t, err, "unsupported provider type: UNSUPPORTED")

	tcases := []struct {
		typ      string
		provider llms.ProviderType
		model    string
	}{
		{typ: "GOOGLEAI", provider: llms.ProviderGoogleAI, model: "gemini-2.0-flash-exp"},
		{typ: "OPENAI", provider: llms.ProviderOpenAI, model: "gpt-4o"},
		{typ: "ANTHROPIC", provider: llms.ProviderAnthropic, model: "claude-3-5-sonnet-20241022"},
	}
	for _, tc := range tcases {
		m, err := llmfactory.CreateLLM(&llmfactory.ProviderConfig{
			Name:         "p",
			Token:        "fakekey",
			DefaultModel: tc.model,
			API:          llmfactory.APIConfig{Type: tc.typ},
		})
		require.NoError(t, err, tc.typ)
		assert.Equal(t, tc.provider, m.GetProviderType())
		assert.Equal(t, tc.model, m.GetName())
	}
}

func Test_CreateLLM_Vertex(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GOOGLE_CLOUD_PROJECT", "")

	m, err := llmfactory.CreateLLM(&llmfactory.ProviderConfig{
		Name:         "vertex",
		DefaultModel: "gemini-2.0-flash-exp",
		API: llmfactory.APIConfig{
			Type:            llmfactory.TypeGoogleAI,
			Project:         "mcpchat-test",
			Region:          "us-east1",
			CredentialsFile: "testdata/adc.json",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, llms.ProviderGoogleAI, m.GetProviderType())
	assert.Equal(t, "gemini-2.0-flash-exp", m.GetName())

	_, err = llmfactory.CreateLLM(&llmfactory.ProviderConfig{
		Name: "vertex",
		API: llmfactory.APIConfig{
			Type:            llmfactory.TypeGoogleAI,
			CredentialsFile: "testdata/adc.json",
		},
	})
	assert.EqualError(t, err, "project is required for Vertex AI")

	_, err = llmfactory.CreateLLM(&llmfactory.ProviderConfig{
		Name: "vertex",
		API: llmfactory.APIConfig{
			Type:            llmfactory.TypeGoogleAI,
			Project:         "mcpchat-test",
			CredentialsFile: "testdata/missing.json",
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to load Google credentials")
	assert.False(t, errors.Is(err, llmfactory.ErrMissingCredential))
}
