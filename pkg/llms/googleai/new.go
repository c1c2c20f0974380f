// Package googleai implements the model gateway for Google AI (Gemini) models.
// See https://ai.google.dev/ for more details.
package googleai

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/x/values"
	"google.golang.org/genai"
)

// ErrMissingToken is returned when neither API key nor credentials are available
var ErrMissingToken = errors.New("missing the Google AI API key, set it in the " + TokenEnvVarName + " environment variable")

// GoogleAI is a type that represents a Google AI API client.
type GoogleAI struct {
	client *genai.Client
	opts   Options
}

var _ llms.Model = (*GoogleAI)(nil)

// New creates a new GoogleAI client.
func New(ctx context.Context, opts ...Option) (*GoogleAI, error) {
	clientOptions := DefaultOptions()
	for _, opt := range opts {
		opt(&clientOptions)
	}
	clientOptions.EnsureAuthPresent()
	if !clientOptions.HasAuth() {
		return nil, ErrMissingToken
	}

	cfg := &genai.ClientConfig{
		APIKey:      clientOptions.APIKey,
		Credentials: clientOptions.Credentials,
		HTTPClient:  clientOptions.HTTPClient,
		Backend:     genai.BackendGeminiAPI,
	}
	// the cloud project selects Vertex AI, authenticated with the credentials
	if clientOptions.CloudProject != "" {
		cfg.Backend = genai.BackendVertexAI
		cfg.Project = clientOptions.CloudProject
		cfg.Location = values.StringsCoalesce(clientOptions.CloudLocation, DefaultCloudLocation)
		cfg.APIKey = ""
	}
	if clientOptions.BaseURL != "" {
		cfg.HTTPOptions.BaseURL = clientOptions.BaseURL
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, errors.WithMessage(err, "unable to create Google AI client")
	}

	return &GoogleAI{
		client: client,
		opts:   clientOptions,
	}, nil
}
