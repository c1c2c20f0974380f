package bedrock

import (
	"github.com/effective-security/mcpchat/pkg/llms/bedrock/internal/bedrockclient"
)

// Supported Anthropic models on Bedrock.
const (
	ModelAnthropicClaude35SonnetV2 = "us.anthropic.claude-3-5-sonnet-20241022-v2:0"
	ModelAnthropicClaude35Haiku    = "us.anthropic.claude-3-5-haiku-20241022-v1:0"
	ModelAnthropicClaude3Haiku     = "anthropic.claude-3-haiku-20240307-v1:0"
)

// InvokeModelAPI is the Bedrock runtime API used by the gateway,
// satisfied by *bedrockruntime.Client.
type InvokeModelAPI = bedrockclient.InvokeModelAPI

// Option is an option for the Bedrock LLM.
type Option func(*options)

type options struct {
	modelID string
	region  string
	profile string
	client  InvokeModelAPI
}

// WithModel allows setting a custom model ID.
func WithModel(modelID string) Option {
	return func(o *options) {
		o.modelID = modelID
	}
}

// WithRegion sets the AWS region, when the client is created from the default config.
func WithRegion(region string) Option {
	return func(o *options) {
		o.region = region
	}
}

// WithProfile sets the shared config profile, when the client is created from the default config.
func WithProfile(profile string) Option {
	return func(o *options) {
		o.profile = profile
	}
}

// WithClient allows setting a custom bedrockruntime.Client.
func WithClient(client InvokeModelAPI) Option {
	return func(o *options) {
		o.client = client
	}
}
