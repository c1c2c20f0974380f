package assistants

import (
	"github.com/effective-security/mcpchat/pkg/llms"
)

// Default generation settings
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1000
)

// Option is a function that can be used to modify the behavior of the Assistant Config.
type Option func(*Config)

// Config is the configuration of the Assistant.
type Config struct {
	// Model is the model to use in an LLM call,
	// the default model of the gateway is used when empty.
	Model string

	// MaxTokens is the maximum number of tokens to generate to use in an LLM call.
	MaxTokens int

	// Temperature is the temperature for sampling to use in an LLM call, between 0 and 1.
	Temperature float64

	// CallbackHandler receives the query, LLM and tool events
	CallbackHandler Callback

	// ConcurrentTools executes the tool calls of a response in parallel,
	// the answers are still ordered as the model requested the calls.
	ConcurrentTools bool
}

// NewConfig returns Config with defaults and the options applied.
func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithModel is an option for LLM.Call.
func WithModel(model string) Option {
	return func(o *Config) {
		o.Model = model
	}
}

// WithMaxTokens is an option for LLM.Call.
func WithMaxTokens(maxTokens int) Option {
	return func(o *Config) {
		o.MaxTokens = maxTokens
	}
}

// WithTemperature is an option for LLM.Call.
func WithTemperature(temperature float64) Option {
	return func(o *Config) {
		o.Temperature = temperature
	}
}

// WithCallback allows setting a custom Callback Handler.
func WithCallback(callbackHandler Callback) Option {
	return func(o *Config) {
		o.CallbackHandler = callbackHandler
	}
}

// WithConcurrentTools enables parallel execution of the tool calls.
func WithConcurrentTools(enabled bool) Option {
	return func(o *Config) {
		o.ConcurrentTools = enabled
	}
}

// GetCallOptions returns the generation options,
// the tools are attached only when the list is not empty.
func (c *Config) GetCallOptions(tools []llms.Tool) []llms.CallOption {
	var callOpts []llms.CallOption
	if c.Model != "" {
		callOpts = append(callOpts, llms.WithModel(c.Model))
	}
	if len(tools) > 0 {
		callOpts = append(callOpts, llms.WithTools(tools))
	}
	callOpts = append(callOpts,
		llms.WithTemperature(c.Temperature),
		llms.WithMaxTokens(c.MaxTokens),
	)
	return callOpts
}
