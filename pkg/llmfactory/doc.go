// Package llmfactory provides configuration and a factory for the model gateways,
// supporting multiple providers (Gemini, OpenAI, Azure, Anthropic, Bedrock) and model selection.
package llmfactory
