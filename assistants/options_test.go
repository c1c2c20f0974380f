package assistants_test

import (
	"testing"

	"github.com/effective-security/mcpchat/assistants"
	"github.com/effective-security/mcpchat/callbacks"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/stretchr/testify/assert"
)

func Test_CallOptions(t *testing.T) {
	t.Parallel()

	cfg := assistants.NewConfig()
	assert.Equal(t, "", cfg.Model)
	assert.Equal(t, 1000, cfg.MaxTokens)
	assert.Equal(t, 0.7, cfg.Temperature)
	assert.Nil(t, cfg.CallbackHandler)
	assert.False(t, cfg.ConcurrentTools)

	opts := llms.ApplyOptions(llms.CallOptions{}, cfg.GetCallOptions(nil)...)
	assert.Equal(t, llms.CallOptions{Temperature: 0.7, MaxTokens: 1000}, opts)

	decls := []llms.Tool{{Type: "function", Function: &llms.FunctionDefinition{Name: "get_alerts"}}}
	cb := callbacks.NewNoop()
	cfg = assistants.NewConfig(
		assistants.WithModel("gemini-1.5-pro"),
		assistants.WithTemperature(0.2),
		assistants.WithMaxTokens(256),
		assistants.WithCallback(cb),
		assistants.WithConcurrentTools(true),
	)
	assert.Equal(t, cb, cfg.CallbackHandler)
	assert.True(t, cfg.ConcurrentTools)

	opts = llms.ApplyOptions(llms.CallOptions{}, cfg.GetCallOptions(decls)...)
	assert.Equal(t, llms.CallOptions{
		Model:       "gemini-1.5-pro",
		Temperature: 0.2,
		MaxTokens:   256,
		Tools:       decls,
	}, opts)
}
