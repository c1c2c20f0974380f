package assistants

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/chatmodel"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/mcpchat/pkg/llmutils"
	"github.com/effective-security/mcpchat/pkg/metricskey"
	"github.com/effective-security/mcpchat/tools"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

// Assistant answers queries with the LLM and the tools of the provider Session.
// Queries are independent: no conversation history is kept between them.
type Assistant struct {
	LLM     llms.Model
	Session tools.Session

	cfg *Config
}

var _ QueryProcessor = (*Assistant)(nil)

// NewAssistant returns Assistant for the model and the tool provider session.
func NewAssistant(llmModel llms.Model, session tools.Session, options ...Option) *Assistant {
	return &Assistant{
		LLM:     llmModel,
		Session: session,
		cfg:     NewConfig(options...),
	}
}

// Config returns the configuration of the Assistant.
func (a *Assistant) Config() *Config {
	return a.cfg
}

// ProcessQuery answers the query.
//
// The tools are listed from the Session for every query. When the provider has none,
// the model answers the query directly. Otherwise each tool call requested by the model
// is executed, in order, and its result is sent back to the model for the final text.
// A failed tool call is reported as `Error executing tool <name>: <err>` in place of its answer,
// any other failure returns `Error processing query: <err>`.
func (a *Assistant) ProcessQuery(ctx context.Context, query string) (answer string) {
	defer func() {
		if r := recover(); r != nil {
			answer = a.failed(ctx, query, errors.Errorf("panic: %v", r))
		}
	}()

	qctx := chatmodel.NewQueryContext("", query)
	ctx = chatmodel.WithQueryContext(ctx, qctx)

	provider := string(a.LLM.GetProviderType())
	started := time.Now()
	defer metricskey.PerfQuery.MeasureSince(started, provider)

	callback := a.cfg.CallbackHandler
	if callback != nil {
		callback.OnQueryStart(ctx, query)
	}

	res, err := a.run(ctx, query)
	if err != nil {
		return a.failed(ctx, query, err)
	}

	metricskey.StatsQueriesSucceeded.IncrCounter(1, provider)
	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "query_completed",
		"query_id", qctx.GetQueryID(),
		"query", slices.StringUpto(query, 64),
		"elapsed", time.Since(started).String(),
	)
	if callback != nil {
		callback.OnQueryEnd(ctx, query, res)
	}
	return res
}

func (a *Assistant) failed(ctx context.Context, query string, err error) string {
	metricskey.StatsQueriesFailed.IncrCounter(1, string(a.LLM.GetProviderType()))
	logger.ContextKV(ctx, xlog.ERROR,
		"status", "query_failed",
		"query_id", chatmodel.GetQueryID(ctx),
		"query", slices.StringUpto(query, 64),
		"err", fmt.Sprintf("%+v", err),
	)
	if a.cfg.CallbackHandler != nil {
		a.cfg.CallbackHandler.OnQueryError(ctx, query, err)
	}
	return ErrorPrefix + err.Error()
}

func (a *Assistant) run(ctx context.Context, query string) (string, error) {
	specs, err := a.Session.ListTools(ctx)
	if err != nil {
		return "", err
	}
	metricskey.StatsToolsListed.IncrCounter(float64(len(specs)), string(a.LLM.GetProviderType()))

	if qctx := chatmodel.GetQueryContext(ctx); qctx != nil {
		qctx.SetMetadata("tools", tools.Names(specs))
	}

	request := llms.MessageFromTextParts(llms.RoleHuman, query)

	if len(specs) == 0 {
		resp, err := a.generate(ctx, []llms.Message{request}, a.cfg.GetCallOptions(nil))
		if err != nil {
			return "", err
		}
		text, _ := llms.ExtractText(resp)
		return text, nil
	}

	callOpts := a.cfg.GetCallOptions(tools.Declarations(specs))
	resp, err := a.generate(ctx, []llms.Message{request}, callOpts)
	if err != nil {
		return "", err
	}

	var parts []llms.ContentPart
	if choice := resp.FirstChoice(); choice != nil {
		parts = choice.Parts
	}

	// fragments are indexed by part, so the answer keeps the model order
	fragments := make([]string, len(parts))
	var calls []int
	seen := false
	for i, p := range parts {
		switch part := p.(type) {
		case llms.TextContent:
			if part.Text != "" {
				fragments[i] = part.Text
				seen = true
			}
		case llms.ToolCall:
			seen = true
			if part.FunctionCall == nil {
				logger.ContextKV(ctx, xlog.WARNING,
					"status", "skipped_tool_call",
					"tool_call_id", part.ID,
					"reason", "missing function",
				)
				continue
			}
			calls = append(calls, i)
		}
	}

	if !seen {
		if text, ok := llms.ExtractText(resp); ok {
			fragments = append(fragments, text)
		}
	}

	execute := func(i int) {
		call := parts[i].(llms.ToolCall)
		call.ID = values.StringsCoalesce(call.ID, fmt.Sprintf("%s_%d", call.FunctionCall.Name, i))
		call.Type = values.StringsCoalesce(call.Type, "function")
		fragments[i] = a.handleToolCall(ctx, request, call, callOpts)
	}

	if a.cfg.ConcurrentTools && len(calls) > 1 {
		var wg sync.WaitGroup
		for _, i := range calls {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				execute(i)
			}(i)
		}
		wg.Wait()
	} else {
		for _, i := range calls {
			execute(i)
		}
	}

	var answer []string
	for _, f := range fragments {
		if f != "" {
			answer = append(answer, f)
		}
	}
	if len(answer) == 0 {
		return NoResponse, nil
	}
	return strings.Join(answer, "\n\n"), nil
}

// handleToolCall executes the call and returns the follow-up answer of the model,
// or the error fragment when the tool or the follow-up fails.
func (a *Assistant) handleToolCall(ctx context.Context, request llms.Message, call llms.ToolCall, callOpts []llms.CallOption) (fragment string) {
	name := call.FunctionCall.Name
	args := call.FunctionCall.Arguments

	defer func() {
		if r := recover(); r != nil {
			fragment = a.toolFailed(ctx, name, args, errors.Errorf("panic: %v", r))
		}
	}()

	callback := a.cfg.CallbackHandler
	if callback != nil {
		callback.OnToolStart(ctx, name, args)
	}
	logger.ContextKV(ctx, xlog.INFO,
		"status", "calling_tool",
		"tool", name,
		"args", args,
	)

	result, err := a.callTool(ctx, call)
	if err != nil {
		return a.toolFailed(ctx, name, args, err)
	}
	metricskey.StatsToolCallsSucceeded.IncrCounter(1, name)
	if callback != nil {
		callback.OnToolEnd(ctx, name, args, result)
	}

	followUp := []llms.Message{
		request,
		llms.MessageFromToolCalls(llms.RoleAI, call),
		llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{
			ToolCallID: call.ID,
			Name:       name,
			Content:    result,
		}),
	}
	resp, err := a.generate(ctx, followUp, callOpts)
	if err != nil {
		return a.toolFailed(ctx, name, args, err)
	}

	text, _ := llms.ExtractText(resp)
	return text
}

func (a *Assistant) callTool(ctx context.Context, call llms.ToolCall) (string, error) {
	name := call.FunctionCall.Name
	args, err := call.FunctionCall.Args()
	if err != nil {
		return "", err
	}

	started := time.Now()
	res, err := a.Session.CallTool(ctx, name, args)
	metricskey.PerfToolCall.MeasureSince(started, name)
	if err != nil {
		return "", err
	}
	return res.String(), nil
}

func (a *Assistant) toolFailed(ctx context.Context, name, args string, err error) string {
	metricskey.StatsToolCallsFailed.IncrCounter(1, name)
	logger.ContextKV(ctx, xlog.WARNING,
		"status", "tool_call_failed",
		"tool", name,
		"provider_error", errors.Is(err, tools.ErrProvider),
		"err", err.Error(),
	)
	if a.cfg.CallbackHandler != nil {
		a.cfg.CallbackHandler.OnToolError(ctx, name, args, err)
	}
	return fmt.Sprintf("Error executing tool %s: %s", name, err.Error())
}

func (a *Assistant) generate(ctx context.Context, messages []llms.Message, callOpts []llms.CallOption) (*llms.ContentResponse, error) {
	provider := string(a.LLM.GetProviderType())
	modelName := values.StringsCoalesce(a.cfg.Model, a.LLM.GetName())

	callback := a.cfg.CallbackHandler
	if callback != nil {
		callback.OnLLMCallStart(ctx, a.LLM, messages)
	}

	bytesSent := llmutils.CountMessagesContentSize(messages)
	metricskey.StatsLLMMessagesSent.IncrCounter(float64(len(messages)), provider, modelName)
	metricskey.StatsLLMBytesSent.IncrCounter(float64(bytesSent), provider, modelName)

	started := time.Now()
	resp, err := a.LLM.GenerateContent(ctx, messages, callOpts...)
	metricskey.PerfLLMCall.MeasureSince(started, provider, modelName)
	if err != nil {
		metricskey.StatsLLMCallsFailed.IncrCounter(1, provider, modelName)
		return nil, errors.WithStack(err)
	}
	if resp == nil {
		resp = &llms.ContentResponse{}
	}

	metricskey.StatsLLMBytesReceived.IncrCounter(float64(llmutils.CountResponseContentSize(resp)), provider, modelName)
	tokensIn, tokensOut, _ := llmutils.CountTokens(resp)
	metricskey.StatsLLMInputTokens.IncrCounter(float64(tokensIn), provider, modelName)
	metricskey.StatsLLMOutputTokens.IncrCounter(float64(tokensOut), provider, modelName)

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "llm_response",
		"model", modelName,
		"messages", len(messages),
		"choices", len(resp.Choices),
		"tokens_in", tokensIn,
		"tokens_out", tokensOut,
	)

	if callback != nil {
		callback.OnLLMCallEnd(ctx, a.LLM, resp)
	}
	return resp, nil
}
