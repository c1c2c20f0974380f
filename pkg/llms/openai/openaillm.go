// Package openai implements the model gateway for OpenAI compatible
// Chat Completions API.
package openai

import (
	"context"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/mcpchat/pkg/llms/openai/internal/openaiclient"
	"github.com/effective-security/x/values"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"
)

var (
	// ErrEmptyResponse is returned when the API returns no choices.
	ErrEmptyResponse = openaiclient.ErrEmptyResponse
	// ErrMissingToken is returned when the API key is not provided.
	ErrMissingToken = errors.New("missing the OpenAI API key, set it in the " + tokenEnvVarName + " environment variable")
)

type LLM struct {
	client *openaiclient.Client
}

var _ llms.Model = (*LLM)(nil)

// New returns a new OpenAI LLM.
func New(opts ...Option) (*LLM, error) {
	options := &options{
		token:        os.Getenv(tokenEnvVarName),
		model:        os.Getenv(modelEnvVarName),
		baseURL:      os.Getenv(baseURLEnvVarName),
		organization: os.Getenv(organizationEnvVarName),
		provider:     ProviderOpenAI,
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.token == "" {
		return nil, ErrMissingToken
	}
	if openaiclient.IsAzure(options.provider) {
		if options.model == "" {
			return nil, errors.New("model is required for Azure deployments")
		}
		options.apiVersion = values.StringsCoalesce(options.apiVersion, DefaultAPIVersion)
	}

	c := openaiclient.New(options.provider, options.model, options.token,
		options.baseURL, options.organization, options.apiVersion, options.httpClient)
	return &LLM{
		client: c,
	}, nil
}

// GetName implements the Model interface.
func (o *LLM) GetName() string {
	return values.StringsCoalesce(o.client.Model, openaiclient.DefaultChatModel)
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderOpenAI
}

// GenerateContent implements the Model interface.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.ApplyOptions(llms.CallOptions{}, options...)

	req := &openai.ChatCompletionNewParams{
		Model: openai.ChatModel(opts.Model),
	}
	if opts.Temperature > 0 {
		req.Temperature = openai.Float(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		req.MaxCompletionTokens = openai.Int(int64(opts.MaxTokens))
	}
	if opts.TopP > 0 {
		req.TopP = openai.Float(opts.TopP)
	}
	if opts.CandidateCount > 1 {
		req.N = openai.Int(int64(opts.CandidateCount))
	}
	if len(opts.StopWords) > 0 {
		req.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: opts.StopWords}
	}

	for _, mc := range messages {
		msgs, err := convertMessage(mc)
		if err != nil {
			return nil, err
		}
		req.Messages = append(req.Messages, msgs...)
	}

	for _, tool := range opts.Tools {
		t, err := toolFromTool(tool)
		if err != nil {
			return nil, errors.WithMessage(err, "failed to convert llms tool to openai tool")
		}
		req.Tools = append(req.Tools, t)
	}

	result, err := o.client.CreateChat(ctx, req)
	if err != nil {
		return nil, err
	}

	choices := make([]*llms.ContentChoice, len(result.Choices))
	for i, c := range result.Choices {
		choice := &llms.ContentChoice{
			Content:    c.Message.Content,
			StopReason: c.FinishReason,
			GenerationInfo: map[string]any{
				"InputTokens":  int(result.Usage.PromptTokens),
				"OutputTokens": int(result.Usage.CompletionTokens),
				"TotalTokens":  int(result.Usage.TotalTokens),
			},
		}
		if c.Message.Content != "" {
			choice.Parts = append(choice.Parts, llms.TextPart(c.Message.Content))
		}
		for _, tool := range c.Message.ToolCalls {
			tc := llms.ToolCall{
				ID:   tool.ID,
				Type: values.StringsCoalesce(tool.Type, "function"),
				FunctionCall: &llms.FunctionCall{
					Name:      tool.Function.Name,
					Arguments: tool.Function.Arguments,
				},
			}
			choice.ToolCalls = append(choice.ToolCalls, tc)
			choice.Parts = append(choice.Parts, tc)
		}
		choices[i] = choice
	}
	return &llms.ContentResponse{Choices: choices}, nil
}

// convertMessage converts llms.Message to one or more chat messages.
// Each tool response is sent as a separate tool message.
func convertMessage(mc llms.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	var text []string
	var calls []llms.ToolCall
	var res []openai.ChatCompletionMessageParamUnion

	for _, part := range mc.Parts {
		switch p := part.(type) {
		case llms.TextContent:
			text = append(text, p.Text)
		case llms.ToolCall:
			calls = append(calls, p)
		case llms.ToolCallResponse:
			res = append(res, openai.ToolMessage(p.Content, p.ToolCallID))
		default:
			return nil, errors.Errorf("unsupported content part: %T", part)
		}
	}
	content := strings.Join(text, "\n")

	switch mc.Role {
	case llms.RoleSystem:
		res = append(res, openai.SystemMessage(content))
	case llms.RoleHuman:
		res = append(res, openai.UserMessage(content))
	case llms.RoleAI:
		asst := &openai.ChatCompletionAssistantMessageParam{}
		if content != "" {
			asst.Content.OfString = openai.String(content)
		}
		for _, tc := range calls {
			if tc.FunctionCall == nil {
				return nil, errors.Errorf("tool call %s: missing function", tc.ID)
			}
			asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
				OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
						Name:      tc.FunctionCall.Name,
						Arguments: values.StringsCoalesce(tc.FunctionCall.Arguments, "{}"),
					},
				},
			})
		}
		res = append(res, openai.ChatCompletionMessageParamUnion{OfAssistant: asst})
	case llms.RoleTool:
		if len(res) == 0 {
			return nil, errors.Errorf("expected tool response parts for role %v", mc.Role)
		}
	default:
		return nil, errors.Wrapf(llms.ErrUnexpectedRole, "role %q not supported", mc.Role)
	}
	return res, nil
}

// toolFromTool converts an llms.Tool to a chat completion tool.
func toolFromTool(t llms.Tool) (openai.ChatCompletionToolUnionParam, error) {
	if t.Type != "function" || t.Function == nil {
		return openai.ChatCompletionToolUnionParam{}, errors.Errorf("tool type %v not supported", t.Type)
	}
	def := shared.FunctionDefinitionParam{
		Name: t.Function.Name,
	}
	if t.Function.Description != "" {
		def.Description = openai.String(t.Function.Description)
	}
	if params := llms.SchemaMap(t.Function.Parameters); params != nil {
		def.Parameters = shared.FunctionParameters(params)
	}
	return openai.ChatCompletionToolUnionParam{
		OfFunction: &openai.ChatCompletionFunctionToolParam{Function: def},
	}, nil
}
