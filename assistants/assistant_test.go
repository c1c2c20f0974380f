package assistants_test

import (
	"context"
	"strings"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/assistants"
	"github.com/effective-security/mcpchat/chatmodel"
	"github.com/effective-security/mcpchat/mocks/mockassistants"
	"github.com/effective-security/mcpchat/mocks/mockllms"
	"github.com/effective-security/mcpchat/mocks/mocktools"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/mcpchat/tools"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var (
	forecastSchema = map[string]any{
		"type": "object",
		"properties": map[string]any{
			"latitude":  map[string]any{"type": "number"},
			"longitude": map[string]any{"type": "number"},
		},
		"required": []any{"latitude", "longitude"},
	}
	alertsSchema = map[string]any{
		"type":       "object",
		"properties": map[string]any{"state": map[string]any{"type": "string"}},
		"required":   []any{"state"},
	}
	weatherTools = []tools.Spec{
		{Name: "get_alerts", Description: "Get weather alerts for a US state.", InputSchema: alertsSchema},
		{Name: "get_forecast", Description: "Get weather forecast for a location.", InputSchema: forecastSchema},
	}
)

type generateFunc func(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error)

func newMockModel(ctrl *gomock.Controller) *mockllms.MockModel {
	m := mockllms.NewMockModel(ctrl)
	m.EXPECT().GetProviderType().Return(llms.ProviderGoogleAI).AnyTimes()
	m.EXPECT().GetName().Return("gemini-2.0-flash-exp").AnyTimes()
	return m
}

func textResponse(text string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			Content: text,
			Parts:   []llms.ContentPart{llms.TextPart(text)},
		}},
	}
}

func callsResponse(parts ...llms.ContentPart) *llms.ContentResponse {
	choice := &llms.ContentChoice{Parts: parts}
	for _, p := range parts {
		if tc, ok := p.(llms.ToolCall); ok {
			choice.ToolCalls = append(choice.ToolCalls, tc)
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{choice}}
}

func toolCall(id, name, args string) llms.ToolCall {
	return llms.ToolCall{ID: id, Type: "function", FunctionCall: &llms.FunctionCall{Name: name, Arguments: args}}
}

// followUpResult returns the tool response of a follow-up request
func followUpResult(t *testing.T, messages []llms.Message) llms.ToolCallResponse {
	require.Len(t, messages, 3)
	require.Len(t, messages[2].Parts, 1)
	resp, ok := messages[2].Parts[0].(llms.ToolCallResponse)
	require.True(t, ok, "%T", messages[2].Parts[0])
	return resp
}

func TestProcessQuery_NoTools(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	model := newMockModel(ctrl)
	session := mocktools.NewMockSession(ctrl)

	session.EXPECT().ListTools(gomock.Any()).Return(nil, nil).Times(2)
	gomock.InOrder(
		model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
				assert.Equal(t, []llms.Message{llms.MessageFromTextParts(llms.RoleHuman, "hi")}, messages)
				opts := llms.ApplyOptions(llms.CallOptions{}, options...)
				assert.Empty(t, opts.Tools)
				assert.Equal(t, 0.7, opts.Temperature)
				assert.Equal(t, 1000, opts.MaxTokens)
				return textResponse("Hello"), nil
			}),
		// no text at all is returned as is, and is not an error
		model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(&llms.ContentResponse{}, nil),
	)

	a := assistants.NewAssistant(model, session)
	assert.Equal(t, "Hello", a.ProcessQuery(context.Background(), "hi"))
	assert.Equal(t, "", a.ProcessQuery(context.Background(), "hi"))
}

func TestProcessQuery_Forecast(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	model := newMockModel(ctrl)
	session := mocktools.NewMockSession(ctrl)
	cb := mockassistants.NewMockCallback(ctrl)

	query := "What is the weather in San Francisco?"
	args := `{"latitude":37.7749,"longitude":-122.4194}`
	forecast := "Period: Today\nTemperature: 65°F\nWind: 10 mph W\nForecast: Sunny"
	// the model did not assign an ID to the call
	call := llms.ToolCall{FunctionCall: &llms.FunctionCall{Name: "get_forecast", Arguments: args}}

	var queryID string
	cb.EXPECT().OnQueryStart(gomock.Any(), query).Do(func(ctx context.Context, _ string) {
		queryID = chatmodel.GetQueryID(ctx)
	})
	cb.EXPECT().OnLLMCallStart(gomock.Any(), model, gomock.Any()).Times(2)
	cb.EXPECT().OnLLMCallEnd(gomock.Any(), model, gomock.Any()).Times(2)
	cb.EXPECT().OnToolStart(gomock.Any(), "get_forecast", args)
	cb.EXPECT().OnToolEnd(gomock.Any(), "get_forecast", args, forecast)
	cb.EXPECT().OnQueryEnd(gomock.Any(), query, "It is sunny in San Francisco, 65°F.").Do(func(ctx context.Context, _, _ string) {
		assert.Equal(t, queryID, chatmodel.GetQueryID(ctx))
	})

	session.EXPECT().ListTools(gomock.Any()).Return(weatherTools[1:], nil)
	session.EXPECT().CallTool(gomock.Any(), "get_forecast", map[string]any{"latitude": 37.7749, "longitude": -122.4194}).
		Return(tools.NewTextResult(forecast), nil)

	expDecls := []llms.Tool{{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        "get_forecast",
			Description: "Get weather forecast for a location.",
			Parameters:  forecastSchema,
		},
	}}

	gomock.InOrder(
		model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
				require.Len(t, messages, 1)
				opts := llms.ApplyOptions(llms.CallOptions{}, options...)
				if diff := cmp.Diff(expDecls, opts.Tools); diff != "" {
					t.Errorf("declarations mismatch (-want +got):\n%s", diff)
				}
				return callsResponse(call), nil
			}),
		model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
				require.Len(t, messages, 3)
				assert.Equal(t, llms.MessageFromTextParts(llms.RoleHuman, query), messages[0])

				assert.Equal(t, llms.RoleAI, messages[1].Role)
				require.Len(t, messages[1].Parts, 1)
				assert.Equal(t, llms.ToolCall{
					ID:           "get_forecast_0",
					Type:         "function",
					FunctionCall: &llms.FunctionCall{Name: "get_forecast", Arguments: args},
				}, messages[1].Parts[0])

				assert.Equal(t, llms.RoleTool, messages[2].Role)
				assert.Equal(t, llms.ToolCallResponse{
					ToolCallID: "get_forecast_0",
					Name:       "get_forecast",
					Content:    forecast,
				}, followUpResult(t, messages))

				opts := llms.ApplyOptions(llms.CallOptions{}, options...)
				assert.Equal(t, expDecls, opts.Tools)
				assert.Equal(t, 0.7, opts.Temperature)
				assert.Equal(t, 1000, opts.MaxTokens)
				return textResponse("It is sunny in San Francisco, 65°F."), nil
			}),
	)

	a := assistants.NewAssistant(model, session, assistants.WithCallback(cb))
	answer := a.ProcessQuery(context.Background(), query)
	assert.Equal(t, "It is sunny in San Francisco, 65°F.", answer)
	assert.NotEmpty(t, queryID)
}

func TestProcessQuery_OneToolFails(t *testing.T) {
	t.Parallel()

	for _, concurrent := range []bool{false, true} {
		t.Run(map[bool]string{false: "sequential", true: "concurrent"}[concurrent], func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)

			model := newMockModel(ctrl)
			session := mocktools.NewMockSession(ctrl)

			session.EXPECT().ListTools(gomock.Any()).Return(weatherTools, nil)
			session.EXPECT().CallTool(gomock.Any(), "get_alerts", map[string]any{"state": "CA"}).
				Return(tools.NewTextResult("Event: Heat Advisory"), nil)
			session.EXPECT().CallTool(gomock.Any(), "get_forecast", map[string]any{"latitude": 40.0, "longitude": -74.0}).
				Return(nil, errors.Mark(errors.New("upstream unavailable"), tools.ErrToolExecution))
			session.EXPECT().CallTool(gomock.Any(), "get_alerts", map[string]any{"state": "TX"}).
				Return(&tools.Result{}, nil)

			first := callsResponse(
				llms.TextPart("Let me check."),
				toolCall("1", "get_alerts", `{"state":"CA"}`),
				toolCall("2", "get_forecast", `{"latitude":40,"longitude":-74}`),
				toolCall("3", "get_alerts", `{"state":"TX"}`),
			)

			var followUp generateFunc = func(_ context.Context, messages []llms.Message, _ ...llms.CallOption) (*llms.ContentResponse, error) {
				res := followUpResult(t, messages)
				switch res.ToolCallID {
				case "1":
					assert.Equal(t, "Event: Heat Advisory", res.Content)
					return textResponse("California has a heat advisory."), nil
				case "3":
					assert.Equal(t, tools.NoContent, res.Content)
					return textResponse("No alerts in Texas."), nil
				}
				t.Errorf("unexpected follow-up for %s", res.ToolCallID)
				return nil, errors.New("unexpected")
			}

			gomock.InOrder(
				model.EXPECT().GenerateContent(gomock.Any(), gomock.Len(1), gomock.Any()).Return(first, nil),
				model.EXPECT().GenerateContent(gomock.Any(), gomock.Len(3), gomock.Any()).DoAndReturn(followUp).Times(2),
			)

			a := assistants.NewAssistant(model, session, assistants.WithConcurrentTools(concurrent))
			answer := a.ProcessQuery(context.Background(), "Any alerts in CA or TX, and the forecast for NYC?")

			assert.Equal(t, strings.Join([]string{
				"Let me check.",
				"California has a heat advisory.",
				"Error executing tool get_forecast: upstream unavailable",
				"No alerts in Texas.",
			}, "\n\n"), answer)
		})
	}
}

func TestProcessQuery_ToolErrors(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	model := newMockModel(ctrl)
	session := mocktools.NewMockSession(ctrl)
	cb := mockassistants.NewMockCallback(ctrl)

	cb.EXPECT().OnQueryStart(gomock.Any(), gomock.Any())
	cb.EXPECT().OnQueryEnd(gomock.Any(), gomock.Any(), gomock.Any())
	cb.EXPECT().OnLLMCallStart(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()
	cb.EXPECT().OnLLMCallEnd(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()
	cb.EXPECT().OnToolStart(gomock.Any(), gomock.Any(), gomock.Any()).Times(3)
	cb.EXPECT().OnToolEnd(gomock.Any(), "get_alerts", `{"state":"WA"}`, "Event: Flood Watch")
	cb.EXPECT().OnToolError(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(3)

	session.EXPECT().ListTools(gomock.Any()).Return(weatherTools, nil)
	session.EXPECT().CallTool(gomock.Any(), "get_alerts", map[string]any{"state": "WA"}).
		Return(tools.NewTextResult("Event: Flood Watch"), nil)
	session.EXPECT().CallTool(gomock.Any(), "get_forecast", gomock.Any()).
		DoAndReturn(func(context.Context, string, map[string]any) (*tools.Result, error) {
			panic("nil forecast")
		})

	gomock.InOrder(
		model.EXPECT().GenerateContent(gomock.Any(), gomock.Len(1), gomock.Any()).Return(callsResponse(
			// undecodable arguments are not sent to the provider
			toolCall("1", "get_alerts", `{"state":`),
			toolCall("2", "get_alerts", `{"state":"WA"}`),
			toolCall("3", "get_forecast", `{}`),
			// a call without function is ignored
			llms.ToolCall{ID: "4"},
		), nil),
		model.EXPECT().GenerateContent(gomock.Any(), gomock.Len(3), gomock.Any()).
			Return(nil, errors.New("429 resource exhausted")),
	)

	a := assistants.NewAssistant(model, session, assistants.WithCallback(cb))
	answer := a.ProcessQuery(context.Background(), "weather")

	fragments := strings.Split(answer, "\n\n")
	require.Len(t, fragments, 3, answer)
	assert.True(t, strings.HasPrefix(fragments[0], "Error executing tool get_alerts: invalid arguments"), fragments[0])
	assert.Equal(t, "Error executing tool get_alerts: 429 resource exhausted", fragments[1])
	assert.Equal(t, "Error executing tool get_forecast: panic: nil forecast", fragments[2])
}

func TestProcessQuery_NoResponse(t *testing.T) {
	t.Parallel()

	tcases := []struct {
		name string
		resp *llms.ContentResponse
		exp  string
	}{
		{name: "nil", exp: assistants.NoResponse},
		{name: "no_choices", resp: &llms.ContentResponse{}, exp: assistants.NoResponse},
		{name: "no_parts", resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{}}}, exp: assistants.NoResponse},
		{
			name: "empty_text",
			resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Parts: []llms.ContentPart{llms.TextPart("")}}}},
			exp:  assistants.NoResponse,
		},
		{
			name: "aggregate_only",
			resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "I cannot help with that."}}},
			exp:  "I cannot help with that.",
		},
		{
			name: "text_parts",
			resp: callsResponse(llms.TextPart("Hello"), llms.TextPart("there")),
			exp:  "Hello\n\nthere",
		},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			model := newMockModel(ctrl)
			session := mocktools.NewMockSession(ctrl)

			session.EXPECT().ListTools(gomock.Any()).Return(weatherTools, nil)
			model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).Return(tc.resp, nil)

			a := assistants.NewAssistant(model, session)
			assert.Equal(t, tc.exp, a.ProcessQuery(context.Background(), "weather"))
		})
	}
}

func TestProcessQuery_Errors(t *testing.T) {
	t.Parallel()

	t.Run("list_tools", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		model := newMockModel(ctrl)
		session := mocktools.NewMockSession(ctrl)
		cb := mockassistants.NewMockCallback(ctrl)

		listErr := errors.Mark(errors.New("unable to list tools: connection closed"), tools.ErrProvider)
		cb.EXPECT().OnQueryStart(gomock.Any(), "weather")
		cb.EXPECT().OnQueryError(gomock.Any(), "weather", gomock.Any()).Do(func(_ context.Context, _ string, err error) {
			assert.True(t, errors.Is(err, tools.ErrProvider))
		})
		session.EXPECT().ListTools(gomock.Any()).Return(nil, listErr)

		a := assistants.NewAssistant(model, session, assistants.WithCallback(cb))
		assert.Equal(t, "Error processing query: unable to list tools: connection closed", a.ProcessQuery(context.Background(), "weather"))
	})

	t.Run("generate", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		model := newMockModel(ctrl)
		session := mocktools.NewMockSession(ctrl)

		session.EXPECT().ListTools(gomock.Any()).Return(weatherTools, nil)
		model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, errors.New("API key not valid"))

		a := assistants.NewAssistant(model, session)
		assert.Equal(t, "Error processing query: API key not valid", a.ProcessQuery(context.Background(), "weather"))
	})

	t.Run("panic", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		model := newMockModel(ctrl)
		session := mocktools.NewMockSession(ctrl)

		session.EXPECT().ListTools(gomock.Any()).Return(nil, nil)
		model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(context.Context, []llms.Message, ...llms.CallOption) (*llms.ContentResponse, error) {
				panic("index out of range")
			})

		a := assistants.NewAssistant(model, session)
		assert.Equal(t, "Error processing query: panic: index out of range", a.ProcessQuery(context.Background(), "weather"))
	})

	t.Run("callback_panic", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		model := newMockModel(ctrl)
		session := mocktools.NewMockSession(ctrl)
		cb := mockassistants.NewMockCallback(ctrl)

		cb.EXPECT().OnQueryStart(gomock.Any(), "weather").Do(func(context.Context, string) {
			panic("closed writer")
		})
		cb.EXPECT().OnQueryError(gomock.Any(), "weather", gomock.Any())

		a := assistants.NewAssistant(model, session, assistants.WithCallback(cb))
		assert.Equal(t, "Error processing query: panic: closed writer", a.ProcessQuery(context.Background(), "weather"))
	})
}

func TestProcessQuery_Idempotent(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	model := newMockModel(ctrl)
	session := mocktools.NewMockSession(ctrl)

	var q struct {
		City  string `fake:"{city}"`
		State string `fake:"{stateabr}"`
	}
	require.NoError(t, gofakeit.Struct(&q))
	query := "Any weather alerts in " + q.City + ", " + q.State + "?"

	session.EXPECT().ListTools(gomock.Any()).Return(weatherTools, nil).Times(3)
	session.EXPECT().CallTool(gomock.Any(), "get_alerts", map[string]any{"state": q.State}).
		Return(tools.NewTextResult("No active alerts for this state."), nil).Times(3)

	model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, messages []llms.Message, _ ...llms.CallOption) (*llms.ContentResponse, error) {
			if len(messages) == 1 {
				return callsResponse(
					llms.TextPart("Checking alerts."),
					toolCall("alerts", "get_alerts", `{"state":"`+q.State+`"}`),
				), nil
			}
			return textResponse("There are no active alerts in " + q.State + "."), nil
		}).Times(6)

	a := assistants.NewAssistant(model, session)
	first := a.ProcessQuery(context.Background(), query)
	assert.Equal(t, "Checking alerts.\n\nThere are no active alerts in "+q.State+".", first)
	for range 2 {
		assert.Equal(t, first, a.ProcessQuery(context.Background(), query))
	}
}
