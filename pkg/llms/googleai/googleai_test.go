package googleai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/auth"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type recorder struct {
	lock     sync.Mutex
	paths    []string
	requests []map[string]any
	replies  []string
}

func (r *recorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.lock.Lock()
	defer r.lock.Unlock()

	body, _ := io.ReadAll(req.Body)
	var m map[string]any
	_ = json.Unmarshal(body, &m)
	r.paths = append(r.paths, req.URL.Path)
	r.requests = append(r.requests, m)

	reply := `{"candidates":[]}`
	if len(r.replies) > 0 {
		reply = r.replies[0]
		r.replies = r.replies[1:]
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, reply)
}

func newTestClient(t *testing.T, rec *recorder) *GoogleAI {
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)

	g, err := New(context.Background(),
		WithAPIKey("test-key"),
		WithBaseURL(srv.URL),
	)
	require.NoError(t, err)
	return g
}

func TestNew(t *testing.T) {
	t.Setenv(TokenEnvVarName, "")

	_, err := New(context.Background())
	assert.ErrorIs(t, err, ErrMissingToken)

	t.Setenv(TokenEnvVarName, "from-env")
	g, err := New(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from-env", g.opts.APIKey)
	assert.Equal(t, "gemini-2.0-flash-exp", g.GetName())
	assert.Equal(t, llms.ProviderGoogleAI, g.GetProviderType())
	assert.Equal(t, 1000, g.opts.DefaultMaxTokens)
	assert.Equal(t, 0.7, g.opts.DefaultTemperature)
}

type staticToken string

func (s staticToken) Token(context.Context) (*auth.Token, error) {
	return &auth.Token{Value: string(s), Type: "Bearer", Expiry: time.Now().Add(time.Hour)}, nil
}

func TestNew_Vertex(t *testing.T) {
	t.Setenv(TokenEnvVarName, "from-env")

	_, err := New(context.Background(), WithCloudProject("mcpchat-test"))
	assert.ErrorIs(t, err, ErrMissingToken)

	creds := auth.NewCredentials(&auth.CredentialsOptions{
		TokenProvider: staticToken("test-token"),
	})
	g, err := New(context.Background(),
		WithCredentials(creds),
		WithCloudProject("mcpchat-test"),
	)
	require.NoError(t, err)
	assert.Empty(t, g.opts.APIKey)
	cfg := g.client.ClientConfig()
	assert.Equal(t, genai.BackendVertexAI, cfg.Backend)
	assert.Equal(t, "mcpchat-test", cfg.Project)
	assert.Equal(t, DefaultCloudLocation, cfg.Location)

	g, err = New(context.Background(),
		WithCredentials(creds),
		WithCloudProject("mcpchat-test"),
		WithCloudLocation("europe-west4"),
	)
	require.NoError(t, err)
	assert.Equal(t, "europe-west4", g.client.ClientConfig().Location)
}

func TestGenerateContent_FunctionCall(t *testing.T) {
	rec := &recorder{
		replies: []string{`{
			"candidates": [{
				"content": {"role": "model", "parts": [
					{"text": "Let me check."},
					{"functionCall": {"name": "get_forecast", "args": {"latitude": 37.77, "longitude": -122.42}}}
				]},
				"finishReason": "STOP"
			}],
			"usageMetadata": {"promptTokenCount": 12, "candidatesTokenCount": 5, "totalTokenCount": 17}
		}`},
	}
	g := newTestClient(t, rec)

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"latitude":  map[string]any{"type": "number"},
			"longitude": map[string]any{"type": "number"},
		},
		"required": []any{"latitude", "longitude"},
	}
	resp, err := g.GenerateContent(context.Background(),
		[]llms.Message{llms.MessageFromTextParts(llms.RoleHuman, "What's the weather in SF?")},
		llms.WithTools([]llms.Tool{{
			Type:     "function",
			Function: &llms.FunctionDefinition{Name: "get_forecast", Description: "Get forecast", Parameters: schema},
		}}),
	)
	require.NoError(t, err)

	choice := resp.FirstChoice()
	require.NotNil(t, choice)
	assert.Equal(t, "Let me check.", choice.Content)
	assert.Equal(t, "STOP", choice.StopReason)
	require.Len(t, choice.Parts, 2)
	assert.Equal(t, llms.TextPart("Let me check."), choice.Parts[0])
	require.Len(t, choice.ToolCalls, 1)
	tc := choice.ToolCalls[0]
	assert.Equal(t, "get_forecast_1", tc.ID)
	assert.Equal(t, "get_forecast", tc.FunctionCall.Name)
	args, err := tc.FunctionCall.Args()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"latitude": 37.77, "longitude": -122.42}, args)
	assert.Equal(t, tc, choice.Parts[1])
	assert.Equal(t, 12, choice.GenerationInfo["InputTokens"])
	assert.Equal(t, 5, choice.GenerationInfo["OutputTokens"])

	require.Len(t, rec.paths, 1)
	assert.True(t, strings.HasSuffix(rec.paths[0], "models/gemini-2.0-flash-exp:generateContent"), rec.paths[0])

	req := rec.requests[0]
	js, err := json.Marshal(req["tools"])
	require.NoError(t, err)
	assert.Contains(t, string(js), `"name":"get_forecast"`)
	assert.Contains(t, string(js), `"required":["latitude","longitude"]`)
}

func TestGenerateContent_NoCandidates(t *testing.T) {
	rec := &recorder{}
	g := newTestClient(t, rec)

	resp, err := g.GenerateContent(context.Background(),
		[]llms.Message{llms.MessageFromTextParts(llms.RoleHuman, "hi")},
	)
	require.NoError(t, err)
	_, ok := llms.ExtractText(resp)
	assert.False(t, ok)
}

func TestGenerateContent_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`)
	}))
	defer srv.Close()

	g, err := New(context.Background(), WithAPIKey("bad"), WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = g.GenerateContent(context.Background(),
		[]llms.Message{llms.MessageFromTextParts(llms.RoleHuman, "hi")},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key not valid")
}

func TestConvertContent(t *testing.T) {
	t.Parallel()

	c, err := convertContent(llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{
		ToolCallID: "get_alerts_0",
		Name:       "get_alerts",
		Content:    "No active alerts for this state.",
	}))
	require.NoError(t, err)
	assert.Equal(t, RoleUser, c.Role)
	require.Len(t, c.Parts, 1)
	assert.Equal(t, &genai.FunctionResponse{
		Name:     "get_alerts",
		Response: map[string]any{"result": "No active alerts for this state."},
	}, c.Parts[0].FunctionResponse)

	c, err = convertContent(llms.MessageFromToolCalls(llms.RoleAI, llms.ToolCall{
		ID:           "get_alerts_0",
		Type:         "function",
		FunctionCall: llms.NewFunctionCall("get_alerts", map[string]any{"state": "CA"}),
	}))
	require.NoError(t, err)
	assert.Equal(t, RoleModel, c.Role)
	assert.Equal(t, &genai.FunctionCall{Name: "get_alerts", Args: map[string]any{"state": "CA"}}, c.Parts[0].FunctionCall)

	c, err = convertContent(llms.MessageFromTextParts(llms.RoleSystem, "be brief"))
	require.NoError(t, err)
	assert.Equal(t, RoleSystem, c.Role)

	_, err = convertContent(llms.Message{Role: "critic"})
	assert.ErrorIs(t, err, llms.ErrUnexpectedRole)

	_, err = convertContent(llms.MessageFromParts(llms.RoleAI, llms.ToolCall{ID: "x"}))
	assert.EqualError(t, err, "tool call x: missing function")
}

func TestConvertCandidates(t *testing.T) {
	t.Parallel()

	resp, err := convertCandidates([]*genai.Candidate{{
		Content: &genai.Content{Parts: []*genai.Part{
			{Text: "thinking", Thought: true},
			{FunctionCall: &genai.FunctionCall{ID: "call-1", Name: "get_alerts"}},
			{Text: "Done."},
		}},
	}}, nil)
	require.NoError(t, err)

	choice := resp.FirstChoice()
	assert.Equal(t, "Done.", choice.Content)
	require.Len(t, choice.Parts, 2)
	require.Len(t, choice.ToolCalls, 1)
	assert.Equal(t, "call-1", choice.ToolCalls[0].ID)
	assert.Equal(t, "{}", choice.ToolCalls[0].FunctionCall.Arguments)
	assert.Equal(t, llms.TextPart("Done."), choice.Parts[1])
	assert.NotContains(t, choice.GenerationInfo, "InputTokens")
}
