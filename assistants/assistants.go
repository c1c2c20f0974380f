package assistants

import (
	"context"

	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/mcpchat/tools"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpchat", "assistants")

//go:generate mockgen -source=assistants.go -destination=../mocks/mockassistants/assistants_mock.gen.go -package mockassistants

// Fixed answers of ProcessQuery
const (
	// NoResponse is returned when neither the model nor the tools produced any text
	NoResponse = "No response generated."
	// ErrorPrefix starts the answer of a failed query
	ErrorPrefix = "Error processing query: "
)

// QueryProcessor answers user queries.
type QueryProcessor interface {
	// ProcessQuery returns the answer to the query.
	// It never fails: errors are reported in the returned text.
	ProcessQuery(ctx context.Context, query string) string
}

// Callback receives the events of the query processing.
type Callback interface {
	tools.Callback
	OnQueryStart(ctx context.Context, query string)
	OnQueryEnd(ctx context.Context, query string, answer string)
	OnQueryError(ctx context.Context, query string, err error)
	OnLLMCallStart(ctx context.Context, llm llms.Model, messages []llms.Message)
	OnLLMCallEnd(ctx context.Context, llm llms.Model, resp *llms.ContentResponse)
}
