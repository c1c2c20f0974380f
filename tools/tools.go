package tools

import (
	"context"

	"github.com/cockroachdb/errors"
)

//go:generate mockgen -source=tools.go -destination=../mocks/mocktools/tools_mock.gen.go -package mocktools

var (
	// ErrProvider is returned when the tool provider cannot be reached
	// or fails to answer a request.
	ErrProvider = errors.New("tool provider error")
	// ErrToolExecution is returned when the provider reports a failed tool invocation.
	ErrToolExecution = errors.New("tool execution error")
)

// Session is an open connection to a tool provider.
type Session interface {
	// ListTools returns the tools currently offered by the provider,
	// in provider order.
	ListTools(ctx context.Context) ([]Spec, error)
	// CallTool invokes the named tool with the arguments.
	CallTool(ctx context.Context, name string, args map[string]any) (*Result, error)
}

// Callback receives tool invocation events.
type Callback interface {
	// OnToolStart is called before the tool is invoked, args is JSON encoded.
	OnToolStart(ctx context.Context, name string, args string)
	// OnToolEnd is called with the normalized result of the tool.
	OnToolEnd(ctx context.Context, name string, args string, result string)
	// OnToolError is called when the tool fails.
	OnToolError(ctx context.Context, name string, args string, err error)
}

// Spec describes a tool offered by a provider.
type Spec struct {
	// Name is the unique name of the tool
	Name string `json:"name" yaml:"name"`
	// Description is shown to the model
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// InputSchema is the JSON schema of the arguments, kept as provided
	InputSchema any `json:"input_schema,omitempty" yaml:"input_schema,omitempty"`
}
