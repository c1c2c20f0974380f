package mcp

import (
	"context"

	"github.com/cockroachdb/errors"
	jsonenc "github.com/effective-security/mcpchat/encoding/json"
	"github.com/effective-security/xlog"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Handler is a typed tool handler returning the text result of the tool.
type Handler[I any] func(ctx context.Context, input *I) (string, error)

// Server is a tool provider serving registered tools.
type Server struct {
	name   string
	server *mcpsdk.Server
	names  []string
}

// NewServer returns a tool provider with the given name and version.
func NewServer(name, version string) *Server {
	return &Server{
		name:   name,
		server: mcpsdk.NewServer(&mcpsdk.Implementation{Name: name, Version: version}, nil),
	}
}

// Tools returns the names of the registered tools, in registration order.
func (s *Server) Tools() []string {
	return s.names
}

// Run serves the tools over stdin/stdout until the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.Serve(ctx, &mcpsdk.StdioTransport{})
}

// Serve serves the tools over the transport until the client disconnects.
func (s *Server) Serve(ctx context.Context, t mcpsdk.Transport) error {
	logger.ContextKV(ctx, xlog.DEBUG, "status", "serving", "server", s.name, "tools", s.names)
	return s.server.Run(ctx, t)
}

// Connect starts a session over the transport without blocking.
func (s *Server) Connect(ctx context.Context, t mcpsdk.Transport) (*mcpsdk.ServerSession, error) {
	ss, err := s.server.Connect(ctx, t, nil)
	if err != nil {
		return nil, errors.WithMessage(err, "unable to connect server")
	}
	return ss, nil
}

// RegisterTool registers a typed handler as a tool.
// The input schema is derived from I, and the arguments are decoded
// and validated before the handler is called.
// Decoding and handler errors are reported to the client as tool errors.
func RegisterTool[I any](s *Server, name, description string, handler Handler[I]) error {
	var zero I
	enc, err := jsonenc.NewEncoder(zero)
	if err != nil {
		return errors.WithMessagef(err, "unable to build schema for %s", name)
	}

	tool := &mcpsdk.Tool{
		Name:        name,
		Description: description,
		InputSchema: enc.Schema().Map(),
	}

	s.server.AddTool(tool, func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		args := []byte("{}")
		if req.Params != nil && len(req.Params.Arguments) > 0 {
			args = req.Params.Arguments
		}

		input := new(I)
		if err := enc.Decode(args, input); err != nil {
			logger.ContextKV(ctx, xlog.WARNING, "status", "invalid_input", "tool", name, "err", err.Error())
			return errorResult(err), nil
		}

		text, err := handler(ctx, input)
		if err != nil {
			logger.ContextKV(ctx, xlog.ERROR, "status", "tool_failed", "tool", name, "err", err.Error())
			return errorResult(err), nil
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
		}, nil
	})

	s.names = append(s.names, name)
	return nil
}

func errorResult(err error) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
	}
}
