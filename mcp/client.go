package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/tools"
	"github.com/effective-security/xlog"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpchat", "mcp")

// ClientName is reported to the provider during the handshake
const ClientName = "mcpchat"

// Version of the client
var Version = "dev"

// TransportBuilder returns the transport to the provider,
// it is a variable so that tests can connect to in-memory servers.
var TransportBuilder = CommandTransport

// CommandTransport returns stdio transport to the process launched by cfg.
func CommandTransport(ctx context.Context, cfg *ProviderConfig) (mcpsdk.Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	// #nosec G204 -- the command comes from the operator config
	cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
	cmd.Dir = cfg.Dir
	cmd.Env = cfg.Environ()
	return &mcpsdk.CommandTransport{Command: cmd}, nil
}

// Session is an initialized connection to the tool provider.
type Session struct {
	cfg     *ProviderConfig
	session *mcpsdk.ClientSession

	lock   sync.Mutex
	closed bool
}

var _ tools.Session = (*Session)(nil)

// Connect launches the provider and performs the protocol handshake.
// The returned Session must be closed to terminate the provider.
func Connect(ctx context.Context, cfg *ProviderConfig) (*Session, error) {
	transport, err := TransportBuilder(ctx, cfg)
	if err != nil {
		return nil, errors.Mark(err, tools.ErrProvider)
	}

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: ClientName, Version: Version}, nil)
	cs, err := client.Connect(ctx, transport, nil)
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR,
			"status", "connect_failed",
			"command", cfg.String(),
			"err", err.Error(),
		)
		return nil, errors.Mark(errors.WithMessagef(err, "unable to connect to %q", cfg.String()), tools.ErrProvider)
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "connected",
		"command", cfg.String(),
	)

	return &Session{
		cfg:     cfg,
		session: cs,
	}, nil
}

// ListTools returns the tools currently offered by the provider.
func (s *Session) ListTools(ctx context.Context) ([]tools.Spec, error) {
	var list []tools.Spec
	for tool, err := range s.session.Tools(ctx, nil) {
		if err != nil {
			return nil, errors.Mark(errors.WithMessage(err, "unable to list tools"), tools.ErrProvider)
		}
		list = append(list, toSpec(tool))
	}
	return list, nil
}

// CallTool invokes the tool.
// A result flagged as error by the provider is returned as ErrToolExecution
// with the text of the result.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) (*tools.Result, error) {
	if args == nil {
		args = map[string]any{}
	}
	res, err := s.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return nil, errors.Mark(errors.WithMessagef(err, "unable to call tool %s", name), tools.ErrProvider)
	}

	return callResult(name, res)
}

func callResult(name string, res *mcpsdk.CallToolResult) (*tools.Result, error) {
	if res == nil {
		return nil, errors.Mark(errors.Newf("no result from tool %s", name), tools.ErrProvider)
	}
	result := toResult(res)
	if res.IsError {
		msg := result.String()
		if len(result.Content) == 0 {
			msg = "tool reported an error"
		}
		return nil, errors.Mark(errors.New(msg), tools.ErrToolExecution)
	}
	return result, nil
}

// Close terminates the session and the provider process.
func (s *Session) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.session.Close()
	// the provider exits on stdin close, which some platforms report as a signal
	if err != nil && !isProcessExit(err) {
		return errors.WithMessage(err, "unable to close session")
	}
	return nil
}

func isProcessExit(err error) bool {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return true
	}
	return strings.Contains(err.Error(), "signal: terminated") || strings.Contains(err.Error(), "signal: killed")
}

func toSpec(tool *mcpsdk.Tool) tools.Spec {
	if tool == nil {
		return tools.Spec{}
	}
	return tools.Spec{
		Name:        tool.Name,
		Description: tool.Description,
		InputSchema: tool.InputSchema,
	}
}

func toResult(res *mcpsdk.CallToolResult) *tools.Result {
	result := &tools.Result{}
	if res == nil {
		return result
	}
	for _, c := range res.Content {
		switch typ := c.(type) {
		case *mcpsdk.TextContent:
			result.Content = append(result.Content, tools.TextContent{Text: typ.Text})
		default:
			raw, err := json.Marshal(c)
			if err != nil {
				logger.KV(xlog.WARNING,
					"reason", "marshal_content",
					"content", fmt.Sprintf("%T", c),
					"err", err.Error(),
				)
				continue
			}
			var head struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(raw, &head); err != nil {
				logger.KV(xlog.WARNING,
					"reason", "content_type",
					"err", err.Error(),
				)
			}
			result.Content = append(result.Content, tools.OpaqueContent{Type: head.Type, Raw: raw})
		}
	}
	return result
}
