package callbacks

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/effective-security/mcpchat/assistants"
	"github.com/effective-security/mcpchat/chatmodel"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/mcpchat/tools"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
)

// ensure that the callbacks implement the correct interfaces
var (
	_ assistants.Callback = (*Noop)(nil)
	_ tools.Callback      = (*Noop)(nil)
	_ assistants.Callback = (*Printer)(nil)
	_ tools.Callback      = (*Printer)(nil)
	_ assistants.Callback = (*PackageLogger)(nil)
	_ tools.Callback      = (*PackageLogger)(nil)
	_ assistants.Callback = (*Fanout)(nil)
	_ tools.Callback      = (*Fanout)(nil)
)

// Mode defines the mode for callback printing
type Mode int

const (
	// ModeDefault prints the tool calls only
	ModeDefault Mode = iota
	// ModeVerbose prints the LLM calls and the tool results as well
	ModeVerbose
)

// Fanout is a callback handler that forwards the events to multiple callbacks.
type Fanout struct {
	callbacks []assistants.Callback
}

func NewFanout(callbacks ...assistants.Callback) *Fanout {
	return &Fanout{callbacks: callbacks}
}

func (l *Fanout) Add(callback assistants.Callback) {
	l.callbacks = append(l.callbacks, callback)
}

func (l *Fanout) OnQueryStart(ctx context.Context, query string) {
	for _, callback := range l.callbacks {
		callback.OnQueryStart(ctx, query)
	}
}

func (l *Fanout) OnQueryEnd(ctx context.Context, query string, answer string) {
	for _, callback := range l.callbacks {
		callback.OnQueryEnd(ctx, query, answer)
	}
}

func (l *Fanout) OnQueryError(ctx context.Context, query string, err error) {
	for _, callback := range l.callbacks {
		callback.OnQueryError(ctx, query, err)
	}
}

func (l *Fanout) OnLLMCallStart(ctx context.Context, llm llms.Model, messages []llms.Message) {
	for _, callback := range l.callbacks {
		callback.OnLLMCallStart(ctx, llm, messages)
	}
}

func (l *Fanout) OnLLMCallEnd(ctx context.Context, llm llms.Model, resp *llms.ContentResponse) {
	for _, callback := range l.callbacks {
		callback.OnLLMCallEnd(ctx, llm, resp)
	}
}

func (l *Fanout) OnToolStart(ctx context.Context, name, args string) {
	for _, callback := range l.callbacks {
		callback.OnToolStart(ctx, name, args)
	}
}

func (l *Fanout) OnToolEnd(ctx context.Context, name, args, result string) {
	for _, callback := range l.callbacks {
		callback.OnToolEnd(ctx, name, args, result)
	}
}

func (l *Fanout) OnToolError(ctx context.Context, name, args string, err error) {
	for _, callback := range l.callbacks {
		callback.OnToolError(ctx, name, args, err)
	}
}

// Noop does nothing, embed it to handle only some of the events.
type Noop struct{}

// NewNoop returns the callback that ignores all events
func NewNoop() *Noop {
	return &Noop{}
}

func (l *Noop) OnQueryStart(_ context.Context, _ string) {}

func (l *Noop) OnQueryEnd(_ context.Context, _, _ string) {}

func (l *Noop) OnQueryError(_ context.Context, _ string, _ error) {}

func (l *Noop) OnToolStart(_ context.Context, _, _ string) {}

func (l *Noop) OnToolEnd(_ context.Context, _, _, _ string) {}

func (l *Noop) OnToolError(_ context.Context, _, _ string, _ error) {}

func (l *Noop) OnLLMCallStart(_ context.Context, _ llms.Model, _ []llms.Message) {}

func (l *Noop) OnLLMCallEnd(_ context.Context, _ llms.Model, _ *llms.ContentResponse) {}

// Printer is a callback handler that prints to the Writer.
type Printer struct {
	Out  io.Writer
	Mode Mode

	lock sync.Mutex
}

func NewPrinter(out io.Writer, mode Mode) *Printer {
	return &Printer{Out: out, Mode: mode}
}

func (l *Printer) OnQueryStart(ctx context.Context, query string) {
	if l.Mode == ModeVerbose {
		l.lock.Lock()
		defer l.lock.Unlock()
		fmt.Fprintf(l.Out, "[Query %s: %s]\n", chatmodel.GetQueryID(ctx), query)
	}
}

func (l *Printer) OnQueryEnd(ctx context.Context, query string, answer string) {
}

func (l *Printer) OnQueryError(ctx context.Context, query string, err error) {
	if l.Mode == ModeVerbose {
		l.lock.Lock()
		defer l.lock.Unlock()
		fmt.Fprintf(l.Out, "[Query failed: %s]\n", err.Error())
	}
}

func (l *Printer) OnLLMCallStart(ctx context.Context, llm llms.Model, messages []llms.Message) {
	if l.Mode == ModeVerbose {
		l.lock.Lock()
		defer l.lock.Unlock()
		fmt.Fprintf(l.Out, "[LLM call: %s model, %d messages]\n", llm.GetName(), len(messages))
	}
}

func (l *Printer) OnLLMCallEnd(ctx context.Context, llm llms.Model, resp *llms.ContentResponse) {
	if l.Mode == ModeVerbose {
		l.lock.Lock()
		defer l.lock.Unlock()
		fmt.Fprintf(l.Out, "[LLM call end: %s model, %d choices]\n", llm.GetName(), len(resp.Choices))
	}
}

// OnToolStart prints the tool name and the arguments requested by the model.
func (l *Printer) OnToolStart(ctx context.Context, name, args string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "[Calling tool %s with args %s]\n", name, args)
}

func (l *Printer) OnToolEnd(ctx context.Context, name, args, result string) {
	if l.Mode == ModeVerbose {
		l.lock.Lock()
		defer l.lock.Unlock()
		fmt.Fprintf(l.Out, "[Tool %s returned]\n%s\n", name, result)
	}
}

func (l *Printer) OnToolError(ctx context.Context, name, args string, err error) {
	if l.Mode == ModeVerbose {
		l.lock.Lock()
		defer l.lock.Unlock()
		fmt.Fprintf(l.Out, "[Tool %s failed: %s]\n", name, err.Error())
	}
}

// PackageLogger is a callback handler that prints to the logger.
type PackageLogger struct {
	logger *xlog.PackageLogger
}

func NewPackageLogger(logger *xlog.PackageLogger) *PackageLogger {
	return &PackageLogger{logger: logger}
}

func (l *PackageLogger) OnQueryStart(ctx context.Context, query string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "query_start",
		"query_id", chatmodel.GetQueryID(ctx),
		"query", query,
	)
}

func (l *PackageLogger) OnQueryEnd(ctx context.Context, query string, answer string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "query_end",
		"query_id", chatmodel.GetQueryID(ctx),
		"answer", slices.StringUpto(answer, 256),
	)
}

func (l *PackageLogger) OnQueryError(ctx context.Context, query string, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "query_error",
		"query_id", chatmodel.GetQueryID(ctx),
		"err", err.Error(),
	)
}

func (l *PackageLogger) OnLLMCallStart(ctx context.Context, llm llms.Model, messages []llms.Message) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "llm_call_start",
		"provider", llm.GetProviderType(),
		"model", llm.GetName(),
		"messages", len(messages),
	)
}

func (l *PackageLogger) OnLLMCallEnd(ctx context.Context, llm llms.Model, resp *llms.ContentResponse) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "llm_call_end",
		"provider", llm.GetProviderType(),
		"model", llm.GetName(),
		"choices", len(resp.Choices),
	)
}

func (l *PackageLogger) OnToolStart(ctx context.Context, name, args string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_start",
		"tool", name,
		"args", args,
	)
}

func (l *PackageLogger) OnToolEnd(ctx context.Context, name, args, result string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_end",
		"tool", name,
		"result", slices.StringUpto(result, 256),
	)
}

func (l *PackageLogger) OnToolError(ctx context.Context, name, args string, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "tool_error",
		"tool", name,
		"args", args,
		"err", err.Error(),
	)
}
