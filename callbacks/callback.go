// Package callbacks provides ready-made turn observers: a writer-backed
// printer, a package logger, and a fanout combining several observers.
package callbacks

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/coyaSONG/coya-mcp-client/backend"
	"github.com/coyaSONG/coya-mcp-client/chatmodel"
	"github.com/coyaSONG/coya-mcp-client/orchestrator"
	"github.com/effective-security/xlog"
)

// ensure that the callbacks implement the correct interfaces
var (
	_ orchestrator.Callback = (*Printer)(nil)
	_ orchestrator.Callback = (*PackageLogger)(nil)
	_ orchestrator.Callback = (*Fanout)(nil)
)

// Fanout forwards the events to multiple callbacks.
type Fanout struct {
	callbacks []orchestrator.Callback
}

func NewFanout(callbacks ...orchestrator.Callback) *Fanout {
	return &Fanout{callbacks: callbacks}
}

func (l *Fanout) Add(callback orchestrator.Callback) {
	l.callbacks = append(l.callbacks, callback)
}

func (l *Fanout) OnCompletion(ctx context.Context, conversationID string, comp *backend.Completion) {
	for _, callback := range l.callbacks {
		callback.OnCompletion(ctx, conversationID, comp)
	}
}

func (l *Fanout) OnToolResult(ctx context.Context, conversationID string, msg chatmodel.Message) {
	for _, callback := range l.callbacks {
		callback.OnToolResult(ctx, conversationID, msg)
	}
}

// Printer writes turn progress to a Writer.
type Printer struct {
	w    io.Writer
	lock sync.Mutex
}

func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

func (l *Printer) OnCompletion(_ context.Context, conversationID string, comp *backend.Completion) {
	l.lock.Lock()
	defer l.lock.Unlock()
	if len(comp.ToolCalls) > 0 {
		fmt.Fprintf(l.w, "[%s] assistant requested %d tool call(s)\n", conversationID, len(comp.ToolCalls))
		for _, tc := range comp.ToolCalls {
			fmt.Fprintf(l.w, "[%s]   %s %s\n", conversationID, tc.Name, tc.Arguments)
		}
		return
	}
	fmt.Fprintf(l.w, "[%s] assistant: %s\n", conversationID, comp.Content)
}

func (l *Printer) OnToolResult(_ context.Context, conversationID string, msg chatmodel.Message) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.w, "[%s] tool %s (%s): %s\n", conversationID, msg.Name, msg.ToolCallID, msg.Content)
}

var logger = xlog.NewPackageLogger("github.com/coyaSONG/coya-mcp-client", "callbacks")

// PackageLogger logs turn progress with the package logger.
type PackageLogger struct{}

func NewPackageLogger() *PackageLogger {
	return &PackageLogger{}
}

func (l *PackageLogger) OnCompletion(ctx context.Context, conversationID string, comp *backend.Completion) {
	logger.ContextKV(ctx, xlog.DEBUG,
		"event", "completion",
		"conversation", conversationID,
		"tool_calls", len(comp.ToolCalls),
		"stop", comp.StopReason,
		"tokens", comp.Usage.TotalTokens)
}

func (l *PackageLogger) OnToolResult(ctx context.Context, conversationID string, msg chatmodel.Message) {
	logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_result",
		"conversation", conversationID,
		"tool", msg.Name,
		"call", msg.ToolCallID)
}
