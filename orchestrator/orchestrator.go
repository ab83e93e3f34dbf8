// Package orchestrator drives one conversation turn to completion: it
// asks the model backend for a completion, executes any tool calls the
// model requested through the provider registry, feeds the results
// back, and loops until the model answers without tool calls or a
// bound is hit.
package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/coyaSONG/coya-mcp-client/backend"
	"github.com/coyaSONG/coya-mcp-client/chatmodel"
	"github.com/coyaSONG/coya-mcp-client/llmutils"
	"github.com/coyaSONG/coya-mcp-client/mcp"
	"github.com/coyaSONG/coya-mcp-client/metricskey"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/coyaSONG/coya-mcp-client", "orchestrator")

// DefaultSystemPrompt is used when no system prompt is configured.
const DefaultSystemPrompt = "You are a helpful assistant with access to tools provided by MCP servers. " +
	"Use the tools when appropriate to help the user."

// DefaultModel is used when no model is configured.
const DefaultModel = "openai/gpt-3.5-turbo"

// DefaultMaxRounds bounds the tool-call loop of one turn.
const DefaultMaxRounds = 8

var (
	// ErrRoundLimit reports a turn that exceeded the configured number
	// of tool-call rounds.
	ErrRoundLimit = errors.New("tool call round limit exceeded")
	// ErrTurnInFlight reports a second turn started on a conversation
	// whose previous turn has not finished.
	ErrTurnInFlight = errors.New("turn already in flight for this conversation")
)

// CompletionClient is the model backend boundary: one transcript and
// tool schema set in, one completion out. Implemented by
// backend.Client.
type CompletionClient interface {
	Complete(ctx context.Context, model string, messages []chatmodel.Message, tools []backend.ToolSchema) (*backend.Completion, error)
}

// ToolInvoker is the provider boundary: cached catalog reads and tool
// invocation. Implemented by registry.Registry.
type ToolInvoker interface {
	ListTools(providerID string) ([]mcp.ToolDescriptor, error)
	Invoke(ctx context.Context, providerID, toolName string, args json.RawMessage) (string, error)
}

// Callback observes turn progress. All methods are optional via
// NopCallback.
type Callback interface {
	// OnCompletion is invoked after each completion the backend returns.
	OnCompletion(ctx context.Context, conversationID string, comp *backend.Completion)
	// OnToolResult is invoked after each tool message is appended.
	OnToolResult(ctx context.Context, conversationID string, msg chatmodel.Message)
}

// NopCallback ignores all events.
type NopCallback struct{}

func (NopCallback) OnCompletion(context.Context, string, *backend.Completion) {}
func (NopCallback) OnToolResult(context.Context, string, chatmodel.Message)   {}

// TurnState is the terminal state of one turn.
type TurnState string

const (
	// TurnDone means the model produced a final answer.
	TurnDone TurnState = "done"
	// TurnFailed means the turn terminated on a backend fault or the
	// round limit. The conversation remains usable.
	TurnFailed TurnState = "failed"
	// TurnCancelled means the caller's context was cancelled; no
	// messages were appended past the cancellation point.
	TurnCancelled TurnState = "cancelled"
)

// TurnResult is the outcome of one turn.
type TurnResult struct {
	State TurnState
	// Content is the final assistant content for TurnDone, or the
	// fault text recorded for TurnFailed.
	Content string
	// Rounds counts the completions requested during the turn.
	Rounds int
	// Err carries the fault for TurnFailed and TurnCancelled.
	Err error
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithModel sets the model identifier sent to the backend.
func WithModel(model string) Option {
	return func(o *Orchestrator) {
		o.model = model
	}
}

// WithSystemPrompt overrides the default system prompt. An empty prompt
// disables system-message insertion.
func WithSystemPrompt(prompt string) Option {
	return func(o *Orchestrator) {
		o.systemPrompt = prompt
	}
}

// WithMaxRounds bounds the number of completions per turn.
func WithMaxRounds(n int) Option {
	return func(o *Orchestrator) {
		o.maxRounds = n
	}
}

// WithRoundTimeout bounds each completion-plus-tools round. Zero means
// no per-round deadline beyond the caller's context.
func WithRoundTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.roundTimeout = d
	}
}

// WithCallback sets the progress observer.
func WithCallback(cb Callback) Option {
	return func(o *Orchestrator) {
		o.callback = cb
	}
}

// Orchestrator runs turns. Safe for concurrent use across
// conversations; it rejects a second concurrent turn on the same
// conversation.
type Orchestrator struct {
	client    CompletionClient
	providers ToolInvoker

	model        string
	systemPrompt string
	maxRounds    int
	roundTimeout time.Duration
	callback     Callback

	mu       sync.Mutex
	inflight map[string]bool
}

// New creates an orchestrator over the given backend and provider
// registry.
func New(client CompletionClient, providers ToolInvoker, ops ...Option) *Orchestrator {
	o := &Orchestrator{
		client:       client,
		providers:    providers,
		model:        DefaultModel,
		systemPrompt: DefaultSystemPrompt,
		maxRounds:    DefaultMaxRounds,
		callback:     NopCallback{},
		inflight:     make(map[string]bool),
	}
	for _, op := range ops {
		op(o)
	}
	return o
}

func (o *Orchestrator) acquire(conversationID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inflight[conversationID] {
		return errors.WithMessagef(ErrTurnInFlight, "%s", conversationID)
	}
	o.inflight[conversationID] = true
	return nil
}

func (o *Orchestrator) release(conversationID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inflight, conversationID)
}

// toolSchemas derives the schema set offered to the model from the
// conversation's provider. A conversation with no provider, or whose
// provider is no longer connected, offers no tools.
func (o *Orchestrator) toolSchemas(conv *chatmodel.Conversation) []backend.ToolSchema {
	if conv.ProviderID == "" {
		return nil
	}
	catalog, err := o.providers.ListTools(conv.ProviderID)
	if err != nil {
		logger.KV(xlog.WARNING,
			"status", "catalog_unavailable",
			"conversation", conv.ID,
			"provider", conv.ProviderID,
			"err", err.Error())
		return nil
	}
	return backend.ToolSchemas(catalog)
}

// RunTurn appends the user input and drives the turn to a terminal
// state. The returned result reports the state; the error is non-nil
// only when the turn could not start (in-flight conflict, append
// failure).
func (o *Orchestrator) RunTurn(ctx context.Context, conv *chatmodel.Conversation, userInput string) (*TurnResult, error) {
	if err := o.acquire(conv.ID); err != nil {
		return nil, err
	}
	defer o.release(conv.ID)

	started := time.Now()
	defer metricskey.PerfTurnRun.MeasureSince(started, o.model)

	t := conv.Transcript
	t.EnsureSystem(o.systemPrompt)
	if err := t.Append(chatmodel.UserMessage(userInput)); err != nil {
		return nil, err
	}
	conv.UpdatedAt = time.Now()

	tools := o.toolSchemas(conv)

	for round := 1; ; round++ {
		if round > o.maxRounds {
			err := errors.WithMessagef(ErrRoundLimit, "after %d rounds", o.maxRounds)
			_ = t.Append(chatmodel.AssistantMessage("Error: " + err.Error()))
			metricskey.StatsTurnsFailed.IncrCounter(1, o.model)
			return &TurnResult{State: TurnFailed, Content: err.Error(), Rounds: round - 1, Err: err}, nil
		}
		if ctx.Err() != nil {
			metricskey.StatsTurnsCancelled.IncrCounter(1, o.model)
			return &TurnResult{State: TurnCancelled, Rounds: round - 1, Err: ctx.Err()}, nil
		}

		rctx := ctx
		cancel := func() {}
		if o.roundTimeout > 0 {
			rctx, cancel = context.WithTimeout(ctx, o.roundTimeout)
		}

		sent := t.Messages()
		comp, err := o.client.Complete(rctx, o.model, sent, tools)
		if err != nil {
			cancel()
			if ctx.Err() != nil {
				metricskey.StatsTurnsCancelled.IncrCounter(1, o.model)
				return &TurnResult{State: TurnCancelled, Rounds: round, Err: ctx.Err()}, nil
			}
			content := "Error: " + err.Error()
			_ = t.Append(chatmodel.AssistantMessage(content))
			logger.ContextKV(ctx, xlog.ERROR,
				"status", "completion_failed",
				"conversation", conv.ID,
				"round", round,
				"err", err.Error())
			metricskey.StatsTurnsFailed.IncrCounter(1, o.model)
			return &TurnResult{State: TurnFailed, Content: content, Rounds: round, Err: err}, nil
		}
		metricskey.StatsLLMMessagesSent.IncrCounter(float64(len(sent)), o.model)
		metricskey.StatsLLMInputTokens.IncrCounter(float64(comp.Usage.PromptTokens), o.model)
		metricskey.StatsLLMOutputTokens.IncrCounter(float64(comp.Usage.CompletionTokens), o.model)
		metricskey.StatsLLMTotalTokens.IncrCounter(float64(comp.Usage.TotalTokens), o.model)
		o.callback.OnCompletion(ctx, conv.ID, comp)

		if len(comp.ToolCalls) == 0 {
			cancel()
			if err := t.Append(chatmodel.AssistantMessage(comp.Content)); err != nil {
				return nil, err
			}
			conv.UpdatedAt = time.Now()
			metricskey.StatsTurnsSucceeded.IncrCounter(1, o.model)
			return &TurnResult{State: TurnDone, Content: comp.Content, Rounds: round}, nil
		}

		if err := t.Append(chatmodel.AssistantToolCalls(comp.Content, comp.ToolCalls...)); err != nil {
			cancel()
			return nil, err
		}

		results := o.executeToolCalls(rctx, conv.ProviderID, comp.ToolCalls)
		cancel()
		if ctx.Err() != nil {
			metricskey.StatsTurnsCancelled.IncrCounter(1, o.model)
			return &TurnResult{State: TurnCancelled, Rounds: round, Err: ctx.Err()}, nil
		}
		for _, msg := range results {
			if err := t.Append(msg); err != nil {
				return nil, err
			}
			o.callback.OnToolResult(ctx, conv.ID, msg)
		}
		conv.UpdatedAt = time.Now()
	}
}

// executeToolCalls runs the requested invocations and returns one tool
// message per request, in emission order. Execution is concurrent; the
// results are buffered into an indexed slice so the append order always
// matches the order the model emitted the calls.
func (o *Orchestrator) executeToolCalls(ctx context.Context, providerID string, calls []chatmodel.ToolCall) []chatmodel.Message {
	results := make([]chatmodel.Message, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = o.executeToolCall(ctx, providerID, call)
		}()
	}
	wg.Wait()
	return results
}

// executeToolCall always produces a tool message for the call, encoding
// any failure as readable content so the model can react to it.
func (o *Orchestrator) executeToolCall(ctx context.Context, providerID string, call chatmodel.ToolCall) chatmodel.Message {
	started := time.Now()
	defer metricskey.PerfToolCall.MeasureSince(started, call.Name)

	args := llmutils.CleanJSON([]byte(call.Arguments))
	if len(args) == 0 {
		args = []byte("{}")
	}
	if !json.Valid(args) {
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "malformed_arguments",
			"tool", call.Name,
			"call", call.ID)
		metricskey.StatsToolCallsFailed.IncrCounter(1, call.Name)
		return chatmodel.ToolResponse(call.ID, call.Name,
			"Error: tool arguments are not valid JSON: "+call.Arguments)
	}

	out, err := o.providers.Invoke(ctx, providerID, call.Name, args)
	if err != nil {
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "tool_call_failed",
			"tool", call.Name,
			"call", call.ID,
			"err", err.Error())
		metricskey.StatsToolCallsFailed.IncrCounter(1, call.Name)
		return chatmodel.ToolResponse(call.ID, call.Name, "Error: "+err.Error())
	}
	metricskey.StatsToolCallsSucceeded.IncrCounter(1, call.Name)
	return chatmodel.ToolResponse(call.ID, call.Name, out)
}
