// Package agent runs the model-in-the-loop cycle: send the transcript,
// execute the tool calls the model answers with, feed the results back,
// repeat until the model stops calling tools or a bound is hit.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/driftware/deskhand/internal/config"
	"github.com/driftware/deskhand/internal/providers"
	"github.com/driftware/deskhand/internal/store"
	"github.com/driftware/deskhand/internal/tools"
	"github.com/driftware/deskhand/internal/tracing"
	"github.com/driftware/deskhand/pkg/protocol"
)

const defaultSystemPrompt = `You are operating a Linux desktop through the tools you are given.
You can see the screen by taking screenshots, control the mouse and keyboard,
run commands in a persistent bash session, and edit files.

Guidelines:
* Always take a screenshot before your first action so you can see the
  current state of the screen.
* After you act, check the returned screenshot to confirm the effect before
  moving on.
* Coordinates are [x, y] pixels with the origin at the top left.
* For long command output, redirect to a file and inspect it with the editor.
* When the task is complete, reply with a short summary and no tool calls.`

// RunStore is the subset of the run store the loop writes to.
type RunStore interface {
	CreateRun(store.Run) error
	FinishRun(id, status, stopReason string, steps int) error
	AppendTurn(store.Turn) error
}

// EventSink receives loop events. Satisfied by *bus.Bus via busSink.
type EventSink interface {
	Publish(eventType, runID string, payload interface{})
}

// Loop drives one agent. A Loop executes at most one run at a time;
// concurrent Run calls beyond the first fail fast.
type Loop struct {
	id           string
	model        string
	systemPrompt string
	provider     providers.Provider
	registry     *tools.Registry
	cfg          config.AgentConfig

	events EventSink          // optional
	runs   RunStore           // optional
	spans  *tracing.Collector // optional

	running atomic.Bool
}

func NewLoop(id string, provider providers.Provider, registry *tools.Registry, model string, cfg config.AgentConfig) *Loop {
	prompt := cfg.SystemPrompt
	if prompt == "" {
		prompt = defaultSystemPrompt
	}
	return &Loop{
		id:           id,
		model:        model,
		systemPrompt: prompt,
		provider:     provider,
		registry:     registry,
		cfg:          cfg,
	}
}

// SetEvents attaches an event sink for run observability.
func (l *Loop) SetEvents(sink EventSink) { l.events = sink }

// SetStore attaches run persistence.
func (l *Loop) SetStore(rs RunStore) { l.runs = rs }

// SetCollector attaches span tracing.
func (l *Loop) SetCollector(c *tracing.Collector) { l.spans = c }

func (l *Loop) ID() string      { return l.id }
func (l *Loop) Model() string   { return l.model }
func (l *Loop) IsRunning() bool { return l.running.Load() }

// Run executes one agent run to completion. The context cancels the run
// cooperatively: cancellation is observed between cycles and between tool
// dispatches, never mid-action.
func (l *Loop) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if !l.running.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("agent %s: run already in progress", l.id)
	}
	defer l.running.Store(false)

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	if l.runs != nil {
		if err := l.runs.CreateRun(store.Run{
			ID: runID, AgentID: l.id, Prompt: req.Prompt, StartedAt: time.Now(),
		}); err != nil {
			return nil, fmt.Errorf("agent %s: %w", l.id, err)
		}
	}

	r := &runState{
		loop:  l,
		runID: runID,
		transcript: []providers.Message{
			{Role: providers.RoleSystem, Content: l.systemPrompt},
			{Role: providers.RoleUser, Content: req.Prompt},
		},
		onChunk: req.OnChunk,
	}
	r.persistTurn(r.transcript[1])

	l.publish(protocol.EventRunStarted, runID, nil)
	slog.Info("run started", "agent", l.id, "run", runID)

	result := r.execute(ctx)

	l.finish(r, result)
	return result, result.Err
}

func (l *Loop) finish(r *runState, result *RunResult) {
	status := store.StatusCompleted
	event := protocol.EventRunCompleted
	switch result.StopReason {
	case StopBudgetExceeded, StopCancelled:
		status = store.StatusAborted
		event = protocol.EventRunAborted
	case StopModelError:
		status = store.StatusFailed
		event = protocol.EventRunFailed
	}

	if l.runs != nil {
		if err := l.runs.FinishRun(r.runID, status, string(result.StopReason), result.Steps); err != nil {
			slog.Warn("run not finalized in store", "run", r.runID, "error", err)
		}
	}

	payload := protocol.RunEndPayload{
		Steps:      result.Steps,
		StopReason: string(result.StopReason),
		FinalText:  result.FinalText,
	}
	if result.Err != nil {
		payload.Error = result.Err.Error()
	}
	l.publish(event, r.runID, payload)
	slog.Info("run finished", "agent", l.id, "run", r.runID,
		"stop", result.StopReason, "steps", result.Steps)
}

func (l *Loop) publish(eventType, runID string, payload interface{}) {
	if l.events != nil {
		l.events.Publish(eventType, runID, payload)
	}
}

// runState is the per-run mutable state of one loop execution.
type runState struct {
	loop       *Loop
	runID      string
	transcript []providers.Message
	seq        int
	steps      int
	onChunk    func(string)
}

// execute is the cycle state machine: model call, then sequential tool
// dispatch, until the model answers without tool calls or a bound hits.
func (r *runState) execute(ctx context.Context) *RunResult {
	for {
		if err := ctx.Err(); err != nil {
			return r.result(StopCancelled, "", nil)
		}
		if r.steps >= r.loop.cfg.MaxSteps {
			slog.Warn("step budget exhausted", "run", r.runID, "budget", r.loop.cfg.MaxSteps)
			return r.result(StopBudgetExceeded, "", ErrBudgetExceeded)
		}
		r.steps++

		resp, err := r.modelCall(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return r.result(StopCancelled, "", nil)
			}
			return r.result(StopModelError, "", err)
		}

		assistant := providers.Message{
			Role:      providers.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		}
		r.transcript = append(r.transcript, assistant)
		r.persistTurn(assistant)

		if len(resp.ToolCalls) == 0 {
			return r.result(StopDone, resp.Content, nil)
		}

		// Dispatch in the order the model issued the calls. Cancellation
		// is honored between calls so a started action always completes.
		for _, call := range resp.ToolCalls {
			if err := ctx.Err(); err != nil {
				return r.result(StopCancelled, "", nil)
			}
			r.dispatch(ctx, call)
		}
	}
}

func (r *runState) modelCall(ctx context.Context) (*providers.ChatResponse, error) {
	req := providers.ChatRequest{
		Model:    r.loop.model,
		Messages: pruneTranscript(r.transcript, r.loop.cfg.Pruning),
		Tools:    r.loop.registry.ProviderDefs(),
	}

	start := time.Now()
	var resp *providers.ChatResponse
	var err error
	if r.onChunk != nil {
		resp, err = r.loop.provider.ChatStream(ctx, req, func(chunk providers.StreamChunk) {
			if chunk.Content != "" {
				r.onChunk(chunk.Content)
				r.loop.publish(protocol.EventChatChunk, r.runID, chunk.Content)
			}
		})
	} else {
		resp, err = r.loop.provider.Chat(ctx, req)
	}

	if r.loop.spans != nil {
		span := store.Span{
			RunID:   r.runID,
			Name:    "model.chat",
			Kind:    "model",
			StartAt: start,
			EndAt:   time.Now(),
		}
		if r.loop.spans.Verbose() {
			span.Input = lastUserFacing(req.Messages)
		}
		if err != nil {
			span.Status = "error"
			span.Output = err.Error()
		} else {
			span.Output = resp.Content
		}
		r.loop.spans.EmitSpan(span)
	}
	return resp, err
}

// dispatch runs one tool call and appends its result to the transcript.
// Failures come back as error tool results; with retry_failed_actions
// set, a failed action is re-dispatched up to that many extra times
// before the failure is surfaced to the model.
func (r *runState) dispatch(ctx context.Context, call providers.ToolCall) {
	r.loop.publish(protocol.EventToolCall, r.runID, protocol.ToolCallPayload{
		CallID: call.ID,
		Name:   call.Name,
		Args:   tracing.Preview(call.Arguments),
		Step:   r.steps,
	})

	start := time.Now()
	msg := r.loop.registry.Dispatch(ctx, call)
	for attempt := 0; msg.IsError && attempt < r.loop.cfg.RetryFailedActions; attempt++ {
		if ctx.Err() != nil {
			break
		}
		slog.Debug("retrying failed action", "run", r.runID, "tool", call.Name, "attempt", attempt+1)
		msg = r.loop.registry.Dispatch(ctx, call)
	}

	r.transcript = append(r.transcript, msg)
	r.persistTurn(msg)

	r.loop.publish(protocol.EventToolResult, r.runID, protocol.ToolResultPayload{
		CallID:   call.ID,
		Name:     call.Name,
		IsError:  msg.IsError,
		HasImage: len(msg.ImagePNG) > 0,
		Preview:  tracing.Preview(msg.Content),
	})

	if r.loop.spans != nil {
		status := ""
		if msg.IsError {
			status = "error"
		}
		r.loop.spans.EmitSpan(store.Span{
			RunID:   r.runID,
			Name:    "tool." + call.Name,
			Kind:    "tool",
			StartAt: start,
			EndAt:   time.Now(),
			Status:  status,
			Input:   call.Arguments,
			Output:  msg.Content,
		})
	}
}

func (r *runState) persistTurn(m providers.Message) {
	if r.loop.runs == nil {
		return
	}
	content := m.Content
	if content == "" && len(m.ToolCalls) > 0 {
		content = fmt.Sprintf("[%d tool call(s)]", len(m.ToolCalls))
	}
	turn := store.Turn{
		RunID:      r.runID,
		Seq:        r.seq,
		Role:       string(m.Role),
		Content:    content,
		ToolCallID: m.ToolCallID,
		ToolName:   m.ToolName,
		IsError:    m.IsError,
		HasImage:   len(m.ImagePNG) > 0,
	}
	r.seq++
	if err := r.loop.runs.AppendTurn(turn); err != nil {
		slog.Warn("turn not persisted", "run", r.runID, "seq", turn.Seq, "error", err)
	}
}

func (r *runState) result(reason StopReason, finalText string, err error) *RunResult {
	return &RunResult{
		RunID:      r.runID,
		FinalText:  finalText,
		Steps:      r.steps,
		StopReason: reason,
		Err:        err,
	}
}

func lastUserFacing(msgs []providers.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == providers.RoleUser && msgs[i].Content != "" {
			return msgs[i].Content
		}
	}
	return ""
}
