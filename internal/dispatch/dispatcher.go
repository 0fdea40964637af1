// Package dispatch runs the per-agent message loop: classify an incoming
// message into an intent, check the member's tool allow-list, execute, and
// republish the outcome under the original correlation id.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go-agent-fleet/internal/core"
	"go-agent-fleet/internal/eventbus"
	"go-agent-fleet/internal/intent"
	"go-agent-fleet/internal/metrics"
	"go-agent-fleet/internal/roster"
)

// Result is a successful tool outcome.
type Result struct {
	Output string
}

// Executor runs one intent kind. Implementations return an error instead of
// panicking; panics are still contained at the dispatch boundary.
type Executor interface {
	Execute(ctx context.Context, it intent.Intent) (Result, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, it intent.Intent) (Result, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, it intent.Intent) (Result, error) {
	return f(ctx, it)
}

// outcome is the internal verdict of one pipeline run.
type outcome struct {
	status core.Status
	kind   intent.Kind
	output string
	errMsg string
}

// Dispatcher consumes message.received and agent.tick for one member.
type Dispatcher struct {
	member       roster.Member
	defaultAgent bool
	bus          eventbus.Bus
	classifier   intent.Classifier
	executors    map[intent.Kind]Executor
	collector    metrics.Collector
	logger       *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithExecutor registers an executor for an intent kind.
func WithExecutor(kind intent.Kind, ex Executor) Option {
	return func(d *Dispatcher) { d.executors[kind] = ex }
}

// AsDefaultAgent makes this dispatcher also handle messages that carry no
// target agent.
func AsDefaultAgent() Option {
	return func(d *Dispatcher) { d.defaultAgent = true }
}

// New creates a Dispatcher. A plain-response executor is registered by
// default; callers may override it with an LLM-backed one.
func New(member roster.Member, bus eventbus.Bus, classifier intent.Classifier, collector metrics.Collector, logger *slog.Logger, opts ...Option) *Dispatcher {
	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		member:     member,
		bus:        bus,
		classifier: classifier,
		executors:  map[intent.Kind]Executor{},
		collector:  collector,
		logger:     logger.With("agent", member.ID),
	}
	d.executors[intent.KindResponse] = ExecutorFunc(func(ctx context.Context, it intent.Intent) (Result, error) {
		text := it.(intent.Response).Text
		if text == "" {
			text = "No response"
		}
		return Result{Output: text}, nil
	})
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ID returns the member id this dispatcher serves.
func (d *Dispatcher) ID() string { return d.member.ID }

// Start subscribes to the bus and begins consuming. A broker failure here
// is fatal for the hosting process; restart is the supervisor's job.
func (d *Dispatcher) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	msgs, err := d.bus.Subscribe(runCtx, core.TopicMessageReceived)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe %s: %w", core.TopicMessageReceived, err)
	}
	ticks, err := d.bus.Subscribe(runCtx, core.TopicAgentTick)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe %s: %w", core.TopicAgentTick, err)
	}

	d.wg.Add(2)
	go d.consume(runCtx, msgs, d.handleMessage)
	go d.consume(runCtx, ticks, d.handleTick)
	d.logger.Info("dispatcher started")
	return nil
}

// Stop cancels the loops and waits for in-flight handlers.
func (d *Dispatcher) Stop(ctx context.Context) error {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
	return nil
}

// consume fans each event out to its own goroutine so a slow tool run never
// blocks the next unrelated message.
func (d *Dispatcher) consume(ctx context.Context, events <-chan core.Event, handle func(context.Context, core.Event)) {
	defer d.wg.Done()
	for ev := range events {
		ev := ev
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			handle(ctx, ev)
		}()
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, ev core.Event) {
	var msg core.MessageReceived
	if err := core.DecodePayload(ev.Payload, &msg); err != nil {
		d.logger.Warn("undecodable message.received", "error", err)
		return
	}
	if msg.TargetAgentID != "" && msg.TargetAgentID != d.member.ID {
		return
	}
	if msg.TargetAgentID == "" && !d.defaultAgent {
		return
	}
	out := d.run(ctx, msg.Text)
	d.report(ctx, ev.CorrelationID, msg.ConversationID, out)
}

// handleTick runs the pipeline on a synthetic wake instruction. Ticks have
// no conversation and no reply channel; failures are logged only.
func (d *Dispatcher) handleTick(ctx context.Context, ev core.Event) {
	var tick core.AgentTick
	if err := core.DecodePayload(ev.Payload, &tick); err != nil {
		return
	}
	if tick.AgentID != d.member.ID {
		return
	}
	text := "Wake up. Review your goals and KPIs and act on anything that needs you."
	if tick.Signals != "" {
		text += "\n\nCurrent signals:\n" + tick.Signals
	}
	out := d.run(ctx, text)
	if out.status == core.StatusFailure {
		d.logger.Warn("tick run failed", "error", out.errMsg)
		return
	}
	d.logger.Info("tick run completed", "intent", string(out.kind))
	if err := d.collector.RecordAction(ctx, d.member.ID, "tick_"+string(out.kind)); err != nil {
		d.logger.Warn("record tick metric failed", "error", err)
	}
}

// run executes the classify → authorize → execute pipeline for one message.
func (d *Dispatcher) run(ctx context.Context, text string) outcome {
	it, err := d.classifier.Classify(ctx, text, nil)
	if err != nil {
		return outcome{status: core.StatusFailure, errMsg: "intent classification failed: " + err.Error()}
	}
	kind := it.Kind()
	if !intent.Allowed(d.member, kind) {
		return outcome{
			status: core.StatusFailure,
			kind:   kind,
			errMsg: fmt.Sprintf("tool %q is not in %s's allow-list", intent.RequiredSkill(kind), d.member.ID),
		}
	}
	ex, ok := d.executors[kind]
	if !ok {
		return outcome{status: core.StatusFailure, kind: kind, errMsg: fmt.Sprintf("no executor for intent %q", kind)}
	}
	res, err := safeExecute(ctx, ex, it)
	if err != nil {
		return outcome{status: core.StatusFailure, kind: kind, errMsg: err.Error()}
	}
	return outcome{status: core.StatusSuccess, kind: kind, output: res.Output}
}

// report publishes the outcome under the triggering event's correlation id.
func (d *Dispatcher) report(ctx context.Context, correlationID, conversationID string, out outcome) {
	if out.status == core.StatusSuccess {
		ev := core.Event{
			CorrelationID: correlationID,
			Source:        d.member.ID,
			Payload: core.EncodePayload(core.ActionCompleted{
				ConversationID: conversationID,
				Result:         core.ActionResult{Output: out.output},
				AgentID:        d.member.ID,
			}),
		}
		if err := d.bus.Publish(ctx, core.TopicActionCompleted, ev); err != nil {
			d.logger.Error("publish action.completed failed", "error", err)
			return
		}
		if err := d.collector.IncrActions(ctx, d.member.ID); err != nil {
			d.logger.Warn("increment actions failed", "error", err)
		}
		if err := d.collector.RecordAction(ctx, d.member.ID, "action_"+string(out.kind)); err != nil {
			d.logger.Warn("record action failed", "error", err)
		}
		return
	}
	ev := core.Event{
		CorrelationID: correlationID,
		Source:        d.member.ID,
		Payload: core.EncodePayload(core.ActionFailed{
			ConversationID: conversationID,
			Error:          out.errMsg,
		}),
	}
	if err := d.bus.Publish(ctx, core.TopicActionFailed, ev); err != nil {
		d.logger.Error("publish action.failed failed", "error", err)
	}
}

// safeExecute contains executor panics at the boundary.
func safeExecute(ctx context.Context, ex Executor, it intent.Intent) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()
	return ex.Execute(ctx, it)
}

var _ core.Agent = (*Dispatcher)(nil)
