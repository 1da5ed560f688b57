// Package hooks discovers pre_/post_/on_
// hook executables, runs them under a JSON stdin/stdout contract with a
// per-hook timeout and circuit breaker, and records every invocation.
package hooks

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cklxx/taskctl/internal/logging"
	"github.com/cklxx/taskctl/pkg/errs"
)

// Recorder persists a HookInvocation; satisfied by *store.Store without this
// package importing store directly (store already imports pkg/types and
// pkg/errs; hooks avoids a dependency on store's sqlite-specific internals).
type Recorder interface {
	RecordHookInvocation(ctx context.Context, inv Invocation) error
}

// Invocation mirrors store.HookInvocation's fields; the engine adapts
// between the two at the call site so this package has no sqlite import.
type Invocation struct {
	HookName   string
	Op         string
	TaskID     string
	StartedAt  time.Time
	DurationMs int64
	Decision   string
	Error      string
}

// FailMode decides what a skipped (circuit-open) or errored hook resolves
// to when the pipeline can't get a real decision from it.
type FailMode string

const (
	FailOpen   FailMode = "open"   // treat as approve
	FailClosed FailMode = "closed" // treat as block
)

// Pipeline ties hook discovery, execution, circuit breaking, and
// observability together.
type Pipeline struct {
	registry      *Registry
	timeout       time.Duration
	failMode      FailMode
	strict        bool // strict enforcement: hook errors are fatal, not just fail-mode
	recorder      Recorder
	log           logging.Logger
	workspaceRoot string

	histogram *prometheus.HistogramVec

	mu       sync.Mutex
	breakers map[string]*circuitBreaker
}

// Option configures a Pipeline at construction.
type Option func(*Pipeline)

func WithStrict(strict bool) Option { return func(p *Pipeline) { p.strict = strict } }
func WithFailMode(m FailMode) Option {
	return func(p *Pipeline) {
		if m != "" {
			p.failMode = m
		}
	}
}
func WithRecorder(r Recorder) Option { return func(p *Pipeline) { p.recorder = r } }

// WithWorkspaceRoot sets the directory hook subprocesses run in. Without
// it, hooks inherit the engine's CWD and receive an empty TM_WORKSPACE.
func WithWorkspaceRoot(root string) Option {
	return func(p *Pipeline) { p.workspaceRoot = root }
}

// New builds a Pipeline watching hooksDir, with per-hook timeout.
func New(hooksDir string, timeout time.Duration, log logging.Logger, opts ...Option) (*Pipeline, error) {
	log = logging.OrNop(log).With("hooks")
	reg, err := NewRegistry(hooksDir, log)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		registry: reg,
		timeout:  timeout,
		failMode: FailOpen,
		log:      log,
		breakers: map[string]*circuitBreaker{},
		histogram: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "taskctl",
			Subsystem: "hooks",
			Name:      "invocation_duration_ms",
			Help:      "Hook subprocess wall-clock duration in milliseconds.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		}, []string{"hook_name", "op"}),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Histogram exposes the duration histogram for registration with a
// prometheus.Registerer the embedding application owns.
func (p *Pipeline) Histogram() *prometheus.HistogramVec { return p.histogram }

func (p *Pipeline) breaker(name string) *circuitBreaker {
	p.mu.Lock()
	defer p.mu.Unlock()
	if b, ok := p.breakers[name]; ok {
		return b
	}
	b := newCircuitBreaker(name, 5, 30*time.Second, p.log)
	p.breakers[name] = b
	return b
}

// RunPre invokes every pre_<op> hook in order, stopping at the first block
// decision. In strict mode a hook error/timeout is itself fatal; otherwise
// it resolves via failMode.
func (p *Pipeline) RunPre(ctx context.Context, op, taskID, agentID string, payload map[string]any) error {
	return p.runStage(ctx, StagePre, op, taskID, agentID, payload)
}

// RunPost invokes every post_<op> hook; errors are logged, never fatal —
// post hooks observe a committed mutation, they cannot veto it.
func (p *Pipeline) RunPost(ctx context.Context, op, taskID, agentID string, payload map[string]any) {
	_ = p.runStage(ctx, StagePost, op, taskID, agentID, payload)
}

// RunOn invokes every on_<event> hook (e.g. "task_unblocked",
// "task_completed", "discovery"); same non-fatal treatment as RunPost.
func (p *Pipeline) RunOn(ctx context.Context, event, taskID, agentID string, payload map[string]any) {
	_ = p.runStage(ctx, StageOn, event, taskID, agentID, payload)
}

func (p *Pipeline) runStage(ctx context.Context, stage Stage, op, taskID, agentID string, payload map[string]any) error {
	for _, d := range p.registry.For(stage, op) {
		decision, hookErr := p.invoke(ctx, d, stage, op, taskID, agentID, payload)
		if stage != StagePre {
			continue // post/on are fire-and-observe; decision already recorded
		}
		if hookErr != nil {
			if p.strict {
				return hookErr
			}
			continue // fail-mode already applied inside invoke's recording
		}
		if decision.Decision == "block" {
			return &errs.HookBlockedError{Hook: d.Name, Reason: decision.Reason}
		}
	}
	return nil
}

func (p *Pipeline) invoke(ctx context.Context, d Descriptor, stage Stage, op, taskID, agentID string, payload map[string]any) (Response, error) {
	cb := p.breaker(d.Name)
	started := time.Now()

	if !cb.allow() {
		p.record(ctx, d, op, taskID, started, 0, "circuit_open", "")
		return p.resolveUnavailable(), nil
	}

	resp, elapsed, err := run(ctx, d, Request{Op: op, Stage: string(stage), TaskID: taskID, AgentID: agentID, Payload: payload}, p.timeout, p.workspaceRoot)
	p.histogram.WithLabelValues(d.Name, op).Observe(float64(elapsed.Milliseconds()))

	if err != nil {
		cb.recordFailure()
		decision := "error"
		if _, ok := err.(*errs.HookTimeoutError); ok {
			decision = "timeout"
		}
		p.record(ctx, d, op, taskID, started, elapsed.Milliseconds(), decision, err.Error())
		if p.strict {
			return Response{}, err
		}
		return p.resolveUnavailable(), nil
	}

	cb.recordSuccess()
	p.record(ctx, d, op, taskID, started, elapsed.Milliseconds(), resp.Decision, "")
	return resp, nil
}

func (p *Pipeline) resolveUnavailable() Response {
	if p.failMode == FailClosed {
		return Response{Decision: "block", Reason: "hook unavailable, fail-closed"}
	}
	return Response{Decision: "approve", Reason: "hook unavailable, fail-open"}
}

func (p *Pipeline) record(ctx context.Context, d Descriptor, op, taskID string, started time.Time, durationMs int64, decision, errStr string) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.RecordHookInvocation(ctx, Invocation{
		HookName: d.Name, Op: op, TaskID: taskID, StartedAt: started,
		DurationMs: durationMs, Decision: decision, Error: errStr,
	}); err != nil {
		p.log.Warn("failed to record hook invocation for %s: %v", d.Name, err)
	}
}

// Close stops the hook discovery watch.
func (p *Pipeline) Close() error { return p.registry.Close() }
