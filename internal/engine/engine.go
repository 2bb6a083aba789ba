// Package engine executes workflow versions step by step and fans trigger
// events out to their subscribed workflows.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"flowhook/backend/internal/action"
	"flowhook/backend/internal/event"
	"flowhook/backend/internal/filter"
	"flowhook/backend/internal/observability"
	"flowhook/backend/internal/repository"
	"flowhook/backend/internal/trigger"
	"flowhook/backend/internal/variables"
	"flowhook/backend/pkg/models"
)

// Logger is the subset of the application logger this package needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// DefaultDelayMs is the pause applied by a delay step with no explicit value.
const DefaultDelayMs = 1000

// Engine runs workflows. Every failure mode surfaces as a structured
// ExecutionResult or TriggerOutcome; nothing escapes as a panic or an error
// the event loop has to handle.
type Engine struct {
	repo       repository.Repository
	matcher    *trigger.Matcher
	dispatcher *action.Dispatcher
	filters    *filter.Engine
	limiter    *semaphore.Weighted
	metrics    *observability.Metrics
	logger     Logger

	defaultDelay time.Duration
	tracker      runTracker
}

// Option tweaks engine construction.
type Option func(*Engine)

// WithDefaultDelay overrides the pause used by delay steps without an
// explicit duration.
func WithDefaultDelay(d time.Duration) Option {
	return func(e *Engine) { e.defaultDelay = d }
}

// WithMetrics attaches run counters.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an Engine. maxConcurrentRuns bounds the number of runs
// triggered asynchronously at any moment; logger may be nil.
func NewEngine(repo repository.Repository, matcher *trigger.Matcher, dispatcher *action.Dispatcher, filters *filter.Engine, maxConcurrentRuns int64, logger Logger, opts ...Option) *Engine {
	if maxConcurrentRuns < 1 {
		maxConcurrentRuns = 1
	}
	e := &Engine{
		repo:         repo,
		matcher:      matcher,
		dispatcher:   dispatcher,
		filters:      filters,
		limiter:      semaphore.NewWeighted(maxConcurrentRuns),
		logger:       logger,
		defaultDelay: DefaultDelayMs * time.Millisecond,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteWorkflow runs the latest version of a workflow to completion. A run
// row is created only after the workflow resolves to an active version;
// lookup failures return a failed result without touching the run store.
func (e *Engine) ExecuteWorkflow(ctx context.Context, workflowID string, ectx *models.ExecutionContext) (result *models.ExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			e.error("workflow execution panicked", "workflow_id", workflowID, "panic", r)
			result = failure(fmt.Sprintf("workflow execution panicked: %v", r))
		}
	}()

	wf, err := e.repo.GetWorkflow(ctx, workflowID)
	if err != nil {
		return failure(fmt.Sprintf("workflow not found: %s", workflowID))
	}
	if !wf.IsActive {
		return failure(fmt.Sprintf("workflow inactive: %s", workflowID))
	}
	if wf.LatestVerID == "" {
		return failure(fmt.Sprintf("workflow has no version: %s", workflowID))
	}

	ver, err := e.repo.GetVersion(ctx, wf.LatestVerID)
	if err != nil {
		return failure(fmt.Sprintf("workflow version not found: %s", wf.LatestVerID))
	}
	steps, err := e.repo.ListSteps(ctx, ver.ID)
	if err != nil {
		return failure(fmt.Sprintf("list steps: %v", err))
	}

	ectx = prepareContext(wf, ectx)

	run := &models.WorkflowRun{
		WorkflowID:    wf.ID,
		VersionID:     ver.ID,
		TriggerType:   ectx.TriggerType,
		ExecutionMode: ectx.ExecutionMode,
		Status:        models.RunStatusPending,
		TotalSteps:    len(steps),
		ContextData:   models.JSONMap{"trigger": ectx.TriggerData},
		StartedAt:     time.Now().UTC(),
	}
	if err := e.repo.CreateRun(ctx, run); err != nil {
		return failure(fmt.Sprintf("create run: %v", err))
	}
	e.metrics.RunStarted(ctx)

	run.Status = models.RunStatusRunning
	if err := e.repo.SaveRun(ctx, run); err != nil {
		return e.failRun(ctx, run, fmt.Sprintf("save run: %v", err))
	}

	for _, step := range steps {
		stepResult, err := e.executeStep(ctx, run, step, ectx)
		if err != nil {
			run.FailedSteps++
			run.SkippedSteps = run.TotalSteps - run.CompletedSteps - run.FailedSteps
			return e.failRun(ctx, run, fmt.Sprintf("step %q failed: %v", step.Name, err))
		}
		run.CompletedSteps++
		ectx.Variables[step.Name] = stepResult
	}

	run.Status = models.RunStatusSuccess
	e.finishRun(ctx, run)
	e.metrics.RunSucceeded(ctx)
	e.info("workflow run succeeded", "workflow_id", wf.ID, "run_id", run.ID, "steps", run.CompletedSteps)

	return &models.ExecutionResult{
		Success: true,
		RunID:   run.ID,
		Result: map[string]any{
			"completed_steps": run.CompletedSteps,
			"variables":       ectx.Variables,
		},
	}
}

// ProcessTriggerEvent matches an event against the trigger's subscriptions
// and starts one asynchronous run per match. Matching is synchronous; runs
// execute on their own goroutines behind the concurrency limiter, and one
// run's failure never affects its siblings. Wait blocks until they drain.
func (e *Engine) ProcessTriggerEvent(ctx context.Context, triggerKey string, ev *models.CanonicalEvent) *models.TriggerOutcome {
	matches, err := e.matcher.FindMatches(ctx, triggerKey, ev)
	if err != nil {
		return &models.TriggerOutcome{Error: err.Error()}
	}
	if len(matches) == 0 {
		return &models.TriggerOutcome{Success: true}
	}

	triggerData := event.RawData(ev)
	for _, sub := range matches {
		workflowID := sub.WorkflowID
		e.tracker.add()
		// runs outlive the ingestion request that spawned them
		runCtx := context.WithoutCancel(ctx)
		go func() {
			defer e.tracker.done()
			if err := e.limiter.Acquire(runCtx, 1); err != nil {
				e.error("run slot acquisition failed", "workflow_id", workflowID, "error", err)
				return
			}
			defer e.limiter.Release(1)

			res := e.ExecuteWorkflow(runCtx, workflowID, &models.ExecutionContext{
				TriggerData:   triggerData,
				TriggerType:   triggerKey,
				ExecutionMode: models.ExecutionModeAsync,
			})
			if !res.Success {
				e.warn("triggered run failed", "workflow_id", workflowID, "trigger_key", triggerKey, "error", res.Error)
			}
		}()
	}

	return &models.TriggerOutcome{
		Success:            true,
		WorkflowsTriggered: len(matches),
	}
}

// Wait blocks until all asynchronously triggered runs have finished. Used by
// graceful shutdown.
func (e *Engine) Wait() {
	e.tracker.wait()
}

// executeStep records a StepRun around the step body. The returned map is the
// step's output, merged into the run variables under the step name.
func (e *Engine) executeStep(ctx context.Context, run *models.WorkflowRun, step *models.WorkflowStep, ectx *models.ExecutionContext) (map[string]any, error) {
	sr := &models.StepRun{
		RunID:     run.ID,
		StepID:    step.ID,
		StepName:  step.Name,
		Status:    models.StepStatusRunning,
		InputData: step.Config,
		StartedAt: time.Now().UTC(),
	}
	if err := e.repo.CreateStepRun(ctx, sr); err != nil {
		return nil, fmt.Errorf("create step run: %w", err)
	}

	output, err := e.runStepBody(ctx, step, ectx)

	now := time.Now().UTC()
	sr.CompletedAt = &now
	if err != nil {
		sr.Status = models.StepStatusFailed
		sr.ErrorMessage = err.Error()
	} else {
		sr.Status = models.StepStatusSuccess
		sr.OutputData = output
	}
	if saveErr := e.repo.SaveStepRun(ctx, sr); saveErr != nil {
		e.error("save step run failed", "run_id", run.ID, "step", step.Name, "error", saveErr)
	}
	return output, err
}

func (e *Engine) runStepBody(ctx context.Context, step *models.WorkflowStep, ectx *models.ExecutionContext) (map[string]any, error) {
	switch step.Kind {
	case models.StepKindAction:
		if step.ActionKey == "" {
			return nil, fmt.Errorf("action step %q has no action key", step.Name)
		}
		res := e.dispatcher.Execute(ctx, step.ActionKey, step.Config, ectx)
		if !res.Success {
			return nil, fmt.Errorf("%s", res.Error)
		}
		return res.Result, nil

	case models.StepKindCondition:
		return e.runConditionStep(step, ectx)

	case models.StepKindDelay:
		return e.runDelayStep(ctx, step, ectx)

	case models.StepKindLoop:
		return map[string]any{"status": "not_implemented"}, nil

	default:
		return nil, fmt.Errorf("unknown step kind %q", step.Kind)
	}
}

// runConditionStep evaluates the step's filter tree against the accumulated
// run variables. The outcome is data, not control flow: the step succeeds
// either way and downstream steps read condition_met from its output.
func (e *Engine) runConditionStep(step *models.WorkflowStep, ectx *models.ExecutionContext) (map[string]any, error) {
	resolved := variables.ResolveConfig(step.Config, ectx)
	raw, ok := resolved["condition"]
	if !ok {
		return nil, fmt.Errorf("condition step %q has no condition", step.Name)
	}

	node, err := decodeFilterNode(raw)
	if err != nil {
		return nil, fmt.Errorf("condition step %q: %w", step.Name, err)
	}
	if err := filter.Validate(node); err != nil {
		return nil, fmt.Errorf("condition step %q: %w", step.Name, err)
	}

	met := e.filters.Evaluate(node, ectx.Variables)
	return map[string]any{"condition_met": met}, nil
}

func (e *Engine) runDelayStep(ctx context.Context, step *models.WorkflowStep, ectx *models.ExecutionContext) (map[string]any, error) {
	resolved := variables.ResolveConfig(step.Config, ectx)

	delay := e.defaultDelay
	for _, key := range []string{"delayMs", "delay"} {
		if ms, ok := toInt64(resolved[key]); ok && ms >= 0 {
			delay = time.Duration(ms) * time.Millisecond
			break
		}
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, fmt.Errorf("delay interrupted: %w", ctx.Err())
	}
	return map[string]any{"delayed_ms": delay.Milliseconds()}, nil
}

// prepareContext merges the workflow's stored variables under the incoming
// context; caller-provided values win on key collision.
func prepareContext(wf *models.WorkflowDefinition, ectx *models.ExecutionContext) *models.ExecutionContext {
	if ectx == nil {
		ectx = &models.ExecutionContext{}
	}
	merged := make(map[string]any, len(wf.Variables)+len(ectx.Variables)+1)
	for k, v := range wf.Variables {
		merged[k] = v
	}
	for k, v := range ectx.Variables {
		merged[k] = v
	}
	if ectx.TriggerData != nil {
		merged["trigger"] = ectx.TriggerData
	}
	ectx.Variables = merged
	if ectx.ExecutionMode == "" {
		ectx.ExecutionMode = models.ExecutionModeSync
	}
	return ectx
}

func (e *Engine) failRun(ctx context.Context, run *models.WorkflowRun, reason string) *models.ExecutionResult {
	run.Status = models.RunStatusFailed
	run.FailReason = reason
	e.finishRun(ctx, run)
	e.metrics.RunFailed(ctx)
	e.warn("workflow run failed", "workflow_id", run.WorkflowID, "run_id", run.ID, "reason", reason)
	return &models.ExecutionResult{Success: false, Error: reason, RunID: run.ID}
}

func (e *Engine) finishRun(ctx context.Context, run *models.WorkflowRun) {
	now := time.Now().UTC()
	run.CompletedAt = &now
	run.ExecutionTimeMs = now.Sub(run.StartedAt).Milliseconds()
	if err := e.repo.SaveRun(ctx, run); err != nil {
		e.error("save run failed", "run_id", run.ID, "error", err)
	}
}

func decodeFilterNode(raw any) (*models.FilterNode, error) {
	if node, ok := raw.(*models.FilterNode); ok {
		return node, nil
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid condition: %w", err)
	}
	var node models.FilterNode
	if err := json.Unmarshal(buf, &node); err != nil {
		return nil, fmt.Errorf("invalid condition: %w", err)
	}
	return &node, nil
}

// runTracker counts in-flight asynchronous runs for Wait.
type runTracker struct {
	wg sync.WaitGroup
}

func (t *runTracker) add()  { t.wg.Add(1) }
func (t *runTracker) done() { t.wg.Done() }
func (t *runTracker) wait() { t.wg.Wait() }

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}

func failure(msg string) *models.ExecutionResult {
	return &models.ExecutionResult{Success: false, Error: msg}
}

func (e *Engine) info(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Info(msg, args...)
	}
}

func (e *Engine) warn(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Warn(msg, args...)
	}
}

func (e *Engine) error(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Error(msg, args...)
	}
}
