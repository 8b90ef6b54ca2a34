// Package runner drives a compiled composition to completion outside the
// platform: it feeds every continuation the conductor emits to an action
// invoker and re-enters the conductor with the result.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/recinq/composer/internal/compiler"
	"github.com/recinq/composer/internal/conductor"
	"github.com/recinq/composer/internal/evaluator"
	"github.com/recinq/composer/internal/event"
	"github.com/recinq/composer/internal/state"
)

// ActionInvoker executes one action invocation and returns its result.
type ActionInvoker interface {
	Invoke(ctx context.Context, name string, params any) (any, error)
}

type Runner struct {
	invoker        ActionInvoker
	emitter        event.EventEmitter
	store          state.Store
	log            zerolog.Logger
	maxInvocations int
}

type Option func(*Runner)

func WithEmitter(e event.EventEmitter) Option {
	return func(r *Runner) { r.emitter = e }
}

func WithStore(s state.Store) Option {
	return func(r *Runner) { r.store = s }
}

func WithLogger(log zerolog.Logger) Option {
	return func(r *Runner) { r.log = log }
}

// WithMaxInvocations bounds the number of action invocations per run; zero
// means unbounded.
func WithMaxInvocations(n int) Option {
	return func(r *Runner) { r.maxInvocations = n }
}

func New(invoker ActionInvoker, opts ...Option) *Runner {
	r := &Runner{invoker: invoker, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the FSM against input until it terminates. Each run is
// single-threaded: one conductor invocation at a time, one action in flight
// at a time. The terminal outcome is returned; the error covers runner
// infrastructure only, not composition-level failures.
func (r *Runner) Run(ctx context.Context, name string, fsm []compiler.State, input any) (*conductor.Outcome, error) {
	cond := conductor.New(fsm, evaluator.New())
	runID := r.createRun(name, input)
	started := time.Now()

	r.emit(event.Event{Timestamp: time.Now(), RunID: runID, State: event.StateStarted, Message: name})

	params := input
	invocations := 0
	for {
		if err := ctx.Err(); err != nil {
			r.finishRun(runID, state.StatusFailed, invocations, "", err.Error())
			return nil, fmt.Errorf("run cancelled: %w", err)
		}

		out := cond.Invoke(params)
		switch out.Kind {
		case conductor.OutcomeSuccess:
			r.emit(event.Event{
				Timestamp:  time.Now(),
				RunID:      runID,
				State:      event.StateCompleted,
				DurationMs: time.Since(started).Milliseconds(),
			})
			r.finishRun(runID, state.StatusCompleted, invocations, stringify(out.Params), "")
			return out, nil

		case conductor.OutcomeFailure:
			r.emit(event.Event{
				Timestamp:  time.Now(),
				RunID:      runID,
				State:      event.StateFailed,
				Message:    out.Error,
				DurationMs: time.Since(started).Milliseconds(),
			})
			r.finishRun(runID, state.StatusFailed, invocations, "", out.Error)
			return out, nil

		case conductor.OutcomeSuspended:
			invocations++
			if r.maxInvocations > 0 && invocations > r.maxInvocations {
				r.finishRun(runID, state.StatusFailed, invocations, "", "invocation limit exceeded")
				return nil, fmt.Errorf("invocation limit of %d exceeded", r.maxInvocations)
			}
			r.emit(event.Event{Timestamp: time.Now(), RunID: runID, State: event.StateSuspended, Action: out.Action})
			r.log.Debug().Str("action", out.Action).Msg("invoking action")

			result, err := r.invoker.Invoke(ctx, out.Action, out.Params)
			if err != nil {
				result = map[string]any{"error": err.Error()}
			}
			params = resumeParams(result, out.Resume)
			r.emit(event.Event{Timestamp: time.Now(), RunID: runID, State: event.StateResumed, Action: out.Action})

		default:
			return nil, fmt.Errorf("unexpected conductor outcome %d", out.Kind)
		}
	}
}

// resumeParams merges an action result with the continuation so the next
// conductor invocation resumes where it suspended.
func resumeParams(result any, resume *conductor.Continuation) map[string]any {
	params, ok := result.(map[string]any)
	if !ok {
		params = map[string]any{"value": result}
	}
	params[conductor.ResumeKey] = resume
	return params
}

func (r *Runner) emit(e event.Event) {
	if r.emitter != nil {
		r.emitter.Emit(e)
	}
	if r.store != nil && e.RunID != "" {
		message := e.Message
		if e.Action != "" {
			message = e.Action
		}
		if err := r.store.LogEvent(e.RunID, e.State, message); err != nil {
			r.log.Warn().Err(err).Msg("failed to log run event")
		}
	}
}

func (r *Runner) createRun(name string, input any) string {
	if r.store == nil {
		return ""
	}
	runID, err := r.store.CreateRun(name, stringify(input))
	if err != nil {
		r.log.Warn().Err(err).Msg("failed to record run")
		return ""
	}
	return runID
}

func (r *Runner) finishRun(runID, status string, steps int, result, errMsg string) {
	if r.store == nil || runID == "" {
		return
	}
	if err := r.store.UpdateRunStatus(runID, status, steps, result, errMsg); err != nil {
		r.log.Warn().Err(err).Msg("failed to update run status")
	}
}

func stringify(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
