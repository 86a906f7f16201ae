package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiki-ai/hibiki-go/pkg/llm"
	"github.com/hibiki-ai/hibiki-go/pkg/observability"
)

// Transition describes one state change of a run.
type Transition struct {
	// From is the state being left.
	From State

	// To is the state being entered.
	To State

	// Stage is the stage being entered, or the stage that failed when To is StateFailed.
	Stage Stage

	// Err is the failure for transitions to StateFailed, and the memory write
	// failure for a StateDone transition whose exchange was not stored.
	Err error
}

// Observer receives the progress of pipeline runs.
//
// Implementations must be safe for concurrent use; a Runner shares one
// Observer across all runs.
type Observer interface {
	// StateChanged is called on every state transition.
	StateChanged(ctx context.Context, t Transition)

	// StageCompleted is called when the model or store call of a stage returns.
	// err is a *StageError on failure.
	StageCompleted(ctx context.Context, stage Stage, elapsed time.Duration, err error)

	// MemoryWritten is called after the post-reply memory write.
	MemoryWritten(ctx context.Context, elapsed time.Duration, err error)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) StateChanged(context.Context, Transition)                    {}
func (NopObserver) StageCompleted(context.Context, Stage, time.Duration, error) {}
func (NopObserver) MemoryWritten(context.Context, time.Duration, error)         {}

// transitions lists every state change a run may make.
var transitions = map[State][]State{
	StateIdle:       {StateRetrieving},
	StateRetrieving: {StatePlanning, StateFailed},
	StatePlanning:   {StateResponding, StateFailed},
	StateResponding: {StateDone, StateFailed},
}

// CanTransition reports whether a run may move from one state to another.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Runner composes retrieval, planning and response into one call.
//
// A Runner holds no per-run state and is safe for concurrent use. Concurrent
// runs for the same user may interleave their memory reads and writes; callers
// that need per-user ordering must serialize runs themselves.
//
// Example:
//
//	runner := core.NewRunner(store, plannerLLM, responderLLM)
//	result, err := runner.Run(ctx, "user_001", "I'm tired today")
//	if err != nil && result == nil {
//	    return err
//	}
//	fmt.Println(result.Reply)
type Runner struct {
	retriever    *Retriever
	planner      *Planner
	responder    *Responder
	observer     Observer
	stageTimeout time.Duration
}

// NewRunner creates a pipeline runner.
//
// Parameters:
//   - store: Long-term memory store shared by retrieval and response
//   - planner: Guidance model
//   - responder: Persona model
//   - opts: Optional settings (temperatures, persona name, stage timeout, observer)
//
// Returns a new Runner instance.
func NewRunner(store MemoryStore, planner, responder llm.Provider, opts ...RunnerOption) *Runner {
	options := applyRunnerOptions(opts)

	return &Runner{
		retriever:    NewRetriever(store),
		planner:      NewPlanner(planner, options.PlanningTemperature),
		responder:    NewResponder(responder, store, options.ResponseTemperature, options.PersonaName),
		observer:     options.Observer,
		stageTimeout: options.StageTimeout,
	}
}

// PersonaName returns the name the persona speaks as.
func (r *Runner) PersonaName() string {
	return r.responder.PersonaName()
}

// Run executes one pipeline run for utterance in the memory space of userID.
//
// The run moves Idle → Retrieving → Planning → Responding → Done. The first
// failing stage ends it in Failed and returns a *StageError with a nil result:
//   - retrieval: ErrStoreUnavailable
//   - planning: ErrPlanningFailed (the persona model is never called)
//   - response: ErrResponseFailed (no memory is written)
//
// If the reply was produced but the memory write failed, Run returns the full
// result with MemoryWritten=false together with a *StageError of kind
// ErrMemoryWriteFailed. The reply is never retracted.
//
// Parameters:
//   - ctx: Context for cancellation
//   - userID: Opaque user identifier, must not be empty
//   - utterance: Current user utterance (may be empty)
//
// Returns the run result and an error as described above.
func (r *Runner) Run(ctx context.Context, userID, utterance string) (*Result, error) {
	if userID == "" {
		return nil, NewMemoryError("Run", fmt.Errorf("%w: user id is empty", ErrInvalidInput))
	}

	ns := MemoryNamespace(userID)
	log := observability.LoggerFromContext(ctx).With("user_id", userID)
	m := &machine{ctx: ctx, observer: r.observer, log: log, state: StateIdle}
	state := PipelineState{Input: utterance}

	log.Info("pipeline started")

	m.move(StateRetrieving, StageRetrieval, nil)
	err := r.stage(ctx, log, StageRetrieval, ErrStoreUnavailable, func(ctx context.Context) error {
		memory, err := r.retriever.Retrieve(ctx, ns, state.Input)
		if err != nil {
			return err
		}
		state.RetrievedMemory = memory
		return nil
	})
	if err != nil {
		m.move(StateFailed, StageRetrieval, err)
		return nil, err
	}

	m.move(StatePlanning, StagePlanning, nil)
	err = r.stage(ctx, log, StagePlanning, ErrPlanningFailed, func(ctx context.Context) error {
		guidance, err := r.planner.Plan(ctx, state.Input, state.RetrievedMemory)
		if err != nil {
			return err
		}
		state.Guidance = guidance
		return nil
	})
	if err != nil {
		m.move(StateFailed, StagePlanning, err)
		return nil, err
	}

	m.move(StateResponding, StageResponse, nil)
	err = r.stage(ctx, log, StageResponse, ErrResponseFailed, func(ctx context.Context) error {
		reply, err := r.responder.Reply(ctx, state.Input, state.RetrievedMemory, state.Guidance)
		if err != nil {
			return err
		}
		state.Reply = reply
		return nil
	})
	if err != nil {
		m.move(StateFailed, StageResponse, err)
		return nil, err
	}

	result := &Result{
		Reply:           state.Reply,
		Guidance:        state.Guidance,
		RetrievedMemory: state.RetrievedMemory,
	}

	record, err := r.remember(ctx, log, ns, state)
	if err != nil {
		m.move(StateDone, StageResponse, err)
		log.Warn("pipeline finished without storing the exchange", "error", err)
		return result, err
	}

	result.MemoryKey = record.Key
	result.MemoryWritten = true

	m.move(StateDone, StageResponse, nil)
	log.Info("pipeline finished", "memory_key", record.Key)

	return result, nil
}

// stage runs one stage call under the stage timeout and tags its failure.
func (r *Runner) stage(ctx context.Context, log *slog.Logger, stage Stage, kind error, fn func(context.Context) error) error {
	stageCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	log.Info("stage run start", "stage", stage)

	err := fn(stageCtx)
	elapsed := time.Since(start)
	if err != nil {
		err = newStageError(stage, kind, err)
		log.Error("stage failed", "stage", stage, "elapsed_ms", elapsed.Milliseconds(), "error", err)
	} else {
		log.Info("stage run end", "stage", stage, "elapsed_ms", elapsed.Milliseconds())
	}

	r.observer.StageCompleted(ctx, stage, elapsed, err)
	return err
}

// remember performs the post-reply memory write.
func (r *Runner) remember(ctx context.Context, log *slog.Logger, ns Namespace, state PipelineState) (*MemoryRecord, error) {
	writeCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	record, err := r.responder.Remember(writeCtx, ns, state.Input, state.Reply)
	elapsed := time.Since(start)
	if err != nil {
		err = newStageError(StageResponse, ErrMemoryWriteFailed, err)
		log.Error("memory write failed", "elapsed_ms", elapsed.Milliseconds(), "error", err)
	} else {
		log.Info("memory written", "memory_key", record.Key, "elapsed_ms", elapsed.Milliseconds())
	}

	r.observer.MemoryWritten(ctx, elapsed, err)
	return record, err
}

func (r *Runner) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.stageTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.stageTimeout)
}

// machine tracks the state of one run and reports its transitions.
type machine struct {
	ctx      context.Context
	observer Observer
	log      *slog.Logger
	state    State
}

func (m *machine) move(next State, stage Stage, err error) {
	if !CanTransition(m.state, next) {
		panic(fmt.Sprintf("hibiki: invalid pipeline transition %s -> %s", m.state, next))
	}

	t := Transition{From: m.state, To: next, Stage: stage, Err: err}
	m.state = next
	m.log.Debug("state transition", "from", t.From, "to", t.To, "stage", t.Stage)
	m.observer.StateChanged(m.ctx, t)
}
