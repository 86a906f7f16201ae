package core

import "time"

// RunnerOption is a function type for configuring a Runner.
//
// Options are applied using the functional options pattern, allowing
// flexible configuration without requiring all parameters.
type RunnerOption func(*RunnerOptions)

// RunnerOptions contains configuration options for a Runner.
type RunnerOptions struct {
	// PlanningTemperature is the sampling temperature of the guidance model.
	PlanningTemperature float64

	// ResponseTemperature is the sampling temperature of the persona model.
	ResponseTemperature float64

	// PersonaName is the name the persona speaks as.
	PersonaName string

	// StageTimeout bounds every blocking call of a run. Zero means no timeout
	// beyond the caller's context.
	StageTimeout time.Duration

	// Observer receives state transitions and stage timings (optional).
	Observer Observer
}

// WithPlanningTemperature sets the temperature of the planning stage.
//
// Example:
//
//	runner := core.NewRunner(store, planner, responder, core.WithPlanningTemperature(0.2))
func WithPlanningTemperature(temp float64) RunnerOption {
	return func(opts *RunnerOptions) {
		opts.PlanningTemperature = temp
	}
}

// WithResponseTemperature sets the temperature of the response stage.
func WithResponseTemperature(temp float64) RunnerOption {
	return func(opts *RunnerOptions) {
		opts.ResponseTemperature = temp
	}
}

// WithPersonaName sets the persona name used in the response prompt.
func WithPersonaName(name string) RunnerOption {
	return func(opts *RunnerOptions) {
		opts.PersonaName = name
	}
}

// WithStageTimeout bounds each store and model call of a run.
//
// A call exceeding the timeout fails with its stage's failure kind.
//
// Example:
//
//	runner := core.NewRunner(store, planner, responder, core.WithStageTimeout(30*time.Second))
func WithStageTimeout(timeout time.Duration) RunnerOption {
	return func(opts *RunnerOptions) {
		opts.StageTimeout = timeout
	}
}

// WithObserver registers an observer for state transitions and stage timings.
func WithObserver(observer Observer) RunnerOption {
	return func(opts *RunnerOptions) {
		opts.Observer = observer
	}
}

// applyRunnerOptions applies options on top of the defaults.
func applyRunnerOptions(opts []RunnerOption) *RunnerOptions {
	options := &RunnerOptions{
		PlanningTemperature: DefaultPlanningTemperature,
		ResponseTemperature: DefaultResponseTemperature,
		PersonaName:         DefaultPersonaName,
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.Observer == nil {
		options.Observer = NopObserver{}
	}
	return options
}
