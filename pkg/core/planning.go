package core

import (
	"context"

	"github.com/hibiki-ai/hibiki-go/pkg/llm"
)

// DefaultPlanningTemperature is the sampling temperature of the planning stage.
const DefaultPlanningTemperature = 0.3

// Planner is the planning stage: it asks the guidance model how the persona
// should answer.
type Planner struct {
	llm         llm.Provider
	temperature float64
}

// NewPlanner creates a planning stage using provider at the given temperature.
func NewPlanner(provider llm.Provider, temperature float64) *Planner {
	return &Planner{
		llm:         provider,
		temperature: temperature,
	}
}

// Plan returns the raw guidance text for the utterance and retrieved memory.
//
// The output is not parsed; the three requested parts are passed on as written.
func (p *Planner) Plan(ctx context.Context, utterance, retrievedMemory string) (string, error) {
	prompt := buildPlanningPrompt(utterance, retrievedMemory)
	return p.llm.Generate(ctx, prompt, llm.WithTemperature(p.temperature))
}
