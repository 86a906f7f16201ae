package core

import (
	"context"

	"github.com/hibiki-ai/hibiki-go/pkg/llm"
)

// DefaultResponseTemperature is the sampling temperature of the response stage.
const DefaultResponseTemperature = 0.7

// Responder is the response stage: it generates the persona reply and commits
// the exchange to long-term memory.
type Responder struct {
	llm         llm.Provider
	store       MemoryStore
	temperature float64
	personaName string
}

// NewResponder creates a response stage.
//
// Parameters:
//   - provider: Persona language model
//   - store: Memory store receiving the new record
//   - temperature: Sampling temperature of the persona model
//   - personaName: Name the model speaks as, DefaultPersonaName if empty
func NewResponder(provider llm.Provider, store MemoryStore, temperature float64, personaName string) *Responder {
	if personaName == "" {
		personaName = DefaultPersonaName
	}
	return &Responder{
		llm:         provider,
		store:       store,
		temperature: temperature,
		personaName: personaName,
	}
}

// PersonaName returns the name the persona speaks as.
func (r *Responder) PersonaName() string {
	return r.personaName
}

// Reply generates the persona reply from the guidance, memory and utterance.
func (r *Responder) Reply(ctx context.Context, utterance, retrievedMemory, guidance string) (string, error) {
	messages := []llm.Message{
		llm.SystemMessage(buildPersonaPrompt(r.personaName)),
		llm.UserMessage(buildResponsePrompt(guidance, retrievedMemory, utterance, r.personaName)),
	}
	return r.llm.GenerateWithMessages(ctx, messages, llm.WithTemperature(r.temperature))
}

// Remember writes the exchange as a new memory record.
//
// It must only be called once a reply exists.
func (r *Responder) Remember(ctx context.Context, ns Namespace, utterance, reply string) (*MemoryRecord, error) {
	content := formatMemoryContent(utterance, reply)
	key, err := r.store.Create(ctx, ns, content)
	if err != nil {
		return nil, err
	}
	return &MemoryRecord{
		Namespace: ns,
		Key:       key,
		Content:   content,
	}, nil
}
