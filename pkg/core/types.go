package core

import (
	"github.com/hibiki-ai/hibiki-go/pkg/storage"
)

// MemoryPartition is the fixed partition tag of every user memory namespace.
const MemoryPartition = "memories"

// NoRelatedMemory is the retrieved memory text used when a search yields nothing.
const NoRelatedMemory = "no related memory found"

// Namespace identifies an isolated memory space, for example {"memories", "user_001"}.
type Namespace = storage.Namespace

// MemoryNamespace returns the namespace holding the long-term memories of a user.
//
// Example:
//
//	ns := core.MemoryNamespace("user_001") // {"memories", "user_001"}
func MemoryNamespace(userID string) Namespace {
	return Namespace{MemoryPartition, userID}
}

// Fragment is one memory search result as returned by a MemoryStore.
//
// The text of the memory lives at Value["content"]. A fragment whose content is
// missing or not a string is malformed; retrieval renders it raw instead.
type Fragment struct {
	// Namespace is the memory space the fragment was found in.
	Namespace Namespace `json:"namespace"`

	// Key is the store-assigned identifier of the underlying record.
	Key string `json:"key"`

	// Value is the stored value, normally {"content": "..."}.
	Value map[string]interface{} `json:"value"`

	// Score is the backend's relevance score. The pipeline never re-ranks by it.
	Score float64 `json:"score,omitempty"`
}

// Content extracts the string content of the fragment.
//
// Returns ErrMalformedMemoryRecord if the content field is missing or not a string.
func (f Fragment) Content() (string, error) {
	raw, ok := f.Value["content"]
	if !ok {
		return "", ErrMalformedMemoryRecord
	}
	content, ok := raw.(string)
	if !ok {
		return "", ErrMalformedMemoryRecord
	}
	return content, nil
}

// MemoryRecord is one persisted unit of long-term conversational memory.
//
// Records are created only by the response stage and are never updated or
// deleted by the pipeline.
type MemoryRecord struct {
	// Namespace is the memory space the record belongs to.
	Namespace Namespace `json:"namespace"`

	// Key is the opaque identifier assigned by the store on creation.
	Key string `json:"key"`

	// Content is the persisted exchange: "user: <utterance>\nagent: <reply>".
	Content string `json:"content"`
}

// Stage names one step of the dialogue pipeline.
type Stage string

const (
	// StageRetrieval searches long-term memory for the utterance.
	StageRetrieval Stage = "retrieval"

	// StagePlanning asks the guidance model how to respond.
	StagePlanning Stage = "planning"

	// StageResponse generates the persona reply and writes the new memory.
	StageResponse Stage = "response"
)

// State is a state of a single pipeline run.
//
// A run moves Idle → Retrieving → Planning → Responding → Done, or ends in
// Failed from whichever stage failed. There are no other transitions.
type State string

const (
	StateIdle       State = "idle"
	StateRetrieving State = "retrieving"
	StatePlanning   State = "planning"
	StateResponding State = "responding"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Terminal reports whether no further transition can leave the state.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// PipelineState is the value threaded through the three stages of one run.
//
// Each field is written by exactly one stage and only read downstream:
//   - Input: set once when the run starts
//   - RetrievedMemory: written by retrieval
//   - Guidance: written by planning
//   - Reply: written by response
type PipelineState struct {
	Input           string
	RetrievedMemory string
	Guidance        string
	Reply           string
}

// Result is the outcome of a pipeline run.
type Result struct {
	// Reply is the text to display to the user.
	Reply string `json:"reply"`

	// Guidance is the planning text, for optional diagnostic display.
	Guidance string `json:"guidance"`

	// RetrievedMemory is the memory text the run was based on.
	RetrievedMemory string `json:"retrieved_memory"`

	// MemoryKey is the key of the memory record written by the run, empty if the
	// write failed.
	MemoryKey string `json:"memory_key,omitempty"`

	// MemoryWritten reports whether the exchange was stored.
	MemoryWritten bool `json:"memory_written"`
}

// Speaker identifies who said a conversation turn.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "agent"
)

// Turn is one displayed message of a conversation.
type Turn struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// ConversationHistory is the ordered, append-only transcript owned by the caller.
//
// The pipeline never reads it; Client.Converse only appends to it once a run
// produced a reply.
type ConversationHistory struct {
	Turns []Turn `json:"turns"`
}

// Append adds a turn at the end of the history.
func (h *ConversationHistory) Append(speaker Speaker, text string) {
	h.Turns = append(h.Turns, Turn{Speaker: speaker, Text: text})
}

// Len returns the number of turns.
func (h *ConversationHistory) Len() int {
	return len(h.Turns)
}
