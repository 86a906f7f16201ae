package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/hibiki-ai/hibiki-go/pkg/observability"
)

// Retriever is the retrieval stage: it turns the memories relevant to an
// utterance into a single text blob.
type Retriever struct {
	store MemoryStore
}

// NewRetriever creates a retrieval stage reading from store.
func NewRetriever(store MemoryStore) *Retriever {
	return &Retriever{store: store}
}

// Retrieve searches the namespace for utterance and joins the contents of the
// results with newlines, in the order the store returned them.
//
// An empty utterance is forwarded to the store as is. A malformed fragment is
// rendered raw and logged; it never fails the stage. When nothing is found the
// NoRelatedMemory sentinel is returned.
//
// Parameters:
//   - ctx: Context for cancellation
//   - ns: Memory namespace of the user
//   - utterance: Current user utterance, used as the search query
//
// Returns the retrieved memory text, or an error wrapping ErrStoreUnavailable.
func (r *Retriever) Retrieve(ctx context.Context, ns Namespace, utterance string) (string, error) {
	fragments, err := r.store.Search(ctx, ns, utterance)
	if err != nil {
		return "", err
	}

	return renderFragments(ctx, fragments), nil
}

func renderFragments(ctx context.Context, fragments []Fragment) string {
	contents := make([]string, 0, len(fragments))
	for _, fragment := range fragments {
		content, err := fragment.Content()
		if err != nil {
			observability.LoggerFromContext(ctx).Warn("malformed memory fragment, using raw value",
				"namespace", fragment.Namespace.String(),
				"key", fragment.Key,
				"error", err)
			content = fmt.Sprintf("%v", fragment.Value)
		}
		contents = append(contents, content)
	}

	joined := strings.Join(contents, "\n")
	if joined == "" {
		return NoRelatedMemory
	}
	return joined
}
