package memory

import (
	"context"
	"log"
	"strings"

	"github.com/shopscout/shopscout/internal/store"
	"github.com/shopscout/shopscout/provider"
)

// Recaller builds a short personalization context from a user's past search
// messages, retrieved by vector similarity.
type Recaller struct {
	llm          provider.Provider
	store        *store.Store
	topK         int
	contextLimit int
	dimensions   int
	logger       *log.Logger
}

func NewRecaller(llm provider.Provider, st *store.Store, topK, contextLimit, dimensions int) *Recaller {
	if topK <= 0 {
		topK = 5
	}
	if contextLimit <= 0 {
		contextLimit = 5
	}
	if dimensions <= 0 {
		dimensions = store.DefaultEmbeddingDimensions
	}
	return &Recaller{
		llm:          llm,
		store:        st,
		topK:         topK,
		contextLimit: contextLimit,
		dimensions:   dimensions,
		logger:       log.New(log.Writer(), "[MEMORY] ", log.LstdFlags),
	}
}

// Remember embeds a user's search message and stores it for later recall.
// Failures are logged, not surfaced; memory is best effort.
func (r *Recaller) Remember(ctx context.Context, messageID, userID, content string) {
	if strings.TrimSpace(content) == "" {
		return
	}
	vecs, err := r.llm.CreateEmbedding(ctx, []string{content})
	if err != nil || len(vecs) == 0 {
		r.logger.Printf("embed failed for message %s: %v", messageID, err)
		return
	}
	if len(vecs[0]) != r.dimensions {
		r.logger.Printf("embedding for message %s has %d dimensions, want %d", messageID, len(vecs[0]), r.dimensions)
		return
	}
	if err := r.store.UpsertMessageEmbedding(ctx, messageID, userID, content, vecs[0]); err != nil {
		r.logger.Printf("store embedding failed for message %s: %v", messageID, err)
	}
}

// Recall returns a context line describing the user's related past searches,
// or "" when there is nothing useful to add.
func (r *Recaller) Recall(ctx context.Context, userID, message string) string {
	if isMetaQuestion(message) {
		// The user is asking about their own history; past-query context
		// would bias the model toward re-running old searches.
		return ""
	}
	vecs, err := r.llm.CreateEmbedding(ctx, []string{message})
	if err != nil || len(vecs) == 0 {
		r.logger.Printf("embed failed for recall: %v", err)
		return ""
	}
	if len(vecs[0]) != r.dimensions {
		r.logger.Printf("recall embedding has %d dimensions, want %d", len(vecs[0]), r.dimensions)
		return ""
	}
	hits, err := r.store.SearchMessageEmbeddings(ctx, userID, vecs[0], r.topK)
	if err != nil {
		r.logger.Printf("recall search failed: %v", err)
		return ""
	}

	seen := make(map[string]struct{})
	var items []string
	for _, h := range hits {
		content := strings.TrimSpace(h.Content)
		if content == "" {
			continue
		}
		key := strings.ToLower(content)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		items = append(items, content)
		if len(items) >= r.contextLimit {
			break
		}
	}
	if len(items) == 0 {
		return ""
	}
	return "Based on your search history, you've looked for: " + strings.Join(items, "; ")
}

var metaMarkers = []string{
	"previously",
	"before",
	"searched for",
	"what did i",
}

func isMetaQuestion(message string) bool {
	lower := strings.ToLower(message)
	for _, marker := range metaMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
