package verifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopscout/shopscout/provider"
	"github.com/shopscout/shopscout/tools/web_search"
)

// Release status of a verified product.
const (
	StatusAvailable = "available"
	StatusUpcoming  = "upcoming"
	StatusRumored   = "rumored"
	StatusUnknown   = "unknown"
)

// Confidence levels reported by the classifier.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Verdict is the availability decision for one product query.
type Verdict struct {
	Exists        bool   `json:"exists"`
	Info          string `json:"info"`
	Confidence    string `json:"confidence"`
	ReleaseStatus string `json:"release_status"`
}

// Searcher is the subset of web search needed for verification.
type Searcher interface {
	Discover(ctx context.Context, q string, k int) ([]web_search.Result, error)
}

// Verifier decides whether a product is purchasable today by combining web
// search evidence with an LLM classification. Any failure along the way
// produces an unknown verdict with Exists=false, never an optimistic one.
type Verifier struct {
	search     Searcher
	llm        provider.Provider
	maxResults int
	logger     *log.Logger
}

func New(search Searcher, llm provider.Provider, maxResults int) *Verifier {
	if maxResults < 1 {
		maxResults = 5
	}
	return &Verifier{
		search:     search,
		llm:        llm,
		maxResults: maxResults,
		logger:     log.New(log.Writer(), "[VERIFIER] ", log.LstdFlags),
	}
}

// unknownVerdict is returned on any verification failure.
func unknownVerdict(info string) Verdict {
	return Verdict{
		Exists:        false,
		Info:          info,
		Confidence:    ConfidenceLow,
		ReleaseStatus: StatusUnknown,
	}
}

// Verify classifies the product's availability as of referenceDate. The
// returned error is non-nil only alongside an unknown verdict, so callers can
// treat the verdict as authoritative either way.
func (v *Verifier) Verify(ctx context.Context, product string, referenceDate time.Time) (Verdict, error) {
	results, err := v.search.Discover(ctx, product+" official release date specs", v.maxResults)
	if err != nil {
		v.logger.Printf("web search failed for %q: %v", product, err)
		return unknownVerdict("Could not retrieve availability information."), fmt.Errorf("web search: %w", err)
	}

	var evidence strings.Builder
	for _, r := range results {
		if r.Snippet == "" {
			continue
		}
		evidence.WriteString("- ")
		if r.Title != "" {
			evidence.WriteString(r.Title)
			evidence.WriteString(": ")
		}
		evidence.WriteString(r.Snippet)
		evidence.WriteString("\n")
	}
	if evidence.Len() == 0 {
		return unknownVerdict("No availability information was found."), nil
	}

	reply, err := v.llm.Chat(ctx, []provider.Message{
		{Role: "system", Content: classifierSystemPrompt},
		{Role: "user", Content: classifierUserPrompt(product, referenceDate, evidence.String())},
	})
	if err != nil {
		v.logger.Printf("classification failed for %q: %v", product, err)
		return unknownVerdict("Could not verify availability."), fmt.Errorf("classify: %w", err)
	}

	verdict, err := parseVerdict(reply)
	if err != nil {
		v.logger.Printf("unparseable classification for %q: %v", product, err)
		return unknownVerdict("Could not verify availability."), fmt.Errorf("parse verdict: %w", err)
	}
	return verdict, nil
}

const classifierSystemPrompt = `You are a product availability checker. Given web search evidence about a product, decide whether the product is purchasable today.

Respond with ONLY a JSON object, no other text:
{"exists": true or false, "info": "one sentence summary", "confidence": "high" or "medium" or "low", "release_status": "available" or "upcoming" or "rumored" or "unknown"}

IMPORTANT RULES:
1. "exists" is true only if the product is released and purchasable on the current date. Announced, pre-order-only, or future products get exists=false with release_status "upcoming".
2. Products that are only speculation or leaks get exists=false with release_status "rumored".
3. If the evidence does not clearly identify the product, use exists=false with release_status "unknown" and confidence "low".
4. Compare any release dates in the evidence against the current date given by the user. A date in the past means released.`

func classifierUserPrompt(product string, referenceDate time.Time, evidence string) string {
	return fmt.Sprintf("Current date: %s\nProduct: %s\n\nSearch evidence:\n%s",
		referenceDate.Format("January 2, 2006"), product, evidence)
}

// parseVerdict decodes the model reply, tolerating markdown code fences,
// and rejects replies whose enum fields are out of range.
func parseVerdict(reply string) (Verdict, error) {
	cleaned := strings.TrimSpace(reply)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var verdict Verdict
	if err := json.Unmarshal([]byte(cleaned), &verdict); err != nil {
		return Verdict{}, err
	}
	switch verdict.ReleaseStatus {
	case StatusAvailable, StatusUpcoming, StatusRumored, StatusUnknown:
	default:
		return Verdict{}, fmt.Errorf("unexpected release_status %q", verdict.ReleaseStatus)
	}
	switch verdict.Confidence {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
	default:
		return Verdict{}, fmt.Errorf("unexpected confidence %q", verdict.Confidence)
	}
	return verdict, nil
}
