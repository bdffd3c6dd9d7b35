package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/shopscout/shopscout/internal/marketplace"
	"github.com/shopscout/shopscout/internal/session"
	"github.com/shopscout/shopscout/internal/telemetry"
	"github.com/shopscout/shopscout/internal/verifier"
	"github.com/shopscout/shopscout/provider"
)

// Turn outcome types returned to the chat surface.
const (
	TurnMessage = "message"
	TurnResults = "results"
)

// TurnInput is one user turn within a conversation.
type TurnInput struct {
	ConversationID string
	Message        string
	History        []provider.Message
	RecallContext  string
}

// TurnOutput is what the conversation surface renders. Results is non-nil
// only when Type is TurnResults.
type TurnOutput struct {
	Type    string
	Message string
	Results *marketplace.ResultSet
}

// ProductVerifier checks whether a product is purchasable today.
type ProductVerifier interface {
	VerifyProduct(ctx context.Context, product string, referenceDate time.Time) (verifier.Verdict, error)
}

// MarketplaceSearcher fans a finalized query out to the marketplaces.
type MarketplaceSearcher interface {
	SearchEBay(ctx context.Context, query string) ([]marketplace.Listing, error)
	SearchAmazon(ctx context.Context, query string) ([]marketplace.Listing, error)
}

// Coordinator drives the clarify/verify/search conversation loop. All state
// that spans turns lives in the session store keyed by conversation, so a
// single Coordinator serves every conversation concurrently.
type Coordinator struct {
	llm           provider.Provider
	verifier      ProductVerifier
	searcher      MarketplaceSearcher
	sessions      session.Store
	metrics       *telemetry.Metrics
	searchTimeout time.Duration
	pendingTTL    time.Duration
	now           func() time.Time
	logger        *log.Logger
}

type Options struct {
	LLM           provider.Provider
	Verifier      ProductVerifier
	Searcher      MarketplaceSearcher
	Sessions      session.Store
	Metrics       *telemetry.Metrics
	SearchTimeout time.Duration
	PendingTTL    time.Duration
	Now           func() time.Time
}

func New(opts Options) *Coordinator {
	if opts.SearchTimeout == 0 {
		opts.SearchTimeout = 15 * time.Second
	}
	if opts.PendingTTL == 0 {
		opts.PendingTTL = 30 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{
		llm:           opts.LLM,
		verifier:      opts.Verifier,
		searcher:      opts.Searcher,
		sessions:      opts.Sessions,
		metrics:       opts.Metrics,
		searchTimeout: opts.SearchTimeout,
		pendingTTL:    opts.PendingTTL,
		now:           opts.Now,
		logger:        log.New(log.Writer(), "[COORDINATOR] ", log.LstdFlags),
	}
}

const welcomeMessage = "Hi! I'm your shopping assistant. Tell me what you're looking for and I'll help you find it on eBay and Amazon."

// HandleTurn processes one user message and returns the assistant's move.
func (c *Coordinator) HandleTurn(ctx context.Context, in TurnInput) (TurnOutput, error) {
	if strings.TrimSpace(in.Message) == "" && len(in.History) == 0 {
		c.countTurn("welcome")
		return TurnOutput{Type: TurnMessage, Message: welcomeMessage}, nil
	}

	// A blocked query waits for the user's explicit go-ahead. Anything else
	// falls through to the normal loop, which clears the pending entry.
	pending, hasPending, err := c.sessions.GetPending(ctx, in.ConversationID)
	if err != nil {
		c.logger.Printf("session lookup failed for %s: %v", in.ConversationID, err)
	}
	if hasPending {
		if wantsSearchAnyway(in.Message) {
			if err := c.sessions.ClearPending(ctx, in.ConversationID); err != nil {
				c.logger.Printf("session clear failed for %s: %v", in.ConversationID, err)
			}
			c.countTurn("search_anyway")
			return c.search(ctx, pending.Query)
		}
		if err := c.sessions.ClearPending(ctx, in.ConversationID); err != nil {
			c.logger.Printf("session clear failed for %s: %v", in.ConversationID, err)
		}
	}

	decision, err := c.decide(ctx, in)
	if err != nil {
		// A model outage is the assistant's problem, not the user's; keep
		// the conversation alive instead of surfacing a server error.
		c.logger.Printf("turn decision failed for %s: %v", in.ConversationID, err)
		c.countTurn("degraded")
		return TurnOutput{
			Type:    TurnMessage,
			Message: "Sorry, I'm having trouble thinking right now. Could you try that again in a moment?",
		}, nil
	}

	if decision.Status == statusClarifying {
		c.countTurn("clarifying")
		return TurnOutput{Type: TurnMessage, Message: decision.Reply}, nil
	}

	verdict, err := c.verifier.VerifyProduct(ctx, decision.Query, c.now())
	if err != nil {
		c.logger.Printf("verification degraded for %q: %v", decision.Query, err)
	}
	if c.metrics != nil {
		c.metrics.Verdicts.WithLabelValues(verdict.ReleaseStatus).Inc()
	}
	if !verdict.Exists {
		p := session.PendingQuery{
			Query:         decision.Query,
			ReleaseStatus: verdict.ReleaseStatus,
			AskedAt:       c.now(),
		}
		if err := c.sessions.SetPending(ctx, in.ConversationID, p, c.pendingTTL); err != nil {
			c.logger.Printf("session save failed for %s: %v", in.ConversationID, err)
		}
		c.countTurn("blocked")
		return TurnOutput{Type: TurnMessage, Message: rejectionMessage(decision.Query, verdict)}, nil
	}

	c.countTurn("search")
	return c.search(ctx, decision.Query)
}

// search fans the query out to both marketplaces in parallel and always
// returns a merged set; a failed source contributes an empty slice.
func (c *Coordinator) search(ctx context.Context, query string) (TurnOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, c.searchTimeout)
	defer cancel()

	start := time.Now()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results marketplace.ResultSet
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		listings, err := c.searcher.SearchEBay(ctx, query)
		if err != nil {
			c.logger.Printf("ebay search failed for %q: %v", query, err)
			c.countMarketplace(marketplace.SourceEBay, "error")
			return
		}
		c.countMarketplace(marketplace.SourceEBay, "ok")
		mu.Lock()
		results.EBay = listings
		mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		listings, err := c.searcher.SearchAmazon(ctx, query)
		if err != nil {
			c.logger.Printf("amazon search failed for %q: %v", query, err)
			c.countMarketplace(marketplace.SourceAmazon, "error")
			return
		}
		c.countMarketplace(marketplace.SourceAmazon, "ok")
		mu.Lock()
		results.Amazon = listings
		mu.Unlock()
	}()
	wg.Wait()
	if c.metrics != nil {
		c.metrics.SearchDuration.Observe(time.Since(start).Seconds())
	}

	if results.EBay == nil {
		results.EBay = []marketplace.Listing{}
	}
	if results.Amazon == nil {
		results.Amazon = []marketplace.Listing{}
	}
	msg := fmt.Sprintf("Here's what I found for \"%s\":", query)
	if len(results.EBay) == 0 && len(results.Amazon) == 0 {
		msg = fmt.Sprintf("I couldn't find any listings for \"%s\" right now. Want to try a different search?", query)
	}
	return TurnOutput{Type: TurnResults, Message: msg, Results: &results}, nil
}

// Turn decision statuses produced by the model.
const (
	statusClarifying = "clarifying"
	statusFinalized  = "finalized"
)

type turnDecision struct {
	Status string `json:"status"`
	Reply  string `json:"reply,omitempty"`
	Query  string `json:"query,omitempty"`
}

const decisionSystemPrompt = `You are a helpful shopping assistant. Your job is to pin down exactly what the user wants to buy, then produce a concise marketplace search query.

Ask at most one or two short follow-up questions (budget, model, condition, size) before settling on a query. If the user's request is already specific, settle immediately.

Respond with ONLY a JSON object, no other text. Either:
{"status": "clarifying", "reply": "<your follow-up question>"}
or:
{"status": "finalized", "query": "<marketplace search query>"}`

func (c *Coordinator) decide(ctx context.Context, in TurnInput) (turnDecision, error) {
	messages := make([]provider.Message, 0, len(in.History)+3)
	messages = append(messages, provider.Message{Role: "system", Content: decisionSystemPrompt})
	if in.RecallContext != "" {
		messages = append(messages, provider.Message{Role: "system", Content: in.RecallContext})
	}
	messages = append(messages, in.History...)
	messages = append(messages, provider.Message{Role: "user", Content: in.Message})

	reply, err := c.llm.Chat(ctx, messages)
	if err != nil {
		return turnDecision{}, err
	}

	cleaned := strings.TrimSpace(reply)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var decision turnDecision
	if err := json.Unmarshal([]byte(cleaned), &decision); err != nil {
		// A model that answers in prose is still clarifying; keep the turn
		// alive instead of failing the conversation.
		return turnDecision{Status: statusClarifying, Reply: reply}, nil
	}
	switch decision.Status {
	case statusClarifying:
		if decision.Reply == "" {
			return turnDecision{}, fmt.Errorf("clarifying decision with empty reply")
		}
	case statusFinalized:
		if strings.TrimSpace(decision.Query) == "" {
			return turnDecision{}, fmt.Errorf("finalized decision with empty query")
		}
		decision.Query = strings.TrimSpace(decision.Query)
	default:
		return turnDecision{}, fmt.Errorf("unexpected decision status %q", decision.Status)
	}
	return decision, nil
}

func rejectionMessage(query string, verdict verifier.Verdict) string {
	info := strings.TrimSpace(verdict.Info)
	if info != "" && !strings.HasSuffix(info, ".") {
		info += "."
	}
	switch verdict.ReleaseStatus {
	case verifier.StatusUpcoming:
		if info != "" {
			info += " "
		}
		return fmt.Sprintf("The '%s' hasn't been released yet. %sWould you like to search for a currently available alternative, or search anyway?", query, info)
	case verifier.StatusRumored:
		if info != "" {
			info += " "
		}
		return fmt.Sprintf("The '%s' is only rumored and hasn't been officially announced. %sWould you like me to search anyway, or look for something else?", query, info)
	default:
		return fmt.Sprintf("I couldn't find reliable information about '%s'. Would you like me to search anyway, or refine the request?", query)
	}
}

var affirmatives = map[string]struct{}{
	"yes":        {},
	"yes please": {},
	"yeah":       {},
	"yep":        {},
	"sure":       {},
	"ok":         {},
	"okay":       {},
	"go ahead":   {},
	"do it":      {},
	"proceed":    {},
	"please do":  {},
}

// wantsSearchAnyway decides deterministically whether the user accepted the
// search-anyway offer. Only used while a pending blocked query exists.
func wantsSearchAnyway(message string) bool {
	normalized := strings.ToLower(strings.TrimSpace(message))
	normalized = strings.Trim(normalized, ".!?")
	if _, ok := affirmatives[normalized]; ok {
		return true
	}
	if strings.Contains(normalized, "search anyway") {
		return true
	}
	for _, word := range strings.Fields(normalized) {
		if strings.Trim(word, ".,!?") == "anyway" {
			return true
		}
	}
	return false
}

func (c *Coordinator) countTurn(kind string) {
	if c.metrics != nil {
		c.metrics.ChatTurns.WithLabelValues(kind).Inc()
	}
}

func (c *Coordinator) countMarketplace(source, outcome string) {
	if c.metrics != nil {
		c.metrics.MarketplaceRequests.WithLabelValues(source, outcome).Inc()
	}
}
