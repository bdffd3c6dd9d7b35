package transport

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopscout/shopscout/config"
	"github.com/shopscout/shopscout/internal/marketplace"
	"github.com/shopscout/shopscout/internal/verifier"
)

// Wire types shared by the agent services and this client. Every payload
// carries an explicit kind tag so a mismatched endpoint fails loudly instead
// of half-decoding.
type VerifyRequest struct {
	Product       string `json:"product"`
	ReferenceDate string `json:"reference_date,omitempty"`
}

type VerifyResponse struct {
	Kind    string           `json:"kind"`
	Verdict verifier.Verdict `json:"verdict"`
}

type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type SearchResponse struct {
	Kind     string                `json:"kind"`
	Source   string                `json:"source"`
	Listings []marketplace.Listing `json:"listings"`
}

const (
	KindVerdict  = "verdict"
	KindListings = "listings"
)

// AgentClient talks to the research, eBay and Amazon agent services.
type AgentClient struct {
	http        *HTTPClient
	researchURL string
	ebayURL     string
	amazonURL   string
	resultLimit int
}

func NewAgentClient(cfg config.AgentsConfig) *AgentClient {
	limit := cfg.ResultLimit
	if limit < 1 {
		limit = 4
	}
	return &AgentClient{
		http:        NewHTTPClient(cfg.Timeout, cfg.Retries, cfg.Backoff),
		researchURL: strings.TrimRight(cfg.ResearchURL, "/"),
		ebayURL:     strings.TrimRight(cfg.EBayURL, "/"),
		amazonURL:   strings.TrimRight(cfg.AmazonURL, "/"),
		resultLimit: limit,
	}
}

// VerifyProduct asks the research agent whether the product is purchasable.
// Transport failures yield a closed unknown verdict alongside the error.
func (c *AgentClient) VerifyProduct(ctx context.Context, product string, referenceDate time.Time) (verifier.Verdict, error) {
	req := VerifyRequest{Product: product, ReferenceDate: referenceDate.Format(time.RFC3339)}
	var resp VerifyResponse
	if err := c.http.DoJSON(ctx, http.MethodPost, c.researchURL+"/verify_product", nil, req, &resp); err != nil {
		return verifier.Verdict{
			Exists:        false,
			Info:          "Could not verify availability.",
			Confidence:    verifier.ConfidenceLow,
			ReleaseStatus: verifier.StatusUnknown,
		}, fmt.Errorf("research agent: %w", err)
	}
	if resp.Kind != KindVerdict {
		return verifier.Verdict{
			Exists:        false,
			Info:          "Could not verify availability.",
			Confidence:    verifier.ConfidenceLow,
			ReleaseStatus: verifier.StatusUnknown,
		}, fmt.Errorf("research agent: unexpected payload kind %q", resp.Kind)
	}
	return resp.Verdict, nil
}

func (c *AgentClient) SearchEBay(ctx context.Context, query string) ([]marketplace.Listing, error) {
	return c.searchAgent(ctx, c.ebayURL, marketplace.SourceEBay, query)
}

func (c *AgentClient) SearchAmazon(ctx context.Context, query string) ([]marketplace.Listing, error) {
	return c.searchAgent(ctx, c.amazonURL, marketplace.SourceAmazon, query)
}

func (c *AgentClient) searchAgent(ctx context.Context, baseURL, source, query string) ([]marketplace.Listing, error) {
	req := SearchRequest{Query: query, Limit: c.resultLimit}
	var resp SearchResponse
	if err := c.http.DoJSON(ctx, http.MethodPost, baseURL+"/search", nil, req, &resp); err != nil {
		return nil, fmt.Errorf("%s agent: %w", source, err)
	}
	if resp.Kind != KindListings || resp.Source != source {
		return nil, fmt.Errorf("%s agent: unexpected payload kind=%q source=%q", source, resp.Kind, resp.Source)
	}
	return resp.Listings, nil
}
