package rainforest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopscout/shopscout/config"
	"github.com/shopscout/shopscout/internal/marketplace"
	"github.com/shopscout/shopscout/utils"
)

const defaultEndpoint = "https://api.rainforestapi.com/request"

// Client searches Amazon through the Rainforest product-data API.
type Client struct {
	apiKey     string
	endpoint   string
	domain     string
	httpClient *http.Client
}

func NewClient(cfg config.RainforestConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	domain := cfg.Domain
	if domain == "" {
		domain = "amazon.com"
	}
	return &Client{
		apiKey:     cfg.APIKey,
		endpoint:   endpoint,
		domain:     domain,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Search(ctx context.Context, query string, limit int) ([]marketplace.Listing, error) {
	if limit < 1 {
		limit = 4
	}

	u := fmt.Sprintf("%s?api_key=%s&type=search&amazon_domain=%s&search_term=%s",
		c.endpoint, utils.UrlQuery(c.apiKey), utils.UrlQuery(c.domain), utils.UrlQuery(query))
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("amazon search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("amazon search: %s: %s", resp.Status, string(b))
	}

	var raw struct {
		SearchResults []struct {
			Title string `json:"title"`
			Price struct {
				Raw string `json:"raw"`
			} `json:"price"`
			Rating       float64 `json:"rating"`
			RatingsTotal int     `json:"ratings_total"`
			Link         string  `json:"link"`
			Image        string  `json:"image"`
		} `json:"search_results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("amazon search: decode: %w", err)
	}

	out := make([]marketplace.Listing, 0, limit)
	for _, item := range raw.SearchResults {
		if len(out) >= limit {
			break
		}
		if item.Title == "" || item.Link == "" {
			continue
		}
		rating := ""
		if item.Rating > 0 {
			rating = fmt.Sprintf("%.1f stars (%d reviews)", item.Rating, item.RatingsTotal)
		}
		out = append(out, marketplace.Listing{
			Title:    item.Title,
			Price:    item.Price.Raw,
			Rating:   rating,
			URL:      item.Link,
			ImageURL: item.Image,
			Source:   marketplace.SourceAmazon,
		})
	}
	return out, nil
}
