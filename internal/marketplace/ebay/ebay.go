package ebay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopscout/shopscout/config"
	"github.com/shopscout/shopscout/internal/marketplace"
)

const searchEndpoint = "/buy/browse/v1/item_summary/search"

// Client searches the eBay Browse API using an OAuth2 client-credentials
// token. The token is cached and refreshed transparently on expiry.
type Client struct {
	clientID      string
	clientSecret  string
	baseURL       string
	tokenURL      string
	marketplaceID string
	httpClient    *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewClient(cfg config.EBayConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	marketplaceID := cfg.MarketplaceID
	if marketplaceID == "" {
		marketplaceID = "EBAY_US"
	}
	return &Client{
		clientID:      cfg.ClientID,
		clientSecret:  cfg.ClientSecret,
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		tokenURL:      cfg.TokenURL,
		marketplaceID: marketplaceID,
		httpClient:    &http.Client{Timeout: timeout},
	}
}

// Search issues one Browse API search and maps the summaries into normalized
// listings. Malformed entries are dropped rather than failing the call.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]marketplace.Listing, error) {
	if limit < 1 {
		limit = 4
	}
	if limit > 200 {
		limit = 200
	}

	token, err := c.token(ctx)
	if err != nil {
		return nil, fmt.Errorf("ebay auth: %w", err)
	}

	resp, err := c.doSearch(ctx, token, query, limit)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		// Token revoked upstream before its advertised expiry; refresh once.
		token, err = c.refreshToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("ebay auth: %w", err)
		}
		resp, err = c.doSearch(ctx, token, query, limit)
		if err != nil {
			return nil, err
		}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ebay search: %s: %s", resp.Status, string(b))
	}

	var raw struct {
		ItemSummaries []struct {
			Title string `json:"title"`
			Price struct {
				Value    string `json:"value"`
				Currency string `json:"currency"`
			} `json:"price"`
			Condition  string `json:"condition"`
			ItemWebURL string `json:"itemWebUrl"`
			Image      struct {
				ImageURL string `json:"imageUrl"`
			} `json:"image"`
		} `json:"itemSummaries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("ebay search: decode: %w", err)
	}

	out := make([]marketplace.Listing, 0, limit)
	for _, item := range raw.ItemSummaries {
		if len(out) >= limit {
			break
		}
		if item.Title == "" || item.ItemWebURL == "" {
			continue
		}
		out = append(out, marketplace.Listing{
			Title:     item.Title,
			Price:     strings.TrimSpace(item.Price.Value + " " + item.Price.Currency),
			Condition: item.Condition,
			URL:       item.ItemWebURL,
			ImageURL:  item.Image.ImageURL,
			Source:    marketplace.SourceEBay,
		})
	}
	return out, nil
}

func (c *Client) doSearch(ctx context.Context, token, query string, limit int) (*http.Response, error) {
	u := fmt.Sprintf("%s%s?q=%s&limit=%d", c.baseURL, searchEndpoint, url.QueryEscape(query), limit)
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-EBAY-C-MARKETPLACE-ID", c.marketplaceID)
	req.Header.Set("Content-Type", "application/json")
	return c.httpClient.Do(req)
}

// token returns the cached access token, fetching a fresh one when missing
// or within a minute of expiry.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.accessToken != "" && time.Until(c.tokenExpiry) > time.Minute {
		tok := c.accessToken
		c.mu.Unlock()
		return tok, nil
	}
	c.mu.Unlock()
	return c.refreshToken(ctx)
}

func (c *Client) refreshToken(ctx context.Context) (string, error) {
	credentials := base64.StdEncoding.EncodeToString([]byte(c.clientID + ":" + c.clientSecret))
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", "https://api.ebay.com/oauth/api_scope")

	req, err := http.NewRequestWithContext(ctx, "POST", c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+credentials)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("token request: %s: %s", resp.Status, string(b))
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", err
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token request: empty access_token")
	}

	c.mu.Lock()
	c.accessToken = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	c.mu.Unlock()
	return tok.AccessToken, nil
}
