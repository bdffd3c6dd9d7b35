package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopscout/shopscout/internal/marketplace"
	"github.com/shopscout/shopscout/internal/transport"
)

type stubClient struct {
	listings []marketplace.Listing
	err      error
	gotQuery string
	gotLimit int
}

func (s *stubClient) Search(ctx context.Context, query string, limit int) ([]marketplace.Listing, error) {
	s.gotQuery = query
	s.gotLimit = limit
	return s.listings, s.err
}

func postJSON(t *testing.T, srv *httptest.Server, path string, body interface{}) *http.Response {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func TestSearchEndpointTagsPayload(t *testing.T) {
	client := &stubClient{listings: []marketplace.Listing{
		{Title: "Item", Price: "10.00 USD", URL: "https://ebay.example/1", Source: marketplace.SourceEBay},
	}}
	svc := &SearchService{Source: marketplace.SourceEBay, Client: client}
	e := newEcho("EBAY")
	svc.Routes(e)
	srv := httptest.NewServer(e)
	defer srv.Close()

	resp := postJSON(t, srv, "/search", transport.SearchRequest{Query: "ps5", Limit: 3})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out transport.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Kind != transport.KindListings || out.Source != marketplace.SourceEBay {
		t.Errorf("tags = kind=%q source=%q", out.Kind, out.Source)
	}
	if len(out.Listings) != 1 {
		t.Errorf("listings = %+v", out.Listings)
	}
	if client.gotQuery != "ps5" || client.gotLimit != 3 {
		t.Errorf("forwarded query=%q limit=%d", client.gotQuery, client.gotLimit)
	}
}

func TestSearchEndpointRejectsEmptyQuery(t *testing.T) {
	svc := &SearchService{Source: marketplace.SourceAmazon, Client: &stubClient{}}
	e := newEcho("AMAZON")
	svc.Routes(e)
	srv := httptest.NewServer(e)
	defer srv.Close()

	resp := postJSON(t, srv, "/search", transport.SearchRequest{Query: "  "})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSearchEndpointUpstreamFailure(t *testing.T) {
	svc := &SearchService{Source: marketplace.SourceEBay, Client: &stubClient{err: errors.New("upstream down")}}
	e := newEcho("EBAY")
	svc.Routes(e)
	srv := httptest.NewServer(e)
	defer srv.Close()

	resp := postJSON(t, srv, "/search", transport.SearchRequest{Query: "ps5"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
	var out map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["error"] == "" {
		t.Error("error envelope missing")
	}
}

func TestSearchEndpointEmptyResultsIsNotNull(t *testing.T) {
	svc := &SearchService{Source: marketplace.SourceEBay, Client: &stubClient{}}
	e := newEcho("EBAY")
	svc.Routes(e)
	srv := httptest.NewServer(e)
	defer srv.Close()

	resp := postJSON(t, srv, "/search", transport.SearchRequest{Query: "obscure thing"})
	defer resp.Body.Close()
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(raw["listings"]) != "[]" {
		t.Errorf("listings = %s, want []", raw["listings"])
	}
}

func TestHealthz(t *testing.T) {
	e := newEcho("EBAY")
	srv := httptest.NewServer(e)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}
