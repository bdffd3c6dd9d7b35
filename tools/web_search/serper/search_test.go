package serper

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDiscoverParsesKnowledgeGraphAndOrganic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-API-KEY"); got != "key" {
			t.Errorf("X-API-KEY = %q", got)
		}
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body["q"] != "steam deck release" {
			t.Errorf("q = %v", body["q"])
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"knowledgeGraph": map[string]interface{}{
				"title":       "Steam Deck",
				"description": "Handheld gaming computer by Valve.",
			},
			"organic": []map[string]interface{}{
				{"title": "Steam Deck review", "link": "https://x.example/a", "snippet": "Released February 2022."},
				{"title": "Specs", "link": "https://x.example/b", "snippet": "Custom APU."},
			},
		})
	}))
	defer srv.Close()

	s := Search{ApiKey: "key", Endpoint: srv.URL}
	results, err := s.Discover(context.Background(), "steam deck release", 2)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("no results")
	}
	if results[0].Title != "Steam Deck" || results[0].Snippet == "" {
		t.Errorf("knowledge graph not first: %+v", results[0])
	}
}

func TestDiscoverErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	s := Search{ApiKey: "key", Endpoint: srv.URL}
	if _, err := s.Discover(context.Background(), "anything", 5); err == nil {
		t.Fatal("expected error on non-200")
	}
}
