package memory

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/shopscout/shopscout/internal/store"
	"github.com/shopscout/shopscout/provider"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Chat(ctx context.Context, messages []provider.Message) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeEmbedder) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

func newRecaller(t *testing.T, llm provider.Provider, dims int) (*Recaller, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewRecaller(llm, &store.Store{DB: db}, 5, 5, dims), mock
}

func TestRecallFormatsAndDedupes(t *testing.T) {
	r, mock := newRecaller(t, &fakeEmbedder{vec: []float32{0.1, 0.2}}, 2)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"content", "created_at", "distance"}).
		AddRow("mechanical keyboard", now, 0.1).
		AddRow("Mechanical Keyboard", now, 0.2).
		AddRow("gaming mouse", now, 0.3)
	mock.ExpectQuery(`SELECT content, created_at, embedding`).WillReturnRows(rows)

	got := r.Recall(context.Background(), "u1", "something for my desk")
	if !strings.HasPrefix(got, "Based on your search history, you've looked for: ") {
		t.Fatalf("got %q", got)
	}
	if strings.Count(got, "echanical keyboard") != 1 {
		t.Errorf("duplicate not collapsed: %q", got)
	}
	if !strings.Contains(got, "gaming mouse") {
		t.Errorf("missing hit: %q", got)
	}
}

func TestRecallSkipsMetaQuestions(t *testing.T) {
	r, _ := newRecaller(t, &fakeEmbedder{vec: []float32{0.1}}, 1)
	for _, q := range []string{
		"What did I search for yesterday?",
		"show me what I searched for",
		"the thing from before",
	} {
		if got := r.Recall(context.Background(), "u1", q); got != "" {
			t.Errorf("Recall(%q) = %q, want empty", q, got)
		}
	}
}

func TestRecallEmptyOnEmbedFailure(t *testing.T) {
	r, _ := newRecaller(t, &fakeEmbedder{err: errors.New("quota")}, 1)
	if got := r.Recall(context.Background(), "u1", "a new laptop"); got != "" {
		t.Errorf("got %q, want empty on embed failure", got)
	}
}

func TestRecallEmptyWhenNoHistory(t *testing.T) {
	r, mock := newRecaller(t, &fakeEmbedder{vec: []float32{0.1}}, 1)
	mock.ExpectQuery(`SELECT content, created_at, embedding`).
		WillReturnRows(sqlmock.NewRows([]string{"content", "created_at", "distance"}))

	if got := r.Recall(context.Background(), "u1", "a new laptop"); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestRecallerRejectsMismatchedDimensions(t *testing.T) {
	r, mock := newRecaller(t, &fakeEmbedder{vec: []float32{0.1, 0.2}}, 4)

	if got := r.Recall(context.Background(), "u1", "a new laptop"); got != "" {
		t.Errorf("got %q, want empty on dimension mismatch", got)
	}
	r.Remember(context.Background(), "m1", "u1", "a new laptop")
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("store touched despite mismatched vector: %v", err)
	}
}
