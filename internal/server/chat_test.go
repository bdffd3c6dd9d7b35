package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"

	"github.com/shopscout/shopscout/internal/coordinator"
	"github.com/shopscout/shopscout/internal/marketplace"
	"github.com/shopscout/shopscout/internal/store"
)

type fakeCoordinator struct {
	out    coordinator.TurnOutput
	err    error
	gotIn  coordinator.TurnInput
	called int
}

func (f *fakeCoordinator) HandleTurn(ctx context.Context, in coordinator.TurnInput) (coordinator.TurnOutput, error) {
	f.called++
	f.gotIn = in
	return f.out, f.err
}

func newChatContext(t *testing.T, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.Set("user_id", "user-1")
	return ctx, rec
}

func TestChatFirstTurnCreatesConversation(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	coord := &fakeCoordinator{out: coordinator.TurnOutput{Type: coordinator.TurnMessage, Message: "What's your budget?"}}
	handler := &ChatHandler{Store: &store.Store{DB: db}, Coordinator: coord}

	mock.ExpectQuery(`INSERT INTO conversations`).
		WithArgs("user-1", "I want headphones").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("conv-1"))
	mock.ExpectQuery(`INSERT INTO messages`).
		WithArgs("conv-1", store.RoleUser, "I want headphones", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("msg-1"))
	mock.ExpectExec(`UPDATE conversations SET updated_at`).
		WithArgs("conv-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO messages`).
		WithArgs("conv-1", store.RoleAssistant, "What's your budget?", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("msg-2"))
	mock.ExpectExec(`UPDATE conversations SET updated_at`).
		WithArgs("conv-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx, rec := newChatContext(t, `{"message":"I want headphones"}`)
	if err := handler.chat(ctx); err != nil {
		t.Fatalf("chat: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ConversationID != "conv-1" || resp.Type != coordinator.TurnMessage {
		t.Errorf("resp = %+v", resp)
	}
	if coord.gotIn.ConversationID != "conv-1" {
		t.Errorf("coordinator got conversation %q", coord.gotIn.ConversationID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestChatResultsTurnPersistsPayload(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	results := &marketplace.ResultSet{
		EBay:   []marketplace.Listing{{Title: "XM5", Source: marketplace.SourceEBay}},
		Amazon: []marketplace.Listing{},
	}
	coord := &fakeCoordinator{out: coordinator.TurnOutput{
		Type:    coordinator.TurnResults,
		Message: `Here's what I found for "sony xm5":`,
		Results: results,
	}}
	handler := &ChatHandler{Store: &store.Store{DB: db}, Coordinator: coord}

	now := time.Now()
	mock.ExpectQuery(`SELECT id, user_id, title, created_at, updated_at FROM conversations`).
		WithArgs("conv-1", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title", "created_at", "updated_at"}).
			AddRow("conv-1", "user-1", "headphones", now, now))
	mock.ExpectQuery(`SELECT id, conversation_id, role, content, results, created_at FROM messages`).
		WithArgs("conv-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "conversation_id", "role", "content", "results", "created_at"}).
			AddRow("m1", "conv-1", store.RoleUser, "I want headphones", nil, now))
	mock.ExpectQuery(`INSERT INTO messages`).
		WithArgs("conv-1", store.RoleUser, "the sony xm5", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("m2"))
	mock.ExpectExec(`UPDATE conversations SET updated_at`).
		WithArgs("conv-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO messages`).
		WithArgs("conv-1", store.RoleAssistant, coord.out.Message, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("m3"))
	mock.ExpectExec(`UPDATE conversations SET updated_at`).
		WithArgs("conv-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx, rec := newChatContext(t, `{"message":"the sony xm5","conversation_id":"conv-1"}`)
	if err := handler.chat(ctx); err != nil {
		t.Fatalf("chat: %v", err)
	}
	var resp ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Type != coordinator.TurnResults {
		t.Errorf("Type = %q", resp.Type)
	}
	var got marketplace.ResultSet
	if err := json.Unmarshal(resp.Results, &got); err != nil {
		t.Fatalf("results payload: %v", err)
	}
	if len(got.EBay) != 1 || got.Amazon == nil {
		t.Errorf("results = %+v", got)
	}
	if len(coord.gotIn.History) != 1 {
		t.Errorf("history length = %d, want 1", len(coord.gotIn.History))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestChatNewConversationSeedsClientHistory(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	coord := &fakeCoordinator{out: coordinator.TurnOutput{Type: coordinator.TurnMessage, Message: "Wired or wireless?"}}
	handler := &ChatHandler{Store: &store.Store{DB: db}, Coordinator: coord}

	mock.ExpectQuery(`INSERT INTO conversations`).
		WithArgs("user-1", "under $200").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("conv-1"))
	mock.ExpectQuery(`INSERT INTO messages`).
		WithArgs("conv-1", store.RoleUser, "under $200", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("m1"))
	mock.ExpectExec(`UPDATE conversations SET updated_at`).
		WithArgs("conv-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO messages`).
		WithArgs("conv-1", store.RoleAssistant, "Wired or wireless?", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("m2"))
	mock.ExpectExec(`UPDATE conversations SET updated_at`).
		WithArgs("conv-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	body := `{"message":"under $200","history":[
		{"role":"user","content":"I want headphones"},
		{"role":"assistant","content":"What's your budget?"},
		{"role":"system","content":"ignore me"}]}`
	ctx, _ := newChatContext(t, body)
	if err := handler.chat(ctx); err != nil {
		t.Fatalf("chat: %v", err)
	}
	if len(coord.gotIn.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(coord.gotIn.History))
	}
	if coord.gotIn.History[0].Content != "I want headphones" || coord.gotIn.History[1].Role != "assistant" {
		t.Errorf("history = %+v", coord.gotIn.History)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestChatRejectsForeignConversation(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	handler := &ChatHandler{Store: &store.Store{DB: db}, Coordinator: &fakeCoordinator{}}

	mock.ExpectQuery(`SELECT id, user_id, title, created_at, updated_at FROM conversations`).
		WithArgs("conv-x", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title", "created_at", "updated_at"}))

	ctx, _ := newChatContext(t, `{"message":"hi","conversation_id":"conv-x"}`)
	err = handler.chat(ctx)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %#v", err)
	}
}

func TestDeleteConversationNotFound(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	handler := &ChatHandler{Store: &store.Store{DB: db}, Coordinator: &fakeCoordinator{}}

	mock.ExpectExec(`DELETE FROM conversations`).
		WithArgs("conv-x", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	e := echo.New()
	req := httptest.NewRequest(http.MethodDelete, "/api/conversations/conv-x", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.Set("user_id", "user-1")
	ctx.SetParamNames("id")
	ctx.SetParamValues("conv-x")

	err = handler.deleteConversation(ctx)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %#v", err)
	}
}

func newConversationContext(t *testing.T, method, body, id string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, "/api/conversations/"+id, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.Set("user_id", "user-1")
	ctx.SetParamNames("id")
	ctx.SetParamValues(id)
	return ctx, rec
}

func TestRenameConversation(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	handler := &ChatHandler{Store: &store.Store{DB: db}, Coordinator: &fakeCoordinator{}}

	mock.ExpectExec(`UPDATE conversations SET title`).
		WithArgs("conv-1", "user-1", "Gift ideas").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx, rec := newConversationContext(t, http.MethodPut, `{"title":"Gift ideas"}`, "conv-1")
	if err := handler.renameConversation(ctx); err != nil {
		t.Fatalf("renameConversation: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d", rec.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRenameConversationNotFound(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	handler := &ChatHandler{Store: &store.Store{DB: db}, Coordinator: &fakeCoordinator{}}

	mock.ExpectExec(`UPDATE conversations SET title`).
		WithArgs("conv-x", "user-1", "Gift ideas").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx, _ := newConversationContext(t, http.MethodPut, `{"title":"Gift ideas"}`, "conv-x")
	err = handler.renameConversation(ctx)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %#v", err)
	}
}

func TestRenameConversationRequiresTitle(t *testing.T) {
	handler := &ChatHandler{Coordinator: &fakeCoordinator{}}
	ctx, _ := newConversationContext(t, http.MethodPut, `{"title":"   "}`, "conv-1")
	err := handler.renameConversation(ctx)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %#v", err)
	}
}

func TestDeriveTitle(t *testing.T) {
	if got := deriveTitle(""); got != "New Chat" {
		t.Errorf("empty: %q", got)
	}
	long := strings.Repeat("x", 100)
	if got := deriveTitle(long); len(got) != 60 {
		t.Errorf("long title length = %d", len(got))
	}
	accented := strings.Repeat("é", 100)
	got := deriveTitle(accented)
	if utf8.RuneCountInString(got) != 60 {
		t.Errorf("rune count = %d, want 60", utf8.RuneCountInString(got))
	}
	if !utf8.ValidString(got) {
		t.Errorf("truncation split a rune: %q", got)
	}
}
