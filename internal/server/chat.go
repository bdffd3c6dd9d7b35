package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/shopscout/shopscout/internal/coordinator"
	"github.com/shopscout/shopscout/internal/memory"
	"github.com/shopscout/shopscout/internal/store"
	"github.com/shopscout/shopscout/provider"
)

// TurnHandler is the coordinator surface the chat endpoint depends on.
type TurnHandler interface {
	HandleTurn(ctx context.Context, in coordinator.TurnInput) (coordinator.TurnOutput, error)
}

type ChatHandler struct {
	Store       *store.Store
	Coordinator TurnHandler
	Recaller    *memory.Recaller
	Logger      *log.Logger
}

func (h *ChatHandler) logf(format string, args ...interface{}) {
	if h.Logger != nil {
		h.Logger.Printf(format, args...)
	}
}

func (h *ChatHandler) Register(g *echo.Group, secret []byte) {
	// g is /api; all chat routes require auth
	g.POST("/chat", h.chat, authMiddleware(secret))
	conv := g.Group("/conversations", authMiddleware(secret))
	conv.GET("", h.listConversations)
	conv.GET("/:id/messages", h.listMessages)
	conv.PUT("/:id", h.renameConversation)
	conv.DELETE("/:id", h.deleteConversation)
}

func (h *ChatHandler) chat(c echo.Context) error {
	userID := c.Get("user_id").(string)
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	turnID := uuid.NewString()

	conversationID := req.ConversationID
	var history []provider.Message
	if conversationID == "" {
		for _, turn := range req.History {
			if turn.Role != store.RoleUser && turn.Role != store.RoleAssistant {
				continue
			}
			history = append(history, provider.Message{Role: turn.Role, Content: turn.Content})
		}
		id, err := h.Store.CreateConversation(ctx, userID, deriveTitle(req.Message))
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		conversationID = id
	} else {
		if _, err := h.Store.GetConversation(ctx, conversationID, userID); err != nil {
			if err == sql.ErrNoRows {
				return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
			}
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		msgs, err := h.Store.ListMessages(ctx, conversationID)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		for _, m := range msgs {
			history = append(history, provider.Message{Role: m.Role, Content: m.Content})
		}
	}

	recallContext := ""
	if h.Recaller != nil && strings.TrimSpace(req.Message) != "" {
		recallContext = h.Recaller.Recall(ctx, userID, req.Message)
	}

	var userMessageID string
	if strings.TrimSpace(req.Message) != "" {
		id, err := h.Store.AppendMessage(ctx, conversationID, store.RoleUser, req.Message, nil)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		userMessageID = id
	}

	out, err := h.Coordinator.HandleTurn(ctx, coordinator.TurnInput{
		ConversationID: conversationID,
		Message:        req.Message,
		History:        history,
		RecallContext:  recallContext,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	var results json.RawMessage
	if out.Results != nil {
		b, err := json.Marshal(out.Results)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		results = b
	}
	if _, err := h.Store.AppendMessage(ctx, conversationID, store.RoleAssistant, out.Message, results); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	// Only messages that produced listings are worth remembering.
	if h.Recaller != nil && userMessageID != "" && out.Type == coordinator.TurnResults {
		h.Recaller.Remember(ctx, userMessageID, userID, req.Message)
	}
	h.logf("turn %s conversation=%s type=%s", turnID, conversationID, out.Type)

	return c.JSON(http.StatusOK, ChatResponse{
		Type:           out.Type,
		Message:        out.Message,
		ConversationID: conversationID,
		Results:        results,
	})
}

func (h *ChatHandler) listConversations(c echo.Context) error {
	userID := c.Get("user_id").(string)
	convs, err := h.Store.ListConversations(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]ConversationResponse, 0, len(convs))
	for _, conv := range convs {
		out = append(out, ConversationResponse{
			ID:        conv.ID,
			Title:     conv.Title,
			CreatedAt: conv.CreatedAt,
			UpdatedAt: conv.UpdatedAt,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ChatHandler) listMessages(c echo.Context) error {
	userID := c.Get("user_id").(string)
	conversationID := c.Param("id")
	ctx := c.Request().Context()
	if _, err := h.Store.GetConversation(ctx, conversationID, userID); err != nil {
		if err == sql.ErrNoRows {
			return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	msgs, err := h.Store.ListMessages(ctx, conversationID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MessageResponse{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			Results:   m.Results,
			CreatedAt: m.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ChatHandler) renameConversation(c echo.Context) error {
	userID := c.Get("user_id").(string)
	var req RenameConversationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title required")
	}
	if err := h.Store.RenameConversation(c.Request().Context(), c.Param("id"), userID, title); err != nil {
		if err == sql.ErrNoRows {
			return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *ChatHandler) deleteConversation(c echo.Context) error {
	userID := c.Get("user_id").(string)
	if err := h.Store.DeleteConversation(c.Request().Context(), c.Param("id"), userID); err != nil {
		if err == sql.ErrNoRows {
			return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func deriveTitle(message string) string {
	title := strings.TrimSpace(message)
	if title == "" {
		return "New Chat"
	}
	const max = 60
	if r := []rune(title); len(r) > max {
		title = string(r[:max])
	}
	return title
}
