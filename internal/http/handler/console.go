package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"opsdesk.app/console/common/logger"
	"opsdesk.app/console/internal/console"
	"opsdesk.app/console/internal/display"
)

// ConsoleService is the session-facing surface the handler consumes.
type ConsoleService interface {
	Send(ctx context.Context, sessionID string, input console.Input) (console.Outcome, error)
	History(ctx context.Context, sessionID string) ([]display.Message, error)
}

type ConsoleHandler struct {
	svc ConsoleService
}

func NewConsoleHandler(svc ConsoleService) *ConsoleHandler {
	return &ConsoleHandler{svc: svc}
}

type sendRequest struct {
	Text     string `json:"text" binding:"required"`
	ImageB64 string `json:"image_base64"`
}

// Send runs one exchange: the operator's text (plus optional image) in,
// ordered display messages out.
func (h *ConsoleHandler) Send(c *gin.Context) {
	sessionID := c.Param("session")

	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}

	ctx := logger.WithLogFields(c.Request.Context(), logger.LogFields{
		SessionID: &sessionID,
		Component: "console.http",
	})

	out, err := h.svc.Send(ctx, sessionID, console.Input{
		Text:     req.Text,
		ImageB64: req.ImageB64,
	})
	if errors.Is(err, console.ErrSessionBusy) {
		c.JSON(http.StatusConflict, gin.H{"error": "an exchange is already in progress for this session"})
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "exchange failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"state":    out.State.String(),
		"turns":    out.Turns,
		"messages": out.Messages,
	})
}

// History returns the session's displayed messages in order.
func (h *ConsoleHandler) History(c *gin.Context) {
	sessionID := c.Param("session")

	msgs, err := h.svc.History(c.Request.Context(), sessionID)
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "loading history failed", "session_id", sessionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
