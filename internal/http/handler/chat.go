package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/drew-quote-core/server/internal/agent/model"
	errx "github.com/drew-quote-core/server/internal/core/error"
	"github.com/drew-quote-core/server/internal/http/middleware"
	logx "github.com/drew-quote-core/server/pkg/logger"
)

// TurnRunner executes one conversation turn.
type TurnRunner interface {
	Invoke(ctx context.Context, in model.TurnRequest) (*model.TurnResponse, error)
}

type ChatHandler struct {
	runner TurnRunner
	// configErr is reported on every request when the server is missing credentials.
	configErr error
}

// NewChatHandler returns a handler for runner. A nil runner requires configErr.
func NewChatHandler(runner TurnRunner, configErr error) *ChatHandler {
	if runner == nil && configErr == nil {
		configErr = errx.Config(errors.New("turn runner is not configured"))
	}
	return &ChatHandler{runner: runner, configErr: configErr}
}

// Chat handles POST /api/drew/chat.
func (h *ChatHandler) Chat(c *gin.Context) {
	logger := logx.With().Str("request_id", middleware.GetRequestID(c)).Logger()

	if h.configErr != nil {
		logger.Error().Err(h.configErr).Msg("chat rejected: server not configured")
		c.JSON(errx.StatusOf(h.configErr), gin.H{"error": h.configErr.Error()})
		return
	}

	var req model.TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errx.BadRequest(err).Error()})
		return
	}
	if strings.TrimSpace(req.UserMessage) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": errx.BadRequest(errors.New("userMessage is required")).Error()})
		return
	}

	resp, err := h.runner.Invoke(c.Request.Context(), req)
	if err != nil {
		status := errx.StatusOf(err)
		logger.Error().Err(err).Int("status", status).Msg("chat turn failed")
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	logger.Debug().
		Str("phase", string(resp.State.CurrentPhase())).
		Int("tool_calls", len(resp.ToolCalls)).
		Bool("low_confidence", resp.LowConfidence).
		Msg("chat turn complete")
	c.JSON(http.StatusOK, resp)
}
