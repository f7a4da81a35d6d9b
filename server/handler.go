package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	contractx "github.com/6t3media/chatbot-backend/chat/contract"
)

// TurnHandler is the orchestration entrypoint the HTTP layer depends
// on.
type TurnHandler interface {
	HandleTurn(ctx context.Context, turn contractx.ChatTurn, emit contractx.Emit) error
}

type Handler struct {
	turns TurnHandler
}

func NewHandler(turns TurnHandler) *Handler {
	return &Handler{turns: turns}
}

type chatRequest struct {
	Message string              `json:"message"`
	History []contractx.Message `json:"history"`
}

// HandleChat serves POST /api/chat. The response is a chunked
// text/plain byte stream on every path: streamed model tokens on the
// direct branch, one confirmation or apology chunk otherwise. Each
// fragment is flushed as soon as it is produced.
func (h *Handler) HandleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	turn, err := contractx.NewChatTurn(req.Message, req.History)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	emit := func(fragment string) error {
		if _, werr := c.Writer.WriteString(fragment); werr != nil {
			return werr
		}
		c.Writer.Flush()
		return nil
	}

	if terr := h.turns.HandleTurn(c.Request.Context(), turn, emit); terr != nil {
		// Transport failure only: the caller is gone.
		log.Debug().Err(terr).Msg("chat stream aborted")
	}
}

// HandleHealth reports process liveness.
func (h *Handler) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "API is running"})
}
