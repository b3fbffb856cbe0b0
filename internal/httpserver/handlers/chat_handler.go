package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/aixgo-dev/fincontext/internal/httpserver/responses"
	"github.com/aixgo-dev/fincontext/internal/identity"
)

// ChatHandler runs conversation turns.
type ChatHandler struct {
	service  ConversationService
	resolver *identity.Resolver
	log      zerolog.Logger
}

// NewChatHandler constructs the handler.
func NewChatHandler(service ConversationService, resolver *identity.Resolver, log zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		service:  service,
		resolver: resolver,
		log:      log.With().Str("handler", "chat").Logger(),
	}
}

// Chat handles POST /chat {message, identity}.
func (h *ChatHandler) Chat(c *gin.Context) {
	var req responses.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Abort(c, http.StatusBadRequest, responses.CodeInvalidRequest, "invalid request body")
		return
	}

	id, err := h.resolver.Resolve(c, req.Identity)
	if err != nil {
		responses.HandleError(c, err, "invalid identity")
		return
	}
	c.Set("identity", id)

	reply, err := h.service.Converse(c.Request.Context(), id, req.Message)
	if err != nil {
		h.log.Debug().Err(err).Str("identity", id).Msg("chat turn failed")
		responses.HandleError(c, err, "Error processing your request")
		return
	}

	c.JSON(http.StatusOK, responses.ChatResponse{
		Response: reply.Content,
		Identity: reply.Identity,
	})
}
