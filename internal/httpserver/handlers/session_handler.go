package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/aixgo-dev/fincontext/internal/httpserver/responses"
	"github.com/aixgo-dev/fincontext/internal/identity"
)

// SessionHandler serves the read side of a session: its dataset and its
// conversation history.
type SessionHandler struct {
	service  ConversationService
	resolver *identity.Resolver
	limits   Limits
	log      zerolog.Logger
}

// NewSessionHandler constructs the handler.
func NewSessionHandler(service ConversationService, resolver *identity.Resolver, limits Limits, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		service:  service,
		resolver: resolver,
		limits:   limits,
		log:      log.With().Str("handler", "session").Logger(),
	}
}

// Dataset handles GET /financial-data/:identity
func (h *SessionHandler) Dataset(c *gin.Context) {
	id, err := h.resolver.Resolve(c, "")
	if err != nil {
		responses.HandleError(c, err, "invalid identity")
		return
	}
	c.Set("identity", id)

	ds, err := h.service.Dataset(c.Request.Context(), id)
	if err != nil {
		responses.HandleError(c, err, "No financial data found")
		return
	}

	data, err := ds.OrderedJSON()
	if err != nil {
		responses.HandleError(c, err, "failed to encode financial data")
		return
	}

	c.JSON(http.StatusOK, responses.DatasetResponse{
		Data:     data,
		Identity: id,
		Columns:  ds.Columns,
		Source:   ds.Source,
	})
}

// History handles GET /history/:identity?limit=N
func (h *SessionHandler) History(c *gin.Context) {
	id, err := h.resolver.Resolve(c, "")
	if err != nil {
		responses.HandleError(c, err, "invalid identity")
		return
	}
	c.Set("identity", id)

	msgs, total, err := h.service.History(c.Request.Context(), id, h.limit(c.Query("limit")))
	if err != nil {
		responses.HandleError(c, err, "No conversation found")
		return
	}

	c.JSON(http.StatusOK, responses.HistoryResponse{
		Identity: id,
		Messages: responses.FromMessages(msgs),
		Total:    total,
	})
}

func (h *SessionHandler) limit(raw string) int {
	limit := h.limits.DefaultHistory
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		limit = n
	}
	if h.limits.MaxHistory > 0 && limit > h.limits.MaxHistory {
		limit = h.limits.MaxHistory
	}
	return limit
}
