// Package responses holds the HTTP payloads and the error mapping shared by
// all handlers.
package responses

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aixgo-dev/fincontext/internal/conversation"
	"github.com/aixgo-dev/fincontext/internal/identity"
	"github.com/aixgo-dev/fincontext/internal/spreadsheet"
	"github.com/aixgo-dev/fincontext/pkg/session"
)

// Machine-readable error codes.
const (
	CodeNoSession        = "no_session"
	CodeInvalidRequest   = "invalid_request"
	CodeNotFound         = "not_found"
	CodeCompletionFailed = "completion_failed"
	CodeParseFailed      = "parse_failed"
	CodeIngestFailed     = "ingest_failed"
	CodeTooLarge         = "too_large"
	CodeInternal         = "internal_error"
)

// NoSessionMessage is returned when chatting before uploading data.
const NoSessionMessage = "No financial data uploaded for this session. Please upload data first."

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HandleError maps err to a status and error body and aborts the request.
// message is used for failures whose detail should not reach the client.
func HandleError(c *gin.Context, err error, message string) {
	status, resp := classify(err, message)
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, resp)
}

// Abort replies with an error built at the route layer.
func Abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: message, Code: code})
}

func classify(err error, message string) (int, ErrorResponse) {
	var (
		completionErr *conversation.CompletionFailedError
		ingestErr     *conversation.IngestionPartialFailureError
	)

	switch {
	case errors.Is(err, conversation.ErrNoSession):
		return http.StatusBadRequest, ErrorResponse{Error: NoSessionMessage, Code: CodeNoSession}
	case errors.Is(err, conversation.ErrInvalidIdentity),
		errors.Is(err, conversation.ErrEmptyMessage),
		errors.Is(err, conversation.ErrNilDataset),
		errors.Is(err, identity.ErrMissing),
		errors.Is(err, identity.ErrMalformed):
		return http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: CodeInvalidRequest}
	case errors.Is(err, conversation.ErrUnknownIdentity):
		return http.StatusNotFound, ErrorResponse{Error: message, Code: CodeNotFound}
	case errors.As(err, &completionErr):
		return http.StatusInternalServerError, ErrorResponse{Error: message, Code: CodeCompletionFailed}
	case errors.As(err, &ingestErr):
		return http.StatusInternalServerError, ErrorResponse{Error: message, Code: CodeIngestFailed}
	case errors.Is(err, spreadsheet.ErrUnsupportedFormat),
		errors.Is(err, spreadsheet.ErrEmptySheet),
		errors.Is(err, spreadsheet.ErrSheetNotFound),
		errors.Is(err, spreadsheet.ErrTooManyRows):
		return http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: CodeParseFailed}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: message, Code: CodeInternal}
	}
}

// UploadResponse is returned by POST /upload.
type UploadResponse struct {
	Message      string   `json:"message"`
	DataReceived bool     `json:"dataReceived"`
	Identity     string   `json:"identity"`
	Rows         int      `json:"rows"`
	Columns      []string `json:"columns"`
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message  string `json:"message"`
	Identity string `json:"identity"`
}

// ChatResponse is returned by POST /chat.
type ChatResponse struct {
	Response string `json:"response"`
	Identity string `json:"identity"`
}

// DatasetResponse is returned by GET /financial-data/:identity. Data keeps
// the records in column order.
type DatasetResponse struct {
	Data     json.RawMessage `json:"data"`
	Identity string          `json:"identity"`
	Columns  []string        `json:"columns"`
	Source   string          `json:"source,omitempty"`
}

// MessageResponse is one conversation message.
type MessageResponse struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Kind      string    `json:"kind"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryResponse is returned by GET /history/:identity.
type HistoryResponse struct {
	Identity string            `json:"identity"`
	Messages []MessageResponse `json:"messages"`
	Total    int               `json:"total"`
}

// FromMessages maps stored messages to their payloads.
func FromMessages(msgs []session.Message) []MessageResponse {
	out := make([]MessageResponse, len(msgs))
	for i, m := range msgs {
		out[i] = MessageResponse{
			ID:        m.ID,
			Role:      string(m.Role),
			Kind:      string(m.Kind),
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		}
	}
	return out
}

// HandleParseError is HandleError for spreadsheet parsing: unexpected
// failures are reported as parse_failed rather than internal_error.
func HandleParseError(c *gin.Context, err error, message string) {
	status, resp := classify(err, message)
	if status == http.StatusInternalServerError {
		resp.Code = CodeParseFailed
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, resp)
}
