package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/aixgo-dev/fincontext/internal/httpserver/responses"
	"github.com/aixgo-dev/fincontext/internal/identity"
	"github.com/aixgo-dev/fincontext/internal/spreadsheet"
)

const uploadMessage = "File processed successfully. The AI is ready to answer questions about your financial data."

// multipartOverhead is the slack allowed above the file limit for
// boundaries and other form fields.
const multipartOverhead = 1 << 20

// UploadHandler accepts spreadsheet uploads.
type UploadHandler struct {
	service  ConversationService
	resolver *identity.Resolver
	limits   Limits
	log      zerolog.Logger
}

// NewUploadHandler constructs the handler.
func NewUploadHandler(service ConversationService, resolver *identity.Resolver, limits Limits, log zerolog.Logger) *UploadHandler {
	return &UploadHandler{
		service:  service,
		resolver: resolver,
		limits:   limits,
		log:      log.With().Str("handler", "upload").Logger(),
	}
}

// Upload handles POST /upload (multipart: file, identity). The file is
// parsed in memory and never written to disk.
func (h *UploadHandler) Upload(c *gin.Context) {
	if h.limits.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.limits.MaxUploadBytes+multipartOverhead)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			responses.Abort(c, http.StatusRequestEntityTooLarge, responses.CodeTooLarge, "File is too large")
			return
		}
		responses.Abort(c, http.StatusBadRequest, responses.CodeInvalidRequest, "No file uploaded")
		return
	}
	if h.limits.MaxUploadBytes > 0 && fh.Size > h.limits.MaxUploadBytes {
		responses.Abort(c, http.StatusRequestEntityTooLarge, responses.CodeTooLarge, "File is too large")
		return
	}

	id, err := h.resolver.Resolve(c, "")
	if err != nil {
		responses.HandleError(c, err, "invalid identity")
		return
	}
	c.Set("identity", id)

	f, err := fh.Open()
	if err != nil {
		responses.HandleParseError(c, err, "Error processing file")
		return
	}
	defer func() { _ = f.Close() }()

	ds, err := spreadsheet.Parse(fh.Filename, f, spreadsheet.Options{MaxRows: h.limits.MaxRows})
	if err != nil {
		h.log.Warn().Err(err).Str("identity", id).Str("file", fh.Filename).Msg("failed to parse upload")
		responses.HandleParseError(c, err, "Error processing file")
		return
	}

	res, err := h.service.Ingest(c.Request.Context(), id, ds)
	if err != nil {
		responses.HandleError(c, err, "Error processing file")
		return
	}

	c.JSON(http.StatusOK, responses.UploadResponse{
		Message:      uploadMessage,
		DataReceived: true,
		Identity:     res.Identity,
		Rows:         res.Rows,
		Columns:      res.Columns,
	})
}
