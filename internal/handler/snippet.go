package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/codether/codether/internal/apperror"
	"github.com/codether/codether/internal/model"
	"github.com/codether/codether/internal/service"
)

// SnippetHandler exposes snippet create/read/update over JSON.
//
// SECRET TRANSPORT:
// View secrets arrive in the X-View-Secret header (or the viewSecret query
// parameter, for plain links). Edit secrets only ever travel in request
// bodies. Secrets never appear in responses.
type SnippetHandler struct {
	svc      *service.SnippetService
	maxBytes int64
	logger   *slog.Logger
}

func NewSnippetHandler(svc *service.SnippetService, maxBytes int64, logger *slog.Logger) *SnippetHandler {
	return &SnippetHandler{svc: svc, maxBytes: maxBytes, logger: logger}
}

type createRequest struct {
	Language   string `json:"language"`
	Content    string `json:"content"`
	ViewSecret string `json:"viewSecret,omitempty"`
	EditSecret string `json:"editSecret,omitempty"`
	Author     string `json:"author,omitempty"`
}

type updateRequest struct {
	EditSecret string `json:"editSecret"`
	Content    string `json:"content"`
}

// snippetResponse is the wire shape for a snippet with its content. The
// model itself never serializes hashes or the blob key; content rides
// alongside.
type snippetResponse struct {
	model.Snippet
	Content string `json:"content"`
}

func viewResponse(v *service.SnippetView) snippetResponse {
	return snippetResponse{Snippet: v.Snippet, Content: string(v.Content)}
}

// HandleCreate stores a new snippet.
//
// HTTP: POST /api/snippets
// BODY: {"language":"go","content":"...","viewSecret":"...","editSecret":"...","author":"..."}
func (h *SnippetHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBody(h, w, r, new(createRequest))
	if !ok {
		return
	}

	snippet, err := h.svc.Create(r.Context(), service.CreateInput{
		Language:   req.Language,
		Content:    []byte(req.Content),
		ViewSecret: req.ViewSecret,
		EditSecret: req.EditSecret,
		Author:     req.Author,
	})
	if err != nil {
		h.logger.Warn("snippet create failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, snippet)
}

// HandleFind returns a snippet with its content.
//
// HTTP: GET /api/snippets/{shortId}
func (h *SnippetHandler) HandleFind(w http.ResponseWriter, r *http.Request) {
	shortID := chi.URLParam(r, "shortId")

	view, err := h.svc.Find(r.Context(), shortID, viewSecret(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, viewResponse(view))
}

// HandleUpdate replaces a snippet's content.
//
// HTTP: PUT /api/snippets/{shortId}
// BODY: {"editSecret":"...","content":"..."}
func (h *SnippetHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	shortID := chi.URLParam(r, "shortId")

	req, ok := decodeBody(h, w, r, new(updateRequest))
	if !ok {
		return
	}

	view, err := h.svc.Update(r.Context(), shortID, req.EditSecret, []byte(req.Content))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, viewResponse(view))
}

// escapedOverhead is the worst-case wire inflation of one content byte
// inside a JSON string: control characters encode as \uXXXX, six bytes.
// The request cap must leave room for it, or content at exactly the size
// limit gets rejected whenever it contains newlines or quotes. The
// service's CheckSize stays the authority on the decoded size.
const escapedOverhead = 6

// decodeBody reads a JSON body into dst, capping the read at the worst-case
// encoded size of maxBytes of content plus headroom for the envelope. The
// cap only stops a hostile client from streaming gigabytes at the decoder;
// the exact limit is enforced on the decoded bytes.
func decodeBody[T any](h *SnippetHandler, w http.ResponseWriter, r *http.Request, dst *T) (*T, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes*escapedOverhead+64*1024)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, apperror.SizeExceeded(maxErr.Limit, h.maxBytes))
			return nil, false
		}
		h.logger.Warn("invalid request body", slog.String("error", err.Error()))
		writeError(w, apperror.ValidationFailed("body", "not valid JSON"))
		return nil, false
	}
	return dst, true
}

// viewSecret pulls the view secret from the header first, falling back to
// the query string so a share link can embed it.
func viewSecret(r *http.Request) string {
	if s := r.Header.Get("X-View-Secret"); s != "" {
		return s
	}
	return r.URL.Query().Get("viewSecret")
}
