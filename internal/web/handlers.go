package web

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/imgprompt/imgprompt/internal/copygate"
	"github.com/imgprompt/imgprompt/internal/errors"
	"github.com/imgprompt/imgprompt/internal/history"
	"github.com/imgprompt/imgprompt/internal/images"
)

// Clipboard is the system clipboard as seen by the copy action.
type Clipboard interface {
	WriteAll(text string) error
}

// Handlers contains HTTP route handlers for the history API.
//
// Request bodies are read in full before a store call and responses are
// written after it returns, so the store lock is never held across
// network I/O.
type Handlers struct {
	store     *history.Store
	gate      *copygate.Gate
	clipboard Clipboard
	logger    *slog.Logger
}

type promptRequest struct {
	Prompt string `json:"prompt"`
}

// HandlePing handles GET /ping.
func (h *Handlers) HandlePing(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, nil)
}

// HandlePages handles GET /api/pages.
func (h *Handlers) HandlePages(w http.ResponseWriter, r *http.Request) {
	pages, err := h.store.Pages(r.Context())
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"pages": pages})
}

// HandleEntries handles GET /api/pages/{page}/entries.
func (h *Handlers) HandleEntries(w http.ResponseWriter, r *http.Request) {
	page, err := pathPage(r)
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	entries, err := h.store.List(r.Context(), page)
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"page": page, "entries": entries})
}

// HandlePrompt handles GET /api/pages/{page}/entries/{id}/prompt.
func (h *Handlers) HandlePrompt(w http.ResponseWriter, r *http.Request) {
	page, err := pathPage(r)
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	got, err := h.store.Get(r.Context(), page, r.PathValue("id"))
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"id": got.ID, "prompt": got.Prompt})
}

// HandleOverwrite handles POST /api/pages/{page}/entries/{id}/overwrite.
func (h *Handlers) HandleOverwrite(w http.ResponseWriter, r *http.Request) {
	page, err := pathPage(r)
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	var req promptRequest
	if err := decodeJSON(r, &req); err != nil {
		renderError(w, h.logger, err)
		return
	}

	got, err := h.store.Overwrite(r.Context(), page, r.PathValue("id"), req.Prompt)
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"entry": got})
}

// HandleDelete handles POST /api/pages/{page}/entries/{id}/delete.
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	page, err := pathPage(r)
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	// The body is optional; drain it so the connection can be reused.
	_, _ = io.Copy(io.Discard, r.Body)

	got, err := h.store.Delete(r.Context(), page, r.PathValue("id"))
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"entry": got})
}

// HandleUploadImage handles POST /api/pages/{page}/entries/{id}/image
// with a multipart "file" field.
func (h *Handlers) HandleUploadImage(w http.ResponseWriter, r *http.Request) {
	page, err := pathPage(r)
	if err != nil {
		renderError(w, h.logger, err)
		return
	}

	upload, err := readUpload(r)
	if err != nil {
		renderError(w, h.logger, err)
		return
	}

	got, err := h.store.ReplaceImage(r.Context(), page, r.PathValue("id"), upload)
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"entry": got, "image_path": got.Image()})
}

// HandleImage handles GET /api/pages/{page}/entries/{id}/image.
func (h *Handlers) HandleImage(w http.ResponseWriter, r *http.Request) {
	page, err := pathPage(r)
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	data, contentType, err := h.store.ReadImage(r.Context(), page, r.PathValue("id"))
	if err != nil {
		renderError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// HandleCopy handles POST /app/copy, the UI copy action. The clipboard is
// written every time; a history entry is appended unless the copy gate
// suppresses a repeat.
func (h *Handlers) HandleCopy(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := decodeJSON(r, &req); err != nil {
		renderError(w, h.logger, err)
		return
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		renderJSON(w, http.StatusOK, map[string]any{"skipped": true})
		return
	}

	if h.clipboard != nil {
		if err := h.clipboard.WriteAll(prompt); err != nil {
			renderError(w, h.logger, errors.NewInternal(err))
			return
		}
	}

	var entry history.Entry
	appended, err := h.gate.Submit(r.Context(), prompt, func(ctx context.Context) error {
		var err error
		entry, err = h.store.Append(ctx, history.AppendInput{Prompt: prompt})
		return err
	})
	if err != nil {
		renderError(w, h.logger, err)
		return
	}

	fields := map[string]any{"skipped": !appended}
	if appended {
		fields["entry"] = entry
	}
	renderJSON(w, http.StatusOK, fields)
}

// HandleRevision handles GET /app/history-revision.
func (h *Handlers) HandleRevision(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, map[string]any{"revision": h.store.Revision()})
}

// pathPage parses the {page} segment. Only "live" and archive keys are
// addressable over HTTP.
func pathPage(r *http.Request) (history.Page, error) {
	raw := r.PathValue("page")
	if raw == "" {
		return "", errors.NewInvalidRequest("page is required")
	}
	return history.ParsePage(raw)
}

// decodeJSON reads a JSON request body into v. An empty body leaves v zero.
func decodeJSON(r *http.Request, v any) error {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return bodyError(err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.NewInvalidRequest("invalid JSON body: " + err.Error())
	}
	return nil
}

// readUpload reads the multipart "file" field into memory.
func readUpload(r *http.Request) (history.ImageUpload, error) {
	if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
		return history.ImageUpload{}, bodyError(err)
	}
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return history.ImageUpload{}, errors.NewInvalidRequest("file is required")
	}
	defer file.Close()

	if _, err := images.ValidateUpload(header.Filename, header.Size); err != nil {
		return history.ImageUpload{}, err
	}

	data, err := io.ReadAll(io.LimitReader(file, images.MaxUploadBytes+1))
	if err != nil {
		return history.ImageUpload{}, bodyError(err)
	}
	return history.ImageUpload{Name: header.Filename, Data: data}, nil
}

func bodyError(err error) error {
	var maxErr *http.MaxBytesError
	if stderrors.As(err, &maxErr) {
		return errors.NewImageTooLarge(images.MaxUploadBytes, int(maxErr.Limit))
	}
	return errors.NewInvalidRequest("could not read request body: " + err.Error())
}
