package api

import (
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/trashtotreasure/treasure/internal/claim"
	"github.com/trashtotreasure/treasure/internal/imaging"
	"github.com/trashtotreasure/treasure/internal/media"
	"github.com/trashtotreasure/treasure/internal/model"
)

// ItemsHandler handles item endpoints.
type ItemsHandler struct {
	Claims       *claim.Service
	Media        *media.Store
	BaseURL      string
	MaxFiles     int
	MaxFileBytes int64
}

type createRequestRequest struct {
	Message string `json:"message"`
}

type setStatusRequest struct {
	Status string `json:"status"`
}

// List handles GET /api/items.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := h.Claims.ListItems(r.Context(), model.ItemFilter{
		Category: q.Get("category"),
		Search:   q.Get("search"),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	base := baseURL(r, h.BaseURL)
	for i := range items {
		resolveItem(&items[i], base)
	}
	jsonResponse(w, http.StatusOK, "", items)
}

// Get handles GET /api/items/{id}. Authentication is optional; an
// authenticated viewer also gets their own latest request for the item.
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	detail, err := h.Claims.GetItem(r.Context(), r.PathValue("id"), userID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	base := baseURL(r, h.BaseURL)
	resolveItem(detail.Item, base)
	if detail.UserRequest != nil {
		resolveRequest(detail.UserRequest, base)
	}
	jsonResponse(w, http.StatusOK, "", detail)
}

// Create handles POST /api/items as a multipart form with up to MaxFiles
// files in the "images" field.
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	// Room for every file plus the text fields.
	r.Body = http.MaxBytesReader(w, r.Body, int64(h.MaxFiles)*h.MaxFileBytes+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		jsonError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["images"]
	if len(files) > h.MaxFiles {
		jsonError(w, http.StatusBadRequest, "too many images")
		return
	}

	refs, err := h.saveImages(r, files)
	if err != nil {
		switch {
		case errors.Is(err, imaging.ErrUnsupported):
			jsonError(w, http.StatusBadRequest, "images must be JPEG or PNG")
		case errors.Is(err, imaging.ErrTooLarge):
			jsonError(w, http.StatusRequestEntityTooLarge, "image too large")
		default:
			slog.Error("saving images", "error", err)
			jsonError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	item, err := h.Claims.CreateItem(r.Context(), userID(r), model.NewItem{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Category:    r.FormValue("category"),
		Condition:   r.FormValue("condition"),
		Location:    r.FormValue("location"),
		Images:      refs,
	})
	if err != nil {
		h.deleteImages(refs)
		respondError(w, r, err)
		return
	}

	resolveItem(item, baseURL(r, h.BaseURL))
	jsonResponse(w, http.StatusCreated, "item posted successfully", item)
}

// Claim handles POST /api/items/{id}/claim.
func (h *ItemsHandler) Claim(w http.ResponseWriter, r *http.Request) {
	item, err := h.Claims.ClaimItem(r.Context(), r.PathValue("id"), userID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	resolveItem(item, baseURL(r, h.BaseURL))
	jsonResponse(w, http.StatusOK, "item claimed successfully", item)
}

// Request handles POST /api/items/{id}/request. The body is optional.
func (h *ItemsHandler) Request(w http.ResponseWriter, r *http.Request) {
	var req createRequestRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.Claims.CreateRequest(r.Context(), r.PathValue("id"), userID(r), req.Message)
	if err != nil {
		respondError(w, r, err)
		return
	}
	resolveRequest(created, baseURL(r, h.BaseURL))
	jsonResponse(w, http.StatusCreated, "request sent successfully", created)
}

// SetStatus handles PUT /api/items/{id}/status.
func (h *ItemsHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req setStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := h.Claims.SetItemStatus(r.Context(), r.PathValue("id"), userID(r), req.Status)
	if err != nil {
		respondError(w, r, err)
		return
	}
	resolveItem(item, baseURL(r, h.BaseURL))
	jsonResponse(w, http.StatusOK, "item status updated successfully", item)
}

// saveImages stores every uploaded file; on failure nothing is kept.
func (h *ItemsHandler) saveImages(r *http.Request, files []*multipart.FileHeader) ([]string, error) {
	refs := make([]string, 0, len(files))
	for _, fh := range files {
		ref, err := h.saveImage(r, fh)
		if err != nil {
			h.deleteImages(refs)
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func (h *ItemsHandler) saveImage(r *http.Request, fh *multipart.FileHeader) (string, error) {
	if fh.Size > h.MaxFileBytes {
		return "", imaging.ErrTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()
	return h.Media.Save(r.Context(), f)
}

func (h *ItemsHandler) deleteImages(refs []string) {
	for _, ref := range refs {
		if err := h.Media.Delete(ref); err != nil {
			slog.Warn("removing orphaned image", "ref", ref, "error", err)
		}
	}
}

// baseURL returns the configured base URL, or the scheme and host the
// request arrived on.
func baseURL(r *http.Request, configured string) string {
	if configured != "" {
		return configured
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p == "http" || p == "https" {
		scheme = p
	}
	return scheme + "://" + r.Host
}

func resolveItem(item *model.Item, base string) {
	item.Images = media.URLs(item.Images, base)
}

func resolveRequest(req *model.Request, base string) {
	if req.Item != nil {
		req.Item.Images = media.URLs(req.Item.Images, base)
	}
}
