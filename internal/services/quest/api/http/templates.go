package httpapi

import (
	"net/http"
	"strings"

	apperrors "github.com/louisbranch/questworld/internal/platform/errors"
	"github.com/louisbranch/questworld/internal/services/quest/domain/template"
	"github.com/louisbranch/questworld/internal/services/quest/templates"
)

type createTemplateRequest struct {
	templates.Draft
	Author string `json:"author"`
}

type duplicateTemplateRequest struct {
	Name string `json:"name"`
}

func (h *Handler) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	pageSize, err := queryInt(r, "page_size")
	if err != nil {
		writeError(w, r, err)
		return
	}
	opts := templates.ListOptions{
		Category:  strings.TrimSpace(query.Get("category")),
		Filter:    query.Get("filter"),
		PageSize:  pageSize,
		PageToken: query.Get("page_token"),
	}
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status, ok := template.ParseStatus(raw)
		if !ok {
			writeError(w, r, apperrors.Validation("invalid query parameter", []apperrors.Violation{{
				Path:    "status",
				Rule:    "enum",
				Message: "status must be draft, published or archived",
			}}))
			return
		}
		opts.Status = status
	}
	for _, raw := range query["tags"] {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				opts.Tags = append(opts.Tags, tag)
			}
		}
	}
	page, err := h.templates.List(r.Context(), opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req createTemplateRequest
	if err := decodeBody(r, &req, apperrors.CodeValidationFailed); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := h.templates.Create(r.Context(), req.Draft, req.Author)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := h.templates.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var patch templates.Patch
	if err := decodeBody(r, &patch, apperrors.CodeValidationFailed); err != nil {
		writeError(w, r, err)
		return
	}
	updated, err := h.templates.Update(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	result, err := h.templates.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handlePublishTemplate(w http.ResponseWriter, r *http.Request) {
	published, err := h.templates.Publish(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, published)
}

func (h *Handler) handleUnpublishTemplate(w http.ResponseWriter, r *http.Request) {
	draft, err := h.templates.Unpublish(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (h *Handler) handleDuplicateTemplate(w http.ResponseWriter, r *http.Request) {
	var req duplicateTemplateRequest
	if err := decodeBody(r, &req, apperrors.CodeValidationFailed); err != nil {
		writeError(w, r, err)
		return
	}
	dup, err := h.templates.Duplicate(r.Context(), r.PathValue("id"), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, dup)
}

// handleInstantiateTemplate previews the runtime quest a published template
// produces. Nothing is written.
func (h *Handler) handleInstantiateTemplate(w http.ResponseWriter, r *http.Request) {
	q, err := h.templates.Instantiate(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}
