package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ListSections returns every section with its item counts.
func (h *Handlers) ListSections(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	overview, err := h.cat.Overview()
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, overview)
}

// CreateSection adds a section.
func (h *Handlers) CreateSection(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decode(r, &req); err != nil {
		h.respondError(w, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	sec, err := h.cat.AddSection(req.Name)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, sec)
}

// RenameSection changes a section's name.
func (h *Handlers) RenameSection(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decode(r, &req); err != nil {
		h.respondError(w, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	sec, err := h.cat.FindSection(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	if err := h.cat.RenameSection(sec, req.Name); err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sec)
}

// DeleteSection deletes an empty section.
func (h *Handlers) DeleteSection(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sec, err := h.cat.FindSection(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	if err := h.cat.DeleteSection(sec); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListItems returns a section's items in display order.
func (h *Handlers) ListItems(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sec, err := h.cat.FindSection(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	items, err := h.cat.SectionItems(sec)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}

// CreateItem adds an item to a section.
func (h *Handlers) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decode(r, &req); err != nil {
		h.respondError(w, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	sec, err := h.cat.FindSection(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	item, err := h.cat.AddItem(sec, req.Name)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, item)
}
