package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ToggleItem flips an item's selection.
func (h *Handlers) ToggleItem(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	item, err := h.cat.FindItem(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	if err := h.cat.ToggleItem(item); err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

// RenameItem changes an item's name.
func (h *Handlers) RenameItem(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decode(r, &req); err != nil {
		h.respondError(w, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	item, err := h.cat.FindItem(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	if err := h.cat.RenameItem(item, req.Name); err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

// MoveItem reassigns an item to the section named in the body.
func (h *Handlers) MoveItem(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := decode(r, &req); err != nil {
		h.respondError(w, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	item, err := h.cat.FindItem(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	sec, err := h.cat.FindSection(req.SectionID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if err := h.cat.MoveItem(item, sec); err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

// DeleteItem deletes an item.
func (h *Handlers) DeleteItem(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	item, err := h.cat.FindItem(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	if err := h.cat.DeleteItem(item); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
