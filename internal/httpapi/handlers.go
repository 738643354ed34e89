// Package httpapi serves the catalog as a JSON API.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mesh-intelligence/sectional/internal/catalog"
	"github.com/mesh-intelligence/sectional/pkg/types"
)

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	cat    *catalog.Catalog
	logger *log.Logger

	// Records belong to the catalog's session; requests take turns.
	mu sync.Mutex
}

// New creates a Handlers over cat. logger may be nil.
func New(cat *catalog.Catalog, logger *log.Logger) *Handlers {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Handlers{cat: cat, logger: logger}
}

// Routes returns the API router.
func (h *Handlers) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/sections", h.ListSections)
		r.Post("/sections", h.CreateSection)
		r.Put("/sections/{id}", h.RenameSection)
		r.Delete("/sections/{id}", h.DeleteSection)
		r.Get("/sections/{id}/items", h.ListItems)
		r.Post("/sections/{id}/items", h.CreateItem)

		r.Post("/items/{id}/toggle", h.ToggleItem)
		r.Put("/items/{id}", h.RenameItem)
		r.Put("/items/{id}/section", h.MoveItem)
		r.Delete("/items/{id}", h.DeleteItem)
	})
	return r
}

type nameRequest struct {
	Name string `json:"name"`
}

type moveRequest struct {
	SectionID string `json:"section_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Join(types.ErrInvalidData, err)
	}
	return nil
}

func respondJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// statusFor maps catalog errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case catalog.IsConflict(err):
		return http.StatusConflict
	case catalog.IsInvalid(err):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *Handlers) respondError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		h.logger.Printf("internal server error: %v", err)
		respondJSON(w, code, errorResponse{Error: "internal server error"})
		return
	}
	respondJSON(w, code, errorResponse{Error: err.Error()})
}
