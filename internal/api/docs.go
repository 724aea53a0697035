package api

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/ashureev/foundersync/internal/docs"
	"github.com/ashureev/foundersync/internal/domain"
	"github.com/go-chi/chi/v5"
)

// DocsHandler handles documentation endpoints.
type DocsHandler struct {
	*Handler
	gen *docs.Generator
	// generating holds the IDs of simulations with a generation in flight.
	generating sync.Map
}

// NewDocsHandler creates a new documentation handler.
func NewDocsHandler(base *Handler, gen *docs.Generator) *DocsHandler {
	return &DocsHandler{Handler: base, gen: gen}
}

// RegisterRoutes registers documentation routes.
func (h *DocsHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/simulations/{id}/docs", h.Generate)
	r.Get("/api/simulations/{id}/docs", h.List)
}

type docMetadataResponse struct {
	Tone        string `json:"tone"`
	Emotion     string `json:"emotion"`
	GeneratedAt string `json:"generated_at"`
}

func metadataOf(doc *domain.Documentation) docMetadataResponse {
	return docMetadataResponse{
		Tone:        doc.Metadata.Tone,
		Emotion:     doc.Metadata.Emotion,
		GeneratedAt: doc.GeneratedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

// Generate produces documentation from every agent's perspective. Model
// failures degrade to fallback sections; only store failures fail the request.
func (h *DocsHandler) Generate(w http.ResponseWriter, r *http.Request) {
	sim, ok := h.ownedSimulation(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if _, busy := h.generating.LoadOrStore(sim.ID, struct{}{}); busy {
		slog.Warn("Documentation generation already in progress", "simulation_id", sim.ID)
		Error(w, http.StatusConflict, "generation_in_progress")
		return
	}
	defer h.generating.Delete(sim.ID)

	doc, err := h.gen.Generate(r.Context(), sim)
	if err != nil {
		slog.Error("Failed to generate documentation", "simulation_id", sim.ID, "error", err)
		ErrorDetails(w, http.StatusInternalServerError, "Failed to generate documentation", err)
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"documentation": doc.Content,
		"metadata":      metadataOf(doc),
	})
}

type docResponse struct {
	ID       string              `json:"id"`
	Content  string              `json:"content"`
	Metadata docMetadataResponse `json:"metadata"`
}

// List returns a simulation's documents, newest first.
func (h *DocsHandler) List(w http.ResponseWriter, r *http.Request) {
	sim, ok := h.ownedSimulation(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	stored, err := h.repo.ListDocumentation(r.Context(), sim.ID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	out := make([]docResponse, 0, len(stored))
	for _, doc := range stored {
		out = append(out, docResponse{ID: doc.ID, Content: doc.Content, Metadata: metadataOf(doc)})
	}
	JSON(w, http.StatusOK, map[string]any{"documents": out})
}
