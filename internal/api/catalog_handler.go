package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/recall-api/internal/api/shared"
	"github.com/phrazzld/recall-api/internal/platform/logger"
	"github.com/phrazzld/recall-api/internal/service"
)

// CatalogHandler serves read-only catalog items and card types.
type CatalogHandler struct {
	catalog service.CatalogService
	logger  *slog.Logger
}

// NewCatalogHandler creates a new CatalogHandler
func NewCatalogHandler(catalog service.CatalogService, logger *slog.Logger) *CatalogHandler {
	if catalog == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("catalog cannot be nil for CatalogHandler")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &CatalogHandler{
		catalog: catalog,
		logger:  logger.With(slog.String("component", "catalog_handler")),
	}
}

// ListItems handles GET /knowledge
func (h *CatalogHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	page, err := parsePageRequest(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	result, err := h.catalog.ListItems(r.Context(), page)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list catalog items")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, result)
}

// GetItem handles GET /knowledge/{code}
func (h *CatalogHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	item, err := h.catalog.GetItem(r.Context(), code)
	if err != nil {
		logger.FromContextOrDefault(r.Context(), h.logger).Debug("catalog item lookup failed",
			slog.String("code", code))
		HandleAPIError(w, r, err, "Failed to get catalog item")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, item)
}

// ListCardTypes handles GET /card-types
func (h *CatalogHandler) ListCardTypes(w http.ResponseWriter, r *http.Request) {
	page, err := parsePageRequest(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	result, err := h.catalog.ListCardTypes(r.Context(), page)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list card types")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, result)
}

// GetCardType handles GET /card-types/{code}
func (h *CatalogHandler) GetCardType(w http.ResponseWriter, r *http.Request) {
	cardType, err := h.catalog.GetCardType(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get card type")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, cardType)
}
