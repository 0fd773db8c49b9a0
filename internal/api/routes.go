package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/recall-api/internal/api/middleware"
	"github.com/phrazzld/recall-api/internal/domain"
)

// Mount registers the card routes relative to the account prefix
// (/accounts/me). Actions use the "{id}:{action}" form.
func (h *CardHandler) Mount(r chi.Router) {
	r.Get("/cards", h.ListCards)
	r.Get("/cards:due", h.ListDueCards)
	r.Post("/cards:initialize", h.InitializeCards)
	r.Get("/cards/{id}", h.GetCard)
	r.Post("/cards/{id}", h.CardAction)
	r.Get("/cards/{id}/history", h.ReviewHistory)
	r.Get("/stats", h.AccountStats)
}

// MountOperator registers the operator view of any account's cards.
func (h *CardHandler) MountOperator(r chi.Router) {
	r.Get("/accounts/{accountId}/cards", h.ListAccountCards)
}

// Mount registers the catalog read routes.
func (h *CatalogHandler) Mount(r chi.Router) {
	r.Get("/knowledge", h.ListItems)
	r.Get("/knowledge/{code}", h.GetItem)
	r.Get("/card-types", h.ListCardTypes)
	r.Get("/card-types/{code}", h.GetCardType)
}

// Mount registers the change-request routes. Deciding needs an operator
// manager; the workflow service checks roles again for every operation.
func (h *ChangeRequestHandler) Mount(r chi.Router) {
	r.Post("/change-requests", h.Submit)
	r.Post("/change-requests:import", h.Import)
	r.Get("/change-requests", h.List)
	r.Get("/change-requests/{id}", h.Get)
	r.With(middleware.RequireRole(domain.RoleOperatorManager)).Post("/change-requests/{id}", h.Action)
}
