package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/recall-api/internal/api/shared"
	"github.com/phrazzld/recall-api/internal/platform/logger"
	"github.com/phrazzld/recall-api/internal/service"
	)

// Card actions addressed as /cards/{id}:{action}.
const actionReview = "review"

// CardHandler serves the caller's own cards under /accounts/me, and any
// account's cards to operators.
type CardHandler struct {
	cards  service.CardService
	logger *slog.Logger
}

// NewCardHandler creates a new CardHandler
func NewCardHandler(cards service.CardService, logger *slog.Logger) *CardHandler {
	if cards == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("cards cannot be nil for CardHandler")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &CardHandler{
		cards:  cards,
		logger: logger.With(slog.String("component", "card_handler")),
	}
}

// ListCards handles GET /accounts/me/cards
func (h *CardHandler) ListCards(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	identity, ok := requireIdentity(w, r, log)
	if !ok {
		return
	}
	h.listCards(w, r, identity.AccountID)
}

// ListAccountCards handles GET /accounts/{accountId}/cards for operators.
func (h *CardHandler) ListAccountCards(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	identity, ok := requireIdentity(w, r, log)
	if !ok {
		return
	}
	accountID, err := getPathUUID(r, "accountId")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	log.Debug("operator listing account cards",
		slog.String("operator_id", identity.AccountID.String()),
		slog.String("account_id", accountID.String()))
	h.listCards(w, r, accountID)
}

func (h *CardHandler) listCards(w http.ResponseWriter, r *http.Request, accountID uuid.UUID) {
	page, err := parsePageRequest(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	filter, err := parseCardFilter(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	result, err := h.cards.ListCards(r.Context(), accountID, filter, page)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list cards")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, result)
}

// ListDueCards handles GET /accounts/me/cards:due
func (h *CardHandler) ListDueCards(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	identity, ok := requireIdentity(w, r, log)
	if !ok {
		return
	}
	page, err := parsePageRequest(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	cardType := strings.TrimSpace(r.URL.Query().Get(cardTypeParam))

	result, err := h.cards.ListDueCards(r.Context(), identity.AccountID, cardType, page)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list due cards")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, result)
}

// InitializeCards handles POST /accounts/me/cards:initialize
// The body is optional; without one every card type is initialized.
func (h *CardHandler) InitializeCards(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	identity, ok := requireIdentity(w, r, log)
	if !ok {
		return
	}

	var req InitializeCardsRequest
	if !decodeOptionalAndValidate(w, r, &req) {
		return
	}

	result, err := h.cards.InitializeCards(r.Context(), identity.AccountID, req.CardTypeCodes)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to initialize cards")
		return
	}

	log.Debug("cards initialized",
		slog.Int("created", result.Created),
		slog.Int("skipped", result.Skipped),
		slog.Int("card_types", len(req.CardTypeCodes)))
	shared.RespondWithJSON(w, r, http.StatusOK, result)
}

// GetCard handles GET /accounts/me/cards/{id}
func (h *CardHandler) GetCard(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	identity, ok := requireIdentity(w, r, log)
	if !ok {
		return
	}
	cardID, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	card, err := h.cards.GetCard(r.Context(), identity.AccountID, cardID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get card")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, card)
}

// CardAction handles POST /accounts/me/cards/{id}:{action}
func (h *CardHandler) CardAction(w http.ResponseWriter, r *http.Request) {
	cardID, action, err := getPathAction(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	switch action {
	case actionReview:
		h.reviewCard(w, r, cardID)
	default:
		shared.RespondWithError(w, r, http.StatusNotFound, "Unknown card action")
	}
}

func (h *CardHandler) reviewCard(w http.ResponseWriter, r *http.Request, cardID uuid.UUID) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	identity, ok := requireIdentity(w, r, log)
	if !ok {
		return
	}

	var req ReviewRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	card, err := h.cards.ReviewCard(r.Context(), identity.AccountID, cardID, *req.Quality)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to review card")
		return
	}

	log.Debug("card reviewed",
		slog.String("card_id", card.ID.String()),
		slog.Int("quality", *req.Quality),
		slog.Int("interval_days", card.IntervalDays))
	shared.RespondWithJSON(w, r, http.StatusOK, card)
}

// ReviewHistory handles GET /accounts/me/cards/{id}/history
func (h *CardHandler) ReviewHistory(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	identity, ok := requireIdentity(w, r, log)
	if !ok {
		return
	}
	cardID, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	page, err := parsePageRequest(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	result, err := h.cards.ReviewHistory(r.Context(), identity.AccountID, cardID, page)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get review history")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, result)
}

// AccountStats handles GET /accounts/me/stats
func (h *CardHandler) AccountStats(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	identity, ok := requireIdentity(w, r, log)
	if !ok {
		return
	}

	stats, err := h.cards.AccountStats(r.Context(), identity.AccountID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to compute stats")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, stats)
}
