package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/recall-api/internal/api/shared"
	"github.com/phrazzld/recall-api/internal/domain"
	"github.com/phrazzld/recall-api/internal/platform/logger"
	"github.com/phrazzld/recall-api/internal/store"
)

// Query parameters shared by paginated endpoints.
const (
	pageParam = "page"
	sizeParam = "size"
)

// Query parameters of card listings.
const (
	cardTypeParam   = "card_type_code"
	cardStatusParam = "status"
)

// requireIdentity returns the authenticated caller, writing a 401 response
// when the request carries none.
func requireIdentity(w http.ResponseWriter, r *http.Request, log *slog.Logger) (domain.Identity, bool) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		if log == nil {
			log = logger.FromContext(r.Context())
		}
		log.Warn("identity not found in request context")
		HandleAPIError(w, r, domain.ErrUnauthorized, "")
		return domain.Identity{}, false
	}
	return identity, true
}

// parseUUID validates a UUID taken from the path.
func parseUUID(paramName, raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, domain.NewValidationError(paramName, "is required", domain.ErrValidation)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, domain.NewValidationError(paramName, "has invalid format", domain.ErrInvalidID)
	}
	return id, nil
}

// getPathUUID extracts and parses a UUID path parameter.
func getPathUUID(r *http.Request, paramName string) (uuid.UUID, error) {
	return parseUUID(paramName, chi.URLParam(r, paramName))
}

// getPathAction splits a "{id}:{action}" path segment. Resource IDs never
// contain a colon, so the last one separates the action.
func getPathAction(r *http.Request, paramName string) (uuid.UUID, string, error) {
	raw := chi.URLParam(r, paramName)
	i := strings.LastIndexByte(raw, ':')
	if i < 0 {
		return uuid.Nil, "", domain.NewValidationError("action", "is required", domain.ErrValidation)
	}
	id, err := parseUUID(paramName, raw[:i])
	if err != nil {
		return uuid.Nil, "", err
	}
	return id, raw[i+1:], nil
}

// parsePageRequest reads ?page and ?size. Missing values take the defaults;
// an oversized size is clamped.
func parsePageRequest(r *http.Request) (domain.PageRequest, error) {
	q := r.URL.Query()

	number, err := queryInt(q.Get(pageParam), pageParam)
	if err != nil {
		return domain.PageRequest{}, err
	}
	size, err := queryInt(q.Get(sizeParam), sizeParam)
	if err != nil {
		return domain.PageRequest{}, err
	}
	return domain.NewPageRequest(number, size)
}

// parseCardFilter reads ?card_type_code and ?status.
func parseCardFilter(r *http.Request) (store.CardFilter, error) {
	q := r.URL.Query()
	status, err := domain.ParseCardStatus(q.Get(cardStatusParam))
	if err != nil {
		return store.CardFilter{}, err
	}
	return store.CardFilter{
		CardTypeCode: strings.TrimSpace(q.Get(cardTypeParam)),
		Status:       status,
	}, nil
}

func queryInt(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError(name, "must be an integer", domain.ErrInvalidFormat)
	}
	return n, nil
}

// decodeAndValidate decodes a JSON body into v and runs struct validation,
// writing a 400 response on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := shared.DecodeJSON(r, v); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return false
	}
	if err := shared.ValidateRequest(v); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return false
	}
	return true
}

// decodeOptionalAndValidate is decodeAndValidate for endpoints whose body may
// be omitted. An empty body leaves v at its zero value.
func decodeOptionalAndValidate(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := shared.DecodeJSON(r, v); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return false
	}
	if err := shared.ValidateRequest(v); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return false
	}
	return true
}
