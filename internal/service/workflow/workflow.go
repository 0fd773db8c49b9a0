package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/recall-api/internal/domain"
	"github.com/phrazzld/recall-api/internal/events"
	"github.com/phrazzld/recall-api/internal/importer"
	"github.com/phrazzld/recall-api/internal/platform/logger"
	"github.com/phrazzld/recall-api/internal/service"
	"github.com/phrazzld/recall-api/internal/store"
)

const serviceName = "workflow"

// SubmitInput is an unvalidated change request as received from a client.
type SubmitInput struct {
	Kind       string
	TargetCode *string
	Payload    json.RawMessage
}

// ListFilter narrows List results.
type ListFilter struct {
	Status *domain.ChangeRequestStatus
}

// ImportResult summarizes a spreadsheet import.
type ImportResult struct {
	Submitted int `json:"submitted"`
	Skipped   int `json:"skipped"`
	Total     int `json:"total"`
}

// Metrics receives counts from the workflow. *metrics.Recorder implements it.
type Metrics interface {
	RecordSubmission(kind string)
	RecordImport(submitted, skipped int)
}

type noopMetrics struct{}

func (noopMetrics) RecordSubmission(string) {}
func (noopMetrics) RecordImport(int, int)   {}

// Service is the change-request workflow.
type Service interface {
	// Submit validates and stores a PENDING change request. Requires operator.
	Submit(ctx context.Context, actor domain.Identity, in SubmitInput) (*domain.ChangeRequest, error)

	// List returns change requests newest first. Managers see every request;
	// operators see only their own.
	List(
		ctx context.Context,
		actor domain.Identity,
		filter ListFilter,
		page domain.PageRequest,
	) (domain.Page[*domain.ChangeRequest], error)

	// Get returns one change request under the same visibility rule as List.
	Get(ctx context.Context, actor domain.Identity, id uuid.UUID) (*domain.ChangeRequest, error)

	// Approve applies the request's catalog mutation and marks it APPROVED
	// atomically. Requires operator manager.
	Approve(ctx context.Context, actor domain.Identity, id uuid.UUID) (*domain.ChangeRequest, error)

	// Reject marks a pending request REJECTED. Requires operator manager.
	Reject(ctx context.Context, actor domain.Identity, id uuid.UUID, reason *string) (*domain.ChangeRequest, error)

	// Decide dispatches to Approve or Reject. reason is ignored on approval.
	Decide(
		ctx context.Context,
		actor domain.Identity,
		id uuid.UUID,
		approved bool,
		reason *string,
	) (*domain.ChangeRequest, error)

	// Import submits one CREATE request per non-blank row, all or nothing.
	Import(ctx context.Context, actor domain.Identity, rows []importer.Row) (*ImportResult, error)
}

type workflowService struct {
	db       store.TxBeginner
	requests store.ChangeRequestStore
	catalog  store.CatalogStore
	codes    store.CodeAllocator
	cards    store.CardStore
	emitter  events.EventEmitter
	metrics  Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates the workflow service.
// It returns an error if any of the required dependencies are nil. emitter and
// metrics are optional.
func NewService(
	db store.TxBeginner,
	requests store.ChangeRequestStore,
	catalog store.CatalogStore,
	codes store.CodeAllocator,
	cards store.CardStore,
	emitter events.EventEmitter,
	metrics Metrics,
	logger *slog.Logger,
) (Service, error) {
	if db == nil {
		return nil, domain.NewValidationError("db", "cannot be nil", domain.ErrValidation)
	}
	if requests == nil {
		return nil, domain.NewValidationError("requests", "cannot be nil", domain.ErrValidation)
	}
	if catalog == nil {
		return nil, domain.NewValidationError("catalog", "cannot be nil", domain.ErrValidation)
	}
	if codes == nil {
		return nil, domain.NewValidationError("codes", "cannot be nil", domain.ErrValidation)
	}
	if cards == nil {
		return nil, domain.NewValidationError("cards", "cannot be nil", domain.ErrValidation)
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &workflowService{
		db:       db,
		requests: requests,
		catalog:  catalog,
		codes:    codes,
		cards:    cards,
		emitter:  emitter,
		metrics:  metrics,
		logger:   logger.With(slog.String("component", "workflow_service")),
		now:      time.Now,
	}, nil
}

func requireRole(actor domain.Identity, required domain.Role, operation string) error {
	if !actor.Role.Includes(required) {
		return service.NewServiceErrorKind(serviceName, operation,
			fmt.Sprintf("requires role %s", required), service.ErrForbidden, domain.ErrForbidden)
	}
	return nil
}

// reviewerLabel is recorded in created_by/updated_by of catalog items.
func reviewerLabel(actor domain.Identity) string {
	if label := strings.TrimSpace(actor.Label); label != "" {
		return label
	}
	return actor.AccountID.String()
}

func (s *workflowService) newRequest(actor domain.Identity, in SubmitInput) (*domain.ChangeRequest, error) {
	kind, err := domain.ParseChangeRequestKind(in.Kind)
	if err != nil {
		return nil, err
	}

	if in.TargetCode != nil {
		trimmed := strings.TrimSpace(*in.TargetCode)
		in.TargetCode = &trimmed
	}

	payload, err := domain.DecodePayload(kind, in.Payload)
	if err != nil {
		return nil, err
	}

	return domain.NewChangeRequest(payload, in.TargetCode, actor.AccountID, s.now())
}

// Submit implements Service.Submit
func (s *workflowService) Submit(
	ctx context.Context,
	actor domain.Identity,
	in SubmitInput,
) (*domain.ChangeRequest, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := requireRole(actor, domain.RoleOperator, "submit"); err != nil {
		return nil, err
	}

	req, err := s.newRequest(actor, in)
	if err != nil {
		log.Debug("rejected change request submission", slog.String("error", err.Error()))
		return nil, service.NewServiceError(serviceName, "submit", "invalid change request", err)
	}

	if err := s.requests.Create(ctx, req); err != nil {
		log.Error("failed to store change request", slog.String("error", err.Error()))
		return nil, service.NewServiceError(serviceName, "submit", "failed to store change request", err)
	}

	s.metrics.RecordSubmission(string(req.Kind))
	return req, nil
}

// List implements Service.List
func (s *workflowService) List(
	ctx context.Context,
	actor domain.Identity,
	filter ListFilter,
	page domain.PageRequest,
) (domain.Page[*domain.ChangeRequest], error) {
	if err := requireRole(actor, domain.RoleOperator, "list"); err != nil {
		return domain.Page[*domain.ChangeRequest]{}, err
	}

	storeFilter := store.ChangeRequestFilter{Status: filter.Status}
	if !actor.Role.Includes(domain.RoleOperatorManager) {
		storeFilter.SubmitterID = &actor.AccountID
	}

	reqs, total, err := s.requests.List(ctx, storeFilter, page)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to list change requests",
			slog.String("error", err.Error()))
		return domain.Page[*domain.ChangeRequest]{}, service.NewServiceError(serviceName, "list", "failed to list change requests", err)
	}
	return domain.NewPage(reqs, page, total), nil
}

// Get implements Service.Get
func (s *workflowService) Get(ctx context.Context, actor domain.Identity, id uuid.UUID) (*domain.ChangeRequest, error) {
	if err := requireRole(actor, domain.RoleOperator, "get"); err != nil {
		return nil, err
	}

	req, err := s.requests.Get(ctx, id)
	if err != nil {
		if !store.IsNotFoundError(err) {
			logger.FromContextOrDefault(ctx, s.logger).Error("failed to get change request",
				slog.String("error", err.Error()),
				slog.String("change_request_id", id.String()))
		}
		return nil, service.NewServiceError(serviceName, "get", "failed to get change request", err)
	}

	if !actor.Role.Includes(domain.RoleOperatorManager) && req.SubmitterID != actor.AccountID {
		return nil, service.NewServiceError(serviceName, "get", "change request not found", store.ErrChangeRequestNotFound)
	}
	return req, nil
}

// Approve implements Service.Approve
func (s *workflowService) Approve(
	ctx context.Context,
	actor domain.Identity,
	id uuid.UUID,
) (*domain.ChangeRequest, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(
		slog.String("change_request_id", id.String()),
		slog.String("reviewer_id", actor.AccountID.String()))

	if err := requireRole(actor, domain.RoleOperatorManager, "approve"); err != nil {
		return nil, err
	}

	var approved *domain.ChangeRequest
	var itemCode string
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		txRequests := s.requests.WithTx(tx)

		req, err := txRequests.GetForUpdate(ctx, id)
		if err != nil {
			return service.NewServiceError(serviceName, "approve", "failed to load change request", err)
		}
		if !req.IsPending() {
			return service.NewServiceError(serviceName, "approve", "change request is not pending",
				domain.ErrChangeRequestNotPending)
		}

		now := s.now().UTC()
		code, err := s.apply(ctx, tx, req, reviewerLabel(actor), now)
		if err != nil {
			log.Warn("change request could not be applied",
				slog.String("kind", string(req.Kind)),
				slog.String("error", err.Error()))
			return err
		}

		if err := txRequests.MarkApproved(ctx, id, actor.AccountID, now); err != nil {
			log.Error("failed to mark change request approved", slog.String("error", err.Error()))
			return service.NewServiceError(serviceName, "approve", "failed to update change request", err)
		}

		reviewer := actor.AccountID
		req.Status = domain.ChangeRequestApproved
		req.ReviewerID = &reviewer
		req.UpdatedAt = now
		approved = req
		itemCode = code
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("change request approved",
		slog.String("kind", string(approved.Kind)),
		slog.String("item_code", itemCode))
	s.emitResolved(ctx, approved, events.OutcomeApproved, itemCode)
	return approved, nil
}

// apply performs the catalog mutation of req inside tx and returns the
// affected item code.
func (s *workflowService) apply(
	ctx context.Context,
	tx *sql.Tx,
	req *domain.ChangeRequest,
	actor string,
	now time.Time,
) (string, error) {
	catalog := s.catalog.WithTx(tx)

	switch p := req.Payload.(type) {
	case domain.CreatePayload:
		code, err := s.codes.WithTx(tx).NextCode(ctx, domain.PrefixForHint(p.CodeHint))
		if err != nil {
			return "", service.NewServiceError(serviceName, "approve", "failed to allocate item code", err)
		}
		item, err := domain.NewCatalogItem(code, p, actor, now)
		if err != nil {
			return "", service.NewServiceError(serviceName, "approve", "invalid catalog item", err)
		}
		if err := catalog.Create(ctx, item); err != nil {
			return "", service.NewServiceError(serviceName, "approve", "failed to create catalog item", err)
		}
		return code, nil

	case domain.UpdatePayload:
		code := *req.TargetCode
		current, err := catalog.GetForUpdate(ctx, code)
		if err != nil {
			return "", service.NewServiceError(serviceName, "approve", "target item not found", err)
		}
		merged, err := current.Merge(p, actor, now)
		if err != nil {
			return "", service.NewServiceError(serviceName, "approve", "invalid merged item", err)
		}
		if err := catalog.Update(ctx, merged); err != nil {
			return "", service.NewServiceError(serviceName, "approve", "failed to update catalog item", err)
		}
		return code, nil

	case domain.DeletePayload:
		code := *req.TargetCode
		if _, err := catalog.GetForUpdate(ctx, code); err != nil {
			return "", service.NewServiceError(serviceName, "approve", "target item not found", err)
		}
		inUse, err := s.cards.WithTx(tx).CountByItem(ctx, code)
		if err != nil {
			return "", service.NewServiceError(serviceName, "approve", "failed to count item references", err)
		}
		if inUse > 0 {
			return "", service.NewServiceError(serviceName, "approve", "catalog item is in use", store.ErrItemInUse)
		}
		if err := catalog.Delete(ctx, code); err != nil {
			return "", service.NewServiceError(serviceName, "approve", "failed to delete catalog item", err)
		}
		return code, nil

	default:
		return "", service.NewServiceError(serviceName, "approve", "unsupported payload", domain.ErrInvalidPayload)
	}
}

// Reject implements Service.Reject
func (s *workflowService) Reject(
	ctx context.Context,
	actor domain.Identity,
	id uuid.UUID,
	reason *string,
) (*domain.ChangeRequest, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(
		slog.String("change_request_id", id.String()),
		slog.String("reviewer_id", actor.AccountID.String()))

	if err := requireRole(actor, domain.RoleOperatorManager, "reject"); err != nil {
		return nil, err
	}

	if reason != nil {
		trimmed := strings.TrimSpace(*reason)
		reason = &trimmed
		if trimmed == "" {
			reason = nil
		}
	}

	err := s.requests.Reject(ctx, id, actor.AccountID, reason, s.now().UTC())
	if err != nil {
		if !store.IsNotFoundError(err) {
			log.Error("failed to reject change request", slog.String("error", err.Error()))
			return nil, service.NewServiceError(serviceName, "reject", "failed to update change request", err)
		}
		// No pending row matched: tell a missing request from a resolved one.
		if _, getErr := s.requests.Get(ctx, id); getErr != nil {
			return nil, service.NewServiceError(serviceName, "reject", "failed to load change request", getErr)
		}
		return nil, service.NewServiceError(serviceName, "reject", "change request is not pending",
			domain.ErrChangeRequestNotPending)
	}

	rejected, err := s.requests.Get(ctx, id)
	if err != nil {
		log.Error("failed to reload rejected change request", slog.String("error", err.Error()))
		return nil, service.NewServiceError(serviceName, "reject", "failed to load change request", err)
	}

	log.Info("change request rejected", slog.String("kind", string(rejected.Kind)))
	code := ""
	if rejected.TargetCode != nil {
		code = *rejected.TargetCode
	}
	s.emitResolved(ctx, rejected, events.OutcomeRejected, code)
	return rejected, nil
}

// Decide implements Service.Decide
func (s *workflowService) Decide(
	ctx context.Context,
	actor domain.Identity,
	id uuid.UUID,
	approved bool,
	reason *string,
) (*domain.ChangeRequest, error) {
	if approved {
		return s.Approve(ctx, actor, id)
	}
	return s.Reject(ctx, actor, id, reason)
}

// Import implements Service.Import
func (s *workflowService) Import(
	ctx context.Context,
	actor domain.Identity,
	rows []importer.Row,
) (*ImportResult, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := requireRole(actor, domain.RoleOperator, "import"); err != nil {
		return nil, err
	}

	result := &ImportResult{Total: len(rows)}
	reqs := make([]*domain.ChangeRequest, 0, len(rows))
	for _, row := range rows {
		if row.Blank() {
			result.Skipped++
			continue
		}

		payload, err := createPayloadFor(row)
		if err != nil {
			return nil, service.NewServiceError(serviceName, "import", fmt.Sprintf("row %d", row.Line), err)
		}
		req, err := s.newRequest(actor, SubmitInput{Kind: string(domain.ChangeRequestCreate), Payload: payload})
		if err != nil {
			return nil, service.NewServiceError(serviceName, "import", fmt.Sprintf("row %d", row.Line), err)
		}
		reqs = append(reqs, req)
	}

	if len(reqs) > 0 {
		err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
			txRequests := s.requests.WithTx(tx)
			for _, req := range reqs {
				if err := txRequests.Create(ctx, req); err != nil {
					log.Error("failed to store imported change request", slog.String("error", err.Error()))
					return service.NewServiceError(serviceName, "import", "failed to store change request", err)
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	result.Submitted = len(reqs)
	for range reqs {
		s.metrics.RecordSubmission(string(domain.ChangeRequestCreate))
	}
	s.metrics.RecordImport(result.Submitted, result.Skipped)

	log.Info("catalog import submitted",
		slog.Int("submitted", result.Submitted),
		slog.Int("skipped", result.Skipped))
	return result, nil
}

func createPayloadFor(row importer.Row) (json.RawMessage, error) {
	p := domain.CreatePayload{Name: row.Name, Description: row.Description}
	if len(row.Metadata) > 0 {
		meta, err := json.Marshal(row.Metadata)
		if err != nil {
			return nil, err
		}
		p.Metadata = meta
	}
	return json.Marshal(p)
}

// emitResolved publishes the resolution after commit. Handler failures are
// logged; the resolution itself already succeeded.
func (s *workflowService) emitResolved(ctx context.Context, req *domain.ChangeRequest, outcome, itemCode string) {
	if s.emitter == nil {
		return
	}
	log := logger.FromContextOrDefault(ctx, s.logger)

	var reviewer uuid.UUID
	if req.ReviewerID != nil {
		reviewer = *req.ReviewerID
	}

	event, err := events.NewChangeRequestResolvedEvent(events.ChangeRequestResolved{
		RequestID:  req.ID,
		Kind:       string(req.Kind),
		Outcome:    outcome,
		ReviewerID: reviewer,
		ItemCode:   itemCode,
	})
	if err == nil {
		err = s.emitter.EmitEvent(ctx, event)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("failed to emit resolution event",
			slog.String("error", err.Error()),
			slog.String("change_request_id", req.ID.String()))
	}
}
