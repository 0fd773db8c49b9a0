package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/phrazzld/recall-api/internal/domain"
	"github.com/phrazzld/recall-api/internal/platform/logger"
	"github.com/phrazzld/recall-api/internal/store"
)

const changeRequestColumns = `id, kind, target_code, payload, status, submitter_id,
	reviewer_id, reason, created_at, updated_at`

type changeRequestRow struct {
	ID          uuid.UUID      `db:"id"`
	Kind        string         `db:"kind"`
	TargetCode  sql.NullString `db:"target_code"`
	Payload     []byte         `db:"payload"`
	Status      string         `db:"status"`
	SubmitterID uuid.UUID      `db:"submitter_id"`
	ReviewerID  uuid.NullUUID  `db:"reviewer_id"`
	Reason      sql.NullString `db:"reason"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (r changeRequestRow) toDomain() (*domain.ChangeRequest, error) {
	kind, err := domain.ParseChangeRequestKind(r.Kind)
	if err != nil {
		return nil, err
	}
	status, err := domain.ParseChangeRequestStatus(r.Status)
	if err != nil {
		return nil, err
	}
	payload, err := domain.DecodePayload(kind, r.Payload)
	if err != nil {
		return nil, fmt.Errorf("stored payload of change request %s: %w", r.ID, err)
	}

	req := &domain.ChangeRequest{
		ID:          r.ID,
		Kind:        kind,
		Payload:     payload,
		Status:      status,
		SubmitterID: r.SubmitterID,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
	if r.TargetCode.Valid {
		req.TargetCode = &r.TargetCode.String
	}
	if r.ReviewerID.Valid {
		req.ReviewerID = &r.ReviewerID.UUID
	}
	if r.Reason.Valid {
		req.Reason = &r.Reason.String
	}
	return req, nil
}

// PostgresChangeRequestStore implements store.ChangeRequestStore.
type PostgresChangeRequestStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresChangeRequestStore creates a change request store backed by db.
// If logger is nil, a default logger will be used.
func NewPostgresChangeRequestStore(db store.DBTX, logger *slog.Logger) *PostgresChangeRequestStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresChangeRequestStore{
		db:     db,
		logger: logger.With(slog.String("component", "change_request_store")),
	}
}

var _ store.ChangeRequestStore = (*PostgresChangeRequestStore)(nil)

// WithTx implements store.ChangeRequestStore.WithTx.
func (s *PostgresChangeRequestStore) WithTx(tx *sql.Tx) store.ChangeRequestStore {
	return &PostgresChangeRequestStore{db: tx, logger: s.logger}
}

// Create implements store.ChangeRequestStore.Create.
func (s *PostgresChangeRequestStore) Create(ctx context.Context, req *domain.ChangeRequest) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	payload, err := json.Marshal(req.Payload)
	if err != nil {
		return fmt.Errorf("%w: encode payload: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO change_requests (id, kind, target_code, payload, status, submitter_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = s.db.ExecContext(
		ctx,
		query,
		req.ID,
		string(req.Kind),
		req.TargetCode,
		string(payload),
		string(req.Status),
		req.SubmitterID,
		req.CreatedAt.UTC(),
		req.UpdatedAt.UTC(),
	)
	if err != nil {
		log.Error("failed to create change request",
			slog.String("error", err.Error()),
			slog.String("change_request_id", req.ID.String()))
		return MapError(err)
	}

	log.Info("change request created",
		slog.String("change_request_id", req.ID.String()),
		slog.String("kind", string(req.Kind)))
	return nil
}

// Get implements store.ChangeRequestStore.Get.
func (s *PostgresChangeRequestStore) Get(ctx context.Context, id uuid.UUID) (*domain.ChangeRequest, error) {
	return s.get(ctx, id, "")
}

// GetForUpdate implements store.ChangeRequestStore.GetForUpdate.
func (s *PostgresChangeRequestStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.ChangeRequest, error) {
	return s.get(ctx, id, " FOR UPDATE")
}

func (s *PostgresChangeRequestStore) get(ctx context.Context, id uuid.UUID, lock string) (*domain.ChangeRequest, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + changeRequestColumns + ` FROM change_requests WHERE id = $1` + lock

	var r changeRequestRow
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&r.ID,
		&r.Kind,
		&r.TargetCode,
		&r.Payload,
		&r.Status,
		&r.SubmitterID,
		&r.ReviewerID,
		&r.Reason,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if !IsNotFoundError(err) {
			log.Error("failed to get change request",
				slog.String("error", err.Error()),
				slog.String("change_request_id", id.String()))
		}
		return nil, wrapNotFound(err, store.ErrChangeRequestNotFound)
	}

	return r.toDomain()
}

// List implements store.ChangeRequestStore.List.
func (s *PostgresChangeRequestStore) List(
	ctx context.Context,
	filter store.ChangeRequestFilter,
	page domain.PageRequest,
) ([]*domain.ChangeRequest, int64, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	where := "TRUE"
	var args []any
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.SubmitterID != nil {
		args = append(args, *filter.SubmitterID)
		where += fmt.Sprintf(" AND submitter_id = $%d", len(args))
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM change_requests WHERE "+where, args...).Scan(&total); err != nil {
		log.Error("failed to count change requests", slog.String("error", err.Error()))
		return nil, 0, MapError(err)
	}

	n := len(args)
	query := fmt.Sprintf(`
		SELECT %s
		FROM change_requests
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, changeRequestColumns, where, n+1, n+2)

	rows, err := s.db.QueryContext(ctx, query, append(args, page.Size, page.Offset())...)
	if err != nil {
		log.Error("failed to list change requests", slog.String("error", err.Error()))
		return nil, 0, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var scanned []changeRequestRow
	if err := sqlx.StructScan(rows, &scanned); err != nil {
		return nil, 0, MapError(err)
	}

	reqs := make([]*domain.ChangeRequest, 0, len(scanned))
	for _, r := range scanned {
		req, err := r.toDomain()
		if err != nil {
			log.Error("failed to decode stored change request",
				slog.String("error", err.Error()),
				slog.String("change_request_id", r.ID.String()))
			return nil, 0, err
		}
		reqs = append(reqs, req)
	}
	return reqs, total, nil
}

// MarkApproved implements store.ChangeRequestStore.MarkApproved.
func (s *PostgresChangeRequestStore) MarkApproved(ctx context.Context, id, reviewerID uuid.UUID, at time.Time) error {
	return s.resolve(ctx, id, domain.ChangeRequestApproved, reviewerID, nil, at)
}

// Reject implements store.ChangeRequestStore.Reject.
func (s *PostgresChangeRequestStore) Reject(
	ctx context.Context,
	id, reviewerID uuid.UUID,
	reason *string,
	at time.Time,
) error {
	return s.resolve(ctx, id, domain.ChangeRequestRejected, reviewerID, reason, at)
}

// resolve moves a PENDING request to a terminal status in one conditional
// statement; a request that is no longer pending matches no row.
func (s *PostgresChangeRequestStore) resolve(
	ctx context.Context,
	id uuid.UUID,
	status domain.ChangeRequestStatus,
	reviewerID uuid.UUID,
	reason *string,
	at time.Time,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE change_requests
		SET status = $1, reviewer_id = $2, reason = $3, updated_at = $4
		WHERE id = $5 AND status = 'PENDING'
	`
	result, err := s.db.ExecContext(ctx, query, string(status), reviewerID, reason, at.UTC(), id)
	if err != nil {
		log.Error("failed to resolve change request",
			slog.String("error", err.Error()),
			slog.String("change_request_id", id.String()),
			slog.String("status", string(status)))
		return MapError(err)
	}

	if err := CheckRowsAffected(result, store.ErrChangeRequestNotFound); err != nil {
		return err
	}

	log.Info("change request resolved",
		slog.String("change_request_id", id.String()),
		slog.String("status", string(status)),
		slog.String("reviewer_id", reviewerID.String()))
	return nil
}
