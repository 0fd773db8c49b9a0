package testdb

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/recall-api/internal/store"
	"github.com/stretchr/testify/require"
)

// Fixture codes live in the CS range above 9000000, far beyond anything the
// code sequences hand out during a test run. The random base keeps reruns
// against a shared database apart.
var (
	fixtureBase = 9_000_000 + rand.Int64N(800_000)
	fixtureSeq  atomic.Int64
)

// NextFixtureCode returns a catalog code unused by other fixtures in this process.
func NextFixtureCode() string {
	return fmt.Sprintf("CS-%07d", fixtureBase+fixtureSeq.Add(1))
}

// MustInsertCatalogItem inserts a knowledge row and returns its code.
func MustInsertCatalogItem(ctx context.Context, t *testing.T, db store.DBTX, name string) string {
	t.Helper()

	code := NextFixtureCode()
	_, err := db.ExecContext(ctx, `
		INSERT INTO knowledge (code, name, description, created_at, updated_at)
		VALUES ($1, $2, '', NOW(), NOW())`, code, name)
	require.NoError(t, err, "Failed to insert catalog item %s", code)
	return code
}

// MustInsertCard inserts a fresh card for the account and returns its ID.
func MustInsertCard(ctx context.Context, t *testing.T, db store.DBTX, accountID uuid.UUID, itemCode, cardType string) uuid.UUID {
	t.Helper()

	id := uuid.New()
	_, err := db.ExecContext(ctx, `
		INSERT INTO account_cards (id, account_id, knowledge_code, card_type_code, next_review_at)
		VALUES ($1, $2, $3, $4, NOW())`, id, accountID, itemCode, cardType)
	require.NoError(t, err, "Failed to insert card")
	return id
}

// CleanupAccount removes every card of the account, for tests that commit.
func CleanupAccount(t *testing.T, db *sql.DB, accountID uuid.UUID) {
	t.Helper()
	if _, err := db.Exec(`DELETE FROM account_cards WHERE account_id = $1`, accountID); err != nil {
		t.Logf("Warning: failed to clean up account %s: %v", accountID, err)
	}
}

// CleanupCatalogItems removes committed knowledge rows by code.
func CleanupCatalogItems(t *testing.T, db *sql.DB, codes ...string) {
	t.Helper()
	for _, code := range codes {
		if _, err := db.Exec(`DELETE FROM knowledge WHERE code = $1`, code); err != nil {
			t.Logf("Warning: failed to clean up catalog item %s: %v", code, err)
		}
	}
}

// CleanupChangeRequests removes committed change requests by ID.
func CleanupChangeRequests(t *testing.T, db *sql.DB, ids ...uuid.UUID) {
	t.Helper()
	for _, id := range ids {
		if _, err := db.Exec(`DELETE FROM change_requests WHERE id = $1`, id); err != nil {
			t.Logf("Warning: failed to clean up change request %s: %v", id, err)
		}
	}
}
