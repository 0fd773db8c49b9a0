// Package testdb provides utilities for database integration tests.
//
// Tests obtain a connection with GetTestDBWithT, which skips the test when no
// database URL is configured and applies the embedded goose migrations once
// per process. Each test then runs inside WithTx, whose transaction is always
// rolled back, so tests can run in parallel without cleaning up after
// themselves:
//
//	func TestMyFeature(t *testing.T) {
//	    t.Parallel()
//
//	    db := testdb.GetTestDBWithT(t)
//	    testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
//	        cards := postgres.NewPostgresCardStore(tx, nil)
//	        // ...
//	    })
//	}
//
// Tests that must observe committed data from several connections (row
// locking, concurrent initialization) use the *sql.DB directly and remove
// their rows with the Cleanup helpers.
package testdb
