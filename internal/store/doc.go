// Package store defines interfaces for data persistence operations.
// These interfaces abstract the underlying data storage mechanism from
// the application's core logic. Implementations that take part in a
// transaction expose WithTx; RunInTransaction ties them to one *sql.Tx.
package store
