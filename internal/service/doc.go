// Package service contains the application use cases: card scheduling for
// one account and read access to the shared catalog. It orchestrates domain
// objects and the repositories defined in internal/store.
//
// Key components:
//
// 1. CardService:
//   - Lists, reviews and initializes an account's cards
//   - Runs each review in a single transaction so the schedule update and the
//     history record are never observed apart
//
// 2. CatalogService:
//   - Reads catalog items and card types
//   - Caches the full card type list with ttlcache
//
// 3. Error Handling:
//   - ServiceError wraps store and domain errors with the failing operation
//   - Classify maps any error to one of the service error kinds so the API
//     layer can choose a status code without knowing store internals
//
// Catalog mutations live in the workflow subpackage, which is the only writer
// of the knowledge table.
package service
