// Package workflow implements the change-request approval workflow that gates
// every catalog mutation.
//
// Operators submit CREATE, UPDATE and DELETE requests; an operator manager
// approves or rejects them. Approval applies the catalog mutation and marks the
// request APPROVED in one transaction, so a request is applied exactly once.
package workflow
