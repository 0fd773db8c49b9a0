// Package metrics exposes Prometheus counters for reviews, card
// initialization and the change-request workflow.
package metrics
