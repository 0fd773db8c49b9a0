// Package domain contains the core business entities and value objects of
// the application: per-account review cards, the knowledge catalog, card
// types, and the change requests that gate catalog mutations. It is
// independent of any specific infrastructure or delivery mechanism.
package domain
