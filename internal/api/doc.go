// Package api handles incoming HTTP requests, request validation and response
// formatting. Handlers translate HTTP concerns into calls on the card, catalog
// and change-request services and map service error kinds back to status codes.
package api
