// Package importer reads catalog rows from CSV or XLSX spreadsheets.
//
// The first row is a header naming the columns; matching is case
// insensitive and unknown columns are ignored. Only "name" is required.
package importer
