package domain

import "math"

// Pagination defaults. Page numbers are zero-based.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// MaxOffset bounds the number of rows a page may skip.
const MaxOffset = math.MaxInt32

var (
	// ErrInvalidPage is returned for a negative page number.
	ErrInvalidPage = NewValidationError("page", "must not be negative", ErrValidation)

	// ErrPageOutOfRange is returned when a page would start past MaxOffset.
	ErrPageOutOfRange = NewValidationError("page", "is out of range", ErrValidation)
)

// PageRequest is a normalized page selection.
type PageRequest struct {
	Number int
	Size   int
}

// NewPageRequest defaults a non-positive size and clamps it to MaxPageSize.
// A page whose offset would exceed MaxOffset is rejected.
func NewPageRequest(number, size int) (PageRequest, error) {
	if number < 0 {
		return PageRequest{}, ErrInvalidPage
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	if number > MaxOffset/size {
		return PageRequest{}, ErrPageOutOfRange
	}
	return PageRequest{Number: number, Size: size}, nil
}

// Offset is the number of rows skipped before this page.
func (p PageRequest) Offset() int {
	return p.Number * p.Size
}

// PageInfo describes where a page sits in the full result set.
type PageInfo struct {
	Number     int   `json:"number"`
	Size       int   `json:"size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int64 `json:"total_pages"`
}

// Page is one slice of an ordered result set.
type Page[T any] struct {
	Items []T      `json:"items"`
	Page  PageInfo `json:"page"`
}

// NewPage assembles a page; TotalPages is ceil(total/size).
func NewPage[T any](items []T, req PageRequest, total int64) Page[T] {
	if items == nil {
		items = []T{}
	}
	var pages int64
	if req.Size > 0 {
		pages = (total + int64(req.Size) - 1) / int64(req.Size)
	}
	return Page[T]{
		Items: items,
		Page: PageInfo{
			Number:     req.Number,
			Size:       req.Size,
			TotalItems: total,
			TotalPages: pages,
		},
	}
}
