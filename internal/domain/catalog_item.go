package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// CodePrefix selects the code sequence a new catalog item is numbered from.
type CodePrefix string

const (
	// CodePrefixStandard is the default prefix for catalog items.
	CodePrefixStandard CodePrefix = "ST"
	// CodePrefixCustom is chosen when a CREATE request hints "CS".
	CodePrefixCustom CodePrefix = "CS"
)

// MaxItemSequence is the largest sequence value that fits the seven-digit code format.
const MaxItemSequence = 9_999_999

var codePattern = regexp.MustCompile(`^(ST|CS)-\d{7}$`)

// Catalog item validation errors
var (
	ErrInvalidItemCode = fmt.Errorf("%w: item code must match PREFIX-0000000", ErrInvalidFormat)
	ErrItemNameEmpty   = errors.New("item name cannot be empty")

	ErrCodeSpaceExhausted = errors.New("item code sequence exhausted")
)

// PrefixForHint maps a category hint to a code prefix.
// Anything other than "CS" (case-insensitive) falls back to the standard prefix.
func PrefixForHint(hint string) CodePrefix {
	if strings.EqualFold(strings.TrimSpace(hint), string(CodePrefixCustom)) {
		return CodePrefixCustom
	}
	return CodePrefixStandard
}

// FormatItemCode renders a sequence value as PREFIX-0000042.
func FormatItemCode(prefix CodePrefix, seq int64) (string, error) {
	if seq < 1 || seq > MaxItemSequence {
		return "", fmt.Errorf("%w: %s sequence value %d", ErrCodeSpaceExhausted, prefix, seq)
	}
	return fmt.Sprintf("%s-%07d", prefix, seq), nil
}

// ValidateItemCode checks the code format.
func ValidateItemCode(code string) error {
	if !codePattern.MatchString(code) {
		return ErrInvalidItemCode
	}
	return nil
}

// CatalogItem is a knowledge item in the shared catalog.
// Metadata is free-form JSON; a nil value means the item carries none.
type CatalogItem struct {
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedBy   *string         `json:"created_by,omitempty"`
	UpdatedBy   *string         `json:"updated_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewCatalogItem builds an item from an approved CREATE payload.
func NewCatalogItem(code string, p CreatePayload, actor string, now time.Time) (*CatalogItem, error) {
	item := &CatalogItem{
		Code:        code,
		Name:        p.Name,
		Description: p.Description,
		Metadata:    normalizeMetadata(p.Metadata),
		CreatedBy:   &actor,
		UpdatedBy:   &actor,
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}
	return item, nil
}

// Validate checks if the item has valid data.
func (i *CatalogItem) Validate() error {
	if err := ValidateItemCode(i.Code); err != nil {
		return err
	}
	if strings.TrimSpace(i.Name) == "" {
		return ErrItemNameEmpty
	}
	return nil
}

// Merge returns a copy of the item with the fields present in p replaced.
// Fields absent from the payload keep their current value; an explicit null
// metadata clears it.
func (i *CatalogItem) Merge(p UpdatePayload, actor string, now time.Time) (*CatalogItem, error) {
	merged := *i
	if p.Name != nil {
		merged.Name = *p.Name
	}
	if p.Description != nil {
		merged.Description = *p.Description
	}
	if p.Metadata.Set {
		merged.Metadata = normalizeMetadata(p.Metadata.Value)
	}
	merged.UpdatedBy = &actor
	merged.UpdatedAt = now.UTC()

	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return &merged, nil
}

// normalizeMetadata turns a JSON null into a nil slice.
func normalizeMetadata(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}
