package domain

import "time"

// CardType is a way of presenting a catalog item (translation, definition...).
// Every account gets one card per catalog item and card type.
type CardType struct {
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
