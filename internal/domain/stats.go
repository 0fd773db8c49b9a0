package domain

// AccountStats summarizes an account's cards.
// New cards have never been passed; learning cards have 1 or 2 repetitions.
type AccountStats struct {
	TotalCards    int64            `json:"total_cards"`
	NewCards      int64            `json:"new_cards"`
	LearningCards int64            `json:"learning_cards"`
	DueToday      int64            `json:"due_today"`
	ByCardType    map[string]int64 `json:"by_card_type"`
}

// InitializeResult reports the outcome of a bulk card initialization.
type InitializeResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}
