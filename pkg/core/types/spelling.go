package types

// SpellingWord is one entry in a spelling challenge word list. Immutable once
// fetched; discarded when the challenge ends.
type SpellingWord struct {
	Word        string `json:"word"`
	Translation string `json:"translation"`
	Hint        string `json:"hint"`
}
