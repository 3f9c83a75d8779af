package models

import "time"

// MemoryFact is a user fact detected during analysis and handed to memory hooks.
type MemoryFact struct {
	QueryID   string    `json:"query_id"`
	Site      string    `json:"site"`
	Fact      string    `json:"fact"`
	CreatedAt time.Time `json:"created_at"`
}
