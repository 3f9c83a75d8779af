package models

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// CandidateItem is an unranked retrieval result.
type CandidateItem struct {
	URL     string                 `json:"url"`
	Name    string                 `json:"name"`
	Site    string                 `json:"site"`
	Schema  map[string]interface{} `json:"schema_object"`
	Backend string                 `json:"-"`
}

// Identity is the stable dedup key: the URL, or a content hash when no URL exists.
func (c CandidateItem) Identity() string {
	if u := strings.TrimSpace(c.URL); u != "" {
		return u
	}
	raw, _ := json.Marshal(c.Schema)
	sum := md5.Sum(append([]byte(c.Name+"|"+c.Site+"|"), raw...))
	return "sha:" + hex.EncodeToString(sum[:])
}

// Description renders the schema payload for prompts.
func (c CandidateItem) Description() string {
	if len(c.Schema) == 0 {
		return c.Name
	}
	raw, err := json.Marshal(c.Schema)
	if err != nil {
		return c.Name
	}
	return string(raw)
}

// RankedItem only exists after a successful ranking call for its candidate.
type RankedItem struct {
	CandidateItem
	Score       int    `json:"score"`
	Description string `json:"description"`
}

// ResultItem is the wire shape of one ranked item.
type ResultItem struct {
	URL         string                 `json:"url"`
	Name        string                 `json:"name"`
	Site        string                 `json:"site"`
	SiteURL     string                 `json:"siteUrl,omitempty"`
	Score       int                    `json:"score"`
	Description string                 `json:"description"`
	Schema      map[string]interface{} `json:"schema_object,omitempty"`
}

func (r RankedItem) ToResult() ResultItem {
	return ResultItem{
		URL:         r.URL,
		Name:        r.Name,
		Site:        r.Site,
		SiteURL:     r.Site,
		Score:       r.Score,
		Description: r.Description,
		Schema:      r.Schema,
	}
}

func ToResults(items []RankedItem) []ResultItem {
	out := make([]ResultItem, 0, len(items))
	for _, it := range items {
		out = append(out, it.ToResult())
	}
	return out
}
