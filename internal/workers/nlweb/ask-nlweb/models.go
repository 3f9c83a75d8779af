// internal/workers/nlweb/ask-nlweb/models.go
package asknlweb

import "nlweb-orchestrator/internal/models"

type Input struct {
	Query                 string   `json:"query"`
	QueryID               string   `json:"queryId,omitempty"`
	Site                  string   `json:"site,omitempty"`
	Prev                  []string `json:"prev,omitempty"`
	GenerateMode          string   `json:"generateMode,omitempty"`
	DecontextualizedQuery string   `json:"decontextualizedQuery,omitempty"`
	ContextURL            string   `json:"contextUrl,omitempty"`
}

type Outcome string

const (
	OutcomeResults        Outcome = "results"
	OutcomeNoResults      Outcome = "no_results"
	OutcomeAskUser        Outcome = "ask_user"
	OutcomeSiteIrrelevant Outcome = "site_irrelevant"
)

type Output struct {
	QueryID     string              `json:"queryId"`
	Outcome     Outcome             `json:"outcome"`
	Message     string              `json:"message,omitempty"`
	Results     []models.ResultItem `json:"results"`
	ResultCount int                 `json:"resultCount"`
	Summary     string              `json:"summary,omitempty"`
	Answer      string              `json:"answer,omitempty"`
}
