package models

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Mode selects whether and how results are post-processed.
type Mode string

const (
	ModeList      Mode = "list"
	ModeSummarize Mode = "summarize"
	ModeGenerate  Mode = "generate"
)

func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeList:
		return ModeList, true
	case ModeSummarize:
		return ModeSummarize, true
	case ModeGenerate:
		return ModeGenerate, true
	}
	return "", false
}

// QueryRequest is built once per call and never mutated afterwards.
type QueryRequest struct {
	QueryID               string   `json:"query_id"`
	Query                 string   `json:"query"`
	Site                  string   `json:"site,omitempty"`
	PrevQueries           []string `json:"prev,omitempty"`
	DecontextualizedQuery string   `json:"decontextualized_query,omitempty"`
	Mode                  Mode     `json:"mode"`
	Streaming             bool     `json:"streaming"`
	ContextURL            string   `json:"context_url,omitempty"`
	ContextDescription    string   `json:"context_description,omitempty"`
}

// NewQueryRequest fills in the defaults: generated id, list mode, streaming on.
func NewQueryRequest(query string) QueryRequest {
	return QueryRequest{
		QueryID:   uuid.NewString(),
		Query:     query,
		Mode:      ModeList,
		Streaming: true,
	}
}

// WithDefaults returns a copy with an id and mode set.
func (r QueryRequest) WithDefaults() QueryRequest {
	if r.QueryID == "" {
		r.QueryID = uuid.NewString()
	}
	if r.Mode == "" {
		r.Mode = ModeList
	}
	return r
}

// HasContext reports whether the query depends on earlier turns or a context page.
func (r QueryRequest) HasContext() bool {
	return len(r.PrevQueries) > 0 || r.ContextURL != "" || r.ContextDescription != ""
}

// Verdict is the outcome of pre-retrieval analysis.
type Verdict string

const (
	VerdictProceed        Verdict = "proceed"
	VerdictAskUser        Verdict = "ask_user"
	VerdictSiteIrrelevant Verdict = "site_irrelevant"
)

// QueryContext is owned by exactly one orchestration run. Analysis calls run
// concurrently, so setters are guarded.
type QueryContext struct {
	Request  QueryRequest
	ItemType string
	Sites    []string

	mu                    sync.Mutex
	decontextualizedQuery string
	memoryItems           []string
	requiredInfoFound     bool
	clarifyingQuestion    string
	siteRelevant          bool
	irrelevanceReason     string
	analysis              map[string]interface{}
	candidates            []CandidateItem
	ranked                []RankedItem
	completed             bool
}

func NewQueryContext(req QueryRequest, itemType string, sites []string) *QueryContext {
	qc := &QueryContext{
		Request:           req,
		ItemType:          itemType,
		Sites:             sites,
		requiredInfoFound: true,
		siteRelevant:      true,
	}
	qc.decontextualizedQuery = req.DecontextualizedQuery
	return qc
}

// EffectiveQuery is the decontextualized query when one exists, otherwise the raw query.
func (qc *QueryContext) EffectiveQuery() string {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	if qc.decontextualizedQuery != "" {
		return qc.decontextualizedQuery
	}
	return qc.Request.Query
}

func (qc *QueryContext) SetDecontextualizedQuery(q string) {
	qc.mu.Lock()
	qc.decontextualizedQuery = q
	qc.mu.Unlock()
}

func (qc *QueryContext) AddMemoryItem(item string) {
	qc.mu.Lock()
	qc.memoryItems = append(qc.memoryItems, item)
	qc.mu.Unlock()
}

func (qc *QueryContext) MemoryItems() []string {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	return append([]string(nil), qc.memoryItems...)
}

func (qc *QueryContext) SetRequiredInfo(found bool, question string) {
	qc.mu.Lock()
	qc.requiredInfoFound = found
	qc.clarifyingQuestion = question
	qc.mu.Unlock()
}

func (qc *QueryContext) RequiredInfo() (bool, string) {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	return qc.requiredInfoFound, qc.clarifyingQuestion
}

func (qc *QueryContext) SetSiteRelevance(relevant bool, reason string) {
	qc.mu.Lock()
	qc.siteRelevant = relevant
	qc.irrelevanceReason = reason
	qc.mu.Unlock()
}

func (qc *QueryContext) SiteRelevance() (bool, string) {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	return qc.siteRelevant, qc.irrelevanceReason
}

func (qc *QueryContext) SetAnalysis(a map[string]interface{}) {
	qc.mu.Lock()
	qc.analysis = a
	qc.mu.Unlock()
}

func (qc *QueryContext) Analysis() map[string]interface{} {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	return qc.analysis
}

func (qc *QueryContext) SetCandidates(items []CandidateItem) {
	qc.mu.Lock()
	qc.candidates = items
	qc.mu.Unlock()
}

func (qc *QueryContext) Candidates() []CandidateItem {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	return qc.candidates
}

func (qc *QueryContext) AddRanked(item RankedItem) {
	qc.mu.Lock()
	qc.ranked = append(qc.ranked, item)
	qc.mu.Unlock()
}

func (qc *QueryContext) Ranked() []RankedItem {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	return append([]RankedItem(nil), qc.ranked...)
}

func (qc *QueryContext) MarkCompleted() {
	qc.mu.Lock()
	qc.completed = true
	qc.mu.Unlock()
}

func (qc *QueryContext) Completed() bool {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	return qc.completed
}
