package models

import "time"

// MessageType discriminates ProtocolEvent variants.
type MessageType string

const (
	MessageQueryAnalysis         MessageType = "query_analysis"
	MessageDecontextualizedQuery MessageType = "decontextualized_query"
	MessageAskingSites           MessageType = "asking_sites"
	MessageRemember              MessageType = "remember"
	MessageAskUser               MessageType = "ask_user"
	MessageSiteIsIrrelevant      MessageType = "site_is_irrelevant_to_query"
	MessageResultBatch           MessageType = "result_batch"
	MessageItemDetails           MessageType = "item_details"
	MessageIntermediate          MessageType = "intermediate_message"
	MessageSummary               MessageType = "summary"
	MessageNLWS                  MessageType = "nlws"
	MessageNoResults             MessageType = "no_results"
	MessageError                 MessageType = "error"
	MessageComplete              MessageType = "complete"
)

// ProtocolEvent is a tagged union; only the fields relevant to MessageType are set.
type ProtocolEvent struct {
	MessageType MessageType `json:"message_type"`
	QueryID     string      `json:"query_id"`
	Timestamp   time.Time   `json:"timestamp"`

	Message               string                 `json:"message,omitempty"`
	DecontextualizedQuery string                 `json:"decontextualized_query,omitempty"`
	Results               []ResultItem           `json:"results,omitempty"`
	Item                  *ResultItem            `json:"item,omitempty"`
	Sites                 []string               `json:"sites,omitempty"`
	Answer                string                 `json:"answer,omitempty"`
	Items                 []ResultItem           `json:"items,omitempty"`
	Analysis              map[string]interface{} `json:"analysis,omitempty"`
	ErrorCode             string                 `json:"error_code,omitempty"`
}

func newEvent(t MessageType, queryID string) ProtocolEvent {
	return ProtocolEvent{MessageType: t, QueryID: queryID, Timestamp: time.Now().UTC()}
}

func NewQueryAnalysisEvent(queryID string, analysis map[string]interface{}) ProtocolEvent {
	e := newEvent(MessageQueryAnalysis, queryID)
	e.Analysis = analysis
	return e
}

func NewDecontextualizedQueryEvent(queryID, query string) ProtocolEvent {
	e := newEvent(MessageDecontextualizedQuery, queryID)
	e.DecontextualizedQuery = query
	return e
}

func NewAskingSitesEvent(queryID string, sites []string) ProtocolEvent {
	e := newEvent(MessageAskingSites, queryID)
	e.Sites = sites
	e.Message = "Asking " + joinSites(sites)
	return e
}

func NewRememberEvent(queryID, fact string) ProtocolEvent {
	e := newEvent(MessageRemember, queryID)
	e.Message = fact
	return e
}

func NewAskUserEvent(queryID, question string) ProtocolEvent {
	e := newEvent(MessageAskUser, queryID)
	e.Message = question
	return e
}

func NewSiteIrrelevantEvent(queryID, reason string) ProtocolEvent {
	e := newEvent(MessageSiteIsIrrelevant, queryID)
	e.Message = reason
	return e
}

func NewResultBatchEvent(queryID string, results []ResultItem) ProtocolEvent {
	e := newEvent(MessageResultBatch, queryID)
	e.Results = results
	return e
}

func NewItemDetailsEvent(queryID string, item ResultItem) ProtocolEvent {
	e := newEvent(MessageItemDetails, queryID)
	e.Item = &item
	return e
}

func NewIntermediateEvent(queryID, message string) ProtocolEvent {
	e := newEvent(MessageIntermediate, queryID)
	e.Message = message
	return e
}

func NewSummaryEvent(queryID, summary string, items []ResultItem) ProtocolEvent {
	e := newEvent(MessageSummary, queryID)
	e.Message = summary
	e.Items = items
	return e
}

func NewNLWSEvent(queryID, answer string, items []ResultItem) ProtocolEvent {
	e := newEvent(MessageNLWS, queryID)
	e.Answer = answer
	e.Items = items
	return e
}

func NewNoResultsEvent(queryID, message string) ProtocolEvent {
	e := newEvent(MessageNoResults, queryID)
	e.Message = message
	return e
}

func NewErrorEvent(queryID, code, message string) ProtocolEvent {
	e := newEvent(MessageError, queryID)
	e.ErrorCode = code
	e.Message = message
	return e
}

func NewCompleteEvent(queryID string) ProtocolEvent {
	return newEvent(MessageComplete, queryID)
}

func joinSites(sites []string) string {
	out := ""
	for i, s := range sites {
		switch {
		case i == 0:
		case i == len(sites)-1:
			out += " and "
		default:
			out += ", "
		}
		out += s
	}
	return out
}

// Response is the aggregated, non-streaming form of one query's output.
type Response struct {
	QueryID               string          `json:"query_id"`
	Results               []ResultItem    `json:"results"`
	DecontextualizedQuery string          `json:"decontextualized_query,omitempty"`
	Summary               string          `json:"summary,omitempty"`
	Answer                string          `json:"answer,omitempty"`
	Messages              []ProtocolEvent `json:"messages,omitempty"`
	Cancelled             bool            `json:"cancelled,omitempty"`
}
