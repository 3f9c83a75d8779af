// internal/workers/nlweb/ask-nlweb/handler_test.go
package asknlweb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "nlweb-orchestrator/internal/common/errors"
	"nlweb-orchestrator/internal/core/stream"
	"nlweb-orchestrator/internal/models"
)

type TestLogger struct {
	t      *testing.T
	fields map[string]interface{}
}

func NewTestLogger(t *testing.T) *TestLogger {
	return &TestLogger{t: t, fields: map[string]interface{}{}}
}

func (l *TestLogger) Info(msg string, fields map[string]interface{}) {
	l.t.Logf("INFO: %s %v %v", msg, l.fields, fields)
}

func (l *TestLogger) Error(msg string, fields map[string]interface{}) {
	l.t.Logf("ERROR: %s %v %v", msg, l.fields, fields)
}

func (l *TestLogger) With(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &TestLogger{t: l.t, fields: merged}
}

type fakeQuerier struct {
	got  models.QueryRequest
	resp *models.Response
	err  error
}

func (f *fakeQuerier) Run(_ context.Context, req models.QueryRequest, sink stream.Sink) (*models.Response, error) {
	f.got = req
	if sink != nil {
		return nil, errors.New("worker queries must not stream")
	}
	return f.resp, f.err
}

func createTestConfig() *Config {
	return &Config{Timeout: 5 * time.Second, MaxResults: 2}
}

func results(names ...string) []models.ResultItem {
	out := make([]models.ResultItem, len(names))
	for i, n := range names {
		out[i] = models.ResultItem{Name: n, URL: "https://example.com/" + n, Score: 90 - i}
	}
	return out
}

func TestHandler_Execute_Success(t *testing.T) {
	q := &fakeQuerier{resp: &models.Response{
		QueryID: "q-1",
		Results: results("chili", "curry", "tacos"),
		Summary: "Three spicy dishes.",
	}}
	h := NewHandler(createTestConfig(), q, NewTestLogger(t))

	out, err := h.Execute(context.Background(), &Input{
		Query:        "spicy dishes",
		QueryID:      "q-1",
		Site:         "seriouseats",
		Prev:         []string{"dinner ideas"},
		GenerateMode: "summarize",
	})

	require.NoError(t, err)
	assert.Equal(t, OutcomeResults, out.Outcome)
	assert.Equal(t, 2, out.ResultCount)
	assert.Equal(t, "chili", out.Results[0].Name)
	assert.Equal(t, "Three spicy dishes.", out.Summary)

	assert.False(t, q.got.Streaming)
	assert.Equal(t, "q-1", q.got.QueryID)
	assert.Equal(t, models.ModeSummarize, q.got.Mode)
	assert.Equal(t, []string{"dinner ideas"}, q.got.PrevQueries)
}

func TestHandler_Execute_Outcomes(t *testing.T) {
	tests := []struct {
		name     string
		resp     *models.Response
		outcome  Outcome
		message  string
		expected int
	}{
		{
			name: "ask user",
			resp: &models.Response{Messages: []models.ProtocolEvent{
				{MessageType: models.MessageAskUser, Message: "Which city?"},
				{MessageType: models.MessageComplete},
			}},
			outcome: OutcomeAskUser,
			message: "Which city?",
		},
		{
			name: "site irrelevant",
			resp: &models.Response{Messages: []models.ProtocolEvent{
				{MessageType: models.MessageSiteIsIrrelevant, Message: "This site is about movies."},
			}},
			outcome: OutcomeSiteIrrelevant,
			message: "This site is about movies.",
		},
		{
			name:    "no results",
			resp:    &models.Response{},
			outcome: OutcomeNoResults,
		},
		{
			name:     "generated answer",
			resp:     &models.Response{Answer: "Use smoked paprika."},
			outcome:  OutcomeResults,
			expected: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(createTestConfig(), &fakeQuerier{resp: tt.resp}, NewTestLogger(t))
			out, err := h.Execute(context.Background(), &Input{Query: "x"})
			require.NoError(t, err)
			assert.Equal(t, tt.outcome, out.Outcome)
			assert.Equal(t, tt.message, out.Message)
			assert.Equal(t, tt.expected, out.ResultCount)
			assert.NotNil(t, out.Results)
		})
	}
}

func TestHandler_Execute_InvalidInput(t *testing.T) {
	q := &fakeQuerier{}
	h := NewHandler(createTestConfig(), q, NewTestLogger(t))

	_, err := h.Execute(context.Background(), &Input{Query: "  "})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidRequest))

	_, err = h.Execute(context.Background(), &Input{Query: "x", GenerateMode: "poem"})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidRequest))
	assert.Empty(t, q.got.Query)
}

func TestHandler_Execute_QueryError(t *testing.T) {
	h := NewHandler(createTestConfig(), &fakeQuerier{err: apperrors.NewBackendUnavailableError("es", errors.New("down"))}, NewTestLogger(t))

	_, err := h.Execute(context.Background(), &Input{Query: "x"})

	assert.Equal(t, apperrors.ErrCodeBackendUnavailable, apperrors.CodeOf(err))
	bpmn := apperrors.ConvertToBPMNError(apperrors.Normalize(err))
	assert.Equal(t, "NLWEB_RETRIEVAL_UNAVAILABLE", bpmn.Code)
	assert.Greater(t, bpmn.Retries, 0)
}

func TestInput_ToMap(t *testing.T) {
	m := (&Input{Query: "q", Site: "imdb", Prev: []string{"a", "b"}, ContextURL: "https://imdb.com/title/1"}).toMap()

	assert.Equal(t, "q", m["query"])
	assert.Equal(t, false, m["streaming"])
	assert.Equal(t, []interface{}{"a", "b"}, m["prev"])
	assert.Equal(t, "https://imdb.com/title/1", m["context_url"])
	_, hasMode := m["generate_mode"]
	assert.False(t, hasMode)
}

type fakeRecorder struct {
	processed []string
	durations int
}

func (r *fakeRecorder) RecordJobProcessed(_ context.Context, status string) {
	r.processed = append(r.processed, status)
}

func (r *fakeRecorder) RecordJobDuration(_ context.Context, d time.Duration, _ string) {
	if d >= 0 {
		r.durations++
	}
}

func TestHandler_RecordsJobOutcome(t *testing.T) {
	rec := &fakeRecorder{}
	h := NewHandler(createTestConfig(), &fakeQuerier{}, NewTestLogger(t)).WithRecorder(rec)

	h.record(time.Now(), nil)
	h.record(time.Now(), errors.New("boom"))

	assert.Equal(t, []string{"completed", "failed"}, rec.processed)
	assert.Equal(t, 2, rec.durations)

	// no recorder configured
	NewHandler(createTestConfig(), &fakeQuerier{}, NewTestLogger(t)).record(time.Now(), nil)
}
