// internal/workers/nlweb/ask-nlweb/handler.go
package asknlweb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	apperrors "nlweb-orchestrator/internal/common/errors"
	"nlweb-orchestrator/internal/common/metrics"
	"nlweb-orchestrator/internal/common/validation"
	"nlweb-orchestrator/internal/core/stream"
	"nlweb-orchestrator/internal/models"
)

const TaskType = "ask-nlweb"

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

type Querier interface {
	Run(ctx context.Context, req models.QueryRequest, sink stream.Sink) (*models.Response, error)
}

// Recorder receives one observation per handled job.
type Recorder interface {
	RecordJobProcessed(ctx context.Context, status string)
	RecordJobDuration(ctx context.Context, duration time.Duration, status string)
}

// Handler answers a query for a workflow and completes the job with the
// aggregated response.
type Handler struct {
	config   *Config
	querier  Querier
	logger   Logger
	errorsTo *apperrors.ErrorHandler
	recorder Recorder
}

func NewHandler(config *Config, querier Querier, log Logger) *Handler {
	l := log.With(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:   config,
		querier:  querier,
		logger:   l,
		errorsTo: apperrors.NewErrorHandler(l),
	}
}

func (h *Handler) WithRecorder(r Recorder) *Handler {
	h.recorder = r
	return h
}

// Handle reports failures to the broker itself; the returned error is only for logging.
func (h *Handler) Handle(client worker.JobClient, job entities.Job) (err error) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})
	start := time.Now()
	defer func() { h.record(start, err) }()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		parseErr := apperrors.NewInvalidRequestError(fmt.Sprintf("parse input: %v", err))
		h.failJob(ctx, client, job, parseErr)
		return parseErr
	}

	output, err := h.Execute(ctx, &input)
	if err != nil {
		h.failJob(ctx, client, job, err)
		return err
	}

	h.completeJob(ctx, client, job, output)
	return nil
}

func (h *Handler) record(start time.Time, err error) {
	if h.recorder == nil {
		return
	}
	status := "completed"
	if err != nil {
		status = "failed"
	}
	ctx := context.Background()
	h.recorder.RecordJobProcessed(ctx, status)
	h.recorder.RecordJobDuration(ctx, time.Since(start), status)
}

// Execute runs the query without streaming and shapes the result for job variables.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	req, res := validation.ToQueryRequest(input.toMap())
	if !res.Valid {
		return nil, apperrors.NewInvalidRequestError(res.Error())
	}

	resp, err := h.querier.Run(ctx, req, nil)
	if err != nil {
		return nil, err
	}
	return h.buildOutput(resp), nil
}

func (h *Handler) buildOutput(resp *models.Response) *Output {
	out := &Output{
		QueryID: resp.QueryID,
		Outcome: OutcomeResults,
		Summary: resp.Summary,
		Answer:  resp.Answer,
		Results: resp.Results,
	}
	if limit := h.config.MaxResults; limit > 0 && len(out.Results) > limit {
		out.Results = out.Results[:limit]
	}
	if out.Results == nil {
		out.Results = []models.ResultItem{}
	}
	out.ResultCount = len(out.Results)

	for _, m := range resp.Messages {
		switch m.MessageType {
		case models.MessageAskUser:
			out.Outcome, out.Message = OutcomeAskUser, m.Message
		case models.MessageSiteIsIrrelevant:
			out.Outcome, out.Message = OutcomeSiteIrrelevant, m.Message
		case models.MessageNoResults:
			out.Outcome, out.Message = OutcomeNoResults, m.Message
		}
	}
	if out.Outcome == OutcomeResults && out.ResultCount == 0 && out.Answer == "" {
		out.Outcome = OutcomeNoResults
	}
	return out
}

func (in *Input) toMap() map[string]interface{} {
	m := map[string]interface{}{
		"query":     in.Query,
		"streaming": false,
	}
	set := func(key, value string) {
		if value != "" {
			m[key] = value
		}
	}
	set("query_id", in.QueryID)
	set("site", in.Site)
	set("generate_mode", in.GenerateMode)
	set("decontextualized_query", in.DecontextualizedQuery)
	set("context_url", in.ContextURL)
	if len(in.Prev) > 0 {
		prev := make([]interface{}, len(in.Prev))
		for i, p := range in.Prev {
			prev[i] = p
		}
		m["prev"] = prev
	}
	return m
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, "COMPLETE_FAILED").Inc()
		return
	}

	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, "COMPLETE_FAILED").Inc()
		return
	}

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	h.logger.Info("job completed", map[string]interface{}{
		"jobKey":      job.Key,
		"outcome":     string(output.Outcome),
		"resultCount": output.ResultCount,
	})
}

func (h *Handler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(apperrors.CodeOf(err))).Inc()
	h.errorsTo.HandleJobError(ctx, client, job, err)
}
