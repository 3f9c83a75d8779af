package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "nlweb-orchestrator/internal/common/errors"
	"nlweb-orchestrator/internal/common/logger"
	"nlweb-orchestrator/internal/common/metrics"
	"nlweb-orchestrator/internal/core/analyzer"
	"nlweb-orchestrator/internal/core/postprocess"
	"nlweb-orchestrator/internal/core/ranking"
	"nlweb-orchestrator/internal/core/retrieval"
	"nlweb-orchestrator/internal/core/stream"
	"nlweb-orchestrator/internal/models"
)

const tracerName = "nlweb-orchestrator/orchestrator"

type Analyzer interface {
	Analyze(ctx context.Context, qc *models.QueryContext, emitter analyzer.Emitter) (models.Verdict, error)
}

type Retriever interface {
	Retrieve(ctx context.Context, query string, sites []string) ([]models.CandidateItem, error)
	LookupURL(ctx context.Context, url string) (*models.CandidateItem, error)
}

type Ranker interface {
	Rank(ctx context.Context, req ranking.Request, candidates []models.CandidateItem) <-chan models.RankedItem
}

type PostProcessor interface {
	Summarize(ctx context.Context, req postprocess.Request, ranked []models.RankedItem) (*postprocess.Output, error)
	Generate(ctx context.Context, req postprocess.Request, ranked []models.RankedItem) (*postprocess.Output, error)
}

// Recorder receives one observation per finished query.
type Recorder interface {
	RecordQuery(ctx context.Context, mode, outcome string, duration time.Duration)
}

type Config struct {
	// AllowedSites restricts site selectors; empty allows every site.
	AllowedSites    []string
	SiteItemTypes   map[string]string
	DefaultItemType string
	Threshold       int
	// SiteThresholds and ItemTypeThresholds override Threshold; keys are
	// matched case-insensitively.
	SiteThresholds     map[string]int
	ItemTypeThresholds map[string]int
	MaxResults         int
	BatchSize          int
	FastTrack          bool
}

// ItemTypeFor resolves the item type of a site selection. Mixed or unrestricted
// selections use the default type.
func (c Config) ItemTypeFor(sites []string) string {
	if len(sites) == 1 {
		if t, ok := c.SiteItemTypes[strings.ToLower(sites[0])]; ok && t != "" {
			return t
		}
	}
	if c.DefaultItemType == "" {
		return "Thing"
	}
	return c.DefaultItemType
}

// ThresholdFor resolves the relevance threshold: a single-site override
// first, then the item type, then the global value.
func (c Config) ThresholdFor(sites []string, itemType string) int {
	if len(sites) == 1 {
		if t, ok := lookupFold(c.SiteThresholds, sites[0]); ok {
			return t
		}
	}
	if t, ok := lookupFold(c.ItemTypeThresholds, itemType); ok {
		return t
	}
	return c.Threshold
}

func lookupFold(m map[string]int, key string) (int, bool) {
	if t, ok := m[key]; ok {
		return t, true
	}
	for k, t := range m {
		if strings.EqualFold(k, key) {
			return t, true
		}
	}
	return 0, false
}

type Deps struct {
	Analyzer  Analyzer
	Retriever Retriever
	Ranker    Ranker
	Post      PostProcessor
	Hub       *stream.Hub
	Recorder  Recorder
}

// Orchestrator runs the per-query pipeline. It holds no per-query state;
// everything a run needs lives in its QueryContext and Dispatcher.
type Orchestrator struct {
	deps   Deps
	config Config
	logger logger.Logger
	tracer trace.Tracer
}

func New(deps Deps, cfg Config, log logger.Logger) *Orchestrator {
	if deps.Hub == nil {
		deps.Hub = stream.NewHub()
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 50
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 10
	}
	return &Orchestrator{
		deps:   deps,
		config: cfg,
		logger: logger.ForComponent(log, "orchestrator"),
		tracer: otel.Tracer(tracerName),
	}
}

func (o *Orchestrator) Hub() *stream.Hub {
	return o.deps.Hub
}

// Cancel stops an in-flight query by id.
func (o *Orchestrator) Cancel(queryID string) bool {
	return o.deps.Hub.Cancel(queryID)
}

// run is the state of one query.
type run struct {
	req      models.QueryRequest
	qc       *models.QueryContext
	d        *stream.Dispatcher
	log      logger.Logger
	prefetch *fastTrack
}

// Run executes one query. Events stream to sink when req.Streaming is set;
// either way the aggregated Response is returned. Validation problems fail
// before any event is sent. A cancelled query returns its partial Response
// together with a QueryCancelled error.
func (o *Orchestrator) Run(ctx context.Context, req models.QueryRequest, sink stream.Sink) (resp *models.Response, err error) {
	start := time.Now()
	req = req.WithDefaults()
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return nil, apperrors.NewInvalidRequestError("query is required")
	}
	sites, err := retrieval.ParseSiteSelector(req.Site, o.config.AllowedSites)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d := stream.NewDispatcher(req.QueryID, sink, stream.Options{
		Streaming:   req.Streaming,
		BatchSize:   o.config.BatchSize,
		OnSinkError: func(error) { cancel() },
	}, o.logger)
	if err := o.deps.Hub.Register(req.QueryID, cancel, d); err != nil {
		return nil, apperrors.NewInvalidRequestError(err.Error())
	}
	defer o.deps.Hub.Release(req.QueryID)

	ctx, span := o.tracer.Start(ctx, "nlweb.query", trace.WithAttributes(
		attribute.String("query.id", req.QueryID),
		attribute.String("query.mode", string(req.Mode)),
		attribute.StringSlice("query.sites", sites),
	))
	defer span.End()

	r := &run{
		req: req,
		d:   d,
		log: o.logger.With(map[string]interface{}{"queryId": req.QueryID, "mode": string(req.Mode)}),
	}

	outcome := "ok"
	defer func() {
		if p := recover(); p != nil {
			outcome = "error"
			r.log.Error("query panicked", map[string]interface{}{
				"panic": fmt.Sprint(p),
				"stack": string(debug.Stack()),
			})
			d.Emit(ctx, models.NewErrorEvent(req.QueryID, string(apperrors.ErrCodeInternal), "internal error while processing the query"))
			d.Complete(ctx)
			resp, err = d.Response(o.config.MaxResults), nil
		}
		metrics.QueriesTotal.WithLabelValues(string(req.Mode), outcome).Inc()
		metrics.QueryDuration.WithLabelValues(string(req.Mode)).Observe(time.Since(start).Seconds())
		if o.deps.Recorder != nil {
			o.deps.Recorder.RecordQuery(context.WithoutCancel(ctx), string(req.Mode), outcome, time.Since(start))
		}
		span.SetAttributes(attribute.String("query.outcome", outcome))
	}()

	outcome = o.execute(ctx, r, sites)
	if outcome == "cancelled" {
		d.Cancel()
		return d.Response(o.config.MaxResults), apperrors.NewQueryCancelledError(req.QueryID)
	}
	if !d.Complete(ctx) {
		outcome = "cancelled"
		return d.Response(o.config.MaxResults), apperrors.NewQueryCancelledError(req.QueryID)
	}
	r.qc.MarkCompleted()
	r.log.Info("query completed", map[string]interface{}{
		"outcome":  outcome,
		"results":  d.Len(),
		"duration": time.Since(start).String(),
	})
	return d.Response(o.config.MaxResults), nil
}

// execute walks the pipeline and reports the outcome label. It never emits
// complete; Run does that exactly once.
func (o *Orchestrator) execute(ctx context.Context, r *run, sites []string) string {
	req := r.req
	itemType := o.config.ItemTypeFor(sites)

	if req.ContextURL != "" {
		req = o.loadContextItem(ctx, r, req)
	}
	r.qc = models.NewQueryContext(req, itemType, sites)

	if o.config.FastTrack && !req.HasContext() && req.DecontextualizedQuery == "" {
		r.prefetch = startFastTrack(ctx, o.deps.Retriever, req.Query, sites)
		defer r.prefetch.stop()
	}

	actx, span := o.tracer.Start(ctx, "nlweb.analyze")
	verdict, err := o.deps.Analyzer.Analyze(actx, r.qc, r.d)
	span.End()
	if err != nil || ctx.Err() != nil {
		return "cancelled"
	}
	switch verdict {
	case models.VerdictSiteIrrelevant:
		return "site_irrelevant"
	case models.VerdictAskUser:
		return "ask_user"
	}

	candidates, ok := o.retrieve(ctx, r, sites)
	if !ok {
		return "cancelled"
	}
	r.qc.SetCandidates(candidates)
	if len(candidates) == 0 {
		r.d.Emit(ctx, models.NewNoResultsEvent(req.QueryID, "No results were found."))
		return "no_results"
	}
	if len(sites) != 1 {
		if top := retrieval.TopSites(candidates, 3); len(top) > 0 {
			r.d.Emit(ctx, models.NewAskingSitesEvent(req.QueryID, displaySites(top)))
		}
	}

	if !o.rank(ctx, r, itemType, candidates) {
		return "cancelled"
	}
	r.d.Flush(ctx)

	if r.d.Len() == 0 {
		r.d.Emit(ctx, models.NewNoResultsEvent(req.QueryID, "No results were relevant enough to show."))
		return "no_results"
	}

	o.postProcess(ctx, r, itemType)
	if ctx.Err() != nil {
		return "cancelled"
	}
	return "ok"
}

func (o *Orchestrator) loadContextItem(ctx context.Context, r *run, req models.QueryRequest) models.QueryRequest {
	item, err := o.deps.Retriever.LookupURL(ctx, req.ContextURL)
	if err != nil || item == nil {
		r.log.Debug("context item not found", map[string]interface{}{"url": req.ContextURL, "error": err})
		return req
	}
	r.d.Emit(ctx, models.NewItemDetailsEvent(req.QueryID, models.ResultItem{
		URL:    item.URL,
		Name:   item.Name,
		Site:   item.Site,
		Schema: item.Schema,
	}))
	if req.ContextDescription == "" {
		req.ContextDescription = item.Description()
	}
	return req
}

func (o *Orchestrator) retrieve(ctx context.Context, r *run, sites []string) ([]models.CandidateItem, bool) {
	query := r.qc.EffectiveQuery()

	if r.prefetch != nil && query == r.req.Query {
		items, err := r.prefetch.wait(ctx)
		if ctx.Err() != nil {
			return nil, false
		}
		if err == nil {
			r.log.Debug("using fast track retrieval", map[string]interface{}{"candidates": len(items)})
			return items, true
		}
		r.log.Warn("fast track retrieval failed", map[string]interface{}{"error": err})
		return nil, true
	}
	if r.prefetch != nil {
		r.prefetch.cancel()
	}

	rctx, span := o.tracer.Start(ctx, "nlweb.retrieve")
	defer span.End()
	items, err := o.deps.Retriever.Retrieve(rctx, query, sites)
	if ctx.Err() != nil {
		return nil, false
	}
	if err != nil {
		// every backend failed; this is an empty result, not a query failure
		r.log.Warn("retrieval returned nothing", map[string]interface{}{"error": err})
		return nil, true
	}
	span.SetAttributes(attribute.Int("candidates", len(items)))
	return items, true
}

func (o *Orchestrator) rank(ctx context.Context, r *run, itemType string, candidates []models.CandidateItem) bool {
	rctx, span := o.tracer.Start(ctx, "nlweb.rank", trace.WithAttributes(attribute.Int("candidates", len(candidates))))
	defer span.End()

	threshold := o.config.ThresholdFor(r.qc.Sites, itemType)
	span.SetAttributes(attribute.Int("threshold", threshold))

	items := o.deps.Ranker.Rank(rctx, ranking.Request{
		QueryID:  r.req.QueryID,
		Query:    r.qc.EffectiveQuery(),
		ItemType: itemType,
		Memory:   r.qc.MemoryItems(),
	}, candidates)

	for item := range items {
		r.qc.AddRanked(item)
		if item.Score >= threshold {
			r.d.AddRanked(ctx, item)
		}
	}
	return ctx.Err() == nil
}

func (o *Orchestrator) postProcess(ctx context.Context, r *run, itemType string) {
	if r.req.Mode != models.ModeSummarize && r.req.Mode != models.ModeGenerate {
		return
	}
	pctx, span := o.tracer.Start(ctx, "nlweb.postprocess")
	defer span.End()

	preq := postprocess.Request{QueryID: r.req.QueryID, Query: r.qc.EffectiveQuery(), ItemType: itemType}
	ranked := r.d.Items()

	var (
		out *postprocess.Output
		err error
	)
	if r.req.Mode == models.ModeSummarize {
		out, err = o.deps.Post.Summarize(pctx, preq, ranked)
	} else {
		out, err = o.deps.Post.Generate(pctx, preq, ranked)
	}
	if err != nil || out == nil || out.Text == "" {
		if ctx.Err() == nil {
			r.log.Warn("post-processing produced nothing", map[string]interface{}{"error": err})
		}
		return
	}

	if r.req.Mode == models.ModeSummarize {
		r.d.Emit(ctx, models.NewSummaryEvent(r.req.QueryID, out.Text, models.ToResults(out.Items)))
	} else {
		r.d.Emit(ctx, models.NewNLWSEvent(r.req.QueryID, out.Text, models.ToResults(out.Items)))
	}
}

// displaySites turns "serious_eats" into "Serious Eats".
func displaySites(sites []string) []string {
	out := make([]string, len(sites))
	for i, s := range sites {
		words := strings.Fields(strings.ReplaceAll(s, "_", " "))
		for j, w := range words {
			first, size := utf8.DecodeRuneInString(w)
			words[j] = string(unicode.ToTitle(first)) + w[size:]
		}
		out[i] = strings.Join(words, " ")
	}
	return out
}

// IsCancelled reports whether err is the error Run returns for a cancelled query.
func IsCancelled(err error) bool {
	return errors.Is(err, apperrors.ErrQueryCancelled)
}
