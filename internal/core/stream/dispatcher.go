package stream

import (
	"context"
	"sort"
	"sync"

	"nlweb-orchestrator/internal/common/logger"
	"nlweb-orchestrator/internal/common/metrics"
	"nlweb-orchestrator/internal/models"
)

// Sink delivers events to the single subscriber of a query. An error means the
// subscriber is gone.
type Sink interface {
	Send(ctx context.Context, ev models.ProtocolEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev models.ProtocolEvent) error

func (f SinkFunc) Send(ctx context.Context, ev models.ProtocolEvent) error { return f(ctx, ev) }

type Options struct {
	Streaming bool
	// BatchSize is how many ranked items make up one result_batch while streaming.
	BatchSize int
	// OnSinkError is called once when the sink fails, with the dispatcher lock
	// held. It must not call back into the Dispatcher.
	OnSinkError func(error)
}

type entry struct {
	item models.RankedItem
	seq  int
}

// Dispatcher owns the event stream of one query. It keeps the score-ordered
// view of ranked items and guarantees that nothing follows the single complete
// event, nor anything after cancellation.
type Dispatcher struct {
	queryID string
	sink    Sink
	opts    Options
	logger  logger.Logger

	mu        sync.Mutex
	items     []entry
	seen      map[string]bool
	seq       int
	pending   []models.RankedItem
	completed bool
	cancelled bool
	resp      models.Response
}

// NewDispatcher builds a Dispatcher. sink may be nil for non-streaming queries.
func NewDispatcher(queryID string, sink Sink, opts Options, log logger.Logger) *Dispatcher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1
	}
	return &Dispatcher{
		queryID: queryID,
		sink:    sink,
		opts:    opts,
		logger:  logger.ForComponent(log, "dispatcher").With(map[string]interface{}{"queryId": queryID}),
		seen:    make(map[string]bool),
		resp:    models.Response{QueryID: queryID},
	}
}

// Emit sends a non-result event. It reports false when the event was dropped
// because the stream is closed.
func (d *Dispatcher) Emit(ctx context.Context, ev models.ProtocolEvent) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if ev.MessageType == models.MessageComplete {
		return d.completeLocked(ctx)
	}
	return d.emitLocked(ctx, ev)
}

// AddRanked inserts an item into the display ordering. Items whose identity is
// already present are ignored. While streaming, a result_batch goes out as soon
// as BatchSize items are pending.
func (d *Dispatcher) AddRanked(ctx context.Context, item models.RankedItem) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closedLocked() {
		metrics.EventsDropped.WithLabelValues(string(models.MessageResultBatch)).Inc()
		return false
	}
	id := item.Identity()
	if d.seen[id] {
		return false
	}
	d.seen[id] = true
	d.seq++
	d.items = append(d.items, entry{item: item, seq: d.seq})
	sort.SliceStable(d.items, func(i, j int) bool {
		if d.items[i].item.Score != d.items[j].item.Score {
			return d.items[i].item.Score > d.items[j].item.Score
		}
		return d.items[i].seq < d.items[j].seq
	})

	if !d.opts.Streaming {
		return true
	}
	d.pending = append(d.pending, item)
	if len(d.pending) >= d.opts.BatchSize {
		return d.flushLocked(ctx)
	}
	return true
}

// Flush sends any partially filled batch.
func (d *Dispatcher) Flush(ctx context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closedLocked() || !d.opts.Streaming {
		return false
	}
	return d.flushLocked(ctx)
}

// Items returns the current display ordering: score descending, ties in
// arrival order.
func (d *Dispatcher) Items() []models.RankedItem {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.RankedItem, len(d.items))
	for i, e := range d.items {
		out[i] = e.item
	}
	return out
}

func (d *Dispatcher) TopK(k int) []models.RankedItem {
	items := d.Items()
	if k > 0 && len(items) > k {
		items = items[:k]
	}
	return items
}

func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}

// Complete flushes what is pending and emits the terminal event. Only the first
// call on a live stream emits anything.
func (d *Dispatcher) Complete(ctx context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.completeLocked(ctx)
}

// Cancel closes the stream without a complete event.
func (d *Dispatcher) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.completed {
		return
	}
	d.cancelled = true
	d.resp.Cancelled = true
	d.pending = nil
}

func (d *Dispatcher) Completed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.completed
}

func (d *Dispatcher) Cancelled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancelled
}

// Response is the aggregated view: the full ordering plus every non-result
// event that was accepted.
func (d *Dispatcher) Response(maxResults int) *models.Response {
	d.mu.Lock()
	defer d.mu.Unlock()

	resp := d.resp
	ranked := make([]models.RankedItem, 0, len(d.items))
	for _, e := range d.items {
		ranked = append(ranked, e.item)
	}
	if maxResults > 0 && len(ranked) > maxResults {
		ranked = ranked[:maxResults]
	}
	resp.Results = models.ToResults(ranked)
	resp.Messages = append([]models.ProtocolEvent(nil), d.resp.Messages...)
	return &resp
}

func (d *Dispatcher) closedLocked() bool {
	return d.completed || d.cancelled
}

func (d *Dispatcher) completeLocked(ctx context.Context) bool {
	if d.closedLocked() {
		metrics.EventsDropped.WithLabelValues(string(models.MessageComplete)).Inc()
		return false
	}
	if d.opts.Streaming {
		d.flushLocked(ctx)
	} else if d.sink != nil && len(d.items) > 0 {
		all := make([]models.RankedItem, len(d.items))
		for i, e := range d.items {
			all[i] = e.item
		}
		d.sendLocked(ctx, models.NewResultBatchEvent(d.queryID, models.ToResults(all)))
	}
	if d.cancelled {
		return false
	}
	d.sendLocked(ctx, models.NewCompleteEvent(d.queryID))
	d.completed = true
	return true
}

func (d *Dispatcher) emitLocked(ctx context.Context, ev models.ProtocolEvent) bool {
	if d.closedLocked() {
		metrics.EventsDropped.WithLabelValues(string(ev.MessageType)).Inc()
		d.logger.Debug("event dropped after stream closed", map[string]interface{}{
			"messageType": ev.MessageType,
		})
		return false
	}
	ev.QueryID = d.queryID
	d.record(ev)
	if !d.opts.Streaming {
		return true
	}
	return d.sendLocked(ctx, ev)
}

func (d *Dispatcher) flushLocked(ctx context.Context) bool {
	if len(d.pending) == 0 {
		return true
	}
	batch := d.pending
	d.pending = nil
	return d.sendLocked(ctx, models.NewResultBatchEvent(d.queryID, models.ToResults(batch)))
}

// record keeps the fields the aggregated Response carries.
func (d *Dispatcher) record(ev models.ProtocolEvent) {
	switch ev.MessageType {
	case models.MessageDecontextualizedQuery:
		d.resp.DecontextualizedQuery = ev.DecontextualizedQuery
	case models.MessageSummary:
		d.resp.Summary = ev.Message
	case models.MessageNLWS:
		d.resp.Answer = ev.Answer
	}
	d.resp.Messages = append(d.resp.Messages, ev)
}

func (d *Dispatcher) sendLocked(ctx context.Context, ev models.ProtocolEvent) bool {
	if d.sink == nil {
		return true
	}
	if err := d.sink.Send(ctx, ev); err != nil {
		d.logger.Warn("event sink failed, cancelling query", map[string]interface{}{
			"messageType": ev.MessageType,
			"error":       err,
		})
		d.cancelled = true
		d.resp.Cancelled = true
		d.pending = nil
		if d.opts.OnSinkError != nil {
			d.opts.OnSinkError(err)
		}
		return false
	}
	metrics.EventsEmitted.WithLabelValues(string(ev.MessageType)).Inc()
	return true
}
