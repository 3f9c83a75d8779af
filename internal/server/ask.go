package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "nlweb-orchestrator/internal/common/errors"
	"nlweb-orchestrator/internal/common/validation"
	"nlweb-orchestrator/internal/models"
)

type errorBody struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func (s *Server) handleAsk(c *gin.Context) {
	input, err := askInput(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Code: string(apperrors.ErrCodeInvalidRequest), Message: err.Error()})
		return
	}

	req, res := validation.ToQueryRequest(input)
	if !res.Valid {
		c.JSON(http.StatusBadRequest, errorBody{
			Code:    string(apperrors.ErrCodeInvalidRequest),
			Message: "invalid query request",
			Details: res.GetErrorMessages(),
		})
		return
	}

	if !req.Streaming {
		resp, err := s.querier.Run(c.Request.Context(), req, nil)
		if resp == nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
		return
	}

	w := newSSEWriter(c.Writer)
	stop := w.heartbeat(s.opts.Heartbeat)
	_, err = s.querier.Run(c.Request.Context(), req, w)
	stop()

	if err != nil {
		if !w.started() {
			s.writeError(c, err)
			return
		}
		s.logger.Info("streamed query ended early", map[string]interface{}{
			"queryId": req.QueryID,
			"code":    string(apperrors.CodeOf(err)),
		})
	}
}

func (s *Server) handleCancel(c *gin.Context) {
	id := c.Param("query_id")
	if !s.querier.Cancel(id) {
		c.JSON(http.StatusNotFound, errorBody{Code: "NOT_FOUND", Message: "no query in flight with id " + id})
		return
	}
	c.JSON(http.StatusOK, gin.H{"query_id": id, "cancelled": true})
}

func (s *Server) handleSites(c *gin.Context) {
	if s.sites == nil {
		c.JSON(http.StatusOK, gin.H{"sites": []string{}})
		return
	}
	sites, err := s.sites.Sites(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	if sites == nil {
		sites = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"sites": sites})
}

func (s *Server) writeError(c *gin.Context, err error) {
	stdErr := apperrors.Normalize(err)
	status := statusFor(stdErr.Code)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", map[string]interface{}{"error": err, "code": string(stdErr.Code)})
	}
	body := errorBody{Code: string(stdErr.Code), Message: stdErr.Message}
	if stdErr.Details != "" {
		body.Details = []string{stdErr.Details}
	}
	c.JSON(status, body)
}

func statusFor(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case apperrors.ErrCodeQueryCancelled:
		return 499
	case apperrors.ErrCodeBackendUnavailable, apperrors.ErrCodeProviderError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// askInput collects the request fields from the query string (GET) or the
// JSON body (POST) into the map form the validator expects.
func askInput(c *gin.Context) (map[string]interface{}, error) {
	if c.Request.Method == http.MethodPost {
		input := make(map[string]interface{})
		if err := c.ShouldBindJSON(&input); err != nil {
			return nil, fmt.Errorf("invalid JSON body: %w", err)
		}
		return input, nil
	}

	input := make(map[string]interface{})
	for _, key := range []string{"query", "query_id", "site", "decontextualized_query",
		"generate_mode", "mode", "context_url", "context_description"} {
		if v, ok := c.GetQuery(key); ok {
			input[key] = v
		}
	}
	if prev := c.QueryArray("prev"); len(prev) > 0 {
		var list []interface{}
		for _, p := range prev {
			for _, part := range strings.Split(p, ",") {
				if part = strings.TrimSpace(part); part != "" {
					list = append(list, part)
				}
			}
		}
		input["prev"] = list
	}
	if v, ok := c.GetQuery("streaming"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("streaming must be a boolean")
		}
		input["streaming"] = b
	}
	return input, nil
}

// sseWriter is the stream.Sink of one HTTP response. Headers go out with the
// first event so that errors raised before any event can still use a plain
// JSON status response.
type sseWriter struct {
	mu     sync.Mutex
	w      gin.ResponseWriter
	opened bool
	failed error
}

func newSSEWriter(w gin.ResponseWriter) *sseWriter {
	return &sseWriter{w: w}
}

func (s *sseWriter) Send(_ context.Context, ev models.ProtocolEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked("data: " + string(data) + "\n\n")
}

func (s *sseWriter) started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

func (s *sseWriter) writeLocked(frame string) error {
	if s.failed != nil {
		return s.failed
	}
	if !s.opened {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.w.WriteHeader(http.StatusOK)
		s.opened = true
	}
	if _, err := s.w.WriteString(frame); err != nil {
		s.failed = err
		return err
	}
	s.w.Flush()
	return nil
}

// heartbeat writes an SSE comment on every tick once the stream is open.
// The returned func stops it and waits for the goroutine to exit.
func (s *sseWriter) heartbeat(every time.Duration) func() {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.mu.Lock()
				if s.opened {
					_ = s.writeLocked(": heartbeat\n\n")
				}
				s.mu.Unlock()
			}
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}
