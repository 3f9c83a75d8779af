package prompt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kaptinlin/jsonrepair"
	"github.com/xeipuuv/gojsonschema"

	apperrors "nlweb-orchestrator/internal/common/errors"
	"nlweb-orchestrator/internal/common/logger"
	"nlweb-orchestrator/internal/common/metrics"
	"nlweb-orchestrator/internal/models"
)

// Completer is the language-model collaborator. It returns the raw text of a
// response that was asked to follow schema.
type Completer interface {
	Complete(ctx context.Context, prompt string, schema map[string]interface{}, level models.ModelLevel) (string, error)
}

// Invoker fills templates, calls the model and validates what comes back.
// It never retries; callers decide what a failure means for them.
type Invoker struct {
	client   Completer
	registry *Registry
	logger   logger.Logger

	schemas sync.Map // canonical schema JSON -> *gojsonschema.Schema
}

func NewInvoker(client Completer, reg *Registry, log logger.Logger) *Invoker {
	return &Invoker{
		client:   client,
		registry: reg,
		logger:   log.With(map[string]interface{}{"component": "prompt-invoker"}),
	}
}

func (i *Invoker) Registry() *Registry {
	return i.registry
}

// Run resolves name for itemType and invokes it.
func (i *Invoker) Run(ctx context.Context, name, itemType string, vars map[string]string) (Result, error) {
	tmpl, err := i.registry.Resolve(name, itemType)
	if err != nil {
		return nil, err
	}
	return i.Invoke(ctx, tmpl.Invocation(vars))
}

// Invoke fails with MissingVariable, ProviderError or MalformedModelOutput.
func (i *Invoker) Invoke(ctx context.Context, inv models.PromptInvocation) (Result, error) {
	text, err := Fill(inv.TemplateName, inv.Template, inv.Variables)
	if err != nil {
		metrics.ModelCalls.WithLabelValues(inv.TemplateName, "missing_variable").Inc()
		return nil, err
	}

	start := time.Now()
	raw, err := i.client.Complete(ctx, text, inv.OutputSchema, inv.Level)
	metrics.ModelCallDuration.WithLabelValues(inv.TemplateName).Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timeout after %s: %w", time.Since(start).Round(time.Millisecond), err)
		}
		metrics.ModelCalls.WithLabelValues(inv.TemplateName, "provider_error").Inc()
		return nil, apperrors.NewProviderError(inv.TemplateName, err)
	}

	result, err := i.parse(inv, raw)
	if err != nil {
		metrics.ModelCalls.WithLabelValues(inv.TemplateName, "malformed").Inc()
		i.logger.Debug("model output rejected", map[string]interface{}{
			"template": inv.TemplateName,
			"error":    err.Error(),
		})
		return nil, apperrors.NewMalformedModelOutputError(inv.TemplateName, err)
	}

	metrics.ModelCalls.WithLabelValues(inv.TemplateName, "ok").Inc()
	return result, nil
}

func (i *Invoker) parse(inv models.PromptInvocation, raw string) (Result, error) {
	doc, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}
	if len(inv.OutputSchema) == 0 {
		return doc, nil
	}

	schema, err := i.compiled(inv.OutputSchema)
	if err != nil {
		return nil, fmt.Errorf("output schema: %w", err)
	}
	res, err := schema.Validate(gojsonschema.NewGoLoader(map[string]interface{}(doc)))
	if err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("schema violations: %s", strings.Join(msgs, "; "))
	}
	return doc, nil
}

func (i *Invoker) compiled(schemaMap map[string]interface{}) (*gojsonschema.Schema, error) {
	key, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, err
	}
	if s, ok := i.schemas.Load(string(key)); ok {
		return s.(*gojsonschema.Schema), nil
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
	if err != nil {
		return nil, err
	}
	i.schemas.Store(string(key), s)
	return s, nil
}

// decodeObject pulls the JSON object out of a model response, repairing
// trailing commas, single quotes and similar slips before giving up.
func decodeObject(raw string) (Result, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start > 0 {
		s = s[start:]
	}
	if end := strings.LastIndex(s, "}"); end >= 0 && end < len(s)-1 {
		s = s[:end+1]
	}
	if s == "" {
		return nil, errors.New("empty response")
	}

	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(s), &doc); err == nil {
		return doc, nil
	}

	repaired, err := jsonrepair.JSONRepair(s)
	if err != nil {
		return nil, fmt.Errorf("unrepairable json: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &doc); err != nil {
		return nil, fmt.Errorf("response is not a json object: %w", err)
	}
	return doc, nil
}
