package prompt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "nlweb-orchestrator/internal/common/errors"
	"nlweb-orchestrator/internal/common/logger"
	"nlweb-orchestrator/internal/models"
)

type fakeCompleter struct {
	mu      sync.Mutex
	reply   string
	err     error
	delay   time.Duration
	prompts []string
	levels  []models.ModelLevel
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string, _ map[string]interface{}, level models.ModelLevel) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.levels = append(f.levels, level)
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

func newTestInvoker(t *testing.T, c Completer) *Invoker {
	return NewInvoker(c, NewRegistry(nil), logger.NewTestLogger(t))
}

func rankingVars() map[string]string {
	return map[string]string{
		"site.itemType":    "Recipe",
		"request.query":    "vegetarian lasagna",
		"request.memory":   "none",
		"item.description": `{"name":"Spinach Lasagna"}`,
	}
}

func TestInvoker_Run_ParsesValidOutput(t *testing.T) {
	c := &fakeCompleter{reply: `{"score": 82, "description": "Layered spinach and ricotta bake."}`}
	inv := newTestInvoker(t, c)

	res, err := inv.Run(context.Background(), PromptRanking, "Recipe", rankingVars())
	require.NoError(t, err)

	score, ok := res.Int("score")
	assert.True(t, ok)
	assert.Equal(t, 82, score)
	assert.Equal(t, "Layered spinach and ricotta bake.", res.String("description"))
	require.Len(t, c.prompts, 1)
	assert.Contains(t, c.prompts[0], "vegetarian lasagna")
	assert.Equal(t, models.LevelLow, c.levels[0])
}

func TestInvoker_Run_RepairsFencedAndSloppyJSON(t *testing.T) {
	c := &fakeCompleter{reply: "Sure!\n```json\n{'score': '64', 'description': 'Quick weeknight dish',}\n```"}
	inv := newTestInvoker(t, c)

	res, err := inv.Run(context.Background(), PromptRanking, "Recipe", rankingVars())
	require.NoError(t, err)

	score, ok := res.Int("score")
	assert.True(t, ok)
	assert.Equal(t, 64, score)
}

func TestInvoker_Run_SchemaViolation(t *testing.T) {
	c := &fakeCompleter{reply: `{"description": "no score here"}`}
	inv := newTestInvoker(t, c)

	_, err := inv.Run(context.Background(), PromptRanking, "Recipe", rankingVars())
	assert.ErrorIs(t, err, apperrors.ErrMalformedModelOutput)
}

func TestInvoker_Run_NotJSON(t *testing.T) {
	c := &fakeCompleter{reply: ""}
	inv := newTestInvoker(t, c)

	_, err := inv.Run(context.Background(), PromptRanking, "Recipe", rankingVars())
	assert.ErrorIs(t, err, apperrors.ErrMalformedModelOutput)
}

func TestInvoker_Run_ProviderError(t *testing.T) {
	c := &fakeCompleter{err: errors.New("503 from upstream")}
	inv := newTestInvoker(t, c)

	_, err := inv.Run(context.Background(), PromptRanking, "Recipe", rankingVars())
	assert.ErrorIs(t, err, apperrors.ErrProviderError)
}

func TestInvoker_Run_TimeoutIsProviderError(t *testing.T) {
	c := &fakeCompleter{reply: `{"score": 1, "description": "x"}`, delay: time.Second}
	inv := newTestInvoker(t, c)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := inv.Run(ctx, PromptRanking, "Recipe", rankingVars())
	require.ErrorIs(t, err, apperrors.ErrProviderError)
	assert.Contains(t, err.Error(), "timeout")
}

func TestInvoker_Run_MissingVariableSkipsCall(t *testing.T) {
	c := &fakeCompleter{reply: `{}`}
	inv := newTestInvoker(t, c)

	vars := rankingVars()
	delete(vars, "item.description")
	_, err := inv.Run(context.Background(), PromptRanking, "Recipe", vars)

	assert.ErrorIs(t, err, apperrors.ErrMissingVariable)
	assert.Empty(t, c.prompts)
}

func TestInvoker_ConcurrentUse(t *testing.T) {
	c := &fakeCompleter{reply: `{"score": 50, "description": "ok"}`}
	inv := newTestInvoker(t, c)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := inv.Run(context.Background(), PromptRanking, "Recipe", rankingVars())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Len(t, c.prompts, 20)
}

func TestResult_Accessors(t *testing.T) {
	r := Result{
		"flag_a": "True",
		"flag_b": false,
		"score":  "71.6",
		"urls":   []interface{}{"https://a", "", 3, "https://b"},
	}

	assert.True(t, r.Bool("flag_a"))
	assert.False(t, r.Bool("flag_b"))
	assert.False(t, r.Bool("absent"))
	n, ok := r.Int("score")
	assert.True(t, ok)
	assert.Equal(t, 72, n)
	assert.Equal(t, []string{"https://a", "https://b"}, r.Strings("urls"))
}
