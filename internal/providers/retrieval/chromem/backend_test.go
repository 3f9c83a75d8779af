package chromem

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlweb-orchestrator/internal/common/logger"
	"nlweb-orchestrator/internal/models"
)

// letterEmbedding is a deterministic stand-in for a model: a letter histogram
// with a constant component so no vector is zero.
func letterEmbedding(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, 27)
	vec[26] = 1
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			vec[r-'a']++
		}
	}
	return vec, nil
}

func newBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := New(Config{Name: "local"}, letterEmbedding, logger.NewTestLogger(t))
	require.NoError(t, err)
	return b
}

func item(name, site string) models.CandidateItem {
	return models.CandidateItem{
		URL:    "https://" + site + ".example/" + strings.ReplaceAll(strings.ToLower(name), " ", "-"),
		Name:   name,
		Site:   site,
		Schema: map[string]interface{}{"@type": "Recipe", "name": name},
	}
}

func TestBackend_EmptyCollectionReturnsNothing(t *testing.T) {
	items, err := newBackend(t).Search(context.Background(), "soup", nil, 10)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestBackend_UpsertSearchRoundTrip(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	n, err := b.Upsert(ctx, []models.CandidateItem{
		item("Tomato Soup", "seriouseats"),
		item("Chocolate Cake", "seriouseats"),
		item("Jaws", "imdb"),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// topK above the collection size is clamped rather than rejected
	items, err := b.Search(ctx, "tomato soup", nil, 50)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "Tomato Soup", items[0].Name)
	assert.Equal(t, "local", items[0].Backend)
	assert.Equal(t, "Recipe", items[0].Schema["@type"])
}

func TestBackend_SearchFiltersBySite(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	_, err := b.Upsert(ctx, []models.CandidateItem{item("Tomato Soup", "seriouseats"), item("Jaws", "imdb")})
	require.NoError(t, err)

	items, err := b.Search(ctx, "soup", []string{"IMDB"}, 5)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Jaws", items[0].Name)
}

func TestBackend_LookupURL(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	soup := item("Tomato Soup", "seriouseats")
	_, err := b.Upsert(ctx, []models.CandidateItem{soup})
	require.NoError(t, err)

	got, err := b.LookupURL(ctx, soup.URL)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Tomato Soup", got.Name)

	missing, err := b.LookupURL(ctx, "https://nowhere.example/x")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestBackend_DeleteItemsByIdentity(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	soup, cake := item("Tomato Soup", "seriouseats"), item("Chocolate Cake", "seriouseats")
	_, err := b.Upsert(ctx, []models.CandidateItem{soup, cake})
	require.NoError(t, err)

	n, err := b.DeleteItems(ctx, []string{soup.Identity(), "https://unknown.example/"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, b.Count())

	n, err = b.DeleteItems(ctx, []string{"https://unknown.example/"})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBackend_UpsertReplacesSameIdentity(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	soup := item("Tomato Soup", "seriouseats")
	_, err := b.Upsert(ctx, []models.CandidateItem{soup})
	require.NoError(t, err)
	soup.Name = "Roasted Tomato Soup"
	_, err = b.Upsert(ctx, []models.CandidateItem{soup})
	require.NoError(t, err)

	assert.Equal(t, 1, b.Count())
	got, _ := b.LookupURL(ctx, soup.URL)
	require.NotNil(t, got)
	assert.Equal(t, "Roasted Tomato Soup", got.Name)
}
