package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalConfig = `
llm:
  endpoint: http://llm.local/v1
retrieval:
  backends:
    - type: chromem
      enabled: true
`

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Ranking.MaxConcurrent)
	assert.Equal(t, 50, cfg.Ranking.Threshold)
	assert.Equal(t, 10, cfg.Ranking.MaxResults)
	assert.Equal(t, 1, cfg.Ranking.BatchSize)
	assert.Equal(t, 300000, cfg.Ranking.CacheTTL)
	assert.Equal(t, 8000, cfg.LLM.Timeout)
	assert.Equal(t, 8000, cfg.Ranking.CallTimeout)
	assert.Equal(t, 5, cfg.PostProcess.TopK)
	assert.Equal(t, "Thing", cfg.NLWeb.DefaultItemType)
	assert.Equal(t, "chromem", cfg.Retrieval.Backends[0].Name)
	assert.Equal(t, 50, cfg.Retrieval.Backends[0].TopK)

	assert.True(t, cfg.NLWeb.DecontextualizeEnabled)
	assert.True(t, cfg.NLWeb.SiteRelevanceEnabled)
	assert.True(t, cfg.NLWeb.RequiredInfoEnabled)
	assert.False(t, cfg.NLWeb.MemoryEnabled)
	assert.False(t, cfg.NLWeb.AnalyzeQueryEnabled)
}

func TestLoadFromFile_ExpandsEnv(t *testing.T) {
	t.Setenv("TEST_LLM_ENDPOINT", "http://expanded.local/v1")
	cfg, err := LoadFromFile(writeConfig(t, `
llm:
  endpoint: "${TEST_LLM_ENDPOINT}"
retrieval:
  backends:
    - type: chromem
      enabled: true
`))
	require.NoError(t, err)
	assert.Equal(t, "http://expanded.local/v1", cfg.LLM.Endpoint)
}

func TestLoadFromFile_ExplicitFalseFlags(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalConfig+`
nlweb:
  decontextualize_enabled: false
  required_info_enabled: false
`))
	require.NoError(t, err)
	assert.False(t, cfg.NLWeb.DecontextualizeEnabled)
	assert.False(t, cfg.NLWeb.RequiredInfoEnabled)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "missing llm endpoint",
			body:    "retrieval:\n  backends:\n    - type: chromem\n      enabled: true\n",
			wantErr: "llm.endpoint",
		},
		{
			name:    "no enabled backend",
			body:    "llm:\n  endpoint: x\nretrieval:\n  backends:\n    - type: chromem\n      enabled: false\n",
			wantErr: "at least one enabled retrieval backend",
		},
		{
			name:    "unknown backend type",
			body:    "llm:\n  endpoint: x\nretrieval:\n  backends:\n    - type: solr\n      enabled: true\n",
			wantErr: "unknown type",
		},
		{
			name:    "elasticsearch without index",
			body:    "llm:\n  endpoint: x\nretrieval:\n  backends:\n    - type: elasticsearch\n      enabled: true\n      url: http://es\n",
			wantErr: "index is required",
		},
		{
			name:    "threshold out of range",
			body:    minimalConfig + "ranking:\n  threshold: 140\n",
			wantErr: "ranking.threshold",
		},
		{
			name:    "site threshold out of range",
			body:    minimalConfig + "ranking:\n  site_thresholds:\n    zillow: 101\n",
			wantErr: "ranking.site_thresholds.zillow",
		},
		{
			name:    "item type threshold out of range",
			body:    minimalConfig + "ranking:\n  item_type_thresholds:\n    Movie: -1\n",
			wantErr: "ranking.item_type_thresholds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromFile_ThresholdOverrides(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalConfig+`
ranking:
  site_thresholds:
    zillow: 40
  item_type_thresholds:
    Movie: 65
`))
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Ranking.SiteThresholds["zillow"])
	// viper lower-cases map keys
	assert.Equal(t, 65, cfg.Ranking.ItemTypeThresholds["movie"])
}

func TestNLWebConfig_SitePolicy(t *testing.T) {
	n := NLWebConfig{
		Sites:           []string{"seriouseats", "imdb"},
		SiteItemTypes:   map[string]string{"seriouseats": "Recipe"},
		DefaultItemType: "Thing",
	}
	assert.True(t, n.IsSiteAllowed("SeriousEats"))
	assert.False(t, n.IsSiteAllowed("zillow"))
	assert.True(t, NLWebConfig{}.IsSiteAllowed("anything"))
	assert.Equal(t, "Recipe", n.ItemTypeFor("seriouseats"))
	assert.Equal(t, "Thing", n.ItemTypeFor("imdb"))
}

func TestGetWorkerConfig(t *testing.T) {
	cfg := &Config{
		Camunda: CamundaConfig{Enabled: true},
		Workers: map[string]WorkerConfig{"ask-nlweb": {Enabled: true, Timeout: 1000}},
	}
	assert.True(t, IsWorkerEnabled(cfg, "ask-nlweb"))
	assert.False(t, IsWorkerEnabled(cfg, "other"))
	assert.Equal(t, time.Second, GetDuration(GetWorkerConfig(cfg, "ask-nlweb").Timeout))
}
