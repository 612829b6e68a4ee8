package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BaSui01/seedforge/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	assert.True(t, cfg.LLM.EnableMultiLLM)
	assert.Equal(t, llm.PrimaryAuto, cfg.LLM.PrimaryProvider)
	assert.True(t, cfg.LLM.AutoFallback)
	assert.Equal(t, 5*time.Minute, cfg.LLM.HealthCheckInterval)
	assert.False(t, cfg.Search.EnableRealWebSearch)
	assert.Equal(t, 8, cfg.Search.MaxResults)
	assert.Equal(t, 1500*time.Millisecond, cfg.Search.RateLimitInterval)
	assert.Equal(t, 2, cfg.Search.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Search.RetryBaseDelay)
	assert.True(t, cfg.RAG.EnableParallelSearch)
	assert.Equal(t, 3, cfg.RAG.MaxSearchWorkers)
	require.NoError(t, cfg.Validate())
}

func TestLoader_YAMLOverridesDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
llm:
  primary_provider: deepseek
  auto_fallback: false
search:
  enable_real_web_search: true
  max_search_results: 5
rag:
  max_search_workers: 6
providers:
  - vendor: deepseek
    name: deepseek
    model: deepseek-chat
    api_key_env: DEEPSEEK_API_KEY
    enabled: true
  - vendor: openai
    model: gpt-4o-mini
    api_key_env: OPENAI_API_KEY
    enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "deepseek", cfg.LLM.PrimaryProvider)
	assert.False(t, cfg.LLM.AutoFallback)
	assert.True(t, cfg.Search.EnableRealWebSearch)
	assert.Equal(t, 5, cfg.Search.MaxResults)
	assert.Equal(t, 6, cfg.RAG.MaxSearchWorkers)
	// 文件没写的键保持默认值。
	assert.Equal(t, 2, cfg.Search.MaxRetries)

	require.Len(t, cfg.Providers, 2)
	assert.Equal(t, llm.VendorDeepSeek, cfg.Providers[0].Vendor)
	assert.Equal(t, "DEEPSEEK_API_KEY", cfg.Providers[0].APIKeyEnv)
	require.NoError(t, cfg.Validate())
}

func TestLoader_EnvOverridesFile(t *testing.T) {
	t.Setenv("SEEDFORGE_SEARCH_MAX_RESULTS", "4")
	t.Setenv("SEEDFORGE_LLM_AUTO_FALLBACK", "false")
	t.Setenv("SEEDFORGE_RAG_MAX_SEARCH_WORKERS", "9")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Search.MaxResults)
	assert.False(t, cfg.LLM.AutoFallback)
	assert.Equal(t, 9, cfg.RAG.MaxSearchWorkers)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Search.MaxResults, cfg.Search.MaxResults)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.RAG.MaxSearchWorkers = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Providers = []llm.ProviderConfig{
		{Vendor: llm.VendorOpenAI, Name: "dup"},
		{Vendor: llm.VendorDeepSeek, Name: "dup"},
	}
	assert.Error(t, cfg.Validate(), "duplicate provider names must be rejected")

	cfg = DefaultConfig()
	cfg.Providers = []llm.ProviderConfig{{Name: "no-vendor"}}
	assert.Error(t, cfg.Validate(), "vendor is mandatory")
}

// enable_multi_llm_support=false 折叠为仅主 Provider。
func TestProviderConfigs_CollapseWhenMultiLLMDisabled(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.LLM.EnableMultiLLM = false
	cfg.LLM.PrimaryProvider = "openai"
	cfg.Providers = []llm.ProviderConfig{
		{Vendor: llm.VendorDeepSeek, Name: "deepseek", Enabled: true},
		{Vendor: llm.VendorOpenAI, Name: "openai", Enabled: true},
	}

	got := cfg.ProviderConfigs()
	require.Len(t, got, 1)
	assert.Equal(t, "openai", got[0].Name)

	// 主选是 auto 时取第一个启用项。
	cfg.LLM.PrimaryProvider = llm.PrimaryAuto
	got = cfg.ProviderConfigs()
	require.Len(t, got, 1)
	assert.Equal(t, "deepseek", got[0].Name)
}

func TestConfigMappings(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.LLM.PreferredProviders = []string{"a", "b"}

	opts := cfg.RouterOptions()
	assert.Equal(t, cfg.LLM.PrimaryProvider, opts.PrimaryProvider)
	assert.Equal(t, []string{"a", "b"}, opts.PreferredProviders)

	ac := cfg.AdapterConfig()
	assert.Equal(t, cfg.Search.MaxResults, ac.MaxResults)
	assert.Equal(t, cfg.Search.RateLimitInterval, ac.RateInterval)

	gc := cfg.GeneratorConfig()
	assert.Equal(t, cfg.RAG.MaxSearchWorkers, gc.MaxWorkers)
	assert.True(t, gc.EnableParallel)
}
