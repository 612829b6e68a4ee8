package config

import (
	"fmt"
	"time"

	"github.com/BaSui01/seedforge/llm"
	"github.com/BaSui01/seedforge/search"
	"github.com/BaSui01/seedforge/seed"
)

// DefaultConfig 返回全量默认配置。
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			EnableMultiLLM:      true,
			PrimaryProvider:     llm.PrimaryAuto,
			AutoFallback:        true,
			HealthCheckInterval: 5 * time.Minute,
			TokenUsageTracking:  true,
		},
		Search: SearchConfig{
			EnableRealWebSearch: false,
			MaxResults:          8,
			RateLimitInterval:   1500 * time.Millisecond,
			MaxRetries:          2,
			RetryBaseDelay:      2 * time.Second,
		},
		RAG: RAGConfig{
			EnableParallelSearch: true,
			MaxSearchWorkers:     3,
			CacheSize:            256,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate 做启动前的静态校验。
func (c *Config) Validate() error {
	if c.RAG.MaxSearchWorkers <= 0 {
		return fmt.Errorf("rag: max_search_workers must be positive, got %d", c.RAG.MaxSearchWorkers)
	}
	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("search: max_search_results must be positive, got %d", c.Search.MaxResults)
	}
	if c.Search.RateLimitInterval < 0 {
		return fmt.Errorf("search: search_rate_limit_interval must not be negative")
	}
	names := make(map[string]struct{}, len(c.Providers))
	for i := range c.Providers {
		p := &c.Providers[i]
		if p.Vendor == "" {
			return fmt.Errorf("providers[%d]: vendor is required", i)
		}
		name := p.Name
		if name == "" {
			name = string(p.Vendor)
		}
		if _, dup := names[name]; dup {
			return fmt.Errorf("providers: duplicate name %q", name)
		}
		names[name] = struct{}{}
	}
	return nil
}

// ProviderConfigs 返回参与初始化的 Provider 集。
// enable_multi_llm_support 关闭时折叠为仅默认 Provider。
func (c *Config) ProviderConfigs() []llm.ProviderConfig {
	if c.LLM.EnableMultiLLM || len(c.Providers) <= 1 {
		return c.Providers
	}
	primary := c.LLM.PrimaryProvider
	for _, p := range c.Providers {
		name := p.Name
		if name == "" {
			name = string(p.Vendor)
		}
		if name == primary {
			return []llm.ProviderConfig{p}
		}
	}
	// 主 Provider 未命名或为 auto：取第一个启用项。
	for _, p := range c.Providers {
		if p.Enabled {
			return []llm.ProviderConfig{p}
		}
	}
	return c.Providers[:1]
}

// RouterOptions 映射为路由器选项。
func (c *Config) RouterOptions() llm.RouterOptions {
	return llm.RouterOptions{
		PrimaryProvider:     c.LLM.PrimaryProvider,
		PreferredProviders:  c.LLM.PreferredProviders,
		FallbackProviders:   c.LLM.FallbackProviders,
		AutoFallback:        c.LLM.AutoFallback,
		HealthCheckInterval: c.LLM.HealthCheckInterval,
		TokenUsageTracking:  c.LLM.TokenUsageTracking,
	}
}

// AdapterConfig 映射为搜索适配器配置。
func (c *Config) AdapterConfig() search.AdapterConfig {
	return search.AdapterConfig{
		EnableReal:     c.Search.EnableRealWebSearch,
		MaxResults:     c.Search.MaxResults,
		MaxRetries:     c.Search.MaxRetries,
		RetryBaseDelay: c.Search.RetryBaseDelay,
		RateInterval:   c.Search.RateLimitInterval,
	}
}

// GeneratorConfig 映射为种子生成器配置。
func (c *Config) GeneratorConfig() seed.GeneratorConfig {
	return seed.GeneratorConfig{
		EnableParallel: c.RAG.EnableParallelSearch,
		MaxWorkers:     c.RAG.MaxSearchWorkers,
		MaxResults:     c.Search.MaxResults,
		CacheSize:      c.RAG.CacheSize,
	}
}
