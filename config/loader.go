// =============================================================================
// 📦 Seedforge 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("SEEDFORGE").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/seedforge/llm"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 Seedforge 的完整配置结构
type Config struct {
	// LLM 路由配置
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Search 搜索配置
	Search SearchConfig `yaml:"search" env:"SEARCH"`

	// RAG 种子生成配置
	RAG RAGConfig `yaml:"rag" env:"RAG"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Providers 各厂商实例配置
	Providers []llm.ProviderConfig `yaml:"providers" env:"-"`
}

// LLMConfig 路由层配置
type LLMConfig struct {
	// 是否启用多 Provider 路由；关闭时只初始化默认 Provider
	EnableMultiLLM bool `yaml:"enable_multi_llm_support" env:"ENABLE_MULTI_LLM_SUPPORT"`
	// 主 Provider 名，或 "auto"
	PrimaryProvider string `yaml:"primary_provider" env:"PRIMARY_PROVIDER"`
	// auto 模式下的优先顺序
	PreferredProviders []string `yaml:"preferred_providers" env:"-"`
	// 回退顺序（未列出的按注册顺序补齐）
	FallbackProviders []string `yaml:"fallback_providers" env:"-"`
	// 是否自动回退
	AutoFallback bool `yaml:"auto_fallback" env:"AUTO_FALLBACK"`
	// 健康快照节流间隔
	HealthCheckInterval time.Duration `yaml:"health_check_interval" env:"HEALTH_CHECK_INTERVAL"`
	// 是否做 token 用量与成本核算
	TokenUsageTracking bool `yaml:"token_usage_tracking" env:"TOKEN_USAGE_TRACKING"`
}

// SearchConfig 搜索层配置
type SearchConfig struct {
	// 是否启用真实搜索后端；关闭时一律走 mock
	EnableRealWebSearch bool `yaml:"enable_real_web_search" env:"ENABLE_REAL_WEB_SEARCH"`
	// Tavily API Key（可经环境变量注入）
	TavilyAPIKey string `yaml:"tavily_api_key" env:"TAVILY_API_KEY"`
	// 单次查询返回上限
	MaxResults int `yaml:"max_search_results" env:"MAX_RESULTS"`
	// 全局限速间隔
	RateLimitInterval time.Duration `yaml:"search_rate_limit_interval" env:"RATE_LIMIT_INTERVAL"`
	// 可重试错误的最大重试次数
	MaxRetries int `yaml:"search_max_retries" env:"MAX_RETRIES"`
	// 重试基础延迟
	RetryBaseDelay time.Duration `yaml:"search_retry_base_delay" env:"RETRY_BASE_DELAY"`
}

// RAGConfig 种子生成配置
type RAGConfig struct {
	// 是否并行分发搜索
	EnableParallelSearch bool `yaml:"enable_parallel_search" env:"ENABLE_PARALLEL_SEARCH"`
	// 并行工作协程上限
	MaxSearchWorkers int `yaml:"max_search_workers" env:"MAX_SEARCH_WORKERS"`
	// 各缓存容量
	CacheSize int `yaml:"cache_size" env:"CACHE_SIZE"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "SEEDFORGE",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				// 兼容裸秒数写法
				secs, ferr := strconv.ParseFloat(value, 64)
				if ferr != nil {
					return err
				}
				d = time.Duration(secs * float64(time.Second))
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(strings.ToLower(value))
		if err != nil {
			return err
		}
		field.SetBool(b)

	default:
		return fmt.Errorf("unsupported field kind: %s", field.Kind())
	}

	return nil
}

// MustLoad 加载配置，失败即 panic（仅用于程序入口）
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("config load failed: %v", err))
	}
	return cfg
}
