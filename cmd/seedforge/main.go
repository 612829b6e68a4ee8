// =============================================================================
// Seedforge 主入口
// =============================================================================
// 思考种子生成与验证的命令行封装：加载配置，装配路由器、搜索适配器与
// 能力注册中心，跑完 生成 → 验证 流水线并打印结果。
//
// 使用方法:
//
//	seedforge run "查询文本"                    # 生成并验证思考种子
//	seedforge run --config config.yaml "..."   # 指定配置文件
//	seedforge run --skip-verify "..."          # 只生成不验证
//	seedforge version                          # 显示版本信息
// =============================================================================
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/seedforge/config"
	"github.com/BaSui01/seedforge/internal/metrics"
	"github.com/BaSui01/seedforge/llm"
	"github.com/BaSui01/seedforge/llm/factory"
	"github.com/BaSui01/seedforge/search"
	"github.com/BaSui01/seedforge/seed"
	"github.com/BaSui01/seedforge/tools"
	"github.com/BaSui01/seedforge/verify"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runPipeline(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// 🎯 run 命令
// =============================================================================

func runPipeline(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	skipVerify := fs.Bool("skip-verify", false, "Generate the seed without verification")
	fs.Parse(args)

	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		fmt.Fprintln(os.Stderr, "run: query text is required")
		os.Exit(1)
	}

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting Seedforge",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	collector := metrics.NewCollector("seedforge", logger)
	ctx := context.Background()

	// LLM 路由器
	opts := cfg.RouterOptions()
	opts.Logger = logger
	opts.Metrics = collector
	router, err := factory.BuildRouter(ctx, cfg.ProviderConfigs(), cfg.LLM.PrimaryProvider, opts)
	if err != nil {
		logger.Fatal("Failed to build LLM router", zap.Error(err))
	}

	// 搜索适配器：有真实后端凭证时用 Tavily，否则 Mock。
	var backend search.Client
	if cfg.Search.EnableRealWebSearch && cfg.Search.TavilyAPIKey != "" {
		backend = search.NewTavilyClient(search.TavilyConfig{APIKey: cfg.Search.TavilyAPIKey}, logger)
	} else if cfg.Search.EnableRealWebSearch {
		logger.Warn("real web search enabled but no tavily api key, using mock backend")
	}
	adapter := search.NewAdapter(cfg.AdapterConfig(), backend, nil, logger)
	adapter.SetMetrics(collector)

	// 能力注册中心
	registry := tools.NewRegistry(logger)
	if err := tools.RegisterWebSearch(registry, adapter); err != nil {
		logger.Fatal("Failed to register web_search", zap.Error(err))
	}
	if err := tools.RegisterIdeaVerification(registry, router, adapter); err != nil {
		logger.Fatal("Failed to register idea_verification", zap.Error(err))
	}

	// 生成
	generator := seed.NewGenerator(router, adapter, cfg.GeneratorConfig(), logger)
	generator.SetMetrics(collector)
	thinkingSeed := generator.Generate(ctx, query, nil)

	fmt.Println("=== Thinking Seed ===")
	fmt.Println(thinkingSeed)

	if *skipVerify {
		printStats(router)
		return
	}

	// 验证
	verifier := verify.NewVerifier(router, registry, adapter, logger)
	vc := verifier.Verify(ctx, &verify.ThinkingSeedContext{
		UserQuery:    query,
		ThinkingSeed: thinkingSeed,
	}, nil)

	fmt.Println()
	fmt.Println("=== Verified Seed ===")
	fmt.Println(vc.EnhancedSeed)
	fmt.Println()
	fmt.Printf("feasibility_score:   %.2f\n", vc.FeasibilityScore)
	fmt.Printf("verification_method: %s\n", vc.VerificationMethod)
	fmt.Printf("search_dimensions:   %d\n", len(vc.SearchDimensions))
	fmt.Printf("sources:             %d\n", len(vc.Sources))
	if len(vc.Errors) > 0 {
		fmt.Printf("degradations:        %s\n", strings.Join(vc.Errors, "; "))
	}
	printStats(router)
}

func printStats(router *llm.Router) {
	stats := router.Stats()
	fmt.Println()
	fmt.Println("=== Router Stats ===")
	fmt.Printf("requests: %d total, %d ok, %d failed, %d fallbacks\n",
		stats.TotalRequests, stats.SuccessfulRequests, stats.FailedRequests, stats.FallbackCount)
	for name, n := range stats.ProviderUsage {
		fmt.Printf("  %-12s %d requests, $%.4f\n", name, n, stats.ProviderCost[name])
	}
}

// =============================================================================
// 🛠️ 辅助函数
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	level := zapcore.InfoLevel
	_ = level.Set(cfg.Level)

	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func printVersion() {
	fmt.Printf("seedforge %s (built %s, commit %s)\n", Version, BuildTime, GitCommit)
}

func printUsage() {
	fmt.Println(`Seedforge - retrieval-augmented thinking seed engine

Usage:
  seedforge run [--config config.yaml] [--skip-verify] "query"
  seedforge version
  seedforge help`)
}
