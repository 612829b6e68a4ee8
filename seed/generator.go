// Package seed 实现三阶段 RAG 种子流水线：规划 → 搜索 → 综合。
// 产物是一段 200-400 字、以检索事实为根据的"思考种子"，
// 供下游规划消费。Generate 对调用方永不失败，内部逐级降级。
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/seedforge/search"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// LLM 是生成器需要的最小补全能力；*llm.Router 满足该接口。
type LLM interface {
	Call(ctx context.Context, prompt, system string, temperature float32) (string, error)
}

// Searcher 是生成器需要的搜索能力；*search.Adapter 满足该接口。
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) *search.Response
}

// CacheMetrics 解耦缓存命中指标；internal/metrics.Collector 实现它。
type CacheMetrics interface {
	IncCacheHit(cache string)
	IncCacheMiss(cache string)
}

// GeneratorConfig 汇集种子生成相关的配置键。
type GeneratorConfig struct {
	EnableParallel bool // 默认 true
	MaxWorkers     int  // 默认 3
	MaxResults     int  // 合并保留数，默认 8
	CacheSize      int  // 各缓存容量，默认 256
}

func (c GeneratorConfig) withDefaults() GeneratorConfig {
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 3
	}
	if c.MaxResults <= 0 {
		c.MaxResults = search.DefaultTopK
	}
	if c.CacheSize <= 0 {
		c.CacheSize = defaultCacheSize
	}
	return c
}

// Generator 生成基于检索上下文的思考种子。
type Generator struct {
	llm      LLM
	searcher Searcher
	cfg      GeneratorConfig
	logger   *zap.Logger

	strategyCache *lruCache // (query, hash(context)) -> *SearchStrategy
	infoCache     *lruCache // query -> []search.Result
	synthCache    *lruCache // hash(query, result URLs) -> *Synthesis
	metrics       CacheMetrics

	now func() time.Time // 测试注入
}

func NewGenerator(llmClient LLM, searcher Searcher, cfg GeneratorConfig, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &Generator{
		llm:           llmClient,
		searcher:      searcher,
		cfg:           cfg,
		logger:        logger,
		strategyCache: newLRUCache(cfg.CacheSize),
		infoCache:     newLRUCache(cfg.CacheSize),
		synthCache:    newLRUCache(cfg.CacheSize),
		now:           time.Now,
	}
}

// SetClock 注入时间源，仅用于测试年份注入。
func (g *Generator) SetClock(now func() time.Time) { g.now = now }

// SetMetrics 注入缓存指标采集器。
func (g *Generator) SetMetrics(m CacheMetrics) { g.metrics = m }

// cacheGet 查缓存并上报命中/未命中。
func (g *Generator) cacheGet(c *lruCache, name, key string) (any, bool) {
	v, ok := c.get(key)
	if g.metrics != nil {
		if ok {
			g.metrics.IncCacheHit(name)
		} else {
			g.metrics.IncCacheMiss(name)
		}
	}
	return v, ok
}

// ClearCache 清空策略、信息与综合三个缓存。
func (g *Generator) ClearCache() {
	g.strategyCache.purge()
	g.infoCache.purge()
	g.synthCache.purge()
}

// Generate 执行完整流水线并返回思考种子文本。内部失败逐级降级，
// 永不向调用方抛出。
func (g *Generator) Generate(ctx context.Context, query string, extra map[string]string) string {
	start := time.Now()
	strategy := g.PlanStrategy(ctx, query, extra)
	queries := g.BuildQueries(strategy, query)
	results := g.executeSearches(ctx, queries)
	merged := search.DedupRank(results, strategy.PrimaryKeywords, strategy.SecondaryKeywords, g.cfg.MaxResults)
	synth := g.Synthesize(ctx, query, strategy, merged)

	g.logger.Info("thinking seed generated",
		zap.String("query", truncateRunes(query, 60)),
		zap.Int("queries", len(queries)),
		zap.Int("merged_results", len(merged)),
		zap.Float64("confidence", synth.Confidence),
		zap.String("status", string(synth.Status)),
		zap.Duration("duration", time.Since(start)))
	return synth.ContextualSeed
}

// ============================================================================
// 阶段 1：规划
// ============================================================================

// PlanStrategy 产出检索策略。命中缓存直接返回；LLM 失败退化为启发式。
func (g *Generator) PlanStrategy(ctx context.Context, query string, extra map[string]string) *SearchStrategy {
	extraText := flattenContext(extra)
	cacheKey := query + "|" + hashText(extraText)
	if v, ok := g.cacheGet(g.strategyCache, "strategy", cacheKey); ok {
		return v.(*SearchStrategy)
	}

	year := g.now().Year()
	timeSensitive := HasTimeToken(query)

	strategy := g.planViaLLM(ctx, query, extraText, year, timeSensitive)
	if strategy == nil {
		strategy = fallbackStrategy(query, year)
	}
	g.ensureYearKeyword(strategy, year, timeSensitive)

	g.strategyCache.set(cacheKey, strategy)
	return strategy
}

func (g *Generator) planViaLLM(ctx context.Context, query, extraText string, year int, timeSensitive bool) *SearchStrategy {
	out, err := g.llm.Call(ctx, strategyPrompt(query, extraText, year, timeSensitive), "", 0.3)
	if err != nil {
		g.logger.Warn("strategy planning via llm failed, falling back to heuristic",
			zap.String("query", truncateRunes(query, 60)), zap.Error(err))
		return nil
	}
	var s SearchStrategy
	if err := json.Unmarshal([]byte(extractJSON(out)), &s); err != nil {
		g.logger.Warn("strategy json unparseable, falling back to heuristic", zap.Error(err))
		return nil
	}
	// 必填字段校验。
	if s.Intent == "" || s.Domain == "" || len(s.PrimaryKeywords) == 0 {
		g.logger.Warn("strategy json missing required fields, falling back to heuristic")
		return nil
	}
	if s.Depth == "" {
		s.Depth = DepthMedium
	}
	return &s
}

// ensureYearKeyword 保证时效性查询的主关键词至少一个含当前年份。
func (g *Generator) ensureYearKeyword(s *SearchStrategy, year int, timeSensitive bool) {
	if !timeSensitive {
		return
	}
	yearStr := strconv.Itoa(year)
	for _, kw := range s.PrimaryKeywords {
		if strings.Contains(kw, yearStr) {
			return
		}
	}
	s.PrimaryKeywords = append([]string{yearStr}, s.PrimaryKeywords...)
}

// ============================================================================
// 阶段 2：搜索
// ============================================================================

// BuildQueries 从策略构造查询集：前 3 个主关键词各一条，
// 主 x 次组合（i<2, j<2）至多 4 条，总量封顶 5；随后做年份校验。
func (g *Generator) BuildQueries(s *SearchStrategy, original string) []string {
	var queries []string
	for i, kw := range s.PrimaryKeywords {
		if i >= 3 {
			break
		}
		queries = append(queries, kw)
	}
	combos := 0
	for i := 0; i < len(s.PrimaryKeywords) && i < 2; i++ {
		for j := 0; j < len(s.SecondaryKeywords) && j < 2; j++ {
			if combos >= 4 {
				break
			}
			queries = append(queries, s.PrimaryKeywords[i]+" "+s.SecondaryKeywords[j])
			combos++
		}
	}
	if len(queries) == 0 {
		queries = []string{original}
	}
	if len(queries) > 5 {
		queries = queries[:5]
	}

	// 最终年份防线：错误年份替换，时效词补年份。
	year := g.now().Year()
	for i := range queries {
		queries[i] = CorrectYears(queries[i], year)
	}
	return queries
}

// executeSearches 分发查询集。并行开关开启且查询数 > 1 时走有界并发
//（加权信号量），单条失败只记日志不终止批次；批次被取消时整批结果
// 作废，在飞任务的产出一并丢弃。
func (g *Generator) executeSearches(ctx context.Context, queries []string) []search.Result {
	if len(queries) == 0 {
		return nil
	}
	if !g.cfg.EnableParallel || len(queries) == 1 {
		var out []search.Result
		for _, q := range queries {
			if ctx.Err() != nil {
				return nil
			}
			out = append(out, g.searchOne(ctx, q)...)
		}
		return out
	}

	sem := semaphore.NewWeighted(int64(g.cfg.MaxWorkers))
	var mu sync.Mutex
	var out []search.Result
	var wg sync.WaitGroup
	for _, q := range queries {
		wg.Add(1)
		go func(query string) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				// 取消：任务未启动即放弃。
				return
			}
			defer sem.Release(1)
			results := g.searchOne(ctx, query)
			mu.Lock()
			out = append(out, results...)
			mu.Unlock()
		}(q)
	}
	wg.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return out
}

// searchOne 执行单条查询，带信息缓存。
func (g *Generator) searchOne(ctx context.Context, query string) []search.Result {
	if v, ok := g.cacheGet(g.infoCache, "info", query); ok {
		return v.([]search.Result)
	}
	resp := g.searcher.Search(ctx, query, g.cfg.MaxResults)
	if resp == nil || !resp.Success {
		g.logger.Warn("search query failed within batch", zap.String("query", truncateRunes(query, 60)))
		return nil
	}
	g.infoCache.set(query, resp.Results)
	return resp.Results
}

// ============================================================================
// 阶段 3：综合
// ============================================================================

// Synthesize 把检索结果综合为思考种子。零结果时发出降级综合；
// LLM 失败退化为拼接式综合（confidence 0.6）。
func (g *Generator) Synthesize(ctx context.Context, query string, strategy *SearchStrategy, results []search.Result) *Synthesis {
	if len(results) == 0 {
		return &Synthesis{
			ContextualSeed: fmt.Sprintf(
				"关于 %q 暂无可用检索结果。基于查询本身分析：该问题属于 %s 领域，意图为 %s。建议结合通用知识谨慎推进，并显式标注未经证实的部分。",
				truncateRunes(query, 60), strategy.Domain, strategy.Intent),
			Confidence: 0.3,
			Status:     StatusInsufficientData,
		}
	}

	cacheKey := synthesisKey(query, results)
	if v, ok := g.cacheGet(g.synthCache, "synthesis", cacheKey); ok {
		return v.(*Synthesis)
	}

	synth := g.synthesizeViaLLM(ctx, query, results)
	if synth == nil {
		synth = concatSynthesis(query, strategy, results)
	}
	g.synthCache.set(cacheKey, synth)
	return synth
}

func (g *Generator) synthesizeViaLLM(ctx context.Context, query string, results []search.Result) *Synthesis {
	out, err := g.llm.Call(ctx, g.synthesisPrompt(query, results), "", 0.4)
	if err != nil {
		g.logger.Warn("synthesis via llm failed, using concatenation fallback", zap.Error(err))
		return nil
	}
	var s Synthesis
	if err := json.Unmarshal([]byte(extractJSON(out)), &s); err != nil {
		g.logger.Warn("synthesis json unparseable, using concatenation fallback", zap.Error(err))
		return nil
	}
	if s.ContextualSeed == "" {
		return nil
	}
	if s.Confidence < 0 {
		s.Confidence = 0
	} else if s.Confidence > 1 {
		s.Confidence = 1
	}
	if s.Status == "" {
		s.Status = StatusPartiallyVerified
	}
	return &s
}

func (g *Generator) synthesisPrompt(query string, results []search.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "当前日期：%s\n", g.now().Format("2006-01-02"))
	sb.WriteString("以下搜索结果是实时信息。与你的训练数据冲突时，以搜索结果为准。\n\n")
	fmt.Fprintf(&sb, "用户查询：%s\n\n搜索结果：\n", query)
	for i, r := range results {
		if i >= 6 {
			break
		}
		fmt.Fprintf(&sb, "%d. %s\n   %s\n   %s\n", i+1, r.Title, r.URL, truncateRunes(r.Snippet, 200))
	}
	sb.WriteString(`
请综合以上信息，仅输出严格的 JSON 对象：
{
  "contextual_seed": "200-400 字的思考种子，整合检索到的事实",
  "key_insights": ["关键洞察"],
  "knowledge_gaps": ["仍缺失的信息"],
  "confidence": 0.0到1.0,
  "information_sources": ["引用的 URL"],
  "verification_status": "verified|partially_verified|needs_verification|insufficient_data"
}
不要输出 JSON 以外的任何内容。`)
	return sb.String()
}

// concatSynthesis 是综合阶段的拼接式兜底。
func concatSynthesis(query string, strategy *SearchStrategy, results []search.Result) *Synthesis {
	var snippets []string
	var sources []string
	for i, r := range results {
		if i >= 3 {
			break
		}
		snippets = append(snippets, truncateRunes(r.Snippet, 120))
		sources = append(sources, r.URL)
	}
	seed := fmt.Sprintf("Based on research of %q, from %d sources the following points: %s. These indicate %s. Recommend incorporating this real-time information.",
		query, len(results), strings.Join(snippets, " | "), strategy.Intent)
	return &Synthesis{
		ContextualSeed: seed,
		Sources:        sources,
		Confidence:     0.6,
		Status:         StatusPartiallyVerified,
	}
}

// ============================================================================
// 帮助函数
// ============================================================================

func flattenContext(extra map[string]string) string {
	if len(extra) == 0 {
		return ""
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s=%s;", k, extra[k])
	}
	return sb.String()
}

func hashText(s string) string {
	h := fnv.New64a()
	h.Write([]byte(s))
	return fmt.Sprintf("%016x", h.Sum64())
}

func synthesisKey(query string, results []search.Result) string {
	var sb strings.Builder
	sb.WriteString(query)
	for _, r := range results {
		sb.WriteString("|")
		sb.WriteString(r.URL)
	}
	return hashText(sb.String())
}

// extractJSON 提取首个 '{' 到末个 '}' 的片段，容忍 markdown 代码块包裹。
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
