package seed

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/seedforge/search"
)

// scriptedLLM 按注入函数回答，并统计调用次数。
type scriptedLLM struct {
	mu    sync.Mutex
	fn    func(prompt string) (string, error)
	calls int
}

func (s *scriptedLLM) Call(_ context.Context, prompt, _ string, _ float32) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.fn(prompt)
}

func (s *scriptedLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// recordingSearcher 记录收到的查询；failEvery > 0 时周期性失败。
type recordingSearcher struct {
	mu        sync.Mutex
	queries   []string
	failEvery int
}

func (r *recordingSearcher) Search(_ context.Context, query string, maxResults int) *search.Response {
	r.mu.Lock()
	r.queries = append(r.queries, query)
	n := len(r.queries)
	r.mu.Unlock()

	if r.failEvery > 0 && n%r.failEvery == 0 {
		return &search.Response{Query: query, Success: false}
	}
	return &search.Response{
		Query:   query,
		Success: true,
		Results: []search.Result{
			{Title: "result for " + query, Snippet: "snippet about " + query, URL: "https://example.com/" + query, Relevance: 0.8},
		},
	}
}

func (r *recordingSearcher) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.queries))
	copy(out, r.queries)
	return out
}

func fixedClock(year int) func() time.Time {
	return func() time.Time {
		return time.Date(year, 6, 15, 12, 0, 0, 0, time.UTC)
	}
}

func newTestGenerator(llmFn func(string) (string, error), searcher Searcher, cfg GeneratorConfig) (*Generator, *scriptedLLM) {
	llm := &scriptedLLM{fn: llmFn}
	g := NewGenerator(llm, searcher, cfg, nil)
	g.SetClock(fixedClock(2025))
	return g, llm
}

const validStrategyJSON = `{
	"search_intent": "learn about topic",
	"domain_focus": "technology",
	"primary_keywords": ["golang", "concurrency", "channels"],
	"secondary_keywords": ["tutorial", "patterns"],
	"information_types": ["overview"],
	"search_depth": "medium"
}`

func TestPlanStrategy_LLMPathAndCache(t *testing.T) {
	t.Parallel()

	g, llm := newTestGenerator(func(string) (string, error) {
		return validStrategyJSON, nil
	}, &recordingSearcher{}, GeneratorConfig{})

	ctx := context.Background()
	s := g.PlanStrategy(ctx, "golang concurrency", nil)
	if s.Intent != "learn about topic" || len(s.PrimaryKeywords) != 3 {
		t.Fatalf("unexpected strategy: %+v", s)
	}

	g.PlanStrategy(ctx, "golang concurrency", nil)
	if llm.callCount() != 1 {
		t.Fatalf("second identical plan must hit the cache, llm calls = %d", llm.callCount())
	}

	// 不同上下文是不同缓存键。
	g.PlanStrategy(ctx, "golang concurrency", map[string]string{"audience": "beginners"})
	if llm.callCount() != 2 {
		t.Fatalf("different context must miss the cache, llm calls = %d", llm.callCount())
	}
}

func TestPlanStrategy_FallsBackOnBadJSON(t *testing.T) {
	t.Parallel()

	g, _ := newTestGenerator(func(string) (string, error) {
		return "I think the strategy should be...", nil
	}, &recordingSearcher{}, GeneratorConfig{})

	s := g.PlanStrategy(context.Background(), "distributed tracing in microservices", nil)
	if len(s.PrimaryKeywords) == 0 {
		t.Fatal("heuristic fallback must produce keywords")
	}
	if s.Intent == "" || s.Domain == "" {
		t.Fatalf("heuristic fallback must fill required fields: %+v", s)
	}
}

// 时效性查询的主关键词必须带当前年份，最终查询不得含陈旧年份。
func TestPlanStrategy_YearInjection(t *testing.T) {
	t.Parallel()

	g, _ := newTestGenerator(func(string) (string, error) {
		// LLM 无视注入指示，返回不带年份的关键词。
		return `{"search_intent":"i","domain_focus":"technology","primary_keywords":["Python 特性","新功能"],"secondary_keywords":["发布 2023"]}`, nil
	}, &recordingSearcher{}, GeneratorConfig{})

	s := g.PlanStrategy(context.Background(), "Python 最新特性", nil)
	found := false
	for _, kw := range s.PrimaryKeywords {
		if strings.Contains(kw, "2025") {
			found = true
		}
	}
	if !found {
		t.Fatalf("time-sensitive strategy must carry the current year: %+v", s.PrimaryKeywords)
	}

	for _, q := range g.BuildQueries(s, "Python 最新特性") {
		for _, m := range yearPattern.FindAllString(q, -1) {
			if m != "2025" {
				t.Fatalf("stale year %s in validated query %q", m, q)
			}
		}
	}
}

func TestBuildQueries_ShapeAndCap(t *testing.T) {
	t.Parallel()

	g, _ := newTestGenerator(nil, &recordingSearcher{}, GeneratorConfig{})
	s := &SearchStrategy{
		PrimaryKeywords:   []string{"p1", "p2", "p3", "p4"},
		SecondaryKeywords: []string{"s1", "s2", "s3"},
	}
	queries := g.BuildQueries(s, "original")
	if len(queries) != 5 {
		t.Fatalf("expected cap of 5 queries, got %d: %v", len(queries), queries)
	}
	// 前三条是单个主关键词。
	for i, want := range []string{"p1", "p2", "p3"} {
		if queries[i] != want {
			t.Fatalf("query %d = %q, want %q", i, queries[i], want)
		}
	}
	// 组合限制在 i<2, j<2。
	for _, q := range queries[3:] {
		if strings.Contains(q, "p3") || strings.Contains(q, "p4") || strings.Contains(q, "s3") {
			t.Fatalf("combo query %q uses keywords beyond the 2x2 window", q)
		}
	}

	empty := g.BuildQueries(&SearchStrategy{}, "fallback query")
	if len(empty) != 1 || empty[0] != "fallback query" {
		t.Fatalf("empty strategy must fall back to the original query, got %v", empty)
	}
}

// 5 条查询、3 个工作协程、部分失败：批次不崩溃，成功结果全部进入合并。
func TestExecuteSearches_ParallelBatchSurvivesFailures(t *testing.T) {
	t.Parallel()

	searcher := &recordingSearcher{failEvery: 2} // 每第二次调用失败
	g, _ := newTestGenerator(nil, searcher, GeneratorConfig{EnableParallel: true, MaxWorkers: 3})

	queries := []string{"q1", "q2", "q3", "q4", "q5"}
	results := g.executeSearches(context.Background(), queries)

	if len(searcher.seen()) != 5 {
		t.Fatalf("all queries must be dispatched, got %d", len(searcher.seen()))
	}
	// 5 次调用中 2 次失败，3 次成功各返回 1 条。
	if len(results) != 3 {
		t.Fatalf("expected 3 merged results, got %d", len(results))
	}
}

func TestExecuteSearches_InfoCacheSkipsRepeatQueries(t *testing.T) {
	t.Parallel()

	searcher := &recordingSearcher{}
	g, _ := newTestGenerator(nil, searcher, GeneratorConfig{EnableParallel: false})

	ctx := context.Background()
	g.executeSearches(ctx, []string{"same"})
	g.executeSearches(ctx, []string{"same"})
	if got := len(searcher.seen()); got != 1 {
		t.Fatalf("repeat query must hit the info cache, backend saw %d calls", got)
	}
}

func TestSynthesize_DegradedOnNoResults(t *testing.T) {
	t.Parallel()

	g, llm := newTestGenerator(func(string) (string, error) {
		t.Fatal("llm must not be called for empty result synthesis")
		return "", nil
	}, &recordingSearcher{}, GeneratorConfig{})
	_ = llm

	synth := g.Synthesize(context.Background(), "q", &SearchStrategy{Intent: "i", Domain: "general"}, nil)
	if synth.Confidence != 0.3 {
		t.Fatalf("expected degraded confidence 0.3, got %v", synth.Confidence)
	}
	if synth.Status != StatusInsufficientData {
		t.Fatalf("expected insufficient_data, got %s", synth.Status)
	}
	if synth.ContextualSeed == "" {
		t.Fatal("degraded synthesis must still produce a seed")
	}
}

func TestSynthesize_ConcatFallbackOnLLMFailure(t *testing.T) {
	t.Parallel()

	g, _ := newTestGenerator(func(string) (string, error) {
		return "not json at all", nil
	}, &recordingSearcher{}, GeneratorConfig{})

	results := []search.Result{
		{Title: "t1", Snippet: "fact one", URL: "u1"},
		{Title: "t2", Snippet: "fact two", URL: "u2"},
	}
	synth := g.Synthesize(context.Background(), "q", &SearchStrategy{Intent: "learn"}, results)
	if synth.Confidence != 0.6 {
		t.Fatalf("concat fallback confidence must be 0.6, got %v", synth.Confidence)
	}
	if synth.Status != StatusPartiallyVerified {
		t.Fatalf("expected partially_verified, got %s", synth.Status)
	}
	if !strings.Contains(synth.ContextualSeed, "fact one") {
		t.Fatalf("fallback seed must embed snippets, got %q", synth.ContextualSeed)
	}
}

// cancelingSearcher 首次调用即取消整个批次，然后照常返回结果。
type cancelingSearcher struct {
	recordingSearcher
	cancel context.CancelFunc
	once   sync.Once
}

func (c *cancelingSearcher) Search(ctx context.Context, query string, maxResults int) *search.Response {
	c.once.Do(c.cancel)
	return c.recordingSearcher.Search(ctx, query, maxResults)
}

// 批次被取消后，已完成的在飞结果一并作废。
func TestExecuteSearches_CanceledBatchDiscardsResults(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	searcher := &cancelingSearcher{cancel: cancel}
	g, _ := newTestGenerator(nil, searcher, GeneratorConfig{EnableParallel: true, MaxWorkers: 2})

	results := g.executeSearches(ctx, []string{"q1", "q2", "q3", "q4"})
	if len(results) != 0 {
		t.Fatalf("canceled batch must discard in-flight results, got %d", len(results))
	}
}

// countingCacheMetrics 统计各缓存的命中与未命中。
type countingCacheMetrics struct {
	mu     sync.Mutex
	hits   map[string]int
	misses map[string]int
}

func newCountingCacheMetrics() *countingCacheMetrics {
	return &countingCacheMetrics{hits: map[string]int{}, misses: map[string]int{}}
}

func (c *countingCacheMetrics) IncCacheHit(cache string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits[cache]++
}

func (c *countingCacheMetrics) IncCacheMiss(cache string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.misses[cache]++
}

func TestGenerator_CacheMetricsReported(t *testing.T) {
	t.Parallel()

	g, _ := newTestGenerator(func(string) (string, error) {
		return validStrategyJSON, nil
	}, &recordingSearcher{}, GeneratorConfig{EnableParallel: false})
	m := newCountingCacheMetrics()
	g.SetMetrics(m)

	ctx := context.Background()
	g.PlanStrategy(ctx, "golang concurrency", nil)
	g.PlanStrategy(ctx, "golang concurrency", nil)
	if m.misses["strategy"] != 1 || m.hits["strategy"] != 1 {
		t.Fatalf("expected 1 miss + 1 hit on strategy cache, got misses=%v hits=%v", m.misses, m.hits)
	}

	g.executeSearches(ctx, []string{"same"})
	g.executeSearches(ctx, []string{"same"})
	if m.misses["info"] != 1 || m.hits["info"] != 1 {
		t.Fatalf("expected 1 miss + 1 hit on info cache, got misses=%v hits=%v", m.misses, m.hits)
	}
}

func TestGenerate_EndToEndAndClearCache(t *testing.T) {
	t.Parallel()

	synthesisJSON := `{"contextual_seed":"` + strings.Repeat("种", 200) + `","confidence":0.85,"verification_status":"verified","information_sources":["u1"]}`
	g, llm := newTestGenerator(func(prompt string) (string, error) {
		if strings.Contains(prompt, "搜索策略") {
			return validStrategyJSON, nil
		}
		return synthesisJSON, nil
	}, &recordingSearcher{}, GeneratorConfig{EnableParallel: false})

	ctx := context.Background()
	seed := g.Generate(ctx, "golang concurrency", nil)
	if seed == "" {
		t.Fatal("Generate must return a seed")
	}
	callsAfterFirst := llm.callCount()

	// 同一查询复用全部缓存。
	if again := g.Generate(ctx, "golang concurrency", nil); again != seed {
		t.Fatal("cached generation must be identical")
	}
	if llm.callCount() != callsAfterFirst {
		t.Fatalf("cached generation must not call the llm, calls %d -> %d", callsAfterFirst, llm.callCount())
	}

	g.ClearCache()
	g.Generate(ctx, "golang concurrency", nil)
	if llm.callCount() <= callsAfterFirst {
		t.Fatal("ClearCache must force fresh llm calls")
	}
}
