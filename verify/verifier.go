package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/seedforge/llm"
	"github.com/BaSui01/seedforge/search"
	"github.com/BaSui01/seedforge/seed"
	"github.com/BaSui01/seedforge/tools"
	"go.uber.org/zap"
)

const (
	maxDimensions        = 3 // 实际检索的维度上限
	maxPlannedDimensions = 5 // LLM 规划输出的维度上限
	sourcesPerDimension  = 5
	minEnhancedLength    = 50 // 低于此长度的增强输出视为失败
	enhancementBonus     = 0.2
	enhancementScoreCap  = 0.9
)

// 基础启发式评分用的分析性词表。
var analyticalTokens = []string{"分析", "方法", "策略", "解决", "建议", "系统", "优化"}

// StreamingLLM 是验证器需要的补全能力；*llm.Router 满足。
// 规划与增强优先走 Stream，不可用时退回 Call。
type StreamingLLM interface {
	Call(ctx context.Context, prompt, system string, temperature float32) (string, error)
	Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error)
}

// Verifier 对思考种子做可行性验证与事实增强。
type Verifier struct {
	llm      StreamingLLM
	registry *tools.Registry // 可空：缺省走启发式路径
	searcher tools.Searcher  // 维度检索后备，registry 缺 web_search 时使用
	logger   *zap.Logger
	now      func() time.Time
}

func NewVerifier(llmClient StreamingLLM, registry *tools.Registry, searcher tools.Searcher, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{
		llm:      llmClient,
		registry: registry,
		searcher: searcher,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock 注入时间源，仅用于测试年份注入。
func (v *Verifier) SetClock(now func() time.Time) { v.now = now }

// Verify 执行四步验证流水线并返回累积的上下文。
// 任何一步失败都降级继续，绝不向调用方返回错误。
func (v *Verifier) Verify(ctx context.Context, seedCtx *ThinkingSeedContext, sink Sink) *Context {
	runID := uuid.NewString()
	vc := newContext(seedCtx)
	start := time.Now()
	v.emit(sink, runID, StageStart, "verification started", map[string]any{
		"user_query": seedCtx.UserQuery,
	})

	v.basicVerification(ctx, vc, sink, runID)

	v.emit(sink, runID, StagePlanningStart, "planning search dimensions", nil)
	vc.SearchDimensions = v.planDimensions(ctx, vc)
	v.emit(sink, runID, StageDimensionsPlanned, "dimensions planned", map[string]any{
		"count": len(vc.SearchDimensions),
	})

	v.multiDimensionSearch(ctx, vc, sink, runID)
	v.enhance(ctx, vc, sink, runID)

	vc.Metrics["duration_ms"] = float64(time.Since(start).Milliseconds())
	v.emit(sink, runID, StageComplete, "verification complete", map[string]any{
		"feasibility_score":   vc.FeasibilityScore,
		"verification_method": vc.VerificationMethod,
	})
	v.logger.Info("seed verification complete",
		zap.String("run_id", runID),
		zap.Float64("feasibility_score", vc.FeasibilityScore),
		zap.String("method", vc.VerificationMethod),
		zap.Int("dimensions", len(vc.SearchDimensions)),
		zap.Duration("duration", time.Since(start)))
	return vc
}

// ============================================================================
// 第 1 步：基础验证
// ============================================================================

func (v *Verifier) basicVerification(ctx context.Context, vc *Context, sink Sink, runID string) {
	switch {
	case v.registry == nil:
		vc.FeasibilityScore = 0.6
		vc.VerificationMethod = "simplified_heuristic"
	case !v.registry.Has(tools.IdeaVerificationToolName):
		vc.FeasibilityScore = heuristicScore(vc.OriginalSeed)
		vc.VerificationMethod = "heuristic_analysis"
	default:
		v.verifyViaTool(ctx, vc)
	}
	// 不因低分阻塞流水线；原始分数保留在 FeasibilityScore 供消费方阈值判断。
	vc.VerificationPassed = true

	v.emit(sink, runID, StageBasicResult, "basic verification done", map[string]any{
		"feasibility_score": vc.FeasibilityScore,
		"method":            vc.VerificationMethod,
	})
}

func (v *Verifier) verifyViaTool(ctx context.Context, vc *Context) {
	result := v.registry.Execute(ctx, tools.IdeaVerificationToolName, map[string]any{
		"idea":       vc.OriginalSeed,
		"user_query": vc.UserQuery,
	})
	data, ok := result.Data.(*tools.IdeaVerificationData)
	if !result.Success || !ok {
		v.logger.Warn("idea verification tool failed, degrading",
			zap.Bool("success", result.Success))
		vc.recordError("idea_verification tool failed")
		vc.FeasibilityScore = 0.6
		vc.VerificationMethod = "simplified_fallback"
		return
	}
	vc.FeasibilityScore = data.FeasibilityScore
	vc.Evidence = data.KeyFindings
	vc.VerificationMethod = "tool_verification"
	for i, r := range data.SearchResults {
		if i >= sourcesPerDimension {
			break
		}
		vc.Sources = append(vc.Sources, Source{
			Title:     r.Title,
			Snippet:   r.Snippet,
			URL:       r.URL,
			Relevance: r.Relevance,
		})
	}
}

// heuristicScore 按种子长度与分析性词汇给出启发式评分。
func heuristicScore(seedText string) float64 {
	if len([]rune(seedText)) > 30 {
		for _, tok := range analyticalTokens {
			if strings.Contains(seedText, tok) {
				return 0.7
			}
		}
	}
	return 0.5
}

// ============================================================================
// 第 2 步：维度规划
// ============================================================================

type dimensionPlan struct {
	Dimensions []Dimension `json:"dimensions"`
}

func (v *Verifier) planDimensions(ctx context.Context, vc *Context) []Dimension {
	year := v.now().Year()
	dims := v.planViaLLM(ctx, vc, year)
	if len(dims) == 0 {
		dims = heuristicDimensions(vc.UserQuery, year)
	}
	// 查询做与种子生成相同的最终年份校验。
	for i := range dims {
		dims[i].Query = seed.CorrectYears(dims[i].Query, year)
		if dims[i].Priority == "" {
			dims[i].Priority = PriorityMedium
		}
	}
	return dims
}

func (v *Verifier) planViaLLM(ctx context.Context, vc *Context, year int) []Dimension {
	var sb strings.Builder
	sb.WriteString("你是信息验证规划专家。请为验证以下思考种子规划检索维度。\n\n")
	fmt.Fprintf(&sb, "原始问题：%s\n思考种子：%s\n当前年份：%d\n", vc.UserQuery, vc.OriginalSeed, year)
	if seed.HasTimeToken(vc.UserQuery) {
		fmt.Fprintf(&sb, "注意：问题具有时效性，检索查询必须包含 %d。\n", year)
	}
	fmt.Fprintf(&sb, `
请仅输出严格的 JSON 对象，最多 %d 个维度：
{"dimensions": [{"dimension": "维度名", "query": "检索查询", "priority": "high|medium|low", "reason": "一句话理由"}]}
不要输出 JSON 以外的任何内容。`, maxPlannedDimensions)

	out, err := v.streamOrCall(ctx, sb.String(), 0.3, nil, "", "")
	if err != nil {
		v.logger.Warn("dimension planning via llm failed, using heuristic", zap.Error(err))
		vc.recordError("dimension planning llm call failed")
		return nil
	}
	var plan dimensionPlan
	if err := json.Unmarshal([]byte(extractJSONObject(out)), &plan); err != nil {
		v.logger.Warn("dimension plan json unparseable, using heuristic", zap.Error(err))
		return nil
	}
	dims := plan.Dimensions
	if len(dims) > maxPlannedDimensions {
		dims = dims[:maxPlannedDimensions]
	}
	var valid []Dimension
	for _, d := range dims {
		if d.Name != "" && d.Query != "" {
			valid = append(valid, d)
		}
	}
	return valid
}

// heuristicDimensions 按关键词规则合成维度，保底一个通用维度，上限 3。
func heuristicDimensions(query string, year int) []Dimension {
	lower := strings.ToLower(query)
	var dims []Dimension
	if strings.Contains(lower, "how") || strings.Contains(lower, "what") ||
		strings.Contains(query, "如何") || strings.Contains(query, "什么") {
		dims = append(dims,
			Dimension{Name: "concept_definition", Query: query + " 概念 定义", Priority: PriorityHigh},
			Dimension{Name: "application", Query: query + " 应用 实践", Priority: PriorityMedium},
		)
	}
	if strings.Contains(lower, "vs") || strings.Contains(lower, "versus") || strings.Contains(query, "对比") {
		dims = append(dims, Dimension{Name: "comparison", Query: query + " 对比 优劣", Priority: PriorityHigh})
	}
	if seed.HasTimeToken(query) {
		dims = append(dims, Dimension{
			Name:     "latest_progress",
			Query:    query + " 最新进展 " + strconv.Itoa(year),
			Priority: PriorityHigh,
		})
	}
	dims = append(dims, Dimension{Name: "general", Query: query, Priority: PriorityLow})
	if len(dims) > maxDimensions {
		dims = dims[:maxDimensions]
	}
	return dims
}

// ============================================================================
// 第 3 步：多维度检索
// ============================================================================

func (v *Verifier) multiDimensionSearch(ctx context.Context, vc *Context, sink Sink, runID string) {
	dims := make([]Dimension, len(vc.SearchDimensions))
	copy(dims, vc.SearchDimensions)
	sort.SliceStable(dims, func(i, j int) bool {
		return priorityRank(dims[i].Priority) < priorityRank(dims[j].Priority)
	})
	if len(dims) > maxDimensions {
		dims = dims[:maxDimensions]
	}

	for _, dim := range dims {
		v.emit(sink, runID, StageDimSearchStart, "searching dimension", map[string]any{
			"dimension": dim.Name, "query": dim.Query,
		})
		results := v.searchDimension(ctx, dim.Query)
		if len(results) == 0 {
			// 单个维度失败不致命，继续其余维度。
			vc.recordError("dimension search yielded nothing: " + dim.Name)
			v.emit(sink, runID, StageDimSearchResult, "dimension search empty", map[string]any{
				"dimension": dim.Name, "results": 0,
			})
			continue
		}
		vc.MultiDimResults[dim.Name] = results
		for i, r := range results {
			if i >= sourcesPerDimension {
				break
			}
			vc.Sources = append(vc.Sources, Source{
				Title:     r.Title,
				Snippet:   r.Snippet,
				URL:       r.URL,
				Relevance: r.Relevance,
				Dimension: dim.Name,
			})
		}
		v.emit(sink, runID, StageDimSearchResult, "dimension search done", map[string]any{
			"dimension": dim.Name, "results": len(results),
		})
	}
	vc.Metrics["dimensions_searched"] = float64(len(dims))
	vc.Metrics["dimensions_with_results"] = float64(len(vc.MultiDimResults))
}

// searchDimension 优先走注册的 web_search 能力，缺省退回直连搜索器。
func (v *Verifier) searchDimension(ctx context.Context, query string) []search.Result {
	if v.registry != nil && v.registry.Has(tools.WebSearchToolName) {
		result := v.registry.Execute(ctx, tools.WebSearchToolName, map[string]any{
			"query":       query,
			"max_results": sourcesPerDimension,
		})
		if result.Success {
			if data, ok := result.Data.(*tools.WebSearchData); ok {
				return data.Results
			}
		}
		return nil
	}
	if v.searcher == nil {
		return nil
	}
	resp := v.searcher.Search(ctx, query, sourcesPerDimension)
	if resp == nil || !resp.Success {
		return nil
	}
	return resp.Results
}

// ============================================================================
// 第 4 步：增强
// ============================================================================

func (v *Verifier) enhance(ctx context.Context, vc *Context, sink Sink, runID string) {
	if len(vc.MultiDimResults) == 0 {
		vc.Metrics["enhancement_successful"] = 0
		return
	}
	v.emit(sink, runID, StageEnhanceStart, "enhancing seed with search findings", nil)

	out, err := v.streamOrCall(ctx, v.enhancementPrompt(vc), 0.4, sink, runID, StageEnhanceChunk)
	out = strings.TrimSpace(out)
	if err != nil || len([]rune(out)) < minEnhancedLength {
		if err != nil {
			v.logger.Warn("seed enhancement failed, keeping original", zap.Error(err))
			vc.recordError("enhancement llm call failed")
		} else {
			v.logger.Warn("enhancement output too short, keeping original",
				zap.Int("length", len([]rune(out))))
		}
		vc.Metrics["enhancement_successful"] = 0
		v.emit(sink, runID, StageEnhanceComplete, "enhancement unsuccessful", map[string]any{
			"enhanced": false,
		})
		return
	}

	vc.EnhancedSeed = out
	old := vc.FeasibilityScore
	vc.FeasibilityScore = old + enhancementBonus
	if vc.FeasibilityScore > enhancementScoreCap {
		vc.FeasibilityScore = enhancementScoreCap
	}
	vc.VerificationMethod = "llm_enhanced_verification"
	vc.Metrics["enhancement_successful"] = 1
	v.emit(sink, runID, StageEnhanceComplete, "enhancement successful", map[string]any{
		"enhanced":          true,
		"feasibility_score": vc.FeasibilityScore,
	})
}

func (v *Verifier) enhancementPrompt(vc *Context) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "当前日期：%s\n", v.now().Format("2006-01-02"))
	sb.WriteString("以下是围绕思考种子的多维度检索发现。请据此增强种子。\n\n")
	fmt.Fprintf(&sb, "原始问题：%s\n原始种子：%s\n\n检索发现：\n", vc.UserQuery, vc.OriginalSeed)
	for name, results := range vc.MultiDimResults {
		for _, r := range results {
			content := r.Title + " " + r.Snippet
			if runes := []rune(content); len(runes) > 200 {
				content = string(runes[:200])
			}
			fmt.Fprintf(&sb, "- [%s] %s\n", name, content)
		}
	}
	fmt.Fprintf(&sb, `
要求：
1. 保持原始种子的结构；
2. 整合检索发现中的事实；
3. 涉及时效性表述时使用 %d 年；
4. 输出 200-400 字的纯文本，不要 JSON、不要代码块。`, v.now().Year())
	return sb.String()
}

// ============================================================================
// LLM 调用：流式优先
// ============================================================================

// streamOrCall 优先走流式通道，把每个分片作为事件转发（stage 非空时）；
// 流式不可用或首分片前出错则退回阻塞调用。
func (v *Verifier) streamOrCall(ctx context.Context, prompt string, temperature float32, sink Sink, runID, chunkStage string) (string, error) {
	req := &llm.ChatRequest{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Temperature: temperature,
	}
	ch, err := v.llm.Stream(ctx, req)
	if err != nil {
		return v.llm.Call(ctx, prompt, "", temperature)
	}

	var sb strings.Builder
	for chunk := range ch {
		if chunk.Err != nil {
			if sb.Len() == 0 {
				return v.llm.Call(ctx, prompt, "", temperature)
			}
			return "", chunk.Err
		}
		if chunk.Delta != "" {
			sb.WriteString(chunk.Delta)
			if chunkStage != "" {
				v.emit(sink, runID, chunkStage, chunk.Delta, nil)
			}
		}
	}
	return sb.String(), nil
}

// extractJSONObject 提取首个 '{' 到末个 '}' 的片段，容忍代码块包裹。
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
