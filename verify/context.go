// Package verify 实现种子验证流水线：基础可行性评估、多维度检索规划、
// 证据检索与 LLM 增强。Verify 对调用方永不失败，内部逐级降级。
package verify

import "github.com/BaSui01/seedforge/search"

// ThinkingSeedContext 是上游种子生成阶段的产物，验证入口的入参。
type ThinkingSeedContext struct {
	UserQuery    string         `json:"user_query"`
	ThinkingSeed string         `json:"thinking_seed"`
	Metadata     map[string]any `json:"generation_metadata,omitempty"`
}

// Priority 维度优先级。
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func priorityRank(p Priority) int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	default:
		return 3
	}
}

// Dimension 是一个验证检索角度。
type Dimension struct {
	Name     string   `json:"dimension"`
	Query    string   `json:"query"`
	Priority Priority `json:"priority"`
	Reason   string   `json:"reason,omitempty"`
}

// Source 是验证过程中收集的一条证据来源。
type Source struct {
	Title     string  `json:"title"`
	Snippet   string  `json:"snippet"`
	URL       string  `json:"url"`
	Relevance float64 `json:"relevance"`
	Dimension string  `json:"dimension,omitempty"`
}

// Context 是验证流水线逐步累积的可变记录，完成时整体输出。
type Context struct {
	UserQuery          string                     `json:"user_query"`
	OriginalSeed       string                     `json:"original_seed"`
	VerificationPassed bool                       `json:"verification_passed"`
	FeasibilityScore   float64                    `json:"feasibility_score"` // [0,1]
	VerificationMethod string                     `json:"verification_method"`
	Evidence           []string                   `json:"evidence,omitempty"`
	SearchDimensions   []Dimension                `json:"search_dimensions,omitempty"`
	Sources            []Source                   `json:"verification_sources,omitempty"`
	MultiDimResults    map[string][]search.Result `json:"multidim_results,omitempty"`
	EnhancedSeed       string                     `json:"enhanced_seed"`
	Metrics            map[string]float64         `json:"metrics,omitempty"`
	Errors             []string                   `json:"errors,omitempty"`
}

func newContext(seedCtx *ThinkingSeedContext) *Context {
	return &Context{
		UserQuery:       seedCtx.UserQuery,
		OriginalSeed:    seedCtx.ThinkingSeed,
		EnhancedSeed:    seedCtx.ThinkingSeed,
		MultiDimResults: make(map[string][]search.Result),
		Metrics:         make(map[string]float64),
	}
}

func (c *Context) recordError(msg string) {
	c.Errors = append(c.Errors, msg)
}
