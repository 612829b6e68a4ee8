package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BaSui01/seedforge/llm"
	"github.com/BaSui01/seedforge/search"
)

// IdeaVerificationToolName 验证器要求的可行性评估能力名。
const IdeaVerificationToolName = "idea_verification"

// Completer 是可行性评估需要的最小补全能力；*llm.Router 满足。
type Completer interface {
	Call(ctx context.Context, prompt, system string, temperature float32) (string, error)
}

// IdeaVerificationData 是 idea_verification 能力的出参。
type IdeaVerificationData struct {
	FeasibilityScore   float64         `json:"feasibility_score"`
	KeyFindings        []string        `json:"key_findings"`
	VerificationPassed bool            `json:"verification_passed"`
	SearchResults      []search.Result `json:"search_results,omitempty"`
}

// ideaVerdict 是 LLM 评估输出的严格 JSON 形态。
type ideaVerdict struct {
	FeasibilityScore float64  `json:"feasibility_score"`
	KeyFindings      []string `json:"key_findings"`
	Reasoning        string   `json:"reasoning"`
}

// RegisterIdeaVerification 登记 idea_verification 能力：
// 先检索种子相关证据，再让 LLM 给出可行性评分。检索失败不终止评估，
// LLM 失败时回退为基于结果数量的保守评分。
// args: idea (必填), user_query (可选)。
func RegisterIdeaVerification(reg *Registry, completer Completer, searcher Searcher) error {
	return reg.Register(IdeaVerificationToolName, func(ctx context.Context, args map[string]any) (any, error) {
		idea, _ := args["idea"].(string)
		if idea == "" {
			return nil, &llm.Error{Kind: llm.KindInvalidRequest, Message: "idea_verification: idea is required"}
		}
		userQuery, _ := args["user_query"].(string)

		var results []search.Result
		if searcher != nil {
			query := verificationQuery(idea, userQuery)
			if resp := searcher.Search(ctx, query, 5); resp != nil && resp.Success {
				results = resp.Results
			}
		}

		verdict := judgeViaLLM(ctx, completer, idea, userQuery, results)
		if verdict == nil {
			verdict = conservativeVerdict(results)
		}
		score := clampScore(verdict.FeasibilityScore)

		return &IdeaVerificationData{
			FeasibilityScore: score,
			KeyFindings:      verdict.KeyFindings,
			// 流水线不因低分阻塞；原始分数单独保留供阈值判断。
			VerificationPassed: true,
			SearchResults:      results,
		}, nil
	})
}

// verificationQuery 用原始问题限定检索范围，种子文本截断后作为主题词。
func verificationQuery(idea, userQuery string) string {
	topic := idea
	if r := []rune(topic); len(r) > 40 {
		topic = string(r[:40])
	}
	if userQuery != "" {
		return userQuery + " " + topic
	}
	return topic
}

func judgeViaLLM(ctx context.Context, completer Completer, idea, userQuery string, results []search.Result) *ideaVerdict {
	if completer == nil {
		return nil
	}
	var sb strings.Builder
	sb.WriteString("你是可行性评估专家。请评估以下思路的可行性。\n\n")
	if userQuery != "" {
		fmt.Fprintf(&sb, "原始问题：%s\n", userQuery)
	}
	fmt.Fprintf(&sb, "待评估思路：%s\n", idea)
	if len(results) > 0 {
		sb.WriteString("\n参考证据：\n")
		for i, r := range results {
			if i >= 5 {
				break
			}
			fmt.Fprintf(&sb, "%d. %s — %s\n", i+1, r.Title, r.Snippet)
		}
	}
	sb.WriteString(`
请仅输出严格的 JSON 对象：
{"feasibility_score": 0.0到1.0, "key_findings": ["关键发现"], "reasoning": "一句话理由"}
不要输出 JSON 以外的任何内容。`)

	out, err := completer.Call(ctx, sb.String(), "", 0.2)
	if err != nil {
		return nil
	}
	var v ideaVerdict
	if err := json.Unmarshal([]byte(extractJSONObject(out)), &v); err != nil {
		return nil
	}
	return &v
}

// conservativeVerdict 在 LLM 不可用时按证据数量给出保守评分。
func conservativeVerdict(results []search.Result) *ideaVerdict {
	score := 0.5
	findings := []string{"LLM 评估不可用，采用保守评分"}
	if len(results) >= 3 {
		score = 0.65
		findings = append(findings, fmt.Sprintf("检索到 %d 条相关证据", len(results)))
	}
	return &ideaVerdict{FeasibilityScore: score, KeyFindings: findings}
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
