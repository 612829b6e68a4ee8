package seed

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type SearchDepth string

const (
	DepthShallow SearchDepth = "shallow"
	DepthMedium  SearchDepth = "medium"
	DepthDeep    SearchDepth = "deep"
)

// SearchStrategy 是规划阶段的产物，驱动搜索阶段的查询构造。
type SearchStrategy struct {
	PrimaryKeywords   []string    `json:"primary_keywords"`
	SecondaryKeywords []string    `json:"secondary_keywords"`
	Intent            string      `json:"search_intent"`
	Domain            string      `json:"domain_focus"`
	InfoTypes         []string    `json:"information_types"`
	Depth             SearchDepth `json:"search_depth"`
}

// strategyPrompt 构造规划提示词。时效性查询强制注入当前年份（温度注入）。
func strategyPrompt(query, extra string, currentYear int, timeSensitive bool) string {
	var sb strings.Builder
	sb.WriteString("你是搜索策略规划专家。请分析用户查询并产出检索策略。\n\n")
	fmt.Fprintf(&sb, "用户查询：%s\n", query)
	if extra != "" {
		fmt.Fprintf(&sb, "补充上下文：%s\n", extra)
	}
	fmt.Fprintf(&sb, "当前年份：%d\n", currentYear)
	if timeSensitive {
		fmt.Fprintf(&sb, "注意：查询具有时效性，primary_keywords 中必须至少有一个包含 %d。\n", currentYear)
	}
	sb.WriteString(`
请仅输出严格的 JSON 对象，字段如下：
{
  "search_intent": "一句话说明检索意图",
  "domain_focus": "领域（如 technology/science/business/general）",
  "primary_keywords": ["3-5 个核心关键词"],
  "secondary_keywords": ["2-4 个辅助关键词"],
  "information_types": ["需要的信息类型，如 tutorial/news/comparison"],
  "search_depth": "shallow|medium|deep"
}
不要输出 JSON 以外的任何内容。`)
	return sb.String()
}

// fallbackStrategy 在 LLM 失败或 JSON 不合法时按启发式构造策略：
// 保留长度 > 3 的词（上限 5），检测到时效性词则把当前年份放到关键词首位。
func fallbackStrategy(query string, currentYear int) *SearchStrategy {
	tokens := tokenize(query)
	var kws []string
	for _, t := range tokens {
		if len([]rune(t)) > 3 {
			kws = append(kws, t)
		}
		if len(kws) >= 5 {
			break
		}
	}
	if len(kws) == 0 {
		kws = []string{strings.TrimSpace(query)}
	}
	if HasTimeToken(query) {
		kws = append([]string{strconv.Itoa(currentYear)}, kws...)
		if len(kws) > 5 {
			kws = kws[:5]
		}
	}
	return &SearchStrategy{
		PrimaryKeywords: kws,
		Intent:          "general information about: " + truncateRunes(query, 60),
		Domain:          guessDomain(query),
		InfoTypes:       []string{"overview"},
		Depth:           DepthMedium,
	}
}

// tokenize 以空白与标点切词；连续 CJK 串作为一个 token 保留。
func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || (unicode.IsPunct(r) && r != '-' && r != '_')
	})
}

// 领域词典：关键词重叠最多者胜出。
var domainKeywords = map[string][]string{
	"technology": {"python", "golang", "rust", "api", "框架", "编程", "代码", "软件", "模型", "ai", "llm", "算法"},
	"science":    {"研究", "论文", "实验", "物理", "化学", "生物", "science", "research"},
	"business":   {"市场", "营销", "创业", "投资", "商业", "business", "market", "startup"},
}

func guessDomain(query string) string {
	lower := strings.ToLower(query)
	best := "general"
	bestHits := 0
	for domain, kws := range domainKeywords {
		hits := 0
		for _, kw := range kws {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		if hits > bestHits {
			best = domain
			bestHits = hits
		}
	}
	return best
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
