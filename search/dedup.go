package search

import (
	"sort"
	"strings"
)

// DefaultTopK 是合并结果的默认保留数。
const DefaultTopK = 8

// DedupRank 按 URL 去重并按关键词命中排序。
// 排序键 = Σ(2·主关键词命中 + 1·次关键词命中)，在 title+snippet 上
// 大小写不敏感地统计；同分保持插入顺序；保留前 topK 条。
func DedupRank(results []Result, primary, secondary []string, topK int) []Result {
	if topK <= 0 {
		topK = DefaultTopK
	}

	seen := make(map[string]bool, len(results))
	deduped := make([]Result, 0, len(results))
	for _, r := range results {
		if r.URL == "" || seen[r.URL] {
			continue
		}
		seen[r.URL] = true
		deduped = append(deduped, r)
	}

	type scored struct {
		r     Result
		score int
		idx   int
	}
	items := make([]scored, len(deduped))
	for i, r := range deduped {
		text := strings.ToLower(r.Title + " " + r.Snippet)
		s := 0
		for _, kw := range primary {
			s += 2 * strings.Count(text, strings.ToLower(kw))
		}
		for _, kw := range secondary {
			s += strings.Count(text, strings.ToLower(kw))
		}
		items[i] = scored{r: r, score: s, idx: i}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].score > items[j].score
	})

	if len(items) > topK {
		items = items[:topK]
	}
	out := make([]Result, len(items))
	for i, it := range items {
		out[i] = it.r
	}
	return out
}
