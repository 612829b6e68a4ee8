package seed

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// 时效性词表：查询含任一 token 时，生成的关键词与提示词必须带上当前年份，
// 防止模型训练数据中的陈旧年份渗入搜索查询。
var timeTokens = []string{
	"最新", "当前", "今年", "现在", "最近",
	"latest", "current", "recent", "new", "trend",
}

var yearPattern = regexp.MustCompile(`(19|20)\d{2}`)

// HasTimeToken 判断查询是否包含时效性词（英文 token 大小写不敏感）。
func HasTimeToken(query string) bool {
	lower := strings.ToLower(query)
	for _, tok := range timeTokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return false
}

// CorrectYears 是查询生成后的最终防线：
//  1. 出现非当前年份的 4 位年份时替换为当前年份；
//  2. 含时效性词但无年份时，在词后注入当前年份。
func CorrectYears(query string, currentYear int) string {
	yearStr := strconv.Itoa(currentYear)

	if yearPattern.MatchString(query) {
		return yearPattern.ReplaceAllStringFunc(query, func(m string) string {
			if m == yearStr {
				return m
			}
			return yearStr
		})
	}

	if HasTimeToken(query) {
		return injectYear(query, yearStr)
	}
	return query
}

// injectYear 在首个时效性词之后插入年份。大小写折叠逐 rune 进行，
// 插入点始终落在原始字符串的 rune 边界上（strings.ToLower 可能改变
// 字节长度，其偏移不能用于切原串）。
func injectYear(query, yearStr string) string {
	runes := []rune(query)
	lowered := make([]rune, len(runes))
	for i, r := range runes {
		lowered[i] = unicode.ToLower(r)
	}

	bestIdx := -1
	bestLen := 0
	for _, tok := range timeTokens {
		if idx := runeIndex(lowered, []rune(tok)); idx >= 0 {
			if bestIdx == -1 || idx < bestIdx {
				bestIdx = idx
				bestLen = len([]rune(tok))
			}
		}
	}
	if bestIdx == -1 {
		return query + " " + yearStr
	}
	insert := bestIdx + bestLen
	return string(runes[:insert]) + " " + yearStr + string(runes[insert:])
}

// runeIndex 返回 needle 在 haystack 中首次出现的 rune 下标，未出现返回 -1。
func runeIndex(haystack, needle []rune) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
