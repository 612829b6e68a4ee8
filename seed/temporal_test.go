package seed

import (
	"strconv"
	"strings"
	"testing"
	"unicode/utf8"

	"pgregory.net/rapid"
)

func TestHasTimeToken(t *testing.T) {
	t.Parallel()

	cases := []struct {
		query string
		want  bool
	}{
		{"Python 最新特性", true},
		{"latest go release", true},
		{"LATEST go release", true},
		{"当前市场行情", true},
		{"2023 年的历史事件", false},
		{"how to write a parser", false},
	}
	for _, tc := range cases {
		if got := HasTimeToken(tc.query); got != tc.want {
			t.Fatalf("HasTimeToken(%q) = %v, want %v", tc.query, got, tc.want)
		}
	}
}

func TestCorrectYears_ReplacesStaleYears(t *testing.T) {
	t.Parallel()

	got := CorrectYears("Python features 2023", 2025)
	if got != "Python features 2025" {
		t.Fatalf("expected stale year replaced, got %q", got)
	}

	got = CorrectYears("from 2021 to 2023 trends", 2025)
	if strings.Contains(got, "2021") || strings.Contains(got, "2023") {
		t.Fatalf("all stale years must be replaced, got %q", got)
	}

	// 当前年份保持不动。
	got = CorrectYears("roadmap 2025", 2025)
	if got != "roadmap 2025" {
		t.Fatalf("current year must be untouched, got %q", got)
	}
}

func TestCorrectYears_InjectsYearAfterTimeToken(t *testing.T) {
	t.Parallel()

	got := CorrectYears("Python 最新特性", 2025)
	if !strings.Contains(got, "2025") {
		t.Fatalf("time-sensitive query must gain the current year, got %q", got)
	}
	if !strings.Contains(got, "最新 2025") {
		t.Fatalf("year should be injected after the time token, got %q", got)
	}

	// 无时效词且无年份的查询不被改写。
	if got := CorrectYears("sorting algorithms", 2025); got != "sorting algorithms" {
		t.Fatalf("neutral query must pass through, got %q", got)
	}
}

// 小写化可能改变字符的字节长度（如 U+0130），注入点必须落在
// 原始字符串的 rune 边界上。
func TestCorrectYears_InjectionIsRuneSafe(t *testing.T) {
	t.Parallel()

	got := CorrectYears("İphone LATEST进展", 2025)
	if !utf8.ValidString(got) {
		t.Fatalf("injection produced invalid utf-8: %q", got)
	}
	if !strings.Contains(got, "LATEST 2025") {
		t.Fatalf("year must follow the time token, got %q", got)
	}
	if !strings.Contains(got, "进展") {
		t.Fatalf("trailing text must survive intact, got %q", got)
	}
}

// 属性：校验后的查询里出现的任何 4 位年份都等于当前年份，
// 且含时效词的查询一定包含当前年份。
func TestCorrectYears_Properties(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		prefix := rapid.StringMatching(`[a-z]{0,8}`).Draw(t, "prefix")
		token := rapid.SampledFrom(append([]string{""}, timeTokens...)).Draw(t, "token")
		staleYear := rapid.IntRange(1950, 2024).Draw(t, "staleYear")
		withYear := rapid.Bool().Draw(t, "withYear")
		currentYear := 2025

		query := prefix + " " + token
		if withYear {
			query += " " + strconv.Itoa(staleYear)
		}

		out := CorrectYears(query, currentYear)

		for _, m := range yearPattern.FindAllString(out, -1) {
			if m != strconv.Itoa(currentYear) {
				t.Fatalf("non-current year %s survived in %q", m, out)
			}
		}
		if token != "" && !strings.Contains(out, strconv.Itoa(currentYear)) {
			t.Fatalf("time-sensitive query %q lacks current year: %q", query, out)
		}
	})
}
