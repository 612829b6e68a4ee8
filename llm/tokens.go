package llm

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// TokenEstimator 在厂商响应缺失 usage 时估算 token 数，供成本核算使用。
// 优先走 tiktoken cl100k_base；编码初始化失败（如离线环境）时退化为
// 字符估算：CJK 每字约 1 token，其余按 4 字符 1 token。
type TokenEstimator struct {
	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error
}

func NewTokenEstimator() *TokenEstimator {
	return &TokenEstimator{}
}

func (e *TokenEstimator) init() {
	e.once.Do(func() {
		e.enc, e.initErr = tiktoken.GetEncoding("cl100k_base")
	})
}

func (e *TokenEstimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	e.init()
	if e.initErr == nil && e.enc != nil {
		return len(e.enc.Encode(text, nil, nil))
	}
	return approxTokens(text)
}

func approxTokens(text string) int {
	cjk := 0
	ascii := 0
	for _, r := range text {
		if r >= 0x2E80 {
			cjk++
		} else {
			ascii++
		}
	}
	n := cjk + (ascii+3)/4
	if n == 0 && utf8.RuneCountInString(text) > 0 {
		n = 1
	}
	return n
}
