// Package tokenizer 提供按供应商选择的 token 估算策略。
// 没有引入各家 tokenizer 的精确实现：成本核算协议只消费一个 token 数，
// 估算偏保守（参照 4 字符/ token 的通用经验值），为模型侧开销留余量。
package tokenizer

import (
	"strings"
	"unicode/utf8"
)

// Strategy 单段文本的 token 估算函数
type Strategy func(s string) int64

const charsPerToken = 4

// ForProvider 按供应商选择估算策略：
// OpenAI 系走字符启发式（BPE 近似），CJK 倾向的供应商按 rune 计，
// 其余供应商用通用的按词回退策略。
func ForProvider(provider string) Strategy {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "openai", "azure_openai":
		return EstimateByChars
	case "ark", "dashscope":
		return EstimateByRunes
	default:
		return EstimateByWords
	}
}

// EstimateByChars 1 token ≈ 4 字符，对英文与代码是标准近似
func EstimateByChars(s string) int64 {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		n = 1
	}
	return int64(n)
}

// EstimateByRunes CJK 文本大致一字一 token
func EstimateByRunes(s string) int64 {
	return int64(utf8.RuneCountInString(s))
}

// EstimateByWords 通用回退：按空白分词，每词约 4/3 token
func EstimateByWords(s string) int64 {
	words := len(strings.Fields(s))
	if words == 0 {
		if len(s) > 0 {
			return 1
		}
		return 0
	}
	return int64(words*4/3 + 1)
}

// CharCount 分段字数统计：按 rune 计数，同一内容每次结果一致
func CharCount(s string) int64 {
	return int64(utf8.RuneCountInString(s))
}
