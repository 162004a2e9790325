package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateByChars(t *testing.T) {
	assert.Equal(t, int64(0), EstimateByChars(""))
	// 不足 4 字符按 1 token 计
	assert.Equal(t, int64(1), EstimateByChars("ab"))
	assert.Equal(t, int64(2), EstimateByChars("abcdefgh"))
	assert.Equal(t, int64(2), EstimateByChars("abcdefghijk"))
}

func TestEstimateByRunes(t *testing.T) {
	assert.Equal(t, int64(0), EstimateByRunes(""))
	assert.Equal(t, int64(4), EstimateByRunes("向量检索"))
	assert.Equal(t, int64(3), EstimateByRunes("abc"))
}

func TestEstimateByWords(t *testing.T) {
	assert.Equal(t, int64(0), EstimateByWords(""))
	assert.Equal(t, int64(1), EstimateByWords("   "))
	// 3 词 -> 3*4/3+1 = 5
	assert.Equal(t, int64(5), EstimateByWords("one two three"))
}

func TestForProvider(t *testing.T) {
	// openai 走字符启发式
	assert.Equal(t, int64(2), ForProvider("OpenAI")("abcdefgh"))
	// CJK 倾向供应商按 rune 计
	assert.Equal(t, int64(4), ForProvider("dashscope")("向量检索"))
	// 未知供应商回退按词
	assert.Equal(t, int64(5), ForProvider("whatever")("one two three"))
}

func TestCharCountDeterministic(t *testing.T) {
	s := "同一内容，字数恒定 abc"
	first := CharCount(s)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, CharCount(s))
	}
	assert.Equal(t, int64(0), CharCount(""))
}
