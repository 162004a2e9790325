package chunking

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"OmniBase/internal/modules/dataset/domain/entity"

	"github.com/cloudwego/eino-ext/components/document/transformer/splitter/recursive"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/schema"
)

// SimpleChunker 将文本切分为固定大小、带重叠的多个片段
type SimpleChunker struct {
	ChunkSize    int
	ChunkOverlap int
	useRecursive bool

	initOnce      sync.Once
	initErr       error
	recursiveImpl document.Transformer
}

// NewSimpleChunker 创建一个切片器，并设置切片大小与重叠长度
func NewSimpleChunker(size, overlap int) *SimpleChunker {
	if size <= 0 {
		size = 500
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}
	return &SimpleChunker{ChunkSize: size, ChunkOverlap: overlap}
}

func NewRecursiveChunker(size, overlap int) *SimpleChunker {
	c := NewSimpleChunker(size, overlap)
	c.useRecursive = true
	return c
}

// NewFromRule 按数据集的切分规则构造切片器
func NewFromRule(rule *entity.ProcessRule) *SimpleChunker {
	if rule == nil {
		return NewRecursiveChunker(0, 0)
	}
	if rule.Recursive {
		return NewRecursiveChunker(rule.ChunkSize, rule.ChunkOverlap)
	}
	return NewSimpleChunker(rule.ChunkSize, rule.ChunkOverlap)
}

// Chunk 基于 rune（字符）数量切分文本，确保中文等多字节字符不会被截断
func (c *SimpleChunker) Chunk(text string) []string {
	if text == "" {
		return []string{}
	}

	runes := []rune(text)
	totalLen := len(runes)

	if totalLen <= c.ChunkSize {
		return []string{text}
	}

	var chunks []string
	step := c.ChunkSize - c.ChunkOverlap

	// 构造函数已保证 step > 0；这里兜底，避免出现无法推进的情况
	if step <= 0 {
		step = 1
	}

	for i := 0; i < totalLen; i += step {
		end := int(math.Min(float64(i+c.ChunkSize), float64(totalLen)))
		chunks = append(chunks, string(runes[i:end]))
		if end == totalLen {
			break
		}
	}

	return chunks
}

// Split 切分整篇文本并去除空白片段。启用递归切分时走 Eino 的递归分隔符实现，
// 否则退化为固定窗口切分。
func (c *SimpleChunker) Split(ctx context.Context, text string) ([]string, error) {
	var parts []string
	if !c.useRecursive {
		parts = c.Chunk(text)
	} else {
		c.initOnce.Do(func() {
			impl, err := recursive.NewSplitter(ctx, &recursive.Config{
				ChunkSize:   c.ChunkSize,
				OverlapSize: c.ChunkOverlap,
				Separators:  []string{"\n\n", "\n", "。", "！", "？", "；", "，", " "},
				LenFunc: func(s string) int {
					return len([]rune(s))
				},
				KeepType: recursive.KeepTypeEnd,
			})
			if err != nil {
				c.initErr = err
				return
			}
			c.recursiveImpl = impl
		})
		if c.initErr != nil {
			return nil, c.initErr
		}
		if c.recursiveImpl == nil {
			return nil, fmt.Errorf("recursive splitter not initialized")
		}
		frags, err := c.recursiveImpl.Transform(ctx, []*schema.Document{{Content: text}})
		if err != nil {
			return nil, err
		}
		parts = make([]string, 0, len(frags))
		for _, f := range frags {
			if f == nil {
				continue
			}
			parts = append(parts, f.Content)
		}
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}
