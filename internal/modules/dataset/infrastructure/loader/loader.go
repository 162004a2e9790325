package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"OmniBase/internal/modules/dataset/domain/entity"
	"OmniBase/internal/modules/dataset/infrastructure/chunking"
)

// Source 文档原始来源：上传文件或内联文本
type Source struct {
	Type         string
	UploadFileId string
	InlineText   string
	SourceTag    string
}

// SegmentIterator 切分结果的一次性有限序列。
// 不可重置：重新入库必须重新读源、重新切分。
type SegmentIterator struct {
	parts []string
	idx   int
}

// Next 返回下一个分段内容；序列耗尽时 ok 为 false
func (it *SegmentIterator) Next() (content string, ok bool) {
	if it == nil || it.idx >= len(it.parts) {
		return "", false
	}
	content = it.parts[it.idx]
	it.idx++
	return content, true
}

// Loader 负责读取文档原文并通过切片器产出分段序列
type Loader struct {
	baseDir string
}

func NewLoader(baseDir string) *Loader {
	return &Loader{baseDir: strings.TrimSpace(baseDir)}
}

// LoadAndSplit 读源、切分，返回分段迭代器
func (l *Loader) LoadAndSplit(ctx context.Context, src Source, chunker *chunking.SimpleChunker) (*SegmentIterator, error) {
	if chunker == nil {
		return nil, fmt.Errorf("chunker is nil")
	}

	var text string
	switch src.Type {
	case entity.DocSourceUploadFile:
		id := strings.TrimSpace(src.UploadFileId)
		if id == "" {
			return nil, fmt.Errorf("missing upload_file_id")
		}
		// upload_file_id 即上传服务落盘的文件名，不允许带路径成分
		if id != filepath.Base(id) {
			return nil, fmt.Errorf("invalid upload_file_id: %s", id)
		}
		bs, err := os.ReadFile(filepath.Join(l.baseDir, id))
		if err != nil {
			return nil, fmt.Errorf("read upload file: %w", err)
		}
		text = string(bs)
	case entity.DocSourceInlineText:
		text = src.InlineText
	default:
		return nil, fmt.Errorf("unknown source type: %s", src.Type)
	}

	parts, err := chunker.Split(ctx, text)
	if err != nil {
		return nil, err
	}
	return &SegmentIterator{parts: parts}, nil
}
