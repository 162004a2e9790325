package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"OmniBase/internal/modules/dataset/domain/entity"

	arkEmbed "github.com/cloudwego/eino-ext/components/embedding/ark"
	dashscopeEmbed "github.com/cloudwego/eino-ext/components/embedding/dashscope"
	openaIEmbed "github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino/components/embedding"
)

// Settings 供应商级与模型级配置合并后的生效配置（模型级优先）
type Settings struct {
	Provider      string
	APIKey        string
	BaseURL       string
	Model         string
	Dimensions    int
	LocallyHosted bool
}

// MergeSettings 合并供应商级与模型级配置，模型级字段非空时覆盖供应商级
func MergeSettings(mc *entity.ModelConfig, sup *entity.ModelSupplier) Settings {
	s := Settings{}
	if sup != nil {
		s.Provider = strings.TrimSpace(sup.Provider)
		s.APIKey = strings.TrimSpace(sup.APIKey)
		s.BaseURL = strings.TrimSpace(sup.BaseURL)
		s.LocallyHosted = sup.LocallyHosted
	}
	if mc != nil {
		s.Model = strings.TrimSpace(mc.Model)
		s.Dimensions = mc.Dimensions
		if k := strings.TrimSpace(mc.APIKey); k != "" {
			s.APIKey = k
		}
		if u := strings.TrimSpace(mc.BaseURL); u != "" {
			s.BaseURL = u
		}
	}
	return s
}

// BuildEmbedder 按合并后的配置实例化 Eino Embedder
func BuildEmbedder(ctx context.Context, s Settings) (embedding.Embedder, error) {
	dim := s.Dimensions
	if dim <= 0 {
		dim = 768
	}

	switch strings.ToLower(s.Provider) {
	case "", "mock":
		return NewMockEmbedder(dim), nil
	case "openai", "azure_openai":
		if s.APIKey == "" || s.Model == "" {
			return nil, fmt.Errorf("openai embedding missing apiKey/model")
		}
		localDim := dim
		cfg := &openaIEmbed.EmbeddingConfig{
			APIKey:     s.APIKey,
			Model:      s.Model,
			BaseURL:    s.BaseURL,
			Timeout:    30 * time.Second,
			Dimensions: &localDim,
		}
		return openaIEmbed.NewEmbedder(ctx, cfg)
	case "ark":
		if s.APIKey == "" || s.Model == "" {
			return nil, fmt.Errorf("ark embedding missing apiKey/model")
		}
		return arkEmbed.NewEmbedder(ctx, &arkEmbed.EmbeddingConfig{
			APIKey:  s.APIKey,
			Model:   s.Model,
			BaseURL: s.BaseURL,
		})
	case "dashscope":
		if s.APIKey == "" || s.Model == "" {
			return nil, fmt.Errorf("dashscope embedding missing apiKey/model")
		}
		localDim := dim
		return dashscopeEmbed.NewEmbedder(ctx, &dashscopeEmbed.EmbeddingConfig{
			Model:      s.Model,
			APIKey:     s.APIKey,
			Dimensions: &localDim,
		})
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", s.Provider)
	}
}
