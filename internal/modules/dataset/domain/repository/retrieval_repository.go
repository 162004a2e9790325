package repository

import (
	"context"

	"OmniBase/internal/modules/dataset/domain/entity"
)

// RetrievalRepository 检索审计记录（append-only）
type RetrievalRepository interface {
	CreateRecord(ctx context.Context, rec *entity.RetrievalRecord) error

	// CloseRecord 把 running 记录置为终态（success/failed），写入耗时、token 与错误信息。
	// 每次检索调用必须恰好关闭一次自己的记录。
	CloseRecord(ctx context.Context, id int64, status int8, elapsedMs, embeddingTokens, rerankingTokens int64, errorMsg string) error

	CreateDetails(ctx context.Context, details []entity.RetrievalDetail) error
}
