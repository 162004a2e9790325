package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"OmniBase/internal/modules/dataset/infrastructure/mq"
	"OmniBase/pkg/zlog"

	"go.uber.org/zap"
)

// IngestExecutor 消费端入库执行器（由 application 层实现）
type IngestExecutor interface {
	ExecuteIngest(ctx context.Context, datasetId, documentId int64) error
}

// ReindexExecutor 消费端重建执行器（由 application 层实现）
type ReindexExecutor interface {
	ExecuteReindex(ctx context.Context, datasetId, embeddingConfigId int64) error
}

// IndexingConsumerWorker 消费入库任务 topic 并分发到执行器。
// 业务失败（数据不存在、数据集忙）记日志后提交位点；
// 基础设施失败返回错误触发重投。
type IndexingConsumerWorker struct {
	consumer mq.Consumer
	ingest   IngestExecutor
	reindex  ReindexExecutor
}

func NewIndexingConsumerWorker(consumer mq.Consumer, ingest IngestExecutor, reindex ReindexExecutor) *IndexingConsumerWorker {
	return &IndexingConsumerWorker{consumer: consumer, ingest: ingest, reindex: reindex}
}

func (w *IndexingConsumerWorker) Run(ctx context.Context) error {
	if w == nil || w.consumer == nil {
		return errors.New("consumer is nil")
	}
	if w.ingest == nil || w.reindex == nil {
		return errors.New("executor is nil")
	}
	return w.consumer.Run(ctx, w)
}

func (w *IndexingConsumerWorker) Handle(ctx context.Context, msg mq.Message) error {
	var task IndexingTask
	if err := json.Unmarshal(msg.Value, &task); err != nil {
		zlog.Warn("indexing consumer invalid payload", zap.String("topic", msg.Topic), zap.Error(err))
		return nil
	}
	if task.DatasetId <= 0 {
		zlog.Warn("indexing consumer missing dataset_id", zap.String("task_type", task.TaskType))
		return nil
	}

	var err error
	switch strings.TrimSpace(task.TaskType) {
	case TaskTypeIngestDocument:
		if task.DocumentId <= 0 {
			zlog.Warn("indexing consumer missing document_id", zap.Int64("dataset_id", task.DatasetId))
			return nil
		}
		err = w.ingest.ExecuteIngest(ctx, task.DatasetId, task.DocumentId)
	case TaskTypeReindexDataset:
		err = w.reindex.ExecuteReindex(ctx, task.DatasetId, task.EmbeddingConfigId)
	default:
		zlog.Warn("indexing consumer unknown task_type", zap.String("task_type", task.TaskType))
		return nil
	}

	if err != nil {
		zlog.Warn("indexing consumer task failed",
			zap.String("task_type", task.TaskType),
			zap.Int64("dataset_id", task.DatasetId),
			zap.Int64("document_id", task.DocumentId),
			zap.String("trace_id", task.TraceId),
			zap.String("error", scrubErrMsg(err.Error())))
		// 状态已由执行器落库（failed / 哨兵回退），不重投
		return nil
	}
	return nil
}

// scrubErrMsg 错误信息入日志前裁剪并去除疑似凭证
func scrubErrMsg(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	low := strings.ToLower(s)
	if strings.Contains(low, "api_key") || strings.Contains(low, "apikey") || strings.Contains(low, "secret") || strings.Contains(s, "sk-") {
		return "redacted"
	}
	if len(s) > 255 {
		return s[:255]
	}
	return s
}
