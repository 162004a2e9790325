package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"OmniBase/internal/modules/dataset/infrastructure/mq"
	"OmniBase/pkg/util"
	"OmniBase/pkg/zlog"

	"go.uber.org/zap"
)

// Dispatcher 把入库/重建任务投递到 Kafka。
// Key 固定取 dataset_id：同一数据集的任务在分区内保序，
// 重建任务不会越过同数据集尚未消费的入库任务执行。
type Dispatcher struct {
	pub   mq.Publisher
	topic string
}

func NewDispatcher(pub mq.Publisher, topic string) *Dispatcher {
	return &Dispatcher{pub: pub, topic: strings.TrimSpace(topic)}
}

func (d *Dispatcher) DispatchIngest(ctx context.Context, datasetId, documentId int64) error {
	return d.dispatch(ctx, IndexingTask{
		TaskType:   TaskTypeIngestDocument,
		DatasetId:  datasetId,
		DocumentId: documentId,
		TraceId:    util.GenerateShortUUID(),
	})
}

func (d *Dispatcher) DispatchReindex(ctx context.Context, datasetId, embeddingConfigId int64) error {
	return d.dispatch(ctx, IndexingTask{
		TaskType:          TaskTypeReindexDataset,
		DatasetId:         datasetId,
		EmbeddingConfigId: embeddingConfigId,
		TraceId:           util.GenerateShortUUID(),
	})
}

func (d *Dispatcher) dispatch(ctx context.Context, task IndexingTask) error {
	if d == nil || d.pub == nil {
		return errors.New("publisher is nil")
	}
	if d.topic == "" {
		return errors.New("indexing topic is empty")
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}

	res, err := d.pub.Publish(ctx, mq.Message{
		Topic: d.topic,
		Key:   []byte(strconv.FormatInt(task.DatasetId, 10)),
		Value: payload,
		Headers: map[string]string{
			"task_type": task.TaskType,
			"trace_id":  task.TraceId,
		},
	})
	if err != nil {
		zlog.Warn("indexing task publish failed",
			zap.String("task_type", task.TaskType),
			zap.Int64("dataset_id", task.DatasetId),
			zap.Error(err))
		return err
	}
	zlog.Info("indexing task published",
		zap.String("task_type", task.TaskType),
		zap.Int64("dataset_id", task.DatasetId),
		zap.Int64("document_id", task.DocumentId),
		zap.Int32("partition", res.Partition),
		zap.Int64("offset", res.Offset))
	return nil
}
