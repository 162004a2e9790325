package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	https_server "OmniBase/api/http"
	"OmniBase/internal/config"
	"OmniBase/internal/modules/dataset/infrastructure/mq/kafka"
	"OmniBase/internal/modules/dataset/infrastructure/queue"
	"OmniBase/pkg/redis"
	"OmniBase/pkg/zlog"
)

func main() {
	// 1. 加载配置
	conf := config.GetConfig()
	host := conf.MainConfig.Host
	port := conf.MainConfig.Port

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. 启动入库任务消费端（Kafka 已配置时）
	if len(conf.KafkaConfig.Brokers) > 0 {
		consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:  conf.KafkaConfig.Brokers,
			GroupID:  conf.KafkaConfig.ConsumerGroupID,
			Topics:   []string{conf.KafkaConfig.IndexingTopic},
			ClientID: conf.KafkaConfig.ClientID,
		})
		if err != nil {
			zlog.Fatal("kafka consumer init failed: " + err.Error())
		}
		worker := queue.NewIndexingConsumerWorker(consumer, https_server.IndexingSvc, https_server.ReindexSvc)
		go func() {
			if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
				zlog.Error("indexing consumer stopped: " + err.Error())
			}
		}()
		defer func() { _ = consumer.Close() }()
	}

	// 3. 启动 HTTP 服务
	go func() {
		addr := fmt.Sprintf("%s:%d", host, port)
		zlog.Info(fmt.Sprintf("服务器正在启动，监听地址: %s", addr))
		if err := https_server.GE.Run(addr); err != nil {
			zlog.Fatal("服务器启动失败: " + err.Error())
			return
		}
	}()

	// 4. 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("正在关闭服务器...")
	cancel()
	_ = redis.Close()
	zlog.Info("服务器已关闭")
	zlog.Sync()
}
