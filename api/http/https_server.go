package http

import (
	"fmt"

	"OmniBase/internal/config"
	"OmniBase/internal/initial"
	"OmniBase/internal/modules/dataset/application/service"
	embeddingInfra "OmniBase/internal/modules/dataset/infrastructure/embedding"
	"OmniBase/internal/modules/dataset/infrastructure/loader"
	"OmniBase/internal/modules/dataset/infrastructure/mq/kafka"
	"OmniBase/internal/modules/dataset/infrastructure/persistence"
	"OmniBase/internal/modules/dataset/infrastructure/queue"
	"OmniBase/internal/modules/dataset/infrastructure/rerank"
	"OmniBase/internal/modules/dataset/infrastructure/vectordb"
	dsHandler "OmniBase/internal/modules/dataset/interface/http"
	"OmniBase/pkg/ssl"
	"OmniBase/pkg/zlog"

	cors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

var GE *gin.Engine

// 消费端 worker（cmd 层启动）复用这里组装好的服务
var (
	IndexingSvc service.IndexingService
	ReindexSvc  service.ReindexService
)

func init() {
	conf := config.GetConfig()

	GE = gin.Default()
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	GE.Use(cors.New(corsConfig))
	GE.Use(ssl.TlsHandler(conf.MainConfig.Host, conf.MainConfig.Port))

	// 仓储
	datasetRepo := persistence.NewDatasetRepository(initial.GormDB)
	documentRepo := persistence.NewDocumentRepository(initial.GormDB)
	segmentRepo := persistence.NewSegmentRepository(initial.GormDB)
	retrievalRepo := persistence.NewRetrievalRepository(initial.GormDB)
	modelRepo := persistence.NewModelConfigRepository(initial.GormDB)

	// 供应商缓存与向量库工厂
	providers := embeddingInfra.NewProviderCache(modelRepo, rerank.NewReranker)
	factory, err := vectordb.NewFactory(conf.VectorStoreConfig.Backend, initial.MilvusClient, providers)
	if err != nil {
		zlog.Fatal("vector store factory init failed: " + err.Error())
	}

	// Kafka 未配置时退化为同步执行
	var dispatcher *queue.Dispatcher
	if len(conf.KafkaConfig.Brokers) > 0 {
		if err := kafka.EnsureTopic(kafka.TopicAdminConfig{
			Brokers:  conf.KafkaConfig.Brokers,
			ClientID: conf.KafkaConfig.ClientID,
		}, conf.KafkaConfig.IndexingTopic, 3, 1); err != nil {
			zlog.Fatal("kafka ensure topic failed: " + err.Error())
		}
		pub, err := kafka.NewSaramaPublisher(kafka.PublisherConfig{
			Brokers:  conf.KafkaConfig.Brokers,
			ClientID: conf.KafkaConfig.ClientID,
		})
		if err != nil {
			zlog.Fatal("kafka publisher init failed: " + err.Error())
		}
		dispatcher = queue.NewDispatcher(pub, conf.KafkaConfig.IndexingTopic)
	}

	ld := loader.NewLoader(conf.UploadConfig.BaseDir)

	// 应用服务
	datasetSvc := service.NewDatasetService(datasetRepo, factory)
	IndexingSvc = service.NewIndexingService(datasetRepo, documentRepo, segmentRepo, factory, ld, dispatcher)
	lifecycleSvc := service.NewLifecycleService(datasetRepo, documentRepo, segmentRepo, modelRepo, factory)
	ReindexSvc = service.NewReindexService(datasetRepo, documentRepo, segmentRepo, modelRepo, factory, dispatcher)
	retrievalSvc := service.NewRetrievalService(datasetRepo, documentRepo, segmentRepo, retrievalRepo, factory, providers)
	costSvc := service.NewCostService(modelRepo, segmentRepo)

	datasetH := dsHandler.NewDatasetHandler(datasetSvc, lifecycleSvc)
	documentH := dsHandler.NewDocumentHandler(IndexingSvc, lifecycleSvc)
	segmentH := dsHandler.NewSegmentHandler(lifecycleSvc)
	retrievalH := dsHandler.NewRetrievalHandler(retrievalSvc, ReindexSvc, costSvc)

	GE.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"app": conf.MainConfig.AppName})
	})

	GE.POST("/dataset/create", datasetH.Create)
	GE.POST("/dataset/delete", datasetH.Delete)
	GE.POST("/dataset/reindex", retrievalH.Reindex)
	GE.POST("/dataset/retrieve", retrievalH.Retrieve)
	GE.POST("/dataset/cost/estimate", retrievalH.EstimateCost)
	GE.POST("/dataset/document/ingest", documentH.Ingest)
	GE.POST("/dataset/document/enable", documentH.Enable)
	GE.POST("/dataset/document/disable", documentH.Disable)
	GE.POST("/dataset/document/delete", documentH.Delete)
	GE.POST("/dataset/segment/enable", segmentH.Enable)
	GE.POST("/dataset/segment/disable", segmentH.Disable)

	zlog.Info(fmt.Sprintf("routes registered, backend=%s", conf.VectorStoreConfig.Backend))
}
