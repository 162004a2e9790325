package config

import (
	"log"

	"github.com/BurntSushi/toml"
)

type MainConfig struct {
	AppName string `toml:"appName"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
}

type MysqlConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	DatabaseName string `toml:"databaseName"`
}

type LogConfig struct {
	LogPath string `toml:"logPath"`
}

// VectorStoreKind 向量库后端类型（配置加载时即确定，运行期不再按字符串分发）
type VectorStoreKind string

const (
	VectorStoreMilvus VectorStoreKind = "milvus"
	VectorStoreMemory VectorStoreKind = "memory"
)

type MilvusConfig struct {
	Address     string `toml:"address"`
	Username    string `toml:"username"`
	Password    string `toml:"password"`
	DBName      string `toml:"dbName"`
	VectorDim   int    `toml:"vectorDim"`
	MetricType  string `toml:"metricType"`
	ConsistencyLevel string `toml:"consistencyLevel"`
}

type VectorStoreConfig struct {
	Backend VectorStoreKind `toml:"backend"`
}

type KafkaConfig struct {
	Brokers         []string `toml:"brokers"`
	ClientID        string   `toml:"clientID"`
	IndexingTopic   string   `toml:"indexingTopic"`
	ConsumerGroupID string   `toml:"consumerGroupID"`
}

type RedisConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"poolSize"`
	MinIdleConns int    `toml:"minIdleConns"`
}

// AIEmbeddingConfig 内置（无租户配置时的兜底）向量化供应商配置
type AIEmbeddingConfig struct {
	Provider       string `toml:"provider"`
	APIKey         string `toml:"apiKey"`
	BaseURL        string `toml:"baseURL"`
	Model          string `toml:"model"`
	Dimensions     int    `toml:"dimensions"`
	TimeoutSeconds int    `toml:"timeoutSeconds"`
}

// AIRerankConfig 重排序服务配置（交叉编码器，HTTP 接口）
type AIRerankConfig struct {
	Provider       string `toml:"provider"`
	APIKey         string `toml:"apiKey"`
	BaseURL        string `toml:"baseURL"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeoutSeconds"`
}

type AIConfig struct {
	Embedding AIEmbeddingConfig `toml:"embedding"`
	Rerank    AIRerankConfig    `toml:"rerank"`
}

// UploadConfig 上传文件在磁盘上的根目录（文档入库时按 upload_file_id 读取）
type UploadConfig struct {
	BaseDir string `toml:"baseDir"`
}

type Config struct {
	MainConfig        `toml:"mainConfig"`
	MysqlConfig       `toml:"mysqlConfig"`
	MilvusConfig      `toml:"milvusConfig"`
	VectorStoreConfig `toml:"vectorStoreConfig"`
	KafkaConfig       `toml:"kafkaConfig"`
	RedisConfig       `toml:"redisConfig"`
	AIConfig          `toml:"aiConfig"`
	LogConfig         `toml:"logConfig"`
	UploadConfig      `toml:"uploadConfig"`
}

var config *Config

func LoadConfig() error {
	configPath := "configs/config_local.toml"
	if _, err := toml.DecodeFile(configPath, config); err != nil {
		log.Printf("加载配置文件失败: %v, 尝试使用默认设置", err)
		return err
	}
	return nil
}

func GetConfig() *Config {
	if config == nil {
		config = new(Config)
		_ = LoadConfig()
	}
	return config
}
