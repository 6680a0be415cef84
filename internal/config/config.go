// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Tika          TikaConfig          `mapstructure:"tika"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Upload        UploadConfig        `mapstructure:"upload"`
	Seed          SeedConfig          `mapstructure:"seed"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
	// LoginRatePerMinute 限制单个客户端每分钟的登录尝试次数，0 表示不限制。
	LoginRatePerMinute int `mapstructure:"login_rate_per_minute"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	// Driver 可选 memory、mysql、postgres。
	Driver   string         `mapstructure:"driver"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// PostgresConfig 存储 PostgreSQL 数据库的配置。
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。Brokers 为空时不发布文件事件。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// TikaConfig 存储 Tika 服务器相关的配置。ServerURL 为空时索引不包含正文。
type TikaConfig struct {
	ServerURL string        `mapstructure:"server_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。Endpoint 为空时不保存文件内容。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// UploadConfig 存储批量上传任务引擎的配置。
type UploadConfig struct {
	ProgressStep int           `mapstructure:"progress_step"`
	StepDelay    time.Duration `mapstructure:"step_delay"`
	FailureRate  float64       `mapstructure:"failure_rate"`
	TaskTTL      time.Duration `mapstructure:"task_ttl"`
	// LockBackend 可选 local、redis，多实例部署时必须使用 redis。
	LockBackend string `mapstructure:"lock_backend"`
	// TaskBackend 可选 memory、redis。
	TaskBackend string        `mapstructure:"task_backend"`
	LockTTL     time.Duration `mapstructure:"lock_ttl"`
	// MaxFiles 限制单个批次的文件数。
	MaxFiles int `mapstructure:"max_files"`
	// MaxFileSize 和 MaxRequestSize 以字节为单位，限制 multipart 上传的单个文件和整个请求。
	MaxFileSize    int64 `mapstructure:"max_file_size"`
	MaxRequestSize int64 `mapstructure:"max_request_size"`
}

// SeedConfig 描述启动时写入的初始数据。
type SeedConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	AdminUser   string   `mapstructure:"admin_user"`
	AdminPass   string   `mapstructure:"admin_pass"`
	AdminEmail  string   `mapstructure:"admin_email"`
	Departments []string `mapstructure:"departments"`
}

// setDefaults 设置配置文件中可以省略的键的默认值。
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8081")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.login_rate_per_minute", 30)
	v.SetDefault("database.driver", "memory")
	v.SetDefault("jwt.access_token_expire_hours", 24)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("kafka.topic", "kb-file-events")
	v.SetDefault("kafka.group_id", "kb-admin-indexer")
	v.SetDefault("elasticsearch.index_name", "kb_files")
	v.SetDefault("tika.timeout", "30s")
	v.SetDefault("upload.progress_step", 10)
	v.SetDefault("upload.step_delay", "200ms")
	v.SetDefault("upload.failure_rate", 0.1)
	v.SetDefault("upload.task_ttl", "1h")
	v.SetDefault("upload.lock_backend", "local")
	v.SetDefault("upload.task_backend", "memory")
	v.SetDefault("upload.lock_ttl", "30s")
	v.SetDefault("upload.max_files", 20)
	v.SetDefault("upload.max_file_size", 50<<20)
	v.SetDefault("upload.max_request_size", 200<<20)
}

// Load 从指定路径读取 YAML 文件，叠加 KBADMIN_ 前缀的环境变量后返回配置。
func Load(configPath string) (Config, error) {
	var cfg Config
	v := viper.New()
	setDefaults(v)

	// 指定配置文件路径和类型
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// 环境变量覆盖配置文件，例如 KBADMIN_SERVER_PORT 对应 server.port
	v.SetEnvPrefix("KBADMIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("读取配置文件失败: %w", err)
	}
	// 解析到结构体
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}

	// 校验上传任务引擎的参数
	if cfg.Upload.ProgressStep <= 0 || cfg.Upload.ProgressStep > 10 {
		return cfg, fmt.Errorf("upload.progress_step 必须在 1 到 10 之间, 当前为 %d", cfg.Upload.ProgressStep)
	}
	if cfg.Upload.FailureRate < 0 || cfg.Upload.FailureRate > 1 {
		return cfg, fmt.Errorf("upload.failure_rate 必须在 0 到 1 之间, 当前为 %v", cfg.Upload.FailureRate)
	}
	// 上传限制必须为正数，否则 multipart 请求没有上限
	if cfg.Upload.MaxFiles <= 0 || cfg.Upload.MaxFileSize <= 0 || cfg.Upload.MaxRequestSize <= 0 {
		return cfg, fmt.Errorf("upload.max_files、max_file_size、max_request_size 必须大于 0")
	}
	return cfg, nil
}

// Init 初始化配置加载，解析结果写入 Conf 变量。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}
