package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Port        string        `mapstructure:"port" yaml:"port"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	CORSOrigins []string      `mapstructure:"corsOrigins" yaml:"corsOrigins"`
}

type DatabaseConfig struct {
	// Backend 为 mongo 或 memory
	Backend string `mapstructure:"backend" yaml:"backend"`
	URI     string `mapstructure:"uri" yaml:"uri"`
	Name    string `mapstructure:"name" yaml:"name"`
}

type LoggerConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Path   string `mapstructure:"path" yaml:"path"`
}

// RecognitionConfig 控制人脸匹配与聚类的参数。
type RecognitionConfig struct {
	Tolerance        float64 `mapstructure:"tolerance" yaml:"tolerance"`
	MinFaceSize      int     `mapstructure:"minFaceSize" yaml:"minFaceSize"`
	DBSCANEps        float64 `mapstructure:"dbscanEps" yaml:"dbscanEps"`
	DBSCANMinSamples int     `mapstructure:"dbscanMinSamples" yaml:"dbscanMinSamples"`
	SearchMaxResults int     `mapstructure:"searchMaxResults" yaml:"searchMaxResults"`
}

type UploadConfig struct {
	MaxFileSize       int64    `mapstructure:"maxFileSize" yaml:"maxFileSize"`
	MaxDimension      int      `mapstructure:"maxDimension" yaml:"maxDimension"`
	AllowedExtensions []string `mapstructure:"allowedExtensions" yaml:"allowedExtensions"`
}

type DetectorConfig struct {
	URL        string        `mapstructure:"url" yaml:"url"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RetryCount int           `mapstructure:"retryCount" yaml:"retryCount"`
}

type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKey string `mapstructure:"accessKey" yaml:"accessKey"`
	SecretKey string `mapstructure:"secretKey" yaml:"secretKey"`
	UseSSL    bool   `mapstructure:"useSSL" yaml:"useSSL"`
}

type StorageConfig struct {
	// Backend 为 gridfs、minio 或 memory
	Backend string      `mapstructure:"backend" yaml:"backend"`
	Bucket  string      `mapstructure:"bucket" yaml:"bucket"`
	MinIO   MinIOConfig `mapstructure:"minio" yaml:"minio"`
}

type ScannerConfig struct {
	ImportPath   string   `mapstructure:"importPath" yaml:"importPath"`
	BackupPath   string   `mapstructure:"backupPath" yaml:"backupPath"`
	WorkerCount  int      `mapstructure:"workerCount" yaml:"workerCount"`
	FilePatterns []string `mapstructure:"filePatterns" yaml:"filePatterns"`
}

type Config struct {
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	Database    DatabaseConfig    `mapstructure:"database" yaml:"database"`
	Logger      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	Recognition RecognitionConfig `mapstructure:"recognition" yaml:"recognition"`
	Upload      UploadConfig      `mapstructure:"upload" yaml:"upload"`
	Detector    DetectorConfig    `mapstructure:"detector" yaml:"detector"`
	Storage     StorageConfig     `mapstructure:"storage" yaml:"storage"`
	Scanner     ScannerConfig     `mapstructure:"scanner" yaml:"scanner"`
}

var C *Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.timeout", 60*time.Second)
	v.SetDefault("server.corsOrigins", []string{"*"})

	v.SetDefault("database.backend", "mongo")
	v.SetDefault("database.uri", "mongodb://localhost:27017")
	v.SetDefault("database.name", "face_gallery")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "text")
	v.SetDefault("logger.path", "")

	v.SetDefault("recognition.tolerance", 0.6)
	v.SetDefault("recognition.minFaceSize", 0)
	v.SetDefault("recognition.dbscanEps", 0.4)
	v.SetDefault("recognition.dbscanMinSamples", 2)
	v.SetDefault("recognition.searchMaxResults", 20)

	v.SetDefault("upload.maxFileSize", 10*1024*1024)
	v.SetDefault("upload.maxDimension", 1920)
	v.SetDefault("upload.allowedExtensions", []string{"png", "jpg", "jpeg", "gif"})

	v.SetDefault("detector.url", "http://localhost:5005")
	v.SetDefault("detector.timeout", 30*time.Second)
	v.SetDefault("detector.retryCount", 3)

	v.SetDefault("storage.backend", "gridfs")
	v.SetDefault("storage.bucket", "gallery")
	v.SetDefault("storage.minio.endpoint", "localhost:9000")
	v.SetDefault("storage.minio.accessKey", "")
	v.SetDefault("storage.minio.secretKey", "")
	v.SetDefault("storage.minio.useSSL", false)

	v.SetDefault("scanner.importPath", "./import")
	v.SetDefault("scanner.workerCount", 4)
	v.SetDefault("scanner.backupPath", "./backups")
	v.SetDefault("scanner.filePatterns", []string{"*.jpg", "*.jpeg", "*.png", "*.gif"})
}

// LoadConfig 从 path 目录读取 config.yaml 并写入全局 C。
// 配置文件不存在时使用默认值；环境变量 (例如 DATABASE_URI) 优先于文件。
// 同目录下的 .env 会先被加载到环境变量中，已经存在的变量不会被覆盖。
func LoadConfig(path string) error {
	if err := godotenv.Load(filepath.Join(path, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("读取 .env 失败: %w", err)
	}
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	C = cfg
	return nil
}

// Load 与 LoadConfig 相同，但不修改全局变量。
func Load(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default 返回只含默认值的配置，主要用于测试。
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate 检查取值范围。
func (c *Config) Validate() error {
	if c.Recognition.Tolerance <= 0 {
		return fmt.Errorf("recognition.tolerance 必须大于 0，当前为 %v", c.Recognition.Tolerance)
	}
	if c.Recognition.MinFaceSize < 0 {
		return fmt.Errorf("recognition.minFaceSize 不能为负数")
	}
	if c.Upload.MaxFileSize <= 0 {
		return fmt.Errorf("upload.maxFileSize 必须大于 0")
	}
	switch c.Database.Backend {
	case "mongo", "memory":
	default:
		return fmt.Errorf("未知的数据库后端: %s", c.Database.Backend)
	}
	switch c.Storage.Backend {
	case "gridfs", "minio", "memory":
	default:
		return fmt.Errorf("未知的存储后端: %s", c.Storage.Backend)
	}
	return nil
}

// Save 把配置写回 path 目录下的 config.yaml。
func Save(path string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(path, "config.yaml"), data, 0o644)
}
