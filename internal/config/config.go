package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 模拟器进程配置
type Config struct {
	App         AppConfig          `mapstructure:"app"`
	SimulatorID string             `mapstructure:"simulator_id"`
	Log         LogConfig          `mapstructure:"log"`
	Monitoring  MonitoringConfig   `mapstructure:"monitoring"`
	Worker      WorkerConfig       `mapstructure:"worker"`
	Storage     StorageConfig      `mapstructure:"storage"`
	Kafka       KafkaConfig        `mapstructure:"kafka"`
	Performance PerformanceConfig  `mapstructure:"performance"`
	Stations    []StationGroup     `mapstructure:"stations"`
}

// AppConfig 应用程序基本信息
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
	Profile string `mapstructure:"profile"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
	Async  bool   `mapstructure:"async"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	MetricsAddr  string `mapstructure:"metrics_addr"`
	PprofEnabled bool   `mapstructure:"pprof_enabled"`
}

// WorkerConfig 工作者宿主配置
type WorkerConfig struct {
	Mode              string        `mapstructure:"mode"`
	ElementsPerWorker int           `mapstructure:"elements_per_worker"`
	PoolMinSize       int           `mapstructure:"pool_min_size"`
	PoolMaxSize       int           `mapstructure:"pool_max_size"`
	WorkerStartDelay  time.Duration `mapstructure:"worker_start_delay"`
	ElementAddDelay   time.Duration `mapstructure:"element_add_delay"`
	StopDeadline      time.Duration `mapstructure:"stop_deadline"`
}

// StorageConfig 持久化配置
type StorageConfig struct {
	Backend string            `mapstructure:"backend"` // none, file, redis
	File    FileStorageConfig `mapstructure:"file"`
	Redis   RedisConfig       `mapstructure:"redis"`
}

// FileStorageConfig 文件存储配置
type FileStorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// RedisConfig Redis存储配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// KafkaConfig 机群事件发布配置
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// PerformanceConfig 性能统计配置
type PerformanceConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// StationGroup 一组由同一模板生成的站点
type StationGroup struct {
	TemplateFile string `mapstructure:"template_file"`
	Count        int    `mapstructure:"count"`
	IdTagsFile   string `mapstructure:"id_tags_file"`
}

// Load 加载配置：默认值 < application.yaml < application-{profile}.yaml < 环境变量
func Load() (*Config, error) {
	setDefaults()

	profile := getProfile()

	if err := loadConfigFile("application"); err != nil {
		fmt.Printf("Warning: Could not load default config file: %v\n", err)
	}
	if profile != "" {
		configName := fmt.Sprintf("application-%s", profile)
		if err := loadConfigFile(configName); err != nil {
			fmt.Printf("Warning: Could not load profile config file %s: %v\n", configName, err)
		}
	}

	setupEnvironmentVariables()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.App.Profile = profile

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置一致性，问题在启动时暴露
func (c *Config) Validate() error {
	switch c.Worker.Mode {
	case "workerSet", "fixedPool", "dynamicPool":
	default:
		return fmt.Errorf("invalid worker mode %q", c.Worker.Mode)
	}
	switch c.Storage.Backend {
	case "none", "file", "redis":
	default:
		return fmt.Errorf("invalid storage backend %q", c.Storage.Backend)
	}
	for i, group := range c.Stations {
		if group.TemplateFile == "" {
			return fmt.Errorf("stations[%d]: template_file is required", i)
		}
		if group.Count < 1 {
			return fmt.Errorf("stations[%d]: count must be at least 1", i)
		}
	}
	return nil
}

// getProfile 获取运行环境配置
func getProfile() string {
	if profile := os.Getenv("APP_PROFILE"); profile != "" {
		return profile
	}
	if profile := viper.GetString("app.profile"); profile != "" {
		return profile
	}
	return "local"
}

// loadConfigFile 加载指定的配置文件
func loadConfigFile(configName string) error {
	viper.SetConfigName(configName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")
	return viper.MergeInConfig()
}

// setupEnvironmentVariables 设置环境变量映射
func setupEnvironmentVariables() {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.BindEnv("log.level", "LOG_LEVEL")
	viper.BindEnv("monitoring.metrics_addr", "MONITORING_METRICS_ADDR")
	viper.BindEnv("storage.backend", "STORAGE_BACKEND")
	viper.BindEnv("storage.redis.addr", "REDIS_ADDR")
	viper.BindEnv("app.profile", "APP_PROFILE")

	if kafkaBrokers := os.Getenv("KAFKA_BROKERS"); kafkaBrokers != "" {
		brokers := strings.Split(kafkaBrokers, ",")
		for i, broker := range brokers {
			brokers[i] = strings.TrimSpace(broker)
		}
		viper.Set("kafka.brokers", brokers)
		viper.Set("kafka.enabled", true)
	}
}

// setDefaults 设置默认配置
func setDefaults() {
	viper.SetDefault("app.name", "charge-point-simulator")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.profile", "local")

	viper.SetDefault("simulator_id", "simulator-1")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.async", false)

	viper.SetDefault("monitoring.metrics_addr", ":9090")
	viper.SetDefault("monitoring.pprof_enabled", false)

	viper.SetDefault("worker.mode", "workerSet")
	viper.SetDefault("worker.elements_per_worker", 10)
	viper.SetDefault("worker.pool_min_size", 4)
	viper.SetDefault("worker.pool_max_size", 16)
	viper.SetDefault("worker.worker_start_delay", "500ms")
	viper.SetDefault("worker.element_add_delay", "100ms")
	viper.SetDefault("worker.stop_deadline", "60s")

	viper.SetDefault("storage.backend", "none")
	viper.SetDefault("storage.file.base_dir", "./data")
	viper.SetDefault("storage.redis.addr", "localhost:6379")
	viper.SetDefault("storage.redis.password", "")
	viper.SetDefault("storage.redis.db", 0)

	viper.SetDefault("kafka.enabled", false)
	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.topic", "simulator-events")

	viper.SetDefault("performance.enabled", false)
	viper.SetDefault("performance.flush_interval", "60s")
}
