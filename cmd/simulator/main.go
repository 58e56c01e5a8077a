package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charging-platform/charge-point-simulator/internal/config"
	"github.com/charging-platform/charge-point-simulator/internal/domain/events"
	"github.com/charging-platform/charge-point-simulator/internal/logger"
	"github.com/charging-platform/charge-point-simulator/internal/message"
	"github.com/charging-platform/charge-point-simulator/internal/perf"
	"github.com/charging-platform/charge-point-simulator/internal/registry"
	"github.com/charging-platform/charge-point-simulator/internal/station"
	"github.com/charging-platform/charge-point-simulator/internal/storage"
	"github.com/charging-platform/charge-point-simulator/internal/worker"
)

// 退出码：0 正常停机，1 未处理错误，2 配置错误
const (
	exitOK     = 0
	exitError  = 1
	exitConfig = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		return exitConfig
	}

	// 2. 初始化日志
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
		Async:  cfg.Log.Async,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		return exitConfig
	}
	log.Infof("Starting %s %s (profile %s)", cfg.App.Name, cfg.App.Version, cfg.App.Profile)

	// 3. 初始化存储后端
	store, err := buildStorage(cfg, log)
	if err != nil {
		log.Errorf("Failed to initialize storage: %v", err)
		return exitConfig
	}
	if store != nil {
		defer store.Close()
	}

	// 4. 可选的Kafka事件发布器
	var publisher *message.KafkaPublisher
	if cfg.Kafka.Enabled {
		publisher, err = message.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.SimulatorID)
		if err != nil {
			log.Errorf("Failed to initialize Kafka publisher: %v", err)
			return exitError
		}
		defer publisher.Close()
		log.Infof("Kafka publisher initialized with brokers: %v", cfg.Kafka.Brokers)
	}

	// 5. 性能统计收集器
	collector := perf.NewCollector(&perf.Config{
		Enabled:       cfg.Performance.Enabled,
		FlushInterval: cfg.Performance.FlushInterval,
	}, cfg.SimulatorID, store, log)
	collector.Start()
	defer collector.Stop()

	// 6. 变量注册表，进程级单例，所有站点共享
	variableRegistry := registry.Standard()
	log.Infof("Variable registry initialized with %d entries", variableRegistry.Len())

	// 7. 工作者宿主
	host, err := worker.NewHost(&worker.Config{
		Mode:              worker.Mode(cfg.Worker.Mode),
		ElementsPerWorker: cfg.Worker.ElementsPerWorker,
		PoolMinSize:       cfg.Worker.PoolMinSize,
		PoolMaxSize:       cfg.Worker.PoolMaxSize,
		WorkerStartDelay:  cfg.Worker.WorkerStartDelay,
		ElementAddDelay:   cfg.Worker.ElementAddDelay,
		StopDeadline:      cfg.Worker.StopDeadline,
		EventChannelSize:  1000,
	}, log)
	if err != nil {
		log.Errorf("Failed to create worker host: %v", err)
		return exitConfig
	}
	if err := host.Start(); err != nil {
		log.Errorf("Failed to start worker host: %v", err)
		return exitError
	}

	// 事件转发：站点事件镜像到Kafka（启用时）；宿主事件不转发
	eventSink := func(event events.Event) {
		if publisher != nil {
			if err := publisher.PublishEvent(event); err != nil {
				log.Warnf("Failed to publish event: %v", err)
			}
		}
	}
	go func() {
		for range host.Events() {
			// 宿主事件不做处理，仅消费掉避免通道堆积
		}
	}()

	// 8. 指标服务
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		log.Infof("Metrics server listening on %s", cfg.Monitoring.MetricsAddr)
		if err := http.ListenAndServe(cfg.Monitoring.MetricsAddr, mux); err != nil {
			log.Errorf("Metrics server failed: %v", err)
		}
	}()

	// 9. 按模板组创建站点并投递给宿主
	total := 0
	for _, group := range cfg.Stations {
		template, err := station.LoadTemplate(group.TemplateFile)
		if err != nil {
			log.Errorf("Failed to load station template: %v", err)
			return exitConfig
		}

		var idTags []string
		if group.IdTagsFile != "" {
			idTags, err = loadIdTags(group.IdTagsFile)
			if err != nil {
				log.Errorf("Failed to load id tags: %v", err)
				return exitConfig
			}
		}

		for i := 1; i <= group.Count; i++ {
			sta, err := station.New(station.Options{
				ID:        fmt.Sprintf("%s-%06d", template.BaseName, i),
				Template:  template,
				Registry:  variableRegistry,
				Store:     store,
				IdTags:    idTags,
				EventSink: eventSink,
				Perf:      collector,
				Logger:    log,
			})
			if err != nil {
				log.Errorf("Failed to create station: %v", err)
				return exitConfig
			}
			if err := host.AddElement(sta); err != nil {
				log.Errorf("Failed to add station %s: %v", sta.ID(), err)
				return exitError
			}
			total++
		}
	}
	log.Infof("Dispatched %d stations to the worker host", total)

	// 10. 等待停机信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Infof("Received signal %s, shutting down", sig)

	if err := host.Stop(); err != nil {
		log.Errorf("Worker host shutdown failed: %v", err)
		return exitError
	}
	log.Info("Shutdown complete")
	return exitOK
}

// buildStorage 按配置选择存储后端
func buildStorage(cfg *config.Config, log *logger.Logger) (storage.Storage, error) {
	switch cfg.Storage.Backend {
	case "none":
		return nil, nil
	case "file":
		store, err := storage.NewFileStorage(cfg.Storage.File.BaseDir, storage.NewLockRegistry())
		if err != nil {
			return nil, err
		}
		log.Infof("File storage initialized at %s", cfg.Storage.File.BaseDir)
		return store, nil
	case "redis":
		store, err := storage.NewRedisStorage(storage.RedisConfig{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		log.Infof("Redis storage initialized at %s", cfg.Storage.Redis.Addr)
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %s", cfg.Storage.Backend)
	}
}

// loadIdTags 读取授权标签文件，内容为JSON字符串数组
func loadIdTags(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read id tags file %s: %w", path, err)
	}
	var tags []string
	if err := json.Unmarshal(data, &tags); err != nil {
		return nil, fmt.Errorf("failed to parse id tags file %s: %w", path, err)
	}
	return tags, nil
}
