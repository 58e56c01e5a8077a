package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisConfig Redis连接配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RedisStorage 使用Redis保存站点快照与性能统计。
// 大规模拉测场景下多台模拟器共享一个Redis，快照按站点ID散列。
type RedisStorage struct {
	Client *redis.Client
	Prefix string
}

// NewRedisStorage 创建RedisStorage实例并验证连通性
func NewRedisStorage(cfg RedisConfig) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}

	return &RedisStorage{Client: client, Prefix: "simulator:"}, nil
}

// PersistStation 保存站点快照
func (r *RedisStorage) PersistStation(ctx context.Context, stationID string, snapshot []byte) error {
	key := fmt.Sprintf("%sstation:%s", r.Prefix, stationID)
	return r.Client.Set(ctx, key, snapshot, 0).Err()
}

// LoadStation 读取站点快照
func (r *RedisStorage) LoadStation(ctx context.Context, stationID string) ([]byte, bool, error) {
	key := fmt.Sprintf("%sstation:%s", r.Prefix, stationID)
	data, err := r.Client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// StorePerformanceStatistics 将性能统计追加到列表
func (r *RedisStorage) StorePerformanceStatistics(ctx context.Context, record []byte) error {
	key := r.Prefix + "performance"
	return r.Client.RPush(ctx, key, record).Err()
}

// Close 关闭Redis连接
func (r *RedisStorage) Close() error {
	return r.Client.Close()
}
