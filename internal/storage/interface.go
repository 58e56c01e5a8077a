package storage

import (
	"context"
	"sync"
)

// Storage 定义站点快照与性能统计的持久化接口。
// 快照内容由站点运行时自行序列化，存储层只负责按站点ID存取。
type Storage interface {
	// PersistStation 保存站点快照
	PersistStation(ctx context.Context, stationID string, snapshot []byte) error

	// LoadStation 读取站点快照，不存在时返回found=false
	LoadStation(ctx context.Context, stationID string) (snapshot []byte, found bool, err error)

	// StorePerformanceStatistics 追加一条性能统计记录
	StorePerformanceStatistics(ctx context.Context, record []byte) error

	// Close 关闭与存储后端的连接
	Close() error
}

// LockKind 磁盘写入互斥锁的资源类别
type LockKind string

const (
	LockKindConfiguration LockKind = "configuration"
	LockKindPerformance   LockKind = "performance"
)

// LockRegistry 按资源类别命名的互斥锁集合。
// 持久化写入经由这里串行化；锁对象显式传入存储实现，不依赖进程级单例。
type LockRegistry struct {
	mu    sync.Mutex
	locks map[LockKind]*sync.Mutex
}

// NewLockRegistry 创建锁集合
func NewLockRegistry() *LockRegistry {
	return &LockRegistry{locks: make(map[LockKind]*sync.Mutex)}
}

// Acquire 获取指定类别的锁，返回释放函数
func (r *LockRegistry) Acquire(kind LockKind) func() {
	r.mu.Lock()
	lock, ok := r.locks[kind]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[kind] = lock
	}
	r.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
