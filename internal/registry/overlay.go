package registry

import (
	"sync"
)

// Overlay 单个站点的变量值覆盖层。
// 注册表本身不可变，SetVariables写入落在这里；Persistent写入进入站点快照，
// Volatile写入在站点重启后丢失。
type Overlay struct {
	mu         sync.RWMutex
	persistent map[string]string
	volatile   map[string]string
}

// NewOverlay 创建空覆盖层
func NewOverlay() *Overlay {
	return &Overlay{
		persistent: make(map[string]string),
		volatile:   make(map[string]string),
	}
}

// Get 读取覆盖值
func (o *Overlay) Get(key Key) (string, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	k := key.String()
	if v, ok := o.persistent[k]; ok {
		return v, true
	}
	if v, ok := o.volatile[k]; ok {
		return v, true
	}
	return "", false
}

// Set 按元数据的持久性写入覆盖值
func (o *Overlay) Set(m *Metadata, value string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	k := m.KeyOf().String()
	if m.IsPersistent() {
		delete(o.volatile, k)
		o.persistent[k] = value
		return
	}
	delete(o.persistent, k)
	o.volatile[k] = value
}

// SnapshotPersistent 导出持久覆盖值，用于站点快照
func (o *Overlay) SnapshotPersistent() map[string]string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make(map[string]string, len(o.persistent))
	for k, v := range o.persistent {
		out[k] = v
	}
	return out
}

// RestorePersistent 从站点快照恢复持久覆盖值
func (o *Overlay) RestorePersistent(values map[string]string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for k, v := range values {
		o.persistent[k] = v
	}
}
