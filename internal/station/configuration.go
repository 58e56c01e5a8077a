package station

import (
	"strings"
	"sync"
)

// OCPP 1.6标准配置键
const (
	KeyHeartbeatInterval        = "HeartbeatInterval"
	KeyMeterValueSampleInterval = "MeterValueSampleInterval"
	KeyMeterValuesSampledData   = "MeterValuesSampledData"
	KeyNumberOfConnectors       = "NumberOfConnectors"
	KeyAuthorizeRemoteTxRequests = "AuthorizeRemoteTxRequests"
	KeySupportedFeatureProfiles = "SupportedFeatureProfiles"
	KeyWebSocketPingInterval    = "WebSocketPingInterval"
	KeyConnectionTimeOut        = "ConnectionTimeOut"
)

// ConfigurationKey 单个OCPP配置键
type ConfigurationKey struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	Readonly bool   `json:"readonly"`
	Reboot   bool   `json:"reboot,omitempty"`
	Visible  bool   `json:"visible"`
}

// ConfigurationStore OCPP 1.6配置键集合。
// 键唯一，查找提供大小写不敏感回退；写入受读写锁保护。
type ConfigurationStore struct {
	mu      sync.RWMutex
	keys    map[string]*ConfigurationKey // 小写键索引
	ordered []string                     // 插入顺序的小写键
}

// NewConfigurationStore 创建空配置集合
func NewConfigurationStore() *ConfigurationStore {
	return &ConfigurationStore{keys: make(map[string]*ConfigurationKey)}
}

// Get 按键查找，大小写不敏感
func (s *ConfigurationStore) Get(key string) (*ConfigurationKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.keys[strings.ToLower(key)]
	if !ok {
		return nil, false
	}
	copied := *entry
	return &copied, true
}

// Add 添加配置键。
// 键已存在且overwrite为false时返回现有条目与ErrKeyExists，不更新任何元数据。
func (s *ConfigurationStore) Add(entry ConfigurationKey, overwrite bool) (*ConfigurationKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	folded := strings.ToLower(entry.Key)
	if existing, ok := s.keys[folded]; ok {
		if !overwrite {
			copied := *existing
			return &copied, ErrKeyExists
		}
		stored := entry
		s.keys[folded] = &stored
		copied := stored
		return &copied, nil
	}

	stored := entry
	s.keys[folded] = &stored
	s.ordered = append(s.ordered, folded)
	copied := stored
	return &copied, nil
}

// SetValue 修改配置键的值，只读键返回ErrKeyReadonly
func (s *ConfigurationStore) SetValue(key, value string) (*ConfigurationKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.keys[strings.ToLower(key)]
	if !ok {
		return nil, ErrKeyNotFound
	}
	if entry.Readonly {
		copied := *entry
		return &copied, ErrKeyReadonly
	}
	entry.Value = value
	copied := *entry
	return &copied, nil
}

// All 按插入顺序遍历全部配置键
func (s *ConfigurationStore) All() []ConfigurationKey {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ConfigurationKey, 0, len(s.ordered))
	for _, folded := range s.ordered {
		out = append(out, *s.keys[folded])
	}
	return out
}

// Visible 按插入顺序遍历可见配置键，GetConfiguration只返回这些
func (s *ConfigurationStore) Visible() []ConfigurationKey {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ConfigurationKey, 0, len(s.ordered))
	for _, folded := range s.ordered {
		if s.keys[folded].Visible {
			out = append(out, *s.keys[folded])
		}
	}
	return out
}

// Snapshot 导出配置键用于站点快照
func (s *ConfigurationStore) Snapshot() []ConfigurationKey {
	return s.All()
}

// Restore 从快照恢复配置键
func (s *ConfigurationStore) Restore(entries []ConfigurationKey) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.keys = make(map[string]*ConfigurationKey, len(entries))
	s.ordered = s.ordered[:0]
	for _, entry := range entries {
		stored := entry
		folded := strings.ToLower(entry.Key)
		if _, dup := s.keys[folded]; dup {
			continue
		}
		s.keys[folded] = &stored
		s.ordered = append(s.ordered, folded)
	}
}
