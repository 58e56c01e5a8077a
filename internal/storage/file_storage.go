package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileStorage 基于本地JSON文件的存储实现。
// 站点快照写入 <baseDir>/stations/<stationID>.json，
// 性能统计按行追加到 <baseDir>/performance-records.jsonl。
type FileStorage struct {
	baseDir string
	locks   *LockRegistry
}

// NewFileStorage 创建文件存储
func NewFileStorage(baseDir string, locks *LockRegistry) (*FileStorage, error) {
	if locks == nil {
		locks = NewLockRegistry()
	}
	if err := os.MkdirAll(filepath.Join(baseDir, "stations"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FileStorage{baseDir: baseDir, locks: locks}, nil
}

func (f *FileStorage) stationPath(stationID string) string {
	return filepath.Join(f.baseDir, "stations", stationID+".json")
}

// PersistStation 保存站点快照
func (f *FileStorage) PersistStation(ctx context.Context, stationID string, snapshot []byte) error {
	unlock := f.locks.Acquire(LockKindConfiguration)
	defer unlock()

	path := f.stationPath(stationID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, snapshot, 0644); err != nil {
		return fmt.Errorf("failed to write station snapshot %s: %w", stationID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace station snapshot %s: %w", stationID, err)
	}
	return nil
}

// LoadStation 读取站点快照
func (f *FileStorage) LoadStation(ctx context.Context, stationID string) ([]byte, bool, error) {
	unlock := f.locks.Acquire(LockKindConfiguration)
	defer unlock()

	data, err := os.ReadFile(f.stationPath(stationID))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read station snapshot %s: %w", stationID, err)
	}
	return data, true, nil
}

// StorePerformanceStatistics 追加一条性能统计记录
func (f *FileStorage) StorePerformanceStatistics(ctx context.Context, record []byte) error {
	unlock := f.locks.Acquire(LockKindPerformance)
	defer unlock()

	path := filepath.Join(f.baseDir, "performance-records.jsonl")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open performance record file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(record, '\n')); err != nil {
		return fmt.Errorf("failed to append performance record: %w", err)
	}
	return nil
}

// Close 文件存储无需释放资源
func (f *FileStorage) Close() error {
	return nil
}
