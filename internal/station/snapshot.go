package station

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// snapshot 站点的持久化状态。
// 只覆盖持久字段：站点信息、OCPP配置、持久变量覆盖层、ATG统计与交易计数；
// 注册状态与连接状态属于易失字段，重启后重新推导。
type snapshot struct {
	StationID string    `json:"stationId"`
	HashID    string    `json:"hashId"`
	SavedAt   time.Time `json:"savedAt"`

	Vendor          string `json:"vendor"`
	Model           string `json:"model"`
	FirmwareVersion string `json:"firmwareVersion,omitempty"`
	SerialNumber    string `json:"serialNumber,omitempty"`

	Configuration   []ConfigurationKey `json:"configuration,omitempty"`
	VariableOverlay map[string]string  `json:"variableOverlay,omitempty"`
	ATGStatuses     map[int]*ATGStatus `json:"atgStatuses,omitempty"`
	TxCounter       int                `json:"txCounter"`
}

// persistSnapshot 序列化并保存站点快照
func (s *Station) persistSnapshot() error {
	s.txCounterMu.Lock()
	txCounter := s.txCounter
	s.txCounterMu.Unlock()

	snap := &snapshot{
		StationID:       s.id,
		HashID:          s.hashID,
		SavedAt:         time.Now().UTC(),
		Vendor:          s.template.ChargePointVendor,
		Model:           s.template.ChargePointModel,
		FirmwareVersion: s.template.FirmwareVersion,
		SerialNumber:    s.template.SerialNumber,
		Configuration:   s.config.Snapshot(),
		VariableOverlay: s.overlay.SnapshotPersistent(),
		ATGStatuses:     s.atg.SnapshotStatuses(),
		TxCounter:       txCounter,
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal station snapshot: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.store.PersistStation(ctx, s.id, data)
}

// restoreSnapshot 读取上次运行保存的快照，恢复OCPP配置、持久变量覆盖层、ATG统计与交易计数；
// 快照中的站点信息不回填，站点信息始终取自模板
func (s *Station) restoreSnapshot() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	data, found, err := s.store.LoadStation(ctx, s.id)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to parse station snapshot: %w", err)
	}

	if len(snap.Configuration) > 0 {
		s.config.Restore(snap.Configuration)
	}
	if len(snap.VariableOverlay) > 0 {
		s.overlay.RestorePersistent(snap.VariableOverlay)
	}
	if len(snap.ATGStatuses) > 0 {
		s.atg.RestoreStatuses(snap.ATGStatuses)
	}
	s.txCounterMu.Lock()
	if snap.TxCounter > s.txCounter {
		s.txCounter = snap.TxCounter
	}
	s.txCounterMu.Unlock()

	s.logger.Infof("Restored station snapshot from %s", snap.SavedAt.Format(time.RFC3339))
	return nil
}
