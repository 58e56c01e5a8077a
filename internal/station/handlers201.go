package station

import (
	"context"
	"time"

	"github.com/charging-platform/charge-point-simulator/internal/domain/ocpp16"
	"github.com/charging-platform/charge-point-simulator/internal/domain/ocpp2"
	"github.com/charging-platform/charge-point-simulator/internal/registry"
)

// handlers201 OCPP 2.0.1入站命令分发表
func (s *Station) handlers201() map[string]dispatchEntry {
	return map[string]dispatchEntry{
		"GetVariables": {
			newPayload: func() interface{} { return &ocpp2.GetVariablesRequest{} },
			handle: func(ctx context.Context, payload interface{}) (interface{}, *callFault) {
				return s.handleGetVariables(payload.(*ocpp2.GetVariablesRequest)), nil
			},
		},
		"SetVariables": {
			newPayload: func() interface{} { return &ocpp2.SetVariablesRequest{} },
			handle: func(ctx context.Context, payload interface{}) (interface{}, *callFault) {
				return s.handleSetVariables(payload.(*ocpp2.SetVariablesRequest)), nil
			},
		},
		"GetBaseReport": {
			newPayload: func() interface{} { return &ocpp2.GetBaseReportRequest{} },
			handle: func(ctx context.Context, payload interface{}) (interface{}, *callFault) {
				return s.handleGetBaseReport(payload.(*ocpp2.GetBaseReportRequest)), nil
			},
		},
		"Reset": {
			newPayload: func() interface{} { return &ocpp2.ResetRequest{} },
			handle: func(ctx context.Context, payload interface{}) (interface{}, *callFault) {
				return s.handleReset201(payload.(*ocpp2.ResetRequest)), nil
			},
		},
		"ClearCache": {
			newPayload: func() interface{} { return &ocpp2.ClearCacheRequest{} },
			handle: func(ctx context.Context, payload interface{}) (interface{}, *callFault) {
				return &ocpp2.ClearCacheResponse{Status: ocpp2.ClearCacheStatusAccepted}, nil
			},
		},
		"RequestStartTransaction": {
			newPayload:     func() interface{} { return &ocpp2.RequestStartTransactionRequest{} },
			pendingBlocked: true,
			handle: func(ctx context.Context, payload interface{}) (interface{}, *callFault) {
				return s.handleRequestStart(payload.(*ocpp2.RequestStartTransactionRequest)), nil
			},
		},
		"RequestStopTransaction": {
			newPayload:     func() interface{} { return &ocpp2.RequestStopTransactionRequest{} },
			pendingBlocked: true,
			handle: func(ctx context.Context, payload interface{}) (interface{}, *callFault) {
				return s.handleRequestStop(payload.(*ocpp2.RequestStopTransactionRequest)), nil
			},
		},
		"UnlockConnector": {
			newPayload: func() interface{} { return &ocpp2.UnlockConnectorRequest{} },
			handle: func(ctx context.Context, payload interface{}) (interface{}, *callFault) {
				return s.handleUnlockConnector201(payload.(*ocpp2.UnlockConnectorRequest)), nil
			},
		},
		"DataTransfer": {
			newPayload: func() interface{} { return &ocpp2.DataTransferRequest{} },
			handle: func(ctx context.Context, payload interface{}) (interface{}, *callFault) {
				if payload.(*ocpp2.DataTransferRequest).VendorId != s.template.ChargePointVendor {
					return &ocpp2.DataTransferResponse{Status: ocpp2.DataTransferStatusUnknownVendorId}, nil
				}
				return &ocpp2.DataTransferResponse{Status: ocpp2.DataTransferStatusAccepted}, nil
			},
		},
	}
}

// reportingValueSize 上报值长度上限
func (s *Station) reportingValueSize() int {
	if v, ok := s.resolveRegistryInt(registry.ComponentDeviceDataCtrlr, registry.VariableReportingValueSize, ""); ok && v > 0 {
		return v
	}
	return 2500
}

// handleGetVariables 变量查询
func (s *Station) handleGetVariables(req *ocpp2.GetVariablesRequest) *ocpp2.GetVariablesResponse {
	resp := &ocpp2.GetVariablesResponse{}
	limit := s.reportingValueSize()

	for _, item := range req.GetVariableData {
		result := ocpp2.GetVariableResult{
			Component:     item.Component,
			Variable:      item.Variable,
			AttributeType: item.AttributeType,
		}

		instance := ""
		if item.Variable.Instance != nil {
			instance = *item.Variable.Instance
		}
		metadata, found := s.registry.Lookup(item.Component.Name, item.Variable.Name, instance)
		switch {
		case !found && !s.registry.HasComponent(item.Component.Name):
			result.AttributeStatus = ocpp2.GetVariableStatusUnknownComponent
		case !found:
			result.AttributeStatus = ocpp2.GetVariableStatusUnknownVariable
		case metadata.IsWriteOnly():
			result.AttributeStatus = ocpp2.GetVariableStatusRejected
			result.AttributeStatusInfo = &ocpp2.StatusInfo{ReasonCode: string(registry.ReasonWriteOnly)}
		default:
			value := s.registry.ResolveValue(s.stationInfo(), s.overlay, metadata)
			value = metadata.ApplyPostProcess(value)
			value = registry.EnforceReportingValueSize(value, limit)
			result.AttributeStatus = ocpp2.GetVariableStatusAccepted
			result.AttributeValue = &value
		}
		resp.GetVariableResult = append(resp.GetVariableResult, result)
	}
	return resp
}

// handleSetVariables 变量设置
func (s *Station) handleSetVariables(req *ocpp2.SetVariablesRequest) *ocpp2.SetVariablesResponse {
	resp := &ocpp2.SetVariablesResponse{}

	for _, item := range req.SetVariableData {
		result := ocpp2.SetVariableResult{
			Component:     item.Component,
			Variable:      item.Variable,
			AttributeType: item.AttributeType,
		}

		instance := ""
		if item.Variable.Instance != nil {
			instance = *item.Variable.Instance
		}
		metadata, found := s.registry.Lookup(item.Component.Name, item.Variable.Name, instance)
		switch {
		case !found && !s.registry.HasComponent(item.Component.Name):
			result.AttributeStatus = ocpp2.SetVariableStatusUnknownComponent
		case !found:
			result.AttributeStatus = ocpp2.SetVariableStatusUnknownVariable
		case metadata.IsReadOnly():
			result.AttributeStatus = ocpp2.SetVariableStatusRejected
			result.AttributeStatusInfo = &ocpp2.StatusInfo{ReasonCode: string(registry.ReasonReadOnly)}
		default:
			if rejection := registry.ValidateValue(metadata, item.AttributeValue); rejection != nil {
				info := rejection.Info
				result.AttributeStatus = ocpp2.SetVariableStatusRejected
				result.AttributeStatusInfo = &ocpp2.StatusInfo{
					ReasonCode:     string(rejection.Reason),
					AdditionalInfo: &info,
				}
				break
			}
			s.overlay.Set(metadata, item.AttributeValue)
			s.applyVariableSideEffects(metadata, item.AttributeValue)
			if metadata.RebootRequired {
				result.AttributeStatus = ocpp2.SetVariableStatusRebootRequired
			} else {
				result.AttributeStatus = ocpp2.SetVariableStatusAccepted
			}
		}
		resp.SetVariableResult = append(resp.SetVariableResult, result)
	}
	return resp
}

// applyVariableSideEffects 把设置值同步到运行时参数
func (s *Station) applyVariableSideEffects(metadata *registry.Metadata, value string) {
	if metadata.Component == registry.ComponentOCPPCommCtrlr && metadata.Variable == registry.VariableHeartbeatInterval {
		if d, err := time.ParseDuration(value + "s"); err == nil {
			s.setHeartbeatInterval(d)
		}
	}
}

// handleGetBaseReport 基础报告：同步应答，异步分片上报
func (s *Station) handleGetBaseReport(req *ocpp2.GetBaseReportRequest) *ocpp2.GetBaseReportResponse {
	switch req.ReportBase {
	case ocpp2.ReportBaseConfigurationInventory, ocpp2.ReportBaseFullInventory, ocpp2.ReportBaseSummaryInventory:
	default:
		return &ocpp2.GetBaseReportResponse{Status: ocpp2.GenericDeviceModelStatusNotSupported}
	}

	report := s.buildBaseReport(req.ReportBase)
	if len(report) == 0 {
		return &ocpp2.GetBaseReportResponse{Status: ocpp2.GenericDeviceModelStatusEmptyResultSet}
	}

	requestID := req.RequestId
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sendNotifyReports(requestID, report)
	}()

	return &ocpp2.GetBaseReportResponse{Status: ocpp2.GenericDeviceModelStatusAccepted}
}

// sendNotifyReports 把报告按不超过100项分片发送，seqNo自0递增，最后一片tbc为false
func (s *Station) sendNotifyReports(requestID int, report []ocpp2.ReportData) {
	const chunkSize = 100

	if len(report) == 0 {
		// 接受后报告为空仍需发送一帧收尾
		payload := &ocpp2.NotifyReportRequest{
			RequestId:   requestID,
			GeneratedAt: ocpp2.NewDateTime(time.Now()),
			SeqNo:       0,
			Tbc:         false,
		}
		if _, err := s.call(s.ctx, "NotifyReport", payload); err != nil {
			s.logger.Warnf("NotifyReport failed: %v", err)
		}
		return
	}

	seqNo := 0
	for offset := 0; offset < len(report); offset += chunkSize {
		end := offset + chunkSize
		if end > len(report) {
			end = len(report)
		}
		payload := &ocpp2.NotifyReportRequest{
			RequestId:   requestID,
			GeneratedAt: ocpp2.NewDateTime(time.Now()),
			SeqNo:       seqNo,
			Tbc:         end < len(report),
			ReportData:  report[offset:end],
		}
		if _, err := s.call(s.ctx, "NotifyReport", payload); err != nil {
			s.logger.Warnf("NotifyReport chunk %d failed: %v", seqNo, err)
			return
		}
		seqNo++
	}
}

// buildBaseReport 按报告类型构建条目列表
func (s *Station) buildBaseReport(base ocpp2.ReportBase) []ocpp2.ReportData {
	info := s.stationInfo()

	entryFor := func(metadata *registry.Metadata) ocpp2.ReportData {
		component := ocpp2.ComponentType{Name: metadata.Component}
		if metadata.Instance != "" {
			instance := metadata.Instance
			component.Instance = &instance
		}
		mutability := string(metadata.Mutability)
		persistent := metadata.IsPersistent()
		attribute := ocpp2.VariableAttribute{
			Mutability: &mutability,
			Persistent: &persistent,
		}
		if !metadata.IsWriteOnly() {
			value := metadata.ApplyPostProcess(s.registry.ResolveValue(info, s.overlay, metadata))
			value = registry.EnforceReportingValueSize(value, s.reportingValueSize())
			attribute.Value = &value
		}
		return ocpp2.ReportData{
			Component:         component,
			Variable:          ocpp2.VariableType{Name: metadata.Variable},
			VariableAttribute: []ocpp2.VariableAttribute{attribute},
			VariableCharacteristics: &ocpp2.VariableCharacteristics{
				DataType: string(metadata.DataType),
			},
		}
	}

	availabilityEntry := func(component ocpp2.ComponentType, status string) ocpp2.ReportData {
		return ocpp2.ReportData{
			Component: component,
			Variable:  ocpp2.VariableType{Name: registry.VariableAvailabilityState},
			VariableAttribute: []ocpp2.VariableAttribute{{Value: &status}},
			VariableCharacteristics: &ocpp2.VariableCharacteristics{
				DataType: string(registry.DataTypeOptionList),
			},
		}
	}

	var report []ocpp2.ReportData

	identity := func() {
		for _, metadata := range s.registry.All() {
			if metadata.Component == registry.ComponentChargingStation {
				report = append(report, entryFor(metadata))
			}
		}
	}
	configuration := func() {
		for _, metadata := range s.registry.All() {
			if metadata.Component != registry.ComponentChargingStation {
				report = append(report, entryFor(metadata))
			}
		}
	}

	switch base {
	case ocpp2.ReportBaseConfigurationInventory:
		configuration()

	case ocpp2.ReportBaseFullInventory:
		identity()
		configuration()
		for _, connector := range s.model.All() {
			evseID := connector.EvseID
			if evseID == 0 {
				evseID = connector.ID
			}
			component := ocpp2.ComponentType{
				Name: "Connector",
				EVSE: &ocpp2.EVSEType{Id: evseID, ConnectorId: &connector.ID},
			}
			report = append(report, availabilityEntry(component, string(mapStatus201(connector.Status()))))
		}

	case ocpp2.ReportBaseSummaryInventory:
		identity()
		stationStatus := string(ocpp2.ConnectorStatusAvailable)
		if s.model.HasTransaction() {
			stationStatus = string(ocpp2.ConnectorStatusOccupied)
		}
		report = append(report, availabilityEntry(ocpp2.ComponentType{Name: registry.ComponentChargingStation}, stationStatus))
		for _, evse := range s.model.Evses() {
			status := string(ocpp2.ConnectorStatusAvailable)
			if evse.HasTransaction() {
				status = string(ocpp2.ConnectorStatusOccupied)
			}
			component := ocpp2.ComponentType{
				Name: "EVSE",
				EVSE: &ocpp2.EVSEType{Id: evse.ID},
			}
			report = append(report, availabilityEntry(component, status))
		}
	}

	return report
}

// handleReset201 2.0.1重置决策表
func (s *Station) handleReset201(req *ocpp2.ResetRequest) *ocpp2.ResetResponse {
	switch req.Type {
	case ocpp2.ResetTypeImmediate, ocpp2.ResetTypeOnIdle:
	default:
		return &ocpp2.ResetResponse{
			Status:     ocpp2.ResetStatusRejected,
			StatusInfo: &ocpp2.StatusInfo{ReasonCode: "UnsupportedRequest"},
		}
	}

	var evse *EVSE
	if req.EvseId != nil {
		if !s.model.HasEvses() {
			return &ocpp2.ResetResponse{
				Status:     ocpp2.ResetStatusRejected,
				StatusInfo: &ocpp2.StatusInfo{ReasonCode: "UnsupportedRequest"},
			}
		}
		found, ok := s.model.Evse(*req.EvseId)
		if !ok {
			return &ocpp2.ResetResponse{
				Status:     ocpp2.ResetStatusRejected,
				StatusInfo: &ocpp2.StatusInfo{ReasonCode: "UnknownEvse"},
			}
		}
		evse = found
	}

	if req.Type == ocpp2.ResetTypeImmediate {
		if evse != nil {
			s.resetEvse(evse)
		} else {
			s.Reset(ocpp16.ReasonRemote)
		}
		return &ocpp2.ResetResponse{Status: ocpp2.ResetStatusAccepted}
	}

	// OnIdle：无交易立即执行，有交易轮询至全部结束
	busy := s.model.HasTransaction()
	if evse != nil {
		busy = evse.HasTransaction()
	}
	if !busy {
		if evse != nil {
			s.resetEvse(evse)
		} else {
			s.Reset(ocpp16.ReasonRemote)
		}
		return &ocpp2.ResetResponse{Status: ocpp2.ResetStatusAccepted}
	}

	s.scheduleOnIdleReset(evse)
	return &ocpp2.ResetResponse{Status: ocpp2.ResetStatusScheduled}
}

// scheduleOnIdleReset 每5秒轮询交易状态，空闲后执行重置
func (s *Station) scheduleOnIdleReset(evse *EVSE) {
	s.resetMu.Lock()
	if s.resetScheduled {
		s.resetMu.Unlock()
		return
	}
	s.resetScheduled = true
	s.resetMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.resetMu.Lock()
			s.resetScheduled = false
			s.resetMu.Unlock()
		}()

		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				busy := s.model.HasTransaction()
				if evse != nil {
					busy = evse.HasTransaction()
				}
				if busy {
					continue
				}
				if evse != nil {
					s.resetEvse(evse)
				} else {
					s.performReset(ocpp16.ReasonRemote)
				}
				return
			}
		}
	}()
}

// resetEvse EVSE级重置：结束其交易并重报连接器状态，不断开连接
func (s *Station) resetEvse(evse *EVSE) {
	for _, connector := range evse.Connectors {
		if connector.HasTransaction() {
			ctx, cancel := context.WithTimeout(s.ctx, s.messageTimeout()*2)
			if _, err := s.StopTransaction(ctx, connector.ID, ocpp16.ReasonRemote); err != nil {
				s.logger.ForConnector(connector.ID).Errorf("EVSE reset stop failed: %v", err)
			}
			cancel()
		}
		if err := s.sendStatusNotification(connector, connector.Status()); err != nil {
			s.logger.ForConnector(connector.ID).Warnf("EVSE reset status report failed: %v", err)
		}
	}
}

// handleRequestStart 2.0.1远程启动交易
func (s *Station) handleRequestStart(req *ocpp2.RequestStartTransactionRequest) *ocpp2.RequestStartTransactionResponse {
	var connector *Connector
	if req.EvseId != nil {
		evse, ok := s.model.Evse(*req.EvseId)
		if ok {
			for _, c := range evse.Connectors {
				if c.IsAvailable() {
					connector = c
					break
				}
			}
		} else if c, direct := s.model.Get(*req.EvseId); direct && c.IsAvailable() {
			// 平铺站点把evseId按连接器ID解释
			connector = c
		}
	} else {
		for _, c := range s.model.All() {
			if c.IsAvailable() {
				connector = c
				break
			}
		}
	}
	if connector == nil {
		return &ocpp2.RequestStartTransactionResponse{Status: ocpp2.RequestStartStopStatusRejected}
	}

	connectorID := connector.ID
	idToken := req.IdToken.IdToken
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, s.messageTimeout()*2)
		defer cancel()
		if _, err := s.StartTransaction(ctx, connectorID, idToken); err != nil {
			s.logger.ForConnector(connectorID).Errorf("Remote start failed: %v", err)
		}
	}()

	return &ocpp2.RequestStartTransactionResponse{Status: ocpp2.RequestStartStopStatusAccepted}
}

// handleRequestStop 2.0.1远程停止交易
func (s *Station) handleRequestStop(req *ocpp2.RequestStopTransactionRequest) *ocpp2.RequestStopTransactionResponse {
	connector, ok := s.model.FindByTransactionRef(req.TransactionId)
	if !ok {
		return &ocpp2.RequestStopTransactionResponse{Status: ocpp2.RequestStartStopStatusRejected}
	}

	connectorID := connector.ID
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, s.messageTimeout()*2)
		defer cancel()
		if _, err := s.StopTransaction(ctx, connectorID, ocpp16.ReasonRemote); err != nil {
			s.logger.ForConnector(connectorID).Errorf("Remote stop failed: %v", err)
		}
	}()

	return &ocpp2.RequestStopTransactionResponse{Status: ocpp2.RequestStartStopStatusAccepted}
}

// handleUnlockConnector201 2.0.1解锁连接器
func (s *Station) handleUnlockConnector201(req *ocpp2.UnlockConnectorRequest) *ocpp2.UnlockConnectorResponse {
	var connector *Connector
	if evse, ok := s.model.Evse(req.EvseId); ok {
		for _, c := range evse.Connectors {
			if c.ID == req.ConnectorId {
				connector = c
				break
			}
		}
	} else if c, ok := s.model.Get(req.ConnectorId); ok {
		connector = c
	}
	if connector == nil {
		return &ocpp2.UnlockConnectorResponse{Status: ocpp2.UnlockStatusUnknownConnector}
	}

	if connector.HasTransaction() {
		return &ocpp2.UnlockConnectorResponse{Status: ocpp2.UnlockStatusOngoingTransaction}
	}
	return &ocpp2.UnlockConnectorResponse{Status: ocpp2.UnlockStatusUnlocked}
}
