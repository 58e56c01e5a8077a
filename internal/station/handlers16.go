package station

import (
	"context"
	"time"

	"github.com/charging-platform/charge-point-simulator/internal/domain/ocpp16"
)

// handlers16 OCPP 1.6入站命令分发表
func (s *Station) handlers16() map[string]dispatchEntry {
	return map[string]dispatchEntry{
		"Reset": {
			newPayload: func() interface{} { return &ocpp16.ResetRequest{} },
			handle: func(ctx context.Context, payload interface{}) (interface{}, *callFault) {
				return s.handleReset16(payload.(*ocpp16.ResetRequest)), nil
			},
		},
		"ChangeAvailability": {
			newPayload: func() interface{} { return &ocpp16.ChangeAvailabilityRequest{} },
			handle: func(ctx context.Context, payload interface{}) (interface{}, *callFault) {
				return s.handleChangeAvailability(payload.(*ocpp16.ChangeAvailabilityRequest)), nil
			},
		},
		"ChangeConfiguration": {
			newPayload: func() interface{} { return &ocpp16.ChangeConfigurationRequest{} },
			handle: func(ctx context.Context, payload interface{}) (interface{}, *callFault) {
				return s.handleChangeConfiguration(payload.(*ocpp16.ChangeConfigurationRequest)), nil
			},
		},
		"GetConfiguration": {
			newPayload: func() interface{} { return &ocpp16.GetConfigurationRequest{} },
			handle: func(ctx context.Context, payload interface{}) (interface{}, *callFault) {
				return s.handleGetConfiguration(payload.(*ocpp16.GetConfigurationRequest)), nil
			},
		},
		"ClearCache": {
			newPayload: func() interface{} { return &ocpp16.ClearCacheRequest{} },
			handle: func(ctx context.Context, payload interface{}) (interface{}, *callFault) {
				return &ocpp16.ClearCacheResponse{Status: ocpp16.ClearCacheStatusAccepted}, nil
			},
		},
		"RemoteStartTransaction": {
			newPayload:     func() interface{} { return &ocpp16.RemoteStartTransactionRequest{} },
			pendingBlocked: true,
			handle: func(ctx context.Context, payload interface{}) (interface{}, *callFault) {
				return s.handleRemoteStart(payload.(*ocpp16.RemoteStartTransactionRequest)), nil
			},
		},
		"RemoteStopTransaction": {
			newPayload:     func() interface{} { return &ocpp16.RemoteStopTransactionRequest{} },
			pendingBlocked: true,
			handle: func(ctx context.Context, payload interface{}) (interface{}, *callFault) {
				return s.handleRemoteStop(payload.(*ocpp16.RemoteStopTransactionRequest)), nil
			},
		},
		"UnlockConnector": {
			newPayload: func() interface{} { return &ocpp16.UnlockConnectorRequest{} },
			handle: func(ctx context.Context, payload interface{}) (interface{}, *callFault) {
				return s.handleUnlockConnector(payload.(*ocpp16.UnlockConnectorRequest)), nil
			},
		},
		"TriggerMessage": {
			newPayload: func() interface{} { return &ocpp16.TriggerMessageRequest{} },
			handle: func(ctx context.Context, payload interface{}) (interface{}, *callFault) {
				return s.handleTriggerMessage(payload.(*ocpp16.TriggerMessageRequest)), nil
			},
		},
		"DataTransfer": {
			newPayload: func() interface{} { return &ocpp16.DataTransferRequest{} },
			handle: func(ctx context.Context, payload interface{}) (interface{}, *callFault) {
				return s.handleDataTransfer16(payload.(*ocpp16.DataTransferRequest)), nil
			},
		},
		"SetChargingProfile": {
			newPayload: func() interface{} { return &ocpp16.SetChargingProfileRequest{} },
			handle: func(ctx context.Context, payload interface{}) (interface{}, *callFault) {
				return s.handleSetChargingProfile(payload.(*ocpp16.SetChargingProfileRequest)), nil
			},
		},
		"ClearChargingProfile": {
			newPayload: func() interface{} { return &ocpp16.ClearChargingProfileRequest{} },
			handle: func(ctx context.Context, payload interface{}) (interface{}, *callFault) {
				return s.handleClearChargingProfile(payload.(*ocpp16.ClearChargingProfileRequest)), nil
			},
		},
	}
}

// handleReset16 1.6重置：接受后异步执行
func (s *Station) handleReset16(req *ocpp16.ResetRequest) *ocpp16.ResetResponse {
	reason := ocpp16.ReasonSoftReset
	if req.Type == ocpp16.ResetTypeHard {
		reason = ocpp16.ReasonHardReset
	}
	s.Reset(reason)
	return &ocpp16.ResetResponse{Status: ocpp16.ResetStatusAccepted}
}

// handleChangeAvailability 可用性变更；有交易时延后到交易结束，返回Scheduled
func (s *Station) handleChangeAvailability(req *ocpp16.ChangeAvailabilityRequest) *ocpp16.ChangeAvailabilityResponse {
	apply := func(connector *Connector) {
		connector.SetAvailability(req.Type)
		status := string(ocpp16.ChargePointStatusAvailable)
		if req.Type == ocpp16.AvailabilityTypeInoperative {
			status = string(ocpp16.ChargePointStatusUnavailable)
		}
		if err := s.setConnectorStatus(connector, status); err != nil {
			s.logger.ForConnector(connector.ID).Warnf("Availability status change failed: %v", err)
		}
	}

	targets := s.model.All()
	if req.ConnectorId > 0 {
		connector, ok := s.model.Get(req.ConnectorId)
		if !ok {
			return &ocpp16.ChangeAvailabilityResponse{Status: ocpp16.AvailabilityStatusRejected}
		}
		targets = []*Connector{connector}
	}

	scheduled := false
	for _, connector := range targets {
		if connector.HasTransaction() {
			scheduled = true
			go s.applyAvailabilityWhenIdle(connector, apply)
			continue
		}
		apply(connector)
	}

	if scheduled {
		return &ocpp16.ChangeAvailabilityResponse{Status: ocpp16.AvailabilityStatusScheduled}
	}
	return &ocpp16.ChangeAvailabilityResponse{Status: ocpp16.AvailabilityStatusAccepted}
}

// applyAvailabilityWhenIdle 轮询等待交易结束后应用可用性变更
func (s *Station) applyAvailabilityWhenIdle(connector *Connector, apply func(*Connector)) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if !connector.HasTransaction() {
				apply(connector)
				return
			}
		}
	}
}

// handleChangeConfiguration 配置键变更
func (s *Station) handleChangeConfiguration(req *ocpp16.ChangeConfigurationRequest) *ocpp16.ChangeConfigurationResponse {
	entry, err := s.config.SetValue(req.Key, req.Value)
	switch err {
	case nil:
	case ErrKeyNotFound:
		return &ocpp16.ChangeConfigurationResponse{Status: ocpp16.ConfigurationStatusNotSupported}
	case ErrKeyReadonly:
		return &ocpp16.ChangeConfigurationResponse{Status: ocpp16.ConfigurationStatusRejected}
	default:
		return &ocpp16.ChangeConfigurationResponse{Status: ocpp16.ConfigurationStatusRejected}
	}

	if entry.Key == KeyHeartbeatInterval {
		if d, parseErr := time.ParseDuration(req.Value + "s"); parseErr == nil {
			s.setHeartbeatInterval(d)
		}
	}
	if entry.Reboot {
		return &ocpp16.ChangeConfigurationResponse{Status: ocpp16.ConfigurationStatusRebootRequired}
	}
	return &ocpp16.ChangeConfigurationResponse{Status: ocpp16.ConfigurationStatusAccepted}
}

// handleGetConfiguration 配置键查询，空key列表返回全部可见键
func (s *Station) handleGetConfiguration(req *ocpp16.GetConfigurationRequest) *ocpp16.GetConfigurationResponse {
	resp := &ocpp16.GetConfigurationResponse{}

	toKeyValue := func(entry ConfigurationKey) ocpp16.KeyValue {
		value := entry.Value
		return ocpp16.KeyValue{Key: entry.Key, Readonly: entry.Readonly, Value: &value}
	}

	if len(req.Key) == 0 {
		for _, entry := range s.config.Visible() {
			resp.ConfigurationKey = append(resp.ConfigurationKey, toKeyValue(entry))
		}
		return resp
	}

	for _, key := range req.Key {
		entry, ok := s.config.Get(key)
		if !ok || !entry.Visible {
			resp.UnknownKey = append(resp.UnknownKey, key)
			continue
		}
		resp.ConfigurationKey = append(resp.ConfigurationKey, toKeyValue(*entry))
	}
	return resp
}

// handleRemoteStart 远程启动交易，接受后异步执行启动流程
func (s *Station) handleRemoteStart(req *ocpp16.RemoteStartTransactionRequest) *ocpp16.RemoteStartTransactionResponse {
	var connector *Connector
	if req.ConnectorId != nil {
		c, ok := s.model.Get(*req.ConnectorId)
		if !ok || !c.IsAvailable() {
			return &ocpp16.RemoteStartTransactionResponse{Status: ocpp16.RemoteStartStopStatusRejected}
		}
		connector = c
	} else {
		for _, c := range s.model.All() {
			if c.IsAvailable() {
				connector = c
				break
			}
		}
		if connector == nil {
			return &ocpp16.RemoteStartTransactionResponse{Status: ocpp16.RemoteStartStopStatusRejected}
		}
	}

	connectorID := connector.ID
	idTag := req.IdTag
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, s.messageTimeout()*2)
		defer cancel()

		if s.remoteAuthorizeRequired() {
			accepted, err := s.Authorize(ctx, idTag)
			if err != nil || !accepted {
				s.logger.ForConnector(connectorID).Warnf("Remote start authorization not accepted: %v", err)
				return
			}
		}
		if _, err := s.StartTransaction(ctx, connectorID, idTag); err != nil {
			s.logger.ForConnector(connectorID).Errorf("Remote start failed: %v", err)
		}
	}()

	return &ocpp16.RemoteStartTransactionResponse{Status: ocpp16.RemoteStartStopStatusAccepted}
}

// remoteAuthorizeRequired 远程启动是否先行授权
func (s *Station) remoteAuthorizeRequired() bool {
	if s.template.RemoteAuthorization != nil {
		return *s.template.RemoteAuthorization
	}
	if entry, ok := s.config.Get(KeyAuthorizeRemoteTxRequests); ok {
		return entry.Value == "true"
	}
	return false
}

// handleRemoteStop 远程停止交易
func (s *Station) handleRemoteStop(req *ocpp16.RemoteStopTransactionRequest) *ocpp16.RemoteStopTransactionResponse {
	connector, ok := s.model.FindByTransactionID(req.TransactionId)
	if !ok {
		return &ocpp16.RemoteStopTransactionResponse{Status: ocpp16.RemoteStartStopStatusRejected}
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

	return &ocpp16.RemoteStopTransactionResponse{Status: ocpp16.RemoteStartStopStatusAccepted}
}

// handleUnlockConnector 解锁连接器：有交易时先停止，再回到Available
func (s *Station) handleUnlockConnector(req *ocpp16.UnlockConnectorRequest) *ocpp16.UnlockConnectorResponse {
	connector, ok := s.model.Get(req.ConnectorId)
	if !ok {
		return &ocpp16.UnlockConnectorResponse{Status: ocpp16.UnlockStatusNotSupported}
	}

	if connector.HasTransaction() {
		ctx, cancel := context.WithTimeout(s.ctx, s.messageTimeout()*2)
		defer cancel()
		if _, err := s.StopTransaction(ctx, connector.ID, ocpp16.ReasonUnlockCommand); err != nil {
			s.logger.ForConnector(connector.ID).Errorf("Unlock stop failed: %v", err)
			return &ocpp16.UnlockConnectorResponse{Status: ocpp16.UnlockStatusUnlockFailed}
		}
	}
	return &ocpp16.UnlockConnectorResponse{Status: ocpp16.UnlockStatusUnlocked}
}

// handleTriggerMessage 按请求触发一次对应消息
func (s *Station) handleTriggerMessage(req *ocpp16.TriggerMessageRequest) *ocpp16.TriggerMessageResponse {
	trigger := func(run func(ctx context.Context)) *ocpp16.TriggerMessageResponse {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			ctx, cancel := context.WithTimeout(s.ctx, s.messageTimeout()+time.Second)
			defer cancel()
			run(ctx)
		}()
		return &ocpp16.TriggerMessageResponse{Status: ocpp16.TriggerMessageStatusAccepted}
	}

	switch req.RequestedMessage {
	case ocpp16.MessageTriggerHeartbeat:
		return trigger(func(ctx context.Context) {
			if err := s.sendHeartbeat(ctx); err != nil {
				s.logger.Warnf("Triggered heartbeat failed: %v", err)
			}
		})
	case ocpp16.MessageTriggerBootNotification:
		return trigger(func(ctx context.Context) {
			if _, _, err := s.sendBootNotification(); err != nil {
				s.logger.Warnf("Triggered BootNotification failed: %v", err)
			}
		})
	case ocpp16.MessageTriggerStatusNotification:
		targets := s.model.All()
		if req.ConnectorId != nil {
			connector, ok := s.model.Get(*req.ConnectorId)
			if !ok {
				return &ocpp16.TriggerMessageResponse{Status: ocpp16.TriggerMessageStatusRejected}
			}
			targets = []*Connector{connector}
		}
		return trigger(func(ctx context.Context) {
			for _, connector := range targets {
				if err := s.sendStatusNotification(connector, connector.Status()); err != nil {
					s.logger.ForConnector(connector.ID).Warnf("Triggered StatusNotification failed: %v", err)
				}
			}
		})
	case ocpp16.MessageTriggerMeterValues:
		connector := s.pickTriggerConnector(req.ConnectorId)
		if connector == nil {
			return &ocpp16.TriggerMessageResponse{Status: ocpp16.TriggerMessageStatusRejected}
		}
		return trigger(func(ctx context.Context) {
			if err := s.sendMeterSample(ctx, connector); err != nil {
				s.logger.ForConnector(connector.ID).Warnf("Triggered MeterValues failed: %v", err)
			}
		})
	default:
		return &ocpp16.TriggerMessageResponse{Status: ocpp16.TriggerMessageStatusNotImplemented}
	}
}

func (s *Station) pickTriggerConnector(connectorID *int) *Connector {
	if connectorID != nil {
		connector, ok := s.model.Get(*connectorID)
		if !ok {
			return nil
		}
		return connector
	}
	for _, connector := range s.model.All() {
		if connector.HasTransaction() {
			return connector
		}
	}
	return nil
}

// handleDataTransfer16 数据传输：只认可本站点厂商
func (s *Station) handleDataTransfer16(req *ocpp16.DataTransferRequest) *ocpp16.DataTransferResponse {
	if req.VendorId != s.template.ChargePointVendor {
		return &ocpp16.DataTransferResponse{Status: ocpp16.DataTransferStatusUnknownVendorId}
	}
	return &ocpp16.DataTransferResponse{Status: ocpp16.DataTransferStatusAccepted}
}

// handleSetChargingProfile 登记充电配置，不做功率调度
func (s *Station) handleSetChargingProfile(req *ocpp16.SetChargingProfileRequest) *ocpp16.SetChargingProfileResponse {
	if req.ConnectorId == 0 {
		for _, connector := range s.model.All() {
			connector.AddProfile(req.CsChargingProfiles)
		}
		return &ocpp16.SetChargingProfileResponse{Status: ocpp16.ChargingProfileStatusAccepted}
	}

	connector, ok := s.model.Get(req.ConnectorId)
	if !ok {
		return &ocpp16.SetChargingProfileResponse{Status: ocpp16.ChargingProfileStatusRejected}
	}
	connector.AddProfile(req.CsChargingProfiles)
	return &ocpp16.SetChargingProfileResponse{Status: ocpp16.ChargingProfileStatusAccepted}
}

// handleClearChargingProfile 清除充电配置
func (s *Station) handleClearChargingProfile(req *ocpp16.ClearChargingProfileRequest) *ocpp16.ClearChargingProfileResponse {
	targets := s.model.All()
	if req.ConnectorId != nil {
		connector, ok := s.model.Get(*req.ConnectorId)
		if !ok {
			return &ocpp16.ClearChargingProfileResponse{Status: ocpp16.ClearChargingProfileStatusUnknown}
		}
		targets = []*Connector{connector}
	}

	removed := 0
	for _, connector := range targets {
		removed += connector.ClearProfiles(req.Id)
	}
	if removed == 0 {
		return &ocpp16.ClearChargingProfileResponse{Status: ocpp16.ClearChargingProfileStatusUnknown}
	}
	return &ocpp16.ClearChargingProfileResponse{Status: ocpp16.ClearChargingProfileStatusAccepted}
}
