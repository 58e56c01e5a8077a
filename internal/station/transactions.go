package station

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/charging-platform/charge-point-simulator/internal/domain/events"
	"github.com/charging-platform/charge-point-simulator/internal/domain/ocpp16"
	"github.com/charging-platform/charge-point-simulator/internal/domain/ocpp2"
	"github.com/charging-platform/charge-point-simulator/internal/metrics"
	"github.com/charging-platform/charge-point-simulator/internal/registry"
)

// nextTransactionRef 站点内单调递增的交易序号。
// 2.0.1使用站点侧生成的字符串标识；1.6的数字交易ID由CSMS在StartTransaction响应中分配。
func (s *Station) nextTransactionRef() (int, string) {
	s.txCounterMu.Lock()
	defer s.txCounterMu.Unlock()
	s.txCounter++
	return s.txCounter, fmt.Sprintf("%s-%d", s.hashID, s.txCounter)
}

// mapStatus201 把内部连接器状态映射到2.0.1状态枚举
func mapStatus201(status string) ocpp2.ConnectorStatus {
	switch ocpp16.ChargePointStatus(status) {
	case ocpp16.ChargePointStatusAvailable:
		return ocpp2.ConnectorStatusAvailable
	case ocpp16.ChargePointStatusUnavailable:
		return ocpp2.ConnectorStatusUnavailable
	case ocpp16.ChargePointStatusFaulted:
		return ocpp2.ConnectorStatusFaulted
	case ocpp16.ChargePointStatusReserved:
		return ocpp2.ConnectorStatusReserved
	default:
		return ocpp2.ConnectorStatusOccupied
	}
}

// sendStatusNotification 上报连接器状态
func (s *Station) sendStatusNotification(connector *Connector, status string) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.messageTimeout()+time.Second)
	defer cancel()

	if s.version == Version201 {
		evseID := connector.EvseID
		if evseID == 0 {
			evseID = connector.ID
		}
		payload := &ocpp2.StatusNotificationRequest{
			Timestamp:       ocpp2.NewDateTime(time.Now()),
			ConnectorStatus: mapStatus201(status),
			EvseId:          evseID,
			ConnectorId:     connector.ID,
		}
		_, err := s.call(ctx, "StatusNotification", payload)
		return err
	}

	payload := &ocpp16.StatusNotificationRequest{
		ConnectorId: connector.ID,
		ErrorCode:   ocpp16.ChargePointErrorCodeNoError,
		Status:      ocpp16.ChargePointStatus(status),
	}
	now := ocpp16.NewDateTime(time.Now())
	payload.Timestamp = &now
	_, err := s.call(ctx, "StatusNotification", payload)
	return err
}

// setConnectorStatus 迁移连接器状态，变化时上报并发布事件
func (s *Station) setConnectorStatus(connector *Connector, status string) error {
	changed, previous, err := connector.SetStatus(status, s.strict)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	s.emit(s.eventFactory.NewConnectorStatusChangedEvent(s.id, s.hashID, connector.ID, previous, status))
	if err := s.sendStatusNotification(connector, status); err != nil {
		s.logger.ForConnector(connector.ID).Warnf("StatusNotification failed: %v", err)
	}
	return nil
}

// Authorize 发送授权请求
func (s *Station) Authorize(ctx context.Context, idTag string) (bool, error) {
	if s.version == Version201 {
		payload := &ocpp2.AuthorizeRequest{
			IdToken: ocpp2.IdToken{IdToken: idTag, Type: ocpp2.IdTokenTypeISO14443},
		}
		raw, err := s.call(ctx, "Authorize", payload)
		if err != nil {
			return false, err
		}
		var resp ocpp2.AuthorizeResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return false, fmt.Errorf("invalid Authorize response: %w", err)
		}
		return resp.IdTokenInfo.Status == ocpp2.AuthorizationStatusAccepted, nil
	}

	raw, err := s.call(ctx, "Authorize", &ocpp16.AuthorizeRequest{IdTag: idTag})
	if err != nil {
		return false, err
	}
	var resp ocpp16.AuthorizeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return false, fmt.Errorf("invalid Authorize response: %w", err)
	}
	return resp.IdTagInfo.Status == ocpp16.AuthorizationStatusAccepted, nil
}

// StartTransaction 在连接器上开启一笔交易。
// 返回CSMS是否接受；连接器上已有交易时返回错误。
func (s *Station) StartTransaction(ctx context.Context, connectorID int, idTag string) (bool, error) {
	connector, ok := s.model.Get(connectorID)
	if !ok {
		return false, fmt.Errorf("connector %d: %w", connectorID, ErrConnectorNotFound)
	}
	if connector.HasTransaction() {
		return false, fmt.Errorf("connector %d: %w", connectorID, ErrTransactionRunning)
	}
	if connector.Availability() != ocpp16.AvailabilityTypeOperative {
		return false, fmt.Errorf("connector %d is inoperative", connectorID)
	}

	// 进入占用态再发起交易，严格模式下不允许Available直接跳Charging
	intermediate := string(ocpp16.ChargePointStatusPreparing)
	if err := s.setConnectorStatus(connector, intermediate); err != nil {
		return false, err
	}

	accepted, err := s.startTransactionRequest(ctx, connector, idTag)
	if err != nil || !accepted {
		if rollbackErr := s.setConnectorStatus(connector, string(ocpp16.ChargePointStatusAvailable)); rollbackErr != nil {
			s.logger.ForConnector(connectorID).Warnf("Failed to roll back status: %v", rollbackErr)
		}
		return accepted, err
	}

	if err := s.setConnectorStatus(connector, string(ocpp16.ChargePointStatusCharging)); err != nil {
		s.logger.ForConnector(connectorID).Warnf("Failed to enter Charging: %v", err)
	}
	s.startMeterLoop(connector)

	transactionID, _, _ := connector.Transaction()
	metrics.TransactionsStarted.Inc()
	s.emit(s.eventFactory.NewTransactionEvent(events.EventTypeTransactionStarted,
		s.id, s.hashID, connector.ID, transactionID, idTag, connector.EnergyWh(), ""))
	return true, nil
}

// startTransactionRequest 按协议版本发送交易开始请求并登记交易
func (s *Station) startTransactionRequest(ctx context.Context, connector *Connector, idTag string) (bool, error) {
	if s.version == Version201 {
		counter, ref := s.nextTransactionRef()
		evseID := connector.EvseID
		if evseID == 0 {
			evseID = connector.ID
		}
		payload := &ocpp2.TransactionEventRequest{
			EventType:     ocpp2.TransactionEventStarted,
			Timestamp:     ocpp2.NewDateTime(time.Now()),
			TriggerReason: ocpp2.TriggerReasonAuthorized,
			SeqNo:         connector.NextTxSeqNo(),
			TransactionInfo: ocpp2.Transaction{
				TransactionId: ref,
				ChargingState: chargingStatePtr(ocpp2.ChargingStateCharging),
			},
			IdToken: &ocpp2.IdToken{IdToken: idTag, Type: ocpp2.IdTokenTypeISO14443},
			Evse:    &ocpp2.EVSEType{Id: evseID, ConnectorId: &connector.ID},
		}

		raw, err := s.request(ctx, "TransactionEvent", payload, true)
		if err != nil {
			return false, err
		}
		var resp ocpp2.TransactionEventResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return false, fmt.Errorf("invalid TransactionEvent response: %w", err)
		}
		if resp.IdTokenInfo != nil && resp.IdTokenInfo.Status != ocpp2.AuthorizationStatusAccepted {
			return false, nil
		}
		return true, connector.BeginTransaction(counter, ref, idTag)
	}

	payload := &ocpp16.StartTransactionRequest{
		ConnectorId: connector.ID,
		IdTag:       idTag,
		MeterStart:  int(connector.EnergyWh()),
		Timestamp:   ocpp16.NewDateTime(time.Now()),
	}
	raw, err := s.request(ctx, "StartTransaction", payload, true)
	if err != nil {
		return false, err
	}
	var resp ocpp16.StartTransactionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return false, fmt.Errorf("invalid StartTransaction response: %w", err)
	}
	if resp.IdTagInfo.Status != ocpp16.AuthorizationStatusAccepted {
		return false, nil
	}
	return true, connector.BeginTransaction(resp.TransactionId, "", idTag)
}

// StopTransaction 结束连接器上的交易
func (s *Station) StopTransaction(ctx context.Context, connectorID int, reason ocpp16.Reason) (bool, error) {
	connector, ok := s.model.Get(connectorID)
	if !ok {
		return false, fmt.Errorf("connector %d: %w", connectorID, ErrConnectorNotFound)
	}
	transactionID, transactionRef, running := connector.Transaction()
	if !running {
		return false, fmt.Errorf("connector %d: %w", connectorID, ErrNoTransaction)
	}

	s.stopMeterLoop(connectorID)
	if err := s.setConnectorStatus(connector, string(ocpp16.ChargePointStatusFinishing)); err != nil {
		s.logger.ForConnector(connectorID).Warnf("Failed to enter Finishing: %v", err)
	}

	var err error
	if s.version == Version201 {
		err = s.stopTransactionRequest201(ctx, connector, transactionRef, reason)
	} else {
		err = s.stopTransactionRequest16(ctx, connector, transactionID, reason)
	}

	_, _, meterWh, endErr := connector.EndTransaction()
	if endErr != nil {
		return false, endErr
	}
	if statusErr := s.setConnectorStatus(connector, string(ocpp16.ChargePointStatusAvailable)); statusErr != nil {
		s.logger.ForConnector(connectorID).Warnf("Failed to return to Available: %v", statusErr)
	}

	metrics.TransactionsStopped.Inc()
	s.emit(s.eventFactory.NewTransactionEvent(events.EventTypeTransactionStopped,
		s.id, s.hashID, connector.ID, transactionID, "", meterWh, string(reason)))

	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Station) stopTransactionRequest16(ctx context.Context, connector *Connector, transactionID int, reason ocpp16.Reason) error {
	payload := &ocpp16.StopTransactionRequest{
		MeterStop:     int(connector.EnergyWh()),
		Timestamp:     ocpp16.NewDateTime(time.Now()),
		TransactionId: transactionID,
		Reason:        &reason,
	}
	_, err := s.request(ctx, "StopTransaction", payload, true)
	return err
}

func (s *Station) stopTransactionRequest201(ctx context.Context, connector *Connector, transactionRef string, reason ocpp16.Reason) error {
	payload := &ocpp2.TransactionEventRequest{
		EventType:     ocpp2.TransactionEventEnded,
		Timestamp:     ocpp2.NewDateTime(time.Now()),
		TriggerReason: ocpp2.TriggerReasonEVDeparted,
		SeqNo:         connector.NextTxSeqNo(),
		TransactionInfo: ocpp2.Transaction{
			TransactionId: transactionRef,
			StoppedReason: stoppedReasonPtr(mapStopReason201(reason)),
		},
		MeterValue: []ocpp2.MeterValue{s.buildMeterValue201(connector)},
	}
	_, err := s.request(ctx, "TransactionEvent", payload, true)
	return err
}

// mapStopReason201 把1.6停止原因映射到2.0.1枚举
func mapStopReason201(reason ocpp16.Reason) ocpp2.StoppedReason {
	switch reason {
	case ocpp16.ReasonRemote:
		return ocpp2.StoppedReasonRemote
	case ocpp16.ReasonDeAuthorized:
		return ocpp2.StoppedReasonDeAuthorized
	case ocpp16.ReasonEVDisconnected:
		return ocpp2.StoppedReasonEVDisconnected
	case ocpp16.ReasonHardReset, ocpp16.ReasonSoftReset, ocpp16.ReasonReboot:
		return ocpp2.StoppedReasonImmediateReset
	case ocpp16.ReasonLocal:
		return ocpp2.StoppedReasonLocal
	default:
		return ocpp2.StoppedReasonOther
	}
}

func chargingStatePtr(v ocpp2.ChargingState) *ocpp2.ChargingState { return &v }
func stoppedReasonPtr(v ocpp2.StoppedReason) *ocpp2.StoppedReason { return &v }

// meterInterval 电表采样周期
func (s *Station) meterInterval() time.Duration {
	if s.version == Version201 {
		if v, ok := s.resolveRegistryInt(registry.ComponentSampledDataCtrlr, registry.VariableTxUpdatedInterval, ""); ok && v > 0 {
			return time.Duration(v) * time.Second
		}
		return 0
	}
	if entry, ok := s.config.Get(KeyMeterValueSampleInterval); ok {
		if v, err := strconv.Atoi(entry.Value); err == nil && v > 0 {
			return time.Duration(v) * time.Second
		}
	}
	return 0
}

// sampledMeasurands 当前配置的采样测量值列表
func (s *Station) sampledMeasurands() []string {
	var csv string
	if s.version == Version201 {
		if metadata, ok := s.registry.Lookup(registry.ComponentSampledDataCtrlr, registry.VariableTxUpdatedMeasurands, ""); ok {
			csv = s.registry.ResolveValue(s.stationInfo(), s.overlay, metadata)
		}
	} else if entry, ok := s.config.Get(KeyMeterValuesSampledData); ok {
		csv = entry.Value
	}
	if csv == "" {
		csv = "Energy.Active.Import.Register"
	}
	var out []string
	for _, m := range ocpp16.ParseMeasurands(csv) {
		out = append(out, string(m))
	}
	return out
}

// startMeterLoop 启动连接器的电表采样循环
func (s *Station) startMeterLoop(connector *Connector) {
	interval := s.meterInterval()
	if interval <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	s.meterMu.Lock()
	if existing, ok := s.meterCancels[connector.ID]; ok {
		existing()
	}
	s.meterCancels[connector.ID] = cancel
	s.meterMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !connector.HasTransaction() {
					return
				}
				connector.AccumulateEnergy(interval)
				if err := s.sendMeterSample(ctx, connector); err != nil {
					s.logger.ForConnector(connector.ID).Warnf("Meter sample failed: %v", err)
				}
			}
		}
	}()
}

// stopMeterLoop 停止连接器的电表采样循环
func (s *Station) stopMeterLoop(connectorID int) {
	s.meterMu.Lock()
	cancel, ok := s.meterCancels[connectorID]
	if ok {
		delete(s.meterCancels, connectorID)
	}
	s.meterMu.Unlock()
	if ok {
		cancel()
	}
}

// sendMeterSample 发送一次采样：1.6为MeterValues，2.0.1为TransactionEvent(Updated)
func (s *Station) sendMeterSample(ctx context.Context, connector *Connector) error {
	if s.version == Version201 {
		_, transactionRef, running := connector.Transaction()
		if !running {
			return nil
		}
		payload := &ocpp2.TransactionEventRequest{
			EventType:     ocpp2.TransactionEventUpdated,
			Timestamp:     ocpp2.NewDateTime(time.Now()),
			TriggerReason: ocpp2.TriggerReasonMeterValuePeriodic,
			SeqNo:         connector.NextTxSeqNo(),
			TransactionInfo: ocpp2.Transaction{
				TransactionId: transactionRef,
				ChargingState: chargingStatePtr(ocpp2.ChargingStateCharging),
			},
			MeterValue: []ocpp2.MeterValue{s.buildMeterValue201(connector)},
		}
		_, err := s.request(ctx, "TransactionEvent", payload, true)
		return err
	}

	transactionID, _, running := connector.Transaction()
	if !running {
		return nil
	}
	payload := &ocpp16.MeterValuesRequest{
		ConnectorId:   connector.ID,
		TransactionId: &transactionID,
		MeterValue:    []ocpp16.MeterValue{s.buildMeterValue16(connector)},
	}
	_, err := s.request(ctx, "MeterValues", payload, true)
	return err
}

// buildMeterValue16 按配置的测量值构建1.6采样
func (s *Station) buildMeterValue16(connector *Connector) ocpp16.MeterValue {
	context16 := ocpp16.ReadingContextSamplePeriodic
	mv := ocpp16.MeterValue{Timestamp: ocpp16.NewDateTime(time.Now())}
	for _, measurand := range s.sampledMeasurands() {
		value, unit, ok := s.sampleValue(connector, measurand)
		if !ok {
			continue
		}
		m := ocpp16.Measurand(measurand)
		u := ocpp16.UnitOfMeasure(unit)
		mv.SampledValue = append(mv.SampledValue, ocpp16.SampledValue{
			Value:     value,
			Context:   &context16,
			Measurand: &m,
			Unit:      &u,
		})
	}
	return mv
}

// buildMeterValue201 按配置的测量值构建2.0.1采样
func (s *Station) buildMeterValue201(connector *Connector) ocpp2.MeterValue {
	mv := ocpp2.MeterValue{Timestamp: ocpp2.NewDateTime(time.Now())}
	for _, measurand := range s.sampledMeasurands() {
		value, unit, ok := s.sampleValue(connector, measurand)
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			continue
		}
		m := ocpp2.MeasurandType(measurand)
		mv.SampledValue = append(mv.SampledValue, ocpp2.SampledValue{
			Value:         f,
			Measurand:     &m,
			UnitOfMeasure: &ocpp2.UnitOfMeasure{Unit: &unit},
		})
	}
	return mv
}

// sampleValue 取一个测量值的当前读数
func (s *Station) sampleValue(connector *Connector, measurand string) (value, unit string, ok bool) {
	const nominalVoltage = 230.0
	powerW := connector.PowerKW() * 1000

	switch measurand {
	case "Energy.Active.Import.Register":
		return strconv.FormatInt(connector.EnergyWh(), 10), "Wh", true
	case "Power.Active.Import":
		return strconv.FormatFloat(powerW, 'f', 0, 64), "W", true
	case "Current.Import":
		return strconv.FormatFloat(powerW/nominalVoltage, 'f', 1, 64), "A", true
	case "Voltage":
		return strconv.FormatFloat(nominalVoltage, 'f', 0, 64), "V", true
	case "SoC":
		soc := connector.EnergyWh() / 1000 % 100
		return strconv.FormatInt(soc, 10), "Percent", true
	default:
		return "", "", false
	}
}
