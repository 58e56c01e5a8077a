package station

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/charging-platform/charge-point-simulator/internal/domain/events"
	"github.com/charging-platform/charge-point-simulator/internal/domain/ocpp16"
	"github.com/charging-platform/charge-point-simulator/internal/domain/ocpp2"
	"github.com/charging-platform/charge-point-simulator/internal/domain/serialization"
	"github.com/charging-platform/charge-point-simulator/internal/domain/validation"
	"github.com/charging-platform/charge-point-simulator/internal/logger"
	"github.com/charging-platform/charge-point-simulator/internal/metrics"
	"github.com/charging-platform/charge-point-simulator/internal/perf"
	"github.com/charging-platform/charge-point-simulator/internal/registry"
	"github.com/charging-platform/charge-point-simulator/internal/storage"
	"github.com/charging-platform/charge-point-simulator/internal/transport/wsclient"
)

const bootNotificationAction = "BootNotification"

// RegistrationState 站点注册状态
type RegistrationState string

const (
	StateDisconnected RegistrationState = "Disconnected"
	StateConnecting   RegistrationState = "Connecting"
	StateBooting      RegistrationState = "Booting"
	StateAccepted     RegistrationState = "Accepted"
	StatePending      RegistrationState = "Pending"
	StateRejected     RegistrationState = "Rejected"
	StateReconnecting RegistrationState = "Reconnecting"
	StateUnknown      RegistrationState = "Unknown"
)

// Options 站点构造参数
type Options struct {
	ID       string
	Template *Template
	Registry *registry.Registry
	Store    storage.Storage         // 可为空，空时不持久化
	IdTags   []string                // 授权标签文件内容
	EventSink func(events.Event)     // 向上游发布事件，可为空
	Perf     *perf.Collector         // 可为空
	Logger   *logger.Logger

	// 背压水位：出站队列达到高水位时暂停ATG，降到低水位以下恢复
	QueueHighWater int
	QueueLowWater  int
}

// Station 单个模拟站点的运行时。
// 独占一条WebSocket连接、一个写协程、一个读协程、一个心跳定时器与一个ATG。
type Station struct {
	id      string
	hashID  string
	version Version
	template *Template
	strict   bool

	// 协议组件
	codec     *serialization.Serializer
	validator *validation.Validator
	registry  *registry.Registry
	overlay   *registry.Overlay
	config    *ConfigurationStore
	model     *ConnectorModel
	atg       *Generator

	// 事件与统计
	eventFactory *events.Factory
	eventSink    func(events.Event)
	perf         *perf.Collector
	store        storage.Storage
	idTags       []string

	// 连接状态
	connMu   sync.Mutex
	client   *wsclient.Client
	outbound [][]byte

	stateMu sync.RWMutex
	state   RegistrationState

	// 待响应请求
	pendingMu sync.RWMutex
	pending   map[string]*pendingEntry

	// 心跳
	heartbeatMu       sync.Mutex
	heartbeatInterval time.Duration
	heartbeatCancel   context.CancelFunc
	lastSend          time.Time

	// 交易计数与采样
	txCounterMu  sync.Mutex
	txCounter    int
	meterMu      sync.Mutex
	meterCancels map[int]context.CancelFunc

	// 背压
	queueHighWater int
	queueLowWater  int

	// 生命周期
	startMutex sync.Mutex
	started    bool
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	// OnIdle重置轮询去重
	resetMu        sync.Mutex
	resetScheduled bool

	logger *logger.Logger
}

// New 按模板构造站点运行时
func New(opts Options) (*Station, error) {
	if opts.Template == nil {
		return nil, fmt.Errorf("station %s: template is required", opts.ID)
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("station %s: variable registry is required", opts.ID)
	}
	if opts.ID == "" {
		return nil, fmt.Errorf("station id is required")
	}
	log := opts.Logger
	if log == nil {
		log = logger.Default()
	}

	model, err := newConnectorModel(opts.Template)
	if err != nil {
		return nil, fmt.Errorf("station %s: %w", opts.ID, err)
	}

	hashID := opts.Template.HashID(opts.ID)
	highWater := opts.QueueHighWater
	if highWater <= 0 {
		highWater = 80
	}
	lowWater := opts.QueueLowWater
	if lowWater <= 0 || lowWater >= highWater {
		lowWater = highWater / 2
	}

	s := &Station{
		id:           opts.ID,
		hashID:       hashID,
		version:      opts.Template.OcppVersion,
		template:     opts.Template,
		strict:       opts.Template.IsStrict(),
		codec:        serialization.NewSerializer(),
		validator:    validation.NewValidator(),
		registry:     opts.Registry,
		overlay:      registry.NewOverlay(),
		config:       NewConfigurationStore(),
		model:        model,
		eventFactory: events.NewFactory(),
		eventSink:    opts.EventSink,
		perf:         opts.Perf,
		store:        opts.Store,
		idTags:       opts.IdTags,
		state:        StateDisconnected,
		pending:      make(map[string]*pendingEntry),
		meterCancels: make(map[int]context.CancelFunc),
		queueHighWater: highWater,
		queueLowWater:  lowWater,
		logger:       log.ForStation(hashID),
	}
	s.seedConfiguration()
	s.atg = newGenerator(s, opts.Template.AutomaticTransactionGenerator)

	return s, nil
}

// seedConfiguration 从模板预置OCPP 1.6配置键，再补齐标准键的默认值
func (s *Station) seedConfiguration() {
	for _, entry := range s.template.Configuration {
		visible := boolOr(entry.Visible, true)
		s.config.Add(ConfigurationKey{
			Key:      entry.Key,
			Value:    entry.Value,
			Readonly: entry.Readonly,
			Reboot:   entry.Reboot,
			Visible:  visible,
		}, true)
	}

	defaults := []ConfigurationKey{
		{Key: KeyHeartbeatInterval, Value: "300", Visible: true},
		{Key: KeyMeterValueSampleInterval, Value: "60", Visible: true},
		{Key: KeyMeterValuesSampledData, Value: "Energy.Active.Import.Register", Visible: true},
		{Key: KeyNumberOfConnectors, Value: fmt.Sprintf("%d", s.model.Len()), Readonly: true, Visible: true},
		{Key: KeySupportedFeatureProfiles, Value: "Core,RemoteTrigger,SmartCharging", Readonly: true, Visible: true},
		{Key: KeyConnectionTimeOut, Value: "120", Visible: true},
	}
	for _, entry := range defaults {
		// 模板里已有的键保持不变
		s.config.Add(entry, false)
	}
}

// ID 站点标识
func (s *Station) ID() string { return s.id }

// HashID 站点短哈希标识
func (s *Station) HashID() string { return s.hashID }

// Version 协议版本
func (s *Station) Version() Version { return s.version }

// State 当前注册状态
func (s *Station) State() RegistrationState { return s.getState() }

// Connectors 连接器模型
func (s *Station) Connectors() *ConnectorModel { return s.model }

// ATG 自动交易发生器
func (s *Station) ATG() *Generator { return s.atg }

func (s *Station) getState() RegistrationState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

func (s *Station) setState(state RegistrationState) {
	s.stateMu.Lock()
	previous := s.state
	s.state = state
	s.stateMu.Unlock()

	if previous == state {
		return
	}
	if state == StateAccepted {
		metrics.AcceptedStations.Inc()
	} else if previous == StateAccepted {
		metrics.AcceptedStations.Dec()
	}
	s.logger.Debugf("Registration state %s -> %s", previous, state)
}

// emit 向上游发布事件
func (s *Station) emit(event events.Event) {
	if s.eventSink != nil {
		s.eventSink(event)
	}
}

func (s *Station) emitLifecycle(eventType events.EventType, detail string) {
	s.emit(s.eventFactory.NewLifecycleEvent(eventType, s.id, s.hashID, string(s.getState()), detail))
}

// stationInfo 构造注册表解析回调可见的站点信息
func (s *Station) stationInfo() registry.StationInfo {
	return registry.StationInfo{
		StationID:       s.id,
		Vendor:          s.template.ChargePointVendor,
		Model:           s.template.ChargePointModel,
		FirmwareVersion: s.template.FirmwareVersion,
		SerialNumber:    s.template.SerialNumber,
		EvseCount:       len(s.model.Evses()),
		ConnectorCount:  s.model.Len(),
	}
}

// sleep 可取消的睡眠，返回false表示被取消
func (s *Station) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Start 启动站点运行时
func (s *Station) Start() error {
	s.startMutex.Lock()
	defer s.startMutex.Unlock()

	if s.started {
		return fmt.Errorf("station %s already started", s.id)
	}

	if s.store != nil && s.template.PersistStationInfo() {
		if err := s.restoreSnapshot(); err != nil {
			s.logger.Warnf("Failed to restore station snapshot: %v", err)
		}
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.wg.Add(1)
	go s.sessionLoop()

	if s.atg.config.Enable {
		s.atg.Start()
	}

	s.started = true
	metrics.RunningStations.Inc()
	s.emitLifecycle(events.EventTypeStationStarted, "")
	s.logger.Infof("Station %s started (OCPP %s, %d connectors)", s.id, s.version, s.model.Len())
	return nil
}

// Stop 停止站点运行时。
// 依次停止ATG、结束进行中的交易、停止心跳并干净地关闭连接，最后持久化快照。
func (s *Station) Stop() error {
	s.startMutex.Lock()
	defer s.startMutex.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Infof("Stopping station %s", s.id)

	// 先停ATG，等待连接器循环退出，避免停机期间再开新交易
	s.atg.Stop()

	if s.template.StopTransactionsOnStop() {
		s.stopAllTransactions(ocpp16.ReasonLocal)
	}

	s.cancel()

	s.connMu.Lock()
	client := s.client
	s.connMu.Unlock()
	if client != nil {
		client.Close()
	}

	s.wg.Wait()
	s.failAllPending(ErrStationStopped)
	s.setState(StateDisconnected)

	if s.store != nil && s.template.PersistStationInfo() {
		if err := s.persistSnapshot(); err != nil {
			s.logger.Errorf("Failed to persist station snapshot: %v", err)
		}
	}

	s.started = false
	metrics.RunningStations.Dec()
	s.emitLifecycle(events.EventTypeStationStopped, "")
	s.logger.Infof("Station %s stopped", s.id)
	return nil
}

// Reset 触发站点重置：结束交易、断开连接并重新注册
func (s *Station) Reset(reason ocpp16.Reason) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.performReset(reason)
	}()
}

func (s *Station) performReset(reason ocpp16.Reason) {
	s.logger.Infof("Resetting station %s (%s)", s.id, reason)
	s.stopAllTransactions(reason)

	if s.store != nil && s.template.PersistStationInfo() {
		if err := s.persistSnapshot(); err != nil {
			s.logger.Errorf("Failed to persist snapshot before reset: %v", err)
		}
	}

	// 关闭连接，会话循环负责重连并重新走Boot流程
	s.connMu.Lock()
	client := s.client
	s.connMu.Unlock()
	if client != nil {
		client.Close()
	}
}

// stopAllTransactions 结束全部进行中的交易
func (s *Station) stopAllTransactions(reason ocpp16.Reason) {
	for _, connector := range s.model.All() {
		if connector.HasTransaction() {
			ctx, cancelTx := context.WithTimeout(context.Background(), s.messageTimeout()+5*time.Second)
			if _, err := s.StopTransaction(ctx, connector.ID, reason); err != nil {
				s.logger.Errorf("Failed to stop transaction on connector %d: %v", connector.ID, err)
			}
			cancelTx()
		}
	}
}

// sessionLoop 连接会话主循环：连接、注册、收帧，断开后按策略重连
func (s *Station) sessionLoop() {
	defer s.wg.Done()

	retries := 0
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = time.Second
	expo.MaxInterval = 2 * time.Minute
	expo.MaxElapsedTime = 0

	for {
		if s.ctx.Err() != nil {
			return
		}

		s.setState(StateConnecting)
		client, err := s.dial()
		if err != nil {
			metrics.Reconnects.WithLabelValues("failure").Inc()
			retries++
			if s.template.AutoReconnectMaxRetries >= 0 && retries > s.template.AutoReconnectMaxRetries {
				s.logger.Errorf("Giving up after %d connect attempts: %v", retries-1, err)
				s.setState(StateDisconnected)
				return
			}
			delay := s.reconnectDelay(expo)
			s.logger.Warnf("Connect failed (attempt %d): %v, retrying in %s", retries, err, delay)
			if !s.sleep(s.ctx, delay) {
				return
			}
			continue
		}
		metrics.Reconnects.WithLabelValues("success").Inc()
		retries = 0
		expo.Reset()

		s.connMu.Lock()
		s.client = client
		s.connMu.Unlock()

		s.runSession(client)

		s.connMu.Lock()
		s.client = nil
		s.connMu.Unlock()
		client.Close()
		s.failAllPending(ErrDisconnected)
		s.stopHeartbeat()

		if s.ctx.Err() != nil {
			return
		}
		s.setState(StateReconnecting)
		s.emitLifecycle(events.EventTypeStationDisconnected, "")
		if !s.sleep(s.ctx, s.reconnectDelay(expo)) {
			return
		}
	}
}

// dial 建立WebSocket连接
func (s *Station) dial() (*wsclient.Client, error) {
	endpoint := s.template.SupervisionURLs[0]
	if endpoint == "" {
		return nil, fmt.Errorf("station %s has no supervision URL", s.id)
	}
	// 路径以站点标识结尾
	url := endpoint
	if url[len(url)-1] != '/' {
		url += "/"
	}
	url += s.id

	config := wsclient.DefaultConfig()
	config.URL = url
	config.Subprotocol = s.version.Subprotocol()
	config.PingInterval = s.webSocketPingInterval()

	return wsclient.Dial(s.ctx, config, s.logger)
}

// webSocketPingInterval ping周期，0为禁用
func (s *Station) webSocketPingInterval() time.Duration {
	if s.template.WebSocketPingInterval > 0 {
		return time.Duration(s.template.WebSocketPingInterval) * time.Second
	}
	if s.version == Version201 {
		if v, ok := s.resolveRegistryInt(registry.ComponentOCPPCommCtrlr, registry.VariableWebSocketPingInterval, ""); ok {
			return time.Duration(v) * time.Second
		}
	}
	if entry, ok := s.config.Get(KeyWebSocketPingInterval); ok {
		if v, err := time.ParseDuration(entry.Value + "s"); err == nil {
			return v
		}
	}
	return 60 * time.Second
}

// reconnectDelay 重连延迟：固定值或带上限的指数退避
func (s *Station) reconnectDelay(expo *backoff.ExponentialBackOff) time.Duration {
	if d := s.template.ReconnectDelay(); d > 0 {
		return d
	}
	return expo.NextBackOff()
}

// runSession 单次连接会话：注册后持续处理入站帧直到连接终止
func (s *Station) runSession(client *wsclient.Client) {
	// 读帧协程贯穿整个会话，Boot响应也经由它解除等待
	inboundDone := make(chan struct{})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(inboundDone)
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-client.Done():
				return
			case raw := <-client.Inbound():
				s.handleInbound(raw)
			}
		}
	}()

	if s.register(client) {
		s.flushOutbound()
		s.startHeartbeat()
		s.sendInitialStatusNotifications()
	}

	<-inboundDone
}

// register Boot注册流程：重发BootNotification直到终态或尝试次数耗尽
func (s *Station) register(client *wsclient.Client) bool {
	for attempt := 1; attempt <= s.template.BootRetryMaxAttempts; attempt++ {
		if s.ctx.Err() != nil {
			return false
		}
		s.setState(StateBooting)

		status, interval, err := s.sendBootNotification()
		if err != nil {
			s.logger.Errorf("BootNotification failed: %v", err)
			select {
			case <-client.Done():
				return false
			default:
			}
			if !s.sleep(s.ctx, 5*time.Second) {
				return false
			}
			continue
		}

		switch status {
		case "Accepted":
			s.setState(StateAccepted)
			s.setHeartbeatInterval(time.Duration(interval) * time.Second)
			s.emitLifecycle(events.EventTypeStationAccepted, "")
			s.logger.Infof("Registration accepted, heartbeat interval %ds", interval)
			return true
		case "Pending":
			s.setState(StatePending)
			s.emitLifecycle(events.EventTypeStationPending, "")
			s.logger.Infof("Registration pending, retrying in %ds", interval)
			if !s.sleep(s.ctx, time.Duration(interval)*time.Second) {
				return false
			}
		case "Rejected":
			s.setState(StateRejected)
			s.emitLifecycle(events.EventTypeStationRejected, "")
			s.logger.Warnf("Registration rejected, retrying in %ds", interval)
			if !s.sleep(s.ctx, time.Duration(interval)*time.Second) {
				return false
			}
		default:
			s.setState(StateUnknown)
			s.logger.Warnf("Unknown registration status %q", status)
			if !s.sleep(s.ctx, 5*time.Second) {
				return false
			}
		}
	}
	s.logger.Errorf("Registration did not reach a terminal state after %d attempts", s.template.BootRetryMaxAttempts)
	return false
}

// sendBootNotification 按协议版本发送BootNotification
func (s *Station) sendBootNotification() (status string, interval int, err error) {
	switch s.version {
	case Version201:
		payload := &ocpp2.BootNotificationRequest{
			Reason: ocpp2.BootReasonPowerUp,
			ChargingStation: ocpp2.ChargingStationType{
				Model:      s.template.ChargePointModel,
				VendorName: s.template.ChargePointVendor,
			},
		}
		if s.template.FirmwareVersion != "" {
			payload.ChargingStation.FirmwareVersion = &s.template.FirmwareVersion
		}
		raw, callErr := s.call(s.ctx, bootNotificationAction, payload)
		if callErr != nil {
			return "", 0, callErr
		}
		var resp struct {
			Status   string `json:"status"`
			Interval int    `json:"interval"`
		}
		if err := json.Unmarshal(raw, &resp); err != nil {
			return "", 0, fmt.Errorf("invalid BootNotification response: %w", err)
		}
		return resp.Status, resp.Interval, nil

	default:
		payload := &ocpp16.BootNotificationRequest{
			ChargePointVendor: s.template.ChargePointVendor,
			ChargePointModel:  s.template.ChargePointModel,
		}
		if s.template.FirmwareVersion != "" {
			payload.FirmwareVersion = &s.template.FirmwareVersion
		}
		if s.template.SerialNumber != "" {
			payload.ChargePointSerialNumber = &s.template.SerialNumber
		}
		raw, callErr := s.call(s.ctx, bootNotificationAction, payload)
		if callErr != nil {
			return "", 0, callErr
		}
		var resp ocpp16.BootNotificationResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return "", 0, fmt.Errorf("invalid BootNotification response: %w", err)
		}
		return string(resp.Status), resp.Interval, nil
	}
}

// sendInitialStatusNotifications 注册通过后为每个连接器上报一次状态
func (s *Station) sendInitialStatusNotifications() {
	for _, connector := range s.model.All() {
		if err := s.sendStatusNotification(connector, connector.Status()); err != nil {
			s.logger.Errorf("Initial StatusNotification for connector %d failed: %v", connector.ID, err)
		}
	}
}

// handleInbound 处理入站帧
func (s *Station) handleInbound(raw []byte) {
	frame, err := s.codec.Decode(raw)
	if err != nil {
		metrics.MessagesReceived.WithLabelValues(string(s.version), "invalid").Inc()
		s.logger.Warnf("Dropping malformed frame: %v", err)
		return
	}
	metrics.MessagesReceived.WithLabelValues(string(s.version), fmt.Sprintf("%d", frame.Type)).Inc()

	switch frame.Type {
	case serialization.MessageTypeCallResult:
		s.resolveCallResult(frame)
	case serialization.MessageTypeCallError:
		s.resolveCallError(frame)
	case serialization.MessageTypeCall:
		s.dispatchCall(frame)
	}
}

// noteSend 记录最近一次发送时间，供心跳跳过优化使用
func (s *Station) noteSend() {
	s.heartbeatMu.Lock()
	s.lastSend = time.Now()
	s.heartbeatMu.Unlock()
}

// setHeartbeatInterval 应用CSMS下发的心跳周期
func (s *Station) setHeartbeatInterval(interval time.Duration) {
	s.heartbeatMu.Lock()
	s.heartbeatInterval = interval
	s.heartbeatMu.Unlock()
}

// HeartbeatInterval 当前心跳周期
func (s *Station) HeartbeatInterval() time.Duration {
	s.heartbeatMu.Lock()
	defer s.heartbeatMu.Unlock()
	return s.heartbeatInterval
}

// OutboundSaturated 出站队列达到高水位
func (s *Station) OutboundSaturated() bool {
	s.connMu.Lock()
	client := s.client
	s.connMu.Unlock()
	if client == nil {
		return false
	}
	return client.QueueLen() >= s.queueHighWater
}

// OutboundDrained 出站队列降到低水位以下
func (s *Station) OutboundDrained() bool {
	s.connMu.Lock()
	client := s.client
	s.connMu.Unlock()
	if client == nil {
		return true
	}
	return client.QueueLen() < s.queueLowWater
}
