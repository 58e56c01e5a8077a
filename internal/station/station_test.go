package station

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/charge-point-simulator/internal/domain/ocpp16"
	"github.com/charging-platform/charge-point-simulator/internal/domain/ocpp2"
	"github.com/charging-platform/charge-point-simulator/internal/logger"
	"github.com/charging-platform/charge-point-simulator/internal/registry"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stderr"})
	require.NoError(t, err)
	return log
}

func testTemplate201(url string) *Template {
	tpl := &Template{
		BaseName:          "CS-TEST",
		ChargePointModel:  "TestModel201",
		ChargePointVendor: "TestVendor",
		FirmwareVersion:   "2.0.0",
		OcppVersion:       Version201,
		SupervisionURLs:   []string{url},
		NumberOfConnectors: 2,
		AutomaticTransactionGenerator: DefaultATGConfig(),
		AutoReconnectDelaySeconds:     1,
	}
	tpl.applyDefaults()
	return tpl
}

func startStation(t *testing.T, tpl *Template, reg *registry.Registry) *Station {
	t.Helper()
	if reg == nil {
		reg = registry.Standard()
	}
	sta, err := New(Options{
		ID:       tpl.BaseName + "-000001",
		Template: tpl,
		Registry: reg,
		Logger:   testLogger(t),
	})
	require.NoError(t, err)
	require.NoError(t, sta.Start())
	t.Cleanup(func() { sta.Stop() })
	return sta
}

func waitForState(t *testing.T, sta *Station, state RegistrationState, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if sta.State() == state {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("station did not reach state %s, current: %s", state, sta.State())
}

// S1: Boot接受后进入Accepted，心跳按下发周期调度，每个连接器上报一次初始状态
func TestBootAccepted(t *testing.T) {
	stub := newCsmsStub(t)
	stub.On("BootNotification", acceptBoot(300))

	sta := startStation(t, testTemplate(stub.URL(), 2), nil)
	waitForState(t, sta, StateAccepted, 5*time.Second)

	assert.Equal(t, 300*time.Second, sta.HeartbeatInterval())

	stub.WaitForCall(t, "StatusNotification", 2, 5*time.Second)
	notifications := stub.ReceivedByAction("StatusNotification")
	require.Len(t, notifications, 2)

	// 出站帧按提交顺序到达：连接器1先于连接器2
	var first, second ocpp16.StatusNotificationRequest
	require.NoError(t, json.Unmarshal(notifications[0].Payload, &first))
	require.NoError(t, json.Unmarshal(notifications[1].Payload, &second))
	assert.Equal(t, 1, first.ConnectorId)
	assert.Equal(t, 2, second.ConnectorId)
	assert.Equal(t, ocpp16.ChargePointStatusAvailable, first.Status)
}

// S2: 首次Boot响应Pending后按interval重发，Accepted前不发心跳
func TestBootPendingThenAccepted(t *testing.T) {
	stub := newCsmsStub(t)
	stub.On("BootNotification", func(count int, _ json.RawMessage) interface{} {
		if count == 1 {
			return map[string]interface{}{
				"status": "Pending", "currentTime": time.Now().UTC().Format(time.RFC3339), "interval": 1,
			}
		}
		return map[string]interface{}{
			"status": "Accepted", "currentTime": time.Now().UTC().Format(time.RFC3339), "interval": 60,
		}
	})

	sta := startStation(t, testTemplate(stub.URL(), 1), nil)
	waitForState(t, sta, StateAccepted, 10*time.Second)

	assert.Equal(t, 2, stub.CallCount("BootNotification"))
	assert.Equal(t, 0, stub.CallCount("Heartbeat"))
	assert.Equal(t, 60*time.Second, sta.HeartbeatInterval())
}

// 心跳按下发周期触发
func TestHeartbeat(t *testing.T) {
	stub := newCsmsStub(t)
	stub.On("BootNotification", acceptBoot(1))
	stub.On("Heartbeat", func(int, json.RawMessage) interface{} {
		return map[string]interface{}{"currentTime": time.Now().UTC().Format(time.RFC3339)}
	})

	sta := startStation(t, testTemplate(stub.URL(), 1), nil)
	waitForState(t, sta, StateAccepted, 5*time.Second)

	stub.WaitForCall(t, "Heartbeat", 2, 10*time.Second)
}

// 属性1: 孤儿响应被丢弃，不影响后续请求关联
func TestMessageCorrelation(t *testing.T) {
	stub := newCsmsStub(t)
	stub.On("BootNotification", acceptBoot(300))

	sta := startStation(t, testTemplate(stub.URL(), 1), nil)
	waitForState(t, sta, StateAccepted, 5*time.Second)

	// 未知messageId的CallResult被站点丢弃
	stub.mu.Lock()
	conn := stub.conn
	stub.mu.Unlock()
	orphan, _ := json.Marshal([]interface{}{3, "no-such-id", map[string]interface{}{}})
	require.NoError(t, conn.WriteMessage(1, orphan))

	// 站点仍能正常应答后续请求
	raw := stub.SendCall(t, "m-corr-1", "GetConfiguration", map[string]interface{}{})
	var resp ocpp16.GetConfigurationResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.NotEmpty(t, resp.ConfigurationKey)
	assert.Equal(t, 0, sta.PendingCount())
}

// 远程启停交易走完整流程，交易ID与CSMS分配一致
func TestRemoteStartStop(t *testing.T) {
	stub := newCsmsStub(t)
	stub.On("BootNotification", acceptBoot(300))
	stub.On("StartTransaction", func(int, json.RawMessage) interface{} {
		return map[string]interface{}{
			"idTagInfo":     map[string]interface{}{"status": "Accepted"},
			"transactionId": 77,
		}
	})

	sta := startStation(t, testTemplate(stub.URL(), 1), nil)
	waitForState(t, sta, StateAccepted, 5*time.Second)

	connectorID := 1
	raw := stub.SendCall(t, "m-rs-1", "RemoteStartTransaction", map[string]interface{}{
		"connectorId": connectorID,
		"idTag":       "AA000001",
	})
	var startResp ocpp16.RemoteStartTransactionResponse
	require.NoError(t, json.Unmarshal(raw, &startResp))
	assert.Equal(t, ocpp16.RemoteStartStopStatusAccepted, startResp.Status)

	stub.WaitForCall(t, "StartTransaction", 1, 5*time.Second)
	connector, _ := sta.Connectors().Get(connectorID)
	require.Eventually(t, connector.HasTransaction, 5*time.Second, 20*time.Millisecond)
	transactionID, _, _ := connector.Transaction()
	assert.Equal(t, 77, transactionID)

	raw = stub.SendCall(t, "m-rs-2", "RemoteStopTransaction", map[string]interface{}{
		"transactionId": 77,
	})
	var stopResp ocpp16.RemoteStopTransactionResponse
	require.NoError(t, json.Unmarshal(raw, &stopResp))
	assert.Equal(t, ocpp16.RemoteStartStopStatusAccepted, stopResp.Status)

	stub.WaitForCall(t, "StopTransaction", 1, 5*time.Second)
	require.Eventually(t, func() bool { return !connector.HasTransaction() }, 5*time.Second, 20*time.Millisecond)

	stops := stub.ReceivedByAction("StopTransaction")
	var stopReq ocpp16.StopTransactionRequest
	require.NoError(t, json.Unmarshal(stops[0].Payload, &stopReq))
	assert.Equal(t, 77, stopReq.TransactionId)
}

// S3: probabilityOfStart=1时ATG在10秒内完成授权-启动-停止一轮，交易ID匹配
func TestATGCycle(t *testing.T) {
	stub := newCsmsStub(t)
	stub.On("BootNotification", acceptBoot(300))
	stub.On("Authorize", func(int, json.RawMessage) interface{} {
		return map[string]interface{}{"idTagInfo": map[string]interface{}{"status": "Accepted"}}
	})
	stub.On("StartTransaction", func(int, json.RawMessage) interface{} {
		return map[string]interface{}{
			"idTagInfo":     map[string]interface{}{"status": "Accepted"},
			"transactionId": 4242,
		}
	})

	tpl := testTemplate(stub.URL(), 1)
	tpl.AutomaticTransactionGenerator = ATGConfig{
		Enable:                         true,
		MinDuration:                    2,
		MaxDuration:                    2,
		MinDelayBetweenTwoTransactions: 1,
		MaxDelayBetweenTwoTransactions: 1,
		ProbabilityOfStart:             1.0,
		StopAfterHours:                 1,
		RequireAuthorize:               true,
		IdTagDistribution:              "round-robin",
	}

	sta, err := New(Options{
		ID:       "CP-ATG-000001",
		Template: tpl,
		Registry: registry.Standard(),
		IdTags:   []string{"AA000001", "AA000002"},
		Logger:   testLogger(t),
	})
	require.NoError(t, err)
	require.NoError(t, sta.Start())
	defer sta.Stop()

	stub.WaitForCall(t, "Authorize", 1, 10*time.Second)
	stub.WaitForCall(t, "StartTransaction", 1, 10*time.Second)
	stub.WaitForCall(t, "StopTransaction", 1, 10*time.Second)

	stops := stub.ReceivedByAction("StopTransaction")
	var stopReq ocpp16.StopTransactionRequest
	require.NoError(t, json.Unmarshal(stops[0].Payload, &stopReq))
	assert.Equal(t, 4242, stopReq.TransactionId)

	// ATG记账：启动请求总数等于接受与拒绝之和
	status := sta.ATG().Status(1)
	assert.Equal(t, status.StartTransactionRequests(),
		status.AcceptedStartTransactionRequests+status.RejectedStartTransactionRequests)
	assert.GreaterOrEqual(t, status.AcceptedStartTransactionRequests, int64(1))
	assert.GreaterOrEqual(t, status.AcceptedAuthorizeRequests, int64(1))
}

// S5: SetVariables校验矩阵与写后读一致
func TestSetVariablesValidation(t *testing.T) {
	stub := newCsmsStub(t)
	stub.On("BootNotification", acceptBoot(300))

	sta := startStation(t, testTemplate201(stub.URL()), nil)
	waitForState(t, sta, StateAccepted, 5*time.Second)

	setVariable := func(messageID, value string) ocpp2.SetVariableResult {
		raw := stub.SendCall(t, messageID, "SetVariables", map[string]interface{}{
			"setVariableData": []map[string]interface{}{{
				"component":      map[string]interface{}{"name": "OCPPCommCtrlr"},
				"variable":       map[string]interface{}{"name": "HeartbeatInterval"},
				"attributeValue": value,
			}},
		})
		var resp ocpp2.SetVariablesResponse
		require.NoError(t, json.Unmarshal(raw, &resp))
		require.Len(t, resp.SetVariableResult, 1)
		return resp.SetVariableResult[0]
	}

	result := setVariable("m-sv-1", "0")
	assert.Equal(t, ocpp2.SetVariableStatusRejected, result.AttributeStatus)
	require.NotNil(t, result.AttributeStatusInfo)
	assert.Equal(t, "ValuePositiveOnly", result.AttributeStatusInfo.ReasonCode)

	result = setVariable("m-sv-2", "86401")
	assert.Equal(t, ocpp2.SetVariableStatusRejected, result.AttributeStatus)
	assert.Equal(t, "ValueTooHigh", result.AttributeStatusInfo.ReasonCode)

	result = setVariable("m-sv-3", "abc")
	assert.Equal(t, ocpp2.SetVariableStatusRejected, result.AttributeStatus)
	assert.Equal(t, "InvalidValue", result.AttributeStatusInfo.ReasonCode)

	result = setVariable("m-sv-4", "60")
	assert.Equal(t, ocpp2.SetVariableStatusAccepted, result.AttributeStatus)

	raw := stub.SendCall(t, "m-gv-1", "GetVariables", map[string]interface{}{
		"getVariableData": []map[string]interface{}{{
			"component": map[string]interface{}{"name": "OCPPCommCtrlr"},
			"variable":  map[string]interface{}{"name": "HeartbeatInterval"},
		}},
	})
	var getResp ocpp2.GetVariablesResponse
	require.NoError(t, json.Unmarshal(raw, &getResp))
	require.Len(t, getResp.GetVariableResult, 1)
	assert.Equal(t, ocpp2.GetVariableStatusAccepted, getResp.GetVariableResult[0].AttributeStatus)
	require.NotNil(t, getResp.GetVariableResult[0].AttributeValue)
	assert.Equal(t, "60", *getResp.GetVariableResult[0].AttributeValue)
}

// GetVariables边界：未知组件/变量与只写变量
func TestGetVariablesUnknownAndWriteOnly(t *testing.T) {
	stub := newCsmsStub(t)
	stub.On("BootNotification", acceptBoot(300))

	sta := startStation(t, testTemplate201(stub.URL()), nil)
	waitForState(t, sta, StateAccepted, 5*time.Second)

	raw := stub.SendCall(t, "m-gv-edge", "GetVariables", map[string]interface{}{
		"getVariableData": []map[string]interface{}{
			{
				"component": map[string]interface{}{"name": "NoSuchCtrlr"},
				"variable":  map[string]interface{}{"name": "HeartbeatInterval"},
			},
			{
				"component": map[string]interface{}{"name": "OCPPCommCtrlr"},
				"variable":  map[string]interface{}{"name": "NoSuchVariable"},
			},
			{
				"component": map[string]interface{}{"name": "SecurityCtrlr"},
				"variable":  map[string]interface{}{"name": "BasicAuthPassword"},
			},
		},
	})
	var resp ocpp2.GetVariablesResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	require.Len(t, resp.GetVariableResult, 3)
	assert.Equal(t, ocpp2.GetVariableStatusUnknownComponent, resp.GetVariableResult[0].AttributeStatus)
	assert.Equal(t, ocpp2.GetVariableStatusUnknownVariable, resp.GetVariableResult[1].AttributeStatus)
	assert.Equal(t, ocpp2.GetVariableStatusRejected, resp.GetVariableResult[2].AttributeStatus)
}

// S6: FullInventory共250项时NotifyReport分三片，seqNo递增，末片tbc为false
func TestGetBaseReportChunking(t *testing.T) {
	stub := newCsmsStub(t)
	stub.On("BootNotification", acceptBoot(300))

	// 248个注册表条目加2个连接器可用性条目，报告共250项
	entries := make([]*registry.Metadata, 0, 248)
	for i := 0; i < 248; i++ {
		entries = append(entries, &registry.Metadata{
			Component:    "LoadCtrlr",
			Variable:     fmt.Sprintf("Setting%03d", i),
			DataType:     registry.DataTypeString,
			Mutability:   registry.MutabilityReadWrite,
			Persistence:  registry.PersistenceVolatile,
			DefaultValue: "x",
		})
	}

	sta := startStation(t, testTemplate201(stub.URL()), registry.New(entries))
	waitForState(t, sta, StateAccepted, 5*time.Second)

	raw := stub.SendCall(t, "m-gbr-1", "GetBaseReport", map[string]interface{}{
		"requestId":  7,
		"reportBase": "FullInventory",
	})
	var resp ocpp2.GetBaseReportResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.Equal(t, ocpp2.GenericDeviceModelStatusAccepted, resp.Status)

	stub.WaitForCall(t, "NotifyReport", 3, 10*time.Second)
	reports := stub.ReceivedByAction("NotifyReport")
	require.Len(t, reports, 3)

	expectedCounts := []int{100, 100, 50}
	expectedTbc := []bool{true, true, false}
	for i, frame := range reports {
		var req ocpp2.NotifyReportRequest
		require.NoError(t, json.Unmarshal(frame.Payload, &req))
		assert.Equal(t, 7, req.RequestId)
		assert.Equal(t, i, req.SeqNo)
		assert.Equal(t, expectedTbc[i], req.Tbc)
		assert.Len(t, req.ReportData, expectedCounts[i])
	}
}

// 未知reportBase返回NotSupported
func TestGetBaseReportNotSupported(t *testing.T) {
	stub := newCsmsStub(t)
	stub.On("BootNotification", acceptBoot(300))

	sta := startStation(t, testTemplate201(stub.URL()), nil)
	waitForState(t, sta, StateAccepted, 5*time.Second)

	raw := stub.SendCall(t, "m-gbr-bad", "GetBaseReport", map[string]interface{}{
		"requestId":  8,
		"reportBase": "WeeklySchedule",
	})
	var resp ocpp2.GetBaseReportResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.Equal(t, ocpp2.GenericDeviceModelStatusNotSupported, resp.Status)
}

// S4: 有交易时Reset OnIdle响应Scheduled，交易结束后站点自行重启注册
func TestResetOnIdleWithRunningTransaction(t *testing.T) {
	if testing.Short() {
		t.Skip("OnIdle reset polls every 5 seconds")
	}

	stub := newCsmsStub(t)
	stub.On("BootNotification", acceptBoot(300))

	sta := startStation(t, testTemplate201(stub.URL()), nil)
	waitForState(t, sta, StateAccepted, 5*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	accepted, err := sta.StartTransaction(ctx, 1, "AA000001")
	require.NoError(t, err)
	require.True(t, accepted)

	raw := stub.SendCall(t, "m-reset-1", "Reset", map[string]interface{}{"type": "OnIdle"})
	var resp ocpp2.ResetResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.Equal(t, ocpp2.ResetStatusScheduled, resp.Status)

	// 交易未结束前不应发生重置
	time.Sleep(2 * time.Second)
	assert.Equal(t, 1, stub.CallCount("BootNotification"))

	_, err = sta.StopTransaction(ctx, 1, ocpp16.ReasonLocal)
	require.NoError(t, err)

	// 轮询发现空闲后执行重置，站点重连并重新Boot
	stub.WaitForCall(t, "BootNotification", 2, 20*time.Second)
}

// 平铺站点的EVSE级重置返回Rejected，原因码UnsupportedRequest
func TestResetRejections(t *testing.T) {
	stub := newCsmsStub(t)
	stub.On("BootNotification", acceptBoot(300))

	sta := startStation(t, testTemplate201(stub.URL()), nil)
	waitForState(t, sta, StateAccepted, 5*time.Second)

	raw := stub.SendCall(t, "m-reset-evse", "Reset", map[string]interface{}{
		"type": "Immediate", "evseId": 3,
	})
	var resp ocpp2.ResetResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.Equal(t, ocpp2.ResetStatusRejected, resp.Status)
	require.NotNil(t, resp.StatusInfo)
	assert.Equal(t, "UnsupportedRequest", resp.StatusInfo.ReasonCode)
}

// Pending状态下严格模式拒绝远程启动
func TestPendingBlocksRemoteStart(t *testing.T) {
	stub := newCsmsStub(t)
	stub.On("BootNotification", func(int, json.RawMessage) interface{} {
		return map[string]interface{}{
			"status": "Pending", "currentTime": time.Now().UTC().Format(time.RFC3339), "interval": 60,
		}
	})

	sta := startStation(t, testTemplate(stub.URL(), 1), nil)
	waitForState(t, sta, StatePending, 5*time.Second)

	raw := stub.SendCall(t, "m-pending-1", "RemoteStartTransaction", map[string]interface{}{
		"connectorId": 1, "idTag": "AA000001",
	})
	assert.Contains(t, string(raw), "SecurityError")
}

// 未实现的动作返回NotImplemented
func TestUnknownActionNotImplemented(t *testing.T) {
	stub := newCsmsStub(t)
	stub.On("BootNotification", acceptBoot(300))

	sta := startStation(t, testTemplate(stub.URL(), 1), nil)
	waitForState(t, sta, StateAccepted, 5*time.Second)

	raw := stub.SendCall(t, "m-unknown-1", "GetCompositeSchedule", map[string]interface{}{})
	assert.Contains(t, string(raw), "NotImplemented")
}
