package station

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// stubFrame CSMS桩收到的一帧Call
type stubFrame struct {
	MessageID string
	Action    string
	Payload   json.RawMessage
}

// csmsStub 进程内CSMS桩：接受WebSocket连接，按动作脚本应答，记录全部入站Call
type csmsStub struct {
	t      *testing.T
	server *httptest.Server

	mu       sync.Mutex
	conn     *websocket.Conn
	received []stubFrame
	results  []json.RawMessage // 站点返回的CallResult载荷
	handlers map[string]func(callCount int, payload json.RawMessage) interface{}
	calls    map[string]int
	pending  map[string]chan json.RawMessage

	frameCh chan stubFrame
}

func newCsmsStub(t *testing.T) *csmsStub {
	stub := &csmsStub{
		t:        t,
		handlers: make(map[string]func(int, json.RawMessage) interface{}),
		calls:    make(map[string]int),
		pending:  make(map[string]chan json.RawMessage),
		frameCh:  make(chan stubFrame, 256),
	}

	upgrader := websocket.Upgrader{
		Subprotocols: []string{"ocpp1.6", "ocpp2.0.1"},
	}
	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("stub upgrade failed: %v", err)
			return
		}
		stub.mu.Lock()
		stub.conn = conn
		stub.mu.Unlock()
		stub.readLoop(conn)
	}))
	t.Cleanup(stub.Close)
	return stub
}

// URL ws://形式的访问地址
func (s *csmsStub) URL() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http")
}

// On 注册动作应答脚本，返回值作为CallResult载荷
func (s *csmsStub) On(action string, handler func(callCount int, payload json.RawMessage) interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[action] = handler
}

// readLoop 读取站点帧：Call按脚本应答，CallResult记录下来；CallResult/CallError交给等待中的SendCall
func (s *csmsStub) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var elements []json.RawMessage
		if err := json.Unmarshal(raw, &elements); err != nil || len(elements) < 3 {
			continue
		}
		var messageType int
		json.Unmarshal(elements[0], &messageType)
		var messageID string
		json.Unmarshal(elements[1], &messageID)

		switch messageType {
		case 2:
			var action string
			json.Unmarshal(elements[2], &action)
			frame := stubFrame{MessageID: messageID, Action: action, Payload: elements[3]}

			s.mu.Lock()
			s.received = append(s.received, frame)
			s.calls[action]++
			count := s.calls[action]
			handler := s.handlers[action]
			s.mu.Unlock()

			select {
			case s.frameCh <- frame:
			default:
			}

			var response interface{} = map[string]interface{}{}
			if handler != nil {
				response = handler(count, frame.Payload)
			}
			reply, _ := json.Marshal([]interface{}{3, messageID, response})
			conn.WriteMessage(websocket.TextMessage, reply)

		case 3:
			s.mu.Lock()
			s.results = append(s.results, elements[2])
			waiter := s.pending[messageID]
			delete(s.pending, messageID)
			s.mu.Unlock()
			if waiter != nil {
				waiter <- elements[2]
			}
		case 4:
			s.mu.Lock()
			waiter := s.pending[messageID]
			delete(s.pending, messageID)
			s.mu.Unlock()
			if waiter != nil {
				waiter <- raw
			}
		}
	}
}

// SendCall 向站点下发一个Call并等待响应载荷
func (s *csmsStub) SendCall(t *testing.T, messageID, action string, payload interface{}) json.RawMessage {
	t.Helper()

	waiter := make(chan json.RawMessage, 1)
	s.mu.Lock()
	conn := s.conn
	s.pending[messageID] = waiter
	s.mu.Unlock()
	if conn == nil {
		t.Fatalf("stub has no active connection")
	}

	data, err := json.Marshal([]interface{}{2, messageID, action, payload})
	if err != nil {
		t.Fatalf("failed to marshal stub call: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("failed to send stub call: %v", err)
	}

	select {
	case response := <-waiter:
		return response
	case <-time.After(10 * time.Second):
		t.Fatalf("timed out waiting for response to %s", action)
		return nil
	}
}

// CallCount 动作被调用的次数
func (s *csmsStub) CallCount(action string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[action]
}

// Received 按顺序返回全部入站Call
func (s *csmsStub) Received() []stubFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]stubFrame, len(s.received))
	copy(out, s.received)
	return out
}

// ReceivedByAction 过滤某动作的入站Call
func (s *csmsStub) ReceivedByAction(action string) []stubFrame {
	var out []stubFrame
	for _, frame := range s.Received() {
		if frame.Action == action {
			out = append(out, frame)
		}
	}
	return out
}

// WaitForCall 等待某动作至少被调用count次
func (s *csmsStub) WaitForCall(t *testing.T, action string, count int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.CallCount(action) >= count {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d %s calls, got %d", count, action, s.CallCount(action))
}

// Close 关闭桩
func (s *csmsStub) Close() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	s.server.Close()
}

// acceptBoot 默认Boot应答脚本
func acceptBoot(interval int) func(int, json.RawMessage) interface{} {
	return func(int, json.RawMessage) interface{} {
		return map[string]interface{}{
			"status":      "Accepted",
			"currentTime": time.Now().UTC().Format(time.RFC3339),
			"interval":    interval,
		}
	}
}

// testTemplate 测试用1.6模板
func testTemplate(url string, connectors int) *Template {
	tpl := &Template{
		BaseName:          "CP-TEST",
		ChargePointModel:  "TestModel",
		ChargePointVendor: "TestVendor",
		FirmwareVersion:   "1.0.0",
		OcppVersion:       Version16,
		SupervisionURLs:   []string{url},
		NumberOfConnectors: connectors,
		AutomaticTransactionGenerator: DefaultATGConfig(),
	}
	tpl.applyDefaults()
	return tpl
}
