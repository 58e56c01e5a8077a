package wsclient

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/charging-platform/charge-point-simulator/internal/logger"
)

// Config WebSocket客户端配置
type Config struct {
	// 连接配置
	URL         string `json:"url"`         // 含站点ID路径后缀，可携带basic auth凭据
	Subprotocol string `json:"subprotocol"` // ocpp1.6 或 ocpp2.0.1

	// 超时配置
	HandshakeTimeout time.Duration `json:"handshake_timeout"`
	WriteTimeout     time.Duration `json:"write_timeout"`
	PongTimeout      time.Duration `json:"pong_timeout"`
	PingInterval     time.Duration `json:"ping_interval"` // 0为禁用
	MaxMessageSize   int64         `json:"max_message_size"`

	// 队列配置
	SendQueueSize    int `json:"send_queue_size"`
	ReceiveQueueSize int `json:"receive_queue_size"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		PongTimeout:      90 * time.Second,
		PingInterval:     60 * time.Second,
		MaxMessageSize:   1024 * 1024, // 1MB
		SendQueueSize:    100,
		ReceiveQueueSize: 100,
	}
}

// Client 单个站点到CSMS的WebSocket连接。
// 出站帧全部经由sendChan交给唯一的写协程，保证按提交顺序写出。
type Client struct {
	config *Config
	conn   *websocket.Conn

	sendChan chan []byte
	inbound  chan []byte

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
	done      chan struct{}

	logger *logger.Logger
}

// Dial 建立到CSMS的连接并完成子协议协商
func Dial(ctx context.Context, config *Config, log *logger.Logger) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = logger.Default()
	}

	endpoint, header, err := prepareEndpoint(config.URL)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: config.HandshakeTimeout,
		Subprotocols:     []string{config.Subprotocol},
	}

	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial %s (HTTP %d): %w", endpoint, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial %s: %w", endpoint, err)
	}

	if got := conn.Subprotocol(); got != "" && got != config.Subprotocol {
		conn.Close()
		return nil, fmt.Errorf("subprotocol mismatch: requested %s, got %s", config.Subprotocol, got)
	}

	clientCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		config:   config,
		conn:     conn,
		sendChan: make(chan []byte, config.SendQueueSize),
		inbound:  make(chan []byte, config.ReceiveQueueSize),
		ctx:      clientCtx,
		cancel:   cancel,
		done:     make(chan struct{}),
		logger:   log,
	}

	conn.SetReadLimit(config.MaxMessageSize)
	if config.PongTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(config.PongTimeout))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(config.PongTimeout))
			return nil
		})
	}

	c.wg.Add(1)
	go c.sendRoutine()

	c.wg.Add(1)
	go c.receiveRoutine()

	if config.PingInterval > 0 {
		c.wg.Add(1)
		go c.pingRoutine()
	}

	return c, nil
}

// prepareEndpoint 解析URL中的凭据，转为basic auth请求头
func prepareEndpoint(raw string) (string, http.Header, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", nil, fmt.Errorf("invalid CSMS URL %s: %w", raw, err)
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return "", nil, fmt.Errorf("unsupported URL scheme %s, need ws or wss", parsed.Scheme)
	}

	var header http.Header
	if parsed.User != nil {
		password, _ := parsed.User.Password()
		credentials := base64.StdEncoding.EncodeToString(
			[]byte(parsed.User.Username() + ":" + password))
		header = http.Header{"Authorization": []string{"Basic " + credentials}}
		parsed.User = nil
	}
	return parsed.String(), header, nil
}

// Send 入队一帧出站消息
func (c *Client) Send(message []byte) error {
	select {
	case c.sendChan <- message:
		return nil
	case <-c.ctx.Done():
		return fmt.Errorf("connection closed")
	}
}

// TrySend 非阻塞入队，队列满时报错
func (c *Client) TrySend(message []byte) error {
	select {
	case c.sendChan <- message:
		return nil
	case <-c.ctx.Done():
		return fmt.Errorf("connection closed")
	default:
		return fmt.Errorf("send queue full")
	}
}

// Inbound 接收CSMS下发的帧
func (c *Client) Inbound() <-chan []byte {
	return c.inbound
}

// Done 连接终止信号
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// QueueLen 当前出站队列长度，用于背压判断
func (c *Client) QueueLen() int {
	return len(c.sendChan)
}

// Close 优雅关闭连接，发送close帧后断开
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		deadline := time.Now().Add(c.config.WriteTimeout)
		if werr := c.conn.WriteControl(websocket.CloseMessage, message, deadline); werr != nil {
			c.logger.Debugf("Failed to write close frame: %v", werr)
		}
		c.cancel()
		err = c.conn.Close()
		close(c.done)
	})
	c.wg.Wait()
	return err
}

// markClosed 读写协程检测到连接失效时调用
func (c *Client) markClosed() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.conn.Close()
		close(c.done)
	})
}

// sendRoutine 唯一写协程，保证出站帧顺序
func (c *Client) sendRoutine() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case message := <-c.sendChan:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Errorf("Failed to write frame: %v", err)
				c.markClosed()
				return
			}
		}
	}
}

// receiveRoutine 读协程，入站帧交给站点运行时
func (c *Client) receiveRoutine() {
	defer c.wg.Done()
	defer c.markClosed()

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debugf("WebSocket read error: %v", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		select {
		case c.inbound <- message:
		case <-c.ctx.Done():
			return
		}
	}
}

// pingRoutine ping协程
func (c *Client) pingRoutine() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.config.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debugf("Failed to send ping: %v", err)
				c.markClosed()
				return
			}
		}
	}
}
