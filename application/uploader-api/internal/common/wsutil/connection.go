package wsutil

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zeromicro/go-zero/core/logx"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  8192,
	WriteBufferSize: 8192,
	CheckOrigin: func(r *http.Request) bool {
		return true // 生产环境需要严格验证
	},
}

// ==================== 消息类型定义 ====================

const (
	TypeError = "error"

	TypeInitial     = "initial"      // 连接建立时下发的会话快照
	TypeUploadEvent = "upload_event" // 上传进度/状态推送
)

// WSMessage WebSocket 消息结构
type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// ErrorMessage 错误消息
type ErrorMessage struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ==================== WebSocket 连接封装 ====================

// WSConnection 串行化写入的连接封装，业务协程通过 writeChan 投递，
// 写循环独占底层连接
type WSConnection struct {
	conn         *websocket.Conn
	writeMu      sync.Mutex
	closeChan    chan struct{}
	closeOnce    sync.Once
	writeChan    chan []byte
	closed       atomic.Bool
	clientClosed atomic.Bool
	lastPong     atomic.Int64
	missedPings  atomic.Int32
}

// UpgradeWebSocket 升级 HTTP 连接为 WebSocket
func UpgradeWebSocket(w http.ResponseWriter, r *http.Request) (*WSConnection, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}

	ws := &WSConnection{
		conn:      conn,
		closeChan: make(chan struct{}),
		writeChan: make(chan []byte, 256),
	}
	ws.lastPong.Store(time.Now().Unix())

	conn.SetPongHandler(func(string) error {
		ws.lastPong.Store(time.Now().Unix())
		ws.missedPings.Store(0)
		return ws.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	})

	conn.SetCloseHandler(func(code int, text string) error {
		logx.Infof("收到客户端关闭帧: code=%d, text=%s", code, text)
		ws.clientClosed.Store(true)
		return ws.Close()
	})

	go ws.writeLoop()

	return ws, nil
}

// writeLoop 写入循环，保证同一连接上的帧不会交错
func (c *WSConnection) writeLoop() {
	defer func() {
		if r := recover(); r != nil {
			logx.Errorf("WebSocket writeLoop panic: %v", r)
		}
	}()

	for {
		select {
		case data := <-c.writeChan:
			if err := c.writeMessage(websocket.TextMessage, data); err != nil {
				if !c.IsClosed() && !c.IsClientClosed() {
					logx.Errorf("WebSocket 写入错误: %v", err)
				}
				c.Close()
				return
			}
		case <-c.closeChan:
			return
		}
	}
}

func (c *WSConnection) writeMessage(messageType int, data []byte) error {
	if c.IsClosed() {
		return websocket.ErrCloseSent
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

// WriteJSON 发送 JSON 消息
func (c *WSConnection) WriteJSON(msg interface{}) error {
	if c.IsClosed() {
		return websocket.ErrCloseSent
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case <-c.closeChan:
		return websocket.ErrCloseSent
	case c.writeChan <- data:
		return nil
	case <-time.After(5 * time.Second):
		logx.Error("WebSocket 写入通道超时")
		return errors.New("write timeout")
	}
}

// ReadJSON 读取并解析一条 JSON 消息
func (c *WSConnection) ReadJSON(v interface{}) error {
	if c.IsClosed() {
		return websocket.ErrCloseSent
	}

	if err := c.conn.SetReadDeadline(time.Now().Add(90 * time.Second)); err != nil {
		return err
	}

	err := c.conn.ReadJSON(v)
	if err == nil {
		return nil
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
	) {
		logx.Infof("客户端关闭连接: %v", err)
		c.clientClosed.Store(true)
		c.Close()
		return err
	}

	if websocket.IsUnexpectedCloseError(err) {
		logx.Errorf("WebSocket 异常关闭: %v", err)
		c.clientClosed.Store(true)
		c.Close()
		return err
	}

	return err
}

// ReadMessage 读取原始消息，事件订阅端主要靠它消化控制帧和感知断开
func (c *WSConnection) ReadMessage() (messageType int, p []byte, err error) {
	if c.IsClosed() {
		return 0, nil, websocket.ErrCloseSent
	}

	if err = c.conn.SetReadDeadline(time.Now().Add(90 * time.Second)); err != nil {
		return 0, nil, err
	}

	messageType, p, err = c.conn.ReadMessage()
	if err == nil {
		return
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
	) {
		logx.Infof("客户端关闭连接: %v", err)
		c.clientClosed.Store(true)
		c.Close()
		return
	}

	if websocket.IsUnexpectedCloseError(err) {
		logx.Errorf("WebSocket 异常关闭: %v", err)
		c.clientClosed.Store(true)
		c.Close()
		return
	}

	return
}

// Close 关闭连接，可安全重复调用
func (c *WSConnection) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)

		if !c.clientClosed.Load() {
			c.writeMu.Lock()
			_ = c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server closing"),
				time.Now().Add(time.Second),
			)
			c.writeMu.Unlock()
		}

		close(c.closeChan)
		_ = c.conn.Close()
	})
	return nil
}

// IsClosed 检查连接是否已关闭
func (c *WSConnection) IsClosed() bool {
	return c.closed.Load()
}

// IsClientClosed 检查是否是客户端主动关闭
func (c *WSConnection) IsClientClosed() bool {
	return c.clientClosed.Load()
}

// CloseChan 获取关闭通道
func (c *WSConnection) CloseChan() <-chan struct{} {
	return c.closeChan
}

// StartPingPong 启动心跳检测，客户端连续丢失心跳后断开
func (c *WSConnection) StartPingPong(interval time.Duration) {
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		defer func() {
			if r := recover(); r != nil {
				logx.Errorf("心跳检测 panic: %v", r)
			}
		}()

		for {
			select {
			case <-ticker.C:
				if c.IsClosed() || c.IsClientClosed() {
					return
				}

				if c.missedPings.Load() >= 3 {
					logx.Errorf("客户端未响应心跳，已丢失 %d 次，关闭连接", c.missedPings.Load())
					c.Close()
					return
				}

				if err := c.writeMessage(websocket.PingMessage, nil); err != nil {
					if !c.IsClosed() && !c.IsClientClosed() {
						logx.Errorf("发送心跳失败: %v", err)
					}
					c.Close()
					return
				}
				c.missedPings.Add(1)

			case <-c.closeChan:
				return
			}
		}
	}()
}

// ==================== 便捷方法 ====================

func (c *WSConnection) SendMessage(msgType string, data interface{}) error {
	return c.WriteJSON(WSMessage{
		Type: msgType,
		Data: data,
	})
}

func (c *WSConnection) SendError(err error) error {
	if c.IsClientClosed() {
		return nil
	}
	return c.SendMessage(TypeError, ErrorMessage{
		Message: err.Error(),
	})
}
