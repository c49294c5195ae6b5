package svc

import (
	"context"
	"encoding/json"
	"sync"

	red "github.com/redis/go-redis/v9"
	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/common/uploadevent"
	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/common/wsutil"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"
)

// UploadEventHub 将 Redis 上的上传事件扇出到按 file_id 订阅的 WebSocket 连接。
// 事件经 Redis 频道中转，多副本部署时任意副本都能推送自己持有的连接。
type UploadEventHub struct {
	clients      map[string]map[*wsutil.WSConnection]bool
	clientsMux   sync.RWMutex
	rdb          *redis.Redis // go-zero Redis（用于 Publish）
	nativeClient *red.Client  // 原生客户端（仅用于 PubSub）
	register     chan *watcherRegistration
	unregister   chan *watcherUnregistration
	broadcast    chan *fileBroadcast
	ctx          context.Context
	cancel       context.CancelFunc
	logger       logx.Logger
}

type watcherRegistration struct {
	FileId string
	Conn   *wsutil.WSConnection
}

type watcherUnregistration struct {
	FileId string
	Conn   *wsutil.WSConnection
}

type fileBroadcast struct {
	FileId  string
	Message []byte
}

// NewUploadEventHub 创建 Hub
func NewUploadEventHub(rdb *redis.Redis) *UploadEventHub {
	ctx, cancel := context.WithCancel(context.Background())

	// 从 go-zero Redis 获取地址和密码，创建原生客户端用于订阅
	nativeClient := red.NewClient(&red.Options{
		Addr:     rdb.Addr,
		Password: rdb.Pass,
		DB:       0,
	})

	return &UploadEventHub{
		clients:      make(map[string]map[*wsutil.WSConnection]bool),
		rdb:          rdb,
		nativeClient: nativeClient,
		register:     make(chan *watcherRegistration, 100),
		unregister:   make(chan *watcherUnregistration, 100),
		broadcast:    make(chan *fileBroadcast, 256),
		ctx:          ctx,
		cancel:       cancel,
		logger:       logx.WithContext(ctx),
	}
}

func (h *UploadEventHub) Start() {
	h.logger.Info("上传事件 WebSocket Hub 启动")
	go h.subscribeRedis()
	go h.run()
}

func (h *UploadEventHub) Stop() {
	h.logger.Info("上传事件 WebSocket Hub 停止中...")
	h.cancel()

	h.clientsMux.Lock()
	for _, conns := range h.clients {
		for conn := range conns {
			conn.Close()
		}
	}
	h.clientsMux.Unlock()

	if h.nativeClient != nil {
		h.nativeClient.Close()
	}

	h.logger.Info("上传事件 WebSocket Hub 已停止")
}

func (h *UploadEventHub) run() {
	for {
		select {
		case reg := <-h.register:
			h.registerWatcher(reg)
		case unreg := <-h.unregister:
			h.unregisterWatcher(unreg)
		case msg := <-h.broadcast:
			h.broadcastToFile(msg.FileId, msg.Message)
		case <-h.ctx.Done():
			h.logger.Info("Hub 主循环退出")
			return
		}
	}
}

func (h *UploadEventHub) subscribeRedis() {
	h.logger.Info("开始订阅上传事件频道")

	pubsub := h.nativeClient.PSubscribe(h.ctx, uploadevent.FileEventChannelPattern)
	defer pubsub.Close()

	ch := pubsub.Channel()

	for {
		select {
		case msg := <-ch:
			if msg == nil {
				continue
			}
			h.handleRedisMessage(msg.Channel, msg.Payload)
		case <-h.ctx.Done():
			h.logger.Info("Redis 订阅协程退出")
			return
		}
	}
}

func (h *UploadEventHub) handleRedisMessage(channel, payload string) {
	fileId := uploadevent.FileIdFromChannel(channel)
	if fileId == "" {
		h.logger.Errorf("解析事件频道失败: channel=%s", channel)
		return
	}

	h.broadcast <- &fileBroadcast{
		FileId:  fileId,
		Message: []byte(payload),
	}
}

func (h *UploadEventHub) registerWatcher(reg *watcherRegistration) {
	h.clientsMux.Lock()
	defer h.clientsMux.Unlock()

	if _, ok := h.clients[reg.FileId]; !ok {
		h.clients[reg.FileId] = make(map[*wsutil.WSConnection]bool)
	}
	h.clients[reg.FileId][reg.Conn] = true

	h.logger.Infof("事件订阅已注册: fileId=%s, 当前该文件连接数=%d, 被订阅文件数=%d",
		reg.FileId, len(h.clients[reg.FileId]), len(h.clients))
}

func (h *UploadEventHub) unregisterWatcher(unreg *watcherUnregistration) {
	h.clientsMux.Lock()
	defer h.clientsMux.Unlock()

	if conns, ok := h.clients[unreg.FileId]; ok {
		if _, exists := conns[unreg.Conn]; exists {
			delete(conns, unreg.Conn)
			if len(conns) == 0 {
				delete(h.clients, unreg.FileId)
			}
		}
	}

	h.logger.Infof("事件订阅已注销: fileId=%s, 剩余该文件连接数=%d, 被订阅文件数=%d",
		unreg.FileId, len(h.clients[unreg.FileId]), len(h.clients))
}

func (h *UploadEventHub) broadcastToFile(fileId string, message []byte) {
	h.clientsMux.RLock()
	defer h.clientsMux.RUnlock()

	conns, ok := h.clients[fileId]
	if !ok || len(conns) == 0 {
		h.logger.Debugf("文件无订阅连接，跳过推送: fileId=%s", fileId)
		return
	}

	wsMsg := wsutil.WSMessage{
		Type: wsutil.TypeUploadEvent,
		Data: json.RawMessage(message),
	}

	successCount := 0
	failCount := 0

	for conn := range conns {
		if err := conn.WriteJSON(wsMsg); err != nil {
			h.logger.Errorf("推送上传事件失败: fileId=%s, error=%v", fileId, err)
			go func(c *wsutil.WSConnection) {
				h.unregister <- &watcherUnregistration{
					FileId: fileId,
					Conn:   c,
				}
			}(conn)
			failCount++
		} else {
			successCount++
		}
	}

	h.logger.Debugf("推送上传事件完成: fileId=%s, 成功=%d, 失败=%d", fileId, successCount, failCount)
}

func (h *UploadEventHub) Register(fileId string, conn *wsutil.WSConnection) {
	h.register <- &watcherRegistration{
		FileId: fileId,
		Conn:   conn,
	}
}

func (h *UploadEventHub) Unregister(fileId string, conn *wsutil.WSConnection) {
	h.unregister <- &watcherUnregistration{
		FileId: fileId,
		Conn:   conn,
	}
}

// HasWatchers 返回某文件当前是否有订阅连接
func (h *UploadEventHub) HasWatchers(fileId string) bool {
	h.clientsMux.RLock()
	defer h.clientsMux.RUnlock()

	conns, ok := h.clients[fileId]
	return ok && len(conns) > 0
}
