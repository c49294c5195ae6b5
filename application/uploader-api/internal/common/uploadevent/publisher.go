package uploadevent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"
)

const (
	// FileEventChannelFormat 单文件事件频道（匹配 Hub 的订阅模式）
	FileEventChannelFormat = "upload:events:file:%s"
	// FileEventChannelPattern Hub 侧的订阅模式
	FileEventChannelPattern = "upload:events:file:*"

	// EventProgress 每记录一个分片发一条
	EventProgress = "progress"
	// EventStatus 每次状态流转发一条
	EventStatus = "status"
)

// FileEvent 推送给订阅端的事件，状态接口仍是唯一权威，推送只是加速感知
type FileEvent struct {
	FileId         string `json:"file_id"`
	Event          string `json:"event"`
	Status         string `json:"status"`
	UploadedChunks int64  `json:"uploaded_chunks"`
	TotalChunks    int64  `json:"total_chunks"`
	Timestamp      int64  `json:"timestamp"`
}

// Publisher 上传事件发布器，通过 Redis 频道广播，支持多副本部署
type Publisher struct {
	rdb    *redis.Redis
	logger logx.Logger
}

func NewPublisher(rdb *redis.Redis) *Publisher {
	return &Publisher{
		rdb:    rdb,
		logger: logx.WithContext(context.Background()),
	}
}

// PublishProgress 分片到达事件
func (p *Publisher) PublishProgress(ctx context.Context, fileId, status string, uploaded, total int64) error {
	return p.publish(ctx, &FileEvent{
		FileId:         fileId,
		Event:          EventProgress,
		Status:         status,
		UploadedChunks: uploaded,
		TotalChunks:    total,
	})
}

// PublishStatus 状态流转事件
func (p *Publisher) PublishStatus(ctx context.Context, fileId, status string, uploaded, total int64) error {
	return p.publish(ctx, &FileEvent{
		FileId:         fileId,
		Event:          EventStatus,
		Status:         status,
		UploadedChunks: uploaded,
		TotalChunks:    total,
	})
}

func (p *Publisher) publish(ctx context.Context, event *FileEvent) error {
	if p.rdb == nil {
		p.logger.Error("[上传事件] Redis 未初始化，跳过推送")
		return nil
	}

	event.Timestamp = time.Now().Unix()
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化上传事件失败: %w", err)
	}

	channel := fmt.Sprintf(FileEventChannelFormat, event.FileId)
	if _, err = p.rdb.PublishCtx(ctx, channel, string(data)); err != nil {
		return fmt.Errorf("发布上传事件失败: %w", err)
	}
	return nil
}

// FileIdFromChannel 从频道名还原 file_id，不匹配返回空串
func FileIdFromChannel(channel string) string {
	prefix := strings.TrimSuffix(FileEventChannelPattern, "*")
	if !strings.HasPrefix(channel, prefix) {
		return ""
	}
	return strings.TrimPrefix(channel, prefix)
}
