package sessionstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/zeromicro/go-zero/core/stores/redis"
)

// Redis 键布局：每个 file_id 一个会话 hash 加一个分片集合
const (
	sessionKeyFmt = "upload:session:%s"
	chunksKeyFmt  = "upload:chunks:%s"
)

// Store 上传会话元数据访问层，Redis 是会话状态的唯一仲裁者
type Store struct {
	rdb *redis.Redis
}

func NewStore(rdb *redis.Redis) *Store {
	return &Store{
		rdb: rdb,
	}
}

func sessionKey(fileId string) string {
	return fmt.Sprintf(sessionKeyFmt, fileId)
}

func chunksKey(fileId string) string {
	return fmt.Sprintf(chunksKeyFmt, fileId)
}

// CreateSession 创建上传会话并生成 file_id，初始状态 Initialized
func (s *Store) CreateSession(ctx context.Context, totalChunks int64) (*Session, error) {
	if totalChunks <= 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "total_chunks 必须为正整数: %d", totalChunks)
	}

	fileId := uuid.New().String()
	now := time.Now().Unix()
	fields := map[string]string{
		"file_id":      fileId,
		"total_chunks": strconv.FormatInt(totalChunks, 10),
		"status":       string(StatusInitialized),
		"created_at":   strconv.FormatInt(now, 10),
		"updated_at":   strconv.FormatInt(now, 10),
	}
	if err := s.rdb.HmsetCtx(ctx, sessionKey(fileId), fields); err != nil {
		return nil, errors.Wrapf(ErrBackendUnavailable, "写入会话元数据失败: %v", err)
	}

	return &Session{
		FileId:      fileId,
		TotalChunks: totalChunks,
		Status:      StatusInitialized,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// RecordChunk 原子记录分片到达并返回去重后的分片数和会话状态。
// 重复序号不会增加计数，首个分片会把会话推进到 InProgress。
func (s *Store) RecordChunk(ctx context.Context, fileId string, chunkIndex int64) (int64, Status, error) {
	keys := []string{sessionKey(fileId), chunksKey(fileId)}
	resp, err := s.rdb.ScriptRunCtx(ctx, recordChunkScript, keys,
		strconv.FormatInt(chunkIndex, 10), strconv.FormatInt(time.Now().Unix(), 10))
	if err != nil {
		return 0, "", errors.Wrapf(ErrBackendUnavailable, "执行分片记录脚本失败: %v", err)
	}

	vals, ok := resp.([]any)
	if !ok || len(vals) < 3 {
		return 0, "", errors.Wrapf(ErrBackendUnavailable, "分片记录脚本返回异常: %v", resp)
	}

	code := toInt64(vals[0])
	switch {
	case code == -1:
		return 0, "", errors.Wrapf(ErrSessionNotFound, "file_id: %s", fileId)
	case code == -2:
		return 0, "", errors.Wrapf(ErrChunkOutOfRange,
			"chunk_index: %d, total_chunks: %d", chunkIndex, toInt64(vals[2]))
	default:
		return code, Status(toString(vals[1])), nil
	}
}

// GetSession 原子读取会话快照
func (s *Store) GetSession(ctx context.Context, fileId string) (*Session, error) {
	keys := []string{sessionKey(fileId), chunksKey(fileId)}
	resp, err := s.rdb.ScriptRunCtx(ctx, getSessionScript, keys)
	if err != nil {
		return nil, errors.Wrapf(ErrBackendUnavailable, "执行会话查询脚本失败: %v", err)
	}

	vals, ok := resp.([]any)
	if !ok || len(vals) < 1 {
		return nil, errors.Wrapf(ErrBackendUnavailable, "会话查询脚本返回异常: %v", resp)
	}
	if toInt64(vals[0]) == 0 {
		return nil, errors.Wrapf(ErrSessionNotFound, "file_id: %s", fileId)
	}
	if len(vals) < 6 {
		return nil, errors.Wrapf(ErrBackendUnavailable, "会话查询脚本返回异常: %v", resp)
	}

	return &Session{
		FileId:         fileId,
		TotalChunks:    toInt64(vals[1]),
		Status:         Status(toString(vals[2])),
		CreatedAt:      toInt64(vals[3]),
		UpdatedAt:      toInt64(vals[4]),
		UploadedChunks: toInt64(vals[5]),
	}, nil
}

// SetStatus 按状态机推进会话状态。
// 并发调用同一流转时只有一个成功，落败方拿到 ErrInvalidTransition。
func (s *Store) SetStatus(ctx context.Context, fileId string, target Status) error {
	if !target.IsValid() {
		return errors.Wrapf(ErrInvalidArgument, "未知状态: %s", target)
	}

	keys := []string{sessionKey(fileId), chunksKey(fileId)}
	resp, err := s.rdb.ScriptRunCtx(ctx, setStatusScript, keys,
		string(target), strconv.FormatInt(time.Now().Unix(), 10))
	if err != nil {
		return errors.Wrapf(ErrBackendUnavailable, "执行状态流转脚本失败: %v", err)
	}

	switch toInt64(resp) {
	case 1:
		return nil
	case -1:
		return errors.Wrapf(ErrSessionNotFound, "file_id: %s", fileId)
	default:
		return errors.Wrapf(ErrInvalidTransition, "file_id: %s, 目标状态: %s", fileId, target)
	}
}

func toInt64(v any) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case string:
		n, _ := strconv.ParseInt(val, 10, 64)
		return n
	default:
		return 0
	}
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
