package mergequeue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"
)

// ==================== 常量定义 ====================

const (
	// MergeQueueKey 合并任务队列的 Redis Key
	MergeQueueKey = "upload:merge:queue"

	// MergeInflightKey 在途任务索引，score 是最近一次入队时间，
	// 巡检任务靠它找出卡住的合并并重新入队
	MergeInflightKey = "upload:merge:inflight"

	// MergeDeadLetterKey 死信队列的 Redis Key
	MergeDeadLetterKey = "upload:merge:queue:dlq"

	// MaxQueueLength 队列最大长度限制
	// 防止消费者宕机时 Redis 内存溢出
	MaxQueueLength = 100000
)

// ==================== 数据结构定义 ====================

// MergeJob 队列中的合并任务，至少一次投递，处理端按幂等实现
type MergeJob struct {
	FileId     string `json:"file_id"`     // 待合并文件
	EnqueuedAt int64  `json:"enqueued_at"` // 入队时间戳（Unix 秒）
	MessageId  string `json:"message_id"`  // 消息唯一标识
	RetryCount int    `json:"retry_count"` // 当前重试次数
}

// Producer 合并任务生产者，完成检测方和巡检任务共用
type Producer struct {
	rdb *redis.Redis
}

func NewProducer(rdb *redis.Redis) *Producer {
	return &Producer{
		rdb: rdb,
	}
}

// ==================== 入队 ====================

// Enqueue 投递一个合并任务并登记在途索引。
// 上游的状态 CAS 保证每个 file_id 正常只会走到这里一次。
func (p *Producer) Enqueue(ctx context.Context, fileId string) (*MergeJob, error) {
	// 检查队列长度，防止堆积导致 Redis 内存溢出
	queueLen, err := p.rdb.LlenCtx(ctx, MergeQueueKey)
	if err != nil {
		logx.WithContext(ctx).Errorf("获取合并队列长度失败: %v", err)
	} else if queueLen > MaxQueueLength {
		return nil, errors.Errorf("合并队列已满: queueLen=%d, maxLen=%d", queueLen, MaxQueueLength)
	}

	now := time.Now()
	job := &MergeJob{
		FileId:     fileId,
		EnqueuedAt: now.Unix(),
		MessageId:  fmt.Sprintf("%s-%d", fileId, now.UnixNano()),
		RetryCount: 0,
	}
	return job, p.push(ctx, job)
}

// Requeue 把卡住的任务重新入队，重试次数加一并刷新在途时间
func (p *Producer) Requeue(ctx context.Context, job *MergeJob) error {
	job.RetryCount++
	job.EnqueuedAt = time.Now().Unix()
	return p.push(ctx, job)
}

func (p *Producer) push(ctx context.Context, job *MergeJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return errors.Wrapf(err, "序列化合并任务失败: file_id=%s", job.FileId)
	}

	if _, err = p.rdb.LpushCtx(ctx, MergeQueueKey, string(data)); err != nil {
		return errors.Wrapf(err, "合并任务入队失败: file_id=%s", job.FileId)
	}
	if _, err = p.rdb.ZaddCtx(ctx, MergeInflightKey, job.EnqueuedAt, job.FileId); err != nil {
		// 在途索引只影响巡检兜底，不影响本次投递
		logx.WithContext(ctx).Errorf("登记在途合并任务失败: file_id=%s, err=%v", job.FileId, err)
	}
	return nil
}

// ==================== 在途索引 ====================

// ClearInflight 任务到达终态后移除在途登记
func (p *Producer) ClearInflight(ctx context.Context, fileId string) error {
	if _, err := p.rdb.ZremCtx(ctx, MergeInflightKey, fileId); err != nil {
		return errors.Wrapf(err, "移除在途合并任务失败: file_id=%s", fileId)
	}
	return nil
}

// IsInflight 判断文件是否已有在途合并任务
func (p *Producer) IsInflight(ctx context.Context, fileId string) (bool, error) {
	_, err := p.rdb.ZscoreCtx(ctx, MergeInflightKey, fileId)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, errors.Wrapf(err, "查询在途合并任务失败: file_id=%s", fileId)
	}
	return true, nil
}

// StaleInflight 找出入队时间早于保护期的在途任务，返回对应的 file_id 和任务快照
func (p *Producer) StaleInflight(ctx context.Context, staleAfter time.Duration) ([]*MergeJob, error) {
	cutoff := time.Now().Add(-staleAfter).Unix()
	pairs, err := p.rdb.ZrangebyscoreWithScoresCtx(ctx, MergeInflightKey, 0, cutoff)
	if err != nil {
		return nil, errors.Wrap(err, "查询超时在途合并任务失败")
	}

	jobs := make([]*MergeJob, 0, len(pairs))
	for _, pair := range pairs {
		jobs = append(jobs, &MergeJob{
			FileId:     pair.Key,
			EnqueuedAt: pair.Score,
			MessageId:  fmt.Sprintf("%s-%d", pair.Key, pair.Score),
		})
	}
	return jobs, nil
}
