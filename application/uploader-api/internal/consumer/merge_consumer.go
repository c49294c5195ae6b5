package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/common/chunkfs"
	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/common/sessionstore"
	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/common/uploadevent"
	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/mergequeue"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"
)

// ==================== 常量定义 ====================

const (
	// ConsumerWorkerCount 合并工作协程数量
	ConsumerWorkerCount = 3

	// MaxRetryCount 最大重试次数
	MaxRetryCount = 3

	// RetryDelayBase 重试延迟基数
	RetryDelayBase = 1 * time.Second

	// MergeTimeout 单个合并任务的处理超时
	MergeTimeout = 10 * time.Minute

	// MergeLockKeyFormat 单文件合并锁 key，保证同一文件同一时刻只有一个协程执行合并
	MergeLockKeyFormat = "upload:merge:lock:%s"

	// MergeLockExpireSeconds 合并锁过期秒数，与处理超时对齐，持有者崩溃后由过期兜底释放
	MergeLockExpireSeconds = 600
)

// ==================== 依赖与结构定义 ====================

// MergeConsumerDeps 合并消费者依赖
type MergeConsumerDeps struct {
	Redis        *redis.Redis         // Redis 客户端
	SessionStore *sessionstore.Store  // 上传会话存储
	ChunkStorage *chunkfs.Storage     // 分片文件存储
	Producer     *mergequeue.Producer // 合并队列生产者（重试与在途索引）
	Publisher    *uploadevent.Publisher
}

// MergeConsumer 文件合并消费者
// 从合并队列消费任务，拼接分片生成完整文件并推进会话终态
type MergeConsumer struct {
	deps      *MergeConsumerDeps
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	workerNum int
}

// NewMergeConsumer 创建合并消费者
func NewMergeConsumer(deps *MergeConsumerDeps) *MergeConsumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &MergeConsumer{
		deps:      deps,
		ctx:       ctx,
		cancel:    cancel,
		workerNum: ConsumerWorkerCount,
	}
}

// Name 返回消费者名称
func (c *MergeConsumer) Name() string {
	return "MergeConsumer"
}

// ==================== 生命周期管理 ====================

// Start 启动消费者
func (c *MergeConsumer) Start(ctx context.Context) error {
	logx.Infof("🚀 启动文件合并消费者，工作协程数: %d", c.workerNum)

	for i := 0; i < c.workerNum; i++ {
		c.wg.Add(1)
		go c.work(i)
	}

	logx.Info("✅ 文件合并消费者启动完成")
	return nil
}

// Stop 停止消费者
func (c *MergeConsumer) Stop() error {
	logx.Info("🛑 正在停止文件合并消费者...")

	c.cancel()
	c.wg.Wait()

	logx.Info("✅ 文件合并消费者已停止")
	return nil
}

// ==================== 消费主循环 ====================

// work 工作协程主循环
func (c *MergeConsumer) work(workerID int) {
	defer c.wg.Done()

	logx.Infof("⚙️  Worker[%d] 启动", workerID)
	defer logx.Infof("🛑 Worker[%d] 停止", workerID)

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			if err := c.consume(workerID); err != nil {
				logx.Errorf("❌ Worker[%d] 消费消息失败: %v", workerID, err)
				time.Sleep(time.Second)
			}
		}
	}
}

// consume 消费单条消息
func (c *MergeConsumer) consume(workerID int) error {
	messageData, err := c.deps.Redis.RpopCtx(c.ctx, mergequeue.MergeQueueKey)
	if err != nil {
		// 队列为空，短暂休眠后继续
		if errors.Is(err, redis.Nil) {
			time.Sleep(100 * time.Millisecond)
			return nil
		}
		// 停止信号导致的取消不算错误
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("从合并队列获取消息失败: %w", err)
	}

	if messageData == "" {
		time.Sleep(100 * time.Millisecond)
		return nil
	}

	logx.Infof("📨 Worker[%d] 获取到合并任务: %s", workerID, messageData)

	var job mergequeue.MergeJob
	if err := json.Unmarshal([]byte(messageData), &job); err != nil {
		logx.Errorf("❌ Worker[%d] 解析合并任务失败: %v, 原始消息: %s", workerID, err, messageData)
		c.moveToDeadLetterQueue(messageData, fmt.Sprintf("解析失败: %v", err))
		return nil
	}

	startTime := time.Now()
	err = c.processJob(workerID, messageData, &job)
	elapsed := time.Since(startTime)

	if err != nil {
		logx.Errorf("❌ Worker[%d] 处理合并任务失败: messageId=%s, fileId=%s, error=%v, 耗时=%dms",
			workerID, job.MessageId, job.FileId, err, elapsed.Milliseconds())

		if job.RetryCount < MaxRetryCount {
			c.retryMessage(&job)
		} else {
			logx.Errorf("💀 Worker[%d] 合并任务重试超限: messageId=%s, fileId=%s",
				workerID, job.MessageId, job.FileId)
			// 死信留档，在途索引保留，存储恢复后由巡检任务重投
			c.moveToDeadLetterQueue(messageData, fmt.Sprintf("重试超限: %v", err))
		}

		return err
	}

	logx.Infof("✅ Worker[%d] 合并任务处理完成: messageId=%s, fileId=%s, 耗时=%dms",
		workerID, job.MessageId, job.FileId, elapsed.Milliseconds())
	return nil
}

// ==================== 合并处理 ====================

// processJob 处理单个合并任务
// 返回 error 仅表示可重试的存储类失败，内容性失败与幂等跳过均返回 nil
func (c *MergeConsumer) processJob(workerID int, raw string, job *mergequeue.MergeJob) error {
	ctx, cancel := context.WithTimeout(context.Background(), MergeTimeout)
	defer cancel()

	// 单文件互斥锁，必须在 Acquire 之前设置过期时间！
	lock := redis.NewRedisLock(c.deps.Redis, fmt.Sprintf(MergeLockKeyFormat, job.FileId))
	lock.SetExpire(MergeLockExpireSeconds)

	acquired, err := lock.AcquireCtx(ctx)
	if err != nil {
		return fmt.Errorf("获取合并锁失败: %w", err)
	}
	if !acquired {
		// 另一个协程正在合并该文件，丢弃本条消息，重复投递由会话终态保证幂等
		logx.Infof("⏭️  Worker[%d] 文件正在合并中，跳过: fileId=%s", workerID, job.FileId)
		return nil
	}
	defer func() {
		// 释放锁使用独立上下文，避免处理超时导致锁无法释放
		if _, err := lock.ReleaseCtx(context.Background()); err != nil {
			logx.Errorf("释放合并锁失败: fileId=%s, error=%v", job.FileId, err)
		}
	}()

	session, err := c.deps.SessionStore.GetSession(ctx, job.FileId)
	if err != nil {
		if errors.Is(err, sessionstore.ErrSessionNotFound) {
			// 会话元数据丢失，任务无法推进
			logx.Errorf("💀 Worker[%d] 合并任务对应的上传会话不存在: fileId=%s", workerID, job.FileId)
			c.moveToDeadLetterQueue(raw, "上传会话不存在")
			c.clearInflight(job.FileId)
			return nil
		}
		return fmt.Errorf("查询上传会话失败: %w", err)
	}

	// 会话已到终态说明本条是重复投递，幂等跳过
	if session.Status.IsTerminal() {
		logx.Infof("⏭️  Worker[%d] 会话已到终态，跳过重复合并任务: fileId=%s, status=%s",
			workerID, job.FileId, session.Status)
		c.clearInflight(job.FileId)
		return nil
	}

	if session.Status != sessionstore.StatusReadyToMerge {
		// 未到待合并状态却被投递，属于异常消息，丢弃并告警
		logx.Errorf("⚠️  Worker[%d] 合并任务状态异常: fileId=%s, status=%s",
			workerID, job.FileId, session.Status)
		c.clearInflight(job.FileId)
		return nil
	}

	// 上次合并成功但终态写入失败的重投会走到这里，产物已存在就不再重复拼接
	exists, err := c.deps.ChunkStorage.MergedExists(job.FileId)
	if err != nil {
		logx.Errorf("检查合并产物失败: fileId=%s, error=%v", job.FileId, err)
	} else if exists {
		logx.Infof("📦 Worker[%d] 合并产物已存在，直接推进终态: fileId=%s", workerID, job.FileId)
		return c.finishMerge(ctx, job, session, sessionstore.StatusCompleted)
	}

	logx.Infof("🔧 Worker[%d] 开始合并文件: fileId=%s, totalChunks=%d",
		workerID, job.FileId, session.TotalChunks)

	mergedPath, err := c.deps.ChunkStorage.Merge(job.FileId, session.TotalChunks)
	if err != nil {
		// 分片缺失或读取失败属于内容性失败，标记失败终态，不做重试
		logx.Errorf("❌ Worker[%d] 合并文件失败: fileId=%s, error=%v", workerID, job.FileId, err)
		return c.finishMerge(ctx, job, session, sessionstore.StatusFailed)
	}

	logx.Infof("📦 Worker[%d] 文件合并完成: fileId=%s, path=%s", workerID, job.FileId, mergedPath)
	return c.finishMerge(ctx, job, session, sessionstore.StatusCompleted)
}

// finishMerge 写入终态并做合并后的清理与事件推送
func (c *MergeConsumer) finishMerge(ctx context.Context, job *mergequeue.MergeJob, session *sessionstore.Session, target sessionstore.Status) error {
	if err := c.deps.SessionStore.SetStatus(ctx, job.FileId, target); err != nil {
		if errors.Is(err, sessionstore.ErrInvalidTransition) {
			// 状态已被并发推进到终态，按幂等处理
			logx.Infof("会话状态已被并发推进: fileId=%s, target=%s", job.FileId, target)
		} else {
			// 存储不可用，保留在途索引，交给重试与巡检任务
			return fmt.Errorf("写入会话终态失败: %w", err)
		}
	}

	// 成功与失败都清理分片目录，残留由巡检任务兜底
	if err := c.deps.ChunkStorage.RemoveChunks(job.FileId); err != nil {
		logx.Errorf("清理分片目录失败: fileId=%s, error=%v", job.FileId, err)
	}

	c.clearInflight(job.FileId)

	if err := c.deps.Publisher.PublishStatus(ctx, job.FileId, string(target), session.UploadedChunks, session.TotalChunks); err != nil {
		logx.Errorf("推送状态变更事件失败: fileId=%s, error=%v", job.FileId, err)
	}

	return nil
}

// ==================== 重试与死信 ====================

// retryMessage 延迟重试消息
func (c *MergeConsumer) retryMessage(job *mergequeue.MergeJob) {
	// 线性退避，Requeue 内部递增重试计数
	retryDelay := RetryDelayBase * time.Duration(job.RetryCount+1)

	go func() {
		time.Sleep(retryDelay)

		if err := c.deps.Producer.Requeue(context.Background(), job); err != nil {
			logx.Errorf("重试消息入队失败: messageId=%s, error=%v", job.MessageId, err)
			return
		}

		logx.Infof("🔄 合并任务重试: messageId=%s, fileId=%s, retryCount=%d",
			job.MessageId, job.FileId, job.RetryCount)
	}()
}

// moveToDeadLetterQueue 将消息移入死信队列
func (c *MergeConsumer) moveToDeadLetterQueue(messageData, reason string) {
	deadLetter := map[string]interface{}{
		"message":   messageData,
		"reason":    reason,
		"timestamp": time.Now().Unix(),
	}

	dlData, err := json.Marshal(deadLetter)
	if err != nil {
		logx.Errorf("序列化死信消息失败: %v", err)
		return
	}

	if _, err := c.deps.Redis.LpushCtx(context.Background(), mergequeue.MergeDeadLetterKey, string(dlData)); err != nil {
		logx.Errorf("写入死信队列失败: %v", err)
		return
	}

	logx.Errorf("💀 合并任务移入死信队列: reason=%s", reason)
}

// clearInflight 清理在途索引
func (c *MergeConsumer) clearInflight(fileId string) {
	if err := c.deps.Producer.ClearInflight(context.Background(), fileId); err != nil {
		logx.Errorf("清理在途索引失败: fileId=%s, error=%v", fileId, err)
	}
}
