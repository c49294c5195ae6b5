package crontab

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"
)

const (
	// LockTTLMultiplier 锁过期时间相对任务超时的倍率，留出执行余量
	LockTTLMultiplier = 1.5

	// StopTimeout 停止时等待在执行任务结束的最长时间
	StopTimeout = 30 * time.Second
)

// Config 调度器配置
type Config struct {
	NodeID   string         // 节点标识，默认 hostname-pid
	Location *time.Location // 时区，默认 time.Local
}

// Manager 定时任务调度管理器
// 负责任务注册、cron 调度、分布式锁与重试
type Manager struct {
	cron    *cron.Cron
	locker  DistributedLock
	nodeID  string
	mu      sync.Mutex
	jobs    map[string]cron.EntryID
	started bool
}

// NewManager 创建调度管理器
func NewManager(cfg Config, rds *redis.Redis) *Manager {
	nodeID := cfg.NodeID
	if nodeID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		nodeID = fmt.Sprintf("%s-%d", hostname, os.Getpid())
	}

	location := cfg.Location
	if location == nil {
		location = time.Local
	}

	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(location),
		cron.WithChain(cron.Recover(cron.DefaultLogger)),
	)

	return &Manager{
		cron:   c,
		locker: NewRedisDistributedLock(rds),
		nodeID: nodeID,
		jobs:   make(map[string]cron.EntryID),
	}
}

// Register 注册定时任务
func (m *Manager) Register(job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[job.Name()]; exists {
		return fmt.Errorf("任务重复注册: %s", job.Name())
	}

	entryID, err := m.cron.AddFunc(job.Spec(), func() {
		m.executeJob(job)
	})
	if err != nil {
		return fmt.Errorf("注册任务失败: %s, %w", job.Name(), err)
	}

	m.jobs[job.Name()] = entryID
	logx.Infof("📋 注册定时任务: name=%s, spec=%s", job.Name(), job.Spec())
	return nil
}

// JobCount 已注册的任务数量
func (m *Manager) JobCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

// Start 启动调度器
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true

	m.cron.Start()
	logx.Infof("🚀 定时任务调度器启动: nodeID=%s, 任务数=%d", m.nodeID, len(m.jobs))
}

// Stop 停止调度器，等待在执行的任务结束
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	m.mu.Unlock()

	logx.Info("🛑 正在停止定时任务调度器...")

	stopCtx := m.cron.Stop()
	select {
	case <-stopCtx.Done():
		logx.Info("✅ 定时任务调度器已停止")
	case <-time.After(StopTimeout):
		logx.Error("⚠️  定时任务调度器停止超时，仍有任务在执行")
	}
}

// executeJob 执行单个任务：抢锁、超时控制、重试
func (m *Manager) executeJob(job Job) {
	ctx := context.Background()

	if !job.AllowConcurrent() {
		// 锁的过期时间大于任务超时，持有者崩溃后由过期兜底释放
		lockTTL := time.Duration(float64(job.Timeout()) * LockTTLMultiplier)
		acquired, release, err := m.locker.TryLock(ctx, job.Name(), lockTTL)
		if err != nil {
			logx.Errorf("❌ 获取任务锁失败: job=%s, error=%v", job.Name(), err)
			return
		}
		if !acquired {
			logx.Infof("⏭️  任务跳过（其他节点执行中）: job=%s", job.Name())
			return
		}
		defer release()
	}

	execCtx, cancel := context.WithTimeout(ctx, job.Timeout())
	defer cancel()

	// 注入上下文，任务内部的日志携带链路信息
	if setter, ok := job.(interface{ SetContext(context.Context) }); ok {
		setter.SetContext(execCtx)
	}

	startTime := time.Now()
	var err error
	maxRetries := job.RetryCount()

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			logx.Infof("🔄 任务重试: job=%s, attempt=%d/%d", job.Name(), attempt, maxRetries)
			time.Sleep(job.RetryDelay())
		}

		err = m.safeExecute(execCtx, job)
		if err == nil {
			break
		}

		logx.Errorf("❌ 任务执行失败: job=%s, attempt=%d, error=%v", job.Name(), attempt, err)
	}

	elapsed := time.Since(startTime)
	if err != nil {
		logx.Errorf("💀 任务最终失败: job=%s, node=%s, 耗时=%dms, error=%v",
			job.Name(), m.nodeID, elapsed.Milliseconds(), err)
		return
	}

	logx.Infof("✅ 任务执行完成: job=%s, node=%s, 耗时=%dms",
		job.Name(), m.nodeID, elapsed.Milliseconds())
}

// safeExecute 带 panic 保护的执行
func (m *Manager) safeExecute(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("任务发生 panic: %v", r)
		}
	}()
	return job.Execute(ctx)
}
