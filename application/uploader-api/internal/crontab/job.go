package crontab

import (
	"context"
	"time"
)

// Job 定时任务接口
// 所有定时任务都需要实现此接口
type Job interface {
	// Name 任务名称，全局唯一，同时作为分布式锁的标识
	Name() string

	// Spec cron 表达式（秒级，6 位）
	// 例如: "0 * * * * *" 表示每分钟执行
	Spec() string

	// Execute 执行任务
	// 参数：
	//   - ctx: 带超时控制的上下文
	// 返回：
	//   - error: 执行失败时返回错误，由调度器按重试配置处理
	Execute(ctx context.Context) error

	// Timeout 单次执行的超时时间
	Timeout() time.Duration

	// RetryCount 失败后的最大重试次数，0 表示不重试
	RetryCount() int

	// RetryDelay 两次重试之间的间隔
	RetryDelay() time.Duration

	// AllowConcurrent 是否允许多节点并发执行
	// 为 false 时通过分布式锁保证同一时刻只有一个节点执行
	AllowConcurrent() bool
}
