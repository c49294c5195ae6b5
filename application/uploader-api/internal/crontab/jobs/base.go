package jobs

import (
	"context"
	"time"

	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/svc"

	"github.com/zeromicro/go-zero/core/logx"
)

// BaseJob 任务基类
// 提供通用的配置项与日志能力，具体任务内嵌它并实现 Execute
type BaseJob struct {
	logx.Logger
	ctx             context.Context
	svcCtx          *svc.ServiceContext
	name            string
	spec            string
	timeout         time.Duration
	retryCount      int
	retryDelay      time.Duration
	allowConcurrent bool
}

// Option 任务配置选项
type Option func(*BaseJob)

// WithTimeout 设置任务超时时间
func WithTimeout(timeout time.Duration) Option {
	return func(j *BaseJob) {
		j.timeout = timeout
	}
}

// WithRetry 设置失败重试次数与重试间隔（秒）
func WithRetry(count, delaySeconds int) Option {
	return func(j *BaseJob) {
		j.retryCount = count
		j.retryDelay = time.Duration(delaySeconds) * time.Second
	}
}

// WithAllowConcurrent 设置是否允许多节点并发执行
func WithAllowConcurrent(allow bool) Option {
	return func(j *BaseJob) {
		j.allowConcurrent = allow
	}
}

// NewBaseJob 创建任务基类
// 默认：超时 5 分钟、不重试、不允许并发
func NewBaseJob(svcCtx *svc.ServiceContext, name, spec string, opts ...Option) *BaseJob {
	ctx := context.Background()
	j := &BaseJob{
		Logger:          logx.WithContext(ctx),
		ctx:             ctx,
		svcCtx:          svcCtx,
		name:            name,
		spec:            spec,
		timeout:         5 * time.Minute,
		retryCount:      0,
		retryDelay:      5 * time.Second,
		allowConcurrent: false,
	}

	for _, opt := range opts {
		opt(j)
	}

	return j
}

// Name 任务名称
func (j *BaseJob) Name() string {
	return j.name
}

// Spec cron 表达式
func (j *BaseJob) Spec() string {
	return j.spec
}

// Timeout 超时时间
func (j *BaseJob) Timeout() time.Duration {
	return j.timeout
}

// RetryCount 重试次数
func (j *BaseJob) RetryCount() int {
	return j.retryCount
}

// RetryDelay 重试间隔
func (j *BaseJob) RetryDelay() time.Duration {
	return j.retryDelay
}

// AllowConcurrent 是否允许并发
func (j *BaseJob) AllowConcurrent() bool {
	return j.allowConcurrent
}

// SetContext 由调度器在执行前注入上下文
func (j *BaseJob) SetContext(ctx context.Context) {
	j.ctx = ctx
	j.Logger = logx.WithContext(ctx)
}

// Ctx 当前执行上下文
func (j *BaseJob) Ctx() context.Context {
	return j.ctx
}

// SvcCtx 服务上下文
func (j *BaseJob) SvcCtx() *svc.ServiceContext {
	return j.svcCtx
}
