package crontab

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeromicro/go-zero/core/stores/redis/redistest"
)

// stubJob 测试桩任务
type stubJob struct {
	name       string
	spec       string
	timeout    time.Duration
	retryCount int
	retryDelay time.Duration
	concurrent bool
	execute    func(ctx context.Context) error
}

func (j *stubJob) Name() string { return j.name }

func (j *stubJob) Spec() string { return j.spec }

func (j *stubJob) Execute(ctx context.Context) error { return j.execute(ctx) }

func (j *stubJob) Timeout() time.Duration { return j.timeout }

func (j *stubJob) RetryCount() int { return j.retryCount }

func (j *stubJob) RetryDelay() time.Duration { return j.retryDelay }

func (j *stubJob) AllowConcurrent() bool { return j.concurrent }

func newStubJob(name string, execute func(ctx context.Context) error) *stubJob {
	return &stubJob{
		name:       name,
		spec:       "0 * * * * *",
		timeout:    time.Minute,
		retryDelay: time.Millisecond,
		execute:    execute,
	}
}

func newTestManager(t *testing.T) *Manager {
	return NewManager(Config{NodeID: "test-node"}, redistest.CreateRedis(t))
}

func TestManagerRegister(t *testing.T) {
	m := newTestManager(t)

	job := newStubJob("job-a", func(ctx context.Context) error { return nil })
	require.NoError(t, m.Register(job))
	assert.Equal(t, 1, m.JobCount())

	// 同名任务不允许重复注册
	err := m.Register(newStubJob("job-a", func(ctx context.Context) error { return nil }))
	assert.Error(t, err)

	// 非法 cron 表达式
	bad := newStubJob("job-b", func(ctx context.Context) error { return nil })
	bad.spec = "not-a-cron-spec"
	assert.Error(t, m.Register(bad))
}

func TestExecuteJobRunsAndReleasesLock(t *testing.T) {
	m := newTestManager(t)

	var calls int32
	job := newStubJob("run-job", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	m.executeJob(job)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	// 锁已释放，能再次执行
	m.executeJob(job)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestExecuteJobSkipsWhenLockHeld(t *testing.T) {
	rdb := redistest.CreateRedis(t)
	m := NewManager(Config{NodeID: "node-a"}, rdb)

	var calls int32
	job := newStubJob("locked-job", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	// 模拟另一个节点持有锁
	locker := NewRedisDistributedLock(rdb)
	acquired, release, err := locker.TryLock(context.Background(), job.Name(), time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)
	defer release()

	m.executeJob(job)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestExecuteJobAllowConcurrent(t *testing.T) {
	rdb := redistest.CreateRedis(t)
	m := NewManager(Config{}, rdb)

	var calls int32
	job := newStubJob("concurrent-job", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	job.concurrent = true

	// 允许并发的任务不抢锁，即使锁被占也照常执行
	locker := NewRedisDistributedLock(rdb)
	acquired, release, err := locker.TryLock(context.Background(), job.Name(), time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)
	defer release()

	m.executeJob(job)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestExecuteJobRetries(t *testing.T) {
	m := newTestManager(t)

	var calls int32
	job := newStubJob("retry-job", func(ctx context.Context) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("暂时失败")
		}
		return nil
	})
	job.retryCount = 3

	m.executeJob(job)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestExecuteJobRecoversFromPanic(t *testing.T) {
	m := newTestManager(t)

	var calls int32
	job := newStubJob("panic-job", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		panic("boom")
	})

	// panic 被吞掉并按失败处理，不会把进程带崩
	m.executeJob(job)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
