package crontab

import (
	"context"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"
)

// JanitorLockKeyFormat 巡检任务分布式锁 key
const JanitorLockKeyFormat = "upload:janitor:lock:%s"

// DistributedLock 分布式锁接口
// 用于多节点部署时保证任务不被重复执行
type DistributedLock interface {
	// TryLock 尝试获取锁
	// 参数：
	//   - ctx: 上下文
	//   - jobName: 任务名称，作为锁标识
	//   - ttl: 锁的过期时间，应大于任务的超时时间
	// 返回：
	//   - acquired: 是否获取到锁
	//   - release: 释放锁的函数，获取成功时非 nil
	//   - err: 获取过程中的错误
	TryLock(ctx context.Context, jobName string, ttl time.Duration) (acquired bool, release func(), err error)
}

// RedisDistributedLock 基于 Redis 的分布式锁实现
type RedisDistributedLock struct {
	client *redis.Redis
}

// NewRedisDistributedLock 创建 Redis 分布式锁
func NewRedisDistributedLock(client *redis.Redis) *RedisDistributedLock {
	return &RedisDistributedLock{
		client: client,
	}
}

// TryLock 尝试获取分布式锁
func (l *RedisDistributedLock) TryLock(ctx context.Context, jobName string, ttl time.Duration) (bool, func(), error) {
	key := fmt.Sprintf(JanitorLockKeyFormat, jobName)

	expireSeconds := int(ttl.Seconds())
	if expireSeconds <= 0 {
		expireSeconds = 60
	}

	lock := redis.NewRedisLock(l.client, key)
	// 必须在 Acquire 之前设置过期时间！
	lock.SetExpire(expireSeconds)

	acquired, err := lock.AcquireCtx(ctx)
	if err != nil {
		return false, nil, err
	}
	if !acquired {
		return false, nil, nil
	}

	release := func() {
		// 使用后台上下文释放，避免任务超时导致锁无法释放
		if _, err := lock.ReleaseCtx(context.Background()); err != nil {
			logx.Errorf("释放任务分布式锁失败: job=%s, error=%v", jobName, err)
		}
	}

	return true, release, nil
}
