package config

import (
	"time"

	"github.com/zeromicro/go-zero/core/stores/redis"
	"github.com/zeromicro/go-zero/rest"
)

type Config struct {
	rest.RestConf
	Cache   redis.RedisConf
	Upload  UploadConfig
	Janitor JanitorConfig
}

// UploadConfig 分片上传存储配置
type UploadConfig struct {
	ChunkDir  string `json:",default=data/chunks"` // 分片暂存目录
	MergeDir  string `json:",default=data/merged"` // 合并产物目录
	ChunkSize int64  `json:",default=1048576"`     // 建议分片大小（字节），与客户端切片脚本约定
}

// JanitorConfig 巡检任务配置
type JanitorConfig struct {
	// 是否启用巡检任务
	Enabled bool `json:",default=true"`

	// 在途合并任务巡检表达式（秒级 cron）
	RequeueSpec string `json:",default=0 * * * * *"`

	// 孤儿分片清理表达式（秒级 cron）
	SweepSpec string `json:",default=0 */5 * * * *"`

	// 在途任务重投阈值，超过该时长未完结的合并任务会被重新入队
	StaleAfter time.Duration `json:",default=10m"`
}
