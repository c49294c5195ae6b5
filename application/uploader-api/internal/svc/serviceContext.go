package svc

import (
	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/common/chunkfs"
	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/common/sessionstore"
	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/common/uploadevent"
	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/config"
	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/mergequeue"
	"github.com/yanshicheng/upload-nova/common/vars"
	"github.com/yanshicheng/upload-nova/common/verify"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"
)

type ServiceContext struct {
	Config         config.Config
	Cache          *redis.Redis
	Validator      *verify.ValidatorInstance
	SessionStore   *sessionstore.Store
	ChunkStorage   *chunkfs.Storage
	MergeProducer  *mergequeue.Producer
	EventPublisher *uploadevent.Publisher
	UploadEventHub *UploadEventHub
}

func NewServiceContext(c config.Config) *ServiceContext {
	validator, err := verify.InitValidator(verify.LocaleZH)
	if err != nil {
		panic(err)
	}

	// 创建 Redis 客户端（共享）
	cacheClient := redis.MustNewRedis(c.Cache)

	if c.Upload.ChunkSize <= 0 {
		c.Upload.ChunkSize = vars.DefaultChunkSize
	}

	storage, err := chunkfs.NewStorage(c.Upload.ChunkDir, c.Upload.MergeDir)
	if err != nil {
		panic(err)
	}

	// 初始化并启动上传事件 Hub
	eventHub := NewUploadEventHub(cacheClient)
	eventHub.Start()

	logx.Info("上传事件 WebSocket Hub 已启动")

	return &ServiceContext{
		Config:         c,
		Cache:          cacheClient,
		Validator:      validator,
		SessionStore:   sessionstore.NewStore(cacheClient),
		ChunkStorage:   storage,
		MergeProducer:  mergequeue.NewProducer(cacheClient),
		EventPublisher: uploadevent.NewPublisher(cacheClient),
		UploadEventHub: eventHub,
	}
}

// Stop 停止 ServiceContext 中的资源
// 在 main.go 中调用: defer svcCtx.Stop()
func (s *ServiceContext) Stop() {
	if s.UploadEventHub != nil {
		s.UploadEventHub.Stop()
	}
}
