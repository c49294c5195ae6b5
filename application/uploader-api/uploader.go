package main

import (
	"flag"
	"fmt"

	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/config"
	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/consumer"
	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/crontab/jobs"
	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/handler"
	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/svc"
	"github.com/yanshicheng/upload-nova/common/handler/errorx"
	"github.com/yanshicheng/upload-nova/common/middleware"
	"github.com/yanshicheng/upload-nova/common/vars"

	"github.com/zeromicro/go-zero/core/conf"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/service"
	"github.com/zeromicro/go-zero/rest"
	"github.com/zeromicro/go-zero/rest/httpx"
)

var configFile = flag.String("f", "etc/uploader-api.yaml", "the config file")

func main() {
	flag.Parse()

	// ==================== 加载配置 ====================
	var c config.Config
	conf.MustLoad(*configFile, &c, conf.UseEnv())

	// ==================== 初始化服务上下文 ====================
	svcCtx := svc.NewServiceContext(c)
	defer svcCtx.Stop()

	// ==================== 初始化 HTTP 服务 ====================
	server := rest.MustNewServer(c.RestConf)

	// 全局 panic 兜底
	server.Use(middleware.PanicRecoveryMiddleware)

	// 统一错误响应格式
	httpx.SetErrorHandler(errorx.ErrHandler)

	handler.RegisterHandlers(server, svcCtx)

	// ==================== 初始化合并消费者 ====================
	mergeConsumer := consumer.NewMergeConsumer(&consumer.MergeConsumerDeps{
		Redis:        svcCtx.Cache,
		SessionStore: svcCtx.SessionStore,
		ChunkStorage: svcCtx.ChunkStorage,
		Producer:     svcCtx.MergeProducer,
		Publisher:    svcCtx.EventPublisher,
	})
	mergeService := consumer.NewMergeConsumerService(mergeConsumer)

	// ==================== 组装服务组 ====================
	group := service.NewServiceGroup()
	defer group.Stop()

	group.Add(server)
	group.Add(mergeService)

	// 巡检任务可按需关闭
	if c.Janitor.Enabled {
		janitorService, err := jobs.NewJanitorService(svcCtx)
		if err != nil {
			logx.Must(err)
		}
		group.Add(janitorService)
	}

	fmt.Printf("Starting %s uploader-api server (%s) at %s:%d...\n",
		vars.ProjectName, vars.ProjectVer, c.Host, c.Port)
	group.Start()
}
