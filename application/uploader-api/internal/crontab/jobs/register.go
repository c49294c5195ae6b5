package jobs

import (
	"context"

	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/crontab"
	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/svc"

	"github.com/zeromicro/go-zero/core/logx"
)

// getAllJobs 返回所有巡检任务，新增任务时在此处追加
func getAllJobs(svcCtx *svc.ServiceContext) []crontab.Job {
	return []crontab.Job{
		NewMergeRequeueJob(svcCtx),
		NewSessionSweepJob(svcCtx),
	}
}

// NewJanitorManager 创建巡检调度器并注册全部任务
func NewJanitorManager(svcCtx *svc.ServiceContext) (*crontab.Manager, error) {
	manager := crontab.NewManager(crontab.Config{}, svcCtx.Cache)

	for _, job := range getAllJobs(svcCtx) {
		if err := manager.Register(job); err != nil {
			return nil, err
		}
	}

	return manager, nil
}

// JanitorService 巡检服务包装
// 实现 service.Service 接口，接入 go-zero 的 ServiceGroup 生命周期管理
type JanitorService struct {
	manager *crontab.Manager
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewJanitorService 创建巡检服务
func NewJanitorService(svcCtx *svc.ServiceContext) (*JanitorService, error) {
	manager, err := NewJanitorManager(svcCtx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &JanitorService{
		manager: manager,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start 启动巡检调度，阻塞直到收到停止信号
func (s *JanitorService) Start() {
	logx.Infof("[JanitorService] 启动巡检任务调度器，任务数: %d", s.manager.JobCount())
	s.manager.Start()

	<-s.ctx.Done()
	logx.Info("[JanitorService] 收到停止信号")
}

// Stop 停止巡检调度
func (s *JanitorService) Stop() {
	logx.Info("[JanitorService] 正在停止巡检任务调度器...")
	s.cancel()
	s.manager.Stop()
	logx.Info("[JanitorService] 巡检任务调度器已停止")
}
