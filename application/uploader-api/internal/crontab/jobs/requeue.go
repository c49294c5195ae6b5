package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/common/sessionstore"
	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/svc"
)

// MergeRequeueJob 超时合并任务重投
// 扫描在途索引中停留超过保护期的合并任务：
// 会话仍处于待合并状态的重新入队，已到终态或已消失的清掉在途记录
type MergeRequeueJob struct {
	*BaseJob
}

// NewMergeRequeueJob 创建合并任务重投任务
func NewMergeRequeueJob(svcCtx *svc.ServiceContext) *MergeRequeueJob {
	return &MergeRequeueJob{
		BaseJob: NewBaseJob(svcCtx, "合并任务重投", svcCtx.Config.Janitor.RequeueSpec,
			WithTimeout(2*time.Minute),
		),
	}
}

// Execute 执行重投
func (j *MergeRequeueJob) Execute(ctx context.Context) error {
	svcCtx := j.SvcCtx()

	staleJobs, err := svcCtx.MergeProducer.StaleInflight(ctx, svcCtx.Config.Janitor.StaleAfter)
	if err != nil {
		return err
	}
	if len(staleJobs) == 0 {
		return nil
	}

	j.Infof("发现超时在途合并任务: count=%d", len(staleJobs))

	for _, staleJob := range staleJobs {
		session, err := svcCtx.SessionStore.GetSession(ctx, staleJob.FileId)
		if err != nil {
			if errors.Is(err, sessionstore.ErrSessionNotFound) {
				// 会话元数据已不存在，在途记录属于孤儿，清理
				j.clearInflight(ctx, staleJob.FileId)
				continue
			}
			j.Errorf("查询上传会话失败: fileId=%s, error=%v", staleJob.FileId, err)
			continue
		}

		switch {
		case session.Status == sessionstore.StatusReadyToMerge:
			if err := svcCtx.MergeProducer.Requeue(ctx, staleJob); err != nil {
				j.Errorf("重投合并任务失败: fileId=%s, error=%v", staleJob.FileId, err)
				continue
			}
			j.Infof("🔄 超时合并任务已重投: fileId=%s, retryCount=%d",
				staleJob.FileId, staleJob.RetryCount)
		case session.Status.IsTerminal():
			// 合并已结束但在途记录没清干净，补清
			j.clearInflight(ctx, staleJob.FileId)
		default:
			// 未到待合并状态却有在途记录，属于脏数据
			j.Infof("清理状态异常的在途记录: fileId=%s, status=%s", staleJob.FileId, session.Status)
			j.clearInflight(ctx, staleJob.FileId)
		}
	}

	return nil
}

func (j *MergeRequeueJob) clearInflight(ctx context.Context, fileId string) {
	if err := j.SvcCtx().MergeProducer.ClearInflight(ctx, fileId); err != nil {
		j.Errorf("清理在途索引失败: fileId=%s, error=%v", fileId, err)
	}
}
