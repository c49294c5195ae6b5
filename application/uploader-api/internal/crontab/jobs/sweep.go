package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/common/sessionstore"
	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/svc"
)

// SessionSweepJob 上传会话巡检
// 对照磁盘分片目录与会话元数据，修复中间态丢失：
//   - 会话不存在或已到终态的分片目录直接清理
//   - 分片已集齐但状态未推进的会话补触发合并
//   - 待合并但不在途的会话补投合并任务
//
// 同时清理超过保护期的合并临时文件
type SessionSweepJob struct {
	*BaseJob
}

// NewSessionSweepJob 创建会话巡检任务
func NewSessionSweepJob(svcCtx *svc.ServiceContext) *SessionSweepJob {
	return &SessionSweepJob{
		BaseJob: NewBaseJob(svcCtx, "上传会话巡检", svcCtx.Config.Janitor.SweepSpec,
			WithTimeout(5*time.Minute),
		),
	}
}

// Execute 执行巡检
func (j *SessionSweepJob) Execute(ctx context.Context) error {
	svcCtx := j.SvcCtx()

	if removed, err := svcCtx.ChunkStorage.RemoveStaleMergeTemps(svcCtx.Config.Janitor.StaleAfter); err != nil {
		j.Errorf("清理合并临时文件失败: %v", err)
	} else if removed > 0 {
		j.Infof("🧹 清理合并临时文件: count=%d", removed)
	}

	fileIds, err := svcCtx.ChunkStorage.ListChunkDirs()
	if err != nil {
		return err
	}

	for _, fileId := range fileIds {
		if err := j.sweepOne(ctx, fileId); err != nil {
			j.Errorf("巡检上传会话失败: fileId=%s, error=%v", fileId, err)
		}
	}

	return nil
}

// sweepOne 巡检单个分片目录
func (j *SessionSweepJob) sweepOne(ctx context.Context, fileId string) error {
	svcCtx := j.SvcCtx()

	session, err := svcCtx.SessionStore.GetSession(ctx, fileId)
	if err != nil {
		if errors.Is(err, sessionstore.ErrSessionNotFound) {
			// 分片目录没有对应会话，属于孤儿数据
			count, _ := svcCtx.ChunkStorage.ChunkCount(fileId)
			j.Infof("🧹 清理孤儿分片目录: fileId=%s, chunks=%d", fileId, count)
			return svcCtx.ChunkStorage.RemoveChunks(fileId)
		}
		return err
	}

	switch {
	case session.Status.IsTerminal():
		// 合并结束后分片目录残留，补清
		j.Infof("🧹 清理终态会话残留分片: fileId=%s, status=%s", fileId, session.Status)
		return svcCtx.ChunkStorage.RemoveChunks(fileId)

	case session.Status == sessionstore.StatusReadyToMerge:
		// 待合并但没有在途任务，说明入队丢失，补投
		inflight, err := svcCtx.MergeProducer.IsInflight(ctx, fileId)
		if err != nil {
			return err
		}
		if !inflight {
			if _, err := svcCtx.MergeProducer.Enqueue(ctx, fileId); err != nil {
				return err
			}
			j.Infof("🔄 补投丢失的合并任务: fileId=%s", fileId)
		}
		return nil

	case session.UploadedChunks == session.TotalChunks:
		// 分片已集齐但状态没推进，说明完成检测方在入队前中断，补触发
		if err := svcCtx.SessionStore.SetStatus(ctx, fileId, sessionstore.StatusReadyToMerge); err != nil {
			if errors.Is(err, sessionstore.ErrInvalidTransition) {
				// 已被并发推进，交给下一轮
				return nil
			}
			return err
		}
		if _, err := svcCtx.MergeProducer.Enqueue(ctx, fileId); err != nil {
			return err
		}
		j.Infof("🔄 补触发合并: fileId=%s", fileId)
		return nil
	}

	return nil
}
