package upload

import (
	"context"
	"errors"
	"net/http"

	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/common/sessionstore"
	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/svc"
	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/types"
	"github.com/yanshicheng/upload-nova/common/handler/errorx"
	"github.com/zeromicro/go-zero/core/logx"
)

type CreateChunkLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
	r      *http.Request
}

// 接收单个分片
func NewCreateChunkLogic(ctx context.Context, svcCtx *svc.ServiceContext, r *http.Request) *CreateChunkLogic {
	return &CreateChunkLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
		r:      r,
	}
}

func (l *CreateChunkLogic) CreateChunk(req *types.CreateChunkReq) (resp *types.CreateChunkResp, err error) {
	// 1. 预检会话状态
	session, err := l.svcCtx.SessionStore.GetSession(l.ctx, req.FileId)
	if err != nil {
		l.Errorf("查询上传会话失败: fileId=%s, error=%v", req.FileId, err)
		return nil, sessionError(err)
	}

	switch session.Status {
	case sessionstore.StatusFailed:
		// 合并已失败，把失败回传给调用方而不是静默收下分片
		l.Errorf("会话已标记失败，拒绝分片: fileId=%s, chunkId=%d", req.FileId, req.ChunkId)
		return nil, errorx.New(errorx.CodeMergeFailed, "文件合并失败，请重新发起上传")
	case sessionstore.StatusCompleted, sessionstore.StatusReadyToMerge:
		// 迟到的重复分片，幂等接受但不再落盘
		l.Infof("会话已进入合并阶段，忽略迟到分片: fileId=%s, chunkId=%d, status=%s",
			req.FileId, req.ChunkId, session.Status)
		return &types.CreateChunkResp{
			FileId:         req.FileId,
			UploadedChunks: session.UploadedChunks,
		}, nil
	}

	// 2. 序号范围先行检查，越界分片不落盘
	if req.ChunkId < 0 || req.ChunkId >= session.TotalChunks {
		l.Errorf("分片序号越界: fileId=%s, chunkId=%d, totalChunks=%d",
			req.FileId, req.ChunkId, session.TotalChunks)
		return nil, errorx.New(errorx.CodeChunkOutOfRange, "分片序号超出范围")
	}

	// 3. 读取分片内容
	file, _, err := l.r.FormFile("file")
	if err != nil {
		l.Errorf("获取上传分片失败: fileId=%s, chunkId=%d, error=%v", req.FileId, req.ChunkId, err)
		return nil, errorx.New(errorx.CodeInvalidArgument, "缺少 file 文件字段")
	}
	defer file.Close()

	// 4. 分片落盘，写失败不触碰元数据，客户端重试即可
	size, err := l.svcCtx.ChunkStorage.WriteChunk(req.FileId, req.ChunkId, file)
	if err != nil {
		l.Errorf("分片写入失败: fileId=%s, chunkId=%d, error=%v", req.FileId, req.ChunkId, err)
		return nil, errorx.New(errorx.CodeStorageError, "分片存储失败")
	}

	// 5. 记录分片元数据，集合去重，重复分片不增加计数
	count, status, err := l.svcCtx.SessionStore.RecordChunk(l.ctx, req.FileId, req.ChunkId)
	if err != nil {
		l.Errorf("记录分片失败: fileId=%s, chunkId=%d, error=%v", req.FileId, req.ChunkId, err)
		return nil, sessionError(err)
	}

	l.Infof("分片已接收: fileId=%s, chunkId=%d, size=%d, progress=%d/%d",
		req.FileId, req.ChunkId, size, count, session.TotalChunks)

	// 进度推送尽力而为，失败不影响上传
	if err := l.svcCtx.EventPublisher.PublishProgress(l.ctx, req.FileId, string(status), count, session.TotalChunks); err != nil {
		l.Errorf("推送进度事件失败: fileId=%s, error=%v", req.FileId, err)
	}

	// 6. 分片集齐后竞争进入合并阶段
	if count == session.TotalChunks {
		l.triggerMerge(req.FileId, count, session.TotalChunks)
	}

	return &types.CreateChunkResp{
		FileId:         req.FileId,
		UploadedChunks: count,
	}, nil
}

// triggerMerge 状态 CAS 推进到 ReadyToMerge，胜者投递唯一一条合并任务
func (l *CreateChunkLogic) triggerMerge(fileId string, count, total int64) {
	err := l.svcCtx.SessionStore.SetStatus(l.ctx, fileId, sessionstore.StatusReadyToMerge)
	if err != nil {
		if errors.Is(err, sessionstore.ErrInvalidTransition) {
			// 另一个并发请求已经抢先触发合并
			l.Infof("合并已由并发请求触发: fileId=%s", fileId)
			return
		}
		l.Errorf("推进 ReadyToMerge 失败: fileId=%s, error=%v", fileId, err)
		return
	}

	job, err := l.svcCtx.MergeProducer.Enqueue(l.ctx, fileId)
	if err != nil {
		// 状态已是 ReadyToMerge，入队失败交由巡检任务补投
		l.Errorf("合并任务入队失败: fileId=%s, error=%v", fileId, err)
		return
	}

	l.Infof("合并任务已入队: fileId=%s, messageId=%s", fileId, job.MessageId)

	if err := l.svcCtx.EventPublisher.PublishStatus(l.ctx, fileId,
		string(sessionstore.StatusReadyToMerge), count, total); err != nil {
		l.Errorf("推送状态事件失败: fileId=%s, error=%v", fileId, err)
	}
}
