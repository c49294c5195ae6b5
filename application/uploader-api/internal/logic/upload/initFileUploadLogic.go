package upload

import (
	"context"

	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/svc"
	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/types"
	"github.com/zeromicro/go-zero/core/logx"
)

type InitFileUploadLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

// 初始化分片上传会话
func NewInitFileUploadLogic(ctx context.Context, svcCtx *svc.ServiceContext) *InitFileUploadLogic {
	return &InitFileUploadLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *InitFileUploadLogic) InitFileUpload(req *types.InitFileUploadReq) (resp *types.InitFileUploadResp, err error) {
	session, err := l.svcCtx.SessionStore.CreateSession(l.ctx, req.TotalChunks)
	if err != nil {
		l.Errorf("创建上传会话失败: totalChunks=%d, error=%v", req.TotalChunks, err)
		return nil, sessionError(err)
	}

	l.Infof("上传会话已创建: fileId=%s, totalChunks=%d", session.FileId, session.TotalChunks)

	return &types.InitFileUploadResp{
		FileId:      session.FileId,
		TotalChunks: session.TotalChunks,
		Status:      string(session.Status),
	}, nil
}
