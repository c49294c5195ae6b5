package upload

import (
	"context"
	"errors"

	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/common/sessionstore"
	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/svc"
	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/types"
	"github.com/zeromicro/go-zero/core/logx"
)

type FileStatusLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

// 查询上传进度
func NewFileStatusLogic(ctx context.Context, svcCtx *svc.ServiceContext) *FileStatusLogic {
	return &FileStatusLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *FileStatusLogic) FileStatus(req *types.FileStatusReq) (resp *types.FileStatusResp, err error) {
	session, err := l.svcCtx.SessionStore.GetSession(l.ctx, req.FileId)
	if err != nil {
		if errors.Is(err, sessionstore.ErrSessionNotFound) {
			l.Infof("查询不存在的上传会话: fileId=%s", req.FileId)
		} else {
			l.Errorf("查询上传会话失败: fileId=%s, error=%v", req.FileId, err)
		}
		return nil, sessionError(err)
	}

	return &types.FileStatusResp{
		FileId:         session.FileId,
		Status:         string(session.Status),
		TotalChunks:    session.TotalChunks,
		UploadedChunks: session.UploadedChunks,
	}, nil
}
