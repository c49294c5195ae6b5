package upload

import (
	"context"
	"fmt"

	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/common/sessionstore"
	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/common/wsutil"
	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/svc"
	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/types"
	"github.com/zeromicro/go-zero/core/logx"
)

type FileEventsLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
	ws     *wsutil.WSConnection
}

// 订阅上传事件推送
func NewFileEventsLogic(ctx context.Context, svcCtx *svc.ServiceContext, ws *wsutil.WSConnection) *FileEventsLogic {
	return &FileEventsLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
		ws:     ws,
	}
}

func (l *FileEventsLogic) FileEvents(req *types.FileEventsReq) error {
	// 校验会话存在，避免为无效 file_id 挂起连接
	session, err := l.svcCtx.SessionStore.GetSession(l.ctx, req.FileId)
	if err != nil {
		l.Errorf("查询上传会话失败: fileId=%s, error=%v", req.FileId, err)
		return sessionError(err)
	}

	l.Infof("上传事件订阅建立: fileId=%s, status=%s", req.FileId, session.Status)

	l.svcCtx.UploadEventHub.Register(req.FileId, l.ws)
	defer l.svcCtx.UploadEventHub.Unregister(req.FileId, l.ws)

	if err := l.sendInitialSnapshot(session); err != nil {
		l.Errorf("发送会话快照失败: fileId=%s, error=%v", req.FileId, err)
		return err
	}

	l.handleClientMessages(req.FileId)

	l.Infof("上传事件订阅关闭: fileId=%s", req.FileId)

	return nil
}

// sendInitialSnapshot 连接建立后立即下发一次会话快照，
// 让客户端不依赖下一条事件就能渲染当前进度
func (l *FileEventsLogic) sendInitialSnapshot(session *sessionstore.Session) error {
	snapshot := map[string]interface{}{
		"file_id":         session.FileId,
		"status":          string(session.Status),
		"total_chunks":    session.TotalChunks,
		"uploaded_chunks": session.UploadedChunks,
	}

	if err := l.ws.SendMessage(wsutil.TypeInitial, snapshot); err != nil {
		return fmt.Errorf("发送初始快照失败: %v", err)
	}

	return nil
}

func (l *FileEventsLogic) handleClientMessages(fileId string) {
	for {
		if l.ws.IsClosed() {
			return
		}

		var msg wsutil.WSMessage
		if err := l.ws.ReadJSON(&msg); err != nil {
			if !l.ws.IsClosed() && !l.ws.IsClientClosed() {
				l.Errorf("读取客户端消息失败: fileId=%s, error=%v", fileId, err)
			}
			return
		}

		switch msg.Type {
		case "ping":
			if err := l.ws.SendMessage("pong", nil); err != nil {
				l.Errorf("发送 pong 失败: fileId=%s, error=%v", fileId, err)
				return
			}

		case "pong":
			l.Debugf("收到客户端 pong: fileId=%s", fileId)

		default:
			l.Infof("收到客户端消息: fileId=%s, type=%s", fileId, msg.Type)
		}
	}
}
