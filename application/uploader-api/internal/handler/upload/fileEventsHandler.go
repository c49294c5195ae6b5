package upload

import (
	"net/http"
	"time"

	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/common/wsutil"
	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/logic/upload"
	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/svc"
	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/types"
	"github.com/yanshicheng/upload-nova/common/handler/errorx"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/rest/httpx"
)

// 订阅上传事件（WebSocket）
func FileEventsHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.FileEventsReq
		if err := httpx.Parse(r, &req); err != nil {
			logx.Errorf("解析请求失败: %v", err)
			httpx.ErrorCtx(r.Context(), w, errorx.New(errorx.CodeInvalidArgument, err.Error()))
			return
		}

		ws, err := wsutil.UpgradeWebSocket(w, r)
		if err != nil {
			logx.Errorf("WebSocket 升级失败: %v", err)
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}

		defer func() {
			if !ws.IsClosed() {
				ws.Close()
			}
		}()

		ws.StartPingPong(30 * time.Second)

		l := upload.NewFileEventsLogic(r.Context(), svcCtx, ws)

		if err := l.FileEvents(&req); err != nil {
			if !ws.IsClosed() && !ws.IsClientClosed() {
				logx.Errorf("上传事件订阅处理错误: %v", err)
				ws.SendError(err)
			}
		}
	}
}
