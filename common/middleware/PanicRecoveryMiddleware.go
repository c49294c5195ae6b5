package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/yanshicheng/upload-nova/common/handler/errorx"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/rest/httpx"
)

// PanicRecoveryMiddleware 全局兜底，捕获 handler 里的 panic 并返回统一错误
func PanicRecoveryMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if result := recover(); result != nil {
				logx.WithContext(r.Context()).Errorf("接口 panic: %v\n%s", result, debug.Stack())
				httpx.ErrorCtx(r.Context(), w, errorx.New(errorx.CodeServer, "服务器内部错误"))
			}
		}()
		next(w, r)
	}
}
