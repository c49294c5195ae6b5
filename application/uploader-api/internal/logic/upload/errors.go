package upload

import (
	"errors"

	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/common/sessionstore"
	"github.com/yanshicheng/upload-nova/common/handler/errorx"
)

// sessionError 将会话存储的哨兵错误翻译为带业务码的对外错误
func sessionError(err error) error {
	switch {
	case errors.Is(err, sessionstore.ErrSessionNotFound):
		return errorx.New(errorx.CodeSessionNotFound, "上传会话不存在")
	case errors.Is(err, sessionstore.ErrChunkOutOfRange):
		return errorx.New(errorx.CodeChunkOutOfRange, "分片序号超出范围")
	case errors.Is(err, sessionstore.ErrInvalidArgument):
		return errorx.New(errorx.CodeInvalidArgument, "参数不合法")
	case errors.Is(err, sessionstore.ErrBackendUnavailable):
		return errorx.New(errorx.CodeBackendUnavailable, "存储后端暂不可用")
	default:
		return errorx.New(errorx.CodeServer, "服务器内部错误")
	}
}
