package errorx

import (
	"github.com/yanshicheng/upload-nova/common/handler/errorx/types"
)

func ErrHandler(err error) (int, any) {
	code := CodeFromError(err)
	return HTTPStatus(code.Code()), types.Status{
		Code:    int32(code.Code()),
		Message: code.Message(),
	}
}
