package errorx

import (
	"errors"
	"fmt"
)

// CodeError 携带业务码的错误
// 业务码为 6 位数字，前三位即对外的 HTTP 状态码
type CodeError struct {
	code    uint32
	message string
}

func New(code uint32, message string) *CodeError {
	return &CodeError{
		code:    code,
		message: message,
	}
}

func Newf(code uint32, format string, a ...interface{}) *CodeError {
	return &CodeError{
		code:    code,
		message: fmt.Sprintf(format, a...),
	}
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("code: %d, message: %s", e.code, e.message)
}

func (e *CodeError) Code() uint32 {
	return e.code
}

func (e *CodeError) Message() string {
	return e.message
}

// CodeFromError 从任意错误中提取 CodeError
// 非 CodeError 一律归为服务器内部错误，错误信息透传给调用方
func CodeFromError(err error) *CodeError {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce
	}
	return New(CodeServer, err.Error())
}
