package errorx

// 业务错误码定义
// 约定：前三位是 HTTP 状态码，后三位是业务序号
const (
	// CodeServer 未分类的服务器内部错误
	CodeServer uint32 = 500000

	// CodeInvalidArgument 请求参数不合法（如 total_chunks <= 0）
	CodeInvalidArgument uint32 = 400001
	// CodeChunkOutOfRange 分片序号越界
	CodeChunkOutOfRange uint32 = 400002
	// CodeValidate 请求体校验失败
	CodeValidate uint32 = 400020

	// CodeSessionNotFound 上传会话不存在
	CodeSessionNotFound uint32 = 404001

	// CodeStorageError 本地磁盘读写失败，客户端可重传同一分片
	CodeStorageError uint32 = 500001
	// CodeInvalidState 非法状态流转，属内部异常
	CodeInvalidState uint32 = 500002
	// CodeMergeFailed 文件合并已失败
	CodeMergeFailed uint32 = 500003

	// CodeBackendUnavailable 元数据存储不可达
	CodeBackendUnavailable uint32 = 503001
)

// HTTPStatus 根据业务码推导 HTTP 状态码
func HTTPStatus(code uint32) int {
	status := int(code / 1000)
	if status < 100 || status > 599 {
		return 500
	}
	return status
}
