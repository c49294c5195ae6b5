package vars

// 项目版本信息
const (
	ProjectName = "UploadNova"
	ProjectVer  = "v0.0.1"
)

// 上传会话相关的全局约定
const (
	// DefaultChunkSize 建议客户端使用的分片大小（字节），服务端不强制，
	// 与配置项 Upload.ChunkSize 的默认值保持一致
	DefaultChunkSize = 1024 * 1024
)
