package sessionstore

import "errors"

// Status 上传会话状态，只允许沿固定方向流转：
// Initialized -> InProgress -> ReadyToMerge -> Completed/Failed
type Status string

const (
	StatusInitialized  Status = "Initialized"
	StatusInProgress   Status = "InProgress"
	StatusReadyToMerge Status = "ReadyToMerge"
	StatusCompleted    Status = "Completed"
	StatusFailed       Status = "Failed"
)

// IsTerminal 判断是否终态，终态会话不再参与合并调度
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsValid 判断是否合法状态值
func (s Status) IsValid() bool {
	switch s {
	case StatusInitialized, StatusInProgress, StatusReadyToMerge, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Session 上传会话快照
type Session struct {
	FileId         string `json:"file_id"`
	TotalChunks    int64  `json:"total_chunks"`
	UploadedChunks int64  `json:"uploaded_chunks"`
	Status         Status `json:"status"`
	CreatedAt      int64  `json:"created_at"`
	UpdatedAt      int64  `json:"updated_at"`
}

// 存储层哨兵错误，调用方用 errors.Is 判断
var (
	ErrSessionNotFound    = errors.New("上传会话不存在")
	ErrChunkOutOfRange    = errors.New("分片序号越界")
	ErrInvalidArgument    = errors.New("参数不合法")
	ErrInvalidTransition  = errors.New("非法状态流转")
	ErrBackendUnavailable = errors.New("元数据存储不可用")
)
