package types

// Status 统一错误响应体
type Status struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
}
