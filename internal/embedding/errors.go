package embedding

import "fmt"

// EmbeddingError 嵌入错误类型
type EmbeddingError struct {
	Code    int    // 错误码
	Message string // 错误消息
}

// Error 实现error接口
func (e EmbeddingError) Error() string {
	return fmt.Sprintf("embedding error (code=%d): %s", e.Code, e.Message)
}

// 错误码常量
const (
	ErrCodeInvalidAPIKey  = 1001 // 无效的API密钥
	ErrCodeInvalidRequest = 1002 // 无效的请求
	ErrCodeNetworkError   = 1003 // 网络连接错误
	ErrCodeRateLimited    = 1004 // 请求频率超限
	ErrCodeServerError    = 1005 // 服务器错误
	ErrCodeTimeout        = 1006 // 请求超时
	ErrCodeEmptyInput     = 1007 // 输入为空
	ErrCodeBadResponse    = 1008 // 响应格式异常
)

// 常用错误实例
var (
	// ErrEmptyText 输入文本为空
	ErrEmptyText = NewEmbeddingError(ErrCodeEmptyInput, "input text cannot be empty")
	// ErrRateLimited 超出服务方限流阈值且重试耗尽
	ErrRateLimited = NewEmbeddingError(ErrCodeRateLimited, "too many requests, rate limit exceeded")
	// ErrBatchTooLarge 单次请求的文本数超出限制
	ErrBatchTooLarge = NewEmbeddingError(ErrCodeInvalidRequest, "batch size exceeds configured limit")
)

// NewEmbeddingError 创建新的嵌入错误
func NewEmbeddingError(code int, message string) EmbeddingError {
	return EmbeddingError{
		Code:    code,
		Message: message,
	}
}
