package llm

// MessageRole 消息角色类型
type MessageRole string

const (
	// RoleSystem 系统角色
	RoleSystem MessageRole = "system"
	// RoleUser 用户角色
	RoleUser MessageRole = "user"
	// RoleAssistant 助手角色
	RoleAssistant MessageRole = "assistant"
)

// Message 对话消息结构
type Message struct {
	Role    MessageRole `json:"role"`    // 角色
	Content string      `json:"content"` // 内容
}

// Usage 资源使用情况
type Usage struct {
	InputTokens  int `json:"input_tokens"`  // 输入token数
	OutputTokens int `json:"output_tokens"` // 输出token数
	TotalTokens  int `json:"total_tokens"`  // 总token数
}

// Response 大模型生成结果
type Response struct {
	Text         string `json:"text"`          // 生成的文本
	FinishReason string `json:"finish_reason"` // 结束原因
	ModelName    string `json:"model_name"`    // 实际使用的模型
	Usage        Usage  `json:"usage"`         // 资源使用情况
}

// tongyiRequest 通义千问请求结构
type tongyiRequest struct {
	Model      string              `json:"model"`
	Input      *tongyiRequestInput `json:"input"`
	Parameters *tongyiParameters   `json:"parameters,omitempty"`
}

// tongyiRequestInput 请求输入内容
type tongyiRequestInput struct {
	Messages []Message `json:"messages"`
}

// tongyiParameters 请求参数
type tongyiParameters struct {
	Temperature  *float32 `json:"temperature,omitempty"`
	TopP         *float32 `json:"top_p,omitempty"`
	MaxTokens    *int     `json:"max_tokens,omitempty"`
	ResultFormat string   `json:"result_format,omitempty"`
}

// tongyiResponse 通义千问响应结构
type tongyiResponse struct {
	RequestID string       `json:"request_id"`
	Code      string       `json:"code"`
	Message   string       `json:"message"`
	Output    tongyiOutput `json:"output"`
	Usage     tongyiUsage  `json:"usage"`
}

// tongyiOutput 输出结构
type tongyiOutput struct {
	Text         *string        `json:"text"`
	FinishReason *string        `json:"finish_reason"`
	Choices      []tongyiChoice `json:"choices"`
}

// tongyiChoice 输出选择
type tongyiChoice struct {
	FinishReason string  `json:"finish_reason"`
	Message      Message `json:"message"`
}

// tongyiUsage 资源使用情况
type tongyiUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}
