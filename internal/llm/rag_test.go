package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLLMClient 用于测试的假大模型客户端
// 将收到的完整提示词回显为回答，便于验证组装结果
type fakeLLMClient struct {
	lastPrompt string
	reply      string
	err        error
}

func (c *fakeLLMClient) Generate(ctx context.Context, prompt string, options ...GenerateOption) (*Response, error) {
	c.lastPrompt = prompt
	if c.err != nil {
		return nil, c.err
	}
	reply := c.reply
	if reply == "" {
		reply = prompt
	}
	return &Response{Text: reply, ModelName: "fake"}, nil
}

func (c *fakeLLMClient) Chat(ctx context.Context, messages []Message, options ...GenerateOption) (*Response, error) {
	if len(messages) == 0 {
		return nil, NewLLMError(ErrCodeInvalidRequest, "messages cannot be empty")
	}
	return c.Generate(ctx, messages[len(messages)-1].Content, options...)
}

func (c *fakeLLMClient) Name() string {
	return "fake"
}

// TestRAGAnswer 测试检索增强生成
func TestRAGAnswer(t *testing.T) {
	client := &fakeLLMClient{reply: "这是生成的回答"}
	rag := NewRAG(client)

	contexts := []string{"Ashu AI is a chatbot.", "Chatbots answer questions."}
	resp, err := rag.Answer(context.Background(), "What is Ashu AI?", contexts)
	require.NoError(t, err)

	assert.Equal(t, "这是生成的回答", resp.Answer)

	// 提示词应包含问题和所有上下文
	assert.Contains(t, client.lastPrompt, "What is Ashu AI?")
	for _, c := range contexts {
		assert.Contains(t, client.lastPrompt, c)
	}

	// 引用来源按检索顺序编号
	require.Len(t, resp.Sources, 2)
	assert.Equal(t, "src-1", resp.Sources[0].ID)
	assert.Equal(t, contexts[0], resp.Sources[0].Content)
	assert.Equal(t, "src-2", resp.Sources[1].ID)
}

// TestRAGAnswerEmptyQuestion 测试空问题
func TestRAGAnswerEmptyQuestion(t *testing.T) {
	rag := NewRAG(&fakeLLMClient{})

	_, err := rag.Answer(context.Background(), "", []string{"context"})
	require.Error(t, err)

	var llmErr LLMError
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrCodeEmptyPrompt, llmErr.Code)
}

// TestRAGAnswerNoContext 测试无上下文时的行为
func TestRAGAnswerNoContext(t *testing.T) {
	client := &fakeLLMClient{reply: "I don't know"}
	rag := NewRAG(client)

	resp, err := rag.Answer(context.Background(), "未知问题", nil)
	require.NoError(t, err, "无上下文是合法输入而不是错误")
	assert.Equal(t, "I don't know", resp.Answer)
	assert.Empty(t, resp.Sources)
}

// TestRAGWithoutSources 测试关闭引用来源
func TestRAGWithoutSources(t *testing.T) {
	client := &fakeLLMClient{reply: "回答"}
	rag := NewRAG(client, WithSources(false))

	resp, err := rag.Answer(context.Background(), "问题", []string{"上下文"})
	require.NoError(t, err)
	assert.Empty(t, resp.Sources)
}

// TestRAGCustomTemplate 测试自定义模板
func TestRAGCustomTemplate(t *testing.T) {
	tmpl, err := NewPromptTemplate("[Q]{{.Question}}[C]{{.Context}}")
	require.NoError(t, err)

	client := &fakeLLMClient{}
	rag := NewRAG(client, WithTemplate(tmpl))

	resp, err := rag.Answer(context.Background(), "问题", []string{"上下文"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(client.lastPrompt, "[Q]问题"),
		"应使用自定义模板组装提示词")
	assert.Equal(t, client.lastPrompt, resp.Answer)
}

// TestRAGGenerateError 测试生成失败的传播
func TestRAGGenerateError(t *testing.T) {
	client := &fakeLLMClient{err: ErrRateLimited}
	rag := NewRAG(client)

	_, err := rag.Answer(context.Background(), "问题", []string{"上下文"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited, "底层错误应保留在错误链中")
}

// TestRAGSetTemplate 测试运行时替换模板
func TestRAGSetTemplate(t *testing.T) {
	client := &fakeLLMClient{}
	rag := NewRAG(client)

	tmpl, err := NewPromptTemplate("NEW {{.Question}} {{.Context}}")
	require.NoError(t, err)
	rag.SetTemplate(tmpl)

	_, err = rag.Answer(context.Background(), "q", []string{"c"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(client.lastPrompt, "NEW "))
}
