package llm

import (
	"fmt"
	"strings"
	"text/template"
)

// 模板必须包含的占位符
const (
	placeholderQuestion = "{{.Question}}"
	placeholderContext  = "{{.Context}}"
)

// DefaultPromptTemplate 默认RAG提示词模板
// 包含变量：
// {{.Question}} - 用户问题
// {{.Context}} - 检索到的上下文
const DefaultPromptTemplate = `You are a helpful assistant that can answer questions about the text provided.
If you don't know the answer, just say "I don't know".
Use 10 sentences minimum and keep the answer concise.
Question:
{{.Question}}
Context:
{{.Context}}
Answer:
`

// chunkSeparator 上下文分块之间的固定分隔符
const chunkSeparator = "\n\n"

// PromptTemplate 提示词模板
// 在构造时校验占位符，渲染结果对相同输入是确定的
type PromptTemplate struct {
	raw  string
	tmpl *template.Template
}

// NewPromptTemplate 解析并校验提示词模板
// 缺少{{.Question}}或{{.Context}}占位符时返回ErrCodeInvalidTemplate错误
func NewPromptTemplate(raw string) (*PromptTemplate, error) {
	if !strings.Contains(raw, placeholderQuestion) {
		return nil, NewLLMError(ErrCodeInvalidTemplate,
			fmt.Sprintf("prompt template missing required placeholder %s", placeholderQuestion))
	}
	if !strings.Contains(raw, placeholderContext) {
		return nil, NewLLMError(ErrCodeInvalidTemplate,
			fmt.Sprintf("prompt template missing required placeholder %s", placeholderContext))
	}

	tmpl, err := template.New("prompt").Parse(raw)
	if err != nil {
		return nil, NewLLMError(ErrCodeInvalidTemplate,
			fmt.Sprintf("failed to parse prompt template: %v", err))
	}

	return &PromptTemplate{
		raw:  raw,
		tmpl: tmpl,
	}, nil
}

// MustPromptTemplate 解析模板，失败时panic
// 仅用于包内常量模板
func MustPromptTemplate(raw string) *PromptTemplate {
	t, err := NewPromptTemplate(raw)
	if err != nil {
		panic(err)
	}
	return t
}

// Render 将问题和按检索顺序排列的上下文渲染进模板
func (t *PromptTemplate) Render(question string, contexts []string) (string, error) {
	data := struct {
		Question string
		Context  string
	}{
		Question: question,
		Context:  strings.Join(contexts, chunkSeparator),
	}

	var sb strings.Builder
	if err := t.tmpl.Execute(&sb, data); err != nil {
		return "", NewLLMError(ErrCodeInvalidTemplate,
			fmt.Sprintf("failed to render prompt template: %v", err))
	}

	return sb.String(), nil
}

// Raw 返回模板原文
func (t *PromptTemplate) Raw() string {
	return t.raw
}
