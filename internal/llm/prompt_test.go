package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPromptTemplateValidation 测试模板占位符校验
func TestPromptTemplateValidation(t *testing.T) {
	t.Run("valid template", func(t *testing.T) {
		tmpl, err := NewPromptTemplate("Q: {{.Question}}\nC: {{.Context}}\nA:")
		require.NoError(t, err)
		assert.NotNil(t, tmpl)
	})

	t.Run("missing question placeholder", func(t *testing.T) {
		_, err := NewPromptTemplate("Context: {{.Context}}")
		require.Error(t, err)

		var llmErr LLMError
		require.ErrorAs(t, err, &llmErr)
		assert.Equal(t, ErrCodeInvalidTemplate, llmErr.Code)
	})

	t.Run("missing context placeholder", func(t *testing.T) {
		_, err := NewPromptTemplate("Question: {{.Question}}")
		require.Error(t, err)

		var llmErr LLMError
		require.ErrorAs(t, err, &llmErr)
		assert.Equal(t, ErrCodeInvalidTemplate, llmErr.Code)
	})

	t.Run("malformed template syntax", func(t *testing.T) {
		_, err := NewPromptTemplate("{{.Question}} {{.Context}} {{.Broken")
		require.Error(t, err)

		var llmErr LLMError
		require.ErrorAs(t, err, &llmErr)
		assert.Equal(t, ErrCodeInvalidTemplate, llmErr.Code)
	})

	t.Run("default template parses", func(t *testing.T) {
		tmpl, err := NewPromptTemplate(DefaultPromptTemplate)
		require.NoError(t, err)
		assert.Equal(t, DefaultPromptTemplate, tmpl.Raw())
	})
}

// TestPromptRender 测试模板渲染
func TestPromptRender(t *testing.T) {
	tmpl, err := NewPromptTemplate("Question:\n{{.Question}}\nContext:\n{{.Context}}\nAnswer:")
	require.NoError(t, err)

	t.Run("contexts joined in order", func(t *testing.T) {
		contexts := []string{"第一段上下文", "第二段上下文", "第三段上下文"}
		prompt, err := tmpl.Render("什么是RAG?", contexts)
		require.NoError(t, err)

		assert.Contains(t, prompt, "什么是RAG?")
		for _, c := range contexts {
			assert.Contains(t, prompt, c)
		}

		// 上下文按检索顺序拼接
		first := strings.Index(prompt, "第一段上下文")
		second := strings.Index(prompt, "第二段上下文")
		third := strings.Index(prompt, "第三段上下文")
		assert.Less(t, first, second, "上下文应保持检索顺序")
		assert.Less(t, second, third)

		// 分块之间使用固定分隔符
		assert.Contains(t, prompt, "第一段上下文"+chunkSeparator+"第二段上下文")
	})

	t.Run("empty contexts", func(t *testing.T) {
		prompt, err := tmpl.Render("问题", nil)
		require.NoError(t, err)
		assert.Contains(t, prompt, "问题")
	})

	t.Run("deterministic output", func(t *testing.T) {
		contexts := []string{"a", "b"}
		p1, err := tmpl.Render("q", contexts)
		require.NoError(t, err)
		p2, err := tmpl.Render("q", contexts)
		require.NoError(t, err)
		assert.Equal(t, p1, p2, "相同输入应得到相同渲染结果")
	})
}
