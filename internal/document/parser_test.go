package document

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestFile 在临时目录创建测试文件
func createTestFile(t *testing.T, name string, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// createTestPDF 生成包含指定文本的PDF测试文件
func createTestPDF(t *testing.T, text string) string {
	t.Helper()
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "", 12)
	pdf.Cell(40, 10, text)

	path := filepath.Join(t.TempDir(), "test.pdf")
	require.NoError(t, pdf.OutputFileAndClose(path))
	return path
}

// TestParserFactory 测试解析器工厂
func TestParserFactory(t *testing.T) {
	t.Run("pdf parser", func(t *testing.T) {
		parser, err := ParserFactory("document.pdf")
		require.NoError(t, err)
		assert.IsType(t, &PDFParser{}, parser)
	})

	t.Run("markdown parser", func(t *testing.T) {
		parser, err := ParserFactory("readme.md")
		require.NoError(t, err)
		assert.IsType(t, &MarkdownParser{}, parser)

		parser, err = ParserFactory("readme.markdown")
		require.NoError(t, err)
		assert.IsType(t, &MarkdownParser{}, parser)
	})

	t.Run("plaintext parser", func(t *testing.T) {
		parser, err := ParserFactory("notes.txt")
		require.NoError(t, err)
		assert.IsType(t, &PlainTextParser{}, parser)
	})

	t.Run("unsupported type", func(t *testing.T) {
		_, err := ParserFactory("image.png")
		assert.ErrorIs(t, err, ErrUnreadableSource, "不支持的类型应该返回无法解码错误")
	})
}

// TestPlainTextParser 测试纯文本解析
func TestPlainTextParser(t *testing.T) {
	parser := NewPlainTextParser()

	t.Run("parse file", func(t *testing.T) {
		path := createTestFile(t, "test.txt", "这是测试文本内容。\n第二行内容。")
		content, err := parser.Parse(path)
		require.NoError(t, err)
		assert.Equal(t, "这是测试文本内容。\n第二行内容。", content)
	})

	t.Run("parse reader", func(t *testing.T) {
		content, err := parser.ParseReader(strings.NewReader("reader content"), "test.txt")
		require.NoError(t, err)
		assert.Equal(t, "reader content", content)
	})

	t.Run("file not found", func(t *testing.T) {
		_, err := parser.Parse("/nonexistent/path.txt")
		assert.ErrorIs(t, err, ErrSourceNotFound)
	})
}

// TestMarkdownParser 测试Markdown解析
func TestMarkdownParser(t *testing.T) {
	parser := NewMarkdownParser()

	t.Run("strips markdown syntax", func(t *testing.T) {
		md := "# 标题\n\n这是**加粗**的内容，还有*斜体*。\n\n- 列表项1\n- 列表项2"
		content, err := parser.ParseReader(strings.NewReader(md), "test.md")
		require.NoError(t, err)

		t.Logf("解析结果: %q", content)

		assert.Contains(t, content, "标题")
		assert.Contains(t, content, "加粗")
		assert.Contains(t, content, "列表项1")
		assert.NotContains(t, content, "**", "应该去掉Markdown标记")
		assert.NotContains(t, content, "# ", "应该去掉标题标记")
	})

	t.Run("parse file", func(t *testing.T) {
		path := createTestFile(t, "doc.md", "## 小节\n\n正文内容在这里。")
		content, err := parser.Parse(path)
		require.NoError(t, err)
		assert.Contains(t, content, "小节")
		assert.Contains(t, content, "正文内容在这里")
	})

	t.Run("file not found", func(t *testing.T) {
		_, err := parser.Parse("/nonexistent/doc.md")
		assert.ErrorIs(t, err, ErrSourceNotFound)
	})
}

// TestPDFParser 测试PDF解析
func TestPDFParser(t *testing.T) {
	parser := NewPDFParser()

	t.Run("parse generated pdf", func(t *testing.T) {
		path := createTestPDF(t, "Hello PDF Content")
		content, err := parser.Parse(path)
		require.NoError(t, err)
		assert.Contains(t, content, "Hello PDF Content")
	})

	t.Run("file not found", func(t *testing.T) {
		_, err := parser.Parse("/nonexistent/file.pdf")
		assert.ErrorIs(t, err, ErrSourceNotFound)
	})
}

// TestExtractTextFromHTML 测试HTML文本提取
func TestExtractTextFromHTML(t *testing.T) {
	html := "<p>第一段内容</p><p>第二段内容</p><b>加粗文字</b><br/>换行之后"
	text := ExtractTextFromHTML(html)

	assert.Contains(t, text, "第一段内容")
	assert.Contains(t, text, "第二段内容")
	assert.Contains(t, text, "加粗文字")
	assert.NotContains(t, text, "<p>", "应该去掉HTML标签")
	assert.NotContains(t, text, "<b>", "应该去掉HTML标签")
}

// TestLoader 测试文档加载器
func TestLoader(t *testing.T) {
	loader := NewLoader()

	t.Run("load text file", func(t *testing.T) {
		path := createTestFile(t, "article.txt", "文档正文内容。")
		docs, err := loader.Load(path)
		require.NoError(t, err)
		require.Len(t, docs, 1)

		assert.Equal(t, "文档正文内容。", docs[0].Content)
		assert.Equal(t, "article", docs[0].Title, "标题应为去掉扩展名的文件名")
		assert.Equal(t, path, docs[0].Source)
		assert.Equal(t, path, docs[0].Meta["source"])
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := loader.Load("/nonexistent/missing.txt")
		assert.ErrorIs(t, err, ErrSourceNotFound, "不存在的文件应返回源文件不存在错误")
	})

	t.Run("directory", func(t *testing.T) {
		_, err := loader.Load(t.TempDir())
		assert.ErrorIs(t, err, ErrUnreadableSource, "目录不能作为文档加载")
	})

	t.Run("invalid utf8", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "binary.txt")
		require.NoError(t, os.WriteFile(path, []byte{0xff, 0xfe, 0x00, 0x01}, 0644))

		_, err := loader.Load(path)
		assert.ErrorIs(t, err, ErrUnreadableSource, "非法UTF-8内容应返回无法解码错误")
	})

	t.Run("custom parser factory", func(t *testing.T) {
		custom := NewLoader(WithParserFactory(func(filePath string) (Parser, error) {
			return NewPlainTextParser(), nil
		}))

		path := createTestFile(t, "custom.unknown", "自定义解析器内容")
		docs, err := custom.Load(path)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "自定义解析器内容", docs[0].Content)
	})
}
