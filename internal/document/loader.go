package document

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// 加载阶段的错误定义
var (
	// ErrSourceNotFound 源文件不存在
	ErrSourceNotFound = errors.New("source file not found")
	// ErrUnreadableSource 源文件无法解码为文本
	ErrUnreadableSource = errors.New("source file cannot be decoded")
)

// Loader 文档加载器
// 负责将本地文件读取为一个或多个文档对象
type Loader struct {
	parserFactory func(filePath string) (Parser, error)
}

// LoaderOption 加载器配置选项
type LoaderOption func(*Loader)

// WithParserFactory 替换默认的解析器工厂
func WithParserFactory(factory func(filePath string) (Parser, error)) LoaderOption {
	return func(l *Loader) {
		if factory != nil {
			l.parserFactory = factory
		}
	}
}

// NewLoader 创建文档加载器
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		parserFactory: ParserFactory,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Load 加载指定路径的文件并返回文档列表
// 路径不存在时返回ErrSourceNotFound，内容无法解码时返回ErrUnreadableSource
func (l *Loader) Load(path string) ([]Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat source file %s: %w", path, err)
	}

	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrUnreadableSource, path)
	}

	parser, err := l.parserFactory(path)
	if err != nil {
		return nil, err
	}

	content, err := parser.Parse(path)
	if err != nil {
		if errors.Is(err, ErrSourceNotFound) || errors.Is(err, ErrUnreadableSource) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUnreadableSource, err)
	}

	// 解析结果必须是合法的UTF-8文本
	if !utf8.ValidString(content) {
		return nil, fmt.Errorf("%w: %s contains invalid UTF-8", ErrUnreadableSource, path)
	}

	doc := Document{
		Content: content,
		Title:   strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Source:  path,
		Meta: map[string]string{
			"source": path,
		},
	}

	return []Document{doc}, nil
}
