package document

import (
	"errors"
	"iter"
	"unicode"
)

// Boundary 切分时优先采用的自然边界类型
type Boundary string

const (
	// ByParagraph 优先在段落边界切分，不可用时退化为句子和空白边界
	ByParagraph Boundary = "paragraph"
	// BySentence 优先在句子边界切分，不可用时退化为空白边界
	BySentence Boundary = "sentence"
	// ByLength 不寻找自然边界，按长度硬切
	ByLength Boundary = "length"
)

// ErrInvalidSplitterConfig 分段器配置不合法
// 重叠长度必须小于分块大小
var ErrInvalidSplitterConfig = errors.New("chunk overlap must be non-negative and smaller than chunk size")

// SplitterConfig 分段器配置
type SplitterConfig struct {
	ChunkSize    int      // 分块目标大小（按字符数）
	ChunkOverlap int      // 相邻分块的重叠长度（字符数）
	Boundary     Boundary // 优先的自然边界类型
	MaxChunks    int      // 最大分块数量（0表示不限制）
}

// DefaultSplitterConfig 返回默认分段器配置
func DefaultSplitterConfig() SplitterConfig {
	return SplitterConfig{
		ChunkSize:    1000,
		ChunkOverlap: 200,
		Boundary:     ByParagraph,
		MaxChunks:    0,
	}
}

// TextSplitter 实现文本分段器接口
// 保证相邻分块恰好重叠ChunkOverlap个字符，且每个分块（除最后一个外）
// 长度不超过ChunkSize；按顺序拼接各分块去掉重叠前缀后的部分可完整还原原文
type TextSplitter struct {
	config SplitterConfig
}

// NewTextSplitter 创建新的文本分段器
// 配置不合法时返回ErrInvalidSplitterConfig
func NewTextSplitter(config SplitterConfig) (*TextSplitter, error) {
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultSplitterConfig().ChunkSize
	}
	if config.Boundary == "" {
		config.Boundary = ByParagraph
	}

	if config.ChunkOverlap < 0 || config.ChunkOverlap >= config.ChunkSize {
		return nil, ErrInvalidSplitterConfig
	}

	return &TextSplitter{
		config: config,
	}, nil
}

// Split 将文本分割成分块列表
func (s *TextSplitter) Split(text string) ([]Chunk, error) {
	chunks := []Chunk{}
	for chunk := range s.Stream(text) {
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// Stream 返回分块的惰性序列
// 序列是有限的，并且可以重复range以从头重新开始
func (s *TextSplitter) Stream(text string) iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		if text == "" {
			return
		}

		runes := []rune(text)
		size := s.config.ChunkSize
		overlap := s.config.ChunkOverlap

		start := 0
		index := 0
		for start < len(runes) {
			if s.config.MaxChunks > 0 && index >= s.config.MaxChunks {
				return
			}

			end := start + size
			if end >= len(runes) {
				end = len(runes)
			} else {
				// 在(start+overlap, start+size]内寻找自然边界
				// 下界保证下一个分块的起点严格前进
				end = s.findCut(runes, start+overlap, end)
			}

			if !yield(Chunk{
				Text:  string(runes[start:end]),
				Index: index,
			}) {
				return
			}
			index++

			if end == len(runes) {
				return
			}
			start = end - overlap
		}
	}
}

// findCut 在(min, max]内选取最合适的切分位置
// 优先级依次为段落边界、句子边界、空白符，都不存在时在max处硬切
func (s *TextSplitter) findCut(runes []rune, min, max int) int {
	if s.config.Boundary == ByLength {
		return max
	}

	if s.config.Boundary == ByParagraph {
		for i := max; i > min; i-- {
			if runes[i-1] == '\n' && i >= 2 && runes[i-2] == '\n' {
				return i
			}
		}
	}

	for i := max; i > min; i-- {
		if isSentenceEnd(runes[i-1]) {
			return i
		}
	}

	for i := max; i > min; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}

	return max
}

// isSentenceEnd 判断字符是否为句子结束符
func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '；', '。', '！', '？':
		return true
	default:
		return false
	}
}

// SplitDocument 切分单个文档，分块继承文档的来源和元数据
func (s *TextSplitter) SplitDocument(doc Document) ([]Chunk, error) {
	chunks, err := s.Split(doc.Content)
	if err != nil {
		return nil, err
	}

	for i := range chunks {
		chunks[i].Source = doc.Source
		chunks[i].Meta = doc.Meta
	}

	return chunks, nil
}

// SplitDocuments 依次切分多个文档
func (s *TextSplitter) SplitDocuments(docs []Document) ([]Chunk, error) {
	var all []Chunk
	for _, doc := range docs {
		chunks, err := s.SplitDocument(doc)
		if err != nil {
			return nil, err
		}
		all = append(all, chunks...)
	}
	return all, nil
}
