//go:build cgo

package vectordb

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/DataIntelligenceCrew/go-faiss"
)

// FaissRepository 基于Faiss平坦索引的向量仓库
// 删除操作只移除元数据，索引中的向量位置保持不变，搜索时跳过孤儿位置
type FaissRepository struct {
	mu           sync.RWMutex
	index        faiss.Index
	documents    map[string]Document
	posToID      map[int]string // 索引位置到文档ID的映射，位置即插入顺序
	idToPos      map[string]int
	indexPath    string
	metaPath     string
	dimension    int
	distType     DistanceType
	saveOnClose  bool
	opsSinceSave int
	autoSaveOps  int
}

// NewFaissRepository 创建新的Faiss向量仓库
func NewFaissRepository(config Config) (Repository, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive for faiss index")
	}

	if config.Path != "" && !config.InMemory {
		if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %v", err)
		}
	}

	distType := config.DistanceType
	if distType == "" {
		distType = Cosine
	}

	indexPath := config.Path
	metaPath := ""
	if indexPath != "" {
		metaPath = indexPath + ".meta.json"
	}

	repo := &FaissRepository{
		documents:   make(map[string]Document),
		posToID:     make(map[int]string),
		idToPos:     make(map[string]int),
		indexPath:   indexPath,
		metaPath:    metaPath,
		dimension:   config.Dimension,
		distType:    distType,
		saveOnClose: indexPath != "" && !config.InMemory,
		autoSaveOps: 100,
	}

	var index faiss.Index
	var err error

	if indexPath != "" && !config.InMemory && fileExists(indexPath) {
		index, err = faiss.ReadIndex(indexPath, 0)
		if err != nil {
			if !config.CreateIfNotExists {
				return nil, fmt.Errorf("failed to read index file: %v", err)
			}
			index, err = createFaissIndex(config.Dimension, distType)
			if err != nil {
				return nil, fmt.Errorf("failed to create faiss index: %v", err)
			}
		} else if err := repo.loadMetadata(metaPath); err != nil {
			return nil, fmt.Errorf("failed to load index metadata: %v", err)
		}
	} else {
		index, err = createFaissIndex(config.Dimension, distType)
		if err != nil {
			return nil, fmt.Errorf("failed to create faiss index: %v", err)
		}
	}

	repo.index = index
	return repo, nil
}

// createFaissIndex 创建Faiss平坦索引
func createFaissIndex(dimension int, distType DistanceType) (faiss.Index, error) {
	var metric int
	switch distType {
	case Cosine, DotProduct:
		metric = faiss.MetricInnerProduct
	case Euclidean:
		metric = faiss.MetricL2
	default:
		metric = faiss.MetricL2
	}
	return faiss.NewIndexFlat(dimension, metric)
}

// Build 从给定条目一次性重建索引
func (r *FaissRepository) Build(docs []Document) error {
	r.mu.Lock()
	index, err := createFaissIndex(r.dimension, r.distType)
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("failed to recreate faiss index: %v", err)
	}
	if r.index != nil {
		r.index.Delete()
	}
	r.index = index
	r.documents = make(map[string]Document)
	r.posToID = make(map[int]string)
	r.idToPos = make(map[string]int)
	r.mu.Unlock()

	return r.AddBatch(docs)
}

// Add 添加单个文档到仓库
func (r *FaissRepository) Add(doc Document) error {
	return r.AddBatch([]Document{doc})
}

// AddBatch 批量添加文档到仓库
func (r *FaissRepository) AddBatch(docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// 先整体校验，避免索引和元数据不一致
	for i := range docs {
		if docs[i].ID == "" {
			return ErrInvalidID
		}
		if err := ValidateVector(docs[i].Vector, r.dimension); err != nil {
			return fmt.Errorf("invalid vector for document %s: %w", docs[i].ID, err)
		}
	}

	for i := range docs {
		doc := docs[i]

		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = time.Now()
		}
		if doc.Metadata == nil {
			doc.Metadata = make(map[string]interface{})
		}
		if r.distType == Cosine {
			doc.Vector = normalizeVector(doc.Vector)
		}

		pos := int(r.index.Ntotal())
		if err := r.index.Add(doc.Vector); err != nil {
			return fmt.Errorf("failed to add vector to index: %v", err)
		}

		r.documents[doc.ID] = doc
		r.posToID[pos] = doc.ID
		r.idToPos[doc.ID] = pos
		r.opsSinceSave++
	}

	if r.saveOnClose && r.autoSaveOps > 0 && r.opsSinceSave >= r.autoSaveOps {
		if err := r.saveIndex(); err != nil {
			return fmt.Errorf("auto-save failed: %v", err)
		}
		r.opsSinceSave = 0
	}

	return nil
}

// Get 获取单个文档
func (r *FaissRepository) Get(id string) (Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, exists := r.documents[id]
	if !exists {
		return Document{}, ErrDocumentNotFound
	}
	return doc, nil
}

// Delete 删除单个文档
// 向量仍留在索引中，位置成为孤儿并在搜索时被跳过
func (r *FaissRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.documents[id]
	if !exists {
		return ErrDocumentNotFound
	}

	pos := r.idToPos[id]
	delete(r.documents, id)
	delete(r.idToPos, id)
	delete(r.posToID, pos)
	return nil
}

// DeleteByFileID 删除指定文件的所有分块
func (r *FaissRepository) DeleteByFileID(fileID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, doc := range r.documents {
		if doc.FileID != fileID {
			continue
		}
		pos := r.idToPos[id]
		delete(r.documents, id)
		delete(r.idToPos, id)
		delete(r.posToID, pos)
	}
	return nil
}

// Search 相似度搜索
func (r *FaissRepository) Search(vector []float32, filter SearchFilter) ([]SearchResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}
	if r.distType == Cosine {
		vector = normalizeVector(vector)
	}

	if len(r.documents) == 0 {
		return []SearchResult{}, nil
	}

	k := filter.MaxResults
	if k <= 0 {
		k = DefaultSearchFilter().MaxResults
	}

	// 放大检索范围，给过滤和孤儿位置留余量
	queryLimit := k * 4
	total := int(r.index.Ntotal())
	if queryLimit > total {
		queryLimit = total
	}
	if queryLimit == 0 {
		return []SearchResult{}, nil
	}

	rawDistances, indices, err := r.index.Search(vector, int64(queryLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %v", err)
	}

	var scored []scoredResult
	for i := 0; i < len(indices); i++ {
		pos := int(indices[i])
		if pos < 0 {
			continue
		}

		id, exists := r.posToID[pos]
		if !exists {
			continue // 已删除的孤儿位置
		}
		doc := r.documents[id]

		if !matchFileIDs(doc, filter.FileIDs) {
			continue
		}
		if !matchMetadata(doc.Metadata, filter.Metadata) {
			continue
		}

		dist := r.toDistance(rawDistances[i])
		score := DistanceToScore(dist, r.distType)
		if score < filter.MinScore {
			continue
		}

		scored = append(scored, scoredResult{
			result: SearchResult{Document: doc, Score: score, Distance: dist},
			seq:    pos,
		})
	}

	sortScoredResults(scored)
	if len(scored) > k {
		scored = scored[:k]
	}

	results := make([]SearchResult, len(scored))
	for i := range scored {
		results[i] = scored[i].result
	}
	return results, nil
}

// toDistance 将faiss返回的原始度量值转换为本仓库的距离语义
// 内积度量下faiss返回相似度，L2度量下返回平方距离
func (r *FaissRepository) toDistance(raw float32) float32 {
	switch r.distType {
	case Cosine:
		return 1 - raw
	case DotProduct:
		return raw
	case Euclidean:
		return float32(math.Sqrt(float64(raw)))
	default:
		return raw
	}
}

// Count 获取文档总数
func (r *FaissRepository) Count() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.documents), nil
}

// Close 关闭仓库，必要时落盘
func (r *FaissRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.saveOnClose {
		if err := r.saveIndex(); err != nil {
			return err
		}
	}

	if r.index != nil {
		r.index.Delete()
		r.index = nil
	}
	return nil
}

// GetDimension 返回向量维数
func (r *FaissRepository) GetDimension() int {
	return r.dimension
}

// faissMetadata 随索引文件一起持久化的元数据
type faissMetadata struct {
	Documents map[string]Document `json:"documents"`
	PosToID   map[int]string      `json:"pos_to_id"`
	Dimension int                 `json:"dimension"`
	DistType  DistanceType        `json:"dist_type"`
}

// saveIndex 将索引和元数据写入磁盘
// 调用方需持有写锁
func (r *FaissRepository) saveIndex() error {
	if r.indexPath == "" {
		return nil
	}

	if err := faiss.WriteIndex(r.index, r.indexPath); err != nil {
		return fmt.Errorf("failed to write index file: %v", err)
	}

	meta := faissMetadata{
		Documents: r.documents,
		PosToID:   r.posToID,
		Dimension: r.dimension,
		DistType:  r.distType,
	}

	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal index metadata: %v", err)
	}

	if err := os.WriteFile(r.metaPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %v", err)
	}
	return nil
}

// loadMetadata 从磁盘加载元数据
func (r *FaissRepository) loadMetadata(path string) error {
	if path == "" || !fileExists(path) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var meta faissMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return err
	}

	if meta.Dimension != r.dimension {
		return fmt.Errorf("%w: index file has dimension %d, config has %d",
			ErrInvalidDimension, meta.Dimension, r.dimension)
	}

	r.documents = meta.Documents
	r.posToID = meta.PosToID
	r.idToPos = make(map[string]int, len(meta.PosToID))
	for pos, id := range meta.PosToID {
		r.idToPos[id] = pos
	}
	return nil
}

// fileExists 检查文件是否存在
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// 在包初始化时注册Faiss仓库
func init() {
	RegisterRepository("faiss", NewFaissRepository)
}
