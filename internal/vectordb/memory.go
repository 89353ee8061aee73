package vectordb

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// 查询结果缓存的有效期与清理间隔
const (
	queryCacheTTL     = 10 * time.Minute
	queryCacheCleanup = 10 * time.Minute
)

// memEntry 内存仓库中的条目
// 条目按插入顺序存放，删除时只做标记以保持顺序号稳定
type memEntry struct {
	doc     Document
	deleted bool
}

// MemoryRepository 内存向量仓库实现
// 建库完成后支持并发读取（读写锁保护）
type MemoryRepository struct {
	mu         sync.RWMutex
	dimension  int            // 向量维度，0表示由首个写入的向量确定
	distType   DistanceType   // 距离计算类型，构造时确定
	entries    []memEntry     // 按插入顺序存放的条目
	idToIndex  map[string]int // 文档ID到条目下标的映射
	queryCache *gocache.Cache // 查询结果缓存
}

// NewMemoryRepository 创建内存向量仓库
func NewMemoryRepository(config Config) (Repository, error) {
	if config.Dimension < 0 {
		return nil, fmt.Errorf("vector dimension must be non-negative")
	}

	distType := config.DistanceType
	if distType != Cosine && distType != DotProduct && distType != Euclidean {
		distType = Cosine // 默认使用余弦距离
	}

	return &MemoryRepository{
		dimension:  config.Dimension,
		distType:   distType,
		idToIndex:  make(map[string]int),
		queryCache: gocache.New(queryCacheTTL, queryCacheCleanup),
	}, nil
}

// Build 从给定条目一次性重建索引
func (r *MemoryRepository) Build(docs []Document) error {
	r.mu.Lock()
	r.entries = nil
	r.idToIndex = make(map[string]int)
	r.mu.Unlock()

	return r.AddBatch(docs)
}

// Add 添加单个文档到内存仓库
func (r *MemoryRepository) Add(doc Document) error {
	return r.AddBatch([]Document{doc})
}

// AddBatch 批量添加文档到内存仓库
// 任一向量维度不匹配时整体失败，不写入任何条目
func (r *MemoryRepository) AddBatch(docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// 先整体校验，避免部分写入
	dim := r.dimension
	for i := range docs {
		if docs[i].ID == "" {
			return ErrInvalidID
		}
		if err := ValidateVector(docs[i].Vector, dim); err != nil {
			return fmt.Errorf("invalid vector for document %s: %w", docs[i].ID, err)
		}
		if dim == 0 {
			dim = len(docs[i].Vector)
		}
	}
	r.dimension = dim

	for i := range docs {
		doc := docs[i]

		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = time.Now()
		}
		if doc.Metadata == nil {
			doc.Metadata = make(map[string]interface{})
		}
		// 余弦距离下预先归一化存储向量
		if r.distType == Cosine {
			doc.Vector = normalizeVector(doc.Vector)
		}

		// 同ID重复写入时覆盖原条目，插入顺序以首次写入为准
		if idx, exists := r.idToIndex[doc.ID]; exists {
			r.entries[idx] = memEntry{doc: doc}
			continue
		}

		r.entries = append(r.entries, memEntry{doc: doc})
		r.idToIndex[doc.ID] = len(r.entries) - 1
	}

	r.queryCache.Flush()
	return nil
}

// Get 获取单个文档
func (r *MemoryRepository) Get(id string) (Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, exists := r.idToIndex[id]
	if !exists || r.entries[idx].deleted {
		return Document{}, ErrDocumentNotFound
	}

	return r.entries[idx].doc, nil
}

// Delete 删除单个文档
func (r *MemoryRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, exists := r.idToIndex[id]
	if !exists || r.entries[idx].deleted {
		return ErrDocumentNotFound
	}

	r.entries[idx].deleted = true
	delete(r.idToIndex, id)
	r.queryCache.Flush()
	return nil
}

// DeleteByFileID 删除指定文件的所有分块
func (r *MemoryRepository) DeleteByFileID(fileID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.entries {
		if !r.entries[i].deleted && r.entries[i].doc.FileID == fileID {
			delete(r.idToIndex, r.entries[i].doc.ID)
			r.entries[i].deleted = true
		}
	}

	r.queryCache.Flush()
	return nil
}

// Search 相似度搜索
// 查询向量维度必须与索引维度一致，否则返回ErrInvalidDimension且无任何结果
func (r *MemoryRepository) Search(vector []float32, filter SearchFilter) ([]SearchResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}

	if r.distType == Cosine {
		vector = normalizeVector(vector)
	}

	cacheKey := r.cacheKey(vector, filter)
	if cached, found := r.queryCache.Get(cacheKey); found {
		if results, ok := cached.([]SearchResult); ok {
			out := make([]SearchResult, len(results))
			copy(out, results)
			return out, nil
		}
	}

	if len(r.entries) == 0 {
		return []SearchResult{}, nil
	}

	distances, err := r.computeDistances(vector)
	if err != nil {
		return nil, err
	}

	scored := make([]scoredResult, 0, len(r.entries))
	for i := range r.entries {
		if r.entries[i].deleted {
			continue
		}
		doc := r.entries[i].doc
		if !matchFileIDs(doc, filter.FileIDs) {
			continue
		}
		if !matchMetadata(doc.Metadata, filter.Metadata) {
			continue
		}

		dist := distances[i]
		score := DistanceToScore(dist, r.distType)
		if score < filter.MinScore {
			continue
		}

		scored = append(scored, scoredResult{
			result: SearchResult{Document: doc, Score: score, Distance: dist},
			seq:    i,
		})
	}

	sortScoredResults(scored)

	limit := filter.MaxResults
	if limit <= 0 || limit > len(scored) {
		limit = len(scored)
	}

	results := make([]SearchResult, limit)
	for i := 0; i < limit; i++ {
		results[i] = scored[i].result
	}

	cached := make([]SearchResult, len(results))
	copy(cached, results)
	r.queryCache.Set(cacheKey, cached, gocache.DefaultExpiration)

	return results, nil
}

// computeDistances 计算查询向量到所有条目的距离
// 条目较多时分片并行计算，结果按条目下标写入，保证确定性
func (r *MemoryRepository) computeDistances(vector []float32) ([]float32, error) {
	distances := make([]float32, len(r.entries))

	compute := func(start, end int) error {
		for i := start; i < end; i++ {
			if r.entries[i].deleted {
				continue
			}
			dist, err := ComputeDistance(vector, r.entries[i].doc.Vector, r.distType)
			if err != nil {
				return err
			}
			distances[i] = dist
		}
		return nil
	}

	threads := runtime.NumCPU()
	if len(r.entries) < 1024 || threads <= 1 {
		if err := compute(0, len(r.entries)); err != nil {
			return nil, err
		}
		return distances, nil
	}

	perThread := (len(r.entries) + threads - 1) / threads
	var wg sync.WaitGroup
	errs := make([]error, threads)

	for t := 0; t < threads; t++ {
		start := t * perThread
		end := start + perThread
		if end > len(r.entries) {
			end = len(r.entries)
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(t, start, end int) {
			defer wg.Done()
			errs[t] = compute(start, end)
		}(t, start, end)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return distances, nil
}

// cacheKey 基于完整查询向量和过滤条件生成缓存键
func (r *MemoryRepository) cacheKey(vector []float32, filter SearchFilter) string {
	h := fnv.New64a()

	buf := make([]byte, 4)
	for _, v := range vector {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
		h.Write(buf)
	}

	for _, id := range filter.FileIDs {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	if len(filter.Metadata) > 0 {
		keys := make([]string, 0, len(filter.Metadata))
		for key := range filter.Metadata {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(h, "%s=%v;", key, filter.Metadata[key])
		}
	}

	return fmt.Sprintf("q_%x_%f_%d", h.Sum64(), filter.MinScore, filter.MaxResults)
}

// Count 获取文档总数
func (r *MemoryRepository) Count() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for i := range r.entries {
		if !r.entries[i].deleted {
			count++
		}
	}
	return count, nil
}

// Close 关闭数据库连接
// 对于内存实现这是一个空操作
func (r *MemoryRepository) Close() error {
	return nil
}

// GetDimension 返回向量维数
func (r *MemoryRepository) GetDimension() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dimension
}

// 在包初始化时注册内存仓库
func init() {
	RegisterRepository("memory", NewMemoryRepository)
}
