package embedding

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubClient 用于测试的桩嵌入客户端
// 向量首元素编码文本内容，便于验证顺序
type stubClient struct {
	callCount int32
	failOn    string // 遇到该文本时返回错误
}

func (c *stubClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (c *stubClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt32(&c.callCount, 1)

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if c.failOn != "" && text == c.failOn {
			return nil, errors.New("stub embedding failure")
		}
		n, _ := strconv.Atoi(text)
		vectors[i] = []float32{float32(n), 0, 0}
	}
	return vectors, nil
}

func (c *stubClient) Name() string {
	return "stub"
}

// TestBatchProcessorOrder 测试并行批处理保持输入顺序
func TestBatchProcessorOrder(t *testing.T) {
	client := &stubClient{}
	processor := NewBatchProcessor(client, 3, 4)

	texts := make([]string, 20)
	for i := range texts {
		texts[i] = strconv.Itoa(i)
	}

	vectors, err := processor.Process(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, 20)

	for i, vec := range vectors {
		assert.Equal(t, float32(i), vec[0], "结果顺序应与输入顺序一致")
	}

	// 20条文本按每批3条切分应产生7个批次
	assert.Equal(t, int32(7), atomic.LoadInt32(&client.callCount))
}

// TestBatchProcessorEmpty 测试空输入
func TestBatchProcessorEmpty(t *testing.T) {
	processor := NewBatchProcessor(&stubClient{}, 3, 2)

	vectors, err := processor.Process(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
}

// TestBatchProcessorError 测试批次失败时的整体失败语义
func TestBatchProcessorError(t *testing.T) {
	client := &stubClient{failOn: "7"}
	processor := NewBatchProcessor(client, 2, 2)

	texts := make([]string, 10)
	for i := range texts {
		texts[i] = strconv.Itoa(i)
	}

	vectors, err := processor.Process(context.Background(), texts)
	assert.Error(t, err, "任意批次失败应导致整体失败")
	assert.Nil(t, vectors, "失败时不应返回部分结果")
}

// TestBatchProcessorCanceled 测试上下文取消
func TestBatchProcessorCanceled(t *testing.T) {
	processor := NewBatchProcessor(&stubClient{}, 1, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := processor.Process(ctx, []string{"1", "2", "3"})
	assert.Error(t, err, "已取消的上下文应中止处理")
}

// TestSplitIntoBatches 测试批次切分
func TestSplitIntoBatches(t *testing.T) {
	tests := []struct {
		name      string
		count     int
		batchSize int
		want      int
	}{
		{"整除", 6, 3, 2},
		{"有余数", 7, 3, 3},
		{"单批", 2, 10, 1},
		{"空输入", 0, 3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			texts := make([]string, tt.count)
			batches := splitIntoBatches(texts, tt.batchSize)
			assert.Len(t, batches, tt.want)

			total := 0
			for _, b := range batches {
				total += len(b)
			}
			assert.Equal(t, tt.count, total, "切分后总数应不变")
		})
	}
}
