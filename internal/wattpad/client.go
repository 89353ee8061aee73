package wattpad

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/luochenxi/text-rag-pipeline/internal/document"
)

// ErrStoryNotFound 故事或章节不存在错误
var ErrStoryNotFound = errors.New("story not found")

// ErrStoryPaywalled 付费内容错误，正文无法抓取
var ErrStoryPaywalled = errors.New("story is paywalled")

// Config Wattpad客户端配置
type Config struct {
	BaseURL   string        // API基础地址
	UserAgent string        // 请求使用的User-Agent
	Timeout   time.Duration // 请求超时时间
}

// DefaultConfig 返回默认客户端配置
func DefaultConfig() *Config {
	return &Config{
		BaseURL:   "https://www.wattpad.com",
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Timeout:   30 * time.Second,
	}
}

// Client Wattpad API客户端
type Client struct {
	httpClient *http.Client
	config     *Config
}

// NewClient 创建Wattpad API客户端
func NewClient(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		config: config,
	}
}

// GetStory 根据故事ID获取故事元数据
func (c *Client) GetStory(ctx context.Context, storyID string) (*Story, error) {
	endpoint := fmt.Sprintf("%s/api/v3/stories/%s?fields=%s",
		c.config.BaseURL, url.PathEscape(storyID), url.QueryEscape(storyFields))

	var story Story
	if err := c.getJSON(ctx, endpoint, &story); err != nil {
		return nil, err
	}

	return &story, nil
}

// GetStoryByPartID 根据章节ID获取所属故事的元数据
func (c *Client) GetStoryByPartID(ctx context.Context, partID string) (*Story, error) {
	endpoint := fmt.Sprintf("%s/v4/parts/%s?fields=%s",
		c.config.BaseURL, url.PathEscape(partID), url.QueryEscape(partFields))

	var envelope partEnvelope
	if err := c.getJSON(ctx, endpoint, &envelope); err != nil {
		return nil, err
	}

	if envelope.Group == nil {
		return nil, fmt.Errorf("%w: part %s has no story data", ErrStoryNotFound, partID)
	}

	return envelope.Group, nil
}

// ResolveStory 根据ID获取故事，先按故事ID查询，失败后按章节ID查询
func (c *Client) ResolveStory(ctx context.Context, id string) (*Story, error) {
	story, err := c.GetStory(ctx, id)
	if err == nil {
		return story, nil
	}
	if !errors.Is(err, ErrStoryNotFound) {
		return nil, err
	}

	story, err = c.GetStoryByPartID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrStoryNotFound) {
			return nil, fmt.Errorf("%w: no story or part with id %s", ErrStoryNotFound, id)
		}
		return nil, err
	}

	return story, nil
}

// FetchPartText 抓取章节正文并转换为纯文本
func (c *Client) FetchPartText(ctx context.Context, part Part) (*PartText, error) {
	if part.TextURL.Text == "" {
		return nil, fmt.Errorf("part %d has no text url", part.ID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, part.TextURL.Text, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch part text: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching part text", resp.StatusCode)
	}

	htmlContent, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read part text: %w", err)
	}

	return &PartText{
		PartID: part.ID,
		Title:  part.Title,
		Text:   document.ExtractTextFromHTML(string(htmlContent)),
	}, nil
}

// getJSON 执行GET请求并解析JSON响应
// 404响应映射为ErrStoryNotFound
func (c *Client) getJSON(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrStoryNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
