package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"log/slog"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"sharad-cli/internal/retry"
	"sharad-cli/internal/schema"
)

// Client OpenAI 客户端：Assistants 会话、图像生成与剧情回顾共用同一个连接
type Client struct {
	client      openai.Client
	model       string
	imageModel  string
	imageDir    string
	retryConfig *retry.Config
	onRetry     retry.OnRetryFunc
	reqOpts     []option.RequestOption
}

// ClientOption 客户端选项
type ClientOption func(*Client)

// WithRetryConfig 设置重试配置
func WithRetryConfig(cfg *retry.Config) ClientOption {
	return func(c *Client) {
		c.retryConfig = cfg
	}
}

// WithRetryCallback 设置重试回调
func WithRetryCallback(fn retry.OnRetryFunc) ClientOption {
	return func(c *Client) {
		c.onRetry = fn
	}
}

// WithImages 设置图像模型与图片保存目录
func WithImages(model, dir string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.imageModel = model
		}
		c.imageDir = dir
	}
}

// WithRequestOptions 追加底层 SDK 的请求选项（测试中用于指向本地服务）
func WithRequestOptions(opts ...option.RequestOption) ClientOption {
	return func(c *Client) {
		c.reqOpts = append(c.reqOpts, opts...)
	}
}

// NewClient 创建 LLM 客户端
func NewClient(apiKey, baseURL, model string, opts ...ClientOption) *Client {
	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// 重试统一交给 retry.Do
		option.WithMaxRetries(0),
	}

	if baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(baseURL))
	}

	c := &Client{
		model:       model,
		imageModel:  openai.ImageModelDallE3,
		imageDir:    "data/images",
		retryConfig: retry.DefaultConfig(),
	}

	for _, opt := range opts {
		opt(c)
	}
	c.client = openai.NewClient(append(clientOpts, c.reqOpts...)...)

	slog.Info("Initialized LLM client",
		slog.String("model", model),
		slog.String("baseURL", baseURL),
	)

	return c
}

// Model 当前使用的对话模型
func (c *Client) Model() string { return c.model }

// Generate 生成一次 chat completion，用于剧情回顾等一次性请求
func (c *Client) Generate(ctx context.Context, messages []schema.Message) (*schema.LLMResponse, error) {
	return retry.Do(ctx, c.retryConfig, func() (*schema.LLMResponse, error) {
		resp, err := c.doGenerate(ctx, messages)
		return resp, classify(err)
	}, c.onRetry)
}

func (c *Client) doGenerate(ctx context.Context, messages []schema.Message) (*schema.LLMResponse, error) {
	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: c.convertMessages(messages),
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	return c.parseResponse(completion), nil
}

// convertMessages 转换消息格式
func (c *Client) convertMessages(messages []schema.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			result = append(result, openai.SystemMessage(msg.Content))
		case "user":
			result = append(result, openai.UserMessage(msg.Content))
		case "assistant":
			result = append(result, openai.AssistantMessage(msg.Content))
		}
	}

	return result
}

// parseResponse 解析 API 响应
func (c *Client) parseResponse(completion *openai.ChatCompletion) *schema.LLMResponse {
	if len(completion.Choices) == 0 {
		return &schema.LLMResponse{FinishReason: "unknown"}
	}

	message := completion.Choices[0].Message
	response := &schema.LLMResponse{
		Content:      message.Content,
		FinishReason: string(completion.Choices[0].FinishReason),
	}

	// 提取 thinking 内容
	for k, v := range message.JSON.ExtraFields {
		switch k {
		case "reasoning_content",
			"thoughts",
			"internal_thoughts",
			"reasoning":
			response.Thinking = v.Raw()
		}
	}

	return response
}

// classify 4xx（限流与超时除外）不可重试
func classify(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch code := apiErr.StatusCode; {
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout:
		return err
	case code >= 400 && code < 500:
		return retry.Permanent(err)
	}
	return err
}
