package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v3"

	"sharad-cli/internal/retry"
)

var errEmptyImage = errors.New("image response has no data")

const imageStyle = "Create a detailed character portrait in the gritty, high-tech noir style of Shadowrun. " +
	"Dark cyberpunk atmosphere, dramatic lighting, dystopian urban backgrounds, a mix of futuristic tech and urban decay. " +
	"Bold lines, strong contrasts and realistic proportions. Clothing and gear reflect the character's role: " +
	"cybernetic implants, armor, magical auras or hacker rigs. Do not write text on the image. " +
	"Use the full 9:16 ratio. Image prompt: "

// StylePrompt 为图像描述加上统一的画风前缀
func StylePrompt(prompt string) string {
	return imageStyle + prompt
}

// GenerateImage 生成一张竖幅图像并保存到图片目录，返回文件路径
func (c *Client) GenerateImage(ctx context.Context, prompt string) (string, error) {
	params := openai.ImageGenerateParams{
		Prompt:         StylePrompt(prompt),
		Model:          c.imageModel,
		Size:           openai.ImageGenerateParamsSize1024x1792,
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
		N:              openai.Int(1),
	}

	data, err := retry.Do(ctx, c.retryConfig, func() ([]byte, error) {
		resp, err := c.client.Images.Generate(ctx, params)
		if err != nil {
			return nil, classify(err)
		}
		if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
			return nil, retry.Permanent(errEmptyImage)
		}
		raw, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
		if err != nil {
			return nil, retry.Permanent(err)
		}
		return raw, nil
	}, c.onRetry)
	if err != nil {
		return "", fmt.Errorf("generate image: %w", err)
	}

	return c.saveImage(data)
}

func (c *Client) saveImage(data []byte) (string, error) {
	if err := os.MkdirAll(c.imageDir, 0o755); err != nil {
		return "", fmt.Errorf("create image dir: %w", err)
	}

	path := filepath.Join(c.imageDir, uuid.NewString()+".png")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("save image: %w", err)
	}

	slog.Info("Saved image", slog.String("path", path), slog.Int("bytes", len(data)))
	return path, nil
}
