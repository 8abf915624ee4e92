package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"sharad-cli/internal/event"
)

// DefaultImageTimeout 单个后台图像任务的最长时间
const DefaultImageTimeout = 3 * time.Minute

// ImageGenerator 图像生成服务，返回本地文件路径
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// ImageTool 在后台生成角色图像。
//
// Execute 立即返回带任务 ID 的确认文本；生成结果通过 event.Bus 的图像通道送达，
// 不阻塞当前回合。
type ImageTool struct {
	gen     ImageGenerator
	bus     *event.Bus
	timeout time.Duration

	wg sync.WaitGroup
}

func NewImageTool(gen ImageGenerator, bus *event.Bus) *ImageTool {
	return &ImageTool{gen: gen, bus: bus, timeout: DefaultImageTimeout}
}

func (t *ImageTool) Name() string { return "generate_character_image" }

func (t *ImageTool) Description() string {
	return `Generate a portrait or scene image in the background.

Returns immediately with a job id; the finished image is shown to the player
when it is ready. Do not wait for it before continuing the story.`
}

func (t *ImageTool) Parameters() map[string]any {
	return object(map[string]any{
		"prompt":         str("Visual description of the image."),
		"character_name": str("Optional character the image depicts."),
	}, "prompt")
}

func (t *ImageTool) Execute(ctx context.Context, call Call) (*ToolResult, error) {
	args, err := call.Args()
	if err != nil {
		return nil, err
	}
	prompt, err := requireString(args, "prompt")
	if err != nil {
		return nil, err
	}
	if t.gen == nil {
		return nil, fmt.Errorf("image generation is not configured")
	}

	job := event.ImageReady{
		JobID:     uuid.NewString(),
		Character: optionalString(args, "character_name", ""),
		Prompt:    prompt,
	}

	// 任务脱离回合的 ctx：回合结束或被取消都不影响图像生成
	bg := context.WithoutCancel(ctx)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.run(bg, job)
	}()

	return ok(fmt.Sprintf("Image generation in progress (job %s)", job.JobID)), nil
}

func (t *ImageTool) run(ctx context.Context, job event.ImageReady) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	job.Path, job.Err = t.gen.GenerateImage(ctx, job.Prompt)
	if job.Err != nil {
		slog.Warn("image generation failed", slog.String("job_id", job.JobID), slog.Any("err", job.Err))
	}
	if err := t.bus.PublishImage(ctx, job); err != nil {
		slog.Warn("image result dropped", slog.String("job_id", job.JobID), slog.Any("err", err))
	}
}

// Wait 等待所有后台图像任务结束，退出前调用
func (t *ImageTool) Wait() {
	t.wg.Wait()
}
