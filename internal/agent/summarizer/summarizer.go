package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"log/slog"

	"sharad-cli/internal/agent/tokenizer"
	"sharad-cli/internal/schema"
)

// ErrEmptyHistory 线程里还没有可回顾的内容
var ErrEmptyHistory = errors.New("nothing to recap")

// Generator 一次性文本生成
type Generator interface {
	Generate(ctx context.Context, messages []schema.Message) (*schema.LLMResponse, error)
}

// Summarizer 把线程历史压缩成一段“前情提要”，用于读档后的回顾。
// 历史超过 tokenLimit 时只保留最近的部分。
type Summarizer struct {
	client     Generator
	tokenLimit int
}

// 新建 Summarizer 实例
func NewSummarizer(client Generator, tokenLimit int) *Summarizer {
	return &Summarizer{
		client:     client,
		tokenLimit: tokenLimit,
	}
}

// Recap 生成剧情回顾
func (s *Summarizer) Recap(ctx context.Context, history []schema.HistoryEntry) (string, error) {
	if len(history) == 0 {
		return "", ErrEmptyHistory
	}

	kept := tokenizer.KeepRecent(history, s.tokenLimit)
	if dropped := len(history) - len(kept); dropped > 0 {
		slog.Debug("Recap history trimmed",
			slog.Int("dropped", dropped),
			slog.Int("kept", len(kept)),
		)
	}

	req := []schema.Message{
		{Role: "system", Content: "You are the narrator of a Shadowrun campaign. You write short, atmospheric recaps."},
		{Role: "user", Content: buildPrompt(kept)},
	}

	resp, err := s.client.Generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("recap: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

func buildPrompt(entries []schema.HistoryEntry) string {
	var sb strings.Builder
	for _, e := range entries {
		switch e.Kind {
		case schema.HistoryUser:
			sb.WriteString("Player: " + e.Content + "\n")
		case schema.HistoryGame:
			sb.WriteString("Game Master: " + e.Content + "\n")
		}
	}

	return fmt.Sprintf(`
Summarize the story so far for a returning player:

%s

Rules:
- Second person, present tense
- Mention the crew, open threats and unfinished business
- Concise, English, < 300 words
`, sb.String())
}
