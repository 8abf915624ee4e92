package tokenizer

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"sharad-cli/internal/schema"
)

const encoding = "cl100k_base"

// EstimateText 估算一段文本的 token 数。
// 优先使用 tiktoken-go 编码统计，编码器不可用时按字符长度除以 2.5 估算。
func EstimateText(text string) int {
	if text == "" {
		return 0
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return fallback(len(text))
	}
	return len(enc.Encode(text, nil, nil))
}

// EstimateHistory 估算线程历史的 token 数，每条消息另加约 4 个 token 的元数据开销。
func EstimateHistory(entries []schema.HistoryEntry) int {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		total := 0
		for _, e := range entries {
			total += len(e.Content)
		}
		return fallback(total) + 4*len(entries)
	}

	total := 0
	for _, e := range entries {
		total += countTokens(enc, e.Content) + 4
	}
	return total
}

// countTokens 用编码器统计文本的 token 数，空文本返回 0。
func countTokens(enc *tiktoken.Tiktoken, text string) int {
	if text == "" {
		return 0
	}
	return len(enc.Encode(text, nil, nil))
}

// 按 2.5 字符约等于 1 token 进行估算
func fallback(chars int) int {
	return int(float64(chars) / 2.5)
}

// TruncateByTokens 按 token 限制截断文本，保留头尾各一半，中间插入截断说明。
// maxTokens <= 0 表示不限制。
func TruncateByTokens(text string, maxTokens int) string {
	if text == "" || maxTokens <= 0 {
		return text
	}

	tokenCount := EstimateText(text)
	if tokenCount <= maxTokens {
		return text
	}

	// Token/字符比例，用于估算保留区间
	runes := []rune(text)
	ratio := float64(tokenCount) / float64(len(runes))

	// 前后各保留一半（含 5% 安全边界）
	charsPerHalf := max(int((float64(maxTokens)/2)/ratio*0.95), 1)

	headStr := string(runes[:min(charsPerHalf, len(runes))])
	// 头部对齐换行符，尽量不截断句子结构
	if idx := strings.LastIndex(headStr, "\n"); idx > 0 {
		headStr = headStr[:idx]
	}

	tailStr := string(runes[max(0, len(runes)-charsPerHalf):])
	if idx := strings.Index(tailStr, "\n"); idx > 0 {
		tailStr = tailStr[idx+1:]
	}

	note := fmt.Sprintf(
		"\n\n... [Content truncated: %d tokens -> ~%d tokens limit] ...\n\n",
		tokenCount, maxTokens,
	)
	return headStr + note + tailStr
}

// KeepRecent 从最早的消息开始丢弃，直到剩余历史不超过 maxTokens。
// 最后一条消息总会保留。
func KeepRecent(entries []schema.HistoryEntry, maxTokens int) []schema.HistoryEntry {
	if maxTokens <= 0 {
		return entries
	}
	start := 0
	for start < len(entries)-1 && EstimateHistory(entries[start:]) > maxTokens {
		start++
	}
	return entries[start:]
}
