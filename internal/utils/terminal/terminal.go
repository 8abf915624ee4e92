// Package terminal 处理终端输出的显示宽度：ANSI 颜色码不占宽度，
// 中日韩字符与 emoji 占两列。叙述换行与角色卡边框都依赖这里的计算。
package terminal

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// Align 文本对齐方式
type Align int

const (
	AlignLeft Align = iota
	AlignRight
	AlignCenter
)

func runeWidth(r rune) int {
	switch {
	case unicode.Is(unicode.Mn, r):
		return 0
	case isEmoji(r):
		return 2
	}

	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return 2
	}
	return 1
}

func isEmoji(r rune) bool {
	return r >= 0x1F300 && r <= 0x1FAFF
}

// StripANSI 去掉颜色控制码
func StripANSI(s string) string {
	return ansiEscape.ReplaceAllString(s, "")
}

// CalculateDisplayWidth 返回字符串在终端中占用的列数
func CalculateDisplayWidth(s string) int {
	w := 0
	for _, r := range StripANSI(s) {
		w += runeWidth(r)
	}
	return w
}

// TruncateWithEllipsis 超出 maxWidth 时截断并追加省略号（会丢弃颜色码）
func TruncateWithEllipsis(text string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}

	const ellipsis = "…"

	plain := StripANSI(text)
	if CalculateDisplayWidth(plain) <= maxWidth {
		return text
	}
	if maxWidth <= 1 {
		return truncateWidth(plain, maxWidth)
	}
	return truncateWidth(plain, maxWidth-1) + ellipsis
}

func truncateWidth(s string, max int) string {
	w := 0
	out := make([]rune, 0, len(s))
	for _, r := range s {
		rw := runeWidth(r)
		if w+rw > max {
			break
		}
		out = append(out, r)
		w += rw
	}
	return string(out)
}

// PadToWidth 用空格把文本补齐到 targetWidth 列
func PadToWidth(text string, targetWidth int, align Align) string {
	current := CalculateDisplayWidth(text)
	if current >= targetWidth {
		return text
	}

	pad := targetWidth - current
	switch align {
	case AlignRight:
		return strings.Repeat(" ", pad) + text
	case AlignCenter:
		left := pad / 2
		return strings.Repeat(" ", left) + text + strings.Repeat(" ", pad-left)
	default:
		return text + strings.Repeat(" ", pad)
	}
}

// Wrap 按显示宽度折行，保留原有的空行与段落
func Wrap(text string, maxWidth int) []string {
	if maxWidth <= 0 {
		return strings.Split(text, "\n")
	}

	var lines []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}

		line, lineWidth := "", 0
		for _, word := range words {
			ww := CalculateDisplayWidth(word)
			switch {
			case lineWidth == 0:
				line, lineWidth = word, ww
			case lineWidth+1+ww <= maxWidth:
				line += " " + word
				lineWidth += 1 + ww
			default:
				lines = append(lines, line)
				line, lineWidth = word, ww
			}
		}
		lines = append(lines, line)
	}
	return lines
}

// Box 画一个带标题的圆角框，内容按 innerWidth 折行
func Box(title string, body []string, innerWidth int) string {
	var b strings.Builder

	b.WriteString("╭" + strings.Repeat("─", innerWidth+2) + "╮\n")
	if title != "" {
		b.WriteString("│ " + PadToWidth(TruncateWithEllipsis(title, innerWidth), innerWidth, AlignCenter) + " │\n")
		b.WriteString("├" + strings.Repeat("─", innerWidth+2) + "┤\n")
	}
	for _, raw := range body {
		for _, line := range Wrap(raw, innerWidth) {
			b.WriteString("│ " + PadToWidth(TruncateWithEllipsis(line, innerWidth), innerWidth, AlignLeft) + " │\n")
		}
	}
	b.WriteString("╰" + strings.Repeat("─", innerWidth+2) + "╯")
	return b.String()
}
