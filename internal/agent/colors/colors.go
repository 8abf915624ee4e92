// Package colors 终端配色。基础 ANSI 码之外，按游戏里的说话方定义了语义色。
package colors

import "strings"

// ANSI codes
const (
	RESET = "\033[0m"
	BOLD  = "\033[1m"
	DIM   = "\033[2m"

	RED     = "\033[31m"
	GREEN   = "\033[32m"
	YELLOW  = "\033[33m"
	MAGENTA = "\033[35m"
	CYAN    = "\033[36m"

	BRIGHT_RED     = "\033[91m"
	BRIGHT_GREEN   = "\033[92m"
	BRIGHT_YELLOW  = "\033[93m"
	BRIGHT_BLUE    = "\033[94m"
	BRIGHT_MAGENTA = "\033[95m"
	BRIGHT_CYAN    = "\033[96m"
)

// 语义色
const (
	NARRATOR = BRIGHT_CYAN
	PLAYER   = BRIGHT_GREEN
	TOOL     = BRIGHT_YELLOW
	DICE     = BRIGHT_MAGENTA
	WARN     = YELLOW
	ERROR    = BRIGHT_RED
)

// Paint 给文本加上颜色，codes 为空时原样返回
func Paint(text string, codes ...string) string {
	if len(codes) == 0 || text == "" {
		return text
	}
	return strings.Join(codes, "") + text + RESET
}
