package terminal

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCalculateDisplayWidth(t *testing.T) {
	cases := map[string]int{
		"":                      0,
		"Hello":                 5,
		"🤖 Agent":               8,
		"你好世界":                  8,
		"日本語":                   6,
		"\033[31mRed\033[0m":    3,
		"\033[1m\033[96mX\033[0m": 1,
	}
	for in, want := range cases {
		require.Equal(t, want, CalculateDisplayWidth(in), "%q", in)
	}
}

func TestTruncateWithEllipsis(t *testing.T) {
	require.Equal(t, "Hello", TruncateWithEllipsis("Hello", 10))
	require.Equal(t, "Hell…", TruncateWithEllipsis("Hello World", 5))
	require.Equal(t, "你…", TruncateWithEllipsis("你好世界", 4))
	require.Equal(t, "", TruncateWithEllipsis("Hello", 0))
}

func TestPadToWidth(t *testing.T) {
	require.Equal(t, "ab  ", PadToWidth("ab", 4, AlignLeft))
	require.Equal(t, "  ab", PadToWidth("ab", 4, AlignRight))
	require.Equal(t, " ab  ", PadToWidth("ab", 5, AlignCenter))
	require.Equal(t, "abcdef", PadToWidth("abcdef", 3, AlignLeft))
}

func TestWrap(t *testing.T) {
	lines := Wrap("The rain never stops in the Barrens.\n\nKeep moving.", 12)
	for _, l := range lines {
		require.LessOrEqual(t, CalculateDisplayWidth(l), 12, l)
	}
	require.Equal(t, "The rain", lines[0])
	require.Contains(t, lines, "")
	require.Equal(t, "Keep moving.", lines[len(lines)-1])
}

func TestBox(t *testing.T) {
	out := Box("Kestrel", []string{"Body 3", "Agility 3"}, 20)
	rows := strings.Split(out, "\n")

	require.Len(t, rows, 6)
	for _, row := range rows {
		require.Equal(t, 24, CalculateDisplayWidth(row), row)
	}
	require.Contains(t, rows[1], "Kestrel")
}
