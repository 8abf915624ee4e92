package colors

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPaint(t *testing.T) {
	require.Equal(t, "plain", Paint("plain"))
	require.Equal(t, "", Paint("", RED))
	require.Equal(t, BOLD+NARRATOR+"Rain."+RESET, Paint("Rain.", BOLD, NARRATOR))
}
