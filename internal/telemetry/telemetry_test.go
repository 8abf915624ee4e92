package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetup_NoopWhenDisabled(t *testing.T) {
	for name, cfg := range map[string]Config{
		"disabled":    {Enabled: false, Endpoint: "http://localhost:4318"},
		"no endpoint": {Enabled: true},
	} {
		t.Run(name, func(t *testing.T) {
			shutdown, err := Setup(context.Background(), cfg)
			require.NoError(t, err)

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			require.NoError(t, shutdown(ctx))
		})
	}
}

func TestSetup_CreatesProvider(t *testing.T) {
	// 不可路由的地址，不会真正导出
	shutdown, err := Setup(context.Background(), Config{
		Enabled:  true,
		Endpoint: "http://192.0.2.1:4318",
	})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
