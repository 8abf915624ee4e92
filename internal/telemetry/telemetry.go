// Package telemetry 初始化 OpenTelemetry 链路追踪。
//
// 追踪是可选的：未启用或没有配置 endpoint 时返回空操作的 shutdown，
// 不注册全局 provider，agent 的 span 全部落到 otel 默认的 noop 实现上。
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// DefaultServiceName 上报时使用的默认服务名
const DefaultServiceName = "sharad-cli"

// Config 追踪配置
type Config struct {
	Enabled     bool
	Endpoint    string // OTLP/HTTP 地址，例如 http://localhost:4318
	ServiceName string
}

// Shutdown 刷新并关闭 provider
type Shutdown func(context.Context) error

// Setup 按配置注册全局 tracer provider。返回的 shutdown 应由调用方 defer。
func Setup(ctx context.Context, cfg Config) (Shutdown, error) {
	noop := func(context.Context) error { return nil }

	if !cfg.Enabled || cfg.Endpoint == "" {
		return noop, nil
	}

	name := cfg.ServiceName
	if name == "" {
		name = DefaultServiceName
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(cfg.Endpoint),
	)
	if err != nil {
		return noop, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(name),
		),
	)
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}
