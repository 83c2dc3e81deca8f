// Copyright 2026 fanjia1024
// OpenTelemetry integration for ingestion job tracing

package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "ingest-platform"

// OTelConfig OpenTelemetry 配置
type OTelConfig struct {
	ServiceName    string
	ExportEndpoint string
	Insecure       bool
}

// InitTracer 初始化 OpenTelemetry tracer 并设为全局 provider
func InitTracer(config OTelConfig) (*sdktrace.TracerProvider, error) {
	ctx := context.Background()

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(config.ExportEndpoint),
	}
	if config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	return tp, nil
}

// StartJobSpan 开始一次摄取调用的 span
func StartJobSpan(ctx context.Context, jobID, controller string, attempt int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "ingest.job",
		trace.WithAttributes(
			attribute.String("job.id", jobID),
			attribute.String("ingest.controller", controller),
			attribute.Int("job.attempt", attempt),
		),
	)
}

// StartStageSpan 开始多阶段扫描中一个阶段的 span
func StartStageSpan(ctx context.Context, integrationType, stage string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "ingest.stage",
		trace.WithAttributes(
			attribute.String("ingest.integration", integrationType),
			attribute.String("ingest.stage", stage),
		),
	)
}

// StartPageSpan 开始一次 DataSource 拉取的 span
func StartPageSpan(ctx context.Context, dataType string, page int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "ingest.fetch",
		trace.WithAttributes(
			attribute.String("ingest.data_type", dataType),
			attribute.Int("ingest.page", page),
		),
	)
}

// EndSpan 记录错误（如有）并结束 span
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
