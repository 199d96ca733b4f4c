package main

import (
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzzerolog "github.com/hertz-contrib/logger/zerolog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"resume-pipeline-go/internal/api/handler"
	"resume-pipeline-go/internal/api/router"
	"resume-pipeline-go/internal/config"
	"resume-pipeline-go/internal/extract"
	"resume-pipeline-go/internal/intake"
	"resume-pipeline-go/internal/logger"
	"resume-pipeline-go/internal/processor"
	"resume-pipeline-go/internal/storage"
)

func main() {
	configPath := pflag.String("config", "", "配置文件路径")
	pflag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("加载配置失败")
	}

	logger.Init(logger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing := initTracing(ctx, &cfg.Tracing)
	defer shutdownTracing()

	store, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化存储层失败")
	}
	defer store.Close()

	aiClient, err := extract.NewClient(&cfg.AI, logger.Logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化AI服务客户端失败")
	}
	registry := extract.NewRegistry(aiClient)

	classifier := processor.NewErrorClassifier(cfg.Pipeline.MaxAttempts)
	tracker := processor.NewStatusTracker(classifier, store.Queue, cfg.Pipeline.StatusRetention(), logger.Logger)
	worker := processor.NewWorker(store.MinIO, registry, aiClient, store.MySQL, tracker, classifier, logger.Logger)

	if err := store.Queue.StartConsumers(ctx, cfg.RabbitMQ.ConsumerConcurrent, worker.Handle); err != nil {
		logger.Fatal().Err(err).Msg("启动队列消费者失败")
	}

	intakeSvc := intake.NewService(store.MinIO, store.MySQL, store.Queue, tracker, cfg.Pipeline.MaxFileSizeBytes, logger.Logger)

	tracer, tracerCfg := hertztracing.NewServerTracer()
	h := server.Default(tracer, server.WithHostPorts(cfg.Server.Address))
	h.Use(hertztracing.ServerMiddleware(tracerCfg))
	hlog.SetLogger(hertzzerolog.From(logger.Logger))

	pipelineHandler := handler.NewPipelineHandler(intakeSvc, tracker, logger.Logger)
	router.Register(h, pipelineHandler)

	logger.Info().Str("address", cfg.Server.Address).Msg("简历处理流水线已启动")
	h.Spin()

	// Spin返回意味着收到退出信号且HTTP已优雅关闭，随后停止消费者
	cancel()
	logger.Info().Msg("简历处理流水线已退出")
}

// initTracing 初始化OTLP链路追踪，返回关闭函数。未启用时为空操作。
func initTracing(ctx context.Context, cfg *config.TracingConfig) func() {
	if !cfg.Enabled {
		return func() {}
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("创建OTLP导出器失败")
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
	))
	if err != nil {
		logger.Fatal().Err(err).Msg("构建追踪资源失败")
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	logger.Info().Str("endpoint", cfg.Endpoint).Msg("链路追踪已启用")
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("关闭追踪提供者失败")
		}
	}
}
