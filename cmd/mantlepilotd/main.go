package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"MantlePilot/internal/api"
	"MantlePilot/internal/assistant"
	"MantlePilot/internal/auth"
	"MantlePilot/internal/config"
	"MantlePilot/internal/knowledge"
	"MantlePilot/internal/llm"
	"MantlePilot/internal/llm/openai"
	"MantlePilot/internal/observability/alerting"
	"MantlePilot/internal/observability/metrics"
	"MantlePilot/internal/request"
	"MantlePilot/internal/web3"
	"MantlePilot/internal/web3/provider"
	"MantlePilot/pkg/logger"
)

// main 是 MantlePilot 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("mantlepilotd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("MANTLEPILOT_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "mantlepilot.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OutputPaths: cfg.Log.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Log.Audit.Enabled,
			Path:       cfg.Log.Audit.Path,
			MaxSizeMB:  cfg.Log.Audit.MaxSizeMB,
			MaxBackups: cfg.Log.Audit.MaxBackups,
			MaxAgeDays: cfg.Log.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	// 初始化大模型客户端。缺少密钥时进入降级模式，助手仍可处理交易类提问。
	llmClient, err := createLLMClient(cfg)
	if err != nil {
		logger.L().Warn("大模型客户端未启用，将以降级模式运行", slog.Any("error", err))
		llmClient = nil
	}

	var store request.Store
	switch cfg.RequestStore.Driver {
	case "", "memory":
		store = request.NewMemoryStore()
	case "mysql":
		mysqlStore, err := request.NewMySQLStore(cfg.RequestStore.DSN)
		if err != nil {
			return err
		}
		store = mysqlStore
	default:
		return fmt.Errorf("未知的请求存储驱动: %s", cfg.RequestStore.Driver)
	}
	defer func() {
		if store != nil {
			_ = store.Close()
		}
	}()

	var queue request.Queue
	switch cfg.RequestQueue.Driver {
	case "", "memory":
		queue = request.NewMemoryQueue(1024)
	case "redis":
		redisQueue, err := request.NewRedisQueue(request.RedisQueueConfig{
			Address:   cfg.RequestQueue.Redis.Address,
			Password:  cfg.RequestQueue.Redis.Password,
			DB:        cfg.RequestQueue.Redis.DB,
			Queue:     cfg.RequestQueue.Redis.Queue,
			BlockWait: time.Duration(cfg.RequestQueue.Redis.BlockWait) * time.Second,
		})
		if err != nil {
			return err
		}
		queue = redisQueue
	case "rabbitmq":
		rabbitQueue, err := request.NewRabbitMQQueue(request.RabbitMQConfig{
			URL:        cfg.RequestQueue.RabbitMQ.URL,
			Queue:      cfg.RequestQueue.RabbitMQ.Queue,
			Prefetch:   cfg.RequestQueue.RabbitMQ.Prefetch,
			Durable:    cfg.RequestQueue.RabbitMQ.Durable,
			AutoDelete: cfg.RequestQueue.RabbitMQ.AutoDelete,
		})
		if err != nil {
			return err
		}
		queue = rabbitQueue
	default:
		return fmt.Errorf("未知的请求队列驱动: %s", cfg.RequestQueue.Driver)
	}
	defer func() {
		if queue != nil {
			if err := queue.Close(); err != nil {
				logger.L().Error("关闭请求队列失败", slog.Any("error", err))
			}
		}
	}()

	// 链上读取能力是可选的：未配置 RPC 时余额查询会退化为提示。
	var chainReader web3.Reader
	if cfg.Web3.ChainConfig != "" || strings.TrimSpace(cfg.Web3.RPCURL) != "" {
		chainRegistry, err := provider.NewRegistry(ctx, cfg.Web3)
		if err != nil {
			return err
		}
		defer chainRegistry.Close()

		chainReader, err = chainRegistry.DefaultClient()
		if err != nil {
			return err
		}
	} else {
		logger.L().Warn("未配置链 RPC 端点，余额查询不可用")
	}

	var knowledgeProvider knowledge.Provider
	if cfg.Knowledge.Source != "" {
		loaded, err := knowledge.LoadStaticProvider(cfg.Knowledge.Source, cfg.Knowledge.MaxResults)
		if err != nil {
			return err
		}
		knowledgeProvider = loaded
	} else {
		knowledgeProvider = knowledge.NewBuiltinProvider(cfg.Knowledge.MaxResults)
	}

	opts := []assistant.Option{
		assistant.WithKnowledgeProvider(knowledgeProvider),
	}
	if chainReader != nil {
		opts = append(opts, assistant.WithChainReader(chainReader))
	}
	if timeout := cfg.Assistant.LLMTimeout(); timeout > 0 {
		opts = append(opts, assistant.WithLLMTimeout(timeout))
	}

	coordinator := assistant.New(llmClient, opts...)

	requestService := request.NewService(store, queue, cfg.RequestStore.Retries)
	processorOpts := []request.ProcessorOption{
		request.WithWorkerCount(cfg.RequestQueue.Worker),
		request.WithProcessorLogger(logger.Named("processor")),
		request.WithRecoveryHandler(&request.DegradedRecovery{}),
	}
	if dispatcher := buildAlertDispatcher(cfg.Alerting); dispatcher != nil {
		processorOpts = append(processorOpts, request.WithAlertDispatcher(dispatcher))
	}
	processor := request.NewProcessor(coordinator, store, queue, queue, processorOpts...)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()

	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("请求处理器异常退出", slog.Any("error", err))
		}
	}()

	if cfg.Server.MetricsAddress != "" {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Server.MetricsAddress); err != nil && !errors.Is(err, context.Canceled) {
				logger.L().Error("指标服务异常退出", slog.Any("error", err))
			}
		}()
	}

	authService, err := buildAuthService(cfg.Auth)
	if err != nil {
		return err
	}

	server := api.NewServer(cfg.Server.Address, coordinator, requestService, api.WithAuth(authService))
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func buildAuthService(cfg config.AuthConfig) (*auth.Service, error) {
	seeds := make([]auth.TokenSeed, 0, len(cfg.Tokens))
	for _, seed := range cfg.Tokens {
		token := strings.TrimSpace(seed.Token)
		if token == "" && seed.TokenEnv != "" {
			token = strings.TrimSpace(os.Getenv(seed.TokenEnv))
		}
		seeds = append(seeds, auth.TokenSeed{
			Name:        seed.Name,
			Token:       token,
			Permissions: seed.Permissions,
			Disabled:    seed.Disabled,
		})
	}
	return auth.NewService(auth.Config{
		Mode:   auth.Mode(cfg.Mode),
		Tokens: seeds,
	})
}

func createLLMClient(cfg *config.Config) (llm.Client, error) {
	switch cfg.LLM.Provider {
	case "", "openai":
		apiKey := strings.TrimSpace(cfg.LLM.OpenAI.APIKey)
		if apiKey == "" && cfg.LLM.OpenAI.APIKeyEnv != "" {
			apiKey = strings.TrimSpace(os.Getenv(cfg.LLM.OpenAI.APIKeyEnv))
		}
		if apiKey == "" {
			return nil, errors.New("OpenAI provider 需要配置 api_key 或 api_key_env")
		}
		return openai.NewClient(openai.Config{
			APIKey:  apiKey,
			BaseURL: cfg.LLM.OpenAI.BaseURL,
			Model:   cfg.LLM.OpenAI.Model,
			Timeout: cfg.LLM.OpenAI.Timeout(),
		})
	default:
		return nil, fmt.Errorf("未知的大模型 provider: %s", cfg.LLM.Provider)
	}
}

func buildAlertDispatcher(cfg config.AlertingConfig) alerting.Dispatcher {
	if cfg.SlackWebhookURL == "" {
		return nil
	}
	channel := cfg.SlackChannel
	if channel == "" {
		channel = "#mantlepilot-alerts"
	}
	return alerting.NewFanout(&alerting.SlackNotifier{
		Sender:    alerting.NewWebhookSender(cfg.SlackWebhookURL),
		ChannelID: channel,
	})
}
