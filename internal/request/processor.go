package request

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"

	"MantlePilot/internal/assistant"
	xerrors "MantlePilot/internal/errors"
	"MantlePilot/internal/observability/alerting"
	"MantlePilot/internal/risk"
	"MantlePilot/pkg/logger"
)

// Executor 定义了处理器所需的协调器能力。
type Executor interface {
	Process(ctx context.Context, req assistant.Request) (*assistant.Outcome, error)
}

// Processor 负责从队列消费请求并交给协调器处理。
type Processor struct {
	executor    Executor
	store       Store
	consumer    Consumer
	producer    Producer
	workerCount int
	logger      *slog.Logger
	recovery    RecoveryHandler
	alerter     alerting.Dispatcher
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithRecoveryHandler 配置失败补偿策略。
func WithRecoveryHandler(handler RecoveryHandler) ProcessorOption {
	return func(p *Processor) {
		p.recovery = handler
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(executor Executor, store Store, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		executor:    executor,
		store:       store,
		consumer:    consumer,
		producer:    producer,
		workerCount: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.workerCount <= 0 {
		p.workerCount = 1
	}
	return p
}

// Start 启动请求处理循环。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置请求消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, requestID string) error {
	if p.store == nil || p.executor == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	record, err := p.store.Claim(ctx, requestID)
	if err != nil {
		if stdErrors.Is(err, ErrRequestNotFound) || stdErrors.Is(err, ErrRequestCompleted) || stdErrors.Is(err, ErrRequestExhausted) {
			p.logDebug("跳过请求", slog.String("request_id", requestID), slog.String("reason", err.Error()))
			return nil
		}
		logger.L().Error("领取请求失败", slog.Any("error", err), slog.String("request_id", requestID))
		p.emitAlert(ctx, &Request{ID: requestID}, CodeRequestProcessing, err, "claim")
		return err
	}

	result, execErr := p.executor.Process(ctx, assistant.Request{
		ID:            record.ID,
		Query:         record.Query,
		WalletAddress: record.WalletAddress,
		ChainID:       record.ChainID,
	})
	if execErr != nil {
		return p.handleProcessingFailure(ctx, record, execErr)
	}

	outcome := OutcomeFrom(result)
	if err := p.store.MarkSucceeded(ctx, record.ID, outcome); err != nil {
		logger.L().Error("标记请求成功状态失败", slog.Any("error", err), slog.String("request_id", record.ID))
		if storeErr := p.store.MarkFailed(ctx, record.ID, CodeRequestProcessing, err.Error(), false); storeErr != nil {
			logger.L().Error("回写失败状态出错", slog.Any("error", storeErr), slog.String("request_id", record.ID))
			return storeErr
		}
		if pubErr := p.producer.Publish(ctx, record.ID); pubErr != nil {
			return xerrors.Wrap(CodeRequestPublish, pubErr, fmt.Sprintf("请求 %s 在标记成功失败后重投失败", record.ID))
		}
		logger.Audit().Warn("请求标记成功失败后重试",
			slog.String("request_id", record.ID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	logger.Audit().Info("请求处理成功",
		slog.String("request_id", record.ID),
		slog.String("outcome", outcome.Type),
		slog.String("category", outcome.Category),
	)
	// 评分落入危险档的动作即使处理成功也要通知值守。
	if outcome.SafetyLevel == string(risk.LevelDanger) {
		p.emitAlert(ctx, record, CodeDangerousAction,
			fmt.Errorf("查询 %q 解析出的动作安全评分为 %d", record.Query, outcome.SafetyScore),
			"dangerous_action")
	}
	return nil
}

func (p *Processor) handleProcessingFailure(ctx context.Context, record *Request, execErr error) error {
	code := xerrors.CodeOf(execErr)
	if code == xerrors.CodeUnknown {
		code = CodeRequestProcessing
	}
	retryable := xerrors.RetryableError(execErr)
	terminal := record.Attempts >= record.MaxRetries || !retryable

	if !retryable && p.recovery != nil {
		if fallback, recErr := p.recovery.Recover(ctx, record, execErr); recErr != nil {
			logger.L().Error("执行补偿逻辑失败",
				slog.Any("error", recErr),
				slog.String("request_id", record.ID))
			p.emitAlert(ctx, record, code, recErr, "compensate")
		} else if fallback != nil {
			if err := p.store.MarkSucceeded(ctx, record.ID, *fallback); err != nil {
				logger.L().Error("记录降级结果失败", slog.Any("error", err), slog.String("request_id", record.ID))
				if storeErr := p.store.MarkFailed(ctx, record.ID, code, err.Error(), false); storeErr != nil {
					logger.L().Error("降级失败后的回写失败状态出错", slog.Any("error", storeErr), slog.String("request_id", record.ID))
					return storeErr
				}
				if pubErr := p.producer.Publish(ctx, record.ID); pubErr != nil {
					return xerrors.Wrap(CodeRequestPublish, pubErr, fmt.Sprintf("请求 %s 在降级失败后重投失败", record.ID))
				}
				return nil
			}
			logger.Audit().Warn("请求降级完成",
				slog.String("request_id", record.ID),
				slog.String("reply", fallback.Reply),
			)
			p.emitAlert(ctx, record, code, execErr, "degraded")
			return nil
		}
	}

	if storeErr := p.store.MarkFailed(ctx, record.ID, code, execErr.Error(), terminal); storeErr != nil {
		logger.L().Error("标记请求失败状态出错", slog.Any("error", storeErr), slog.String("request_id", record.ID))
		return storeErr
	}
	logger.Audit().Warn("请求处理失败",
		slog.String("request_id", record.ID),
		slog.Bool("terminal", terminal),
		slog.String("error", execErr.Error()),
		slog.String("error_code", string(code)),
		slog.Int("attempts", record.Attempts),
		slog.Int("max_retries", record.MaxRetries),
	)

	stage := "retry"
	if terminal {
		stage = "terminal"
	} else if !retryable {
		stage = "non_retryable"
	}
	p.emitAlert(ctx, record, code, execErr, stage)

	if retryable && !terminal {
		if pubErr := p.producer.Publish(ctx, record.ID); pubErr != nil {
			return xerrors.Wrap(CodeRequestPublish, pubErr, fmt.Sprintf("请求 %s 重投失败", record.ID))
		}
		p.logDebug("请求已重新排队", slog.String("request_id", record.ID), slog.Int("attempts", record.Attempts))
	}
	return nil
}

// OutcomeFrom 把协调器的结论压缩为可持久化的快照。
func OutcomeFrom(result *assistant.Outcome) Outcome {
	if result == nil {
		return Outcome{}
	}
	outcome := Outcome{
		Type:     string(result.Type),
		Reply:    result.Reply,
		Category: string(result.Category),
		Degraded: result.Degraded,
	}
	if result.Action != nil {
		outcome.ActionKind = string(result.Action.Kind)
	}
	if result.Preview != nil {
		outcome.SafetyScore = result.Preview.SafetyScore
		outcome.SafetyLevel = string(result.Preview.SafetyLevel)
	}
	return outcome
}

func (p *Processor) logDebug(msg string, attrs ...slog.Attr) {
	if p.logger != nil {
		args := make([]any, len(attrs))
		for i, attr := range attrs {
			args[i] = attr
		}
		p.logger.Debug(msg, args...)
	}
}

func (p *Processor) emitAlert(ctx context.Context, record *Request, code xerrors.Code, cause error, stage string) {
	if p == nil || p.alerter == nil || record == nil {
		return
	}
	attrs := xerrors.AttributesOf(code)
	message := attrs.Message
	if cause != nil {
		message = cause.Error()
	}
	metadata := map[string]string{
		"stage": stage,
	}
	if cause != nil {
		metadata["cause"] = cause.Error()
	}
	event := alerting.Event{
		Code:       code,
		Message:    message,
		Severity:   attrs.Severity,
		RequestID:  record.ID,
		Attempts:   record.Attempts,
		MaxRetries: record.MaxRetries,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		logger.L().Error("告警通知失败",
			slog.Any("error", err),
			slog.String("request_id", record.ID),
			slog.String("stage", stage),
		)
	}
}
