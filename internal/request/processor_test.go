package request

import (
	"context"
	"sync"
	"testing"

	"MantlePilot/internal/assistant"
	xerrors "MantlePilot/internal/errors"
	"MantlePilot/internal/observability/alerting"
	"MantlePilot/internal/preview"
	"MantlePilot/internal/risk"
)

type stubExecutor struct {
	outcome *assistant.Outcome
	err     error
	calls   int
}

func (s *stubExecutor) Process(context.Context, assistant.Request) (*assistant.Outcome, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.outcome, nil
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []alerting.Event
}

func (d *recordingDispatcher) Notify(_ context.Context, event alerting.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.events)
}

func setupProcessor(t *testing.T, executor Executor, opts ...ProcessorOption) (*Processor, *MemoryStore, *recordingProducer) {
	t.Helper()
	store := NewMemoryStore()
	producer := &recordingProducer{}
	processor := NewProcessor(executor, store, nil, producer, opts...)
	return processor, store, producer
}

func TestProcessorHandleSuccess(t *testing.T) {
	executor := &stubExecutor{outcome: &assistant.Outcome{
		Type:     assistant.OutcomeText,
		Reply:    "all good",
		Category: "conversational",
	}}
	processor, store, _ := setupProcessor(t, executor)
	ctx := context.Background()

	if err := store.Create(ctx, newTestRequest("req-1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := processor.handle(ctx, "req-1"); err != nil {
		t.Fatalf("handle: %v", err)
	}

	record, err := store.Get(ctx, "req-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.Status != StatusSucceeded {
		t.Fatalf("expected succeeded, got %s", record.Status)
	}
	if record.Outcome == nil || record.Outcome.Reply != "all good" {
		t.Fatalf("unexpected outcome: %+v", record.Outcome)
	}
}

func TestProcessorRetriesRetryableFailure(t *testing.T) {
	cause := xerrors.New(xerrors.CodeCollaboratorFailure, "llm down")
	executor := &stubExecutor{err: cause}
	dispatcher := &recordingDispatcher{}
	processor, store, producer := setupProcessor(t, executor, WithAlertDispatcher(dispatcher))
	ctx := context.Background()

	if err := store.Create(ctx, newTestRequest("req-1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := processor.handle(ctx, "req-1"); err != nil {
		t.Fatalf("handle: %v", err)
	}

	record, err := store.Get(ctx, "req-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", record.Status)
	}
	if len(producer.published) != 1 {
		t.Fatalf("retryable failures should republish, got %v", producer.published)
	}
	if dispatcher.count() == 0 {
		t.Fatal("expected an alert event")
	}
}

func TestProcessorStopsAfterMaxRetries(t *testing.T) {
	cause := xerrors.New(xerrors.CodeCollaboratorFailure, "llm down")
	executor := &stubExecutor{err: cause}
	processor, store, producer := setupProcessor(t, executor)
	ctx := context.Background()

	req := newTestRequest("req-1")
	req.MaxRetries = 1
	if err := store.Create(ctx, req); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := processor.handle(ctx, "req-1"); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(producer.published) != 0 {
		t.Fatalf("terminal failures must not republish, got %v", producer.published)
	}

	// 重试额度用尽后再次消费直接跳过。
	if err := processor.handle(ctx, "req-1"); err != nil {
		t.Fatalf("handle after exhaustion: %v", err)
	}
	if executor.calls != 1 {
		t.Fatalf("expected a single execution, got %d", executor.calls)
	}
}

func TestProcessorRecoveryProducesDegradedOutcome(t *testing.T) {
	cause := xerrors.New(xerrors.CodeCollaboratorFailure, "llm down",
		xerrors.WithRetryable(false))
	executor := &stubExecutor{err: cause}
	processor, store, _ := setupProcessor(t, executor,
		WithRecoveryHandler(&DegradedRecovery{Reply: "fallback reply"}))
	ctx := context.Background()

	if err := store.Create(ctx, newTestRequest("req-1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := processor.handle(ctx, "req-1"); err != nil {
		t.Fatalf("handle: %v", err)
	}

	record, err := store.Get(ctx, "req-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.Status != StatusSucceeded {
		t.Fatalf("expected degraded success, got %s", record.Status)
	}
	if record.Outcome == nil || !record.Outcome.Degraded || record.Outcome.Reply != "fallback reply" {
		t.Fatalf("unexpected outcome: %+v", record.Outcome)
	}
}

func TestProcessorAlertsOnDangerousAction(t *testing.T) {
	executor := &stubExecutor{outcome: &assistant.Outcome{
		Type:     assistant.OutcomeTransactionRequired,
		Reply:    "review carefully",
		Category: "execution",
		Preview: &preview.TransactionPreview{
			SafetyScore: 10,
			SafetyLevel: risk.LevelDanger,
		},
	}}
	dispatcher := &recordingDispatcher{}
	processor, store, _ := setupProcessor(t, executor, WithAlertDispatcher(dispatcher))
	ctx := context.Background()

	if err := store.Create(ctx, newTestRequest("req-1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := processor.handle(ctx, "req-1"); err != nil {
		t.Fatalf("handle: %v", err)
	}

	record, err := store.Get(ctx, "req-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.Status != StatusSucceeded {
		t.Fatalf("dangerous actions still succeed, got %s", record.Status)
	}
	if dispatcher.count() != 1 {
		t.Fatalf("expected one alert, got %d", dispatcher.count())
	}
	dispatcher.mu.Lock()
	event := dispatcher.events[0]
	dispatcher.mu.Unlock()
	if event.Code != CodeDangerousAction {
		t.Fatalf("unexpected alert code: %s", event.Code)
	}
}

func TestProcessorSkipsCompletedRequests(t *testing.T) {
	executor := &stubExecutor{outcome: &assistant.Outcome{Type: assistant.OutcomeText}}
	processor, store, _ := setupProcessor(t, executor)
	ctx := context.Background()

	if err := store.Create(ctx, newTestRequest("req-1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "req-1", Outcome{Type: "text", Reply: "done"}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	if err := processor.handle(ctx, "req-1"); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if executor.calls != 0 {
		t.Fatalf("completed requests must not be re-executed, got %d calls", executor.calls)
	}
}

func TestProcessorMissingRequestIsNotAnError(t *testing.T) {
	executor := &stubExecutor{}
	processor, _, _ := setupProcessor(t, executor)
	if err := processor.handle(context.Background(), "ghost"); err != nil {
		t.Fatalf("missing requests are skipped, got %v", err)
	}
}

func TestOutcomeFromCondensesAssistantResult(t *testing.T) {
	result := &assistant.Outcome{
		Type:     assistant.OutcomeTransactionRequired,
		Reply:    "review the preview",
		Category: "execution",
		Degraded: false,
	}
	outcome := OutcomeFrom(result)
	if outcome.Type != string(assistant.OutcomeTransactionRequired) {
		t.Fatalf("unexpected type: %s", outcome.Type)
	}
	if outcome.Reply != "review the preview" || outcome.Category != "execution" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}

	if empty := OutcomeFrom(nil); empty.Type != "" {
		t.Fatalf("nil result should condense to zero outcome, got %+v", empty)
	}
}

func TestProcessorNonRetryableDoesNotRepublish(t *testing.T) {
	cause := xerrors.New(xerrors.CodeInvalidArgument, "bad input",
		xerrors.WithRetryable(false))
	executor := &stubExecutor{err: cause}
	processor, store, producer := setupProcessor(t, executor)
	ctx := context.Background()

	if err := store.Create(ctx, newTestRequest("req-1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := processor.handle(ctx, "req-1"); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(producer.published) != 0 {
		t.Fatalf("non-retryable failures must not republish, got %v", producer.published)
	}
	record, err := store.Get(ctx, "req-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.ErrorCode != string(xerrors.CodeInvalidArgument) {
		t.Fatalf("unexpected error code: %s", record.ErrorCode)
	}
}
