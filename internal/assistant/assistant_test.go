package assistant

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"MantlePilot/internal/intent"
	"MantlePilot/internal/knowledge"
	"MantlePilot/internal/llm"
	"MantlePilot/internal/registry"
	"MantlePilot/internal/risk"
	"MantlePilot/internal/web3"
)

const testWallet = "0x1111111111111111111111111111111111111111"

type stubLLM struct {
	reply   string
	err     error
	lastReq llm.Request
}

func (s *stubLLM) Generate(_ context.Context, req llm.Request) (*llm.Response, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Response{Reply: s.reply}, nil
}

type stubChain struct {
	balance *big.Int
	err     error
}

func (s *stubChain) FetchChainSnapshot(context.Context) (web3.ChainSnapshot, error) {
	return web3.ChainSnapshot{ChainID: "0x1388"}, nil
}

func (s *stubChain) NativeBalance(context.Context, string) (*big.Int, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.balance, nil
}

func (s *stubChain) Close() {}

func TestProcessEmptyQueryReturnsWelcome(t *testing.T) {
	co := New(&stubLLM{reply: "unused"})
	outcome, err := co.Process(context.Background(), Request{Query: "   "})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if outcome.Type != OutcomeText {
		t.Fatalf("expected text outcome, got %s", outcome.Type)
	}
	if !strings.Contains(outcome.Reply, "MantlePilot") {
		t.Fatalf("expected welcome reply, got %q", outcome.Reply)
	}
}

func TestProcessStakeProducesTransactionPreview(t *testing.T) {
	co := New(&stubLLM{reply: "unused"})
	outcome, err := co.Process(context.Background(), Request{
		Query:         "stake 10 MNT",
		WalletAddress: testWallet,
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if outcome.Type != OutcomeTransactionRequired {
		t.Fatalf("expected transaction_required, got %s", outcome.Type)
	}
	if outcome.Action == nil || outcome.Action.Kind != intent.KindStake {
		t.Fatalf("expected stake action, got %+v", outcome.Action)
	}
	if outcome.Preview == nil {
		t.Fatal("expected a preview")
	}
	if outcome.Preview.SafetyScore != 90 || outcome.Preview.SafetyLevel != risk.LevelHigh {
		t.Fatalf("unexpected safety: %d/%s", outcome.Preview.SafetyScore, outcome.Preview.SafetyLevel)
	}
	if !strings.Contains(outcome.Reply, "Safety score 90/100") {
		t.Fatalf("unexpected reply: %q", outcome.Reply)
	}
	found := false
	for _, warning := range outcome.Preview.Warnings {
		if strings.Contains(warning, "next epoch") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected epoch warning, got %v", outcome.Preview.Warnings)
	}
}

func TestProcessExecutionRequiresWallet(t *testing.T) {
	co := New(&stubLLM{reply: "unused"})
	outcome, err := co.Process(context.Background(), Request{Query: "swap 10 mnt for usdc"})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if outcome.Type != OutcomeWalletRequired {
		t.Fatalf("expected wallet_required, got %s", outcome.Type)
	}
}

func TestProcessMalformedAddressIsValidationOutcome(t *testing.T) {
	co := New(&stubLLM{reply: "unused"})
	outcome, err := co.Process(context.Background(), Request{
		Query:         "send 5 mnt to 0xZZZZ",
		WalletAddress: testWallet,
	})
	if err != nil {
		t.Fatalf("validation problems must not surface as errors: %v", err)
	}
	if outcome.Type != OutcomeValidation {
		t.Fatalf("expected validation, got %s", outcome.Type)
	}
	if outcome.Action != nil {
		t.Fatal("no action should be attached to a validation outcome")
	}
}

func TestProcessUnparsedExecutionAsksForClarification(t *testing.T) {
	co := New(&stubLLM{reply: "unused"})
	outcome, err := co.Process(context.Background(), Request{
		Query:         "buy something nice for me",
		WalletAddress: testWallet,
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if outcome.Type != OutcomeClarification {
		t.Fatalf("expected clarification, got %s", outcome.Type)
	}
}

func TestProcessPriceQueryIsTextOutcome(t *testing.T) {
	co := New(&stubLLM{reply: "unused"})
	outcome, err := co.Process(context.Background(), Request{Query: "what is the price of mnt"})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if outcome.Type != OutcomeText {
		t.Fatalf("read-only calls need no signature, got %s", outcome.Type)
	}
	if outcome.Preview == nil {
		t.Fatal("price queries still carry a preview")
	}
	if outcome.Action == nil || outcome.Action.Kind != intent.KindPriceQuery {
		t.Fatalf("expected price query action, got %+v", outcome.Action)
	}
}

func TestProcessBalanceUsesChainReader(t *testing.T) {
	chain := &stubChain{balance: big.NewInt(0).Mul(big.NewInt(25), big.NewInt(1e17))} // 2.5 MNT
	co := New(&stubLLM{reply: "unused"}, WithChainReader(chain))
	outcome, err := co.Process(context.Background(), Request{
		Query:         "what is my wallet balance",
		WalletAddress: testWallet,
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if outcome.Type != OutcomeText {
		t.Fatalf("expected text, got %s", outcome.Type)
	}
	if !strings.Contains(outcome.Reply, "2.5000 MNT") {
		t.Fatalf("unexpected reply: %q", outcome.Reply)
	}
}

func TestProcessBalanceFallsBackToLLMOnChainError(t *testing.T) {
	chain := &stubChain{err: errors.New("rpc unreachable")}
	stub := &stubLLM{reply: "I could not check on-chain, but here is what I know."}
	co := New(stub, WithChainReader(chain))
	outcome, err := co.Process(context.Background(), Request{
		Query:         "what is my wallet balance",
		WalletAddress: testWallet,
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if outcome.Reply != stub.reply {
		t.Fatalf("expected LLM fallback reply, got %q", outcome.Reply)
	}
}

func TestProcessConversationalUsesLLM(t *testing.T) {
	stub := &stubLLM{reply: "Agni Finance is the leading DEX on Mantle."}
	co := New(stub, WithKnowledgeProvider(knowledge.NewBuiltinProvider(3)))
	outcome, err := co.Process(context.Background(), Request{Query: "what is agni finance exactly"})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if outcome.Type != OutcomeText {
		t.Fatalf("expected text, got %s", outcome.Type)
	}
	if outcome.Reply != stub.reply {
		t.Fatalf("unexpected reply: %q", outcome.Reply)
	}
	if outcome.Degraded {
		t.Fatal("successful LLM calls are not degraded")
	}
	if len(stub.lastReq.Knowledge) == 0 {
		t.Fatal("expected knowledge cards to reach the LLM")
	}
}

func TestProcessDegradesWhenLLMMissing(t *testing.T) {
	co := New(nil)
	outcome, err := co.Process(context.Background(), Request{Query: "tell me about mantle network"})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !outcome.Degraded {
		t.Fatal("expected degraded outcome without an LLM client")
	}
	if outcome.Reply == "" {
		t.Fatal("degraded outcomes still carry a reply")
	}
}

func TestProcessDegradesWhenLLMFails(t *testing.T) {
	stub := &stubLLM{err: errors.New("upstream 500")}
	co := New(stub)
	outcome, err := co.Process(context.Background(), Request{Query: "tell me about mantle network"})
	if err != nil {
		t.Fatalf("collaborator failures must not surface as errors: %v", err)
	}
	if !outcome.Degraded {
		t.Fatal("expected degraded outcome on LLM failure")
	}
	if outcome.Category != registry.CategoryConversational {
		t.Fatalf("unexpected category: %s", outcome.Category)
	}
}
