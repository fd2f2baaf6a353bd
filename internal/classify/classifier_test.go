package classify

import (
	"testing"

	"MantlePilot/internal/registry"
)

func TestClassifyShortMessagesAreSmallTalk(t *testing.T) {
	for _, query := range []string{"hi", "gm", "ok", "yo", "", "   "} {
		result := Classify(query, true)
		if result.Category != registry.CategoryConversational {
			t.Fatalf("query %q: expected conversational, got %s", query, result.Category)
		}
		if len(result.Handlers) != 1 || result.Handlers[0] != registry.HandlerChat {
			t.Fatalf("query %q: unexpected handlers %v", query, result.Handlers)
		}
	}
}

func TestClassifyGreetingBypassesStructuredAnalysis(t *testing.T) {
	result := Classify("thank you", true)
	if result.Category != registry.CategoryConversational {
		t.Fatalf("expected conversational, got %s", result.Category)
	}
}

func TestClassifyExecutionBeatsAnalysis(t *testing.T) {
	// "swap" 与 "balance" 同时出现时执行类别胜出。
	result := Classify("check my balance then swap 10 mnt for usdc", true)
	if result.Category != registry.CategoryExecution {
		t.Fatalf("expected execution, got %s", result.Category)
	}
	if result.Handlers[0] != registry.HandlerSwap {
		t.Fatalf("expected swap handler first, got %v", result.Handlers)
	}
}

func TestClassifyStakingHandlerWinsOverSwap(t *testing.T) {
	result := Classify("unstake everything and sell it", false)
	if result.Category != registry.CategoryExecution {
		t.Fatalf("expected execution, got %s", result.Category)
	}
	if result.Handlers[0] != registry.HandlerStaking {
		t.Fatalf("expected staking handler first, got %v", result.Handlers)
	}
}

func TestClassifyAnalysisRequiresWallet(t *testing.T) {
	withWallet := Classify("show me my portfolio please", true)
	if withWallet.Category != registry.CategoryAnalysis {
		t.Fatalf("expected analysis with wallet, got %s", withWallet.Category)
	}

	withoutWallet := Classify("show me my portfolio please", false)
	if withoutWallet.Category != registry.CategoryConversational {
		t.Fatalf("expected conversational without wallet, got %s", withoutWallet.Category)
	}
}

func TestClassifyExecutionRequiresWalletFlag(t *testing.T) {
	result := Classify("transfer 5 mnt to my friend", false)
	if result.Category != registry.CategoryExecution {
		t.Fatalf("expected execution, got %s", result.Category)
	}
	if !result.RequiresWallet {
		t.Fatal("transfer should require a wallet")
	}
	if !result.RequiresTransaction {
		t.Fatal("transfer should require a transaction")
	}
}

func TestClassifyMarketQueryNeedsNoWallet(t *testing.T) {
	result := Classify("what is the price of mnt today", false)
	if result.Category != registry.CategoryExecution {
		t.Fatalf("expected execution, got %s", result.Category)
	}
	if result.Handlers[0] != registry.HandlerMarket {
		t.Fatalf("expected market handler, got %v", result.Handlers)
	}
	if result.RequiresWallet {
		t.Fatal("price queries should not require a wallet")
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	first := Classify("swap 10 mnt for usdc", true)
	for i := 0; i < 5; i++ {
		again := Classify("swap 10 mnt for usdc", true)
		if again.Category != first.Category || len(again.Handlers) != len(first.Handlers) {
			t.Fatal("classification is not deterministic")
		}
	}
}
