package preview

import (
	"strings"
	"testing"

	"MantlePilot/internal/intent"
	"MantlePilot/internal/risk"
)

func stakeAction(amount string, params map[string]string) *intent.ContractAction {
	merged := map[string]string{intent.ParamAmount: amount, intent.ParamToken: "MNT"}
	for k, v := range params {
		merged[k] = v
	}
	return &intent.ContractAction{
		Kind:              intent.KindStake,
		FunctionName:      "stake",
		Parameters:        merged,
		EstimatedGasUnits: 120000,
	}
}

func TestSynthesizeStakePreview(t *testing.T) {
	safety := risk.SafetyAssessment{Score: 90, Level: risk.LevelHigh}
	address := risk.AddressAssessment{Risk: risk.RiskSafe}

	p := Synthesize(stakeAction("10", nil), safety, address)

	if p.SafetyScore != 90 || p.SafetyLevel != risk.LevelHigh {
		t.Fatalf("safety fields not carried over: %+v", p)
	}
	if !p.ContractVerified {
		t.Fatal("safe addresses imply a verified contract")
	}
	if p.GasCost != "~0.0024 MNT (120000 gas)" {
		t.Fatalf("unexpected gas cost: %s", p.GasCost)
	}
	if p.TimeEstimate != "under 1 minute" {
		t.Fatalf("unexpected time estimate: %s", p.TimeEstimate)
	}
	if p.SuccessProbability != 97 {
		t.Fatalf("unexpected success probability: %d", p.SuccessProbability)
	}
	found := false
	for _, warning := range p.Warnings {
		if strings.Contains(warning, "next epoch") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected epoch warning, got %v", p.Warnings)
	}
}

func TestSynthesizeStakeConversionWarning(t *testing.T) {
	p := Synthesize(
		stakeAction("2", map[string]string{intent.ParamConvertedFrom: "eth"}),
		risk.SafetyAssessment{Score: 90, Level: risk.LevelHigh},
		risk.AddressAssessment{Risk: risk.RiskSafe},
	)
	found := false
	for _, warning := range p.Warnings {
		if strings.Contains(warning, "ETH") && strings.Contains(warning, "converted to MNT") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected conversion warning, got %v", p.Warnings)
	}
}

func TestSynthesizeDangerousAddressCapsSuccess(t *testing.T) {
	action := &intent.ContractAction{
		Kind:         intent.KindTransfer,
		FunctionName: "transfer",
		Parameters: map[string]string{
			intent.ParamAmount:    "5",
			intent.ParamRecipient: "0x0000000000000000000000000000000000000000",
		},
	}
	address := risk.AddressAssessment{
		Risk:     risk.RiskDangerous,
		Warnings: []string{"This is the zero address: funds will be lost permanently."},
	}
	p := Synthesize(action, risk.SafetyAssessment{Score: 20, Level: risk.LevelDanger}, address)

	if p.SuccessProbability != 25 {
		t.Fatalf("expected capped success probability, got %d", p.SuccessProbability)
	}
	if p.ContractVerified {
		t.Fatal("dangerous addresses are never verified")
	}
	if len(p.Warnings) == 0 || !strings.Contains(p.Warnings[0], "zero address") {
		t.Fatalf("address warnings should come first: %v", p.Warnings)
	}
}

func TestSynthesizeUnknownKindFallsBack(t *testing.T) {
	action := &intent.ContractAction{Kind: intent.Kind("teleport")}
	p := Synthesize(action,
		risk.SafetyAssessment{Score: 40, Level: risk.LevelLow},
		risk.AddressAssessment{Risk: risk.RiskUnknown})

	if p.Description != "Unrecognized action." {
		t.Fatalf("unexpected description: %s", p.Description)
	}
	if p.SuccessProbability != 50 {
		t.Fatalf("expected fallback probability 50, got %d", p.SuccessProbability)
	}
	if p.GasCost != "unknown" || p.TimeEstimate != "unknown" {
		t.Fatalf("unknown kinds should not get cost estimates: %+v", p)
	}
}

func TestSynthesizeWithLiveBalance(t *testing.T) {
	p := Synthesize(
		stakeAction("10", nil),
		risk.SafetyAssessment{Score: 90, Level: risk.LevelHigh},
		risk.AddressAssessment{Risk: risk.RiskSafe},
		WithLiveBalance(42.5),
	)
	if p.BeforeBalance != "42.5000 MNT (live)" {
		t.Fatalf("unexpected before balance: %s", p.BeforeBalance)
	}
	if p.AfterBalance != "32.5000 MNT (estimated)" {
		t.Fatalf("unexpected after balance: %s", p.AfterBalance)
	}
}

func TestSynthesizePriceQueryIsReadOnly(t *testing.T) {
	action := &intent.ContractAction{
		Kind:       intent.KindPriceQuery,
		Parameters: map[string]string{intent.ParamTokens: "MNT,USDC"},
	}
	p := Synthesize(action,
		risk.SafetyAssessment{Score: 100, Level: risk.LevelHigh},
		risk.AddressAssessment{Risk: risk.RiskSafe})

	if p.NetChange != "none (read-only)" {
		t.Fatalf("unexpected net change: %s", p.NetChange)
	}
	if p.GasCost != "none (read-only call)" {
		t.Fatalf("unexpected gas cost: %s", p.GasCost)
	}
	if p.SuccessProbability != 99 {
		t.Fatalf("unexpected success probability: %d", p.SuccessProbability)
	}
}
