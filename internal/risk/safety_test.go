package risk

import (
	"testing"

	"MantlePilot/internal/intent"
)

func floatPtr(v float64) *float64 { return &v }

func TestScoreStakeToKnownContract(t *testing.T) {
	action := &intent.ContractAction{Kind: intent.KindStake}
	assessment := Score(action, AddressAssessment{Risk: RiskSafe}, floatPtr(10))

	// 100 + 0 (safe) + 0 (amount <= 10) - 10 (stake) = 90
	if assessment.Score != 90 {
		t.Fatalf("expected 90, got %d", assessment.Score)
	}
	if assessment.Level != LevelHigh {
		t.Fatalf("expected high, got %s", assessment.Level)
	}
}

func TestScoreAdjustmentsAreAdditive(t *testing.T) {
	action := &intent.ContractAction{Kind: intent.KindSwap}
	assessment := Score(action, AddressAssessment{Risk: RiskUnknown}, floatPtr(150))

	// 100 - 20 (unknown) - 15 (amount > 100) - 25 (swap) = 40
	if assessment.Score != 40 {
		t.Fatalf("expected 40, got %d", assessment.Score)
	}
	if assessment.Level != LevelLow {
		t.Fatalf("expected low, got %s", assessment.Level)
	}
}

func TestScoreClampsAtZero(t *testing.T) {
	action := &intent.ContractAction{Kind: intent.KindSwap}
	assessment := Score(action, AddressAssessment{Risk: RiskDangerous}, floatPtr(5000))

	// 100 - 70 - 30 - 25 = -25 → clamped to 0
	if assessment.Score != 0 {
		t.Fatalf("expected 0, got %d", assessment.Score)
	}
	if assessment.Level != LevelDanger {
		t.Fatalf("expected danger, got %s", assessment.Level)
	}
}

func TestScoreClaimRewardsCapsAtHundred(t *testing.T) {
	action := &intent.ContractAction{Kind: intent.KindClaimRewards}
	assessment := Score(action, AddressAssessment{Risk: RiskSafe}, nil)

	// 100 + 0 + 5 = 105 → clamped to 100
	if assessment.Score != 100 {
		t.Fatalf("expected 100, got %d", assessment.Score)
	}
	if assessment.Level != LevelHigh {
		t.Fatalf("expected high, got %s", assessment.Level)
	}
}

func TestScoreUnknownKindNeverErrors(t *testing.T) {
	action := &intent.ContractAction{Kind: intent.Kind("teleport")}
	assessment := Score(action, AddressAssessment{Risk: RiskSafe}, nil)

	// 100 - 60 (unknown kind) = 40
	if assessment.Score != 40 {
		t.Fatalf("expected 40, got %d", assessment.Score)
	}
	if len(assessment.Warnings) == 0 {
		t.Fatal("unknown kinds should be flagged with a warning")
	}
}

func TestScoreNilActionTreatedAsUnknownKind(t *testing.T) {
	assessment := Score(nil, AddressAssessment{Risk: RiskUnknown}, nil)

	// 100 - 20 - 60 = 20
	if assessment.Score != 20 {
		t.Fatalf("expected 20, got %d", assessment.Score)
	}
	if assessment.Level != LevelDanger {
		t.Fatalf("expected danger, got %s", assessment.Level)
	}
}

func TestScoreNilAmountSkipsAmountPenalty(t *testing.T) {
	action := &intent.ContractAction{Kind: intent.KindPriceQuery}
	assessment := Score(action, AddressAssessment{Risk: RiskSafe}, nil)
	if assessment.Score != 100 {
		t.Fatalf("expected 100, got %d", assessment.Score)
	}
}

func TestLevelBoundaries(t *testing.T) {
	cases := []struct {
		score int
		level SafetyLevel
	}{
		{100, LevelHigh},
		{80, LevelHigh},
		{79, LevelMedium},
		{60, LevelMedium},
		{59, LevelLow},
		{30, LevelLow},
		{29, LevelDanger},
		{0, LevelDanger},
	}
	for _, tc := range cases {
		if got := levelOf(tc.score); got != tc.level {
			t.Fatalf("score %d: expected %s, got %s", tc.score, tc.level, got)
		}
	}
}
