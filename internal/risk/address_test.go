package risk

import (
	"strings"
	"testing"

	"MantlePilot/internal/tokens"
)

func TestAssessZeroAddressIsDangerous(t *testing.T) {
	assessment := AssessAddress(tokens.ZeroAddress)
	if assessment.Risk != RiskDangerous {
		t.Fatalf("expected dangerous, got %s", assessment.Risk)
	}
	if len(assessment.Warnings) == 0 {
		t.Fatal("expected a warning for the zero address")
	}
}

func TestAssessKnownContractIsSafe(t *testing.T) {
	for _, contract := range tokens.KnownContracts() {
		assessment := AssessAddress(contract.Address)
		if assessment.Risk != RiskSafe {
			t.Fatalf("contract %s: expected safe, got %s", contract.Name, assessment.Risk)
		}
		if len(assessment.Warnings) != 0 {
			t.Fatalf("contract %s: safe addresses carry no warnings", contract.Name)
		}
	}
}

func TestAssessIsCaseInsensitive(t *testing.T) {
	router := tokens.KnownContracts()[0].Address
	assessment := AssessAddress(strings.ToUpper(router))
	if assessment.Risk != RiskSafe {
		t.Fatalf("expected safe for uppercased address, got %s", assessment.Risk)
	}
}

func TestAssessNearMatchIsSuspicious(t *testing.T) {
	// 与允许清单中的路由地址仅末位不同。
	router := tokens.KnownContracts()[0].Address
	spoofed := router[:len(router)-1] + "f"
	if strings.EqualFold(spoofed, router) {
		spoofed = router[:len(router)-1] + "e"
	}
	assessment := AssessAddress(spoofed)
	if assessment.Risk != RiskSuspicious {
		t.Fatalf("expected suspicious for near match, got %s", assessment.Risk)
	}
	if len(assessment.Warnings) == 0 {
		t.Fatal("expected a spoofing warning")
	}
}

func TestAssessUnrelatedAddressIsUnknown(t *testing.T) {
	assessment := AssessAddress("0x9999999999999999999999999999999999999999")
	if assessment.Risk != RiskUnknown {
		t.Fatalf("expected unknown, got %s", assessment.Risk)
	}
	if len(assessment.Warnings) == 0 {
		t.Fatal("unknown addresses should carry a caution warning")
	}
}
