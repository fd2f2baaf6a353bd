package tokens

import "testing"

func TestResolveIsCaseInsensitive(t *testing.T) {
	for _, symbol := range []string{"usdc", "USDC", " Usdc "} {
		token, ok := Resolve(symbol)
		if !ok {
			t.Fatalf("expected %q to resolve", symbol)
		}
		if token.Symbol != "USDC" || token.Decimals != 6 {
			t.Fatalf("unexpected token for %q: %+v", symbol, token)
		}
	}
	if _, ok := Resolve("DOGE"); ok {
		t.Fatal("unsupported symbol must not resolve")
	}
}

func TestNativeToken(t *testing.T) {
	token, ok := Resolve(NativeSymbol)
	if !ok || !token.Native {
		t.Fatalf("native token misconfigured: %+v", token)
	}
}

func TestIsValidAddress(t *testing.T) {
	if !IsValidAddress("0x319B69888b0d11cEC22caA5034e25FfFBDc88421") {
		t.Fatal("router address should be valid")
	}
	if !IsValidAddress(" 0x319b69888b0d11cec22caa5034e25fffbdc88421 ") {
		t.Fatal("lowercase with padding should be valid")
	}
	if IsValidAddress("0x1234") {
		t.Fatal("short address must be rejected")
	}
	if IsValidAddress("not-an-address") {
		t.Fatal("garbage must be rejected")
	}
}

func TestNormalizeProducesChecksum(t *testing.T) {
	got := Normalize("0x319b69888b0d11cec22caa5034e25fffbdc88421")
	if got != "0x319B69888b0d11cEC22caA5034e25FfFBDc88421" {
		t.Fatalf("unexpected checksum form: %s", got)
	}
	// 非法输入原样返回,仅去除空白。
	if got := Normalize(" bogus "); got != "bogus" {
		t.Fatalf("unexpected passthrough: %q", got)
	}
}

func TestKnownContractsIsACopy(t *testing.T) {
	contracts := KnownContracts()
	if len(contracts) == 0 {
		t.Fatal("expected built-in contracts")
	}
	contracts[0].Address = ZeroAddress
	if SwapRouterAddress() == ZeroAddress {
		t.Fatal("mutating the returned slice must not affect internal state")
	}
}

func TestDefaultRates(t *testing.T) {
	rates := DefaultRates()
	if rate, ok := rates.USDRate("mnt"); !ok || rate != 0.65 {
		t.Fatalf("unexpected MNT rate: %v %v", rate, ok)
	}
	if _, ok := rates.USDRate("DOGE"); ok {
		t.Fatal("unknown symbol should have no rate")
	}
}
