package knowledge

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBuiltinProviderMatchesKeywords(t *testing.T) {
	provider := NewBuiltinProvider(3)
	results := provider.Query("how do I swap tokens on agni", "conversational")
	if len(results) == 0 {
		t.Fatal("expected at least one snippet")
	}
	if results[0].Title != "Agni Finance" {
		t.Fatalf("unexpected first snippet: %s", results[0].Title)
	}
}

func TestQueryRespectsMaxResults(t *testing.T) {
	provider := NewBuiltinProvider(1)
	results := provider.Query("agni swap staking mnt safety risk", "conversational")
	if len(results) != 1 {
		t.Fatalf("expected exactly one result, got %d", len(results))
	}
}

func TestQueryFallsBackToTags(t *testing.T) {
	provider := NewStaticProvider([]Snippet{
		{Title: "staking guide", Keywords: []string{"zzz"}, Tags: []string{"execution"}},
	}, 3)
	results := provider.Query("anything", "execution")
	if len(results) != 1 {
		t.Fatalf("expected tag match, got %d results", len(results))
	}
}

func TestQueryNoMatchReturnsEmpty(t *testing.T) {
	provider := NewBuiltinProvider(3)
	results := provider.Query("completely unrelated topic", "weather")
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}

func TestLoadStaticProvider(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "knowledge.json")
	payload := `[{"title":"Test","content":"body","keywords":["hello"],"tags":[]}]`
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	provider, err := LoadStaticProvider(path, 5)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	results := provider.Query("hello world", "")
	if len(results) != 1 || results[0].Title != "Test" {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestLoadStaticProviderRejectsMissingFile(t *testing.T) {
	if _, err := LoadStaticProvider(filepath.Join(t.TempDir(), "missing.json"), 3); err == nil {
		t.Fatal("expected error for missing file")
	}
}
