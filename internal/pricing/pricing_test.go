package pricing

import "testing"

func TestLookup_ExactMatch(t *testing.T) {
	r := NewRegistry()
	rates := r.Lookup("claude-opus-4-6")
	if rates.InputPerMillion != 5.0 {
		t.Fatalf("input rate = %v, want 5.0", rates.InputPerMillion)
	}
}

func TestLookup_SubstringMatch(t *testing.T) {
	r := NewRegistry()
	rates := r.Lookup("claude-sonnet-4-5-20250929-beta")
	if rates.InputPerMillion != 3.0 {
		t.Fatalf("input rate = %v, want 3.0", rates.InputPerMillion)
	}
}

func TestLookup_FamilyMatch(t *testing.T) {
	r := NewRegistry()
	rates := r.Lookup("some-future-haiku-model")
	if rates.InputPerMillion != 0.80 {
		t.Fatalf("input rate = %v, want haiku 0.80", rates.InputPerMillion)
	}
}

func TestLookup_OpusFallback(t *testing.T) {
	r := NewRegistry()
	rates := r.Lookup("totally-unknown-model")
	if rates.InputPerMillion != 5.0 {
		t.Fatalf("fallback input rate = %v, want opus 5.0", rates.InputPerMillion)
	}
}

func TestRegister_Override(t *testing.T) {
	r := NewRegistry()
	r.Register("claude-opus-4-6", Rates{InputPerMillion: 1})
	rates := r.Lookup("claude-opus-4-6")
	if rates.InputPerMillion != 1 {
		t.Fatalf("override failed: got %v", rates.InputPerMillion)
	}
}
