package internal

import "testing"

func TestNewOpaqueTokenIsUniqueAndURLSafe(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 64; i++ {
		tok, err := NewOpaqueToken()
		if err != nil {
			t.Fatalf("NewOpaqueToken: %v", err)
		}
		if len(tok) != 43 {
			t.Fatalf("expected 43 chars, got %d", len(tok))
		}
		for _, r := range tok {
			if r == '+' || r == '/' || r == '=' {
				t.Fatalf("token %q is not base64url without padding", tok)
			}
		}
		if seen[tok] {
			t.Fatalf("duplicate token %q", tok)
		}
		seen[tok] = true
	}
}

func TestHashTokenIsStable(t *testing.T) {
	a := HashToken("secret")
	if a != HashToken("secret") {
		t.Fatal("hash not deterministic")
	}
	if a == HashToken("secret2") {
		t.Fatal("different inputs hashed equal")
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256, got %d chars", len(a))
	}
}
