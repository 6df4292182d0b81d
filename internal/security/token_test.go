package security

import "testing"

func TestHashTokenRequiresMinimumLength(t *testing.T) {
	if _, err := HashToken("short"); err == nil {
		t.Fatalf("expected error for short token")
	}
}

func TestHashTokenAndVerify(t *testing.T) {
	token, err := NewToken()
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	hash, err := HashToken(token)
	if err != nil {
		t.Fatalf("hash token: %v", err)
	}
	if !VerifyToken(token, hash) {
		t.Fatalf("expected token verification to succeed")
	}
	if VerifyToken("some-other-token-value", hash) {
		t.Fatalf("expected wrong token verification to fail")
	}
}

func TestTokenLookupKeyIsStable(t *testing.T) {
	if TokenLookupKey("abcdef0123456789") != TokenLookupKey("abcdef0123456789") {
		t.Fatalf("expected lookup key to be deterministic")
	}
	if TokenLookupKey("abcdef0123456789") == TokenLookupKey("abcdef0123456780") {
		t.Fatalf("expected distinct tokens to produce distinct keys")
	}
}
