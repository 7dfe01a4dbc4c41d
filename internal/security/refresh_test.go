package security

import "testing"

func TestGenerateRefreshToken(t *testing.T) {
	a, err := GenerateRefreshToken()
	if err != nil {
		t.Fatalf("GenerateRefreshToken: %v", err)
	}
	b, err := GenerateRefreshToken()
	if err != nil {
		t.Fatalf("GenerateRefreshToken: %v", err)
	}
	if a == b {
		t.Error("two generated tokens should differ")
	}
	if len(a) < 64 {
		t.Errorf("token length = %d, want at least 64 chars of encoded entropy", len(a))
	}
}

func TestHashRefreshToken(t *testing.T) {
	h1 := HashRefreshToken("some-token")
	h2 := HashRefreshToken("some-token")
	if h1 != h2 {
		t.Error("hash should be deterministic")
	}
	if h1 == "some-token" {
		t.Error("hash should not equal the raw token")
	}
	if len(h1) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(h1))
	}
	if HashRefreshToken("other-token") == h1 {
		t.Error("different tokens should hash differently")
	}
}

func TestRefreshTokenHashEqual(t *testing.T) {
	stored := HashRefreshToken("the-token")
	if !RefreshTokenHashEqual("the-token", stored) {
		t.Error("matching token should compare equal")
	}
	if RefreshTokenHashEqual("wrong-token", stored) {
		t.Error("non-matching token should not compare equal")
	}
}
