package auth

import (
	"testing"
	"time"
)

func TestGenerateCodeFormat(t *testing.T) {
	svc := NewOTPService(10 * time.Minute)

	for i := 0; i < 50; i++ {
		code, err := svc.GenerateCode()
		if err != nil {
			t.Fatalf("GenerateCode() error = %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("len(code) = %d, want 6 (code=%q)", len(code), code)
		}
		for _, c := range code {
			if c < '0' || c > '9' {
				t.Fatalf("code %q contains non-digit %q", code, c)
			}
		}
		if code[0] == '0' {
			t.Fatalf("code %q has a leading zero", code)
		}
	}
}

func TestHashOTPNeverEqualsCode(t *testing.T) {
	hash := HashOTP("alice@example.com", "123456")
	if hash == "123456" {
		t.Fatal("hash equals the plaintext code")
	}
	if !VerifyOTP("alice@example.com", "123456", hash) {
		t.Fatal("VerifyOTP() rejected the correct code")
	}
}

func TestVerifyOTPRejectsWrongCodeAndEmail(t *testing.T) {
	hash := HashOTP("alice@example.com", "123456")

	if VerifyOTP("alice@example.com", "654321", hash) {
		t.Fatal("VerifyOTP() accepted a wrong code")
	}
	if VerifyOTP("bob@example.com", "123456", hash) {
		t.Fatal("VerifyOTP() accepted a code issued for another email")
	}
}

func TestExpiresAtUsesTTL(t *testing.T) {
	svc := NewOTPService(10 * time.Minute)

	expiresAt := svc.ExpiresAt()
	until := time.Until(expiresAt)
	if until < 9*time.Minute || until > 10*time.Minute {
		t.Fatalf("ExpiresAt() = %v from now, want ~10m", until)
	}
}
