package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"
)

type OTPService struct {
	ttl time.Duration
}

func NewOTPService(ttl time.Duration) *OTPService {
	return &OTPService{ttl: ttl}
}

// GenerateCode creates a 6-digit numeric code in [100000, 999999] using
// crypto/rand, so codes never carry a leading zero.
func (s *OTPService) GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generating random code: %w", err)
	}
	return fmt.Sprintf("%d", n.Int64()+100000), nil
}

// ExpiresAt returns when a newly issued code should expire.
func (s *OTPService) ExpiresAt() time.Time {
	return time.Now().Add(s.ttl)
}

func (s *OTPService) TTL() time.Duration {
	return s.ttl
}

// HashOTP binds the code to the email it was issued for so a code stolen from
// one inbox cannot verify a different account. Codes are never stored in
// plaintext.
func HashOTP(email, code string) string {
	h := sha256.Sum256([]byte(email + ":" + code))
	return hex.EncodeToString(h[:])
}

// VerifyOTP compares a submitted code against the stored hash in constant
// time.
func VerifyOTP(email, code, storedHash string) bool {
	expected := HashOTP(email, code)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(storedHash)) == 1
}
