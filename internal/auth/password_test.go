package auth

import "testing"

func TestHashNeverEqualsPassword(t *testing.T) {
	hasher := NewPasswordHasher(4) // minimum cost keeps the test fast

	hash, err := hasher.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if hash == "correct horse battery staple" {
		t.Fatal("hash equals the plaintext password")
	}
	if !hasher.Compare(hash, "correct horse battery staple") {
		t.Fatal("Compare() rejected the correct password")
	}
}

func TestCompareRejectsWrongPassword(t *testing.T) {
	hasher := NewPasswordHasher(4)

	hash, err := hasher.Hash("hunter2hunter2")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if hasher.Compare(hash, "hunter3hunter3") {
		t.Fatal("Compare() accepted a wrong password")
	}
}

func TestHashIsSalted(t *testing.T) {
	hasher := NewPasswordHasher(4)

	first, err := hasher.Hash("same password")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	second, err := hasher.Hash("same password")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if first == second {
		t.Fatal("two hashes of the same password are identical")
	}
}
