package auth

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func hashers() map[string]Hasher {
	// bcrypt at MinCost to keep the suite fast; the cost parameter does not
	// change the verify contract.
	return map[string]Hasher{
		"bcrypt":   NewBcryptHasher(bcrypt.MinCost),
		"argon2id": NewArgon2idHasher(),
	}
}

func TestHasher_RoundTrip(t *testing.T) {
	for name, h := range hashers() {
		h := h
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			hash, err := h.Hash("correct-pw")
			if err != nil {
				t.Fatalf("Hash error: %v", err)
			}
			if hash == "" || hash == "correct-pw" {
				t.Fatalf("hash must be non-empty and differ from plaintext, got %q", hash)
			}
			if !h.Verify("correct-pw", hash) {
				t.Fatalf("Verify must accept the original plaintext")
			}
			if h.Verify("wrong-pw", hash) {
				t.Fatalf("Verify must reject a different plaintext")
			}
		})
	}
}

func TestHasher_SaltedOutputsDiffer(t *testing.T) {
	for name, h := range hashers() {
		h := h
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			a, err := h.Hash("same-pw")
			if err != nil {
				t.Fatalf("Hash error: %v", err)
			}
			b, err := h.Hash("same-pw")
			if err != nil {
				t.Fatalf("Hash error: %v", err)
			}
			if a == b {
				t.Fatalf("two hashes of the same password are identical, salt missing")
			}
			if !h.Verify("same-pw", a) || !h.Verify("same-pw", b) {
				t.Fatalf("both salted hashes must verify")
			}
		})
	}
}

func TestHasher_MalformedHashReturnsFalse(t *testing.T) {
	malformed := []string{
		"",
		"plaintext",
		"$argon2id$v=19$garbage",
		"$argon2id$v=19$m=x,t=y,p=z$AAAA$BBBB",
		"$argon2id$v=19$m=65536,t=1,p=4$!!!$???",
		"$2a$totally-not-bcrypt",
	}
	for name, h := range hashers() {
		h := h
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			for _, bad := range malformed {
				if h.Verify("pw", bad) {
					t.Fatalf("Verify accepted malformed hash %q", bad)
				}
			}
		})
	}
}

func TestNewBcryptHasher_ClampsBadCost(t *testing.T) {
	h := NewBcryptHasher(1000)
	hash, err := h.Hash("pw")
	if err != nil {
		t.Fatalf("Hash error with clamped cost: %v", err)
	}
	if !h.Verify("pw", hash) {
		t.Fatalf("Verify failed after clamping")
	}
}
