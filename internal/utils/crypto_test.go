// internal/utils/crypto_test.go
package utils

import (
	"strings"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := "session-secret-passphrase"
	plain := "sk-abc123-narrator-key"

	enc, err := Encrypt(plain, key)
	if err != nil {
		t.Fatal(err)
	}
	if enc == plain || strings.Contains(enc, plain) {
		t.Error("ciphertext leaks the plaintext")
	}

	dec, err := Decrypt(enc, key)
	if err != nil {
		t.Fatal(err)
	}
	if dec != plain {
		t.Errorf("decrypted = %q, want %q", dec, plain)
	}
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	a, err := Encrypt("same input", "key")
	if err != nil {
		t.Fatal(err)
	}
	b, err := Encrypt("same input", "key")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("two encryptions produced identical ciphertexts")
	}
}

func TestDecryptWrongKeyFails(t *testing.T) {
	enc, err := Encrypt("secret", "right key")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Decrypt(enc, "wrong key"); err == nil {
		t.Error("decryption with the wrong key should fail")
	}
}

func TestDecryptGarbageFails(t *testing.T) {
	if _, err := Decrypt("not base64 at all!!!", "key"); err == nil {
		t.Error("garbage ciphertext should fail")
	}
	if _, err := Decrypt("aGVsbG8=", "key"); err == nil {
		t.Error("too-short ciphertext should fail")
	}
}
