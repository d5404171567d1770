package crypto

import (
	"path/filepath"
	"testing"
)

func TestGenerateSignVerify(t *testing.T) {
	k, err := GenerateIdentityKey()
	if err != nil {
		t.Fatalf("GenerateIdentityKey: %v", err)
	}
	msg := []byte("hello commitment")
	sig, err := k.Sign(msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if len(sig) != 64 {
		t.Fatalf("expected 64-byte signature, got %d", len(sig))
	}
	ok, err := VerifySignature(k.PublicKeyHex(), msg, sig)
	if err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}
	if !ok {
		t.Fatalf("expected signature to verify")
	}
}

func TestVerifySignatureRejectsMutation(t *testing.T) {
	k, err := GenerateIdentityKey()
	if err != nil {
		t.Fatalf("GenerateIdentityKey: %v", err)
	}
	msg := []byte("hello commitment")
	sig, err := k.Sign(msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	mutated := append([]byte(nil), msg...)
	mutated[0] ^= 0x01
	ok, err := VerifySignature(k.PublicKeyHex(), mutated, sig)
	if err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}
	if ok {
		t.Fatalf("expected verification to fail for mutated message")
	}

	other, err := GenerateIdentityKey()
	if err != nil {
		t.Fatalf("GenerateIdentityKey: %v", err)
	}
	ok, err = VerifySignature(other.PublicKeyHex(), msg, sig)
	if err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}
	if ok {
		t.Fatalf("expected verification to fail under the wrong public key")
	}
}

func TestLoadOrCreateIdentityKeyRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "identity.json")

	k1, err := LoadOrCreateIdentityKey(path, nil)
	if err != nil {
		t.Fatalf("LoadOrCreateIdentityKey (create): %v", err)
	}
	k2, err := LoadOrCreateIdentityKey(path, nil)
	if err != nil {
		t.Fatalf("LoadOrCreateIdentityKey (load): %v", err)
	}
	if k1.PublicKeyHex() != k2.PublicKeyHex() {
		t.Fatalf("reloaded key has different public key: %s vs %s", k1.PublicKeyHex(), k2.PublicKeyHex())
	}
}

func TestIdentityKeyEncryptedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "identity.json")
	passphrase := []byte("correct horse battery staple")

	k1, err := GenerateIdentityKey()
	if err != nil {
		t.Fatalf("GenerateIdentityKey: %v", err)
	}
	if err := SaveIdentityKey(path, k1, passphrase); err != nil {
		t.Fatalf("SaveIdentityKey: %v", err)
	}

	if _, err := LoadIdentityKey(path, nil); err == nil {
		t.Fatalf("expected error loading encrypted key without passphrase")
	}
	if _, err := LoadIdentityKey(path, []byte("wrong passphrase")); err == nil {
		t.Fatalf("expected error loading encrypted key with wrong passphrase")
	}

	k2, err := LoadIdentityKey(path, passphrase)
	if err != nil {
		t.Fatalf("LoadIdentityKey: %v", err)
	}
	if k1.PublicKeyHex() != k2.PublicKeyHex() {
		t.Fatalf("decrypted key mismatch")
	}
}

func TestDoubleSHA256Deterministic(t *testing.T) {
	a := DoubleSHA256([]byte("x"))
	b := DoubleSHA256([]byte("x"))
	if a != b {
		t.Fatalf("DoubleSHA256 not deterministic")
	}
	c := DoubleSHA256([]byte("y"))
	if a == c {
		t.Fatalf("DoubleSHA256 collided for distinct inputs")
	}
}
