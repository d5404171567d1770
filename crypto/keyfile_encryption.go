package crypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	saltLen      = 16
)

// encryptKeyMaterial wraps raw secret-key bytes with a passphrase-derived
// key (scrypt) under nacl/secretbox (XSalsa20-Poly1305). Used only to
// protect the identity key file at rest; it never touches commitment
// payload content, which spec.md's Non-goals leave unencrypted.
func encryptKeyMaterial(passphrase, plaintext []byte) (ciphertext, salt, nonce []byte, err error) {
	salt = make([]byte, saltLen)
	if _, err = rand.Read(salt); err != nil {
		return nil, nil, nil, fmt.Errorf("crypto: read salt: %w", err)
	}
	derived, err := scrypt.Key(passphrase, salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("crypto: derive key: %w", err)
	}
	var key [32]byte
	copy(key[:], derived)

	var nonceArr [24]byte
	if _, err = rand.Read(nonceArr[:]); err != nil {
		return nil, nil, nil, fmt.Errorf("crypto: read nonce: %w", err)
	}
	ciphertext = secretbox.Seal(nil, plaintext, &nonceArr, &key)
	return ciphertext, salt, nonceArr[:], nil
}

func decryptKeyMaterial(passphrase, salt, nonce, ciphertext []byte) ([]byte, error) {
	if len(nonce) != 24 {
		return nil, fmt.Errorf("crypto: bad nonce length %d", len(nonce))
	}
	derived, err := scrypt.Key(passphrase, salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("crypto: derive key: %w", err)
	}
	var key [32]byte
	copy(key[:], derived)
	var nonceArr [24]byte
	copy(nonceArr[:], nonce)

	plaintext, ok := secretbox.Open(nil, ciphertext, &nonceArr, &key)
	if !ok {
		return nil, fmt.Errorf("crypto: decryption failed (wrong passphrase or corrupt data)")
	}
	return plaintext, nil
}
