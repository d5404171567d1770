// Package crypto manages the store's secp256k1 identity key: generation,
// on-disk persistence, and the signing/verification primitives the ledger
// package needs to turn a canonical commitment image into a signature.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

const KeyType = "secp256k1"

// IdentityKey is the signing key a store uses to sign every commitment it
// appends. One store, one key, for the lifetime of the data directory.
type IdentityKey struct {
	priv *secp256k1.PrivateKey
}

// KeyFile is the on-disk record described by the identity key file contract.
type KeyFile struct {
	PrivateKey string `json:"privateKey"`
	PublicKey  string `json:"publicKey"`
	CreatedAt  int64  `json:"createdAt"`
	KeyType    string `json:"keyType"`

	// Encrypted is set when PrivateKey holds a nacl/secretbox ciphertext
	// (hex) rather than the raw key. Salt and Nonce are then populated.
	Encrypted bool   `json:"encrypted,omitempty"`
	SaltHex   string `json:"saltHex,omitempty"`
	NonceHex  string `json:"nonceHex,omitempty"`
}

// GenerateIdentityKey creates a fresh random secp256k1 key pair.
func GenerateIdentityKey() (*IdentityKey, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("crypto: generate key: %w", err)
	}
	return &IdentityKey{priv: priv}, nil
}

// PublicKeyHex returns the compressed public key as lowercase hex.
func (k *IdentityKey) PublicKeyHex() string {
	return hex.EncodeToString(k.priv.PubKey().SerializeCompressed())
}

func (k *IdentityKey) privateKeyHex() string {
	return hex.EncodeToString(k.priv.Serialize())
}

// Sign produces a 64-byte compact secp256k1 signature (raw R||S, no
// recovery byte, no DER wrapper) over the double-SHA-256 of msg.
func (k *IdentityKey) Sign(msg []byte) ([]byte, error) {
	return Sign(k.priv, msg)
}

// Sign is the free-function form of IdentityKey.Sign, for callers that
// hold a *secp256k1.PrivateKey directly.
func Sign(priv *secp256k1.PrivateKey, msg []byte) ([]byte, error) {
	digest := DoubleSHA256(msg)
	compact := ecdsa.SignCompact(priv, digest[:], true)
	if len(compact) != 65 {
		return nil, fmt.Errorf("crypto: unexpected compact signature length %d", len(compact))
	}
	// compact[0] is the recovery/compression byte; the wire format this
	// store persists is the raw 64-byte R||S pair.
	out := make([]byte, 64)
	copy(out, compact[1:])
	return out, nil
}

// VerifySignature checks a 64-byte compact (R||S) signature over the
// double-SHA-256 of msg under pubKeyHex (compressed or uncompressed hex).
func VerifySignature(pubKeyHex string, msg, sig []byte) (bool, error) {
	if len(sig) != 64 {
		return false, fmt.Errorf("crypto: signature must be 64 bytes, got %d", len(sig))
	}
	pubBytes, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return false, fmt.Errorf("crypto: bad public key hex: %w", err)
	}
	pub, err := secp256k1.ParsePubKey(pubBytes)
	if err != nil {
		return false, fmt.Errorf("crypto: parse public key: %w", err)
	}
	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(sig[:32]); overflow {
		return false, nil
	}
	if overflow := s.SetByteSlice(sig[32:]); overflow {
		return false, nil
	}
	digest := DoubleSHA256(msg)
	signature := ecdsa.NewSignature(&r, &s)
	return signature.Verify(digest[:], pub), nil
}

// DoubleSHA256 hashes twice with SHA-256, the Bitcoin-family message
// digest convention spec.md §3 requires for commitment signatures.
func DoubleSHA256(msg []byte) [32]byte {
	first := sha256.Sum256(msg)
	return sha256.Sum256(first[:])
}

// LoadOrCreateIdentityKey opens keyPath if it exists, otherwise generates
// a fresh key and writes it with owner-only permissions.
func LoadOrCreateIdentityKey(keyPath string, passphrase []byte) (*IdentityKey, error) {
	if _, err := os.Stat(keyPath); err == nil {
		return LoadIdentityKey(keyPath, passphrase)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("crypto: stat key file: %w", err)
	}

	k, err := GenerateIdentityKey()
	if err != nil {
		return nil, err
	}
	if err := SaveIdentityKey(keyPath, k, passphrase); err != nil {
		return nil, err
	}
	return k, nil
}

// SaveIdentityKey writes the key file with 0o600 permissions. If
// passphrase is non-empty the private key material is encrypted at rest.
func SaveIdentityKey(keyPath string, k *IdentityKey, passphrase []byte) error {
	kf := KeyFile{
		PublicKey: k.PublicKeyHex(),
		CreatedAt: time.Now().UnixMilli(),
		KeyType:   KeyType,
	}

	if len(passphrase) > 0 {
		ct, salt, nonce, err := encryptKeyMaterial(passphrase, mustHexDecode(k.privateKeyHex()))
		if err != nil {
			return fmt.Errorf("crypto: encrypt identity key: %w", err)
		}
		kf.Encrypted = true
		kf.PrivateKey = hex.EncodeToString(ct)
		kf.SaltHex = hex.EncodeToString(salt)
		kf.NonceHex = hex.EncodeToString(nonce)
	} else {
		kf.PrivateKey = k.privateKeyHex()
	}

	b, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return fmt.Errorf("crypto: marshal key file: %w", err)
	}
	b = append(b, '\n')

	if err := os.MkdirAll(filepath.Dir(keyPath), 0o700); err != nil {
		return fmt.Errorf("crypto: mkdir key dir: %w", err)
	}
	if err := os.WriteFile(keyPath, b, 0o600); err != nil {
		return fmt.Errorf("crypto: write key file: %w", err)
	}
	return nil
}

// LoadIdentityKey reads and decodes a key file, decrypting it first if
// needed.
func LoadIdentityKey(keyPath string, passphrase []byte) (*IdentityKey, error) {
	raw, err := os.ReadFile(keyPath) // #nosec G304 -- operator-controlled data directory path.
	if err != nil {
		return nil, fmt.Errorf("crypto: read key file: %w", err)
	}
	var kf KeyFile
	if err := json.Unmarshal(raw, &kf); err != nil {
		return nil, fmt.Errorf("crypto: parse key file: %w", err)
	}
	if kf.KeyType != KeyType {
		return nil, fmt.Errorf("crypto: unsupported key type %q", kf.KeyType)
	}

	var skBytes []byte
	if kf.Encrypted {
		if len(passphrase) == 0 {
			return nil, fmt.Errorf("crypto: key file is encrypted, passphrase required")
		}
		ct, err := hex.DecodeString(kf.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("crypto: bad privateKey hex: %w", err)
		}
		salt, err := hex.DecodeString(kf.SaltHex)
		if err != nil {
			return nil, fmt.Errorf("crypto: bad salt hex: %w", err)
		}
		nonce, err := hex.DecodeString(kf.NonceHex)
		if err != nil {
			return nil, fmt.Errorf("crypto: bad nonce hex: %w", err)
		}
		skBytes, err = decryptKeyMaterial(passphrase, salt, nonce, ct)
		if err != nil {
			return nil, fmt.Errorf("crypto: decrypt identity key: %w", err)
		}
	} else {
		skBytes, err = hex.DecodeString(kf.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("crypto: bad privateKey hex: %w", err)
		}
	}

	priv := secp256k1.PrivKeyFromBytes(skBytes)
	k := &IdentityKey{priv: priv}
	if k.PublicKeyHex() != kf.PublicKey {
		return nil, fmt.Errorf("crypto: key file public key does not match derived public key")
	}
	return k, nil
}

func mustHexDecode(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic("crypto: internal hex encode/decode mismatch: " + err.Error())
	}
	return b
}
