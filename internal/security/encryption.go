// Package security seals and opens the relay service key so it can sit
// on disk encrypted instead of in plain configuration.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/scrypt"
)

// EncryptionConfig defines the key derivation and cipher parameters
type EncryptionConfig struct {
	// SCRYPT parameters
	SCryptN      int // CPU/memory cost parameter (32768 minimum)
	SCryptR      int // Block size parameter (8 recommended)
	SCryptP      int // Parallelization parameter (1 recommended)
	SCryptKeyLen int // Key length in bytes (32 for AES-256)

	// AES-GCM parameters
	NonceSize int // 96-bit nonce size for GCM
	TagSize   int // 128-bit authentication tag
}

// EncryptedPayload represents the sealed key data structure
type EncryptedPayload struct {
	Version    uint8  `json:"version"`    // Format version for future compatibility
	Salt       []byte `json:"salt"`       // SCRYPT salt (32 bytes)
	Nonce      []byte `json:"nonce"`      // AES-GCM nonce (12 bytes)
	Ciphertext []byte `json:"ciphertext"` // Encrypted key material
	AuthTag    []byte `json:"auth_tag"`   // GCM authentication tag (16 bytes)
	Integrity  []byte `json:"integrity"`  // Binary integrity hash
	Timestamp  int64  `json:"timestamp"`  // Sealing timestamp
}

// DefaultEncryptionConfig returns the standard sealing configuration
func DefaultEncryptionConfig() *EncryptionConfig {
	return &EncryptionConfig{
		SCryptN:      32768,
		SCryptR:      8,
		SCryptP:      1,
		SCryptKeyLen: 32,
		NonceSize:    12,
		TagSize:      16,
	}
}

// Seal encrypts key material using AES-256-GCM with an SCRYPT derived key
func Seal(plaintext, passphrase []byte, config *EncryptionConfig) (*EncryptedPayload, error) {
	if len(plaintext) == 0 {
		return nil, errors.New("plaintext cannot be empty")
	}

	if len(passphrase) < 8 {
		return nil, errors.New("passphrase must be at least 8 bytes")
	}

	if config == nil {
		config = DefaultEncryptionConfig()
	}

	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %v", err)
	}

	key, err := scrypt.Key(passphrase, salt, config.SCryptN, config.SCryptR, config.SCryptP, config.SCryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("key derivation failed: %v", err)
	}
	defer wipe(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %v", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %v", err)
	}

	nonce := make([]byte, config.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %v", err)
	}

	// Seal appends the authentication tag, store it separately
	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	authTag := sealed[len(sealed)-config.TagSize:]
	ciphertext := sealed[:len(sealed)-config.TagSize]

	integrity := generateIntegrityHash(ciphertext, salt, nonce)

	return &EncryptedPayload{
		Version:    1,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: ciphertext,
		AuthTag:    authTag,
		Integrity:  integrity,
		Timestamp:  time.Now().Unix(),
	}, nil
}

// Open decrypts a sealed payload with the given passphrase
func Open(payload *EncryptedPayload, passphrase []byte, config *EncryptionConfig) ([]byte, error) {
	if payload == nil {
		return nil, errors.New("payload cannot be nil")
	}

	if len(passphrase) < 8 {
		return nil, errors.New("passphrase must be at least 8 bytes")
	}

	if config == nil {
		config = DefaultEncryptionConfig()
	}

	if payload.Version != 1 {
		return nil, fmt.Errorf("unsupported payload version: %d", payload.Version)
	}

	// Verify integrity first
	expectedIntegrity := generateIntegrityHash(payload.Ciphertext, payload.Salt, payload.Nonce)
	if subtle.ConstantTimeCompare(payload.Integrity, expectedIntegrity) != 1 {
		return nil, errors.New("integrity verification failed - possible tampering detected")
	}

	key, err := scrypt.Key(passphrase, payload.Salt, config.SCryptN, config.SCryptR, config.SCryptP, config.SCryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("key derivation failed: %v", err)
	}
	defer wipe(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %v", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %v", err)
	}

	// Reconstruct full ciphertext with auth tag
	fullCiphertext := append(payload.Ciphertext, payload.AuthTag...)

	plaintext, err := gcm.Open(nil, payload.Nonce, fullCiphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %v", err)
	}

	return plaintext, nil
}

// generateIntegrityHash creates a hash for binary integrity verification
func generateIntegrityHash(ciphertext, salt, nonce []byte) []byte {
	h := sha256.New()
	h.Write([]byte("HOSTING-SEALKEY-V1")) // Domain separator
	h.Write(ciphertext)
	h.Write(salt)
	h.Write(nonce)
	return h.Sum(nil)
}

// ValidateEncryptionConfig validates encryption configuration parameters
func ValidateEncryptionConfig(config *EncryptionConfig) error {
	if config == nil {
		return errors.New("encryption config cannot be nil")
	}

	if config.SCryptN < 32768 {
		return errors.New("SCryptN must be at least 32768 for high security")
	}

	if config.SCryptR < 8 {
		return errors.New("SCryptR must be at least 8")
	}

	if config.SCryptP < 1 {
		return errors.New("SCryptP must be at least 1")
	}

	if config.SCryptKeyLen != 32 {
		return errors.New("SCryptKeyLen must be 32 for AES-256")
	}

	if config.NonceSize != 12 {
		return errors.New("NonceSize must be 12 for AES-GCM")
	}

	if config.TagSize != 16 {
		return errors.New("TagSize must be 16 for AES-GCM")
	}

	return nil
}

// SecureCompare performs constant-time comparison to prevent timing attacks
func SecureCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// wipe overwrites sensitive byte slices after use
func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
