// Package credential provides credential encryption for stored connection passwords
package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// EncryptedPrefix marks values produced by Encrypt
const EncryptedPrefix = "encrypted:"

// Encryptor handles credential encryption/decryption
type Encryptor struct {
	key []byte
}

// EncryptionConfig holds encryption configuration
type EncryptionConfig struct {
	Key        string // Base64 encoded key or passphrase
	KeyType    string // "raw", "passphrase"
	Salt       string // For passphrase derivation
	Iterations int    // PBKDF2 iterations
}

// DefaultEncryptionConfig returns default encryption config
func DefaultEncryptionConfig() *EncryptionConfig {
	return &EncryptionConfig{
		KeyType:    "passphrase",
		Iterations: 100000,
	}
}

// NewEncryptor creates a new encryptor
func NewEncryptor(config *EncryptionConfig) (*Encryptor, error) {
	var key []byte

	switch config.KeyType {
	case "raw":
		var err error
		key, err = base64.StdEncoding.DecodeString(config.Key)
		if err != nil {
			return nil, fmt.Errorf("invalid key: %w", err)
		}
	case "passphrase":
		salt := []byte(config.Salt)
		if len(salt) == 0 {
			salt = []byte("schemafleet-default-salt")
		}
		key = pbkdf2.Key([]byte(config.Key), salt, config.Iterations, 32, sha256.New)
	default:
		return nil, fmt.Errorf("unknown key type: %s", config.KeyType)
	}

	if len(key) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes for AES-256")
	}

	return &Encryptor{key: key}, nil
}

// IsEncrypted reports whether a stored value carries the encrypted marker
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, EncryptedPrefix)
}

// Encrypt encrypts a plaintext and returns a marked, base64 encoded value
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return EncryptedPrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt decrypts a marked value produced by Encrypt. Unmarked values are
// accepted as raw base64 ciphertext for backward compatibility.
func (e *Encryptor) Decrypt(value string) (string, error) {
	encoded := strings.TrimPrefix(value, EncryptedPrefix)

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("invalid base64: %w", err)
	}

	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	if len(data) < gcm.NonceSize() {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}

// GenerateKey generates a new encryption key
func GenerateKey() (string, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// MaskPassword masks a password for display and logs
func MaskPassword(value string) string {
	if len(value) > 4 {
		return "****" + value[len(value)-4:]
	}
	return "****"
}
