package services

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/coracaovalente/instituto-integration/models"
	"golang.org/x/crypto/chacha20poly1305"
)

var ErrInvalidCredentialsKey = errors.New("credentials key must be 32 bytes, base64 or hex encoded")

// CredentialCipher seals partner credentials with XChaCha20-Poly1305.
// The sealed form is base64(nonce || ciphertext).
type CredentialCipher struct {
	aead cipher.AEAD
}

// NewCredentialCipher accepts a 32-byte key encoded as base64 or hex
func NewCredentialCipher(encodedKey string) (*CredentialCipher, error) {
	key, err := decodeKey(encodedKey)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}
	return &CredentialCipher{aead: aead}, nil
}

func decodeKey(encoded string) ([]byte, error) {
	if key, err := base64.StdEncoding.DecodeString(encoded); err == nil && len(key) == chacha20poly1305.KeySize {
		return key, nil
	}
	if key, err := hex.DecodeString(encoded); err == nil && len(key) == chacha20poly1305.KeySize {
		return key, nil
	}
	return nil, ErrInvalidCredentialsKey
}

// Encrypt seals only the fields relevant to authType
func (c *CredentialCipher) Encrypt(authType models.AuthType, creds models.Credentials) (string, error) {
	var kept models.Credentials
	switch authType {
	case models.AuthTypeAPIKey:
		kept.APIKey = creds.APIKey
	case models.AuthTypeBearer:
		kept.BearerToken = creds.BearerToken
	case models.AuthTypeBasic:
		kept.BasicUsername = creds.BasicUsername
		kept.BasicPassword = creds.BasicPassword
	default:
		return "", fmt.Errorf("unknown auth type %q", authType)
	}

	plain, err := json.Marshal(kept)
	if err != nil {
		return "", fmt.Errorf("failed to marshal credentials: %w", err)
	}

	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plain)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, plain, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a sealed blob; an empty blob yields empty credentials
func (c *CredentialCipher) Decrypt(sealed string) (models.Credentials, error) {
	var creds models.Credentials
	if sealed == "" {
		return creds, nil
	}

	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return creds, fmt.Errorf("failed to decode credentials: %w", err)
	}
	if len(raw) < c.aead.NonceSize() {
		return creds, errors.New("sealed credentials too short")
	}

	nonce, ciphertext := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return creds, fmt.Errorf("failed to open credentials: %w", err)
	}
	if err := json.Unmarshal(plain, &creds); err != nil {
		return creds, fmt.Errorf("failed to unmarshal credentials: %w", err)
	}
	return creds, nil
}
